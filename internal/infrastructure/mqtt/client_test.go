package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/nerrad567/kasametrics/internal/infrastructure/config"
	"github.com/nerrad567/kasametrics/internal/infrastructure/logging"
)

// testConfig returns a valid MQTT configuration for testing.
// Connection tests require a running broker at 127.0.0.1:1883.
func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Enabled: true,
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "kasametrics-test",
		},
		QoS:         1,
		TopicPrefix: "kasametrics-test",
	}
}

// connectOrSkip connects to the local broker or skips the test.
func connectOrSkip(t *testing.T) *Client {
	t.Helper()
	client, err := Connect(testConfig())
	if err != nil {
		t.Skipf("MQTT broker not available, skipping: %v", err)
	}
	return client
}

// =============================================================================
// Connection Tests
// =============================================================================

func TestConnect_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false

	_, err := Connect(cfg)
	if !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_InvalidBroker(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.Port = 19999

	_, err := Connect(cfg)
	if err == nil {
		t.Fatal("Connect() expected error for invalid broker")
	}
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestConnect_PublishAndClose(t *testing.T) {
	client := connectOrSkip(t)

	if !client.IsConnected() {
		t.Error("IsConnected() = false, want true")
	}
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
	if err := client.Publish(client.Topics().Log("warning"), []byte(`{}`), 1, false); err != nil {
		t.Errorf("Publish() error = %v", err)
	}

	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}
	if err := client.Publish("x", nil, 0, false); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish() after Close() error = %v, want ErrNotConnected", err)
	}
}

func TestClose_Nil(t *testing.T) {
	var client *Client
	if err := client.Close(); err != nil {
		t.Errorf("Close() on nil client error = %v", err)
	}
}

// =============================================================================
// Option and Topic Tests
// =============================================================================

func TestBrokerURL(t *testing.T) {
	tests := []struct {
		name   string
		broker config.MQTTBrokerConfig
		want   string
	}{
		{name: "plain", broker: config.MQTTBrokerConfig{Host: "broker", Port: 1883}, want: "tcp://broker:1883"},
		{name: "tls", broker: config.MQTTBrokerConfig{Host: "broker", Port: 8883, TLS: true}, want: "ssl://broker:8883"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := brokerURL(tt.broker); got != tt.want {
				t.Errorf("brokerURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStatusPayloads(t *testing.T) {
	var online, offline statusPayload
	if err := json.Unmarshal(buildOnlinePayload("c1"), &online); err != nil {
		t.Fatalf("online payload: %v", err)
	}
	if err := json.Unmarshal(buildOfflinePayload("c1"), &offline); err != nil {
		t.Fatalf("offline payload: %v", err)
	}

	if online.Status != "online" || online.ClientID != "c1" || online.Reason != "" {
		t.Errorf("online payload = %+v", online)
	}
	if offline.Status != "offline" || offline.Reason != "graceful_shutdown" {
		t.Errorf("offline payload = %+v", offline)
	}
	if _, err := time.Parse(time.RFC3339, online.Timestamp); err != nil {
		t.Errorf("timestamp %q is not RFC3339: %v", online.Timestamp, err)
	}
}

func TestTopics(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
		got    func(Topics) string
		want   string
	}{
		{name: "status", prefix: "home/power", got: Topics.Status, want: "home/power/status"},
		{name: "log", prefix: "kasametrics", got: func(t Topics) string { return t.Log("error") }, want: "kasametrics/log/error"},
		{name: "all logs", prefix: "kasametrics/", got: Topics.AllLogs, want: "kasametrics/log/+"},
		{name: "empty prefix", prefix: "", got: Topics.Status, want: "kasametrics/status"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.got(Topics{Prefix: tt.prefix}); got != tt.want {
				t.Errorf("topic = %q, want %q", got, tt.want)
			}
		})
	}
}

// =============================================================================
// Log Sink Tests
// =============================================================================

type published struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

type fakePublisher struct {
	messages []published
	failOn   string
}

func (p *fakePublisher) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if topic == p.failOn {
		return ErrNotConnected
	}
	p.messages = append(p.messages, published{topic, payload, qos, retained})
	return nil
}

func TestLogSink_Send(t *testing.T) {
	pub := &fakePublisher{}
	sink := NewLogSink(pub, Topics{Prefix: "kasametrics"}, 1)

	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	err := sink.Send(context.Background(), []logging.Entry{
		{Time: ts, Level: slog.LevelWarn, Message: "device query failed", Attrs: map[string]string{"feed": "lamp"}},
		{Time: ts, Level: slog.LevelError, Message: "batch write failed"},
	})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if len(pub.messages) != 2 {
		t.Fatalf("published %d messages, want 2", len(pub.messages))
	}
	if pub.messages[0].topic != "kasametrics/log/warning" {
		t.Errorf("messages[0].topic = %q", pub.messages[0].topic)
	}
	if pub.messages[1].topic != "kasametrics/log/error" {
		t.Errorf("messages[1].topic = %q", pub.messages[1].topic)
	}
	if pub.messages[0].retained {
		t.Error("log messages must not be retained")
	}

	var msg logMessage
	if err := json.Unmarshal(pub.messages[0].payload, &msg); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if msg.Message != "device query failed" || msg.Level != "warn" || msg.Attrs["feed"] != "lamp" {
		t.Errorf("payload = %+v", msg)
	}
	if msg.Timestamp != "2026-01-02T03:04:05Z" {
		t.Errorf("timestamp = %q", msg.Timestamp)
	}
}

func TestLogSink_ContinuesAfterFailure(t *testing.T) {
	pub := &fakePublisher{failOn: "kasametrics/log/warning"}
	sink := NewLogSink(pub, Topics{Prefix: "kasametrics"}, 0)

	err := sink.Send(context.Background(), []logging.Entry{
		{Time: time.Now(), Level: slog.LevelWarn, Message: "lost"},
		{Time: time.Now(), Level: slog.LevelError, Message: "kept"},
	})
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("Send() error = %v, want ErrNotConnected", err)
	}
	if len(pub.messages) != 1 {
		t.Errorf("published %d messages, want 1", len(pub.messages))
	}
}
