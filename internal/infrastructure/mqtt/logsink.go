package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nerrad567/kasametrics/internal/infrastructure/logging"
)

// Publisher is the subset of Client used by LogSink.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// LogSink publishes forwarded log records as JSON, one message per record,
// on <prefix>/log/<level>. It implements logging.RemoteSink.
type LogSink struct {
	pub    Publisher
	topics Topics
	qos    byte
}

// NewLogSink creates a log sink publishing through pub.
func NewLogSink(pub Publisher, topics Topics, qos byte) *LogSink {
	return &LogSink{pub: pub, topics: topics, qos: qos}
}

// logMessage is the JSON payload of a forwarded record.
type logMessage struct {
	Timestamp string            `json:"timestamp"`
	Level     string            `json:"level"`
	Message   string            `json:"message"`
	Attrs     map[string]string `json:"attrs,omitempty"`
}

// Send publishes every entry. A failed publish does not stop the rest of the
// batch; all failures are returned joined.
func (s *LogSink) Send(ctx context.Context, entries []logging.Entry) error {
	var errs []error
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		level := strings.ToLower(e.Level.String())
		payload, err := json.Marshal(logMessage{
			Timestamp: e.Time.UTC().Format(time.RFC3339Nano),
			Level:     level,
			Message:   e.Message,
			Attrs:     e.Attrs,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("encoding log record: %w", err))
			continue
		}

		if err := s.pub.Publish(s.topics.Log(topicLevel(e.Level)), payload, s.qos, false); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// topicLevel maps a level onto a stable topic segment.
func topicLevel(l slog.Level) string {
	switch {
	case l >= slog.LevelError:
		return "error"
	case l >= slog.LevelWarn:
		return "warning"
	case l >= slog.LevelInfo:
		return "info"
	default:
		return "debug"
	}
}
