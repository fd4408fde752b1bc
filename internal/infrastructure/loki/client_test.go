package loki_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/kasametrics/internal/infrastructure/config"
	"github.com/nerrad567/kasametrics/internal/infrastructure/logging"
	"github.com/nerrad567/kasametrics/internal/infrastructure/loki"
)

type pushBody struct {
	Streams []struct {
		Stream map[string]string `json:"stream"`
		Values [][2]string       `json:"values"`
	} `json:"streams"`
}

// newLokiServer records decoded push bodies and answers with status.
func newLokiServer(t *testing.T, status int) (*httptest.Server, func() []pushBody) {
	t.Helper()
	var mu sync.Mutex
	var bodies []pushBody

	mux := http.NewServeMux()
	mux.HandleFunc("/loki/api/v1/push", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q, want application/json", ct)
		}
		var body pushBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decoding push body: %v", err)
		}
		mu.Lock()
		bodies = append(bodies, body)
		mu.Unlock()

		w.WriteHeader(status)
		if status != http.StatusNoContent {
			_, _ = w.Write([]byte("entry out of order"))
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return srv, func() []pushBody {
		mu.Lock()
		defer mu.Unlock()
		return append([]pushBody(nil), bodies...)
	}
}

func newClient(t *testing.T, url string) *loki.Client {
	t.Helper()
	c, err := loki.New(config.LokiConfig{
		Enabled: true,
		URL:     url,
		Labels:  map[string]string{"application": "kasametrics"},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func TestNew_Disabled(t *testing.T) {
	_, err := loki.New(config.LokiConfig{Enabled: false})
	if !errors.Is(err, loki.ErrDisabled) {
		t.Errorf("New() error = %v, want ErrDisabled", err)
	}
}

func TestNew_PushURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		want    string
		wantErr bool
	}{
		{name: "server root", url: "http://loki:3100", want: "http://loki:3100/loki/api/v1/push"},
		{name: "trailing slash", url: "http://loki:3100/", want: "http://loki:3100/loki/api/v1/push"},
		{name: "full push url", url: "https://logs.example/loki/api/v1/push", want: "https://logs.example/loki/api/v1/push"},
		{name: "proxied path", url: "http://gw/tenant-a/push", want: "http://gw/tenant-a/push"},
		{name: "no scheme", url: "loki:3100", wantErr: true},
		{name: "empty", url: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := loki.New(config.LokiConfig{Enabled: true, URL: tt.url})
			if tt.wantErr {
				if !errors.Is(err, loki.ErrInvalidURL) {
					t.Errorf("New(%q) error = %v, want ErrInvalidURL", tt.url, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("New(%q) error = %v", tt.url, err)
			}
			if c.URL() != tt.want {
				t.Errorf("URL() = %q, want %q", c.URL(), tt.want)
			}
		})
	}
}

func TestSend_BaseURLReachesPushPath(t *testing.T) {
	srv, bodies := newLokiServer(t, http.StatusNoContent)
	client := newClient(t, srv.URL)

	entry := logging.Entry{Time: time.Now(), Level: slog.LevelWarn, Message: "device query failed"}
	if err := client.Send(context.Background(), []logging.Entry{entry}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if len(bodies()) != 1 {
		t.Errorf("push path received %d requests, want 1", len(bodies()))
	}
}

func TestSend_GroupsStreamsByLabels(t *testing.T) {
	srv, bodies := newLokiServer(t, http.StatusNoContent)
	client := newClient(t, srv.URL+"/")

	ts := time.Unix(1700000000, 0)
	entries := []logging.Entry{
		{Time: ts, Level: slog.LevelWarn, Message: "device query failed",
			Attrs: map[string]string{"address": "10.0.0.5", "feed": "lamp", "error_kind": "connection refused"}},
		{Time: ts.Add(time.Second), Level: slog.LevelWarn, Message: "device query failed",
			Attrs: map[string]string{"address": "10.0.0.5", "feed": "lamp", "error_kind": "eof"}},
		{Time: ts, Level: slog.LevelError, Message: "batch write failed",
			Attrs: map[string]string{"error": "timeout"}},
	}

	if err := client.Send(context.Background(), entries); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	got := bodies()
	if len(got) != 1 {
		t.Fatalf("server received %d requests, want 1", len(got))
	}
	streams := got[0].Streams
	if len(streams) != 2 {
		t.Fatalf("len(streams) = %d, want 2", len(streams))
	}

	first := streams[0]
	for key, want := range map[string]string{
		"application": "kasametrics",
		"level":       "warning",
		"address":     "10.0.0.5",
		"feed":        "lamp",
	} {
		if first.Stream[key] != want {
			t.Errorf("streams[0].stream[%q] = %q, want %q", key, first.Stream[key], want)
		}
	}
	if len(first.Values) != 2 {
		t.Fatalf("len(streams[0].values) = %d, want 2", len(first.Values))
	}
	if first.Values[0][0] != "1700000000000000000" {
		t.Errorf("timestamp = %q, want nanoseconds", first.Values[0][0])
	}
	if want := `device query failed error_kind="connection refused"`; first.Values[0][1] != want {
		t.Errorf("line = %q, want %q", first.Values[0][1], want)
	}

	second := streams[1]
	if second.Stream["level"] != "error" {
		t.Errorf("streams[1].stream[level] = %q, want error", second.Stream["level"])
	}
	if _, ok := second.Stream["feed"]; ok {
		t.Error("streams[1] should not carry a feed label")
	}
}

func TestSend_RejectedPush(t *testing.T) {
	srv, _ := newLokiServer(t, http.StatusBadRequest)
	client := newClient(t, srv.URL)

	err := client.Send(context.Background(), []logging.Entry{{Time: time.Now(), Level: slog.LevelWarn, Message: "x"}})
	if !errors.Is(err, loki.ErrPushFailed) {
		t.Fatalf("Send() error = %v, want ErrPushFailed", err)
	}
	if !strings.Contains(err.Error(), "entry out of order") {
		t.Errorf("Send() error = %v, want response detail", err)
	}
}

func TestSend_Unreachable(t *testing.T) {
	client := newClient(t, "http://127.0.0.1:1")

	err := client.Send(context.Background(), []logging.Entry{{Time: time.Now(), Level: slog.LevelWarn, Message: "x"}})
	if !errors.Is(err, loki.ErrPushFailed) {
		t.Errorf("Send() error = %v, want ErrPushFailed", err)
	}
}

func TestSend_Empty(t *testing.T) {
	srv, bodies := newLokiServer(t, http.StatusNoContent)
	client := newClient(t, srv.URL)

	if err := client.Send(context.Background(), nil); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if len(bodies()) != 0 {
		t.Error("Send(nil) should not contact the server")
	}
}
