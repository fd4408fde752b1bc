package loki

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/nerrad567/kasametrics/internal/infrastructure/config"
	"github.com/nerrad567/kasametrics/internal/infrastructure/logging"
)

const (
	defaultPushTimeout = 5 * time.Second

	// pushPath is appended to a configured URL that has no path of its own.
	pushPath = "/loki/api/v1/push"

	// maxErrorBody limits how much of a rejected push response is kept.
	maxErrorBody = 512
)

// DefaultLabelKeys are record attributes promoted to stream labels.
var DefaultLabelKeys = []string{"address", "feed"}

// Client pushes log entries to Loki.
//
// Thread Safety: Send may be called concurrently, though logging.Forwarder
// only ever calls it from one goroutine.
type Client struct {
	url        string
	labels     map[string]string
	labelKeys  []string
	httpClient *http.Client
}

// New creates a Loki client from configuration.
//
// Returns:
//   - *Client: Ready to push
//   - error: ErrDisabled if Loki forwarding is disabled
func New(cfg config.LokiConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	endpoint, err := pushURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	labels := make(map[string]string, len(cfg.Labels))
	for k, v := range cfg.Labels {
		labels[k] = v
	}

	return &Client{
		url:        endpoint,
		labels:     labels,
		labelKeys:  DefaultLabelKeys,
		httpClient: &http.Client{Timeout: defaultPushTimeout},
	}, nil
}

// pushURL resolves the push endpoint. A bare server URL such as
// http://loki:3100 gets the standard push path; any other path is kept.
func pushURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidURL, raw)
	}
	if strings.Trim(u.Path, "/") == "" {
		u.Path = pushPath
	}
	return u.String(), nil
}

// URL returns the endpoint entries are pushed to.
func (c *Client) URL() string {
	return c.url
}

// pushRequest is the body of POST /loki/api/v1/push.
type pushRequest struct {
	Streams []stream `json:"streams"`
}

type stream struct {
	Stream map[string]string `json:"stream"`
	Values [][2]string       `json:"values"`
}

// Send pushes entries in one request, grouped into streams by label set.
func (c *Client) Send(ctx context.Context, entries []logging.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	body, err := json.Marshal(c.buildRequest(entries))
	if err != nil {
		return fmt.Errorf("%w: encoding: %w", ErrPushFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPushFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPushFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("%w: HTTP %d: %s", ErrPushFailed, resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	// Drain body to allow connection reuse
	_, _ = io.Copy(io.Discard, resp.Body)

	return nil
}

// buildRequest groups entries into streams keyed by their label set.
// Stream order follows first appearance so requests are deterministic.
func (c *Client) buildRequest(entries []logging.Entry) pushRequest {
	var req pushRequest
	index := make(map[string]int)

	for _, e := range entries {
		labels, rest := c.split(e)
		key := labelKey(labels)

		i, ok := index[key]
		if !ok {
			i = len(req.Streams)
			index[key] = i
			req.Streams = append(req.Streams, stream{Stream: labels})
		}

		req.Streams[i].Values = append(req.Streams[i].Values, [2]string{
			strconv.FormatInt(e.Time.UnixNano(), 10),
			formatLine(e.Message, rest),
		})
	}

	return req
}

// split separates label attributes from the remaining record attributes.
func (c *Client) split(e logging.Entry) (map[string]string, map[string]string) {
	labels := make(map[string]string, len(c.labels)+len(c.labelKeys)+1)
	for k, v := range c.labels {
		labels[k] = v
	}
	labels["level"] = levelName(e.Level)

	rest := make(map[string]string, len(e.Attrs))
	for k, v := range e.Attrs {
		rest[k] = v
	}
	for _, k := range c.labelKeys {
		if v, ok := rest[k]; ok && v != "" {
			labels[k] = v
			delete(rest, k)
		}
	}

	return labels, rest
}

// labelKey renders a label set canonically for grouping.
func labelKey(labels map[string]string) string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(strconv.Quote(labels[k]))
		b.WriteByte(',')
	}
	return b.String()
}

// formatLine renders the message followed by logfmt-style attributes.
func formatLine(msg string, attrs map[string]string) string {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(msg)
	for _, k := range keys {
		b.WriteByte(' ')
		b.WriteString(k)
		b.WriteByte('=')
		v := attrs[k]
		if strings.ContainsAny(v, " \"=") || v == "" {
			v = strconv.Quote(v)
		}
		b.WriteString(v)
	}
	return b.String()
}

// levelName maps slog levels onto the level names Loki/Grafana recognise.
func levelName(l slog.Level) string {
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
