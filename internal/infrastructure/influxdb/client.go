package influxdb

import (
	"context"
	"fmt"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/kasametrics/internal/infrastructure/config"
)

// Default timeouts for InfluxDB operations.
const (
	defaultConnectTimeout = 10 * time.Second
	defaultPingTimeout    = 5 * time.Second
	defaultHTTPTimeout    = 20 // seconds, client-wide request timeout
)

// Client wraps the InfluxDB v2 client for batch writes.
//
// Unlike a streaming telemetry writer, every call to WritePoints is one
// blocking HTTP request: the whole batch is accepted or rejected together.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	cfg      config.InfluxDBConfig

	// connected tracks current connection state.
	connected bool
	mu        sync.RWMutex
}

// Connect establishes a connection to the InfluxDB server.
//
// It performs the following setup:
//  1. Resolves credentials (2.x token, or 1.x username/password/database)
//  2. Creates the client with millisecond write precision
//  3. Verifies connectivity with a ping
//  4. Creates the blocking write API
//
// Returns:
//   - *Client: Connected client ready for use
//   - error: If InfluxDB is disabled or connection fails
func Connect(ctx context.Context, cfg config.InfluxDBConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	token, org, bucket := credentials(cfg)

	client := influxdb2.NewClientWithOptions(
		cfg.URL,
		token,
		influxdb2.DefaultOptions().
			SetPrecision(time.Millisecond).
			SetHTTPRequestTimeout(defaultHTTPTimeout),
	)

	pingCtx, cancel := context.WithTimeout(ctx, defaultConnectTimeout)
	defer cancel()

	healthy, err := client.Ping(pingCtx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: ping failed: %w", ErrConnectionFailed, err)
	}
	if !healthy {
		client.Close()
		return nil, fmt.Errorf("%w: server not healthy", ErrConnectionFailed)
	}

	return &Client{
		client:    client,
		writeAPI:  client.WriteAPIBlocking(org, bucket),
		cfg:       cfg,
		connected: true,
	}, nil
}

// credentials maps configuration onto the token/org/bucket triple.
//
// InfluxDB 1.8+ serves the v2 write endpoint in compatibility mode, where
// the token is "username:password", the org is ignored and the bucket is
// "database/retention_policy".
func credentials(cfg config.InfluxDBConfig) (token, org, bucket string) {
	if cfg.Token != "" {
		return cfg.Token, cfg.Org, cfg.Bucket
	}

	if cfg.Username != "" {
		token = cfg.Username + ":" + cfg.Password
	}
	bucket = cfg.Database
	if cfg.RetentionPolicy != "" {
		bucket += "/" + cfg.RetentionPolicy
	}
	return token, "", bucket
}

// WritePoints writes the points in a single request.
//
// An empty batch is a no-op. Errors are wrapped with ErrWriteFailed and carry
// the server's response detail.
func (c *Client) WritePoints(ctx context.Context, points ...*write.Point) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	if len(points) == 0 {
		return nil
	}

	if err := c.writeAPI.WritePoint(ctx, points...); err != nil {
		return fmt.Errorf("%w: %d points: %w", ErrWriteFailed, len(points), err)
	}
	return nil
}

// Close gracefully shuts down the InfluxDB connection.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}

	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()

	c.client.Close()
	return nil
}

// HealthCheck verifies the InfluxDB connection is alive and functioning.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	checkCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()

	healthy, err := c.client.Ping(checkCtx)
	if err != nil {
		return fmt.Errorf("influxdb health check failed: %w", err)
	}
	if !healthy {
		return fmt.Errorf("influxdb health check failed: server not healthy")
	}

	return nil
}

// IsConnected returns the current connection state.
//
// Note: This reflects the last known state. For reliability,
// use HealthCheck which performs an active ping.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Name identifies the backend in logs and metrics.
func (c *Client) Name() string {
	return "influxdb"
}
