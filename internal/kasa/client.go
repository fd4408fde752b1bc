package kasa

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"
)

// Client sends protocol requests to one device address.
//
// Each call opens a fresh connection, so Client is safe for concurrent use.
type Client struct {
	address string
	dialer  net.Dialer
}

// NewClient returns a client for host:port.
func NewClient(address string) *Client {
	return &Client{address: address}
}

// Address returns the device address.
func (c *Client) Address() string {
	return c.address
}

// Call sends request and decodes the reply into response. The whole
// exchange is bounded by ctx.
func (c *Client) Call(ctx context.Context, request, response any) error {
	payload, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	conn, err := c.dialer.DialContext(ctx, "tcp", c.address)
	if err != nil {
		return fmt.Errorf("%w: dial %s: %w", ErrConnectionFailed, c.address, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return fmt.Errorf("%w: set deadline: %w", ErrConnectionFailed, err)
		}
	}
	// Unblock reads and writes if ctx is cancelled before its deadline.
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Unix(1, 0)) //nolint:errcheck // Connection is being abandoned
	})
	defer stop()

	if err := WriteFrame(conn, Encrypt(payload)); err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	body, err := ReadFrame(conn)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%w: %w", ErrConnectionFailed, ctxErr)
		}
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	if err := json.Unmarshal(Decrypt(body), response); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}
	return nil
}
