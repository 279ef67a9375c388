// Package notify is the client library backend services use to deliver
// real-time events to connected clients through the notification server.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

const defaultTimeout = 5 * time.Second

// Ack is the notification server's synchronous acknowledgement. Success
// means the delivery call was issued, not that every recipient received it.
type Ack struct {
	Success bool `json:"success"`
}

// Client issues delivery requests over NATS request/reply.
type Client struct {
	nc      *nats.Conn
	prefix  string
	timeout time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout overrides the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// New creates a delivery client on an established NATS connection. The
// prefix must match the notification server's subject prefix.
func New(nc *nats.Conn, prefix string, opts ...Option) *Client {
	c := &Client{
		nc:      nc,
		prefix:  prefix,
		timeout: defaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NotifyUser delivers an event to every live connection of one user.
func (c *Client) NotifyUser(ctx context.Context, userID, event string, data any) error {
	return c.request(ctx, "emit.user", map[string]any{
		"userId": userID,
		"event":  event,
		"data":   data,
	})
}

// NotifyUsers delivers an event to every live connection of each listed user.
func (c *Client) NotifyUsers(ctx context.Context, userIDs []string, event string, data any) error {
	return c.request(ctx, "emit.users", map[string]any{
		"userIds": userIDs,
		"event":   event,
		"data":    data,
	})
}

// NotifyRoom delivers an event to every connection joined to the room.
func (c *Client) NotifyRoom(ctx context.Context, room, event string, data any) error {
	return c.request(ctx, "emit.room", map[string]any{
		"room":  room,
		"event": event,
		"data":  data,
	})
}

// BroadcastAll delivers an event to every connected client fleet-wide.
func (c *Client) BroadcastAll(ctx context.Context, event string, data any) error {
	return c.request(ctx, "broadcast", map[string]any{
		"event": event,
		"data":  data,
	})
}

func (c *Client) request(ctx context.Context, pattern string, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", pattern, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	subject := c.prefix + "." + pattern
	msg, err := c.nc.RequestWithContext(ctx, subject, body)
	if err != nil {
		return fmt.Errorf("request %s: %w", subject, err)
	}

	var ack Ack
	if err := json.Unmarshal(msg.Data, &ack); err != nil {
		return fmt.Errorf("decode %s ack: %w", subject, err)
	}
	if !ack.Success {
		return fmt.Errorf("%s not acknowledged", subject)
	}
	return nil
}
