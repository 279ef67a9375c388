// Package consumer translates inbound delivery RPCs from backend services
// into realtime gateway multicast calls.
package consumer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/quizplatform/notification-server/internal/infrastructure/metrics"
)

// Delivery patterns, relative to the configured subject prefix.
const (
	PatternEmitUser  = "emit.user"
	PatternEmitUsers = "emit.users"
	PatternEmitRoom  = "emit.room"
	PatternBroadcast = "broadcast"
)

// Emitter is the slice of the realtime gateway the consumer drives.
type Emitter interface {
	EmitToUser(ctx context.Context, userID, event string, data json.RawMessage) error
	EmitToUsers(ctx context.Context, userIDs []string, event string, data json.RawMessage) error
	EmitToRoom(ctx context.Context, room, event string, data json.RawMessage) error
	Broadcast(ctx context.Context, event string, data json.RawMessage) error
}

type userPayload struct {
	UserID string          `json:"userId"`
	Event  string          `json:"event"`
	Data   json.RawMessage `json:"data"`
}

type usersPayload struct {
	UserIDs []string        `json:"userIds"`
	Event   string          `json:"event"`
	Data    json.RawMessage `json:"data"`
}

type roomPayload struct {
	Room  string          `json:"room"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type broadcastPayload struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Ack is the synchronous acknowledgement for a delivery request. It means
// "the local call was issued", not "every recipient received it".
type Ack struct {
	Success bool `json:"success"`
}

// Consumer subscribes to the delivery subjects and replies with an Ack per
// request. It performs no business validation of payloads; shape trust is
// delegated to callers.
type Consumer struct {
	nc      *nats.Conn
	emitter Emitter
	prefix  string
	log     zerolog.Logger
	subs    []*nats.Subscription
}

// New creates a delivery consumer on an established NATS connection.
func New(nc *nats.Conn, emitter Emitter, prefix string, log zerolog.Logger) *Consumer {
	return &Consumer{
		nc:      nc,
		emitter: emitter,
		prefix:  prefix,
		log:     log.With().Str("component", "delivery-consumer").Logger(),
	}
}

// Start subscribes to all four delivery patterns.
func (c *Consumer) Start() error {
	for _, pattern := range []string{PatternEmitUser, PatternEmitUsers, PatternEmitRoom, PatternBroadcast} {
		pattern := pattern
		subject := c.prefix + "." + pattern
		sub, err := c.nc.Subscribe(subject, func(m *nats.Msg) {
			resp := c.dispatch(context.Background(), pattern, m.Data)
			if m.Reply == "" {
				return
			}
			if err := m.Respond(resp); err != nil {
				c.log.Warn().Err(err).Str("subject", subject).Msg("failed to respond")
			}
		})
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", subject, err)
		}
		c.subs = append(c.subs, sub)
	}
	if err := c.nc.Flush(); err != nil {
		return fmt.Errorf("flush subscriptions: %w", err)
	}
	c.log.Info().Str("prefix", c.prefix).Msg("delivery consumer subscribed")
	return nil
}

// Stop unsubscribes from all delivery subjects.
func (c *Consumer) Stop() error {
	var firstErr error
	for _, sub := range c.subs {
		if err := sub.Unsubscribe(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	c.subs = nil
	return firstErr
}

// dispatch decodes the request and issues the matching gateway call. Emit
// failures are logged, never propagated: the acknowledgement reflects only
// that the call was issued.
func (c *Consumer) dispatch(ctx context.Context, pattern string, data []byte) []byte {
	metrics.RecordDeliveryRequest(pattern)

	var err error
	switch pattern {
	case PatternEmitUser:
		var p userPayload
		if err = json.Unmarshal(data, &p); err == nil {
			err = c.emitter.EmitToUser(ctx, p.UserID, p.Event, p.Data)
		}
	case PatternEmitUsers:
		var p usersPayload
		if err = json.Unmarshal(data, &p); err == nil {
			err = c.emitter.EmitToUsers(ctx, p.UserIDs, p.Event, p.Data)
		}
	case PatternEmitRoom:
		var p roomPayload
		if err = json.Unmarshal(data, &p); err == nil {
			err = c.emitter.EmitToRoom(ctx, p.Room, p.Event, p.Data)
		}
	case PatternBroadcast:
		var p broadcastPayload
		if err = json.Unmarshal(data, &p); err == nil {
			err = c.emitter.Broadcast(ctx, p.Event, p.Data)
		}
	}
	if err != nil {
		c.log.Error().Err(err).Str("pattern", pattern).Msg("delivery request failed")
	}

	resp, _ := json.Marshal(Ack{Success: true})
	return resp
}
