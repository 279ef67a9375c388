// Package fanout provides fan-out bus adapters that replicate delivery
// instructions across gateway processes.
package fanout

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/quizplatform/notification-server/internal/domain/gateway"
)

// Redis is a fan-out bus on a Redis Pub/Sub channel. It holds a dedicated
// client per direction; both must connect before the gateway starts
// accepting sockets, and both are closed on shutdown, publish side first.
type Redis struct {
	pub     *redis.Client
	sub     *redis.Client
	channel string
	log     zerolog.Logger

	mu     sync.Mutex
	pubsub *redis.PubSub
	done   chan struct{}
}

// NewRedis connects both bus channels and verifies them. A failure here is
// fatal to the process.
func NewRedis(redisURL, channel string, log zerolog.Logger) (*Redis, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}

	pub := redis.NewClient(opts)
	sub := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pub.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect publish channel: %w", err)
	}
	if err := sub.Ping(ctx).Err(); err != nil {
		_ = pub.Close()
		return nil, fmt.Errorf("connect subscribe channel: %w", err)
	}

	return &Redis{
		pub:     pub,
		sub:     sub,
		channel: channel,
		log:     log.With().Str("component", "fanout-bus").Logger(),
	}, nil
}

var _ gateway.Bus = (*Redis)(nil)

// Publish sends the instruction to every subscribed process, including this
// one.
func (b *Redis) Publish(ctx context.Context, instr gateway.Instruction) error {
	payload, err := json.Marshal(instr)
	if err != nil {
		return fmt.Errorf("marshal instruction: %w", err)
	}
	if err := b.pub.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish instruction: %w", err)
	}
	return nil
}

// Subscribe establishes the subscription and starts the receive loop. It
// returns once the subscription is confirmed by the server.
func (b *Redis) Subscribe(ctx context.Context, handler func(gateway.Instruction)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pubsub != nil {
		return fmt.Errorf("already subscribed to %s", b.channel)
	}

	pubsub := b.sub.Subscribe(ctx, b.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}
	b.pubsub = pubsub
	b.done = make(chan struct{})

	go b.receive(pubsub.Channel(), handler)
	b.log.Info().Str("channel", b.channel).Msg("fan-out bus subscribed")
	return nil
}

func (b *Redis) receive(messages <-chan *redis.Message, handler func(gateway.Instruction)) {
	defer close(b.done)
	for msg := range messages {
		var instr gateway.Instruction
		if err := json.Unmarshal([]byte(msg.Payload), &instr); err != nil {
			b.log.Warn().Err(err).Msg("discarding malformed bus message")
			continue
		}
		handler(instr)
	}
}

// Close drains and closes both channels, in the order publish-then-subscribe.
func (b *Redis) Close(ctx context.Context) error {
	var firstErr error
	if err := b.pub.Close(); err != nil {
		firstErr = err
	}

	b.mu.Lock()
	pubsub, done := b.pubsub, b.done
	b.pubsub = nil
	b.mu.Unlock()

	if pubsub != nil {
		if err := pubsub.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		select {
		case <-done:
		case <-ctx.Done():
			if firstErr == nil {
				firstErr = ctx.Err()
			}
		}
	}

	if err := b.sub.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	b.log.Info().Msg("fan-out bus closed")
	return firstErr
}
