// Package sessionstore provides the Redis-backed session store shared by all
// gateway processes.
package sessionstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/quizplatform/notification-server/internal/domain/gateway"
)

// TokenKey returns the credential validity marker key for (userID, tokenID).
// Written by the auth service; read-only here.
func TokenKey(userID, tokenID string) string {
	return fmt.Sprintf("auth:token:%s:%s", userID, tokenID)
}

// ConnectionKey returns the connection record key for (userID, connectionID).
func ConnectionKey(userID, connectionID string) string {
	return fmt.Sprintf("ws:connection:%s:%s", userID, connectionID)
}

// Redis implements gateway.SessionStore on a Redis key-value namespace.
// Access is plain key read/write/delete; each connection record key is owned
// by exactly one (userID, connectionID) pair, so last-writer-wins suffices.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	log    zerolog.Logger
}

// NewRedis connects to Redis and verifies the connection. A connect failure
// here is fatal: the process must not begin accepting sockets without its
// session store.
func NewRedis(redisURL string, connectionTTL time.Duration, log zerolog.Logger) (*Redis, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect session store: %w", err)
	}

	return &Redis{
		client: client,
		ttl:    connectionTTL,
		log:    log.With().Str("component", "session-store").Logger(),
	}, nil
}

var _ gateway.SessionStore = (*Redis)(nil)

// TokenValid reports whether the validity marker for (userID, tokenID) exists.
func (r *Redis) TokenValid(ctx context.Context, userID, tokenID string) (bool, error) {
	err := r.client.Get(ctx, TokenKey(userID, tokenID)).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup token marker: %w", err)
	}
	return true, nil
}

// SaveConnection writes the connection record with the configured TTL.
func (r *Redis) SaveConnection(ctx context.Context, rec gateway.ConnectionRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal connection record: %w", err)
	}
	key := ConnectionKey(rec.UserID, rec.ConnectionID)
	if err := r.client.Set(ctx, key, payload, r.ttl).Err(); err != nil {
		return fmt.Errorf("save connection record: %w", err)
	}
	return nil
}

// DeleteConnection removes the connection record immediately.
func (r *Redis) DeleteConnection(ctx context.Context, userID, connectionID string) error {
	if err := r.client.Del(ctx, ConnectionKey(userID, connectionID)).Err(); err != nil {
		return fmt.Errorf("delete connection record: %w", err)
	}
	return nil
}

// Ping verifies the store is reachable.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close releases the underlying client.
func (r *Redis) Close() error {
	return r.client.Close()
}
