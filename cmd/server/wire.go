//go:build wireinject
// +build wireinject

package main

import (
	"github.com/google/wire"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/quizplatform/notification-server/internal/config"
	"github.com/quizplatform/notification-server/internal/domain/gateway"
	"github.com/quizplatform/notification-server/internal/infrastructure/auth"
	"github.com/quizplatform/notification-server/internal/infrastructure/fanout"
	"github.com/quizplatform/notification-server/internal/infrastructure/sessionstore"
	"github.com/quizplatform/notification-server/internal/interfaces/consumer"
	"github.com/quizplatform/notification-server/internal/interfaces/wsserver"
)

// ProviderSet is the wire provider set for the application.
var ProviderSet = wire.NewSet(
	// Infrastructure providers
	ProvideSessionStore,
	ProvideBus,
	ProvideAuthenticator,

	// Domain providers
	ProvideGateway,

	// Interface providers
	ProvideConsumer,
	wsserver.New,

	// Application
	NewApplication,
)

// ProvideSessionStore provides the Redis session store.
func ProvideSessionStore(cfg *config.Config, log zerolog.Logger) (gateway.SessionStore, error) {
	return sessionstore.NewRedis(cfg.RedisURL, cfg.ConnectionTTL, log)
}

// ProvideBus provides the Redis fan-out bus.
func ProvideBus(cfg *config.Config, log zerolog.Logger) (gateway.Bus, error) {
	return fanout.NewRedis(cfg.RedisURL, cfg.FanoutChannel, log)
}

// ProvideAuthenticator provides the connection authenticator.
func ProvideAuthenticator(cfg *config.Config, store gateway.SessionStore, log zerolog.Logger) *auth.Authenticator {
	return auth.New(cfg.JWTSecret, store, log)
}

// ProvideGateway provides the realtime gateway.
func ProvideGateway(store gateway.SessionStore, bus gateway.Bus, log zerolog.Logger) *gateway.Gateway {
	return gateway.New(store, bus, log)
}

// ProvideConsumer provides the delivery consumer.
func ProvideConsumer(nc *nats.Conn, gw *gateway.Gateway, cfg *config.Config, log zerolog.Logger) *consumer.Consumer {
	return consumer.New(nc, gw, cfg.SubjectPrefix, log)
}

// CreateApplication creates the application with all dependencies wired.
func CreateApplication(
	cfg *config.Config,
	nc *nats.Conn,
	log zerolog.Logger,
) (*Application, error) {
	wire.Build(ProviderSet)
	return nil, nil
}
