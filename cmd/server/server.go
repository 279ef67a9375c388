package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/quizplatform/notification-server/internal/config"
	"github.com/quizplatform/notification-server/internal/domain/gateway"
	"github.com/quizplatform/notification-server/internal/infrastructure/auth"
	"github.com/quizplatform/notification-server/internal/infrastructure/fanout"
	"github.com/quizplatform/notification-server/internal/infrastructure/logger"
	"github.com/quizplatform/notification-server/internal/infrastructure/observability"
	"github.com/quizplatform/notification-server/internal/infrastructure/sessionstore"
	"github.com/quizplatform/notification-server/internal/interfaces/consumer"
	"github.com/quizplatform/notification-server/internal/interfaces/wsserver"
)

// Application holds the main application components.
type Application struct {
	httpServer *wsserver.HTTPServer
	consumer   *consumer.Consumer
	log        zerolog.Logger
}

// NewApplication creates a new application instance.
func NewApplication(httpServer *wsserver.HTTPServer, deliveryConsumer *consumer.Consumer, log zerolog.Logger) *Application {
	return &Application{
		httpServer: httpServer,
		consumer:   deliveryConsumer,
		log:        log,
	}
}

// Start runs the application until the context is cancelled.
func (a *Application) Start(ctx context.Context) error {
	if err := a.consumer.Start(); err != nil {
		return err
	}

	// Blocks until context cancellation or server error.
	err := a.httpServer.Run(ctx)

	if stopErr := a.consumer.Stop(); stopErr != nil {
		a.log.Error().Err(stopErr).Msg("failed to stop delivery consumer")
	}

	return err
}

func main() {
	loadEnvFiles()

	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		panic(fmt.Sprintf("failed to create logger: %v", err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Setup observability
	shutdownTelemetry, err := observability.Setup(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize observability")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("failed to shutdown telemetry")
		}
	}()

	// Session store and fan-out bus are startup gates: the process must not
	// accept sockets without them.
	store, err := sessionstore.NewRedis(cfg.RedisURL, cfg.ConnectionTTL, log)
	if err != nil {
		log.Fatal().Err(err).Msg("session store unavailable")
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close session store")
		}
	}()

	bus, err := fanout.NewRedis(cfg.RedisURL, cfg.FanoutChannel, log)
	if err != nil {
		log.Fatal().Err(err).Msg("fan-out bus unavailable")
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := bus.Close(closeCtx); err != nil {
			log.Error().Err(err).Msg("failed to close fan-out bus")
		}
	}()

	nc, err := nats.Connect(cfg.NATSURL, nats.Name(cfg.ServiceName))
	if err != nil {
		log.Fatal().Err(err).Msg("delivery transport unavailable")
	}
	defer nc.Close()

	// Assemble the gateway and its interfaces.
	gw := gateway.New(store, bus, log)
	if err := gw.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to subscribe gateway to fan-out bus")
	}

	authn := auth.New(cfg.JWTSecret, store, log)
	deliveryConsumer := consumer.New(nc, gw, cfg.SubjectPrefix, log)
	httpServer := wsserver.New(cfg, log, gw, authn)

	app := NewApplication(httpServer, deliveryConsumer, log)

	log.Info().
		Str("service", cfg.ServiceName).
		Int("port", cfg.HTTPPort).
		Str("environment", cfg.Environment).
		Msg("starting application")

	if err := app.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("application stopped with error")
	}

	log.Info().Msg("application exited cleanly")
}

func loadEnvFiles() {
	paths := []string{".env", "../.env", "../../.env"}
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Overload(path); err != nil {
				fmt.Fprintf(os.Stderr, "warning: failed to load %s: %v\n", path, err)
			}
		}
	}
}
