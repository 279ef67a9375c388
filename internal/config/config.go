package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds all configuration for the notification-server service.
type Config struct {
	// Service settings
	ServiceName     string        `env:"SERVICE_NAME" envDefault:"notification-server"`
	Environment     string        `env:"ENVIRONMENT" envDefault:"development"`
	HTTPPort        int           `env:"NOTIFICATION_SERVER_PORT" envDefault:"8185"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat       string        `env:"LOG_FORMAT" envDefault:"console"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	// OpenTelemetry
	EnableTracing bool   `env:"OTEL_ENABLED" envDefault:"false"`
	OTLPEndpoint  string `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:""`

	// Auth
	JWTSecret string `env:"JWT_SECRET"`

	// Redis (session store + fan-out bus)
	RedisURL      string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
	FanoutChannel string `env:"WS_FANOUT_CHANNEL" envDefault:"ws:fanout"`

	// NATS (delivery RPC)
	NATSURL       string `env:"NATS_URL" envDefault:"nats://localhost:4222"`
	SubjectPrefix string `env:"WS_SUBJECT_PREFIX" envDefault:"ws"`

	// WebSocket settings
	ConnectionTTL  time.Duration `env:"WS_CONNECTION_TTL" envDefault:"1h"`
	WriteTimeout   time.Duration `env:"WS_WRITE_TIMEOUT" envDefault:"10s"`
	PongTimeout    time.Duration `env:"WS_PONG_TIMEOUT" envDefault:"60s"`
	SendBufferSize int           `env:"WS_SEND_BUFFER_SIZE" envDefault:"64"`
	AllowedOrigin  string        `env:"WS_ALLOWED_ORIGIN" envDefault:"*"`
}

// Load parses environment variables into Config.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env config: %w", err)
	}

	if strings.TrimSpace(cfg.JWTSecret) == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if strings.TrimSpace(cfg.RedisURL) == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}
	if strings.TrimSpace(cfg.NATSURL) == "" {
		return nil, fmt.Errorf("NATS_URL is required")
	}
	if cfg.SendBufferSize <= 0 {
		return nil, fmt.Errorf("WS_SEND_BUFFER_SIZE must be positive")
	}

	return cfg, nil
}

// Addr returns the HTTP server address.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}
