// Package wsserver is the HTTP/WebSocket interface of the notification
// server: the /ws upgrade endpoint plus health and metrics routes.
package wsserver

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/quizplatform/notification-server/internal/config"
	"github.com/quizplatform/notification-server/internal/domain/gateway"
	"github.com/quizplatform/notification-server/internal/infrastructure/auth"
	"github.com/quizplatform/notification-server/internal/interfaces/wsserver/middlewares"
)

// HTTPServer is the HTTP server hosting the WebSocket endpoint.
type HTTPServer struct {
	cfg    *config.Config
	engine *gin.Engine
	log    zerolog.Logger
}

// New creates the HTTP server with the gateway's upgrade endpoint wired in.
func New(
	cfg *config.Config,
	log zerolog.Logger,
	gw *gateway.Gateway,
	authn *auth.Authenticator,
) *HTTPServer {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())

	engine.Use(middlewares.RequestID())
	engine.Use(middlewares.Tracing(cfg.ServiceName))
	engine.Use(middlewares.Metrics())
	engine.Use(middlewares.CORS(cfg.AllowedOrigin))
	engine.Use(middlewares.RequestLogger(log))

	registerCoreRoutes(engine, cfg, gw)

	handler := newWSHandler(cfg, gw, authn, log)
	engine.GET("/ws", handler.handle)

	return &HTTPServer{
		cfg:    cfg,
		engine: engine,
		log:    log,
	}
}

// Run starts the HTTP server and blocks until context is cancelled.
func (s *HTTPServer) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:    s.cfg.Addr(),
		Handler: s.engine,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.cfg.Addr()).Msg("HTTP server listening")
		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("HTTP server error")
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		s.log.Info().Msg("context cancelled, shutting down HTTP server")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}

	return nil
}

func registerCoreRoutes(engine *gin.Engine, cfg *config.Config, gw *gateway.Gateway) {
	engine.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"service": cfg.ServiceName,
			"status":  "ok",
		})
	})

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	engine.GET("/readyz", func(c *gin.Context) {
		// Process-local count only; this is not a fleet-wide aggregate.
		c.JSON(http.StatusOK, gin.H{
			"status":      "ready",
			"connections": gw.ConnectedCount(),
		})
	})

	// Prometheus metrics endpoint
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
}
