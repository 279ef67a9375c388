package wsserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/quizplatform/notification-server/internal/config"
	"github.com/quizplatform/notification-server/internal/domain/gateway"
	"github.com/quizplatform/notification-server/internal/infrastructure/auth"
	"github.com/quizplatform/notification-server/internal/infrastructure/metrics"
)

// wsHandler owns the /ws upgrade endpoint and the admission protocol: a
// connection is either fully admitted or torn down with no event emitted.
type wsHandler struct {
	gw       *gateway.Gateway
	authn    *auth.Authenticator
	upgrader websocket.Upgrader
	cfg      clientConfig
	log      zerolog.Logger
}

func newWSHandler(cfg *config.Config, gw *gateway.Gateway, authn *auth.Authenticator, log zerolog.Logger) *wsHandler {
	allowed := cfg.AllowedOrigin
	return &wsHandler{
		gw:    gw,
		authn: authn,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if allowed == "*" {
					return true
				}
				return r.Header.Get("Origin") == allowed
			},
		},
		cfg: clientConfig{
			writeTimeout: cfg.WriteTimeout,
			pongTimeout:  cfg.PongTimeout,
			sendBuffer:   cfg.SendBufferSize,
		},
		log: log.With().Str("component", "ws-handler").Logger(),
	}
}

// handle authenticates the handshake, upgrades the socket, and runs the
// connection lifecycle. Admission failures reject the handshake before the
// upgrade, so the client never sees an application event.
func (h *wsHandler) handle(c *gin.Context) {
	token := auth.ExtractToken(c.Request)
	identity, err := h.authn.Authenticate(c.Request.Context(), token)
	if err != nil {
		reason := rejectReason(err)
		metrics.RecordConnectionRejected(reason)
		h.log.Warn().Err(err).
			Str("reason", reason).
			Str("client_ip", c.ClientIP()).
			Msg("connection rejected")
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	connID := uuid.NewString()
	cl := newClient(connID, identity.UserID, ws, h.gw, h.cfg, h.log)

	if _, err := h.gw.Register(c.Request.Context(), connID, identity, cl); err != nil {
		h.log.Error().Err(err).Str("user_id", identity.UserID).Msg("admission failed")
		_ = ws.Close()
		return
	}

	go cl.writePump()

	// The connected acknowledgement is the only event sent before the
	// client has proven readiness.
	data, _ := json.Marshal(connectedPayload{
		Message: "Connected to WebSocket server",
		UserID:  identity.UserID,
	})
	if err := cl.Send("connected", data); err != nil {
		h.log.Warn().Err(err).Str("conn_id", connID).Msg("connected ack dropped")
	}

	cl.readPump()
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, auth.ErrUnauthenticated):
		return "unauthenticated"
	case errors.Is(err, auth.ErrInvalidCredential):
		return "invalid_credential"
	case errors.Is(err, auth.ErrRevokedCredential):
		return "revoked_credential"
	default:
		return "internal"
	}
}
