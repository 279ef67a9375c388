package wsserver

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/quizplatform/notification-server/internal/domain/gateway"
)

const maxMessageSize = 4096

// frame is the JSON wire unit in both directions: a named event with an
// opaque payload.
type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type clientConfig struct {
	writeTimeout time.Duration
	pongTimeout  time.Duration
	sendBuffer   int
}

// client pairs one WebSocket with its send queue and pumps. It implements
// gateway.Conn; Send never blocks, a full queue drops the event.
type client struct {
	id     string
	userID string
	ws     *websocket.Conn
	gw     *gateway.Gateway
	cfg    clientConfig
	log    zerolog.Logger

	send      chan frame
	done      chan struct{}
	closeOnce sync.Once
}

func newClient(id, userID string, ws *websocket.Conn, gw *gateway.Gateway, cfg clientConfig, log zerolog.Logger) *client {
	return &client{
		id:     id,
		userID: userID,
		ws:     ws,
		gw:     gw,
		cfg:    cfg,
		log:    log.With().Str("conn_id", id).Str("user_id", userID).Logger(),
		send:   make(chan frame, cfg.sendBuffer),
		done:   make(chan struct{}),
	}
}

var _ gateway.Conn = (*client)(nil)

// Send queues an event for the write pump.
func (c *client) Send(event string, data json.RawMessage) error {
	select {
	case <-c.done:
		return errors.New("connection closed")
	default:
	}

	select {
	case c.send <- frame{Event: event, Data: data}:
		return nil
	default:
		return errors.New("send queue full")
	}
}

// readPump reads inbound frames until the socket errors or closes. The only
// inbound application event the gateway interprets is ping.
func (c *client) readPump() {
	defer c.close()

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(c.cfg.pongTimeout))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.cfg.pongTimeout))
	})

	for {
		_, payload, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn().Err(err).Msg("unexpected socket close")
			}
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(c.cfg.pongTimeout))

		var f frame
		if err := json.Unmarshal(payload, &f); err != nil {
			c.log.Debug().Err(err).Msg("ignoring malformed frame")
			continue
		}
		c.handleFrame(f)
	}
}

func (c *client) handleFrame(f frame) {
	switch f.Event {
	case "ping":
		data, _ := json.Marshal(pongPayload{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			UserID:    c.userID,
		})
		if err := c.Send("pong", data); err != nil {
			c.log.Debug().Err(err).Msg("pong dropped")
		}
	default:
		// Clients have no other inbound application events.
		c.log.Debug().Str("event", f.Event).Msg("ignoring unknown inbound event")
	}
}

// writePump drains the send queue and keeps the socket alive with
// transport-level pings.
func (c *client) writePump() {
	pingPeriod := c.cfg.pongTimeout * 9 / 10
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case f := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.cfg.writeTimeout))
			if err := c.ws.WriteJSON(f); err != nil {
				c.log.Debug().Err(err).Msg("socket write failed")
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.cfg.writeTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// close tears the connection down exactly once: the gateway drops local
// membership and deletes the session-store record, then the socket closes.
func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.gw.Deregister(context.Background(), c.id)
		_ = c.ws.Close()
	})
}

type pongPayload struct {
	Timestamp string `json:"timestamp"`
	UserID    string `json:"userId"`
}

type connectedPayload struct {
	Message string `json:"message"`
	UserID  string `json:"userId"`
}
