// Package gateway implements the realtime delivery core: the process-local
// socket registry, room membership, and the multicast operations bridged
// across processes by the fan-out bus.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/quizplatform/notification-server/internal/infrastructure/metrics"
)

// Session is a live, authenticated connection held by this process.
type Session struct {
	ID          string
	Identity    Identity
	ConnectedAt time.Time

	conn  Conn
	rooms map[string]struct{}
}

// Gateway owns the socket registry for one process. Multicast operations are
// expressed as instructions published on the bus; every process (this one
// included) receives them and applies its local membership filter. Socket
// ownership is never shared across processes.
type Gateway struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	rooms    map[string]map[string]*Session

	store SessionStore
	bus   Bus
	log   zerolog.Logger
}

// New creates a gateway backed by the given session store and fan-out bus.
func New(store SessionStore, bus Bus, log zerolog.Logger) *Gateway {
	return &Gateway{
		sessions: make(map[string]*Session),
		rooms:    make(map[string]map[string]*Session),
		store:    store,
		bus:      bus,
		log:      log.With().Str("component", "gateway").Logger(),
	}
}

// Start subscribes the gateway to the fan-out bus. It must complete before
// the process begins accepting sockets.
func (g *Gateway) Start(ctx context.Context) error {
	if err := g.bus.Subscribe(ctx, g.apply); err != nil {
		return fmt.Errorf("subscribe fan-out bus: %w", err)
	}
	return nil
}

// Register admits an authenticated connection: it enters the local registry,
// is enrolled into its user room, and its record is written to the session
// store. On any failure the registration is rolled back and the connection
// must be torn down by the caller; there are no partial admission states.
func (g *Gateway) Register(ctx context.Context, connID string, id Identity, conn Conn) (*Session, error) {
	sess := &Session{
		ID:          connID,
		Identity:    id,
		ConnectedAt: time.Now(),
		conn:        conn,
		rooms:       make(map[string]struct{}),
	}

	g.mu.Lock()
	if _, exists := g.sessions[connID]; exists {
		g.mu.Unlock()
		return nil, fmt.Errorf("connection %s already registered", connID)
	}
	g.sessions[connID] = sess
	g.joinLocked(sess, UserRoom(id.UserID))
	g.mu.Unlock()

	rec := ConnectionRecord{
		UserID:       id.UserID,
		ConnectionID: connID,
		ConnectedAt:  sess.ConnectedAt,
	}
	if err := g.store.SaveConnection(ctx, rec); err != nil {
		g.removeLocal(connID)
		return nil, fmt.Errorf("save connection record: %w", err)
	}

	metrics.RecordConnectionAdmitted()
	g.log.Info().
		Str("conn_id", connID).
		Str("user_id", id.UserID).
		Msg("connection registered")
	return sess, nil
}

// Deregister drops the connection from the local registry and deletes its
// session-store record immediately rather than waiting for TTL expiry.
// Unknown connection IDs are a no-op.
func (g *Gateway) Deregister(ctx context.Context, connID string) {
	sess := g.removeLocal(connID)
	if sess == nil {
		return
	}

	if err := g.store.DeleteConnection(ctx, sess.Identity.UserID, connID); err != nil {
		g.log.Error().Err(err).
			Str("conn_id", connID).
			Str("user_id", sess.Identity.UserID).
			Msg("failed to delete connection record")
	}

	metrics.RecordConnectionClosed()
	g.log.Info().
		Str("conn_id", connID).
		Str("user_id", sess.Identity.UserID).
		Msg("connection deregistered")
}

// JoinRoom adds the connection to a room. Membership is local to the process
// holding the socket; an unknown connection ID is a no-op, not an error.
func (g *Gateway) JoinRoom(connID, room string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	sess, ok := g.sessions[connID]
	if !ok {
		return
	}
	g.joinLocked(sess, room)
	g.log.Debug().Str("conn_id", connID).Str("room", room).Msg("joined room")
}

// LeaveRoom removes the connection from a room. A no-op when either the
// connection or the membership does not exist locally.
func (g *Gateway) LeaveRoom(connID, room string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	sess, ok := g.sessions[connID]
	if !ok {
		return
	}
	delete(sess.rooms, room)
	if members, ok := g.rooms[room]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(g.rooms, room)
		}
	}
	g.log.Debug().Str("conn_id", connID).Str("room", room).Msg("left room")
}

// Rooms returns the rooms the connection is currently joined to, or nil for
// an unknown connection.
func (g *Gateway) Rooms(connID string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	sess, ok := g.sessions[connID]
	if !ok {
		return nil
	}
	rooms := make([]string, 0, len(sess.rooms))
	for room := range sess.rooms {
		rooms = append(rooms, room)
	}
	return rooms
}

// ConnectedCount returns the number of sockets held by this process. It is
// a point-in-time, process-local count, not a fleet-wide aggregate.
func (g *Gateway) ConnectedCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.sessions)
}

// EmitToUser delivers the event to every live connection of the user across
// the whole fleet. Fire-and-forget, at-most-once: only sessions connected at
// the time of the call receive it.
func (g *Gateway) EmitToUser(ctx context.Context, userID, event string, data json.RawMessage) error {
	return g.publish(ctx, Instruction{
		Kind:    TargetUser,
		UserIDs: []string{userID},
		Event:   event,
		Data:    data,
	})
}

// EmitToUsers delivers the event to every listed user. There is no atomicity
// across the set: a failure affecting one user's delivery does not prevent
// delivery to the others.
func (g *Gateway) EmitToUsers(ctx context.Context, userIDs []string, event string, data json.RawMessage) error {
	return g.publish(ctx, Instruction{
		Kind:    TargetUsers,
		UserIDs: userIDs,
		Event:   event,
		Data:    data,
	})
}

// EmitToRoom delivers the event to every connection, on any process,
// currently joined to the room.
func (g *Gateway) EmitToRoom(ctx context.Context, room, event string, data json.RawMessage) error {
	return g.publish(ctx, Instruction{
		Kind:  TargetRoom,
		Room:  room,
		Event: event,
		Data:  data,
	})
}

// Broadcast delivers the event to every currently connected socket
// fleet-wide.
func (g *Gateway) Broadcast(ctx context.Context, event string, data json.RawMessage) error {
	return g.publish(ctx, Instruction{
		Kind:  TargetBroadcast,
		Event: event,
		Data:  data,
	})
}

func (g *Gateway) publish(ctx context.Context, instr Instruction) error {
	if err := g.bus.Publish(ctx, instr); err != nil {
		metrics.RecordBusPublishFailure()
		return fmt.Errorf("publish %s instruction: %w", instr.Kind, err)
	}
	return nil
}

// apply is the bus handler: it resolves the instruction against local
// membership and writes the event to every matching socket. Per-connection
// send failures are logged and counted but never abort sibling deliveries.
func (g *Gateway) apply(instr Instruction) {
	for _, sess := range g.resolve(instr) {
		if err := sess.conn.Send(instr.Event, instr.Data); err != nil {
			metrics.RecordEventDropped("send_failed")
			g.log.Warn().Err(err).
				Str("conn_id", sess.ID).
				Str("user_id", sess.Identity.UserID).
				Str("event", instr.Event).
				Msg("event delivery failed")
			continue
		}
		metrics.RecordEventDelivered()
	}
}

func (g *Gateway) resolve(instr Instruction) []*Session {
	g.mu.RLock()
	defer g.mu.RUnlock()

	switch instr.Kind {
	case TargetUser, TargetUsers:
		var targets []*Session
		for _, userID := range instr.UserIDs {
			for _, sess := range g.rooms[UserRoom(userID)] {
				targets = append(targets, sess)
			}
		}
		return targets
	case TargetRoom:
		targets := make([]*Session, 0, len(g.rooms[instr.Room]))
		for _, sess := range g.rooms[instr.Room] {
			targets = append(targets, sess)
		}
		return targets
	case TargetBroadcast:
		targets := make([]*Session, 0, len(g.sessions))
		for _, sess := range g.sessions {
			targets = append(targets, sess)
		}
		return targets
	default:
		g.log.Warn().Str("kind", string(instr.Kind)).Msg("unknown instruction kind")
		return nil
	}
}

// joinLocked adds the session to a room. Callers hold g.mu.
func (g *Gateway) joinLocked(sess *Session, room string) {
	sess.rooms[room] = struct{}{}
	members, ok := g.rooms[room]
	if !ok {
		members = make(map[string]*Session)
		g.rooms[room] = members
	}
	members[sess.ID] = sess
}

func (g *Gateway) removeLocal(connID string) *Session {
	g.mu.Lock()
	defer g.mu.Unlock()

	sess, ok := g.sessions[connID]
	if !ok {
		return nil
	}
	delete(g.sessions, connID)
	for room := range sess.rooms {
		if members, ok := g.rooms[room]; ok {
			delete(members, connID)
			if len(members) == 0 {
				delete(g.rooms, room)
			}
		}
	}
	return sess
}
