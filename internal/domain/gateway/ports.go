package gateway

import (
	"context"
	"encoding/json"
)

// SessionStore is the shared key-value store holding credential validity
// markers and per-connection records. Markers are written by the auth
// service and read-only here; connection records are owned by the gateway
// process that accepted the connection.
type SessionStore interface {
	// TokenValid reports whether the validity marker for (userID, tokenID)
	// exists. Absence means the token was revoked (logout).
	TokenValid(ctx context.Context, userID, tokenID string) (bool, error)

	// SaveConnection writes the ephemeral connection record with a TTL.
	SaveConnection(ctx context.Context, rec ConnectionRecord) error

	// DeleteConnection removes the record immediately on disconnect.
	DeleteConnection(ctx context.Context, userID, connectionID string) error

	// Ping verifies the store is reachable. Used as a startup gate.
	Ping(ctx context.Context) error
}

// Bus replicates delivery instructions to every gateway process, including
// the publishing one. Each process applies its local membership filter.
type Bus interface {
	// Publish sends an instruction to all subscribed processes.
	Publish(ctx context.Context, instr Instruction) error

	// Subscribe registers the handler for incoming instructions. It must
	// return only after the subscription is established.
	Subscribe(ctx context.Context, handler func(Instruction)) error

	// Close drains and closes both channels, publish side first.
	Close(ctx context.Context) error
}

// Conn is the outbound half of a registered connection. Implementations must
// not block: a slow or closed socket drops the event rather than stalling
// sibling deliveries.
type Conn interface {
	Send(event string, data json.RawMessage) error
}
