package gateway

import (
	"encoding/json"
	"time"
)

// Identity is the authenticated principal attached to a connection.
type Identity struct {
	UserID string
	Email  string
	Role   string
}

// TargetKind selects how a delivery instruction is addressed.
type TargetKind string

const (
	// TargetUser addresses every connection of a single user.
	TargetUser TargetKind = "user"
	// TargetUsers addresses every connection of each listed user.
	TargetUsers TargetKind = "users"
	// TargetRoom addresses every connection joined to a named room.
	TargetRoom TargetKind = "room"
	// TargetBroadcast addresses every connected socket fleet-wide.
	TargetBroadcast TargetKind = "broadcast"
)

// Instruction is the normalized delivery unit replicated across gateway
// processes on the fan-out bus. The payload stays an opaque blob; the
// gateway routes it without interpreting it.
type Instruction struct {
	Kind    TargetKind      `json:"kind"`
	UserIDs []string        `json:"userIds,omitempty"`
	Room    string          `json:"room,omitempty"`
	Event   string          `json:"event"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// ConnectionRecord is the ephemeral session-store mirror of a live connection.
type ConnectionRecord struct {
	UserID       string    `json:"-"`
	ConnectionID string    `json:"socketId"`
	ConnectedAt  time.Time `json:"connectedAt"`
}

// UserRoom returns the per-user room name every authenticated connection is
// auto-joined to.
func UserRoom(userID string) string {
	return "user:" + userID
}
