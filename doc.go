// Package notificationserver implements the notification-server service which
// delivers real-time events to connected clients over WebSocket.
//
// The service provides:
//   - WebSocket connection admission with JWT authentication and session
//     revocation checks against Redis
//   - Per-user and named-room event addressing with a user:<id> auto-join room
//   - Cross-process fan-out over a Redis pub/sub bus so any instance can
//     address sockets held by any other instance
//   - A NATS request/reply consumer backend services call to deliver events
//     (see pkg/notify for the client library)
package notificationserver
