package wsserver

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/quizplatform/notification-server/internal/config"
	"github.com/quizplatform/notification-server/internal/domain/gateway"
	"github.com/quizplatform/notification-server/internal/infrastructure/auth"
	"github.com/quizplatform/notification-server/internal/infrastructure/fanout"
)

const testSecret = "integration-secret"

type memoryStore struct {
	mu      sync.Mutex
	markers map[string]bool
	records map[string]gateway.ConnectionRecord
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		markers: make(map[string]bool),
		records: make(map[string]gateway.ConnectionRecord),
	}
}

func (s *memoryStore) TokenValid(_ context.Context, userID, tokenID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.markers[userID+":"+tokenID], nil
}

func (s *memoryStore) SaveConnection(_ context.Context, rec gateway.ConnectionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.UserID+":"+rec.ConnectionID] = rec
	return nil
}

func (s *memoryStore) DeleteConnection(_ context.Context, userID, connectionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, userID+":"+connectionID)
	return nil
}

func (s *memoryStore) Ping(context.Context) error { return nil }

func (s *memoryStore) allowToken(userID, tokenID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markers[userID+":"+tokenID] = true
}

func (s *memoryStore) recordCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

type testEnv struct {
	store *memoryStore
	gw    *gateway.Gateway
	ts    *httptest.Server
}

func newTestEnv(t *testing.T, bus gateway.Bus) *testEnv {
	t.Helper()

	cfg := &config.Config{
		ServiceName:    "notification-server-test",
		Environment:    "test",
		JWTSecret:      testSecret,
		WriteTimeout:   2 * time.Second,
		PongTimeout:    10 * time.Second,
		SendBufferSize: 16,
		AllowedOrigin:  "*",
	}

	store := newMemoryStore()
	log := zerolog.Nop()
	gw := gateway.New(store, bus, log)
	require.NoError(t, gw.Start(context.Background()))

	authn := auth.New(cfg.JWTSecret, store, log)
	server := New(cfg, log, gw, authn)

	ts := httptest.NewServer(server.engine)
	t.Cleanup(ts.Close)

	return &testEnv{store: store, gw: gw, ts: ts}
}

func signToken(t *testing.T, userID, tokenID string, expiresIn time.Duration) string {
	t.Helper()
	claims := auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        tokenID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func (e *testEnv) dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.ts.URL, "http") + "/ws?token=" + token
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func readFrame(t *testing.T, ws *websocket.Conn) frame {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	var f frame
	require.NoError(t, ws.ReadJSON(&f))
	return f
}

func TestConnectAdmitsValidCredential(t *testing.T) {
	env := newTestEnv(t, fanout.NewLoopback())
	env.store.allowToken("alice", "jti-1")

	ws := env.dial(t, signToken(t, "alice", "jti-1", time.Hour))

	f := readFrame(t, ws)
	require.Equal(t, "connected", f.Event)

	var payload connectedPayload
	require.NoError(t, json.Unmarshal(f.Data, &payload))
	require.Equal(t, "alice", payload.UserID)
	require.Equal(t, "Connected to WebSocket server", payload.Message)

	require.Eventually(t, func() bool {
		return env.store.recordCount() == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPingAnswersWithPong(t *testing.T) {
	env := newTestEnv(t, fanout.NewLoopback())
	env.store.allowToken("alice", "jti-1")

	ws := env.dial(t, signToken(t, "alice", "jti-1", time.Hour))
	_ = readFrame(t, ws) // connected

	require.NoError(t, ws.WriteJSON(frame{Event: "ping"}))

	f := readFrame(t, ws)
	require.Equal(t, "pong", f.Event)

	var payload pongPayload
	require.NoError(t, json.Unmarshal(f.Data, &payload))
	require.Equal(t, "alice", payload.UserID)
	_, err := time.Parse(time.RFC3339, payload.Timestamp)
	require.NoError(t, err)
}

func TestRejectsMissingCredential(t *testing.T) {
	env := newTestEnv(t, fanout.NewLoopback())

	url := "ws" + strings.TrimPrefix(env.ts.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRejectsExpiredCredential(t *testing.T) {
	env := newTestEnv(t, fanout.NewLoopback())
	env.store.allowToken("alice", "jti-1")

	url := "ws" + strings.TrimPrefix(env.ts.URL, "http") + "/ws?token=" + signToken(t, "alice", "jti-1", -time.Minute)
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRejectsRevokedCredential(t *testing.T) {
	env := newTestEnv(t, fanout.NewLoopback())
	// Token signs fine but the validity marker never existed.

	url := "ws" + strings.TrimPrefix(env.ts.URL, "http") + "/ws?token=" + signToken(t, "alice", "jti-1", time.Hour)
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestEmitToUserReachesSocket(t *testing.T) {
	env := newTestEnv(t, fanout.NewLoopback())
	env.store.allowToken("alice", "jti-1")

	ws := env.dial(t, signToken(t, "alice", "jti-1", time.Hour))
	_ = readFrame(t, ws) // connected

	require.Eventually(t, func() bool {
		return env.gw.ConnectedCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	data := json.RawMessage(`{"quizId":"q1"}`)
	require.NoError(t, env.gw.EmitToUser(context.Background(), "alice", "quiz:created", data))

	f := readFrame(t, ws)
	require.Equal(t, "quiz:created", f.Event)
	require.JSONEq(t, `{"quizId":"q1"}`, string(f.Data))
}

func TestBroadcastSpansServers(t *testing.T) {
	bus := fanout.NewLoopback()
	env1 := newTestEnv(t, bus)
	env2 := newTestEnv(t, bus)
	env1.store.allowToken("alice", "jti-1")
	env2.store.allowToken("bob", "jti-2")

	ws1 := env1.dial(t, signToken(t, "alice", "jti-1", time.Hour))
	ws2 := env2.dial(t, signToken(t, "bob", "jti-2", time.Hour))
	_ = readFrame(t, ws1)
	_ = readFrame(t, ws2)

	require.Eventually(t, func() bool {
		return env1.gw.ConnectedCount() == 1 && env2.gw.ConnectedCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, env1.gw.Broadcast(context.Background(), "system:maintenance", nil))

	require.Equal(t, "system:maintenance", readFrame(t, ws1).Event)
	require.Equal(t, "system:maintenance", readFrame(t, ws2).Event)
}

func TestDisconnectDeletesSessionRecord(t *testing.T) {
	env := newTestEnv(t, fanout.NewLoopback())
	env.store.allowToken("alice", "jti-1")

	ws := env.dial(t, signToken(t, "alice", "jti-1", time.Hour))
	_ = readFrame(t, ws)

	require.Eventually(t, func() bool {
		return env.store.recordCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, ws.Close())

	require.Eventually(t, func() bool {
		return env.store.recordCount() == 0 && env.gw.ConnectedCount() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t, fanout.NewLoopback())

	for _, path := range []string{"/", "/healthz", "/readyz", "/metrics"} {
		resp, err := http.Get(env.ts.URL + path)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode, path)
		_ = resp.Body.Close()
	}
}

func TestHTTPRequestsAppearInMetrics(t *testing.T) {
	env := newTestEnv(t, fanout.NewLoopback())

	resp, err := http.Get(env.ts.URL + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()

	resp, err = http.Get(env.ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "ws_http_requests_total")
	require.Contains(t, string(body), `endpoint="/healthz"`)
	require.Contains(t, string(body), "ws_http_request_duration_seconds")
}

func TestTracedRequestPassesThrough(t *testing.T) {
	env := newTestEnv(t, fanout.NewLoopback())

	// An upstream trace context on the request must not disturb handling.
	req, err := http.NewRequest(http.MethodGet, env.ts.URL+"/healthz", nil)
	require.NoError(t, err)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}
