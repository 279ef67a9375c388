package auth_test

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/quizplatform/notification-server/internal/domain/gateway"
	"github.com/quizplatform/notification-server/internal/infrastructure/auth"
)

const testSecret = "test-secret"

type markerStore struct {
	markers map[string]bool
}

func (s *markerStore) TokenValid(_ context.Context, userID, tokenID string) (bool, error) {
	return s.markers[userID+":"+tokenID], nil
}

func (s *markerStore) SaveConnection(context.Context, gateway.ConnectionRecord) error { return nil }
func (s *markerStore) DeleteConnection(context.Context, string, string) error        { return nil }
func (s *markerStore) Ping(context.Context) error                                    { return nil }

func signToken(t *testing.T, secret string, claims auth.Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func validClaims(userID, tokenID string) auth.Claims {
	return auth.Claims{
		Email: userID + "@example.com",
		Role:  "student",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        tokenID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
}

func TestAuthenticateSuccess(t *testing.T) {
	store := &markerStore{markers: map[string]bool{"alice:jti-1": true}}
	a := auth.New(testSecret, store, zerolog.Nop())

	identity, err := a.Authenticate(context.Background(), signToken(t, testSecret, validClaims("alice", "jti-1")))
	require.NoError(t, err)
	require.Equal(t, "alice", identity.UserID)
	require.Equal(t, "alice@example.com", identity.Email)
	require.Equal(t, "student", identity.Role)
}

func TestAuthenticateMissingCredential(t *testing.T) {
	a := auth.New(testSecret, &markerStore{}, zerolog.Nop())

	_, err := a.Authenticate(context.Background(), "")
	require.ErrorIs(t, err, auth.ErrUnauthenticated)
}

func TestAuthenticateMalformedCredential(t *testing.T) {
	a := auth.New(testSecret, &markerStore{}, zerolog.Nop())

	_, err := a.Authenticate(context.Background(), "not-a-jwt")
	require.ErrorIs(t, err, auth.ErrInvalidCredential)
}

func TestAuthenticateBadSignature(t *testing.T) {
	a := auth.New(testSecret, &markerStore{}, zerolog.Nop())

	_, err := a.Authenticate(context.Background(), signToken(t, "other-secret", validClaims("alice", "jti-1")))
	require.ErrorIs(t, err, auth.ErrInvalidCredential)
}

func TestAuthenticateExpiredCredential(t *testing.T) {
	a := auth.New(testSecret, &markerStore{}, zerolog.Nop())

	claims := validClaims("alice", "jti-1")
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	_, err := a.Authenticate(context.Background(), signToken(t, testSecret, claims))
	require.ErrorIs(t, err, auth.ErrInvalidCredential)
}

func TestAuthenticateMissingSubject(t *testing.T) {
	a := auth.New(testSecret, &markerStore{}, zerolog.Nop())

	claims := validClaims("", "jti-1")
	_, err := a.Authenticate(context.Background(), signToken(t, testSecret, claims))
	require.ErrorIs(t, err, auth.ErrInvalidCredential)
}

func TestAuthenticateRevokedCredential(t *testing.T) {
	// Well-formed token, but no validity marker in the store.
	a := auth.New(testSecret, &markerStore{}, zerolog.Nop())

	_, err := a.Authenticate(context.Background(), signToken(t, testSecret, validClaims("alice", "jti-1")))
	require.ErrorIs(t, err, auth.ErrRevokedCredential)
}

func TestExtractTokenPrefersQueryParameter(t *testing.T) {
	r := httptest.NewRequest("GET", "/ws?token=from-query", nil)
	r.Header.Set("Authorization", "Bearer from-header")
	require.Equal(t, "from-query", auth.ExtractToken(r))
}

func TestExtractTokenFallsBackToBearerHeader(t *testing.T) {
	r := httptest.NewRequest("GET", "/ws", nil)
	r.Header.Set("Authorization", "Bearer from-header")
	require.Equal(t, "from-header", auth.ExtractToken(r))
}

func TestExtractTokenIgnoresNonBearerHeader(t *testing.T) {
	r := httptest.NewRequest("GET", "/ws", nil)
	r.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	require.Equal(t, "", auth.ExtractToken(r))
}

func TestExtractTokenEmptyRequest(t *testing.T) {
	r := httptest.NewRequest("GET", "/ws", nil)
	require.Equal(t, "", auth.ExtractToken(r))
}
