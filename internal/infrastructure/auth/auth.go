// Package auth implements the connection admission gate: bearer credential
// extraction, HMAC JWT verification, and the session-store revocation check.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/quizplatform/notification-server/internal/domain/gateway"
)

var (
	// ErrUnauthenticated means no credential was presented.
	ErrUnauthenticated = errors.New("no credential presented")
	// ErrInvalidCredential means the credential is malformed, expired, or
	// carries a bad signature.
	ErrInvalidCredential = errors.New("invalid credential")
	// ErrRevokedCredential means the credential is well-formed but its
	// validity marker is absent from the session store (logged out).
	ErrRevokedCredential = errors.New("revoked credential")
)

// Claims is the JWT claim set issued by the auth service. The subject is the
// user ID; the token ID (jti) keys the revocation marker.
type Claims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Authenticator verifies bearer credentials against the shared secret and
// cross-checks them against the session store before a connection is admitted.
type Authenticator struct {
	secret []byte
	store  gateway.SessionStore
	log    zerolog.Logger
}

// New creates an authenticator with the shared HMAC secret.
func New(secret string, store gateway.SessionStore, log zerolog.Logger) *Authenticator {
	return &Authenticator{
		secret: []byte(secret),
		store:  store,
		log:    log.With().Str("component", "authenticator").Logger(),
	}
}

// Authenticate runs the admission gates in order. Each failure is terminal
// for the connection; the caller must tear the socket down without emitting
// any application event.
func (a *Authenticator) Authenticate(ctx context.Context, tokenString string) (gateway.Identity, error) {
	if tokenString == "" {
		return gateway.Identity{}, ErrUnauthenticated
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return a.secret, nil
	})
	if err != nil || !token.Valid {
		return gateway.Identity{}, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}
	if claims.Subject == "" {
		return gateway.Identity{}, fmt.Errorf("%w: missing subject", ErrInvalidCredential)
	}

	valid, err := a.store.TokenValid(ctx, claims.Subject, claims.ID)
	if err != nil {
		return gateway.Identity{}, fmt.Errorf("revocation check: %w", err)
	}
	if !valid {
		return gateway.Identity{}, ErrRevokedCredential
	}

	return gateway.Identity{
		UserID: claims.Subject,
		Email:  claims.Email,
		Role:   claims.Role,
	}, nil
}

// ExtractToken pulls the bearer credential from a handshake request, checking
// the query parameter first and the Authorization header second.
func ExtractToken(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	return bearerToken(r.Header.Get("Authorization"))
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
