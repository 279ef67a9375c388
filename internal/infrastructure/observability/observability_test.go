package observability

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/quizplatform/notification-server/internal/config"
)

func TestSetupDisabledReturnsNoopShutdown(t *testing.T) {
	cfg := &config.Config{
		ServiceName:   "notification-server-test",
		EnableTracing: false,
	}

	shutdown, err := Setup(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	require.NoError(t, shutdown(context.Background()))
}

func TestNormalizeEndpoint(t *testing.T) {
	cases := []struct {
		in       string
		want     string
		insecure bool
	}{
		{"http://collector:4318", "collector:4318", true},
		{"https://collector:4318", "collector:4318", false},
		{"collector:4318", "collector:4318", true},
	}
	for _, tc := range cases {
		got, insecure := normalizeEndpoint(tc.in)
		require.Equal(t, tc.want, got, tc.in)
		require.Equal(t, tc.insecure, insecure, tc.in)
	}
}
