package throttle_test

import (
	"errors"
	"testing"

	"github.com/RobertWHurst/wsns"
	"github.com/RobertWHurst/wsns/middleware/throttle"
	"github.com/RobertWHurst/wsns/wsnstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T, limiter *throttle.Throttle, patterns map[string]string) *wsnstest.Transport {
	t.Helper()
	server := wsns.NewServer(wsns.Config{Env: wsns.Test})
	server.Middleware().RegisterNamed(map[string]any{"throttle": limiter})
	for pattern, reference := range patterns {
		server.Namespace(pattern).Middleware(reference)
	}
	transport := wsnstest.NewTransport()
	require.NoError(t, server.Attach(transport))
	return transport
}

func connectFrom(transport *wsnstest.Transport, name string, remoteAddr string) error {
	_, err := transport.Connect(name, &wsns.Handshake{RemoteAddr: remoteAddr})
	return err
}

func TestThrottleLimitsConnections(t *testing.T) {
	transport := setup(t, throttle.New(), map[string]string{"/chat": "throttle:2,60"})

	require.NoError(t, connectFrom(transport, "/chat", "10.0.0.1:1000"))
	require.NoError(t, connectFrom(transport, "/chat", "10.0.0.1:1001"))

	err := connectFrom(transport, "/chat", "10.0.0.1:1002")
	var response *wsns.ErrorResponse
	require.True(t, errors.As(err, &response))
	assert.Equal(t, 429, response.Data.Status)
	assert.Equal(t, throttle.CodeTooManyConnections, response.Data.Code)

	assert.NoError(t, connectFrom(transport, "/chat", "10.0.0.2:1000"))
}

func TestThrottleCountsPerNamespacePattern(t *testing.T) {
	transport := setup(t, throttle.New(), map[string]string{
		"/chat":        "throttle:1,60",
		"/news":        "throttle:1,60",
		"/rooms/:room": "throttle:1,60",
	})

	assert.NoError(t, connectFrom(transport, "/chat", "10.0.0.1:1000"))
	assert.NoError(t, connectFrom(transport, "/news", "10.0.0.1:1000"))
	assert.NoError(t, connectFrom(transport, "/rooms/a", "10.0.0.1:1000"))
	assert.Error(t, connectFrom(transport, "/rooms/b", "10.0.0.1:1000"))
}

func TestThrottleDefaults(t *testing.T) {
	transport := setup(t, throttle.New(), map[string]string{"/chat": "throttle"})

	for i := 0; i < 60; i++ {
		require.NoError(t, connectFrom(transport, "/chat", "10.0.0.1:1000"))
	}
	assert.Error(t, connectFrom(transport, "/chat", "10.0.0.1:1000"))
}

func TestThrottleWithKey(t *testing.T) {
	limiter := throttle.New(throttle.WithKey(func(ctx *wsns.Context) string {
		return ctx.Handshake().Query.Get("user")
	}))
	transport := setup(t, limiter, map[string]string{"/chat": "throttle:1,60"})

	connectAs := func(user, remoteAddr string) error {
		_, err := transport.Connect("/chat", &wsns.Handshake{
			RemoteAddr: remoteAddr,
			Query:      map[string][]string{"user": {user}},
		})
		return err
	}

	assert.NoError(t, connectAs("alice", "10.0.0.1:1000"))
	assert.Error(t, connectAs("alice", "10.0.0.2:1000"))
	assert.NoError(t, connectAs("bob", "10.0.0.1:1000"))
}

func TestThrottleInvalidArgs(t *testing.T) {
	tests := []struct {
		name      string
		reference string
	}{
		{name: "limit not a number", reference: "throttle:ten"},
		{name: "zero limit", reference: "throttle:0"},
		{name: "negative window", reference: "throttle:10,-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport := setup(t, throttle.New(), map[string]string{"/chat": tt.reference})

			err := connectFrom(transport, "/chat", "10.0.0.1:1000")

			var response *wsns.ErrorResponse
			require.True(t, errors.As(err, &response))
			assert.Equal(t, 500, response.Data.Status)
			assert.Equal(t, "E_INVALID_THROTTLE_ARGS", response.Data.Code)
		})
	}
}
