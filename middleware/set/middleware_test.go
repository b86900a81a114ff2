package set_test

import (
	"errors"
	"testing"

	"github.com/RobertWHurst/wsns"
	"github.com/RobertWHurst/wsns/middleware/set"
	"github.com/RobertWHurst/wsns/wsnstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T, declare func(server *wsns.Server)) *wsnstest.Transport {
	t.Helper()
	server := wsns.NewServer(wsns.Config{Env: wsns.Test})
	declare(server)
	transport := wsnstest.NewTransport()
	require.NoError(t, server.Attach(transport))
	return transport
}

func TestMiddleware(t *testing.T) {
	transport := setup(t, func(server *wsns.Server) {
		server.Middleware().
			Register(set.Middleware("apiVersion", "v1")).
			Register(set.Middleware("config", map[string]int{"timeout": 30}))

		server.Namespace("/test").On("read", func(ctx *wsns.Context, args ...any) (any, error) {
			version, ok := ctx.Get("apiVersion")
			if !ok {
				return nil, errors.New("expected apiVersion to be set")
			}
			config := ctx.MustGet("config").(map[string]int)
			return []any{version, config["timeout"]}, nil
		})
	})

	socket, err := transport.Connect("/test", nil)
	require.NoError(t, err)

	ackArgs, ok := socket.ReceiveWithAck("read")
	require.True(t, ok)
	assert.Equal(t, []any{nil, []any{"v1", 30}}, ackArgs)
}

func TestMiddlewareValuesAreScopedToTheConnection(t *testing.T) {
	transport := setup(t, func(server *wsns.Server) {
		server.Middleware().Register(set.Middleware("counter", 0))

		server.Namespace("/counter").On("increment", func(ctx *wsns.Context, args ...any) (any, error) {
			counter := ctx.MustGet("counter").(int) + 1
			ctx.Set("counter", counter)
			return counter, nil
		})
	})

	first, err := transport.Connect("/counter", nil)
	require.NoError(t, err)
	second, err := transport.Connect("/counter", nil)
	require.NoError(t, err)

	ackArgs, _ := first.ReceiveWithAck("increment")
	assert.Equal(t, []any{nil, 1}, ackArgs)
	ackArgs, _ = first.ReceiveWithAck("increment")
	assert.Equal(t, []any{nil, 2}, ackArgs)

	ackArgs, _ = second.ReceiveWithAck("increment")
	assert.Equal(t, []any{nil, 1}, ackArgs)
}

func TestFunc(t *testing.T) {
	calls := 0
	transport := setup(t, func(server *wsns.Server) {
		server.Middleware().RegisterNamed(map[string]any{
			"user": set.Func("user", func(ctx *wsns.Context) (string, error) {
				calls++
				name := ctx.Handshake().Query.Get("user")
				if name == "" {
					return "", wsns.NewException("A user is required", 401, "E_UNAUTHORIZED_ACCESS")
				}
				return name, nil
			}),
		})

		server.Namespace("/me").Middleware("user").On("whoami", func(ctx *wsns.Context, args ...any) (any, error) {
			return ctx.MustGet("user"), nil
		})
	})

	handshake := &wsns.Handshake{}
	handshake.Query = map[string][]string{"user": {"alice"}}
	socket, err := transport.Connect("/me", handshake)
	require.NoError(t, err)

	ackArgs, _ := socket.ReceiveWithAck("whoami")
	assert.Equal(t, []any{nil, "alice"}, ackArgs)

	_, err = transport.Connect("/me", nil)
	var response *wsns.ErrorResponse
	require.True(t, errors.As(err, &response))
	assert.Equal(t, 401, response.Data.Status)
	assert.Equal(t, 2, calls)
}

func TestParam(t *testing.T) {
	transport := setup(t, func(server *wsns.Server) {
		server.Namespace("/rooms/:room").
			Middleware(set.Param("roomName", "room")).
			On("room", func(ctx *wsns.Context, args ...any) (any, error) {
				return ctx.MustGet("roomName"), nil
			})
	})

	socket, err := transport.Connect("/rooms/general", nil)
	require.NoError(t, err)

	ackArgs, _ := socket.ReceiveWithAck("room")
	assert.Equal(t, []any{nil, "general"}, ackArgs)
}
