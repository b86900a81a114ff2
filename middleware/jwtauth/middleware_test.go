package jwtauth_test

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/RobertWHurst/wsns"
	"github.com/RobertWHurst/wsns/middleware/jwtauth"
	"github.com/RobertWHurst/wsns/wsnstest"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var secret = []byte("test-secret")

func setup(t *testing.T, auth *jwtauth.Auth) *wsnstest.Transport {
	t.Helper()
	server := wsns.NewServer(wsns.Config{Env: wsns.Test})
	server.Middleware().RegisterNamed(map[string]any{"auth": auth})

	whoami := func(ctx *wsns.Context, args ...any) (any, error) {
		claims, ok := jwtauth.ClaimsFrom(ctx)
		if !ok {
			return nil, errors.New("missing claims")
		}
		return claims.Subject, nil
	}
	server.Namespace("/private").Middleware("auth").On("whoami", whoami)
	server.Namespace("/admin").Middleware("auth:admin").On("whoami", whoami)

	transport := wsnstest.NewTransport()
	require.NoError(t, server.Attach(transport))
	return transport
}

func declined(t *testing.T, err error) *wsns.ErrorResponse {
	t.Helper()
	var response *wsns.ErrorResponse
	require.True(t, errors.As(err, &response), "expected the connection to be declined, got %v", err)
	return response
}

func TestAuthTokenSources(t *testing.T) {
	auth := jwtauth.New(jwtauth.Config{Secret: secret})
	token, err := auth.Sign("alice", time.Minute)
	require.NoError(t, err)

	tests := []struct {
		name      string
		handshake *wsns.Handshake
	}{
		{
			name:      "auth payload",
			handshake: &wsns.Handshake{Auth: map[string]any{"token": token}},
		},
		{
			name:      "authorization header",
			handshake: &wsns.Handshake{Headers: http.Header{"Authorization": {"Bearer " + token}}},
		},
		{
			name:      "query",
			handshake: &wsns.Handshake{Query: map[string][]string{"token": {token}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport := setup(t, auth)

			socket, err := transport.Connect("/private", tt.handshake)
			require.NoError(t, err)

			ackArgs, ok := socket.ReceiveWithAck("whoami")
			require.True(t, ok)
			assert.Equal(t, []any{nil, "alice"}, ackArgs)
		})
	}
}

func TestAuthDeclines(t *testing.T) {
	auth := jwtauth.New(jwtauth.Config{Secret: secret})
	other := jwtauth.New(jwtauth.Config{Secret: []byte("other-secret")})

	expired, err := auth.Sign("alice", -time.Minute)
	require.NoError(t, err)
	wrongKey, err := other.Sign("alice", time.Minute)
	require.NoError(t, err)
	noneAlg, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: "alice"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{name: "missing", token: ""},
		{name: "malformed", token: "not-a-token"},
		{name: "expired", token: expired},
		{name: "wrong key", token: wrongKey},
		{name: "none algorithm", token: noneAlg},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport := setup(t, auth)

			_, err := transport.Connect("/private", &wsns.Handshake{Auth: map[string]any{"token": tt.token}})

			response := declined(t, err)
			assert.Equal(t, 401, response.Data.Status)
			assert.Equal(t, jwtauth.CodeUnauthorized, response.Data.Code)
		})
	}
}

func TestAuthRoles(t *testing.T) {
	auth := jwtauth.New(jwtauth.Config{Secret: secret})
	transport := setup(t, auth)

	member, err := auth.Sign("bob", time.Minute, "member")
	require.NoError(t, err)
	admin, err := auth.Sign("alice", time.Minute, "member", "admin")
	require.NoError(t, err)

	_, err = transport.Connect("/admin", &wsns.Handshake{Auth: map[string]any{"token": member}})
	response := declined(t, err)
	assert.Equal(t, 403, response.Data.Status)
	assert.Equal(t, jwtauth.CodeForbidden, response.Data.Code)

	socket, err := transport.Connect("/admin", &wsns.Handshake{Auth: map[string]any{"token": admin}})
	require.NoError(t, err)
	ackArgs, _ := socket.ReceiveWithAck("whoami")
	assert.Equal(t, []any{nil, "alice"}, ackArgs)
}

func TestAuthIssuer(t *testing.T) {
	issuer := jwtauth.New(jwtauth.Config{Secret: secret, Issuer: "wsns"})
	anonymous := jwtauth.New(jwtauth.Config{Secret: secret})

	token, err := issuer.Sign("alice", time.Minute)
	require.NoError(t, err)
	claims, err := issuer.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "wsns", claims.Issuer)

	token, err = anonymous.Sign("alice", time.Minute)
	require.NoError(t, err)
	_, err = issuer.Validate(token)
	assert.Error(t, err)
}

func TestClaimsHasRole(t *testing.T) {
	claims := &jwtauth.Claims{Roles: []string{"member", "admin"}}

	assert.True(t, claims.HasRole("admin"))
	assert.False(t, claims.HasRole("owner"))
}
