// Package jwtauth authenticates connections with a JSON Web Token.
//
// The token is read from the auth payload of the connect packet ("token"),
// the Authorization header ("Bearer <token>"), or the "token" query param,
// in that order. Arguments given to the named middleware are roles the
// token must carry:
//
//	server.Middleware().RegisterNamed(map[string]any{
//	    "auth": jwtauth.New(jwtauth.Config{Secret: secret}),
//	})
//	server.Namespace("/admin").Middleware("auth:admin")
package jwtauth

import (
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/RobertWHurst/wsns"
	"github.com/golang-jwt/jwt/v5"
)

// Error codes of the exceptions declining connections.
const (
	CodeUnauthorized = "E_UNAUTHORIZED_ACCESS"
	CodeForbidden    = "E_FORBIDDEN"
)

// DefaultClaimsKey is the connection context key the claims are stored
// under.
const DefaultClaimsKey = "claims"

// Claims are the claims of the tokens accepted by the middleware.
type Claims struct {
	Roles []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// HasRole reports whether the claims carry role.
func (c *Claims) HasRole(role string) bool {
	return slices.Contains(c.Roles, role)
}

// Config configures the middleware.
type Config struct {
	Secret    []byte
	ClaimsKey string
	Issuer    string
	Leeway    time.Duration
}

// Auth is the authentication middleware.
type Auth struct {
	config Config
	parser *jwt.Parser
}

var _ wsns.Middleware = &Auth{}

// New creates the middleware.
func New(config Config) *Auth {
	if config.ClaimsKey == "" {
		config.ClaimsKey = DefaultClaimsKey
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(config.Leeway),
	}
	if config.Issuer != "" {
		options = append(options, jwt.WithIssuer(config.Issuer))
	}

	return &Auth{
		config: config,
		parser: jwt.NewParser(options...),
	}
}

// HandleMiddleware implements wsns.Middleware. args are the roles required.
func (a *Auth) HandleMiddleware(ctx *wsns.Context, next wsns.Next, args ...string) error {
	tokenString := tokenFromHandshake(ctx.Handshake())
	if tokenString == "" {
		return wsns.NewException("Missing authentication token", 401, CodeUnauthorized)
	}

	claims, err := a.Validate(tokenString)
	if err != nil {
		return wsns.WrapException(err, "Invalid authentication token", 401, CodeUnauthorized)
	}

	for _, role := range args {
		if role != "" && !claims.HasRole(role) {
			return wsns.NewException("Missing required role "+role, 403, CodeForbidden)
		}
	}

	ctx.Set(a.config.ClaimsKey, claims)
	return next()
}

// Validate parses and validates a token.
func (a *Auth) Validate(tokenString string) (*Claims, error) {
	token, err := a.parser.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		return a.config.Secret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// Sign creates a token for subject carrying roles, valid for ttl.
func (a *Auth) Sign(subject string, ttl time.Duration, roles ...string) (string, error) {
	now := time.Now()
	claims := Claims{
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    a.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.config.Secret)
}

// ClaimsFrom returns the claims stored on the connection context by the
// middleware registered with the default claims key.
func ClaimsFrom(ctx *wsns.Context) (*Claims, bool) {
	value, ok := ctx.Get(DefaultClaimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := value.(*Claims)
	return claims, ok
}

func tokenFromHandshake(handshake *wsns.Handshake) string {
	if handshake == nil {
		return ""
	}
	if token, ok := handshake.Auth["token"].(string); ok && token != "" {
		return token
	}
	if header := handshake.Headers.Get("Authorization"); header != "" {
		if token, ok := strings.CutPrefix(header, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	return handshake.Query.Get("token")
}
