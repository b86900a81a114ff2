// Package throttle limits how often a client may connect to a namespace.
//
// The middleware is meant to be registered as named middleware so the limit
// can be given in the namespace definition:
//
//	server.Middleware().RegisterNamed(map[string]any{
//	    "throttle": throttle.New(),
//	})
//	server.Namespace("/chat").Middleware("throttle:10,60") // 10 per minute
package throttle

import (
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/RobertWHurst/wsns"
	"golang.org/x/time/rate"
)

// CodeTooManyConnections is the code of the error declining throttled
// connections.
const CodeTooManyConnections = "E_TOO_MANY_CONNECTIONS"

const (
	defaultLimit  = 60
	defaultWindow = 60 * time.Second
)

// Throttle is a connection rate limiter. The first middleware argument is
// the number of connections allowed per window, the second the window in
// seconds. Both default to 60.
type Throttle struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	keyFn    func(ctx *wsns.Context) string
}

var _ wsns.Middleware = &Throttle{}

// Option configures a Throttle.
type Option func(t *Throttle)

// WithKey sets the function computing the key connections are counted
// under. By default connections are counted per remote host.
func WithKey(keyFn func(ctx *wsns.Context) string) Option {
	return func(t *Throttle) {
		t.keyFn = keyFn
	}
}

// New creates a throttle.
func New(opts ...Option) *Throttle {
	t := &Throttle{
		limiters: map[string]*rate.Limiter{},
		keyFn:    remoteHost,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// HandleMiddleware implements wsns.Middleware.
func (t *Throttle) HandleMiddleware(ctx *wsns.Context, next wsns.Next, args ...string) error {
	limit, window, err := parseArgs(args)
	if err != nil {
		return err
	}

	key := ctx.Pattern() + "|" + strconv.Itoa(limit) + "/" + window.String() + "|" + t.keyFn(ctx)
	if !t.limiter(key, limit, window).Allow() {
		return wsns.NewException("Too many connections, retry later", 429, CodeTooManyConnections)
	}
	return next()
}

func (t *Throttle) limiter(key string, limit int, window time.Duration) *rate.Limiter {
	t.mu.Lock()
	defer t.mu.Unlock()

	limiter, ok := t.limiters[key]
	if !ok {
		every := window / time.Duration(limit)
		limiter = rate.NewLimiter(rate.Every(every), limit)
		t.limiters[key] = limiter
	}
	return limiter
}

func parseArgs(args []string) (int, time.Duration, error) {
	limit := defaultLimit
	window := defaultWindow

	if len(args) > 0 && args[0] != "" {
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			return 0, 0, wsns.NewException("invalid throttle limit "+strconv.Quote(args[0]), 500, "E_INVALID_THROTTLE_ARGS")
		}
		limit = n
	}
	if len(args) > 1 && args[1] != "" {
		n, err := strconv.Atoi(args[1])
		if err != nil || n <= 0 {
			return 0, 0, wsns.NewException("invalid throttle window "+strconv.Quote(args[1]), 500, "E_INVALID_THROTTLE_ARGS")
		}
		window = time.Duration(n) * time.Second
	}
	return limit, window, nil
}

func remoteHost(ctx *wsns.Context) string {
	handshake := ctx.Handshake()
	if handshake == nil {
		return ""
	}
	host, _, err := net.SplitHostPort(handshake.RemoteAddr)
	if err != nil {
		return handshake.RemoteAddr
	}
	return host
}
