package wsns

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Context is the connection context of a socket within a namespace. It is
// created when the socket attaches, before the middleware chain runs, and
// lives until the socket disconnects. It is shared by the middleware, the
// connection handler and every event handler of the socket.
type Context struct {
	socket  TransportSocket
	matched *MatchedNamespace
	logger  *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	values *contextValues

	handlerArgs []string
}

type contextValues struct {
	mu     sync.RWMutex
	values map[string]any
}

// NewContext creates the context of a socket attached to a matched
// namespace. logger may be nil.
func NewContext(parent context.Context, socket TransportSocket, matched *MatchedNamespace, logger *zap.Logger) *Context {
	if parent == nil {
		parent = context.Background()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(parent)

	return &Context{
		socket:  socket,
		matched: matched,
		logger: logger.With(
			zap.String("namespace", socket.Namespace()),
			zap.String("socket_id", socket.ID()),
		),
		ctx:    ctx,
		cancel: cancel,
		values: &contextValues{values: map[string]any{}},
	}
}

// Socket returns the transport socket.
func (c *Context) Socket() TransportSocket {
	return c.socket
}

// SocketID returns the id of the socket.
func (c *Context) SocketID() string {
	return c.socket.ID()
}

// Namespace returns the name of the namespace the socket is attached to,
// such as '/channels/general'.
func (c *Context) Namespace() string {
	return c.socket.Namespace()
}

// Pattern returns the pattern of the matched namespace, such as
// '/channels/:name'.
func (c *Context) Pattern() string {
	return c.matched.Namespace.Pattern.String()
}

// Matched returns the matched namespace.
func (c *Context) Matched() *MatchedNamespace {
	return c.matched
}

// Params returns the params extracted from the namespace name.
func (c *Context) Params() Params {
	return c.matched.Params
}

// Param returns a single param, or an empty string.
func (c *Context) Param(key string) string {
	return c.matched.Params.Get(key)
}

// Logger returns a logger carrying the namespace and socket id.
func (c *Context) Logger() *zap.Logger {
	return c.logger
}

// Handshake returns the handshake of the socket connection.
func (c *Context) Handshake() *Handshake {
	return c.socket.Handshake()
}

// Context returns a context.Context that is cancelled once the socket
// disconnects.
func (c *Context) Context() context.Context {
	return c.ctx
}

// Set stores a value on the connection. Values are visible to every handler
// of the socket.
func (c *Context) Set(key string, value any) {
	c.values.mu.Lock()
	defer c.values.mu.Unlock()
	c.values.values[key] = value
}

// Get returns a value stored with Set.
func (c *Context) Get(key string) (any, bool) {
	c.values.mu.RLock()
	defer c.values.mu.RUnlock()
	v, ok := c.values.values[key]
	return v, ok
}

// MustGet returns a value stored with Set, and panics if it is missing.
func (c *Context) MustGet(key string) any {
	v, ok := c.Get(key)
	if !ok {
		panic("key not found in connection context: " + key)
	}
	return v
}

// HandlerArgs returns the arguments bound to the running handler by its
// string reference, such as ["admin"] for "RoomController.Join:admin".
func (c *Context) HandlerArgs() []string {
	return c.handlerArgs
}

// withHandlerArgs returns a view of the context for a single handler call.
// The view shares the socket, values and cancellation of c.
func (c *Context) withHandlerArgs(args []string) *Context {
	view := *c
	view.handlerArgs = args
	return &view
}

// Emit sends an event to the socket.
func (c *Context) Emit(event string, args ...any) error {
	return c.socket.Emit(event, args...)
}

// Disconnect detaches the socket from the namespace.
func (c *Context) Disconnect(reason string) error {
	return c.socket.Disconnect(reason)
}

func (c *Context) close() {
	c.cancel()
}
