package wsns

import (
	"sync"
)

// Reserved event names for the connection lifecycle.
const (
	ConnectionEvent    = "connection"
	DisconnectEvent    = "disconnect"
	DisconnectingEvent = "disconnecting"
)

// Namespace is the mutable definition of a namespace. Namespaces are created
// with Server.Namespace and configured with chained calls:
//
//	server.Namespace("/channels/:name").
//	    Where("name", wsns.MatchSlug()).
//	    Middleware("auth", "throttle:10,60").
//	    Connected(onJoin).
//	    On("message", "ChatController.Message").
//	    Disconnected(onLeave)
//
// Definitions become immutable once the server commits its namespaces;
// mutating a committed namespace panics.
type Namespace struct {
	mu sync.Mutex

	pattern             string
	globalMatchers      ParamMatchers
	matchers            ParamMatchers
	handlers            map[string]any
	events              []string
	middleware          []any
	controllerNamespace string
	sealed              bool
}

// NamespaceDefinition is a snapshot of a namespace definition, consumed by
// the Compiler.
type NamespaceDefinition struct {
	Pattern             string
	Handlers            map[string]any
	Events              []string
	Matchers            ParamMatchers
	Middleware          []any
	ControllerNamespace string
}

// NewNamespace creates an empty namespace definition. globalMatchers is kept
// by reference so matchers declared globally after this call still apply.
func NewNamespace(pattern string, globalMatchers ParamMatchers) *Namespace {
	return &Namespace{
		pattern:        NormalizePattern(pattern),
		globalMatchers: globalMatchers,
		matchers:       ParamMatchers{},
		handlers:       map[string]any{},
	}
}

// Pattern returns the normalized pattern of the namespace.
func (n *Namespace) Pattern() string {
	return n.pattern
}

// Where declares a matcher for a param of this namespace, overriding a global
// matcher with the same param name. See NewParamMatcher for accepted matcher
// types.
func (n *Namespace) Where(param string, matcher any) *Namespace {
	m := NewParamMatcher(matcher)

	n.mu.Lock()
	defer n.mu.Unlock()
	n.mustNotBeSealed()

	n.matchers[param] = m
	return n
}

// On binds a handler to an application event. The handler may be any shape
// accepted by AdaptHandler, or a string reference such as
// "ChatController.Message" resolved through the HandlerRegistry at commit
// time. Binding a second handler for the same event panics.
func (n *Namespace) On(event string, handler any) *Namespace {
	return n.addHandler(event, handler)
}

// Connected binds the connection handler. It runs after the namespace
// middleware, as the final step of the chain.
func (n *Namespace) Connected(handler any) *Namespace {
	return n.addHandler(ConnectionEvent, handler)
}

// Disconnecting binds a handler for the disconnecting signal, fired before the
// socket leaves its namespace.
func (n *Namespace) Disconnecting(handler any) *Namespace {
	return n.addHandler(DisconnectingEvent, handler)
}

// Disconnected binds a handler for the disconnect signal, fired after the
// socket left its namespace.
func (n *Namespace) Disconnected(handler any) *Namespace {
	return n.addHandler(DisconnectEvent, handler)
}

// Middleware appends middleware to the namespace chain. Each value may be a
// middleware function or object, a LazyMiddleware, a named middleware
// reference ("auth", "throttle:10,60", "auth|throttle:10,60"), or a slice of
// those.
func (n *Namespace) Middleware(middleware ...any) *Namespace {
	flattened := make([]any, 0, len(middleware))
	for _, m := range middleware {
		switch list := m.(type) {
		case []any:
			flattened = append(flattened, list...)
		case []string:
			for _, name := range list {
				flattened = append(flattened, name)
			}
		default:
			flattened = append(flattened, m)
		}
	}

	for _, m := range flattened {
		if !isMiddlewareValue(m) {
			panic("invalid middleware type. Must be Middleware, MiddlewareFunc, " +
				"func(*Context, Next) error, LazyMiddleware, or string. Got: " + typeName(m))
		}
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	n.mustNotBeSealed()

	n.middleware = append(n.middleware, flattened...)
	return n
}

// Controllers sets the controller namespace used to resolve string handler
// references of this namespace.
func (n *Namespace) Controllers(namespace string) *Namespace {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.mustNotBeSealed()

	n.controllerNamespace = namespace
	return n
}

// Definition returns a snapshot of the namespace with global and local
// matchers merged.
func (n *Namespace) Definition() *NamespaceDefinition {
	n.mu.Lock()
	defer n.mu.Unlock()

	handlers := make(map[string]any, len(n.handlers))
	for event, handler := range n.handlers {
		handlers[event] = handler
	}
	events := make([]string, len(n.events))
	copy(events, n.events)
	middleware := make([]any, len(n.middleware))
	copy(middleware, n.middleware)

	return &NamespaceDefinition{
		Pattern:             n.pattern,
		Handlers:            handlers,
		Events:              events,
		Matchers:            n.globalMatchers.merge(n.matchers),
		Middleware:          middleware,
		ControllerNamespace: n.controllerNamespace,
	}
}

func (n *Namespace) seal() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sealed = true
}

func (n *Namespace) addHandler(event string, handler any) *Namespace {
	if event == "" {
		panic("event name must not be empty")
	}
	if _, ok := handler.(string); !ok {
		if _, err := AdaptHandler(handler); err != nil {
			panic(err.Error())
		}
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	n.mustNotBeSealed()

	if _, ok := n.handlers[event]; ok {
		panic(`duplicate event handler for "` + event + `" in namespace "` + n.pattern + `"`)
	}
	n.handlers[event] = handler
	n.events = append(n.events, event)
	return n
}

func (n *Namespace) mustNotBeSealed() {
	if n.sealed {
		panic(newCommittedError(n.pattern).Error())
	}
}
