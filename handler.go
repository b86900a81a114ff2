package wsns

import (
	"reflect"
)

// EventHandler is a handler object interface. Any object that implements
// this interface can be bound to a namespace event.
type EventHandler interface {
	HandleEvent(ctx *Context, args ...any) (any, error)
}

// EventHandlerFunc is a function adapter that allows ordinary functions to be
// used as event handlers. Every handler shape accepted by Namespace.On is
// adapted to an EventHandlerFunc when the namespace is compiled.
type EventHandlerFunc func(ctx *Context, args ...any) (any, error)

// HandleEvent calls f.
func (f EventHandlerFunc) HandleEvent(ctx *Context, args ...any) (any, error) {
	return f(ctx, args...)
}

// ConnectHandlerFunc handles a namespace connection. It runs as the last step
// of the middleware chain, so an error declines the connection.
type ConnectHandlerFunc func(ctx *Context) error

// DisconnectHandlerFunc handles the disconnecting and disconnect lifecycle
// signals of a socket.
type DisconnectHandlerFunc func(ctx *Context, reason string) error

// Next advances a middleware chain. It returns the error produced by the rest
// of the chain, which middleware should return unless they handled it.
type Next func() error

// Middleware is a middleware object interface. Args are the arguments given
// to a named middleware reference such as 'throttle:10,60'.
type Middleware interface {
	HandleMiddleware(ctx *Context, next Next, args ...string) error
}

// MiddlewareFunc is a function adapter that allows ordinary functions to be
// used as middleware.
type MiddlewareFunc func(ctx *Context, next Next, args ...string) error

// HandleMiddleware calls f.
func (f MiddlewareFunc) HandleMiddleware(ctx *Context, next Next, args ...string) error {
	return f(ctx, next, args...)
}

// LazyMiddleware defers the construction of a middleware until namespaces are
// compiled. It is called at most once and must return a value accepted by
// AdaptMiddleware.
type LazyMiddleware func() (any, error)

// AdaptHandler converts any of the supported handler shapes into an
// EventHandlerFunc:
//
//	EventHandler, EventHandlerFunc, func(*Context, ...any) (any, error)
//	ConnectHandlerFunc, func(*Context) error
//	DisconnectHandlerFunc, func(*Context, string) error
//	func(*Context)
//
// Disconnect handlers receive the reason as their first argument.
func AdaptHandler(handler any) (EventHandlerFunc, error) {
	switch h := handler.(type) {
	case EventHandlerFunc:
		return h, nil
	case func(*Context, ...any) (any, error):
		return h, nil
	case ConnectHandlerFunc:
		return adaptConnectHandler(h), nil
	case func(*Context) error:
		return adaptConnectHandler(h), nil
	case DisconnectHandlerFunc:
		return adaptDisconnectHandler(h), nil
	case func(*Context, string) error:
		return adaptDisconnectHandler(h), nil
	case func(*Context):
		return func(ctx *Context, _ ...any) (any, error) {
			h(ctx)
			return nil, nil
		}, nil
	case EventHandler:
		return h.HandleEvent, nil
	}
	return nil, NewException(
		"invalid handler type. Must be EventHandler, EventHandlerFunc, ConnectHandlerFunc, "+
			"DisconnectHandlerFunc, func(*Context), or a string reference. Got: "+typeName(handler),
		500,
		CodeInvalidHandler,
	)
}

// AdaptMiddleware converts any of the supported middleware shapes into a
// MiddlewareFunc: Middleware, MiddlewareFunc,
// func(*Context, Next, ...string) error and func(*Context, Next) error.
func AdaptMiddleware(middleware any) (MiddlewareFunc, error) {
	switch m := middleware.(type) {
	case MiddlewareFunc:
		return m, nil
	case func(*Context, Next, ...string) error:
		return m, nil
	case func(*Context, Next) error:
		return func(ctx *Context, next Next, _ ...string) error {
			return m(ctx, next)
		}, nil
	case Middleware:
		return m.HandleMiddleware, nil
	}
	return nil, NewException(
		"invalid middleware type. Must be Middleware, MiddlewareFunc, "+
			"func(*Context, Next) error, LazyMiddleware, or a string reference. Got: "+typeName(middleware),
		500,
		CodeInvalidHandler,
	)
}

func adaptConnectHandler(h func(*Context) error) EventHandlerFunc {
	return func(ctx *Context, _ ...any) (any, error) {
		return nil, h(ctx)
	}
}

func adaptDisconnectHandler(h func(*Context, string) error) EventHandlerFunc {
	return func(ctx *Context, args ...any) (any, error) {
		reason := ""
		if len(args) != 0 {
			reason, _ = args[0].(string)
		}
		return nil, h(ctx, reason)
	}
}

func isMiddlewareValue(middleware any) bool {
	switch middleware.(type) {
	case string, LazyMiddleware, func() (any, error):
		return true
	}
	_, err := AdaptMiddleware(middleware)
	return err == nil
}

func typeName(v any) string {
	if v == nil {
		return "nil"
	}
	return reflect.TypeOf(v).String()
}
