package wsns

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/RobertWHurst/wsns"

// Executor attaches the namespaces of a committed store to a transport and
// runs the resolved middleware and handlers for every socket.
//
// A socket connecting to a namespace goes through the following steps:
// the namespace name is matched against the store, a Context is built, the
// middleware chain runs with the connection handler as its last step, and
// on success the socket starts receiving events. Events skip the middleware
// and are dispatched straight to their handler.
type Executor struct {
	store      *Store
	exceptions *ExceptionManager
	logger     *zap.Logger
	tracer     trace.Tracer
	timeout    time.Duration

	attached sync.Map
	contexts sync.Map
}

// NewExecutor creates an executor for a committed store.
func NewExecutor(store *Store, exceptions *ExceptionManager, config Config) *Executor {
	config = config.withDefaults()

	tracerProvider := config.TracerProvider
	if tracerProvider == nil {
		tracerProvider = otel.GetTracerProvider()
	}

	return &Executor{
		store:      store,
		exceptions: exceptions,
		logger:     config.Logger,
		tracer:     tracerProvider.Tracer(tracerName),
		timeout:    config.MiddlewareTimeout,
	}
}

// Attach registers the static namespaces on the transport, and lets the
// transport create dynamic namespaces for names matching a dynamic pattern.
func (e *Executor) Attach(transport Transport) {
	transport.OnNewNamespace(e.attachNamespace)

	for _, pattern := range e.store.StaticPatterns() {
		e.attachNamespace(transport.Of(pattern))
	}

	transport.OfDynamic(e.store.IsDynamicMatch)
}

// Context returns the context of a connected socket.
func (e *Executor) Context(socketID string) (*Context, bool) {
	value, ok := e.contexts.Load(socketID)
	if !ok {
		return nil, false
	}
	return value.(*Context), true
}

// ConnectionCount returns the number of connected sockets.
func (e *Executor) ConnectionCount() int {
	count := 0
	e.contexts.Range(func(_, _ any) bool {
		count++
		return true
	})
	return count
}

func (e *Executor) attachNamespace(namespace TransportNamespace) {
	matched, ok := e.store.Match(namespace.Name())
	if !ok {
		return
	}
	if _, loaded := e.attached.LoadOrStore(namespace.Name(), struct{}{}); loaded {
		return
	}

	e.logger.Debug("attaching namespace",
		zap.String("namespace", namespace.Name()),
		zap.String("pattern", matched.Namespace.Pattern.String()),
	)

	namespace.Use(func(socket TransportSocket) error {
		return e.connect(socket, matched)
	})
	namespace.OnConnection(e.handleConnection)
}

func (e *Executor) connect(socket TransportSocket, matched *MatchedNamespace) error {
	ctx := NewContext(context.Background(), socket, &MatchedNamespace{
		Namespace: matched.Namespace,
		Params:    matched.Params.clone(),
	}, e.logger)

	if err := e.RunMiddleware(ctx); err != nil {
		ctx.close()
		return e.exceptions.Handle(err, ctx)
	}

	select {
	case <-socket.Done():
		ctx.close()
		return context.Canceled
	default:
	}

	e.contexts.Store(socket.ID(), ctx)
	return nil
}

// RunMiddleware runs the middleware chain of the context namespace, followed
// by its connection handler. The chain is bounded by the configured
// middleware timeout; when it expires the context is cancelled and
// ErrMiddlewareTimeout is returned.
func (e *Executor) RunMiddleware(ctx *Context) error {
	resolved := ctx.matched.Namespace

	_, span := e.tracer.Start(ctx.Context(), "wsns.middleware", trace.WithAttributes(
		attribute.String("wsns.namespace", ctx.Namespace()),
		attribute.String("wsns.pattern", resolved.Pattern.String()),
		attribute.Int("wsns.middleware.count", len(resolved.Middleware)),
	))
	defer span.End()

	terminal := func() error {
		handler, ok := resolved.Handler(ConnectionEvent)
		if !ok {
			return nil
		}
		_, err := handler.Call(ctx)
		return err
	}

	done := make(chan error, 1)
	go func() {
		done <- runChain(ctx, resolved.Middleware, terminal)
	}()

	var timeout <-chan time.Time
	if e.timeout > 0 {
		timer := time.NewTimer(e.timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	var err error
	select {
	case err = <-done:
	case <-timeout:
		ctx.close()
		err = newMiddlewareTimeoutError(resolved.Pattern.String())
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// DispatchEvent runs the handler bound to event. The handler result, or the
// error response if it fails, is sent through ack when the client requested
// an acknowledgement. Failures are always handed to the exception manager.
func (e *Executor) DispatchEvent(ctx *Context, event string, args []any, ack AckFunc) {
	_, span := e.tracer.Start(ctx.Context(), "wsns.event", trace.WithAttributes(
		attribute.String("wsns.namespace", ctx.Namespace()),
		attribute.String("wsns.event", event),
	))
	defer span.End()

	result, err := e.runEventHandler(ctx, event, args)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		response := e.exceptions.Handle(err, ctx)
		if ack != nil {
			if ackErr := ack(response, nil); ackErr != nil {
				ctx.Logger().Debug("failed to send error ack", zap.String("event", event), zap.Error(ackErr))
			}
		}
		return
	}

	if ack != nil {
		if ackErr := ack(nil, result); ackErr != nil {
			ctx.Logger().Debug("failed to send ack", zap.String("event", event), zap.Error(ackErr))
		}
	}
}

func (e *Executor) runEventHandler(ctx *Context, event string, args []any) (any, error) {
	resolved := ctx.matched.Namespace
	if isReservedEvent(event) {
		return nil, newMissingEventHandlerError(event, resolved.Pattern.String())
	}
	handler, ok := resolved.Handler(event)
	if !ok {
		return nil, newMissingEventHandlerError(event, resolved.Pattern.String())
	}
	return callHandler(handler, ctx, args...)
}

func (e *Executor) handleConnection(socket TransportSocket) {
	ctx, ok := e.Context(socket.ID())
	if !ok {
		e.logger.Warn("connected socket has no context",
			zap.String("namespace", socket.Namespace()),
			zap.String("socket_id", socket.ID()),
		)
		return
	}

	if _, ok := ctx.matched.Namespace.Handler(DisconnectingEvent); ok {
		socket.OnDisconnecting(func(reason string) {
			e.runLifecycleHandler(ctx, DisconnectingEvent, reason)
		})
	}

	socket.OnDisconnect(func(reason string) {
		e.runLifecycleHandler(ctx, DisconnectEvent, reason)
		e.contexts.Delete(socket.ID())
		ctx.close()
	})

	socket.OnAny(func(event string, args []any, ack AckFunc) {
		e.DispatchEvent(ctx, event, args, ack)
	})

	socket.OnError(func(err error) {
		e.exceptions.Handle(err, ctx)
	})

	// The socket may have closed before the disconnect listener was
	// registered.
	select {
	case <-socket.Done():
		e.contexts.Delete(socket.ID())
		ctx.close()
	default:
	}
}

func (e *Executor) runLifecycleHandler(ctx *Context, event string, reason string) {
	handler, ok := ctx.matched.Namespace.Handler(event)
	if !ok {
		return
	}
	if _, err := callHandler(handler, ctx, reason); err != nil {
		e.exceptions.Handle(err, ctx)
	}
}

func isReservedEvent(event string) bool {
	switch event {
	case ConnectionEvent, DisconnectEvent, DisconnectingEvent:
		return true
	}
	return false
}
