package wsns

import (
	"fmt"
	"strings"
)

// HandlerKind tells how a resolved handler was declared.
type HandlerKind int

const (
	// FunctionHandler handlers were bound as Go functions or objects.
	FunctionHandler HandlerKind = iota
	// RegistryHandler handlers were bound as string references and resolved
	// through a HandlerRegistry.
	RegistryHandler
)

// HandlerBinding is the result of resolving a string handler reference.
type HandlerBinding struct {
	Target string
	Method string
	Args   []string
	Call   EventHandlerFunc
}

// HandlerRegistry resolves string handler references, such as
// "ChatController.Message", into callable bindings. namespace is the
// controller namespace the reference is scoped to, and may be empty.
type HandlerRegistry interface {
	ResolveHandler(reference string, namespace string) (*HandlerBinding, error)
}

// MiddlewareRegistry provides global and named middleware to the Compiler.
type MiddlewareRegistry interface {
	Global() ([]*ResolvedMiddleware, error)
	Named(name string) (*ResolvedMiddleware, error)
}

// ResolvedHandler is a handler ready to be invoked.
type ResolvedHandler struct {
	Event  string
	Kind   HandlerKind
	Target string
	Method string
	Args   []string
	Call   EventHandlerFunc
}

// MiddlewareKind tells how a resolved middleware was declared.
type MiddlewareKind int

const (
	FunctionMiddleware MiddlewareKind = iota
	NamedMiddleware
)

// ResolvedMiddleware is a middleware ready to be invoked, with the arguments
// parsed from its reference.
type ResolvedMiddleware struct {
	Name    string
	Kind    MiddlewareKind
	Args    []string
	Handler MiddlewareFunc
}

// Invoke runs the middleware with its arguments.
func (m *ResolvedMiddleware) Invoke(ctx *Context, next Next) error {
	return m.Handler(ctx, next, m.Args...)
}

func (m *ResolvedMiddleware) withArgs(args []string) *ResolvedMiddleware {
	return &ResolvedMiddleware{
		Name:    m.Name,
		Kind:    m.Kind,
		Args:    args,
		Handler: m.Handler,
	}
}

// ResolvedNamespace is the compiled, read-only form of a namespace.
type ResolvedNamespace struct {
	Pattern    *Pattern
	Matchers   ParamMatchers
	Handlers   map[string]*ResolvedHandler
	Middleware []*ResolvedMiddleware
}

// Handler returns the resolved handler bound to event.
func (r *ResolvedNamespace) Handler(event string) (*ResolvedHandler, bool) {
	handler, ok := r.Handlers[event]
	return handler, ok
}

// MiddlewareReference is a parsed named middleware reference.
type MiddlewareReference struct {
	Name string
	Args []string
}

// ParseMiddlewareReference parses a pipe delimited middleware reference. Each
// part is a name optionally followed by a colon and comma delimited
// arguments:
//
//	"auth"                 -> auth()
//	"throttle:10,60"       -> throttle("10", "60")
//	"auth:jwt|throttle:10" -> auth("jwt"), throttle("10")
func ParseMiddlewareReference(reference string) []MiddlewareReference {
	parts := strings.Split(reference, "|")
	references := make([]MiddlewareReference, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, rawArgs, hasArgs := strings.Cut(part, ":")
		ref := MiddlewareReference{Name: strings.TrimSpace(name), Args: []string{}}
		if hasArgs {
			for _, arg := range strings.Split(rawArgs, ",") {
				ref.Args = append(ref.Args, strings.TrimSpace(arg))
			}
		}
		references = append(references, ref)
	}
	return references
}

// Compiler turns namespace definitions into resolved namespaces. Its
// registries are injected so they can be faked in tests.
type Compiler struct {
	handlers            HandlerRegistry
	middleware          MiddlewareRegistry
	controllerNamespace string
}

// NewCompiler creates a compiler. handlers may be nil when no namespace uses
// string handler references. controllerNamespace is the default namespace
// for string handler references.
func NewCompiler(handlers HandlerRegistry, middleware MiddlewareRegistry, controllerNamespace string) *Compiler {
	if middleware == nil {
		middleware = NewMiddlewareStore()
	}
	return &Compiler{
		handlers:            handlers,
		middleware:          middleware,
		controllerNamespace: controllerNamespace,
	}
}

// CompileNamespace compiles both the handlers and the middleware chain of a
// namespace definition.
func (c *Compiler) CompileNamespace(def *NamespaceDefinition) (*ResolvedNamespace, error) {
	pattern, err := NewPattern(def.Pattern)
	if err != nil {
		return nil, err
	}

	handlers, err := c.CompileHandlers(def)
	if err != nil {
		return nil, err
	}

	middleware, err := c.CompileMiddleware(def)
	if err != nil {
		return nil, err
	}

	return &ResolvedNamespace{
		Pattern:    pattern,
		Matchers:   def.Matchers,
		Handlers:   handlers,
		Middleware: middleware,
	}, nil
}

// CompileHandlers resolves every handler of the definition. String references
// that cannot be resolved fail here, never at dispatch time.
func (c *Compiler) CompileHandlers(def *NamespaceDefinition) (map[string]*ResolvedHandler, error) {
	resolved := make(map[string]*ResolvedHandler, len(def.Handlers))

	for _, event := range c.eventOrder(def) {
		handler := def.Handlers[event]

		if reference, ok := handler.(string); ok {
			resolvedHandler, err := c.resolveReference(event, reference, def)
			if err != nil {
				return nil, err
			}
			resolved[event] = resolvedHandler
			continue
		}

		call, err := AdaptHandler(handler)
		if err != nil {
			return nil, err
		}
		resolved[event] = &ResolvedHandler{
			Event: event,
			Kind:  FunctionHandler,
			Call:  call,
		}
	}

	return resolved, nil
}

// CompileMiddleware builds the middleware chain of the definition: global
// middleware first, then the namespace middleware, each group in
// registration order.
func (c *Compiler) CompileMiddleware(def *NamespaceDefinition) ([]*ResolvedMiddleware, error) {
	global, err := c.middleware.Global()
	if err != nil {
		return nil, err
	}

	chain := make([]*ResolvedMiddleware, 0, len(global)+len(def.Middleware))
	chain = append(chain, global...)

	for i, item := range def.Middleware {
		switch m := item.(type) {
		case string:
			for _, ref := range ParseMiddlewareReference(m) {
				named, err := c.middleware.Named(ref.Name)
				if err != nil {
					return nil, err
				}
				chain = append(chain, named.withArgs(ref.Args))
			}
		case LazyMiddleware:
			resolved, err := resolveLazyMiddleware(m, fmt.Sprintf("%s#%d", def.Pattern, i))
			if err != nil {
				return nil, err
			}
			chain = append(chain, resolved)
		case func() (any, error):
			resolved, err := resolveLazyMiddleware(m, fmt.Sprintf("%s#%d", def.Pattern, i))
			if err != nil {
				return nil, err
			}
			chain = append(chain, resolved)
		default:
			handler, err := AdaptMiddleware(m)
			if err != nil {
				return nil, err
			}
			chain = append(chain, &ResolvedMiddleware{
				Name:    fmt.Sprintf("%s#%d", def.Pattern, i),
				Kind:    FunctionMiddleware,
				Args:    []string{},
				Handler: handler,
			})
		}
	}

	return chain, nil
}

func (c *Compiler) resolveReference(event, reference string, def *NamespaceDefinition) (*ResolvedHandler, error) {
	if c.handlers == nil {
		return nil, newMissingHandlerError(reference, def.Pattern, nil)
	}

	namespace := def.ControllerNamespace
	if namespace == "" {
		namespace = c.controllerNamespace
	}

	binding, err := c.handlers.ResolveHandler(reference, namespace)
	if err != nil {
		return nil, newMissingHandlerError(reference, def.Pattern, err)
	}
	if binding == nil || binding.Call == nil {
		return nil, newMissingHandlerError(reference, def.Pattern, nil)
	}

	return &ResolvedHandler{
		Event:  event,
		Kind:   RegistryHandler,
		Target: binding.Target,
		Method: binding.Method,
		Args:   binding.Args,
		Call:   bindHandlerArgs(binding.Call, binding.Args),
	}, nil
}

// bindHandlerArgs makes the reference arguments of a handler available
// through Context.HandlerArgs while it runs.
func bindHandlerArgs(call EventHandlerFunc, args []string) EventHandlerFunc {
	if len(args) == 0 {
		return call
	}
	return func(ctx *Context, eventArgs ...any) (any, error) {
		if ctx != nil {
			ctx = ctx.withHandlerArgs(args)
		}
		return call(ctx, eventArgs...)
	}
}

// eventOrder returns the definition's events in declaration order, falling
// back to map order for definitions built by hand.
func (c *Compiler) eventOrder(def *NamespaceDefinition) []string {
	if len(def.Events) == len(def.Handlers) {
		return def.Events
	}
	events := make([]string, 0, len(def.Handlers))
	for event := range def.Handlers {
		events = append(events, event)
	}
	return events
}

func resolveLazyMiddleware(lazy func() (any, error), name string) (*ResolvedMiddleware, error) {
	value, err := lazy()
	if err != nil {
		return nil, err
	}
	handler, err := AdaptMiddleware(value)
	if err != nil {
		return nil, err
	}
	return &ResolvedMiddleware{
		Name:    name,
		Kind:    FunctionMiddleware,
		Args:    []string{},
		Handler: handler,
	}, nil
}
