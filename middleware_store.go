package wsns

import (
	"fmt"
	"sync"
)

// MiddlewareStore holds the global middleware, which runs for every
// namespace, and the named middleware namespaces may reference by alias.
type MiddlewareStore struct {
	mu     sync.RWMutex
	global []*middlewareEntry
	named  map[string]*middlewareEntry
}

var _ MiddlewareRegistry = &MiddlewareStore{}

type middlewareEntry struct {
	name string
	raw  any

	once     sync.Once
	resolved MiddlewareFunc
	err      error
}

// NewMiddlewareStore creates an empty middleware store.
func NewMiddlewareStore() *MiddlewareStore {
	return &MiddlewareStore{
		named: map[string]*middlewareEntry{},
	}
}

// Register appends global middleware. Values may be any shape accepted by
// AdaptMiddleware, or a LazyMiddleware. Panics on other types.
func (s *MiddlewareStore) Register(middleware ...any) *MiddlewareStore {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, m := range middleware {
		mustBeMiddlewareFunction(m)
		s.global = append(s.global, &middlewareEntry{
			name: fmt.Sprintf("global#%d", len(s.global)),
			raw:  m,
		})
	}
	return s
}

// RegisterNamed registers middleware under aliases. Registering an alias a
// second time replaces it.
func (s *MiddlewareStore) RegisterNamed(middleware map[string]any) *MiddlewareStore {
	s.mu.Lock()
	defer s.mu.Unlock()

	for name, m := range middleware {
		mustBeMiddlewareFunction(m)
		s.named[name] = &middlewareEntry{name: name, raw: m}
	}
	return s
}

// Global returns the resolved global middleware in registration order.
func (s *MiddlewareStore) Global() ([]*ResolvedMiddleware, error) {
	s.mu.RLock()
	entries := make([]*middlewareEntry, len(s.global))
	copy(entries, s.global)
	s.mu.RUnlock()

	resolved := make([]*ResolvedMiddleware, 0, len(entries))
	for _, entry := range entries {
		handler, err := entry.resolve()
		if err != nil {
			return nil, err
		}
		resolved = append(resolved, &ResolvedMiddleware{
			Name:    entry.name,
			Kind:    FunctionMiddleware,
			Args:    []string{},
			Handler: handler,
		})
	}
	return resolved, nil
}

// Named returns the middleware registered under name, or an error matching
// ErrMissingNamedMiddleware.
func (s *MiddlewareStore) Named(name string) (*ResolvedMiddleware, error) {
	s.mu.RLock()
	entry, ok := s.named[name]
	s.mu.RUnlock()

	if !ok {
		return nil, newMissingNamedMiddlewareError(name)
	}

	handler, err := entry.resolve()
	if err != nil {
		return nil, err
	}

	return &ResolvedMiddleware{
		Name:    name,
		Kind:    NamedMiddleware,
		Args:    []string{},
		Handler: handler,
	}, nil
}

// Invoke runs a resolved middleware with its arguments.
func (s *MiddlewareStore) Invoke(middleware *ResolvedMiddleware, ctx *Context, next Next) error {
	return middleware.Invoke(ctx, next)
}

func (e *middlewareEntry) resolve() (MiddlewareFunc, error) {
	e.once.Do(func() {
		raw := e.raw
		if lazy, ok := raw.(LazyMiddleware); ok {
			raw, e.err = lazy()
		} else if lazy, ok := raw.(func() (any, error)); ok {
			raw, e.err = lazy()
		}
		if e.err != nil {
			return
		}
		e.resolved, e.err = AdaptMiddleware(raw)
	})
	return e.resolved, e.err
}

func mustBeMiddlewareFunction(m any) {
	switch m.(type) {
	case LazyMiddleware, func() (any, error):
		return
	}
	if _, err := AdaptMiddleware(m); err != nil {
		panic(err.Error())
	}
}
