package wsns

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Server is the entry point of the package. Namespaces are declared on the
// server, then compiled into a routing table by Commit, and finally attached
// to a Transport which delivers sockets to them.
//
//	server := wsns.NewServer(wsns.DefaultConfig())
//	server.Middleware().RegisterNamed(map[string]any{"auth": authMiddleware})
//	server.Namespace("/chat/:room").Middleware("auth").On("message", onMessage)
//	if err := server.Attach(transport); err != nil {
//	    log.Fatal(err)
//	}
type Server struct {
	mu sync.Mutex

	config Config
	logger *zap.Logger

	matchers   ParamMatchers
	namespaces map[string]*Namespace
	order      []string

	middleware *MiddlewareStore
	handlers   HandlerRegistry
	exceptions *ExceptionManager

	store     *Store
	executor  *Executor
	transport Transport
}

// NewServer creates a server. Zero fields of config fall back to
// DefaultConfig. The server starts with a DefaultExceptionHandler for the
// configured environment.
func NewServer(config Config) *Server {
	config = config.withDefaults()

	exceptions := NewExceptionManager(config.Logger)
	exceptions.SetHandler(NewDefaultExceptionHandler(config.Env, config.Logger))

	return &Server{
		config:     config,
		logger:     config.Logger,
		matchers:   ParamMatchers{},
		namespaces: map[string]*Namespace{},
		middleware: NewMiddlewareStore(),
		exceptions: exceptions,
	}
}

// Config returns the server configuration, with defaults applied.
func (s *Server) Config() Config {
	return s.config
}

// Logger returns the server logger.
func (s *Server) Logger() *zap.Logger {
	return s.logger
}

// Middleware returns the middleware store, used to register global and named
// middleware.
func (s *Server) Middleware() *MiddlewareStore {
	return s.middleware
}

// SetHandlerRegistry sets the registry string handler references are
// resolved against.
func (s *Server) SetHandlerRegistry(registry HandlerRegistry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = registry
}

// SetExceptionHandler replaces the exception handler.
func (s *Server) SetExceptionHandler(handler ExceptionHandler) {
	s.exceptions.SetHandler(handler)
}

// AddReporter adds a reporter receiving every reportable error.
func (s *Server) AddReporter(reporter Reporter) {
	s.exceptions.AddReporter(reporter)
}

// Exceptions returns the exception manager.
func (s *Server) Exceptions() *ExceptionManager {
	return s.exceptions
}

// Where declares a matcher for a param of every namespace. Namespaces may
// override it with Namespace.Where.
func (s *Server) Where(param string, matcher any) *Server {
	m := NewParamMatcher(matcher)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.mustNotBeCommitted("")

	s.matchers[param] = m
	return s
}

// Namespace returns the definition of the namespace with the given pattern,
// creating it if needed. Patterns are normalized, so '/chat/' and '//chat'
// return the same definition. Panics once the server is committed.
func (s *Server) Namespace(pattern string) *Namespace {
	normalized := NormalizePattern(pattern)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.mustNotBeCommitted(normalized)

	if namespace, ok := s.namespaces[normalized]; ok {
		return namespace
	}

	namespace := NewNamespace(normalized, s.matchers)
	s.namespaces[normalized] = namespace
	s.order = append(s.order, normalized)
	return namespace
}

// Commit compiles every namespace and freezes the routing table. Any
// unresolvable handler or middleware makes Commit fail, and the server stays
// uncommitted. Calling Commit on a committed server is a no-op.
func (s *Server) Commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.store != nil {
		return nil
	}

	compiler := NewCompiler(s.handlers, s.middleware, s.config.ControllerNamespace)
	store := NewStore()

	for _, pattern := range s.order {
		resolved, err := compiler.CompileNamespace(s.namespaces[pattern].Definition())
		if err != nil {
			return err
		}
		if err := store.Add(resolved); err != nil {
			return err
		}
	}
	store.Commit()

	for _, namespace := range s.namespaces {
		namespace.seal()
	}

	s.store = store
	s.executor = NewExecutor(store, s.exceptions, s.config)

	s.logger.Info("namespaces committed",
		zap.Strings("static", store.StaticPatterns()),
		zap.Strings("dynamic", store.DynamicPatterns()),
	)
	return nil
}

// Attach commits the server if needed, then attaches its namespaces to
// transport.
func (s *Server) Attach(transport Transport) error {
	if err := s.Commit(); err != nil {
		return err
	}

	s.mu.Lock()
	s.transport = transport
	executor := s.executor
	s.mu.Unlock()

	executor.Attach(transport)
	return nil
}

// Close closes the attached transport, if any, and waits for pending error
// reports.
func (s *Server) Close(ctx context.Context) error {
	s.mu.Lock()
	transport := s.transport
	s.transport = nil
	s.mu.Unlock()

	var err error
	if transport != nil {
		err = transport.Close(ctx)
	}
	s.exceptions.Wait()
	return err
}

// Store returns the routing table, or nil before Commit.
func (s *Server) Store() *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store
}

// Executor returns the executor, or nil before Commit.
func (s *Server) Executor() *Executor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.executor
}

func (s *Server) mustNotBeCommitted(pattern string) {
	if s.store != nil {
		panic(newCommittedError(pattern).Error())
	}
}
