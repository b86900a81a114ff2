package engine

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/RobertWHurst/navaros"
	"github.com/RobertWHurst/wsns"
	"github.com/coder/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Subprotocols negotiated during the websocket handshake. Clients selecting
// MsgPackSubprotocol receive binary MessagePack frames, all others receive
// JSON text frames. Incoming frames are decoded by their message type.
const (
	JSONSubprotocol    = "wsns.json"
	MsgPackSubprotocol = "wsns.msgpack"
)

// Server is a wsns.Transport serving namespaces over websocket connections.
// It can be used directly as an http.Handler, or mounted into a navaros
// router with Middleware.
type Server struct {
	config wsns.Config
	logger *zap.Logger

	mu                   sync.RWMutex
	namespaces           map[string]*Namespace
	dynamicMatchers      []func(name string) bool
	newNamespaceHandlers []func(namespace wsns.TransportNamespace)

	clientsMu sync.Mutex
	clients   map[string]*Client
	closed    atomic.Bool
}

var (
	_ wsns.Transport = &Server{}
	_ http.Handler   = &Server{}
)

// NewServer creates an engine server. Path, Origins, PingInterval,
// MaxPayload and Logger are read from config.
func NewServer(config wsns.Config) *Server {
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		config:     config,
		logger:     logger.Named("engine"),
		namespaces: map[string]*Namespace{},
		clients:    map[string]*Client{},
	}
}

// Of returns the namespace with the given name, creating it if needed.
func (s *Server) Of(name string) wsns.TransportNamespace {
	namespace, _ := s.namespace(wsns.NormalizePattern(name), true)
	return namespace
}

// OfDynamic registers a predicate deciding whether a namespace may be created
// when a client connects to an unknown name.
func (s *Server) OfDynamic(match func(name string) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dynamicMatchers = append(s.dynamicMatchers, match)
}

// OnNewNamespace registers a handler called whenever a namespace is created.
func (s *Server) OnNewNamespace(handler func(namespace wsns.TransportNamespace)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.newNamespaceHandlers = append(s.newNamespaceHandlers, handler)
}

// Namespace returns an existing namespace.
func (s *Server) Namespace(name string) (*Namespace, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	namespace, ok := s.namespaces[wsns.NormalizePattern(name)]
	return namespace, ok
}

// ClientCount returns the number of open connections.
func (s *Server) ClientCount() int {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	return len(s.clients)
}

// Middleware returns a navaros handler accepting websocket upgrade requests
// on the configured path. Other requests are passed to the next handler.
func (s *Server) Middleware() navaros.HandlerFunc {
	return func(ctx *navaros.Context) {
		req := ctx.Request()
		if isWebsocketUpgradeRequest(req) && (s.config.Path == "" || req.URL.Path == s.config.Path) {
			navaros.CtxInhibitResponse(ctx)
			s.handleWebsocketConnection(ctx.ResponseWriter(), req)
			return
		}
		ctx.Next()
	}
}

// ServeHTTP implements http.Handler. Requests that are not websocket upgrade
// requests receive a 400.
func (s *Server) ServeHTTP(res http.ResponseWriter, req *http.Request) {
	if isWebsocketUpgradeRequest(req) {
		s.handleWebsocketConnection(res, req)
		return
	}
	res.WriteHeader(http.StatusBadRequest)
	_, _ = res.Write([]byte("Bad Request. Expected websocket upgrade request"))
}

// ConnectionInfo describes the request a connection was opened with.
type ConnectionInfo struct {
	RemoteAddr string
	Headers    http.Header
	Query      map[string][]string
	Binary     bool
}

// HandleConnection serves a connection accepted outside of the engine, and
// blocks until it closes.
func (s *Server) HandleConnection(info *ConnectionInfo, connection Connection) {
	if s.closed.Load() {
		_ = connection.Close(StatusGoingAway, ReasonServerShuttingDown)
		return
	}

	client := newClient(s, info, connection)

	s.clientsMu.Lock()
	s.clients[client.id] = client
	s.clientsMu.Unlock()

	client.run()

	s.clientsMu.Lock()
	delete(s.clients, client.id)
	s.clientsMu.Unlock()
}

// Close disconnects every client. It returns when all connections are closed
// or ctx is done.
func (s *Server) Close(ctx context.Context) error {
	s.closed.Store(true)

	s.clientsMu.Lock()
	clients := make([]*Client, 0, len(s.clients))
	for _, client := range s.clients {
		clients = append(clients, client)
	}
	s.clientsMu.Unlock()

	var group errgroup.Group
	for _, client := range clients {
		client := client
		group.Go(func() error {
			return client.close(StatusGoingAway, ReasonServerShuttingDown)
		})
	}

	done := make(chan error, 1)
	go func() {
		done <- group.Wait()
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) namespace(name string, create bool) (*Namespace, bool) {
	s.mu.RLock()
	namespace, ok := s.namespaces[name]
	matchers := s.dynamicMatchers
	s.mu.RUnlock()
	if ok {
		return namespace, true
	}

	if !create {
		allowed := false
		for _, match := range matchers {
			if match(name) {
				allowed = true
				break
			}
		}
		if !allowed {
			return nil, false
		}
	}

	s.mu.Lock()
	if namespace, ok := s.namespaces[name]; ok {
		s.mu.Unlock()
		return namespace, true
	}
	namespace = newNamespace(s, name)
	s.namespaces[name] = namespace
	handlers := make([]func(wsns.TransportNamespace), len(s.newNamespaceHandlers))
	copy(handlers, s.newNamespaceHandlers)
	s.mu.Unlock()

	s.logger.Debug("namespace created", zap.String("namespace", name))
	for _, handler := range handlers {
		handler(namespace)
	}
	return namespace, true
}

func (s *Server) handleWebsocketConnection(res http.ResponseWriter, req *http.Request) {
	origins := s.config.Origins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	conn, err := websocket.Accept(res, req, &websocket.AcceptOptions{
		OriginPatterns: origins,
		Subprotocols:   []string{MsgPackSubprotocol, JSONSubprotocol},
	})
	if err != nil {
		s.logger.Warn("failed to accept websocket connection", zap.Error(err))
		return
	}
	if s.config.MaxPayload > 0 {
		conn.SetReadLimit(s.config.MaxPayload)
	}

	info := &ConnectionInfo{
		RemoteAddr: req.RemoteAddr,
		Headers:    req.Header,
		Query:      req.URL.Query(),
		Binary:     conn.Subprotocol() == MsgPackSubprotocol,
	}
	s.HandleConnection(info, NewWebSocketConnection(conn))
}

func (s *Server) pingInterval() time.Duration {
	return s.config.PingInterval
}

func isWebsocketUpgradeRequest(req *http.Request) bool {
	return req.Header.Get("Upgrade") == "websocket"
}
