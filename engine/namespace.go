package engine

import (
	"sync"

	"github.com/RobertWHurst/wsns"
	"go.uber.org/zap"
)

// Namespace is a namespace of the engine server.
type Namespace struct {
	name   string
	server *Server

	mu                  sync.RWMutex
	middleware          []func(socket wsns.TransportSocket) error
	connectionListeners []func(socket wsns.TransportSocket)
	sockets             map[string]*Socket
}

var _ wsns.TransportNamespace = &Namespace{}

func newNamespace(server *Server, name string) *Namespace {
	return &Namespace{
		name:    name,
		server:  server,
		sockets: map[string]*Socket{},
	}
}

func (n *Namespace) Name() string {
	return n.name
}

func (n *Namespace) Use(middleware func(socket wsns.TransportSocket) error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.middleware = append(n.middleware, middleware)
}

func (n *Namespace) OnConnection(listener func(socket wsns.TransportSocket)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.connectionListeners = append(n.connectionListeners, listener)
}

// SocketCount returns the number of connected sockets.
func (n *Namespace) SocketCount() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.sockets)
}

// Broadcast emits an event to every connected socket of the namespace.
func (n *Namespace) Broadcast(event string, args ...any) {
	n.mu.RLock()
	sockets := make([]*Socket, 0, len(n.sockets))
	for _, socket := range n.sockets {
		sockets = append(sockets, socket)
	}
	n.mu.RUnlock()

	for _, socket := range sockets {
		if err := socket.Emit(event, args...); err != nil {
			n.server.logger.Debug("failed to broadcast",
				zap.String("namespace", n.name),
				zap.String("socket_id", socket.id),
				zap.Error(err),
			)
		}
	}
}

func (n *Namespace) runMiddleware(socket *Socket) error {
	n.mu.RLock()
	middleware := make([]func(wsns.TransportSocket) error, len(n.middleware))
	copy(middleware, n.middleware)
	n.mu.RUnlock()

	for _, m := range middleware {
		if err := m(socket); err != nil {
			return err
		}
	}
	return nil
}

func (n *Namespace) emitConnection(socket *Socket) {
	n.mu.RLock()
	listeners := make([]func(wsns.TransportSocket), len(n.connectionListeners))
	copy(listeners, n.connectionListeners)
	n.mu.RUnlock()

	for _, listener := range listeners {
		listener(socket)
	}
}

func (n *Namespace) addSocket(socket *Socket) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sockets[socket.id] = socket
}

func (n *Namespace) removeSocket(socket *Socket) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.sockets, socket.id)
}
