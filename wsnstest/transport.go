// Package wsnstest provides an in memory wsns.Transport for tests. Sockets
// are connected, fed events and closed by the test itself, without any
// network connection.
package wsnstest

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/RobertWHurst/wsns"
	"github.com/google/uuid"
)

// ErrInvalidNamespace is returned by Connect when no namespace serves the
// name.
var ErrInvalidNamespace = errors.New("invalid namespace")

// Transport is an in memory wsns.Transport.
type Transport struct {
	mu                    sync.Mutex
	namespaces            map[string]*Namespace
	dynamic               []func(name string) bool
	newNamespaceListeners []func(namespace wsns.TransportNamespace)
	closed                bool
}

var _ wsns.Transport = &Transport{}

// NewTransport creates an empty transport.
func NewTransport() *Transport {
	return &Transport{
		namespaces: map[string]*Namespace{},
	}
}

func (t *Transport) Of(name string) wsns.TransportNamespace {
	namespace, _ := t.namespace(name, true)
	return namespace
}

func (t *Transport) OfDynamic(match func(name string) bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dynamic = append(t.dynamic, match)
}

func (t *Transport) OnNewNamespace(listener func(namespace wsns.TransportNamespace)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.newNamespaceListeners = append(t.newNamespaceListeners, listener)
}

func (t *Transport) Close(ctx context.Context) error {
	t.mu.Lock()
	t.closed = true
	namespaces := make([]*Namespace, 0, len(t.namespaces))
	for _, namespace := range t.namespaces {
		namespaces = append(namespaces, namespace)
	}
	t.mu.Unlock()

	for _, namespace := range namespaces {
		for _, socket := range namespace.Sockets() {
			socket.Close("server shutting down")
		}
	}
	return ctx.Err()
}

// Closed reports whether Close was called.
func (t *Transport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// Namespaces returns the names of the namespaces created so far.
func (t *Transport) Namespaces() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	names := make([]string, 0, len(t.namespaces))
	for name := range t.namespaces {
		names = append(names, name)
	}
	return names
}

// Connect connects a new socket to the namespace name, as a client would.
// The namespace is created if a dynamic predicate accepts the name. A nil
// handshake is replaced by an empty one. The error returned by the
// namespace middleware is returned as is, with the socket.
func (t *Transport) Connect(name string, handshake *wsns.Handshake) (*Socket, error) {
	namespace, ok := t.namespace(name, false)
	if !ok {
		return nil, ErrInvalidNamespace
	}

	if handshake == nil {
		handshake = &wsns.Handshake{}
	}
	if handshake.Headers == nil {
		handshake.Headers = http.Header{}
	}
	if handshake.Query == nil {
		handshake.Query = url.Values{}
	}
	if handshake.RemoteAddr == "" {
		handshake.RemoteAddr = "127.0.0.1:54321"
	}
	if handshake.Time.IsZero() {
		handshake.Time = time.Now()
	}

	socket := &Socket{
		id:        uuid.NewString(),
		namespace: namespace,
		handshake: handshake,
		done:      make(chan struct{}),
	}

	namespace.mu.Lock()
	middleware := append([]func(wsns.TransportSocket) error{}, namespace.middleware...)
	namespace.mu.Unlock()

	for _, m := range middleware {
		if err := m(socket); err != nil {
			socket.markClosed()
			return socket, err
		}
	}

	namespace.mu.Lock()
	namespace.sockets[socket.id] = socket
	listeners := append([]func(wsns.TransportSocket){}, namespace.connectionListeners...)
	namespace.mu.Unlock()

	for _, listener := range listeners {
		listener(socket)
	}
	return socket, nil
}

func (t *Transport) namespace(name string, create bool) (*Namespace, bool) {
	name = wsns.NormalizePattern(name)

	t.mu.Lock()
	if namespace, ok := t.namespaces[name]; ok {
		t.mu.Unlock()
		return namespace, true
	}
	if !create {
		allowed := false
		for _, match := range t.dynamic {
			if match(name) {
				allowed = true
				break
			}
		}
		if !allowed {
			t.mu.Unlock()
			return nil, false
		}
	}
	namespace := &Namespace{name: name, sockets: map[string]*Socket{}}
	t.namespaces[name] = namespace
	listeners := append([]func(wsns.TransportNamespace){}, t.newNamespaceListeners...)
	t.mu.Unlock()

	for _, listener := range listeners {
		listener(namespace)
	}
	return namespace, true
}

// Namespace is an in memory wsns.TransportNamespace.
type Namespace struct {
	name string

	mu                  sync.Mutex
	middleware          []func(socket wsns.TransportSocket) error
	connectionListeners []func(socket wsns.TransportSocket)
	sockets             map[string]*Socket
}

var _ wsns.TransportNamespace = &Namespace{}

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

// MiddlewareCount returns the number of middleware registered with Use.
func (n *Namespace) MiddlewareCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.middleware)
}

// Sockets returns the connected sockets.
func (n *Namespace) Sockets() []*Socket {
	n.mu.Lock()
	defer n.mu.Unlock()
	sockets := make([]*Socket, 0, len(n.sockets))
	for _, socket := range n.sockets {
		sockets = append(sockets, socket)
	}
	return sockets
}

func (n *Namespace) removeSocket(socket *Socket) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.sockets, socket.id)
}
