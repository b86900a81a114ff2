package wsns

import (
	"context"
	"net/http"
	"net/url"
	"time"
)

// Handshake holds the metadata of the connection a socket was opened on.
type Handshake struct {
	Headers    http.Header
	Query      url.Values
	Auth       map[string]any
	RemoteAddr string
	Time       time.Time
}

// AckFunc sends an acknowledgement back to the sender of an event.
type AckFunc func(args ...any) error

// TransportSocket is a socket attached to one namespace of a transport.
type TransportSocket interface {
	ID() string
	Namespace() string
	Handshake() *Handshake

	// OnAny registers the listener for every application event received on
	// the socket. ack is nil when the sender did not request one.
	OnAny(listener func(event string, args []any, ack AckFunc))
	OnDisconnecting(listener func(reason string))
	OnDisconnect(listener func(reason string))
	OnError(listener func(err error))

	Emit(event string, args ...any) error
	Disconnect(reason string) error
	Done() <-chan struct{}
}

// TransportNamespace is a namespace of a transport.
type TransportNamespace interface {
	Name() string

	// Use registers a connection middleware. Returning an error declines the
	// connection, and the error is sent to the client.
	Use(middleware func(socket TransportSocket) error)
	OnConnection(listener func(socket TransportSocket))
}

// Transport is the realtime server namespaces are attached to. The engine
// package provides a websocket implementation.
type Transport interface {
	// Of returns the namespace with the exact given name, creating it if
	// needed.
	Of(name string) TransportNamespace

	// OfDynamic registers a predicate used to create namespaces on demand
	// when a client connects to a name no static namespace serves.
	OfDynamic(match func(name string) bool)

	// OnNewNamespace registers a listener called for every namespace the
	// transport creates.
	OnNewNamespace(listener func(namespace TransportNamespace))

	Close(ctx context.Context) error
}
