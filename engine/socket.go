package engine

import (
	"errors"
	"sync"

	"github.com/RobertWHurst/wsns"
	"github.com/RobertWHurst/wsns/parser"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrSocketClosed is returned when emitting to, or acknowledging on, a
// socket that left its namespace.
var ErrSocketClosed = errors.New("socket closed")

// Socket is the attachment of a client to one namespace.
type Socket struct {
	id        string
	client    *Client
	namespace *Namespace
	handshake *wsns.Handshake

	mu                     sync.Mutex
	connected              bool
	closed                 bool
	pending                []*parser.Packet
	anyListeners           []func(event string, args []any, ack wsns.AckFunc)
	disconnectingListeners []func(reason string)
	disconnectListeners    []func(reason string)
	errorListeners         []func(err error)

	done chan struct{}
}

var _ wsns.TransportSocket = &Socket{}

func newSocket(client *Client, namespace *Namespace, auth map[string]any) *Socket {
	handshake := *client.handshake
	handshake.Auth = auth

	return &Socket{
		id:        uuid.NewString(),
		client:    client,
		namespace: namespace,
		handshake: &handshake,
		done:      make(chan struct{}),
	}
}

func (s *Socket) ID() string {
	return s.id
}

func (s *Socket) Namespace() string {
	return s.namespace.name
}

func (s *Socket) Handshake() *wsns.Handshake {
	return s.handshake
}

// ClientID returns the id of the underlying connection.
func (s *Socket) ClientID() string {
	return s.client.id
}

func (s *Socket) OnAny(listener func(event string, args []any, ack wsns.AckFunc)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.anyListeners = append(s.anyListeners, listener)
}

func (s *Socket) OnDisconnecting(listener func(reason string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disconnectingListeners = append(s.disconnectingListeners, listener)
}

func (s *Socket) OnDisconnect(listener func(reason string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disconnectListeners = append(s.disconnectListeners, listener)
}

func (s *Socket) OnError(listener func(err error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errorListeners = append(s.errorListeners, listener)
}

// Emit sends an event to the client. Events emitted while the connection
// middleware runs are held back until the client is told it is connected.
func (s *Socket) Emit(event string, args ...any) error {
	packet := parser.NewEvent(s.namespace.name, event, args, nil)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSocketClosed
	}
	if !s.connected {
		s.pending = append(s.pending, packet)
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	return s.client.send(packet)
}

// Disconnect removes the socket from its namespace and tells the client.
// The underlying connection stays open.
func (s *Socket) Disconnect(reason string) error {
	if reason == "" {
		reason = ReasonServerNamespaceDisconnect
	}
	err := s.client.send(parser.NewDisconnect(s.namespace.name))
	s.close(reason)
	return err
}

func (s *Socket) Done() <-chan struct{} {
	return s.done
}

func (s *Socket) handleEvent(packet *parser.Packet) {
	s.mu.Lock()
	closed := s.closed
	listeners := make([]func(string, []any, wsns.AckFunc), len(s.anyListeners))
	copy(listeners, s.anyListeners)
	s.mu.Unlock()

	if closed {
		return
	}

	event, args, err := packet.Event()
	if err != nil {
		s.emitError(err)
		return
	}

	var ack wsns.AckFunc
	if packet.ID != nil {
		ack = s.ackFunc(*packet.ID)
	}

	for _, listener := range listeners {
		listener(event, args, ack)
	}
}

// ackFunc returns an AckFunc answering the event with the given id. Only the
// first call sends, and acks are dropped once the socket closed.
func (s *Socket) ackFunc(id int64) wsns.AckFunc {
	var once sync.Once
	return func(args ...any) error {
		err := ErrSocketClosed
		once.Do(func() {
			select {
			case <-s.done:
				return
			default:
			}
			err = s.client.send(parser.NewAck(s.namespace.name, id, args))
		})
		return err
	}
}

func (s *Socket) emitError(err error) {
	s.mu.Lock()
	listeners := make([]func(error), len(s.errorListeners))
	copy(listeners, s.errorListeners)
	s.mu.Unlock()

	if len(listeners) == 0 {
		s.client.logger.Debug("socket error", zap.String("socket_id", s.id), zap.Error(err))
		return
	}
	for _, listener := range listeners {
		listener(err)
	}
}

func (s *Socket) markConnected() {
	s.mu.Lock()
	s.connected = true
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()

	for _, packet := range pending {
		if err := s.client.send(packet); err != nil {
			s.client.logger.Debug("failed to flush pending packet", zap.Error(err))
			return
		}
	}
}

func (s *Socket) markClosed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		s.pending = nil
		close(s.done)
	}
}

// close runs the disconnecting listeners, removes the socket from its
// client and namespace, then runs the disconnect listeners.
func (s *Socket) close(reason string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.pending = nil
	disconnecting := make([]func(string), len(s.disconnectingListeners))
	copy(disconnecting, s.disconnectingListeners)
	disconnect := make([]func(string), len(s.disconnectListeners))
	copy(disconnect, s.disconnectListeners)
	s.mu.Unlock()

	for _, listener := range disconnecting {
		listener(reason)
	}

	s.client.removeSocket(s)
	s.namespace.removeSocket(s)
	close(s.done)

	for _, listener := range disconnect {
		listener(reason)
	}
}
