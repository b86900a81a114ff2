package wsnstest

import (
	"errors"
	"sync"

	"github.com/RobertWHurst/wsns"
)

// ErrSocketClosed is returned when emitting on a closed socket.
var ErrSocketClosed = errors.New("socket closed")

// Emitted is an event the server emitted to a socket.
type Emitted struct {
	Event string
	Args  []any
}

// Socket is an in memory wsns.TransportSocket.
type Socket struct {
	id        string
	namespace *Namespace
	handshake *wsns.Handshake

	mu                     sync.Mutex
	closed                 bool
	closeReason            string
	emitted                []Emitted
	anyListeners           []func(event string, args []any, ack wsns.AckFunc)
	disconnectingListeners []func(reason string)
	disconnectListeners    []func(reason string)
	errorListeners         []func(err error)

	done chan struct{}
}

var _ wsns.TransportSocket = &Socket{}

func (s *Socket) ID() string {
	return s.id
}

func (s *Socket) Namespace() string {
	return s.namespace.name
}

func (s *Socket) Handshake() *wsns.Handshake {
	return s.handshake
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

func (s *Socket) Emit(event string, args ...any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSocketClosed
	}
	s.emitted = append(s.emitted, Emitted{Event: event, Args: args})
	return nil
}

func (s *Socket) Disconnect(reason string) error {
	s.Close(reason)
	return nil
}

func (s *Socket) Done() <-chan struct{} {
	return s.done
}

// Emitted returns the events emitted to the socket so far.
func (s *Socket) Emitted() []Emitted {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Emitted{}, s.emitted...)
}

// Closed reports whether the socket is closed, and the close reason.
func (s *Socket) Closed() (bool, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed, s.closeReason
}

// Receive delivers an event without acknowledgement to the socket listeners.
func (s *Socket) Receive(event string, args ...any) {
	s.deliver(event, args, nil)
}

// ReceiveWithAck delivers an event requesting an acknowledgement, and
// returns the acknowledgement arguments. ok is false if no listener
// acknowledged the event before returning.
func (s *Socket) ReceiveWithAck(event string, args ...any) (ackArgs []any, ok bool) {
	var mu sync.Mutex
	s.deliver(event, args, func(args ...any) error {
		mu.Lock()
		defer mu.Unlock()
		if ok {
			return errors.New("event already acknowledged")
		}
		ackArgs = args
		ok = true
		return nil
	})
	mu.Lock()
	defer mu.Unlock()
	return ackArgs, ok
}

// Fail delivers a transport error to the socket error listeners.
func (s *Socket) Fail(err error) {
	s.mu.Lock()
	listeners := append([]func(error){}, s.errorListeners...)
	s.mu.Unlock()

	for _, listener := range listeners {
		listener(err)
	}
}

// Close disconnects the socket: the disconnecting listeners run, the socket
// leaves its namespace, then the disconnect listeners run.
func (s *Socket) Close(reason string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.closeReason = reason
	disconnecting := append([]func(string){}, s.disconnectingListeners...)
	disconnect := append([]func(string){}, s.disconnectListeners...)
	s.mu.Unlock()

	for _, listener := range disconnecting {
		listener(reason)
	}
	s.namespace.removeSocket(s)
	close(s.done)
	for _, listener := range disconnect {
		listener(reason)
	}
}

func (s *Socket) deliver(event string, args []any, ack wsns.AckFunc) {
	s.mu.Lock()
	closed := s.closed
	listeners := append([]func(string, []any, wsns.AckFunc){}, s.anyListeners...)
	s.mu.Unlock()

	if closed {
		return
	}
	for _, listener := range listeners {
		listener(event, args, ack)
	}
}

func (s *Socket) markClosed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		s.closeReason = "declined"
		close(s.done)
	}
}
