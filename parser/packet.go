package parser

import (
	"errors"
	"fmt"
)

// PacketType is the type of a packet. The numeric values are part of the
// wire format.
type PacketType int

const (
	Connect PacketType = iota
	Disconnect
	Event
	Ack
	ConnectError
)

func (t PacketType) String() string {
	switch t {
	case Connect:
		return "CONNECT"
	case Disconnect:
		return "DISCONNECT"
	case Event:
		return "EVENT"
	case Ack:
		return "ACK"
	case ConnectError:
		return "CONNECT_ERROR"
	}
	return fmt.Sprintf("PacketType(%d)", int(t))
}

// Valid reports whether t is a known packet type.
func (t PacketType) Valid() bool {
	return t >= Connect && t <= ConnectError
}

// RootNamespace is the namespace a packet belongs to when it names none.
const RootNamespace = "/"

var (
	ErrInvalidPacket = errors.New("invalid packet")
	ErrInvalidEvent  = errors.New("invalid event packet")
)

// Packet is a single protocol packet. Event packets carry the event name
// followed by its arguments in Data, ack packets carry the ack arguments.
type Packet struct {
	Type      PacketType `msgpack:"type"`
	Namespace string     `msgpack:"nsp"`
	ID        *int64     `msgpack:"id,omitempty"`
	Data      any        `msgpack:"data,omitempty"`
}

// NewConnect creates a connect packet. data is the auth payload sent by
// clients, or the session payload replied by the server.
func NewConnect(namespace string, data any) *Packet {
	return &Packet{Type: Connect, Namespace: namespace, Data: data}
}

// NewDisconnect creates a disconnect packet.
func NewDisconnect(namespace string) *Packet {
	return &Packet{Type: Disconnect, Namespace: namespace}
}

// NewConnectError creates a packet declining a connection.
func NewConnectError(namespace string, data any) *Packet {
	return &Packet{Type: ConnectError, Namespace: namespace, Data: data}
}

// NewEvent creates an event packet. id is nil unless an acknowledgement is
// requested.
func NewEvent(namespace string, event string, args []any, id *int64) *Packet {
	data := make([]any, 0, len(args)+1)
	data = append(data, event)
	data = append(data, args...)
	return &Packet{Type: Event, Namespace: namespace, ID: id, Data: data}
}

// NewAck creates an acknowledgement of the event packet with the given id.
func NewAck(namespace string, id int64, args []any) *Packet {
	if args == nil {
		args = []any{}
	}
	return &Packet{Type: Ack, Namespace: namespace, ID: &id, Data: args}
}

// Event returns the event name and arguments of an event packet.
func (p *Packet) Event() (string, []any, error) {
	if p.Type != Event {
		return "", nil, fmt.Errorf("%w: packet type is %s", ErrInvalidEvent, p.Type)
	}
	data, ok := p.Data.([]any)
	if !ok || len(data) == 0 {
		return "", nil, fmt.Errorf("%w: data must be a non empty array", ErrInvalidEvent)
	}
	name, ok := data[0].(string)
	if !ok || name == "" {
		return "", nil, fmt.Errorf("%w: event name must be a string", ErrInvalidEvent)
	}
	return name, data[1:], nil
}

// Args returns the arguments of an ack packet.
func (p *Packet) Args() []any {
	data, _ := p.Data.([]any)
	return data
}

// Auth returns the auth payload of a connect packet.
func (p *Packet) Auth() map[string]any {
	auth, _ := p.Data.(map[string]any)
	return auth
}

// Codec encodes and decodes packets of one websocket message type.
type Codec interface {
	Encode(packet *Packet) ([]byte, error)
	Decode(data []byte) (*Packet, error)
	Binary() bool
}

func validate(packet *Packet) error {
	if !packet.Type.Valid() {
		return fmt.Errorf("%w: unknown type %d", ErrInvalidPacket, packet.Type)
	}
	if packet.Namespace == "" {
		packet.Namespace = RootNamespace
	}
	switch packet.Type {
	case Event:
		if _, _, err := packet.Event(); err != nil {
			return err
		}
	case Ack:
		if packet.ID == nil {
			return fmt.Errorf("%w: ack without id", ErrInvalidPacket)
		}
		if packet.Data == nil {
			packet.Data = []any{}
		}
		if _, ok := packet.Data.([]any); !ok {
			return fmt.Errorf("%w: ack data must be an array", ErrInvalidPacket)
		}
	case Connect, ConnectError:
		if packet.Data == nil {
			return nil
		}
		if _, ok := packet.Data.(map[string]any); !ok {
			return fmt.Errorf("%w: %s data must be an object", ErrInvalidPacket, packet.Type)
		}
	}
	return nil
}
