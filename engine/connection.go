package engine

import (
	"context"

	"github.com/coder/websocket"
)

// Message is a single websocket message.
type Message struct {
	Binary bool
	Data   []byte
}

// Connection is the low level connection a client reads packets from. It is
// implemented by WebSocketConnection, and may be implemented by other
// transports passed to Server.HandleConnection.
type Connection interface {
	Read(ctx context.Context) (*Message, error)
	Write(ctx context.Context, msg *Message) error
	Close(status Status, reason string) error
}

// Pinger may be implemented by connections supporting keep alive pings.
type Pinger interface {
	Ping(ctx context.Context) error
}

// WebSocketConnection is a Connection implementation that wraps
// github.com/coder/websocket.Conn.
type WebSocketConnection struct {
	webSocketConnection *websocket.Conn
}

var (
	_ Connection = &WebSocketConnection{}
	_ Pinger     = &WebSocketConnection{}
)

// NewWebSocketConnection creates a WebSocketConnection from a
// github.com/coder/websocket.Conn.
func NewWebSocketConnection(websocketConnection *websocket.Conn) *WebSocketConnection {
	return &WebSocketConnection{
		webSocketConnection: websocketConnection,
	}
}

// Read reads the next message. Blocks until a message arrives or an error
// occurs.
func (c *WebSocketConnection) Read(ctx context.Context) (*Message, error) {
	messageType, data, err := c.webSocketConnection.Read(ctx)
	if err != nil {
		return nil, err
	}
	return &Message{
		Binary: messageType == websocket.MessageBinary,
		Data:   data,
	}, nil
}

// Write sends a message.
func (c *WebSocketConnection) Write(ctx context.Context, msg *Message) error {
	messageType := websocket.MessageText
	if msg.Binary {
		messageType = websocket.MessageBinary
	}
	return c.webSocketConnection.Write(ctx, messageType, msg.Data)
}

// Ping sends a ping and waits for the pong.
func (c *WebSocketConnection) Ping(ctx context.Context) error {
	return c.webSocketConnection.Ping(ctx)
}

// Close closes the connection with the given status code and reason.
func (c *WebSocketConnection) Close(status Status, reason string) error {
	return c.webSocketConnection.Close(status, reason)
}
