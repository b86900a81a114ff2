package engine

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/RobertWHurst/wsns"
	"github.com/RobertWHurst/wsns/parser"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrClientClosed is returned when writing to a closed client.
var ErrClientClosed = errors.New("client closed")

// Client is a single websocket connection. A client may be attached to
// several namespaces at once, each attachment being a Socket.
type Client struct {
	id        string
	server    *Server
	conn      Connection
	codec     parser.Codec
	handshake *wsns.Handshake
	logger    *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	writeMu sync.Mutex

	mu      sync.Mutex
	sockets map[string]*Socket

	closeOnce sync.Once
	closeErr  error
}

func newClient(server *Server, info *ConnectionInfo, conn Connection) *Client {
	id := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())

	codec := parser.JSON
	if info.Binary {
		codec = parser.MsgPack
	}

	return &Client{
		id:     id,
		server: server,
		conn:   conn,
		codec:  codec,
		handshake: &wsns.Handshake{
			Headers:    info.Headers,
			Query:      info.Query,
			RemoteAddr: info.RemoteAddr,
			Time:       time.Now(),
		},
		logger:  server.logger.With(zap.String("client_id", id)),
		ctx:     ctx,
		cancel:  cancel,
		sockets: map[string]*Socket{},
	}
}

// ID returns the id of the client connection.
func (c *Client) ID() string {
	return c.id
}

// run reads packets until the connection closes. Each packet is handled on
// its own goroutine so a slow handler does not block the connection.
func (c *Client) run() {
	if interval := c.server.pingInterval(); interval > 0 {
		if pinger, ok := c.conn.(Pinger); ok {
			go c.keepAlive(pinger, interval)
		}
	}

	reason := ReasonTransportClose
	for {
		msg, err := c.conn.Read(c.ctx)
		if err != nil {
			if !isNormalClose(err) && !errors.Is(err, io.EOF) && c.ctx.Err() == nil {
				c.logger.Debug("error reading client message", zap.Error(err))
				reason = ReasonTransportError
			}
			break
		}

		codec := parser.Codec(parser.JSON)
		if msg.Binary {
			codec = parser.MsgPack
		}
		packet, err := codec.Decode(msg.Data)
		if err != nil {
			c.logger.Debug("failed to decode packet", zap.Error(err))
			reason = ReasonParseError
			break
		}

		go c.handlePacket(packet)
	}

	c.closeSockets(reason)
	_ = c.close(StatusNormalClosure, reason)
}

func (c *Client) keepAlive(pinger Pinger, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(c.ctx, interval)
			err := pinger.Ping(ctx)
			cancel()
			if err != nil && c.ctx.Err() == nil {
				c.logger.Debug("ping failed", zap.Error(err))
				_ = c.close(StatusGoingAway, "ping timeout")
				return
			}
		}
	}
}

func (c *Client) handlePacket(packet *parser.Packet) {
	switch packet.Type {
	case parser.Connect:
		c.handleConnect(packet)
	case parser.Disconnect:
		if socket, ok := c.socket(packet.Namespace); ok {
			socket.close(ReasonClientNamespaceDisconnect)
		}
	case parser.Event:
		socket, ok := c.socket(packet.Namespace)
		if !ok {
			c.logger.Debug("event for a namespace the client is not connected to",
				zap.String("namespace", packet.Namespace))
			return
		}
		socket.handleEvent(packet)
	case parser.Ack:
		c.logger.Debug("ignoring client ack", zap.String("namespace", packet.Namespace))
	default:
		c.logger.Debug("ignoring packet", zap.Stringer("type", packet.Type))
	}
}

func (c *Client) handleConnect(packet *parser.Packet) {
	namespace, ok := c.server.namespace(packet.Namespace, false)
	if !ok {
		_ = c.send(parser.NewConnectError(packet.Namespace, map[string]any{
			"message": "Invalid namespace",
		}))
		return
	}

	c.mu.Lock()
	if _, exists := c.sockets[namespace.name]; exists {
		c.mu.Unlock()
		c.logger.Debug("client already connected to namespace", zap.String("namespace", namespace.name))
		return
	}
	socket := newSocket(c, namespace, packet.Auth())
	c.sockets[namespace.name] = socket
	c.mu.Unlock()

	if err := namespace.runMiddleware(socket); err != nil {
		c.removeSocket(socket)
		socket.markClosed()
		_ = c.send(parser.NewConnectError(namespace.name, errorPayload(err)))
		return
	}

	// A socket closed by its middleware is still announced, so connection
	// listeners see it closed and release what they attached to it.
	select {
	case <-socket.done:
		namespace.emitConnection(socket)
		return
	default:
	}

	// Listeners are registered before the client learns it is connected, so
	// its first events are never dropped.
	namespace.addSocket(socket)
	namespace.emitConnection(socket)

	if err := c.send(parser.NewConnect(namespace.name, map[string]any{"sid": socket.id})); err != nil {
		socket.close(ReasonTransportError)
		return
	}
	socket.markConnected()
}

func (c *Client) socket(namespace string) (*Socket, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	socket, ok := c.sockets[namespace]
	return socket, ok
}

func (c *Client) removeSocket(socket *Socket) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sockets[socket.namespace.name] == socket {
		delete(c.sockets, socket.namespace.name)
	}
}

func (c *Client) closeSockets(reason string) {
	c.mu.Lock()
	sockets := make([]*Socket, 0, len(c.sockets))
	for _, socket := range c.sockets {
		sockets = append(sockets, socket)
	}
	c.mu.Unlock()

	for _, socket := range sockets {
		socket.close(reason)
	}
}

func (c *Client) send(packet *parser.Packet) error {
	if c.ctx.Err() != nil {
		return ErrClientClosed
	}

	data, err := c.codec.Encode(packet)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.Write(c.ctx, &Message{Binary: c.codec.Binary(), Data: data})
}

func (c *Client) close(status Status, reason string) error {
	c.closeOnce.Do(func() {
		c.closeSockets(reason)
		c.closeErr = c.conn.Close(status, reason)
		c.cancel()
	})
	return c.closeErr
}

func errorPayload(err error) any {
	var response *wsns.ErrorResponse
	if errors.As(err, &response) {
		return response
	}
	return map[string]any{"message": err.Error()}
}
