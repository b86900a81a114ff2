package engine

import "github.com/coder/websocket"

// Status represents a WebSocket close status code as defined in RFC 6455.
type Status = websocket.StatusCode

// WebSocket close status codes used by the engine.
const (
	StatusNormalClosure   Status = websocket.StatusNormalClosure   // 1000
	StatusGoingAway       Status = websocket.StatusGoingAway       // 1001
	StatusProtocolError   Status = websocket.StatusProtocolError   // 1002
	StatusUnsupportedData Status = websocket.StatusUnsupportedData // 1003
	StatusPolicyViolation Status = websocket.StatusPolicyViolation // 1008
	StatusMessageTooBig   Status = websocket.StatusMessageTooBig   // 1009
	StatusInternalError   Status = websocket.StatusInternalError   // 1011
)

// Disconnect reasons given to disconnect listeners.
const (
	ReasonServerShuttingDown        = "server shutting down"
	ReasonTransportClose            = "transport close"
	ReasonTransportError            = "transport error"
	ReasonClientNamespaceDisconnect = "client namespace disconnect"
	ReasonServerNamespaceDisconnect = "server namespace disconnect"
	ReasonParseError                = "parse error"
)

func isNormalClose(err error) bool {
	status := websocket.CloseStatus(err)
	return status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway
}
