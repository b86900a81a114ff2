package parser_test

import (
	"errors"
	"testing"

	"github.com/RobertWHurst/wsns/parser"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func id(v int64) *int64 {
	return &v
}

func TestJSONEncode(t *testing.T) {
	tests := []struct {
		name     string
		packet   *parser.Packet
		expected string
	}{
		{
			name:     "connect root",
			packet:   parser.NewConnect("/", nil),
			expected: "0",
		},
		{
			name:     "connect reply",
			packet:   parser.NewConnect("/chat", map[string]any{"sid": "abc"}),
			expected: `0/chat,{"sid":"abc"}`,
		},
		{
			name:     "disconnect",
			packet:   parser.NewDisconnect("/chat"),
			expected: "1/chat,",
		},
		{
			name:     "event without ack",
			packet:   parser.NewEvent("/", "message", []any{"hi"}, nil),
			expected: `2["message","hi"]`,
		},
		{
			name:     "event with ack",
			packet:   parser.NewEvent("/chat", "message", []any{"hi", 1}, id(12)),
			expected: `2/chat,12["message","hi",1]`,
		},
		{
			name:     "ack",
			packet:   parser.NewAck("/chat", 12, []any{nil, "ok"}),
			expected: `3/chat,12[null,"ok"]`,
		},
		{
			name:     "empty ack",
			packet:   parser.NewAck("/", 3, nil),
			expected: `33[]`,
		},
		{
			name:     "connect error",
			packet:   parser.NewConnectError("/admin", map[string]any{"message": "Invalid namespace"}),
			expected: `4/admin,{"message":"Invalid namespace"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := parser.JSON.Encode(tt.packet)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(data))
		})
	}
}

func TestJSONDecode(t *testing.T) {
	tests := []struct {
		name     string
		frame    string
		expected *parser.Packet
	}{
		{
			name:     "connect root",
			frame:    "0",
			expected: &parser.Packet{Type: parser.Connect, Namespace: "/"},
		},
		{
			name:     "connect with auth",
			frame:    `0/chat,{"token":"abc"}`,
			expected: &parser.Packet{Type: parser.Connect, Namespace: "/chat", Data: map[string]any{"token": "abc"}},
		},
		{
			name:     "namespace without separator",
			frame:    "1/chat",
			expected: &parser.Packet{Type: parser.Disconnect, Namespace: "/chat"},
		},
		{
			name:  "event with ack",
			frame: `2/chat,7["message","hi",2]`,
			expected: &parser.Packet{
				Type:      parser.Event,
				Namespace: "/chat",
				ID:        id(7),
				Data:      []any{"message", "hi", float64(2)},
			},
		},
		{
			name:     "ack",
			frame:    `3/chat,7[null,"ok"]`,
			expected: &parser.Packet{Type: parser.Ack, Namespace: "/chat", ID: id(7), Data: []any{nil, "ok"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			packet, err := parser.JSON.Decode([]byte(tt.frame))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, packet)
		})
	}
}

func TestJSONDecodeInvalid(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		err   error
	}{
		{name: "empty", frame: "", err: parser.ErrInvalidPacket},
		{name: "no type", frame: "x", err: parser.ErrInvalidPacket},
		{name: "unknown type", frame: "7", err: parser.ErrInvalidPacket},
		{name: "bad json", frame: `2["message"`, err: parser.ErrInvalidPacket},
		{name: "event without name", frame: `2[]`, err: parser.ErrInvalidEvent},
		{name: "event name not a string", frame: `2[1,2]`, err: parser.ErrInvalidEvent},
		{name: "event data not an array", frame: `2{"a":1}`, err: parser.ErrInvalidEvent},
		{name: "ack without id", frame: `3[]`, err: parser.ErrInvalidPacket},
		{name: "connect with array", frame: `0[1]`, err: parser.ErrInvalidPacket},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			packet, err := parser.JSON.Decode([]byte(tt.frame))
			assert.Nil(t, packet)
			assert.True(t, errors.Is(err, tt.err), "unexpected error %v", err)
		})
	}
}

func TestJSONEventRoundTrip(t *testing.T) {
	data, err := parser.JSON.Encode(parser.NewEvent("/rooms/1", "join", []any{map[string]any{"name": "alice"}}, id(4)))
	require.NoError(t, err)

	packet, err := parser.JSON.Decode(data)
	require.NoError(t, err)

	event, args, err := packet.Event()
	require.NoError(t, err)
	assert.Equal(t, "/rooms/1", packet.Namespace)
	assert.Equal(t, int64(4), *packet.ID)
	assert.Equal(t, "join", event)
	assert.Equal(t, []any{map[string]any{"name": "alice"}}, args)
}

func TestMsgPack(t *testing.T) {
	assert.True(t, parser.MsgPack.Binary())
	assert.False(t, parser.JSON.Binary())

	data, err := parser.MsgPack.Encode(parser.NewEvent("/chat", "message", []any{"hi"}, id(300)))
	require.NoError(t, err)

	packet, err := parser.MsgPack.Decode(data)
	require.NoError(t, err)

	event, args, err := packet.Event()
	require.NoError(t, err)
	assert.Equal(t, parser.Event, packet.Type)
	assert.Equal(t, "/chat", packet.Namespace)
	assert.Equal(t, int64(300), *packet.ID)
	assert.Equal(t, "message", event)
	assert.Equal(t, []any{"hi"}, args)
}

func TestMsgPackConnectAuth(t *testing.T) {
	data, err := parser.MsgPack.Encode(parser.NewConnect("/admin", map[string]any{"token": "abc"}))
	require.NoError(t, err)

	packet, err := parser.MsgPack.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"token": "abc"}, packet.Auth())
}

func TestMsgPackDecodeInvalid(t *testing.T) {
	_, err := parser.MsgPack.Decode([]byte{0xc1})
	assert.True(t, errors.Is(err, parser.ErrInvalidPacket))

	data, err := parser.MsgPack.Encode(&parser.Packet{Type: parser.Ack, Namespace: "/"})
	require.NoError(t, err)
	_, err = parser.MsgPack.Decode(data)
	assert.True(t, errors.Is(err, parser.ErrInvalidPacket))
}

func TestPacketType(t *testing.T) {
	assert.Equal(t, "EVENT", parser.Event.String())
	assert.Equal(t, "CONNECT_ERROR", parser.ConnectError.String())
	assert.Equal(t, "PacketType(9)", parser.PacketType(9).String())
	assert.False(t, parser.PacketType(9).Valid())
	assert.Nil(t, parser.NewDisconnect("/").Args())
}
