package parser

import (
	"bytes"
	"fmt"
	"strconv"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// JSON encodes packets as text frames:
//
//	<type>[<namespace>,][<id>][<json data>]
//
// The namespace is omitted for the root namespace.
var JSON Codec = jsonCodec{}

type jsonCodec struct{}

func (jsonCodec) Binary() bool {
	return false
}

func (jsonCodec) Encode(packet *Packet) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(byte('0' + packet.Type))

	if packet.Namespace != "" && packet.Namespace != RootNamespace {
		buf.WriteString(packet.Namespace)
		buf.WriteByte(',')
	}

	if packet.ID != nil {
		buf.WriteString(strconv.FormatInt(*packet.ID, 10))
	}

	if packet.Data != nil {
		data, err := json.Marshal(packet.Data)
		if err != nil {
			return nil, err
		}
		buf.Write(data)
	}

	return buf.Bytes(), nil
}

func (jsonCodec) Decode(data []byte) (*Packet, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty frame", ErrInvalidPacket)
	}
	if data[0] < '0' || data[0] > '9' {
		return nil, fmt.Errorf("%w: missing packet type", ErrInvalidPacket)
	}

	packet := &Packet{Type: PacketType(data[0] - '0'), Namespace: RootNamespace}
	rest := data[1:]

	if len(rest) != 0 && rest[0] == '/' {
		end := bytes.IndexByte(rest, ',')
		if end == -1 {
			packet.Namespace = string(rest)
			rest = nil
		} else {
			packet.Namespace = string(rest[:end])
			rest = rest[end+1:]
		}
	}

	digits := 0
	for digits < len(rest) && rest[digits] >= '0' && rest[digits] <= '9' {
		digits++
	}
	if digits != 0 {
		id, err := strconv.ParseInt(string(rest[:digits]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidPacket, err)
		}
		packet.ID = &id
		rest = rest[digits:]
	}

	if len(rest) != 0 {
		var payload any
		if err := json.Unmarshal(rest, &payload); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidPacket, err)
		}
		packet.Data = payload
	}

	if err := validate(packet); err != nil {
		return nil, err
	}
	return packet, nil
}
