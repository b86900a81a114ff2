package parser

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// MsgPack encodes packets as binary frames holding the MessagePack encoding
// of the Packet struct.
var MsgPack Codec = msgpackCodec{}

type msgpackCodec struct{}

func (msgpackCodec) Binary() bool {
	return true
}

func (msgpackCodec) Encode(packet *Packet) ([]byte, error) {
	return msgpack.Marshal(packet)
}

func (msgpackCodec) Decode(data []byte) (*Packet, error) {
	packet := &Packet{}
	if err := msgpack.Unmarshal(data, packet); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPacket, err)
	}
	if err := validate(packet); err != nil {
		return nil, err
	}
	return packet, nil
}
