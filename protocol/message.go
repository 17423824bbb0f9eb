// File: protocol/message.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Outbound message contract. Packet-type codecs live outside this
// engine; anything that can append its wire form to a buffer can be
// sent.

package protocol

import "github.com/momentics/hioload-mqtt/api"

// Message is the outbound serialization interface. Encode appends the
// full wire form (fixed header, remaining length, payload) to dst and
// returns the resulting slice.
type Message interface {
	Encode(dst []byte) ([]byte, error)
}

// RawMessage is a pass-through Message carrying an already-framed header
// and opaque payload. The declared remaining length is always derived
// from the payload.
type RawMessage struct {
	Type    PacketType
	Flags   byte
	Payload []byte
}

// Encode implements Message.
func (m *RawMessage) Encode(dst []byte) ([]byte, error) {
	if err := validateFirstByte(byte(m.Type)<<4 | m.Flags&0x0F); err != nil {
		return dst, api.NewError(api.ErrCodeInvalidArgument, "unencodable fixed header").WithCause(err)
	}
	dst = append(dst, byte(m.Type)<<4|m.Flags&0x0F)
	dst, err := EncodeRemainingLength(dst, len(m.Payload))
	if err != nil {
		return dst, err
	}
	return append(dst, m.Payload...), nil
}
