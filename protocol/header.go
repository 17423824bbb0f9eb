// File: protocol/header.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Fixed header representation: one leading byte carrying the control
// packet type in the high nibble and the flag bits in the low nibble,
// followed by the variable remaining-length field.

package protocol

import "github.com/momentics/hioload-mqtt/api"

// PacketType is the MQTT control packet type from the fixed header.
type PacketType byte

// Control packet types per MQTT 3.1.1 table 2.1. Types 0 and 15 are
// reserved and rejected by the decoder.
const (
	CONNECT     PacketType = 1
	CONNACK     PacketType = 2
	PUBLISH     PacketType = 3
	PUBACK      PacketType = 4
	PUBREC      PacketType = 5
	PUBREL      PacketType = 6
	PUBCOMP     PacketType = 7
	SUBSCRIBE   PacketType = 8
	SUBACK      PacketType = 9
	UNSUBSCRIBE PacketType = 10
	UNSUBACK    PacketType = 11
	PINGREQ     PacketType = 12
	PINGRESP    PacketType = 13
	DISCONNECT  PacketType = 14
)

var packetNames = map[PacketType]string{
	CONNECT:     "CONNECT",
	CONNACK:     "CONNACK",
	PUBLISH:     "PUBLISH",
	PUBACK:      "PUBACK",
	PUBREC:      "PUBREC",
	PUBREL:      "PUBREL",
	PUBCOMP:     "PUBCOMP",
	SUBSCRIBE:   "SUBSCRIBE",
	SUBACK:      "SUBACK",
	UNSUBSCRIBE: "UNSUBSCRIBE",
	UNSUBACK:    "UNSUBACK",
	PINGREQ:     "PINGREQ",
	PINGRESP:    "PINGRESP",
	DISCONNECT:  "DISCONNECT",
}

// String returns the packet type mnemonic.
func (t PacketType) String() string {
	if s, ok := packetNames[t]; ok {
		return s
	}
	return "RESERVED"
}

// Header is the decoded fixed header of one MQTT frame.
type Header struct {
	Type            PacketType
	Flags           byte // low nibble of the first byte
	RemainingLength int  // declared payload byte count
}

// FirstByte re-encodes the leading fixed-header byte.
func (h Header) FirstByte() byte {
	return byte(h.Type)<<4 | h.Flags&0x0F
}

// validateFirstByte rejects structurally invalid leading bytes: reserved
// packet types and wrong fixed flag bits where the wire format mandates
// them. Flag bits of other types are application-level and left to the
// consumer's header hook.
func validateFirstByte(b byte) error {
	t := PacketType(b >> 4)
	flags := b & 0x0F
	if t == 0 || t == 15 {
		return api.NewError(api.ErrCodeProtocol, "reserved packet type").WithCause(api.ErrMalformedFrame)
	}
	switch t {
	case PUBREL, SUBSCRIBE, UNSUBSCRIBE:
		if flags != 0x02 {
			return api.NewError(api.ErrCodeProtocol, "invalid fixed header flags").WithCause(api.ErrMalformedFrame)
		}
	}
	return nil
}
