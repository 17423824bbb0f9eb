// File: protocol/message_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package protocol_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/momentics/hioload-mqtt/api"
	"github.com/momentics/hioload-mqtt/protocol"
)

func TestRawMessageEncode(t *testing.T) {
	cases := []struct {
		name string
		msg  protocol.RawMessage
		want []byte
	}{
		{"pingreq", protocol.RawMessage{Type: protocol.PINGREQ}, []byte{0xC0, 0x00}},
		{"pingresp", protocol.RawMessage{Type: protocol.PINGRESP}, []byte{0xD0, 0x00}},
		{"publish qos1", protocol.RawMessage{Type: protocol.PUBLISH, Flags: 0x02, Payload: []byte("hi")},
			[]byte{0x32, 0x02, 'h', 'i'}},
		{"subscribe", protocol.RawMessage{Type: protocol.SUBSCRIBE, Flags: 0x02, Payload: []byte{0, 1}},
			[]byte{0x82, 0x02, 0x00, 0x01}},
	}
	for _, c := range cases {
		got, err := c.msg.Encode(nil)
		if err != nil {
			t.Fatalf("%s: %v", c.name, err)
		}
		if !bytes.Equal(got, c.want) {
			t.Fatalf("%s: wire = %x, want %x", c.name, got, c.want)
		}
	}
}

func TestRawMessageEncodeAppends(t *testing.T) {
	prefix := []byte("prefix")
	got, err := (&protocol.RawMessage{Type: protocol.PINGREQ}).Encode(prefix)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, append([]byte("prefix"), 0xC0, 0x00)) {
		t.Fatalf("wire = %q", got)
	}
}

func TestRawMessageEncodeRejectsBadHeader(t *testing.T) {
	bad := []protocol.RawMessage{
		{Type: 0},
		{Type: 15},
		{Type: protocol.SUBSCRIBE, Flags: 0x00},
		{Type: protocol.PUBREL, Flags: 0x01},
	}
	for _, m := range bad {
		if _, err := m.Encode(nil); !errors.Is(err, api.ErrMalformedFrame) {
			t.Fatalf("type %d flags %#x: err = %v", m.Type, m.Flags, err)
		}
	}
}

func TestPacketTypeString(t *testing.T) {
	if s := protocol.PUBLISH.String(); s != "PUBLISH" {
		t.Fatalf("String = %q", s)
	}
	if s := protocol.PacketType(15).String(); s != "RESERVED" {
		t.Fatalf("String = %q", s)
	}
}

func TestHeaderFirstByte(t *testing.T) {
	h := protocol.Header{Type: protocol.PUBLISH, Flags: 0x0B}
	if b := h.FirstByte(); b != 0x3B {
		t.Fatalf("FirstByte = %#x", b)
	}
}
