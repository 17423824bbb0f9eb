// File: protocol/frame.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Decoded frame view handed to the consumer. The payload slice is
// borrowed from the decoder's pool for the duration of the dispatch
// call; consumers that retain it must Clone first.

package protocol

// Frame is one complete fixed-header + payload unit.
type Frame struct {
	Header  Header
	Payload []byte // borrowed; valid only during the dispatch call
}

// Clone copies the frame into freshly allocated memory so it may be
// retained past the dispatch call.
func (f *Frame) Clone() *Frame {
	c := &Frame{Header: f.Header}
	if len(f.Payload) > 0 {
		c.Payload = make([]byte, len(f.Payload))
		copy(c.Payload, f.Payload)
	}
	return c
}
