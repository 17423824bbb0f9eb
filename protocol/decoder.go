// File: protocol/decoder.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Resumable incremental frame decoder. The transport may deliver the
// fixed header byte, the remaining-length field and the payload in
// fragments of any size, out of phase with frame boundaries; the decoder
// carries all position state between calls and never re-reads a consumed
// byte.

package protocol

import (
	"github.com/momentics/hioload-mqtt/api"
	"github.com/momentics/hioload-mqtt/pool"
)

type decodeStage int

const (
	stageFixedHeader decodeStage = iota
	stageRemainingLength
	stagePayload
)

// Decoder reconstructs frames from an arbitrary chunking of the byte
// stream. Zero value is not usable; construct with NewDecoder.
type Decoder struct {
	pool       *pool.BytePool
	maxPayload int

	stage   decodeStage
	hdr     Header
	remLen  int
	shift   uint
	lenByte int

	payload []byte
	have    int
}

// NewDecoder constructs a decoder drawing payload buffers from p.
// maxPayload bounds the accepted remaining length; zero means the
// protocol maximum.
func NewDecoder(p *pool.BytePool, maxPayload int) *Decoder {
	if maxPayload <= 0 || maxPayload > MaxRemainingLength {
		maxPayload = MaxRemainingLength
	}
	return &Decoder{pool: p, maxPayload: maxPayload}
}

// Decode consumes bytes from p until it needs more input, completes the
// fixed header, or completes a frame, whichever comes first. It returns
// the count of bytes consumed plus at most one event:
//
//   - hdr non-nil: the fixed header (including remaining length) just
//     finished parsing; payload accumulation follows.
//   - frame non-nil: one full frame completed; the caller should
//     re-invoke with the unconsumed remainder of the chunk.
//   - both nil, err nil: the chunk is exhausted mid-frame; state is
//     retained for the next delivery.
//   - err non-nil: the stream is structurally corrupt and cannot be
//     resynchronized.
//
// A zero remaining length completes the frame on the call following the
// header event without consuming further input, so Decode must be
// invoked again even when the chunk is empty after a header event.
func (d *Decoder) Decode(p []byte) (n int, hdr *Header, frame *Frame, err error) {
	switch d.stage {
	case stageFixedHeader:
		if len(p) == 0 {
			return 0, nil, nil, nil
		}
		b := p[0]
		n = 1
		if err := validateFirstByte(b); err != nil {
			return n, nil, nil, err
		}
		d.hdr = Header{Type: PacketType(b >> 4), Flags: b & 0x0F}
		d.remLen = 0
		d.shift = 0
		d.lenByte = 0
		d.stage = stageRemainingLength
		fallthrough

	case stageRemainingLength:
		for n < len(p) {
			b := p[n]
			n++
			d.remLen |= int(b&0x7F) << d.shift
			d.lenByte++
			if b&0x80 == 0 {
				if d.remLen > d.maxPayload {
					return n, nil, nil, api.NewError(api.ErrCodeProtocol, "remaining length exceeds limit").WithCause(api.ErrMalformedFrame)
				}
				d.hdr.RemainingLength = d.remLen
				d.stage = stagePayload
				d.have = 0
				if d.remLen > 0 {
					d.payload = d.pool.Get(d.remLen)
				}
				h := d.hdr
				return n, &h, nil, nil
			}
			if d.lenByte == maxRemainingLengthBytes {
				return n, nil, nil, api.NewError(api.ErrCodeProtocol, "remaining length exceeds 4 bytes").WithCause(api.ErrMalformedFrame)
			}
			d.shift += 7
		}
		return n, nil, nil, nil

	case stagePayload:
		take := d.hdr.RemainingLength - d.have
		if avail := len(p) - n; take > avail {
			take = avail
		}
		if take > 0 {
			copy(d.payload[d.have:], p[n:n+take])
			d.have += take
			n += take
		}
		if d.have == d.hdr.RemainingLength {
			f := &Frame{Header: d.hdr, Payload: d.payload}
			d.payload = nil
			d.stage = stageFixedHeader
			return n, nil, f, nil
		}
		return n, nil, nil, nil
	}
	return 0, nil, nil, api.NewError(api.ErrCodeInternal, "decoder in unknown stage")
}

// Release returns a dispatched frame's payload buffer to the pool. The
// frame must not be used afterwards.
func (d *Decoder) Release(f *Frame) {
	if f != nil && f.Payload != nil {
		d.pool.Put(f.Payload)
		f.Payload = nil
	}
}

// Reset discards any frame in progress, releasing the partially filled
// payload buffer. Used on connection teardown and consumer veto.
func (d *Decoder) Reset() {
	if d.payload != nil {
		d.pool.Put(d.payload)
		d.payload = nil
	}
	d.stage = stageFixedHeader
	d.have = 0
}
