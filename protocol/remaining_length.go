// File: protocol/remaining_length.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Remaining-length varint codec: 1 to 4 bytes, 7 bits of magnitude per
// byte, bit 7 flags a continuation byte.

package protocol

import "github.com/momentics/hioload-mqtt/api"

const (
	// MaxRemainingLength is the largest encodable value (4 bytes, all
	// magnitude bits set).
	MaxRemainingLength = 268435455

	maxRemainingLengthBytes = 4
)

// EncodeRemainingLength appends the varint encoding of n to dst and
// returns the extended slice. Values above MaxRemainingLength and
// negative values are rejected.
func EncodeRemainingLength(dst []byte, n int) ([]byte, error) {
	if n < 0 || n > MaxRemainingLength {
		return dst, api.NewError(api.ErrCodeInvalidArgument, "remaining length out of range")
	}
	for {
		b := byte(n % 128)
		n /= 128
		if n > 0 {
			b |= 0x80
		}
		dst = append(dst, b)
		if n == 0 {
			return dst, nil
		}
	}
}

// DecodeRemainingLength parses a complete varint from the start of p,
// returning the value and the number of bytes consumed. A truncated
// field yields (0, 0, nil); a 4th byte with the continuation bit set is
// malformed.
func DecodeRemainingLength(p []byte) (value, n int, err error) {
	var shift uint
	for i, b := range p {
		value |= int(b&0x7F) << shift
		if b&0x80 == 0 {
			return value, i + 1, nil
		}
		if i+1 == maxRemainingLengthBytes {
			return 0, 0, api.NewError(api.ErrCodeProtocol, "remaining length exceeds 4 bytes").WithCause(api.ErrMalformedFrame)
		}
		shift += 7
	}
	return 0, 0, nil
}
