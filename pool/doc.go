// Package pool
// Author: momentics <momentics@gmail.com>
//
// Buffer recycling for hioload-mqtt.
// Implements size-classed byte pooling for read chunks, payload
// accumulation and outbound serialization buffers.
// See bytepool.go for implementation details.
package pool
