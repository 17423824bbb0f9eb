// File: pool/bytepool.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Size-classed byte pool backing read chunks and frame payload
// accumulation buffers. Buffers are recycled through sync.Pool per size
// class; requests above the largest class fall back to plain allocation.

package pool

import "sync"

// classSizes are the bucket capacities, smallest first.
var classSizes = []int{256, 1 << 10, 4 << 10, 16 << 10, 64 << 10, 256 << 10}

// BytePool hands out byte slices by requested length.
type BytePool struct {
	classes []sync.Pool
}

// NewBytePool constructs an empty pool; buffers are created lazily.
func NewBytePool() *BytePool {
	p := &BytePool{classes: make([]sync.Pool, len(classSizes))}
	for i := range p.classes {
		size := classSizes[i]
		p.classes[i].New = func() any {
			return make([]byte, size)
		}
	}
	return p
}

// Get returns a slice of length n backed by a pooled buffer. The slice
// contents are unspecified.
func (p *BytePool) Get(n int) []byte {
	if n == 0 {
		return nil
	}
	for i, size := range classSizes {
		if n <= size {
			buf := p.classes[i].Get().([]byte)
			return buf[:n]
		}
	}
	// Oversized request: GC handles memory.
	return make([]byte, n)
}

// Put returns a buffer obtained from Get. Oversized and foreign buffers
// are dropped.
func (p *BytePool) Put(buf []byte) {
	c := cap(buf)
	for i, size := range classSizes {
		if c == size {
			p.classes[i].Put(buf[:c])
			return
		}
	}
}
