// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT
//
// Package transport adapts blocking net.Conn links (plaintext or TLS)
// to the engine's event-driven contract: a read pump goroutine delivers
// chunks, timeouts and the closed notification to the event loop, where
// the connection state machine consumes them one at a time.

package transport

import (
	"context"
	"crypto/tls"
	"net"
	"sync/atomic"
	"time"

	"github.com/momentics/hioload-mqtt/api"
	"github.com/momentics/hioload-mqtt/pool"
	"github.com/momentics/hioload-mqtt/reactor"
)

// DefaultChunkSize is the read buffer size handed to the kernel per
// read. Chunk sizing is the adapter's choice; the engine tolerates any
// fragmentation.
const DefaultChunkSize = 16 << 10

// Options configures an adopted or dialed link.
type Options struct {
	TLS        *tls.Config   // nil means plaintext
	ServerName string        // SNI override for the client handshake
	RWTimeout  time.Duration // read/write deadline window, 0 disables
	ChunkSize  int           // read chunk size, 0 means DefaultChunkSize
}

// NetConn implements api.Transport over a net.Conn.
type NetConn struct {
	loop *reactor.Loop
	conn net.Conn
	pool *pool.BytePool
	opts Options

	client bool
	sink   api.EventSink

	closed atomic.Bool
	stop   chan struct{}
	rearm  chan struct{}
}

// Adopt wraps an already-established connection for the server path. If
// opts.TLS is set the handle drives a server-side handshake when the
// engine asks for one.
func Adopt(loop *reactor.Loop, conn net.Conn, bp *pool.BytePool, opts Options) *NetConn {
	return newNetConn(loop, conn, bp, opts, false)
}

func newNetConn(loop *reactor.Loop, conn net.Conn, bp *pool.BytePool, opts Options, client bool) *NetConn {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	return &NetConn{
		loop:   loop,
		conn:   conn,
		pool:   bp,
		opts:   opts,
		client: client,
		stop:   make(chan struct{}),
		rearm:  make(chan struct{}, 1),
	}
}

// Handshake implements api.Transport. The TLS handshake runs on a helper
// goroutine; completion is posted to the loop.
func (t *NetConn) Handshake(done func(err error)) {
	if t.opts.TLS == nil {
		t.loop.Post(func() { done(nil) })
		return
	}
	go func() {
		cfg := t.opts.TLS.Clone()
		var tc *tls.Conn
		if t.client {
			if t.opts.ServerName != "" {
				cfg.ServerName = t.opts.ServerName
			}
			tc = tls.Client(t.conn, cfg)
		} else {
			tc = tls.Server(t.conn, cfg)
		}
		ctx := context.Background()
		if t.opts.RWTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, t.opts.RWTimeout)
			defer cancel()
		}
		err := tc.HandshakeContext(ctx)
		if err == nil {
			t.conn = tc
		}
		t.loop.Post(func() { done(err) })
	}()
}

// StartRead implements api.Transport. Idempotent; the first call arms
// the read pump.
func (t *NetConn) StartRead(sink api.EventSink) {
	if t.sink != nil {
		return
	}
	t.sink = sink
	go t.readLoop()
}

// RearmRead resumes the pump after a reported read timeout.
func (t *NetConn) RearmRead() {
	select {
	case t.rearm <- struct{}{}:
	default:
	}
}

// Write implements api.Transport. Synchronous handoff to the kernel
// buffer under the write deadline; acceptance is not delivery.
func (t *NetConn) Write(p []byte) error {
	if t.closed.Load() {
		return api.ErrTransportClosed
	}
	if t.opts.RWTimeout > 0 {
		_ = t.conn.SetWriteDeadline(time.Now().Add(t.opts.RWTimeout))
	}
	_, err := t.conn.Write(p)
	return err
}

// Close implements api.Transport. Idempotent. When the pump is armed the
// closed event is posted by the pump as it unblocks.
func (t *NetConn) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(t.stop)
	return t.conn.Close()
}

// LocalAddr returns the local endpoint address.
func (t *NetConn) LocalAddr() string {
	return t.conn.LocalAddr().String()
}

// RemoteAddr returns the peer endpoint address.
func (t *NetConn) RemoteAddr() string {
	return t.conn.RemoteAddr().String()
}

// readLoop blocks on the socket and posts events to the loop. The chunk
// buffer is recycled after the sink callback returns, so the sink must
// copy anything it keeps; the frame decoder copies payload bytes into
// its own accumulation buffer.
func (t *NetConn) readLoop() {
	for {
		buf := t.pool.Get(t.opts.ChunkSize)
		if t.opts.RWTimeout > 0 {
			_ = t.conn.SetReadDeadline(time.Now().Add(t.opts.RWTimeout))
		}
		n, err := t.conn.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			t.loop.Post(func() {
				t.sink.OnTransportData(chunk)
				t.pool.Put(buf)
			})
		} else {
			t.pool.Put(buf)
		}
		if err == nil {
			continue
		}
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			t.loop.Post(func() { t.sink.OnTransportReadTimeout() })
			select {
			case <-t.rearm:
				continue
			case <-t.stop:
				t.postClosed(nil)
				return
			}
		}
		if t.closed.Load() {
			// locally requested close
			t.postClosed(nil)
		} else {
			t.postClosed(err)
		}
		return
	}
}

func (t *NetConn) postClosed(err error) {
	t.loop.Post(func() { t.sink.OnTransportClosed(err) })
}
