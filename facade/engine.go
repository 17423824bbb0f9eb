// File: facade/engine.go
// Unified facade layer for hioload-mqtt library.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Engine aggregates the core components - event loop, byte pool, dialer -
// behind a single front object. It exposes the two entry points of the
// connection engine: Dial for the client path and Adopt for the
// server-side peer path, both returning a live connection whose further
// lifecycle is reported through the consumer's handler hooks.

package facade

import (
	"crypto/tls"
	"net"
	"time"

	"github.com/momentics/hioload-mqtt/api"
	"github.com/momentics/hioload-mqtt/pool"
	"github.com/momentics/hioload-mqtt/protocol"
	"github.com/momentics/hioload-mqtt/reactor"
	"github.com/momentics/hioload-mqtt/transport"
)

// Config holds parameters immutable per run.
type Config struct {
	ReadChunkSize  int           // read buffer size handed to the kernel
	ConnectTimeout time.Duration // resolve + connect limit for Dial
	RWTimeout      time.Duration // steady-state read/write timeout
	TLS            *tls.Config   // nil means plaintext
	SNIPrefix      string        // prepended to the SNI host name
	SNISuffix      string        // appended to the SNI host name
	MaxPayload     int           // inbound remaining-length bound, 0 = protocol max
}

// DefaultConfig returns default configuration values.
func DefaultConfig() *Config {
	return &Config{
		ReadChunkSize:  transport.DefaultChunkSize,
		ConnectTimeout: 30 * time.Second,
		RWTimeout:      120 * time.Second,
	}
}

// Engine is the front object owning one event loop and its connections.
type Engine struct {
	cfg    *Config
	loop   *reactor.Loop
	pool   *pool.BytePool
	dialer *transport.Dialer
}

// New constructs an Engine and starts its event loop.
func New(cfg *Config) *Engine {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	loop := reactor.NewLoop()
	bp := pool.NewBytePool()
	e := &Engine{
		cfg:    cfg,
		loop:   loop,
		pool:   bp,
		dialer: transport.NewDialer(loop, bp, cfg.ReadChunkSize),
	}
	go loop.Run()
	return e
}

// Loop exposes the event loop for consumers that schedule their own
// tasks (keep-alive timers, deferred teardown).
func (e *Engine) Loop() *reactor.Loop { return e.loop }

// Pool exposes the shared byte pool.
func (e *Engine) Pool() *pool.BytePool { return e.pool }

// Dial opens a client connection to addr ("host|port" or "host:port").
// Setup errors are returned synchronously; every later outcome arrives
// through h's hooks on the event loop.
func (e *Engine) Dial(addr string, h protocol.Handler) (*protocol.Conn, error) {
	if addr == "" || h == nil {
		return nil, api.ErrInvalidArgument
	}
	conn := e.newConn(e.dialer, h)
	ok := make(chan bool, 1)
	e.loop.Post(func() {
		if b, isBinder := h.(protocol.Binder); isBinder {
			b.Bind(conn)
		}
		ok <- conn.Open(addr, e.cfg.ConnectTimeout, e.cfg.RWTimeout)
	})
	if !<-ok {
		return nil, api.ErrInvalidArgument
	}
	return conn, nil
}

// Adopt takes over an accepted net.Conn, the server-side peer path. If
// TLS is configured the server handshake runs before the connection is
// declared open.
func (e *Engine) Adopt(nc net.Conn, h protocol.Handler) (*protocol.Conn, error) {
	if nc == nil || h == nil {
		return nil, api.ErrInvalidArgument
	}
	t := transport.Adopt(e.loop, nc, e.pool, transport.Options{
		TLS:       e.cfg.TLS,
		RWTimeout: e.cfg.RWTimeout,
		ChunkSize: e.cfg.ReadChunkSize,
	})
	conn := e.newConn(nil, h)
	ok := make(chan bool, 1)
	e.loop.Post(func() {
		if b, isBinder := h.(protocol.Binder); isBinder {
			b.Bind(conn)
		}
		ok <- conn.Adopt(t)
	})
	if !<-ok {
		return nil, api.ErrInvalidArgument
	}
	return conn, nil
}

// Shutdown stops the event loop after draining pending callbacks.
// Connections still open are abandoned; close them first for an orderly
// teardown.
func (e *Engine) Shutdown() {
	e.loop.Shutdown()
}

func (e *Engine) newConn(d api.Dialer, h protocol.Handler) *protocol.Conn {
	conn := protocol.NewConn(e.loop, d, e.pool, h).
		SetSNIPrefix(e.cfg.SNIPrefix).
		SetSNISuffix(e.cfg.SNISuffix)
	if e.cfg.TLS != nil {
		conn.SetTLSConfig(e.cfg.TLS)
	}
	if e.cfg.MaxPayload > 0 {
		conn.SetMaxPayload(e.cfg.MaxPayload)
	}
	return conn
}
