// File: protocol/conn.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Conn owns the full lifecycle of one MQTT transport connection: dial or
// adopt, optional TLS handshake, steady-state incremental decode, send,
// and orderly or abrupt teardown.
//
// Conn is loop-affine: every method and hook runs on the event loop
// goroutine, one callback at a time. There is no lock discipline because
// there is no concurrent mutation; the loop's serialization contract is
// the entire synchronization mechanism.

package protocol

import (
	"crypto/tls"
	"time"

	"github.com/momentics/hioload-mqtt/api"
	"github.com/momentics/hioload-mqtt/pool"
	"github.com/momentics/hioload-mqtt/reactor"
)

// State is the connection lifecycle state.
type State int

const (
	StateIdle State = iota
	StateResolving
	StateConnecting
	StateHandshaking
	StateOpen
	StateAwaitingFrame
	StateClosed
)

var stateNames = [...]string{"IDLE", "RESOLVING", "CONNECTING", "TLS_HANDSHAKING", "OPEN", "AWAITING_FRAME", "CLOSED"}

// String returns the state mnemonic.
func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "UNKNOWN"
}

// Conn is one MQTT transport connection, client or server side.
type Conn struct {
	loop    *reactor.Loop
	dialer  api.Dialer
	buf     *pool.BytePool
	handler Handler
	dec     *Decoder

	tlsConf   *tls.Config
	host      string
	sniPrefix string
	sniSuffix string

	rwTimeout time.Duration

	state     State
	transport api.Transport
	closing   bool
	opened    bool
	discFired bool
	reading   bool
	err       error

	nsAddr   string
	servAddr string
}

// NewConn constructs a connection bound to loop. dialer may be nil for
// the server path; handler must not be nil.
func NewConn(loop *reactor.Loop, dialer api.Dialer, bp *pool.BytePool, h Handler) *Conn {
	return &Conn{
		loop:    loop,
		dialer:  dialer,
		buf:     bp,
		handler: h,
		dec:     NewDecoder(bp, 0),
	}
}

// SetTLSConfig enables TLS for this connection. Absence means plaintext.
func (c *Conn) SetTLSConfig(cfg *tls.Config) *Conn {
	c.tlsConf = cfg
	return c
}

// SetHost overrides the host name presented as SNI during the TLS
// handshake. Defaults to the dialed host.
func (c *Conn) SetHost(host string) *Conn {
	c.host = host
	return c
}

// SetSNIPrefix prepends a fragment to the SNI host name.
func (c *Conn) SetSNIPrefix(prefix string) *Conn {
	c.sniPrefix = prefix
	return c
}

// SetSNISuffix appends a fragment to the SNI host name.
func (c *Conn) SetSNISuffix(suffix string) *Conn {
	c.sniSuffix = suffix
	return c
}

// SetMaxPayload bounds the accepted remaining length of inbound frames.
// Must be called before any bytes arrive.
func (c *Conn) SetMaxPayload(n int) *Conn {
	c.dec = NewDecoder(c.buf, n)
	return c
}

// State returns the current lifecycle state.
func (c *Conn) State() State { return c.state }

// Err returns the first fatal error recorded for this connection, nil
// for a clean local close.
func (c *Conn) Err() error { return c.err }

// NSAddr returns the name server that answered the dial-path resolution,
// empty before resolution completes.
func (c *Conn) NSAddr() string { return c.nsAddr }

// ServerAddr returns the resolved peer address, empty before resolution
// completes.
func (c *Conn) ServerAddr() string { return c.servAddr }

// Transport returns the underlying handle, nil unless connected.
func (c *Conn) Transport() api.Transport { return c.transport }

// Open dials addr ("host|port" or "host:port") asynchronously. A false
// return means an immediately detectable setup error and leaves cleanup
// with the caller; after a true return all further lifecycle reporting
// happens through the handler hooks.
func (c *Conn) Open(addr string, connTimeout, rwTimeout time.Duration) bool {
	if c.state != StateIdle || c.dialer == nil || addr == "" {
		return false
	}
	host, _, err := api.SplitAddr(addr)
	if err != nil {
		return false
	}
	if c.host == "" {
		c.host = host
	}
	c.rwTimeout = rwTimeout
	c.state = StateResolving
	c.dialer.Dial(addr, api.DialConfig{
		ConnectTimeout: connTimeout,
		RWTimeout:      rwTimeout,
		TLS:            c.tlsConf,
		ServerName:     c.serverName(),
	}, c)
	return true
}

// Adopt takes over an already-established transport handle, the server
// path. The TLS handshake, if the handle carries one, runs before the
// connection is declared open. A false return rejects the adoption and
// leaves the handle with the caller.
func (c *Conn) Adopt(t api.Transport) bool {
	if t == nil || c.state != StateIdle {
		return false
	}
	c.transport = t
	c.state = StateHandshaking
	t.Handshake(c.handshakeDone)
	return true
}

// Send serializes m and hands it to the transport. True means accepted
// for asynchronous transmission only; there is no delivery guarantee
// beyond the transport's own buffering.
func (c *Conn) Send(m Message) bool {
	if m == nil || c.closing || c.transport == nil {
		return false
	}
	if c.state != StateOpen && c.state != StateAwaitingFrame {
		return false
	}
	wire := c.buf.Get(256)[:0]
	wire, err := m.Encode(wire)
	if err != nil {
		c.buf.Put(wire)
		return false
	}
	err = c.transport.Write(wire)
	c.buf.Put(wire)
	return err == nil
}

// Close requests asynchronous teardown. Safe to call from inside any
// hook; actual transport teardown is confirmed by a later closed event,
// never inside the current callback. Idempotent.
func (c *Conn) Close() {
	if c.state == StateClosed || c.closing {
		return
	}
	if c.state == StateIdle {
		// never opened, nothing in flight
		c.state = StateClosed
		return
	}
	c.closing = true
	if c.transport != nil {
		c.teardown()
		return
	}
	// resolve or connect still in flight: its completion callback
	// observes closing and finishes the teardown
}

// teardown closes the transport handle. When the read pump is armed the
// CLOSED transition waits for its closed event; otherwise nobody else
// will deliver one, so completion is posted to run after the current
// callback unwinds.
func (c *Conn) teardown() {
	if c.transport != nil {
		_ = c.transport.Close()
	}
	if !c.reading {
		c.loop.Post(c.finishClose)
	}
}

// serverName composes the SNI name: prefix + host + suffix.
func (c *Conn) serverName() string {
	return c.sniPrefix + c.host + c.sniSuffix
}

// --- api.DialCallback ---

// OnResolved records the resolver and peer addresses.
func (c *Conn) OnResolved(nsAddr, serverAddr string) {
	c.nsAddr = nsAddr
	c.servAddr = serverAddr
	if !c.closing {
		c.state = StateConnecting
	}
}

// OnResolveFailed terminates the dial path.
func (c *Conn) OnResolveFailed(err error) {
	c.failDial(api.NewError(api.ErrCodeTransport, "name resolution failed").WithCause(err),
		func() { c.handler.OnResolveFailed(err) })
}

// OnConnectTimeout terminates the dial path.
func (c *Conn) OnConnectTimeout() {
	c.failDial(api.NewError(api.ErrCodeTimeout, "connect timed out").WithCause(api.ErrOperationTimeout),
		c.handler.OnConnectTimeout)
}

// OnConnectFailed terminates the dial path.
func (c *Conn) OnConnectFailed(err error) {
	c.failDial(api.NewError(api.ErrCodeTransport, "connect failed").WithCause(err),
		func() { c.handler.OnConnectFailed(err) })
}

// OnConnected receives the established link and drives the optional TLS
// handshake before declaring the connection open.
func (c *Conn) OnConnected(t api.Transport) {
	c.transport = t
	if c.closing {
		c.teardown()
		return
	}
	c.state = StateHandshaking
	t.Handshake(c.handshakeDone)
}

func (c *Conn) failDial(err error, hook func()) {
	if c.state == StateClosed {
		return
	}
	c.err = err
	c.state = StateClosed
	if !c.closing {
		hook()
	}
	c.closing = true
}

func (c *Conn) handshakeDone(err error) {
	if c.closing {
		c.teardown()
		return
	}
	if err != nil {
		c.err = api.NewError(api.ErrCodeTransport, "tls handshake failed").WithCause(err)
		c.handler.OnConnectFailed(err)
		c.closing = true
		c.teardown()
		return
	}
	c.openDone()
}

// openDone declares the connection open and arms frame reception.
func (c *Conn) openDone() {
	c.opened = true
	c.state = StateOpen
	if !c.handler.OnOpen() {
		c.Close()
		return
	}
	c.messageAwait()
}

// messageAwait arms the wait for the next frame's fixed header byte.
func (c *Conn) messageAwait() {
	c.state = StateAwaitingFrame
	if !c.reading {
		c.reading = true
		c.transport.StartRead(c)
	}
}

// --- api.EventSink ---

// OnTransportData drives the decoder over one delivered chunk, possibly
// dispatching several completed frames in arrival order. Header dispatch
// for frame N precedes body dispatch for frame N, which precedes header
// dispatch for frame N+1.
func (c *Conn) OnTransportData(p []byte) {
	if c.closing || c.state != StateAwaitingFrame {
		return
	}
	for {
		n, hdr, frame, err := c.dec.Decode(p)
		p = p[n:]
		if err != nil {
			// corrupted stream cannot be resynchronized
			c.err = err
			c.dec.Reset()
			c.Close()
			return
		}
		switch {
		case hdr != nil:
			if !c.handler.OnHeader(hdr) {
				c.dec.Reset()
				c.Close()
				return
			}
		case frame != nil:
			ok := c.handler.OnBody(frame)
			c.dec.Release(frame)
			if !ok {
				c.Close()
				return
			}
		default:
			// chunk exhausted, state persists for the next delivery
			return
		}
		if c.closing || c.state != StateAwaitingFrame {
			return
		}
	}
}

// OnTransportReadTimeout consults the consumer: re-arm or close.
func (c *Conn) OnTransportReadTimeout() {
	if c.closing || c.state != StateAwaitingFrame {
		return
	}
	if c.handler.OnReadTimeout() {
		c.transport.RearmRead()
		return
	}
	c.Close()
}

// OnTransportClosed finishes teardown. Fires the disconnect hook exactly
// once if the connection had been declared open.
func (c *Conn) OnTransportClosed(err error) {
	if c.err == nil && err != nil && !c.closing {
		c.err = api.NewError(api.ErrCodeTransport, "transport closed").WithCause(err)
	}
	c.finishClose()
}

func (c *Conn) finishClose() {
	if c.state == StateClosed {
		return
	}
	c.dec.Reset()
	c.transport = nil
	c.closing = true
	c.state = StateClosed
	if c.opened && !c.discFired {
		c.discFired = true
		c.handler.OnDisconnect()
	}
}

// Destroy schedules any terminal cleanup to run after the currently
// executing callback unwinds, so a consumer may request destruction from
// inside its own hook without invalidating state the callback stack
// still references.
func (c *Conn) Destroy(cleanup func()) {
	c.loop.Defer(func() {
		c.dec.Reset()
		if cleanup != nil {
			cleanup()
		}
	})
}
