// File: api/transport.go
// Author: momentics <momentics@gmail.com>
//
// Defines the transport adapter abstraction consumed by the connection
// engine: an established transport handle, the event sink it reports into,
// and the asynchronous dialer that produces handles for the client path.
//
// All completion callbacks are delivered on the owning event loop, one at
// a time per connection. That serialization contract is the only
// synchronization mechanism the engine relies on.

package api

import (
	"crypto/tls"
	"time"
)

// Transport is one established transport link as seen by the engine.
// Implementations must confirm Close asynchronously through the sink's
// OnTransportClosed event; Close itself never invokes the sink inline.
type Transport interface {
	// Handshake drives the TLS handshake if TLS is configured for this
	// handle, invoking done on the event loop when it finishes. For a
	// plaintext handle done(nil) is posted immediately.
	Handshake(done func(err error))

	// StartRead arms inbound delivery: chunks of peer bytes, read
	// timeouts and the closed notification are posted to sink. Chunk
	// sizing is the adapter's choice, not the engine's.
	StartRead(sink EventSink)

	// RearmRead resumes reading after a read timeout was reported and
	// the consumer elected to keep the connection alive.
	RearmRead()

	// Write queues p for asynchronous transmission. A nil return means
	// accepted by the transport, not flushed to the peer.
	Write(p []byte) error

	// Close shuts the link down. Idempotent; completion is reported via
	// OnTransportClosed exactly once.
	Close() error

	LocalAddr() string
	RemoteAddr() string
}

// EventSink receives transport events for one connection. Implemented by
// the connection state machine; all calls arrive on the event loop.
type EventSink interface {
	// OnTransportData delivers one chunk of peer bytes. The slice is
	// only valid for the duration of the call.
	OnTransportData(p []byte)

	// OnTransportReadTimeout reports that no bytes arrived within the
	// configured read/write timeout window.
	OnTransportReadTimeout()

	// OnTransportClosed reports that the link is gone: peer close,
	// transport error, or a locally requested Close. Fired exactly once.
	OnTransportClosed(err error)
}

// DialConfig carries the per-dial parameters of the client path.
type DialConfig struct {
	ConnectTimeout time.Duration // limit for resolve + connect combined
	RWTimeout      time.Duration // steady-state read/write timeout
	TLS            *tls.Config   // nil means plaintext
	ServerName     string        // SNI name presented during the handshake
}

// DialCallback receives the staged outcomes of an asynchronous dial.
// Exactly one of the failure callbacks or OnConnected terminates a dial.
type DialCallback interface {
	// OnResolved reports the name server used and the resolved peer
	// address before the connect attempt starts.
	OnResolved(nsAddr, serverAddr string)

	OnResolveFailed(err error)
	OnConnectTimeout()
	OnConnectFailed(err error)

	// OnConnected hands over the established (not yet handshaken) link.
	OnConnected(t Transport)
}

// Dialer resolves and connects asynchronously, reporting through cb on
// the event loop. At most one operation per dial is outstanding at any
// moment.
type Dialer interface {
	Dial(addr string, cfg DialConfig, cb DialCallback)
}
