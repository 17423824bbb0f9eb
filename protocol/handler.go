// File: protocol/handler.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Consumer hook interface. Required hooks are OnOpen and OnBody; every
// optional hook has a default carried by NopHandler, so concrete client
// or server behaviors embed NopHandler and implement only what they
// need.

package protocol

// Handler receives lifecycle and protocol events for one connection.
// Hooks run on the event loop, strictly one at a time per connection,
// and may call Close on the connection they belong to.
type Handler interface {
	// OnOpen fires once the connection is established (after the TLS
	// handshake if one is configured). Returning false aborts the
	// connection before any frame is read.
	OnOpen() bool

	// OnBody delivers one fully decoded frame. The frame is borrowed
	// for the duration of the call; Clone it to retain. Returning false
	// closes the connection.
	OnBody(f *Frame) bool

	// OnHeader fires when a frame's fixed header (including remaining
	// length) has been parsed, before any payload has accumulated.
	// Returning false rejects the frame and closes the connection.
	OnHeader(h *Header) bool

	// OnReadTimeout fires when the read/write timeout elapses without
	// peer bytes. Returning true re-arms the wait; false closes.
	OnReadTimeout() bool

	// OnResolveFailed fires when name resolution fails on the dial path.
	OnResolveFailed(err error)

	// OnConnectTimeout fires when the connect attempt exceeds its
	// timeout.
	OnConnectTimeout()

	// OnConnectFailed fires when the connect attempt is refused or
	// errors, including a failed TLS handshake.
	OnConnectFailed(err error)

	// OnDisconnect fires exactly once when the transport link is gone,
	// whatever the cause.
	OnDisconnect()
}

// Binder is implemented by handlers that want a reference to their
// connection. Bind runs on the event loop before the dial or adoption
// starts, so it is always ordered before the first hook.
type Binder interface {
	Bind(c *Conn)
}

// NopHandler provides the default behavior of every optional hook.
// Embed it and implement OnOpen and OnBody.
type NopHandler struct{}

// OnHeader accepts every frame by default.
func (NopHandler) OnHeader(*Header) bool { return true }

// OnReadTimeout closes the connection by default.
func (NopHandler) OnReadTimeout() bool { return false }

func (NopHandler) OnResolveFailed(error) {}
func (NopHandler) OnConnectTimeout()     {}
func (NopHandler) OnConnectFailed(error) {}
func (NopHandler) OnDisconnect()         {}
