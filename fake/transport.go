// Package fake
// Author: momentics <momentics@gmail.com>
//
// Fake implementations for testing and development. Provides
// predictable, controllable behavior for the transport adapter
// interfaces without touching the network.

package fake

import (
	"sync"

	"github.com/momentics/hioload-mqtt/api"
)

// Transport is a scripted implementation of api.Transport. Peer input is
// injected with DeliverData / DeliverTimeout / DeliverClosed; outbound
// writes are recorded. By default every callback runs inline; set Exec
// to route callbacks through an event loop instead.
type Transport struct {
	mu sync.Mutex

	Exec         func(func()) // callback executor; nil means inline
	HandshakeErr error        // scripted handshake outcome
	WriteErr     error        // scripted write rejection

	sink       api.EventSink
	written    [][]byte
	closed     bool
	closedSent bool
	rearms     int
	local      string
	remote     string
}

// NewTransport creates a fake transport with inline callback execution.
func NewTransport() *Transport {
	return &Transport{local: "local|0", remote: "peer|0"}
}

func (t *Transport) exec(fn func()) {
	if t.Exec != nil {
		t.Exec(fn)
		return
	}
	fn()
}

// Handshake implements api.Transport.
func (t *Transport) Handshake(done func(err error)) {
	err := t.HandshakeErr
	t.exec(func() { done(err) })
}

// StartRead implements api.Transport.
func (t *Transport) StartRead(sink api.EventSink) {
	t.mu.Lock()
	if t.sink == nil {
		t.sink = sink
	}
	t.mu.Unlock()
}

// RearmRead implements api.Transport.
func (t *Transport) RearmRead() {
	t.mu.Lock()
	t.rearms++
	t.mu.Unlock()
}

// Write implements api.Transport, recording the written bytes.
func (t *Transport) Write(p []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return api.ErrTransportClosed
	}
	if t.WriteErr != nil {
		return t.WriteErr
	}
	cp := make([]byte, len(p))
	copy(cp, p)
	t.written = append(t.written, cp)
	return nil
}

// Close implements api.Transport. When reading was armed, the closed
// event is delivered through the executor, mirroring the asynchronous
// confirmation of the real adapter.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	sink := t.sink
	send := sink != nil && !t.closedSent
	if send {
		t.closedSent = true
	}
	t.mu.Unlock()
	if send {
		t.exec(func() { sink.OnTransportClosed(nil) })
	}
	return nil
}

// LocalAddr implements api.Transport.
func (t *Transport) LocalAddr() string { return t.local }

// RemoteAddr implements api.Transport.
func (t *Transport) RemoteAddr() string { return t.remote }

// DeliverData injects one chunk of peer bytes.
func (t *Transport) DeliverData(p []byte) {
	t.mu.Lock()
	sink := t.sink
	t.mu.Unlock()
	if sink == nil {
		return
	}
	cp := make([]byte, len(p))
	copy(cp, p)
	t.exec(func() { sink.OnTransportData(cp) })
}

// DeliverTimeout injects a read timeout event.
func (t *Transport) DeliverTimeout() {
	t.mu.Lock()
	sink := t.sink
	t.mu.Unlock()
	if sink == nil {
		return
	}
	t.exec(func() { sink.OnTransportReadTimeout() })
}

// DeliverClosed injects a peer-side disconnect.
func (t *Transport) DeliverClosed(err error) {
	t.mu.Lock()
	sink := t.sink
	send := sink != nil && !t.closedSent
	if send {
		t.closedSent = true
	}
	t.mu.Unlock()
	if send {
		t.exec(func() { sink.OnTransportClosed(err) })
	}
}

// Written returns a snapshot of the bytes accepted by Write.
func (t *Transport) Written() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([][]byte, len(t.written))
	copy(out, t.written)
	return out
}

// Rearms returns how many times RearmRead was invoked.
func (t *Transport) Rearms() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rearms
}

// Closed reports whether Close was called.
func (t *Transport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// Reading reports whether StartRead has armed a sink.
func (t *Transport) Reading() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sink != nil
}
