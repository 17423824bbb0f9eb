package protocol_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/momentics/hioload-mqtt/api"
	"github.com/momentics/hioload-mqtt/fake"
	"github.com/momentics/hioload-mqtt/pool"
	"github.com/momentics/hioload-mqtt/protocol"
	"github.com/momentics/hioload-mqtt/reactor"
)

// recorder implements protocol.Handler, recording every hook invocation
// in order. Verdict fields script the veto behavior. All mutation
// happens on the event loop; tests read after an await barrier.
type recorder struct {
	conn *protocol.Conn

	vetoOpen     bool
	vetoHeaderAt int // veto the Nth header, 0 = never
	vetoBodyAt   int // veto the Nth body, 0 = never
	rearmTimeout bool

	headers int
	bodies  int
	events  []string
}

func (r *recorder) ev(s string) { r.events = append(r.events, s) }

func (r *recorder) Bind(c *protocol.Conn) { r.conn = c }

func (r *recorder) OnOpen() bool {
	r.ev("open")
	return !r.vetoOpen
}

func (r *recorder) OnHeader(h *protocol.Header) bool {
	r.headers++
	r.ev(fmt.Sprintf("hdr %s %d", h.Type, h.RemainingLength))
	return r.vetoHeaderAt == 0 || r.headers != r.vetoHeaderAt
}

func (r *recorder) OnBody(f *protocol.Frame) bool {
	r.bodies++
	r.ev(fmt.Sprintf("body %q", f.Payload))
	return r.vetoBodyAt == 0 || r.bodies != r.vetoBodyAt
}

func (r *recorder) OnReadTimeout() bool {
	r.ev("read-timeout")
	return r.rearmTimeout
}

func (r *recorder) OnResolveFailed(error) { r.ev("resolve-failed") }
func (r *recorder) OnConnectTimeout()     { r.ev("connect-timeout") }
func (r *recorder) OnConnectFailed(error) { r.ev("connect-failed") }
func (r *recorder) OnDisconnect()         { r.ev("disconnect") }

// await flushes the loop: returns once every previously posted task and
// its deferred work has run.
func await(l *reactor.Loop) {
	done := make(chan struct{})
	l.Post(func() { close(done) })
	<-done
}

func newLoop(t *testing.T) *reactor.Loop {
	t.Helper()
	l := reactor.NewLoop()
	go l.Run()
	t.Cleanup(l.Shutdown)
	return l
}

// dialLink wires a connection through the scripted dialer and returns
// it after the dial path ran to completion.
func dialLink(t *testing.T, loop *reactor.Loop, fd *fake.Dialer, r *recorder) *protocol.Conn {
	t.Helper()
	conn := protocol.NewConn(loop, fd, pool.NewBytePool(), r)
	ok := make(chan bool, 1)
	loop.Post(func() {
		r.Bind(conn)
		ok <- conn.Open("broker.example|1883", time.Second, time.Second)
	})
	if !<-ok {
		t.Fatal("Open returned false for a valid dial")
	}
	return conn
}

func succeedingDialer(ft *fake.Transport) *fake.Dialer {
	return &fake.Dialer{
		Outcome:    fake.DialSucceed,
		NSAddr:     "10.0.0.53|53",
		ServerAddr: "192.0.2.10|1883",
		Transport:  ft,
	}
}

// End-to-end client scenario: dial "broker.example|1883", then the
// peer's frame 30 03 41 42 43 arrives split across three deliveries.
// The header hook fires once the remaining length completes (delivery
// 2), the body hook once the payload completes (delivery 3).
func TestDialScenarioChunkedFrame(t *testing.T) {
	loop := newLoop(t)
	ft := fake.NewTransport()
	r := &recorder{}
	conn := dialLink(t, loop, succeedingDialer(ft), r)
	await(loop)

	if got := r.events; len(got) != 1 || got[0] != "open" {
		t.Fatalf("after dial: events = %v", got)
	}
	if conn.State() != protocol.StateAwaitingFrame {
		t.Fatalf("state = %v, want AWAITING_FRAME", conn.State())
	}
	if conn.NSAddr() != "10.0.0.53|53" || conn.ServerAddr() != "192.0.2.10|1883" {
		t.Fatalf("resolved addrs = %q / %q", conn.NSAddr(), conn.ServerAddr())
	}

	loop.Post(func() { ft.DeliverData([]byte{0x30}) })
	await(loop)
	if len(r.events) != 1 {
		t.Fatalf("after delivery 1: events = %v", r.events)
	}

	loop.Post(func() { ft.DeliverData([]byte{0x03, 0x41}) })
	await(loop)
	if len(r.events) != 2 || r.events[1] != "hdr PUBLISH 3" {
		t.Fatalf("after delivery 2: events = %v", r.events)
	}

	loop.Post(func() { ft.DeliverData([]byte{0x42, 0x43}) })
	await(loop)
	if len(r.events) != 3 || r.events[2] != `body "ABC"` {
		t.Fatalf("after delivery 3: events = %v", r.events)
	}
}

// Header dispatch for frame N precedes body dispatch for frame N, which
// precedes header dispatch for frame N+1, regardless of chunking.
func TestFrameOrderingAcrossDeliveries(t *testing.T) {
	var wire []byte
	wire = append(wire, 0x30, 0x02, 'h', 'i')
	wire = append(wire, 0xC0, 0x00)
	wire = append(wire, 0x30, 0x01, 'x')
	want := []string{
		"open",
		"hdr PUBLISH 2", `body "hi"`,
		"hdr PINGREQ 0", `body ""`,
		"hdr PUBLISH 1", `body "x"`,
	}
	for split := 0; split <= len(wire); split++ {
		loop := newLoop(t)
		ft := fake.NewTransport()
		r := &recorder{}
		dialLink(t, loop, succeedingDialer(ft), r)
		head, tail := wire[:split], wire[split:]
		loop.Post(func() {
			ft.DeliverData(head)
			ft.DeliverData(tail)
		})
		await(loop)
		if len(r.events) != len(want) {
			t.Fatalf("split %d: events = %v", split, r.events)
		}
		for i := range want {
			if r.events[i] != want[i] {
				t.Fatalf("split %d event %d: got %q want %q", split, i, r.events[i], want[i])
			}
		}
	}
}

// A header veto rejects the frame: no body dispatch, no further frames,
// and the disconnect hook fires.
func TestHeaderVetoStopsProcessing(t *testing.T) {
	loop := newLoop(t)
	ft := fake.NewTransport()
	r := &recorder{vetoHeaderAt: 1}
	conn := dialLink(t, loop, succeedingDialer(ft), r)
	loop.Post(func() {
		ft.DeliverData([]byte{0x30, 0x03, 'A', 'B', 'C', 0xC0, 0x00})
	})
	await(loop)
	want := []string{"open", "hdr PUBLISH 3", "disconnect"}
	assertEvents(t, r.events, want)
	if conn.State() != protocol.StateClosed {
		t.Fatalf("state = %v, want CLOSED", conn.State())
	}
}

// A body veto closes the connection before any later frame is decoded.
func TestBodyVetoStopsProcessing(t *testing.T) {
	loop := newLoop(t)
	ft := fake.NewTransport()
	r := &recorder{vetoBodyAt: 1}
	dialLink(t, loop, succeedingDialer(ft), r)
	loop.Post(func() {
		ft.DeliverData([]byte{0x30, 0x01, 'a', 0x30, 0x01, 'b'})
	})
	await(loop)
	assertEvents(t, r.events, []string{"open", "hdr PUBLISH 1", `body "a"`, "disconnect"})
}

// Close twice, plus a late transport-closed event, yields exactly one
// disconnect hook invocation.
func TestIdempotentClose(t *testing.T) {
	loop := newLoop(t)
	ft := fake.NewTransport()
	r := &recorder{}
	conn := dialLink(t, loop, succeedingDialer(ft), r)
	loop.Post(func() {
		conn.Close()
		conn.Close()
		ft.DeliverClosed(errors.New("late"))
	})
	await(loop)
	assertEvents(t, r.events, []string{"open", "disconnect"})
	if conn.Err() != nil {
		t.Fatalf("locally closed connection recorded error %v", conn.Err())
	}
}

// Malformed remaining length is fatal: disconnect with a protocol
// classification, no partial dispatch.
func TestMalformedRemainingLengthDisconnects(t *testing.T) {
	loop := newLoop(t)
	ft := fake.NewTransport()
	r := &recorder{}
	conn := dialLink(t, loop, succeedingDialer(ft), r)
	loop.Post(func() {
		ft.DeliverData([]byte{0x30, 0xFF, 0xFF, 0xFF, 0xFF})
	})
	await(loop)
	assertEvents(t, r.events, []string{"open", "disconnect"})
	if api.CodeOf(conn.Err()) != api.ErrCodeProtocol {
		t.Fatalf("err = %v, want protocol classification", conn.Err())
	}
	if !errors.Is(conn.Err(), api.ErrMalformedFrame) {
		t.Fatalf("err = %v, want ErrMalformedFrame in chain", conn.Err())
	}
}

// The read-timeout hook's verdict decides between re-arming the wait
// and closing.
func TestReadTimeoutRearmAndClose(t *testing.T) {
	loop := newLoop(t)
	ft := fake.NewTransport()
	r := &recorder{rearmTimeout: true}
	conn := dialLink(t, loop, succeedingDialer(ft), r)

	loop.Post(func() { ft.DeliverTimeout() })
	await(loop)
	assertEvents(t, r.events, []string{"open", "read-timeout"})
	if ft.Rearms() != 1 {
		t.Fatalf("rearms = %d, want 1", ft.Rearms())
	}
	if conn.State() != protocol.StateAwaitingFrame {
		t.Fatalf("state = %v after re-arm", conn.State())
	}

	loop.Post(func() {
		r.rearmTimeout = false
		ft.DeliverTimeout()
	})
	await(loop)
	assertEvents(t, r.events, []string{"open", "read-timeout", "read-timeout", "disconnect"})
	if conn.State() != protocol.StateClosed {
		t.Fatalf("state = %v, want CLOSED", conn.State())
	}
}

// Dial-path failures fire their specific hook, transition to CLOSED and
// never fire disconnect (the link was never open).
func TestDialFailureHooks(t *testing.T) {
	cases := []struct {
		outcome fake.DialOutcome
		event   string
	}{
		{fake.DialResolveFail, "resolve-failed"},
		{fake.DialConnectTimeout, "connect-timeout"},
		{fake.DialConnectFail, "connect-failed"},
	}
	for _, c := range cases {
		loop := newLoop(t)
		fd := &fake.Dialer{Outcome: c.outcome, Err: errors.New("scripted")}
		r := &recorder{}
		conn := dialLink(t, loop, fd, r)
		await(loop)
		assertEvents(t, r.events, []string{c.event})
		if conn.State() != protocol.StateClosed {
			t.Fatalf("%s: state = %v, want CLOSED", c.event, conn.State())
		}
	}
}

// A failed TLS handshake reports through the connect-failed hook; the
// connection was never declared open, so no disconnect fires.
func TestHandshakeFailure(t *testing.T) {
	loop := newLoop(t)
	ft := fake.NewTransport()
	ft.HandshakeErr = errors.New("bad certificate")
	r := &recorder{}
	conn := dialLink(t, loop, succeedingDialer(ft), r)
	await(loop)
	assertEvents(t, r.events, []string{"connect-failed"})
	if conn.State() != protocol.StateClosed {
		t.Fatalf("state = %v, want CLOSED", conn.State())
	}
}

// An open veto aborts before any frame is read; disconnect still fires
// because the connection had been declared open.
func TestOpenVeto(t *testing.T) {
	loop := newLoop(t)
	ft := fake.NewTransport()
	r := &recorder{vetoOpen: true}
	conn := dialLink(t, loop, succeedingDialer(ft), r)
	await(loop)
	assertEvents(t, r.events, []string{"open", "disconnect"})
	if conn.State() != protocol.StateClosed {
		t.Fatalf("state = %v, want CLOSED", conn.State())
	}
	if ft.Reading() {
		t.Fatal("read pump armed despite open veto")
	}
}

// Adopt drives the server path: handshake, open, frames.
func TestAdoptPath(t *testing.T) {
	loop := newLoop(t)
	ft := fake.NewTransport()
	r := &recorder{}
	conn := protocol.NewConn(loop, nil, pool.NewBytePool(), r)
	ok := make(chan bool, 1)
	loop.Post(func() {
		r.Bind(conn)
		ok <- conn.Adopt(ft)
	})
	if !<-ok {
		t.Fatal("Adopt rejected a valid handle")
	}
	loop.Post(func() { ft.DeliverData([]byte{0xC0, 0x00}) })
	await(loop)
	assertEvents(t, r.events, []string{"open", "hdr PINGREQ 0", `body ""`})

	again := make(chan bool, 1)
	loop.Post(func() {
		again <- conn.Adopt(ft) || conn.Adopt(nil)
	})
	if <-again {
		t.Fatal("re-adoption accepted")
	}
}

// Send is only accepted while open, and the encoded bytes reach the
// transport.
func TestSendLifecycle(t *testing.T) {
	loop := newLoop(t)
	ft := fake.NewTransport()
	r := &recorder{}
	conn := dialLink(t, loop, succeedingDialer(ft), r)

	sent := make(chan bool, 1)
	loop.Post(func() {
		sent <- conn.Send(&protocol.RawMessage{Type: protocol.PINGREQ})
	})
	if !<-sent {
		t.Fatal("Send rejected while open")
	}
	w := ft.Written()
	if len(w) != 1 || len(w[0]) != 2 || w[0][0] != 0xC0 || w[0][1] != 0x00 {
		t.Fatalf("written = %v", w)
	}

	loop.Post(func() {
		conn.Close()
		sent <- conn.Send(&protocol.RawMessage{Type: protocol.PINGREQ})
	})
	if <-sent {
		t.Fatal("Send accepted while closing")
	}
}

// The SNI name handed to the dialer is prefix + host + suffix, with an
// explicit host override taking precedence over the dialed host.
func TestSNIComposition(t *testing.T) {
	loop := newLoop(t)
	fd := succeedingDialer(fake.NewTransport())
	r := &recorder{}
	conn := protocol.NewConn(loop, fd, pool.NewBytePool(), r)
	conn.SetHost("device-7.example").SetSNIPrefix("edge-").SetSNISuffix(".iot")
	ok := make(chan bool, 1)
	loop.Post(func() {
		ok <- conn.Open("broker.example|8883", time.Second, time.Second)
	})
	if !<-ok {
		t.Fatal("Open returned false")
	}
	await(loop)
	if fd.LastCfg.ServerName != "edge-device-7.example.iot" {
		t.Fatalf("ServerName = %q", fd.LastCfg.ServerName)
	}
	if fd.LastAddr != "broker.example|8883" {
		t.Fatalf("dialed %q", fd.LastAddr)
	}
}

// Without an override the dialed host is the SNI base.
func TestSNIDefaultsToDialedHost(t *testing.T) {
	loop := newLoop(t)
	fd := succeedingDialer(fake.NewTransport())
	r := &recorder{}
	conn := protocol.NewConn(loop, fd, pool.NewBytePool(), r)
	ok := make(chan bool, 1)
	loop.Post(func() {
		ok <- conn.Open("broker.example|8883", time.Second, time.Second)
	})
	if !<-ok {
		t.Fatal("Open returned false")
	}
	await(loop)
	if fd.LastCfg.ServerName != "broker.example" {
		t.Fatalf("ServerName = %q", fd.LastCfg.ServerName)
	}
}

// Open rejects bad arguments synchronously; the caller keeps ownership.
func TestOpenSetupErrors(t *testing.T) {
	loop := newLoop(t)
	r := &recorder{}
	conn := protocol.NewConn(loop, &fake.Dialer{}, pool.NewBytePool(), r)
	if conn.Open("", time.Second, time.Second) {
		t.Fatal("empty address accepted")
	}
	if conn.Open("no-port-here", time.Second, time.Second) {
		t.Fatal("address without port accepted")
	}
	noDialer := protocol.NewConn(loop, nil, pool.NewBytePool(), r)
	if noDialer.Open("broker.example|1883", time.Second, time.Second) {
		t.Fatal("dial accepted without a dialer")
	}
	if len(r.events) != 0 {
		t.Fatalf("setup errors fired hooks: %v", r.events)
	}
}

func assertEvents(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event %d: got %q, want %q", i, got[i], want[i])
		}
	}
}
