// Author: momentics <momentics@gmail.com>
//
// Scripted dialer for exercising the client dial path without a
// network.

package fake

import "github.com/momentics/hioload-mqtt/api"

// DialOutcome selects which terminal callback a fake dial reports.
type DialOutcome int

const (
	DialSucceed DialOutcome = iota
	DialResolveFail
	DialConnectTimeout
	DialConnectFail
)

// Dialer is a scripted implementation of api.Dialer.
type Dialer struct {
	Outcome    DialOutcome
	Err        error        // cause for the failure outcomes
	NSAddr     string       // reported by OnResolved
	ServerAddr string       // reported by OnResolved
	Transport  *Transport   // handed over on DialSucceed
	Exec       func(func()) // callback executor; nil means inline

	LastAddr string
	LastCfg  api.DialConfig
}

func (d *Dialer) exec(fn func()) {
	if d.Exec != nil {
		d.Exec(fn)
		return
	}
	fn()
}

// Dial implements api.Dialer.
func (d *Dialer) Dial(addr string, cfg api.DialConfig, cb api.DialCallback) {
	d.LastAddr = addr
	d.LastCfg = cfg
	switch d.Outcome {
	case DialResolveFail:
		d.exec(func() { cb.OnResolveFailed(d.Err) })
	case DialConnectTimeout:
		d.exec(func() {
			cb.OnResolved(d.NSAddr, d.ServerAddr)
			cb.OnConnectTimeout()
		})
	case DialConnectFail:
		d.exec(func() {
			cb.OnResolved(d.NSAddr, d.ServerAddr)
			cb.OnConnectFailed(d.Err)
		})
	default:
		t := d.Transport
		if t == nil {
			t = NewTransport()
			d.Transport = t
		}
		d.exec(func() {
			cb.OnResolved(d.NSAddr, d.ServerAddr)
			cb.OnConnected(t)
		})
	}
}
