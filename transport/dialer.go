// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT
//
// Asynchronous dial path: resolve, connect, then hand over the link.
// Each stage reports through the callback on the event loop; at most one
// operation per dial is outstanding at any moment.

package transport

import (
	"context"
	"errors"
	"net"
	"sync"

	"github.com/momentics/hioload-mqtt/api"
	"github.com/momentics/hioload-mqtt/pool"
	"github.com/momentics/hioload-mqtt/reactor"
)

// Dialer implements api.Dialer over the net package.
type Dialer struct {
	loop      *reactor.Loop
	pool      *pool.BytePool
	chunkSize int
}

// NewDialer constructs a dialer posting completions to loop.
func NewDialer(loop *reactor.Loop, bp *pool.BytePool, chunkSize int) *Dialer {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Dialer{loop: loop, pool: bp, chunkSize: chunkSize}
}

// Dial implements api.Dialer.
func (d *Dialer) Dial(addr string, cfg api.DialConfig, cb api.DialCallback) {
	go d.dial(addr, cfg, cb)
}

func (d *Dialer) dial(addr string, cfg api.DialConfig, cb api.DialCallback) {
	host, port, err := api.SplitAddr(addr)
	if err != nil {
		d.loop.Post(func() { cb.OnResolveFailed(err) })
		return
	}

	ctx := context.Background()
	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}

	// The Go resolver may fan queries out; record the first name server
	// it actually talked to.
	var nsMu sync.Mutex
	var nsAddr string
	res := &net.Resolver{
		PreferGo: true,
		Dial: func(ctx context.Context, network, address string) (net.Conn, error) {
			nsMu.Lock()
			if nsAddr == "" {
				nsAddr = address
			}
			nsMu.Unlock()
			var nd net.Dialer
			return nd.DialContext(ctx, network, address)
		},
	}

	ips, rerr := res.LookupHost(ctx, host)
	if rerr != nil || len(ips) == 0 {
		if rerr == nil {
			rerr = api.NewError(api.ErrCodeTransport, "no addresses for host")
		}
		d.loop.Post(func() { cb.OnResolveFailed(rerr) })
		return
	}
	serverAddr := net.JoinHostPort(ips[0], port)
	nsMu.Lock()
	ns := nsAddr
	nsMu.Unlock()
	d.loop.Post(func() { cb.OnResolved(ns, serverAddr) })

	var nd net.Dialer
	nc, cerr := nd.DialContext(ctx, "tcp", serverAddr)
	if cerr != nil {
		if isTimeout(cerr) {
			d.loop.Post(cb.OnConnectTimeout)
		} else {
			d.loop.Post(func() { cb.OnConnectFailed(cerr) })
		}
		return
	}
	applySockOpts(nc)

	t := newNetConn(d.loop, nc, d.pool, Options{
		TLS:        cfg.TLS,
		ServerName: cfg.ServerName,
		RWTimeout:  cfg.RWTimeout,
		ChunkSize:  d.chunkSize,
	}, true)
	d.loop.Post(func() { cb.OnConnected(t) })
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
