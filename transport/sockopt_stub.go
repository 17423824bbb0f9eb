//go:build !linux
// +build !linux

// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT
//
// Portable socket tuning for non-Linux platforms.

package transport

import (
	"net"
	"time"
)

func applySockOpts(conn net.Conn) {
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
		_ = tc.SetKeepAlive(true)
		_ = tc.SetKeepAlivePeriod(60 * time.Second)
	}
}
