// File: api/addr.go
// Author: momentics <momentics@gmail.com>
//
// Address helpers shared by the engine and transport adapters. Peer
// addresses use the "host|port" form, with the conventional "host:port"
// accepted as well.

package api

import (
	"net"
	"strings"
)

// SplitAddr splits "host|port" or "host:port" into its parts. The "|"
// separator wins when both are present so IPv6 literals need no
// bracketing in the native form.
func SplitAddr(addr string) (host, port string, err error) {
	if i := strings.LastIndexByte(addr, '|'); i >= 0 {
		host, port = addr[:i], addr[i+1:]
		if host == "" || port == "" {
			return "", "", ErrInvalidArgument
		}
		return host, port, nil
	}
	host, port, serr := net.SplitHostPort(addr)
	if serr != nil {
		return "", "", ErrInvalidArgument
	}
	return host, port, nil
}

// JoinAddr composes the native "host|port" form.
func JoinAddr(host, port string) string {
	return host + "|" + port
}
