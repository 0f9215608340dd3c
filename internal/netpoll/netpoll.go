// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Package netpoll reports whether a connection has bytes waiting, so the
// engine can skip issuing reads on idle sockets.
package netpoll

import (
	"net"
	"syscall"
)

// Readable reports whether conn has inbound data or a pending hang-up.
// ok is false when the connection cannot be probed (TLS wrappers, pipes,
// unsupported platforms); callers should read unconditionally then.
func Readable(conn net.Conn) (readable, ok bool) {
	sc, isSys := conn.(syscall.Conn)
	if !isSys {
		return false, false
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return false, false
	}
	return probe(raw)
}
