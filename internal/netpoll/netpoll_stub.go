//go:build !linux

// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package netpoll

import "syscall"

func probe(syscall.RawConn) (readable, ok bool) {
	return false, false
}
