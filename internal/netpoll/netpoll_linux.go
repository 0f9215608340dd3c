//go:build linux

// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package netpoll

import (
	"syscall"

	"golang.org/x/sys/unix"
)

func probe(raw syscall.RawConn) (readable, ok bool) {
	var (
		revents int16
		perr    error
	)
	cerr := raw.Control(func(fd uintptr) {
		fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN | unix.POLLRDHUP}}
		for {
			_, perr = unix.Poll(fds, 0)
			if perr != unix.EINTR {
				break
			}
		}
		revents = fds[0].Revents
	})
	if cerr != nil || perr != nil {
		return false, false
	}
	return revents&(unix.POLLIN|unix.POLLRDHUP|unix.POLLHUP|unix.POLLERR) != 0, true
}
