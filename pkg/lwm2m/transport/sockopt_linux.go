//go:build linux

package transport

import (
	"net"

	"golang.org/x/sys/unix"
)

// applyReuseOptions sets SO_REUSEADDR and SO_REUSEPORT on conn's
// underlying file descriptor so a server can rebind its last ephemeral
// port across suspend/bring_online cycles without waiting out
// TIME_WAIT.
func applyReuseOptions(conn *net.UDPConn) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return
	}
	_ = raw.Control(func(fd uintptr) {
		_ = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
		_ = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
	})
}
