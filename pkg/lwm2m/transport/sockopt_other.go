//go:build !linux

package transport

import "net"

// applyReuseOptions is a no-op outside Linux; SO_REUSEPORT semantics
// differ enough across platforms that we only opt in where the pack's
// socket option usage is well understood.
func applyReuseOptions(_ *net.UDPConn) {}
