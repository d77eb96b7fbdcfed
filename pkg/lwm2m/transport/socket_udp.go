package transport

import (
	"context"
	"fmt"
	"net"

	"github.com/dhuga/lwm2mcore/pkg/lwm2m/model"
)

// UDPSocket is the NoSec Socket implementation: a connected UDP socket
// with no transport security, used only when the server's Security
// instance specifies UdpSecurityMode NoSec.
type UDPSocket struct {
	localAddr *net.UDPAddr
	conn      *net.UDPConn
}

// NewUDPSocket constructs an unconnected plain UDP socket.
func NewUDPSocket(_ ConnectionInfo) (Socket, error) {
	return &UDPSocket{}, nil
}

func (s *UDPSocket) Bind(localAddr string) error {
	addr, err := net.ResolveUDPAddr("udp", localAddr)
	if err != nil {
		return fmt.Errorf("transport: resolve bind address %q: %w", localAddr, err)
	}
	s.localAddr = addr
	return nil
}

func (s *UDPSocket) Connect(ctx context.Context, remote model.ServerURI) error {
	raddr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(remote.Host, remote.Port))
	if err != nil {
		return fmt.Errorf("transport: resolve remote %q: %w", remote, err)
	}
	conn, err := net.DialUDP("udp", s.localAddr, raddr)
	if err != nil {
		return fmt.Errorf("transport: dial %q: %w", remote, err)
	}
	applyReuseOptions(conn)
	s.conn = conn
	return nil
}

func (s *UDPSocket) Close() error {
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

func (s *UDPSocket) LocalPort() uint16 {
	if s.conn == nil {
		return 0
	}
	if addr, ok := s.conn.LocalAddr().(*net.UDPAddr); ok {
		return uint16(addr.Port)
	}
	return 0
}

func (s *UDPSocket) RemoteHost() string {
	if s.conn == nil {
		return ""
	}
	if addr, ok := s.conn.RemoteAddr().(*net.UDPAddr); ok {
		return addr.IP.String()
	}
	return ""
}

func (s *UDPSocket) RemotePort() uint16 {
	if s.conn == nil {
		return 0
	}
	if addr, ok := s.conn.RemoteAddr().(*net.UDPAddr); ok {
		return uint16(addr.Port)
	}
	return 0
}

func (s *UDPSocket) IsConnected() bool { return s.conn != nil }

// SessionResumed implements the original's SMS-pseudo-socket heuristic
// for sockets with no DTLS layer: resumed iff the remote port is empty.
// UDP sockets always have a remote port, so this is always false here;
// see PseudoSocket for the transport this heuristic actually targets.
func (s *UDPSocket) SessionResumed() bool { return false }
