package transport

import (
	"context"

	"github.com/dhuga/lwm2mcore/pkg/lwm2m/model"
)

// PseudoSocket models a non-UDP, non-DTLS transport (SMS in the
// original) with no real handshake: Connect always succeeds, and
// SessionResumed follows the original's heuristic of "resumed iff the
// remote port is empty" — the signal an SMS gateway address carries no
// notion of a transport-layer port. UDPSocket and DTLSSocket do not use
// this heuristic: UDPSocket always reports false, and DTLSSocket counts
// its own handshakes.
type PseudoSocket struct {
	connected bool
	remote    model.ServerURI
}

// NewPseudoSocket constructs an unconnected pseudo-transport socket.
func NewPseudoSocket(ConnectionInfo) (Socket, error) {
	return &PseudoSocket{}, nil
}

func (s *PseudoSocket) Bind(string) error { return nil }

func (s *PseudoSocket) Connect(_ context.Context, remote model.ServerURI) error {
	s.remote = remote
	s.connected = true
	return nil
}

func (s *PseudoSocket) Close() error {
	s.connected = false
	return nil
}

func (s *PseudoSocket) LocalPort() uint16    { return 0 }
func (s *PseudoSocket) RemoteHost() string   { return s.remote.Host }
func (s *PseudoSocket) RemotePort() uint16 {
	if s.remote.Port == "" {
		return 0
	}
	var p uint16
	for _, c := range s.remote.Port {
		if c < '0' || c > '9' {
			return 0
		}
		p = p*10 + uint16(c-'0')
	}
	return p
}
func (s *PseudoSocket) IsConnected() bool { return s.connected }

// SessionResumed implements the original's pseudo-socket heuristic.
func (s *PseudoSocket) SessionResumed() bool { return s.remote.Port == "" }
