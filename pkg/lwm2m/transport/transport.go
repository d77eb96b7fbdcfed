// Package transport implements the per-connection socket lifecycle
// described by the session core: refresh/bring_online/suspend/cleanup
// over a real DTLS or plain-UDP socket, plus the failure classification
// the activation engine uses to drive its ICMP-style counter.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"

	"github.com/dhuga/lwm2mcore/pkg/lwm2m/model"
)

// Socket is the network backend contract: a connected UDP or DTLS
// socket with the options the session core needs to rebind and
// interrogate state across reconnects.
type Socket interface {
	Bind(localAddr string) error
	Connect(ctx context.Context, remote model.ServerURI) error
	Close() error
	LocalPort() uint16
	RemoteHost() string
	RemotePort() uint16
	IsConnected() bool
	// SessionResumed reports whether the most recent Connect resumed a
	// prior session instead of performing a full handshake.
	SessionResumed() bool
}

// RefreshResult is the sum-type successor to the original's overloaded
// errno return: zero means success, TransportErrno carries an OS-level
// error for the primary (UDP) socket, Other carries anything else.
type RefreshResult struct {
	Errno syscall.Errno // valid iff Kind == RefreshErrno
	Err   error         // valid iff Kind == RefreshOther
	Kind  RefreshKind
}

type RefreshKind int

const (
	RefreshOK RefreshKind = iota
	RefreshErrno
	RefreshOther
)

func (r RefreshResult) Failed() bool { return r.Kind != RefreshOK }

func (r RefreshResult) Error() string {
	switch r.Kind {
	case RefreshOK:
		return "ok"
	case RefreshErrno:
		return r.Errno.Error()
	default:
		return r.Err.Error()
	}
}

// Connection is a single transport's worth of state for one active
// server: socket ownership, the cached endpoint used to stabilize
// reconnects, and the flags governing the next refresh.
type Connection struct {
	Socket             Socket
	PreferredEndpoint  string
	LastLocalPort      uint16
	QueueMode          bool
	NeedsReconnect     bool
	factory            SocketFactory
}

// SocketFactory creates a new, not-yet-connected Socket for the given
// connection info. Swappable so tests can substitute a fake transport.
type SocketFactory func(info ConnectionInfo) (Socket, error)

// ConnectionInfo is the pure, data-model-independent result of
// connection-info assembly (pkg/lwm2m/connbuild); transport only needs
// the fields relevant to socket construction.
type ConnectionInfo struct {
	URI          model.ServerURI
	Security     model.UdpSecurityMode
	Keys         model.DtlsKeys
	LocalPort    uint16
	DTLSVersion  string
}

// NewConnection creates a Connection bound to factory, with no socket
// yet (the first refresh will call recreate_socket).
func NewConnection(factory SocketFactory) *Connection {
	return &Connection{factory: factory}
}

// IsOnline reports whether the underlying socket, if any, is connected.
func (c *Connection) IsOnline() bool {
	return c.Socket != nil && c.Socket.IsConnected()
}

// Suspend closes the socket but keeps the Connection object so a later
// Refresh can bring it back online.
func (c *Connection) Suspend() {
	if c.Socket != nil {
		_ = c.Socket.Close()
	}
}

// Cleanup destroys the socket and clears cached endpoint state.
func (c *Connection) Cleanup() {
	c.Suspend()
	c.Socket = nil
	c.PreferredEndpoint = ""
	c.LastLocalPort = 0
}

// ConnectionMode gates whether Refresh should even attempt to bring a
// transport online.
type ConnectionMode = model.ConnectionMode

// Refresh implements the per-transport algorithm from the session core:
// tear down a disabled transport, otherwise ensure the socket exists and
// is connected, reconnecting when forced.
func (c *Connection) Refresh(ctx context.Context, mode ConnectionMode, info ConnectionInfo, forceReconnect bool) RefreshResult {
	if mode == model.ConnectionDisabled {
		c.Cleanup()
		return RefreshResult{Kind: RefreshOK}
	}

	result := c.ensureConnected(ctx, info, forceReconnect)
	c.QueueMode = mode == model.ConnectionQueue
	c.NeedsReconnect = false
	return result
}

func (c *Connection) ensureConnected(ctx context.Context, info ConnectionInfo, forceReconnect bool) RefreshResult {
	if c.Socket == nil {
		return c.recreateSocket(ctx, info)
	}
	if forceReconnect || c.NeedsReconnect {
		_ = c.Socket.Close()
		c.Socket = nil
		return c.recreateSocket(ctx, info)
	}
	if c.Socket.IsConnected() {
		return RefreshResult{Kind: RefreshOK}
	}
	return c.bringOnline(ctx, info)
}

// recreateSocket builds a fresh Socket from info and connects it.
func (c *Connection) recreateSocket(ctx context.Context, info ConnectionInfo) RefreshResult {
	sock, err := c.factory(info)
	if err != nil {
		return classifyConstructionError(err)
	}
	c.Socket = sock
	return c.bringOnline(ctx, info)
}

// bringOnline applies the bind-before-connect wildcard-address rule and
// connects; on failure the socket is closed but c itself is retained so
// the next activation attempt can retry.
func (c *Connection) bringOnline(ctx context.Context, info ConnectionInfo) RefreshResult {
	if c.LastLocalPort != 0 {
		addr := bindAddressFor(info.URI.Host, c.LastLocalPort)
		if err := c.Socket.Bind(addr); err != nil {
			_ = c.Socket.Close()
			return classifyConstructionError(err)
		}
	}

	if err := c.Socket.Connect(ctx, info.URI); err != nil {
		_ = c.Socket.Close()
		return classifyConstructionError(err)
	}

	c.LastLocalPort = c.Socket.LocalPort()
	return RefreshResult{Kind: RefreshOK}
}

// bindAddressFor picks the local wildcard address whose family matches
// host, so that connect() does not fall back to an IPv4-mapped IPv6
// address on platforms where that silently fails.
func bindAddressFor(host string, port uint16) string {
	ip := net.ParseIP(strings.Trim(host, "[]"))
	if ip != nil && ip.To4() == nil {
		return fmt.Sprintf("[::]:%d", port)
	}
	return fmt.Sprintf("0.0.0.0:%d", port)
}

// classifyConstructionError turns a low-level error into a RefreshResult,
// preserving an OS errno when one is present so the activation engine's
// failure classification (ClassifyFailure) can inspect it.
func classifyConstructionError(err error) RefreshResult {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return RefreshResult{Kind: RefreshErrno, Errno: errno}
	}
	return RefreshResult{Kind: RefreshOther, Err: err}
}

// FailureClass is how the activation engine should update a server's
// num_icmp_failures counter in response to a RefreshResult.
type FailureClass int

const (
	// FailureRetryableUncounted leaves the counter untouched; the job
	// simply retries with backoff.
	FailureRetryableUncounted FailureClass = iota
	// FailureCounted increments the counter by one (ECONNREFUSED).
	FailureCounted
	// FailureSaturate immediately jumps the counter to the configured
	// maximum, triggering give-up/bootstrap-fallback logic.
	FailureSaturate
)

// ClassifyFailure implements the classification table from the session
// core's transport contract.
func ClassifyFailure(result RefreshResult) FailureClass {
	if result.Kind == RefreshErrno {
		switch result.Errno {
		case syscall.ECONNREFUSED:
			return FailureCounted
		case syscall.ETIMEDOUT, syscall.EPROTO:
			return FailureSaturate
		}
	}
	if errors.Is(result.Err, model.ErrForbidden) {
		return FailureSaturate
	}
	return FailureRetryableUncounted
}
