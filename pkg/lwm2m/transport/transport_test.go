package transport

import (
	"context"
	"errors"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhuga/lwm2mcore/pkg/lwm2m/model"
)

// fakeSocket is an in-memory Socket used to exercise Connection.Refresh's
// state machine without touching a real network.
type fakeSocket struct {
	bound       string
	connected   bool
	closed      bool
	localPort   uint16
	connectErr  error
	connectCalls int
}

func newFakeSocket(ConnectionInfo) (Socket, error) { return &fakeSocket{localPort: 1000}, nil }

func (s *fakeSocket) Bind(addr string) error { s.bound = addr; return nil }

func (s *fakeSocket) Connect(context.Context, model.ServerURI) error {
	s.connectCalls++
	if s.connectErr != nil {
		return s.connectErr
	}
	s.connected = true
	s.localPort++
	return nil
}

func (s *fakeSocket) Close() error {
	s.closed = true
	s.connected = false
	return nil
}

func (s *fakeSocket) LocalPort() uint16      { return s.localPort }
func (s *fakeSocket) RemoteHost() string     { return "203.0.113.1" }
func (s *fakeSocket) RemotePort() uint16     { return 5683 }
func (s *fakeSocket) IsConnected() bool      { return s.connected }
func (s *fakeSocket) SessionResumed() bool   { return false }

func testInfo() ConnectionInfo {
	return ConnectionInfo{
		URI: model.ServerURI{Scheme: "coap", Host: "203.0.113.1", Port: "5683"},
	}
}

func TestRefresh_DisabledTearsDownAndReportsOK(t *testing.T) {
	sock := &fakeSocket{connected: true}
	c := NewConnection(newFakeSocket)
	c.Socket = sock

	result := c.Refresh(context.Background(), model.ConnectionDisabled, testInfo(), false)

	assert.False(t, result.Failed())
	assert.True(t, sock.closed)
	assert.Nil(t, c.Socket)
}

func TestRefresh_NoSocketCreatesAndConnects(t *testing.T) {
	c := NewConnection(newFakeSocket)

	result := c.Refresh(context.Background(), model.ConnectionOnline, testInfo(), false)

	require.False(t, result.Failed())
	require.NotNil(t, c.Socket)
	assert.True(t, c.Socket.IsConnected())
	assert.Equal(t, c.Socket.LocalPort(), c.LastLocalPort)
}

func TestRefresh_AlreadyConnectedIsNoop(t *testing.T) {
	sock := &fakeSocket{connected: true}
	c := NewConnection(newFakeSocket)
	c.Socket = sock

	result := c.Refresh(context.Background(), model.ConnectionOnline, testInfo(), false)

	assert.False(t, result.Failed())
	assert.Equal(t, 0, sock.connectCalls)
}

func TestRefresh_ForceReconnectRecreatesSocket(t *testing.T) {
	sock := &fakeSocket{connected: true}
	c := NewConnection(newFakeSocket)
	c.Socket = sock

	result := c.Refresh(context.Background(), model.ConnectionOnline, testInfo(), true)

	require.False(t, result.Failed())
	assert.True(t, sock.closed)
	assert.NotSame(t, sock, c.Socket)
	assert.True(t, c.Socket.IsConnected())
}

func TestRefresh_NeedsReconnectFlagForcesRecreate(t *testing.T) {
	sock := &fakeSocket{connected: true}
	c := NewConnection(newFakeSocket)
	c.Socket = sock
	c.NeedsReconnect = true

	result := c.Refresh(context.Background(), model.ConnectionOnline, testInfo(), false)

	require.False(t, result.Failed())
	assert.True(t, sock.closed)
	assert.False(t, c.NeedsReconnect)
}

func TestRefresh_RebindsToLastLocalPortBeforeReconnect(t *testing.T) {
	c := NewConnection(newFakeSocket)
	c.Socket = &fakeSocket{}
	c.LastLocalPort = 6200
	c.NeedsReconnect = true

	result := c.Refresh(context.Background(), model.ConnectionOnline, testInfo(), false)

	require.False(t, result.Failed())
	got := c.Socket.(*fakeSocket)
	assert.Equal(t, "0.0.0.0:6200", got.bound)
}

func TestRefresh_ConnectFailureSurfacesErrno(t *testing.T) {
	c := NewConnection(func(ConnectionInfo) (Socket, error) {
		return &fakeSocket{connectErr: syscall.ECONNREFUSED}, nil
	})

	result := c.Refresh(context.Background(), model.ConnectionOnline, testInfo(), false)

	require.True(t, result.Failed())
	assert.Equal(t, RefreshErrno, result.Kind)
	assert.Equal(t, syscall.ECONNREFUSED, result.Errno)
}

func TestBindAddressFor(t *testing.T) {
	assert.Equal(t, "0.0.0.0:5683", bindAddressFor("203.0.113.1", 5683))
	assert.Equal(t, "[::]:5683", bindAddressFor("2001:db8::1", 5683))
	assert.Equal(t, "[::]:5683", bindAddressFor("[2001:db8::1]", 5683))
}

func TestClassifyFailure(t *testing.T) {
	cases := []struct {
		name   string
		result RefreshResult
		want   FailureClass
	}{
		{"refused counted", RefreshResult{Kind: RefreshErrno, Errno: syscall.ECONNREFUSED}, FailureCounted},
		{"timeout saturates", RefreshResult{Kind: RefreshErrno, Errno: syscall.ETIMEDOUT}, FailureSaturate},
		{"eproto saturates", RefreshResult{Kind: RefreshErrno, Errno: syscall.EPROTO}, FailureSaturate},
		{"other errno uncounted", RefreshResult{Kind: RefreshErrno, Errno: syscall.EAGAIN}, FailureRetryableUncounted},
		{"forbidden saturates", RefreshResult{Kind: RefreshOther, Err: model.ErrForbidden}, FailureSaturate},
		{"wrapped forbidden saturates", RefreshResult{Kind: RefreshOther, Err: errors.Join(errors.New("x"), model.ErrForbidden)}, FailureSaturate},
		{"other uncounted", RefreshResult{Kind: RefreshOther, Err: errors.New("boom")}, FailureRetryableUncounted},
		{"ok uncounted", RefreshResult{Kind: RefreshOK}, FailureRetryableUncounted},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ClassifyFailure(tc.result))
		})
	}
}
