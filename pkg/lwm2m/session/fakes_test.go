package session

import (
	"context"
	"fmt"
	"time"

	"github.com/dhuga/lwm2mcore/pkg/lwm2m/coap"
	"github.com/dhuga/lwm2mcore/pkg/lwm2m/model"
	"github.com/dhuga/lwm2mcore/pkg/lwm2m/transport"
)

// fakeSocket always connects successfully; tests that need a failure
// install connectErr before the job runs.
type fakeSocket struct {
	connected  bool
	localPort  uint16
	connectErr error
}

func (s *fakeSocket) Bind(string) error { return nil }
func (s *fakeSocket) Connect(context.Context, model.ServerURI) error {
	if s.connectErr != nil {
		return s.connectErr
	}
	s.connected = true
	s.localPort = 5000
	return nil
}
func (s *fakeSocket) Close() error             { s.connected = false; return nil }
func (s *fakeSocket) LocalPort() uint16        { return s.localPort }
func (s *fakeSocket) RemoteHost() string       { return "203.0.113.1" }
func (s *fakeSocket) RemotePort() uint16       { return 5684 }
func (s *fakeSocket) IsConnected() bool        { return s.connected }
func (s *fakeSocket) SessionResumed() bool     { return false }

// connectErrBox lets a test inject a connect failure for the next
// socket the factory below creates, keyed by SSID-agnostic single use.
type connectErrBox struct{ err error }

func fakeSocketFactory(box *connectErrBox) transport.SocketFactory {
	return func(transport.ConnectionInfo) (transport.Socket, error) {
		var err error
		if box != nil {
			err = box.err
			box.err = nil
		}
		return &fakeSocket{connectErr: err}, nil
	}
}

// fakeDataModel is a minimal in-memory connbuild.DataModel.
type fakeDataModel struct {
	securityBySSID map[model.SSID]int
	serverBySSID   map[model.SSID]int
	uri            map[int]model.ServerURI
	secMode        map[int]model.UdpSecurityMode
	keys           map[int]model.DtlsKeys
	binding        map[int]model.BindingMode
}

func newFakeDataModel() *fakeDataModel {
	return &fakeDataModel{
		securityBySSID: map[model.SSID]int{},
		serverBySSID:   map[model.SSID]int{},
		uri:            map[int]model.ServerURI{},
		secMode:        map[int]model.UdpSecurityMode{},
		keys:           map[int]model.DtlsKeys{},
		binding:        map[int]model.BindingMode{},
	}
}

func (f *fakeDataModel) addServer(ssid model.SSID, uri model.ServerURI, mode model.UdpSecurityMode, keys model.DtlsKeys, binding model.BindingMode) {
	iid := int(ssid)*2 + 1
	f.securityBySSID[ssid] = iid
	f.uri[iid] = uri
	f.secMode[iid] = mode
	f.keys[iid] = keys
	if ssid != model.SSIDBootstrap {
		serverIID := int(ssid) * 2
		f.serverBySSID[ssid] = serverIID
		f.binding[serverIID] = binding
	}
}

func (f *fakeDataModel) FindSecurityIID(ssid model.SSID) (int, bool) {
	iid, ok := f.securityBySSID[ssid]
	return iid, ok
}
func (f *fakeDataModel) FindServerIID(ssid model.SSID) (int, bool) {
	iid, ok := f.serverBySSID[ssid]
	return iid, ok
}
func (f *fakeDataModel) ServerURI(iid int) (model.ServerURI, error) {
	u, ok := f.uri[iid]
	if !ok {
		return model.ServerURI{}, fmt.Errorf("no uri for iid %d", iid)
	}
	return u, nil
}
func (f *fakeDataModel) SecurityMode(iid int) (model.UdpSecurityMode, error) {
	m, ok := f.secMode[iid]
	if !ok {
		return 0, fmt.Errorf("no security mode for iid %d", iid)
	}
	return m, nil
}
func (f *fakeDataModel) DtlsKeys(iid int) (model.DtlsKeys, error) {
	return f.keys[iid], nil
}
func (f *fakeDataModel) BindingMode(iid int) (model.BindingMode, error) {
	b, ok := f.binding[iid]
	if !ok {
		return 0, fmt.Errorf("no binding for iid %d", iid)
	}
	return b, nil
}

// fakeCoapContext is a scriptable coap.Context: Register/Update return
// values are set by the test before the job runs.
type fakeCoapContext struct {
	registerLifetimeS  int64
	registerErr        error
	updateResult       coap.UpdateResult
	updateErr          error
	registerCalls      int
	updateCalls        int
	deregisterCalls    int
}

func (c *fakeCoapContext) BindServerStream(context.Context, coap.ConnectionRef) error { return nil }
func (c *fakeCoapContext) ReleaseServerStream(coap.ConnectionRef)                     {}
func (c *fakeCoapContext) Register(context.Context, coap.ConnectionRef) (int64, error) {
	c.registerCalls++
	if c.registerErr != nil {
		return 0, c.registerErr
	}
	return c.registerLifetimeS, nil
}
func (c *fakeCoapContext) UpdateRegistration(context.Context, coap.ConnectionRef) (coap.UpdateResult, error) {
	c.updateCalls++
	if c.updateErr != nil {
		return 0, c.updateErr
	}
	return c.updateResult, nil
}
func (c *fakeCoapContext) Deregister(context.Context, coap.ConnectionRef) error {
	c.deregisterCalls++
	return nil
}
// TxParamsForConnType returns a max_transmit_wait far larger than any
// lifetime/2 used in these tests, so the update-interval margin formula
// is exercised on its lifetime/2 branch, matching the literal "next
// Update at lifetime/2" scenario.
func (c *fakeCoapContext) TxParamsForConnType(model.ConnType) coap.TxParams {
	return coap.TxParams{AckTimeout: 1000 * time.Second, AckRandomFactor: 1.5, MaxRetransmit: 4}
}

// fakeBootstrap is a scriptable coap.Bootstrap.
type fakeBootstrap struct {
	accountPrepareCalls int
	accountPrepareErr   error
	cleanupCalls        int
	inProgress          bool
	notifyCalls         int
}

func (b *fakeBootstrap) AccountPrepare(context.Context, model.SSID) error {
	b.accountPrepareCalls++
	return b.accountPrepareErr
}
func (b *fakeBootstrap) Cleanup(model.SSID)                          { b.cleanupCalls++ }
func (b *fakeBootstrap) NotifyRegularConnectionAvailable(model.SSID) { b.notifyCalls++ }
func (b *fakeBootstrap) UpdateReconnected(context.Context, model.SSID) error { return nil }
func (b *fakeBootstrap) InProgress() bool { return b.inProgress }

// fakeObserve is a no-op coap.Observe that counts flush calls.
type fakeObserve struct{ flushCalls int }

func (o *fakeObserve) SchedFlushCurrentConnection(coap.ConnectionRef) { o.flushCalls++ }
