package connbuild

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhuga/lwm2mcore/pkg/lwm2m/model"
	"github.com/dhuga/lwm2mcore/pkg/lwm2m/transport"
)

type securityRecord struct {
	uri     model.ServerURI
	mode    model.UdpSecurityMode
	keys    model.DtlsKeys
}

type fakeDataModel struct {
	securityBySSID map[model.SSID]int
	serverBySSID   map[model.SSID]int
	security       map[int]securityRecord
	binding        map[int]model.BindingMode
}

func newFakeDataModel() *fakeDataModel {
	return &fakeDataModel{
		securityBySSID: map[model.SSID]int{},
		serverBySSID:   map[model.SSID]int{},
		security:       map[int]securityRecord{},
		binding:        map[int]model.BindingMode{},
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
	rec, ok := f.security[iid]
	if !ok {
		return model.ServerURI{}, fmt.Errorf("no security instance %d", iid)
	}
	return rec.uri, nil
}

func (f *fakeDataModel) SecurityMode(iid int) (model.UdpSecurityMode, error) {
	rec, ok := f.security[iid]
	if !ok {
		return 0, fmt.Errorf("no security instance %d", iid)
	}
	return rec.mode, nil
}

func (f *fakeDataModel) DtlsKeys(iid int) (model.DtlsKeys, error) {
	rec, ok := f.security[iid]
	if !ok {
		return model.DtlsKeys{}, fmt.Errorf("no security instance %d", iid)
	}
	return rec.keys, nil
}

func (f *fakeDataModel) BindingMode(iid int) (model.BindingMode, error) {
	b, ok := f.binding[iid]
	if !ok {
		return 0, fmt.Errorf("no server instance %d", iid)
	}
	return b, nil
}

func TestAssembleConnectionInfo_NoSecUDP(t *testing.T) {
	dm := newFakeDataModel()
	dm.securityBySSID[1] = 10
	dm.serverBySSID[1] = 20
	dm.security[10] = securityRecord{
		uri:  model.ServerURI{Scheme: "coap", Host: "203.0.113.1", Port: "5683"},
		mode: model.SecurityNoSec,
	}
	dm.binding[20] = model.BindingU

	result, err := AssembleConnectionInfo(1, dm, nil, Options{DTLSVersion: "1.2"})

	require.NoError(t, err)
	assert.Equal(t, model.SecurityNoSec, result.Info.Security)
	assert.Equal(t, model.ConnectionOnline, result.UDPMode)
	assert.Equal(t, model.ConnectionDisabled, result.SMSMode)
	assert.Equal(t, uint16(0), result.Info.LocalPort)
}

func TestAssembleConnectionInfo_BootstrapDefaultsBindingToOnline(t *testing.T) {
	dm := newFakeDataModel()
	dm.securityBySSID[model.SSIDBootstrap] = 1
	dm.security[1] = securityRecord{
		uri:  model.ServerURI{Scheme: "coap", Host: "203.0.113.1", Port: "5683"},
		mode: model.SecurityNoSec,
	}

	result, err := AssembleConnectionInfo(model.SSIDBootstrap, dm, nil, Options{})

	require.NoError(t, err)
	assert.Equal(t, model.ConnectionOnline, result.UDPMode)
	assert.Equal(t, model.ConnectionDisabled, result.SMSMode)
}

func TestAssembleConnectionInfo_MissingSecurityIsFatal(t *testing.T) {
	dm := newFakeDataModel()

	_, err := AssembleConnectionInfo(9, dm, nil, Options{})

	assert.Error(t, err)
}

func TestAssembleConnectionInfo_SchemeSecurityMismatch(t *testing.T) {
	dm := newFakeDataModel()
	dm.securityBySSID[1] = 10
	dm.serverBySSID[1] = 20
	dm.security[10] = securityRecord{
		uri:  model.ServerURI{Scheme: "coap", Host: "203.0.113.1", Port: "5683"},
		mode: model.SecurityPSK,
	}
	dm.binding[20] = model.BindingU

	_, err := AssembleConnectionInfo(1, dm, nil, Options{})

	assert.Error(t, err)
}

func TestAssembleConnectionInfo_MissingRequiredKeyMaterial(t *testing.T) {
	dm := newFakeDataModel()
	dm.securityBySSID[1] = 10
	dm.serverBySSID[1] = 20
	dm.security[10] = securityRecord{
		uri:  model.ServerURI{Scheme: "coaps", Host: "203.0.113.1", Port: "5684"},
		mode: model.SecurityPSK,
	}
	dm.binding[20] = model.BindingU

	_, err := AssembleConnectionInfo(1, dm, nil, Options{})

	assert.Error(t, err)
}

func TestAssembleConnectionInfo_LocalPortPrecedence(t *testing.T) {
	dm := newFakeDataModel()
	dm.securityBySSID[1] = 10
	dm.serverBySSID[1] = 20
	dm.security[10] = securityRecord{
		uri:  model.ServerURI{Scheme: "coap", Host: "203.0.113.1", Port: "5683"},
		mode: model.SecurityNoSec,
	}
	dm.binding[20] = model.BindingU

	// (b) configured listen port used when there is no existing socket.
	result, err := AssembleConnectionInfo(1, dm, nil, Options{ConfiguredUDPListenPort: 6000})
	require.NoError(t, err)
	assert.Equal(t, uint16(6000), result.Info.LocalPort)

	// (a) existing socket's last local port takes precedence.
	existing := transport.NewConnection(nil)
	existing.LastLocalPort = 7000
	result, err = AssembleConnectionInfo(1, dm, existing, Options{ConfiguredUDPListenPort: 6000})
	require.NoError(t, err)
	assert.Equal(t, uint16(7000), result.Info.LocalPort)
}
