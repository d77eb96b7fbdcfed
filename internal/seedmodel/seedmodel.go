// Package seedmodel is the static connbuild.DataModel used by lwm2mcored
// when no persisted data model is available: it turns the config file's
// Servers list into the (security IID, server IID) lookup the session
// core needs, per SPEC_FULL.md's static bootstrap seed.
package seedmodel

import (
	"fmt"

	"github.com/dhuga/lwm2mcore/internal/config"
	"github.com/dhuga/lwm2mcore/pkg/lwm2m/model"
)

// Model implements connbuild.DataModel over a fixed set of server seeds
// loaded once at startup. Object instance IDs are synthesized as
// 2*ssid+1 for Security and 2*ssid for Server; the Bootstrap Server
// gets no Server instance.
type Model struct {
	securityIID map[model.SSID]int
	serverIID   map[model.SSID]int
	uri         map[int]model.ServerURI
	secMode     map[int]model.UdpSecurityMode
	keys        map[int]model.DtlsKeys
	binding     map[int]model.BindingMode
}

// FromConfig builds a Model from a validated list of server seeds.
func FromConfig(seeds []config.ServerSeed) (*Model, error) {
	m := &Model{
		securityIID: make(map[model.SSID]int, len(seeds)),
		serverIID:   make(map[model.SSID]int, len(seeds)),
		uri:         make(map[int]model.ServerURI, len(seeds)),
		secMode:     make(map[int]model.UdpSecurityMode, len(seeds)),
		keys:        make(map[int]model.DtlsKeys, len(seeds)),
		binding:     make(map[int]model.BindingMode, len(seeds)),
	}
	for _, seed := range seeds {
		if err := m.addSeed(seed); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Model) addSeed(seed config.ServerSeed) error {
	ssid := model.SSID(seed.SSID)

	uri, err := model.ParseServerURI(seed.URI)
	if err != nil {
		return fmt.Errorf("seedmodel: server %d: %w", seed.SSID, err)
	}
	mode := securityModeFromString(seed.SecurityMode)

	securityIID := int(seed.SSID)*2 + 1
	m.securityIID[ssid] = securityIID
	m.uri[securityIID] = uri
	m.secMode[securityIID] = mode

	keys := model.DtlsKeys{
		PkOrIdentity:       []byte(seed.PSKIdentity),
		SecretKey:          []byte(seed.PSKKey),
		ServerPkOrIdentity: []byte(seed.ServerPublicKey),
	}
	if mode == model.SecurityCertificate {
		keys.PkOrIdentity = []byte(seed.CertFile)
		keys.SecretKey = []byte(seed.KeyFile)
	}
	m.keys[securityIID] = keys

	if ssid != model.SSIDBootstrap {
		serverIID := int(seed.SSID) * 2
		m.serverIID[ssid] = serverIID
		m.binding[serverIID] = model.BindingModeFromString(seed.Binding)
	}
	return nil
}

func securityModeFromString(s string) model.UdpSecurityMode {
	switch s {
	case "psk":
		return model.SecurityPSK
	case "certificate":
		return model.SecurityCertificate
	default:
		return model.SecurityNoSec
	}
}

func (m *Model) FindSecurityIID(ssid model.SSID) (int, bool) {
	iid, ok := m.securityIID[ssid]
	return iid, ok
}

func (m *Model) FindServerIID(ssid model.SSID) (int, bool) {
	iid, ok := m.serverIID[ssid]
	return iid, ok
}

func (m *Model) ServerURI(securityIID int) (model.ServerURI, error) {
	uri, ok := m.uri[securityIID]
	if !ok {
		return model.ServerURI{}, fmt.Errorf("seedmodel: no uri for security iid %d", securityIID)
	}
	return uri, nil
}

func (m *Model) SecurityMode(securityIID int) (model.UdpSecurityMode, error) {
	mode, ok := m.secMode[securityIID]
	if !ok {
		return 0, fmt.Errorf("seedmodel: no security mode for iid %d", securityIID)
	}
	return mode, nil
}

func (m *Model) DtlsKeys(securityIID int) (model.DtlsKeys, error) {
	return m.keys[securityIID], nil
}

func (m *Model) BindingMode(serverIID int) (model.BindingMode, error) {
	binding, ok := m.binding[serverIID]
	if !ok {
		return 0, fmt.Errorf("seedmodel: no binding for server iid %d", serverIID)
	}
	return binding, nil
}

// SSIDs returns every seeded SSID, in the order given at construction is
// not preserved; callers that need ordering should sort the result.
func (m *Model) SSIDs() []model.SSID {
	ssids := make([]model.SSID, 0, len(m.securityIID))
	for ssid := range m.securityIID {
		ssids = append(ssids, ssid)
	}
	return ssids
}
