// Package connbuild assembles a transport.ConnectionInfo from the LwM2M
// data model: resolving the Security instance for an SSID, reading its
// URI and key material, and translating the Server instance's Binding
// Mode into the fixed (udp, sms) connection-mode pair. The result is
// pure given the data-model snapshot and the connection's prior
// socket state — no I/O happens here.
package connbuild

import (
	"fmt"

	"github.com/dhuga/lwm2mcore/pkg/lwm2m/model"
	"github.com/dhuga/lwm2mcore/pkg/lwm2m/transport"
)

// DataModel is the read-only view over LwM2M Security/Server object
// instances that connection-info assembly needs. A real implementation
// backs this with the embedder's object store; tests use a fake.
type DataModel interface {
	// FindSecurityIID returns the Security object instance ID for ssid.
	FindSecurityIID(ssid model.SSID) (iid int, ok bool)
	// FindServerIID returns the Server object instance ID for ssid.
	// Not present for the Bootstrap Server, which has no Server instance.
	FindServerIID(ssid model.SSID) (iid int, ok bool)

	ServerURI(securityIID int) (model.ServerURI, error)
	SecurityMode(securityIID int) (model.UdpSecurityMode, error)
	DtlsKeys(securityIID int) (model.DtlsKeys, error)
	BindingMode(serverIID int) (model.BindingMode, error)
}

// Result is the outcome of AssembleConnectionInfo: the assembled
// connection info plus the connection modes derived from Binding Mode,
// which the activation engine uses to decide which transports to
// refresh.
type Result struct {
	Info     transport.ConnectionInfo
	UDPMode  model.ConnectionMode
	SMSMode  model.ConnectionMode
}

// Options carries the embedder-level defaults assembly falls back to.
type Options struct {
	// ConfiguredUDPListenPort is used when the connection has never
	// bound a local port before (step 4.b in the assembly algorithm).
	ConfiguredUDPListenPort uint16
	// DTLSVersion is the configured DTLS protocol version, e.g. "1.2".
	DTLSVersion string
}

// AssembleConnectionInfo implements the connection-info assembly
// algorithm: resolve Security IID and URI, read Binding Mode (or
// default to Online for the Bootstrap Server), verify the URI scheme
// against the security mode, read DTLS key material, and compute the
// requested local port.
func AssembleConnectionInfo(ssid model.SSID, dm DataModel, existing *transport.Connection, opts Options) (Result, error) {
	securityIID, ok := dm.FindSecurityIID(ssid)
	if !ok {
		return Result{}, fmt.Errorf("connbuild: no Security instance for SSID %d", ssid)
	}

	uri, err := dm.ServerURI(securityIID)
	if err != nil {
		return Result{}, fmt.Errorf("connbuild: resolve URI for SSID %d: %w", ssid, err)
	}

	udpMode, smsMode, err := resolveBinding(ssid, dm)
	if err != nil {
		return Result{}, err
	}

	secMode, err := dm.SecurityMode(securityIID)
	if err != nil {
		return Result{}, fmt.Errorf("connbuild: resolve security mode for SSID %d: %w", ssid, err)
	}
	if err := model.ValidateURIScheme(uri.Scheme, secMode); err != nil {
		return Result{}, fmt.Errorf("connbuild: SSID %d: %w", ssid, err)
	}

	keys, err := dm.DtlsKeys(securityIID)
	if err != nil {
		return Result{}, fmt.Errorf("connbuild: resolve DTLS keys for SSID %d: %w", ssid, err)
	}
	if err := keys.Validate(secMode); err != nil {
		return Result{}, fmt.Errorf("connbuild: SSID %d: %w", ssid, err)
	}

	return Result{
		Info: transport.ConnectionInfo{
			URI:         uri,
			Security:    secMode,
			Keys:        keys,
			LocalPort:   requestedLocalPort(existing, opts.ConfiguredUDPListenPort),
			DTLSVersion: opts.DTLSVersion,
		},
		UDPMode: udpMode,
		SMSMode: smsMode,
	}, nil
}

// resolveBinding reads and translates Binding Mode, defaulting the
// Bootstrap Server (which has no Server instance) to (Online, Disabled).
func resolveBinding(ssid model.SSID, dm DataModel) (udp, sms model.ConnectionMode, err error) {
	if ssid == model.SSIDBootstrap {
		return model.ConnectionOnline, model.ConnectionDisabled, nil
	}

	serverIID, ok := dm.FindServerIID(ssid)
	if !ok {
		return 0, 0, fmt.Errorf("connbuild: no Server instance for SSID %d", ssid)
	}
	binding, err := dm.BindingMode(serverIID)
	if err != nil {
		return 0, 0, fmt.Errorf("connbuild: resolve binding mode for SSID %d: %w", ssid, err)
	}
	udp, sms, ok = model.ConnectionModesForBinding(binding)
	if !ok {
		return 0, 0, fmt.Errorf("connbuild: unrecognized binding mode %v for SSID %d", binding, ssid)
	}
	return udp, sms, nil
}

// requestedLocalPort implements the three-level precedence: the
// existing socket's current port, then the configured UDP listen port,
// then empty (ephemeral).
func requestedLocalPort(existing *transport.Connection, configured uint16) uint16 {
	if existing != nil && existing.LastLocalPort != 0 {
		return existing.LastLocalPort
	}
	if configured != 0 {
		return configured
	}
	return 0
}
