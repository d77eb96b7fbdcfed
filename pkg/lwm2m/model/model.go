// Package model defines the LwM2M server-identity and connection data
// types shared by the registry, transport, and session packages:
// SSIDs, security modes, binding modes, and DTLS key material.
package model

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrForbidden mirrors the CoAP 4.03 rejection the original surfaces as
// ANJAY_ERR_FORBIDDEN: an immediate give-up signal, classified the same
// way as ETIMEDOUT/EPROTO.
var ErrForbidden = errors.New("lwm2m: server rejected request (forbidden)")

// SSID is a Short Server ID. SSID 0 is reserved ("any"); SSIDBootstrap
// denotes the Bootstrap Server.
type SSID uint16

const (
	// SSIDAny matches every active server in ScheduleRegistrationUpdate.
	SSIDAny SSID = 0
	// SSIDBootstrap is the well-known SSID of the Bootstrap Server.
	SSIDBootstrap SSID = 0
)

// ConnType identifies which transport carries a server's registration.
type ConnType int

const (
	ConnUDP ConnType = iota
	ConnSMS
	ConnUnset
)

func (t ConnType) String() string {
	switch t {
	case ConnUDP:
		return "UDP"
	case ConnSMS:
		return "SMS"
	case ConnUnset:
		return "unset"
	default:
		return fmt.Sprintf("ConnType(%d)", int(t))
	}
}

// AllConnTypes is the fixed transport-selection order used by
// setup_registration_connection: UDP is preferred over SMS.
var AllConnTypes = [...]ConnType{ConnUDP, ConnSMS}

// ConnectionMode is the per-transport binding state.
type ConnectionMode int

const (
	ConnectionDisabled ConnectionMode = iota
	ConnectionOnline
	ConnectionQueue
)

// BindingMode is the LwM2M textual binding code.
type BindingMode int

const (
	BindingNone BindingMode = iota
	BindingU
	BindingUQ
	BindingS
	BindingSQ
	BindingUS
	BindingUQS
)

func (b BindingMode) String() string {
	switch b {
	case BindingU:
		return "U"
	case BindingUQ:
		return "UQ"
	case BindingS:
		return "S"
	case BindingSQ:
		return "SQ"
	case BindingUS:
		return "US"
	case BindingUQS:
		return "UQS"
	default:
		return "N"
	}
}

// BindingModeFromString parses the textual binding code read from the
// Server object's Binding resource. Unknown codes map to BindingNone,
// matching the original's pass-through-on-error behavior.
func BindingModeFromString(s string) BindingMode {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "U":
		return BindingU
	case "UQ":
		return BindingUQ
	case "S":
		return BindingS
	case "SQ":
		return BindingSQ
	case "US":
		return BindingUS
	case "UQS":
		return BindingUQS
	default:
		return BindingNone
	}
}

type connectionPair struct {
	udp ConnectionMode
	sms ConnectionMode
}

// bindingToConnections is the fixed table from connection_info.c's
// BINDING_TO_CONNECTIONS, keyed by BindingMode.
var bindingToConnections = map[BindingMode]connectionPair{
	BindingU:   {udp: ConnectionOnline, sms: ConnectionDisabled},
	BindingUQ:  {udp: ConnectionQueue, sms: ConnectionDisabled},
	BindingS:   {udp: ConnectionDisabled, sms: ConnectionOnline},
	BindingSQ:  {udp: ConnectionDisabled, sms: ConnectionQueue},
	BindingUS:  {udp: ConnectionOnline, sms: ConnectionOnline},
	BindingUQS: {udp: ConnectionQueue, sms: ConnectionOnline},
}

// ConnectionModesForBinding translates a binding mode into its
// (udp, sms) connection-mode pair. Returns ok=false for BindingNone or
// any value outside the legal set.
func ConnectionModesForBinding(b BindingMode) (udp, sms ConnectionMode, ok bool) {
	pair, ok := bindingToConnections[b]
	return pair.udp, pair.sms, ok
}

// BindingModeFromConnectionModes is the inverse of
// ConnectionModesForBinding; it returns BindingNone if no legal binding
// maps to the given pair. Round-tripping this with
// ConnectionModesForBinding is a testable property (spec.md §8).
func BindingModeFromConnectionModes(udp, sms ConnectionMode) BindingMode {
	for b, pair := range bindingToConnections {
		if pair.udp == udp && pair.sms == sms {
			return b
		}
	}
	return BindingNone
}

// UdpSecurityMode is the UDP channel security mode read from the
// Security object instance.
type UdpSecurityMode int

const (
	SecurityNoSec UdpSecurityMode = iota
	SecurityPSK
	SecurityCertificate
	SecurityRPK // recognized, rejected as unsupported
)

func (m UdpSecurityMode) String() string {
	switch m {
	case SecurityNoSec:
		return "NoSec"
	case SecurityPSK:
		return "PSK"
	case SecurityCertificate:
		return "Certificate"
	case SecurityRPK:
		return "RPK"
	default:
		return fmt.Sprintf("UdpSecurityMode(%d)", int(m))
	}
}

// ServerURI is a parsed LwM2M server URI.
type ServerURI struct {
	Scheme string // "coap" or "coaps"
	Host   string
	Port   string
}

func (u ServerURI) String() string {
	host := u.Host
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	return fmt.Sprintf("%s://%s:%s", u.Scheme, host, u.Port)
}

// ParseServerURI parses a coap:// or coaps:// URI string. It does not
// validate the scheme against a security mode; see ValidateURIScheme.
func ParseServerURI(raw string) (ServerURI, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return ServerURI{}, fmt.Errorf("lwm2m: invalid server URI %q: %w", raw, err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "coap" && scheme != "coaps" {
		return ServerURI{}, fmt.Errorf("lwm2m: unsupported URI scheme %q", u.Scheme)
	}
	host := u.Hostname()
	if host == "" {
		return ServerURI{}, fmt.Errorf("lwm2m: server URI %q has no host", raw)
	}
	port := u.Port()
	if port == "" {
		if scheme == "coaps" {
			port = "5684"
		} else {
			port = "5683"
		}
	}
	return ServerURI{Scheme: scheme, Host: host, Port: port}, nil
}

// ValidateURIScheme enforces the spec.md DATA MODEL invariant: scheme is
// "coap" iff security mode is NoSec, "coaps" otherwise.
func ValidateURIScheme(scheme string, mode UdpSecurityMode) error {
	wantCoaps := mode != SecurityNoSec
	isCoaps := strings.EqualFold(scheme, "coaps")
	if wantCoaps != isCoaps {
		return fmt.Errorf("lwm2m: URI scheme %q inconsistent with security mode %s", scheme, mode)
	}
	return nil
}

// DtlsKeys holds the up-to-three bounded key buffers used by PSK and
// Certificate security modes.
type DtlsKeys struct {
	PkOrIdentity       []byte
	ServerPkOrIdentity []byte
	SecretKey          []byte
}

// RequiredFields reports which of the three buffers must be populated
// for the given security mode, per spec.md §4.B.
func RequiredFields(mode UdpSecurityMode) (identity, serverKey, secret bool) {
	switch mode {
	case SecurityPSK:
		return true, false, true
	case SecurityCertificate:
		return true, true, true
	default:
		return false, false, false
	}
}

// Validate checks that all fields required for mode are non-empty.
func (k DtlsKeys) Validate(mode UdpSecurityMode) error {
	wantIdentity, wantServerKey, wantSecret := RequiredFields(mode)
	if wantIdentity && len(k.PkOrIdentity) == 0 {
		return fmt.Errorf("lwm2m: security mode %s requires pk_or_identity", mode)
	}
	if wantServerKey && len(k.ServerPkOrIdentity) == 0 {
		return fmt.Errorf("lwm2m: security mode %s requires server_pk_or_identity", mode)
	}
	if wantSecret && len(k.SecretKey) == 0 {
		return fmt.Errorf("lwm2m: security mode %s requires secret_key", mode)
	}
	return nil
}
