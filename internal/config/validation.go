package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/dhuga/lwm2mcore/pkg/lwm2m/model"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks struct tags via go-playground/validator, then the
// cross-field invariants the tags can't express: SSID uniqueness, the
// coap/coaps-vs-security-mode rule, and DTLS key completeness.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	seen := make(map[uint16]struct{}, len(cfg.Servers))
	for _, seed := range cfg.Servers {
		if _, dup := seen[seed.SSID]; dup {
			return fmt.Errorf("config: duplicate server ssid %d", seed.SSID)
		}
		seen[seed.SSID] = struct{}{}

		if err := validateServerSeed(seed); err != nil {
			return err
		}
	}

	if cfg.Bootstrap.Enabled {
		if _, ok := seen[cfg.Bootstrap.SSID]; !ok {
			return fmt.Errorf("config: bootstrap.ssid %d has no matching server seed", cfg.Bootstrap.SSID)
		}
	}

	return nil
}

func validateServerSeed(seed ServerSeed) error {
	mode := securityModeFromString(seed.SecurityMode)

	uri, err := model.ParseServerURI(seed.URI)
	if err != nil {
		return fmt.Errorf("config: server %d: %w", seed.SSID, err)
	}
	if err := model.ValidateURIScheme(uri.Scheme, mode); err != nil {
		return fmt.Errorf("config: server %d: %w", seed.SSID, err)
	}

	keys := model.DtlsKeys{
		PkOrIdentity:       []byte(seed.PSKIdentity),
		SecretKey:          []byte(seed.PSKKey),
		ServerPkOrIdentity: []byte(seed.ServerPublicKey),
	}
	if mode == model.SecurityCertificate {
		keys.PkOrIdentity = []byte(seed.CertFile)
		keys.SecretKey = []byte(seed.KeyFile)
	}
	if err := keys.Validate(mode); err != nil {
		return fmt.Errorf("config: server %d: %w", seed.SSID, err)
	}

	if model.BindingModeFromString(seed.Binding) == model.BindingNone {
		return fmt.Errorf("config: server %d: invalid binding %q", seed.SSID, seed.Binding)
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
