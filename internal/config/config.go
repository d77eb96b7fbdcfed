// Package config loads and validates lwm2mcored's configuration: logging,
// session/transport tuning, the static server seed list, and bootstrap
// settings.
//
// Configuration sources, in order of precedence:
//  1. Environment variables (LWM2MCORE_*), for keys present in the file
//  2. Configuration file (YAML)
//  3. Default values (lowest priority)
//
// Load binds no command-line flags; the CLI only chooses the file path.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration for lwm2mcored.
type Config struct {
	Logging   LoggingConfig    `mapstructure:"logging" yaml:"logging"`
	Session   SessionConfig    `mapstructure:"session" yaml:"session"`
	Servers   []ServerSeed     `mapstructure:"servers" yaml:"servers"`
	Bootstrap BootstrapConfig  `mapstructure:"bootstrap" yaml:"bootstrap"`
}

// LoggingConfig controls internal/logger.
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// SessionConfig tunes the activation and registration engine.
type SessionConfig struct {
	// MaxICMPFailures is the ceiling on a server's ICMP-style failure
	// counter: once an inactive server's counter reaches it, that
	// server's activation job stops retrying (and bootstrap fallback may
	// start).
	MaxICMPFailures uint32 `mapstructure:"max_icmp_failures" validate:"required,gt=0" yaml:"max_icmp_failures"`

	// UDPListenPort is the local port the UDP transport binds to when
	// a server connection has not already claimed one. Zero means let
	// the kernel choose.
	UDPListenPort uint16 `mapstructure:"udp_listen_port" yaml:"udp_listen_port"`

	// DTLSVersion ("1.2" or "1.0") is handed to the DTLS socket: "1.0"
	// disables the extended-master-secret extension in the handshake,
	// "1.2" keeps pion/dtls's defaults. No other protocol-version
	// selection is made.
	DTLSVersion string `mapstructure:"dtls_version" validate:"required,oneof=1.0 1.2" yaml:"dtls_version"`

	// DefaultLifetimeS is the lifetime, in seconds, the reference CoAP
	// context reports from Register when no real LwM2M server is wired
	// in. Ignored once a production coap.Context replaces it.
	DefaultLifetimeS uint32 `mapstructure:"default_lifetime_s" validate:"required,gt=0" yaml:"default_lifetime_s"`
}

// ServerSeed is the static description of one LwM2M server, used to
// bootstrap a Registry when no persisted data model is available.
type ServerSeed struct {
	SSID            uint16 `mapstructure:"ssid" validate:"required" yaml:"ssid"`
	URI             string `mapstructure:"uri" validate:"required" yaml:"uri"`
	SecurityMode    string `mapstructure:"security_mode" validate:"required,oneof=nosec psk certificate" yaml:"security_mode"`
	Binding         string `mapstructure:"binding" validate:"required,oneof=U UQ S SQ US UQS" yaml:"binding"`
	PSKIdentity     string `mapstructure:"psk_identity" yaml:"psk_identity,omitempty"`
	PSKKey          string `mapstructure:"psk_key" yaml:"psk_key,omitempty"`
	ServerPublicKey string `mapstructure:"server_public_key" yaml:"server_public_key,omitempty"`
	CertFile        string `mapstructure:"cert_file" yaml:"cert_file,omitempty"`
	KeyFile         string `mapstructure:"key_file" yaml:"key_file,omitempty"`
}

// BootstrapConfig enables the Bootstrap Server seed. The session core
// and the serve command always treat SSID 0 (model.SSIDBootstrap) as the
// Bootstrap Server; SSID here is only checked by Validate against the
// server seeds and printed by status.
type BootstrapConfig struct {
	SSID    uint16 `mapstructure:"ssid" yaml:"ssid"`
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
}

// Load reads configuration from configPath (or the default search path
// when empty), overlaying environment variables on the keys present in
// the file and filling the rest with defaults. When no config file is
// found, DefaultConfig() is returned as is and environment variables
// are not consulted.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	found, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}
	if !found {
		cfg := DefaultConfig()
		return cfg, nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	ApplyDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}
	return &cfg, nil
}

// SaveConfig writes cfg to path in YAML, creating parent directories as
// needed. Used by the `init` CLI command to seed a starter file.
func SaveConfig(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: create directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("config: write: %w", err)
	}
	return nil
}

func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("LWM2MCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}
	v.AddConfigPath(ConfigDir())
	v.SetConfigName("config")
	v.SetConfigType("yaml")
}

func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("config: read file: %w", err)
	}
	return true, nil
}

// ConfigDir returns the directory searched for config.yaml: XDG_CONFIG_HOME
// or ~/.config, under a "lwm2mcored" subdirectory.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "lwm2mcored")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "lwm2mcored")
}

// DefaultConfigPath is the config.yaml path Load searches when no
// explicit path is given.
func DefaultConfigPath() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// DefaultConfigExists reports whether a config file sits at
// DefaultConfigPath.
func DefaultConfigExists() bool {
	_, err := os.Stat(DefaultConfigPath())
	return err == nil
}
