package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApplyDefaults_Logging(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	assert.Equal(t, "INFO", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, "stdout", cfg.Logging.Output)
}

func TestApplyDefaults_Session(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	assert.EqualValues(t, 5, cfg.Session.MaxICMPFailures)
	assert.Equal(t, "1.2", cfg.Session.DTLSVersion)
	assert.EqualValues(t, 86400, cfg.Session.DefaultLifetimeS)
}

func TestApplyDefaults_PreservesExplicitValues(t *testing.T) {
	cfg := &Config{Session: SessionConfig{MaxICMPFailures: 20, DTLSVersion: "1.0"}}
	ApplyDefaults(cfg)

	assert.EqualValues(t, 20, cfg.Session.MaxICMPFailures)
	assert.Equal(t, "1.0", cfg.Session.DTLSVersion)
}

func TestApplyDefaults_ServerSeed(t *testing.T) {
	cfg := &Config{Servers: []ServerSeed{{SSID: 1, URI: "coap://example.com"}}}
	ApplyDefaults(cfg)

	assert.Equal(t, "nosec", cfg.Servers[0].SecurityMode)
	assert.Equal(t, "U", cfg.Servers[0].Binding)
}
