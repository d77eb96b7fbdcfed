package config

// DefaultConfig returns a minimally valid configuration: logging to
// stdout at INFO, no server seeds, bootstrap disabled. Callers that need
// a working session should populate Servers or enable Bootstrap.
func DefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills zero-valued fields of cfg with defaults. Explicit
// values from file/env/flags are preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applySessionDefaults(&cfg.Session)
	for i := range cfg.Servers {
		applyServerSeedDefaults(&cfg.Servers[i])
	}
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applySessionDefaults(cfg *SessionConfig) {
	if cfg.MaxICMPFailures == 0 {
		cfg.MaxICMPFailures = 5
	}
	if cfg.DTLSVersion == "" {
		cfg.DTLSVersion = "1.2"
	}
	if cfg.DefaultLifetimeS == 0 {
		cfg.DefaultLifetimeS = 86400
	}
}

func applyServerSeedDefaults(seed *ServerSeed) {
	if seed.SecurityMode == "" {
		seed.SecurityMode = "nosec"
	}
	if seed.Binding == "" {
		seed.Binding = "U"
	}
}
