package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dhuga/lwm2mcore/internal/config"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the resolved configuration and server seed list",
	Long: `Load the configuration the same way "serve" would and report the
servers it would register against, without starting the daemon. Useful
for validating a config file before running it.`,
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	fmt.Printf("config source: %s\n", configSource(GetConfigFile()))
	fmt.Printf("logging: level=%s format=%s output=%s\n", cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	fmt.Printf("session: max_icmp_failures=%d dtls_version=%s\n", cfg.Session.MaxICMPFailures, cfg.Session.DTLSVersion)
	if cfg.Bootstrap.Enabled {
		fmt.Printf("bootstrap: enabled, ssid=%d\n", cfg.Bootstrap.SSID)
	} else {
		fmt.Println("bootstrap: disabled")
	}

	fmt.Printf("servers (%d):\n", len(cfg.Servers))
	for _, s := range cfg.Servers {
		fmt.Printf("  ssid=%-5d uri=%-30s security=%-12s binding=%s\n", s.SSID, s.URI, s.SecurityMode, s.Binding)
	}
	return nil
}
