package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dhuga/lwm2mcore/internal/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a sample configuration file",
	Long: `Initialize a sample lwm2mcored configuration file.

By default the file is created at $XDG_CONFIG_HOME/lwm2mcored/config.yaml.
Use --config to specify a custom path.`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	path := GetConfigFile()
	if path == "" {
		path = config.DefaultConfigPath()
	}

	if !initForce {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
		}
	}

	cfg := config.DefaultConfig()
	cfg.Servers = []config.ServerSeed{
		{SSID: 1, URI: "coap://example.org:5683", SecurityMode: "nosec", Binding: "U"},
	}
	if err := config.SaveConfig(cfg, path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Printf("Configuration file created at: %s\n", path)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Edit the configuration file to list your servers")
	fmt.Printf("  2. Start the daemon with: lwm2mcored serve --config %s\n", path)
	return nil
}
