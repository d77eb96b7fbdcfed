// Command lwm2mcored runs the LwM2M client session core: registration,
// update and de-registration lifecycle management against a fixed set
// of servers loaded from a config file.
package main

import (
	"fmt"
	"os"

	"github.com/dhuga/lwm2mcore/cmd/lwm2mcored/commands"
)

// Build-time variables injected via ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.Version = version
	commands.Commit = commit
	commands.Date = date

	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
