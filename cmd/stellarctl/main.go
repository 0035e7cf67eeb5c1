// Command stellarctl manages Stellar Map content and inspects learner maps.
package main

import (
	"fmt"
	"os"

	"github.com/alem-hub/stellar-map/cmd/stellarctl/commands"
)

// Version information - set during build
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.SetVersionInfo(version, commit, date)

	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
