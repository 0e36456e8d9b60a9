// Command pushsync runs the background notification sync and single-event
// alerts from the command line.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/pushsync/internal/cli"
	"github.com/roach88/pushsync/internal/ir"
)

// set via ldflags during build/release
var version = ir.EngineVersion

func main() {
	cmd := cli.NewRootCommand()
	cmd.Version = version
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
