// Command drvbuild builds, publishes and verifies the PV drivers.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/drvbuild/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
