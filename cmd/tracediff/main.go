package main

import (
	"fmt"
	"os"

	"github.com/rtzoeller/perfetto/internal/cli"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	cmd := cli.NewRootCommand(version)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
