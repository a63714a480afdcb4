package main

import (
	"fmt"
	"os"

	"github.com/r9s-ai/erbfmt/cli"
)

// Set with -ldflags "-X main.version=...".
var (
	version   = "dev"
	commit    = "none"
	buildDate = ""
)

func main() {
	err := cli.Run(os.Args[1:], cli.Options{
		BuildInfo: cli.BuildInfo{
			Version:   version,
			Commit:    commit,
			BuildDate: buildDate,
		},
	})
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "erbfmt: %v\n", err)
		os.Exit(1)
	}
}
