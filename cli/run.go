// Package cli exposes the erbfmt command line for embedding in other binaries.
package cli

import internalcli "github.com/r9s-ai/erbfmt/internal/cli"

type (
	BuildInfo           = internalcli.BuildInfo
	Options             = internalcli.Options
	ServeRunner         = internalcli.ServeRunner
	ServeRuntimeOptions = internalcli.ServeRuntimeOptions
)

// Run executes the erbfmt command tree with args, excluding the program name.
func Run(args []string, opts Options) error {
	return internalcli.Run(args, opts)
}
