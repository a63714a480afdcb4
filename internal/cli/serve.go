package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/r9s-ai/erbfmt/internal/lsp"
)

type ServeRuntimeOptions struct {
	Stdin         io.Reader
	Stdout        io.Writer
	Stderr        io.Writer
	BuildInfo     BuildInfo
	WorkspaceRoot string
	GlobalConfig  string
}

type ServeRunner func(opts ServeRuntimeOptions) error

type serveOptions struct {
	workspace    string
	globalConfig string
}

func newServeCmd(opts Options) *cobra.Command {
	var serveOpts serveOptions
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the language server over stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServeWithOptions(opts, serveOpts)
		},
	}
	fs := cmd.Flags()
	fs.StringVar(&serveOpts.workspace, "workspace", "", "workspace root used until the client sends one")
	fs.StringVar(&serveOpts.globalConfig, "global-config", "", "formatter.json used when the workspace has none")
	return cmd
}

func runServeWithOptions(opts Options, serveOpts serveOptions) error {
	return opts.ServeRunner(ServeRuntimeOptions{
		Stdin:         opts.Stdin,
		Stdout:        opts.Stdout,
		Stderr:        opts.Stderr,
		BuildInfo:     opts.BuildInfo,
		WorkspaceRoot: serveOpts.workspace,
		GlobalConfig:  serveOpts.globalConfig,
	})
}

func defaultServeRunner(opts ServeRuntimeOptions) error {
	srv := lsp.NewServerWithOptions(opts.Stdin, opts.Stdout, newLogger(opts.Stderr), lsp.Options{
		WorkspaceRoot: opts.WorkspaceRoot,
		GlobalConfig:  opts.GlobalConfig,
		Version:       opts.BuildInfo.Version,
	})
	if err := srv.Run(); err != nil {
		return fmt.Errorf("server exited with error: %w", err)
	}
	return nil
}
