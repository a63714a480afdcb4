package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/r9s-ai/erbfmt/internal/config"
)

func newInitCmd(opts Options) *cobra.Command {
	var (
		workspace    string
		globalConfig string
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write .vscode/formatter.json into the workspace",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.NewResolver(workspace, globalConfig, newLogger(opts.Stderr)).GenerateLocal()
			if _, werr := fmt.Fprintln(opts.Stdout, config.GenerateNotice(path, err)); werr != nil {
				return werr
			}
			if err != nil && !errors.Is(err, config.ErrLocalConfigExists) {
				return fmt.Errorf("init: %w", err)
			}
			return nil
		},
	}
	fs := cmd.Flags()
	fs.StringVar(&workspace, "workspace", ".", "workspace to write the config into")
	fs.StringVar(&globalConfig, "global-config", "", "formatter.json to copy instead of the built-in default")
	return cmd
}
