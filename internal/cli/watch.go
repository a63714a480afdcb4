package cli

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/r9s-ai/erbfmt/internal/config"
	"github.com/r9s-ai/erbfmt/internal/formatter"
	"github.com/r9s-ai/erbfmt/internal/watch"
)

func newWatchCmd(opts Options) *cobra.Command {
	var (
		globalConfig string
		debounce     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "watch [dir]",
		Short: "Reformat templates in dir whenever they are written",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			logger := newLogger(opts.Stderr)
			f := formatter.New(config.NewResolver(dir, globalConfig, logger), &writerNotifier{w: opts.Stderr}, logger)
			w, err := watch.New(dir, f, logger, debounce)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return w.Run(ctx)
		},
	}
	fs := cmd.Flags()
	fs.StringVar(&globalConfig, "global-config", "", "formatter.json used when the workspace has none")
	fs.DurationVar(&debounce, "debounce", watch.DefaultDebounce, "quiet period before a written file is formatted")
	return cmd
}
