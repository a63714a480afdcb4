package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/r9s-ai/erbfmt/internal/config"
	"github.com/r9s-ai/erbfmt/internal/formatter"
)

type formatOptions struct {
	language     string
	write        bool
	workspace    string
	globalConfig string
	indentSize   int
	useTabs      bool
}

func newFormatCmd(opts Options) *cobra.Command {
	formatOpts := formatOptions{workspace: ".", indentSize: 4}
	cmd := &cobra.Command{
		Use:   "format [files...|-]",
		Short: "Format CSS and HTML ERB templates",
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := formatPaths(args)
			if err != nil {
				return err
			}
			if err := checkLanguageFlag(formatOpts.language); err != nil {
				return err
			}

			f := formatter.New(
				config.NewResolver(formatOpts.workspace, formatOpts.globalConfig, newLogger(opts.Stderr)),
				&writerNotifier{w: opts.Stderr},
				newLogger(opts.Stderr),
			)
			f.Overrides = formatOverrides(cmd, formatOpts)

			results := make([]string, len(paths))
			g := new(errgroup.Group)
			g.SetLimit(runtime.GOMAXPROCS(0))
			for i, path := range paths {
				g.Go(func() error {
					out, err := formatPath(f, path, formatOpts, opts.Stdin)
					results[i] = out
					return err
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}
			if formatOpts.write {
				return nil
			}
			for _, out := range results {
				if _, err := io.WriteString(opts.Stdout, out); err != nil {
					return err
				}
			}
			return nil
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&formatOpts.language, "language", "", "language id (css.erb, scss.erb, html.erb); inferred from the file name when empty")
	fs.BoolVarP(&formatOpts.write, "write", "w", false, "write result back to file")
	fs.StringVar(&formatOpts.workspace, "workspace", ".", "workspace whose .vscode/formatter.json is read")
	fs.StringVar(&formatOpts.globalConfig, "global-config", "", "formatter.json used when the workspace has none")
	fs.IntVar(&formatOpts.indentSize, "indent-size", 4, "override indent_size")
	fs.BoolVar(&formatOpts.useTabs, "tabs", false, "override indent_with_tabs")
	return cmd
}

// formatPaths drops blank and repeated arguments, so no file is formatted by
// two goroutines at once. Stdin may be named only once.
func formatPaths(args []string) ([]string, error) {
	paths := make([]string, 0, len(args))
	seen := map[string]bool{}
	for _, a := range args {
		p := strings.TrimSpace(a)
		if p == "" {
			continue
		}
		key := p
		if p != "-" {
			key = filepath.Clean(p)
		}
		if seen[key] {
			if p == "-" {
				return nil, errors.New("stdin (-) can be given only once")
			}
			continue
		}
		seen[key] = true
		paths = append(paths, p)
	}
	if len(paths) == 0 {
		paths = []string{"-"}
	}
	return paths, nil
}

func checkLanguageFlag(language string) error {
	if language == "" {
		return nil
	}
	if _, ok := formatter.Dispatch(language, nil); ok {
		return nil
	}
	if s, ok := formatter.Suggest(language); ok {
		return fmt.Errorf("unsupported language %q; did you mean %q?", language, s)
	}
	return fmt.Errorf("unsupported language %q; expected one of %s", language, strings.Join(formatter.Languages(), ", "))
}

// formatOverrides returns the options given explicitly on the command line.
func formatOverrides(cmd *cobra.Command, formatOpts formatOptions) config.Options {
	overrides := config.Options{}
	if cmd.Flags().Changed("indent-size") {
		overrides["indent_size"] = formatOpts.indentSize
	}
	if cmd.Flags().Changed("tabs") {
		overrides["indent_with_tabs"] = formatOpts.useTabs
	}
	return overrides
}

func formatPath(f *formatter.Formatter, path string, formatOpts formatOptions, in io.Reader) (string, error) {
	if path == "-" && formatOpts.write {
		return "", errors.New("--write requires a file path")
	}
	language := formatOpts.language
	if language == "" {
		if path == "-" {
			return "", errors.New("--language is required when reading stdin")
		}
		id, ok := formatter.LanguageForPath(path)
		if !ok {
			return "", fmt.Errorf("cannot infer the language of %q; pass --language", path)
		}
		language = id
	}

	src, err := readFormatSource(path, in)
	if err != nil {
		return "", err
	}
	formatted := string(src)
	if edit, ok := f.Format(formatted, language, nil); ok {
		formatted = edit.NewText
	}
	if formatOpts.write {
		return "", writeFormattedOutput(path, src, formatted)
	}
	return formatted, nil
}

func readFormatSource(path string, in io.Reader) ([]byte, error) {
	if path == "-" {
		src, err := io.ReadAll(in)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return src, nil
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file %q: %w", path, err)
	}
	return src, nil
}

func writeFormattedOutput(path string, src []byte, formatted string) error {
	if formatted == string(src) {
		return nil
	}
	mode := os.FileMode(0o644)
	if st, statErr := os.Stat(path); statErr == nil {
		mode = st.Mode().Perm()
	}
	if err := os.WriteFile(path, []byte(formatted), mode); err != nil {
		return fmt.Errorf("write file %q: %w", path, err)
	}
	return nil
}

// writerNotifier prints notices on their own line. Concurrent formats share
// one instance.
type writerNotifier struct {
	mu sync.Mutex
	w  io.Writer
}

func (n *writerNotifier) Notify(message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	_, _ = fmt.Fprintln(n.w, message)
}
