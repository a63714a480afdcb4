package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
)

const (
	LocalDir  = ".vscode"
	LocalName = "formatter.json"
)

var ErrLocalConfigExists = errors.New("local config file exists")

// Resolver looks options up in the workspace-local formatter.json first and
// the bundled default second. Files are read on every call.
type Resolver struct {
	root       string
	globalPath string
	logger     *log.Logger
}

// NewResolver builds a resolver for workspaceRoot. An empty globalPath
// selects the embedded default config.
func NewResolver(workspaceRoot, globalPath string, logger *log.Logger) *Resolver {
	root := strings.TrimSpace(workspaceRoot)
	if root == "" {
		root = "."
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Resolver{
		root:       root,
		globalPath: strings.TrimSpace(globalPath),
		logger:     logger,
	}
}

// Resolve returns the options for languageKey, or empty options when neither
// config provides them.
func Resolve(languageKey, workspaceRoot, bundledPath string) Options {
	return NewResolver(workspaceRoot, bundledPath, nil).Options(languageKey)
}

func (r *Resolver) WorkspaceRoot() string { return r.root }

func (r *Resolver) LocalPath() string {
	return filepath.Join(r.root, LocalDir, LocalName)
}

// GlobalPath is empty when the embedded default is in use.
func (r *Resolver) GlobalPath() string { return r.globalPath }

func (r *Resolver) global() Source {
	if r.globalPath == "" {
		return BundledSource()
	}
	return FileSource(r.globalPath)
}

func (r *Resolver) sources() []Source {
	return []Source{FileSource(r.LocalPath()), r.global()}
}

func (r *Resolver) Options(languageKey string) Options {
	loaders := make([]func() (Options, error), 0, 2)
	for _, src := range r.sources() {
		loaders = append(loaders, func() (Options, error) { return src.options(languageKey) })
	}
	opts, err := FirstOf(loaders...)
	if err != nil {
		r.logger.Printf("no options for %q, using defaults: %v", languageKey, err)
		return Options{}
	}
	return opts
}

// OnSave reports whether format-on-save is enabled. Defaults to true.
func (r *Resolver) OnSave() bool {
	loaders := make([]func() (bool, error), 0, 2)
	for _, src := range r.sources() {
		loaders = append(loaders, src.onSave)
	}
	v, err := FirstOf(loaders...)
	if err != nil {
		r.logger.Printf("onSave not configured, defaulting to true: %v", err)
		return true
	}
	return v
}

// GenerateLocal copies the bundled config to LocalPath. The file is created
// with O_EXCL, so an existing file is never touched and ErrLocalConfigExists
// is returned instead.
func (r *Resolver) GenerateLocal() (string, error) {
	local := r.LocalPath()
	content, err := r.global().Read()
	if err != nil {
		return local, fmt.Errorf("read bundled config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
		return local, fmt.Errorf("create config dir: %w", err)
	}
	f, err := os.OpenFile(local, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return local, ErrLocalConfigExists
		}
		return local, fmt.Errorf("create file %q: %w", local, err)
	}
	if _, err := f.Write(content); err != nil {
		_ = f.Close()
		_ = os.Remove(local)
		return local, fmt.Errorf("write file %q: %w", local, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(local)
		return local, fmt.Errorf("close file %q: %w", local, err)
	}
	return local, nil
}

// GenerateNotice renders the user-facing message for a GenerateLocal result.
func GenerateNotice(path string, err error) string {
	switch {
	case err == nil:
		return "Generate local config file: " + path
	case errors.Is(err, ErrLocalConfigExists):
		return "Local config file existed: " + path
	default:
		return "Failed to generate local config file: " + err.Error()
	}
}

// EditablePath returns the config a user should open: the local file when it
// exists, otherwise the global file when it is on disk.
func (r *Resolver) EditablePath() (string, bool) {
	if fileExists(r.LocalPath()) {
		return r.LocalPath(), true
	}
	if r.globalPath != "" && fileExists(r.globalPath) {
		return r.globalPath, true
	}
	return "", false
}

func fileExists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && !st.IsDir()
}
