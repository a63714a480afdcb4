// Package watch reformats ERB templates as they are written, for editors that
// cannot run the language server's before-save hook.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/r9s-ai/erbfmt/internal/formatter"
)

const DefaultDebounce = 200 * time.Millisecond

type Watcher struct {
	root      string
	formatter *formatter.Formatter
	logger    *log.Logger
	debounce  time.Duration

	fsw    *fsnotify.Watcher
	timers map[string]*time.Timer
	due    chan string
	done   chan struct{}
}

// New watches every directory below root except node_modules and hidden
// ones. Events are queued until Run drains them.
func New(root string, f *formatter.Formatter, logger *log.Logger, debounce time.Duration) (*Watcher, error) {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve watch root: %w", err)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}
	w := &Watcher{
		root:      abs,
		formatter: f,
		logger:    logger,
		debounce:  debounce,
		fsw:       fsw,
		timers:    map[string]*time.Timer{},
		due:       make(chan string),
		done:      make(chan struct{}),
	}
	if err := w.addTree(abs, false); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return w, nil
}

// Run applies the save hook to written templates until ctx is cancelled.
// Formatting happens on the Run goroutine only.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.close()
	w.logger.Printf("watching %s", w.root)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Printf("watch error: %v", err)
		case path := <-w.due:
			delete(w.timers, path)
			w.apply(path)
		}
	}
}

func (w *Watcher) close() {
	close(w.done)
	for _, t := range w.timers {
		t.Stop()
	}
	if err := w.fsw.Close(); err != nil {
		w.logger.Printf("close watcher: %v", err)
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
		return
	}
	if ev.Has(fsnotify.Create) {
		if st, err := os.Stat(ev.Name); err == nil && st.IsDir() {
			if err := w.addTree(ev.Name, true); err != nil {
				w.logger.Printf("watch %s: %v", ev.Name, err)
			}
			return
		}
	}
	if _, ok := formatter.LanguageForPath(ev.Name); ok {
		w.schedule(ev.Name)
	}
}

// schedule (re)starts the debounce timer for path.
func (w *Watcher) schedule(path string) {
	if t, ok := w.timers[path]; ok {
		t.Stop()
	}
	w.timers[path] = time.AfterFunc(w.debounce, func() {
		select {
		case w.due <- path:
		case <-w.done:
		}
	})
}

// addTree watches dir and its subdirectories. When scan is set, templates
// already inside are scheduled, since their events fired before the watch
// existed.
func (w *Watcher) addTree(dir string, scan bool) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			if _, ok := formatter.LanguageForPath(path); ok && scan {
				w.schedule(path)
			}
			return nil
		}
		if path != w.root && skipDir(d.Name()) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}

func skipDir(name string) bool {
	return name == "node_modules" || strings.HasPrefix(name, ".")
}

// apply runs the save hook over path and rewrites it when the output differs.
func (w *Watcher) apply(path string) {
	lang, ok := formatter.LanguageForPath(path)
	if !ok {
		return
	}
	src, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			w.logger.Printf("read %s: %v", path, err)
		}
		return
	}
	edit, ok := w.formatter.OnSave(string(src), lang)
	if !ok || edit.NewText == string(src) {
		return
	}
	mode := os.FileMode(0o644)
	if st, err := os.Stat(path); err == nil {
		mode = st.Mode().Perm()
	}
	if err := os.WriteFile(path, []byte(edit.NewText), mode); err != nil {
		w.logger.Printf("write %s: %v", path, err)
		return
	}
	w.logger.Printf("formatted %s", path)
}
