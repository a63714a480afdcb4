package watch

import (
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/r9s-ai/erbfmt/internal/config"
	"github.com/r9s-ai/erbfmt/internal/formatter"
)

const formattedRule = "a {\n    b: c\n}\n"

func startWatcher(t *testing.T, root string) *Watcher {
	t.Helper()
	f := formatter.New(config.NewResolver(root, "", nil), nil, nil)
	w, err := New(root, f, nil, 20*time.Millisecond)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-errc)
	})
	return w
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return string(b)
}

func TestWatcherFormatsWrittenTemplate(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	startWatcher(t, root)

	path := filepath.Join(root, "app.css.erb")
	require.NoError(t, os.WriteFile(path, []byte("a{b:c}"), 0o600))

	require.Eventually(t, func() bool {
		return readFile(t, path) == formattedRule
	}, 5*time.Second, 20*time.Millisecond)

	st, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), st.Mode().Perm())
}

func TestWatcherPicksUpNewDirectories(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	startWatcher(t, root)

	dir := filepath.Join(root, "assets", "stylesheets")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, "theme.scss.erb")
	require.NoError(t, os.WriteFile(path, []byte("a{b:c}"), 0o644))

	require.Eventually(t, func() bool {
		return readFile(t, path) == formattedRule
	}, 5*time.Second, 20*time.Millisecond)
}

func TestWatcherLeavesOtherFilesAlone(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	startWatcher(t, root)

	plain := filepath.Join(root, "app.css")
	require.NoError(t, os.WriteFile(plain, []byte("a{b:c}"), 0o644))

	assert.Never(t, func() bool {
		return readFile(t, plain) != "a{b:c}"
	}, 300*time.Millisecond, 20*time.Millisecond)
}

func TestWatcherHonoursOnSaveSetting(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	dir := filepath.Join(root, config.LocalDir)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.LocalName), []byte(`{"onSave": false}`), 0o644))
	startWatcher(t, root)

	path := filepath.Join(root, "index.html.erb")
	require.NoError(t, os.WriteFile(path, []byte("<div><p>x</p></div>"), 0o644))

	assert.Never(t, func() bool {
		return readFile(t, path) != "<div><p>x</p></div>"
	}, 300*time.Millisecond, 20*time.Millisecond)
}

func TestApplySkipsUnchangedFiles(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	path := filepath.Join(root, "app.css.erb")
	require.NoError(t, os.WriteFile(path, []byte(formattedRule), 0o644))
	old := time.Now().Add(-time.Hour).Truncate(time.Second)
	require.NoError(t, os.Chtimes(path, old, old))

	w := &Watcher{
		formatter: formatter.New(config.NewResolver(root, "", nil), nil, nil),
		logger:    log.New(io.Discard, "", 0),
	}
	w.apply(path)

	st, err := os.Stat(path)
	require.NoError(t, err)
	assert.True(t, st.ModTime().Equal(old), "unchanged file was rewritten")

	w.apply(filepath.Join(root, "missing.css.erb"))
}

func TestSkipDir(t *testing.T) {
	t.Parallel()

	for _, name := range []string{".git", ".vscode", "node_modules"} {
		assert.True(t, skipDir(name), name)
	}
	for _, name := range []string{"app", "views", "assets"} {
		assert.False(t, skipDir(name), name)
	}
}
