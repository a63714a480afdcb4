package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestInitWritesLocalConfigOnce(t *testing.T) {
	t.Parallel()

	ws := t.TempDir()
	run := func() string {
		var out bytes.Buffer
		err := Run([]string{"init", "--workspace", ws}, Options{
			Stdin:       strings.NewReader(""),
			Stdout:      &out,
			Stderr:      &bytes.Buffer{},
			ServeRunner: func(opts ServeRuntimeOptions) error { return nil },
		})
		if err != nil {
			t.Fatalf("run init command: %v", err)
		}
		return out.String()
	}

	path := filepath.Join(ws, ".vscode", "formatter.json")
	if got := run(); got != "Generate local config file: "+path+"\n" {
		t.Fatalf("unexpected first init output: %q", got)
	}
	if err := os.WriteFile(path, []byte(`{"onSave": false}`), 0o644); err != nil {
		t.Fatalf("edit config: %v", err)
	}
	if got := run(); got != "Local config file existed: "+path+"\n" {
		t.Fatalf("unexpected second init output: %q", got)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	if string(b) != `{"onSave": false}` {
		t.Fatalf("init overwrote the local config: %q", b)
	}
}

func TestInitReportsMissingGlobalConfig(t *testing.T) {
	t.Parallel()

	ws := t.TempDir()
	var out bytes.Buffer
	err := Run([]string{"init", "--workspace", ws, "--global-config", filepath.Join(ws, "missing.json")}, Options{
		Stdin:       strings.NewReader(""),
		Stdout:      &out,
		Stderr:      &bytes.Buffer{},
		ServeRunner: func(opts ServeRuntimeOptions) error { return nil },
	})
	if err == nil {
		t.Fatalf("expected init error")
	}
	if !strings.HasPrefix(out.String(), "Failed to generate local config file: ") {
		t.Fatalf("unexpected init output: %q", out.String())
	}
}
