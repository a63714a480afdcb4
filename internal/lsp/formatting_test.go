package lsp

import (
	"testing"

	"github.com/r9s-ai/erbfmt/internal/formatter"
)

func firstEdit(t *testing.T, msg map[string]any) (map[string]any, string) {
	t.Helper()
	edits, ok := msg["result"].([]any)
	if !ok || len(edits) != 1 {
		t.Fatalf("expected one text edit, got %+v", msg)
	}
	edit := edits[0].(map[string]any)
	return edit["range"].(map[string]any), edit["newText"].(string)
}

func position(rng map[string]any, side string) (float64, float64) {
	p := rng[side].(map[string]any)
	return p["line"].(float64), p["character"].(float64)
}

func TestFormatting_WholeDocument(t *testing.T) {
	s, out := newTestServer(t, t.TempDir())
	uri := "file:///ws/app/assets/a.css.erb"
	didOpen(t, s, uri, "css.erb", "a{b:c}")

	call(t, s, 1, "textDocument/formatting", map[string]any{
		"textDocument": map[string]any{"uri": uri},
		"options":      map[string]any{"tabSize": 2, "insertSpaces": true},
	})

	msgs := readAllLSPMessages(t, out.Bytes())
	if len(msgs) != 1 {
		t.Fatalf("expected one response, got %+v", msgs)
	}
	rng, text := firstEdit(t, msgs[0])
	if text != "a {\n    b: c\n}\n" {
		t.Fatalf("unexpected formatted text %q", text)
	}
	if l, c := position(rng, "end"); l != 0 || c != 6 {
		t.Fatalf("unexpected end position %v:%v", l, c)
	}
}

func TestFormatting_FallsBackToFileSuffix(t *testing.T) {
	s, out := newTestServer(t, t.TempDir())
	uri := "file:///ws/app/views/page.html.erb"
	didOpen(t, s, uri, "eruby", "<div><p>x</p></div>")

	call(t, s, 1, "textDocument/formatting", map[string]any{"textDocument": map[string]any{"uri": uri}})

	msgs := readAllLSPMessages(t, out.Bytes())
	_, text := firstEdit(t, msgs[0])
	if text != "<div>\n    <p>x</p>\n</div>\n" {
		t.Fatalf("unexpected formatted text %q", text)
	}
}

func TestFormatting_UnsupportedLanguageNotifies(t *testing.T) {
	s, out := newTestServer(t, t.TempDir())
	uri := "file:///ws/app.js"
	didOpen(t, s, uri, "javascript", "var a")

	call(t, s, 1, "textDocument/formatting", map[string]any{"textDocument": map[string]any{"uri": uri}})

	msgs := readAllLSPMessages(t, out.Bytes())
	if len(msgs) != 2 {
		t.Fatalf("expected notice and reply, got %+v", msgs)
	}
	if msgs[0]["method"] != "window/showMessage" {
		t.Fatalf("expected showMessage first, got %+v", msgs[0])
	}
	params := msgs[0]["params"].(map[string]any)
	if params["message"] != formatter.UnsupportedMessage || params["type"] != float64(3) {
		t.Fatalf("unexpected notice %+v", params)
	}
	if v, ok := msgs[1]["result"]; !ok || v != nil {
		t.Fatalf("expected null result, got %+v", msgs[1])
	}
}

func TestRangeFormatting(t *testing.T) {
	s, out := newTestServer(t, t.TempDir())
	uri := "file:///ws/a.scss.erb"
	didOpen(t, s, uri, "scss.erb", "x{}\na{b:c}\ny{}")

	call(t, s, 2, "textDocument/rangeFormatting", map[string]any{
		"textDocument": map[string]any{"uri": uri},
		"range": map[string]any{
			"start": map[string]any{"line": 1, "character": 0},
			"end":   map[string]any{"line": 1, "character": 6},
		},
		"options": map[string]any{"tabSize": 2, "insertSpaces": true},
	})

	msgs := readAllLSPMessages(t, out.Bytes())
	rng, text := firstEdit(t, msgs[0])
	if text != "a {\n    b: c\n}\n" {
		t.Fatalf("unexpected formatted text %q", text)
	}
	if l, c := position(rng, "start"); l != 1 || c != 0 {
		t.Fatalf("unexpected start %v:%v", l, c)
	}
	if l, c := position(rng, "end"); l != 1 || c != 6 {
		t.Fatalf("unexpected end %v:%v", l, c)
	}
}

func TestWillSaveWaitUntil(t *testing.T) {
	s, out := newTestServer(t, t.TempDir())
	uri := "file:///ws/a.css.erb"
	didOpen(t, s, uri, "css.erb", "a{b:c}")

	call(t, s, 3, "textDocument/willSaveWaitUntil", map[string]any{
		"textDocument": map[string]any{"uri": uri},
		"reason":       1,
	})

	msgs := readAllLSPMessages(t, out.Bytes())
	if _, text := firstEdit(t, msgs[0]); text != "a {\n    b: c\n}\n" {
		t.Fatalf("unexpected formatted text %q", text)
	}
}

func TestWillSaveWaitUntil_DisabledOrNotAllowListed(t *testing.T) {
	root := t.TempDir()
	writeLocalConfig(t, root, `{"onSave": false}`)
	s, out := newTestServer(t, root)
	didOpen(t, s, "file:///ws/a.css.erb", "css.erb", "a{b:c}")
	didOpen(t, s, "file:///ws/b.js", "javascript", "var a")

	call(t, s, 4, "textDocument/willSaveWaitUntil", map[string]any{
		"textDocument": map[string]any{"uri": "file:///ws/a.css.erb"},
		"reason":       1,
	})
	call(t, s, 5, "textDocument/willSaveWaitUntil", map[string]any{
		"textDocument": map[string]any{"uri": "file:///ws/b.js"},
		"reason":       1,
	})

	msgs := readAllLSPMessages(t, out.Bytes())
	if len(msgs) != 2 {
		t.Fatalf("expected two replies and no notices, got %+v", msgs)
	}
	for _, m := range msgs {
		if v, ok := m["result"]; !ok || v != nil {
			t.Fatalf("expected null result, got %+v", m)
		}
	}
}

func TestFormatting_InvalidParams(t *testing.T) {
	for _, method := range []string{"textDocument/formatting", "textDocument/rangeFormatting", "textDocument/willSaveWaitUntil", "workspace/executeCommand"} {
		s, out := newTestServer(t, "")
		call(t, s, 1, method, []int{1})
		msgs := readAllLSPMessages(t, out.Bytes())
		errObj, ok := msgs[0]["error"].(map[string]any)
		if !ok || errObj["code"] != float64(codeInvalidParams) {
			t.Fatalf("%s: expected invalid params error, got %+v", method, msgs[0])
		}
	}
}

func TestRangeConversion(t *testing.T) {
	span := formatter.Span{Start: formatter.Position{Line: 1, Character: 2}, End: formatter.Position{Line: 3, Character: 4}}
	if got := fromRange(toRange(span)); got != span {
		t.Fatalf("range round trip changed span: %+v", got)
	}
}
