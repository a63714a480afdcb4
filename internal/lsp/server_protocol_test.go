package lsp

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"

	"github.com/r9s-ai/erbfmt/internal/config"
)

func TestRun_InitializeShutdownExit(t *testing.T) {
	var in bytes.Buffer
	writeLSPMessage(&in, map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "initialize",
		"params":  map[string]any{"rootUri": "file:///tmp/ws"},
	})
	writeLSPMessage(&in, map[string]any{
		"jsonrpc": "2.0",
		"id":      2,
		"method":  "shutdown",
	})
	writeLSPMessage(&in, map[string]any{
		"jsonrpc": "2.0",
		"method":  "exit",
	})

	var out bytes.Buffer
	s := NewServer(&in, &out, log.New(io.Discard, "", 0))
	if err := s.Run(); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if s.root != "/tmp/ws" {
		t.Fatalf("expected root from rootUri, got %q", s.root)
	}

	msgs := readAllLSPMessages(t, out.Bytes())
	if len(msgs) != 2 {
		t.Fatalf("expected 2 responses, got %d", len(msgs))
	}
	if msgs[0]["id"] == nil || msgs[0]["result"] == nil {
		t.Fatalf("initialize response missing id/result: %+v", msgs[0])
	}
	if _, ok := msgs[1]["result"]; !ok || msgs[1]["id"] == nil {
		t.Fatalf("shutdown response missing id/result: %+v", msgs[1])
	}
}

func TestHandle_InitializeCapabilities(t *testing.T) {
	s, out := newTestServer(t, "")
	call(t, s, 1, "initialize", map[string]any{
		"rootPath":              "/srv/app",
		"initializationOptions": map[string]any{"globalConfig": "/etc/erbfmt.json"},
	})

	msgs := readAllLSPMessages(t, out.Bytes())
	caps := msgs[0]["result"].(map[string]any)["capabilities"].(map[string]any)
	if caps["documentFormattingProvider"] != true || caps["documentRangeFormattingProvider"] != true {
		t.Fatalf("formatting providers not advertised: %+v", caps)
	}
	sync := caps["textDocumentSync"].(map[string]any)
	if sync["willSaveWaitUntil"] != true || sync["change"] != float64(1) {
		t.Fatalf("unexpected textDocumentSync: %+v", sync)
	}
	cmds := caps["executeCommandProvider"].(map[string]any)["commands"].([]any)
	if len(cmds) != 3 {
		t.Fatalf("expected three commands, got %+v", cmds)
	}
	if s.root != "/srv/app" || s.globalConfig != "/etc/erbfmt.json" {
		t.Fatalf("unexpected root/global: %q %q", s.root, s.globalConfig)
	}
}

func TestWorkspaceRoot_Fallbacks(t *testing.T) {
	var p initializeParams
	if got := workspaceRoot(p); got != "" {
		t.Fatalf("expected empty root, got %q", got)
	}
	p.WorkspaceFolders = append(p.WorkspaceFolders, struct {
		URI string `json:"uri"`
	}{URI: "file:///home/me/site"})
	if got := workspaceRoot(p); got != "/home/me/site" {
		t.Fatalf("expected workspace folder root, got %q", got)
	}
	p.RootURI = "untitled:Untitled-1"
	if got := workspaceRoot(p); got != "/home/me/site" {
		t.Fatalf("non-file rootUri should be skipped, got %q", got)
	}
}

func TestHandle_DidOpenConfigPublishesDiagnostics(t *testing.T) {
	s, out := newTestServer(t, "")
	didOpen(t, s, "file:///tmp/ws/.vscode/formatter.json", "json", `{"onSave": "yes"}`)

	msgs := readAllLSPMessages(t, out.Bytes())
	if len(msgs) != 1 {
		t.Fatalf("expected diagnostics notification, got %+v", msgs)
	}
	if msgs[0]["method"] != "textDocument/publishDiagnostics" {
		t.Fatalf("expected publishDiagnostics, got: %+v", msgs[0])
	}
	diags := msgs[0]["params"].(map[string]any)["diagnostics"].([]any)
	if len(diags) != 1 {
		t.Fatalf("expected one diagnostic, got %+v", diags)
	}
}

func TestHandle_DidOpenTemplateIsQuiet(t *testing.T) {
	s, out := newTestServer(t, "")
	didOpen(t, s, "file:///tmp/ws/a.css.erb", "css.erb", "a{b:c}")
	if out.Len() != 0 {
		t.Fatalf("expected no output for template didOpen, got %q", out.String())
	}
	if got := s.docs["file:///tmp/ws/a.css.erb"]; got.languageID != "css.erb" || got.text != "a{b:c}" {
		t.Fatalf("document not stored: %+v", got)
	}
}

func TestHandle_InvalidHoverParamsReplyError(t *testing.T) {
	var out bytes.Buffer
	s := NewServer(stringsReader(""), &out, log.New(io.Discard, "", 0))

	rawID := json.RawMessage("7")
	if err := s.handle(inboundMessage{
		JSONRPC: "2.0",
		ID:      &rawID,
		Method:  "textDocument/hover",
		Params:  json.RawMessage(`{"oops":`),
	}); err != nil {
		t.Fatalf("handle hover should not return error: %v", err)
	}

	msgs := readAllLSPMessages(t, out.Bytes())
	if len(msgs) != 1 {
		t.Fatalf("expected one response, got %d", len(msgs))
	}
	if msgs[0]["error"] == nil {
		t.Fatalf("expected error response, got: %+v", msgs[0])
	}
	if _, ok := msgs[0]["result"]; ok {
		t.Fatalf("error response must not carry a result: %+v", msgs[0])
	}
}

func TestHandle_InvalidCompletionParamsReplyError(t *testing.T) {
	var out bytes.Buffer
	s := NewServer(stringsReader(""), &out, log.New(io.Discard, "", 0))
	rawID := json.RawMessage("9")
	if err := s.handle(inboundMessage{
		JSONRPC: "2.0",
		ID:      &rawID,
		Method:  "textDocument/completion",
		Params:  json.RawMessage(`{"bad":`),
	}); err != nil {
		t.Fatalf("handle completion should not return error: %v", err)
	}

	msgs := readAllLSPMessages(t, out.Bytes())
	if len(msgs) != 1 {
		t.Fatalf("expected one response, got %d", len(msgs))
	}
	if msgs[0]["error"] == nil {
		t.Fatalf("expected error response for invalid completion params")
	}
}

func TestHandle_CompletionInConfig(t *testing.T) {
	s, out := newTestServer(t, "")
	uri := "file:///tmp/ws/.vscode/formatter.json"
	s.docs[uri] = document{text: "{\n  \"css\": {\n    \"indent_si\n  }\n}\n", languageID: "json"}

	call(t, s, 8, "textDocument/completion", map[string]any{
		"textDocument": map[string]any{"uri": uri},
		"position":     map[string]any{"line": 2, "character": len("    \"indent_si")},
	})

	msgs := readAllLSPMessages(t, out.Bytes())
	if len(msgs) != 1 || msgs[0]["error"] != nil {
		t.Fatalf("expected one completion result, got %+v", msgs)
	}
	items := msgs[0]["result"].([]any)
	if len(items) != 1 || items[0].(map[string]any)["label"] != "indent_size" {
		t.Fatalf("expected indent_size completion, got %+v", items)
	}
}

func TestHandle_HoverInConfig(t *testing.T) {
	s, out := newTestServer(t, "")
	uri := "file:///tmp/ws/.vscode/formatter.json"
	s.docs[uri] = document{text: `{"html.erb": {"indent_scripts": "keep"}}`, languageID: "json"}

	call(t, s, 3, "textDocument/hover", map[string]any{
		"textDocument": map[string]any{"uri": uri},
		"position":     map[string]any{"line": 0, "character": 18},
	})

	msgs := readAllLSPMessages(t, out.Bytes())
	result, ok := msgs[0]["result"].(map[string]any)
	if !ok {
		t.Fatalf("expected hover result, got %+v", msgs[0])
	}
	rng := result["range"].(map[string]any)
	if rng["start"].(map[string]any)["character"] != float64(15) || rng["end"].(map[string]any)["character"] != float64(29) {
		t.Fatalf("unexpected hover range: %+v", rng)
	}
}

func newTestServer(t *testing.T, root string) (*Server, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	s := NewServerWithOptions(stringsReader(""), &out, log.New(io.Discard, "", 0), Options{WorkspaceRoot: root})
	return s, &out
}

func writeLocalConfig(t *testing.T, root, content string) {
	t.Helper()
	dir := filepath.Join(root, config.LocalDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, config.LocalName), []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func call(t *testing.T, s *Server, id int, method string, params any) {
	t.Helper()
	raw, err := json.Marshal(params)
	if err != nil {
		t.Fatalf("marshal %s params: %v", method, err)
	}
	rawID := json.RawMessage(fmt.Sprint(id))
	if err := s.handle(inboundMessage{JSONRPC: "2.0", ID: &rawID, Method: method, Params: raw}); err != nil {
		t.Fatalf("handle %s: %v", method, err)
	}
}

func didOpen(t *testing.T, s *Server, uri, languageID, text string) {
	t.Helper()
	raw, err := json.Marshal(map[string]any{
		"textDocument": map[string]any{
			"uri":        uri,
			"languageId": languageID,
			"version":    1,
			"text":       text,
		},
	})
	if err != nil {
		t.Fatalf("marshal didOpen params: %v", err)
	}
	if err := s.handle(inboundMessage{JSONRPC: "2.0", Method: "textDocument/didOpen", Params: raw}); err != nil {
		t.Fatalf("handle didOpen: %v", err)
	}
}

func writeLSPMessage(w *bytes.Buffer, payload any) {
	b, _ := json.Marshal(payload)
	_, _ = w.WriteString(fmt.Sprintf("Content-Length: %d\r\n\r\n", len(b)))
	_, _ = w.Write(b)
}

func readAllLSPMessages(t *testing.T, raw []byte) []map[string]any {
	t.Helper()
	r := bufio.NewReader(bytes.NewReader(raw))
	out := make([]map[string]any, 0, 4)
	for {
		msg, err := readMessage(r)
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("readMessage: %v", err)
		}
		var obj map[string]any
		if err := json.Unmarshal(msg, &obj); err != nil {
			t.Fatalf("unmarshal LSP message: %v", err)
		}
		out = append(out, obj)
	}
	return out
}

func stringsReader(s string) *bytes.Reader { return bytes.NewReader([]byte(s)) }
