package lsp

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/url"
	"path"
	"strings"

	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"

	"github.com/r9s-ai/erbfmt/internal/config"
	"github.com/r9s-ai/erbfmt/internal/formatter"
)

const (
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
)

// Options seeds the server before the client's initialize request.
type Options struct {
	WorkspaceRoot string
	GlobalConfig  string
	Version       string
}

type document struct {
	text       string
	languageID string
}

type Server struct {
	in     *bufio.Reader
	out    io.Writer
	logger *log.Logger

	root         string
	globalConfig string
	version      string

	docs         map[string]document
	nextID       int
	shuttingDown bool
}

func NewServer(in io.Reader, out io.Writer, logger *log.Logger) *Server {
	return NewServerWithOptions(in, out, logger, Options{})
}

func NewServerWithOptions(in io.Reader, out io.Writer, logger *log.Logger, opts Options) *Server {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	root := opts.WorkspaceRoot
	if root == "" {
		root = "."
	}
	version := opts.Version
	if version == "" {
		version = "dev"
	}
	return &Server{
		in:           bufio.NewReader(in),
		out:          out,
		logger:       logger,
		root:         root,
		globalConfig: opts.GlobalConfig,
		version:      version,
		docs:         map[string]document{},
	}
}

type inboundMessage struct {
	JSONRPC string           `json:"jsonrpc"`
	ID      *json.RawMessage `json:"id,omitempty"`
	Method  string           `json:"method,omitempty"`
	Params  json.RawMessage  `json:"params,omitempty"`
}

type responseMessage struct {
	JSONRPC string `json:"jsonrpc"`
	ID      any    `json:"id"`
	Result  any    `json:"result"`
}

type errorMessage struct {
	JSONRPC string     `json:"jsonrpc"`
	ID      any        `json:"id"`
	Error   *respError `json:"error"`
}

type requestMessage struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type respError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type initializeParams struct {
	RootURI          string `json:"rootUri"`
	RootPath         string `json:"rootPath"`
	WorkspaceFolders []struct {
		URI string `json:"uri"`
	} `json:"workspaceFolders"`
	InitializationOptions struct {
		GlobalConfig string `json:"globalConfig"`
	} `json:"initializationOptions"`
}

type initializeResult struct {
	Capabilities serverCapabilities `json:"capabilities"`
	ServerInfo   serverInfo         `json:"serverInfo"`
}

type serverInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type serverCapabilities struct {
	TextDocumentSync                textDocumentSyncOptions `json:"textDocumentSync"`
	DocumentFormattingProvider      bool                    `json:"documentFormattingProvider"`
	DocumentRangeFormattingProvider bool                    `json:"documentRangeFormattingProvider"`
	ExecuteCommandProvider          executeCommandOptions   `json:"executeCommandProvider"`
	CompletionProvider              *completionProvider     `json:"completionProvider,omitempty"`
	HoverProvider                   bool                    `json:"hoverProvider"`
}

type textDocumentSyncOptions struct {
	OpenClose         bool                          `json:"openClose"`
	Change            protocol.TextDocumentSyncKind `json:"change"`
	WillSaveWaitUntil bool                          `json:"willSaveWaitUntil"`
}

type executeCommandOptions struct {
	Commands []string `json:"commands"`
}

type completionProvider struct {
	ResolveProvider   bool     `json:"resolveProvider"`
	TriggerCharacters []string `json:"triggerCharacters,omitempty"`
}

func (s *Server) Run() error {
	for {
		raw, err := readMessage(s.in)
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}

		var msg inboundMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			s.logger.Printf("invalid JSON-RPC payload: %v", err)
			continue
		}

		// Responses to our own requests carry no method.
		if msg.Method == "" {
			continue
		}
		if err := s.handle(msg); err != nil {
			if err == io.EOF {
				return nil
			}
			s.logger.Printf("handle method=%s error: %v", msg.Method, err)
		}
	}
}

func (s *Server) handle(msg inboundMessage) error {
	switch msg.Method {
	case "initialize":
		return s.handleInitialize(msg.ID, msg.Params)
	case "initialized":
		return nil
	case "shutdown":
		s.shuttingDown = true
		return s.reply(msg.ID, nil)
	case "exit":
		return io.EOF
	case "textDocument/didOpen":
		var p protocol.DidOpenTextDocumentParams
		if err := json.Unmarshal(msg.Params, &p); err != nil {
			return err
		}
		key := string(p.TextDocument.URI)
		s.docs[key] = document{
			text:       p.TextDocument.Text,
			languageID: string(p.TextDocument.LanguageID),
		}
		return s.publishDiagnostics(key)
	case "textDocument/didChange":
		var p protocol.DidChangeTextDocumentParams
		if err := json.Unmarshal(msg.Params, &p); err != nil {
			return err
		}
		if len(p.ContentChanges) == 0 {
			return nil
		}
		key := string(p.TextDocument.URI)
		doc := s.docs[key]
		doc.text = p.ContentChanges[len(p.ContentChanges)-1].Text
		s.docs[key] = doc
		return s.publishDiagnostics(key)
	case "textDocument/didClose":
		var p protocol.DidCloseTextDocumentParams
		if err := json.Unmarshal(msg.Params, &p); err != nil {
			return err
		}
		key := string(p.TextDocument.URI)
		delete(s.docs, key)
		if !isConfigDocument(key) {
			return nil
		}
		return s.notify("textDocument/publishDiagnostics", protocol.PublishDiagnosticsParams{
			URI:         p.TextDocument.URI,
			Diagnostics: []protocol.Diagnostic{},
		})
	case "textDocument/formatting":
		return s.handleFormatting(msg.ID, msg.Params)
	case "textDocument/rangeFormatting":
		return s.handleRangeFormatting(msg.ID, msg.Params)
	case "textDocument/willSaveWaitUntil":
		return s.handleWillSaveWaitUntil(msg.ID, msg.Params)
	case "workspace/executeCommand":
		return s.handleExecuteCommand(msg.ID, msg.Params)
	case "textDocument/completion":
		return s.handleCompletion(msg.ID, msg.Params)
	case "textDocument/hover":
		return s.handleHover(msg.ID, msg.Params)
	default:
		if msg.ID != nil {
			return s.reply(msg.ID, nil)
		}
		return nil
	}
}

func (s *Server) handleInitialize(id *json.RawMessage, params json.RawMessage) error {
	var p initializeParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return s.replyError(id, codeInvalidParams, "invalid params for initialize")
		}
	}
	if root := workspaceRoot(p); root != "" {
		s.root = root
	}
	if g := strings.TrimSpace(p.InitializationOptions.GlobalConfig); g != "" {
		s.globalConfig = g
	}
	s.logger.Printf("workspace root %s", s.root)

	res := initializeResult{
		Capabilities: serverCapabilities{
			TextDocumentSync: textDocumentSyncOptions{
				OpenClose:         true,
				Change:            protocol.TextDocumentSyncKindFull,
				WillSaveWaitUntil: true,
			},
			DocumentFormattingProvider:      true,
			DocumentRangeFormattingProvider: true,
			ExecuteCommandProvider:          executeCommandOptions{Commands: commandNames},
			CompletionProvider: &completionProvider{
				ResolveProvider:   false,
				TriggerCharacters: []string{"\""},
			},
			HoverProvider: true,
		},
		ServerInfo: serverInfo{
			Name:    "erbfmt",
			Version: s.version,
		},
	}
	return s.reply(id, res)
}

// workspaceRoot picks rootUri, then rootPath, then the first workspace folder.
func workspaceRoot(p initializeParams) string {
	if root := filePath(p.RootURI); root != "" {
		return root
	}
	if root := strings.TrimSpace(p.RootPath); root != "" {
		return root
	}
	for _, f := range p.WorkspaceFolders {
		if root := filePath(f.URI); root != "" {
			return root
		}
	}
	return ""
}

// filePath converts a file:// URI to a local path. Other schemes and URIs
// that do not parse yield "".
func filePath(u string) string {
	if !strings.HasPrefix(u, uri.FileScheme+"://") {
		return ""
	}
	if _, err := url.ParseRequestURI(u); err != nil {
		return ""
	}
	return uri.URI(u).Filename()
}

func (s *Server) formatter() *formatter.Formatter {
	resolver := config.NewResolver(s.root, s.globalConfig, s.logger)
	return formatter.New(resolver, formatter.NotifierFunc(s.showMessage), s.logger)
}

// languageOf prefers the id reported by the client and falls back to the file
// suffix, so clients that call ERB "eruby" still reach a routine.
func languageOf(key string, doc document) string {
	if _, ok := formatter.Dispatch(doc.languageID, nil); ok {
		return doc.languageID
	}
	if id, ok := formatter.LanguageForPath(path.Base(key)); ok {
		return id
	}
	return doc.languageID
}

func (s *Server) showMessage(message string) {
	params := protocol.ShowMessageParams{
		Type:    protocol.MessageTypeInfo,
		Message: message,
	}
	if err := s.notify("window/showMessage", params); err != nil {
		s.logger.Printf("showMessage: %v", err)
	}
}

func (s *Server) publishDiagnostics(key string) error {
	doc, ok := s.docs[key]
	if !ok || !isConfigDocument(key) {
		return nil
	}
	params := protocol.PublishDiagnosticsParams{
		URI:         protocol.DocumentURI(key),
		Diagnostics: collectDiagnostics(doc.text),
	}
	return s.notify("textDocument/publishDiagnostics", params)
}

func isConfigDocument(key string) bool {
	return path.Base(key) == config.LocalName
}

func (s *Server) reply(id *json.RawMessage, result any) error {
	if id == nil {
		return nil
	}
	return writeMessage(s.out, responseMessage{
		JSONRPC: "2.0",
		ID:      idValue(id),
		Result:  result,
	})
}

func (s *Server) replyError(id *json.RawMessage, code int, msg string) error {
	if id == nil {
		return nil
	}
	return writeMessage(s.out, errorMessage{
		JSONRPC: "2.0",
		ID:      idValue(id),
		Error: &respError{
			Code:    code,
			Message: msg,
		},
	})
}

func idValue(id *json.RawMessage) any {
	var v any
	if err := json.Unmarshal(*id, &v); err != nil {
		return string(*id)
	}
	return v
}

func (s *Server) notify(method string, params any) error {
	payload := map[string]any{
		"jsonrpc": "2.0",
		"method":  method,
		"params":  params,
	}
	return writeMessage(s.out, payload)
}

// request sends a server-to-client request. Replies are read by Run and
// dropped.
func (s *Server) request(method string, params any) error {
	s.nextID++
	return writeMessage(s.out, requestMessage{
		JSONRPC: "2.0",
		ID:      fmt.Sprintf("erbfmt-%d", s.nextID),
		Method:  method,
		Params:  params,
	})
}
