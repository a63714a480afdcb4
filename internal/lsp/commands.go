package lsp

import (
	"encoding/json"

	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"

	"github.com/r9s-ai/erbfmt/internal/config"
)

const (
	commandGenerateLocalConfig = "erbfmt.generateLocalConfig"
	commandFormatDocument      = "erbfmt.formatDocument"
	commandOpenConfig          = "erbfmt.openConfig"
)

var commandNames = []string{
	commandGenerateLocalConfig,
	commandFormatDocument,
	commandOpenConfig,
}

const openConfigFailedMessage = "Can not open file!"

type applyEditParams struct {
	Label string        `json:"label,omitempty"`
	Edit  workspaceEdit `json:"edit"`
}

type workspaceEdit struct {
	Changes map[string][]protocol.TextEdit `json:"changes"`
}

type showDocumentParams struct {
	URI       string `json:"uri"`
	TakeFocus bool   `json:"takeFocus"`
}

func (s *Server) handleExecuteCommand(id *json.RawMessage, params json.RawMessage) error {
	var p protocol.ExecuteCommandParams
	if err := json.Unmarshal(params, &p); err != nil {
		return s.replyError(id, codeInvalidParams, "invalid params for executeCommand")
	}
	switch p.Command {
	case commandGenerateLocalConfig:
		path, err := config.NewResolver(s.root, s.globalConfig, s.logger).GenerateLocal()
		if err != nil {
			s.logger.Printf("generate local config: %v", err)
		}
		s.showMessage(config.GenerateNotice(path, err))
		return s.reply(id, nil)
	case commandFormatDocument:
		return s.formatDocumentCommand(id, p.Arguments)
	case commandOpenConfig:
		return s.openConfigCommand(id)
	default:
		return s.replyError(id, codeMethodNotFound, "unknown command: "+p.Command)
	}
}

// formatDocumentCommand formats the document named by the first argument and
// pushes the result to the client with workspace/applyEdit.
func (s *Server) formatDocumentCommand(id *json.RawMessage, args []any) error {
	if len(args) == 0 {
		return s.replyError(id, codeInvalidParams, commandFormatDocument+" expects a document URI")
	}
	key, ok := args[0].(string)
	if !ok {
		return s.replyError(id, codeInvalidParams, commandFormatDocument+" expects a document URI")
	}
	doc, ok := s.docs[key]
	if !ok {
		return s.reply(id, nil)
	}
	edit, ok := s.formatter().Format(doc.text, languageOf(key, doc), nil)
	if !ok {
		return s.reply(id, nil)
	}
	if err := s.request("workspace/applyEdit", applyEditParams{
		Label: "Format Document",
		Edit: workspaceEdit{
			Changes: map[string][]protocol.TextEdit{key: {toTextEdit(edit)}},
		},
	}); err != nil {
		return err
	}
	return s.reply(id, nil)
}

// openConfigCommand asks the client to show the config file in effect and
// returns its URI.
func (s *Server) openConfigCommand(id *json.RawMessage) error {
	path, ok := config.NewResolver(s.root, s.globalConfig, s.logger).EditablePath()
	if !ok {
		s.showMessage(openConfigFailedMessage)
		return s.reply(id, nil)
	}
	target := string(uri.File(path))
	if err := s.request("window/showDocument", showDocumentParams{URI: target, TakeFocus: true}); err != nil {
		return err
	}
	return s.reply(id, target)
}
