package lsp

import (
	"encoding/json"

	"go.lsp.dev/protocol"

	"github.com/r9s-ai/erbfmt/internal/formatter"
)

// Client formatting options are not applied; formatter.json is the single
// source of formatting settings.
func (s *Server) handleFormatting(id *json.RawMessage, params json.RawMessage) error {
	var p protocol.DocumentFormattingParams
	if err := json.Unmarshal(params, &p); err != nil {
		return s.replyError(id, codeInvalidParams, "invalid params for formatting")
	}
	key := string(p.TextDocument.URI)
	doc, ok := s.docs[key]
	if !ok {
		return s.reply(id, nil)
	}
	edit, ok := s.formatter().Format(doc.text, languageOf(key, doc), nil)
	return s.replyEdit(id, edit, ok)
}

func (s *Server) handleRangeFormatting(id *json.RawMessage, params json.RawMessage) error {
	var p protocol.DocumentRangeFormattingParams
	if err := json.Unmarshal(params, &p); err != nil {
		return s.replyError(id, codeInvalidParams, "invalid params for rangeFormatting")
	}
	key := string(p.TextDocument.URI)
	doc, ok := s.docs[key]
	if !ok {
		return s.reply(id, nil)
	}
	span := fromRange(p.Range)
	edit, ok := s.formatter().Format(doc.text, languageOf(key, doc), &span)
	return s.replyEdit(id, edit, ok)
}

func (s *Server) handleWillSaveWaitUntil(id *json.RawMessage, params json.RawMessage) error {
	var p protocol.WillSaveTextDocumentParams
	if err := json.Unmarshal(params, &p); err != nil {
		return s.replyError(id, codeInvalidParams, "invalid params for willSaveWaitUntil")
	}
	key := string(p.TextDocument.URI)
	doc, ok := s.docs[key]
	if !ok {
		return s.reply(id, nil)
	}
	edit, ok := s.formatter().OnSave(doc.text, languageOf(key, doc))
	return s.replyEdit(id, edit, ok)
}

func (s *Server) replyEdit(id *json.RawMessage, edit formatter.Edit, ok bool) error {
	if !ok {
		return s.reply(id, nil)
	}
	return s.reply(id, []protocol.TextEdit{toTextEdit(edit)})
}

func toTextEdit(edit formatter.Edit) protocol.TextEdit {
	return protocol.TextEdit{
		Range:   toRange(edit.Span),
		NewText: edit.NewText,
	}
}

func toRange(span formatter.Span) protocol.Range {
	return protocol.Range{
		Start: toPosition(span.Start),
		End:   toPosition(span.End),
	}
}

func toPosition(p formatter.Position) protocol.Position {
	return protocol.Position{Line: uint32(p.Line), Character: uint32(p.Character)}
}

func fromRange(r protocol.Range) formatter.Span {
	return formatter.Span{
		Start: fromPosition(r.Start),
		End:   fromPosition(r.End),
	}
}

func fromPosition(p protocol.Position) formatter.Position {
	return formatter.Position{Line: int(p.Line), Character: int(p.Character)}
}
