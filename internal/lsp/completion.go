package lsp

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"go.lsp.dev/protocol"

	"github.com/r9s-ai/erbfmt/internal/beautify"
	"github.com/r9s-ai/erbfmt/internal/formatter"
)

func (s *Server) handleCompletion(id *json.RawMessage, params json.RawMessage) error {
	var p protocol.CompletionParams
	if err := json.Unmarshal(params, &p); err != nil {
		return s.replyError(id, codeInvalidParams, "invalid params for completion")
	}
	key := string(p.TextDocument.URI)
	doc, ok := s.docs[key]
	if !ok || !isConfigDocument(key) {
		return s.reply(id, []protocol.CompletionItem{})
	}
	return s.reply(id, complete(doc.text, fromPosition(p.Position)))
}

func (s *Server) handleHover(id *json.RawMessage, params json.RawMessage) error {
	var p protocol.HoverParams
	if err := json.Unmarshal(params, &p); err != nil {
		return s.replyError(id, codeInvalidParams, "invalid params for hover")
	}
	key := string(p.TextDocument.URI)
	doc, ok := s.docs[key]
	if !ok || !isConfigDocument(key) {
		return s.reply(id, nil)
	}
	word, span := wordAt(doc.text, fromPosition(p.Position))
	if word == "" {
		return s.reply(id, nil)
	}
	value, ok := hoverDoc(word)
	if !ok {
		return s.reply(id, nil)
	}
	rng := toRange(span)
	return s.reply(id, protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.Markdown,
			Value: value,
		},
		Range: &rng,
	})
}

// jsonContext describes where in a formatter.json the cursor is.
type jsonContext struct {
	depth    int
	inString bool
	isKey    bool
	partial  string
	member   string // key owning the value under the cursor
	owner    string // key owning the innermost open object or array
}

func scanJSONPrefix(prefix string) jsonContext {
	var (
		c         jsonContext
		stack     []byte
		owners    []string
		expectKey bool
		lastKey   string
		valueKey  string
		strStart  int
	)
	for i := 0; i < len(prefix); i++ {
		ch := prefix[i]
		if c.inString {
			switch ch {
			case '\\':
				i++
			case '"':
				c.inString = false
				if c.isKey {
					lastKey = prefix[strStart:i]
				}
			}
			continue
		}
		switch ch {
		case '"':
			c.inString = true
			c.isKey = expectKey
			strStart = i + 1
		case '{', '[':
			stack = append(stack, ch)
			owners = append(owners, valueKey)
			valueKey = ""
			expectKey = ch == '{'
		case '}', ']':
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
				owners = owners[:len(owners)-1]
			}
			expectKey = false
		case ',':
			valueKey = ""
			expectKey = len(stack) > 0 && stack[len(stack)-1] == '{'
		case ':':
			expectKey = false
			c.member = lastKey
			valueKey = lastKey
		}
	}
	if len(owners) > 0 {
		c.owner = owners[len(owners)-1]
	}
	for _, b := range stack {
		if b == '{' {
			c.depth++
		}
	}
	if c.inString {
		c.partial = prefix[strStart:]
	}
	return c
}

func complete(text string, pos formatter.Position) []protocol.CompletionItem {
	ctx := scanJSONPrefix(text[:formatter.Offset(text, pos)])
	if !ctx.inString {
		return []protocol.CompletionItem{}
	}
	var items []protocol.CompletionItem
	switch {
	case ctx.isKey && ctx.depth == 1:
		for _, k := range append(formatter.ConfigKeys(), "onSave") {
			doc, _ := hoverDoc(k)
			items = append(items, protocol.CompletionItem{
				Label:         k,
				Kind:          protocol.CompletionItemKindModule,
				Documentation: protocol.MarkupContent{Kind: protocol.Markdown, Value: doc},
			})
		}
	case ctx.isKey && ctx.depth == 2:
		family, known := familyOf(ctx.owner)
		for _, spec := range beautify.Specs {
			if known && spec.Family != beautify.FamilyCommon && spec.Family != family {
				continue
			}
			items = append(items, protocol.CompletionItem{
				Label:         spec.Name,
				Kind:          protocol.CompletionItemKindProperty,
				Detail:        optionDetail(spec),
				Documentation: protocol.MarkupContent{Kind: protocol.Markdown, Value: spec.Doc},
			})
		}
	case !ctx.isKey && ctx.depth == 2:
		spec, ok := beautify.LookupSpec(ctx.member)
		if !ok {
			break
		}
		for _, v := range spec.Enum {
			items = append(items, protocol.CompletionItem{
				Label:  v,
				Kind:   protocol.CompletionItemKindEnumMember,
				Detail: spec.Name,
			})
		}
	}

	out := make([]protocol.CompletionItem, 0, len(items))
	for _, it := range items {
		if strings.HasPrefix(it.Label, ctx.partial) {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out
}

// familyOf returns the routine family reading the options under configKey.
func familyOf(configKey string) (beautify.Family, bool) {
	for _, id := range formatter.Languages() {
		if r, _ := formatter.Dispatch(id, nil); r.ConfigKey == configKey {
			return r.Family, true
		}
	}
	return "", false
}

func optionDetail(spec beautify.OptionSpec) string {
	def, err := json.Marshal(spec.Default)
	if err != nil {
		return string(spec.Kind)
	}
	return fmt.Sprintf("%s, default %s", spec.Kind, def)
}

func hoverDoc(word string) (string, bool) {
	if word == "onSave" {
		return "`onSave`: format `css.erb`, `scss.erb` and `html.erb` files before they are saved. Defaults to `true`.", true
	}
	if spec, ok := beautify.LookupSpec(word); ok {
		return fmt.Sprintf("`%s` *(%s)*\n\n%s\n\nApplies to: %s", spec.Name, optionDetail(spec), spec.Doc, spec.Family), true
	}
	var langs []string
	for _, id := range formatter.Languages() {
		if r, _ := formatter.Dispatch(id, nil); r.ConfigKey == word {
			langs = append(langs, "`"+id+"`")
		}
	}
	if len(langs) == 0 {
		return "", false
	}
	return fmt.Sprintf("`%s`: formatter options for %s files.", word, strings.Join(langs, ", ")), true
}

// wordAt returns the option or language key under pos.
func wordAt(text string, pos formatter.Position) (string, formatter.Span) {
	off := formatter.Offset(text, pos)
	left := off
	for left > 0 && isWordChar(text[left-1]) {
		left--
	}
	right := off
	for right < len(text) && isWordChar(text[right]) {
		right++
	}
	if left == right {
		return "", formatter.Span{}
	}
	return text[left:right], formatter.Span{
		Start: formatter.PositionAt(text, left),
		End:   formatter.PositionAt(text, right),
	}
}

func isWordChar(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9') || b == '_' || b == '.'
}
