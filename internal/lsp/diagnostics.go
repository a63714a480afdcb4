package lsp

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"slices"
	"strings"

	"github.com/agnivade/levenshtein"
	"go.lsp.dev/protocol"

	"github.com/r9s-ai/erbfmt/internal/beautify"
	"github.com/r9s-ai/erbfmt/internal/formatter"
)

const diagnosticSource = "erbfmt"

const utf8BOM = "\ufeff"

// collectDiagnostics validates a formatter.json document.
func collectDiagnostics(text string) []protocol.Diagnostic {
	c := &configChecker{text: text}
	src := strings.TrimPrefix(text, utf8BOM)
	if strings.TrimSpace(src) == "" {
		return []protocol.Diagnostic{}
	}
	c.checkDocument(src, len(text)-len(src))
	if c.diags == nil {
		return []protocol.Diagnostic{}
	}
	return c.diags
}

type configChecker struct {
	text  string
	diags []protocol.Diagnostic
}

func (c *configChecker) add(start, end int, sev protocol.DiagnosticSeverity, msg string) {
	c.diags = append(c.diags, protocol.Diagnostic{
		Range: toRange(formatter.Span{
			Start: formatter.PositionAt(c.text, start),
			End:   formatter.PositionAt(c.text, end),
		}),
		Severity: sev,
		Source:   diagnosticSource,
		Message:  msg,
	})
}

// syntaxError reports the first JSON syntax error in src, which starts at
// base within the document. The decoder's own offsets are relative to the
// value it was reading, so src is re-validated as a whole.
func (c *configChecker) syntaxError(src string, base int, cause error) {
	msg, off := cause.Error(), len(src)
	var v any
	var se *json.SyntaxError
	if err := json.Unmarshal([]byte(src), &v); errors.As(err, &se) {
		msg, off = se.Error(), int(se.Offset)-1
	}
	start := base + max(off, 0)
	c.add(start, start+1, protocol.DiagnosticSeverityError, msg)
}

func (c *configChecker) checkDocument(src string, base int) {
	dec := json.NewDecoder(strings.NewReader(src))
	tok, err := dec.Token()
	if err != nil {
		c.syntaxError(src, base, err)
		return
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		end := base + int(dec.InputOffset())
		c.add(base, end, protocol.DiagnosticSeverityError, "formatter.json must contain a JSON object")
		return
	}
	err = walkObject(src, base, dec, func(key string, start, end int, raw json.RawMessage, valueStart int) {
		c.checkTopLevel(key, start, end, raw, valueStart)
	})
	if err != nil {
		c.syntaxError(src, base, err)
		return
	}
	if _, err := dec.Token(); err == nil {
		off := base + int(dec.InputOffset())
		c.add(off-1, off, protocol.DiagnosticSeverityError, "unexpected data after the top-level object")
	} else if !errors.Is(err, io.EOF) {
		c.syntaxError(src, base, err)
	}
}

// walkObject visits the members of the object whose '{' dec has just read,
// and consumes the closing '}'. Offsets passed to fn are absolute.
func walkObject(src string, base int, dec *json.Decoder, fn func(key string, start, end int, raw json.RawMessage, valueStart int)) error {
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := tok.(string)
		end := int(dec.InputOffset())
		start := quoteStart(src, end)

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		valueStart := int(dec.InputOffset()) - len(raw)
		fn(key, base+start, base+end, raw, base+valueStart)
	}
	_, err := dec.Token()
	return err
}

// quoteStart finds the opening quote of the string that ends just before end.
func quoteStart(src string, end int) int {
	for i := end - 2; i >= 0; i-- {
		if src[i] == '"' && (i == 0 || src[i-1] != '\\') {
			return i
		}
	}
	return 0
}

func (c *configChecker) checkTopLevel(key string, start, end int, raw json.RawMessage, valueStart int) {
	if key == "onSave" {
		var v *bool
		if err := json.Unmarshal(raw, &v); err != nil || v == nil {
			c.add(start, end, protocol.DiagnosticSeverityWarning, "onSave must be true or false")
		}
		return
	}
	if !slices.Contains(formatter.ConfigKeys(), key) {
		msg := fmt.Sprintf("no formatter reads %q", key)
		if s, ok := closest(key, append(formatter.ConfigKeys(), "onSave")); ok {
			msg += fmt.Sprintf("; did you mean %q?", s)
		}
		c.add(start, end, protocol.DiagnosticSeverityInformation, msg)
	}
	if len(raw) == 0 || raw[0] != '{' {
		c.add(start, end, protocol.DiagnosticSeverityWarning, fmt.Sprintf("%q must be an object of formatter options", key))
		return
	}
	src := string(raw)
	dec := json.NewDecoder(strings.NewReader(src))
	if _, err := dec.Token(); err != nil {
		return
	}
	_ = walkObject(src, valueStart, dec, func(name string, start, end int, raw json.RawMessage, _ int) {
		c.checkOption(name, start, end, raw)
	})
}

func (c *configChecker) checkOption(name string, start, end int, raw json.RawMessage) {
	spec, ok := beautify.LookupSpec(name)
	if !ok {
		msg := fmt.Sprintf("unknown option %q", name)
		if s, ok := closest(name, optionNames()); ok {
			msg += fmt.Sprintf("; did you mean %q?", s)
		}
		c.add(start, end, protocol.DiagnosticSeverityWarning, msg)
		return
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return
	}
	if !kindMatches(spec.Kind, v) {
		c.add(start, end, protocol.DiagnosticSeverityWarning, fmt.Sprintf("option %q must be of type %s", name, spec.Kind))
		return
	}
	if s, isString := v.(string); isString && len(spec.Enum) > 0 && !slices.Contains(spec.Enum, s) {
		c.add(start, end, protocol.DiagnosticSeverityWarning,
			fmt.Sprintf("option %q must be one of %s", name, strings.Join(spec.Enum, ", ")))
	}
}

func kindMatches(kind beautify.OptionKind, v any) bool {
	switch kind {
	case beautify.KindInt:
		f, ok := v.(float64)
		return ok && f == math.Trunc(f)
	case beautify.KindBool:
		_, ok := v.(bool)
		return ok
	case beautify.KindString:
		_, ok := v.(string)
		return ok
	case beautify.KindStringList:
		items, ok := v.([]any)
		if !ok {
			return false
		}
		for _, it := range items {
			if _, ok := it.(string); !ok {
				return false
			}
		}
		return true
	}
	return false
}

func optionNames() []string {
	names := make([]string, 0, len(beautify.Specs))
	for _, s := range beautify.Specs {
		names = append(names, s.Name)
	}
	return names
}

// closest returns the candidate within three edits of name.
func closest(name string, candidates []string) (string, bool) {
	best, bestDist := "", 4
	for _, cand := range candidates {
		if d := levenshtein.ComputeDistance(name, cand); d < bestDist {
			best, bestDist = cand, d
		}
	}
	return best, best != ""
}
