// Package beautify holds the CSS and HTML beautifier routines. Option names
// follow js-beautify so existing formatter.json files keep working.
package beautify

import (
	"math"
	"strings"
)

// Routine reformats text of one language family.
type Routine func(text string, opts map[string]any) (string, error)

type OptionKind string

const (
	KindInt        OptionKind = "integer"
	KindBool       OptionKind = "boolean"
	KindString     OptionKind = "string"
	KindStringList OptionKind = "array"
)

// Family scopes an option to the routines that read it.
type Family string

const (
	FamilyCommon Family = "common"
	FamilyCSS    Family = "css"
	FamilyHTML   Family = "html"
)

type OptionSpec struct {
	Name    string
	Kind    OptionKind
	Family  Family
	Default any
	Enum    []string
	Doc     string
}

var defaultInline = []string{
	"a", "abbr", "b", "bdi", "bdo", "br", "button", "cite", "code", "data",
	"dfn", "em", "i", "img", "input", "kbd", "label", "mark", "q", "s",
	"samp", "select", "small", "span", "strong", "sub", "sup", "time", "tt",
	"u", "var", "wbr",
}

// Specs lists every option the routines understand.
var Specs = []OptionSpec{
	{Name: "indent_size", Kind: KindInt, Family: FamilyCommon, Default: 4, Doc: "Number of `indent_char` repeated per indentation level."},
	{Name: "indent_char", Kind: KindString, Family: FamilyCommon, Default: " ", Doc: "Character used for indentation when `indent_with_tabs` is false."},
	{Name: "indent_with_tabs", Kind: KindBool, Family: FamilyCommon, Default: false, Doc: "Indent with one tab per level; overrides `indent_size` and `indent_char`."},
	{Name: "eol", Kind: KindString, Family: FamilyCommon, Default: "\n", Doc: "Line terminator written between output lines."},
	{Name: "end_with_newline", Kind: KindBool, Family: FamilyCommon, Default: false, Doc: "Terminate the output with `eol`."},
	{Name: "preserve_newlines", Kind: KindBool, Family: FamilyCommon, Default: true, Doc: "Keep blank lines found between statements."},
	{Name: "max_preserve_newlines", Kind: KindInt, Family: FamilyCommon, Default: 10, Doc: "Upper bound on consecutive line breaks kept when `preserve_newlines` is set."},
	{Name: "newline_between_rules", Kind: KindBool, Family: FamilyCSS, Default: true, Doc: "Put a blank line after each top-level rule."},
	{Name: "selector_separator_newline", Kind: KindBool, Family: FamilyCSS, Default: true, Doc: "Put each comma separated selector on its own line."},
	{Name: "indent_inner_html", Kind: KindBool, Family: FamilyHTML, Default: false, Doc: "Indent the children of `<html>`."},
	{Name: "indent_scripts", Kind: KindString, Family: FamilyHTML, Default: "normal", Enum: []string{"normal", "keep", "separate"}, Doc: "`normal` indents `<script>`/`<style>` bodies one level, `separate` aligns them with the tag, `keep` leaves them untouched."},
	{Name: "unformatted", Kind: KindStringList, Family: FamilyHTML, Default: []string{"pre", "textarea"}, Doc: "Tags whose content is copied verbatim."},
	{Name: "inline", Kind: KindStringList, Family: FamilyHTML, Default: defaultInline, Doc: "Tags that flow with surrounding text instead of starting a new line."},
	{Name: "extra_liners", Kind: KindStringList, Family: FamilyHTML, Default: []string{"head", "body", "/html"}, Doc: "Tags preceded by a blank line."},
}

// LookupSpec finds the spec for name.
func LookupSpec(name string) (OptionSpec, bool) {
	for _, s := range Specs {
		if s.Name == name {
			return s, true
		}
	}
	return OptionSpec{}, false
}

type options struct {
	indent          string
	eol             string
	endWithNewline  bool
	preserve        bool
	maxPreserve     int
	newlineRules    bool
	selectorNewline bool
	indentInnerHTML bool
	indentScripts   string
	unformatted     map[string]bool
	inline          map[string]bool
	extraLiners     map[string]bool
}

// decodeOptions reads the known keys out of m. Keys of the wrong type fall
// back to their defaults.
func decodeOptions(m map[string]any) options {
	size := intOpt(m, "indent_size", 4)
	if size < 0 || size > 32 {
		size = 4
	}
	indent := strings.Repeat(stringOpt(m, "indent_char", " "), size)
	if boolOpt(m, "indent_with_tabs", false) {
		indent = "\t"
	}
	eol := stringOpt(m, "eol", "\n")
	if eol == "" || eol == "auto" {
		eol = "\n"
	}
	scripts := stringOpt(m, "indent_scripts", "normal")
	switch scripts {
	case "normal", "keep", "separate":
	default:
		scripts = "normal"
	}
	return options{
		indent:          indent,
		eol:             eol,
		endWithNewline:  boolOpt(m, "end_with_newline", false),
		preserve:        boolOpt(m, "preserve_newlines", true),
		maxPreserve:     intOpt(m, "max_preserve_newlines", 10),
		newlineRules:    boolOpt(m, "newline_between_rules", true),
		selectorNewline: boolOpt(m, "selector_separator_newline", true),
		indentInnerHTML: boolOpt(m, "indent_inner_html", false),
		indentScripts:   scripts,
		unformatted:     setOpt(m, "unformatted", []string{"pre", "textarea"}),
		inline:          setOpt(m, "inline", defaultInline),
		extraLiners:     setOpt(m, "extra_liners", []string{"head", "body", "/html"}),
	}
}

// blankLines converts a run of source line breaks into the number of blank
// lines to keep.
func (o options) blankLines(newlines int) int {
	if !o.preserve || newlines < 2 {
		return 0
	}
	n := newlines - 1
	if o.maxPreserve > 0 && n > o.maxPreserve-1 {
		n = o.maxPreserve - 1
	}
	if n < 0 {
		return 0
	}
	return n
}

// finish applies eol and end_with_newline to text built with "\n".
func (o options) finish(text string) string {
	text = strings.TrimRight(text, "\n")
	if text == "" {
		return ""
	}
	if o.endWithNewline {
		text += "\n"
	}
	if o.eol != "\n" {
		text = strings.ReplaceAll(text, "\n", o.eol)
	}
	return text
}

func intOpt(m map[string]any, key string, def int) int {
	switch v := m[key].(type) {
	case float64:
		if v == math.Trunc(v) {
			return int(v)
		}
	case int:
		return v
	}
	return def
}

func boolOpt(m map[string]any, key string, def bool) bool {
	if v, ok := m[key].(bool); ok {
		return v
	}
	return def
}

func stringOpt(m map[string]any, key string, def string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return def
}

func setOpt(m map[string]any, key string, def []string) map[string]bool {
	names := def
	switch v := m[key].(type) {
	case []any:
		names = names[:0:0]
		for _, it := range v {
			if s, ok := it.(string); ok {
				names = append(names, s)
			}
		}
	case []string:
		names = v
	}
	out := make(map[string]bool, len(names))
	for _, n := range names {
		out[strings.ToLower(strings.TrimSpace(n))] = true
	}
	return out
}
