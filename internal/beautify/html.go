package beautify

import (
	"errors"
	"io"
	"strings"

	"golang.org/x/net/html"
)

var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"param": true, "source": true, "track": true, "wbr": true,
}

// HTML formats HTML, including ERB templated HTML. Tags are re-indented from
// their raw bytes, so attribute quoting and entities are kept as written.
func HTML(text string, opts map[string]any) (string, error) {
	o := decodeOptions(opts)
	p := &htmlPrinter{o: o, openLine: -1}
	if err := p.run(strings.ReplaceAll(text, "\r\n", "\n")); err != nil {
		return "", err
	}
	return o.finish(strings.Join(p.lines, "\n")), nil
}

type htmlElement struct {
	name   string
	indent bool
}

type htmlPrinter struct {
	o     options
	lines []string
	stack []htmlElement

	flow  strings.Builder
	space bool

	newlines   int
	blanks     int
	forceBlank bool

	// openLine is the last start tag line with nothing written after it,
	// or with exactly one flow line after it when openText is set.
	openLine int
	openText bool

	rawBody string
}

func (p *htmlPrinter) run(src string) error {
	z := html.NewTokenizer(strings.NewReader(src))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			p.flushFlow()
			if errors.Is(z.Err(), io.EOF) {
				return nil
			}
			return z.Err()
		}
		// Raw must be copied before TagName, which lowercases in place.
		raw := string(z.Raw())
		switch tt {
		case html.TextToken:
			p.text(raw)
		case html.StartTagToken:
			name, _ := z.TagName()
			p.startTag(z, string(name), raw)
		case html.EndTagToken:
			name, _ := z.TagName()
			p.endTag(string(name), raw)
		case html.SelfClosingTagToken:
			name, _ := z.TagName()
			p.voidTag(string(name), raw)
		case html.CommentToken, html.DoctypeToken:
			p.flushFlow()
			p.writeLine(strings.TrimSpace(raw))
		}
	}
}

func (p *htmlPrinter) depth() int {
	n := 0
	for _, e := range p.stack {
		if e.indent {
			n++
		}
	}
	return n
}

func (p *htmlPrinter) startTag(z *html.Tokenizer, name, raw string) {
	tag := collapseTag(raw)
	switch {
	case p.o.unformatted[name]:
		p.flushFlow()
		p.verbatim(z, name, tag)
		return
	case p.o.inline[name]:
		p.addFlow(tag)
		return
	case voidElements[name]:
		p.voidTag(name, raw)
		return
	}
	p.flushFlow()
	if p.o.extraLiners[name] {
		p.forceBlank = true
	}
	p.writeLine(tag)
	p.stack = append(p.stack, htmlElement{name: name, indent: name != "html" || p.o.indentInnerHTML})
	p.openLine = len(p.lines) - 1
	if name == "script" || name == "style" {
		p.rawBody = name
	}
}

func (p *htmlPrinter) voidTag(name, raw string) {
	tag := collapseTag(raw)
	if p.o.inline[name] {
		p.addFlow(tag)
		return
	}
	p.flushFlow()
	p.writeLine(tag)
}

func (p *htmlPrinter) endTag(name, raw string) {
	tag := collapseTag(raw)
	if name == p.rawBody {
		p.rawBody = ""
	}
	if p.o.inline[name] {
		p.addFlow(tag)
		return
	}
	idx := -1
	for i := len(p.stack) - 1; i >= 0; i-- {
		if p.stack[i].name == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		p.flushFlow()
		p.writeLine(tag)
		return
	}
	if idx == len(p.stack)-1 && p.mergeClose(tag) {
		p.stack = p.stack[:idx]
		return
	}
	p.flushFlow()
	p.stack = p.stack[:idx]
	if p.o.extraLiners["/"+name] {
		p.forceBlank = true
	}
	p.writeLine(tag)
}

// mergeClose keeps "<p>text</p>" and "<div></div>" on one line.
func (p *htmlPrinter) mergeClose(tag string) bool {
	last := len(p.lines) - 1
	switch {
	case p.openLine < 0:
		return false
	case !p.openText && p.openLine == last:
		p.lines[last] += strings.TrimSpace(p.flow.String()) + tag
		p.flow.Reset()
	case p.openText && p.openLine == last-1 && p.flow.Len() == 0:
		p.lines[p.openLine] += strings.TrimSpace(p.lines[last]) + tag
		p.lines = p.lines[:last]
	default:
		return false
	}
	p.openLine = -1
	p.openText = false
	p.space = false
	p.blanks = 0
	p.newlines = 0
	return true
}

// verbatim copies an unformatted element through its matching end tag.
func (p *htmlPrinter) verbatim(z *html.Tokenizer, name, start string) {
	var b strings.Builder
	b.WriteString(start)
	for depth := 1; depth > 0; {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}
		b.Write(z.Raw())
		switch tt {
		case html.StartTagToken:
			if n, _ := z.TagName(); string(n) == name {
				depth++
			}
		case html.EndTagToken:
			if n, _ := z.TagName(); string(n) == name {
				depth--
			}
		}
	}
	p.writeLine(b.String())
}

func (p *htmlPrinter) text(raw string) {
	if p.rawBody != "" {
		p.scriptBody(raw)
		return
	}
	for i := 0; i < len(raw); {
		c := raw[i]
		switch {
		case strings.HasPrefix(raw[i:], "<%"):
			j := scanUntil(raw, i+2, "%>")
			p.addFlow(raw[i:j])
			i = j
		case c == '\n':
			p.newline()
			i++
		case isCSSSpace(c):
			p.space = true
			i++
		default:
			j := i
			for j < len(raw) && !isCSSSpace(raw[j]) && !strings.HasPrefix(raw[j:], "<%") {
				j++
			}
			p.addFlow(raw[i:j])
			i = j
		}
	}
}

func (p *htmlPrinter) newline() {
	if p.flow.Len() > 0 {
		p.flushFlow()
		p.newlines = 1
		return
	}
	p.space = false
	p.newlines++
	if n := p.o.blankLines(p.newlines); n > p.blanks {
		p.blanks = n
	}
}

func (p *htmlPrinter) addFlow(s string) {
	if p.flow.Len() > 0 && p.space {
		p.flow.WriteByte(' ')
	}
	p.flow.WriteString(s)
	p.space = false
}

func (p *htmlPrinter) flushFlow() {
	if p.flow.Len() == 0 {
		return
	}
	s := p.flow.String()
	p.flow.Reset()
	afterOpen := p.openLine >= 0 && p.openLine == len(p.lines)-1 && !p.openText
	open := p.openLine
	p.writeLine(s)
	if afterOpen {
		p.openLine = open
		p.openText = true
	}
}

// scriptBody re-indents the body of a <script> or <style> element.
func (p *htmlPrinter) scriptBody(raw string) {
	if strings.TrimSpace(raw) == "" {
		return
	}
	var body []string
	switch {
	case p.o.indentScripts == "keep":
		body = trimBlankLines(strings.Split(raw, "\n"))
	case p.rawBody == "style":
		body = p.indentBody(formatCSS(raw, p.o))
	default:
		body = p.indentBody(dedent(trimBlankLines(strings.Split(raw, "\n"))))
	}
	p.lines = append(p.lines, body...)
	p.openLine = -1
	p.openText = false
	p.blanks = 0
	p.newlines = 0
}

func (p *htmlPrinter) indentBody(lines []string) []string {
	level := p.depth()
	if p.o.indentScripts == "separate" && level > 0 {
		level--
	}
	prefix := strings.Repeat(p.o.indent, level)
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if strings.TrimSpace(l) == "" {
			out = append(out, "")
			continue
		}
		out = append(out, prefix+l)
	}
	return out
}

func (p *htmlPrinter) writeLine(s string) {
	if len(p.lines) > 0 {
		n := p.blanks
		if p.openLine == len(p.lines)-1 {
			n = 0
		}
		if p.forceBlank && n < 1 {
			n = 1
		}
		for i := 0; i < n; i++ {
			p.lines = append(p.lines, "")
		}
	}
	p.lines = append(p.lines, strings.Repeat(p.o.indent, p.depth())+s)
	p.blanks = 0
	p.forceBlank = false
	p.newlines = 0
	p.space = false
	p.openLine = -1
	p.openText = false
}

// collapseTag squeezes whitespace outside attribute quotes and drops it
// before the closing '>'.
func collapseTag(raw string) string {
	var (
		b       strings.Builder
		quote   byte
		pending bool
	)
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if quote != 0 {
			b.WriteByte(c)
			if c == quote {
				quote = 0
			}
			continue
		}
		if isCSSSpace(c) {
			pending = true
			continue
		}
		if pending && c != '>' {
			b.WriteByte(' ')
		}
		pending = false
		if c == '"' || c == '\'' {
			quote = c
		}
		b.WriteByte(c)
	}
	return b.String()
}

func trimBlankLines(lines []string) []string {
	for len(lines) > 0 && strings.TrimSpace(lines[0]) == "" {
		lines = lines[1:]
	}
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// dedent strips trailing whitespace and the common leading indentation.
func dedent(lines []string) []string {
	common := -1
	for i, l := range lines {
		l = strings.TrimRight(l, " \t\r")
		lines[i] = l
		if l == "" {
			continue
		}
		n := len(l) - len(strings.TrimLeft(l, " \t"))
		if common < 0 || n < common {
			common = n
		}
	}
	if common <= 0 {
		return lines
	}
	for i, l := range lines {
		if len(l) >= common {
			lines[i] = l[common:]
		}
	}
	return lines
}
