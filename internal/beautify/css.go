package beautify

import "strings"

// CSS formats CSS and SCSS, including ERB templated variants. ERB tags,
// strings and comments are copied as opaque units.
func CSS(text string, opts map[string]any) (string, error) {
	o := decodeOptions(opts)
	return o.finish(strings.Join(formatCSS(text, o), "\n")), nil
}

func formatCSS(text string, o options) []string {
	p := &cssPrinter{o: o, openLine: -1}
	for _, tok := range lexCSS(strings.ReplaceAll(text, "\r\n", "\n")) {
		p.feed(tok)
	}
	p.flush("")
	return p.lines
}

type cssTokenKind int

const (
	cssText cssTokenKind = iota
	cssSpace
	cssString
	cssComment
	cssLineComment
	cssERB
	cssOpen
	cssClose
	cssSemi
)

type cssToken struct {
	kind     cssTokenKind
	text     string
	newlines int
}

func lexCSS(src string) []cssToken {
	var (
		toks   []cssToken
		parens int
	)
	for i := 0; i < len(src); {
		c := src[i]
		switch {
		case isCSSSpace(c):
			j, nl := i, 0
			for j < len(src) && isCSSSpace(src[j]) {
				if src[j] == '\n' {
					nl++
				}
				j++
			}
			if nl > 0 {
				parens = 0
			}
			toks = append(toks, cssToken{kind: cssSpace, newlines: nl})
			i = j
		case c == '"' || c == '\'':
			j := scanQuoted(src, i)
			toks = append(toks, cssToken{kind: cssString, text: src[i:j]})
			i = j
		case strings.HasPrefix(src[i:], "/*"):
			j := scanUntil(src, i+2, "*/")
			toks = append(toks, cssToken{kind: cssComment, text: src[i:j]})
			i = j
		case strings.HasPrefix(src[i:], "<%"):
			j := scanUntil(src, i+2, "%>")
			toks = append(toks, cssToken{kind: cssERB, text: src[i:j]})
			i = j
		case parens == 0 && strings.HasPrefix(src[i:], "//"):
			j := strings.IndexByte(src[i:], '\n')
			if j < 0 {
				j = len(src) - i
			}
			toks = append(toks, cssToken{kind: cssLineComment, text: strings.TrimRight(src[i:i+j], " \t\r")})
			i += j
		case parens == 0 && c == '{':
			toks = append(toks, cssToken{kind: cssOpen})
			i++
		case parens == 0 && c == '}':
			toks = append(toks, cssToken{kind: cssClose})
			i++
		case parens == 0 && c == ';':
			toks = append(toks, cssToken{kind: cssSemi})
			i++
		default:
			j := i
		run:
			for j < len(src) {
				d := src[j]
				// SCSS interpolation: #{...}
				if d == '#' && j+1 < len(src) && src[j+1] == '{' {
					if k := strings.IndexByte(src[j:], '}'); k > 0 {
						j += k + 1
						continue
					}
				}
				switch {
				case isCSSSpace(d), d == '"', d == '\'':
					break run
				case strings.HasPrefix(src[j:], "/*"), strings.HasPrefix(src[j:], "<%"):
					break run
				case d == '(':
					parens++
				case d == ')' && parens > 0:
					parens--
				case parens == 0 && (d == '{' || d == '}' || d == ';'):
					break run
				case parens == 0 && strings.HasPrefix(src[j:], "//"):
					break run
				}
				j++
			}
			if j == i {
				j = i + 1
			}
			toks = append(toks, cssToken{kind: cssText, text: src[i:j]})
			i = j
		}
	}
	return toks
}

func isCSSSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f'
}

// scanQuoted returns the index just past the string starting at i. An
// unterminated string ends at the line break.
func scanQuoted(src string, i int) int {
	q := src[i]
	j := i + 1
	for j < len(src) {
		switch src[j] {
		case '\\':
			j += 2
			continue
		case q:
			return j + 1
		case '\n':
			return j
		}
		j++
	}
	return len(src)
}

func scanUntil(src string, from int, end string) int {
	k := strings.Index(src[from:], end)
	if k < 0 {
		return len(src)
	}
	return from + k + len(end)
}

type cssPiece struct {
	text  string
	kind  cssTokenKind
	space bool
}

type cssPrinter struct {
	o     options
	lines []string
	depth int

	stmt    []cssPiece
	space   bool
	erbOnly bool

	deferred []string

	blanks   int
	trailing bool
	openLine int
}

func (p *cssPrinter) feed(tok cssToken) {
	switch tok.kind {
	case cssSpace:
		if tok.newlines == 0 {
			p.space = len(p.stmt) > 0
			return
		}
		p.trailing = false
		if len(p.stmt) > 0 && p.erbOnly {
			p.flush("")
		}
		if len(p.stmt) > 0 {
			p.space = true
			return
		}
		if n := p.o.blankLines(tok.newlines); n > p.blanks {
			p.blanks = n
		}
	case cssText, cssString, cssERB:
		p.add(tok)
	case cssComment:
		if len(p.stmt) > 0 {
			p.add(tok)
			return
		}
		p.comment(tok.text)
	case cssLineComment:
		// A line comment cannot sit inside a statement that continues on
		// the next line; it moves behind the statement's terminator.
		if len(p.stmt) > 0 {
			p.deferred = append(p.deferred, tok.text)
			return
		}
		p.comment(tok.text)
	case cssOpen:
		p.open()
	case cssClose:
		p.close()
	case cssSemi:
		p.flush(";")
	}
}

func (p *cssPrinter) add(tok cssToken) {
	p.erbOnly = tok.kind == cssERB && (len(p.stmt) == 0 || p.erbOnly)
	p.stmt = append(p.stmt, cssPiece{text: tok.text, kind: tok.kind, space: p.space && len(p.stmt) > 0})
	p.space = false
}

func (p *cssPrinter) comment(text string) {
	if p.trailing && len(p.lines) > 0 {
		p.lines[len(p.lines)-1] += " " + text
		p.openLine = -1
		return
	}
	p.writeLine(text)
	p.trailing = true
}

func (p *cssPrinter) open() {
	parts := p.selector()
	p.resetStmt()
	if len(parts) == 0 {
		p.writeLine("{")
	}
	for i, part := range parts {
		if i == len(parts)-1 {
			p.writeLine(part + " {")
		} else {
			p.writeLine(part + ",")
		}
	}
	p.depth++
	p.openLine = len(p.lines) - 1
	p.trailing = true
	p.attachDeferred()
}

func (p *cssPrinter) close() {
	p.flush("")
	p.blanks = 0
	if p.depth > 0 {
		p.depth--
	}
	if p.openLine >= 0 && p.openLine == len(p.lines)-1 {
		p.lines[p.openLine] += "}"
		p.openLine = -1
	} else {
		p.writeLine("}")
	}
	p.trailing = true
	if p.depth == 0 && p.o.newlineRules {
		p.blanks = 1
	}
}

func (p *cssPrinter) flush(term string) {
	if len(p.stmt) == 0 {
		return
	}
	line := p.declaration() + term
	p.resetStmt()
	p.writeLine(line)
	p.trailing = true
	p.attachDeferred()
}

func (p *cssPrinter) attachDeferred() {
	if len(p.deferred) == 0 || len(p.lines) == 0 {
		return
	}
	p.lines[len(p.lines)-1] += " " + strings.Join(p.deferred, " ")
	p.deferred = p.deferred[:0]
	p.openLine = -1
}

func (p *cssPrinter) resetStmt() {
	p.stmt = p.stmt[:0]
	p.space = false
	p.erbOnly = false
}

func (p *cssPrinter) writeLine(s string) {
	if len(p.lines) > 0 && p.openLine != len(p.lines)-1 {
		for i := 0; i < p.blanks; i++ {
			p.lines = append(p.lines, "")
		}
	}
	p.blanks = 0
	p.lines = append(p.lines, strings.Repeat(p.o.indent, p.depth)+s)
	p.openLine = -1
}

func renderPieces(pieces []cssPiece) string {
	var b strings.Builder
	for i, pc := range pieces {
		if pc.space && i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(pc.text)
	}
	return b.String()
}

// declaration normalizes "prop : value" to "prop: value". At-rules and
// statements without a top-level colon are left alone.
func (p *cssPrinter) declaration() string {
	whole := strings.TrimSpace(renderPieces(p.stmt))
	if strings.HasPrefix(whole, "@") {
		return whole
	}
	depth := 0
	for i, pc := range p.stmt {
		if pc.kind != cssText {
			continue
		}
		for k := 0; k < len(pc.text); k++ {
			switch pc.text[k] {
			case '(':
				depth++
			case ')':
				depth--
			case ':':
				if depth != 0 {
					continue
				}
				before := renderPieces(p.stmt[:i])
				if pc.space && i > 0 {
					before += " "
				}
				before += pc.text[:k]
				rest := append([]cssPiece{{text: pc.text[k+1:], kind: cssText}}, p.stmt[i+1:]...)
				after := strings.TrimSpace(renderPieces(rest))
				if after == "" {
					return strings.TrimSpace(before) + ":"
				}
				return strings.TrimSpace(before) + ": " + after
			}
		}
	}
	return whole
}

// selector splits the pending statement on top-level commas.
func (p *cssPrinter) selector() []string {
	whole := strings.TrimSpace(renderPieces(p.stmt))
	if whole == "" {
		return nil
	}
	if strings.HasPrefix(whole, "@") {
		return []string{whole}
	}
	var (
		parts []string
		cur   strings.Builder
		depth int
	)
	push := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			parts = append(parts, s)
		}
		cur.Reset()
	}
	for _, pc := range p.stmt {
		if pc.space && cur.Len() > 0 {
			cur.WriteByte(' ')
		}
		if pc.kind != cssText {
			cur.WriteString(pc.text)
			continue
		}
		for k := 0; k < len(pc.text); k++ {
			ch := pc.text[k]
			switch {
			case ch == '(':
				depth++
			case ch == ')':
				depth--
			case ch == ',' && depth == 0:
				push()
				continue
			}
			cur.WriteByte(ch)
		}
	}
	push()
	if len(parts) == 0 {
		return []string{whole}
	}
	if !p.o.selectorNewline {
		return []string{strings.Join(parts, ", ")}
	}
	return parts
}
