package formatter

import (
	"strings"
	"unicode/utf16"
)

// Position is a zero-based line and character. Characters count UTF-16 code
// units, as editors speaking LSP report them.
type Position struct {
	Line      int
	Character int
}

type Span struct {
	Start Position
	End   Position
}

// Edit replaces Span with NewText.
type Edit struct {
	Span    Span
	NewText string
}

// WholeDocument spans text from the first to the last character.
func WholeDocument(text string) Span {
	return Span{End: End(text)}
}

// End is the position just past the last character of text.
func End(text string) Position {
	line, start := 0, 0
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			line++
			start = i + 1
		}
	}
	return Position{Line: line, Character: utf16Len(text[start:])}
}

// Offset converts pos to a byte offset into text. A character past the end of
// its line clamps to the line end and a line past the end clamps to len(text).
func Offset(text string, pos Position) int {
	if pos.Line < 0 {
		return 0
	}
	i := 0
	for line := 0; line < pos.Line; line++ {
		j := strings.IndexByte(text[i:], '\n')
		if j < 0 {
			return len(text)
		}
		i += j + 1
	}
	units := 0
	for k, r := range text[i:] {
		if r == '\n' || units >= pos.Character {
			return i + k
		}
		units += utf16.RuneLen(r)
	}
	return len(text)
}

func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		n += utf16.RuneLen(r)
	}
	return n
}

// PositionAt is the inverse of Offset.
func PositionAt(text string, offset int) Position {
	offset = max(0, min(offset, len(text)))
	prefix := text[:offset]
	start := strings.LastIndexByte(prefix, '\n') + 1
	return Position{Line: strings.Count(prefix, "\n"), Character: utf16Len(prefix[start:])}
}
