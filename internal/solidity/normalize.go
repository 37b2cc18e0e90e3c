package solidity

import (
	"fmt"
	"sort"
	"unicode/utf8"

	"fortio.org/safecast"

	"github.com/xab-mack/solguard/internal/model"
)

// DefaultMaxInputSize is the default ceiling on source size, in characters.
const DefaultMaxInputSize = 200_000

// Filler replaces comment and literal content in normalized text.
const Filler = ' '

type lexState int

const (
	stateNormal lexState = iota
	stateLineComment
	stateBlockComment
	stateString
	stateChar
)

// SourceUnit is the normalized form of one scanned source. Text has the same
// length and line layout as Raw, with comments and literal contents replaced
// by Filler.
type SourceUnit struct {
	Raw      string
	Text     string
	LineIdx  []uint32 // byte offset of every line start; LineIdx[0] == 0
	Warnings []string
}

// Normalize builds a SourceUnit from raw text. maxSize <= 0 uses DefaultMaxInputSize.
func Normalize(raw string, maxSize int) (*SourceUnit, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxInputSize
	}
	if n := utf8.RuneCountInString(raw); n > maxSize {
		return nil, fmt.Errorf("%w: %d characters exceeds limit of %d", model.ErrInputTooLarge, n, maxSize)
	}

	out := []byte(raw)
	state := stateNormal
	unterminated := false
	for i := 0; i < len(out); i++ {
		c := out[i]
		switch state {
		case stateNormal:
			switch {
			case c == '/' && i+1 < len(out) && out[i+1] == '/':
				state = stateLineComment
				out[i], out[i+1] = Filler, Filler
				i++
			case c == '/' && i+1 < len(out) && out[i+1] == '*':
				state = stateBlockComment
				out[i], out[i+1] = Filler, Filler
				i++
			case c == '"':
				state = stateString
			case c == '\'':
				state = stateChar
			}
		case stateLineComment:
			if c == '\n' {
				state = stateNormal
				continue
			}
			out[i] = Filler
		case stateBlockComment:
			if c == '*' && i+1 < len(out) && out[i+1] == '/' {
				out[i], out[i+1] = Filler, Filler
				i++
				state = stateNormal
				continue
			}
			if c != '\n' {
				out[i] = Filler
			}
		case stateString, stateChar:
			quote := byte('"')
			if state == stateChar {
				quote = '\''
			}
			switch {
			case c == quote:
				state = stateNormal
			case c == '\n':
				// literals cannot span raw newlines; close here and keep layout
				unterminated = true
				state = stateNormal
			case c == '\\' && i+1 < len(out) && out[i+1] != '\n':
				out[i], out[i+1] = Filler, Filler
				i++
			default:
				out[i] = Filler
			}
		}
	}
	if state == stateBlockComment || state == stateString || state == stateChar {
		unterminated = true
	}

	lineIdx, err := buildLineIndex(out)
	if err != nil {
		return nil, err
	}
	unit := &SourceUnit{Raw: raw, Text: string(out), LineIdx: lineIdx}
	if unterminated {
		unit.Warnings = append(unit.Warnings, model.WarnUnterminatedLiteral)
	}
	return unit, nil
}

func buildLineIndex(content []byte) ([]uint32, error) {
	out := make([]uint32, 1, 1+len(content)/32)
	for i, b := range content {
		if b != '\n' {
			continue
		}
		off, err := safecast.Conv[uint32](i + 1)
		if err != nil {
			return nil, fmt.Errorf("line index overflow: %w", err)
		}
		out = append(out, off)
	}
	return out, nil
}

// Position resolves a byte offset into a 1-based line and column. Offsets
// past the end clamp to the end of input.
func (u *SourceUnit) Position(off int) model.Position {
	if off < 0 {
		off = 0
	}
	if off > len(u.Raw) {
		off = len(u.Raw)
	}
	line := sort.Search(len(u.LineIdx), func(i int) bool { return int(u.LineIdx[i]) > off }) - 1
	if line < 0 {
		line = 0
	}
	return model.Position{Line: line + 1, Column: off - int(u.LineIdx[line]) + 1}
}

// Offset is the inverse of Position. It returns -1 for a line outside the unit.
func (u *SourceUnit) Offset(p model.Position) int {
	if p.Line < 1 || p.Line > len(u.LineIdx) {
		return -1
	}
	return int(u.LineIdx[p.Line-1]) + p.Column - 1
}

// LineCount is the number of lines in the unit.
func (u *SourceUnit) LineCount() int { return len(u.LineIdx) }

// Slice returns the normalized text of a span, clamped to the unit.
func (u *SourceUnit) Slice(s model.Span) string {
	start, end := u.clamp(s)
	return u.Text[start:end]
}

// RawSlice returns the original text of a span, clamped to the unit.
func (u *SourceUnit) RawSlice(s model.Span) string {
	start, end := u.clamp(s)
	return u.Raw[start:end]
}

func (u *SourceUnit) clamp(s model.Span) (int, int) {
	start, end := s.Start, s.End
	if start < 0 {
		start = 0
	}
	if end > len(u.Text) {
		end = len(u.Text)
	}
	if start > end {
		start = end
	}
	return start, end
}

// HasWarning reports whether the unit carries the given warning flag.
func (u *SourceUnit) HasWarning(w string) bool {
	for _, x := range u.Warnings {
		if x == w {
			return true
		}
	}
	return false
}
