package directive

import (
	"strings"

	"github.com/standardbeagle/shadersense/internal/types"
)

// Directive is one parsed preprocessor line
type Directive struct {
	Kind    Kind
	Keyword string
	// Span covers the whole logical line, continuations included, without the final newline.
	Span types.Span
	// Args is the text after the keyword with comments removed and
	// continuations joined.
	Args string
	// ArgsStart is the source offset of the first byte of Args.
	ArgsStart int

	// Include target, only for KindInclude
	Path     string
	PathSpan types.Span // inside the delimiters
	System   bool       // <path> rather than "path"
}

// Line is one logical source line. Directive lines may span several
// physical lines through backslash continuations.
type Line struct {
	Start int // first byte
	End   int // end of content, before the newline
	Next  int // start of the following line
	// InComment is true when the line starts inside a block comment.
	InComment bool
	Directive *Directive
}

// Newlines counts physical newlines between End and Next plus those
// swallowed by continuations inside the line.
func (l Line) Newlines(content []byte) int {
	n := 0
	for i := l.Start; i < l.Next && i < len(content); i++ {
		if content[i] == '\n' {
			n++
		}
	}
	return n
}

// Split breaks content into logical lines and parses directive lines
func Split(content []byte, s Strategy) []Line {
	var lines []Line
	inBlock := false
	pos := 0
	for pos < len(content) {
		line := Line{Start: pos, InComment: inBlock}

		i := pos
		if !inBlock {
			for i < len(content) && (content[i] == ' ' || content[i] == '\t') {
				i++
			}
		}
		if !inBlock && i < len(content) && content[i] == '#' {
			end, next, stillInBlock := scanDirectiveLine(content, i)
			line.End, line.Next = end, next
			inBlock = stillInBlock
			line.Directive = parseDirective(content, i, end, s)
			line.Directive.Span = types.Span{Start: pos, End: end}
		} else {
			end, next, stillInBlock := scanCodeLine(content, pos, inBlock)
			line.End, line.Next = end, next
			inBlock = stillInBlock
		}
		lines = append(lines, line)
		pos = line.Next
	}
	return lines
}

// Scan returns only the directives of content, in source order
func Scan(content []byte, s Strategy) []*Directive {
	var out []*Directive
	for _, l := range Split(content, s) {
		if l.Directive != nil {
			out = append(out, l.Directive)
		}
	}
	return out
}

// scanCodeLine finds the end of a non-directive line while tracking block comments
func scanCodeLine(content []byte, pos int, inBlock bool) (end, next int, stillInBlock bool) {
	inString := false
	i := pos
	for i < len(content) && content[i] != '\n' {
		c := content[i]
		switch {
		case inBlock:
			if c == '*' && i+1 < len(content) && content[i+1] == '/' {
				inBlock = false
				i++
			}
		case inString:
			if c == '\\' {
				i++
			} else if c == '"' {
				inString = false
			}
		case c == '"':
			inString = true
		case c == '/' && i+1 < len(content) && content[i+1] == '/':
			for i < len(content) && content[i] != '\n' {
				i++
			}
			return trimCR(content, pos, i), nextLine(content, i), false
		case c == '/' && i+1 < len(content) && content[i+1] == '*':
			inBlock = true
			i++
		}
		i++
	}
	return trimCR(content, pos, i), nextLine(content, i), inBlock
}

// scanDirectiveLine follows backslash continuations and block comments
// until the logical end of the directive.
func scanDirectiveLine(content []byte, hash int) (end, next int, stillInBlock bool) {
	inBlock := false
	i := hash
	for i < len(content) {
		c := content[i]
		if inBlock {
			if c == '*' && i+1 < len(content) && content[i+1] == '/' {
				inBlock = false
				i += 2
				continue
			}
			i++
			continue
		}
		if c == '\\' && continuesLine(content, i) {
			i = skipContinuation(content, i)
			continue
		}
		if c == '/' && i+1 < len(content) && content[i+1] == '/' {
			// A line comment ends the directive, but a continuation inside it
			// still joins the next line, as in C.
			for i < len(content) && content[i] != '\n' {
				if content[i] == '\\' && continuesLine(content, i) {
					i = skipContinuation(content, i)
					continue
				}
				i++
			}
			break
		}
		if c == '/' && i+1 < len(content) && content[i+1] == '*' {
			inBlock = true
			i += 2
			continue
		}
		if c == '\n' {
			break
		}
		i++
	}
	// A block comment left open on the directive line carries into the following code.
	return trimCR(content, hash, i), nextLine(content, i), inBlock
}

func continuesLine(content []byte, i int) bool {
	if i+1 < len(content) && content[i+1] == '\n' {
		return true
	}
	return i+2 < len(content) && content[i+1] == '\r' && content[i+2] == '\n'
}

func skipContinuation(content []byte, i int) int {
	if content[i+1] == '\r' {
		return i + 3
	}
	return i + 2
}

func trimCR(content []byte, start, end int) int {
	if end > start && end <= len(content) && content[end-1] == '\r' {
		return end - 1
	}
	return end
}

func nextLine(content []byte, i int) int {
	if i < len(content) && content[i] == '\n' {
		return i + 1
	}
	return i
}

// parseDirective reads the keyword and arguments of the directive at content[hash:end]
func parseDirective(content []byte, hash, end int, s Strategy) *Directive {
	d := &Directive{}
	i := hash + 1
	for i < end && (content[i] == ' ' || content[i] == '\t') {
		i++
	}
	kwStart := i
	for i < end && isIdentByte(content[i]) {
		i++
	}
	d.Keyword = string(content[kwStart:i])
	d.Kind = s.Classify(d.Keyword)
	if d.Keyword == "" {
		// Null directive "#"
		d.Kind = KindOther
	}
	for i < end && (content[i] == ' ' || content[i] == '\t') {
		i++
	}
	d.ArgsStart = i
	d.Args = strings.TrimSpace(cleanArgs(content[i:end]))

	if d.Kind == KindInclude {
		parseIncludePath(content, i, end, d, s)
	}
	return d
}

// cleanArgs joins continuations and blanks out comments
func cleanArgs(raw []byte) string {
	var b strings.Builder
	b.Grow(len(raw))
	inBlock := false
	inString := false
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		switch {
		case inBlock:
			if c == '*' && i+1 < len(raw) && raw[i+1] == '/' {
				inBlock = false
				i++
				b.WriteByte(' ')
			}
		case c == '\\' && i+1 < len(raw) && (raw[i+1] == '\n' || raw[i+1] == '\r'):
			i++
			if raw[i] == '\r' && i+1 < len(raw) && raw[i+1] == '\n' {
				i++
			}
			b.WriteByte(' ')
		case inString:
			b.WriteByte(c)
			if c == '\\' && i+1 < len(raw) {
				i++
				b.WriteByte(raw[i])
			} else if c == '"' {
				inString = false
			}
		case c == '"':
			inString = true
			b.WriteByte(c)
		case c == '/' && i+1 < len(raw) && raw[i+1] == '/':
			return b.String()
		case c == '/' && i+1 < len(raw) && raw[i+1] == '*':
			inBlock = true
			i++
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func parseIncludePath(content []byte, i, end int, d *Directive, s Strategy) {
	if i >= end {
		return
	}
	var closer byte
	switch content[i] {
	case '"':
		closer = '"'
	case '<':
		if !s.SystemIncludes {
			return
		}
		closer = '>'
		d.System = true
	default:
		return
	}
	start := i + 1
	j := start
	for j < end && content[j] != closer && content[j] != '\n' {
		j++
	}
	if j >= end || content[j] != closer {
		d.System = false
		return
	}
	d.Path = string(content[start:j])
	d.PathSpan = types.Span{Start: start, End: j}
}

func isIdentByte(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// IsPragmaOnce reports whether d is #pragma once
func (d *Directive) IsPragmaOnce() bool {
	return d.Kind == KindPragma && strings.TrimSpace(d.Args) == "once"
}
