package preprocess

import (
	"strconv"
	"strings"
)

// maxExpansionDepth bounds nested rescans independently of the hide set
const maxExpansionDepth = 64

type tokenKind uint8

const (
	tokOther tokenKind = iota
	tokIdent
	tokNumber
	tokString
	tokSpace
	tokComment
	tokPaste // ##
)

// scanToken returns the kind and end of the token starting at s[i]
func scanToken(s string, i int) (tokenKind, int) {
	c := s[i]
	switch {
	case isIdentStart(c):
		j := i + 1
		for j < len(s) && isIdentChar(s[j]) {
			j++
		}
		return tokIdent, j
	case isDigit(c) || (c == '.' && i+1 < len(s) && isDigit(s[i+1])):
		j := i + 1
		for j < len(s) {
			if isIdentChar(s[j]) || s[j] == '.' {
				j++
			} else if (s[j] == '+' || s[j] == '-') && (s[j-1] == 'e' || s[j-1] == 'E') {
				j++
			} else {
				break
			}
		}
		return tokNumber, j
	case c == '"':
		j := i + 1
		for j < len(s) && s[j] != '"' && s[j] != '\n' {
			if s[j] == '\\' {
				j++
			}
			j++
		}
		if j < len(s) && s[j] == '"' {
			j++
		}
		if j > len(s) {
			j = len(s)
		}
		return tokString, j
	case c == ' ' || c == '\t' || c == '\r' || c == '\n' || c == '\f' || c == '\v':
		j := i + 1
		for j < len(s) && (s[j] == ' ' || s[j] == '\t' || s[j] == '\r' || s[j] == '\n' || s[j] == '\f' || s[j] == '\v') {
			j++
		}
		return tokSpace, j
	case c == '/' && i+1 < len(s) && s[i+1] == '/':
		j := i + 2
		for j < len(s) && s[j] != '\n' {
			j++
		}
		return tokComment, j
	case c == '/' && i+1 < len(s) && s[i+1] == '*':
		end := strings.Index(s[i+2:], "*/")
		if end < 0 {
			return tokComment, len(s)
		}
		return tokComment, i + 2 + end + 2
	case c == '#' && i+1 < len(s) && s[i+1] == '#':
		return tokPaste, i + 2
	}
	return tokOther, i + 1
}

// hideSet holds the macros being expanded, which must not expand again
type hideSet map[string]bool

func (h hideSet) with(name string) hideSet {
	out := make(hideSet, len(h)+1)
	for k := range h {
		out[k] = true
	}
	out[name] = true
	return out
}

// expander performs macro substitution against a pass-scoped table
type expander struct {
	macros *MacroTable
	line   int // zero-based source line of the current invocation, for __LINE__
}

// expandText rescans text and replaces every macro invocation
func (x *expander) expandText(text string, hide hideSet, depth int) string {
	if depth > maxExpansionDepth || x.macros.Len() == 0 && !strings.Contains(text, "__LINE__") {
		return text
	}
	var b strings.Builder
	b.Grow(len(text))
	for i := 0; i < len(text); {
		kind, end := scanToken(text, i)
		if kind == tokIdent {
			if repl, next, ok := x.expandIdent(text, i, end, hide, depth); ok {
				b.WriteString(repl)
				i = next
				continue
			}
		}
		b.WriteString(text[i:end])
		i = end
	}
	return b.String()
}

// expandIdent expands the identifier text[start:end] if it names a macro.
// next is the offset just after the consumed invocation.
func (x *expander) expandIdent(text string, start, end int, hide hideSet, depth int) (repl string, next int, ok bool) {
	name := text[start:end]
	if name == "__LINE__" {
		return strconv.Itoa(x.line + 1), end, true
	}
	m, found := x.macros.Lookup(name)
	if !found || hide[name] {
		return "", 0, false
	}
	if !m.FunctionLike {
		return x.expandText(m.Body, hide.with(name), depth+1), end, true
	}

	open := skipSpaceAndComments(text, end)
	if open >= len(text) || text[open] != '(' {
		return "", 0, false
	}
	args, after, closed := collectArgs(text, open)
	if !closed {
		return "", 0, false
	}
	body := x.substitute(m, args, hide, depth)
	return x.expandText(body, hide.with(name), depth+1), after, true
}

func skipSpaceAndComments(s string, i int) int {
	for i < len(s) {
		kind, end := scanToken(s, i)
		if kind != tokSpace && kind != tokComment {
			return i
		}
		i = end
	}
	return i
}

// collectArgs splits the parenthesised argument list starting at s[open].
// after is the offset just past the closing parenthesis.
func collectArgs(s string, open int) (args []string, after int, closed bool) {
	depth := 0
	argStart := open + 1
	for i := open; i < len(s); {
		kind, end := scanToken(s, i)
		if kind == tokOther {
			switch s[i] {
			case '(':
				depth++
			case ')':
				depth--
				if depth == 0 {
					args = append(args, s[argStart:i])
					return args, end, true
				}
			case ',':
				if depth == 1 {
					args = append(args, s[argStart:i])
					argStart = end
				}
			}
		}
		i = end
	}
	return nil, len(s), false
}

type bodyToken struct {
	kind tokenKind
	text string
}

func tokenize(s string) []bodyToken {
	var out []bodyToken
	for i := 0; i < len(s); {
		kind, end := scanToken(s, i)
		out = append(out, bodyToken{kind: kind, text: s[i:end]})
		i = end
	}
	return out
}

// substitute replaces parameters in the body of m with arguments. Arguments
// are macro-expanded first unless they are operands of # or ##.
func (x *expander) substitute(m *Macro, args []string, hide hideSet, depth int) string {
	params := make(map[string]string, len(m.Params)+1)
	for i, p := range m.Params {
		if i < len(args) {
			params[p] = strings.TrimSpace(args[i])
		} else {
			params[p] = ""
		}
	}
	if m.Variadic {
		var rest []string
		if len(args) > len(m.Params) {
			rest = args[len(m.Params):]
		}
		for i := range rest {
			rest[i] = strings.TrimSpace(rest[i])
		}
		va := strings.Join(rest, ", ")
		params["__VA_ARGS__"] = va
		// GNU named variadic parameter is the last one
		if n := len(m.Params); n > 0 && len(args) >= n && !strings.Contains(m.Body, "__VA_ARGS__") {
			params[m.Params[n-1]] = strings.TrimSpace(strings.Join(args[n-1:], ","))
		}
	}

	toks := tokenize(m.Body)
	neighbour := func(i, dir int) bodyToken {
		for j := i + dir; j >= 0 && j < len(toks); j += dir {
			if toks[j].kind != tokSpace {
				return toks[j]
			}
		}
		return bodyToken{}
	}

	var out []string
	for i := 0; i < len(toks); i++ {
		t := toks[i]
		switch {
		case t.kind == tokOther && t.text == "#":
			next := i + 1
			for next < len(toks) && toks[next].kind == tokSpace {
				next++
			}
			if next < len(toks) && toks[next].kind == tokIdent {
				if arg, isParam := params[toks[next].text]; isParam {
					out = append(out, strconv.Quote(arg))
					i = next
					continue
				}
			}
			out = append(out, t.text)
		case t.kind == tokPaste:
			// Drop the operator together with surrounding whitespace
			for len(out) > 0 && strings.TrimSpace(out[len(out)-1]) == "" {
				out = out[:len(out)-1]
			}
			for i+1 < len(toks) && toks[i+1].kind == tokSpace {
				i++
			}
		case t.kind == tokIdent:
			arg, isParam := params[t.text]
			if !isParam {
				out = append(out, t.text)
				continue
			}
			if neighbour(i, -1).kind == tokPaste || neighbour(i, 1).kind == tokPaste {
				out = append(out, arg)
			} else {
				out = append(out, x.expandText(arg, hide, depth+1))
			}
		default:
			out = append(out, t.text)
		}
	}
	return strings.Join(out, "")
}
