package preprocess

import (
	"sort"
	"strings"

	"github.com/standardbeagle/shadersense/internal/types"
)

// Macro is one #define. Definitions live only for the flatten pass that
// collected them.
type Macro struct {
	Name         string
	FunctionLike bool
	Params       []string
	Variadic     bool
	Body         string

	// Definition site; File is InvalidFileID for predefined macros.
	File     types.FileID
	NameSpan types.Span
	BodySpan types.Span
}

// MacroTable is the ordered, pass-scoped set of visible macros
type MacroTable struct {
	macros map[string]*Macro
	order  []string
}

// NewMacroTable creates a table seeded with object-like predefined macros
func NewMacroTable(predefined map[string]string) *MacroTable {
	t := &MacroTable{macros: make(map[string]*Macro, len(predefined))}
	names := make([]string, 0, len(predefined))
	for name := range predefined {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		t.Define(&Macro{Name: name, Body: predefined[name]})
	}
	return t
}

// Define adds or replaces a macro. Redefinition moves it to the end of the order.
func (t *MacroTable) Define(m *Macro) {
	if _, exists := t.macros[m.Name]; exists {
		t.removeFromOrder(m.Name)
	}
	t.macros[m.Name] = m
	t.order = append(t.order, m.Name)
}

// Undef removes a macro; undefining an unknown name is not an error
func (t *MacroTable) Undef(name string) {
	if _, exists := t.macros[name]; exists {
		delete(t.macros, name)
		t.removeFromOrder(name)
	}
}

func (t *MacroTable) removeFromOrder(name string) {
	for i, n := range t.order {
		if n == name {
			t.order = append(t.order[:i], t.order[i+1:]...)
			return
		}
	}
}

// Lookup returns the macro named name
func (t *MacroTable) Lookup(name string) (*Macro, bool) {
	m, ok := t.macros[name]
	return m, ok
}

// Defined reports whether name is a macro
func (t *MacroTable) Defined(name string) bool {
	_, ok := t.macros[name]
	return ok
}

// Len returns the number of visible macros
func (t *MacroTable) Len() int { return len(t.macros) }

// Macros returns visible macros in definition order
func (t *MacroTable) Macros() []*Macro {
	out := make([]*Macro, 0, len(t.order))
	for _, name := range t.order {
		out = append(out, t.macros[name])
	}
	return out
}

// ParseDefine reads the arguments of a #define. argsStart is the source
// offset of args, used to locate the name and body in the file.
func ParseDefine(args string, argsStart int, lineEnd int, file types.FileID) (*Macro, bool) {
	i := 0
	for i < len(args) && isIdentChar(args[i]) {
		i++
	}
	if i == 0 || isDigit(args[0]) {
		return nil, false
	}
	m := &Macro{
		Name:     args[:i],
		File:     file,
		NameSpan: types.Span{Start: argsStart, End: argsStart + i},
	}

	rest := args[i:]
	bodyOffset := i
	if strings.HasPrefix(rest, "(") {
		m.FunctionLike = true
		closing := strings.IndexByte(rest, ')')
		if closing < 0 {
			return nil, false
		}
		for _, p := range strings.Split(rest[1:closing], ",") {
			p = strings.TrimSpace(p)
			switch {
			case p == "":
			case p == "...":
				m.Variadic = true
			case strings.HasSuffix(p, "..."):
				// GNU named variadic; treat the name as __VA_ARGS__
				m.Variadic = true
				m.Params = append(m.Params, strings.TrimSuffix(p, "..."))
			default:
				m.Params = append(m.Params, p)
			}
		}
		rest = rest[closing+1:]
		bodyOffset += closing + 1
	}

	trimmed := strings.TrimLeft(rest, " \t")
	bodyOffset += len(rest) - len(trimmed)
	m.Body = strings.TrimSpace(trimmed)

	start := argsStart + bodyOffset
	if start > lineEnd {
		start = lineEnd
	}
	m.BodySpan = types.Span{Start: start, End: lineEnd}
	return m, true
}

func isIdentChar(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
