// Package builtins provides the intrinsic functions, types, variables and
// keywords each shading language has without any declaration. Tables are
// embedded JSON, decoded on first use.
package builtins

import (
	"embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/standardbeagle/shadersense/internal/types"
)

//go:embed data/*.json
var dataFS embed.FS

type entry struct {
	Label       string            `json:"label"`
	Type        string            `json:"type,omitempty"`
	Params      []types.Parameter `json:"params,omitempty"`
	Description string            `json:"description,omitempty"`
}

type document struct {
	Functions []entry  `json:"functions"`
	Types     []entry  `json:"types"`
	Variables []entry  `json:"variables"`
	Keywords  []string `json:"keywords"`
}

// Table is the intrinsic set of one language
type Table struct {
	lang   types.LanguageKind
	once   sync.Once
	err    error
	all    []types.Symbol
	byName map[string][]types.Symbol
}

var tables = map[types.LanguageKind]*Table{
	types.LanguageGLSL: {lang: types.LanguageGLSL},
	types.LanguageHLSL: {lang: types.LanguageHLSL},
	types.LanguageWGSL: {lang: types.LanguageWGSL},
}

// For returns the table of lang. Unknown languages get an empty table.
func For(lang types.LanguageKind) (*Table, error) {
	t, ok := tables[lang]
	if !ok {
		return &Table{lang: lang, byName: map[string][]types.Symbol{}}, nil
	}
	t.once.Do(t.load)
	return t, t.err
}

func (t *Table) load() {
	data, err := dataFS.ReadFile(fmt.Sprintf("data/%s.json", t.lang))
	if err != nil {
		t.err = fmt.Errorf("reading %s intrinsics: %w", t.lang, err)
		return
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		t.err = fmt.Errorf("decoding %s intrinsics: %w", t.lang, err)
		return
	}

	t.byName = make(map[string][]types.Symbol)
	add := func(sym types.Symbol) {
		sym.Builtin = true
		sym.Order = len(t.all)
		t.all = append(t.all, sym)
		t.byName[sym.Name] = append(t.byName[sym.Name], sym)
	}
	for _, e := range doc.Functions {
		add(types.Symbol{
			Name:      e.Label,
			Kind:      types.SymbolKindFunction,
			Type:      e.Type,
			Params:    e.Params,
			Signature: t.signature(e),
			Doc:       e.Description,
		})
	}
	for _, e := range doc.Types {
		add(types.Symbol{Name: e.Label, Kind: types.SymbolKindType, Type: e.Label, Signature: e.Label, Doc: e.Description})
	}
	for _, e := range doc.Variables {
		add(types.Symbol{Name: e.Label, Kind: types.SymbolKindVariable, Type: e.Type, Signature: e.Type + " " + e.Label, Doc: e.Description})
	}
	for _, kw := range doc.Keywords {
		add(types.Symbol{Name: kw, Kind: types.SymbolKindKeyword, Signature: kw})
	}
}

// signature renders a function the way the language declares one
func (t *Table) signature(e entry) string {
	params := make([]string, 0, len(e.Params))
	for _, p := range e.Params {
		if t.lang == types.LanguageWGSL {
			params = append(params, p.Name+": "+p.Type)
		} else {
			params = append(params, p.Type+" "+p.Name)
		}
	}
	list := strings.Join(params, ", ")
	if t.lang == types.LanguageWGSL {
		sig := "fn " + e.Label + "(" + list + ")"
		if e.Type != "" {
			sig += " -> " + e.Type
		}
		return sig
	}
	return e.Type + " " + e.Label + "(" + list + ")"
}

// Lookup returns every entry named name, overloads in table order
func (t *Table) Lookup(name string) []types.Symbol {
	return t.byName[name]
}

// All returns the whole table, functions first, then types, variables and keywords
func (t *Table) All() []types.Symbol {
	return t.all
}
