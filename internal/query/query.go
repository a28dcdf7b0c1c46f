// Package query answers editor requests against a workspace: hover,
// go-to-definition, completion, signature help and diagnostics. Positions
// in and out are source coordinates of the requested file.
package query

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/standardbeagle/shadersense/internal/builtins"
	"github.com/standardbeagle/shadersense/internal/debug"
	"github.com/standardbeagle/shadersense/internal/index"
	"github.com/standardbeagle/shadersense/internal/registry"
	"github.com/standardbeagle/shadersense/internal/types"
	"github.com/standardbeagle/shadersense/internal/workspace"
	"github.com/standardbeagle/shadersense/pkg/pathutil"
)

// Hover is the answer of a hover request
type Hover struct {
	Contents string       `json:"contents"`
	Range    types.Range  `json:"range"`
	Symbol   types.Symbol `json:"symbol"`
}

// CompletionItem is one completion candidate
type CompletionItem struct {
	Label  string           `json:"label"`
	Kind   types.SymbolKind `json:"-"`
	Detail string           `json:"detail,omitempty"`
	Path   string           `json:"path,omitempty"`
	Score  float64          `json:"score"`
}

// Signature is one callable candidate of signature help
type Signature struct {
	Label  string            `json:"label"`
	Params []types.Parameter `json:"params"`
	Path   string            `json:"path"`
}

// SignatureHelp is the answer of a signature help request
type SignatureHelp struct {
	Signatures      []Signature `json:"signatures"`
	ActiveSignature int         `json:"active_signature"`
	ActiveParameter int         `json:"active_parameter"`
}

// Facade is the public query surface of a workspace
type Facade struct {
	ws    *workspace.State
	fuzzy *FuzzyMatcher
}

// New creates a facade over ws
func New(ws *workspace.State) *Facade {
	return &Facade{ws: ws, fuzzy: NewFuzzyMatcher(ws.Config().Completion.FuzzyThreshold)}
}

// Workspace returns the underlying workspace
func (q *Facade) Workspace() *workspace.State { return q.ws }

// DidOpen forwards to the workspace
func (q *Facade) DidOpen(ctx context.Context, path string, text []byte, lang types.LanguageKind, version int32) error {
	_, err := q.ws.DidOpen(ctx, path, text, lang, version)
	return err
}

// DidChange forwards to the workspace
func (q *Facade) DidChange(ctx context.Context, path string, text []byte, version int32) error {
	_, err := q.ws.DidChange(ctx, path, text, version)
	return err
}

// DidClose forwards to the workspace
func (q *Facade) DidClose(path string) error {
	return q.ws.DidClose(path)
}

// builtinPenalty keeps intrinsics below workspace symbols of the same match quality
const builtinPenalty = 0.25

// scope is the set of closures a file's identifiers are looked up in: the
// file's own closure first, then the closures of the roots including it,
// since a header's symbols may come from whoever includes it. The
// language's intrinsics come last.
type scope struct {
	file     *registry.File
	closures []*index.Closure
	builtins *builtins.Table
}

func (q *Facade) scopeOf(ctx context.Context, path string) (*scope, error) {
	f, err := q.ws.Lookup(path)
	if err != nil {
		return nil, err
	}
	own, err := q.ws.Closure(ctx, f.ID)
	if err != nil {
		return nil, err
	}
	sc := &scope{file: f, closures: []*index.Closure{own}}
	if sc.builtins, err = builtins.For(f.Language); err != nil {
		debug.LogQuery("intrinsics of %s: %v\n", f.Language, err)
		sc.builtins = nil
	}
	for _, root := range q.ws.Roots(f.ID) {
		c, err := q.ws.Closure(ctx, root)
		if err != nil {
			debug.LogQuery("closure of includer %d: %v\n", root, err)
			continue
		}
		sc.closures = append(sc.closures, c)
	}
	return sc, nil
}

// resolve returns the candidates of name at off, from the first closure
// that knows it
func (sc *scope) resolve(name string, off int) []index.Candidate {
	for i, c := range sc.closures {
		at := off
		if i > 0 {
			// Locals only apply inside the file's own closure
			at = -1
		}
		if cands := c.Resolve(name, at); len(cands) > 0 {
			return cands
		}
	}
	if sc.builtins == nil {
		return nil
	}
	var cands []index.Candidate
	for _, s := range sc.builtins.Lookup(name) {
		cands = append(cands, index.Candidate{Symbol: s})
	}
	return cands
}

func (sc *scope) best(name string, off int) (index.Candidate, bool) {
	cands := sc.resolve(name, off)
	if len(cands) == 0 {
		return index.Candidate{}, false
	}
	return cands[0], true
}

func (sc *scope) members(typeName string) []types.Symbol {
	for _, c := range sc.closures {
		if m := c.Members(typeName); len(m) > 0 {
			return m
		}
	}
	return nil
}

// receiverType follows a member chain to the type of its last element
func (sc *scope) receiverType(chain []string, off int) string {
	head, ok := sc.best(chain[0], off)
	if !ok {
		return ""
	}
	t := baseType(head.Symbol.Type)
	for _, name := range chain[1:] {
		next := ""
		for _, m := range sc.members(t) {
			if m.Name == name {
				next = baseType(m.Type)
				break
			}
		}
		if next == "" {
			return ""
		}
		t = next
	}
	return t
}

// symbolAt resolves the identifier under the cursor, following member access
func (sc *scope) symbolAt(off int) (types.Symbol, types.Span, bool) {
	content := sc.file.Content
	name, start, end := identAt(content, off)
	if name == "" {
		return types.Symbol{}, types.Span{}, false
	}
	span := types.Span{Start: start, End: end}
	if chain, ok := receiverChain(content, start); ok {
		if t := sc.receiverType(chain, start); t != "" {
			for _, m := range sc.members(t) {
				if m.Name == name {
					return m, span, true
				}
			}
		}
	}
	c, ok := sc.best(name, start)
	if !ok {
		return types.Symbol{}, span, false
	}
	return c.Symbol, span, true
}

func (sc *scope) offset(pos types.Position) int {
	return sc.file.Lines.Offset(pos)
}

// Hover describes the symbol under the cursor; nil when there is none
func (q *Facade) Hover(ctx context.Context, path string, pos types.Position) (*Hover, error) {
	sc, err := q.scopeOf(ctx, path)
	if err != nil {
		return nil, err
	}
	sym, span, ok := sc.symbolAt(sc.offset(pos))
	if !ok {
		return nil, nil
	}
	return &Hover{
		Contents: q.hoverText(sc.file.Language, sym),
		Range:    sc.file.Lines.Range(span),
		Symbol:   sym,
	}, nil
}

func (q *Facade) hoverText(lang types.LanguageKind, sym types.Symbol) string {
	sig := sym.Signature
	if sig == "" {
		sig = strings.TrimSpace(sym.Type + " " + sym.Name)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "```%s\n%s\n```\n", lang, sig)
	if sym.Builtin {
		fmt.Fprintf(&b, "built-in %s", sym.Kind)
		if sym.Doc != "" {
			fmt.Fprintf(&b, "\n\n%s", sym.Doc)
		}
		return b.String()
	}
	where := q.relative(sym.Path)
	if sym.Container != "" {
		fmt.Fprintf(&b, "%s of `%s`, ", sym.Kind, sym.Container)
	} else {
		fmt.Fprintf(&b, "%s, ", sym.Kind)
	}
	fmt.Fprintf(&b, "declared in %s:%d", where, sym.NameRange.Start.Line+1)
	return b.String()
}

func (q *Facade) relative(path string) string {
	return pathutil.ToRelative(path, q.ws.Config().Project.Root)
}

// Definition returns the declaration of the symbol under the cursor, or
// the target file when the cursor is on an include path
func (q *Facade) Definition(ctx context.Context, path string, pos types.Position) ([]types.Location, error) {
	sc, err := q.scopeOf(ctx, path)
	if err != nil {
		return nil, err
	}
	off := sc.offset(pos)
	if table, ok := q.ws.Table(sc.file.ID); ok {
		if link, ok := table.IncludeAt(off); ok {
			if link.Target == types.InvalidFileID {
				return nil, nil
			}
			target, ok := q.ws.FileByID(link.Target)
			if !ok {
				return nil, nil
			}
			return []types.Location{{File: target.ID, Path: target.Path}}, nil
		}
	}
	sym, _, ok := sc.symbolAt(off)
	if !ok || sym.Builtin {
		return nil, nil
	}
	debug.LogQuery("definition of %s -> %s:%d\n", sym.Name, sym.Path, sym.NameRange.Start.Line)
	return []types.Location{{File: sym.File, Path: sym.Path, Range: sym.NameRange}}, nil
}

// Completion lists the symbols that may follow the cursor. After a '.' it
// lists the members of the receiver's type.
func (q *Facade) Completion(ctx context.Context, path string, pos types.Position) ([]CompletionItem, error) {
	sc, err := q.scopeOf(ctx, path)
	if err != nil {
		return nil, err
	}
	off := sc.offset(pos)
	prefix, start := prefixAt(sc.file.Content, off)

	var pool []types.Symbol
	if chain, ok := receiverChain(sc.file.Content, start); ok {
		if t := sc.receiverType(chain, start); t != "" {
			pool = sc.members(t)
		}
	} else {
		seen := make(map[string]bool)
		for i, c := range sc.closures {
			at := start
			if i > 0 {
				at = -1
			}
			for _, cand := range c.Visible(at) {
				if !seen[cand.Symbol.Name] {
					seen[cand.Symbol.Name] = true
					pool = append(pool, cand.Symbol)
				}
			}
		}
		if sc.builtins != nil {
			for _, sym := range sc.builtins.All() {
				if !seen[sym.Name] {
					seen[sym.Name] = true
					pool = append(pool, sym)
				}
			}
		}
	}

	var items []CompletionItem
	for rank, sym := range pool {
		if sym.Name == prefix && sym.NameSpan.Start == start && sym.File == sc.file.ID {
			// The declaration being typed
			continue
		}
		score, ok := q.fuzzy.Score(prefix, sym.Name)
		if !ok {
			continue
		}
		if sym.Builtin {
			score -= builtinPenalty
		}
		items = append(items, CompletionItem{
			Label:  sym.Name,
			Kind:   sym.Kind,
			Detail: detail(sym),
			Path:   sym.Path,
			// Ties keep closure ranking
			Score: score - float64(rank)*1e-6,
		})
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].Score > items[j].Score })
	if limit := q.ws.Config().Completion.MaxResults; limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	debug.LogQuery("completion %q at %d: %d items\n", prefix, off, len(items))
	return items, nil
}

func detail(sym types.Symbol) string {
	if sym.Signature != "" {
		return sym.Signature
	}
	return sym.Type
}

// SignatureHelp describes the call surrounding the cursor; nil outside calls
func (q *Facade) SignatureHelp(ctx context.Context, path string, pos types.Position) (*SignatureHelp, error) {
	sc, err := q.scopeOf(ctx, path)
	if err != nil {
		return nil, err
	}
	off := sc.offset(pos)
	name, active, ok := callAt(sc.file.Content, off)
	if !ok {
		return nil, nil
	}

	help := &SignatureHelp{ActiveParameter: active}
	for _, cand := range sc.resolve(name, off) {
		s := cand.Symbol
		if s.Kind != types.SymbolKindFunction && !(s.Kind == types.SymbolKindMacro && s.Params != nil) {
			continue
		}
		help.Signatures = append(help.Signatures, Signature{Label: s.Signature, Params: s.Params, Path: s.Path})
	}
	if len(help.Signatures) == 0 {
		return nil, nil
	}
	for i, s := range help.Signatures {
		if len(s.Params) > active {
			help.ActiveSignature = i
			break
		}
	}
	if n := len(help.Signatures[help.ActiveSignature].Params); n > 0 && active >= n {
		help.ActiveParameter = n - 1
	}
	return help, nil
}

// Diagnostics returns the diagnostics of path at or above the configured severity
func (q *Facade) Diagnostics(ctx context.Context, path string) ([]types.Diagnostic, error) {
	diags, err := q.ws.Diagnostics(ctx, path)
	if err != nil {
		return nil, err
	}
	return FilterSeverity(diags, q.ws.Config().MinSeverity()), nil
}

// FilterSeverity keeps diagnostics at least as severe as min
func FilterSeverity(diags []types.Diagnostic, min types.Severity) []types.Diagnostic {
	out := diags[:0:0]
	for _, d := range diags {
		if d.Severity.IsRequired(min) {
			out = append(out, d)
		}
	}
	return out
}
