package symbols

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/standardbeagle/shadersense/internal/debug"
	"github.com/standardbeagle/shadersense/internal/directive"
	sserrors "github.com/standardbeagle/shadersense/internal/errors"
	"github.com/standardbeagle/shadersense/internal/preprocess"
	"github.com/standardbeagle/shadersense/internal/types"
)

// FileSymbols is the declaration table of one file at one version
type FileSymbols struct {
	File     types.FileID
	Path     string
	Language types.LanguageKind
	Version  uint64
	// Symbols are in declaration order
	Symbols  []types.Symbol
	Includes []types.IncludeLink
	// Partial is set when the backend could not parse the whole file
	Partial *sserrors.PartialParseError
}

// Named returns the symbols called name in declaration order
func (fs *FileSymbols) Named(name string) []types.Symbol {
	var out []types.Symbol
	for _, s := range fs.Symbols {
		if s.Name == name {
			out = append(out, s)
		}
	}
	return out
}

// IncludeAt returns the include link whose path covers off
func (fs *FileSymbols) IncludeAt(off int) (types.IncludeLink, bool) {
	for _, l := range fs.Includes {
		if l.Span.ContainsInclusive(off) {
			return l, true
		}
	}
	return types.IncludeLink{}, false
}

// Extractor maps backend results into canonical symbols
type Extractor struct {
	mu       sync.RWMutex
	backends map[types.LanguageKind]Backend
}

// NewExtractor creates an extractor with the default backends: tree-sitter
// for GLSL and HLSL, naga for WGSL.
func NewExtractor() *Extractor {
	ts := NewTreeSitterBackend()
	return &Extractor{
		backends: map[types.LanguageKind]Backend{
			types.LanguageGLSL: ts,
			types.LanguageHLSL: ts,
			types.LanguageWGSL: WGSLBackend{},
		},
	}
}

// Register replaces the backend of lang
func (e *Extractor) Register(lang types.LanguageKind, b Backend) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.backends[lang] = b
}

func (e *Extractor) backend(lang types.LanguageKind) Backend {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.backends[lang]
}

// Extract returns the declarations of one file. It never fails: parse
// problems are reported through FileSymbols.Partial with whatever the
// backend recovered.
func (e *Extractor) Extract(ctx context.Context, file types.FileID, path string, lang types.LanguageKind, content []byte) *FileSymbols {
	fs := &FileSymbols{File: file, Path: path, Language: lang}
	lines := types.NewLineIndex(content)

	syms, includes := scanDirectives(content, lang, file)
	fs.Includes = includes

	if b := e.backend(lang); b != nil {
		res, err := b.Parse(ctx, content)
		syms = append(syms, res.Symbols...)
		switch {
		case err != nil:
			fs.Partial = sserrors.NewPartialParseError(file, path, lang, len(res.Symbols), err)
		case res.Errors > 0:
			fs.Partial = sserrors.NewPartialParseError(file, path, lang, len(res.Symbols),
				fmt.Errorf("%s: %d syntax error regions", b.Name(), res.Errors))
		}
	} else if lang != types.LanguageUnknown {
		fs.Partial = sserrors.NewPartialParseError(file, path, lang, 0, fmt.Errorf("no parser backend for %s", lang))
	}

	sort.SliceStable(syms, func(i, j int) bool { return syms[i].NameSpan.Start < syms[j].NameSpan.Start })
	for i := range syms {
		syms[i].File = file
		syms[i].Path = path
		syms[i].NameRange = lines.Range(syms[i].NameSpan)
		syms[i].Order = i
	}
	for i := range fs.Includes {
		fs.Includes[i].Range = lines.Range(fs.Includes[i].Span)
	}
	fs.Symbols = syms

	if fs.Partial != nil {
		debug.LogSymbols("%s: %v\n", path, fs.Partial)
	}
	debug.LogSymbols("extracted %d symbols, %d includes from %s\n", len(syms), len(includes), path)
	return fs
}

// scanDirectives turns #define lines into macro symbols and include
// directives into links
func scanDirectives(content []byte, lang types.LanguageKind, file types.FileID) ([]types.Symbol, []types.IncludeLink) {
	var syms []types.Symbol
	var links []types.IncludeLink
	for _, d := range directive.Scan(content, directive.For(lang)) {
		switch d.Kind {
		case directive.KindInclude:
			if d.Path == "" {
				continue
			}
			links = append(links, types.IncludeLink{Span: d.PathSpan, Path: d.Path})
		case directive.KindDefine:
			m, ok := preprocess.ParseDefine(d.Args, d.ArgsStart, d.Span.End, file)
			if !ok {
				continue
			}
			sig := "#define " + m.Name
			if m.FunctionLike {
				params := append([]string(nil), m.Params...)
				if m.Variadic && !strings.Contains(m.Body, "__VA_ARGS__") && len(params) > 0 {
					params[len(params)-1] += "..."
				} else if m.Variadic {
					params = append(params, "...")
				}
				sig += "(" + strings.Join(params, ", ") + ")"
			}
			if m.Body != "" {
				sig += " " + m.Body
			}
			sym := types.Symbol{
				Name:      m.Name,
				Kind:      types.SymbolKindMacro,
				NameSpan:  m.NameSpan,
				DeclSpan:  d.Span,
				Type:      m.Body,
				Signature: sig,
			}
			if m.FunctionLike {
				sym.Params = make([]types.Parameter, 0, len(m.Params))
			}
			for _, p := range m.Params {
				sym.Params = append(sym.Params, types.Parameter{Name: p})
			}
			syms = append(syms, sym)
		}
	}
	return syms, links
}
