package symbols

import (
	"bytes"
	"context"
	"strings"
	"unicode/utf8"

	"github.com/gogpu/naga/wgsl"

	"github.com/standardbeagle/shadersense/internal/directive"
	"github.com/standardbeagle/shadersense/internal/types"
)

// WGSLBackend parses WGSL with naga's front end. naga reports positions as
// line and column only, so every AST node is tied back to its token to get
// byte spans. When the parser gives up on a declaration, top-level
// declarations are recovered from the token stream instead.
type WGSLBackend struct{}

func (WGSLBackend) Name() string { return "naga-wgsl" }

// wgslTok is a naga token with its byte span in the source
type wgslTok struct {
	wgsl.Token
	start int
	end   int
}

type wgslFile struct {
	content []byte
	lines   *types.LineIndex
	toks    []wgslTok
	at      map[[2]int]int // token index by line and column
	out     []types.Symbol
	globals map[string]bool
}

// Parse implements Backend
func (WGSLBackend) Parse(ctx context.Context, content []byte) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	src := blankDirectives(content)
	raw, err := wgsl.NewLexer(string(src)).Tokenize()
	if err != nil {
		return Result{}, err
	}
	f := newWGSLFile(src, raw)

	module, perr := wgsl.NewParser(f.parserTokens()).Parse()
	if module != nil {
		f.module(module)
	}
	if perr != nil {
		f.recoverGlobals()
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	return Result{Symbols: f.out}, perr
}

// blankDirectives replaces preprocessor lines with spaces. They are handled
// by the shared directive scanner and naga does not know them.
func blankDirectives(content []byte) []byte {
	dirs := directive.Scan(content, directive.For(types.LanguageWGSL))
	if len(dirs) == 0 {
		return content
	}
	out := bytes.Clone(content)
	for _, d := range dirs {
		for i := d.Span.Start; i < d.Span.End && i < len(out); i++ {
			if out[i] != '\n' && out[i] != '\r' {
				out[i] = ' '
			}
		}
	}
	return out
}

func newWGSLFile(content []byte, raw []wgsl.Token) *wgslFile {
	f := &wgslFile{
		content: content,
		lines:   types.NewLineIndex(content),
		toks:    make([]wgslTok, 0, len(raw)),
		at:      make(map[[2]int]int, len(raw)),
		globals: make(map[string]bool),
	}
	for _, t := range raw {
		start := f.offset(t.Line, t.Column)
		if t.Lexeme != "" && !bytes.HasPrefix(f.content[start:], []byte(t.Lexeme)) {
			// Tolerate column drift after multi-byte runes
			if i := bytes.Index(f.content[start:], []byte(t.Lexeme)); i >= 0 {
				start += i
			}
		}
		f.at[[2]int{t.Line, t.Column}] = len(f.toks)
		f.toks = append(f.toks, wgslTok{Token: t, start: start, end: start + len(t.Lexeme)})
	}
	return f
}

// offset converts naga's 1-based line and rune column to a byte offset
func (f *wgslFile) offset(line, col int) int {
	off := f.lines.LineStart(line - 1)
	for c := 1; c < col && off < len(f.content) && f.content[off] != '\n'; c++ {
		_, size := utf8.DecodeRune(f.content[off:])
		off += size
	}
	return off
}

// parserTokens drops empty top-level declarations such as the ';' after a
// struct body, which WGSL allows and naga rejects
func (f *wgslFile) parserTokens() []wgsl.Token {
	out := make([]wgsl.Token, 0, len(f.toks))
	depth := 0
	prev := wgsl.TokenSemicolon
	for _, t := range f.toks {
		switch t.Kind {
		case wgsl.TokenLeftBrace:
			depth++
		case wgsl.TokenRightBrace:
			depth--
		case wgsl.TokenSemicolon:
			if depth == 0 && (prev == wgsl.TokenSemicolon || prev == wgsl.TokenRightBrace) {
				continue
			}
		}
		prev = t.Kind
		out = append(out, t.Token)
	}
	return out
}

func (f *wgslFile) tokAt(s wgsl.Span) (int, bool) {
	i, ok := f.at[[2]int{s.Start.Line, s.Start.Column}]
	return i, ok
}

// nameAfter finds the identifier name declared by the keyword at i
func (f *wgslFile) nameAfter(i int, name string) (wgslTok, bool) {
	for j := i + 1; j < len(f.toks); j++ {
		t := f.toks[j]
		if t.Kind == wgsl.TokenIdent && t.Lexeme == name {
			return t, true
		}
		if t.Kind == wgsl.TokenLeftBrace || t.Kind == wgsl.TokenSemicolon {
			break
		}
	}
	return wgslTok{}, false
}

// matching returns the index of the brace closing the one at open, or the
// last token when unbalanced
func (f *wgslFile) matching(open int) int {
	depth := 0
	for i := open; i < len(f.toks); i++ {
		switch f.toks[i].Kind {
		case wgsl.TokenLeftBrace:
			depth++
		case wgsl.TokenRightBrace:
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return len(f.toks) - 1
}

// scanTo returns the index of the first token from i, at nesting depth 0,
// that stop accepts. Unbalanced closers and EOF stop the scan too. Angle
// brackets nest only inside type expressions, so callers scanning past
// initializers pass angles false.
func (f *wgslFile) scanTo(i int, angles bool, stop func(wgsl.TokenKind) bool) int {
	depth := 0
	for ; i < len(f.toks); i++ {
		k := f.toks[i].Kind
		if depth == 0 && stop(k) {
			return i
		}
		switch k {
		case wgsl.TokenLeftParen, wgsl.TokenLeftBracket, wgsl.TokenLeftBrace:
			depth++
		case wgsl.TokenRightParen, wgsl.TokenRightBracket, wgsl.TokenRightBrace:
			depth--
		case wgsl.TokenLess:
			if angles {
				depth++
			}
		case wgsl.TokenGreater:
			if angles {
				depth--
			}
		case wgsl.TokenGreaterGreater:
			if angles {
				depth -= 2
			}
		case wgsl.TokenEOF:
			return i
		}
		if depth < 0 {
			return i
		}
	}
	return len(f.toks) - 1
}

// endBefore is the end of the last real token before index i
func (f *wgslFile) endBefore(i, floor int) int {
	for j := i - 1; j >= 0; j-- {
		if f.toks[j].Kind != wgsl.TokenEOF {
			return max(f.toks[j].end, floor)
		}
	}
	return floor
}

// declEnd returns the end of the statement starting at token i
func (f *wgslFile) declEnd(i int) int {
	j := f.scanTo(i, false, func(k wgsl.TokenKind) bool { return k == wgsl.TokenSemicolon })
	if f.toks[j].Kind == wgsl.TokenSemicolon {
		return f.toks[j].end
	}
	return f.endBefore(j, f.toks[i].end)
}

func (f *wgslFile) emit(sym types.Symbol, ctx walkContext) {
	if ctx.inBlock {
		sym.Scope = types.ScopeLocal
		sym.ScopeSpan = ctx.scope
		sym.Container = ctx.function
	} else {
		f.globals[sym.Name] = true
	}
	f.out = append(f.out, sym)
}

func (f *wgslFile) module(m *wgsl.Module) {
	for _, s := range m.Structs {
		f.structure(s)
	}
	for _, fn := range m.Functions {
		f.function(fn)
	}
	for _, v := range m.GlobalVars {
		f.declare(v.Span, v.Name, wgslType(v.Type), walkContext{})
	}
	for _, c := range m.Constants {
		f.declare(c.Span, c.Name, wgslType(c.Type), walkContext{})
	}
	for _, a := range m.Aliases {
		f.alias(a)
	}
}

func (f *wgslFile) function(fn *wgsl.FunctionDecl) {
	i, ok := f.tokAt(fn.Span)
	if !ok {
		return
	}
	name, ok := f.nameAfter(i, fn.Name)
	if !ok {
		return
	}
	kw := f.toks[i]

	params := make([]types.Parameter, 0, len(fn.Params))
	for _, p := range fn.Params {
		params = append(params, types.Parameter{Type: wgslType(p.Type), Name: p.Name})
	}

	sigEnd, declEnd := name.end, name.end
	body := -1
	if fn.Body != nil {
		if b, ok := f.tokAt(fn.Body.Span); ok {
			body = b
			sigEnd = f.endBefore(b, name.end)
			declEnd = f.toks[f.matching(b)].end
		}
	}
	sym := types.Symbol{
		Name:      fn.Name,
		Kind:      types.SymbolKindFunction,
		NameSpan:  types.Span{Start: name.start, End: name.end},
		DeclSpan:  types.Span{Start: kw.start, End: declEnd},
		Type:      wgslType(fn.ReturnType),
		Signature: collapseSpace(string(f.content[kw.start:sigEnd])),
		Params:    params,
	}
	f.emit(sym, walkContext{})
	if body < 0 {
		return
	}

	inner := walkContext{
		scope:    types.Span{Start: f.toks[body].start, End: declEnd},
		function: fn.Name,
		inBlock:  true,
	}
	for k, p := range fn.Params {
		j, ok := f.tokAt(p.Span)
		if !ok {
			continue
		}
		pt := f.toks[j]
		f.emit(types.Symbol{
			Name:      p.Name,
			Kind:      types.SymbolKindVariable,
			NameSpan:  types.Span{Start: pt.start, End: pt.end},
			DeclSpan:  types.Span{Start: pt.start, End: pt.end},
			Type:      params[k].Type,
			Signature: p.Name + ": " + params[k].Type,
		}, inner)
	}
	f.statements(fn.Body.Statements, inner)
}

func (f *wgslFile) structure(s *wgsl.StructDecl) {
	i, ok := f.tokAt(s.Span)
	if !ok {
		return
	}
	name, ok := f.nameAfter(i, s.Name)
	if !ok {
		return
	}
	kw := f.toks[i]
	open := f.scanTo(i+1, false, func(k wgsl.TokenKind) bool { return k == wgsl.TokenLeftBrace })
	body := types.Span{Start: f.toks[open].start, End: f.toks[f.matching(open)].end}
	f.emit(types.Symbol{
		Name:      s.Name,
		Kind:      types.SymbolKindType,
		NameSpan:  types.Span{Start: name.start, End: name.end},
		DeclSpan:  types.Span{Start: kw.start, End: body.End},
		Type:      s.Name,
		Signature: "struct " + s.Name,
	}, walkContext{})

	for _, m := range s.Members {
		j, ok := f.tokAt(m.Span)
		if !ok {
			continue
		}
		mt := f.toks[j]
		typ := wgslType(m.Type)
		stop := f.scanTo(j, true, func(k wgsl.TokenKind) bool { return k == wgsl.TokenComma })
		f.out = append(f.out, types.Symbol{
			Name:      m.Name,
			Kind:      types.SymbolKindField,
			NameSpan:  types.Span{Start: mt.start, End: mt.end},
			DeclSpan:  types.Span{Start: mt.start, End: f.endBefore(stop, mt.end)},
			Type:      typ,
			Signature: m.Name + ": " + typ,
			Scope:     types.ScopeMember,
			ScopeSpan: body,
			Container: s.Name,
		})
	}
}

// declare emits a var, let, const or override declaration starting at span
func (f *wgslFile) declare(span wgsl.Span, name, typ string, ctx walkContext) {
	i, ok := f.tokAt(span)
	if !ok {
		return
	}
	nt, ok := f.nameAfter(i, name)
	if !ok {
		return
	}
	kw := f.toks[i]
	sig := kw.Lexeme + " " + name
	if typ != "" {
		sig += ": " + typ
	}
	f.emit(types.Symbol{
		Name:      name,
		Kind:      types.SymbolKindVariable,
		NameSpan:  types.Span{Start: nt.start, End: nt.end},
		DeclSpan:  types.Span{Start: kw.start, End: f.declEnd(i)},
		Type:      typ,
		Signature: sig,
	}, ctx)
}

func (f *wgslFile) alias(a *wgsl.AliasDecl) {
	i, ok := f.tokAt(a.Span)
	if !ok {
		return
	}
	nt, ok := f.nameAfter(i, a.Name)
	if !ok {
		return
	}
	typ := wgslType(a.Type)
	f.emit(types.Symbol{
		Name:      a.Name,
		Kind:      types.SymbolKindType,
		NameSpan:  types.Span{Start: nt.start, End: nt.end},
		DeclSpan:  types.Span{Start: f.toks[i].start, End: f.declEnd(i)},
		Type:      typ,
		Signature: "alias " + a.Name + " = " + typ,
	}, walkContext{})
}

func (f *wgslFile) statements(stmts []wgsl.Stmt, ctx walkContext) {
	for _, st := range stmts {
		f.statement(st, ctx)
	}
}

func (f *wgslFile) statement(st wgsl.Stmt, ctx walkContext) {
	switch s := st.(type) {
	case *wgsl.VarDecl:
		f.declare(s.Span, s.Name, wgslType(s.Type), ctx)
	case *wgsl.ConstDecl:
		f.declare(s.Span, s.Name, wgslType(s.Type), ctx)
	case *wgsl.BlockStmt:
		f.block(s, ctx)
	case *wgsl.IfStmt:
		f.block(s.Body, ctx)
		if s.Else != nil {
			f.statement(s.Else, ctx)
		}
	case *wgsl.ForStmt:
		// The init declaration lives as long as the loop
		inner := ctx
		if i, ok := f.tokAt(s.Span); ok && s.Body != nil {
			if b, ok := f.tokAt(s.Body.Span); ok {
				inner.scope = types.Span{Start: f.toks[i].start, End: f.toks[f.matching(b)].end}
			}
		}
		if s.Init != nil {
			f.statement(s.Init, inner)
		}
		f.block(s.Body, inner)
	case *wgsl.WhileStmt:
		f.block(s.Body, ctx)
	case *wgsl.LoopStmt:
		f.block(s.Body, ctx)
		f.block(s.Continuing, ctx)
	case *wgsl.SwitchStmt:
		for _, c := range s.Cases {
			f.block(c.Body, ctx)
		}
	}
}

func (f *wgslFile) block(b *wgsl.BlockStmt, ctx walkContext) {
	if b == nil {
		return
	}
	inner := ctx
	if i, ok := f.tokAt(b.Span); ok {
		inner.scope = types.Span{Start: f.toks[i].start, End: f.toks[f.matching(i)].end}
	}
	f.statements(b.Statements, inner)
}

var wgslDeclKinds = map[wgsl.TokenKind]types.SymbolKind{
	wgsl.TokenFn:       types.SymbolKindFunction,
	wgsl.TokenStruct:   types.SymbolKindType,
	wgsl.TokenAlias:    types.SymbolKindType,
	wgsl.TokenVar:      types.SymbolKindVariable,
	wgsl.TokenConst:    types.SymbolKindVariable,
	wgsl.TokenLet:      types.SymbolKindVariable,
	wgsl.TokenOverride: types.SymbolKindVariable,
}

// recoverGlobals adds the top-level declarations the parser dropped. Only
// the header is known for them: no parameters, members or locals.
func (f *wgslFile) recoverGlobals() {
	depth := 0
	for i := 0; i < len(f.toks); i++ {
		t := f.toks[i]
		switch t.Kind {
		case wgsl.TokenLeftBrace:
			depth++
			continue
		case wgsl.TokenRightBrace:
			if depth > 0 {
				depth--
			}
			continue
		}
		kind, ok := wgslDeclKinds[t.Kind]
		if depth > 0 || !ok {
			continue
		}
		j := i + 1
		if t.Kind == wgsl.TokenVar && j < len(f.toks) && f.toks[j].Kind == wgsl.TokenLess {
			j = f.scanTo(j+1, false, func(k wgsl.TokenKind) bool { return k == wgsl.TokenGreater }) + 1
		}
		if j >= len(f.toks) || f.toks[j].Kind != wgsl.TokenIdent || f.globals[f.toks[j].Lexeme] {
			continue
		}
		name := f.toks[j]
		stop := f.headerEnd(j + 1)
		end := f.endBefore(stop, name.end)

		typ := ""
		switch {
		case kind == types.SymbolKindVariable && j+1 < stop && f.toks[j+1].Kind == wgsl.TokenColon:
			eq := f.scanTo(j+2, false, func(k wgsl.TokenKind) bool { return k == wgsl.TokenEqual || k == wgsl.TokenSemicolon })
			typ = collapseSpace(string(f.content[f.toks[j+2].start:f.endBefore(min(eq, stop), f.toks[j+2].start)]))
		case t.Kind == wgsl.TokenStruct:
			typ = name.Lexeme
		}
		f.emit(types.Symbol{
			Name:      name.Lexeme,
			Kind:      kind,
			NameSpan:  types.Span{Start: name.start, End: name.end},
			DeclSpan:  types.Span{Start: t.start, End: end},
			Type:      typ,
			Signature: collapseSpace(string(f.content[t.start:end])),
		}, walkContext{})
		i = j
	}
}

// headerEnd finds where a declaration header starting at i stops: the body,
// the terminating semicolon or the next declaration. An unclosed parameter
// list does not hide the body.
func (f *wgslFile) headerEnd(i int) int {
	parens := 0
	for ; i < len(f.toks); i++ {
		k := f.toks[i].Kind
		if _, decl := wgslDeclKinds[k]; decl {
			return i
		}
		switch k {
		case wgsl.TokenSemicolon, wgsl.TokenLeftBrace, wgsl.TokenEOF:
			return i
		case wgsl.TokenAt:
			if parens == 0 {
				return i
			}
		case wgsl.TokenLeftParen:
			parens++
		case wgsl.TokenRightParen:
			parens--
		}
	}
	return len(f.toks) - 1
}

// wgslType renders a naga type node the way it is written in source
func wgslType(t wgsl.Type) string {
	switch t := t.(type) {
	case *wgsl.NamedType:
		if len(t.TypeParams) == 0 {
			return t.Name
		}
		params := make([]string, 0, len(t.TypeParams))
		for _, p := range t.TypeParams {
			params = append(params, wgslType(p))
		}
		return t.Name + "<" + strings.Join(params, ", ") + ">"
	case *wgsl.ArrayType:
		s := "array<" + wgslType(t.Element)
		if t.Size != nil {
			s += ", " + wgslExpr(t.Size)
		}
		return s + ">"
	case *wgsl.BindingArrayType:
		s := "binding_array<" + wgslType(t.Element)
		if t.Size != nil {
			s += ", " + wgslExpr(t.Size)
		}
		return s + ">"
	case *wgsl.PtrType:
		s := "ptr<" + t.AddressSpace + ", " + wgslType(t.PointeeType)
		if t.AccessMode != "" {
			s += ", " + t.AccessMode
		}
		return s + ">"
	}
	return ""
}

func wgslExpr(e wgsl.Expr) string {
	switch e := e.(type) {
	case *wgsl.Literal:
		return e.Value
	case *wgsl.Ident:
		return e.Name
	}
	return "_"
}
