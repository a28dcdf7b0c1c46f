package symbols

import (
	"context"
	"strings"
	"sync"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_cpp "github.com/tree-sitter/tree-sitter-cpp/bindings/go"

	"github.com/standardbeagle/shadersense/internal/types"
)

// TreeSitterBackend parses GLSL and HLSL with the C++ grammar. Shader
// qualifiers the grammar does not know end up in ERROR nodes, which are
// walked like any other node so declarations around them survive.
type TreeSitterBackend struct {
	language *tree_sitter.Language
	pool     sync.Pool
}

// NewTreeSitterBackend creates a backend with its own parser pool
func NewTreeSitterBackend() *TreeSitterBackend {
	b := &TreeSitterBackend{
		language: tree_sitter.NewLanguage(tree_sitter_cpp.Language()),
	}
	b.pool.New = func() any {
		p := tree_sitter.NewParser()
		if err := p.SetLanguage(b.language); err != nil {
			p.Close()
			return nil
		}
		return p
	}
	return b
}

func (b *TreeSitterBackend) Name() string { return "tree-sitter-cpp" }

// Parse implements Backend
func (b *TreeSitterBackend) Parse(ctx context.Context, content []byte) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	p, _ := b.pool.Get().(*tree_sitter.Parser)
	if p == nil {
		return Result{}, errGrammarUnavailable
	}
	defer b.pool.Put(p)

	tree := p.Parse(content, nil)
	if tree == nil {
		return Result{}, errParseFailed
	}
	defer tree.Close()

	w := &tsWalker{content: content}
	root := tree.RootNode()
	w.walk(root, walkContext{})
	return Result{Symbols: w.symbols, Errors: w.errors}, nil
}

type walkContext struct {
	scope    types.Span // innermost block
	function string
	inBlock  bool
}

type tsWalker struct {
	content []byte
	symbols []types.Symbol
	errors  int
}

func (w *tsWalker) text(n *tree_sitter.Node) string {
	if n == nil {
		return ""
	}
	return string(w.content[n.StartByte():n.EndByte()])
}

func span(n *tree_sitter.Node) types.Span {
	return types.Span{Start: int(n.StartByte()), End: int(n.EndByte())}
}

func (w *tsWalker) walk(n *tree_sitter.Node, ctx walkContext) {
	switch n.Kind() {
	case "ERROR":
		w.errors++
	case "function_definition":
		w.function(n, ctx)
		return
	case "declaration":
		w.declaration(n, ctx)
	case "struct_specifier", "class_specifier":
		w.structure(n, ctx)
		return
	case "compound_statement":
		ctx.scope = span(n)
		ctx.inBlock = true
	case "preproc_def", "preproc_function_def", "preproc_include", "comment", "string_literal":
		// macros and includes come from the directive scanner
		return
	}
	if n.IsMissing() {
		w.errors++
	}
	for i := uint(0); i < n.ChildCount(); i++ {
		if child := n.Child(i); child != nil && child.IsNamed() {
			w.walk(child, ctx)
		}
	}
}

func (w *tsWalker) function(n *tree_sitter.Node, ctx walkContext) {
	typeNode := n.ChildByFieldName("type")
	fd := unwrapDeclarator(n.ChildByFieldName("declarator"))
	body := n.ChildByFieldName("body")
	if fd == nil || fd.Kind() != "function_declarator" {
		w.errors++
		if body != nil {
			w.walk(body, ctx)
		}
		return
	}
	nameNode := fd.ChildByFieldName("declarator")
	name := w.text(nameNode)
	if nameNode == nil || name == "" {
		return
	}

	sigEnd := n.EndByte()
	if body != nil {
		sigEnd = body.StartByte()
	}
	sym := types.Symbol{
		Name:      name,
		Kind:      types.SymbolKindFunction,
		NameSpan:  span(nameNode),
		DeclSpan:  span(n),
		Type:      w.text(typeNode),
		Signature: collapseSpace(string(w.content[n.StartByte():sigEnd])),
		Params:    w.parameters(fd.ChildByFieldName("parameters")),
	}
	w.scoped(&sym, ctx)
	w.symbols = append(w.symbols, sym)

	if body == nil {
		return
	}
	bodySpan := span(body)
	// Parameters are locals of the body
	if params := fd.ChildByFieldName("parameters"); params != nil {
		for i := uint(0); i < params.ChildCount(); i++ {
			pd := params.Child(i)
			if pd == nil || !strings.HasSuffix(pd.Kind(), "parameter_declaration") {
				continue
			}
			pn := declaratorName(pd.ChildByFieldName("declarator"))
			if pn == nil {
				continue
			}
			w.symbols = append(w.symbols, types.Symbol{
				Name:      w.text(pn),
				Kind:      types.SymbolKindVariable,
				NameSpan:  span(pn),
				DeclSpan:  span(pd),
				Type:      w.text(pd.ChildByFieldName("type")),
				Signature: collapseSpace(w.text(pd)),
				Scope:     types.ScopeLocal,
				ScopeSpan: bodySpan,
				Container: name,
			})
		}
	}
	inner := walkContext{scope: bodySpan, function: name, inBlock: true}
	for i := uint(0); i < body.ChildCount(); i++ {
		if child := body.Child(i); child != nil && child.IsNamed() {
			w.walk(child, inner)
		}
	}
}

func (w *tsWalker) parameters(list *tree_sitter.Node) []types.Parameter {
	if list == nil {
		return nil
	}
	var params []types.Parameter
	for i := uint(0); i < list.ChildCount(); i++ {
		pd := list.Child(i)
		if pd == nil || !strings.HasSuffix(pd.Kind(), "parameter_declaration") {
			continue
		}
		p := types.Parameter{Type: w.text(pd.ChildByFieldName("type"))}
		if d := pd.ChildByFieldName("declarator"); d != nil {
			p.Name = w.text(declaratorName(d))
			// keep array suffixes such as "weights[4]"
			if d.Kind() == "array_declarator" {
				p.Type += strings.TrimPrefix(w.text(d), p.Name)
			}
		}
		params = append(params, p)
	}
	return params
}

func (w *tsWalker) declaration(n *tree_sitter.Node, ctx walkContext) {
	typeNode := n.ChildByFieldName("type")
	typeText := w.text(typeNode)
	if typeNode != nil && (typeNode.Kind() == "struct_specifier" || typeNode.Kind() == "class_specifier") {
		if name := typeNode.ChildByFieldName("name"); name != nil {
			typeText = w.text(name)
		}
	}
	for i := uint(0); i < n.ChildCount(); i++ {
		d := n.Child(i)
		if d == nil || !isDeclarator(d.Kind()) {
			continue
		}
		if typeNode != nil && d.StartByte() == typeNode.StartByte() {
			continue
		}
		inner := unwrapDeclarator(d)
		if inner != nil && inner.Kind() == "function_declarator" {
			w.prototype(n, inner, typeText, ctx)
			continue
		}
		nameNode := declaratorName(d)
		if nameNode == nil {
			continue
		}
		name := w.text(nameNode)
		typ := typeText
		if arr := arrayDeclarator(d); arr != nil {
			typ += strings.TrimPrefix(w.text(arr), name)
		}
		sym := types.Symbol{
			Name:      name,
			Kind:      types.SymbolKindVariable,
			NameSpan:  span(nameNode),
			DeclSpan:  span(n),
			Type:      typ,
			Signature: collapseSpace(typ + " " + name),
		}
		w.scoped(&sym, ctx)
		w.symbols = append(w.symbols, sym)
	}
}

func (w *tsWalker) prototype(decl, fd *tree_sitter.Node, typeText string, ctx walkContext) {
	nameNode := fd.ChildByFieldName("declarator")
	if nameNode == nil {
		return
	}
	sym := types.Symbol{
		Name:      w.text(nameNode),
		Kind:      types.SymbolKindFunction,
		NameSpan:  span(nameNode),
		DeclSpan:  span(decl),
		Type:      typeText,
		Signature: collapseSpace(strings.TrimSuffix(strings.TrimSpace(w.text(decl)), ";")),
		Params:    w.parameters(fd.ChildByFieldName("parameters")),
	}
	w.scoped(&sym, ctx)
	w.symbols = append(w.symbols, sym)
}

func (w *tsWalker) structure(n *tree_sitter.Node, ctx walkContext) {
	nameNode := n.ChildByFieldName("name")
	body := n.ChildByFieldName("body")
	if nameNode == nil {
		return
	}
	name := w.text(nameNode)
	sym := types.Symbol{
		Name:      name,
		Kind:      types.SymbolKindType,
		NameSpan:  span(nameNode),
		DeclSpan:  span(n),
		Type:      name,
		Signature: "struct " + name,
	}
	w.scoped(&sym, ctx)
	w.symbols = append(w.symbols, sym)
	if body == nil {
		return
	}

	bodySpan := span(body)
	for i := uint(0); i < body.ChildCount(); i++ {
		field := body.Child(i)
		if field == nil || field.Kind() != "field_declaration" {
			if field != nil && field.Kind() == "ERROR" {
				w.errors++
			}
			continue
		}
		typeNode := field.ChildByFieldName("type")
		typeText := w.text(typeNode)
		for j := uint(0); j < field.ChildCount(); j++ {
			d := field.Child(j)
			if d == nil || !isDeclarator(d.Kind()) || (typeNode != nil && d.StartByte() == typeNode.StartByte()) {
				continue
			}
			fn := declaratorName(d)
			if fn == nil {
				continue
			}
			fname := w.text(fn)
			typ := typeText
			if arr := arrayDeclarator(d); arr != nil {
				typ += strings.TrimPrefix(w.text(arr), fname)
			}
			w.symbols = append(w.symbols, types.Symbol{
				Name:      fname,
				Kind:      types.SymbolKindField,
				NameSpan:  span(fn),
				DeclSpan:  span(field),
				Type:      typ,
				Signature: collapseSpace(typ + " " + fname),
				Scope:     types.ScopeMember,
				ScopeSpan: bodySpan,
				Container: name,
			})
		}
	}
}

func (w *tsWalker) scoped(sym *types.Symbol, ctx walkContext) {
	if ctx.inBlock {
		sym.Scope = types.ScopeLocal
		sym.ScopeSpan = ctx.scope
		sym.Container = ctx.function
	}
}

func isDeclarator(kind string) bool {
	switch kind {
	case "identifier", "field_identifier", "init_declarator", "array_declarator",
		"pointer_declarator", "reference_declarator", "function_declarator",
		"parenthesized_declarator":
		return true
	}
	return false
}

// unwrapDeclarator strips pointer, reference and parenthesis wrappers
func unwrapDeclarator(n *tree_sitter.Node) *tree_sitter.Node {
	for n != nil {
		switch n.Kind() {
		case "pointer_declarator", "reference_declarator", "parenthesized_declarator":
			next := n.ChildByFieldName("declarator")
			if next == nil && n.NamedChildCount() > 0 {
				next = n.NamedChild(n.NamedChildCount() - 1)
			}
			n = next
		default:
			return n
		}
	}
	return nil
}

// declaratorName digs the declared identifier out of a declarator
func declaratorName(n *tree_sitter.Node) *tree_sitter.Node {
	for depth := 0; n != nil && depth < 16; depth++ {
		switch n.Kind() {
		case "identifier", "field_identifier", "type_identifier":
			return n
		case "init_declarator", "array_declarator", "function_declarator", "pointer_declarator",
			"reference_declarator", "parenthesized_declarator":
			next := n.ChildByFieldName("declarator")
			if next == nil && n.NamedChildCount() > 0 {
				next = n.NamedChild(0)
			}
			n = next
		default:
			return nil
		}
	}
	return nil
}

func arrayDeclarator(n *tree_sitter.Node) *tree_sitter.Node {
	if n != nil && n.Kind() == "init_declarator" {
		n = n.ChildByFieldName("declarator")
	}
	if n != nil && n.Kind() == "array_declarator" {
		return n
	}
	return nil
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
