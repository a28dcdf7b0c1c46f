package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/shadersense/internal/include"
	"github.com/standardbeagle/shadersense/internal/symbols"
	"github.com/standardbeagle/shadersense/internal/types"
)

const (
	root types.FileID = iota + 1
	fileA
	fileB
	fileC
)

func link(g *include.Graph, from types.FileID, targets ...types.FileID) {
	var edges []include.Edge
	for i, t := range targets {
		edges = append(edges, include.Edge{From: from, Target: t, Span: types.Span{Start: i * 20, End: i*20 + 19}})
	}
	g.SetEdges(from, edges)
}

func global(file types.FileID, name string, kind types.SymbolKind, order int) types.Symbol {
	return types.Symbol{Name: name, Kind: kind, File: file, Order: order, NameSpan: types.Span{Start: order * 10, End: order*10 + len(name)}}
}

func table(file types.FileID, syms ...types.Symbol) *symbols.FileSymbols {
	return &symbols.FileSymbols{File: file, Version: uint64(file) * 10, Symbols: syms}
}

func TestResolve_LastIncludedWins(t *testing.T) {
	g := include.NewGraph()
	link(g, root, fileA, fileB)
	ix := New(g)
	ix.Put(table(fileA, global(fileA, "x", types.SymbolKindVariable, 0)))
	ix.Put(table(fileB, global(fileB, "x", types.SymbolKindVariable, 0)))
	ix.Put(table(root))

	best, ok := ix.Closure(root).Best("x", 1000)
	require.True(t, ok)
	assert.Equal(t, fileB, best.Symbol.File)
	assert.Len(t, ix.Resolve(root, "x", 1000), 2)
}

func TestResolve_CloserIncludeWins(t *testing.T) {
	g := include.NewGraph()
	link(g, root, fileA, fileB)
	link(g, fileA, fileC)
	ix := New(g)
	ix.Put(table(fileB, global(fileB, "x", types.SymbolKindVariable, 0)))
	ix.Put(table(fileC, global(fileC, "x", types.SymbolKindVariable, 0)))

	cands := ix.Resolve(root, "x", 0)
	require.Len(t, cands, 2)
	assert.Equal(t, fileB, cands[0].Symbol.File)
	assert.Equal(t, 1, cands[0].Distance)
	assert.Equal(t, 2, cands[1].Distance)
}

func TestResolve_FirstDeclarationInFileWins(t *testing.T) {
	g := include.NewGraph()
	ix := New(g)
	ix.Put(table(root,
		global(root, "f", types.SymbolKindFunction, 0),
		global(root, "f", types.SymbolKindFunction, 1)))

	best, ok := ix.Closure(root).Best("f", 0)
	require.True(t, ok)
	assert.Equal(t, 0, best.Symbol.Order)
}

func TestResolve_LocalsFirstAndScoped(t *testing.T) {
	g := include.NewGraph()
	link(g, root, fileA)
	ix := New(g)
	ix.Put(table(fileA, global(fileA, "v", types.SymbolKindVariable, 0)))

	outer := types.Span{Start: 100, End: 200}
	inner := types.Span{Start: 120, End: 150}
	localOuter := types.Symbol{Name: "v", Kind: types.SymbolKindVariable, File: root, Scope: types.ScopeLocal, ScopeSpan: outer, Order: 0}
	localInner := types.Symbol{Name: "v", Kind: types.SymbolKindVariable, File: root, Scope: types.ScopeLocal, ScopeSpan: inner, Order: 1}
	ix.Put(table(root, localOuter, localInner))

	c := ix.Closure(root)
	cands := c.Resolve("v", 130)
	require.Len(t, cands, 3)
	assert.True(t, cands[0].Local)
	assert.Equal(t, inner, cands[0].Symbol.ScopeSpan)
	assert.Equal(t, outer, cands[1].Symbol.ScopeSpan)
	assert.Equal(t, fileA, cands[2].Symbol.File)

	// Outside every block only the global is visible
	cands = c.Resolve("v", 10)
	require.Len(t, cands, 1)
	assert.Equal(t, fileA, cands[0].Symbol.File)
}

func TestResolve_IncludedLocalsInvisible(t *testing.T) {
	g := include.NewGraph()
	link(g, root, fileA)
	ix := New(g)
	ix.Put(table(fileA, types.Symbol{Name: "tmp", File: fileA, Scope: types.ScopeLocal, ScopeSpan: types.Span{Start: 0, End: 1000}}))

	assert.Empty(t, ix.Resolve(root, "tmp", 10))
}

func TestVisible_OnePerName(t *testing.T) {
	g := include.NewGraph()
	link(g, root, fileA, fileB)
	ix := New(g)
	ix.Put(table(fileA, global(fileA, "x", types.SymbolKindVariable, 0), global(fileA, "y", types.SymbolKindVariable, 1)))
	ix.Put(table(fileB, global(fileB, "x", types.SymbolKindVariable, 0)))
	ix.Put(table(root, global(root, "main", types.SymbolKindFunction, 0)))

	var names []string
	for _, c := range ix.Visible(root, 0) {
		names = append(names, c.Symbol.Name)
		if c.Symbol.Name == "x" {
			assert.Equal(t, fileB, c.Symbol.File)
		}
	}
	assert.ElementsMatch(t, []string{"main", "x", "y"}, names)
	assert.Equal(t, "main", names[0])
}

func TestMembers(t *testing.T) {
	g := include.NewGraph()
	link(g, root, fileA)
	ix := New(g)
	light := global(fileA, "Light", types.SymbolKindType, 0)
	pos := types.Symbol{Name: "position", Kind: types.SymbolKindField, File: fileA, Scope: types.ScopeMember, Container: "Light", Type: "vec3", Order: 1}
	other := types.Symbol{Name: "color", Kind: types.SymbolKindField, File: fileA, Scope: types.ScopeMember, Container: "Material", Order: 2}
	ix.Put(table(fileA, light, pos, other))

	members := ix.Members(root, "Light")
	require.Len(t, members, 1)
	assert.Equal(t, "position", members[0].Name)

	// Members are also a fallback for plain name lookup
	cands := ix.Resolve(root, "position", 0)
	require.Len(t, cands, 1)
	assert.Equal(t, types.ScopeMember, cands[0].Symbol.Scope)
}

func TestClosure_VersionsAndDrop(t *testing.T) {
	g := include.NewGraph()
	link(g, root, fileA)
	ix := New(g)
	ix.Put(table(root))
	ix.Put(table(fileA, global(fileA, "x", types.SymbolKindVariable, 0)))

	c := ix.Closure(root)
	assert.Equal(t, map[types.FileID]uint64{root: 10, fileA: 20}, c.Versions)
	assert.True(t, c.Contains(fileA))

	ix.Drop(fileA)
	assert.Empty(t, ix.Resolve(root, "x", 0))
	// Earlier closures are snapshots
	assert.Len(t, c.Resolve("x", 0), 1)
}
