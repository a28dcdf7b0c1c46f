package include

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/shadersense/internal/registry"
	"github.com/standardbeagle/shadersense/internal/types"
)

func setup(t *testing.T, files map[string]string) (*registry.Registry, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	for path, content := range files {
		require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0644))
	}
	return registry.New(fs), fs
}

func TestResolve_RelativeFirstThenIncludeDirs(t *testing.T) {
	reg, _ := setup(t, map[string]string{
		"/w/shaders/common.glsl": "",
		"/w/lib/common.glsl":     "",
		"/w/lib/noise.glsl":      "",
	})
	root, _ := reg.Open("/w/shaders/main.frag", []byte(
		"#include \"common.glsl\"\n#include <noise.glsl>\n"), types.LanguageGLSL, 1)

	r := NewResolver(reg, []string{"/w/lib"})
	edges := r.Resolve(root)
	require.Len(t, edges, 2)

	common, ok := reg.Lookup("/w/shaders/common.glsl")
	require.True(t, ok)
	assert.Equal(t, common.ID, edges[0].Target)
	assert.Equal(t, registry.StateVirtual, common.State)

	noise, ok := reg.Lookup("/w/lib/noise.glsl")
	require.True(t, ok)
	assert.Equal(t, noise.ID, edges[1].Target)
	assert.True(t, edges[1].System)
	assert.Equal(t, 23, edges[1].Offset())
}

func TestResolve_IncludeDirPriority(t *testing.T) {
	reg, _ := setup(t, map[string]string{
		"/w/a/util.hlsl": "",
		"/w/b/util.hlsl": "",
	})
	root, _ := reg.Open("/w/src/main.hlsl", []byte("#include \"util.hlsl\"\n"), types.LanguageHLSL, 1)

	edges := NewResolver(reg, []string{"/w/b", "/w/a"}).Resolve(root)
	require.Len(t, edges, 1)
	assert.Equal(t, "/w/b/util.hlsl", reg.Path(edges[0].Target))
}

func TestResolve_UnresolvedDoesNotStopSiblings(t *testing.T) {
	reg, _ := setup(t, map[string]string{"/w/present.glsl": ""})
	root, _ := reg.Open("/w/root.glsl", []byte(
		"#include \"missing.glsl\"\n#include \"present.glsl\"\n"), types.LanguageGLSL, 1)

	edges := NewResolver(reg, []string{"/w/inc"}).Resolve(root)
	require.Len(t, edges, 2)

	assert.False(t, edges[0].Resolved())
	require.NotNil(t, edges[0].Unresolved)
	assert.Equal(t, "missing.glsl", edges[0].Unresolved.Directive)
	assert.Equal(t, []string{"/w/missing.glsl", "/w/inc/missing.glsl"}, edges[0].Unresolved.Searched)
	_, registered := reg.Lookup("/w/missing.glsl")
	assert.False(t, registered)

	assert.True(t, edges[1].Resolved())
}

func TestResolve_OpenUnsavedBufferCounts(t *testing.T) {
	reg, _ := setup(t, nil)
	reg.Open("/w/new.glsl", []byte("float f;"), types.LanguageGLSL, 1)
	root, _ := reg.Open("/w/root.glsl", []byte("#include \"new.glsl\"\n"), types.LanguageGLSL, 1)

	edges := NewResolver(reg, nil).Resolve(root)
	require.Len(t, edges, 1)
	assert.True(t, edges[0].Resolved())
}

func TestResolve_MalformedDirective(t *testing.T) {
	reg, _ := setup(t, nil)
	root, _ := reg.Open("/w/root.glsl", []byte("#include\n#include common.glsl\n"), types.LanguageGLSL, 1)

	edges := NewResolver(reg, nil).Resolve(root)
	require.Len(t, edges, 2)
	for _, e := range edges {
		assert.False(t, e.Resolved())
		assert.NotNil(t, e.Unresolved)
	}
	assert.Equal(t, "common.glsl", edges[1].Directive)
}

func edge(from, to types.FileID) Edge {
	return Edge{From: from, Target: to, Directive: "x"}
}

func TestGraph_ClosureOrderAndDistance(t *testing.T) {
	g := NewGraph()
	// 1 -> 2 -> 3, 1 -> 4 -> 3 (diamond), 3 -> 1 (cycle)
	g.SetEdges(1, []Edge{edge(1, 2), edge(1, 4)})
	g.SetEdges(2, []Edge{edge(2, 3)})
	g.SetEdges(4, []Edge{edge(4, 3)})
	g.SetEdges(3, []Edge{edge(3, 1)})

	closure := g.Closure(1)
	require.Len(t, closure, 4)
	assert.Equal(t, []Reach{
		{File: 1, Distance: 0, Order: 0},
		{File: 2, Distance: 1, Order: 1},
		{File: 3, Distance: 2, Order: 2},
		{File: 4, Distance: 1, Order: 3},
	}, closure)
}

func TestGraph_AncestorsAndIncludedBy(t *testing.T) {
	g := NewGraph()
	g.SetEdges(1, []Edge{edge(1, 2)})
	g.SetEdges(2, []Edge{edge(2, 3)})
	g.SetEdges(5, []Edge{edge(5, 6)})

	assert.Equal(t, []types.FileID{2, 1}, g.Ancestors(3))
	assert.Empty(t, g.Ancestors(1))
	assert.Equal(t, []types.FileID{2}, g.IncludedBy(3))
	assert.NotEmpty(t, g.IncludedBy(6))
	assert.Equal(t, []types.FileID{1, 5}, g.Roots([]types.FileID{1, 2, 3, 5, 6}))

	// A cycle makes the file its own ancestor without looping forever
	g.SetEdges(3, []Edge{edge(3, 1)})
	assert.ElementsMatch(t, []types.FileID{2, 1, 3}, g.Ancestors(3))
}

func TestGraph_SetEdgesUpdatesReverseIndex(t *testing.T) {
	g := NewGraph()
	assert.True(t, g.SetEdges(1, []Edge{edge(1, 2), edge(1, 2)}))
	assert.False(t, g.SetEdges(1, []Edge{edge(1, 2), edge(1, 2)}))
	assert.Equal(t, []types.FileID{1}, g.IncludedBy(2))

	assert.True(t, g.SetEdges(1, []Edge{edge(1, 3)}))
	assert.Empty(t, g.IncludedBy(2))
	assert.NotEmpty(t, g.IncludedBy(3))

	unresolved := Edge{From: 1, Directive: "missing.glsl"}
	assert.True(t, g.SetEdges(1, []Edge{unresolved}))
	assert.Empty(t, g.IncludedBy(3))
	assert.Len(t, g.Edges(1), 1)

	g.Remove(1)
	assert.Empty(t, g.Edges(1))
	assert.Empty(t, g.Files())
}
