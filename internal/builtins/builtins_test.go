package builtins

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/shadersense/internal/types"
)

func TestEveryLanguageLoads(t *testing.T) {
	for _, lang := range []types.LanguageKind{types.LanguageGLSL, types.LanguageHLSL, types.LanguageWGSL} {
		table, err := For(lang)
		require.NoError(t, err, lang.String())
		assert.NotEmpty(t, table.All(), lang.String())

		kinds := map[types.SymbolKind]int{}
		for _, s := range table.All() {
			assert.True(t, s.Builtin, s.Name)
			assert.NotEmpty(t, s.Name)
			kinds[s.Kind]++
		}
		assert.Positive(t, kinds[types.SymbolKindFunction], lang.String())
		assert.Positive(t, kinds[types.SymbolKindType], lang.String())
		assert.Positive(t, kinds[types.SymbolKindKeyword], lang.String())
	}
}

func TestSignaturesFollowLanguageSyntax(t *testing.T) {
	glsl, err := For(types.LanguageGLSL)
	require.NoError(t, err)
	dot := glsl.Lookup("dot")
	require.Len(t, dot, 1)
	assert.Equal(t, "float dot(genType x, genType y)", dot[0].Signature)
	assert.Equal(t, []types.Parameter{{Type: "genType", Name: "x"}, {Type: "genType", Name: "y"}}, dot[0].Params)
	assert.Equal(t, "vec4 gl_Position", glsl.Lookup("gl_Position")[0].Signature)

	hlsl, err := For(types.LanguageHLSL)
	require.NoError(t, err)
	assert.Equal(t, "T lerp(T x, T y, T s)", hlsl.Lookup("lerp")[0].Signature)
	assert.Empty(t, hlsl.Lookup("mix"))

	wgsl, err := For(types.LanguageWGSL)
	require.NoError(t, err)
	assert.Equal(t, "fn dot(e1: vecN<T>, e2: vecN<T>) -> T", wgsl.Lookup("dot")[0].Signature)
	assert.Equal(t, "fn workgroupBarrier()", wgsl.Lookup("workgroupBarrier")[0].Signature)
	assert.Equal(t, types.SymbolKindKeyword, wgsl.Lookup("override")[0].Kind)
}

func TestUnknownLanguageIsEmpty(t *testing.T) {
	table, err := For(types.LanguageUnknown)
	require.NoError(t, err)
	assert.Empty(t, table.All())
	assert.Empty(t, table.Lookup("dot"))
}
