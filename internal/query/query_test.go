package query

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	sserrors "github.com/standardbeagle/shadersense/internal/errors"
	"github.com/standardbeagle/shadersense/internal/types"
	"github.com/standardbeagle/shadersense/internal/workspace"
	"github.com/standardbeagle/shadersense/testhelpers"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newFacade(t *testing.T, fx *testhelpers.ShaderFixture, open ...string) *Facade {
	t.Helper()
	ws := workspace.New(testhelpers.NewTestConfigBuilder(fx.Root).Build(), workspace.Options{Fs: fx.Fs})
	t.Cleanup(func() { _ = ws.Close() })
	q := New(ws)
	for _, rel := range open {
		require.NoError(t, q.DidOpen(context.Background(), fx.Path(rel), []byte(fx.Content(rel)), types.LanguageUnknown, 1))
	}
	return q
}

// at returns the position of needle in rel, moved by delta bytes
func at(t *testing.T, fx *testhelpers.ShaderFixture, rel, needle string, delta int) types.Position {
	t.Helper()
	off := fx.Offset(t, rel, needle) + delta
	return types.NewLineIndex([]byte(fx.Content(rel))).Position(off)
}

func labels(items []CompletionItem) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.Label)
	}
	return out
}

func TestDefinitionAcrossTwoIncludes(t *testing.T) {
	fx := testhelpers.IncludeLevelFixture(t, "/w")
	q := newFacade(t, fx, testhelpers.IncludeLevelRoot)

	locs, err := q.Definition(context.Background(), fx.Path(testhelpers.IncludeLevelRoot),
		at(t, fx, testhelpers.IncludeLevelRoot, "fibonacciLevel1(level1)", 3))
	require.NoError(t, err)
	require.Len(t, locs, 1)
	assert.Equal(t, fx.Path("inc0/inc1/level1.glsl"), locs[0].Path)
	assert.Equal(t, types.Position{Line: 2, Character: 4}, locs[0].Range.Start)
	assert.Equal(t, types.Position{Line: 2, Character: 19}, locs[0].Range.End)
}

func TestDefinitionOnIncludePath(t *testing.T) {
	fx := testhelpers.IncludeLevelFixture(t, "/w")
	q := newFacade(t, fx, testhelpers.IncludeLevelRoot)

	locs, err := q.Definition(context.Background(), fx.Path(testhelpers.IncludeLevelRoot),
		at(t, fx, testhelpers.IncludeLevelRoot, "inc0/level0.glsl", 5))
	require.NoError(t, err)
	require.Len(t, locs, 1)
	assert.Equal(t, fx.Path("inc0/level0.glsl"), locs[0].Path)
	assert.Equal(t, types.Range{}, locs[0].Range)
}

func TestDefinitionOfLocalPrefersScope(t *testing.T) {
	fx := testhelpers.IncludeLevelFixture(t, "/w")
	q := newFacade(t, fx, testhelpers.IncludeLevelRoot)

	locs, err := q.Definition(context.Background(), fx.Path(testhelpers.IncludeLevelRoot),
		at(t, fx, testhelpers.IncludeLevelRoot, "r.value;", 0))
	require.NoError(t, err)
	require.Len(t, locs, 1)
	assert.Equal(t, fx.Path(testhelpers.IncludeLevelRoot), locs[0].Path)
	assert.Equal(t, at(t, fx, testhelpers.IncludeLevelRoot, "r;", 0), locs[0].Range.Start)
}

func TestDefinitionInHeaderFallsBackToIncluder(t *testing.T) {
	fx := testhelpers.NewShaderFixture("/w").
		AddFile(t, "main.frag", "const int lights = 4;\n#include \"common.glsl\"\nvoid main() { count(); }\n").
		AddFile(t, "common.glsl", "int count() { return lights; }\n")
	q := newFacade(t, fx, "main.frag")

	locs, err := q.Definition(context.Background(), fx.Path("common.glsl"), at(t, fx, "common.glsl", "lights", 1))
	require.NoError(t, err)
	require.Len(t, locs, 1)
	assert.Equal(t, fx.Path("main.frag"), locs[0].Path)
}

func TestCompletionInsideCompute(t *testing.T) {
	fx := testhelpers.IncludeLevelFixture(t, "/w")
	q := newFacade(t, fx, testhelpers.IncludeLevelRoot)

	items, err := q.Completion(context.Background(), fx.Path(testhelpers.IncludeLevelRoot),
		at(t, fx, testhelpers.IncludeLevelRoot, "return r.value;", 0))
	require.NoError(t, err)
	got := labels(items)
	for _, want := range []string{"fibonacciLevel1", "fibonacciLevel0", "level0", "level1", "compute", "Result", "r"} {
		assert.Contains(t, got, want)
	}
	// Locals of fibonacciLevel1 belong to another file's scope
	assert.NotContains(t, got, "n")
	assert.Equal(t, "r", got[0], "innermost local ranks first")
}

func TestCompletionPrefixAndFuzzy(t *testing.T) {
	fx := testhelpers.IncludeLevelFixture(t, "/w")
	q := newFacade(t, fx, testhelpers.IncludeLevelRoot)
	ctx := context.Background()
	root := fx.Path(testhelpers.IncludeLevelRoot)

	edited := fx.Content(testhelpers.IncludeLevelRoot) + "int extra() { return fib; }\nint typo() { return fibonaciLevel; }\n"
	require.NoError(t, q.DidChange(ctx, root, []byte(edited), 2))
	lines := types.NewLineIndex([]byte(edited))

	items, err := q.Completion(ctx, root, lines.Position(strings.Index(edited, "fib; }")+3))
	require.NoError(t, err)
	got := labels(items)
	require.GreaterOrEqual(t, len(got), 2)
	assert.ElementsMatch(t, []string{"fibonacciLevel0", "fibonacciLevel1"}, got[:2])
	assert.NotContains(t, got, "main")

	items, err = q.Completion(ctx, root, lines.Position(strings.Index(edited, "fibonaciLevel; }")+len("fibonaciLevel")))
	require.NoError(t, err)
	got = labels(items)
	assert.Contains(t, got, "fibonacciLevel0")
	assert.Contains(t, got, "fibonacciLevel1")
	assert.NotContains(t, got, "compute")
}

func TestMemberCompletion(t *testing.T) {
	fx := testhelpers.IncludeLevelFixture(t, "/w")
	q := newFacade(t, fx, testhelpers.IncludeLevelRoot)

	items, err := q.Completion(context.Background(), fx.Path(testhelpers.IncludeLevelRoot),
		at(t, fx, testhelpers.IncludeLevelRoot, "r.value =", 2))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"value", "depth"}, labels(items))
}

func TestMemberChainCompletion(t *testing.T) {
	fx := testhelpers.NewShaderFixture("/w").
		AddFile(t, "a.frag", `struct Light { vec3 color; float range; };
struct Scene { Light lights[4]; int count; };
void main() {
    Scene scene;
    float r = scene.lights[0].range;
}
`)
	q := newFacade(t, fx, "a.frag")

	items, err := q.Completion(context.Background(), fx.Path("a.frag"), at(t, fx, "a.frag", "range;", 0))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"color", "range"}, labels(items))

	hover, err := q.Hover(context.Background(), fx.Path("a.frag"), at(t, fx, "a.frag", "range;", 2))
	require.NoError(t, err)
	require.NotNil(t, hover)
	assert.Equal(t, "Light", hover.Symbol.Container)
}

func TestHover(t *testing.T) {
	fx := testhelpers.IncludeLevelFixture(t, "/w")
	q := newFacade(t, fx, testhelpers.IncludeLevelRoot)
	root := fx.Path(testhelpers.IncludeLevelRoot)

	hover, err := q.Hover(context.Background(), root, at(t, fx, testhelpers.IncludeLevelRoot, "fibonacciLevel0(level0)", 0))
	require.NoError(t, err)
	require.NotNil(t, hover)
	assert.Contains(t, hover.Contents, "```glsl\nint fibonacciLevel0(int n)\n```")
	assert.Contains(t, hover.Contents, "inc0/level0.glsl:5")
	assert.Equal(t, at(t, fx, testhelpers.IncludeLevelRoot, "fibonacciLevel0(level0)", 0), hover.Range.Start)

	hover, err = q.Hover(context.Background(), root, at(t, fx, testhelpers.IncludeLevelRoot, "value = ", 1))
	require.NoError(t, err)
	require.NotNil(t, hover)
	assert.Equal(t, "Result", hover.Symbol.Container)
	assert.Equal(t, types.SymbolKindField, hover.Symbol.Kind)

	hover, err = q.Hover(context.Background(), root, at(t, fx, testhelpers.IncludeLevelRoot, "#version", 0))
	require.NoError(t, err)
	assert.Nil(t, hover)
}

func TestSignatureHelp(t *testing.T) {
	fx := testhelpers.NewShaderFixture("/w").
		AddFile(t, "a.frag", `#define MIX3(a, b, c) ((a) + (b) + (c))
float blend(float x, float y) { return x; }
void main() {
    float v = blend(1.0, 2.0);
    float w = MIX3(1.0, 2.0, 3.0);
}
`)
	q := newFacade(t, fx, "a.frag")
	ctx := context.Background()
	path := fx.Path("a.frag")

	help, err := q.SignatureHelp(ctx, path, at(t, fx, "a.frag", "2.0);", 0))
	require.NoError(t, err)
	require.NotNil(t, help)
	require.Len(t, help.Signatures, 1)
	assert.Equal(t, "float blend(float x, float y)", help.Signatures[0].Label)
	assert.Equal(t, 1, help.ActiveParameter)

	help, err = q.SignatureHelp(ctx, path, at(t, fx, "a.frag", "3.0);", 0))
	require.NoError(t, err)
	require.NotNil(t, help)
	assert.Equal(t, "#define MIX3(a, b, c) ((a) + (b) + (c))", help.Signatures[0].Label)
	assert.Equal(t, 2, help.ActiveParameter)

	help, err = q.SignatureHelp(ctx, path, at(t, fx, "a.frag", "float v", 0))
	require.NoError(t, err)
	assert.Nil(t, help)
}

func TestIntrinsics(t *testing.T) {
	fx := testhelpers.NewShaderFixture("/w").
		AddFile(t, "a.frag", `vec3 normalMap() { return vec3(0.0); }
float smoothstep(float x) { return x; }
void main() {
    vec3 n = norm(vec3(1.0));
    float d = dot(n, n);
    float s = smoothstep(d);
}
`).
		AddFile(t, "b.hlsl", "float4 main() : SV_Target { return ler; }\n")
	q := newFacade(t, fx, "a.frag", "b.hlsl")
	ctx := context.Background()
	path := fx.Path("a.frag")

	items, err := q.Completion(ctx, path, at(t, fx, "a.frag", "norm(vec3", 4))
	require.NoError(t, err)
	got := labels(items)
	require.Contains(t, got, "normalMap")
	require.Contains(t, got, "normalize")
	assert.Less(t, indexOf(got, "normalMap"), indexOf(got, "normalize"), "workspace symbols rank above intrinsics")
	assert.Equal(t, "genType normalize(genType x)", items[indexOf(got, "normalize")].Detail)

	hover, err := q.Hover(ctx, path, at(t, fx, "a.frag", "dot(n", 1))
	require.NoError(t, err)
	require.NotNil(t, hover)
	assert.True(t, hover.Symbol.Builtin)
	assert.Contains(t, hover.Contents, "```glsl\nfloat dot(genType x, genType y)\n```")
	assert.Contains(t, hover.Contents, "built-in function")
	assert.Contains(t, hover.Contents, "Dot product")

	locs, err := q.Definition(ctx, path, at(t, fx, "a.frag", "dot(n", 1))
	require.NoError(t, err)
	assert.Empty(t, locs)

	help, err := q.SignatureHelp(ctx, path, at(t, fx, "a.frag", "n);", 0))
	require.NoError(t, err)
	require.NotNil(t, help)
	assert.Equal(t, "float dot(genType x, genType y)", help.Signatures[0].Label)
	assert.Equal(t, 1, help.ActiveParameter)

	// A workspace declaration shadows the intrinsic of the same name
	hover, err = q.Hover(ctx, path, at(t, fx, "a.frag", "smoothstep(d)", 0))
	require.NoError(t, err)
	require.NotNil(t, hover)
	assert.False(t, hover.Symbol.Builtin)
	assert.Equal(t, "float smoothstep(float x)", hover.Symbol.Signature)

	items, err = q.Completion(ctx, fx.Path("b.hlsl"), at(t, fx, "b.hlsl", "ler;", 3))
	require.NoError(t, err)
	got = labels(items)
	assert.Contains(t, got, "lerp")
	assert.NotContains(t, got, "mix")
}

func indexOf(list []string, s string) int {
	for i, v := range list {
		if v == s {
			return i
		}
	}
	return -1
}

func TestDiagnosticsSeverityFilter(t *testing.T) {
	diags := []types.Diagnostic{
		{Severity: types.SeverityError, Message: "e"},
		{Severity: types.SeverityWarning, Message: "w"},
		{Severity: types.SeverityHint, Message: "h"},
	}
	assert.Len(t, FilterSeverity(diags, types.SeverityHint), 3)
	assert.Len(t, FilterSeverity(diags, types.SeverityWarning), 2)
	only := FilterSeverity(diags, types.SeverityError)
	require.Len(t, only, 1)
	assert.Equal(t, "e", only[0].Message)
}

func TestDiagnosticsOfMissingInclude(t *testing.T) {
	fx := testhelpers.NewShaderFixture("/w").
		AddFile(t, "a.frag", "#include \"missing.glsl\"\nvoid main() {}\n")
	q := newFacade(t, fx, "a.frag")

	diags, err := q.Diagnostics(context.Background(), fx.Path("a.frag"))
	require.NoError(t, err)
	require.Len(t, diags, 1)
	assert.Equal(t, types.CodeUnresolvedInclude, diags[0].Code)
	assert.Contains(t, diags[0].Message, "missing.glsl")
}

func TestUnknownFile(t *testing.T) {
	fx := testhelpers.NewShaderFixture("/w")
	q := newFacade(t, fx)
	_, err := q.Hover(context.Background(), "/w/none.frag", types.Position{})
	assert.ErrorIs(t, err, sserrors.ErrUnknownFile)
	_, err = q.Completion(context.Background(), "/w/none.frag", types.Position{})
	assert.ErrorIs(t, err, sserrors.ErrUnknownFile)
}

func TestCursorHelpers(t *testing.T) {
	content := []byte("a.b[i + 1].c")
	chain, ok := receiverChain(content, len(content)-1)
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, chain)

	name, commas, ok := callAt([]byte("f(g(1, 2), x, "), 14)
	require.True(t, ok)
	assert.Equal(t, "f", name)
	assert.Equal(t, 2, commas)

	assert.Equal(t, "Light", baseType("in Light"))
	assert.Equal(t, "Light", baseType("Light[4]"))
	assert.Equal(t, "Light", baseType("StructuredBuffer<Light>"))
	assert.Equal(t, "Light", baseType("array<Light, 4>"))
}
