package preprocess

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/shadersense/internal/types"
)

func newTestExpander(t *testing.T, defines ...string) *expander {
	t.Helper()
	table := NewMacroTable(nil)
	for _, d := range defines {
		m, ok := ParseDefine(d, 0, len(d), types.InvalidFileID)
		require.True(t, ok, d)
		table.Define(m)
	}
	return &expander{macros: table}
}

func TestExpandText(t *testing.T) {
	tests := []struct {
		name    string
		defines []string
		in      string
		want    string
	}{
		{"object", []string{"N 4"}, "float v[N];", "float v[4];"},
		{"nested", []string{"A B", "B 7"}, "A", "7"},
		{"self reference stops", []string{"X X + 1"}, "X", "X + 1"},
		{"mutual recursion stops", []string{"P Q", "Q P"}, "P", "P"},
		{"function", []string{"MAX(a, b) ((a) > (b) ? (a) : (b))"}, "MAX(x, 2)", "((x) > (2) ? (x) : (2))"},
		{"nested parens in args", []string{"F(a) [a]"}, "F((1, 2))", "[(1, 2)]"},
		{"name without call", []string{"F(a) a"}, "float F;", "float F;"},
		{"stringize", []string{"STR(x) #x"}, "STR(hello world)", `"hello world"`},
		{"paste", []string{"CAT(a, b) a ## b"}, "CAT(tex, 0)", "tex0"},
		{"paste does not expand operands", []string{"CAT(a, b) a##b", "tex 9"}, "CAT(tex, 1)", "tex1"},
		{"variadic", []string{"CALL(f, ...) f(__VA_ARGS__)"}, "CALL(g, 1, 2)", "g(1, 2)"},
		{"strings untouched", []string{"N 4"}, `"N"`, `"N"`},
		{"comments untouched", []string{"N 4"}, "// N", "// N"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x := newTestExpander(t, tt.defines...)
			assert.Equal(t, tt.want, x.expandText(tt.in, nil, 0))
		})
	}
}

func TestExpandText_Line(t *testing.T) {
	x := newTestExpander(t)
	x.line = 41
	assert.Equal(t, "int l = 42;", x.expandText("int l = __LINE__;", nil, 0))
}

func TestEvalCondition(t *testing.T) {
	x := newTestExpander(t, "LEVEL 3", "EMPTY", "ADD(a, b) ((a) + (b))")
	tests := []struct {
		expr string
		want bool
	}{
		{"1", true},
		{"0", false},
		{"LEVEL", true},
		{"LEVEL == 3", true},
		{"LEVEL > 3", false},
		{"defined(LEVEL)", true},
		{"defined EMPTY", true},
		{"!defined(MISSING)", true},
		{"UNKNOWN_IDENT", false},
		{"ADD(1, 2) == 3", true},
		{"0x10 == 16 && 010 == 8", true},
		{"(1 + 2) * 3 == 9", true},
		{"1 ? 0 : 1", false},
		{"-1 < 0", true},
		{"~0 == -1", true},
		{"1 << 4 == 16", true},
		{"3 % 2 || 0", true},
		{"100u > 99L", true},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := x.evalCondition(tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvalCondition_Errors(t *testing.T) {
	x := newTestExpander(t)
	for _, expr := range []string{"", "1 +", "(1", "1 / 0", "defined", "\"s\""} {
		_, err := x.evalCondition(expr)
		assert.Error(t, err, expr)
	}
}

func TestMacroTable_Order(t *testing.T) {
	table := NewMacroTable(map[string]string{"B": "2", "A": "1"})
	m, ok := ParseDefine("C 3", 0, 3, types.FileID(1))
	require.True(t, ok)
	table.Define(m)
	table.Undef("A")

	var names []string
	for _, m := range table.Macros() {
		names = append(names, m.Name)
	}
	assert.Equal(t, []string{"B", "C"}, names)
	assert.False(t, table.Defined("A"))
}
