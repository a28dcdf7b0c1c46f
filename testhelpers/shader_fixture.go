package testhelpers

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

// ShaderFixture builds an in-memory workspace of shader files
type ShaderFixture struct {
	Root  string
	Fs    afero.Fs
	files map[string]string
}

// NewShaderFixture creates an empty fixture rooted at root
func NewShaderFixture(root string) *ShaderFixture {
	return &ShaderFixture{
		Root:  filepath.Clean(root),
		Fs:    afero.NewMemMapFs(),
		files: make(map[string]string),
	}
}

// AddFile writes a file relative to the root
func (f *ShaderFixture) AddFile(t testing.TB, rel, content string) *ShaderFixture {
	t.Helper()
	p := f.Path(rel)
	require.NoError(t, f.Fs.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, afero.WriteFile(f.Fs, p, []byte(content), 0o644))
	f.files[rel] = content
	return f
}

// Path returns the absolute path of rel
func (f *ShaderFixture) Path(rel string) string {
	return filepath.Join(f.Root, filepath.FromSlash(rel))
}

// Content returns what was written to rel
func (f *ShaderFixture) Content(rel string) string {
	return f.files[rel]
}

// Offset returns the byte offset of the first occurrence of needle in rel,
// failing the test when it is absent
func (f *ShaderFixture) Offset(t testing.TB, rel, needle string) int {
	t.Helper()
	i := strings.Index(f.files[rel], needle)
	require.GreaterOrEqual(t, i, 0, "%q not found in %s", needle, rel)
	return i
}

// IncludeLevelRoot is the root of the include-level fixture
const IncludeLevelRoot = "include-level.comp.glsl"

// IncludeLevelFixture is a compute shader including inc0/level0.glsl, which
// includes inc0/inc1/level1.glsl. Each level declares a constant and a
// fibonacci function; the root calls all of them inside compute().
func IncludeLevelFixture(t testing.TB, root string) *ShaderFixture {
	t.Helper()
	return NewShaderFixture(root).
		AddFile(t, IncludeLevelRoot, `#version 450
#include "inc0/level0.glsl"

layout(local_size_x = 1) in;

struct Result {
    int value;
    int depth;
};

int compute() {
    Result r;
    r.value = fibonacciLevel0(level0) + fibonacciLevel1(level1);
    return r.value;
}

void main() {
    compute();
}
`).
		AddFile(t, "inc0/level0.glsl", `#include "inc1/level1.glsl"

const int level0 = 2;

int fibonacciLevel0(int n) {
    return n <= 1 ? n : fibonacciLevel1(n - 1) + fibonacciLevel1(n - 2);
}
`).
		AddFile(t, "inc0/inc1/level1.glsl", `const int level1 = 3;

int fibonacciLevel1(int n) {
    int a = 0;
    int b = 1;
    for (int i = 0; i < n; i++) {
        int t = a + b;
        a = b;
        b = t;
    }
    return a;
}
`)
}

// OnDisk copies the fixture to the OS file system under Root, for code
// that reads real files. Root should come from t.TempDir().
func (f *ShaderFixture) OnDisk(t testing.TB) *ShaderFixture {
	t.Helper()
	disk := afero.NewOsFs()
	for rel, content := range f.files {
		p := f.Path(rel)
		require.NoError(t, disk.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, afero.WriteFile(disk, p, []byte(content), 0o644))
	}
	return f
}
