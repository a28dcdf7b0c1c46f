package pathutil

import (
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToRelative(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix paths")
	}
	tests := []struct {
		name     string
		absPath  string
		rootDir  string
		expected string
	}{
		{
			name:     "header under root",
			absPath:  "/home/user/project/shaders/lighting.hlsli",
			rootDir:  "/home/user/project",
			expected: "shaders/lighting.hlsli",
		},
		{
			name:     "nested include",
			absPath:  "/home/user/project/inc0/inc1/level1.glsl",
			rootDir:  "/home/user/project/",
			expected: "inc0/inc1/level1.glsl",
		},
		{
			name:     "root itself",
			absPath:  "/home/user/project",
			rootDir:  "/home/user/project",
			expected: ".",
		},
		{
			name:     "already relative",
			absPath:  "shaders/main.frag",
			rootDir:  "/home/user/project",
			expected: "shaders/main.frag",
		},
		{
			name:     "system include dir outside root",
			absPath:  "/opt/sdk/include/common.hlsl",
			rootDir:  "/home/user/project",
			expected: "/opt/sdk/include/common.hlsl",
		},
		{
			name:     "sibling with root as prefix",
			absPath:  "/home/user/project-shared/a.glsl",
			rootDir:  "/home/user/project",
			expected: "/home/user/project-shared/a.glsl",
		},
		{
			name:     "file named with dots stays inside",
			absPath:  "/home/user/project/..hidden.glsl",
			rootDir:  "/home/user/project",
			expected: "..hidden.glsl",
		},
		{
			name:     "empty root",
			absPath:  "/home/user/project/a.glsl",
			rootDir:  "",
			expected: "/home/user/project/a.glsl",
		},
		{
			name:     "empty path",
			absPath:  "",
			rootDir:  "/home/user/project",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ToRelative(tt.absPath, tt.rootDir))
		})
	}
}

func TestToAbsolute(t *testing.T) {
	root := filepath.FromSlash("/w")
	assert.Equal(t, filepath.Join(root, "shaders", "main.frag"), ToAbsolute("shaders/main.frag", root))
	assert.Equal(t, filepath.Clean(filepath.FromSlash("/x/y.glsl")), ToAbsolute(filepath.FromSlash("/x/../x/y.glsl"), root))
	assert.Equal(t, "", ToAbsolute("", root))
}

func TestRoundTrip(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix paths")
	}
	root := "/w"
	for _, rel := range []string{"a.glsl", "inc0/level0.glsl", "inc0/inc1/level1.glsl"} {
		assert.Equal(t, rel, ToRelative(ToAbsolute(rel, root), root))
	}
}
