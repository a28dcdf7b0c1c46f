package version

import (
	"runtime/debug"
	"strings"
	"sync"
)

// Set with -ldflags "-X github.com/standardbeagle/shadersense/internal/version.Version=..."
var (
	Version   = "0.3.0"
	GitCommit = "unknown"
)

// Component is a parsing or validation backend compiled into the binary
type Component struct {
	Name    string
	Module  string
	Version string
}

// backends whose versions change what symbols and diagnostics look like
var backends = []Component{
	{Name: "glsl/hlsl grammar", Module: "github.com/tree-sitter/tree-sitter-cpp"},
	{Name: "tree-sitter runtime", Module: "github.com/tree-sitter/go-tree-sitter"},
	{Name: "wgsl frontend", Module: "github.com/gogpu/naga"},
}

var (
	components     []Component
	componentsOnce sync.Once
)

// Components reports the module version of every backend. Versions are
// "unknown" when the binary carries no build info for the module.
func Components() []Component {
	componentsOnce.Do(func() {
		deps := map[string]string{}
		if info, ok := debug.ReadBuildInfo(); ok {
			for _, d := range info.Deps {
				if d.Replace != nil {
					d = d.Replace
				}
				deps[d.Path] = d.Version
			}
		}
		for _, c := range backends {
			c.Version = deps[c.Module]
			if c.Version == "" {
				c.Version = "unknown"
			}
			components = append(components, c)
		}
	})
	return components
}

// Info is the one-line version shown by --version
func Info() string {
	var b strings.Builder
	b.WriteString(Version)
	if GitCommit != "unknown" {
		b.WriteString(" (" + GitCommit + ")")
	}
	for _, c := range Components() {
		b.WriteString(", " + c.Name + " " + c.Version)
	}
	return b.String()
}
