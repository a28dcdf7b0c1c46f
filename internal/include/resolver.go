package include

import (
	"path/filepath"
	"sync"

	"github.com/standardbeagle/shadersense/internal/debug"
	"github.com/standardbeagle/shadersense/internal/directive"
	sserrors "github.com/standardbeagle/shadersense/internal/errors"
	"github.com/standardbeagle/shadersense/internal/registry"
	"github.com/standardbeagle/shadersense/internal/types"
)

// Edge is one include directive of a source file
type Edge struct {
	From      types.FileID
	Directive string     // the path as written
	System    bool       // <path> form
	Span      types.Span // the whole directive line
	PathSpan  types.Span // the path literal
	Target    types.FileID
	// Unresolved is set when no candidate exists; Target is then InvalidFileID.
	Unresolved *sserrors.UnresolvedIncludeError
}

// Offset is the byte offset of the directive in its source file
func (e Edge) Offset() int { return e.Span.Start }

// Resolved reports whether the directive found its target
func (e Edge) Resolved() bool { return e.Target != types.InvalidFileID }

// Resolver turns include directives into edges
type Resolver struct {
	reg  *registry.Registry
	mu   sync.RWMutex
	dirs []string
}

// NewResolver creates a resolver searching includeDirs after the including file's directory
func NewResolver(reg *registry.Registry, includeDirs []string) *Resolver {
	r := &Resolver{reg: reg}
	r.SetIncludeDirs(includeDirs)
	return r
}

// SetIncludeDirs replaces the configured include directories
func (r *Resolver) SetIncludeDirs(dirs []string) {
	cleaned := make([]string, 0, len(dirs))
	for _, d := range dirs {
		cleaned = append(cleaned, filepath.Clean(d))
	}
	r.mu.Lock()
	r.dirs = cleaned
	r.mu.Unlock()
}

// IncludeDirs returns the configured include directories in priority order
func (r *Resolver) IncludeDirs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.dirs...)
}

// Resolve scans f for include directives and resolves each one. Newly
// discovered targets are registered as virtual files. Unresolved directives
// yield an edge carrying the error and do not stop the remaining ones.
func (r *Resolver) Resolve(f *registry.File) []Edge {
	var edges []Edge
	for _, d := range directive.Scan(f.Content, directive.For(f.Language)) {
		if d.Kind != directive.KindInclude {
			continue
		}
		edge := Edge{
			From:      f.ID,
			Directive: d.Path,
			System:    d.System,
			Span:      d.Span,
			PathSpan:  d.PathSpan,
		}
		if d.Path == "" {
			// Malformed: "#include" with no usable path literal
			edge.Directive = d.Args
			edge.PathSpan = types.Span{Start: d.ArgsStart, End: d.Span.End}
			edge.Unresolved = sserrors.NewUnresolvedIncludeError(f.ID, f.Path, d.Args, d.Span, nil)
			edges = append(edges, edge)
			continue
		}

		searched := r.Candidates(f.Path, d.Path)
		for _, candidate := range searched {
			if r.reg.Exists(candidate) {
				edge.Target = r.reg.Ensure(candidate).ID
				break
			}
		}
		if !edge.Resolved() {
			edge.Unresolved = sserrors.NewUnresolvedIncludeError(f.ID, f.Path, d.Path, d.Span, searched)
			debug.LogInclude("unresolved include %q in %s (searched %d paths)\n", d.Path, f.Path, len(searched))
		} else {
			debug.LogInclude("include %s -> %s (id=%d)\n", f.Path, d.Path, edge.Target)
		}
		edges = append(edges, edge)
	}
	return edges
}

// Candidates lists the paths tried for target, in resolution order: the
// including file's directory, then every include directory.
func (r *Resolver) Candidates(from, target string) []string {
	target = filepath.FromSlash(target)
	if filepath.IsAbs(target) {
		return []string{filepath.Clean(target)}
	}

	dirs := r.IncludeDirs()
	out := make([]string, 0, len(dirs)+1)
	seen := make(map[string]bool, len(dirs)+1)
	add := func(p string) {
		p = filepath.Clean(p)
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	add(filepath.Join(filepath.Dir(from), target))
	for _, d := range dirs {
		add(filepath.Join(d, target))
	}
	return out
}
