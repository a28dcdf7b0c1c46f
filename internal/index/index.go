// Package index aggregates per-file symbol tables and answers name lookups
// from the point of view of a root file and its include closure.
package index

import (
	"sort"
	"sync"

	"github.com/standardbeagle/shadersense/internal/debug"
	"github.com/standardbeagle/shadersense/internal/include"
	"github.com/standardbeagle/shadersense/internal/symbols"
	"github.com/standardbeagle/shadersense/internal/types"
)

// Candidate is one ranked answer of a lookup
type Candidate struct {
	Symbol types.Symbol
	// Distance is the include distance from the root, 0 for the root itself
	Distance int
	// Local is set for root declarations whose scope contains the query offset
	Local bool
}

// Index holds the latest symbol table of every extracted file
type Index struct {
	mu    sync.RWMutex
	graph *include.Graph
	files map[types.FileID]*symbols.FileSymbols
}

// New creates an index that follows graph for closures
func New(graph *include.Graph) *Index {
	return &Index{graph: graph, files: make(map[types.FileID]*symbols.FileSymbols)}
}

// Put stores the table of one file, replacing any previous version
func (ix *Index) Put(fs *symbols.FileSymbols) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.files[fs.File] = fs
}

// Drop forgets a file
func (ix *Index) Drop(id types.FileID) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	delete(ix.files, id)
}

// File returns the stored table of id
func (ix *Index) File(id types.FileID) (*symbols.FileSymbols, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	fs, ok := ix.files[id]
	return fs, ok
}

// Closure snapshots the tables of root and every file it transitively
// includes. Files without a stored table contribute nothing.
func (ix *Index) Closure(root types.FileID) *Closure {
	reach := ix.graph.Closure(root)

	ix.mu.RLock()
	defer ix.mu.RUnlock()
	c := &Closure{
		Root:     root,
		Files:    reach,
		Versions: make(map[types.FileID]uint64, len(reach)),
		tables:   make([]*symbols.FileSymbols, len(reach)),
		byName:   make(map[string][]int),
	}
	for i, r := range reach {
		fs := ix.files[r.File]
		c.tables[i] = fs
		if fs == nil {
			continue
		}
		c.Versions[r.File] = fs.Version
	}
	c.build()
	debug.LogQuery("closure of %d: %d files, %d names\n", root, len(reach), len(c.byName))
	return c
}

// Resolve is Closure(root).Resolve(name, at)
func (ix *Index) Resolve(root types.FileID, name string, at int) []Candidate {
	return ix.Closure(root).Resolve(name, at)
}

// Visible is Closure(root).Visible(at)
func (ix *Index) Visible(root types.FileID, at int) []Candidate {
	return ix.Closure(root).Visible(at)
}

// Members is Closure(root).Members(typeName)
func (ix *Index) Members(root types.FileID, typeName string) []types.Symbol {
	return ix.Closure(root).Members(typeName)
}

// Closure is an immutable view of the symbols reachable from one root.
// It is shared between concurrent readers and never mutated after build.
type Closure struct {
	Root types.FileID
	// Files in flatten pre-order with include distances
	Files []include.Reach
	// Versions of the symbol tables the closure was built from
	Versions map[types.FileID]uint64

	tables []*symbols.FileSymbols // parallel to Files
	// byName holds global candidates per name, best first
	byName map[string][]int
	global []Candidate
}

func (c *Closure) build() {
	for i, r := range c.Files {
		fs := c.tables[i]
		if fs == nil {
			continue
		}
		for _, s := range fs.Symbols {
			if s.Scope != types.ScopeGlobal {
				continue
			}
			c.global = append(c.global, Candidate{Symbol: s, Distance: r.Distance})
		}
	}
	order := make(map[types.FileID]int, len(c.Files))
	for _, r := range c.Files {
		order[r.File] = r.Order
	}
	sort.SliceStable(c.global, func(i, j int) bool {
		return better(c.global[i], c.global[j], order)
	})
	for i, cand := range c.global {
		c.byName[cand.Symbol.Name] = append(c.byName[cand.Symbol.Name], i)
	}
}

// better orders globals: smaller distance, then the file included last, then
// the earlier declaration inside one file
func better(a, b Candidate, order map[types.FileID]int) bool {
	if a.Distance != b.Distance {
		return a.Distance < b.Distance
	}
	if a.Symbol.File != b.Symbol.File {
		return order[a.Symbol.File] > order[b.Symbol.File]
	}
	return a.Symbol.Order < b.Symbol.Order
}

// Contains reports whether file is part of the closure
func (c *Closure) Contains(file types.FileID) bool {
	for _, r := range c.Files {
		if r.File == file {
			return true
		}
	}
	return false
}

// Table returns the symbol table of a closure file
func (c *Closure) Table(file types.FileID) *symbols.FileSymbols {
	for i, r := range c.Files {
		if r.File == file {
			return c.tables[i]
		}
	}
	return nil
}

// locals returns the root declarations whose scope contains at, innermost first
func (c *Closure) locals(at int) []Candidate {
	if len(c.tables) == 0 || c.tables[0] == nil || at < 0 {
		return nil
	}
	var out []Candidate
	for _, s := range c.tables[0].Symbols {
		if s.Scope == types.ScopeLocal && s.ScopeSpan.ContainsInclusive(at) {
			out = append(out, Candidate{Symbol: s, Local: true})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		si, sj := out[i].Symbol.ScopeSpan, out[j].Symbol.ScopeSpan
		if si.Len() != sj.Len() {
			return si.Len() < sj.Len()
		}
		return out[i].Symbol.Order < out[j].Symbol.Order
	})
	return out
}

// Resolve returns the declarations name may refer to at offset at of the
// root, best first: locals of enclosing scopes, then globals by include
// distance. Struct members of that name come last.
func (c *Closure) Resolve(name string, at int) []Candidate {
	var out []Candidate
	for _, l := range c.locals(at) {
		if l.Symbol.Name == name {
			out = append(out, l)
		}
	}
	for _, i := range c.byName[name] {
		out = append(out, c.global[i])
	}
	for i, r := range c.Files {
		fs := c.tables[i]
		if fs == nil {
			continue
		}
		for _, s := range fs.Symbols {
			if s.Scope == types.ScopeMember && s.Name == name {
				out = append(out, Candidate{Symbol: s, Distance: r.Distance})
			}
		}
	}
	return out
}

// Best returns the first candidate of Resolve
func (c *Closure) Best(name string, at int) (Candidate, bool) {
	cands := c.Resolve(name, at)
	if len(cands) == 0 {
		return Candidate{}, false
	}
	return cands[0], true
}

// Visible returns one candidate per name visible at offset at, ranked
func (c *Closure) Visible(at int) []Candidate {
	seen := make(map[string]bool)
	var out []Candidate
	for _, l := range c.locals(at) {
		if !seen[l.Symbol.Name] {
			seen[l.Symbol.Name] = true
			out = append(out, l)
		}
	}
	for _, g := range c.global {
		if !seen[g.Symbol.Name] {
			seen[g.Symbol.Name] = true
			out = append(out, g)
		}
	}
	return out
}

// Members returns the fields of the struct typeName as declared by the
// best-ranked declaration of that type
func (c *Closure) Members(typeName string) []types.Symbol {
	var owner types.FileID = types.InvalidFileID
	for _, i := range c.byName[typeName] {
		if s := c.global[i].Symbol; s.Kind == types.SymbolKindType {
			owner = s.File
			break
		}
	}
	var out []types.Symbol
	for i, r := range c.Files {
		fs := c.tables[i]
		if fs == nil || (owner != types.InvalidFileID && r.File != owner) {
			continue
		}
		for _, s := range fs.Symbols {
			if s.Kind == types.SymbolKindField && s.Container == typeName {
				out = append(out, s)
			}
		}
		if len(out) > 0 {
			break
		}
	}
	return out
}
