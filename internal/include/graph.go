package include

import (
	"sort"
	"sync"

	"github.com/standardbeagle/shadersense/internal/types"
)

// Graph is the directed include graph with its reverse included-by index.
// It tolerates cycles; every walk carries its own guard.
type Graph struct {
	mu         sync.RWMutex
	edges      map[types.FileID][]Edge
	includedBy map[types.FileID]map[types.FileID]int // target -> includer -> edge count
}

// NewGraph creates an empty include graph
func NewGraph() *Graph {
	return &Graph{
		edges:      make(map[types.FileID][]Edge),
		includedBy: make(map[types.FileID]map[types.FileID]int),
	}
}

// SetEdges replaces the outgoing edges of from and reports whether the set
// of resolved targets changed.
func (g *Graph) SetEdges(from types.FileID, edges []Edge) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	old := g.edges[from]
	changed := !sameTargets(old, edges)

	for _, e := range old {
		if e.Resolved() {
			g.unlinkLocked(from, e.Target)
		}
	}
	if len(edges) == 0 {
		delete(g.edges, from)
	} else {
		g.edges[from] = append([]Edge(nil), edges...)
	}
	for _, e := range edges {
		if e.Resolved() {
			m := g.includedBy[e.Target]
			if m == nil {
				m = make(map[types.FileID]int)
				g.includedBy[e.Target] = m
			}
			m[from]++
		}
	}
	return changed
}

func (g *Graph) unlinkLocked(from, target types.FileID) {
	m := g.includedBy[target]
	if m == nil {
		return
	}
	m[from]--
	if m[from] <= 0 {
		delete(m, from)
	}
	if len(m) == 0 {
		delete(g.includedBy, target)
	}
}

func sameTargets(a, b []Edge) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Target != b[i].Target || a[i].Directive != b[i].Directive {
			return false
		}
	}
	return true
}

// Edges returns the include edges of from in source order
func (g *Graph) Edges(from types.FileID) []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]Edge(nil), g.edges[from]...)
}

// IncludedBy returns the direct includers of id
func (g *Graph) IncludedBy(id types.FileID) []types.FileID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return sortedKeys(g.includedBy[id])
}

// Ancestors returns every file that transitively includes id, nearest first.
// id itself is only part of the result when it sits on a cycle.
func (g *Graph) Ancestors(id types.FileID) []types.FileID {
	g.mu.RLock()
	defer g.mu.RUnlock()

	visited := map[types.FileID]bool{}
	var out []types.FileID
	queue := []types.FileID{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, parent := range sortedKeys(g.includedBy[cur]) {
			if visited[parent] {
				continue
			}
			visited[parent] = true
			out = append(out, parent)
			queue = append(queue, parent)
		}
	}
	return out
}

// Reach is one file of a closure
type Reach struct {
	File types.FileID
	// Distance is the smallest number of include edges from the root.
	Distance int
	// Order is the pre-order position of the first visit, the order in
	// which a flatten first emits the file's text.
	Order int
}

// Closure lists root and every file it transitively includes in depth-first
// pre-order, each file once.
func (g *Graph) Closure(root types.FileID) []Reach {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []Reach
	seen := map[types.FileID]bool{}

	// Explicit stack keeps depth independent of the goroutine stack.
	type frame struct {
		id    types.FileID
		depth int
	}
	stack := []frame{{id: root}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[f.id] {
			continue
		}
		seen[f.id] = true
		out = append(out, Reach{File: f.id, Distance: f.depth, Order: len(out)})

		edges := g.edges[f.id]
		for i := len(edges) - 1; i >= 0; i-- {
			if edges[i].Resolved() {
				stack = append(stack, frame{id: edges[i].Target, depth: f.depth + 1})
			}
		}
	}

	// Pre-order position is not depth; distances come from a separate BFS.
	dist := g.distancesLocked(root)
	for i := range out {
		out[i].Distance = dist[out[i].File]
	}
	return out
}

func (g *Graph) distancesLocked(root types.FileID) map[types.FileID]int {
	dist := map[types.FileID]int{root: 0}
	queue := []types.FileID{root}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, e := range g.edges[cur] {
			if !e.Resolved() {
				continue
			}
			if _, seen := dist[e.Target]; !seen {
				dist[e.Target] = dist[cur] + 1
				queue = append(queue, e.Target)
			}
		}
	}
	return dist
}

// Roots returns the files of ids that no file in ids includes
func (g *Graph) Roots(ids []types.FileID) []types.FileID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []types.FileID
	for _, id := range ids {
		if len(g.includedBy[id]) == 0 {
			out = append(out, id)
		}
	}
	return out
}

// Remove drops the outgoing edges of id. Incoming edges stay until their
// owners are re-resolved, so id keeps being reported as referenced.
func (g *Graph) Remove(id types.FileID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, e := range g.edges[id] {
		if e.Resolved() {
			g.unlinkLocked(id, e.Target)
		}
	}
	delete(g.edges, id)
}

// Files returns every file with outgoing edges
func (g *Graph) Files() []types.FileID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]types.FileID, 0, len(g.edges))
	for id := range g.edges {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func sortedKeys(m map[types.FileID]int) []types.FileID {
	out := make([]types.FileID, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
