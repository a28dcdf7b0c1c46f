// Package workspace owns the mutable state of one shader workspace: the
// source registry, include graph, symbol index and derived-data caches. All
// mutations go through the lifecycle notifications; queries read lazily
// rebuilt snapshots.
package workspace

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/standardbeagle/shadersense/internal/cache"
	"github.com/standardbeagle/shadersense/internal/config"
	"github.com/standardbeagle/shadersense/internal/debug"
	sserrors "github.com/standardbeagle/shadersense/internal/errors"
	"github.com/standardbeagle/shadersense/internal/include"
	"github.com/standardbeagle/shadersense/internal/index"
	"github.com/standardbeagle/shadersense/internal/preprocess"
	"github.com/standardbeagle/shadersense/internal/registry"
	"github.com/standardbeagle/shadersense/internal/symbols"
	"github.com/standardbeagle/shadersense/internal/types"
	"github.com/standardbeagle/shadersense/internal/validate"
)

// maxStaleRetries bounds how often a query is retried against a newer snapshot
const maxStaleRetries = 3

// Options carry the collaborators of a State. Zero values pick defaults.
type Options struct {
	Fs         afero.Fs
	Extractor  *symbols.Extractor
	Validators validate.Set
	// OnDiagnostics receives validation results per file once a run completes
	OnDiagnostics func(Published)
}

// Published is the outcome of one validation run of a root
type Published struct {
	Root  types.FileID
	Files map[string][]types.Diagnostic
}

// Dependency is one file of a root's include closure
type Dependency struct {
	Path     string             `json:"path"`
	Distance int                `json:"distance"`
	Order    int                `json:"order"`
	State    registry.FileState `json:"-"`
	Open     bool               `json:"open"`
}

// State is a single-writer, multi-reader workspace
type State struct {
	mu sync.RWMutex

	cfg       *config.Config
	reg       *registry.Registry
	resolver  *include.Resolver
	graph     *include.Graph
	index     *index.Index
	extractor *symbols.Extractor
	tracker   *cache.Tracker

	validators validate.Set
	scheduler  *Scheduler
	onDiags    func(Published)

	open     map[types.FileID]bool
	resolved map[types.FileID]bool // edges and symbols match the registry snapshot
	// validated holds the last validator diagnostics per root
	validated map[types.FileID][]types.Diagnostic
}

// New creates the state of a workspace configured by cfg
func New(cfg *config.Config, opts Options) *State {
	if cfg == nil {
		cfg = config.Default(".")
	}
	reg := registry.New(opts.Fs)
	graph := include.NewGraph()
	extractor := opts.Extractor
	if extractor == nil {
		extractor = symbols.NewExtractor()
	}
	validators := opts.Validators
	if validators == nil {
		validators = validate.FromConfig(cfg)
	}
	s := &State{
		cfg:        cfg,
		reg:        reg,
		resolver:   include.NewResolver(reg, cfg.IncludeDirs()),
		graph:      graph,
		index:      index.New(graph),
		extractor:  extractor,
		tracker:    cache.NewTracker(),
		validators: validators,
		onDiags:    opts.OnDiagnostics,
		open:       make(map[types.FileID]bool),
		resolved:   make(map[types.FileID]bool),
		validated:  make(map[types.FileID][]types.Diagnostic),
	}
	s.scheduler = NewScheduler(s.runValidation, cfg.Performance.DebounceMs, cfg.Performance.FlattenWorkers)
	return s
}

// Config returns the workspace configuration
func (s *State) Config() *config.Config { return s.cfg }

// Registry returns the source registry
func (s *State) Registry() *registry.Registry { return s.reg }

// Graph returns the include graph
func (s *State) Graph() *include.Graph { return s.graph }

// Stats returns cache counters
func (s *State) Stats() cache.Stats { return s.tracker.Stats() }

// DidOpen registers an editor buffer. lang may be LanguageUnknown to derive
// it from the path.
func (s *State) DidOpen(ctx context.Context, path string, text []byte, lang types.LanguageKind, version int32) (*registry.File, error) {
	s.mu.Lock()
	f, changed := s.reg.Open(path, text, lang, version)
	s.open[f.ID] = true
	var affected []types.FileID
	if changed || !s.resolved[f.ID] {
		affected = s.refreshLocked(ctx, f)
	}
	s.mu.Unlock()

	s.scheduleAffected(append(affected, f.ID))
	return f, nil
}

// DidChange replaces the text of an open buffer
func (s *State) DidChange(ctx context.Context, path string, text []byte, version int32) (*registry.File, error) {
	s.mu.Lock()
	f, changed, err := s.reg.Update(path, text, version)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.open[f.ID] = true
	var affected []types.FileID
	if changed {
		affected = s.refreshLocked(ctx, f)
	}
	s.mu.Unlock()

	s.scheduleAffected(affected)
	return f, nil
}

// DidClose hands a buffer back to the workspace. A file still reachable
// from another open file stays as a dependency shell; every file no open
// file reaches any more is dropped, including shells that only include
// each other.
func (s *State) DidClose(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.reg.Close(path)
	if err != nil {
		return err
	}
	delete(s.open, f.ID)
	s.scheduler.Cancel(f.ID)
	delete(s.validated, f.ID)
	if !s.sweepLocked()[f.ID] {
		debug.LogInclude("closed %s kept as dependency shell\n", f.Path)
	}
	return nil
}

// sweepLocked drops every file not reachable from an open file and
// returns the dropped set
func (s *State) sweepLocked() map[types.FileID]bool {
	live := make(map[types.FileID]bool)
	for id, open := range s.open {
		if !open {
			continue
		}
		for _, r := range s.graph.Closure(id) {
			live[r.File] = true
		}
	}

	dropped := make(map[types.FileID]bool)
	for _, f := range s.reg.Files() {
		if live[f.ID] {
			continue
		}
		s.graph.Remove(f.ID)
		s.index.Drop(f.ID)
		s.tracker.Drop(f.ID)
		s.reg.Remove(f.ID)
		delete(s.resolved, f.ID)
		dropped[f.ID] = true
		debug.LogInclude("dropped %s\n", f.Path)
	}
	return dropped
}

// DiskChanged reloads a dependency shell whose file changed on disk. Open
// buffers belong to the editor and are left alone. A path nobody knows yet
// may satisfy a previously unresolved include, so those are retried.
func (s *State) DiskChanged(ctx context.Context, path string) error {
	s.mu.Lock()
	f, known := s.reg.Lookup(path)
	var affected []types.FileID
	switch {
	case !known:
		affected = s.retryUnresolvedLocked(ctx)
	case s.open[f.ID]:
	default:
		nf, changed, err := s.reg.Reload(f.ID)
		if err != nil {
			debug.LogWatch("reload %s: %v\n", f.Path, err)
		}
		if changed && nf != nil {
			affected = s.refreshLocked(ctx, nf)
		}
		if err != nil && !changed {
			s.mu.Unlock()
			return err
		}
	}
	s.mu.Unlock()

	s.scheduleAffected(affected)
	return nil
}

// SetIncludeDirs replaces the include search path and re-resolves every file
func (s *State) SetIncludeDirs(ctx context.Context, dirs []string) {
	s.mu.Lock()
	s.resolver.SetIncludeDirs(dirs)
	var affected []types.FileID
	for _, f := range s.reg.Files() {
		if s.resolved[f.ID] {
			affected = append(affected, s.reresolveLocked(ctx, f)...)
		}
	}
	s.mu.Unlock()
	s.scheduleAffected(affected)
}

// refreshLocked recomputes everything derived from one file snapshot and
// loads newly discovered dependencies. It returns the invalidated files.
func (s *State) refreshLocked(ctx context.Context, f *registry.File) []types.FileID {
	affected := s.reresolveLocked(ctx, f)

	fs := s.extractor.Extract(ctx, f.ID, f.Path, f.Language, f.Content)
	fs.Version = f.Version
	linkIncludes(fs, s.graph.Edges(f.ID))
	s.index.Put(fs)
	s.resolved[f.ID] = true

	for _, e := range s.graph.Edges(f.ID) {
		if !e.Resolved() || s.resolved[e.Target] {
			continue
		}
		dep, err := s.reg.Load(e.Target)
		if err != nil {
			debug.LogInclude("load %s: %v\n", s.reg.Path(e.Target), err)
		}
		if dep == nil {
			continue
		}
		affected = append(affected, s.refreshLocked(ctx, dep)...)
	}
	return affected
}

// reresolveLocked re-resolves the edges of f and invalidates f and every
// file that includes it
func (s *State) reresolveLocked(ctx context.Context, f *registry.File) []types.FileID {
	edges := s.resolver.Resolve(f)
	if s.graph.SetEdges(f.ID, edges) {
		debug.LogInclude("%s now includes %d files\n", f.Path, len(edges))
	}
	if fs, ok := s.index.File(f.ID); ok && fs.Version == f.Version {
		linkIncludes(fs, edges)
	}
	return s.tracker.MarkChanged(f.ID, s.graph.Ancestors(f.ID))
}

func (s *State) retryUnresolvedLocked(ctx context.Context) []types.FileID {
	var affected []types.FileID
	for _, f := range s.reg.Files() {
		if !s.resolved[f.ID] {
			continue
		}
		for _, e := range s.graph.Edges(f.ID) {
			if e.Unresolved == nil {
				continue
			}
			affected = append(affected, s.refreshLocked(ctx, f)...)
			break
		}
	}
	return affected
}

// linkIncludes fills include link targets from resolved edges
func linkIncludes(fs *symbols.FileSymbols, edges []include.Edge) {
	for i := range fs.Includes {
		fs.Includes[i].Target = types.InvalidFileID
		for _, e := range edges {
			if e.PathSpan == fs.Includes[i].Span && e.Resolved() {
				fs.Includes[i].Target = e.Target
				break
			}
		}
	}
}

// Lookup returns the snapshot of a registered file
func (s *State) Lookup(path string) (*registry.File, error) {
	f, ok := s.reg.Lookup(path)
	if !ok {
		return nil, sserrors.NewUnknownFileError(path)
	}
	return f, nil
}

// FileByID returns the snapshot of id
func (s *State) FileByID(id types.FileID) (*registry.File, bool) {
	return s.reg.Get(id)
}

// IsOpen reports whether id is an editor buffer
func (s *State) IsOpen(id types.FileID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.open[id]
}

// Table returns the current symbol table of one file
func (s *State) Table(id types.FileID) (*symbols.FileSymbols, bool) {
	return s.index.File(id)
}

// Flatten returns the flattened unit of path
func (s *State) Flatten(ctx context.Context, path string) (*preprocess.Unit, error) {
	f, err := s.Lookup(path)
	if err != nil {
		return nil, err
	}
	return s.Unit(ctx, f.ID)
}

// Unit returns the flattened unit of root, rebuilding it when stale
func (s *State) Unit(ctx context.Context, root types.FileID) (*preprocess.Unit, error) {
	return retryStale(func() (*preprocess.Unit, error) {
		s.mu.RLock()
		defer s.mu.RUnlock()
		f, ok := s.reg.Get(root)
		if !ok {
			return nil, sserrors.NewUnknownFileError(s.reg.Path(root))
		}
		return s.tracker.Unit(ctx, root, s.reg.Versions, func(ctx context.Context) (*preprocess.Unit, error) {
			return preprocess.Flatten(ctx, source{s}, root, s.flattenOptions(f.Language))
		})
	})
}

// Symbols returns the symbol closure of path
func (s *State) Symbols(ctx context.Context, path string) (*index.Closure, error) {
	f, err := s.Lookup(path)
	if err != nil {
		return nil, err
	}
	return s.Closure(ctx, f.ID)
}

// Closure returns the symbol closure of root, rebuilding it when stale
func (s *State) Closure(ctx context.Context, root types.FileID) (*index.Closure, error) {
	return retryStale(func() (*index.Closure, error) {
		s.mu.RLock()
		defer s.mu.RUnlock()
		if _, ok := s.reg.Get(root); !ok {
			return nil, sserrors.NewUnknownFileError(s.reg.Path(root))
		}
		return s.tracker.Closure(ctx, root, s.reg.Versions, func(ctx context.Context) (*index.Closure, error) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return s.index.Closure(root), nil
		})
	})
}

// Roots returns the open files that transitively include id, falling back
// to every top-level includer when none is open
func (s *State) Roots(id types.FileID) []types.FileID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ancestors := s.graph.Ancestors(id)
	var open []types.FileID
	for _, a := range ancestors {
		if s.open[a] && a != id {
			open = append(open, a)
		}
	}
	if len(open) > 0 {
		return open
	}
	return s.graph.Roots(ancestors)
}

// Dependencies lists the include closure of path in flatten pre-order,
// path itself first
func (s *State) Dependencies(path string) ([]Dependency, error) {
	f, err := s.Lookup(path)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Dependency
	for _, r := range s.graph.Closure(f.ID) {
		df, ok := s.reg.Get(r.File)
		if !ok {
			continue
		}
		out = append(out, Dependency{
			Path:     df.Path,
			Distance: r.Distance,
			Order:    r.Order,
			State:    df.State,
			Open:     s.open[r.File],
		})
	}
	return out, nil
}

// Includers lists the files that transitively include path, nearest first
func (s *State) Includers(path string) ([]string, error) {
	f, err := s.Lookup(path)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, id := range s.graph.Ancestors(f.ID) {
		if p := s.reg.Path(id); p != "" {
			out = append(out, p)
		}
	}
	return out, nil
}

// Diagnostics returns the diagnostics of path: its own flatten problems,
// partial parses and the latest validator results of every root that
// reached it. No severity filter is applied.
func (s *State) Diagnostics(ctx context.Context, path string) ([]types.Diagnostic, error) {
	f, err := s.Lookup(path)
	if err != nil {
		return nil, err
	}
	unit, err := s.Unit(ctx, f.ID)
	if err != nil {
		return nil, err
	}
	var out []types.Diagnostic
	for _, d := range unit.Diagnostics {
		if d.File == f.ID {
			out = append(out, d)
		}
	}
	if fs, ok := s.index.File(f.ID); ok && fs.Partial != nil {
		out = append(out, partialDiagnostic(f, fs.Partial))
	}

	s.mu.RLock()
	roots := make([]types.FileID, 0, len(s.validated))
	for root := range s.validated {
		roots = append(roots, root)
	}
	sort.Slice(roots, func(i, j int) bool { return roots[i] < roots[j] })
	for _, root := range roots {
		for _, d := range s.validated[root] {
			if d.File == f.ID {
				out = append(out, d)
			}
		}
	}
	s.mu.RUnlock()
	return out, nil
}

func partialDiagnostic(f *registry.File, p *sserrors.PartialParseError) types.Diagnostic {
	span := types.Span{Start: 0, End: 0}
	return types.Diagnostic{
		File:     f.ID,
		Path:     f.Path,
		Span:     span,
		Range:    f.Lines.Range(span),
		Severity: types.SeverityHint,
		Code:     types.CodePartialParse,
		Message:  p.Error(),
		Source:   preprocess.DiagnosticSource,
	}
}

// ScheduleValidation queues validation of the given roots after the debounce
func (s *State) ScheduleValidation(roots ...types.FileID) {
	if !s.cfg.Validate {
		return
	}
	for _, r := range roots {
		s.scheduler.Schedule(r)
	}
}

// scheduleAffected validates the open files among affected
func (s *State) scheduleAffected(affected []types.FileID) {
	if !s.cfg.Validate || len(affected) == 0 {
		return
	}
	s.mu.RLock()
	var roots []types.FileID
	seen := map[types.FileID]bool{}
	for _, id := range affected {
		if s.open[id] && !seen[id] {
			seen[id] = true
			roots = append(roots, id)
		}
	}
	s.mu.RUnlock()
	s.ScheduleValidation(roots...)
}

// Validate flattens and validates root now, publishing the result
func (s *State) Validate(ctx context.Context, path string) ([]types.Diagnostic, error) {
	f, err := s.Lookup(path)
	if err != nil {
		return nil, err
	}
	if err := s.runValidation(ctx, f.ID); err != nil {
		return nil, err
	}
	return s.Diagnostics(ctx, path)
}

// Close stops background work
func (s *State) Close() error {
	s.scheduler.Shutdown()
	return nil
}

func (s *State) validateTimeout() time.Duration {
	if sec := s.cfg.Performance.ValidateTimeoutSec; sec > 0 {
		return time.Duration(sec) * time.Second
	}
	return validate.DefaultTimeout
}

// retryStale reruns fn while a concurrent invalidation outdated its snapshot
func retryStale[T any](fn func() (T, error)) (T, error) {
	var (
		v   T
		err error
	)
	for attempt := 0; attempt <= maxStaleRetries; attempt++ {
		v, err = fn()
		if !errors.Is(err, sserrors.ErrStaleQuery) {
			return v, err
		}
		debug.LogQuery("stale snapshot, retry %d\n", attempt+1)
	}
	return v, err
}
