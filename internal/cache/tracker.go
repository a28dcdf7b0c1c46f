// Package cache tracks which files changed and holds version-stamped
// flattened units and symbol closures per root. Entries are rebuilt lazily
// on the next read; concurrent readers of the same root share one rebuild.
package cache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/standardbeagle/shadersense/internal/debug"
	sserrors "github.com/standardbeagle/shadersense/internal/errors"
	"github.com/standardbeagle/shadersense/internal/index"
	"github.com/standardbeagle/shadersense/internal/preprocess"
	"github.com/standardbeagle/shadersense/internal/types"
)

// VersionSource reports the current version of each requested file.
// Unknown files are absent from the result.
type VersionSource func(ids []types.FileID) map[types.FileID]uint64

// Stats are cumulative cache counters
type Stats struct {
	Hits          int64
	Misses        int64
	Invalidations int64
	Stale         int64
}

// Tracker is the cache and invalidation layer
type Tracker struct {
	mu       sync.Mutex
	dirty    map[types.FileID]bool
	gen      map[types.FileID]uint64 // bumped whenever a root is invalidated
	units    map[types.FileID]*preprocess.Unit
	closures map[types.FileID]*index.Closure
	group    singleflight.Group

	hits          int64
	misses        int64
	invalidations int64
	stale         int64
}

// NewTracker creates an empty tracker
func NewTracker() *Tracker {
	return &Tracker{
		dirty:    make(map[types.FileID]bool),
		gen:      make(map[types.FileID]uint64),
		units:    make(map[types.FileID]*preprocess.Unit),
		closures: make(map[types.FileID]*index.Closure),
	}
}

// MarkChanged marks id and every file in ancestors dirty and drops their
// derived entries. It returns the affected files, id first.
func (t *Tracker) MarkChanged(id types.FileID, ancestors []types.FileID) []types.FileID {
	affected := append([]types.FileID{id}, ancestors...)
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, f := range affected {
		t.dirty[f] = true
		t.gen[f]++
		delete(t.units, f)
		delete(t.closures, f)
	}
	atomic.AddInt64(&t.invalidations, int64(len(affected)))
	debug.LogQuery("invalidated %d files starting at %d\n", len(affected), id)
	return affected
}

// IsDirty reports whether the derived data of id must be rebuilt before use
func (t *Tracker) IsDirty(id types.FileID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dirty[id]
}

// Drop forgets every entry of id
func (t *Tracker) Drop(id types.FileID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.dirty, id)
	delete(t.units, id)
	delete(t.closures, id)
	t.gen[id]++
}

func fresh(recorded map[types.FileID]uint64, versions VersionSource) bool {
	ids := make([]types.FileID, 0, len(recorded))
	for id := range recorded {
		ids = append(ids, id)
	}
	current := versions(ids)
	for id, v := range recorded {
		if cur, ok := current[id]; !ok || cur != v {
			return false
		}
	}
	return true
}

// Unit returns the flattened unit of root, rebuilding it when root is dirty
// or any file it read has moved on. A rebuild that races with an
// invalidation of root yields ErrStaleQuery and is not stored.
func (t *Tracker) Unit(ctx context.Context, root types.FileID, versions VersionSource, build func(context.Context) (*preprocess.Unit, error)) (*preprocess.Unit, error) {
	t.mu.Lock()
	if u, ok := t.units[root]; ok && fresh(u.Versions, versions) {
		t.mu.Unlock()
		atomic.AddInt64(&t.hits, 1)
		return u, nil
	}
	gen := t.gen[root]
	t.mu.Unlock()
	atomic.AddInt64(&t.misses, 1)

	v, err, _ := t.group.Do(fmt.Sprintf("unit:%d:%d", root, gen), func() (any, error) {
		u, err := build(ctx)
		if err != nil {
			return nil, err
		}
		if !t.store(root, gen, func() { t.units[root] = u }) {
			return nil, sserrors.ErrStaleQuery
		}
		return u, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*preprocess.Unit), nil
}

// Closure is Unit for symbol closures
func (t *Tracker) Closure(ctx context.Context, root types.FileID, versions VersionSource, build func(context.Context) (*index.Closure, error)) (*index.Closure, error) {
	t.mu.Lock()
	if c, ok := t.closures[root]; ok && fresh(c.Versions, versions) {
		t.mu.Unlock()
		atomic.AddInt64(&t.hits, 1)
		return c, nil
	}
	gen := t.gen[root]
	t.mu.Unlock()
	atomic.AddInt64(&t.misses, 1)

	v, err, _ := t.group.Do(fmt.Sprintf("closure:%d:%d", root, gen), func() (any, error) {
		c, err := build(ctx)
		if err != nil {
			return nil, err
		}
		if !t.store(root, gen, func() { t.closures[root] = c }) {
			return nil, sserrors.ErrStaleQuery
		}
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*index.Closure), nil
}

// store publishes a rebuilt entry unless root was invalidated meanwhile
func (t *Tracker) store(root types.FileID, gen uint64, publish func()) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.gen[root] != gen {
		atomic.AddInt64(&t.stale, 1)
		return false
	}
	publish()
	delete(t.dirty, root)
	return true
}

// Stats returns a snapshot of the counters
func (t *Tracker) Stats() Stats {
	return Stats{
		Hits:          atomic.LoadInt64(&t.hits),
		Misses:        atomic.LoadInt64(&t.misses),
		Invalidations: atomic.LoadInt64(&t.invalidations),
		Stale:         atomic.LoadInt64(&t.stale),
	}
}
