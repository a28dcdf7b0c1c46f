package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	sserrors "github.com/standardbeagle/shadersense/internal/errors"
	"github.com/standardbeagle/shadersense/internal/include"
	"github.com/standardbeagle/shadersense/internal/index"
	"github.com/standardbeagle/shadersense/internal/preprocess"
	"github.com/standardbeagle/shadersense/internal/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type versionTable struct {
	mu sync.Mutex
	v  map[types.FileID]uint64
}

func (vt *versionTable) source(ids []types.FileID) map[types.FileID]uint64 {
	vt.mu.Lock()
	defer vt.mu.Unlock()
	out := make(map[types.FileID]uint64, len(ids))
	for _, id := range ids {
		if v, ok := vt.v[id]; ok {
			out[id] = v
		}
	}
	return out
}

func (vt *versionTable) bump(id types.FileID) {
	vt.mu.Lock()
	defer vt.mu.Unlock()
	vt.v[id]++
}

func TestUnit_CachedUntilVersionMoves(t *testing.T) {
	vt := &versionTable{v: map[types.FileID]uint64{1: 1, 2: 1}}
	tr := NewTracker()
	builds := 0
	build := func(context.Context) (*preprocess.Unit, error) {
		builds++
		return &preprocess.Unit{Root: 1, Versions: vt.source([]types.FileID{1, 2})}, nil
	}

	u1, err := tr.Unit(context.Background(), 1, vt.source, build)
	require.NoError(t, err)
	u2, err := tr.Unit(context.Background(), 1, vt.source, build)
	require.NoError(t, err)
	assert.Same(t, u1, u2)
	assert.Equal(t, 1, builds)

	// A dependency changing version makes the entry stale even without MarkChanged
	vt.bump(2)
	u3, err := tr.Unit(context.Background(), 1, vt.source, build)
	require.NoError(t, err)
	assert.NotSame(t, u1, u3)
	assert.Equal(t, 2, builds)

	st := tr.Stats()
	assert.Equal(t, int64(1), st.Hits)
	assert.Equal(t, int64(2), st.Misses)
}

func TestMarkChanged_InvalidatesIncludersOnly(t *testing.T) {
	// root includes level0 includes level1; sibling is unrelated
	const (
		root types.FileID = iota + 1
		level0
		level1
		sibling
	)
	g := include.NewGraph()
	g.SetEdges(root, []include.Edge{{From: root, Target: level0}})
	g.SetEdges(level0, []include.Edge{{From: level0, Target: level1}})

	vt := &versionTable{v: map[types.FileID]uint64{root: 1, level0: 1, level1: 1, sibling: 1}}
	tr := NewTracker()
	for _, id := range []types.FileID{root, level0, sibling} {
		id := id
		_, err := tr.Unit(context.Background(), id, vt.source, func(context.Context) (*preprocess.Unit, error) {
			return &preprocess.Unit{Root: id, Versions: vt.source([]types.FileID{id})}, nil
		})
		require.NoError(t, err)
	}

	affected := tr.MarkChanged(level1, g.Ancestors(level1))
	assert.Equal(t, []types.FileID{level1, level0, root}, affected)
	assert.True(t, tr.IsDirty(level1))
	assert.True(t, tr.IsDirty(level0))
	assert.True(t, tr.IsDirty(root))
	assert.False(t, tr.IsDirty(sibling))

	rebuilt := false
	_, err := tr.Unit(context.Background(), sibling, vt.source, func(context.Context) (*preprocess.Unit, error) {
		rebuilt = true
		return &preprocess.Unit{}, nil
	})
	require.NoError(t, err)
	assert.False(t, rebuilt, "sibling entry must survive")

	_, err = tr.Unit(context.Background(), root, vt.source, func(context.Context) (*preprocess.Unit, error) {
		rebuilt = true
		return &preprocess.Unit{Root: root, Versions: vt.source([]types.FileID{root})}, nil
	})
	require.NoError(t, err)
	assert.True(t, rebuilt)
	assert.False(t, tr.IsDirty(root))
}

func TestUnit_StaleRebuildNotPublished(t *testing.T) {
	vt := &versionTable{v: map[types.FileID]uint64{1: 1}}
	tr := NewTracker()

	_, err := tr.Unit(context.Background(), 1, vt.source, func(context.Context) (*preprocess.Unit, error) {
		// An edit lands while the rebuild runs
		tr.MarkChanged(1, nil)
		return &preprocess.Unit{Versions: vt.source([]types.FileID{1})}, nil
	})
	assert.ErrorIs(t, err, sserrors.ErrStaleQuery)
	assert.Equal(t, int64(1), tr.Stats().Stale)
	assert.True(t, tr.IsDirty(1))
}

func TestUnit_BuildErrorNotCached(t *testing.T) {
	vt := &versionTable{v: map[types.FileID]uint64{1: 1}}
	tr := NewTracker()
	boom := errors.New("boom")

	_, err := tr.Unit(context.Background(), 1, vt.source, func(context.Context) (*preprocess.Unit, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)

	u, err := tr.Unit(context.Background(), 1, vt.source, func(context.Context) (*preprocess.Unit, error) {
		return &preprocess.Unit{Versions: map[types.FileID]uint64{1: 1}}, nil
	})
	require.NoError(t, err)
	assert.NotNil(t, u)
}

func TestClosure_ConcurrentReadersShareBuild(t *testing.T) {
	vt := &versionTable{v: map[types.FileID]uint64{1: 1}}
	tr := NewTracker()
	ix := index.New(include.NewGraph())

	var builds int32
	release := make(chan struct{})
	build := func(context.Context) (*index.Closure, error) {
		atomic.AddInt32(&builds, 1)
		<-release
		return ix.Closure(1), nil
	}

	var wg sync.WaitGroup
	results := make([]*index.Closure, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := tr.Closure(context.Background(), 1, vt.source, build)
			assert.NoError(t, err)
			results[i] = c
		}(i)
	}
	close(release)
	wg.Wait()

	assert.LessOrEqual(t, atomic.LoadInt32(&builds), int32(8))
	for _, c := range results {
		assert.NotNil(t, c)
	}
	// Later readers hit the published entry
	before := atomic.LoadInt32(&builds)
	_, err := tr.Closure(context.Background(), 1, vt.source, build)
	require.NoError(t, err)
	assert.Equal(t, before, atomic.LoadInt32(&builds))
}
