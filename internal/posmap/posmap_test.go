package posmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/shadersense/internal/types"
)

const (
	root types.FileID = 1
	dep  types.FileID = 2
)

// root: "AAAA#include\nBBBB" (include directive at [4,13))
// dep:  "xyz\n"
// flat: "AAAAxyz\nBBBB"
func buildIncludeMap() *Map {
	b := NewBuilder()
	r := b.Begin(root)
	b.Add(r, root, 0, 4, 4)
	b.Marker(r, root, 4, 13)
	d := b.Begin(dep)
	b.Add(d, dep, 0, 4, 4)
	b.Add(r, root, 13, 17, 4)
	return b.Build()
}

func TestToSource(t *testing.T) {
	m := buildIncludeMap()
	require.Equal(t, 12, m.Len())

	loc, ok := m.ToSource(2)
	require.True(t, ok)
	assert.Equal(t, SourceLocation{File: root, Offset: 2, Occurrence: 0}, loc)

	loc, ok = m.ToSource(5)
	require.True(t, ok)
	assert.Equal(t, dep, loc.File)
	assert.Equal(t, 1, loc.Offset)

	loc, ok = m.ToSource(9)
	require.True(t, ok)
	assert.Equal(t, root, loc.File)
	assert.Equal(t, 14, loc.Offset)

	loc, ok = m.ToSource(12)
	require.True(t, ok)
	assert.Equal(t, 17, loc.Offset)

	_, ok = m.ToSource(13)
	assert.False(t, ok)
}

func TestToFlattened_OmittedRegionIsNotPresent(t *testing.T) {
	m := buildIncludeMap()

	flat, ok := m.ToFlattened(root, 15)
	require.True(t, ok)
	assert.Equal(t, 10, flat)

	_, ok = m.ToFlattened(root, 6)
	assert.False(t, ok, "directive text is replaced by the included file")

	near, ok := m.Nearest(root, 6)
	require.True(t, ok)
	assert.Equal(t, 4, near)

	_, ok = m.Nearest(types.FileID(99), 0)
	assert.False(t, ok)
}

func TestRoundTrip(t *testing.T) {
	m := buildIncludeMap()
	for o := 0; o < m.Len(); o++ {
		loc, ok := m.ToSource(o)
		require.True(t, ok)
		back, ok := m.ToFlattenedIn(loc.Occurrence, loc.Offset)
		require.True(t, ok, "offset %d", o)
		assert.Equal(t, o, back)
	}
}

func TestCollapsedEntries(t *testing.T) {
	// "FOO(x)" at [10,16) expands to a 9 byte replacement
	b := NewBuilder()
	occ := b.Begin(root)
	b.Add(occ, root, 0, 10, 10)
	b.Add(occ, root, 10, 16, 9)
	b.Add(occ, root, 16, 20, 4)
	m := b.Build()

	for o := 10; o < 19; o++ {
		loc, ok := m.ToSource(o)
		require.True(t, ok)
		assert.Equal(t, 10, loc.Offset)
	}
	flat, ok := m.ToFlattened(root, 13)
	require.True(t, ok)
	assert.Equal(t, 10, flat)

	flat, ok = m.ToFlattened(root, 17)
	require.True(t, ok)
	assert.Equal(t, 20, flat)
}

func TestAdjacentLinearEntriesMerge(t *testing.T) {
	b := NewBuilder()
	occ := b.Begin(root)
	b.Add(occ, root, 0, 5, 5)
	b.Add(occ, root, 5, 9, 4)
	b.Marker(occ, root, 9, 12)
	b.Marker(occ, root, 12, 20)
	m := b.Build()

	require.Len(t, m.Entries(), 2)
	assert.Equal(t, Entry{FlatStart: 0, FlatEnd: 9, File: root, SrcStart: 0, SrcEnd: 9, Occurrence: 0}, m.Entries()[0])
	assert.True(t, m.Entries()[1].Marker())
	assert.Equal(t, 20, m.Entries()[1].SrcEnd)
}

func TestMultipleOccurrences(t *testing.T) {
	// dep emitted twice, as with literal re-inclusion
	b := NewBuilder()
	first := b.Begin(dep)
	b.Add(first, dep, 0, 3, 3)
	second := b.Begin(dep)
	b.Add(second, dep, 0, 3, 3)
	m := b.Build()

	assert.Equal(t, []int{0, 1}, m.Occurrences(dep))
	flat, ok := m.ToFlattened(dep, 1)
	require.True(t, ok)
	assert.Equal(t, 1, flat)

	flat, ok = m.ToFlattenedIn(second, 1)
	require.True(t, ok)
	assert.Equal(t, 4, flat)
}

func TestNoOccurrenceEntriesAreFlatOnly(t *testing.T) {
	b := NewBuilder()
	occ := b.Begin(root)
	b.Add(occ, root, 0, 4, 4)
	b.Add(NoOccurrence, dep, 20, 30, 6)
	m := b.Build()

	loc, ok := m.ToSource(5)
	require.True(t, ok)
	assert.Equal(t, dep, loc.File)
	assert.Equal(t, 20, loc.Offset)

	_, ok = m.ToFlattened(dep, 22)
	assert.False(t, ok)
}
