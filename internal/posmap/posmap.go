// Package posmap maps offsets of a flattened unit back to source files and
// forward again. Entries tile the flattened text without gaps or overlaps;
// zero-width markers stand for source regions that produced no text.
package posmap

import (
	"sort"

	"github.com/standardbeagle/shadersense/internal/types"
)

// NoOccurrence tags entries that must not answer source-to-flat lookups,
// such as macro bodies mapped in step-into mode.
const NoOccurrence = -1

// Entry maps flattened [FlatStart, FlatEnd) to source [SrcStart, SrcEnd) of File.
// Equal widths map byte for byte; otherwise the whole flat range collapses
// onto SrcStart and the whole source range onto FlatStart.
type Entry struct {
	FlatStart  int
	FlatEnd    int
	File       types.FileID
	SrcStart   int
	SrcEnd     int
	Occurrence int
}

// Linear reports whether the entry maps byte for byte
func (e Entry) Linear() bool {
	return e.FlatEnd-e.FlatStart == e.SrcEnd-e.SrcStart
}

// Marker reports whether the entry stands for omitted source text
func (e Entry) Marker() bool {
	return e.FlatStart == e.FlatEnd
}

// SourceLocation is the answer of a flat-to-source lookup
type SourceLocation struct {
	File       types.FileID
	Offset     int
	Occurrence int
}

// Map is an immutable position map
type Map struct {
	entries []Entry // by FlatStart, markers included
	spans   []int   // indices of non-marker entries, by FlatStart
	// occurrences[i] lists entry indices of occurrence i sorted by SrcStart
	occurrences [][]int
	occFile     []types.FileID
	byFile      map[types.FileID][]int // occurrence ids per file in flat order
	length      int
}

// Builder appends entries in flattened order
type Builder struct {
	entries []Entry
	occFile []types.FileID
	length  int
}

// NewBuilder creates an empty builder
func NewBuilder() *Builder {
	return &Builder{}
}

// Len returns the flattened length covered so far
func (b *Builder) Len() int { return b.length }

// Begin opens a new occurrence of file, one emission of its content
func (b *Builder) Begin(file types.FileID) int {
	b.occFile = append(b.occFile, file)
	return len(b.occFile) - 1
}

// Add maps the next flatLen flattened bytes to source [srcStart, srcEnd)
func (b *Builder) Add(occ int, file types.FileID, srcStart, srcEnd, flatLen int) {
	if flatLen <= 0 {
		b.Marker(occ, file, srcStart, srcEnd)
		return
	}
	e := Entry{
		FlatStart:  b.length,
		FlatEnd:    b.length + flatLen,
		File:       file,
		SrcStart:   srcStart,
		SrcEnd:     srcEnd,
		Occurrence: occ,
	}
	b.length = e.FlatEnd
	if n := len(b.entries); n > 0 {
		prev := &b.entries[n-1]
		if prev.Occurrence == occ && prev.File == file && !prev.Marker() && prev.Linear() && e.Linear() &&
			prev.FlatEnd == e.FlatStart && prev.SrcEnd == e.SrcStart {
			prev.FlatEnd = e.FlatEnd
			prev.SrcEnd = e.SrcEnd
			return
		}
	}
	b.entries = append(b.entries, e)
}

// Marker records a zero-width entry for source text that was omitted
func (b *Builder) Marker(occ int, file types.FileID, srcStart, srcEnd int) {
	if n := len(b.entries); n > 0 {
		prev := &b.entries[n-1]
		if prev.Marker() && prev.Occurrence == occ && prev.File == file && prev.SrcEnd == srcStart {
			prev.SrcEnd = srcEnd
			return
		}
	}
	b.entries = append(b.entries, Entry{
		FlatStart:  b.length,
		FlatEnd:    b.length,
		File:       file,
		SrcStart:   srcStart,
		SrcEnd:     srcEnd,
		Occurrence: occ,
	})
}

// Build freezes the builder into a Map
func (b *Builder) Build() *Map {
	m := &Map{
		entries:     b.entries,
		occurrences: make([][]int, len(b.occFile)),
		occFile:     b.occFile,
		byFile:      make(map[types.FileID][]int),
		length:      b.length,
	}
	for i, e := range m.entries {
		if !e.Marker() {
			m.spans = append(m.spans, i)
		}
		if e.Occurrence >= 0 && e.Occurrence < len(m.occurrences) {
			m.occurrences[e.Occurrence] = append(m.occurrences[e.Occurrence], i)
		}
	}
	for occ, idx := range m.occurrences {
		sort.SliceStable(idx, func(a, c int) bool {
			return m.entries[idx[a]].SrcStart < m.entries[idx[c]].SrcStart
		})
		if len(idx) > 0 {
			m.byFile[m.occFile[occ]] = append(m.byFile[m.occFile[occ]], occ)
		}
	}
	return m
}

// Len returns the length of the flattened text
func (m *Map) Len() int { return m.length }

// Entries returns all entries in flattened order
func (m *Map) Entries() []Entry { return m.entries }

// ToSource maps a flattened offset to its source location. The end of the
// text maps to the end of the last entry.
func (m *Map) ToSource(flat int) (SourceLocation, bool) {
	if flat < 0 || flat > m.length || len(m.spans) == 0 {
		return SourceLocation{}, false
	}
	if flat == m.length {
		e := m.entries[m.spans[len(m.spans)-1]]
		return SourceLocation{File: e.File, Offset: e.SrcEnd, Occurrence: e.Occurrence}, true
	}
	i := sort.Search(len(m.spans), func(i int) bool { return m.entries[m.spans[i]].FlatEnd > flat })
	if i == len(m.spans) {
		return SourceLocation{}, false
	}
	e := m.entries[m.spans[i]]
	off := e.SrcStart
	if e.Linear() {
		off += flat - e.FlatStart
	}
	return SourceLocation{File: e.File, Offset: off, Occurrence: e.Occurrence}, true
}

// ToFlattened maps a source offset to the flattened text, using the first
// occurrence of file that emitted it. ok is false when the offset is not
// present, for example inside a false conditional branch.
func (m *Map) ToFlattened(file types.FileID, off int) (int, bool) {
	for _, occ := range m.byFile[file] {
		if flat, ok := m.ToFlattenedIn(occ, off); ok {
			return flat, true
		}
	}
	return 0, false
}

// ToFlattenedIn maps a source offset within a specific occurrence
func (m *Map) ToFlattenedIn(occ, off int) (int, bool) {
	if occ < 0 || occ >= len(m.occurrences) {
		return 0, false
	}
	idx := m.occurrences[occ]
	i := sort.Search(len(idx), func(i int) bool { return m.entries[idx[i]].SrcStart > off }) - 1
	// Entries of one occurrence never overlap, except that a span may share
	// its start with a marker; the span wins.
	for ; i >= 0; i-- {
		e := m.entries[idx[i]]
		if off < e.SrcEnd && !e.Marker() {
			if e.Linear() {
				return e.FlatStart + (off - e.SrcStart), true
			}
			return e.FlatStart, true
		}
		if i > 0 && m.entries[idx[i-1]].SrcStart == e.SrcStart {
			continue
		}
		return 0, false
	}
	return 0, false
}

// Nearest is ToFlattened with a fallback for omitted regions: the flattened
// offset of the closest preceding source text, or of the following text when
// nothing precedes. ok is false only when the file never appears.
func (m *Map) Nearest(file types.FileID, off int) (int, bool) {
	if flat, ok := m.ToFlattened(file, off); ok {
		return flat, true
	}
	occs := m.byFile[file]
	if len(occs) == 0 {
		return 0, false
	}
	idx := m.occurrences[occs[0]]
	i := sort.Search(len(idx), func(i int) bool { return m.entries[idx[i]].SrcStart > off }) - 1
	if i < 0 {
		return m.entries[idx[0]].FlatStart, true
	}
	e := m.entries[idx[i]]
	if e.Marker() {
		return e.FlatStart, true
	}
	if off >= e.SrcEnd {
		return e.FlatEnd, true
	}
	return e.FlatStart, true
}

// Occurrences returns the occurrence ids of file in flattened order
func (m *Map) Occurrences(file types.FileID) []int {
	return m.byFile[file]
}
