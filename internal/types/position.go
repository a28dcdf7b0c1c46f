package types

import "sort"

// Position is a zero-based line and byte column inside one file
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

// Range is a half-open range of positions
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// Span is a half-open byte range [Start, End)
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Contains reports whether off lies inside the span. An empty span contains its start.
func (s Span) Contains(off int) bool {
	if s.Start == s.End {
		return off == s.Start
	}
	return off >= s.Start && off < s.End
}

// ContainsInclusive treats the end offset as part of the span, which is what
// a cursor sitting right after an identifier needs.
func (s Span) ContainsInclusive(off int) bool {
	return off >= s.Start && off <= s.End
}

// Len returns the number of bytes covered
func (s Span) Len() int { return s.End - s.Start }

// Location is a range inside a specific source file
type Location struct {
	File  FileID `json:"-"`
	Path  string `json:"path"`
	Range Range  `json:"range"`
}

// LineIndex converts between byte offsets and line/column positions
type LineIndex struct {
	offsets []int // byte offset of the start of each line
	size    int
}

// NewLineIndex precomputes line start offsets for content
func NewLineIndex(content []byte) *LineIndex {
	offsets := make([]int, 1, len(content)/40+2)
	for i, b := range content {
		if b == '\n' {
			offsets = append(offsets, i+1)
		}
	}
	return &LineIndex{offsets: offsets, size: len(content)}
}

// LineCount returns the number of lines (a trailing newline opens an empty last line)
func (li *LineIndex) LineCount() int { return len(li.offsets) }

// LineStart returns the byte offset of the start of line, clamped to the content.
func (li *LineIndex) LineStart(line int) int {
	if line < 0 {
		return 0
	}
	if line >= len(li.offsets) {
		return li.size
	}
	return li.offsets[line]
}

// Position converts a byte offset to a position, clamping out of range offsets.
func (li *LineIndex) Position(offset int) Position {
	if offset < 0 {
		offset = 0
	}
	if offset > li.size {
		offset = li.size
	}
	line := sort.Search(len(li.offsets), func(i int) bool { return li.offsets[i] > offset }) - 1
	return Position{Line: line, Character: offset - li.offsets[line]}
}

// Offset converts a position to a byte offset. Columns past the end of the
// line clamp to the line end.
func (li *LineIndex) Offset(p Position) int {
	if p.Line < 0 {
		return 0
	}
	if p.Line >= len(li.offsets) {
		return li.size
	}
	start := li.offsets[p.Line]
	end := li.size
	if p.Line+1 < len(li.offsets) {
		end = li.offsets[p.Line+1] - 1
	}
	off := start + p.Character
	if off > end {
		off = end
	}
	if off < start {
		off = start
	}
	return off
}

// Range converts a span to a range
func (li *LineIndex) Range(s Span) Range {
	return Range{Start: li.Position(s.Start), End: li.Position(s.End)}
}
