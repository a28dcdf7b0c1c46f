package types

// SymbolKind represents the kind of symbol
type SymbolKind int

const (
	SymbolKindUnknown SymbolKind = iota
	SymbolKindFunction
	SymbolKindVariable
	SymbolKindType
	SymbolKindMacro
	SymbolKindField
	SymbolKindKeyword
)

// symbolKindStrings provides O(1) lookup for symbol kind names
var symbolKindStrings = map[SymbolKind]string{
	SymbolKindFunction: "function",
	SymbolKindVariable: "variable",
	SymbolKindType:     "type",
	SymbolKindMacro:    "macro",
	SymbolKindField:    "field",
	SymbolKindKeyword:  "keyword",
}

// String returns a string representation of the symbol kind
func (sk SymbolKind) String() string {
	if name, ok := symbolKindStrings[sk]; ok {
		return name
	}
	return "unknown"
}

// SymbolScope says where a declaration is visible
type SymbolScope int

const (
	ScopeGlobal SymbolScope = iota
	ScopeLocal
	ScopeMember
)

func (s SymbolScope) String() string {
	switch s {
	case ScopeGlobal:
		return "global"
	case ScopeLocal:
		return "local"
	case ScopeMember:
		return "member"
	}
	return "unknown"
}

// Parameter of a function signature
type Parameter struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

// Symbol is one declaration in one source file. All spans and ranges are in
// the declaring file's own coordinates.
type Symbol struct {
	Name string     `json:"name"`
	Kind SymbolKind `json:"kind"`

	File FileID `json:"-"`
	Path string `json:"path"`

	// NameSpan covers the declared identifier, DeclSpan the whole declaration.
	NameSpan  Span  `json:"-"`
	DeclSpan  Span  `json:"-"`
	NameRange Range `json:"range"`

	Signature string      `json:"signature,omitempty"`
	Type      string      `json:"type,omitempty"`
	Params    []Parameter `json:"params,omitempty"`

	Scope SymbolScope `json:"scope"`
	// ScopeSpan is the innermost enclosing block for locals and the owning
	// struct body for members; empty for globals.
	ScopeSpan Span `json:"-"`
	// Container is the owning struct for members or the enclosing function for locals.
	Container string `json:"container,omitempty"`

	// Order is the declaration index inside the file.
	Order int `json:"-"`

	// Builtin marks language intrinsics, which have no file or spans.
	Builtin bool   `json:"builtin,omitempty"`
	Doc     string `json:"doc,omitempty"`
}

// IncludeLink is the path literal of an include directive, which behaves as a
// document link to the resolved target.
type IncludeLink struct {
	Span   Span   `json:"-"`
	Range  Range  `json:"range"`
	Target FileID `json:"-"`
	Path   string `json:"path"`
}
