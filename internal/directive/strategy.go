package directive

import "github.com/standardbeagle/shadersense/internal/types"

// Kind classifies a preprocessor directive
type Kind uint8

const (
	KindOther Kind = iota // passed through untouched (#version, #extension, #line, #error...)
	KindInclude
	KindDefine
	KindUndef
	KindIfdef
	KindIfndef
	KindIf
	KindElif
	KindElse
	KindEndif
	KindPragma
)

var kindNames = map[Kind]string{
	KindOther:   "other",
	KindInclude: "include",
	KindDefine:  "define",
	KindUndef:   "undef",
	KindIfdef:   "ifdef",
	KindIfndef:  "ifndef",
	KindIf:      "if",
	KindElif:    "elif",
	KindElse:    "else",
	KindEndif:   "endif",
	KindPragma:  "pragma",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// IsConditional reports whether the directive opens, continues or closes a conditional block
func (k Kind) IsConditional() bool {
	switch k {
	case KindIfdef, KindIfndef, KindIf, KindElif, KindElse, KindEndif:
		return true
	}
	return false
}

// Strategy holds the per-language directive syntax
type Strategy struct {
	Language types.LanguageKind
	keywords map[string]Kind
	// SystemIncludes accepts the angle bracket form #include <path>
	SystemIncludes bool
}

var commonKeywords = map[string]Kind{
	"include": KindInclude,
	"define":  KindDefine,
	"undef":   KindUndef,
	"ifdef":   KindIfdef,
	"ifndef":  KindIfndef,
	"if":      KindIf,
	"elif":    KindElif,
	"else":    KindElse,
	"endif":   KindEndif,
	"pragma":  KindPragma,
}

func withKeywords(extra map[string]Kind) map[string]Kind {
	out := make(map[string]Kind, len(commonKeywords)+len(extra))
	for k, v := range commonKeywords {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

var strategies = map[types.LanguageKind]Strategy{
	types.LanguageGLSL: {Language: types.LanguageGLSL, keywords: commonKeywords, SystemIncludes: true},
	types.LanguageHLSL: {Language: types.LanguageHLSL, keywords: commonKeywords, SystemIncludes: true},
	// WGSL has no standard preprocessor; tools layer a C-like one on top and
	// also spell includes as #import "path".
	types.LanguageWGSL: {Language: types.LanguageWGSL, keywords: withKeywords(map[string]Kind{
		"import":             KindInclude,
		"define_import_path": KindOther,
	}), SystemIncludes: false},
}

// For returns the strategy of lang, falling back to GLSL syntax
func For(lang types.LanguageKind) Strategy {
	if s, ok := strategies[lang]; ok {
		return s
	}
	s := strategies[types.LanguageGLSL]
	s.Language = lang
	return s
}

// Classify maps a directive keyword to its kind
func (s Strategy) Classify(keyword string) Kind {
	if k, ok := s.keywords[keyword]; ok {
		return k
	}
	return KindOther
}
