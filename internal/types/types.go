package types

import (
	"path/filepath"
	"strings"
)

// Common system-wide constants
const (
	// DefaultMaxFileSize caps how much of a shader file is read from disk.
	// Shader sources are small; anything larger is almost certainly generated.
	DefaultMaxFileSize = 4 * 1024 * 1024

	// DefaultMaxIncludeDepth bounds include nesting independently of the cycle guard.
	DefaultMaxIncludeDepth = 64
)

// FileID is the stable arena key of a file in the source registry.
// Zero is never assigned.
type FileID uint32

// InvalidFileID marks an absent file
const InvalidFileID FileID = 0

// LanguageKind identifies the shading language of a file
type LanguageKind uint8

const (
	LanguageUnknown LanguageKind = iota
	LanguageGLSL
	LanguageHLSL
	LanguageWGSL
)

var languageNames = map[LanguageKind]string{
	LanguageGLSL: "glsl",
	LanguageHLSL: "hlsl",
	LanguageWGSL: "wgsl",
}

// String returns a string representation of the language kind
func (l LanguageKind) String() string {
	if name, ok := languageNames[l]; ok {
		return name
	}
	return "unknown"
}

// ParseLanguage maps a language id ("glsl", "hlsl", "wgsl") to a LanguageKind.
func ParseLanguage(s string) LanguageKind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "glsl":
		return LanguageGLSL
	case "hlsl":
		return LanguageHLSL
	case "wgsl":
		return LanguageWGSL
	}
	return LanguageUnknown
}

var extensionLanguages = map[string]LanguageKind{
	".glsl": LanguageGLSL,
	".vert": LanguageGLSL,
	".frag": LanguageGLSL,
	".geom": LanguageGLSL,
	".comp": LanguageGLSL,
	".tesc": LanguageGLSL,
	".tese": LanguageGLSL,
	".mesh": LanguageGLSL,
	".task": LanguageGLSL,
	".rgen": LanguageGLSL,
	".rint": LanguageGLSL,
	".rahit": LanguageGLSL,
	".rchit": LanguageGLSL,
	".rmiss": LanguageGLSL,
	".rcall": LanguageGLSL,
	".hlsl":  LanguageHLSL,
	".hlsli": LanguageHLSL,
	".fx":    LanguageHLSL,
	".fxh":   LanguageHLSL,
	".wgsl":  LanguageWGSL,
}

// LanguageFromPath guesses the language from a file extension.
func LanguageFromPath(path string) LanguageKind {
	return extensionLanguages[strings.ToLower(filepath.Ext(path))]
}
