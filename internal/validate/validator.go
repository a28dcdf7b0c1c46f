// Package validate runs external shader compilers over flattened units and
// parses their output into diagnostics in flattened coordinates.
package validate

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/standardbeagle/shadersense/internal/config"
	"github.com/standardbeagle/shadersense/internal/types"
)

// DefaultTimeout bounds one validator invocation when Options.Timeout is unset
const DefaultTimeout = 10 * time.Second

// Options describe one validation request
type Options struct {
	// Path of the root file, used for stage detection and messages
	Path    string
	HLSL    config.HLSL
	GLSL    config.GLSL
	Timeout time.Duration
}

// RawDiagnostic is a validator message in flattened text coordinates.
// Line and Column are zero-based; Column is -1 when the tool gave none.
type RawDiagnostic struct {
	Line     int
	Column   int
	Severity types.Severity
	Message  string
}

// Validator checks flattened shader text
type Validator interface {
	Name() string
	Validate(ctx context.Context, text []byte, lang types.LanguageKind, opts Options) ([]RawDiagnostic, error)
}

// Func adapts a function to Validator
type Func func(ctx context.Context, text []byte, lang types.LanguageKind, opts Options) ([]RawDiagnostic, error)

func (f Func) Name() string { return "func" }

func (f Func) Validate(ctx context.Context, text []byte, lang types.LanguageKind, opts Options) ([]RawDiagnostic, error) {
	return f(ctx, text, lang, opts)
}

// Set picks a validator per language
type Set map[types.LanguageKind]Validator

// FromConfig builds command validators for every configured executable.
// WGSL is always validated in process by naga.
func FromConfig(cfg *config.Config) Set {
	set := Set{types.LanguageWGSL: Naga{}}
	if cfg.Validators.Glslang != "" {
		set[types.LanguageGLSL] = &Glslang{Executable: cfg.Validators.Glslang}
	}
	if cfg.Validators.Dxc != "" {
		set[types.LanguageHLSL] = &Dxc{Executable: cfg.Validators.Dxc}
	}
	return set
}

// For returns the validator of lang
func (s Set) For(lang types.LanguageKind) (Validator, bool) {
	v, ok := s[lang]
	return v, ok && v != nil
}

var glslStages = map[string]string{
	".vert":  "vert",
	".frag":  "frag",
	".comp":  "comp",
	".geom":  "geom",
	".tesc":  "tesc",
	".tese":  "tese",
	".mesh":  "mesh",
	".task":  "task",
	".rgen":  "rgen",
	".rint":  "rint",
	".rahit": "rahit",
	".rchit": "rchit",
	".rmiss": "rmiss",
	".rcall": "rcall",
}

// GLSLStage derives the shader stage from names like shader.frag or
// shader.comp.glsl, defaulting to frag.
func GLSLStage(path string) string {
	base := strings.ToLower(filepath.Base(path))
	for base != "" {
		ext := filepath.Ext(base)
		if ext == "" {
			break
		}
		if stage, ok := glslStages[ext]; ok {
			return stage
		}
		base = strings.TrimSuffix(base, ext)
	}
	return "frag"
}

// HLSLProfile returns the library profile for a shader model such as
// "6.0". A library profile needs no entry point.
func HLSLProfile(shaderModel string) string {
	major, minor := 6, 0
	if parts := strings.SplitN(shaderModel, ".", 2); len(parts) == 2 {
		if m, ok := atoi(parts[0]); ok {
			major = m
		}
		if m, ok := atoi(parts[1]); ok {
			minor = m
		}
	}
	return "lib_" + itoa(major) + "_" + itoa(minor)
}
