package workspace

import (
	"strconv"
	"strings"

	"github.com/standardbeagle/shadersense/internal/config"
	"github.com/standardbeagle/shadersense/internal/include"
	"github.com/standardbeagle/shadersense/internal/preprocess"
	"github.com/standardbeagle/shadersense/internal/registry"
	"github.com/standardbeagle/shadersense/internal/types"
)

// source serves flattening from the registry and graph. Callers hold s.mu.
type source struct {
	s *State
}

func (src source) File(id types.FileID) (*registry.File, error) {
	if f, ok := src.s.reg.Get(id); ok && f.Loaded {
		return f, nil
	}
	return src.s.reg.Load(id)
}

func (src source) Edges(id types.FileID) []include.Edge {
	return src.s.graph.Edges(id)
}

func (s *State) flattenOptions(lang types.LanguageKind) preprocess.Options {
	return preprocess.Options{
		IncludeMode:    s.cfg.IncludeMode,
		Defines:        PredefinedMacros(s.cfg, lang),
		StepIntoMacros: s.cfg.StepIntoMacros,
		MaxDepth:       s.cfg.Performance.MaxIncludeDepth,
	}
}

// PredefinedMacros returns the macros a compiler for lang defines before
// reading the source, overlaid with the configured defines
func PredefinedMacros(cfg *config.Config, lang types.LanguageKind) map[string]string {
	defs := map[string]string{}
	switch lang {
	case types.LanguageHLSL:
		if v := strings.TrimSpace(cfg.HLSL.Version); v != "" {
			defs["__HLSL_VERSION"] = v
		}
		major, minor := shaderModel(cfg.HLSL.ShaderModel)
		defs["__SHADER_TARGET_MAJOR"] = strconv.Itoa(major)
		defs["__SHADER_TARGET_MINOR"] = strconv.Itoa(minor)
		if cfg.HLSL.Enable16BitTypes {
			defs["__HLSL_ENABLE_16_BIT"] = "1"
		}
	case types.LanguageGLSL:
		if strings.HasPrefix(strings.ToLower(cfg.GLSL.TargetClient), "vulkan") {
			defs["VULKAN"] = "100"
		}
	}
	for k, v := range cfg.Defines {
		defs[k] = v
	}
	return defs
}

func shaderModel(sm string) (int, int) {
	major, minor := 6, 0
	parts := strings.SplitN(strings.TrimSpace(sm), ".", 2)
	if n, err := strconv.Atoi(parts[0]); err == nil {
		major = n
	}
	if len(parts) == 2 {
		if n, err := strconv.Atoi(parts[1]); err == nil {
			minor = n
		}
	}
	return major, minor
}

var _ preprocess.Source = source{}
