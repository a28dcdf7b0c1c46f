package config

import (
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/standardbeagle/shadersense/internal/types"
)

// Config file names searched in the project root and the home directory
const (
	KDLFileName  = ".shadersense.kdl"
	TOMLFileName = "shadersense.toml"
)

// IncludeMode decides how repeated includes of the same file are flattened
type IncludeMode string

const (
	// IncludeModePragma re-includes files unless they declare #pragma once
	IncludeModePragma IncludeMode = "pragma"
	// IncludeModeOnce includes every file at most once per flatten
	IncludeModeOnce IncludeMode = "once"
	// IncludeModeAlways re-includes literally and ignores #pragma once
	IncludeModeAlways IncludeMode = "always"
)

type Config struct {
	Version        int               `toml:"version"`
	Project        Project           `toml:"project"`
	Includes       []string          `toml:"includes"`
	Defines        map[string]string `toml:"defines"`
	IncludeMode    IncludeMode       `toml:"include_mode"`
	StepIntoMacros bool              `toml:"step_into_macros"`
	Validate       bool              `toml:"validate"`
	Symbols        bool              `toml:"symbols"`
	Severity       string            `toml:"severity"`
	HLSL           HLSL              `toml:"hlsl"`
	GLSL           GLSL              `toml:"glsl"`
	Performance    Performance       `toml:"performance"`
	Watch          Watch             `toml:"watch"`
	Completion     Completion        `toml:"completion"`
	Validators     Validators        `toml:"validators"`
}

type Project struct {
	Root string `toml:"root"`
	Name string `toml:"name"`
}

type HLSL struct {
	ShaderModel      string `toml:"shader_model"`     // e.g. "6.0"
	Version          string `toml:"version"`          // language version, e.g. "2021"
	Enable16BitTypes bool   `toml:"enable_16bit_types"` // requires shader model 6.2
}

type GLSL struct {
	TargetClient string `toml:"client"` // e.g. "vulkan1_3", "opengl"
	SpirvVersion string `toml:"spirv"`  // e.g. "spv1_6"
}

type Performance struct {
	FlattenWorkers     int `toml:"flatten_workers"`      // 0 = auto-detect (NumCPU-1)
	DebounceMs         int `toml:"debounce_ms"`          // delay before background validation
	ValidateTimeoutSec int `toml:"validate_timeout_sec"` // per validator invocation
	MaxIncludeDepth    int `toml:"max_include_depth"`
}

type Watch struct {
	Enabled          bool     `toml:"enabled"`
	DebounceMs       int      `toml:"debounce_ms"`
	Exclude          []string `toml:"exclude"`
	RespectGitignore bool     `toml:"respect_gitignore"`
}

type Completion struct {
	FuzzyThreshold float64 `toml:"fuzzy_threshold"` // Jaro-Winkler similarity for non-prefix matches
	MaxResults     int     `toml:"max_results"`
}

// Validators holds executable paths of external compiler backends.
// Empty disables that backend.
type Validators struct {
	Glslang string `toml:"glslang"`
	Dxc     string `toml:"dxc"`
}

// Load reads configuration for a workspace rooted at rootDir
func Load(rootDir string) (*Config, error) {
	return LoadWithRoot(rootDir, "")
}

// LoadWithRoot merges ~/.shadersense.kdl with the project config found in
// rootDir. homeDir overrides the user's home directory when not empty.
func LoadWithRoot(rootDir, homeDir string) (*Config, error) {
	searchDir := "."
	if rootDir != "" {
		searchDir = rootDir
	}
	if abs, err := filepath.Abs(searchDir); err == nil {
		searchDir = abs
	}

	// Step 1: global base config
	if homeDir == "" {
		homeDir, _ = os.UserHomeDir()
	}
	var baseConfig *Config
	if homeDir != "" && filepath.Clean(homeDir) != searchDir {
		if globalCfg, err := LoadKDL(homeDir); err == nil && globalCfg != nil {
			baseConfig = globalCfg
		}
	}

	// Step 2: project config, KDL first then TOML
	projectConfig, err := LoadKDL(searchDir)
	if err != nil {
		return nil, err
	}
	if projectConfig == nil {
		if projectConfig, err = LoadTOML(searchDir); err != nil {
			return nil, err
		}
	}

	// Step 3: merge
	var cfg *Config
	switch {
	case baseConfig != nil && projectConfig != nil:
		cfg = mergeConfigs(baseConfig, projectConfig)
	case projectConfig != nil:
		cfg = projectConfig
	case baseConfig != nil:
		baseConfig.Project.Root = searchDir
		cfg = baseConfig
	default:
		cfg = Default(searchDir)
	}

	if err := NewValidator().ValidateAndSetDefaults(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when no config file exists
func Default(root string) *Config {
	return &Config{
		Version:     1,
		Project:     Project{Root: root, Name: filepath.Base(root)},
		Includes:    []string{},
		Defines:     map[string]string{},
		IncludeMode: IncludeModePragma,
		Validate:    true,
		Symbols:     true,
		Severity:    "hint",
		HLSL: HLSL{
			ShaderModel: "6.0",
			Version:     "2021",
		},
		GLSL: GLSL{
			TargetClient: "vulkan1_3",
			SpirvVersion: "spv1_6",
		},
		Performance: Performance{
			FlattenWorkers:     max(1, runtime.NumCPU()-1),
			DebounceMs:         250,
			ValidateTimeoutSec: 10,
			MaxIncludeDepth:    types.DefaultMaxIncludeDepth,
		},
		Watch: Watch{
			Enabled:          true,
			DebounceMs:       300,
			RespectGitignore: true,
			Exclude: []string{
				"**/.git/**",
				"**/node_modules/**",
				"**/build/**",
				"**/out/**",
				"**/*.spv",
				"**/*.dxil",
				"**/*.cso",
			},
		},
		Completion: Completion{
			FuzzyThreshold: 0.85,
			MaxResults:     200,
		},
	}
}

// mergeConfigs merges a base config with a project config.
// Project config takes precedence; include dirs, defines and watch
// exclusions are unioned with the project's entries first.
func mergeConfigs(base, project *Config) *Config {
	merged := *project

	merged.Includes = unionStrings(project.Includes, base.Includes)
	merged.Watch.Exclude = unionStrings(project.Watch.Exclude, base.Watch.Exclude)

	merged.Defines = make(map[string]string, len(base.Defines)+len(project.Defines))
	for k, v := range base.Defines {
		merged.Defines[k] = v
	}
	for k, v := range project.Defines {
		merged.Defines[k] = v
	}

	if merged.Validators.Glslang == "" {
		merged.Validators.Glslang = base.Validators.Glslang
	}
	if merged.Validators.Dxc == "" {
		merged.Validators.Dxc = base.Validators.Dxc
	}

	return &merged
}

// unionStrings keeps order, first occurrence wins
func unionStrings(lists ...[]string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, list := range lists {
		for _, s := range list {
			if !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
	}
	return out
}

// IncludeDirs returns the configured include directories as absolute paths
// in priority order. Entries containing glob metacharacters are expanded
// with doublestar and only directories are kept.
func (c *Config) IncludeDirs() []string {
	var dirs []string
	for _, inc := range c.Includes {
		p := inc
		if !filepath.IsAbs(p) {
			p = filepath.Join(c.Project.Root, p)
		}
		p = filepath.Clean(p)

		if !strings.ContainsAny(inc, "*?[{") {
			dirs = append(dirs, p)
			continue
		}
		matches, err := doublestar.FilepathGlob(p)
		if err != nil {
			continue
		}
		sort.Strings(matches)
		for _, m := range matches {
			if info, err := os.Stat(m); err == nil && info.IsDir() {
				dirs = append(dirs, m)
			}
		}
	}
	return unionStrings(dirs)
}

// MinSeverity returns the configured diagnostic severity filter
func (c *Config) MinSeverity() types.Severity {
	if s, ok := types.ParseSeverity(c.Severity); ok {
		return s
	}
	return types.SeverityHint
}
