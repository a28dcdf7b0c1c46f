package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"runtime"

	"github.com/bmatcuk/doublestar/v4"

	sserrors "github.com/standardbeagle/shadersense/internal/errors"
	"github.com/standardbeagle/shadersense/internal/types"
)

// Validator validates configuration and sets smart defaults
type Validator struct{}

// NewValidator creates a new configuration validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateAndSetDefaults validates configuration and applies smart defaults
// Returns an error if validation fails
func (v *Validator) ValidateAndSetDefaults(cfg *Config) error {
	if err := v.validateProjectConfig(&cfg.Project); err != nil {
		return sserrors.NewConfigError("project", cfg.Project.Root, err)
	}

	switch cfg.IncludeMode {
	case "":
		cfg.IncludeMode = IncludeModePragma
	case IncludeModePragma, IncludeModeOnce, IncludeModeAlways:
	default:
		return sserrors.NewConfigError("include_mode", string(cfg.IncludeMode),
			errors.New("must be one of once, pragma, always"))
	}

	if cfg.Severity == "" {
		cfg.Severity = "hint"
	}
	if _, ok := types.ParseSeverity(cfg.Severity); !ok {
		return sserrors.NewConfigError("severity", cfg.Severity,
			errors.New("must be one of error, warning, info, hint"))
	}

	for _, pattern := range cfg.Watch.Exclude {
		if !doublestar.ValidatePattern(pattern) {
			return sserrors.NewConfigError("watch.exclude", pattern, errors.New("invalid glob pattern"))
		}
	}
	for _, inc := range cfg.Includes {
		if !doublestar.ValidatePattern(filepath.ToSlash(inc)) {
			return sserrors.NewConfigError("includes", inc, errors.New("invalid glob pattern"))
		}
	}

	if err := v.validatePerformanceConfig(&cfg.Performance); err != nil {
		return sserrors.NewConfigError("performance", "", err)
	}

	if err := v.validateCompletionConfig(&cfg.Completion); err != nil {
		return sserrors.NewConfigError("completion", "", err)
	}

	v.setSmartDefaults(cfg)
	return nil
}

// validateProjectConfig validates project configuration
func (v *Validator) validateProjectConfig(project *Project) error {
	if project.Root == "" {
		return errors.New("project root cannot be empty")
	}
	if project.Name == "" {
		project.Name = filepath.Base(project.Root)
	}
	return nil
}

// validatePerformanceConfig validates performance configuration
func (v *Validator) validatePerformanceConfig(perf *Performance) error {
	// FlattenWorkers: 0 means auto-detect (will be set by smart defaults)
	if perf.FlattenWorkers < 0 {
		return fmt.Errorf("FlattenWorkers cannot be negative, got %d", perf.FlattenWorkers)
	}
	if perf.DebounceMs < 0 {
		return fmt.Errorf("DebounceMs cannot be negative, got %d", perf.DebounceMs)
	}
	if perf.ValidateTimeoutSec < 0 {
		return fmt.Errorf("ValidateTimeoutSec cannot be negative, got %d", perf.ValidateTimeoutSec)
	}
	if perf.MaxIncludeDepth < 0 {
		return fmt.Errorf("MaxIncludeDepth cannot be negative, got %d", perf.MaxIncludeDepth)
	}
	return nil
}

// validateCompletionConfig validates completion configuration
func (v *Validator) validateCompletionConfig(c *Completion) error {
	if c.FuzzyThreshold < 0 || c.FuzzyThreshold > 1 {
		return fmt.Errorf("FuzzyThreshold must be between 0 and 1, got %v", c.FuzzyThreshold)
	}
	if c.MaxResults < 0 {
		return fmt.Errorf("MaxResults cannot be negative, got %d", c.MaxResults)
	}
	return nil
}

// setSmartDefaults applies smart defaults based on system capabilities
func (v *Validator) setSmartDefaults(cfg *Config) {
	// Leave one core for the editor
	if cfg.Performance.FlattenWorkers == 0 {
		cfg.Performance.FlattenWorkers = max(1, runtime.NumCPU()-1)
	}
	if cfg.Performance.ValidateTimeoutSec == 0 {
		cfg.Performance.ValidateTimeoutSec = 10
	}
	if cfg.Performance.MaxIncludeDepth == 0 {
		cfg.Performance.MaxIncludeDepth = types.DefaultMaxIncludeDepth
	}
	if cfg.Completion.MaxResults == 0 {
		cfg.Completion.MaxResults = 200
	}
	if cfg.Defines == nil {
		cfg.Defines = map[string]string{}
	}
}

// ValidateConfig is a convenience function for quick validation
func ValidateConfig(cfg *Config) error {
	return NewValidator().ValidateAndSetDefaults(cfg)
}
