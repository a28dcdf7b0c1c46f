// Package testhelpers provides shared utilities for testing shadersense
package testhelpers

import (
	"github.com/standardbeagle/shadersense/internal/config"
)

// TestConfigBuilder provides a fluent API for building test configs with safe defaults.
// Validation and watching are off unless asked for, and debounce is short.
// Usage:
//
//	cfg := testhelpers.NewTestConfigBuilder("/w").
//		WithIncludes("shaders/common").
//		WithDefine("USE_SHADOWS", "1").
//		Build()
type TestConfigBuilder struct {
	cfg *config.Config
}

// NewTestConfigBuilder creates a config builder for a workspace root
func NewTestConfigBuilder(projectRoot string) *TestConfigBuilder {
	cfg := config.Default(projectRoot)
	cfg.Project.Name = "test-project"
	cfg.Validate = false
	cfg.Watch.Enabled = false
	cfg.Performance.DebounceMs = 5
	cfg.Performance.FlattenWorkers = 2
	return &TestConfigBuilder{cfg: cfg}
}

// WithIncludes appends include directories
func (b *TestConfigBuilder) WithIncludes(dirs ...string) *TestConfigBuilder {
	b.cfg.Includes = append(b.cfg.Includes, dirs...)
	return b
}

// WithDefine adds a predefined macro
func (b *TestConfigBuilder) WithDefine(name, value string) *TestConfigBuilder {
	b.cfg.Defines[name] = value
	return b
}

// WithIncludeMode sets how repeated includes are flattened
func (b *TestConfigBuilder) WithIncludeMode(mode config.IncludeMode) *TestConfigBuilder {
	b.cfg.IncludeMode = mode
	return b
}

// WithStepIntoMacros maps macro expansions to their definitions
func (b *TestConfigBuilder) WithStepIntoMacros() *TestConfigBuilder {
	b.cfg.StepIntoMacros = true
	return b
}

// WithValidation enables background validation with the given debounce
func (b *TestConfigBuilder) WithValidation(debounceMs int) *TestConfigBuilder {
	b.cfg.Validate = true
	b.cfg.Performance.DebounceMs = debounceMs
	return b
}

// WithWatch enables the file watcher with the given debounce
func (b *TestConfigBuilder) WithWatch(debounceMs int) *TestConfigBuilder {
	b.cfg.Watch.Enabled = true
	b.cfg.Watch.DebounceMs = debounceMs
	return b
}

// WithSeverity sets the minimum reported severity
func (b *TestConfigBuilder) WithSeverity(severity string) *TestConfigBuilder {
	b.cfg.Severity = severity
	return b
}

// Build returns the config
func (b *TestConfigBuilder) Build() *config.Config {
	return b.cfg
}
