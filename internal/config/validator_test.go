package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidator_SetsDefaults(t *testing.T) {
	cfg := &Config{Project: Project{Root: "/w/shaders"}}
	require.NoError(t, ValidateConfig(cfg))

	assert.Equal(t, "shaders", cfg.Project.Name)
	assert.Equal(t, IncludeModePragma, cfg.IncludeMode)
	assert.Equal(t, "hint", cfg.Severity)
	assert.Greater(t, cfg.Performance.FlattenWorkers, 0)
	assert.Equal(t, 10, cfg.Performance.ValidateTimeoutSec)
	assert.Equal(t, 200, cfg.Completion.MaxResults)
	assert.NotNil(t, cfg.Defines)
}

func TestValidator_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"empty root", func(c *Config) { c.Project.Root = "" }, "project"},
		{"bad severity", func(c *Config) { c.Severity = "loud" }, "severity"},
		{"negative workers", func(c *Config) { c.Performance.FlattenWorkers = -1 }, "performance"},
		{"threshold range", func(c *Config) { c.Completion.FuzzyThreshold = 1.5 }, "completion"},
		{"bad glob", func(c *Config) { c.Watch.Exclude = []string{"[unclosed"} }, "watch.exclude"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default("/w")
			tt.mutate(cfg)
			err := ValidateConfig(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "config error for field "+tt.field)
		})
	}
}
