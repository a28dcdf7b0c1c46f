package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// LoadTOML loads shadersense.toml from dir on top of the defaults.
// It returns nil, nil when the file does not exist.
func LoadTOML(dir string) (*Config, error) {
	tomlPath := filepath.Join(dir, TOMLFileName)

	data, err := os.ReadFile(tomlPath)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", TOMLFileName, err)
	}

	cfg, err := parseTOML(data, dir)
	if err != nil {
		return nil, err
	}
	resolveRoot(cfg, dir)
	return cfg, nil
}

func parseTOML(data []byte, dir string) (*Config, error) {
	cfg := Default(dir)
	cfg.Project.Root = ""
	cfg.Project.Name = ""
	// Lists replace defaults rather than append to them.
	cfg.Watch.Exclude = nil

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse TOML config: %w", err)
	}
	if cfg.Defines == nil {
		cfg.Defines = map[string]string{}
	}
	if cfg.Watch.Exclude == nil {
		cfg.Watch.Exclude = Default(dir).Watch.Exclude
	}
	return cfg, nil
}
