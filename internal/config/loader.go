package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// Load reads config.yaml (and an optional data_sources.yaml) from configDir,
// expands environment variables, merges over the built-in defaults, and
// validates the result. Mirrors the teacher's Initialize/load/loadYAML
// pipeline in pkg/config/loader.go.
func Load(_ context.Context, configDir string) (*Config, error) {
	cfg := Defaults()

	mainPath := filepath.Join(configDir, "config.yaml")
	if err := loadYAMLInto(mainPath, &cfg); err != nil {
		return nil, err
	}

	dsPath := filepath.Join(configDir, "data_sources.yaml")
	if _, err := os.Stat(dsPath); err == nil {
		var dsWrapper struct {
			DataSources map[string]DataSourceConfig `yaml:"data_sources"`
		}
		if err := loadYAMLInto(dsPath, &dsWrapper); err != nil {
			return nil, err
		}
		if cfg.DataSources == nil {
			cfg.DataSources = map[string]DataSourceConfig{}
		}
		for id, ds := range dsWrapper.DataSources {
			ds.ID = id
			cfg.DataSources[id] = ds
		}
	}

	if err := NewValidator(&cfg).ValidateAll(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// loadYAMLInto reads a YAML file, expands env vars, and merges it over dst
// (dst already carries defaults; mergo.WithOverride makes file values win).
func loadYAMLInto(path string, dst any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return NewLoadError(path, err)
	}

	expanded := ExpandEnv(data)

	if cfg, ok := dst.(*Config); ok {
		// Unmarshal into a fresh struct and merge with override so that
		// zero-valued fields left unset in the file never clobber
		// already-populated defaults for unrelated sections — mirrors
		// pkg/config/merge.go's mergo.WithOverride approach.
		var fileCfg Config
		if err := yaml.Unmarshal(expanded, &fileCfg); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidYAML, path, err)
		}
		if err := mergo.Merge(cfg, fileCfg, mergo.WithOverride); err != nil {
			return fmt.Errorf("failed to merge %s: %w", path, err)
		}
		return nil
	}

	if err := yaml.Unmarshal(expanded, dst); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidYAML, path, err)
	}
	return nil
}
