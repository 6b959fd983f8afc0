// Package config loads the engine configuration file: brain defaults, dedup
// settings, and consolidation options live in one YAML document next to the
// state directory.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/axon-memory/axon/internal/dedup"
)

// Embedding holds the Ollama connection settings.
type Embedding struct {
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// Consolidation holds engine pass options.
type Consolidation struct {
	Concurrency                int  `yaml:"concurrency"`
	WorkingSetLimit            int  `yaml:"working_set_limit"`
	DiscardEmptyFiberSchedules bool `yaml:"discard_empty_fiber_schedules"`
}

// Config is the full engine configuration.
type Config struct {
	DefaultBrain  string        `yaml:"default_brain"`
	Dedup         dedup.Config  `yaml:"dedup"`
	Embedding     Embedding     `yaml:"embedding"`
	Consolidation Consolidation `yaml:"consolidation"`
}

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		DefaultBrain: "main",
		Dedup:        dedup.DefaultConfig(),
		Embedding: Embedding{
			BaseURL: "http://localhost:11434",
			Model:   "nomic-embed-text",
		},
		Consolidation: Consolidation{
			Concurrency:     4,
			WorkingSetLimit: 500,
		},
	}
}

// Load reads the config file at path. A missing file is not an error; the
// defaults apply. A malformed or invalid file is an error, never silently
// corrected.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Dedup.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	if cfg.Consolidation.Concurrency < 1 {
		return cfg, fmt.Errorf("config %s: consolidation concurrency must be >= 1", path)
	}
	return cfg, nil
}

// DefaultPath returns the conventional config location under the state
// directory.
func DefaultPath(statePath string) string {
	return filepath.Join(statePath, "axon.yaml")
}
