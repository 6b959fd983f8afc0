// Package dedup decides whether two memory contents are duplicates,
// escalating from a cheap structural fingerprint through embedding
// similarity to an optional semantic judgment.
package dedup

import "fmt"

// Merge strategies for acting on a DUPLICATE verdict.
const (
	StrategyKeepNewer = "keep_newer" // retain the most recently updated side
	StrategyLinkOnly  = "link_only"  // alias synapse only, no state change
)

// Config holds the cascade thresholds. Invalid combinations fail validation
// with an error naming the field; values are never clamped.
type Config struct {
	Enabled bool `yaml:"enabled" json:"enabled"`

	// SimhashThreshold is the max Hamming distance between two structural
	// fingerprints for tier 1 to short-circuit as DUPLICATE.
	SimhashThreshold int `yaml:"simhash_threshold" json:"simhash_threshold"`

	// EmbeddingThreshold: cosine similarity at/above which tier 2
	// short-circuits as DUPLICATE.
	EmbeddingThreshold float64 `yaml:"embedding_threshold" json:"embedding_threshold"`

	// EmbeddingAmbiguousLow: cosine similarity below which tier 2
	// short-circuits as DISTINCT. Between this and EmbeddingThreshold the
	// pair escalates to tier 3.
	EmbeddingAmbiguousLow float64 `yaml:"embedding_ambiguous_low" json:"embedding_ambiguous_low"`

	LLMEnabled  bool   `yaml:"llm_enabled" json:"llm_enabled"`
	LLMProvider string `yaml:"llm_provider" json:"llm_provider"`
	LLMModel    string `yaml:"llm_model" json:"llm_model"`

	MergeStrategy string `yaml:"merge_strategy" json:"merge_strategy"`
}

// DefaultConfig returns the documented defaults. The cascade is opt-in.
func DefaultConfig() Config {
	return Config{
		Enabled:               false,
		SimhashThreshold:      10,
		EmbeddingThreshold:    0.85,
		EmbeddingAmbiguousLow: 0.75,
		LLMEnabled:            false,
		LLMProvider:           "none",
		LLMModel:              "",
		MergeStrategy:         StrategyKeepNewer,
	}
}

// Validate checks threshold ranges and consistency.
func (c Config) Validate() error {
	if c.SimhashThreshold < 0 {
		return fmt.Errorf("simhash_threshold must be non-negative, got %d", c.SimhashThreshold)
	}
	if c.EmbeddingThreshold < 0 || c.EmbeddingThreshold > 1 {
		return fmt.Errorf("embedding_threshold must be in [0,1], got %v", c.EmbeddingThreshold)
	}
	if c.EmbeddingAmbiguousLow < 0 || c.EmbeddingAmbiguousLow > 1 {
		return fmt.Errorf("embedding_ambiguous_low must be in [0,1], got %v", c.EmbeddingAmbiguousLow)
	}
	if c.EmbeddingAmbiguousLow >= c.EmbeddingThreshold {
		return fmt.Errorf("embedding_ambiguous_low (%v) must be below embedding_threshold (%v)",
			c.EmbeddingAmbiguousLow, c.EmbeddingThreshold)
	}
	switch c.MergeStrategy {
	case StrategyKeepNewer, StrategyLinkOnly:
	default:
		return fmt.Errorf("merge_strategy must be %q or %q, got %q",
			StrategyKeepNewer, StrategyLinkOnly, c.MergeStrategy)
	}
	return nil
}

// ToMap exports the config as a plain mapping for persistence/transport.
// Round-trips losslessly through FromMap.
func (c Config) ToMap() map[string]any {
	return map[string]any{
		"enabled":                 c.Enabled,
		"simhash_threshold":       c.SimhashThreshold,
		"embedding_threshold":     c.EmbeddingThreshold,
		"embedding_ambiguous_low": c.EmbeddingAmbiguousLow,
		"llm_enabled":             c.LLMEnabled,
		"llm_provider":            c.LLMProvider,
		"llm_model":               c.LLMModel,
		"merge_strategy":          c.MergeStrategy,
	}
}

// FromMap imports a config from a plain mapping. Missing keys fall back to
// defaults; unknown keys are ignored. FromMap(nil) equals DefaultConfig().
func FromMap(m map[string]any) Config {
	c := DefaultConfig()
	if m == nil {
		return c
	}
	if v, ok := mapBool(m, "enabled"); ok {
		c.Enabled = v
	}
	if v, ok := mapInt(m, "simhash_threshold"); ok {
		c.SimhashThreshold = v
	}
	if v, ok := mapFloat(m, "embedding_threshold"); ok {
		c.EmbeddingThreshold = v
	}
	if v, ok := mapFloat(m, "embedding_ambiguous_low"); ok {
		c.EmbeddingAmbiguousLow = v
	}
	if v, ok := mapBool(m, "llm_enabled"); ok {
		c.LLMEnabled = v
	}
	if v, ok := mapString(m, "llm_provider"); ok {
		c.LLMProvider = v
	}
	if v, ok := mapString(m, "llm_model"); ok {
		c.LLMModel = v
	}
	if v, ok := mapString(m, "merge_strategy"); ok {
		c.MergeStrategy = v
	}
	return c
}

func mapBool(m map[string]any, key string) (bool, bool) {
	v, ok := m[key].(bool)
	return v, ok
}

func mapString(m map[string]any, key string) (string, bool) {
	v, ok := m[key].(string)
	return v, ok
}

// mapInt accepts the numeric types JSON and YAML decoders produce.
func mapInt(m map[string]any, key string) (int, bool) {
	switch v := m[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}

func mapFloat(m map[string]any, key string) (float64, bool) {
	switch v := m[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}
