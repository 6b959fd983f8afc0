package dedup

import (
	"strings"
	"testing"
)

func TestDefaultConfigIsValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	cfg := DefaultConfig()
	if cfg.Enabled {
		t.Error("dedup should be opt-in")
	}
	if cfg.SimhashThreshold != 10 || cfg.EmbeddingThreshold != 0.85 || cfg.EmbeddingAmbiguousLow != 0.75 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.MergeStrategy != StrategyKeepNewer {
		t.Errorf("MergeStrategy = %q, want keep_newer", cfg.MergeStrategy)
	}
}

func TestValidateNamesTheField(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"negative simhash", func(c *Config) { c.SimhashThreshold = -1 }, "simhash_threshold"},
		{"embedding above one", func(c *Config) { c.EmbeddingThreshold = 1.2 }, "embedding_threshold"},
		{"ambiguous below zero", func(c *Config) { c.EmbeddingAmbiguousLow = -0.1 }, "embedding_ambiguous_low"},
		{"inverted band", func(c *Config) { c.EmbeddingAmbiguousLow = 0.9 }, "embedding_ambiguous_low"},
		{"unknown strategy", func(c *Config) { c.MergeStrategy = "merge_all" }, "merge_strategy"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate accepted an invalid config")
			}
			if !strings.Contains(err.Error(), tc.field) {
				t.Errorf("error %q does not name field %s", err, tc.field)
			}
		})
	}
}

func TestConfigMapRoundTrip(t *testing.T) {
	cfg := Config{
		Enabled:               true,
		SimhashThreshold:      6,
		EmbeddingThreshold:    0.9,
		EmbeddingAmbiguousLow: 0.7,
		LLMEnabled:            true,
		LLMProvider:           "anthropic",
		LLMModel:              "claude-3-5-haiku-latest",
		MergeStrategy:         StrategyLinkOnly,
	}
	if got := FromMap(cfg.ToMap()); got != cfg {
		t.Errorf("round trip changed config:\n got %+v\nwant %+v", got, cfg)
	}
}

func TestFromMapNil(t *testing.T) {
	if got := FromMap(nil); got != DefaultConfig() {
		t.Errorf("FromMap(nil) = %+v, want defaults", got)
	}
}

func TestFromMapPartial(t *testing.T) {
	got := FromMap(map[string]any{
		"enabled":        true,
		"llm_provider":   "openai",
		"unknown_future": "ignored",
	})
	want := DefaultConfig()
	want.Enabled = true
	want.LLMProvider = "openai"
	if got != want {
		t.Errorf("FromMap = %+v, want %+v", got, want)
	}
}

// JSON decoding hands back float64 for every number; the importer must
// accept that for integer fields.
func TestFromMapJSONNumbers(t *testing.T) {
	got := FromMap(map[string]any{
		"simhash_threshold":   float64(4),
		"embedding_threshold": float64(0.9),
	})
	if got.SimhashThreshold != 4 {
		t.Errorf("SimhashThreshold = %d, want 4", got.SimhashThreshold)
	}
	if got.EmbeddingThreshold != 0.9 {
		t.Errorf("EmbeddingThreshold = %v, want 0.9", got.EmbeddingThreshold)
	}
}

func TestFromMapWrongTypesIgnored(t *testing.T) {
	got := FromMap(map[string]any{
		"enabled":           "yes", // wrong type
		"simhash_threshold": "ten",
	})
	if got != DefaultConfig() {
		t.Errorf("wrong-typed keys should fall back to defaults, got %+v", got)
	}
}
