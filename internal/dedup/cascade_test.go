package dedup

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"
)

type mapEmbedder struct {
	vectors map[string][]float64
	err     error
}

func (m *mapEmbedder) Embed(text string) ([]float64, error) {
	if m.err != nil {
		return nil, m.err
	}
	v, ok := m.vectors[text]
	if !ok {
		return nil, fmt.Errorf("no vector for %q", text)
	}
	return v, nil
}

type cannedJudge struct {
	response string
	err      error
	calls    int
}

func (j *cannedJudge) Judge(ctx context.Context, prompt string) (string, error) {
	j.calls++
	if j.err != nil {
		return "", j.err
	}
	return j.response, nil
}

// blockingJudge waits for the context deadline.
type blockingJudge struct{}

func (blockingJudge) Judge(ctx context.Context, prompt string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func enabledConfig() Config {
	cfg := DefaultConfig()
	cfg.Enabled = true
	return cfg
}

func mustCascade(t *testing.T, cfg Config, embedder Embedder, judge Judge) *Cascade {
	t.Helper()
	c, err := NewCascade(cfg, embedder, judge)
	if err != nil {
		t.Fatalf("NewCascade: %v", err)
	}
	return c
}

func TestNewCascadeRejectsInvalidConfig(t *testing.T) {
	cfg := enabledConfig()
	cfg.EmbeddingAmbiguousLow = 0.9 // above EmbeddingThreshold
	if _, err := NewCascade(cfg, nil, nil); err == nil {
		t.Fatal("NewCascade accepted ambiguous-low above threshold")
	}
}

func TestCompareDisabled(t *testing.T) {
	c := mustCascade(t, DefaultConfig(), nil, nil)
	res := c.Compare(context.Background(), "same", "same")
	if res.Verdict != VerdictDistinct || res.Tier != 0 {
		t.Errorf("disabled cascade returned %s at tier %d, want DISTINCT tier 0",
			res.Verdict, res.Tier)
	}
}

func TestCompareTier1Duplicate(t *testing.T) {
	c := mustCascade(t, enabledConfig(), nil, nil)
	res := c.Compare(context.Background(),
		"The primary database is Postgres.",
		"the primary database is postgres")
	if res.Verdict != VerdictDuplicate || res.Tier != 1 {
		t.Errorf("got %s at tier %d, want DUPLICATE tier 1", res.Verdict, res.Tier)
	}
}

func TestCompareTier2Duplicate(t *testing.T) {
	a := "The ingestion pipeline writes raw events to the staging bucket."
	b := "Customer notification emails are rendered from stored templates."
	embedder := &mapEmbedder{vectors: map[string][]float64{
		a: {1, 0, 0},
		b: {1, 0, 0},
	}}
	c := mustCascade(t, enabledConfig(), embedder, nil)

	res := c.Compare(context.Background(), a, b)
	if res.Verdict != VerdictDuplicate || res.Tier != 2 {
		t.Fatalf("got %s at tier %d, want DUPLICATE tier 2", res.Verdict, res.Tier)
	}
	if res.Similarity < 0.999 {
		t.Errorf("Similarity = %v, want ~1", res.Similarity)
	}
}

func TestCompareTier2Distinct(t *testing.T) {
	a := "The ingestion pipeline writes raw events to the staging bucket."
	b := "Customer notification emails are rendered from stored templates."
	embedder := &mapEmbedder{vectors: map[string][]float64{
		a: {1, 0, 0},
		b: {0, 1, 0},
	}}
	judge := &cannedJudge{response: "DUPLICATE"}
	c := mustCascade(t, enabledConfig(), embedder, judge)

	res := c.Compare(context.Background(), a, b)
	if res.Verdict != VerdictDistinct || res.Tier != 2 {
		t.Fatalf("got %s at tier %d, want DISTINCT tier 2", res.Verdict, res.Tier)
	}
	if judge.calls != 0 {
		t.Errorf("judge called %d times on a tier-2 decision", judge.calls)
	}
}

func TestCompareAmbiguousEscalatesToJudge(t *testing.T) {
	a := "The ingestion pipeline writes raw events to the staging bucket."
	b := "Customer notification emails are rendered from stored templates."
	embedder := &mapEmbedder{vectors: map[string][]float64{
		a: {1, 0},
		b: {0.8, 0.6}, // cosine 0.8, inside the ambiguous band
	}}
	judge := &cannedJudge{response: "DUPLICATE\nsame database choice"}

	cfg := enabledConfig()
	cfg.LLMEnabled = true
	c := mustCascade(t, cfg, embedder, judge)

	res := c.Compare(context.Background(), a, b)
	if res.Verdict != VerdictDuplicate || res.Tier != 3 {
		t.Fatalf("got %s at tier %d, want DUPLICATE tier 3", res.Verdict, res.Tier)
	}
	if res.Reason != "same database choice" {
		t.Errorf("Reason = %q, want judge's second line", res.Reason)
	}
	if judge.calls != 1 {
		t.Errorf("judge called %d times, want 1", judge.calls)
	}
}

func TestCompareAmbiguousWithoutJudge(t *testing.T) {
	a := "The ingestion pipeline writes raw events to the staging bucket."
	b := "Customer notification emails are rendered from stored templates."
	embedder := &mapEmbedder{vectors: map[string][]float64{
		a: {1, 0},
		b: {0.8, 0.6},
	}}
	c := mustCascade(t, enabledConfig(), embedder, nil)

	res := c.Compare(context.Background(), a, b)
	if res.Verdict != VerdictUncertain {
		t.Errorf("got %s, want UNCERTAIN when no judge is configured", res.Verdict)
	}
}

func TestCompareEmbedderFailureWithoutJudge(t *testing.T) {
	embedder := &mapEmbedder{err: fmt.Errorf("ollama unreachable")}
	c := mustCascade(t, enabledConfig(), embedder, nil)

	res := c.Compare(context.Background(),
		"The ingestion pipeline writes raw events to the staging bucket.",
		"Customer notification emails are rendered from stored templates.")
	if res.Verdict != VerdictUncertain {
		t.Fatalf("got %s, want UNCERTAIN on embedder failure", res.Verdict)
	}
	if !strings.Contains(res.Reason, "embedding unavailable") {
		t.Errorf("Reason = %q, want the embedder failure surfaced", res.Reason)
	}
}

func TestCompareJudgeFailureDegrades(t *testing.T) {
	a := "The ingestion pipeline writes raw events to the staging bucket."
	b := "Customer notification emails are rendered from stored templates."
	embedder := &mapEmbedder{vectors: map[string][]float64{
		a: {1, 0},
		b: {0.8, 0.6},
	}}
	judge := &cannedJudge{err: fmt.Errorf("rate limited")}

	cfg := enabledConfig()
	cfg.LLMEnabled = true
	c := mustCascade(t, cfg, embedder, judge)

	res := c.Compare(context.Background(), a, b)
	if res.Verdict != VerdictUncertain || res.Tier != 3 {
		t.Fatalf("got %s at tier %d, want UNCERTAIN tier 3", res.Verdict, res.Tier)
	}
	if !strings.Contains(res.Reason, "rate limited") {
		t.Errorf("Reason = %q, want the judge failure surfaced", res.Reason)
	}
}

func TestCompareJudgeTimeout(t *testing.T) {
	a := "The ingestion pipeline writes raw events to the staging bucket."
	b := "Customer notification emails are rendered from stored templates."
	embedder := &mapEmbedder{vectors: map[string][]float64{
		a: {1, 0},
		b: {0.8, 0.6},
	}}

	cfg := enabledConfig()
	cfg.LLMEnabled = true
	c := mustCascade(t, cfg, embedder, blockingJudge{})
	c.SetJudgeTimeout(10 * time.Millisecond)

	res := c.Compare(context.Background(), a, b)
	if res.Verdict != VerdictUncertain {
		t.Errorf("got %s, want UNCERTAIN on judge timeout", res.Verdict)
	}
}

func TestCosine(t *testing.T) {
	cases := []struct {
		name string
		a, b []float64
		want float64
	}{
		{"identical", []float64{1, 2, 3}, []float64{1, 2, 3}, 1},
		{"orthogonal", []float64{1, 0}, []float64{0, 1}, 0},
		{"opposite", []float64{1, 0}, []float64{-1, 0}, -1},
		{"empty", nil, []float64{1}, 0},
		{"mismatched", []float64{1, 0}, []float64{1}, 0},
		{"zero vector", []float64{0, 0}, []float64{1, 1}, 0},
	}
	for _, tc := range cases {
		got := Cosine(tc.a, tc.b)
		if diff := got - tc.want; diff > 1e-9 || diff < -1e-9 {
			t.Errorf("%s: Cosine = %v, want %v", tc.name, got, tc.want)
		}
	}
}
