package dedup

import (
	"context"
	"fmt"
	"math"
	"time"
)

// Verdict is the outcome of one pairwise comparison.
type Verdict string

const (
	VerdictDuplicate Verdict = "DUPLICATE"
	VerdictDistinct  Verdict = "DISTINCT"
	VerdictUncertain Verdict = "UNCERTAIN"
)

// Result carries a verdict plus which tier produced it and why.
type Result struct {
	Verdict    Verdict
	Tier       int     // 0 = cascade disabled / no tier decided
	Similarity float64 // tier-2 cosine similarity, when computed
	Reason     string
}

// Embedder supplies content embeddings. Failure means tier 2 is unavailable
// for that pair; it is not fatal.
type Embedder interface {
	Embed(text string) ([]float64, error)
}

// Judge renders a free-text verdict for a prepared prompt. Implementations
// are network clients; calls must respect the context deadline.
type Judge interface {
	Judge(ctx context.Context, prompt string) (string, error)
}

// DefaultJudgeTimeout bounds a single tier-3 call.
const DefaultJudgeTimeout = 30 * time.Second

// Cascade runs the three-tier duplicate decision. Construct with NewCascade;
// the zero value is unusable.
type Cascade struct {
	cfg          Config
	embedder     Embedder
	judge        Judge
	judgeTimeout time.Duration
}

// NewCascade validates the config and builds a cascade. A nil embedder makes
// tier 2 permanently unavailable; a nil judge makes tier 3 permanently
// unavailable. Both are valid configurations.
func NewCascade(cfg Config, embedder Embedder, judge Judge) (*Cascade, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid dedup config: %w", err)
	}
	return &Cascade{
		cfg:          cfg,
		embedder:     embedder,
		judge:        judge,
		judgeTimeout: DefaultJudgeTimeout,
	}, nil
}

// Config returns the cascade's configuration.
func (c *Cascade) Config() Config {
	return c.cfg
}

// SetJudgeTimeout overrides the tier-3 call deadline.
func (c *Cascade) SetJudgeTimeout(d time.Duration) {
	c.judgeTimeout = d
}

// Enabled reports whether the cascade runs at all. When disabled, callers
// skip it entirely and treat every pair as DISTINCT.
func (c *Cascade) Enabled() bool {
	return c.cfg.Enabled
}

// Compare runs the tier cascade over two contents. It never returns an
// error: any tier failure degrades the pair to UNCERTAIN with the cause in
// the reason.
func (c *Cascade) Compare(ctx context.Context, a, b string) Result {
	if !c.cfg.Enabled {
		return Result{Verdict: VerdictDistinct, Tier: 0, Reason: "dedup disabled"}
	}

	// Tier 1: structural fingerprint. Near-free; catches whitespace,
	// casing and punctuation variants.
	dist := HammingDistance(Fingerprint(a), Fingerprint(b))
	if dist <= c.cfg.SimhashThreshold {
		return Result{
			Verdict: VerdictDuplicate,
			Tier:    1,
			Reason:  fmt.Sprintf("structural fingerprints within distance %d (max %d)", dist, c.cfg.SimhashThreshold),
		}
	}

	// Tier 2: embedding cosine similarity.
	sim, tier2Err := c.embeddingSimilarity(a, b)
	if tier2Err == nil {
		if sim >= c.cfg.EmbeddingThreshold {
			return Result{
				Verdict:    VerdictDuplicate,
				Tier:       2,
				Similarity: sim,
				Reason:     fmt.Sprintf("embedding similarity %.3f >= %.2f", sim, c.cfg.EmbeddingThreshold),
			}
		}
		if sim < c.cfg.EmbeddingAmbiguousLow {
			return Result{
				Verdict:    VerdictDistinct,
				Tier:       2,
				Similarity: sim,
				Reason:     fmt.Sprintf("embedding similarity %.3f < %.2f", sim, c.cfg.EmbeddingAmbiguousLow),
			}
		}
		// Ambiguous band: escalate.
	}

	// Tier 3: semantic judgment, only when configured.
	if !c.cfg.LLMEnabled || c.judge == nil {
		reason := "ambiguous embedding similarity, no judge configured"
		if tier2Err != nil {
			reason = fmt.Sprintf("embedding unavailable (%v), no judge configured", tier2Err)
		}
		return Result{Verdict: VerdictUncertain, Tier: 2, Similarity: sim, Reason: reason}
	}

	judgeCtx, cancel := context.WithTimeout(ctx, c.judgeTimeout)
	defer cancel()

	response, err := c.judge.Judge(judgeCtx, FormatJudgePrompt(a, b))
	if err != nil {
		// A failed judge call never crashes the pass; leave the pair unmerged.
		return Result{
			Verdict:    VerdictUncertain,
			Tier:       3,
			Similarity: sim,
			Reason:     fmt.Sprintf("judge call failed: %v", err),
		}
	}

	verdict, reason := ParseVerdict(response)
	return Result{Verdict: verdict, Tier: 3, Similarity: sim, Reason: reason}
}

func (c *Cascade) embeddingSimilarity(a, b string) (float64, error) {
	if c.embedder == nil {
		return 0, fmt.Errorf("no embedder configured")
	}
	ea, err := c.embedder.Embed(a)
	if err != nil {
		return 0, fmt.Errorf("embed: %w", err)
	}
	eb, err := c.embedder.Embed(b)
	if err != nil {
		return 0, fmt.Errorf("embed: %w", err)
	}
	return Cosine(ea, eb), nil
}

// Cosine computes cosine similarity between two vectors. Mismatched or empty
// vectors score 0.
func Cosine(a, b []float64) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
