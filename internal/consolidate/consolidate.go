// Package consolidate decides which neurons in a working set are duplicates
// or supersede one another, and mutates the graph accordingly: clustering by
// pairwise cascade verdicts, then applying the configured merge strategy per
// cluster.
package consolidate

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/axon-memory/axon/internal/cluster"
	"github.com/axon-memory/axon/internal/dedup"
	"github.com/axon-memory/axon/internal/graph"
	"github.com/axon-memory/axon/internal/logging"
)

// Engine runs consolidation passes over a brain's neurons.
type Engine struct {
	store   graph.Store
	cascade *dedup.Cascade

	// Concurrency bounds in-flight pairwise cascade evaluations. Set it to
	// respect upstream embedding/judge rate limits. Default 4.
	Concurrency int

	// WorkingSetLimit caps how many active neurons one pass reads (default 500).
	WorkingSetLimit int

	// DiscardEmptyFiberSchedules controls the schedule policy when a fiber
	// pass supersedes every neuron in the fiber: true discards the fiber's
	// review schedule, false keeps it. Explicit so callers own the policy.
	DiscardEmptyFiberSchedules bool

	verbose bool
}

// NewEngine creates a consolidation engine.
func NewEngine(store graph.Store, cascade *dedup.Cascade) *Engine {
	return &Engine{
		store:           store,
		cascade:         cascade,
		Concurrency:     4,
		WorkingSetLimit: 500,
	}
}

// SetVerbose enables per-pair logging.
func (e *Engine) SetVerbose(v bool) {
	e.verbose = v
}

// GroupFailure records one cluster whose merge could not be applied.
// Already-committed clusters in the same pass stay committed; the caller
// retries only these.
type GroupFailure struct {
	CanonicalID string
	MemberIDs   []string
	Err         error
}

// PassResult summarizes one consolidation pass. Raw cascade verdicts are
// internal; callers see counts and the failure list.
type PassResult struct {
	NeuronsScanned int
	PairsCompared  int
	ClustersFound  int // clusters of size >= 2
	MergesApplied  int // neurons superseded
	AliasesCreated int
	Failures       []GroupFailure
}

// Run consolidates the brain's active neurons.
func (e *Engine) Run(ctx context.Context, brainID string) (*PassResult, error) {
	neurons, err := e.store.ActiveNeurons(brainID, e.WorkingSetLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to read working set: %w", err)
	}
	return e.runPass(ctx, brainID, neurons, nil)
}

// RunFiber consolidates one fiber against the brain's working set: only
// pairs touching a fiber member are evaluated, so fiber neurons can be
// superseded by a newer canonical outside the fiber. Afterwards the fiber
// schedule policy applies if the fiber ended up with no active members.
func (e *Engine) RunFiber(ctx context.Context, brainID, fiberID string) (*PassResult, error) {
	members, err := e.store.FiberNeurons(fiberID)
	if err != nil {
		return nil, fmt.Errorf("failed to read fiber: %w", err)
	}
	inFiber := make(map[string]bool, len(members))
	for _, n := range members {
		inFiber[n.ID] = true
	}

	neurons, err := e.store.ActiveNeurons(brainID, e.WorkingSetLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to read working set: %w", err)
	}

	focus := make(map[int]bool)
	for i, n := range neurons {
		if inFiber[n.ID] {
			focus[i] = true
		}
	}

	result, err := e.runPass(ctx, brainID, neurons, focus)
	if err != nil {
		return result, err
	}

	if e.DiscardEmptyFiberSchedules && result.MergesApplied > 0 {
		if err := e.discardScheduleIfEmpty(brainID, fiberID); err != nil {
			logging.Warn("consolidate", "schedule policy check failed for fiber %s: %v", fiberID, err)
		}
	}

	return result, nil
}

// runPass is the core pipeline: snapshot -> candidate pairs -> concurrent
// cascade -> clustering -> per-group strategy application. A non-nil focus
// restricts candidates to pairs touching a focused index.
func (e *Engine) runPass(ctx context.Context, brainID string, neurons []*graph.Neuron, focus map[int]bool) (*PassResult, error) {
	result := &PassResult{NeuronsScanned: len(neurons)}

	// Disabled cascade: callers skip dedup entirely, every pair is DISTINCT.
	if e.cascade == nil || !e.cascade.Enabled() {
		return result, nil
	}
	if len(neurons) < 2 {
		return result, nil
	}

	pairs := e.candidatePairs(neurons, focus)
	logging.Debug("consolidate", "working set %d, candidate pairs %d", len(neurons), len(pairs))

	uf := cluster.New(len(neurons))
	compared, err := e.evaluatePairs(ctx, neurons, pairs, uf)
	result.PairsCompared = compared
	if err != nil {
		return result, err
	}

	// Materialize clusters. Singletons need no action.
	var groups [][]int
	for _, members := range uf.Groups() {
		if len(members) >= 2 {
			groups = append(groups, members)
		}
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i][0] < groups[j][0] })
	result.ClustersFound = len(groups)

	// Apply the strategy per group. Each group is an independent unit of
	// work: cancellation between groups leaves earlier groups committed,
	// and one group's failure never rolls back the others.
	for _, members := range groups {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		merged, aliased, gerr := e.applyStrategy(brainID, neurons, members)
		result.MergesApplied += merged
		result.AliasesCreated += aliased
		if gerr != nil {
			canonical := neurons[members[0]]
			ids := make([]string, len(members))
			for i, idx := range members {
				ids[i] = neurons[idx].ID
			}
			result.Failures = append(result.Failures, GroupFailure{
				CanonicalID: canonical.ID,
				MemberIDs:   ids,
				Err:         gerr,
			})
			logging.Warn("consolidate", "group merge failed (canonical %s): %v", canonical.ShortID, gerr)
		}
	}

	return result, nil
}

// pair is a candidate index pair within the working set.
type pair struct {
	a, b int
}

// candidatePairs pre-filters the quadratic pair space. A pair survives only
// when both neurons share a type tag and either agree on at least one
// fingerprint band or have stored embeddings already in the ambiguous-or-
// higher similarity range. Band agreement is conservative for tier 1 at the
// default threshold: distances <= 15 bits always share a 4-bit band. The
// false-negative risk is semantic duplicates whose stored embeddings are
// missing and whose wording shares no band; those pairs are assumed DISTINCT
// without running the cascade.
func (e *Engine) candidatePairs(neurons []*graph.Neuron, focus map[int]bool) []pair {
	cfg := e.cascade.Config()

	fingerprints := make([]uint64, len(neurons))
	for i, n := range neurons {
		fingerprints[i] = dedup.Fingerprint(n.Content)
	}

	var pairs []pair
	for i := 0; i < len(neurons); i++ {
		for j := i + 1; j < len(neurons); j++ {
			if focus != nil && !focus[i] && !focus[j] {
				continue
			}
			if neurons[i].Type != neurons[j].Type {
				continue
			}
			if dedup.SharesBand(fingerprints[i], fingerprints[j]) {
				pairs = append(pairs, pair{i, j})
				continue
			}
			sim := dedup.Cosine(neurons[i].Embedding, neurons[j].Embedding)
			if sim >= cfg.EmbeddingAmbiguousLow {
				pairs = append(pairs, pair{i, j})
			}
		}
	}
	return pairs
}

// evaluatePairs fans the cascade out over candidate pairs with bounded
// concurrency. All Union calls happen on this goroutine as results arrive,
// so the disjoint-set structure never sees concurrent mutation.
func (e *Engine) evaluatePairs(ctx context.Context, neurons []*graph.Neuron, pairs []pair, uf *cluster.UnionFind) (int, error) {
	concurrency := e.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	type verdict struct {
		p   pair
		res dedup.Result
	}

	sem := make(chan struct{}, concurrency)
	results := make(chan verdict)
	var wg sync.WaitGroup

	compared := 0
	for _, p := range pairs {
		a, b := neurons[p.a], neurons[p.b]

		// Pairs already recorded as aliases rejoin their cluster without
		// re-running the cascade. Dropping them instead would let a repeat
		// pass see the unaliased remainder of an old cluster as a new one
		// and write fresh synapses for it.
		if already, err := e.store.HasSynapse(a.ID, b.ID, graph.SynapseAlias); err == nil && already {
			uf.Union(p.a, p.b)
			continue
		}

		compared++
		wg.Add(1)
		go func(p pair, ca, cb string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			res := e.cascade.Compare(ctx, ca, cb)
			select {
			case results <- verdict{p: p, res: res}:
			case <-ctx.Done():
			}
		}(p, a.Content, b.Content)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	for v := range results {
		if e.verbose {
			logging.Info("consolidate", "%s vs %s: %s (tier %d) %s",
				neurons[v.p.a].ShortID, neurons[v.p.b].ShortID,
				v.res.Verdict, v.res.Tier, logging.Truncate(v.res.Reason, 80))
		}
		// UNCERTAIN never merges.
		if v.res.Verdict == dedup.VerdictDuplicate {
			uf.Union(v.p.a, v.p.b)
		}
	}

	return compared, ctx.Err()
}

// applyStrategy consolidates one cluster. keep_newer supersedes every
// non-canonical member with an optimistic version check; link_only records
// alias synapses without touching state. The canonical member is the most
// recently updated, ties broken by ID ordering for determinism.
func (e *Engine) applyStrategy(brainID string, neurons []*graph.Neuron, members []int) (merged, aliased int, err error) {
	canonical := neurons[members[0]]
	for _, idx := range members[1:] {
		n := neurons[idx]
		if n.UpdatedAt.After(canonical.UpdatedAt) ||
			(n.UpdatedAt.Equal(canonical.UpdatedAt) && n.ID < canonical.ID) {
			canonical = n
		}
	}

	strategy := e.cascade.Config().MergeStrategy

	var firstErr error
	for _, idx := range members {
		n := neurons[idx]
		if n.ID == canonical.ID {
			continue
		}

		switch strategy {
		case dedup.StrategyLinkOnly:
			// Members pulled back into the cluster by an existing alias are
			// already linked; only count synapses this pass writes.
			already, herr := e.store.HasSynapse(n.ID, canonical.ID, graph.SynapseAlias)
			if herr != nil {
				if firstErr == nil {
					firstErr = herr
				}
				continue
			}
			if already {
				continue
			}
			if err := e.store.AddSynapse(&graph.Synapse{
				BrainID: brainID,
				FromID:  n.ID,
				ToID:    canonical.ID,
				Type:    graph.SynapseAlias,
			}); err != nil {
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			aliased++

		default: // keep_newer
			// Superseded-and-alias is one atomic storage write; a stale
			// version fails this member cleanly for the caller to retry.
			if err := e.store.SupersedeNeuron(brainID, n.ID, n.Version, canonical.ID); err != nil {
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			merged++
			aliased++
			logging.Debug("consolidate", "superseded %s -> %s", n.ShortID, canonical.ShortID)
		}
	}

	return merged, aliased, firstErr
}

// discardScheduleIfEmpty drops the fiber's review schedule when no active
// neurons remain in it.
func (e *Engine) discardScheduleIfEmpty(brainID, fiberID string) error {
	members, err := e.store.FiberNeurons(fiberID)
	if err != nil {
		return err
	}
	for _, n := range members {
		if n.State == graph.StateActive {
			return nil
		}
	}
	return e.store.DeleteSchedule(fiberID, brainID)
}
