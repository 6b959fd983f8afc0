package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/axon-memory/axon/internal/config"
	"github.com/axon-memory/axon/internal/consolidate"
	"github.com/axon-memory/axon/internal/dedup"
	"github.com/axon-memory/axon/internal/embedding"
	"github.com/axon-memory/axon/internal/graph"
)

func main() {
	stateDir := flag.String("state", "state", "Path to state directory")
	configPath := flag.String("config", "", "Path to config file (default <state>/axon.yaml)")
	brainID := flag.String("brain", "", "Brain to consolidate (default from config)")
	fiberID := flag.String("fiber", "", "Consolidate only this fiber against the brain's working set")
	concurrency := flag.Int("concurrency", 0, "Max in-flight pair comparisons (default from config)")
	dryRun := flag.Bool("dry-run", false, "Print stats without consolidating")
	verbose := flag.Bool("verbose", false, "Log every pair verdict")
	flag.Parse()

	godotenv.Load() // provider API keys, if a .env is present

	if *configPath == "" {
		*configPath = config.DefaultPath(*stateDir)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *brainID == "" {
		*brainID = cfg.DefaultBrain
	}

	store, err := graph.Open(*stateDir)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer store.Close()

	brain, err := store.GetBrain(*brainID)
	if err != nil {
		log.Fatalf("Brain %q not found (create it with axon-state add-brain): %v", *brainID, err)
	}

	dedupCfg := mergeBrainConfig(cfg.Dedup, brain.Config)

	stats, err := store.Stats()
	if err != nil {
		log.Fatalf("Failed to get stats: %v", err)
	}
	log.Printf("Database state:")
	log.Printf("  Neurons: %d", stats["neurons"])
	log.Printf("  Synapses: %d", stats["synapses"])
	log.Printf("  Fibers: %d", stats["fibers"])
	log.Printf("Dedup: enabled=%v simhash<=%d embed>=%.2f strategy=%s llm=%s",
		dedupCfg.Enabled, dedupCfg.SimhashThreshold, dedupCfg.EmbeddingThreshold,
		dedupCfg.MergeStrategy, dedupCfg.LLMProvider)

	if *dryRun {
		log.Println("Dry run - exiting")
		return
	}

	var embedder dedup.Embedder
	if dedupCfg.Enabled {
		embedder = embedding.NewClient(cfg.Embedding.BaseURL, cfg.Embedding.Model)
	}

	var judge dedup.Judge
	if dedupCfg.LLMEnabled {
		judge = buildJudge(dedupCfg, cfg.Embedding.BaseURL)
		if judge == nil {
			log.Printf("No judge available for provider %q; ambiguous pairs stay unmerged", dedupCfg.LLMProvider)
		}
	}

	cascade, err := dedup.NewCascade(dedupCfg, embedder, judge)
	if err != nil {
		log.Fatalf("Invalid dedup config: %v", err)
	}

	engine := consolidate.NewEngine(store, cascade)
	engine.DiscardEmptyFiberSchedules = cfg.Consolidation.DiscardEmptyFiberSchedules
	engine.WorkingSetLimit = cfg.Consolidation.WorkingSetLimit
	engine.Concurrency = cfg.Consolidation.Concurrency
	if *concurrency > 0 {
		engine.Concurrency = *concurrency
	}
	engine.SetVerbose(*verbose)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var result *consolidate.PassResult
	if *fiberID != "" {
		result, err = engine.RunFiber(ctx, *brainID, *fiberID)
	} else {
		result, err = engine.Run(ctx, *brainID)
	}
	if result != nil {
		printResult(result)
	}
	if err != nil {
		log.Fatalf("Consolidation pass failed: %v", err)
	}
}

// mergeBrainConfig overlays per-brain settings on the file config. Only
// fields the brain actually sets take effect, so a brain can turn dedup on
// over a file that leaves it off but cannot turn it off: false is the zero
// value and indistinguishable from unset. Disable dedup in the config file
// or with per-brain thresholds instead.
func mergeBrainConfig(base dedup.Config, brain graph.BrainConfig) dedup.Config {
	if brain.DedupEnabled {
		base.Enabled = true
	}
	if brain.SimhashThreshold > 0 {
		base.SimhashThreshold = brain.SimhashThreshold
	}
	if brain.EmbeddingThreshold > 0 {
		base.EmbeddingThreshold = brain.EmbeddingThreshold
	}
	if brain.MergeStrategy != "" {
		base.MergeStrategy = brain.MergeStrategy
	}
	return base
}

// buildJudge resolves the tier-3 judge. "ollama" reuses the local embedding
// endpoint; other providers go through the keyed factory.
func buildJudge(cfg dedup.Config, ollamaURL string) dedup.Judge {
	if cfg.LLMProvider == "ollama" {
		client := embedding.NewClient(ollamaURL, "")
		if cfg.LLMModel != "" {
			client.SetJudgeModel(cfg.LLMModel)
		}
		return client
	}
	return dedup.CreateJudge(cfg.LLMProvider, cfg.LLMModel)
}

func printResult(r *consolidate.PassResult) {
	log.Printf("Pass complete:")
	log.Printf("  Neurons scanned:  %d", r.NeuronsScanned)
	log.Printf("  Pairs compared:   %d", r.PairsCompared)
	log.Printf("  Clusters found:   %d", r.ClustersFound)
	log.Printf("  Merges applied:   %d", r.MergesApplied)
	log.Printf("  Aliases created:  %d", r.AliasesCreated)
	if len(r.Failures) > 0 {
		log.Printf("  Failed groups:    %d (retry with another pass)", len(r.Failures))
		for _, f := range r.Failures {
			log.Printf("    canonical %s, members %v: %v", f.CanonicalID, f.MemberIDs, f.Err)
		}
	}
}
