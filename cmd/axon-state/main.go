package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/axon-memory/axon/internal/config"
	"github.com/axon-memory/axon/internal/embedding"
	"github.com/axon-memory/axon/internal/graph"
)

func main() {
	godotenv.Load()

	statePath := os.Getenv("AXON_STATE_PATH")
	if statePath == "" {
		statePath = "state"
	}

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(0)
	}

	store, err := graph.Open(statePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "stats":
		handleStats(store)
	case "add-brain":
		handleAddBrain(store, args)
	case "add-neuron":
		handleAddNeuron(store, statePath, args)
	case "neurons":
		handleNeurons(store, args)
	case "show":
		handleShow(store, args)
	case "add-fiber":
		handleAddFiber(store, args)
	case "fiber":
		handleFiber(store, args)
	case "similar":
		handleSimilar(store, statePath, args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`axon-state - Inspect and manage the memory graph

Usage: axon-state <command> [options]

Commands:
  stats                       Row counts per table
  add-brain -id X -name N     Create a brain
  add-neuron -brain B ...     Add a neuron (embeds content if Ollama is up)
  neurons -brain B            List active neurons, oldest first
  show <neuron-id>            Print one neuron with its synapses
  add-fiber -brain B -id F    Create a fiber
  fiber <fiber-id>            Print a fiber's neurons in order
  similar -brain B -text T    Find neurons similar to a text or fiber
  help                        Show this help

Environment:
  AXON_STATE_PATH  State directory (default "state")`)
}

func handleStats(store *graph.DB) {
	stats, err := store.Stats()
	if err != nil {
		fatal("stats: %v", err)
	}
	for _, table := range []string{"brains", "neurons", "synapses", "fibers", "fiber_members", "review_schedules"} {
		fmt.Printf("%-18s %d\n", table, stats[table])
	}
}

func handleAddBrain(store *graph.DB, args []string) {
	fs := flag.NewFlagSet("add-brain", flag.ExitOnError)
	id := fs.String("id", "", "Brain ID")
	name := fs.String("name", "", "Display name (default same as ID)")
	fs.Parse(args)

	if *id == "" {
		fatal("add-brain: -id is required")
	}
	if *name == "" {
		*name = *id
	}
	if err := store.AddBrain(&graph.Brain{ID: *id, Name: *name}); err != nil {
		fatal("add-brain: %v", err)
	}
	fmt.Printf("Created brain %s\n", *id)
}

func handleAddNeuron(store *graph.DB, statePath string, args []string) {
	fs := flag.NewFlagSet("add-neuron", flag.ExitOnError)
	brainID := fs.String("brain", "", "Brain ID")
	content := fs.String("content", "", "Neuron content")
	typ := fs.String("type", string(graph.NeuronFact), "Neuron type: fact, instruction, observation")
	fiberID := fs.String("fiber", "", "Append to this fiber")
	noEmbed := fs.Bool("no-embed", false, "Skip embedding generation")
	fs.Parse(args)

	if *brainID == "" || *content == "" {
		fatal("add-neuron: -brain and -content are required")
	}

	n := &graph.Neuron{
		ID:      graph.NewID(),
		BrainID: *brainID,
		Content: *content,
		Type:    graph.NeuronType(*typ),
	}

	if !*noEmbed {
		cfg, err := config.Load(config.DefaultPath(statePath))
		if err != nil {
			fatal("add-neuron: %v", err)
		}
		client := embedding.NewClient(cfg.Embedding.BaseURL, cfg.Embedding.Model)
		if emb, err := client.Embed(*content); err != nil {
			fmt.Fprintf(os.Stderr, "embedding skipped: %v\n", err)
		} else {
			n.Embedding = emb
		}
	}

	if err := store.AddNeuron(n); err != nil {
		fatal("add-neuron: %v", err)
	}
	if *fiberID != "" {
		if err := store.AppendToFiber(*fiberID, n.ID); err != nil {
			fatal("add-neuron: append to fiber: %v", err)
		}
	}
	fmt.Printf("Added neuron %s (%s)\n", n.ShortID, n.ID)
}

func handleNeurons(store *graph.DB, args []string) {
	fs := flag.NewFlagSet("neurons", flag.ExitOnError)
	brainID := fs.String("brain", "", "Brain ID")
	limit := fs.Int("limit", 50, "Max neurons to list")
	fs.Parse(args)

	if *brainID == "" {
		fatal("neurons: -brain is required")
	}
	neurons, err := store.ActiveNeurons(*brainID, *limit)
	if err != nil {
		fatal("neurons: %v", err)
	}
	for _, n := range neurons {
		fmt.Printf("%s  v%-2d %-12s %s\n", n.ShortID, n.Version, n.Type, truncate(n.Content, 70))
	}
	fmt.Printf("%d active neurons\n", len(neurons))
}

func handleShow(store *graph.DB, args []string) {
	if len(args) < 1 {
		fatal("show: neuron ID required")
	}
	n, err := store.GetNeuron(args[0])
	if err != nil {
		fatal("show: %v", err)
	}

	fmt.Printf("ID:        %s (%s)\n", n.ID, n.ShortID)
	fmt.Printf("Brain:     %s\n", n.BrainID)
	fmt.Printf("Type:      %s\n", n.Type)
	fmt.Printf("State:     %s\n", n.State)
	if n.SupersededBy != "" {
		fmt.Printf("Superseded by: %s\n", n.SupersededBy)
	}
	fmt.Printf("Version:   %d\n", n.Version)
	fmt.Printf("Created:   %s\n", n.CreatedAt.Format(time.RFC3339))
	fmt.Printf("Updated:   %s\n", n.UpdatedAt.Format(time.RFC3339))
	fmt.Printf("Embedding: %d dims\n", len(n.Embedding))
	fmt.Printf("Content:   %s\n", n.Content)

	synapses, err := store.NeuronSynapses(n.ID)
	if err != nil {
		fatal("show: %v", err)
	}
	if len(synapses) > 0 {
		fmt.Println("Synapses:")
		for _, s := range synapses {
			fmt.Printf("  %s -> %s  %s (%.1f)\n", s.FromID, s.ToID, s.Type, s.Weight)
		}
	}
}

func handleAddFiber(store *graph.DB, args []string) {
	fs := flag.NewFlagSet("add-fiber", flag.ExitOnError)
	brainID := fs.String("brain", "", "Brain ID")
	id := fs.String("id", "", "Fiber ID (default generated)")
	name := fs.String("name", "", "Fiber name")
	fs.Parse(args)

	if *brainID == "" {
		fatal("add-fiber: -brain is required")
	}
	if *id == "" {
		*id = graph.NewID()
	}
	if err := store.AddFiber(&graph.Fiber{ID: *id, BrainID: *brainID, Name: *name}); err != nil {
		fatal("add-fiber: %v", err)
	}
	fmt.Printf("Created fiber %s\n", *id)
}

func handleFiber(store *graph.DB, args []string) {
	if len(args) < 1 {
		fatal("fiber: fiber ID required")
	}
	neurons, err := store.FiberNeurons(args[0])
	if err != nil {
		fatal("fiber: %v", err)
	}
	for i, n := range neurons {
		fmt.Printf("%3d. %s [%s] %s\n", i+1, n.ShortID, n.State, truncate(n.Content, 60))
	}
	fmt.Printf("%d neurons\n", len(neurons))
}

// handleSimilar embeds the query text (or averages a fiber's stored
// embeddings) and runs a KNN search.
func handleSimilar(store *graph.DB, statePath string, args []string) {
	fs := flag.NewFlagSet("similar", flag.ExitOnError)
	brainID := fs.String("brain", "", "Brain ID")
	text := fs.String("text", "", "Query text")
	fiberID := fs.String("fiber", "", "Use this fiber's embedding centroid as the query")
	threshold := fs.Float64("threshold", 0.75, "Minimum cosine similarity")
	fs.Parse(args)

	if *brainID == "" || (*text == "" && *fiberID == "") {
		fatal("similar: -brain and one of -text/-fiber are required")
	}

	var query []float64
	if *text != "" {
		cfg, err := config.Load(config.DefaultPath(statePath))
		if err != nil {
			fatal("similar: %v", err)
		}
		client := embedding.NewClient(cfg.Embedding.BaseURL, cfg.Embedding.Model)
		query, err = client.Embed(*text)
		if err != nil {
			fatal("similar: embed: %v", err)
		}
	} else {
		neurons, err := store.FiberNeurons(*fiberID)
		if err != nil {
			fatal("similar: %v", err)
		}
		var stored [][]float64
		for _, n := range neurons {
			if len(n.Embedding) > 0 {
				stored = append(stored, n.Embedding)
			}
		}
		query = embedding.Centroid(stored)
		if query == nil {
			fatal("similar: fiber %s has no stored embeddings", *fiberID)
		}
	}

	matches, err := store.FindSimilarNeurons(*brainID, query, *threshold, "")
	if err != nil {
		fatal("similar: %v", err)
	}
	for _, m := range matches {
		n, err := store.GetNeuron(m.ID)
		if err != nil {
			continue
		}
		fmt.Printf("%.3f  %s  %s\n", m.Similarity, n.ShortID, truncate(n.Content, 60))
	}
	fmt.Printf("%d matches\n", len(matches))
}

func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
