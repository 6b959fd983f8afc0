package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/axon-memory/axon/internal/config"
	"github.com/axon-memory/axon/internal/graph"
	"github.com/axon-memory/axon/internal/review"
)

func main() {
	stateDir := flag.String("state", "state", "Path to state directory")
	brainID := flag.String("brain", "", "Brain ID (default from config)")
	track := flag.String("track", "", "Start tracking this fiber (box 1, due now)")
	fiberID := flag.String("fiber", "", "Record a review outcome for this fiber")
	success := flag.Bool("success", false, "The review succeeded (with -fiber)")
	fail := flag.Bool("fail", false, "The review failed (with -fiber)")
	flag.Parse()

	godotenv.Load()

	cfg, err := config.Load(config.DefaultPath(*stateDir))
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

	scheduler := review.NewScheduler(store, nil)

	switch {
	case *track != "":
		s, err := scheduler.Track(*track, *brainID)
		if err != nil {
			log.Fatalf("Failed to track fiber: %v", err)
		}
		fmt.Printf("Tracking fiber %s: box %d, next review %s\n",
			s.FiberID, s.Box, s.NextReview.Format(time.RFC3339))

	case *fiberID != "":
		if *success == *fail {
			fmt.Fprintln(os.Stderr, "Exactly one of -success or -fail is required with -fiber")
			os.Exit(1)
		}
		s, err := scheduler.Record(*fiberID, *brainID, *success)
		if err != nil {
			log.Fatalf("Failed to record review: %v", err)
		}
		fmt.Printf("Fiber %s: box %d, streak %d, next review %s\n",
			s.FiberID, s.Box, s.Streak, s.NextReview.Format(time.RFC3339))

	default:
		due, err := scheduler.Due(*brainID)
		if err != nil {
			log.Fatalf("Failed to list due schedules: %v", err)
		}
		if len(due) == 0 {
			fmt.Println("Nothing due for review.")
			return
		}
		fmt.Printf("%d fibers due:\n", len(due))
		for _, s := range due {
			overdue := time.Since(s.NextReview).Round(time.Hour)
			fmt.Printf("  %s  box %d  streak %d  due %s (%s overdue)\n",
				s.FiberID, s.Box, s.Streak, s.NextReview.Format("2006-01-02 15:04"), overdue)
		}
	}
}
