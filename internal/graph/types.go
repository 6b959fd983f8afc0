package graph

import (
	"errors"
	"time"
)

// Sentinel errors surfaced by storage backends.
var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrStaleNeuron is returned when an optimistic write loses: the neuron's
	// version or state changed between the read and the write. The caller
	// should re-read and retry the affected group only.
	ErrStaleNeuron = errors.New("stale neuron state")
)

// NeuronType tags what kind of memory a neuron holds.
type NeuronType string

const (
	NeuronFact        NeuronType = "fact"
	NeuronInstruction NeuronType = "instruction"
	NeuronObservation NeuronType = "observation"
)

// NeuronState is the lifecycle state of a neuron. Neurons are never deleted;
// superseded neurons stay queryable through their successor link.
type NeuronState string

const (
	StateActive     NeuronState = "active"
	StateArchived   NeuronState = "archived"
	StateSuperseded NeuronState = "superseded"
)

// SynapseType defines the typed relation between two neurons.
type SynapseType string

const (
	// SynapseAlias records that two neurons were judged duplicates.
	SynapseAlias       SynapseType = "ALIAS"
	SynapseSupports    SynapseType = "SUPPORTS"
	SynapseContradicts SynapseType = "CONTRADICTS"
	SynapseFollows     SynapseType = "FOLLOWS"
)

// BrainConfig holds per-brain tunables. A brain's config is replaced
// wholesale, never patched in place.
type BrainConfig struct {
	DedupEnabled       bool    `json:"dedup_enabled" yaml:"dedup_enabled"`
	SimhashThreshold   int     `json:"simhash_threshold" yaml:"simhash_threshold"`
	EmbeddingThreshold float64 `json:"embedding_threshold" yaml:"embedding_threshold"`
	MergeStrategy      string  `json:"merge_strategy" yaml:"merge_strategy"`
}

// Brain is the top-level container scoping neurons, synapses and fibers.
type Brain struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Config    BrainConfig `json:"config"`
	CreatedAt time.Time   `json:"created_at"`
}

// Neuron is an atomic memory unit.
type Neuron struct {
	ID      string      `json:"id"`
	ShortID string      `json:"short_id,omitempty"`
	BrainID string      `json:"brain_id"`
	Content string      `json:"content"`
	Type    NeuronType  `json:"type"`
	State   NeuronState `json:"state"`

	// SupersededBy links a superseded neuron to its canonical successor.
	SupersededBy string `json:"superseded_by,omitempty"`

	Embedding []float64 `json:"embedding,omitempty"`

	// Version is bumped on every write; used for the optimistic check on
	// state transitions.
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Synapse is a directed, typed edge between two neurons.
type Synapse struct {
	ID        int64       `json:"id,omitempty"`
	BrainID   string      `json:"brain_id"`
	FromID    string      `json:"from_id"`
	ToID      string      `json:"to_id"`
	Type      SynapseType `json:"type"`
	Weight    float64     `json:"weight"`
	CreatedAt time.Time   `json:"created_at,omitempty"`
}

// Fiber is an ordered thread of neuron references. Order is meaningful
// (chronological or causal), so membership is stored with positions.
type Fiber struct {
	ID        string    `json:"id"`
	BrainID   string    `json:"brain_id"`
	Name      string    `json:"name,omitempty"`
	NeuronIDs []string  `json:"neuron_ids"`
	CreatedAt time.Time `json:"created_at"`
}

// ReviewSchedule tracks spaced-repetition state for one (fiber, brain) pair.
// See the review package for the transition rules; storage only persists it.
type ReviewSchedule struct {
	FiberID      string    `json:"fiber_id"`
	BrainID      string    `json:"brain_id"`
	Box          int       `json:"box"` // Leitner box, 1..5
	NextReview   time.Time `json:"next_review"`
	LastReviewed time.Time `json:"last_reviewed,omitempty"`
	ReviewCount  int       `json:"review_count"`
	Streak       int       `json:"streak"`
	CreatedAt    time.Time `json:"created_at"`
}

// IsDue reports whether the schedule is due for review at the given time.
func (s *ReviewSchedule) IsDue(now time.Time) bool {
	return !s.NextReview.After(now)
}

// SimilarNeuron is a KNN result: a neuron ID with its cosine similarity.
type SimilarNeuron struct {
	ID         string
	Similarity float64
}
