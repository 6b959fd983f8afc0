package graph

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"
)

// Store is the storage contract the engine and schedulers run against.
// Scoping is by brain ID throughout. Implementations must make
// SupersedeNeuron atomic (state transition + alias synapse in one unit) and
// reject stale writes with ErrStaleNeuron.
type Store interface {
	// Brains
	AddBrain(b *Brain) error
	GetBrain(id string) (*Brain, error)
	ReplaceBrainConfig(id string, cfg BrainConfig) error

	// Neurons
	AddNeuron(n *Neuron) error
	GetNeuron(id string) (*Neuron, error)
	ActiveNeurons(brainID string, limit int) ([]*Neuron, error)
	// SupersedeNeuron transitions a neuron to superseded and records the
	// alias synapse to its successor. The version argument is the version
	// observed when the working set was read; a mismatch fails with
	// ErrStaleNeuron and writes nothing.
	SupersedeNeuron(brainID, id string, version int, successorID string) error

	// Synapses
	AddSynapse(s *Synapse) error
	HasSynapse(fromID, toID string, typ SynapseType) (bool, error)
	NeuronSynapses(neuronID string) ([]*Synapse, error)

	// Fibers
	AddFiber(f *Fiber) error
	GetFiber(id string) (*Fiber, error)
	AppendToFiber(fiberID, neuronID string) error
	FiberNeurons(fiberID string) ([]*Neuron, error)

	// Review schedules, keyed by (fiber, brain)
	PutSchedule(s *ReviewSchedule) error
	GetSchedule(fiberID, brainID string) (*ReviewSchedule, error)
	DueSchedules(brainID string, now time.Time) ([]*ReviewSchedule, error)
	DeleteSchedule(fiberID, brainID string) error

	// FindSimilarNeurons returns active neurons in the brain whose stored
	// embedding has cosine similarity >= threshold with the query vector,
	// excluding excludeID. Backends without a vector index fall back to a
	// full scan.
	FindSimilarNeurons(brainID string, embedding []float64, threshold float64, excludeID string) ([]SimilarNeuron, error)

	Stats() (map[string]int, error)
	Close() error
}

// NewID returns a fresh entity identifier.
func NewID() string {
	return uuid.NewString()
}

// ShortID derives a stable 5-hex-char display ID from a full ID.
func ShortID(id string) string {
	sum := blake3.Sum256([]byte(id))
	return fmt.Sprintf("%x", sum[:3])[:5]
}
