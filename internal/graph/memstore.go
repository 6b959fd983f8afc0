package graph

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemStore is an in-memory Store for tests and embedded use. Same contract
// as the SQLite backend, including the optimistic check on SupersedeNeuron.
type MemStore struct {
	mu        sync.RWMutex
	brains    map[string]*Brain
	neurons   map[string]*Neuron
	synapses  []*Synapse
	fibers    map[string]*Fiber
	schedules map[string]*ReviewSchedule // key: fiberID + "/" + brainID
	nextEdge  int64
}

var _ Store = (*MemStore)(nil)

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		brains:    make(map[string]*Brain),
		neurons:   make(map[string]*Neuron),
		fibers:    make(map[string]*Fiber),
		schedules: make(map[string]*ReviewSchedule),
	}
}

func scheduleKey(fiberID, brainID string) string {
	return fiberID + "/" + brainID
}

// AddBrain creates a new brain.
func (m *MemStore) AddBrain(b *Brain) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if b.ID == "" {
		return fmt.Errorf("brain ID is required")
	}
	if _, ok := m.brains[b.ID]; ok {
		return fmt.Errorf("brain %s already exists", b.ID)
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now()
	}
	cp := *b
	m.brains[b.ID] = &cp
	return nil
}

// GetBrain retrieves a brain by ID.
func (m *MemStore) GetBrain(id string) (*Brain, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.brains[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *b
	return &cp, nil
}

// ReplaceBrainConfig swaps the brain's configuration wholesale.
func (m *MemStore) ReplaceBrainConfig(id string, cfg BrainConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.brains[id]
	if !ok {
		return ErrNotFound
	}
	b.Config = cfg
	return nil
}

// AddNeuron inserts or updates a neuron, bumping version on update.
func (m *MemStore) AddNeuron(n *Neuron) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if n.ID == "" {
		return fmt.Errorf("neuron ID is required")
	}
	if n.BrainID == "" {
		return fmt.Errorf("neuron brain ID is required")
	}
	if n.ShortID == "" {
		n.ShortID = ShortID(n.ID)
	}
	if n.State == "" {
		n.State = StateActive
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	if n.UpdatedAt.IsZero() {
		n.UpdatedAt = n.CreatedAt
	}

	if existing, ok := m.neurons[n.ID]; ok {
		cp := *n
		cp.Version = existing.Version + 1
		cp.CreatedAt = existing.CreatedAt
		m.neurons[n.ID] = &cp
		return nil
	}

	cp := *n
	if cp.Version == 0 {
		cp.Version = 1
	}
	m.neurons[n.ID] = &cp
	return nil
}

// GetNeuron retrieves a neuron by ID.
func (m *MemStore) GetNeuron(id string) (*Neuron, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n, ok := m.neurons[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *n
	return &cp, nil
}

// ActiveNeurons retrieves a brain's active neurons, oldest first.
func (m *MemStore) ActiveNeurons(brainID string, limit int) ([]*Neuron, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Neuron
	for _, n := range m.neurons {
		if n.BrainID == brainID && n.State == StateActive {
			cp := *n
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// SupersedeNeuron applies the supersede transition atomically under the
// store lock, with the same optimistic version check as the SQLite backend.
func (m *MemStore) SupersedeNeuron(brainID, id string, version int, successorID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, ok := m.neurons[id]
	if !ok {
		return ErrNotFound
	}
	if n.Version != version || n.State != StateActive {
		return ErrStaleNeuron
	}

	n.State = StateSuperseded
	n.SupersededBy = successorID
	n.Version++
	n.UpdatedAt = time.Now()

	m.addSynapseLocked(&Synapse{
		BrainID: brainID,
		FromID:  id,
		ToID:    successorID,
		Type:    SynapseAlias,
		Weight:  1.0,
	})
	return nil
}

// AddSynapse inserts an edge; duplicate (from, to, type) triples are ignored.
func (m *MemStore) AddSynapse(s *Synapse) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s.FromID == "" || s.ToID == "" {
		return fmt.Errorf("synapse endpoints are required")
	}
	if s.FromID == s.ToID {
		return fmt.Errorf("synapse cannot loop onto itself")
	}
	m.addSynapseLocked(s)
	return nil
}

func (m *MemStore) addSynapseLocked(s *Synapse) {
	for _, existing := range m.synapses {
		if existing.FromID == s.FromID && existing.ToID == s.ToID && existing.Type == s.Type {
			return
		}
	}
	m.nextEdge++
	cp := *s
	cp.ID = m.nextEdge
	if cp.Weight == 0 {
		cp.Weight = 1.0
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	m.synapses = append(m.synapses, &cp)
}

// HasSynapse reports whether an edge of the given type exists in either
// direction between the two neurons.
func (m *MemStore) HasSynapse(fromID, toID string, typ SynapseType) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, s := range m.synapses {
		if s.Type != typ {
			continue
		}
		if (s.FromID == fromID && s.ToID == toID) || (s.FromID == toID && s.ToID == fromID) {
			return true, nil
		}
	}
	return false, nil
}

// NeuronSynapses returns all edges touching the neuron, newest first.
func (m *MemStore) NeuronSynapses(neuronID string) ([]*Synapse, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Synapse
	for _, s := range m.synapses {
		if s.FromID == neuronID || s.ToID == neuronID {
			cp := *s
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID > result[j].ID })
	return result, nil
}

// AddFiber creates a fiber.
func (m *MemStore) AddFiber(f *Fiber) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if f.ID == "" {
		return fmt.Errorf("fiber ID is required")
	}
	if f.BrainID == "" {
		return fmt.Errorf("fiber brain ID is required")
	}
	if _, ok := m.fibers[f.ID]; ok {
		return fmt.Errorf("fiber %s already exists", f.ID)
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now()
	}
	cp := *f
	cp.NeuronIDs = append([]string(nil), f.NeuronIDs...)
	m.fibers[f.ID] = &cp
	return nil
}

// GetFiber retrieves a fiber by ID.
func (m *MemStore) GetFiber(id string) (*Fiber, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	f, ok := m.fibers[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *f
	cp.NeuronIDs = append([]string(nil), f.NeuronIDs...)
	return &cp, nil
}

// AppendToFiber appends a neuron at the end of a fiber's ordering.
func (m *MemStore) AppendToFiber(fiberID, neuronID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, ok := m.fibers[fiberID]
	if !ok {
		return ErrNotFound
	}
	for _, id := range f.NeuronIDs {
		if id == neuronID {
			return nil
		}
	}
	f.NeuronIDs = append(f.NeuronIDs, neuronID)
	return nil
}

// FiberNeurons returns the fiber's neurons in membership order.
func (m *MemStore) FiberNeurons(fiberID string) ([]*Neuron, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	f, ok := m.fibers[fiberID]
	if !ok {
		return nil, ErrNotFound
	}
	var result []*Neuron
	for _, id := range f.NeuronIDs {
		if n, ok := m.neurons[id]; ok {
			cp := *n
			result = append(result, &cp)
		}
	}
	return result, nil
}

// PutSchedule inserts or replaces the schedule for (fiber, brain).
func (m *MemStore) PutSchedule(s *ReviewSchedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s.FiberID == "" || s.BrainID == "" {
		return fmt.Errorf("schedule fiber and brain IDs are required")
	}
	if s.Box < 1 || s.Box > 5 {
		return fmt.Errorf("schedule box %d out of range [1,5]", s.Box)
	}
	if s.NextReview.IsZero() {
		return fmt.Errorf("schedule next_review is required")
	}
	cp := *s
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	m.schedules[scheduleKey(s.FiberID, s.BrainID)] = &cp
	return nil
}

// GetSchedule retrieves the schedule for (fiber, brain).
func (m *MemStore) GetSchedule(fiberID, brainID string) (*ReviewSchedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.schedules[scheduleKey(fiberID, brainID)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s
	return &cp, nil
}

// DueSchedules returns the brain's schedules due at or before now.
func (m *MemStore) DueSchedules(brainID string, now time.Time) ([]*ReviewSchedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*ReviewSchedule
	for _, s := range m.schedules {
		if s.BrainID == brainID && s.IsDue(now) {
			cp := *s
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].NextReview.Before(result[j].NextReview) })
	return result, nil
}

// DeleteSchedule removes the schedule for (fiber, brain).
func (m *MemStore) DeleteSchedule(fiberID, brainID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.schedules, scheduleKey(fiberID, brainID))
	return nil
}

// FindSimilarNeurons scans active neurons for cosine similarity >= threshold.
func (m *MemStore) FindSimilarNeurons(brainID string, embedding []float64, threshold float64, excludeID string) ([]SimilarNeuron, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(embedding) == 0 {
		return nil, nil
	}

	var result []SimilarNeuron
	for _, n := range m.neurons {
		if n.BrainID != brainID || n.State != StateActive || n.ID == excludeID {
			continue
		}
		if sim := cosineSim(embedding, n.Embedding); sim >= threshold {
			result = append(result, SimilarNeuron{ID: n.ID, Similarity: sim})
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Similarity > result[j].Similarity })
	return result, nil
}

// Stats returns entity counts.
func (m *MemStore) Stats() (map[string]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]int{
		"brains":           len(m.brains),
		"neurons":          len(m.neurons),
		"synapses":         len(m.synapses),
		"fibers":           len(m.fibers),
		"review_schedules": len(m.schedules),
	}, nil
}

// Close is a no-op for the in-memory store.
func (m *MemStore) Close() error {
	return nil
}
