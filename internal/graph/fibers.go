package graph

import (
	"database/sql"
	"fmt"
	"time"
)

// AddFiber creates a fiber and its initial ordered membership.
func (g *DB) AddFiber(f *Fiber) error {
	if f.ID == "" {
		return fmt.Errorf("fiber ID is required")
	}
	if f.BrainID == "" {
		return fmt.Errorf("fiber brain ID is required")
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now()
	}

	tx, err := g.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO fibers (id, brain_id, name, created_at) VALUES (?, ?, ?, ?)
	`, f.ID, f.BrainID, f.Name, f.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert fiber: %w", err)
	}

	for i, neuronID := range f.NeuronIDs {
		_, err = tx.Exec(`
			INSERT INTO fiber_members (fiber_id, neuron_id, position) VALUES (?, ?, ?)
		`, f.ID, neuronID, i)
		if err != nil {
			return fmt.Errorf("failed to insert fiber member: %w", err)
		}
	}

	return tx.Commit()
}

// GetFiber retrieves a fiber with its membership in order.
func (g *DB) GetFiber(id string) (*Fiber, error) {
	var f Fiber
	err := g.db.QueryRow(`
		SELECT id, brain_id, name, created_at FROM fibers WHERE id = ?
	`, id).Scan(&f.ID, &f.BrainID, &f.Name, &f.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query fiber: %w", err)
	}

	rows, err := g.db.Query(`
		SELECT neuron_id FROM fiber_members WHERE fiber_id = ? ORDER BY position ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query fiber members: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var neuronID string
		if err := rows.Scan(&neuronID); err == nil {
			f.NeuronIDs = append(f.NeuronIDs, neuronID)
		}
	}
	return &f, rows.Err()
}

// AppendToFiber appends a neuron at the end of a fiber's ordering.
// Already-present neurons keep their position.
func (g *DB) AppendToFiber(fiberID, neuronID string) error {
	_, err := g.db.Exec(`
		INSERT INTO fiber_members (fiber_id, neuron_id, position)
		VALUES (?, ?, (SELECT COALESCE(MAX(position), -1) + 1 FROM fiber_members WHERE fiber_id = ?))
		ON CONFLICT(fiber_id, neuron_id) DO NOTHING
	`, fiberID, neuronID, fiberID)
	if err != nil {
		return fmt.Errorf("failed to append to fiber: %w", err)
	}
	return nil
}

// FiberNeurons returns the fiber's neurons in membership order.
func (g *DB) FiberNeurons(fiberID string) ([]*Neuron, error) {
	rows, err := g.db.Query(`
		SELECT n.id, n.short_id, n.brain_id, n.content, n.type, n.state,
			n.superseded_by, n.embedding, n.version, n.created_at, n.updated_at
		FROM neurons n
		JOIN fiber_members fm ON fm.neuron_id = n.id
		WHERE fm.fiber_id = ?
		ORDER BY fm.position ASC
	`, fiberID)
	if err != nil {
		return nil, fmt.Errorf("failed to query fiber neurons: %w", err)
	}
	defer rows.Close()

	return scanNeuronRows(rows)
}
