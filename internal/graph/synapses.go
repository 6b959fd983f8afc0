package graph

import (
	"fmt"
	"time"
)

// AddSynapse inserts a directed typed edge. Duplicate (from, to, type)
// triples are ignored so re-recording a relationship is a no-op.
func (g *DB) AddSynapse(s *Synapse) error {
	if s.FromID == "" || s.ToID == "" {
		return fmt.Errorf("synapse endpoints are required")
	}
	if s.FromID == s.ToID {
		return fmt.Errorf("synapse cannot loop onto itself")
	}
	if s.Weight == 0 {
		s.Weight = 1.0
	}

	_, err := g.db.Exec(`
		INSERT INTO synapses (brain_id, from_id, to_id, type, weight)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(from_id, to_id, type) DO NOTHING
	`, s.BrainID, s.FromID, s.ToID, string(s.Type), s.Weight)
	if err != nil {
		return fmt.Errorf("failed to insert synapse: %w", err)
	}
	return nil
}

// HasSynapse reports whether an edge of the given type exists in either
// direction between the two neurons.
func (g *DB) HasSynapse(fromID, toID string, typ SynapseType) (bool, error) {
	var count int
	err := g.db.QueryRow(`
		SELECT COUNT(*) FROM synapses
		WHERE type = ? AND (
			(from_id = ? AND to_id = ?) OR (from_id = ? AND to_id = ?)
		)
	`, string(typ), fromID, toID, toID, fromID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to query synapse: %w", err)
	}
	return count > 0, nil
}

// NeuronSynapses returns all edges touching the neuron, newest first.
func (g *DB) NeuronSynapses(neuronID string) ([]*Synapse, error) {
	rows, err := g.db.Query(`
		SELECT id, brain_id, from_id, to_id, type, weight, created_at
		FROM synapses
		WHERE from_id = ? OR to_id = ?
		ORDER BY created_at DESC, id DESC
	`, neuronID, neuronID)
	if err != nil {
		return nil, fmt.Errorf("failed to query synapses: %w", err)
	}
	defer rows.Close()

	var synapses []*Synapse
	for rows.Next() {
		var s Synapse
		var typ string
		var created time.Time
		if err := rows.Scan(&s.ID, &s.BrainID, &s.FromID, &s.ToID, &typ, &s.Weight, &created); err != nil {
			continue
		}
		s.Type = SynapseType(typ)
		s.CreatedAt = created
		synapses = append(synapses, &s)
	}
	return synapses, rows.Err()
}
