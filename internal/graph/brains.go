package graph

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// AddBrain creates a new brain.
func (g *DB) AddBrain(b *Brain) error {
	if b.ID == "" {
		return fmt.Errorf("brain ID is required")
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now()
	}

	cfg, err := json.Marshal(b.Config)
	if err != nil {
		return fmt.Errorf("failed to marshal brain config: %w", err)
	}

	_, err = g.db.Exec(`
		INSERT INTO brains (id, name, config, created_at) VALUES (?, ?, ?, ?)
	`, b.ID, b.Name, string(cfg), b.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert brain: %w", err)
	}
	return nil
}

// GetBrain retrieves a brain by ID.
func (g *DB) GetBrain(id string) (*Brain, error) {
	var b Brain
	var cfg string
	err := g.db.QueryRow(`
		SELECT id, name, config, created_at FROM brains WHERE id = ?
	`, id).Scan(&b.ID, &b.Name, &cfg, &b.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query brain: %w", err)
	}

	if err := json.Unmarshal([]byte(cfg), &b.Config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal brain config: %w", err)
	}
	return &b, nil
}

// ReplaceBrainConfig swaps the brain's configuration wholesale.
func (g *DB) ReplaceBrainConfig(id string, cfg BrainConfig) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal brain config: %w", err)
	}

	res, err := g.db.Exec(`UPDATE brains SET config = ? WHERE id = ?`, string(data), id)
	if err != nil {
		return fmt.Errorf("failed to update brain config: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
