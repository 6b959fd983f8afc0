package graph

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
)

// AddNeuron inserts a neuron, or updates its content/embedding/state on
// conflict. The version counter bumps on every write.
func (g *DB) AddNeuron(n *Neuron) error {
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
	if n.Version == 0 {
		n.Version = 1
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	if n.UpdatedAt.IsZero() {
		n.UpdatedAt = n.CreatedAt
	}

	embeddingBytes, err := json.Marshal(n.Embedding)
	if err != nil {
		embeddingBytes = nil
	}

	_, err = g.db.Exec(`
		INSERT INTO neurons (id, short_id, brain_id, content, type, state,
			superseded_by, embedding, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			content = excluded.content,
			type = excluded.type,
			state = excluded.state,
			embedding = excluded.embedding,
			version = neurons.version + 1,
			updated_at = excluded.updated_at
	`,
		n.ID, n.ShortID, n.BrainID, n.Content, string(n.Type), string(n.State),
		nullableString(n.SupersededBy), embeddingBytes, n.Version, n.CreatedAt, n.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert neuron: %w", err)
	}

	g.indexNeuronVec(n)
	return nil
}

// indexNeuronVec mirrors the neuron's embedding into the vec0 index.
// Best effort: vec failures never fail the write.
func (g *DB) indexNeuronVec(n *Neuron) {
	if !g.vecAvailable || len(n.Embedding) == 0 {
		return
	}
	if err := g.ensureVecTable(len(n.Embedding)); err != nil {
		log.Printf("[graph] vec index skipped for %s: %v", n.ShortID, err)
		return
	}

	var rowid int64
	if err := g.db.QueryRow(`SELECT rowid FROM neurons WHERE id = ?`, n.ID).Scan(&rowid); err != nil {
		return
	}

	emb32 := normalizeFloat32(float64ToFloat32(n.Embedding))
	serialized, err := sqlite_vec.SerializeFloat32(emb32)
	if err != nil {
		return
	}
	g.db.Exec(`DELETE FROM neuron_vec WHERE rowid = ?`, rowid)
	if _, err := g.db.Exec(`INSERT INTO neuron_vec(rowid, embedding, neuron_id) VALUES (?, ?, ?)`, rowid, serialized, n.ID); err != nil {
		log.Printf("[graph] vec insert failed for %s: %v", n.ShortID, err)
	}
}

// GetNeuron retrieves a neuron by ID.
func (g *DB) GetNeuron(id string) (*Neuron, error) {
	row := g.db.QueryRow(`
		SELECT id, short_id, brain_id, content, type, state,
			superseded_by, embedding, version, created_at, updated_at
		FROM neurons WHERE id = ?
	`, id)
	return scanNeuron(row)
}

// ActiveNeurons retrieves a brain's active neurons, oldest first.
// limit <= 0 means no limit.
func (g *DB) ActiveNeurons(brainID string, limit int) ([]*Neuron, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := g.db.Query(`
		SELECT id, short_id, brain_id, content, type, state,
			superseded_by, embedding, version, created_at, updated_at
		FROM neurons
		WHERE brain_id = ? AND state = 'active'
		ORDER BY created_at ASC, id ASC
		LIMIT ?
	`, brainID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query active neurons: %w", err)
	}
	defer rows.Close()

	return scanNeuronRows(rows)
}

// SupersedeNeuron transitions a neuron to superseded and records the alias
// synapse to its successor, in one transaction. The UPDATE carries the
// optimistic version check; zero rows affected means another writer won and
// the caller gets ErrStaleNeuron with nothing written.
func (g *DB) SupersedeNeuron(brainID, id string, version int, successorID string) error {
	tx, err := g.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`
		UPDATE neurons SET
			state = 'superseded',
			superseded_by = ?,
			version = version + 1,
			updated_at = ?
		WHERE id = ? AND version = ? AND state = 'active'
	`, successorID, time.Now(), id, version)
	if err != nil {
		return fmt.Errorf("failed to supersede neuron: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrStaleNeuron
	}

	_, err = tx.Exec(`
		INSERT INTO synapses (brain_id, from_id, to_id, type, weight)
		VALUES (?, ?, ?, ?, 1.0)
		ON CONFLICT(from_id, to_id, type) DO NOTHING
	`, brainID, id, successorID, string(SynapseAlias))
	if err != nil {
		return fmt.Errorf("failed to insert alias synapse: %w", err)
	}

	return tx.Commit()
}

// FindSimilarNeurons returns active neurons whose embedding cosine similarity
// with the query is >= threshold, excluding excludeID. Uses the vec0 KNN
// index when available, otherwise a Go-side scan.
func (g *DB) FindSimilarNeurons(brainID string, embedding []float64, threshold float64, excludeID string) ([]SimilarNeuron, error) {
	if len(embedding) == 0 {
		return nil, nil
	}

	if g.vecAvailable && g.vecDim == len(embedding) {
		results, err := g.findSimilarNeuronsVec(brainID, embedding, threshold, excludeID)
		if err == nil {
			return results, nil
		}
		log.Printf("[graph] vec KNN failed, falling back to scan: %v", err)
	}

	return g.findSimilarNeuronsScan(brainID, embedding, threshold, excludeID)
}

func (g *DB) findSimilarNeuronsVec(brainID string, embedding []float64, threshold float64, excludeID string) ([]SimilarNeuron, error) {
	query32 := normalizeFloat32(float64ToFloat32(embedding))
	serialized, err := sqlite_vec.SerializeFloat32(query32)
	if err != nil {
		return nil, err
	}

	// L2 on unit vectors maps monotonically to cosine similarity.
	maxDist := cosineDistToL2(1.0 - threshold)

	rows, err := g.db.Query(`
		SELECT v.neuron_id, v.distance
		FROM neuron_vec v
		JOIN neurons n ON n.id = v.neuron_id
		WHERE v.embedding MATCH ? AND k = 64
			AND n.brain_id = ? AND n.state = 'active'
	`, serialized, brainID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []SimilarNeuron
	for rows.Next() {
		var id string
		var dist float64
		if err := rows.Scan(&id, &dist); err != nil {
			continue
		}
		if id == excludeID || dist > maxDist {
			continue
		}
		results = append(results, SimilarNeuron{ID: id, Similarity: l2ToCosineSim(dist)})
	}
	return results, rows.Err()
}

func (g *DB) findSimilarNeuronsScan(brainID string, embedding []float64, threshold float64, excludeID string) ([]SimilarNeuron, error) {
	rows, err := g.db.Query(`
		SELECT id, embedding FROM neurons
		WHERE brain_id = ? AND state = 'active' AND embedding IS NOT NULL
	`, brainID)
	if err != nil {
		return nil, fmt.Errorf("failed to query neuron embeddings: %w", err)
	}
	defer rows.Close()

	var results []SimilarNeuron
	for rows.Next() {
		var id string
		var embBytes []byte
		if err := rows.Scan(&id, &embBytes); err != nil {
			continue
		}
		if id == excludeID {
			continue
		}
		var emb []float64
		if err := json.Unmarshal(embBytes, &emb); err != nil {
			continue
		}
		if sim := cosineSim(embedding, emb); sim >= threshold {
			results = append(results, SimilarNeuron{ID: id, Similarity: sim})
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Similarity > results[j].Similarity })
	return results, rows.Err()
}

// scanNeuron scans a single neuron row.
func scanNeuron(row *sql.Row) (*Neuron, error) {
	var n Neuron
	var typ, state string
	var supersededBy sql.NullString
	var embBytes []byte
	var lastUpdated sql.NullTime

	err := row.Scan(&n.ID, &n.ShortID, &n.BrainID, &n.Content, &typ, &state,
		&supersededBy, &embBytes, &n.Version, &n.CreatedAt, &lastUpdated)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan neuron: %w", err)
	}

	n.Type = NeuronType(typ)
	n.State = NeuronState(state)
	if supersededBy.Valid {
		n.SupersededBy = supersededBy.String
	}
	if lastUpdated.Valid {
		n.UpdatedAt = lastUpdated.Time
	}
	if len(embBytes) > 0 {
		json.Unmarshal(embBytes, &n.Embedding)
	}
	return &n, nil
}

// scanNeuronRows scans multiple neuron rows.
func scanNeuronRows(rows *sql.Rows) ([]*Neuron, error) {
	var neurons []*Neuron
	for rows.Next() {
		var n Neuron
		var typ, state string
		var supersededBy sql.NullString
		var embBytes []byte
		var lastUpdated sql.NullTime

		err := rows.Scan(&n.ID, &n.ShortID, &n.BrainID, &n.Content, &typ, &state,
			&supersededBy, &embBytes, &n.Version, &n.CreatedAt, &lastUpdated)
		if err != nil {
			continue
		}

		n.Type = NeuronType(typ)
		n.State = NeuronState(state)
		if supersededBy.Valid {
			n.SupersededBy = supersededBy.String
		}
		if lastUpdated.Valid {
			n.UpdatedAt = lastUpdated.Time
		}
		if len(embBytes) > 0 {
			json.Unmarshal(embBytes, &n.Embedding)
		}
		neurons = append(neurons, &n)
	}
	return neurons, rows.Err()
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
