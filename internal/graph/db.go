package graph

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
)

func init() {
	sqlite_vec.Auto() // registers the vec0 virtual table with go-sqlite3
}

// DB wraps the SQLite database connection for the memory graph.
type DB struct {
	db           *sql.DB
	path         string
	vecAvailable bool
	vecDim       int // embedding dimension used in neuron_vec (0 = not yet determined)
}

var _ Store = (*DB)(nil)

// Open opens or creates the memory graph database under statePath.
func Open(statePath string) (*DB, error) {
	dbPath := filepath.Join(statePath, "system", "brain.db")

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	g := &DB{db: db, path: dbPath}

	if err := g.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	var vecVersion string
	if err := db.QueryRow("SELECT vec_version()").Scan(&vecVersion); err != nil {
		log.Printf("[graph] sqlite-vec not available: %v — falling back to full scan", err)
	} else {
		log.Printf("[graph] sqlite-vec %s loaded", vecVersion)
		g.vecAvailable = true
		if g.vecDim == 0 {
			if err := g.initVecTableFromNeurons(); err != nil {
				log.Printf("[graph] vec init warning: %v", err)
			}
		}
	}

	return g, nil
}

// Close closes the database connection.
func (g *DB) Close() error {
	return g.db.Close()
}

// migrate creates the base schema and applies incremental migrations.
func (g *DB) migrate() error {
	schema := `
	-- Schema version tracking
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Brains: top-level containers with wholesale-replaced config
	CREATE TABLE IF NOT EXISTS brains (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		config TEXT NOT NULL DEFAULT '{}',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Neurons: atomic memory units, never deleted
	CREATE TABLE IF NOT EXISTS neurons (
		id TEXT PRIMARY KEY,
		short_id TEXT DEFAULT '',
		brain_id TEXT NOT NULL,
		content TEXT NOT NULL,
		type TEXT NOT NULL,
		state TEXT NOT NULL DEFAULT 'active',
		superseded_by TEXT,
		embedding BLOB,
		version INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (brain_id) REFERENCES brains(id),
		FOREIGN KEY (superseded_by) REFERENCES neurons(id)
	);

	CREATE INDEX IF NOT EXISTS idx_neurons_brain ON neurons(brain_id);
	CREATE INDEX IF NOT EXISTS idx_neurons_state ON neurons(brain_id, state);
	CREATE INDEX IF NOT EXISTS idx_neurons_short_id ON neurons(short_id);

	-- Synapses: directed typed edges between neurons
	CREATE TABLE IF NOT EXISTS synapses (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		brain_id TEXT NOT NULL,
		from_id TEXT NOT NULL,
		to_id TEXT NOT NULL,
		type TEXT NOT NULL,
		weight REAL DEFAULT 1.0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (brain_id) REFERENCES brains(id),
		FOREIGN KEY (from_id) REFERENCES neurons(id),
		FOREIGN KEY (to_id) REFERENCES neurons(id),
		UNIQUE(from_id, to_id, type)
	);

	CREATE INDEX IF NOT EXISTS idx_synapses_from ON synapses(from_id);
	CREATE INDEX IF NOT EXISTS idx_synapses_to ON synapses(to_id);
	CREATE INDEX IF NOT EXISTS idx_synapses_type ON synapses(type);

	-- Fibers: ordered threads of neuron references
	CREATE TABLE IF NOT EXISTS fibers (
		id TEXT PRIMARY KEY,
		brain_id TEXT NOT NULL,
		name TEXT DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (brain_id) REFERENCES brains(id)
	);

	CREATE TABLE IF NOT EXISTS fiber_members (
		fiber_id TEXT NOT NULL,
		neuron_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		PRIMARY KEY (fiber_id, neuron_id),
		FOREIGN KEY (fiber_id) REFERENCES fibers(id) ON DELETE CASCADE,
		FOREIGN KEY (neuron_id) REFERENCES neurons(id)
	);

	CREATE INDEX IF NOT EXISTS idx_fiber_members_fiber ON fiber_members(fiber_id, position);

	-- Review schedules: one per (fiber, brain)
	CREATE TABLE IF NOT EXISTS review_schedules (
		fiber_id TEXT NOT NULL,
		brain_id TEXT NOT NULL,
		box INTEGER NOT NULL DEFAULT 1,
		next_review DATETIME NOT NULL,
		last_reviewed DATETIME,
		review_count INTEGER NOT NULL DEFAULT 0,
		streak INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (fiber_id, brain_id),
		FOREIGN KEY (fiber_id) REFERENCES fibers(id),
		FOREIGN KEY (brain_id) REFERENCES brains(id)
	);

	CREATE INDEX IF NOT EXISTS idx_schedules_due ON review_schedules(brain_id, next_review);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`

	if _, err := g.db.Exec(schema); err != nil {
		return err
	}

	return g.runMigrations()
}

// runMigrations applies incremental schema changes.
func (g *DB) runMigrations() error {
	var version int
	err := g.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version)
	if err != nil {
		version = 1
	}

	// Migration v2: sqlite-vec ANN index over neuron embeddings.
	// Creates a vec0 virtual table for fast cosine KNN, replacing the O(n)
	// Go-side scan in FindSimilarNeurons. Skipped gracefully if the extension
	// isn't compiled in or no embeddings exist yet; dimension is detected
	// from stored neurons.
	if version < 2 {
		if err := g.initVecTableFromNeurons(); err != nil {
			log.Printf("[graph] migration v2 warning: %v — vec index deferred to first AddNeuron", err)
		}
		g.db.Exec("INSERT INTO schema_version (version) VALUES (2)")
	}

	// Migration v3: backfill short_id for neurons missing it.
	if version < 3 {
		rows, err := g.db.Query("SELECT id FROM neurons WHERE short_id IS NULL OR short_id = ''")
		if err == nil {
			var ids []string
			for rows.Next() {
				var id string
				if rows.Scan(&id) == nil {
					ids = append(ids, id)
				}
			}
			rows.Close()

			for _, id := range ids {
				g.db.Exec("UPDATE neurons SET short_id = ? WHERE id = ?", ShortID(id), id)
			}
			if len(ids) > 0 {
				log.Printf("[graph] Backfilled short_id for %d neurons", len(ids))
			}
		}
		g.db.Exec("INSERT INTO schema_version (version) VALUES (3)")
	}

	return nil
}

// initVecTableFromNeurons reads the embedding dimension from stored neurons,
// creates the neuron_vec virtual table with that dimension, and backfills.
// No-ops if no neurons with embeddings exist yet.
func (g *DB) initVecTableFromNeurons() error {
	var embBytes []byte
	err := g.db.QueryRow(`SELECT embedding FROM neurons WHERE embedding IS NOT NULL AND LENGTH(embedding) > 4 LIMIT 1`).Scan(&embBytes)
	if err != nil {
		return nil // no embeddings yet; defer to first AddNeuron
	}
	var emb64 []float64
	if err := json.Unmarshal(embBytes, &emb64); err != nil || len(emb64) == 0 {
		return nil
	}
	return g.ensureVecTable(len(emb64))
}

// ensureVecTable creates the neuron_vec virtual table for the given embedding
// dimension (if not yet created) and backfills existing neurons. Idempotent
// for the same dim.
//
// Schema uses integer rowid (from the neurons table) + auxiliary +neuron_id
// column, avoiding vec0's TEXT PRIMARY KEY partitioning behaviour which
// breaks KNN queries.
func (g *DB) ensureVecTable(dim int) error {
	if g.vecDim == dim {
		return nil
	}
	if g.vecDim != 0 && g.vecDim != dim {
		return fmt.Errorf("embedding dim %d doesn't match vec table dim %d", dim, g.vecDim)
	}

	_, err := g.db.Exec(fmt.Sprintf(`
		CREATE VIRTUAL TABLE IF NOT EXISTS neuron_vec USING vec0(
			embedding float[%d],
			+neuron_id TEXT
		)
	`, dim))
	if err != nil {
		return fmt.Errorf("failed to create neuron_vec(float[%d]): %w", dim, err)
	}
	g.vecDim = dim

	rows, err := g.db.Query(`SELECT rowid, id, embedding FROM neurons WHERE embedding IS NOT NULL`)
	if err != nil {
		return nil // backfill failure is non-fatal
	}
	defer rows.Close()

	tx, err := g.db.Begin()
	if err != nil {
		return nil
	}

	var count int
	for rows.Next() {
		var rowid int64
		var id string
		var emb []byte
		if err := rows.Scan(&rowid, &id, &emb); err != nil {
			continue
		}
		var emb64 []float64
		if err := json.Unmarshal(emb, &emb64); err != nil || len(emb64) != dim {
			continue
		}
		emb32 := normalizeFloat32(float64ToFloat32(emb64)) // normalize for cosine-compatible L2
		serialized, serErr := sqlite_vec.SerializeFloat32(emb32)
		if serErr != nil {
			continue
		}
		// vec0 does not reliably support INSERT OR REPLACE; use DELETE + INSERT.
		tx.Exec(`DELETE FROM neuron_vec WHERE rowid = ?`, rowid)
		if _, err := tx.Exec(`INSERT INTO neuron_vec(rowid, embedding, neuron_id) VALUES (?, ?, ?)`, rowid, serialized, id); err != nil {
			log.Printf("[graph] vec backfill failed for %s: %v", id, err)
			continue
		}
		count++
	}
	if err := tx.Commit(); err != nil {
		return nil
	}
	if count > 0 {
		log.Printf("[graph] vec backfill: indexed %d neurons (dim=%d)", count, dim)
	}
	return nil
}

// float64ToFloat32 converts a float64 slice to float32.
func float64ToFloat32(in []float64) []float32 {
	out := make([]float32, len(in))
	for i, v := range in {
		out[i] = float32(v)
	}
	return out
}

// normalizeFloat32 returns a unit-length copy of the vector.
// Normalizing before storing in vec0 makes L2 distance equivalent to cosine:
//   cosine_dist = L2_dist² / 2   (for unit vectors)
func normalizeFloat32(v []float32) []float32 {
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		return v
	}
	norm = math.Sqrt(norm)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

// cosineDistToL2 converts a cosine distance threshold to an L2 distance
// threshold for unit-normalized vectors.
func cosineDistToL2(cosineDist float64) float64 {
	return math.Sqrt(2.0 * cosineDist)
}

// l2ToCosineSim converts an L2 distance (on normalized vectors) to cosine
// similarity: cosine_sim = 1 - L2²/2
func l2ToCosineSim(l2dist float64) float64 {
	return 1.0 - (l2dist*l2dist)/2.0
}

// cosineSim computes cosine similarity between two embeddings.
func cosineSim(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Stats returns row counts per table.
func (g *DB) Stats() (map[string]int, error) {
	stats := make(map[string]int)

	tables := []string{"brains", "neurons", "synapses", "fibers", "fiber_members", "review_schedules"}
	for _, table := range tables {
		var count int
		err := g.db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&count)
		if err != nil {
			return nil, err
		}
		stats[table] = count
	}

	return stats, nil
}

// Clear removes all data (for testing/reset).
func (g *DB) Clear() error {
	tables := []string{
		"review_schedules", "fiber_members", "fibers",
		"synapses", "neurons", "brains",
	}

	for _, table := range tables {
		if _, err := g.db.Exec(fmt.Sprintf("DELETE FROM %s", table)); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	return nil
}
