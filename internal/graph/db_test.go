package graph

import (
	"testing"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpenIsIdempotent(t *testing.T) {
	dir := t.TempDir()

	db, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := db.AddBrain(&Brain{ID: "b1", Name: "main"}); err != nil {
		t.Fatalf("AddBrain: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Reopening runs migrations again; data survives.
	db, err = Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()

	if _, err := db.GetBrain("b1"); err != nil {
		t.Errorf("GetBrain after reopen: %v", err)
	}
}

func TestStatsAndClear(t *testing.T) {
	db := setupTestDB(t)

	if err := db.AddBrain(&Brain{ID: "b1", Name: "main"}); err != nil {
		t.Fatalf("AddBrain: %v", err)
	}
	if err := db.AddNeuron(&Neuron{ID: "n1", BrainID: "b1", Content: "x", Type: NeuronFact}); err != nil {
		t.Fatalf("AddNeuron: %v", err)
	}

	stats, err := db.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats["brains"] != 1 || stats["neurons"] != 1 {
		t.Errorf("stats = %v", stats)
	}

	if err := db.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	stats, err = db.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	for table, count := range stats {
		if count != 0 {
			t.Errorf("%s has %d rows after Clear", table, count)
		}
	}
}

func TestShortIDStable(t *testing.T) {
	id := NewID()
	a, b := ShortID(id), ShortID(id)
	if a != b {
		t.Errorf("ShortID not deterministic: %s vs %s", a, b)
	}
	if len(a) != 5 {
		t.Errorf("ShortID length = %d, want 5", len(a))
	}
	if ShortID(NewID()) == a {
		t.Error("different IDs produced the same short ID")
	}
}

func TestVecRoundTripHelpers(t *testing.T) {
	v := normalizeFloat32([]float32{3, 4})
	if diff := float64(v[0]) - 0.6; diff > 1e-6 || diff < -1e-6 {
		t.Errorf("normalize = %v, want unit vector", v)
	}

	// Identical unit vectors: L2 distance 0 -> cosine similarity 1.
	if sim := l2ToCosineSim(0); sim != 1.0 {
		t.Errorf("l2ToCosineSim(0) = %v, want 1", sim)
	}
	// Orthogonal unit vectors: L2 distance sqrt(2) -> similarity 0.
	if sim := l2ToCosineSim(1.4142135623730951); sim > 1e-9 || sim < -1e-9 {
		t.Errorf("l2ToCosineSim(sqrt 2) = %v, want 0", sim)
	}
	// Threshold conversion is the inverse direction.
	if d := cosineDistToL2(0.5); d-1.0 > 1e-9 || d-1.0 < -1e-9 {
		t.Errorf("cosineDistToL2(0.5) = %v, want 1", d)
	}
}
