package cluster

// Tests for the disjoint-set primitive.
// Covers: singleton init, transitive unions, find idempotence, partition completeness.

import "testing"

func TestNewSingletons(t *testing.T) {
	uf := New(5)

	groups := uf.Groups()
	if len(groups) != 5 {
		t.Fatalf("Expected 5 singleton groups, got %d", len(groups))
	}
	for rep, members := range groups {
		if len(members) != 1 || members[0] != rep {
			t.Errorf("Expected singleton {%d}, got %v", rep, members)
		}
	}
}

func TestUnionTransitive(t *testing.T) {
	uf := New(6)

	uf.Union(0, 1)
	uf.Union(1, 2)
	uf.Union(4, 5)

	if !uf.Connected(0, 2) {
		t.Error("0 and 2 should be connected transitively through 1")
	}
	if uf.Connected(0, 4) {
		t.Error("0 and 4 should not be connected")
	}

	groups := uf.Groups()
	if len(groups) != 3 {
		t.Fatalf("Expected 3 groups {0,1,2} {3} {4,5}, got %d: %v", len(groups), groups)
	}
}

func TestUnionIdempotent(t *testing.T) {
	uf := New(3)

	uf.Union(0, 1)
	uf.Union(0, 1)
	uf.Union(1, 0)

	groups := uf.Groups()
	if len(groups) != 2 {
		t.Fatalf("Repeated unions should not change the partition, got %d groups", len(groups))
	}
}

func TestFindIdempotent(t *testing.T) {
	uf := New(10)
	for i := 1; i < 10; i++ {
		uf.Union(0, i)
	}

	for i := 0; i < 10; i++ {
		root := uf.Find(i)
		if uf.Find(root) != root {
			t.Errorf("Find(Find(%d)) = %d, want %d", i, uf.Find(root), root)
		}
	}
}

func TestGroupsPartition(t *testing.T) {
	uf := New(20)
	uf.Union(1, 3)
	uf.Union(3, 5)
	uf.Union(2, 4)
	uf.Union(10, 11)
	uf.Union(11, 12)
	uf.Union(12, 10)

	seen := make(map[int]bool)
	for _, members := range uf.Groups() {
		for _, m := range members {
			if seen[m] {
				t.Fatalf("Index %d appears in more than one group", m)
			}
			seen[m] = true
		}
	}
	if len(seen) != 20 {
		t.Fatalf("Partition covers %d indices, want 20", len(seen))
	}
}

func TestGroupsSortedMembers(t *testing.T) {
	uf := New(5)
	uf.Union(4, 0)
	uf.Union(2, 4)

	for _, members := range uf.Groups() {
		for i := 1; i < len(members); i++ {
			if members[i-1] >= members[i] {
				t.Fatalf("Group members not sorted: %v", members)
			}
		}
	}
}
