// Package cluster provides a disjoint-set structure for grouping items
// transitively connected by pairwise similarity signals.
package cluster

import "sort"

// UnionFind tracks a partition of the indices 0..n-1. Each index starts in
// its own singleton set; Union merges sets. Find uses path halving so
// repeated lookups amortize to near-constant time.
type UnionFind struct {
	parent []int
	rank   []int
}

// New creates a UnionFind over n elements, each its own set.
func New(n int) *UnionFind {
	uf := &UnionFind{
		parent: make([]int, n),
		rank:   make([]int, n),
	}
	for i := range uf.parent {
		uf.parent[i] = i
	}
	return uf
}

// Len returns the number of elements.
func (uf *UnionFind) Len() int {
	return len(uf.parent)
}

// Find returns the canonical representative of the set containing x.
func (uf *UnionFind) Find(x int) int {
	for uf.parent[x] != x {
		// Path halving: point x at its grandparent while walking up.
		uf.parent[x] = uf.parent[uf.parent[x]]
		x = uf.parent[x]
	}
	return x
}

// Union merges the sets containing a and b. No-op if already merged.
// Callers must not depend on which representative survives.
func (uf *UnionFind) Union(a, b int) {
	ra, rb := uf.Find(a), uf.Find(b)
	if ra == rb {
		return
	}
	if uf.rank[ra] < uf.rank[rb] {
		ra, rb = rb, ra
	}
	uf.parent[rb] = ra
	if uf.rank[ra] == uf.rank[rb] {
		uf.rank[ra]++
	}
}

// Connected reports whether a and b are in the same set.
func (uf *UnionFind) Connected(a, b int) bool {
	return uf.Find(a) == uf.Find(b)
}

// Groups returns the partition as representative -> sorted member indices.
// Every index appears in exactly one group.
func (uf *UnionFind) Groups() map[int][]int {
	groups := make(map[int][]int)
	for i := range uf.parent {
		root := uf.Find(i)
		groups[root] = append(groups[root], i)
	}
	for _, members := range groups {
		sort.Ints(members)
	}
	return groups
}
