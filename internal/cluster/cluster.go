// Package cluster implements the Cluster Builder (C5, spec.md §4.5):
// union-find over accepted edges, producing deterministic duplicate
// groups.
package cluster

import (
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/darianrose/mediadedupe/internal/config"
	"github.com/darianrose/mediadedupe/internal/types"
)

// unionFind is a disjoint-set over small dense integer indices, with
// path compression and union-by-rank: unexported fields, a
// constructor, and O(α(n)) amortized Find/Union.
type unionFind struct {
	parent []int
	rank   []int
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{parent: make([]int, n), rank: make([]int, n)}
	for i := range uf.parent {
		uf.parent[i] = i
	}
	return uf
}

func (uf *unionFind) find(x int) int {
	for uf.parent[x] != x {
		uf.parent[x] = uf.parent[uf.parent[x]]
		x = uf.parent[x]
	}
	return x
}

func (uf *unionFind) union(a, b int) {
	ra, rb := uf.find(a), uf.find(b)
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

// Build clusters edges (filtered by ignorePairs) into DuplicateGroups
// (spec.md §4.5). incomplete reports, per file_id, whether that file's
// own record was flagged incomplete (e.g. a stat failure during
// enumeration) — contaminating any group it ends up in. Truncates at
// cfg.ClusterTimeBudgetMS, returning the partition built so far with
// incomplete=true on every group touched by an edge that didn't make
// the cutoff.
func Build(edges []types.Edge, ignorePairs []types.IgnorePair, incomplete map[types.FileID]bool, cfg *config.Config, log *logrus.Logger) []types.DuplicateGroup {
	if log == nil {
		log = logrus.New()
		log.SetLevel(logrus.PanicLevel)
	}

	ignored := make(map[[2]types.FileID]bool, len(ignorePairs))
	for _, p := range ignorePairs {
		ignored[p.Key()] = true
	}

	ordered := canonicalOrder(edges)

	index := make(map[types.FileID]int)
	var ids []types.FileID
	idOf := func(id types.FileID) int {
		if i, ok := index[id]; ok {
			return i
		}
		i := len(ids)
		index[id] = i
		ids = append(ids, id)
		return i
	}
	for _, e := range ordered {
		idOf(e.A)
		idOf(e.B)
	}

	uf := newUnionFind(len(ids))
	truncatedRoots := make(map[int]bool)

	budget := time.Duration(cfg.ClusterTimeBudgetMS) * time.Millisecond
	deadline := time.Now().Add(budget)
	truncated := false
	cut := len(ordered)

	for i, e := range ordered {
		if budget > 0 && i%4096 == 0 && time.Now().After(deadline) {
			truncated = true
			cut = i
			log.WithFields(logrus.Fields{
				"processed_edges": i,
				"total_edges":     len(ordered),
			}).Warn("cluster time budget exceeded, returning partial partition")
			break
		}
		key := types.IgnorePair{A: e.A, B: e.B}.Key()
		if ignored[key] {
			continue
		}
		uf.union(idOf(e.A), idOf(e.B))
	}

	if truncated {
		for _, e := range ordered[cut:] {
			if ignored[types.IgnorePair{A: e.A, B: e.B}.Key()] {
				continue
			}
			truncatedRoots[uf.find(index[e.A])] = true
			truncatedRoots[uf.find(index[e.B])] = true
		}
	}

	membersByRoot := make(map[int][]types.FileID)
	for i, id := range ids {
		root := uf.find(i)
		membersByRoot[root] = append(membersByRoot[root], id)
	}

	var groups []types.DuplicateGroup
	for root, members := range membersByRoot {
		if len(members) < 2 {
			continue
		}
		sorted := types.NewSorted(members, func(id types.FileID) string { return id.String() })
		memberList := sorted.Items()

		g := types.DuplicateGroup{
			GroupID:    types.NewGroupID(memberList),
			Members:    memberList,
			Incomplete: truncatedRoots[root],
		}
		for _, id := range memberList {
			if incomplete[id] {
				g.Incomplete = true
			}
		}
		groups = append(groups, g)
	}

	sort.Slice(groups, func(i, j int) bool {
		if len(groups[i].Members) != len(groups[j].Members) {
			return len(groups[i].Members) > len(groups[j].Members)
		}
		return groups[i].Members[0].String() < groups[j].Members[0].String()
	})

	return groups
}

// canonicalOrder sorts edges checksum-equal first, then by ascending
// distance, then lexicographic file_id pair (spec.md §4.5) — the order
// is irrelevant to the final partition but required for reproducible
// downstream tie-breaks.
func canonicalOrder(edges []types.Edge) []types.Edge {
	ordered := make([]types.Edge, len(edges))
	copy(ordered, edges)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.ChecksumEq != b.ChecksumEq {
			return a.ChecksumEq
		}
		if a.Distance != b.Distance {
			return a.Distance < b.Distance
		}
		keyA := pairKey(a.A, a.B)
		keyB := pairKey(b.A, b.B)
		return keyA < keyB
	})
	return ordered
}

func pairKey(a, b types.FileID) string {
	if a.String() < b.String() {
		return a.String() + "|" + b.String()
	}
	return b.String() + "|" + a.String()
}
