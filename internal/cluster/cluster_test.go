package cluster

import (
	"testing"

	"github.com/google/uuid"

	"github.com/darianrose/mediadedupe/internal/config"
	"github.com/darianrose/mediadedupe/internal/types"
)

func TestBuildTransitiveClosure(t *testing.T) {
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	edges := []types.Edge{
		{A: a, B: b, ChecksumEq: true},
		{A: b, B: c, ChecksumEq: true},
	}
	groups := Build(edges, nil, nil, config.Default(), nil)
	if len(groups) != 1 {
		t.Fatalf("groups = %d, want 1", len(groups))
	}
	if len(groups[0].Members) != 3 {
		t.Errorf("members = %d, want 3 (a-b-c transitively joined)", len(groups[0].Members))
	}
}

func TestBuildIgnorePairSplitsGroup(t *testing.T) {
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	edges := []types.Edge{
		{A: a, B: b, ChecksumEq: true},
		{A: b, B: c, ChecksumEq: true},
	}
	ignore := []types.IgnorePair{{A: b, B: c}}
	groups := Build(edges, ignore, nil, config.Default(), nil)

	total := 0
	for _, g := range groups {
		total += len(g.Members)
	}
	// a-b still merge (that edge is not ignored); b-c does not, so
	// either one group of 2 survives and c is dropped as a singleton,
	// or (if c also routes elsewhere) the counts below will catch a
	// wrong transitive join through the ignored edge.
	for _, g := range groups {
		for _, m := range g.Members {
			if m == c {
				t.Errorf("c must not be grouped with a/b once b-c is ignored, group=%v", g.Members)
			}
		}
	}
}

func TestBuildIsDeterministicGroupID(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	edges := []types.Edge{{A: a, B: b, ChecksumEq: true}}

	g1 := Build(edges, nil, nil, config.Default(), nil)
	g2 := Build(edges, nil, nil, config.Default(), nil)
	if len(g1) != 1 || len(g2) != 1 {
		t.Fatalf("expected exactly one group from each run")
	}
	if g1[0].GroupID != g2[0].GroupID {
		t.Errorf("GroupID not deterministic across identical runs: %v != %v", g1[0].GroupID, g2[0].GroupID)
	}
}

func TestBuildSingletonsAreDropped(t *testing.T) {
	a := uuid.New()
	edges := []types.Edge{{A: a, B: a}} // self-edge, degenerate
	groups := Build(edges, nil, nil, config.Default(), nil)
	for _, g := range groups {
		if len(g.Members) < 2 {
			t.Errorf("group with fewer than 2 members should have been dropped: %v", g.Members)
		}
	}
}

func TestBuildPropagatesIncompleteFlag(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	edges := []types.Edge{{A: a, B: b, ChecksumEq: true}}
	incomplete := map[types.FileID]bool{a: true}

	groups := Build(edges, nil, incomplete, config.Default(), nil)
	if len(groups) != 1 || !groups[0].Incomplete {
		t.Errorf("group containing an incomplete member must itself be flagged incomplete")
	}
}

func TestBuildOrdersLargestGroupsFirst(t *testing.T) {
	a, b, c, d, e := uuid.New(), uuid.New(), uuid.New(), uuid.New(), uuid.New()
	edges := []types.Edge{
		{A: a, B: b, ChecksumEq: true},
		{A: c, B: d, ChecksumEq: true},
		{A: d, B: e, ChecksumEq: true},
	}
	groups := Build(edges, nil, nil, config.Default(), nil)
	if len(groups) != 2 {
		t.Fatalf("groups = %d, want 2", len(groups))
	}
	if len(groups[0].Members) < len(groups[1].Members) {
		t.Errorf("groups must be ordered largest-first: %d before %d", len(groups[0].Members), len(groups[1].Members))
	}
}
