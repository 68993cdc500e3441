package buckets

import (
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/darianrose/mediadedupe/internal/config"
	"github.com/darianrose/mediadedupe/internal/types"
)

// bktreeProbeSize is how many items the budget projection samples
// before committing to build-vs-fallback, the way a quick sample run
// estimates a larger job's cost without paying for the whole thing.
const bktreeProbeSize = 64

// photoBuckets groups photos by perceptual-hash proximity (spec.md
// §4.3). Resolves the §9 Open Question on BK-tree-vs-linear-scan: a
// small probe insert projects the full build cost; if the projection
// exceeds cfg.BKTreeBuildBudgetMS, every remaining photo is matched by
// linear Hamming scan instead of tree insertion.
func photoBuckets(records []*types.FileRecord, cfg *config.Config, log *logrus.Logger) ([]types.Pair, int) {
	photos := make([]*types.FileRecord, 0, len(records))
	for _, r := range records {
		if r.Kind == types.KindPhoto && r.Signature != nil && r.Signature.HasPHash {
			photos = append(photos, r)
		}
	}
	if len(photos) < 2 {
		return nil, 0
	}
	sort.Slice(photos, func(i, j int) bool { return photos[i].FileID.String() < photos[j].FileID.String() })

	useTree := projectBuildWithinBudget(photos, cfg.BKTreeBuildBudgetMS, log)

	neighbors := make(map[int][]int, len(photos)) // index -> neighbor indices (i < j only)

	if useTree {
		tree := newBKTree()
		for i, p := range photos {
			for _, j := range tree.query(p.Signature.PHash, cfg.PHashRadius) {
				neighbors[j] = append(neighbors[j], i)
			}
			tree.insert(p.Signature.PHash, i)
		}
	} else {
		for i := 0; i < len(photos); i++ {
			for j := i + 1; j < len(photos); j++ {
				if hamming64(photos[i].Signature.PHash, photos[j].Signature.PHash) <= cfg.PHashRadius {
					neighbors[i] = append(neighbors[i], j)
				}
			}
		}
	}

	var pairs []types.Pair
	var dropped int
	for i, js := range neighbors {
		members := make([]*types.FileRecord, 0, len(js)+1)
		members = append(members, photos[i])
		for _, j := range js {
			members = append(members, photos[j])
		}
		subBuckets, d := capMembers(members, cfg.BucketCap, "photo_phash", log)
		dropped += d
		anchor := photos[i].FileID
		for _, sub := range subBuckets {
			anchorPresent := false
			for _, m := range sub {
				if m.FileID == anchor {
					anchorPresent = true
					break
				}
			}
			if !anchorPresent {
				continue
			}
			for _, m := range sub {
				if m.FileID == anchor {
					continue
				}
				pairs = append(pairs, types.Pair{A: anchor, B: m.FileID, Kind: types.KindPhoto})
			}
		}
	}
	return pairs, dropped
}

// projectBuildWithinBudget times a small sample of BK-tree inserts and
// extrapolates linearly to the full set, returning false (use linear
// scan fallback) when the projection exceeds budgetMS.
func projectBuildWithinBudget(photos []*types.FileRecord, budgetMS int, log *logrus.Logger) bool {
	if budgetMS <= 0 || len(photos) <= bktreeProbeSize {
		return true
	}

	probe := newBKTree()
	start := time.Now()
	for i := 0; i < bktreeProbeSize; i++ {
		probe.insert(photos[i].Signature.PHash, i)
	}
	perInsert := time.Since(start) / time.Duration(bktreeProbeSize)
	projected := perInsert * time.Duration(len(photos))

	if projected > time.Duration(budgetMS)*time.Millisecond {
		log.WithFields(logrus.Fields{
			"projected_ms": projected.Milliseconds(),
			"budget_ms":    budgetMS,
			"photo_count":  len(photos),
		}).Info("bk-tree build projected over budget, using linear scan fallback")
		return false
	}
	return true
}
