// Package buckets implements the Candidate Buckets stage (C3,
// spec.md §4.3): groups files whose signatures make them plausible
// near-duplicate candidates, so the Pair Scorer (C4) only ever compares
// files a bucket has already vouched for instead of every pair in the
// corpus.
package buckets

import (
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/darianrose/mediadedupe/internal/config"
	"github.com/darianrose/mediadedupe/internal/types"
)

// Result is C3's output: checksum matches are exact enough to hand
// straight to the Cluster Builder as edges, while perceptual matches
// still need the Pair Scorer's judgment.
type Result struct {
	ChecksumEdges     []types.Edge
	CandidatePairs    []types.Pair
	DroppedCandidates int
}

// Build runs all three bucketing strategies over records and unions
// their output (spec.md §4.3: "three parallel bucketing strategies that
// union per file"). Records without a computed signature are skipped —
// they have nothing for any bucket to key on.
func Build(records []*types.FileRecord, cfg *config.Config, log *logrus.Logger) Result {
	if log == nil {
		log = logrus.New()
		log.SetLevel(logrus.PanicLevel)
	}

	signed := make([]*types.FileRecord, 0, len(records))
	for _, r := range records {
		if r.Signature != nil {
			signed = append(signed, r)
		}
	}

	var result Result

	checksumEdges, droppedChecksum := checksumBuckets(signed, cfg, log)
	result.ChecksumEdges = append(result.ChecksumEdges, checksumEdges...)
	result.DroppedCandidates += droppedChecksum

	photoPairs, droppedPhoto := photoBuckets(signed, cfg, log)
	result.CandidatePairs = append(result.CandidatePairs, photoPairs...)
	result.DroppedCandidates += droppedPhoto

	videoPairs, droppedVideo := videoBuckets(signed, cfg, log)
	result.CandidatePairs = append(result.CandidatePairs, videoPairs...)
	result.DroppedCandidates += droppedVideo

	return result
}

// capMembers enforces bucket_cap (spec.md §4.3/§9: "no silent caps") by
// splitting an over-cap bucket into size quartiles and scoring each
// quartile as its own independent sub-bucket, rather than truncating the
// bucket and dropping the remainder outright. Members that would have
// been dropped are still compared against their size-neighbors, just
// within a smaller sub-bucket; callers form pairs/edges within each
// returned sub-bucket, never across them. A quartile that is itself
// still over cap (a degenerate bucket_cap set too small even for a
// quarter) falls back to a deterministic file_id truncation for that
// quartile only, still logged rather than silently dropped.
func capMembers(members []*types.FileRecord, cap int, bucketDesc string, log *logrus.Logger) ([][]*types.FileRecord, int) {
	if cap <= 0 || len(members) <= cap {
		return [][]*types.FileRecord{members}, 0
	}

	quartiles := quartileSplit(members)
	log.WithFields(logrus.Fields{
		"bucket":    bucketDesc,
		"members":   len(members),
		"cap":       cap,
		"quartiles": len(quartiles),
	}).Info("bucket_cap exceeded, splitting into independently scored size quartiles")

	var out [][]*types.FileRecord
	var dropped int
	for i, q := range quartiles {
		if len(q) <= cap {
			out = append(out, q)
			continue
		}
		sorted := types.NewSorted(q, func(r *types.FileRecord) string { return r.FileID.String() })
		items := sorted.Items()
		d := len(items) - cap
		dropped += d
		log.WithFields(logrus.Fields{
			"bucket":     bucketDesc,
			"sub_bucket": i,
			"kept":       cap,
			"dropped":    d,
		}).Warn("bucket_cap exceeded even within a size quartile, dropping excess candidates")
		out = append(out, items[:cap])
	}
	return out, dropped
}

// quartileSplit orders members by size and cuts them into up to four
// contiguous sub-buckets of near-equal size, so a file only ever
// competes with members close to its own size once a bucket is split.
func quartileSplit(members []*types.FileRecord) [][]*types.FileRecord {
	ordered := make([]*types.FileRecord, len(members))
	copy(ordered, members)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Size < ordered[j].Size })

	n := len(ordered)
	chunk := (n + 3) / 4
	var groups [][]*types.FileRecord
	for i := 0; i < n; i += chunk {
		end := i + chunk
		if end > n {
			end = n
		}
		groups = append(groups, ordered[i:end])
	}
	return groups
}
