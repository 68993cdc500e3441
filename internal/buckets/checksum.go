package buckets

import (
	"github.com/sirupsen/logrus"

	"github.com/darianrose/mediadedupe/internal/config"
	"github.com/darianrose/mediadedupe/internal/types"
)

// checksumBuckets groups records by their exact 256-bit checksum, a
// map-based grouping from "same content hash" to "exact duplicate set".
// Any bucket of 2+ unique files is an exact duplicate group and goes
// straight to the Cluster Builder as checksum_equal edges — no scoring
// needed.
func checksumBuckets(records []*types.FileRecord, cfg *config.Config, log *logrus.Logger) ([]types.Edge, int) {
	byChecksum := make(map[[32]byte][]*types.FileRecord)
	for _, r := range records {
		byChecksum[r.Signature.Checksum] = append(byChecksum[r.Signature.Checksum], r)
	}

	var edges []types.Edge
	var dropped int
	for _, members := range byChecksum {
		if len(members) < 2 {
			continue
		}
		subBuckets, d := capMembers(members, cfg.BucketCap, "checksum", log)
		dropped += d
		for _, kept := range subBuckets {
			for i := 0; i < len(kept); i++ {
				for j := i + 1; j < len(kept); j++ {
					edges = append(edges, types.Edge{
						A:          kept[i].FileID,
						B:          kept[j].FileID,
						ChecksumEq: true,
						Distance:   0,
						Signals: []types.Signal{{
							Kind:      types.SignalChecksumEqual,
							Distance:  0,
							Verdict:   types.VerdictAccept,
							Rationale: "identical content checksum",
						}},
					})
				}
			}
		}
	}
	return edges, dropped
}
