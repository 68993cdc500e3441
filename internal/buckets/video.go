package buckets

import (
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/darianrose/mediadedupe/internal/config"
	"github.com/darianrose/mediadedupe/internal/types"
)

// videoBuckets groups videos first by quantized duration (an
// equality-grouping pattern widened from exact equality to a tolerance
// bucket) and then by first-frame phash proximity within that bucket
// (spec.md §4.3).
func videoBuckets(records []*types.FileRecord, cfg *config.Config, log *logrus.Logger) ([]types.Pair, int) {
	videos := make([]*types.FileRecord, 0, len(records))
	for _, r := range records {
		if r.Kind == types.KindVideo && r.Signature != nil && r.Signature.HasVideo && len(r.Signature.VideoFP.FramePHashes) > 0 {
			videos = append(videos, r)
		}
	}
	if len(videos) < 2 {
		return nil, 0
	}

	widthMS := int64(cfg.VideoBucketWidthSeconds) * 1000
	if widthMS <= 0 {
		widthMS = 2000
	}

	byDurationBucket := make(map[int64][]*types.FileRecord)
	for _, v := range videos {
		key := v.Signature.VideoFP.DurationMS / widthMS
		byDurationBucket[key] = append(byDurationBucket[key], v)
	}

	var pairs []types.Pair
	var dropped int
	for _, members := range byDurationBucket {
		if len(members) < 2 {
			continue
		}
		sort.Slice(members, func(i, j int) bool { return members[i].FileID.String() < members[j].FileID.String() })
		subBuckets, d := capMembers(members, cfg.BucketCap, "video_duration", log)
		dropped += d

		for _, kept := range subBuckets {
			for i := 0; i < len(kept); i++ {
				for j := i + 1; j < len(kept); j++ {
					a, b := kept[i], kept[j]
					dist := hamming64(a.Signature.VideoFP.FramePHashes[0], b.Signature.VideoFP.FramePHashes[0])
					if dist <= cfg.RVidFirstBits {
						pairs = append(pairs, types.Pair{A: a.FileID, B: b.FileID, Kind: types.KindVideo})
					}
				}
			}
		}
	}
	return pairs, dropped
}
