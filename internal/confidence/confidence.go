// Package confidence implements the Confidence Engine (C6, spec.md
// §4.6): a weighted-sum confidence score plus deterministic keeper
// ranking for a duplicate group.
package confidence

import (
	"github.com/darianrose/mediadedupe/internal/config"
	"github.com/darianrose/mediadedupe/internal/scorer"
	"github.com/darianrose/mediadedupe/internal/types"
)

// Annotate computes a group's confidence, rationale lines, and
// suggested keeper (spec.md §4.6). records must contain every member
// of group.Members; a missing record is skipped from the pairwise
// average (it can only happen for a member whose FileRecord vanished
// between clustering and annotation, which the caller should treat as
// stale input).
func Annotate(group types.DuplicateGroup, records map[types.FileID]*types.FileRecord, cfg *config.Config) (confidence float64, rationale []string, keeper types.FileID, hasKeeper bool) {
	members := group.Members
	var allSignals []types.Signal
	var totalWeight float64
	var pairCount int
	checksumOverride := false

	for i := 0; i < len(members); i++ {
		for j := i + 1; j < len(members); j++ {
			a, okA := records[members[i]]
			b, okB := records[members[j]]
			if !okA || !okB {
				continue
			}
			signals, _ := scorer.Score(a, b, cfg)
			allSignals = append(allSignals, signals...)
			pairCount++
			totalWeight += pairWeight(signals, cfg)
			if hasChecksumAccept(signals) {
				checksumOverride = true
			}
		}
	}

	switch {
	case checksumOverride:
		confidence = 1.0
	case pairCount > 0:
		confidence = clamp01(totalWeight / float64(pairCount))
	default:
		confidence = 0
	}

	rationale = scorer.RationaleLines(allSignals)
	keeper, hasKeeper = rankKeeper(members, records)
	return confidence, rationale, keeper, hasKeeper
}

// pairWeight sums one pair's weighted contribution per spec.md §4.6:
// each accept signal adds its configured weight, each penalty signal
// subtracts penalty_each, and the pair's total is clamped at a floor
// of zero (never goes negative) before being folded into the group
// average.
func pairWeight(signals []types.Signal, cfg *config.Config) float64 {
	w := cfg.ConfidenceWeights
	var total float64
	for _, s := range signals {
		switch {
		case s.Verdict == types.VerdictAccept:
			total += acceptWeight(s.Kind, w)
		case s.Verdict == types.VerdictPenalty:
			total -= w.PenaltyEach
		}
	}
	if total < 0 {
		total = 0
	}
	return total
}

func acceptWeight(kind types.SignalKind, w config.ConfidenceWeights) float64 {
	switch kind {
	case types.SignalChecksumEqual:
		return w.ChecksumEqual
	case types.SignalPHashDistance:
		return w.PHashAccept
	case types.SignalVideoFPDistance:
		return w.VideoFPAccept
	case types.SignalCaptureTimeDelta:
		return w.CaptureTimeAccept
	case types.SignalGPSDelta:
		return w.GPSAccept
	case types.SignalCameraModelMatch:
		return w.CameraModelMatch
	case types.SignalFilenameSimilarity:
		return w.FilenameSimilarity
	case types.SignalSizeRatio:
		return w.SizeRatioAccept
	default:
		return 0
	}
}

func hasChecksumAccept(signals []types.Signal) bool {
	for _, s := range signals {
		if s.Kind == types.SignalChecksumEqual && s.Verdict == types.VerdictAccept {
			return true
		}
	}
	return false
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
