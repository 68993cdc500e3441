// Package scorer implements the Pair Scorer (C4, spec.md §4.4): a pure,
// side-effect-free function that turns a candidate pair into a list of
// named evidence signals plus an overall accept/neutral verdict.
package scorer

import (
	"sort"

	"github.com/darianrose/mediadedupe/internal/config"
	"github.com/darianrose/mediadedupe/internal/types"
)

// Score evaluates every applicable signal for the pair (a, b) and
// returns them alongside the overall verdict. Pure and deterministic:
// calling it twice on the same pair always yields the same result, so
// it can be parallelized freely (spec.md §4.4).
func Score(a, b *types.FileRecord, cfg *config.Config) ([]types.Signal, types.PairVerdict) {
	var signals []types.Signal

	if s, ok := scoreChecksum(a, b); ok {
		signals = append(signals, s)
	}

	switch {
	case a.Kind == types.KindPhoto && b.Kind == types.KindPhoto:
		if s, ok := scorePHash(a, b, cfg); ok {
			signals = append(signals, s)
		}
	case a.Kind == types.KindVideo && b.Kind == types.KindVideo:
		if s, ok := scoreVideoFP(a, b, cfg); ok {
			signals = append(signals, s)
		}
	}

	if s, ok := scoreCaptureTime(a, b, cfg); ok {
		signals = append(signals, s)
	}
	if s, ok := scoreGPS(a, b, cfg); ok {
		signals = append(signals, s)
	}
	if s, ok := scoreCameraModel(a, b); ok {
		signals = append(signals, s)
	}
	if s, ok := scoreFilenameSimilarity(a, b, cfg); ok {
		signals = append(signals, s)
	}
	if s, ok := scoreSizeRatio(a, b, cfg); ok {
		signals = append(signals, s)
	}

	return signals, verdictOf(signals)
}

// verdictOf implements spec.md §4.4's overall-verdict rule: accept if
// any signal is a checksum_equal accept, OR at least one perceptual
// accept holds with zero penalty signals. Otherwise neutral — a
// penalty-dominant pair is suppressed even with a borderline
// perceptual accept.
func verdictOf(signals []types.Signal) types.PairVerdict {
	var checksumAccept, perceptualAccept bool
	var penaltyCount int

	for _, s := range signals {
		switch s.Verdict {
		case types.VerdictAccept:
			if s.Kind == types.SignalChecksumEqual {
				checksumAccept = true
			} else if s.Kind == types.SignalPHashDistance || s.Kind == types.SignalVideoFPDistance {
				perceptualAccept = true
			}
		case types.VerdictPenalty:
			penaltyCount++
		}
	}

	if checksumAccept {
		return types.PairAccept
	}
	if perceptualAccept && penaltyCount == 0 {
		return types.PairAccept
	}
	return types.PairNeutral
}

// RationaleLines extracts, deduplicates, and sorts rationale strings
// from a set of signals (spec.md §4.6: used by the Confidence Engine to
// build a group's rationale).
func RationaleLines(signals []types.Signal) []string {
	seen := make(map[string]bool)
	var lines []string
	for _, s := range signals {
		if s.Verdict == types.VerdictNeutral || s.Rationale == "" {
			continue
		}
		if !seen[s.Rationale] {
			seen[s.Rationale] = true
			lines = append(lines, s.Rationale)
		}
	}
	sort.Strings(lines)
	return lines
}
