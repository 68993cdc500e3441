package scorer

import (
	"fmt"
	"path/filepath"
	"time"

	edlib "github.com/hbollon/go-edlib"

	"github.com/darianrose/mediadedupe/internal/config"
	"github.com/darianrose/mediadedupe/internal/types"
)

func scoreChecksum(a, b *types.FileRecord) (types.Signal, bool) {
	if a.Signature == nil || b.Signature == nil {
		return types.Signal{}, false
	}
	if a.Signature.Checksum == b.Signature.Checksum {
		return types.Signal{
			Kind:      types.SignalChecksumEqual,
			Verdict:   types.VerdictAccept,
			Rationale: "identical content checksum",
		}, true
	}
	return types.Signal{Kind: types.SignalChecksumEqual, Verdict: types.VerdictNeutral}, true
}

func scorePHash(a, b *types.FileRecord, cfg *config.Config) (types.Signal, bool) {
	if a.Signature == nil || b.Signature == nil || !a.Signature.HasPHash || !b.Signature.HasPHash {
		return types.Signal{}, false
	}
	dist := phashHammingDistance(a.Signature.PHash, b.Signature.PHash)
	s := types.Signal{Kind: types.SignalPHashDistance, Distance: float64(dist)}
	switch {
	case dist <= cfg.PHashAccept:
		s.Verdict = types.VerdictAccept
		s.Rationale = fmt.Sprintf("perceptual hash distance %d bits (<=%d)", dist, cfg.PHashAccept)
	case dist > cfg.PHashPenalty:
		s.Verdict = types.VerdictPenalty
		s.Rationale = fmt.Sprintf("perceptual hash distance %d bits (>%d)", dist, cfg.PHashPenalty)
	}
	return s, true
}

func scoreVideoFP(a, b *types.FileRecord, cfg *config.Config) (types.Signal, bool) {
	if a.Signature == nil || b.Signature == nil || !a.Signature.HasVideo || !b.Signature.HasVideo {
		return types.Signal{}, false
	}
	avgBits, overlap := videoFPAlignment(a.Signature.VideoFP.FramePHashes, b.Signature.VideoFP.FramePHashes)
	if overlap == 0 {
		return types.Signal{}, false
	}
	durationDelta := a.Signature.VideoFP.DurationMS - b.Signature.VideoFP.DurationMS
	if durationDelta < 0 {
		durationDelta = -durationDelta
	}

	s := types.Signal{Kind: types.SignalVideoFPDistance, Distance: avgBits}
	accept := avgBits <= float64(cfg.VideoAcceptAvgBits) && durationDelta <= cfg.VideoDurationToleranceMS
	switch {
	case accept:
		s.Verdict = types.VerdictAccept
		s.Rationale = fmt.Sprintf("video fingerprint avg distance %.1f bits, duration delta %dms", avgBits, durationDelta)
	case avgBits > float64(cfg.VideoAcceptAvgBits) || durationDelta > cfg.VideoDurationToleranceMS:
		s.Verdict = types.VerdictPenalty
		s.Rationale = fmt.Sprintf("video fingerprint mismatch: avg distance %.1f bits, duration delta %dms", avgBits, durationDelta)
	}
	return s, true
}

func scoreCaptureTime(a, b *types.FileRecord, cfg *config.Config) (types.Signal, bool) {
	if a.Signature == nil || b.Signature == nil {
		return types.Signal{}, false
	}
	at := captureTimeOf(a.Signature.Meta, a.ModTime)
	bt := captureTimeOf(b.Signature.Meta, b.ModTime)
	if at.IsZero() || bt.IsZero() {
		return types.Signal{}, false
	}
	delta := at.Sub(bt)
	if delta < 0 {
		delta = -delta
	}
	penaltyThreshold := time.Duration(cfg.CaptureTimePenaltyDays) * 24 * time.Hour
	s := types.Signal{Kind: types.SignalCaptureTimeDelta, Distance: delta.Seconds()}
	switch {
	case delta.Seconds() <= float64(cfg.CaptureTimeAcceptSeconds):
		s.Verdict = types.VerdictAccept
		s.Rationale = fmt.Sprintf("capture time within %.0fs", delta.Seconds())
	case delta >= penaltyThreshold:
		s.Verdict = types.VerdictPenalty
		s.Rationale = fmt.Sprintf("capture time differs by %s", delta.Round(time.Second).String())
	}
	return s, true
}

// captureTimeOf falls back to filesystem mtime when EXIF provided no
// capture time (spec.md §4.4's note on a lower-confidence substitute).
func captureTimeOf(meta types.Metadata, modTime time.Time) time.Time {
	if meta.HasCapture {
		return meta.CaptureTime
	}
	return modTime
}

func scoreGPS(a, b *types.FileRecord, cfg *config.Config) (types.Signal, bool) {
	if a.Signature == nil || b.Signature == nil || !a.Signature.Meta.HasGPS || !b.Signature.Meta.HasGPS {
		return types.Signal{}, false
	}
	meters := haversineMeters(a.Signature.Meta.GPS, b.Signature.Meta.GPS)
	s := types.Signal{Kind: types.SignalGPSDelta, Distance: meters}
	switch {
	case meters <= cfg.GPSAcceptMeters:
		s.Verdict = types.VerdictAccept
		s.Rationale = fmt.Sprintf("gps within %.0fm", meters)
	case meters > cfg.GPSPenaltyMeters:
		s.Verdict = types.VerdictPenalty
		s.Rationale = fmt.Sprintf("gps differs by %.0fm", meters)
	}
	return s, true
}

func scoreCameraModel(a, b *types.FileRecord) (types.Signal, bool) {
	if a.Signature == nil || b.Signature == nil {
		return types.Signal{}, false
	}
	ca, cb := a.Signature.Meta.Camera, b.Signature.Meta.Camera
	if ca == "" || cb == "" {
		return types.Signal{}, false
	}
	s := types.Signal{Kind: types.SignalCameraModelMatch}
	if ca == cb {
		s.Verdict = types.VerdictAccept
		s.Rationale = fmt.Sprintf("camera model matches (%s)", ca)
	} else {
		s.Verdict = types.VerdictPenalty
		s.Rationale = "camera model differs"
	}
	return s, true
}

func scoreFilenameSimilarity(a, b *types.FileRecord, cfg *config.Config) (types.Signal, bool) {
	nameA := filepath.Base(a.Path)
	nameB := filepath.Base(b.Path)
	sim, err := edlib.StringsSimilarity(nameA, nameB, edlib.JaroWinkler)
	if err != nil {
		return types.Signal{}, false
	}
	score := float64(sim)
	s := types.Signal{Kind: types.SignalFilenameSimilarity, Distance: score}
	switch {
	case score >= cfg.FilenameAcceptScore:
		s.Verdict = types.VerdictAccept
		s.Rationale = fmt.Sprintf("filename similarity %.2f", score)
	case score < cfg.FilenamePenaltyScore:
		s.Verdict = types.VerdictPenalty
		s.Rationale = fmt.Sprintf("filename similarity %.2f", score)
	}
	return s, true
}

func scoreSizeRatio(a, b *types.FileRecord, cfg *config.Config) (types.Signal, bool) {
	if a.Size == 0 || b.Size == 0 {
		return types.Signal{}, false
	}
	ratio := float64(a.Size) / float64(b.Size)
	s := types.Signal{Kind: types.SignalSizeRatio, Distance: ratio}
	switch {
	case ratio >= cfg.SizeRatioAcceptMin && ratio <= cfg.SizeRatioAcceptMax:
		s.Verdict = types.VerdictAccept
		s.Rationale = fmt.Sprintf("size ratio %.2f", ratio)
	case ratio < cfg.SizeRatioPenaltyMin || ratio > cfg.SizeRatioPenaltyMax:
		s.Verdict = types.VerdictPenalty
		s.Rationale = fmt.Sprintf("size ratio %.2f", ratio)
	}
	return s, true
}
