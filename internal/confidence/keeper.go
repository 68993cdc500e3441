package confidence

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/darianrose/mediadedupe/internal/types"
)

// formatRank gives the preferred-format ordering RAW > PNG > TIFF >
// HEIC > JPEG, everything else last (spec.md §4.6). Lower is better.
var formatRank = map[string]int{
	".raw": 0, ".cr2": 0, ".nef": 0, ".arw": 0, ".dng": 0,
	".png":  1,
	".tif":  2, ".tiff": 2,
	".heic": 3, ".heif": 3,
	".jpg": 4, ".jpeg": 4,
}

const formatRankOther = 5

// rankKeeper implements spec.md §4.6's six-level keeper ranking: a
// single linear scan tracking a "best so far" pointer, falling through
// successive criteria only on a tie at the previous level.
func rankKeeper(members []types.FileID, records map[types.FileID]*types.FileRecord) (types.FileID, bool) {
	var best *types.FileRecord
	for _, id := range members {
		rec, ok := records[id]
		if !ok {
			continue
		}
		if best == nil || isBetterKeeper(rec, best) {
			best = rec
		}
	}
	if best == nil {
		return types.FileID{}, false
	}
	return best.FileID, true
}

// isBetterKeeper reports whether candidate should replace current as
// the keeper under the six-level tie-break.
func isBetterKeeper(candidate, current *types.FileRecord) bool {
	cRes, curRes := resolution(candidate), resolution(current)
	if cRes != curRes {
		return cRes > curRes
	}

	if candidate.Size != current.Size {
		return candidate.Size > current.Size
	}

	cFmt, curFmt := formatRankOf(candidate.Path), formatRankOf(current.Path)
	if cFmt != curFmt {
		return cFmt < curFmt
	}

	cComplete, curComplete := metaCompleteness(candidate), metaCompleteness(current)
	if cComplete != curComplete {
		return cComplete > curComplete
	}

	cCapture, curCapture := captureTime(candidate), captureTime(current)
	if !cCapture.IsZero() && !curCapture.IsZero() && !cCapture.Equal(curCapture) {
		return cCapture.Before(curCapture)
	}

	return candidate.Path < current.Path
}

// resolution is pixel count for photos, or frame area × duration for
// videos (spec.md §4.6's "pixels or video frame area × duration").
func resolution(rec *types.FileRecord) float64 {
	if rec.Signature == nil {
		return 0
	}
	area := float64(rec.Signature.Meta.Width) * float64(rec.Signature.Meta.Height)
	if rec.Kind == types.KindVideo {
		return area * rec.Signature.Meta.Duration.Seconds()
	}
	return area
}

func formatRankOf(path string) int {
	ext := strings.ToLower(filepath.Ext(path))
	if r, ok := formatRank[ext]; ok {
		return r
	}
	return formatRankOther
}

func metaCompleteness(rec *types.FileRecord) float64 {
	if rec.Signature == nil {
		return 0
	}
	return rec.Signature.Meta.Completeness()
}

func captureTime(rec *types.FileRecord) time.Time {
	if rec.Signature == nil || !rec.Signature.Meta.HasCapture {
		return time.Time{}
	}
	return rec.Signature.Meta.CaptureTime
}
