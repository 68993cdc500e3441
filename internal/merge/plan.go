package merge

import (
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/darianrose/mediadedupe/internal/mediaerr"
	"github.com/darianrose/mediadedupe/internal/types"
)

// rawExtensions marks a keeper as needing an XMP sidecar instead of an
// in-place metadata rewrite (spec.md §4.7: "RAW files: never rewrite in
// place; write an XMP sidecar instead").
var rawExtensions = map[string]bool{
	".raw": true, ".cr2": true, ".nef": true, ".arw": true, ".dng": true,
}

func isRAW(path string) bool {
	return rawExtensions[strings.ToLower(filepath.Ext(path))]
}

// Plan computes the field-level merge for group (spec.md §4.7). keeper
// is group.SuggestedKeeper unless keeperOverride names a different
// member; records must contain every member. Plan has no side effects:
// it only decides what Execute would write.
func Plan(group types.DuplicateGroup, records map[types.FileID]*types.FileRecord, keeperOverride *types.FileID, forceOverwriteFields map[string]bool, dryRun bool) (types.MergePlan, error) {
	keeper := group.SuggestedKeeper
	if keeperOverride != nil {
		keeper = *keeperOverride
	}
	keeperRec, ok := records[keeper]
	if !ok {
		return types.MergePlan{}, mediaerr.New(mediaerr.NotFound, "merge.plan", "", fmt.Errorf("keeper %s not among group members' records", keeper))
	}

	var losers []types.FileID
	loserRecs := make([]*types.FileRecord, 0, len(group.Members)-1)
	for _, id := range group.Members {
		if id == keeper {
			continue
		}
		rec, ok := records[id]
		if !ok {
			return types.MergePlan{}, mediaerr.New(mediaerr.NotFound, "merge.plan", "", fmt.Errorf("loser %s not among group members' records", id))
		}
		losers = append(losers, id)
		loserRecs = append(loserRecs, rec)
	}

	writes := mergeFields(keeperRec, loserRecs, forceOverwriteFields)

	return types.MergePlan{
		GroupID:              group.GroupID,
		Keeper:               keeper,
		Losers:               losers,
		Writes:               writes,
		DryRun:                dryRun,
		ForceOverwriteFields: forceOverwriteFields,
	}, nil
}

// mergeFields implements the field-by-field merge matrix of spec.md
// §4.7. Every field is "fill if empty" unless named in force, in which
// case the winning candidate value always overwrites the keeper's.
func mergeFields(keeper *types.FileRecord, losers []*types.FileRecord, force map[string]bool) []types.FieldWrite {
	var writes []types.FieldWrite
	km := metaOf(keeper)

	if w, ok := mergeCaptureTime(keeper, km, losers, force); ok {
		writes = append(writes, w)
	}
	if w, ok := mergeGPS(keeper, km, losers, force); ok {
		writes = append(writes, w)
	}
	if w, ok := mergeKeywords(keeper, km, losers, force); ok {
		writes = append(writes, w)
	}
	if w, ok := mergeOrientation(keeper, km, losers, force); ok {
		writes = append(writes, w)
	}
	if w, ok := mergeStringField(keeper, "camera", km.Camera, fieldValue(losers, func(m types.Metadata) string { return m.Camera }), force, preferFirstNonEmpty); ok {
		writes = append(writes, w)
	}
	if w, ok := mergeStringField(keeper, "title", km.Title, fieldValue(losers, func(m types.Metadata) string { return m.Title }), force, preferFirstNonEmpty); ok {
		writes = append(writes, w)
	}
	if w, ok := mergeStringField(keeper, "description", km.Description, fieldValue(losers, func(m types.Metadata) string { return m.Description }), force, preferLongest); ok {
		writes = append(writes, w)
	}

	return writes
}

func metaOf(rec *types.FileRecord) types.Metadata {
	if rec.Signature == nil {
		return types.Metadata{}
	}
	return rec.Signature.Meta
}

// mergeCaptureTime takes the earliest non-zero capture time among the
// keeper and losers when the keeper's own field is empty (spec.md
// §4.7: "capture date: earliest if empty").
func mergeCaptureTime(keeper *types.FileRecord, km types.Metadata, losers []*types.FileRecord, force map[string]bool) (types.FieldWrite, bool) {
	if km.HasCapture && !force["capture_time"] {
		return types.FieldWrite{}, false
	}
	best := km
	var bestID types.FileID
	hasBest := km.HasCapture
	if hasBest {
		bestID = keeper.FileID
	}
	for _, loser := range losers {
		m := metaOf(loser)
		if !m.HasCapture {
			continue
		}
		if !hasBest || m.CaptureTime.Before(best.CaptureTime) {
			best, bestID, hasBest = m, loser.FileID, true
		}
	}
	if !hasBest || (best.CaptureTime.Equal(km.CaptureTime) && km.HasCapture) {
		return types.FieldWrite{}, false
	}
	return types.FieldWrite{Field: "capture_time", NewValue: best.CaptureTime.Format("2006-01-02T15:04:05Z07:00"), SourceFile: bestID}, true
}

// mergeGPS picks the most metadata-complete GPS-bearing candidate when
// the keeper lacks coordinates (spec.md §4.7: "GPS: most complete if
// empty").
func mergeGPS(keeper *types.FileRecord, km types.Metadata, losers []*types.FileRecord, force map[string]bool) (types.FieldWrite, bool) {
	if km.HasGPS && !force["gps"] {
		return types.FieldWrite{}, false
	}
	var bestID types.FileID
	var best types.GPSCoord
	found := false
	bestAlt := false
	for _, loser := range losers {
		m := metaOf(loser)
		if !m.HasGPS {
			continue
		}
		if !found || (m.GPS.HasAlt && !bestAlt) {
			best, bestID, found, bestAlt = m.GPS, loser.FileID, true, m.GPS.HasAlt
		}
	}
	if !found {
		return types.FieldWrite{}, false
	}
	value := fmt.Sprintf("%f,%f", best.Lat, best.Lon)
	if best.HasAlt {
		value += fmt.Sprintf(",%f", best.Alt)
	}
	return types.FieldWrite{Field: "gps", NewValue: value, SourceFile: bestID}, true
}

// mergeKeywords unions and dedups keywords from every member, sorted
// for determinism (spec.md §4.7: "keywords: union").
func mergeKeywords(keeper *types.FileRecord, km types.Metadata, losers []*types.FileRecord, force map[string]bool) (types.FieldWrite, bool) {
	seen := make(map[string]bool)
	for _, k := range km.Keywords {
		seen[k] = true
	}
	added := false
	for _, loser := range losers {
		for _, k := range metaOf(loser).Keywords {
			if !seen[k] {
				seen[k] = true
				added = true
			}
		}
	}
	if !added && !force["keywords"] {
		return types.FieldWrite{}, false
	}
	if len(seen) == 0 {
		return types.FieldWrite{}, false
	}
	union := make([]string, 0, len(seen))
	for k := range seen {
		union = append(union, k)
	}
	sort.Strings(union)
	return types.FieldWrite{Field: "keywords", NewValue: strings.Join(union, ",")}, true
}

// mergeOrientation preserves the keeper's own orientation if it has
// one; otherwise takes it from whichever member has the highest
// resolution (spec.md §4.7: "orientation: preserve keeper's or highest
// resolution").
func mergeOrientation(keeper *types.FileRecord, km types.Metadata, losers []*types.FileRecord, force map[string]bool) (types.FieldWrite, bool) {
	if km.Orientation != 0 && !force["orientation"] {
		return types.FieldWrite{}, false
	}
	bestRes := resolutionOf(keeper)
	bestOrientation := km.Orientation
	var bestID types.FileID
	found := km.Orientation != 0
	if found {
		bestID = keeper.FileID
	}
	for _, loser := range losers {
		m := metaOf(loser)
		if m.Orientation == 0 {
			continue
		}
		res := resolutionOf(loser)
		if !found || res > bestRes {
			bestRes, bestOrientation, bestID, found = res, m.Orientation, loser.FileID, true
		}
	}
	if !found || bestOrientation == km.Orientation {
		return types.FieldWrite{}, false
	}
	return types.FieldWrite{Field: "orientation", NewValue: strconv.Itoa(bestOrientation), SourceFile: bestID}, true
}

func resolutionOf(rec *types.FileRecord) int {
	m := metaOf(rec)
	return m.Width * m.Height
}

type candidate struct {
	id    types.FileID
	value string
}

func fieldValue(losers []*types.FileRecord, get func(types.Metadata) string) []candidate {
	out := make([]candidate, 0, len(losers))
	for _, l := range losers {
		v := get(metaOf(l))
		if v != "" {
			out = append(out, candidate{id: l.FileID, value: v})
		}
	}
	return out
}

func preferFirstNonEmpty(cands []candidate) candidate {
	return cands[0]
}

func preferLongest(cands []candidate) candidate {
	best := cands[0]
	for _, c := range cands[1:] {
		if len(c.value) > len(best.value) {
			best = c
		}
	}
	return best
}

// mergeStringField fills field from losers when the keeper's own value
// is empty, using pick to choose among multiple non-empty loser values
// (spec.md §4.7: "camera/title: fill if empty", "description:
// longest wins").
func mergeStringField(keeper *types.FileRecord, field, keeperValue string, loserValues []candidate, force map[string]bool, pick func([]candidate) candidate) (types.FieldWrite, bool) {
	if keeperValue != "" && !force[field] {
		return types.FieldWrite{}, false
	}
	if len(loserValues) == 0 {
		return types.FieldWrite{}, false
	}
	best := pick(loserValues)
	if best.value == keeperValue {
		return types.FieldWrite{}, false
	}
	return types.FieldWrite{Field: field, NewValue: best.value, SourceFile: best.id}, true
}

// requiresSidecar reports whether writes to keeperPath must target an
// XMP sidecar rather than an in-place metadata overlay.
func requiresSidecar(keeperPath string) bool {
	return isRAW(keeperPath)
}
