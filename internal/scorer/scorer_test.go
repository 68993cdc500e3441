package scorer

import (
	"crypto/sha256"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/darianrose/mediadedupe/internal/config"
	"github.com/darianrose/mediadedupe/internal/types"
)

func chk(s string) [32]byte {
	return sha256.Sum256([]byte(s))
}

func photoRecord(checksum string, phash uint64, hasPHash bool) *types.FileRecord {
	return &types.FileRecord{
		FileID: uuid.New(),
		Path:   "/photos/" + checksum + ".jpg",
		Kind:   types.KindPhoto,
		Size:   1000,
		Signature: &types.SignatureBundle{
			Checksum: chk(checksum),
			HasPHash: hasPHash,
			PHash:    phash,
		},
	}
}

func TestScoreChecksumEqualAccepts(t *testing.T) {
	cfg := config.Default()
	a := photoRecord("abc", 0, false)
	b := photoRecord("abc", 0, false)

	signals, verdict := Score(a, b, cfg)
	if verdict != types.PairAccept {
		t.Errorf("verdict = %v, want accept for identical checksums", verdict)
	}
	found := false
	for _, s := range signals {
		if s.Kind == types.SignalChecksumEqual && s.Verdict == types.VerdictAccept {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a checksum_equal accept signal")
	}
}

func TestScorePHashWithinRadiusAccepts(t *testing.T) {
	cfg := config.Default()
	a := photoRecord("aaa", 0b0000, true)
	b := photoRecord("bbb", 0b0001, true) // hamming distance 1, within PHashAccept (5)

	_, verdict := Score(a, b, cfg)
	if verdict != types.PairAccept {
		t.Errorf("verdict = %v, want accept for near-identical phash", verdict)
	}
}

func TestScorePHashFarApartIsPenalized(t *testing.T) {
	cfg := config.Default()
	a := photoRecord("aaa", 0x0000000000000000, true)
	b := photoRecord("bbb", 0xFFFFFFFFFFFFFFFF, true) // max distance: 64 bits

	signals, verdict := Score(a, b, cfg)
	if verdict != types.PairNeutral {
		t.Errorf("verdict = %v, want neutral for maximally distant phash", verdict)
	}
	found := false
	for _, s := range signals {
		if s.Kind == types.SignalPHashDistance && s.Verdict == types.VerdictPenalty {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a phash_distance penalty signal")
	}
}

func TestVerdictSuppressedByPenaltyEvenWithPerceptualAccept(t *testing.T) {
	cfg := config.Default()
	a := &types.FileRecord{
		FileID: uuid.New(), Path: "/a/x.jpg", Kind: types.KindPhoto, Size: 1000,
		Signature: &types.SignatureBundle{Checksum: chk("a"), HasPHash: true, PHash: 0, Meta: types.Metadata{Camera: "Canon"}},
	}
	b := &types.FileRecord{
		FileID: uuid.New(), Path: "/b/y.jpg", Kind: types.KindPhoto, Size: 1000,
		Signature: &types.SignatureBundle{Checksum: chk("b"), HasPHash: true, PHash: 1, Meta: types.Metadata{Camera: "Canon"}},
	}

	_, verdict := Score(a, b, cfg)
	if verdict != types.PairAccept {
		t.Fatalf("sanity: expected accept before introducing a penalty, got %v", verdict)
	}

	// Now push the two far enough apart on capture time to trigger the
	// capture_time penalty threshold, which must suppress the otherwise
	// accepting phash signal.
	a.ModTime = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	b.ModTime = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	_, verdict = Score(a, b, cfg)
	if verdict != types.PairNeutral {
		t.Errorf("verdict = %v, want neutral once a penalty signal is present", verdict)
	}
}

func TestRationaleLinesDedupsAndSorts(t *testing.T) {
	signals := []types.Signal{
		{Verdict: types.VerdictAccept, Rationale: "b rationale"},
		{Verdict: types.VerdictAccept, Rationale: "a rationale"},
		{Verdict: types.VerdictAccept, Rationale: "a rationale"},
		{Verdict: types.VerdictNeutral, Rationale: "ignored"},
	}
	lines := RationaleLines(signals)
	want := []string{"a rationale", "b rationale"}
	if len(lines) != len(want) {
		t.Fatalf("lines = %v, want %v", lines, want)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("lines[%d] = %q, want %q", i, lines[i], want[i])
		}
	}
}
