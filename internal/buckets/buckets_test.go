package buckets

import (
	"crypto/sha256"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/darianrose/mediadedupe/internal/config"
	"github.com/darianrose/mediadedupe/internal/types"
)

func photoRec(checksum string, phash uint64, size int64) *types.FileRecord {
	return &types.FileRecord{
		FileID: uuid.New(),
		Path:   "/p/" + checksum + ".jpg",
		Kind:   types.KindPhoto,
		Size:   size,
		Signature: &types.SignatureBundle{
			Checksum: sha256.Sum256([]byte(checksum)),
			HasPHash: true,
			PHash:    phash,
		},
	}
}

func TestBuildSkipsRecordsWithoutSignature(t *testing.T) {
	unsigned := &types.FileRecord{FileID: uuid.New(), Path: "/p/x.jpg", Kind: types.KindPhoto}
	result := Build([]*types.FileRecord{unsigned}, config.Default(), nil)
	if len(result.ChecksumEdges) != 0 || len(result.CandidatePairs) != 0 {
		t.Errorf("a record with no signature must not produce any bucket output")
	}
}

func TestBuildChecksumMatchProducesEdge(t *testing.T) {
	a := photoRec("same", 0, 100)
	b := photoRec("same", 0, 100)
	c := photoRec("different", 0xFF, 200)

	result := Build([]*types.FileRecord{a, b, c}, config.Default(), nil)
	if len(result.ChecksumEdges) != 1 {
		t.Fatalf("checksum edges = %d, want 1", len(result.ChecksumEdges))
	}
	edge := result.ChecksumEdges[0]
	if !edge.ChecksumEq {
		t.Errorf("edge.ChecksumEq = false, want true")
	}
	pair := map[types.FileID]bool{edge.A: true, edge.B: true}
	if !pair[a.FileID] || !pair[b.FileID] {
		t.Errorf("checksum edge should connect a and b, got %v", edge)
	}
}

func sizedRec(size int64) *types.FileRecord {
	return &types.FileRecord{FileID: uuid.New(), Path: "/p/x", Kind: types.KindPhoto, Size: size}
}

func TestCapMembersUnderCapReturnsSingleBucket(t *testing.T) {
	members := []*types.FileRecord{sizedRec(10), sizedRec(20)}
	log := noopLogger()

	subBuckets, dropped := capMembers(members, 5, "test", log)
	if dropped != 0 {
		t.Errorf("dropped = %d, want 0 when under cap", dropped)
	}
	if len(subBuckets) != 1 || len(subBuckets[0]) != 2 {
		t.Fatalf("expected one sub-bucket with both members, got %v", subBuckets)
	}
}

func TestCapMembersOverCapSplitsIntoSizeQuartilesInsteadOfDropping(t *testing.T) {
	var members []*types.FileRecord
	for i := int64(0); i < 8; i++ {
		members = append(members, sizedRec(i*100))
	}
	log := noopLogger()

	subBuckets, dropped := capMembers(members, 2, "test", log)
	if dropped != 0 {
		t.Errorf("dropped = %d, want 0: every member should land in some sub-bucket, not be discarded", dropped)
	}

	total := 0
	for _, sub := range subBuckets {
		total += len(sub)
	}
	if total != len(members) {
		t.Errorf("sub-buckets together hold %d members, want all %d preserved", total, len(members))
	}
	if len(subBuckets) < 2 {
		t.Fatalf("expected the over-cap bucket to be split into multiple sub-buckets, got %d", len(subBuckets))
	}

	for _, sub := range subBuckets {
		for i := 1; i < len(sub); i++ {
			if sub[i].Size < sub[i-1].Size {
				t.Errorf("sub-bucket members must stay ordered by size, got %v then %v", sub[i-1].Size, sub[i].Size)
			}
		}
	}
}

func TestCapMembersDegenerateQuartileStillCapsAndLogsDrop(t *testing.T) {
	var members []*types.FileRecord
	for i := int64(0); i < 8; i++ {
		members = append(members, sizedRec(i*100))
	}
	log := noopLogger()

	// cap=1 forces every quartile (size 2) to still exceed the cap, so
	// the degenerate per-quartile truncation path must engage.
	subBuckets, dropped := capMembers(members, 1, "test", log)
	if dropped == 0 {
		t.Errorf("expected a degenerately small cap to still drop some members, got 0 dropped")
	}
	for _, sub := range subBuckets {
		if len(sub) > 1 {
			t.Errorf("sub-bucket of size %d exceeds cap=1", len(sub))
		}
	}
}

func noopLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func TestBuildPHashNeighborsBecomeCandidatePairs(t *testing.T) {
	a := photoRec("aaa", 0b0000, 100)
	b := photoRec("bbb", 0b0001, 100) // hamming distance 1, within PHashRadius

	result := Build([]*types.FileRecord{a, b}, config.Default(), nil)
	found := false
	for _, p := range result.CandidatePairs {
		if (p.A == a.FileID && p.B == b.FileID) || (p.A == b.FileID && p.B == a.FileID) {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a candidate pair between two phash-neighboring photos")
	}
}
