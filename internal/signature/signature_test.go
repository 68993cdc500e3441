package signature

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"

	"github.com/darianrose/mediadedupe/internal/config"
	"github.com/darianrose/mediadedupe/internal/signature/hashcache"
	"github.com/darianrose/mediadedupe/internal/testfs"
	"github.com/darianrose/mediadedupe/internal/types"
)

func photoFileRecord(path string) *types.FileRecord {
	info, err := os.Stat(path)
	var size int64
	var modTime = info.ModTime()
	if err == nil {
		size = info.Size()
	}
	return &types.FileRecord{
		FileID:  uuid.New(),
		Path:    path,
		Size:    size,
		ModTime: modTime,
		Kind:    types.KindPhoto,
	}
}

func TestExtractorComputesPerceptualHashForRealJPEG(t *testing.T) {
	h := testfs.New(t)
	path := h.WriteJPEG("a.jpg", 256, 256, 11, 90)

	cache, err := hashcache.Open("")
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	defer cache.Close()

	rec := photoFileRecord(path)
	ex := New([]*types.FileRecord{rec}, config.Default(), cache, nil, false, nil)
	results := ex.Run(context.Background())

	if len(results) != 1 {
		t.Fatalf("results = %d, want 1", len(results))
	}
	r := results[0]
	if r.Err != nil {
		t.Fatalf("extract error: %v", r.Err)
	}
	if r.Bundle == nil || !r.Bundle.HasPHash {
		t.Fatalf("expected a perceptual hash for a decodable JPEG")
	}
}

func TestExtractorTwoIdenticalSeedsProduceEqualChecksums(t *testing.T) {
	h := testfs.New(t)
	a := h.WriteJPEG("a.jpg", 128, 128, 5, 90)
	b := h.WriteJPEG("b.jpg", 128, 128, 5, 90)

	cache, _ := hashcache.Open("")
	defer cache.Close()

	records := []*types.FileRecord{photoFileRecord(a), photoFileRecord(b)}
	results := New(records, config.Default(), cache, nil, false, nil).Run(context.Background())
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	byID := make(map[types.FileID]Result)
	for _, r := range results {
		byID[r.FileID] = r
	}
	r0, r1 := byID[records[0].FileID], byID[records[1].FileID]
	if r0.Bundle == nil || r1.Bundle == nil {
		t.Fatalf("both extractions should have produced a bundle")
	}
	if r0.Bundle.Checksum != r1.Bundle.Checksum {
		t.Errorf("byte-identical source images must produce identical checksums")
	}
}

func TestExtractorResizedNearDuplicateHashesBothCopies(t *testing.T) {
	h := testfs.New(t)
	original := h.WriteJPEG("orig.jpg", 512, 512, 3, 95)
	resized := h.WriteJPEGResized("thumb.jpg", 512, 512, 3, 128, 128, 85)

	cache, _ := hashcache.Open("")
	defer cache.Close()

	records := []*types.FileRecord{photoFileRecord(original), photoFileRecord(resized)}
	results := New(records, config.Default(), cache, nil, false, nil).Run(context.Background())

	byID := make(map[types.FileID]Result)
	for _, r := range results {
		byID[r.FileID] = r
	}
	r0, r1 := byID[records[0].FileID], byID[records[1].FileID]
	if r0.Bundle.Checksum == r1.Bundle.Checksum {
		t.Errorf("a resized re-export should not be byte-identical to the original")
	}
	if !r0.Bundle.HasPHash || !r1.Bundle.HasPHash {
		t.Fatalf("expected perceptual hashes on both")
	}
}
