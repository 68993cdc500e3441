package confidence

import (
	"testing"

	"github.com/google/uuid"

	"github.com/darianrose/mediadedupe/internal/types"
)

func mkRecord(path string, w, h int, size int64) *types.FileRecord {
	return &types.FileRecord{
		FileID: uuid.New(),
		Path:   path,
		Size:   size,
		Kind:   types.KindPhoto,
		Signature: &types.SignatureBundle{
			Meta: types.Metadata{Width: w, Height: h},
		},
	}
}

func TestRankKeeperPrefersHigherResolution(t *testing.T) {
	small := mkRecord("/a/small.jpg", 640, 480, 200_000)
	big := mkRecord("/a/big.jpg", 4000, 3000, 5_000_000)

	keeper, ok := rankKeeper([]types.FileID{small.FileID, big.FileID}, map[types.FileID]*types.FileRecord{
		small.FileID: small, big.FileID: big,
	})
	if !ok || keeper != big.FileID {
		t.Errorf("keeper = %v, want the higher-resolution file", keeper)
	}
}

func TestRankKeeperFallsBackToSizeOnResolutionTie(t *testing.T) {
	a := mkRecord("/a/x.jpg", 1000, 1000, 100_000)
	b := mkRecord("/a/y.jpg", 1000, 1000, 500_000)

	keeper, ok := rankKeeper([]types.FileID{a.FileID, b.FileID}, map[types.FileID]*types.FileRecord{
		a.FileID: a, b.FileID: b,
	})
	if !ok || keeper != b.FileID {
		t.Errorf("keeper = %v, want the larger file on a resolution tie", keeper)
	}
}

func TestRankKeeperPrefersRAWOverJPEGOnFullTie(t *testing.T) {
	raw := mkRecord("/a/shot.cr2", 1000, 1000, 1000)
	jpg := mkRecord("/a/shot.jpg", 1000, 1000, 1000)

	keeper, ok := rankKeeper([]types.FileID{jpg.FileID, raw.FileID}, map[types.FileID]*types.FileRecord{
		jpg.FileID: jpg, raw.FileID: raw,
	})
	if !ok || keeper != raw.FileID {
		t.Errorf("keeper = %v, want RAW preferred over JPEG per spec.md's format ranking", keeper)
	}
}

func TestRankKeeperFinalTieBreakIsLexicographicPath(t *testing.T) {
	a := mkRecord("/a/a.jpg", 1000, 1000, 1000)
	b := mkRecord("/a/b.jpg", 1000, 1000, 1000)

	keeper, ok := rankKeeper([]types.FileID{b.FileID, a.FileID}, map[types.FileID]*types.FileRecord{
		a.FileID: a, b.FileID: b,
	})
	if !ok || keeper != a.FileID {
		t.Errorf("keeper = %v, want the lexicographically smaller path on a full tie", keeper)
	}
}

func TestRankKeeperEmptyMembersReturnsNotFound(t *testing.T) {
	_, ok := rankKeeper(nil, map[types.FileID]*types.FileRecord{})
	if ok {
		t.Errorf("expected hasKeeper=false for an empty member list")
	}
}
