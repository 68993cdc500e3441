package signature

import (
	"github.com/darianrose/mediadedupe/internal/signature/hashcache"
	"github.com/darianrose/mediadedupe/internal/types"
)

// extractSidecar computes a checksum-only signature for sidecar files
// (XMP, AAE, THM) and anything else not recognized as photo or video
// (spec.md §4.2: "sidecars and unrecognized kinds get a checksum and
// nothing else — no perceptual comparison applies to them").
func extractSidecar(rec *types.FileRecord, cache *hashcache.Cache) (*types.SignatureBundle, error) {
	return extractGeneric(rec, cache)
}

func extractGeneric(rec *types.FileRecord, cache *hashcache.Cache) (*types.SignatureBundle, error) {
	if cache != nil {
		if bundle, ok := cache.Lookup(rec); ok {
			return bundle, nil
		}
	}

	sum, _, err := checksumFile(rec.Path)
	if err != nil {
		return nil, err
	}
	bundle := &types.SignatureBundle{Checksum: sum}

	if cache != nil {
		_ = cache.Store(rec, bundle)
	}
	return bundle, nil
}
