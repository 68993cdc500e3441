package signature

import (
	"context"

	"github.com/corona10/goimagehash"
	"github.com/disintegration/imaging"

	"github.com/darianrose/mediadedupe/internal/signature/hashcache"
	"github.com/darianrose/mediadedupe/internal/types"
)

// extractPhotoWithRetry computes a photo SignatureBundle: checksum,
// perceptual hash, and EXIF metadata (spec.md §4.2). Checks the hash
// cache first, keyed on (path, size, mtime) so an unchanged file on a
// re-run skips both the checksum pass and the decode/hash pass.
func extractPhotoWithRetry(ctx context.Context, rec *types.FileRecord, cache *hashcache.Cache) (*types.SignatureBundle, error) {
	if cache != nil {
		if bundle, ok := cache.Lookup(rec); ok {
			return bundle, nil
		}
	}

	var bundle *types.SignatureBundle
	err := withRetry(ctx, func() error {
		b, err := computePhotoSignature(rec.Path)
		if err != nil {
			return err
		}
		bundle = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	if cache != nil {
		_ = cache.Store(rec, bundle)
	}
	return bundle, nil
}

func computePhotoSignature(path string) (*types.SignatureBundle, error) {
	sum, _, err := checksumFile(path)
	if err != nil {
		return nil, err
	}

	bundle := &types.SignatureBundle{Checksum: sum}
	bundle.Meta = readExifMetadata(path)

	// Auto-orient so two copies of the same photo that differ only by
	// EXIF orientation flag hash identically (spec.md §4.4's
	// phash_distance note on orientation-normalized comparison).
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		// A checksum without a usable perceptual hash is still a valid,
		// if less useful, signature: corrupt or unsupported image codecs
		// (some RAW variants, truncated files) shouldn't abort the whole
		// file's extraction.
		return bundle, nil
	}
	if bundle.Meta.Width == 0 || bundle.Meta.Height == 0 {
		bounds := img.Bounds()
		bundle.Meta.Width = bounds.Dx()
		bundle.Meta.Height = bounds.Dy()
	}

	hash, err := goimagehash.DifferenceHash(img)
	if err != nil {
		return bundle, nil
	}
	bundle.HasPHash = true
	bundle.PHash = hash.GetHash()

	return bundle, nil
}
