package signature

import (
	"os"
	"time"

	"github.com/rwcarlsen/goexif/exif"

	"github.com/darianrose/mediadedupe/internal/types"
)

// readExifMetadata extracts the subset of EXIF fields the Pair Scorer
// and Confidence Engine need (spec.md §4.2 metadata fields), tolerating
// a missing or unparsable EXIF segment: a photo with no EXIF simply
// yields a zero-value Metadata, not an error, since plenty of
// legitimately-duplicate photos (screenshots, downloaded images) carry
// none.
func readExifMetadata(path string) types.Metadata {
	var meta types.Metadata

	f, err := os.Open(path)
	if err != nil {
		return meta
	}
	defer func() { _ = f.Close() }()

	x, err := exif.Decode(f)
	if err != nil {
		return meta
	}

	if t, err := x.DateTime(); err == nil {
		meta.CaptureTime = t
		meta.HasCapture = true
	}

	if lat, lon, err := x.LatLong(); err == nil {
		meta.GPS = types.GPSCoord{Lat: lat, Lon: lon}
		meta.HasGPS = true
	}

	if tag, err := x.Get(exif.Model); err == nil {
		if s, err := tag.StringVal(); err == nil {
			meta.Camera = s
		}
	}

	if tag, err := x.Get(exif.Orientation); err == nil {
		if v, err := tag.Int(0); err == nil {
			meta.Orientation = v
		}
	}

	if tag, err := x.Get(exif.PixelXDimension); err == nil {
		if v, err := tag.Int(0); err == nil {
			meta.Width = v
		}
	}
	if tag, err := x.Get(exif.PixelYDimension); err == nil {
		if v, err := tag.Int(0); err == nil {
			meta.Height = v
		}
	}

	if tag, err := x.Get(exif.ImageDescription); err == nil {
		if s, err := tag.StringVal(); err == nil {
			meta.Description = s
		}
	}

	return meta
}

// captureTimeFallback falls back to filesystem mtime when no EXIF
// capture time is available. Nothing calls it; the Pair Scorer applies
// the same fallback through its own captureTimeOf.
func captureTimeFallback(meta types.Metadata, modTime time.Time) time.Time {
	if meta.HasCapture {
		return meta.CaptureTime
	}
	return modTime
}
