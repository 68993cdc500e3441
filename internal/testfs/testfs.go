// Package testfs provides test infrastructure for creating synthetic
// media trees: deterministic JPEG fixtures on a t.TempDir() root, used
// by internal/signature, internal/merge, and internal/engine tests to exercise the perceptual-hash and merge
// pipeline without checking binary fixtures into the repo.
package testfs

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/disintegration/imaging"
)

// Harness creates files under a temporary directory and cleans up via
// t.TempDir()'s own mechanics.
type Harness struct {
	t    *testing.T
	root string
}

// New creates a Harness rooted at a fresh t.TempDir().
func New(t *testing.T) *Harness {
	t.Helper()
	return &Harness{t: t, root: t.TempDir()}
}

// Root returns the harness's temporary directory.
func (h *Harness) Root() string {
	return h.root
}

// Path resolves rel against the harness root.
func (h *Harness) Path(rel string) string {
	return filepath.Join(h.root, rel)
}

// WriteFile creates rel (relative to the harness root) with the given
// bytes, creating parent directories as needed, and returns the
// absolute path.
func (h *Harness) WriteFile(rel string, data []byte) string {
	h.t.Helper()
	path := h.Path(rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		h.t.Fatalf("mkdir for %s: %v", rel, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		h.t.Fatalf("write %s: %v", rel, err)
	}
	return path
}

// SetModTime backdates or forwards a file's modification time, for
// exercising capture-time tie-breaking and keeper ranking (spec.md
// §4.5).
func (h *Harness) SetModTime(rel string, when time.Time) {
	h.t.Helper()
	if err := os.Chtimes(h.Path(rel), when, when); err != nil {
		h.t.Fatalf("chtimes %s: %v", rel, err)
	}
}

// Remove deletes rel, failing the test if it is missing.
func (h *Harness) Remove(rel string) {
	h.t.Helper()
	if err := os.Remove(h.Path(rel)); err != nil {
		h.t.Fatalf("remove %s: %v", rel, err)
	}
}

// GeneratePattern renders a deterministic synthetic photo: the same
// seed always produces byte-identical pixels, so two calls with equal
// seeds simulate true duplicates and differing seeds simulate distinct
// photos. Pixels are painted in coarse blocks rather than per-pixel
// noise, since goimagehash's perceptual hash itself downsamples to an
// 8x8 grid before thresholding - per-pixel noise would average out to
// uniform gray and defeat the point of a seeded fixture.
func GeneratePattern(width, height int, seed int64) image.Image {
	const blockSize = 8
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	rnd := rand.New(rand.NewSource(seed))

	for by := 0; by < height; by += blockSize {
		for bx := 0; bx < width; bx += blockSize {
			c := color.RGBA{
				R: uint8(rnd.Intn(256)),
				G: uint8(rnd.Intn(256)),
				B: uint8(rnd.Intn(256)),
				A: 255,
			}
			for y := by; y < by+blockSize && y < height; y++ {
				for x := bx; x < bx+blockSize && x < width; x++ {
					img.Set(x, y, c)
				}
			}
		}
	}
	return img
}

// EncodeJPEG encodes img at the given quality (1-100).
func EncodeJPEG(t *testing.T, img image.Image, quality int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	return buf.Bytes()
}

// WriteJPEG renders a deterministic synthetic photo from seed and
// writes it as rel, returning the absolute path. Two calls with the
// same seed, dimensions and quality produce byte-identical files; at
// different quality settings they are checksum-distinct but
// perceptually near-identical.
func (h *Harness) WriteJPEG(rel string, width, height int, seed int64, quality int) string {
	h.t.Helper()
	data := EncodeJPEG(h.t, GeneratePattern(width, height, seed), quality)
	return h.WriteFile(rel, data)
}

// WriteJPEGResized writes rel as the seeded source pattern resized to
// dstWidth x dstHeight, simulating a thumbnail or re-export of an
// original photo - the near-duplicate case spec.md §4.4's
// resolution-tolerant phash comparison exists to catch.
func (h *Harness) WriteJPEGResized(rel string, srcWidth, srcHeight int, seed int64, dstWidth, dstHeight, quality int) string {
	h.t.Helper()
	src := GeneratePattern(srcWidth, srcHeight, seed)
	resized := imaging.Resize(src, dstWidth, dstHeight, imaging.Lanczos)
	data := EncodeJPEG(h.t, resized, quality)
	return h.WriteFile(rel, data)
}
