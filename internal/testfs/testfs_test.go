package testfs

import (
	"bytes"
	"image/jpeg"
	"os"
	"testing"
)

func TestWriteJPEGSameSeedIsByteIdentical(t *testing.T) {
	h := New(t)
	a := h.WriteJPEG("a.jpg", 64, 64, 42, 90)
	b := h.WriteJPEG("b.jpg", 64, 64, 42, 90)

	da, err := os.ReadFile(a)
	if err != nil {
		t.Fatalf("read a: %v", err)
	}
	db, err := os.ReadFile(b)
	if err != nil {
		t.Fatalf("read b: %v", err)
	}
	if !bytes.Equal(da, db) {
		t.Errorf("same seed produced different bytes")
	}
}

func TestWriteJPEGDifferentSeedDiffers(t *testing.T) {
	h := New(t)
	a := h.WriteJPEG("a.jpg", 64, 64, 1, 90)
	b := h.WriteJPEG("b.jpg", 64, 64, 2, 90)

	da, _ := os.ReadFile(a)
	db, _ := os.ReadFile(b)
	if bytes.Equal(da, db) {
		t.Errorf("different seeds produced identical bytes")
	}
}

func TestWriteJPEGResizedDecodes(t *testing.T) {
	h := New(t)
	path := h.WriteJPEGResized("thumb.jpg", 256, 256, 7, 64, 64, 85)

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	img, err := jpeg.Decode(f)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	bounds := img.Bounds()
	if bounds.Dx() != 64 || bounds.Dy() != 64 {
		t.Errorf("got dims %dx%d, want 64x64", bounds.Dx(), bounds.Dy())
	}
}

func TestAssertExistsAndMissing(t *testing.T) {
	h := New(t)
	path := h.WriteFile("x.txt", []byte("hello"))
	AssertExists(t, path)

	h.Remove("x.txt")
	AssertMissing(t, path)
}
