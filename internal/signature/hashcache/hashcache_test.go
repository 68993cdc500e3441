package hashcache

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/darianrose/mediadedupe/internal/types"
)

func TestCacheDisabled(t *testing.T) {
	c, err := Open("")
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer func() { _ = c.Close() }()

	rec := &types.FileRecord{FileID: uuid.New(), Path: "/test/file", Size: 100, ModTime: time.Now()}
	bundle := &types.SignatureBundle{Checksum: [32]byte{1, 2, 3}, HasPHash: true, PHash: 42}

	if err := c.Store(rec, bundle); err != nil {
		t.Errorf("Store() on a disabled cache should be a no-op, got error: %v", err)
	}
	if _, ok := c.Lookup(rec); ok {
		t.Errorf("Lookup() on a disabled cache should miss")
	}
}

func TestCacheRoundTrip(t *testing.T) {
	tmpDir := t.TempDir()
	cachePath := filepath.Join(tmpDir, "cache.db")

	c1, err := Open(cachePath)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}

	rec := &types.FileRecord{
		FileID:  uuid.New(),
		Path:    "/test/file.jpg",
		Size:    1024,
		ModTime: time.Unix(1609459200, 0),
	}
	bundle := &types.SignatureBundle{
		Checksum: [32]byte{0xab, 0xcd},
		HasPHash: true,
		PHash:    0xdeadbeef,
	}
	if err := c1.Store(rec, bundle); err != nil {
		t.Fatalf("Store() failed: %v", err)
	}
	if err := c1.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	c2, err := Open(cachePath)
	if err != nil {
		t.Fatalf("Open() second time failed: %v", err)
	}
	defer func() { _ = c2.Close() }()

	got, ok := c2.Lookup(rec)
	if !ok {
		t.Fatalf("Lookup() missed an entry written by a prior Close()")
	}
	if got.Checksum != bundle.Checksum || got.PHash != bundle.PHash || got.HasPHash != bundle.HasPHash {
		t.Errorf("Lookup() = %+v, want %+v", got, bundle)
	}
}

func TestCacheMissOnChangedSizeOrModTime(t *testing.T) {
	tmpDir := t.TempDir()
	cachePath := filepath.Join(tmpDir, "cache.db")

	c1, _ := Open(cachePath)
	rec := &types.FileRecord{FileID: uuid.New(), Path: "/test/file.jpg", Size: 1024, ModTime: time.Unix(1609459200, 0)}
	_ = c1.Store(rec, &types.SignatureBundle{Checksum: [32]byte{9}})
	_ = c1.Close()

	c2, _ := Open(cachePath)
	defer func() { _ = c2.Close() }()

	changed := *rec
	changed.Size = 2048
	if _, ok := c2.Lookup(&changed); ok {
		t.Errorf("Lookup() hit for a record whose size changed since it was cached")
	}
}

func TestCacheDropsEntriesNotTouchedThisRun(t *testing.T) {
	tmpDir := t.TempDir()
	cachePath := filepath.Join(tmpDir, "cache.db")

	kept := &types.FileRecord{FileID: uuid.New(), Path: "/a.jpg", Size: 1, ModTime: time.Unix(1, 0)}
	dropped := &types.FileRecord{FileID: uuid.New(), Path: "/b.jpg", Size: 1, ModTime: time.Unix(2, 0)}

	c1, _ := Open(cachePath)
	_ = c1.Store(kept, &types.SignatureBundle{Checksum: [32]byte{1}})
	_ = c1.Store(dropped, &types.SignatureBundle{Checksum: [32]byte{2}})
	_ = c1.Close()

	// Second run only looks up kept, never touching dropped.
	c2, _ := Open(cachePath)
	if _, ok := c2.Lookup(kept); !ok {
		t.Fatalf("Lookup(kept) missed before Close()")
	}
	_ = c2.Close()

	c3, _ := Open(cachePath)
	defer func() { _ = c3.Close() }()
	if _, ok := c3.Lookup(kept); !ok {
		t.Errorf("Lookup(kept) should survive a cycle where it was looked up")
	}
	if _, ok := c3.Lookup(dropped); ok {
		t.Errorf("Lookup(dropped) should not survive a cycle where it was never looked up or stored")
	}
}
