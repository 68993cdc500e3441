//go:build unix

package merge

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/darianrose/mediadedupe/internal/types"
)

// tmpSuffix marks a temp file mid-write, making the write-then-rename
// step recognizable and safely cleanable if the process dies mid-write.
const tmpSuffix = ".mediadedupe.tmp"

// orphanedTmpMaxAge: a .tmp file younger than this is assumed to
// belong to an in-flight operation and is left alone.
const orphanedTmpMaxAge = 1 * time.Minute

// sidecarPath returns the JSON metadata-overlay path for keeperPath.
// No library in the dependency stack writes binary EXIF (goexif only
// decodes), so "the keeper's metadata" is represented as a sidecar
// file alongside it rather than mutated in-place — see DESIGN.md.
func sidecarPath(keeperPath string) string {
	return keeperPath + ".mediadedupe-meta.json"
}

// xmpSidecarPath returns the RAW-file sidecar path (spec.md §4.7: "RAW
// files: never rewrite in place; write an XMP sidecar instead").
func xmpSidecarPath(keeperPath string) string {
	ext := filepath.Ext(keeperPath)
	return keeperPath[:len(keeperPath)-len(ext)] + ".xmp"
}

// writeMetadataAtomic marshals meta as JSON and writes it to path via
// a temp-file-then-rename idiom: write to path+tmpSuffix in the same
// directory (so the rename is same-filesystem and atomic), then
// os.Rename into place. Any orphaned temp file left by a crashed
// previous attempt is cleaned up first via tryCleanupOrphanedTmp.
func writeMetadataAtomic(path string, meta types.Metadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	tmp := path + tmpSuffix
	if _, err := os.Stat(tmp); err == nil {
		if cleanupErr := tryCleanupOrphanedTmp(tmp); cleanupErr != nil {
			return fmt.Errorf("stale tmp file %s cannot be cleaned: %w", tmp, cleanupErr)
		}
	}

	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write tmp metadata: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename tmp metadata into place: %w", err)
	}
	return nil
}

// readMetadataIfExists reads a previously written sidecar, returning
// (zero value, false) if it does not exist.
func readMetadataIfExists(path string) (types.Metadata, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.Metadata{}, false
	}
	var meta types.Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return types.Metadata{}, false
	}
	return meta, true
}

// tryCleanupOrphanedTmp removes path only if it is old enough to be
// safely assumed abandoned. There is no nlink check here, since this
// tmp is a small JSON sidecar, not a hardlink target whose only copy
// of data could be destroyed.
func tryCleanupOrphanedTmp(path string) error {
	info, err := os.Lstat(path)
	if err != nil {
		return fmt.Errorf("lstat: %w", err)
	}
	if info.ModTime().After(time.Now().Add(-orphanedTmpMaxAge)) {
		return fmt.Errorf("tmp file too recent (mtime %v)", info.ModTime())
	}
	return os.Remove(path)
}

// acquireExclusiveLock takes a non-blocking advisory flock on path's
// file descriptor, the same safety check deduper.dedupeFile uses
// before mutating a target: if another process holds it, skip rather
// than wait or corrupt concurrent access.
func acquireExclusiveLock(path string) (release func(), err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		_ = f.Close()
		return nil, errors.New("file in use (locked by another process)")
	}
	return func() { _ = f.Close() }, nil
}
