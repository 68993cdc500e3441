package store

import (
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/darianrose/mediadedupe/internal/types"
)

var photoExts = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".heic": true, ".heif": true,
	".tif": true, ".tiff": true, ".raw": true, ".cr2": true, ".nef": true,
	".arw": true, ".dng": true, ".webp": true, ".gif": true, ".bmp": true,
}

var videoExts = map[string]bool{
	".mp4": true, ".mov": true, ".m4v": true, ".avi": true, ".mkv": true,
	".webm": true, ".3gp": true, ".wmv": true, ".mpg": true, ".mpeg": true,
}

var sidecarExts = map[string]bool{
	".xmp": true, ".aae": true, ".thm": true,
}

// ClassifyKind determines media kind from a file extension: cheap,
// metadata-only filtering (no content sniff needed for the
// overwhelming majority of real libraries; callers that need
// magic-byte sniffing for extension-less files can layer it on top via
// the Incomplete flag and a later signature pass).
func ClassifyKind(path string) types.MediaKind {
	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case photoExts[ext]:
		return types.KindPhoto
	case videoExts[ext]:
		return types.KindVideo
	case sidecarExts[ext]:
		return types.KindSidecar
	default:
		return types.KindOther
	}
}

// newFileRecord builds a FileRecord from os.FileInfo and path, pulling
// dev/ino/nlink for the OS-specific stat fields.
func newFileRecord(path string, info os.FileInfo) *types.FileRecord {
	rec := &types.FileRecord{
		FileID:  types.NewFileID(path),
		Path:    path,
		Size:    info.Size(),
		ModTime: info.ModTime(),
		Kind:    ClassifyKind(path),
	}
	if stat, ok := info.Sys().(*syscall.Stat_t); ok {
		rec.Dev = uint64(stat.Dev) //nolint:unconvert // platform-dependent type
		rec.Ino = stat.Ino
		rec.Nlink = uint32(stat.Nlink)
	}
	return rec
}

// newIncompleteRecord builds a FileRecord for a path that could not be
// stat'd (a race between ReadDir and Info(), or a permission edge case).
// spec.md §4.1 requires the record to still be emitted, flagged
// incomplete, rather than silently skipped.
func newIncompleteRecord(path string) *types.FileRecord {
	return &types.FileRecord{
		FileID:     types.NewFileID(path),
		Path:       path,
		Kind:       ClassifyKind(path),
		Incomplete: true,
	}
}
