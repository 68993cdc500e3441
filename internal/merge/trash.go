//go:build unix

package merge

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"
)

// moveToPlatformTrash relocates src into the current user's desktop
// trash/recycle bin rather than this application's own recycle
// directory (spec.md §4.7: "recycle: platform trash when available,
// falling back to an app-owned recycle location"). It returns the
// final resting path so Undo can move the file straight back without
// needing to understand any platform trash format.
//
// There is no single pure-Go library in the dependency stack that
// covers macOS, Linux, and Windows trash integration uniformly (each
// is a fundamentally different mechanism: a Cocoa API call, the
// freedesktop.org Trash spec, and the shell's Recycle Bin COM
// interface, respectively) — see DESIGN.md. Only Linux/freedesktop.org
// and the macOS per-user Trash folder are implemented here, both of
// which are plain filesystem moves reachable from the standard
// library; any other case, or any failure along the way, returns an
// error so the caller falls back to the app-owned recycle directory.
func moveToPlatformTrash(src string) (string, error) {
	switch runtime.GOOS {
	case "linux":
		return moveToXDGTrash(src)
	case "darwin":
		return moveToDarwinTrash(src)
	default:
		return "", fmt.Errorf("no platform trash integration for %s", runtime.GOOS)
	}
}

// moveToXDGTrash implements the file-move half of the freedesktop.org
// Trash spec: the file lands in $XDG_DATA_HOME/Trash/files (falling
// back to ~/.local/share/Trash/files) alongside a .trashinfo sidecar
// in Trash/info recording its original path and deletion time, so a
// desktop file manager can list and restore it like any other trashed
// file. mediadedupe's own undo path never reads the sidecar back; it
// already has the original path from its transaction log.
func moveToXDGTrash(src string) (string, error) {
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dataHome = filepath.Join(home, ".local", "share")
	}
	trashRoot := filepath.Join(dataHome, "Trash")
	filesDir := filepath.Join(trashRoot, "files")
	infoDir := filepath.Join(trashRoot, "info")
	if err := os.MkdirAll(filesDir, 0o700); err != nil {
		return "", err
	}
	if err := os.MkdirAll(infoDir, 0o700); err != nil {
		return "", err
	}

	absSrc, err := filepath.Abs(src)
	if err != nil {
		return "", err
	}

	name := uniqueTrashName(filesDir, filepath.Base(src))
	dst := filepath.Join(filesDir, name)
	infoPath := filepath.Join(infoDir, name+".trashinfo")

	info := "[Trash Info]\n" +
		"Path=" + trashInfoEncodePath(absSrc) + "\n" +
		"DeletionDate=" + time.Now().Format("2006-01-02T15:04:05") + "\n"
	if err := os.WriteFile(infoPath, []byte(info), 0o600); err != nil {
		return "", err
	}

	if err := moveAside(src, dst); err != nil {
		_ = os.Remove(infoPath)
		return "", err
	}
	return dst, nil
}

// moveToDarwinTrash moves src into ~/.Trash, the flat per-user trash
// folder Finder itself writes to. macOS does not require a sidecar
// file the way the freedesktop.org spec does.
func moveToDarwinTrash(src string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	trashDir := filepath.Join(home, ".Trash")
	if err := os.MkdirAll(trashDir, 0o700); err != nil {
		return "", err
	}
	name := uniqueTrashName(trashDir, filepath.Base(src))
	dst := filepath.Join(trashDir, name)
	if err := moveAside(src, dst); err != nil {
		return "", err
	}
	return dst, nil
}

// uniqueTrashName returns base, or base suffixed with a counter, such
// that dir/<name> does not already exist.
func uniqueTrashName(dir, base string) string {
	candidate := base
	for n := 1; ; n++ {
		if _, err := os.Lstat(filepath.Join(dir, candidate)); err != nil {
			return candidate
		}
		ext := filepath.Ext(base)
		candidate = base[:len(base)-len(ext)] + "." + strconv.Itoa(n) + ext
	}
}

// trashInfoEncodePath percent-encodes the bytes a .trashinfo Path=
// value must not contain raw, per the freedesktop.org spec (it is a
// URI path, not a plain filesystem path).
func trashInfoEncodePath(path string) string {
	var b []byte
	for i := 0; i < len(path); i++ {
		c := path[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9',
			c == '/', c == '-', c == '_', c == '.', c == '~':
			b = append(b, c)
		default:
			b = append(b, '%', hexDigit(c>>4), hexDigit(c&0xF))
		}
	}
	return string(b)
}

func hexDigit(n byte) byte {
	if n < 10 {
		return '0' + n
	}
	return 'a' + (n - 10)
}
