package merge

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/darianrose/mediadedupe/internal/mediaerr"
	"github.com/darianrose/mediadedupe/internal/types"
)

// recycleDirName is the subdirectory of the store root that holds
// moved-aside losers pending undo (spec.md §4.7 step 3: "move losers to
// recycle location").
const recycleDirName = ".mediadedupe-recycle"

// recyclePathFor builds the destination path for loserPath under
// recycleRoot/<tx_id>/ (spec.md §6: each transaction's recycled losers
// live in their own subdirectory), suffixed with "-<n>" when a
// same-named entry already occupies the slot within that subdirectory
// (spec.md §4.7: "collision -> rename suffix").
func recyclePathFor(recycleRoot string, txID types.TxID, loserPath string) string {
	txDir := filepath.Join(recycleRoot, txID.String())
	base := filepath.Join(txDir, filepath.Base(loserPath))
	if _, err := os.Lstat(base); err != nil {
		return base
	}
	for n := 1; ; n++ {
		candidate := fmt.Sprintf("%s-%d", base, n)
		if _, err := os.Lstat(candidate); err != nil {
			return candidate
		}
	}
}

// moveAside relocates src to dst atomically via os.Rename, creating
// dst's parent directory if needed. Falls back to copy+remove across
// filesystem boundaries the same way deduper.CreateHardlink falls back
// to CreateSymlink on EXDEV, except here there is no link to fall back
// to, so a copy is the only option.
func moveAside(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return mediaerr.New(mediaerr.IOError, "merge.moveAside", dst, err)
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	if err := copyFile(src, dst); err != nil {
		return mediaerr.New(mediaerr.IOError, "merge.moveAside", src, err)
	}
	if err := os.Remove(src); err != nil {
		return mediaerr.New(mediaerr.IOError, "merge.moveAside.cleanup", src, err)
	}
	return nil
}

// restoreTo moves a recycled file back to its recorded original path.
// collisionSuffix() is reused so a file that now occupies dest is never
// overwritten (spec.md §4.7 undo: "never overwrite unrelated files").
func restoreTo(recyclePath, originalPath string) (actualPath string, err error) {
	dest := originalPath
	if _, statErr := os.Lstat(dest); statErr == nil {
		dest = collisionSuffix(originalPath)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", mediaerr.New(mediaerr.IOError, "merge.restoreTo", dest, err)
	}
	if err := os.Rename(recyclePath, dest); err == nil {
		return dest, nil
	}
	if err := copyFile(recyclePath, dest); err != nil {
		return "", mediaerr.New(mediaerr.IOError, "merge.restoreTo", recyclePath, err)
	}
	if err := os.Remove(recyclePath); err != nil {
		return "", mediaerr.New(mediaerr.IOError, "merge.restoreTo.cleanup", recyclePath, err)
	}
	return dest, nil
}

func collisionSuffix(path string) string {
	for n := 1; ; n++ {
		candidate := path + "-restored-" + strconv.Itoa(n)
		if _, err := os.Lstat(candidate); err != nil {
			return candidate
		}
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp := dst + tmpSuffix
	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.CopyBuffer(out, in, make([]byte, 64*1024)); err != nil {
		out.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dst)
}
