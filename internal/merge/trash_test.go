//go:build unix

package merge

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/darianrose/mediadedupe/internal/testfs"
)

func TestMoveToXDGTrashWritesFileAndSidecar(t *testing.T) {
	dataHome := t.TempDir()
	t.Setenv("XDG_DATA_HOME", dataHome)

	h := testfs.New(t)
	src := h.WriteJPEG("loser.jpg", 32, 32, 1, 80)

	dst, err := moveToXDGTrash(src)
	if err != nil {
		t.Fatalf("moveToXDGTrash: %v", err)
	}
	testfs.AssertExists(t, dst)
	testfs.AssertMissing(t, src)

	if filepath.Dir(dst) != filepath.Join(dataHome, "Trash", "files") {
		t.Errorf("trashed file dir = %q, want .../Trash/files", filepath.Dir(dst))
	}

	infoPath := filepath.Join(dataHome, "Trash", "info", filepath.Base(dst)+".trashinfo")
	data, err := os.ReadFile(infoPath)
	if err != nil {
		t.Fatalf("trashinfo sidecar missing: %v", err)
	}
	if !strings.Contains(string(data), "[Trash Info]") || !strings.Contains(string(data), "Path=") {
		t.Errorf("trashinfo content = %q, missing required fields", data)
	}
}

func TestUniqueTrashNameAvoidsCollision(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.jpg"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	name := uniqueTrashName(dir, "a.jpg")
	if name == "a.jpg" {
		t.Errorf("expected a renamed candidate when a.jpg already exists")
	}
}
