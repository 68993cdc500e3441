package store

import (
	"os"
	"path/filepath"
	"testing"
)

func createFile(t *testing.T, path string, size int) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	data := make([]byte, size)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func runRoot(root string, minSize int64, ignoreGlobs []string, hiddenVisible bool) ([]*filesPair, []*ScanError) {
	s := New([]RootHandle{PathHandle(root)}, minSize, ignoreGlobs, hiddenVisible, 2, false, nil)
	records, errs := s.Run()
	out := make([]*filesPair, 0, len(records))
	for _, r := range records {
		out = append(out, &filesPair{path: r.Path, size: r.Size})
	}
	return out, errs
}

type filesPair struct {
	path string
	size int64
}

func TestListDirectoryBasic(t *testing.T) {
	root := t.TempDir()
	createFile(t, filepath.Join(root, "file1.jpg"), 100)
	createFile(t, filepath.Join(root, "file2.jpg"), 200)
	createFile(t, filepath.Join(root, "subdir", "file3.jpg"), 300)

	files, _ := runRoot(root, 0, nil, false)
	if len(files) != 3 {
		t.Fatalf("expected 3 files, got %d", len(files))
	}
	sizes := make(map[int64]bool)
	for _, f := range files {
		sizes[f.size] = true
	}
	for _, want := range []int64{100, 200, 300} {
		if !sizes[want] {
			t.Errorf("missing file with size %d", want)
		}
	}
}

func TestMinSizeFiltersSmallFiles(t *testing.T) {
	root := t.TempDir()
	createFile(t, filepath.Join(root, "tiny.jpg"), 10)
	createFile(t, filepath.Join(root, "big.jpg"), 10_000)

	files, _ := runRoot(root, 1000, nil, false)
	if len(files) != 1 {
		t.Fatalf("expected 1 file above the size floor, got %d", len(files))
	}
	if files[0].size != 10_000 {
		t.Errorf("kept file has size %d, want 10000", files[0].size)
	}
}

func TestHiddenFilesExcludedByDefault(t *testing.T) {
	root := t.TempDir()
	createFile(t, filepath.Join(root, ".hidden.jpg"), 100)
	createFile(t, filepath.Join(root, "visible.jpg"), 100)

	files, _ := runRoot(root, 0, nil, false)
	if len(files) != 1 {
		t.Fatalf("expected 1 visible file, got %d", len(files))
	}

	filesVisible, _ := runRoot(root, 0, nil, true)
	if len(filesVisible) != 2 {
		t.Fatalf("expected both files when hidden files are visible, got %d", len(filesVisible))
	}
}

func TestIgnoreGlobExcludesMatchingBasenames(t *testing.T) {
	root := t.TempDir()
	createFile(t, filepath.Join(root, "keep.jpg"), 100)
	createFile(t, filepath.Join(root, "skip.tmp"), 100)

	files, _ := runRoot(root, 0, []string{"*.tmp"}, false)
	if len(files) != 1 {
		t.Fatalf("expected 1 file after glob exclusion, got %d", len(files))
	}
	if filepath.Base(files[0].path) != "keep.jpg" {
		t.Errorf("kept file = %s, want keep.jpg", files[0].path)
	}
}

func TestClassifyKind(t *testing.T) {
	cases := map[string]string{
		"a.jpg": "photo", "a.JPG": "photo", "a.heic": "photo",
		"a.mp4": "video", "a.mov": "video",
		"a.xmp": "sidecar", "a.thm": "sidecar",
		"a.txt": "other",
	}
	for path, want := range cases {
		got := ClassifyKind(path).String()
		if got != want {
			t.Errorf("ClassifyKind(%q) = %q, want %q", path, got, want)
		}
	}
}
