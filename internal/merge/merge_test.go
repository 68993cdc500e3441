package merge

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/darianrose/mediadedupe/internal/dbstore"
	"github.com/darianrose/mediadedupe/internal/testfs"
	"github.com/darianrose/mediadedupe/internal/types"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func openTestDB(t *testing.T, root string) *dbstore.DB {
	t.Helper()
	db, err := dbstore.Open(filepath.Join(root, "store.db"))
	if err != nil {
		t.Fatalf("open dbstore: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newRecord(path string, size int64) *types.FileRecord {
	return &types.FileRecord{
		FileID:  uuid.New(),
		Path:    path,
		Size:    size,
		ModTime: time.Now(),
		Kind:    types.KindPhoto,
	}
}

func TestExecuteMovesLosersAndCommits(t *testing.T) {
	h := testfs.New(t)
	keeperPath := h.WriteJPEG("keeper.jpg", 64, 64, 1, 90)
	loserPath := h.WriteJPEG("loser.jpg", 64, 64, 1, 80)

	db := openTestDB(t, h.Root())
	eng := New(db, h.Root(), false, testLogger())

	keeper := newRecord(keeperPath, 100)
	loser := newRecord(loserPath, 90)
	records := map[types.FileID]*types.FileRecord{keeper.FileID: keeper, loser.FileID: loser}

	plan := types.MergePlan{
		GroupID: uuid.New(),
		Keeper:  keeper.FileID,
		Losers:  []types.FileID{loser.FileID},
	}

	tx, err := eng.Execute(plan, records)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if tx.Status != types.TxCommitted {
		t.Fatalf("status = %v, want committed", tx.Status)
	}

	testfs.AssertExists(t, keeperPath)
	testfs.AssertMissing(t, loserPath)
	if len(tx.Losers) != 1 {
		t.Fatalf("losers = %d, want 1", len(tx.Losers))
	}
	testfs.AssertExists(t, tx.Losers[0].RecyclePath)

	wantDir := filepath.Join(h.Root(), recycleDirName, tx.TxID.String())
	if gotDir := filepath.Dir(tx.Losers[0].RecyclePath); gotDir != wantDir {
		t.Errorf("recycle path dir = %q, want %q (one subdirectory per transaction)", gotDir, wantDir)
	}
}

func TestRecyclePathForNestsByTransaction(t *testing.T) {
	root := t.TempDir()
	txA, txB := uuid.New(), uuid.New()

	pathA := recyclePathFor(root, txA, "/src/same-name.jpg")
	pathB := recyclePathFor(root, txB, "/src/same-name.jpg")

	if pathA == pathB {
		t.Fatalf("two different transactions collided on the same recycle path: %q", pathA)
	}
	if filepath.Dir(pathA) != filepath.Join(root, txA.String()) {
		t.Errorf("recyclePathFor dir = %q, want a subdirectory named after the tx_id", filepath.Dir(pathA))
	}
}

func TestExecuteDryRunTouchesNothing(t *testing.T) {
	h := testfs.New(t)
	keeperPath := h.WriteJPEG("keeper.jpg", 64, 64, 1, 90)
	loserPath := h.WriteJPEG("loser.jpg", 64, 64, 1, 80)

	db := openTestDB(t, h.Root())
	eng := New(db, h.Root(), false, testLogger())

	keeper := newRecord(keeperPath, 100)
	loser := newRecord(loserPath, 90)
	records := map[types.FileID]*types.FileRecord{keeper.FileID: keeper, loser.FileID: loser}

	plan := types.MergePlan{
		GroupID: uuid.New(),
		Keeper:  keeper.FileID,
		Losers:  []types.FileID{loser.FileID},
		DryRun:  true,
	}

	tx, err := eng.Execute(plan, records)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(tx.Losers) != 1 {
		t.Fatalf("dry-run should still report the would-be loser entries")
	}

	testfs.AssertExists(t, keeperPath)
	testfs.AssertExists(t, loserPath)

	txs, err := eng.History(types.TimeWindow{})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(txs) != 0 {
		t.Errorf("dry-run must not append to the transaction log, got %d entries", len(txs))
	}
}

func TestUndoRestoresLoser(t *testing.T) {
	h := testfs.New(t)
	keeperPath := h.WriteJPEG("keeper.jpg", 64, 64, 1, 90)
	loserPath := h.WriteJPEG("loser.jpg", 64, 64, 1, 80)

	db := openTestDB(t, h.Root())
	eng := New(db, h.Root(), false, testLogger())

	keeper := newRecord(keeperPath, 100)
	loser := newRecord(loserPath, 90)
	records := map[types.FileID]*types.FileRecord{keeper.FileID: keeper, loser.FileID: loser}

	plan := types.MergePlan{GroupID: uuid.New(), Keeper: keeper.FileID, Losers: []types.FileID{loser.FileID}}
	tx, err := eng.Execute(plan, records)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	undone, err := eng.Undo(&tx.TxID)
	if err != nil {
		t.Fatalf("undo: %v", err)
	}
	if undone.Status != types.TxUndone {
		t.Fatalf("status = %v, want undone", undone.Status)
	}
	testfs.AssertExists(t, loserPath)

	txs, err := eng.History(types.TimeWindow{})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	foundUndoRecord := false
	for _, logged := range txs {
		if logged.HasUndoOf && logged.UndoOf == tx.TxID {
			foundUndoRecord = true
		}
	}
	if !foundUndoRecord {
		t.Errorf("undo must append a new record referencing its target, not just flip the original's status")
	}
}

func TestUndoTwiceFails(t *testing.T) {
	h := testfs.New(t)
	keeperPath := h.WriteJPEG("keeper.jpg", 64, 64, 1, 90)
	loserPath := h.WriteJPEG("loser.jpg", 64, 64, 1, 80)

	db := openTestDB(t, h.Root())
	eng := New(db, h.Root(), false, testLogger())

	keeper := newRecord(keeperPath, 100)
	loser := newRecord(loserPath, 90)
	records := map[types.FileID]*types.FileRecord{keeper.FileID: keeper, loser.FileID: loser}

	plan := types.MergePlan{GroupID: uuid.New(), Keeper: keeper.FileID, Losers: []types.FileID{loser.FileID}}
	tx, err := eng.Execute(plan, records)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if _, err := eng.Undo(&tx.TxID); err != nil {
		t.Fatalf("first undo: %v", err)
	}
	if _, err := eng.Undo(&tx.TxID); err == nil {
		t.Errorf("second undo of the same transaction should fail (status is no longer committed)")
	}
}

func TestRecoverPendingRollsBackCrashedTransaction(t *testing.T) {
	h := testfs.New(t)
	keeperPath := h.WriteJPEG("keeper.jpg", 64, 64, 1, 90)
	loserPath := h.WriteJPEG("loser.jpg", 64, 64, 1, 80)

	db := openTestDB(t, h.Root())

	keeper := newRecord(keeperPath, 100)

	// Simulate a crash between step 1 (log pending) and step 3 (move
	// losers): write a pending record directly, leaving the loser file
	// untouched on disk, exactly as if Execute had died right after
	// logging the pending record.
	tx := types.Transaction{
		TxID:       types.NewTxID(),
		Timestamp:  time.Now(),
		GroupID:    uuid.New(),
		KeeperID:   keeper.FileID,
		KeeperPath: keeper.Path,
		Status:     types.TxPending,
	}
	if err := putTransaction(db, tx); err != nil {
		t.Fatalf("seed pending tx: %v", err)
	}

	eng := New(db, h.Root(), false, testLogger())
	recovered, err := eng.RecoverPending()
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if len(recovered) != 1 {
		t.Fatalf("recovered = %d, want 1", len(recovered))
	}
	if recovered[0].Status != types.TxRolledBack {
		t.Errorf("status = %v, want rolled_back", recovered[0].Status)
	}
	testfs.AssertExists(t, loserPath)
}

func TestMetadataPathForRoutesRAWToXMP(t *testing.T) {
	cases := []struct {
		path string
		xmp  bool
	}{
		{"photo.jpg", false},
		{"photo.JPG", false},
		{"shot.CR2", true},
		{"shot.nef", true},
		{"shot.dng", true},
	}
	for _, c := range cases {
		got := metadataPathFor(c.path)
		isXMP := filepath.Ext(got) == ".xmp"
		if isXMP != c.xmp {
			t.Errorf("metadataPathFor(%q) = %q, want xmp=%v", c.path, got, c.xmp)
		}
	}
}

func TestExecuteWritesKeeperMetadataSidecarAndUndoRestoresIt(t *testing.T) {
	h := testfs.New(t)
	keeperPath := h.WriteJPEG("keeper.jpg", 64, 64, 1, 90)
	loserPath := h.WriteJPEG("loser.jpg", 64, 64, 1, 80)

	db := openTestDB(t, h.Root())
	eng := New(db, h.Root(), false, testLogger())

	keeper := newRecord(keeperPath, 100)
	loser := newRecord(loserPath, 90)
	records := map[types.FileID]*types.FileRecord{keeper.FileID: keeper, loser.FileID: loser}

	plan := types.MergePlan{
		GroupID: uuid.New(),
		Keeper:  keeper.FileID,
		Losers:  []types.FileID{loser.FileID},
		Writes:  []types.FieldWrite{{Field: "title", NewValue: "merged title", SourceFile: loser.FileID}},
	}

	tx, err := eng.Execute(plan, records)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	sidecar := sidecarPath(keeperPath)
	testfs.AssertExists(t, sidecar)

	meta, ok := readMetadataIfExists(sidecar)
	if !ok || meta.Title != "merged title" {
		t.Fatalf("sidecar title = %q, ok=%v", meta.Title, ok)
	}

	if _, err := eng.Undo(&tx.TxID); err != nil {
		t.Fatalf("undo: %v", err)
	}
	restored, ok := readMetadataIfExists(sidecar)
	if !ok {
		t.Fatalf("undo should leave a sidecar reflecting the pre-merge (empty) metadata")
	}
	if restored.Title != "" {
		t.Errorf("undo left title %q, want restored to empty", restored.Title)
	}
}

func TestEnsureRecycleRootCreatesDirectory(t *testing.T) {
	h := testfs.New(t)
	db := openTestDB(t, h.Root())
	eng := New(db, h.Root(), false, testLogger())

	if err := eng.EnsureRecycleRoot(); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	info, err := os.Stat(filepath.Join(h.Root(), recycleDirName))
	if err != nil || !info.IsDir() {
		t.Fatalf("recycle dir missing: %v", err)
	}
}
