// Package merge implements the Merge/Undo Engine (C7, spec.md §4.7):
// planning field-level metadata merges, executing them via a crash-safe
// four-step protocol, and undoing a committed transaction. It
// generalizes two teacher mechanisms at once: deduper.Deduper's safety
// checks (the atomic temp-file-then-rename idiom in deduper/links.go,
// syscall.Flock advisory locking — see atomic.go; a loser's mtime is
// recorded in its LoserEntry but not re-checked before the move) and
// cache.Cache's bbolt-backed persistence idiom, here used for an
// append-only transaction log rather than a disposable cache (see
// txlog.go).
package merge

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/darianrose/mediadedupe/internal/dbstore"
	"github.com/darianrose/mediadedupe/internal/mediaerr"
	"github.com/darianrose/mediadedupe/internal/types"
)

// Engine executes and undoes merge plans against one store root. The
// mutex enforces spec.md §6's "process-wide single-writer mutex for
// merge operations": only one Execute/Undo/RecoverPending runs at a
// time, the same way a single *bolt.DB handle already serializes
// writers at the storage layer, but extended here to cover the
// filesystem moves bbolt itself knows nothing about.
type Engine struct {
	db          *dbstore.DB
	storeRoot   string
	recycleRoot string
	moveToTrash bool
	log         *logrus.Logger
	mu          sync.Mutex
}

// New constructs an Engine rooted at storeRoot, the directory whose
// descendants the scanned files live under (spec.md §4.7's fallback
// recycle location is a subdirectory of this root, so a cross-device
// rename is the rare case rather than the common one). moveToTrash
// mirrors Config.MoveToTrash: when true, Execute tries the platform
// trash first and only falls back to the app-owned recycle directory
// on failure (spec.md §6).
func New(db *dbstore.DB, storeRoot string, moveToTrash bool, log *logrus.Logger) *Engine {
	if log == nil {
		log = logrus.New()
		log.SetLevel(logrus.PanicLevel)
	}
	return &Engine{
		db:          db,
		storeRoot:   storeRoot,
		recycleRoot: filepath.Join(storeRoot, recycleDirName),
		moveToTrash: moveToTrash,
		log:         log,
	}
}

// EnsureRecycleRoot creates the recycle directory on first use.
func (e *Engine) EnsureRecycleRoot() error {
	return os.MkdirAll(e.recycleRoot, 0o755)
}

// recycleLoser moves loserPath aside for txID, trying the platform
// trash first when moveToTrash is set and falling back to the
// app-owned recycle/<tx_id>/ directory on any platform-trash failure,
// or unconditionally when moveToTrash is false (spec.md §6).
func (e *Engine) recycleLoser(loserPath string, txID types.TxID) (string, error) {
	if e.moveToTrash {
		if dst, err := moveToPlatformTrash(loserPath); err == nil {
			return dst, nil
		}
	}
	dest := recyclePathFor(e.recycleRoot, txID, loserPath)
	if err := moveAside(loserPath, dest); err != nil {
		return "", err
	}
	return dest, nil
}

// Execute runs plan's crash-safe protocol (spec.md §4.7 steps 1-4).
// records must contain the keeper and every loser named in plan.
//
// Dry-run short-circuits before any log or filesystem write and
// returns the transaction that would have resulted (spec.md §4.7:
// "dry-run: returns a fully-populated would-be Transaction without
// touching the filesystem").
func (e *Engine) Execute(plan types.MergePlan, records map[types.FileID]*types.FileRecord) (types.Transaction, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	keeperRec, ok := records[plan.Keeper]
	if !ok {
		return types.Transaction{}, mediaerr.New(mediaerr.NotFound, "merge.execute", "", fmt.Errorf("keeper %s missing from records", plan.Keeper))
	}

	tx := types.Transaction{
		TxID:              types.NewTxID(),
		Timestamp:         time.Now(),
		GroupID:           plan.GroupID,
		KeeperID:          plan.Keeper,
		KeeperPath:        keeperRec.Path,
		KeeperPreMetadata: metaOf(keeperRec),
		Writes:            plan.Writes,
		Status:            types.TxPending,
	}

	if plan.DryRun {
		tx.Status = types.TxCommitted
		for _, loserID := range plan.Losers {
			rec, ok := records[loserID]
			if !ok {
				continue
			}
			tx.Losers = append(tx.Losers, types.LoserEntry{
				FileID:       loserID,
				OriginalPath: rec.Path,
				RecyclePath:  recyclePathFor(e.recycleRoot, tx.TxID, rec.Path),
				Size:         rec.Size,
				PreMTime:     rec.ModTime,
			})
		}
		return tx, nil
	}

	if err := e.EnsureRecycleRoot(); err != nil {
		return types.Transaction{}, mediaerr.New(mediaerr.IOError, "merge.execute.ensureRecycleRoot", e.recycleRoot, err)
	}

	// Step 1: allocate tx_id, snapshot keeper metadata, append a
	// pending record, fsync (bbolt's Update commit fsyncs).
	if err := putTransaction(e.db, tx); err != nil {
		return types.Transaction{}, mediaerr.New(mediaerr.IOError, "merge.execute.logPending", "", err)
	}

	// Step 2: atomic temp-then-rename metadata write.
	wroteMetadata := false
	if err := e.applyWrites(keeperRec, plan.Writes); err != nil {
		tx.Note = err.Error()
		e.rollback(&tx, nil, false)
		return tx, mediaerr.New(mediaerr.IOError, "merge.execute.applyWrites", keeperRec.Path, err)
	}
	wroteMetadata = len(plan.Writes) > 0

	// Step 3: move losers to the recycle location.
	var moved []types.LoserEntry
	for _, loserID := range plan.Losers {
		rec, ok := records[loserID]
		if !ok {
			continue
		}
		release, lockErr := acquireExclusiveLock(rec.Path)
		if lockErr != nil {
			tx.Note = fmt.Sprintf("loser %s locked: %v", rec.Path, lockErr)
			e.rollback(&tx, moved, wroteMetadata)
			return tx, mediaerr.New(mediaerr.ConcurrentModification, "merge.execute.lockLoser", rec.Path, lockErr)
		}
		dest, moveErr := e.recycleLoser(rec.Path, tx.TxID)
		release()
		if moveErr != nil {
			tx.Note = moveErr.Error()
			e.rollback(&tx, moved, wroteMetadata)
			return tx, mediaerr.New(mediaerr.IOError, "merge.execute.moveLoser", rec.Path, moveErr)
		}
		entry := types.LoserEntry{FileID: loserID, OriginalPath: rec.Path, RecyclePath: dest, Size: rec.Size, PreMTime: rec.ModTime}
		moved = append(moved, entry)
		tx.Losers = append(tx.Losers, entry)
	}

	// Step 4: append committed, fsync.
	tx.Status = types.TxCommitted
	if err := putTransaction(e.db, tx); err != nil {
		// The filesystem-side work already succeeded; failing to
		// durably record "committed" is the partial state spec.md
		// §4.7 calls out, since rolling back now risks racing a
		// process that reads the log and sees it still pending.
		tx.Status = types.TxPartial
		_ = putTransaction(e.db, tx)
		return tx, mediaerr.New(mediaerr.FatalPartial, "merge.execute.logCommitted", "", err)
	}

	return tx, nil
}

// applyWrites renders plan.Writes into either the keeper's metadata
// sidecar or, for RAW keepers, an XMP sidecar (spec.md §4.7).
func (e *Engine) applyWrites(keeper *types.FileRecord, writes []types.FieldWrite) error {
	if len(writes) == 0 {
		return nil
	}
	meta := metaOf(keeper)
	applyFieldWrites(&meta, writes)
	return writeMetadataAtomic(metadataPathFor(keeper.Path), meta)
}

// metadataPathFor is the write target for a keeper's merged metadata:
// an XMP sidecar for RAW files, a JSON overlay otherwise (spec.md
// §4.7; see atomic.go's sidecarPath/xmpSidecarPath doc comments for why
// no format writes binary EXIF in place).
func metadataPathFor(keeperPath string) string {
	if requiresSidecar(keeperPath) {
		return xmpSidecarPath(keeperPath)
	}
	return sidecarPath(keeperPath)
}

// rollback restores whatever Execute had already done (spec.md §4.7:
// "restore moved losers, restore keeper metadata, mark rolled_back; if
// rollback itself fails, mark partial").
func (e *Engine) rollback(tx *types.Transaction, moved []types.LoserEntry, restoreMetadata bool) {
	failed := false
	for _, entry := range moved {
		if _, err := restoreTo(entry.RecyclePath, entry.OriginalPath); err != nil {
			failed = true
			e.log.WithError(err).WithField("path", entry.OriginalPath).Error("rollback failed to restore loser")
		}
	}

	if restoreMetadata {
		if err := writeMetadataAtomic(metadataPathFor(tx.KeeperPath), tx.KeeperPreMetadata); err != nil {
			failed = true
			e.log.WithError(err).WithField("path", tx.KeeperPath).Error("rollback failed to restore keeper metadata")
		}
	}

	if failed {
		tx.Status = types.TxPartial
	} else {
		tx.Status = types.TxRolledBack
	}

	if err := putTransaction(e.db, *tx); err != nil {
		e.log.WithError(err).Error("failed to persist rollback status")
	}
}

// applyFieldWrites mutates meta in place per writes, the inverse of
// Plan's construction of those writes.
func applyFieldWrites(meta *types.Metadata, writes []types.FieldWrite) {
	for _, w := range writes {
		switch w.Field {
		case "capture_time":
			if t, err := time.Parse("2006-01-02T15:04:05Z07:00", w.NewValue); err == nil {
				meta.CaptureTime, meta.HasCapture = t, true
			}
		case "gps":
			var lat, lon, alt float64
			n, _ := fmt.Sscanf(w.NewValue, "%f,%f,%f", &lat, &lon, &alt)
			if n >= 2 {
				meta.GPS = types.GPSCoord{Lat: lat, Lon: lon, Alt: alt, HasAlt: n == 3}
				meta.HasGPS = true
			}
		case "keywords":
			meta.Keywords = splitNonEmpty(w.NewValue, ",")
		case "orientation":
			var o int
			if _, err := fmt.Sscanf(w.NewValue, "%d", &o); err == nil {
				meta.Orientation = o
			}
		case "camera":
			meta.Camera = w.NewValue
		case "title":
			meta.Title = w.NewValue
		case "description":
			meta.Description = w.NewValue
		}
	}
}

func splitNonEmpty(s, sep string) []string {
	if s == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || string(s[i]) == sep {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}

// RecoverPending scans the transaction log for records still in
// TxPending — the trace of a process that crashed mid-Execute — and
// rolls each back (spec.md §4.7: "crash recovery: on startup scan
// transaction log for pending records, attempt rollback for each"). A
// transaction that ends up TxPartial is returned in the result; Execute
// does not check for TxPartial records, so it does not block later
// merges.
func (e *Engine) RecoverPending() ([]types.Transaction, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	pending, err := pendingTransactions(e.db)
	if err != nil {
		return nil, mediaerr.New(mediaerr.IOError, "merge.recoverPending.scan", "", err)
	}
	recovered := make([]types.Transaction, 0, len(pending))
	for _, tx := range pending {
		tx := tx
		e.rollback(&tx, tx.Losers, len(tx.Writes) > 0)
		e.log.WithFields(logrus.Fields{"tx_id": tx.TxID, "status": tx.Status}).Warn("recovered pending transaction from crash")
		recovered = append(recovered, tx)
	}
	return recovered, nil
}

// History returns every logged transaction whose timestamp falls
// inside window, oldest first (spec.md §4.7/§6 list_transactions(window)).
// A zero types.TimeWindow is unbounded on both ends.
func (e *Engine) History(window types.TimeWindow) ([]types.Transaction, error) {
	return transactionsInWindow(e.db, window)
}

// Undo reverses a committed transaction (spec.md §4.7). If txID is nil,
// the most recently committed transaction is targeted.
func (e *Engine) Undo(txID *types.TxID) (types.Transaction, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var target types.Transaction
	var found bool
	var err error
	if txID != nil {
		target, found, err = findTransaction(e.db, *txID)
	} else {
		target, found, err = mostRecentCommitted(e.db)
	}
	if err != nil {
		return types.Transaction{}, mediaerr.New(mediaerr.IOError, "merge.undo.lookup", "", err)
	}
	if !found {
		return types.Transaction{}, mediaerr.New(mediaerr.NotFound, "merge.undo.lookup", "", fmt.Errorf("no undoable transaction"))
	}
	if target.Status != types.TxCommitted {
		return types.Transaction{}, mediaerr.New(mediaerr.CollisionUnresolvable, "merge.undo", "", fmt.Errorf("transaction %s is not committed (status %s)", target.TxID, target.Status))
	}

	for i, entry := range target.Losers {
		restored, err := restoreTo(entry.RecyclePath, entry.OriginalPath)
		if err != nil && errors.Is(err, os.ErrNotExist) {
			// The recycled copy vanished outside this engine (e.g. trash
			// emptied by hand): report not_found and keep the transaction
			// committed, with a note, rather than marking it partial.
			target.Note = fmt.Sprintf("recycled file %s no longer exists", entry.RecyclePath)
			_ = putTransaction(e.db, target)
			return target, mediaerr.New(mediaerr.NotFound, "merge.undo.restoreLoser", entry.RecyclePath, err)
		}
		if err != nil {
			target.Status = types.TxPartial
			target.Note = err.Error()
			_ = putTransaction(e.db, target)
			return target, mediaerr.New(mediaerr.IOError, "merge.undo.restoreLoser", entry.OriginalPath, err)
		}
		target.Losers[i].RecyclePath = restored
	}

	if len(target.Writes) > 0 && target.KeeperPath != "" {
		if err := writeMetadataAtomic(metadataPathFor(target.KeeperPath), target.KeeperPreMetadata); err != nil {
			e.log.WithError(err).WithField("path", target.KeeperPath).Warn("undo: failed to restore keeper metadata sidecar")
		}
	}

	target.Status = types.TxUndone
	if err := putTransaction(e.db, target); err != nil {
		return target, mediaerr.New(mediaerr.IOError, "merge.undo.logUndone", "", err)
	}

	// The undo itself is logged as a new record referencing its
	// target (spec.md §4.7), distinct from flipping the original
	// record's own Status above.
	undoRecord := types.Transaction{
		TxID:      types.NewTxID(),
		Timestamp: time.Now(),
		GroupID:   target.GroupID,
		KeeperID:  target.KeeperID,
		KeeperPath: target.KeeperPath,
		Status:    types.TxCommitted,
		UndoOf:    target.TxID,
		HasUndoOf: true,
	}
	if err := putTransaction(e.db, undoRecord); err != nil {
		e.log.WithError(err).Warn("undo: failed to log undo record")
	}

	return target, nil
}
