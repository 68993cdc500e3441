package merge

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/darianrose/mediadedupe/internal/dbstore"
	"github.com/darianrose/mediadedupe/internal/types"
)

// txLogKey orders the transaction log chronologically under bbolt's
// natural byte-order key iteration: an 8-byte big-endian UnixNano
// timestamp followed by the tx_id, so a forward cursor walk is always
// oldest-first and a reverse walk is always newest-first (spec.md §6's
// "append-only transaction log").
func txLogKey(tx types.Transaction) []byte {
	key := make([]byte, 8+16)
	binary.BigEndian.PutUint64(key[:8], uint64(tx.Timestamp.UnixNano()))
	id, _ := tx.TxID.MarshalBinary()
	copy(key[8:], id)
	return key
}

// putTransaction writes or overwrites a transaction log record (used
// both to append a new record and to flip an existing one's Status, per
// spec.md §4.7's pending -> committed/rolled_back/undone/partial
// transitions — each transition rewrites the same key in place so the
// log never grows an entry per transition, only per transaction).
func putTransaction(db *dbstore.DB, tx types.Transaction) error {
	data, err := json.Marshal(tx)
	if err != nil {
		return fmt.Errorf("marshal transaction: %w", err)
	}
	return db.Update(func(btx *bolt.Tx) error {
		return btx.Bucket(dbstore.Buckets.TxLog).Put(txLogKey(tx), data)
	})
}

// allTransactions returns every logged transaction, oldest first.
func allTransactions(db *dbstore.DB) ([]types.Transaction, error) {
	return transactionsInWindow(db, types.TimeWindow{})
}

// transactionsInWindow performs a bounded bbolt cursor scan over the
// transaction log, seeking straight to the first key at or after
// window.Since and stopping as soon as a key's timestamp passes
// window.Until, instead of decoding the whole bucket and filtering in
// memory. A zero Since/Until leaves that side unbounded, so the zero
// types.TimeWindow reproduces a full oldest-first scan.
func transactionsInWindow(db *dbstore.DB, window types.TimeWindow) ([]types.Transaction, error) {
	var out []types.Transaction
	err := db.View(func(btx *bolt.Tx) error {
		c := btx.Bucket(dbstore.Buckets.TxLog).Cursor()

		var k, v []byte
		if window.Since.IsZero() {
			k, v = c.First()
		} else {
			seek := make([]byte, 8)
			binary.BigEndian.PutUint64(seek, uint64(window.Since.UnixNano()))
			k, v = c.Seek(seek)
		}

		hasUntil := !window.Until.IsZero()
		untilNano := uint64(0)
		if hasUntil {
			untilNano = uint64(window.Until.UnixNano())
		}

		for ; k != nil; k, v = c.Next() {
			if hasUntil && binary.BigEndian.Uint64(k[:8]) > untilNano {
				break
			}
			var tx types.Transaction
			if err := json.Unmarshal(v, &tx); err != nil {
				return fmt.Errorf("decode tx log entry: %w", err)
			}
			out = append(out, tx)
		}
		return nil
	})
	return out, err
}

// findTransaction looks up a transaction by id, scanning the log since
// the key is prefixed by timestamp rather than tx_id.
func findTransaction(db *dbstore.DB, id types.TxID) (types.Transaction, bool, error) {
	txs, err := allTransactions(db)
	if err != nil {
		return types.Transaction{}, false, err
	}
	for _, tx := range txs {
		if tx.TxID == id {
			return tx, true, nil
		}
	}
	return types.Transaction{}, false, nil
}

// mostRecentCommitted returns the newest merge transaction whose Status
// is TxCommitted, skipping the records that log an undo (HasUndoOf),
// the target of an undo() call with no explicit tx_id (spec.md §4.7's
// undo "most recently committed transaction").
func mostRecentCommitted(db *dbstore.DB) (types.Transaction, bool, error) {
	txs, err := allTransactions(db)
	if err != nil {
		return types.Transaction{}, false, err
	}
	for i := len(txs) - 1; i >= 0; i-- {
		if txs[i].Status == types.TxCommitted && !txs[i].HasUndoOf {
			return txs[i], true, nil
		}
	}
	return types.Transaction{}, false, nil
}

// pendingTransactions returns every transaction still in TxPending,
// the crash-recovery scan target (spec.md §4.7 "on startup, scan the
// transaction log for pending records").
func pendingTransactions(db *dbstore.DB) ([]types.Transaction, error) {
	txs, err := allTransactions(db)
	if err != nil {
		return nil, err
	}
	var pending []types.Transaction
	for _, tx := range txs {
		if tx.Status == types.TxPending {
			pending = append(pending, tx)
		}
	}
	return pending, nil
}
