package merge

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/darianrose/mediadedupe/internal/types"
)

func TestTransactionsInWindowBoundsByTimestamp(t *testing.T) {
	h := t.TempDir()
	db := openTestDB(t, h)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var ids []types.TxID
	for i := 0; i < 5; i++ {
		tx := types.Transaction{
			TxID:      types.NewTxID(),
			Timestamp: base.Add(time.Duration(i) * time.Hour),
			GroupID:   uuid.New(),
			Status:    types.TxCommitted,
		}
		ids = append(ids, tx.TxID)
		if err := putTransaction(db, tx); err != nil {
			t.Fatalf("seed tx %d: %v", i, err)
		}
	}

	full, err := transactionsInWindow(db, types.TimeWindow{})
	if err != nil {
		t.Fatalf("full scan: %v", err)
	}
	if len(full) != 5 {
		t.Fatalf("full scan returned %d, want 5", len(full))
	}

	window := types.TimeWindow{
		Since: base.Add(1 * time.Hour),
		Until: base.Add(3 * time.Hour),
	}
	bounded, err := transactionsInWindow(db, window)
	if err != nil {
		t.Fatalf("bounded scan: %v", err)
	}
	if len(bounded) != 3 {
		t.Fatalf("bounded scan returned %d transactions, want 3 (hours 1,2,3)", len(bounded))
	}
	for _, tx := range bounded {
		if tx.Timestamp.Before(window.Since) || tx.Timestamp.After(window.Until) {
			t.Errorf("transaction at %v falls outside requested window [%v,%v]", tx.Timestamp, window.Since, window.Until)
		}
	}

	sinceOnly, err := transactionsInWindow(db, types.TimeWindow{Since: base.Add(3 * time.Hour)})
	if err != nil {
		t.Fatalf("since-only scan: %v", err)
	}
	if len(sinceOnly) != 2 {
		t.Fatalf("since-only scan returned %d, want 2 (hours 3,4)", len(sinceOnly))
	}
}
