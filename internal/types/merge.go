package types

import "time"

// FieldWrite describes one metadata field written into a keeper during a
// merge (spec.md §3, §6 transaction log "writes" list).
type FieldWrite struct {
	Field      string
	NewValue   string
	SourceFile FileID
}

// MergePlan is a proposed action for one duplicate group (spec.md §3).
type MergePlan struct {
	GroupID GroupID
	Keeper  FileID
	Losers  []FileID // ordered
	Writes  []FieldWrite
	DryRun  bool
	// ForceOverwriteFields lists metadata fields the caller explicitly
	// allows clobbering on the keeper (spec.md §4.7).
	ForceOverwriteFields map[string]bool
}

// TxStatus is a Transaction's position in the state machine (spec.md §4.7).
type TxStatus int

const (
	TxPending TxStatus = iota
	TxCommitted
	TxRolledBack
	TxUndone
	TxPartial
)

func (s TxStatus) String() string {
	switch s {
	case TxPending:
		return "pending"
	case TxCommitted:
		return "committed"
	case TxRolledBack:
		return "rolled_back"
	case TxUndone:
		return "undone"
	case TxPartial:
		return "partial"
	default:
		return "unknown"
	}
}

// LoserEntry records one moved-to-recycle file so undo can restore it
// (spec.md §3).
type LoserEntry struct {
	FileID      FileID
	OriginalPath string
	RecyclePath  string
	Size         int64
	PreMTime     time.Time
}

// Transaction is the persisted execution record for one merge or undo
// (spec.md §3, §6).
type Transaction struct {
	TxID               TxID
	Timestamp          time.Time
	GroupID            GroupID
	KeeperID           FileID
	KeeperPath         string
	Losers             []LoserEntry
	KeeperPreMetadata  Metadata
	Writes             []FieldWrite
	Status             TxStatus
	// Note carries a non-fatal annotation, e.g. a recycle path that no
	// longer exists because the user emptied trash out of band
	// (spec.md §9 Open Question 3). It never changes Status on its own.
	Note string
	// UndoOf references the transaction this record undoes, if any.
	UndoOf   TxID
	HasUndoOf bool
}

// TimeWindow bounds a transaction-log query (spec.md §4.7/§6
// list_transactions(window)). A zero Since/Until is unbounded on that
// side, so the zero value of TimeWindow matches every transaction.
type TimeWindow struct {
	Since time.Time
	Until time.Time
}
