package store

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"

	bolt "go.etcd.io/bbolt"

	"github.com/darianrose/mediadedupe/internal/dbstore"
	"github.com/darianrose/mediadedupe/internal/types"
)

// wireRecord is the JSON-on-disk shape of a FileRecord. Signature bundles
// are stored in a separate bucket (written by StoreSignature) so
// re-running extraction doesn't require rewriting the whole record.
type wireRecord struct {
	FileID     string `json:"file_id"`
	Path       string `json:"path"`
	Size       int64  `json:"size"`
	ModTimeNS  int64  `json:"mod_time_ns"`
	Kind       int    `json:"kind"`
	Dev        uint64 `json:"dev"`
	Ino        uint64 `json:"ino"`
	Nlink      uint32 `json:"nlink"`
	Incomplete bool   `json:"incomplete"`
}

// Registry is the Content Store's authoritative, persisted view of
// FileRecords: the exclusive owner per spec.md §3's ownership rule.
// Exposes enumerate (via Store.Run, fed through Reconcile), lookup, and
// invalidate.
type Registry struct {
	db *dbstore.DB
	mu sync.RWMutex
	// cache mirrors the bbolt contents in memory for lookup/invalidate
	// without a round trip per call; Reconcile keeps it and the db in
	// sync.
	cache map[types.FileID]*types.FileRecord
}

// NewRegistry opens (or attaches to an already-open) store.db-backed
// registry.
func NewRegistry(db *dbstore.DB) (*Registry, error) {
	r := &Registry{db: db, cache: make(map[types.FileID]*types.FileRecord)}
	if err := r.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(dbstore.Buckets.FileRecord)
		if err := b.ForEach(func(_, v []byte) error {
			var w wireRecord
			if err := json.Unmarshal(v, &w); err != nil {
				return err
			}
			rec, err := w.toRecord()
			if err != nil {
				return err
			}
			r.cache[rec.FileID] = rec
			return nil
		}); err != nil {
			return err
		}

		sigB := tx.Bucket(dbstore.Buckets.Signature)
		for id, rec := range r.cache {
			key := idKey(id)
			v := sigB.Get(key)
			if v == nil {
				continue
			}
			var w wireBundle
			if err := json.Unmarshal(v, &w); err != nil {
				return err
			}
			rec.Signature = w.toBundle()
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("load file records: %w", err)
	}
	return r, nil
}

// Lookup returns the FileRecord for id, or (nil, false) if unknown.
func (r *Registry) Lookup(id types.FileID) (*types.FileRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.cache[id]
	return rec, ok
}

// Invalidate drops the persisted SignatureBundle for id (spec.md §4.1:
// "When a previously-seen path reappears with a different size or mtime,
// its signatures are invalidated"). The FileRecord itself is left in
// place with Signature set to nil and Incomplete cleared so the next
// extraction pass recomputes it.
func (r *Registry) Invalidate(id types.FileID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.cache[id]
	if !ok {
		return nil
	}
	rec.Signature = nil
	rec.Incomplete = false
	return r.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(dbstore.Buckets.Signature).Delete(idKey(id))
	})
}

// wireBundle is the JSON-on-disk shape of a SignatureBundle, stored
// separately from its FileRecord so re-extraction never touches the
// FileRecord bucket.
type wireBundle struct {
	Checksum string                 `json:"checksum"`
	HasPHash bool                   `json:"has_phash"`
	PHash    uint64                 `json:"phash"`
	HasVideo bool                   `json:"has_video"`
	VideoFP  types.VideoFingerprint `json:"video_fp"`
	Meta     types.Metadata         `json:"meta"`
}

func fromBundle(b *types.SignatureBundle) wireBundle {
	return wireBundle{
		Checksum: hex.EncodeToString(b.Checksum[:]),
		HasPHash: b.HasPHash,
		PHash:    b.PHash,
		HasVideo: b.HasVideo,
		VideoFP:  b.VideoFP,
		Meta:     b.Meta,
	}
}

func (w wireBundle) toBundle() *types.SignatureBundle {
	b := &types.SignatureBundle{HasPHash: w.HasPHash, PHash: w.PHash, HasVideo: w.HasVideo, VideoFP: w.VideoFP, Meta: w.Meta}
	if raw, err := hex.DecodeString(w.Checksum); err == nil && len(raw) == len(b.Checksum) {
		copy(b.Checksum[:], raw)
	}
	return b
}

// StoreSignature persists bundle as id's SignatureBundle, both in the
// in-memory cache and in store.db, and marks the record complete or
// incomplete accordingly (spec.md §4.2's extraction result feeding back
// into the record it was computed for).
func (r *Registry) StoreSignature(id types.FileID, bundle *types.SignatureBundle, incomplete bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.cache[id]
	if !ok {
		return nil
	}
	rec.Signature = bundle
	rec.Incomplete = incomplete
	buf, err := json.Marshal(fromBundle(bundle))
	if err != nil {
		return err
	}
	return r.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(dbstore.Buckets.Signature).Put(idKey(id), buf); err != nil {
			return err
		}
		return tx.Bucket(dbstore.Buckets.FileRecord).Put(idKey(id), mustMarshalRecord(rec))
	})
}

func mustMarshalRecord(rec *types.FileRecord) []byte {
	buf, _ := json.Marshal(fromRecord(rec))
	return buf
}

// Reconcile merges freshly enumerated records into the registry,
// invalidating signatures for any path whose size or mtime changed, and
// persists the result. Records for paths that disappeared are removed
// (spec.md §4.1's "destroyed only when the root is deselected or the
// file disappears on re-enumeration").
func (r *Registry) Reconcile(fresh []*types.FileRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[types.FileID]bool, len(fresh))
	return r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(dbstore.Buckets.FileRecord)
		sigB := tx.Bucket(dbstore.Buckets.Signature)

		for _, rec := range fresh {
			seen[rec.FileID] = true
			if prev, ok := r.cache[rec.FileID]; ok {
				if prev.Size != rec.Size || !prev.ModTime.Equal(rec.ModTime) {
					if err := sigB.Delete(idKey(rec.FileID)); err != nil {
						return err
					}
				} else {
					rec.Signature = prev.Signature
				}
			}
			r.cache[rec.FileID] = rec
			buf, err := json.Marshal(fromRecord(rec))
			if err != nil {
				return err
			}
			if err := b.Put(idKey(rec.FileID), buf); err != nil {
				return err
			}
		}

		for id := range r.cache {
			if !seen[id] {
				delete(r.cache, id)
				if err := b.Delete(idKey(id)); err != nil {
					return err
				}
				if err := sigB.Delete(idKey(id)); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// All returns every currently-registered FileRecord.
func (r *Registry) All() []*types.FileRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*types.FileRecord, 0, len(r.cache))
	for _, rec := range r.cache {
		out = append(out, rec)
	}
	return out
}

func idKey(id types.FileID) []byte {
	b := id
	return b[:]
}

func fromRecord(rec *types.FileRecord) wireRecord {
	return wireRecord{
		FileID:     rec.FileID.String(),
		Path:       rec.Path,
		Size:       rec.Size,
		ModTimeNS:  rec.ModTime.UnixNano(),
		Kind:       int(rec.Kind),
		Dev:        rec.Dev,
		Ino:        rec.Ino,
		Nlink:      rec.Nlink,
		Incomplete: rec.Incomplete,
	}
}

func (w wireRecord) toRecord() (*types.FileRecord, error) {
	id, err := parseUUID(w.FileID)
	if err != nil {
		return nil, err
	}
	return &types.FileRecord{
		FileID:     id,
		Path:       w.Path,
		Size:       w.Size,
		ModTime:    timeFromUnixNano(w.ModTimeNS),
		Kind:       types.MediaKind(w.Kind),
		Dev:        w.Dev,
		Ino:        w.Ino,
		Nlink:      w.Nlink,
		Incomplete: w.Incomplete,
	}, nil
}
