// Package dbstore is the bbolt-backed persistence layer behind
// store.db (spec.md §6): FileRecord metadata, SignatureBundles,
// DuplicateGroups, IgnorePairs, and the transaction log, each in their
// own bucket of one shared database file.
//
// The same Open/Close-with-atomic-swap idiom is kept for a small,
// genuinely disposable sub-cache (signature hashes — see
// internal/signature's hash cache), but the record store itself is not
// disposable, so it is opened directly without the swap dance and is
// guarded by a schema version check the way config.Load checks
// config.json's version.
package dbstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/darianrose/mediadedupe/internal/config"
)

const schemaVersion = 1

var (
	bucketMeta       = []byte("meta")
	bucketFileRecord = []byte("file_records")
	bucketSignature  = []byte("signatures")
	bucketGroup      = []byte("duplicate_groups")
	bucketIgnore     = []byte("ignore_pairs")
	bucketTxLog      = []byte("tx_log")

	keySchemaVersion = []byte("schema_version")
)

// DB wraps the single bbolt database backing store.db.
type DB struct {
	bolt *bolt.DB
	path string
}

// Open opens (creating if necessary) the store.db at path, verifying or
// initializing its schema version (spec.md §6's "Schema is versioned; on
// version mismatch a migration hook is invoked or the store is refused").
// Mediadedupe has had only one schema so far, so the "migration hook" is
// the identity transform; a future version bump plugs in here.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}

	b, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open store.db (locked by another instance?): %w", err)
	}
	db := &DB{bolt: b, path: path}

	if err := db.bolt.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketMeta, bucketFileRecord, bucketSignature, bucketGroup, bucketIgnore, bucketTxLog} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		meta := tx.Bucket(bucketMeta)
		existing := meta.Get(keySchemaVersion)
		if existing == nil {
			buf, _ := json.Marshal(schemaVersion)
			return meta.Put(keySchemaVersion, buf)
		}
		var found int
		if err := json.Unmarshal(existing, &found); err != nil {
			return err
		}
		if found != schemaVersion {
			return &config.SchemaMismatchError{Found: found, Want: schemaVersion}
		}
		return nil
	}); err != nil {
		_ = db.bolt.Close()
		return nil, err
	}

	return db, nil
}

// Close closes the underlying bbolt database.
func (db *DB) Close() error { return db.bolt.Close() }

// View runs fn in a read-only bbolt transaction.
func (db *DB) View(fn func(tx *bolt.Tx) error) error { return db.bolt.View(fn) }

// Update runs fn in a read-write bbolt transaction, fsyncing on commit
// (bbolt's default), which is what makes the transaction log durable
// across a crash (spec.md §4.7 step 1, §5 "fsync on commit").
func (db *DB) Update(fn func(tx *bolt.Tx) error) error { return db.bolt.Update(fn) }

// Buckets exposes the well-known bucket names for callers that need to
// reach into a bolt.Tx directly (store, signature cache, merge).
var Buckets = struct {
	FileRecord, Signature, Group, Ignore, TxLog []byte
}{
	FileRecord: bucketFileRecord,
	Signature:  bucketSignature,
	Group:      bucketGroup,
	Ignore:     bucketIgnore,
	TxLog:      bucketTxLog,
}
