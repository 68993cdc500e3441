// Package hashcache provides a self-cleaning, disposable cache of
// computed SignatureBundles keyed by (path, size, mtime). Unlike
// store.db (the authoritative, permanent FileRecord/Signature
// persistence owned by internal/dbstore), this cache exists purely to
// skip recomputation across repeated runs over an unchanged tree and
// is safe to delete at any time.
package hashcache

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/darianrose/mediadedupe/internal/types"
)

const bucketName = "signature_cache"

const keyVersion byte = 1

// Cache implements a read-old/write-new/atomic-swap cache shape:
// opening attaches a read-only handle to any prior cache file
// and a fresh write handle to a ".new" sibling; only entries actually
// looked up or stored during this run survive into the next cache file
// (Close's atomic rename), so the cache never accumulates stale entries
// for files that were deleted or moved away.
type Cache struct {
	readDB  *bolt.DB
	writeDB *bolt.DB
	path    string
	enabled bool
}

// Open opens (or creates) a signature hash cache at path. Passing ""
// returns a disabled cache whose Lookup always misses and whose Store
// is a no-op.
func Open(path string) (*Cache, error) {
	if path == "" {
		return &Cache{enabled: false}, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create hash cache dir: %w", err)
	}

	c := &Cache{path: path, enabled: true}

	if _, statErr := os.Stat(path); statErr == nil {
		readDB, err := bolt.Open(path, 0o600, &bolt.Options{ReadOnly: true, Timeout: 1 * time.Second})
		if err == nil {
			c.readDB = readDB
		}
	}

	newPath := path + ".new"
	writeDB, err := bolt.Open(newPath, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("create new hash cache (locked by another instance?): %w", err)
	}
	c.writeDB = writeDB

	if err := c.writeDB.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	}); err != nil {
		_ = c.Close()
		return nil, err
	}

	return c, nil
}

// Close closes both databases and atomically replaces the old cache
// file with the new one, provided the write database closed cleanly.
func (c *Cache) Close() error {
	var firstErr error
	if c.readDB != nil {
		if err := c.readDB.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if c.writeDB != nil {
		if err := c.writeDB.Close(); err != nil {
			if firstErr == nil {
				firstErr = err
			}
		} else if err := os.Rename(c.path+".new", c.path); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// entryKey builds a deterministic key from a file's identity and
// content-relevant attributes: path+NUL+size+ino+mtime.
func entryKey(rec *types.FileRecord) []byte {
	buf := new(bytes.Buffer)
	buf.WriteByte(keyVersion)
	buf.WriteString(rec.Path)
	buf.WriteByte(0)
	_ = binary.Write(buf, binary.BigEndian, rec.Size)
	_ = binary.Write(buf, binary.BigEndian, rec.Ino)
	_ = binary.Write(buf, binary.BigEndian, rec.ModTime.UnixNano())
	return buf.Bytes()
}

// cachedBundle is the on-disk shape of a SignatureBundle entry.
type cachedBundle struct {
	Checksum string               `json:"checksum"`
	HasPHash bool                 `json:"has_phash"`
	PHash    uint64               `json:"phash"`
	HasVideo bool                 `json:"has_video"`
	VideoFP  types.VideoFingerprint `json:"video_fp"`
	Meta     types.Metadata       `json:"meta"`
}

// Lookup returns a previously cached SignatureBundle for rec, or
// (nil, false) on a miss. A hit is copied forward into the new cache
// (self-cleaning).
func (c *Cache) Lookup(rec *types.FileRecord) (*types.SignatureBundle, bool) {
	if !c.enabled || c.readDB == nil {
		return nil, false
	}

	key := entryKey(rec)
	var data []byte
	_ = c.readDB.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if b == nil {
			return nil
		}
		if v := b.Get(key); v != nil {
			data = append([]byte(nil), v...)
		}
		return nil
	})
	if data == nil {
		return nil, false
	}

	var cb cachedBundle
	if err := json.Unmarshal(data, &cb); err != nil {
		return nil, false
	}
	bundle := cb.toBundle()
	_ = c.store(key, &cb)
	return bundle, true
}

// Store persists bundle for rec into the new cache.
func (c *Cache) Store(rec *types.FileRecord, bundle *types.SignatureBundle) error {
	if !c.enabled || c.writeDB == nil {
		return nil
	}
	cb := fromBundle(bundle)
	return c.store(entryKey(rec), &cb)
}

func (c *Cache) store(key []byte, cb *cachedBundle) error {
	data, err := json.Marshal(cb)
	if err != nil {
		return err
	}
	return c.writeDB.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Put(key, data)
	})
}

func fromBundle(b *types.SignatureBundle) cachedBundle {
	return cachedBundle{
		Checksum: hex.EncodeToString(b.Checksum[:]),
		HasPHash: b.HasPHash,
		PHash:    b.PHash,
		HasVideo: b.HasVideo,
		VideoFP:  b.VideoFP,
		Meta:     b.Meta,
	}
}

func (cb cachedBundle) toBundle() *types.SignatureBundle {
	b := &types.SignatureBundle{
		HasPHash: cb.HasPHash,
		PHash:    cb.PHash,
		HasVideo: cb.HasVideo,
		VideoFP:  cb.VideoFP,
		Meta:     cb.Meta,
	}
	if raw, err := hex.DecodeString(cb.Checksum); err == nil && len(raw) == len(b.Checksum) {
		copy(b.Checksum[:], raw)
	}
	return b
}
