package engine

import (
	"encoding/json"

	bolt "go.etcd.io/bbolt"
	"github.com/google/uuid"

	"github.com/darianrose/mediadedupe/internal/dbstore"
	"github.com/darianrose/mediadedupe/internal/types"
)

// wireGroup is the JSON-on-disk shape of a DuplicateGroup, mirroring
// store's wireRecord pattern: plain strings for UUIDs, a dedicated
// bucket per concern.
type wireGroup struct {
	GroupID         string   `json:"group_id"`
	Members         []string `json:"members"`
	Confidence      float64  `json:"confidence"`
	RationaleLines  []string `json:"rationale_lines"`
	SuggestedKeeper string   `json:"suggested_keeper"`
	HasKeeper       bool     `json:"has_keeper"`
	Incomplete      bool     `json:"incomplete"`
	Kind            int      `json:"kind"`
}

func fromGroup(g types.DuplicateGroup) wireGroup {
	members := make([]string, len(g.Members))
	for i, m := range g.Members {
		members[i] = m.String()
	}
	return wireGroup{
		GroupID:         g.GroupID.String(),
		Members:         members,
		Confidence:      g.Confidence,
		RationaleLines:  g.RationaleLines,
		SuggestedKeeper: g.SuggestedKeeper.String(),
		HasKeeper:       g.HasKeeper,
		Incomplete:      g.Incomplete,
		Kind:            int(g.Kind),
	}
}

func (w wireGroup) toGroup() (types.DuplicateGroup, error) {
	id, err := parseUUID(w.GroupID)
	if err != nil {
		return types.DuplicateGroup{}, err
	}
	members := make([]types.FileID, len(w.Members))
	for i, m := range w.Members {
		fid, err := parseUUID(m)
		if err != nil {
			return types.DuplicateGroup{}, err
		}
		members[i] = fid
	}
	keeper, _ := parseUUID(w.SuggestedKeeper)
	return types.DuplicateGroup{
		GroupID:         id,
		Members:         members,
		Confidence:      w.Confidence,
		RationaleLines:  w.RationaleLines,
		SuggestedKeeper: keeper,
		HasKeeper:       w.HasKeeper,
		Incomplete:      w.Incomplete,
		Kind:            types.MediaKind(w.Kind),
	}, nil
}

// putGroups replaces the persisted group set wholesale: the cluster
// builder recomputes the full partition each scan, so the stored view
// is always "last scan's result", not an incrementally patched log.
func putGroups(db *dbstore.DB, groups []types.DuplicateGroup) error {
	return db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(dbstore.Buckets.Group)
		keys := make([][]byte, 0)
		if err := b.ForEach(func(k, _ []byte) error {
			dup := make([]byte, len(k))
			copy(dup, k)
			keys = append(keys, dup)
			return nil
		}); err != nil {
			return err
		}
		for _, k := range keys {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		for _, g := range groups {
			buf, err := json.Marshal(fromGroup(g))
			if err != nil {
				return err
			}
			id := g.GroupID
			if err := b.Put(id[:], buf); err != nil {
				return err
			}
		}
		return nil
	})
}

// allGroups returns every persisted group.
func allGroups(db *dbstore.DB) ([]types.DuplicateGroup, error) {
	var out []types.DuplicateGroup
	err := db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(dbstore.Buckets.Group).ForEach(func(_, v []byte) error {
			var w wireGroup
			if err := json.Unmarshal(v, &w); err != nil {
				return err
			}
			g, err := w.toGroup()
			if err != nil {
				return err
			}
			out = append(out, g)
			return nil
		})
	})
	return out, err
}

// putGroup overwrites a single persisted group. ExecuteMerge deletes a
// merged group with deleteGroup rather than rewriting it here.
func putGroup(db *dbstore.DB, g types.DuplicateGroup) error {
	return db.Update(func(tx *bolt.Tx) error {
		buf, err := json.Marshal(fromGroup(g))
		if err != nil {
			return err
		}
		id := g.GroupID
		return tx.Bucket(dbstore.Buckets.Group).Put(id[:], buf)
	})
}

// deleteGroup removes a persisted group, used once a merge leaves fewer
// than two members behind (no longer a duplicate group).
func deleteGroup(db *dbstore.DB, id types.GroupID) error {
	return db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(dbstore.Buckets.Group).Delete(id[:])
	})
}

// wireIgnorePair is the JSON-on-disk shape of an IgnorePair.
type wireIgnorePair struct {
	A string `json:"a"`
	B string `json:"b"`
}

func ignoreKeyBytes(p types.IgnorePair) []byte {
	k := p.Key()
	out := make([]byte, 32)
	copy(out[:16], k[0][:])
	copy(out[16:], k[1][:])
	return out
}

func putIgnorePair(db *dbstore.DB, p types.IgnorePair) error {
	return db.Update(func(tx *bolt.Tx) error {
		buf, err := json.Marshal(wireIgnorePair{A: p.A.String(), B: p.B.String()})
		if err != nil {
			return err
		}
		return tx.Bucket(dbstore.Buckets.Ignore).Put(ignoreKeyBytes(p), buf)
	})
}

func removeIgnorePair(db *dbstore.DB, p types.IgnorePair) error {
	return db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(dbstore.Buckets.Ignore).Delete(ignoreKeyBytes(p))
	})
}

func allIgnorePairs(db *dbstore.DB) ([]types.IgnorePair, error) {
	var out []types.IgnorePair
	err := db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(dbstore.Buckets.Ignore).ForEach(func(_, v []byte) error {
			var w wireIgnorePair
			if err := json.Unmarshal(v, &w); err != nil {
				return err
			}
			a, err := parseUUID(w.A)
			if err != nil {
				return err
			}
			b, err := parseUUID(w.B)
			if err != nil {
				return err
			}
			out = append(out, types.IgnorePair{A: a, B: b})
			return nil
		})
	})
	return out, err
}

func parseUUID(s string) (types.FileID, error) {
	return uuid.Parse(s)
}
