// Package types provides shared types used across the mediadedupe codebase.
package types

import (
	"cmp"
	"crypto/sha1" //nolint:gosec // used only as uuid.NewSHA1's digest, not for security
	"slices"
	"time"

	"github.com/google/uuid"
)

// fileIDNamespace scopes file_id derivation so the same path never collides
// with an unrelated identifier space elsewhere in the process.
var fileIDNamespace = uuid.NewSHA1(uuid.Nil, []byte("mediadedupe/file"))

// FileID stably identifies a file across re-enumeration of the same root.
type FileID = uuid.UUID

// GroupID identifies a DuplicateGroup.
type GroupID = uuid.UUID

// TxID identifies a Transaction.
type TxID = uuid.UUID

// NewFileID derives a deterministic FileID from a canonical absolute path.
// The same path always yields the same ID, so re-enumeration of an
// unchanged root reproduces identical FileRecords (spec.md §4.1).
func NewFileID(canonicalAbsPath string) FileID {
	return uuid.NewSHA1(fileIDNamespace, []byte(canonicalAbsPath))
}

// NewGroupID derives a deterministic GroupID from the sorted member list so
// that re-running the pipeline on identical inputs reproduces the same
// group identity (determinism property, spec.md §8).
func NewGroupID(members []FileID) GroupID {
	h := sha1.New() //nolint:gosec // content-addressing only
	for _, m := range members {
		b := m
		h.Write(b[:])
	}
	var ns uuid.UUID
	copy(ns[:], h.Sum(nil))
	return uuid.NewSHA1(ns, []byte("group"))
}

// NewTxID returns a fresh random transaction identifier.
func NewTxID() TxID { return uuid.New() }

// MediaKind classifies a FileRecord's media type.
type MediaKind int

const (
	KindUnknown MediaKind = iota
	KindPhoto
	KindVideo
	KindSidecar
	KindOther
)

func (k MediaKind) String() string {
	switch k {
	case KindPhoto:
		return "photo"
	case KindVideo:
		return "video"
	case KindSidecar:
		return "sidecar"
	case KindOther:
		return "other"
	default:
		return "unknown"
	}
}

// FileRecord is one entry per discovered file (spec.md §3).
type FileRecord struct {
	FileID     FileID
	Path       string // absolute path (opaque bytes to all but the store)
	Size       int64
	ModTime    time.Time
	Kind       MediaKind
	Dev        uint64 // retained from the scan for the sibling-group optimization
	Ino        uint64
	Nlink      uint32
	Signature  *SignatureBundle // nil until C2 completes
	Incomplete bool
}

// GPSCoord is a latitude/longitude pair in decimal degrees.
type GPSCoord struct {
	Lat, Lon float64
	Alt      float64
	HasAlt   bool
}

// Metadata is the normalized, per-file metadata signal set.
type Metadata struct {
	CaptureTime time.Time
	HasCapture  bool
	GPS         GPSCoord
	HasGPS      bool
	Camera      string
	Title       string
	Description string
	Orientation int // EXIF orientation value, 0 = unknown/unset
	Width       int
	Height      int
	Codec       string        // video codec fourcc/name, empty for photos
	Duration    time.Duration // video duration, zero for photos
	Keywords    []string      // sorted, deduplicated
}

// fieldsPopulated reports how many of the normalized fields carry a value,
// used by the confidence engine's metadata-completeness tie-break.
func (m Metadata) fieldsPopulated() int {
	n := 0
	if m.HasCapture {
		n++
	}
	if m.HasGPS {
		n++
	}
	if m.Camera != "" {
		n++
	}
	if m.Title != "" {
		n++
	}
	if m.Description != "" {
		n++
	}
	if m.Orientation != 0 {
		n++
	}
	if len(m.Keywords) > 0 {
		n++
	}
	return n
}

// Completeness returns the fraction of normalized metadata fields
// populated, in [0,1].
func (m Metadata) Completeness() float64 {
	const totalFields = 7
	return float64(m.fieldsPopulated()) / float64(totalFields)
}

// VideoFingerprint is an ordered sequence of frame phashes plus duration.
type VideoFingerprint struct {
	FramePHashes []uint64
	DurationMS   int64
}

// SignatureBundle is the optional per-file signature set (spec.md §3).
type SignatureBundle struct {
	Checksum [32]byte // 256-bit content hash, mandatory if bundle present
	HasPHash bool
	PHash    uint64 // 64-bit perceptual image hash (photos)
	HasVideo bool
	VideoFP  VideoFingerprint
	Meta     Metadata
}

// SignalKind enumerates the evidence kinds a Pair can carry.
type SignalKind int

const (
	SignalChecksumEqual SignalKind = iota
	SignalPHashDistance
	SignalVideoFPDistance
	SignalCaptureTimeDelta
	SignalGPSDelta
	SignalCameraModelMatch
	SignalFilenameSimilarity
	SignalSizeRatio
)

func (k SignalKind) String() string {
	switch k {
	case SignalChecksumEqual:
		return "checksum_equal"
	case SignalPHashDistance:
		return "phash_distance"
	case SignalVideoFPDistance:
		return "video_fp_distance"
	case SignalCaptureTimeDelta:
		return "capture_time_delta"
	case SignalGPSDelta:
		return "gps_delta"
	case SignalCameraModelMatch:
		return "camera_model_match"
	case SignalFilenameSimilarity:
		return "filename_similarity"
	case SignalSizeRatio:
		return "size_ratio"
	default:
		return "unknown"
	}
}

// Verdict is the per-signal evidentiary conclusion.
type Verdict int

const (
	VerdictNeutral Verdict = iota
	VerdictAccept
	VerdictPenalty
)

// Signal is named evidence on a Pair (spec.md §3).
type Signal struct {
	Kind      SignalKind
	Distance  float64
	Verdict   Verdict
	Rationale string
}

// PairVerdict is the overall conclusion for a candidate pair (spec.md §4.4).
type PairVerdict int

const (
	PairNeutral PairVerdict = iota
	PairAccept
)

// Pair is an unordered pair of FileIDs scored by C4. Never persisted.
type Pair struct {
	A, B    FileID
	Kind    MediaKind
	Signals []Signal
	Verdict PairVerdict
}

// Edge is the reduced form of an accepted Pair that C5 consumes: the two
// endpoints plus enough of the winning signal to sort edges canonically
// (spec.md §4.5).
type Edge struct {
	A, B       FileID
	ChecksumEq bool
	Distance   float64
	Signals    []Signal
}

// DuplicateGroup is a persisted clustering result (spec.md §3).
type DuplicateGroup struct {
	GroupID         GroupID
	Members         []FileID // lexicographic order by FileID
	Confidence      float64
	RationaleLines  []string
	SuggestedKeeper FileID
	HasKeeper       bool
	Incomplete      bool
	Kind            MediaKind
}

// IgnorePair is a persisted user decision never to group two files
// together (spec.md §3).
type IgnorePair struct {
	A, B FileID
}

// Key returns a canonical, order-independent key for an ignore pair so it
// can be looked up regardless of argument order.
func (p IgnorePair) Key() [2]FileID {
	if cmp.Compare(p.A.String(), p.B.String()) <= 0 {
		return [2]FileID{p.A, p.B}
	}
	return [2]FileID{p.B, p.A}
}

// Sorted is an ordered collection that maintains sort order by a key
// function. T is the element type, K is the comparable key type. Once
// constructed, items are guaranteed to be sorted by key.
type Sorted[T any, K cmp.Ordered] struct {
	items   []T
	keyFunc func(T) K
}

// NewSorted creates a sorted collection from items using keyFunc for
// ordering. Items are copied and sorted at construction time.
func NewSorted[T any, K cmp.Ordered](items []T, keyFunc func(T) K) Sorted[T, K] {
	sorted := make([]T, len(items))
	copy(sorted, items)
	slices.SortFunc(sorted, func(a, b T) int {
		return cmp.Compare(keyFunc(a), keyFunc(b))
	})
	return Sorted[T, K]{items: sorted, keyFunc: keyFunc}
}

// Items returns the sorted items.
func (s Sorted[T, K]) Items() []T { return s.items }

// First returns the first item (smallest key), or zero value if empty.
func (s Sorted[T, K]) First() T {
	if len(s.items) == 0 {
		var zero T
		return zero
	}
	return s.items[0]
}

// Len returns the number of items.
func (s Sorted[T, K]) Len() int { return len(s.items) }

// Semaphore implements a counting semaphore using a buffered channel. It
// limits concurrent access to a resource by blocking when the limit is
// reached.
type Semaphore chan struct{}

// NewSemaphore creates a semaphore that allows up to n concurrent
// acquisitions.
func NewSemaphore(n int) Semaphore { return make(chan struct{}, n) }

// Acquire blocks until a slot is available, then claims it.
func (s Semaphore) Acquire() { s <- struct{}{} }

// Release frees a slot, unblocking one waiting Acquire call.
func (s Semaphore) Release() { <-s }
