// Package mediaerr defines the typed error taxonomy reported across the
// Engine API boundary (spec.md §6, §7).
package mediaerr

import (
	"errors"
	"fmt"
)

// Kind is one of the closed set of error kinds spec.md §6 enumerates.
type Kind string

const (
	PermissionDenied      Kind = "permission_denied"
	NotFound              Kind = "not_found"
	IOError               Kind = "io_error"
	CorruptMedia          Kind = "corrupt_media"
	SchemaMismatch        Kind = "schema_mismatch"
	QuotaExceeded         Kind = "quota_exceeded"
	CollisionUnresolvable Kind = "collision_unresolvable"
	ConcurrentModification Kind = "concurrent_modification"
	Cancelled             Kind = "cancelled"
	FatalPartial          Kind = "fatal_partial"
)

// Category groups kinds per the taxonomy in spec.md §7.
type Category int

const (
	CategoryUserActionable Category = iota
	CategorySystemTransient
	CategoryData
	CategoryInternal
)

// Category classifies a Kind into the §7 propagation-policy taxonomy.
func (k Kind) Category() Category {
	switch k {
	case PermissionDenied, NotFound, CollisionUnresolvable:
		return CategoryUserActionable
	case IOError, QuotaExceeded:
		return CategorySystemTransient
	case CorruptMedia, SchemaMismatch:
		return CategoryData
	default: // ConcurrentModification, Cancelled, FatalPartial
		return CategoryInternal
	}
}

// Error wraps an underlying error with a Kind and enough context (the
// operation and the path it concerns) to let callers across the Engine
// API surface remediation guidance without re-deriving it.
type Error struct {
	Kind Kind
	Op   string // e.g. "store.enumerate", "merge.execute"
	Path string // offending path or identity, may be empty
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Path != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s (%s): %v", e.Op, e.Kind, e.Path, e.Err)
	case e.Path != "":
		return fmt.Sprintf("%s: %s (%s)", e.Op, e.Kind, e.Path)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs an *Error.
func New(kind Kind, op, path string, err error) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}

// KindOf extracts the Kind from err if it (or something it wraps) is an
// *Error, otherwise returns ("", false).
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
