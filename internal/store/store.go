// Package store implements the Content Store (C1): it enumerates roots,
// assigns stable file IDs, and tracks size/mtime so later stages can
// invalidate stale signatures (spec.md §4.1).
//
// # Architecture Overview
//
// The store uses a concurrent fan-out/fan-in traversal (one walker
// goroutine per directory, a semaphore bounding concurrent directory
// reads, a single collector goroutine draining the result channel)
// plus the media-kind/incomplete-record semantics spec.md §4.1
// requires on top of it.
//
//  1. WALKER GOROUTINES (fan-out) — one per directory, semaphore-limited.
//  2. COLLECTOR GOROUTINE (fan-in) — single consumer of resultCh.
//  3. MAIN GOROUTINE (orchestrator) — spawns walkers, waits, closes, waits.
package store

import (
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/darianrose/mediadedupe/internal/mediaerr"
	"github.com/darianrose/mediadedupe/internal/progress"
	"github.com/darianrose/mediadedupe/internal/types"
)

// RootHandle is an opaque, caller-owned reference to a scan root (spec.md
// §9 design note on platform security-scoped bookmarks). The core never
// stores a raw path it cannot reopen; it only ever holds a RootHandle and
// calls Open/Close around the traversal of that root.
type RootHandle interface {
	// Open acquires access to the root (e.g. starting a security-scoped
	// bookmark) and returns the filesystem path to traverse.
	Open() (path string, err error)
	// Close releases whatever Open acquired. Always called, even on
	// traversal error.
	Close() error
}

// PathHandle is the default RootHandle: a plain filesystem path with no
// platform bookkeeping. This is what the CLI passes.
type PathHandle string

func (p PathHandle) Open() (string, error) { return string(p), nil }
func (p PathHandle) Close() error          { return nil }

// ScanError reports a non-fatal traversal failure (spec.md §4.1).
type ScanError struct {
	Path string
	Kind mediaerr.Kind
	Err  error
}

func (e *ScanError) Error() string {
	return (&mediaerr.Error{Kind: e.Kind, Op: "store.enumerate", Path: e.Path, Err: e.Err}).Error()
}

// Store is the Content Store. It is designed for single-use per scan:
// create with New(), call Run() once. lookup/invalidate operate on the
// records Run() returned, held by the caller (the engine owns the
// authoritative FileRecord map per spec.md §3's ownership rule).
type Store struct {
	roots        []RootHandle
	minSize      int64
	ignoreGlobs  []string
	hiddenVisible bool
	workers      int
	showProgress bool
	errCh        chan error

	walkerWg  sync.WaitGroup
	walkerSem types.Semaphore
	resultCh  chan *types.FileRecord
	stats     *stats
	bar       *progress.Bar
}

// New creates a Store for discovering files across roots.
func New(roots []RootHandle, minSize int64, ignoreGlobs []string, hiddenVisible bool, workers int, showProgress bool, errCh chan error) *Store {
	return &Store{
		roots:         roots,
		minSize:       minSize,
		ignoreGlobs:   ignoreGlobs,
		hiddenVisible: hiddenVisible,
		workers:       workers,
		showProgress:  showProgress,
		errCh:         errCh,
	}
}

type stats struct {
	scannedFiles atomic.Int64
	matchedFiles atomic.Int64
	scannedBytes atomic.Int64
	startTime    time.Time
}

func (s *stats) String() string {
	return "scanned " + itoa(s.scannedFiles.Load()) + " files, matched " + itoa(s.matchedFiles.Load())
}

// itoa avoids pulling in fmt for a single integer format in the hot
// describe path; progress throttles updates, so this is not a
// performance concern, just a small stylistic choice.
func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// Run executes enumeration across all roots and returns discovered
// records in deterministic order (sorted lexicographically within each
// directory, per spec.md §4.1).
func (s *Store) Run() ([]*types.FileRecord, []*ScanError) {
	s.walkerSem = types.NewSemaphore(s.workers)
	s.bar = progress.New(s.showProgress, -1)
	s.stats = &stats{startTime: time.Now()}
	s.bar.Describe(s.stats)
	s.resultCh = make(chan *types.FileRecord, 1000)

	var results []*types.FileRecord
	var scanErrs []*ScanError
	var errMu sync.Mutex
	collectorWg := sync.WaitGroup{}

	collectorWg.Add(1)
	go func() {
		for r := range s.resultCh {
			results = append(results, r)
		}
		collectorWg.Done()
	}()

	for _, root := range s.roots {
		path, err := root.Open()
		if err != nil {
			s.recordError(&errMu, &scanErrs, &ScanError{Kind: mediaerr.PermissionDenied, Err: err})
			continue
		}
		absPath, err := filepath.Abs(path)
		if err != nil {
			s.recordError(&errMu, &scanErrs, &ScanError{Path: path, Kind: mediaerr.IOError, Err: err})
			_ = root.Close()
			continue
		}
		s.walkDirectory(absPath, &errMu, &scanErrs)
		// Closed after the synchronous portion of this call returns;
		// outstanding walker goroutines still hold the path string they
		// need, not the handle itself, so releasing here is safe.
		go func(h RootHandle) {
			s.walkerWg.Wait()
			_ = h.Close()
		}(root)
	}

	s.walkerWg.Wait()
	close(s.resultCh)
	collectorWg.Wait()

	s.bar.Finish(s.stats)

	sort.SliceStable(results, func(i, j int) bool { return results[i].Path < results[j].Path })
	return results, scanErrs
}

func (s *Store) recordError(mu *sync.Mutex, errs *[]*ScanError, e *ScanError) {
	mu.Lock()
	*errs = append(*errs, e)
	mu.Unlock()
	if s.errCh != nil {
		s.errCh <- e
	}
}

func (s *Store) walkDirectory(dir string, errMu *sync.Mutex, scanErrs *[]*ScanError) {
	s.walkerWg.Add(1)
	go func() {
		defer s.walkerWg.Done()

		s.walkerSem.Acquire()
		defer s.walkerSem.Release()

		entries, subdirs, err := s.listDirectory(dir)
		if err != nil {
			s.recordError(errMu, scanErrs, &ScanError{Path: dir, Kind: classifyIOErr(err), Err: err})
			return
		}

		for _, rec := range entries {
			s.stats.scannedFiles.Add(1)
			s.stats.scannedBytes.Add(rec.Size)
			if rec.Size >= s.minSize && !s.shouldExclude(rec.Path) {
				s.resultCh <- rec
				s.stats.matchedFiles.Add(1)
			}
		}
		s.bar.Describe(s.stats)

		for _, sub := range subdirs {
			s.walkDirectory(sub, errMu, scanErrs)
		}
	}()
}

// listDirectory reads one directory, returning file records and
// subdirectory paths. Uses batched ReadDir (1000 entries) exactly as the
// teacher does for large-directory memory bounding.
func (s *Store) listDirectory(dirPath string) (files []*types.FileRecord, subdirs []string, err error) {
	dir, err := os.Open(dirPath)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = dir.Close() }()

	const batchSize = 1000
	for {
		entries, err := dir.ReadDir(batchSize)
		if len(entries) == 0 {
			if err != nil && err != io.EOF {
				return files, subdirs, err
			}
			break
		}
		for _, entry := range entries {
			f, sub := s.processEntry(dirPath, entry)
			if f != nil {
				files = append(files, f)
			}
			if sub != "" {
				subdirs = append(subdirs, sub)
			}
		}
	}
	return files, subdirs, nil
}

func (s *Store) processEntry(dirPath string, entry os.DirEntry) (*types.FileRecord, string) {
	name := entry.Name()
	if !s.hiddenVisible && strings.HasPrefix(name, ".") {
		return nil, ""
	}
	fullPath := filepath.Join(dirPath, name)

	if entry.IsDir() {
		if s.shouldExclude(fullPath) {
			return nil, ""
		}
		return nil, fullPath
	}

	if entry.Type()&os.ModeSymlink != 0 {
		// Symlinks are never followed (cycle-safety, spec.md §4.1).
		return nil, ""
	}
	if !entry.Type().IsRegular() {
		return nil, ""
	}

	info, err := entry.Info()
	if err != nil {
		return newIncompleteRecord(fullPath), ""
	}
	return newFileRecord(fullPath, info), ""
}

func (s *Store) shouldExclude(path string) bool {
	if len(s.ignoreGlobs) == 0 {
		return false
	}
	base := filepath.Base(path)
	for _, pattern := range s.ignoreGlobs {
		if matched, _ := filepath.Match(pattern, base); matched {
			return true
		}
	}
	return false
}

func classifyIOErr(err error) mediaerr.Kind {
	if os.IsPermission(err) {
		return mediaerr.PermissionDenied
	}
	if os.IsNotExist(err) {
		return mediaerr.NotFound
	}
	return mediaerr.IOError
}
