// Package signature implements the Signature Extractor (C2): computes a
// cryptographic checksum, perceptual image hash, video fingerprint, and
// normalized metadata per file (spec.md §4.2).
//
// # Concurrency Model
//
// A fixed pool of workers drains a job channel, a pending WaitGroup
// tracks outstanding work, and a results channel is collected by the
// caller — the shape extracts one SignatureBundle per file across
// three media kinds. Cancellation is checked between files via a
// context.Context, as spec.md §4.2 requires.
package signature

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/darianrose/mediadedupe/internal/config"
	"github.com/darianrose/mediadedupe/internal/mediaerr"
	"github.com/darianrose/mediadedupe/internal/progress"
	"github.com/darianrose/mediadedupe/internal/signature/hashcache"
	"github.com/darianrose/mediadedupe/internal/types"
)

// SystemSignals lets the extractor reduce parallelism under memory
// pressure (spec.md §4.2, §9 "Global notification centers... become a
// SystemSignals interface"). Tests supply a stub that fires
// deterministically.
type SystemSignals interface {
	// MemoryPressure returns true when the extractor should shed
	// workers. Polled between jobs, never blocking.
	MemoryPressure() bool
}

// NoSignals is a SystemSignals that never reports pressure.
type NoSignals struct{}

func (NoSignals) MemoryPressure() bool { return false }

// Result pairs a FileRecord's ID with its extraction outcome.
type Result struct {
	FileID     types.FileID
	Bundle     *types.SignatureBundle
	Incomplete bool
	Err        error
}

// Extractor computes SignatureBundles for a set of FileRecords.
// Single-use: create with New(), call Run() once.
type Extractor struct {
	records      []*types.FileRecord
	cfg          *config.Config
	cache        *hashcache.Cache
	signals      SystemSignals
	showProgress bool
	errCh        chan error

	sem     types.Semaphore
	bar     *progress.Bar
	stats   *stats
}

type stats struct {
	processed atomic.Int64
	total     atomic.Int64
	startTime time.Time
}

func (s *stats) String() string {
	return "extracted signatures for " + itoa(s.processed.Load()) + "/" + itoa(s.total.Load()) + " files"
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

// New creates an Extractor. cache may be nil to disable hash caching.
func New(records []*types.FileRecord, cfg *config.Config, cache *hashcache.Cache, signals SystemSignals, showProgress bool, errCh chan error) *Extractor {
	if signals == nil {
		signals = NoSignals{}
	}
	return &Extractor{
		records:      records,
		cfg:          cfg,
		cache:        cache,
		signals:      signals,
		showProgress: showProgress,
		errCh:        errCh,
	}
}

// Run extracts signatures for every record, honoring ctx cancellation
// between files (spec.md §5 "in-flight extractions complete their
// current file and exit").
func (e *Extractor) Run(ctx context.Context) []Result {
	workers := e.cfg.ResolvedExtractionParallelism()
	e.sem = types.NewSemaphore(workers)
	e.bar = progress.New(e.showProgress, int64(len(e.records)))
	e.stats = &stats{startTime: time.Now()}
	e.stats.total.Store(int64(len(e.records)))
	e.bar.Describe(e.stats)

	jobCh := make(chan *types.FileRecord, workers*2)
	resultCh := make(chan Result, workers*2)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for rec := range jobCh {
				if e.signals.MemoryPressure() {
					// Shed load: this worker idles one tick rather than
					// claim another job, letting the semaphore-limited
					// pool effectively shrink (spec.md §4.2: "reduced
					// under memory pressure signals").
					time.Sleep(10 * time.Millisecond)
				}
				resultCh <- e.extractOne(ctx, rec)
				e.stats.processed.Add(1)
				e.bar.Describe(e.stats)
			}
		}()
	}

	go func() {
		defer close(jobCh)
		for _, rec := range e.records {
			select {
			case <-ctx.Done():
				return
			case jobCh <- rec:
			}
		}
	}()

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	var results []Result
	for r := range resultCh {
		results = append(results, r)
	}
	e.bar.Finish(e.stats)
	return results
}

func (e *Extractor) extractOne(ctx context.Context, rec *types.FileRecord) Result {
	e.sem.Acquire()
	defer e.sem.Release()

	select {
	case <-ctx.Done():
		return Result{FileID: rec.FileID, Err: mediaerr.New(mediaerr.Cancelled, "signature.extract", rec.Path, ctx.Err())}
	default:
	}

	extractCtx, cancel := context.WithTimeout(ctx, time.Duration(e.cfg.ExtractionTimeoutMS)*time.Millisecond)
	defer cancel()

	var bundle *types.SignatureBundle
	var err error

	switch rec.Kind {
	case types.KindPhoto:
		bundle, err = extractPhotoWithRetry(extractCtx, rec, e.cache)
	case types.KindVideo:
		bundle, err = extractVideoWithRetry(extractCtx, rec, e.cfg, e.cache)
	case types.KindSidecar:
		bundle, err = extractSidecar(rec, e.cache)
	default:
		bundle, err = extractGeneric(rec, e.cache)
	}

	if err != nil {
		e.sendError(mediaerr.New(classifyExtractErr(err), "signature.extract", rec.Path, err))
		return Result{FileID: rec.FileID, Incomplete: true, Err: err}
	}
	return Result{FileID: rec.FileID, Bundle: bundle}
}

func (e *Extractor) sendError(err error) {
	if e.errCh != nil {
		e.errCh <- err
	}
}

func classifyExtractErr(err error) mediaerr.Kind {
	if err == context.DeadlineExceeded || err == context.Canceled {
		return mediaerr.Cancelled
	}
	return mediaerr.CorruptMedia
}
