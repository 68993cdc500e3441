// Package engine orchestrates C1-C7 behind the Engine API of spec.md
// §6: start_scan, the scan_events stream, list_groups, plan_merge,
// execute_merge, undo, and ignore-pair maintenance. It is the only
// package that wires every other component together; each of C1-C7
// stays independently testable through its own package API.
package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/darianrose/mediadedupe/internal/buckets"
	"github.com/darianrose/mediadedupe/internal/cluster"
	"github.com/darianrose/mediadedupe/internal/confidence"
	"github.com/darianrose/mediadedupe/internal/config"
	"github.com/darianrose/mediadedupe/internal/dbstore"
	"github.com/darianrose/mediadedupe/internal/mediaerr"
	"github.com/darianrose/mediadedupe/internal/merge"
	"github.com/darianrose/mediadedupe/internal/scorer"
	"github.com/darianrose/mediadedupe/internal/signature"
	"github.com/darianrose/mediadedupe/internal/signature/hashcache"
	"github.com/darianrose/mediadedupe/internal/store"
	"github.com/darianrose/mediadedupe/internal/types"
)

// Engine ties the Content Store, Signature Extractor, Candidate
// Buckets, Pair Scorer, Cluster Builder, Confidence Engine, and
// Merge/Undo Engine together against one store.db.
type Engine struct {
	db        *dbstore.DB
	registry  *store.Registry
	hashCache *hashcache.Cache
	cfg       *config.Config
	mergeEng  *merge.Engine
	log       *logrus.Logger
	storeRoot string
}

// Options configures New.
type Options struct {
	StoreRoot     string // directory scanned roots live under; also homes the recycle bin
	DBPath        string // store.db path
	HashCachePath string // "" disables the disposable signature hash cache
	Config        *config.Config
	Log           *logrus.Logger
}

// New opens the persistence layer and runs crash recovery (spec.md
// §4.7: "on startup scan transaction log for pending records").
func New(opts Options) (*Engine, error) {
	log := opts.Log
	if log == nil {
		log = logrus.New()
		log.SetLevel(logrus.WarnLevel)
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}

	db, err := dbstore.Open(opts.DBPath)
	if err != nil {
		return nil, err
	}
	registry, err := store.NewRegistry(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	hc, err := hashcache.Open(opts.HashCachePath)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	mergeEng := merge.New(db, opts.StoreRoot, cfg.MoveToTrash, log)
	recovered, err := mergeEng.RecoverPending()
	if err != nil {
		log.WithError(err).Error("crash recovery failed")
	}
	for _, tx := range recovered {
		log.WithFields(logrus.Fields{"tx_id": tx.TxID, "status": tx.Status}).Warn("rolled back a pending transaction from a prior crash")
	}

	return &Engine{
		db:        db,
		registry:  registry,
		hashCache: hc,
		cfg:       cfg,
		mergeEng:  mergeEng,
		log:       log,
		storeRoot: opts.StoreRoot,
	}, nil
}

// Close releases the hash cache (flushing its atomic swap) and
// store.db.
func (e *Engine) Close() error {
	var firstErr error
	if err := e.hashCache.Close(); err != nil {
		firstErr = err
	}
	if err := e.db.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// SetMinFileSize overrides the configured minimum file size floor for
// subsequent scans, letting a caller apply a one-off --min-size without
// rewriting config.json.
func (e *Engine) SetMinFileSize(bytes int64) {
	e.cfg.MinFileSizeBytes = bytes
}

// ScanEvent reports scan progress over the scan_events stream (spec.md
// §6).
type ScanEvent struct {
	Stage   string // "enumerate", "extract", "bucket", "score", "cluster", "confidence", "done"
	Message string
	Err     error
}

// StartScan runs C1-C6 over roots and persists the resulting groups,
// emitting progress on the returned channel (closed when the scan
// finishes, whether or not it errored — check the final event's Err).
func (e *Engine) StartScan(ctx context.Context, roots []store.RootHandle) <-chan ScanEvent {
	events := make(chan ScanEvent, 16)
	go func() {
		defer close(events)
		if err := e.runScan(ctx, roots, events); err != nil {
			events <- ScanEvent{Stage: "done", Err: err}
			return
		}
		events <- ScanEvent{Stage: "done", Message: "scan complete"}
	}()
	return events
}

func (e *Engine) runScan(ctx context.Context, roots []store.RootHandle, events chan<- ScanEvent) error {
	errCh := make(chan error, 64)
	go func() {
		for err := range errCh {
			events <- ScanEvent{Stage: "enumerate", Err: err}
		}
	}()

	events <- ScanEvent{Stage: "enumerate", Message: "walking roots"}
	st := store.New(roots, e.cfg.MinFileSizeBytes, e.cfg.IgnoreGlobs, e.cfg.HiddenFilesVisible, e.cfg.ResolvedExtractionParallelism(), false, errCh)
	records, _ := st.Run()
	close(errCh)

	if err := e.registry.Reconcile(records); err != nil {
		return mediaerr.New(mediaerr.IOError, "engine.scan.reconcile", "", err)
	}
	all := e.registry.All()

	events <- ScanEvent{Stage: "extract", Message: fmt.Sprintf("extracting signatures for %d files", len(all))}
	needExtraction := make([]*types.FileRecord, 0, len(all))
	for _, rec := range all {
		if rec.Signature == nil {
			needExtraction = append(needExtraction, rec)
		}
	}
	extractor := signature.New(needExtraction, e.cfg, e.hashCache, signature.NoSignals{}, false, nil)
	results := extractor.Run(ctx)
	for _, res := range results {
		if res.Bundle == nil {
			continue
		}
		if err := e.registry.StoreSignature(res.FileID, res.Bundle, res.Incomplete); err != nil {
			e.log.WithError(err).Warn("failed to persist signature")
		}
	}
	all = e.registry.All()

	events <- ScanEvent{Stage: "bucket", Message: "building candidate buckets"}
	bucketResult := buckets.Build(all, e.cfg, e.log)
	if bucketResult.DroppedCandidates > 0 {
		events <- ScanEvent{Stage: "bucket", Message: fmt.Sprintf("%d candidates dropped by bucket_cap", bucketResult.DroppedCandidates)}
	}

	events <- ScanEvent{Stage: "score", Message: fmt.Sprintf("scoring %d candidate pairs", len(bucketResult.CandidatePairs))}
	byID := make(map[types.FileID]*types.FileRecord, len(all))
	incomplete := make(map[types.FileID]bool)
	for _, rec := range all {
		byID[rec.FileID] = rec
		if rec.Incomplete {
			incomplete[rec.FileID] = true
		}
	}
	edges := append([]types.Edge(nil), bucketResult.ChecksumEdges...)
	for _, pair := range bucketResult.CandidatePairs {
		a, okA := byID[pair.A]
		b, okB := byID[pair.B]
		if !okA || !okB {
			continue
		}
		signals, verdict := scorer.Score(a, b, e.cfg)
		if verdict != types.PairAccept {
			continue
		}
		edges = append(edges, edgeFromSignals(pair.A, pair.B, signals))
	}

	events <- ScanEvent{Stage: "cluster", Message: "clustering accepted edges"}
	ignorePairs, err := allIgnorePairs(e.db)
	if err != nil {
		return mediaerr.New(mediaerr.IOError, "engine.scan.loadIgnorePairs", "", err)
	}
	groups := cluster.Build(edges, ignorePairs, incomplete, e.cfg, e.log)

	events <- ScanEvent{Stage: "confidence", Message: fmt.Sprintf("annotating %d groups", len(groups))}
	for i := range groups {
		conf, rationale, keeper, hasKeeper := confidence.Annotate(groups[i], byID, e.cfg)
		groups[i].Confidence = conf
		groups[i].RationaleLines = rationale
		groups[i].SuggestedKeeper = keeper
		groups[i].HasKeeper = hasKeeper
		if len(groups[i].Members) > 0 {
			groups[i].Kind = byID[groups[i].Members[0]].Kind
		}
	}

	if err := putGroups(e.db, groups); err != nil {
		return mediaerr.New(mediaerr.IOError, "engine.scan.persistGroups", "", err)
	}
	return nil
}

// edgeFromSignals reduces a scored pair's signals to the Edge shape C5
// consumes (spec.md §4.5): checksum-equal short-circuits to distance 0,
// otherwise the edge carries the strongest (smallest-distance) accept
// signal's distance for canonical ordering.
func edgeFromSignals(a, b types.FileID, signals []types.Signal) types.Edge {
	edge := types.Edge{A: a, B: b, Signals: signals}
	best := -1.0
	for _, s := range signals {
		if s.Kind == types.SignalChecksumEqual && s.Verdict == types.VerdictAccept {
			edge.ChecksumEq = true
			edge.Distance = 0
			return edge
		}
		if s.Verdict == types.VerdictAccept && (best < 0 || s.Distance < best) {
			best = s.Distance
		}
	}
	if best >= 0 {
		edge.Distance = best
	}
	return edge
}

// ListGroups returns every persisted duplicate group, largest first
// (the same order cluster.Build emits, preserved across persistence).
func (e *Engine) ListGroups() ([]types.DuplicateGroup, error) {
	groups, err := allGroups(e.db)
	if err != nil {
		return nil, mediaerr.New(mediaerr.IOError, "engine.listGroups", "", err)
	}
	sort.Slice(groups, func(i, j int) bool {
		if len(groups[i].Members) != len(groups[j].Members) {
			return len(groups[i].Members) > len(groups[j].Members)
		}
		return groups[i].Members[0].String() < groups[j].Members[0].String()
	})
	return groups, nil
}

// findGroup looks up a single persisted group by id.
func (e *Engine) findGroup(id types.GroupID) (types.DuplicateGroup, bool, error) {
	groups, err := allGroups(e.db)
	if err != nil {
		return types.DuplicateGroup{}, false, err
	}
	for _, g := range groups {
		if g.GroupID == id {
			return g, true, nil
		}
	}
	return types.DuplicateGroup{}, false, nil
}

// LookupRecord resolves a single file id against the registry, for
// callers (e.g. the CLI) that want to display a group member's path or
// size without reaching into the store package directly.
func (e *Engine) LookupRecord(id types.FileID) (*types.FileRecord, bool) {
	return e.registry.Lookup(id)
}

// recordsFor resolves every member of ids against the registry.
func (e *Engine) recordsFor(ids []types.FileID) map[types.FileID]*types.FileRecord {
	out := make(map[types.FileID]*types.FileRecord, len(ids))
	for _, id := range ids {
		if rec, ok := e.registry.Lookup(id); ok {
			out[id] = rec
		}
	}
	return out
}

// PlanMerge computes the merge matrix for groupID (spec.md §4.7).
func (e *Engine) PlanMerge(groupID types.GroupID, keeperOverride *types.FileID, dryRun bool) (types.MergePlan, error) {
	group, ok, err := e.findGroup(groupID)
	if err != nil {
		return types.MergePlan{}, mediaerr.New(mediaerr.IOError, "engine.planMerge.lookup", "", err)
	}
	if !ok {
		return types.MergePlan{}, mediaerr.New(mediaerr.NotFound, "engine.planMerge", "", fmt.Errorf("group %s not found", groupID))
	}
	force := make(map[string]bool, len(e.cfg.ForceOverwriteFields))
	for _, f := range e.cfg.ForceOverwriteFields {
		force[f] = true
	}
	return merge.Plan(group, e.recordsFor(group.Members), keeperOverride, force, dryRun)
}

// ExecuteMerge runs plan and, on a successful non-dry-run execution,
// deletes the persisted group: a merge leaves only the keeper, so the
// group no longer has two members.
func (e *Engine) ExecuteMerge(plan types.MergePlan) (types.Transaction, error) {
	records := e.recordsFor(append([]types.FileID{plan.Keeper}, plan.Losers...))
	tx, err := e.mergeEng.Execute(plan, records)
	if err != nil {
		return tx, err
	}
	if plan.DryRun {
		return tx, nil
	}
	if err := deleteGroup(e.db, plan.GroupID); err != nil {
		e.log.WithError(err).Warn("failed to remove merged group from persisted groups")
	}
	return tx, nil
}

// Undo reverses a committed transaction (spec.md §4.7).
func (e *Engine) Undo(txID *types.TxID) (types.Transaction, error) {
	return e.mergeEng.Undo(txID)
}

// History returns every logged transaction whose timestamp falls inside
// window, oldest first (spec.md §6's history surface over the
// transaction log). A zero types.TimeWindow returns the full log.
func (e *Engine) History(window types.TimeWindow) ([]types.Transaction, error) {
	txs, err := e.mergeEng.History(window)
	if err != nil {
		return nil, mediaerr.New(mediaerr.IOError, "engine.history", "", err)
	}
	return txs, nil
}

// AddIgnorePair records a user decision never to group a and b together
// (spec.md §3), removing any existing group membership link between
// them on the next scan.
func (e *Engine) AddIgnorePair(a, b types.FileID) error {
	return putIgnorePair(e.db, types.IgnorePair{A: a, B: b})
}

// RemoveIgnorePair reverses AddIgnorePair.
func (e *Engine) RemoveIgnorePair(a, b types.FileID) error {
	return removeIgnorePair(e.db, types.IgnorePair{A: a, B: b})
}
