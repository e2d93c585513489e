// Package pipeline fingerprints media records and classifies them against
// the stored population.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"mediadedup/internal/classify"
	"mediadedup/internal/fingerprint"
	"mediadedup/internal/match"
	"mediadedup/internal/models"
	"mediadedup/internal/storage"
)

// Stage names a phase of a run, reported to progress callbacks.
type Stage string

const (
	StageFingerprint Stage = "fingerprint"
	StageClassify    Stage = "classify"
)

// Summary counts what a run did.
type Summary struct {
	Records       int
	Fingerprinted int
	Unreadable    int
	Classified    int
	Duplicates    int
	Variants      int
	Ignored       int
	Failed        int
}

// Runner runs the two phases over a batch of records: fingerprint every
// record, then classify each against a snapshot of its scope.
type Runner struct {
	repo       storage.Repository
	computer   *fingerprint.Computer
	gatherer   *match.Gatherer
	classifier *classify.Classifier
	partition  models.Partition
	bits       int
	workers    int
	timeout    time.Duration
	progressFn func(stage Stage, done, total int, current string)
	logger     *slog.Logger
}

// Option configures a Runner
type Option func(*Runner)

// WithWorkers sets the number of parallel workers
func WithWorkers(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.workers = n
		}
	}
}

// WithTimeout sets the timeout for fingerprinting each record
func WithTimeout(d time.Duration) Option {
	return func(r *Runner) {
		r.timeout = d
	}
}

// WithProgress sets a progress callback
func WithProgress(fn func(stage Stage, done, total int, current string)) Option {
	return func(r *Runner) {
		r.progressFn = fn
	}
}

// WithPartition sets how candidate populations are scoped
func WithPartition(p models.Partition) Option {
	return func(r *Runner) {
		r.partition = p
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRunner creates a Runner. bits is the perceptual fingerprint width
// used to build snapshots.
func NewRunner(repo storage.Repository, computer *fingerprint.Computer, gatherer *match.Gatherer, classifier *classify.Classifier, bits int, opts ...Option) *Runner {
	r := &Runner{
		repo:       repo,
		computer:   computer,
		gatherer:   gatherer,
		classifier: classifier,
		partition:  models.PartitionGlobal,
		bits:       bits,
		workers:    8,
		timeout:    2 * time.Minute,
		logger:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run fingerprints and classifies records. A failure on one record is
// logged and counted; only context cancellation or a failure to build a
// snapshot aborts the run.
func (r *Runner) Run(ctx context.Context, records []*models.MediaRecord) (Summary, error) {
	var sum Summary
	sum.Records = len(records)
	if len(records) == 0 {
		return sum, nil
	}

	ready := r.fingerprintAll(ctx, records, &sum)
	if err := ctx.Err(); err != nil {
		return sum, err
	}

	snapshots, err := r.snapshots(ctx, ready)
	if err != nil {
		return sum, err
	}

	r.classifyAll(ctx, ready, snapshots, &sum)
	r.logger.Info("run complete",
		"records", sum.Records,
		"fingerprinted", sum.Fingerprinted,
		"classified", sum.Classified,
		"duplicates", sum.Duplicates,
		"variants", sum.Variants,
		"ignored", sum.Ignored,
		"failed", sum.Failed)
	return sum, ctx.Err()
}

type counters struct {
	fingerprinted, unreadable, classified atomic.Int64
	duplicates, variants, ignored, failed atomic.Int64
}

func (c *counters) addTo(sum *Summary) {
	sum.Fingerprinted += int(c.fingerprinted.Load())
	sum.Unreadable += int(c.unreadable.Load())
	sum.Classified += int(c.classified.Load())
	sum.Duplicates += int(c.duplicates.Load())
	sum.Variants += int(c.variants.Load())
	sum.Ignored += int(c.ignored.Load())
	sum.Failed += int(c.failed.Load())
}

// forEach runs fn over records on the worker pool.
func (r *Runner) forEach(ctx context.Context, stage Stage, records []*models.MediaRecord, fn func(*models.MediaRecord)) {
	var (
		wg   sync.WaitGroup
		done int64
	)
	total := len(records)

	// Create work channel
	work := make(chan *models.MediaRecord, len(records))
	for _, m := range records {
		work <- m
	}
	close(work)

	// Start workers
	for i := 0; i < r.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for m := range work {
				if ctx.Err() != nil {
					return
				}
				fn(m)
				n := atomic.AddInt64(&done, 1)
				if r.progressFn != nil {
					r.progressFn(stage, int(n), total, m.ID)
				}
			}
		}()
	}

	wg.Wait()
}

// fingerprintAll computes missing fingerprints and returns the records that
// can take part in classification.
func (r *Runner) fingerprintAll(ctx context.Context, records []*models.MediaRecord, sum *Summary) []*models.MediaRecord {
	var (
		c       counters
		readyMu sync.Mutex
		ready   []*models.MediaRecord
	)

	r.forEach(ctx, StageFingerprint, records, func(m *models.MediaRecord) {
		if r.fingerprintOne(ctx, m, &c) {
			readyMu.Lock()
			ready = append(ready, m)
			readyMu.Unlock()
		}
	})

	c.addTo(sum)
	return ready
}

func (r *Runner) fingerprintOne(ctx context.Context, m *models.MediaRecord, c *counters) bool {
	if !r.computer.Pending(m) {
		return true
	}

	fctx, cancel := context.WithTimeout(ctx, r.timeout)
	changed, err := r.computer.Compute(fctx, m)
	cancel()

	if changed {
		if saveErr := r.repo.Save(ctx, m); saveErr != nil {
			r.logger.Warn("failed to save fingerprints", "media_id", m.ID, "error", saveErr)
			c.failed.Add(1)
			return false
		}
		if m.Readable == models.ReadableNo {
			c.unreadable.Add(1)
		}
	}
	if err != nil {
		r.logger.Warn("fingerprinting failed", "media_id", m.ID, "error", err)
		c.failed.Add(1)
		return false
	}
	c.fingerprinted.Add(1)
	return true
}

// snapshots builds one frozen snapshot per scope touched by records.
func (r *Runner) snapshots(ctx context.Context, records []*models.MediaRecord) (map[models.Scope]*match.Snapshot, error) {
	out := make(map[models.Scope]*match.Snapshot)
	for _, m := range records {
		scope := r.partition.ScopeOf(m)
		if _, ok := out[scope]; ok {
			continue
		}
		snap, err := match.LoadSnapshot(ctx, r.repo, scope, r.bits, r.logger)
		if err != nil {
			return nil, fmt.Errorf("load snapshot for scope %q: %w", scope.Source, err)
		}
		r.logger.Debug("snapshot loaded", "source", scope.Source, "fingerprints", snap.Len())
		out[scope] = snap
	}
	return out, nil
}

func (r *Runner) classifyAll(ctx context.Context, records []*models.MediaRecord, snapshots map[models.Scope]*match.Snapshot, sum *Summary) {
	var c counters
	r.forEach(ctx, StageClassify, records, func(m *models.MediaRecord) {
		if err := r.classifyOne(ctx, m.ID, snapshots, &c); err != nil {
			r.logger.Warn("classification failed", "media_id", m.ID, "error", err)
			c.failed.Add(1)
		}
	})
	c.addTo(sum)
}

// classifyOne reloads the record so its edges reflect writes made by other
// workers, gathers candidates and persists the new edges.
func (r *Runner) classifyOne(ctx context.Context, id string, snapshots map[models.Scope]*match.Snapshot, c *counters) error {
	m, err := r.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if len(m.ContentFingerprints()) == 0 && len(m.PerceptualFingerprints()) == 0 {
		return nil
	}

	scope := r.partition.ScopeOf(m)
	var snap *match.Snapshot
	if len(m.PerceptualFingerprints()) > 0 {
		snap = snapshots[scope]
	}

	candidates, err := r.gatherer.Gather(ctx, m, snap, scope)
	if err != nil {
		return fmt.Errorf("gather candidates: %w", err)
	}

	res := r.classifier.Classify(m, candidates, nil)
	c.classified.Add(1)
	if !res.Changed() {
		return nil
	}

	dups, err := r.repo.AddEdges(ctx, m.ID, models.EdgeDuplicate, res.Duplicates)
	if err != nil {
		return fmt.Errorf("add duplicate edges: %w", err)
	}
	variants, err := r.repo.AddEdges(ctx, m.ID, models.EdgeVariant, res.Variants)
	if err != nil {
		return fmt.Errorf("add variant edges: %w", err)
	}
	c.duplicates.Add(int64(len(dups)))
	c.variants.Add(int64(len(variants)))

	// Another worker may have won the race for the reverse edge; the ignore
	// flag only stands if a duplicate edge was actually stored.
	if res.IgnoredChanged && len(dups) > 0 {
		if err := r.repo.Save(ctx, m); err != nil {
			return fmt.Errorf("save ignore flag: %w", err)
		}
		c.ignored.Add(1)
	}
	return nil
}
