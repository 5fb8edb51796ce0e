package indexer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/corpus"
	"github.com/hyperjump/kotae/internal/metrics"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/vector"
)

// ErrRebuildInProgress is returned when a rebuild is requested while another is running.
var ErrRebuildInProgress = errors.New("index rebuild already in progress")

// Rebuild triggers recorded in the ledger.
const (
	TriggerStartup  = "startup"
	TriggerHTTP     = "http"
	TriggerWatch    = "watch"
	TriggerSchedule = "schedule"
	TriggerCLI      = "cli"
)

// Rebuilder loads the corpus, publishes it and rebuilds the vector index, one run at a time.
type Rebuilder struct {
	provider corpus.Provider
	store    *corpus.Store
	indexer  *Indexer
	index    vector.Index
	ledger   storage.RunLedger
	logger   *zap.Logger
	metrics  *metrics.Metrics
	mu       sync.Mutex
	running  atomic.Bool
}

// RebuilderOption configures a Rebuilder.
type RebuilderOption func(*Rebuilder)

// WithLedger records every run in l.
func WithLedger(l storage.RunLedger) RebuilderOption {
	return func(r *Rebuilder) { r.ledger = l }
}

// WithRebuildLogger sets the logger.
func WithRebuildLogger(l *zap.Logger) RebuilderOption {
	return func(r *Rebuilder) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithRebuildMetrics sets the metrics sink.
func WithRebuildMetrics(m *metrics.Metrics) RebuilderOption {
	return func(r *Rebuilder) { r.metrics = m }
}

// NewRebuilder wires a rebuilder. index is used to verify the point count after each run.
func NewRebuilder(p corpus.Provider, store *corpus.Store, idx *Indexer, index vector.Index, opts ...RebuilderOption) *Rebuilder {
	r := &Rebuilder{
		provider: p,
		store:    store,
		indexer:  idx,
		index:    index,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Rebuild runs a full rebuild and returns its ledger record. It fails fast with
// ErrRebuildInProgress if another rebuild holds the lock. The new document set is published
// before indexing starts, so queries resolve against it while the index fills.
func (r *Rebuilder) Rebuild(ctx context.Context, trigger string) (*models.IndexRun, error) {
	if !r.mu.TryLock() {
		return nil, ErrRebuildInProgress
	}
	defer r.mu.Unlock()
	return r.run(ctx, trigger)
}

// RebuildAsync starts a rebuild in the background and returns once the lock is held.
// done, if not nil, receives the result when the rebuild ends.
func (r *Rebuilder) RebuildAsync(ctx context.Context, trigger string, done func(*models.IndexRun, error)) error {
	if !r.mu.TryLock() {
		return ErrRebuildInProgress
	}
	go func() {
		defer r.mu.Unlock()
		run, err := r.run(ctx, trigger)
		if done != nil {
			done(run, err)
		}
	}()
	return nil
}

// Running reports whether a rebuild is in progress.
func (r *Rebuilder) Running() bool {
	return r.running.Load()
}

// run must be called with mu held.
func (r *Rebuilder) run(ctx context.Context, trigger string) (*models.IndexRun, error) {
	r.running.Store(true)
	defer r.running.Store(false)

	run := &models.IndexRun{Trigger: trigger, Status: models.RunRunning, StartedAt: time.Now().UTC()}
	if r.ledger != nil {
		if err := r.ledger.CreateRun(ctx, run); err != nil {
			r.logger.Warn("failed to record index run", zap.Error(err))
		}
	}
	r.logger.Info("index rebuild started", zap.String("trigger", trigger), zap.String("run_id", run.ID))

	err := r.rebuild(ctx, run)
	r.finish(run, err)
	return run, err
}

func (r *Rebuilder) rebuild(ctx context.Context, run *models.IndexRun) error {
	docs, err := corpus.Load(ctx, r.provider)
	if err != nil {
		return fmt.Errorf("load corpus: %w", err)
	}
	set, err := corpus.NewSet(docs)
	if err != nil {
		return fmt.Errorf("load corpus: %w", err)
	}
	r.store.Replace(set)
	r.metrics.SetCorpus(set.Len(), set.Units())
	run.Documents = set.Len()
	run.Units = set.Units()
	r.logger.Info("corpus loaded", zap.Int("documents", run.Documents), zap.Int("units", run.Units))

	report, err := r.indexer.Run(ctx, set.Documents())
	if report != nil {
		run.Indexed = report.Indexed
	}
	if err != nil {
		return err
	}

	if n, err := r.index.Count(ctx); err != nil {
		r.logger.Warn("could not verify index size", zap.Error(err))
	} else if n != report.Indexed {
		r.logger.Warn("index size differs from indexed units",
			zap.Int("count", n), zap.Int("indexed", report.Indexed))
	}
	return nil
}

func (r *Rebuilder) finish(run *models.IndexRun, err error) {
	now := time.Now().UTC()
	run.FinishedAt = &now
	run.Status = models.RunSucceeded
	if err != nil {
		run.Status = models.RunFailed
		run.Error = err.Error()
	}
	if r.ledger != nil && run.ID != "" {
		// the caller's context may already be cancelled; the ledger row should still be closed
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if ferr := r.ledger.FinishRun(ctx, run); ferr != nil {
			r.logger.Warn("failed to record index run result", zap.Error(ferr))
		}
	}
	r.metrics.RunFinished(string(run.Status), run.Duration())
	if err != nil {
		r.logger.Error("index rebuild failed",
			zap.String("run_id", run.ID), zap.Int("indexed", run.Indexed), zap.Error(err))
		return
	}
	r.logger.Info("index rebuild finished",
		zap.String("run_id", run.ID),
		zap.Int("documents", run.Documents),
		zap.Int("indexed", run.Indexed),
		zap.Duration("took", run.Duration()))
}

// Store returns the document store the rebuilder publishes to.
func (r *Rebuilder) Store() *corpus.Store {
	return r.store
}
