// Package indexer embeds corpus units and writes them into the vector index.
package indexer

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/metrics"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/vector"
)

// Config describes the collection an index run rebuilds.
type Config struct {
	Collection  string
	Dimensions  int
	Distance    vector.Distance
	Concurrency int
}

// Report summarizes one index run.
type Report struct {
	Documents int `json:"documents"`
	Units     int `json:"units"`
	Indexed   int `json:"indexed"`
}

// Indexer rebuilds the vector index from a document set.
type Indexer struct {
	embedder embedding.Embedder
	index    vector.Index
	cfg      Config
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets a logger for progress output.
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) {
		if l != nil {
			idx.logger = l
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) IndexerOption {
	return func(idx *Indexer) { idx.metrics = m }
}

// NewIndexer creates an indexer. Dimensions defaults to the embedder's and Concurrency to 1.
func NewIndexer(embedder embedding.Embedder, index vector.Index, cfg Config, opts ...IndexerOption) *Indexer {
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = embedder.Dimensions()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.Distance == "" {
		cfg.Distance = vector.Cosine
	}
	idx := &Indexer{
		embedder: embedder,
		index:    index,
		cfg:      cfg,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// idCounter hands out point ids for a single run, starting at zero.
type idCounter struct {
	next atomic.Uint64
}

func (c *idCounter) Next() uint64 {
	return c.next.Add(1) - 1
}

// Run resets the collection and indexes every unit of docs. The reset completes before any
// upsert. The first embedding or index error stops the run and is returned; points already
// written stay in the index.
func (idx *Indexer) Run(ctx context.Context, docs []*models.Document) (*Report, error) {
	report := &Report{Documents: len(docs)}
	for _, d := range docs {
		report.Units += len(d.Units)
	}

	if err := idx.index.ResetCollection(ctx, idx.cfg.Collection, idx.cfg.Dimensions, idx.cfg.Distance); err != nil {
		return report, fmt.Errorf("reset collection: %w", err)
	}
	idx.logger.Info("collection reset",
		zap.String("collection", idx.cfg.Collection),
		zap.Int("dimensions", idx.cfg.Dimensions),
		zap.String("distance", string(idx.cfg.Distance)))

	var (
		ids     idCounter
		indexed atomic.Int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(idx.cfg.Concurrency)
	for _, doc := range docs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			// a slot may free up only after another document failed
			if gctx.Err() != nil {
				return nil
			}
			n, err := idx.indexDocument(gctx, &ids, doc)
			indexed.Add(int64(n))
			return err
		})
	}
	err := g.Wait()
	report.Indexed = int(indexed.Load())
	idx.metrics.UnitsIndexed(report.Indexed)
	if err != nil {
		return report, err
	}
	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, nil
}

func (idx *Indexer) indexDocument(ctx context.Context, ids *idCounter, doc *models.Document) (int, error) {
	if len(doc.Units) == 0 {
		idx.logger.Debug("document has no units", zap.String("document_id", doc.ID))
		return 0, nil
	}
	vectors, err := idx.embedder.EmbedBatch(ctx, doc.UnitTexts())
	if err != nil {
		return 0, fmt.Errorf("embed %s: %w", doc.ID, err)
	}
	if len(vectors) != len(doc.Units) {
		return 0, fmt.Errorf("embed %s: got %d vectors for %d units", doc.ID, len(vectors), len(doc.Units))
	}
	metadata := map[string]string{vector.MetadataDocumentID: doc.ID}
	for i, v := range vectors {
		if err := idx.index.Upsert(ctx, ids.Next(), v, metadata); err != nil {
			return i, fmt.Errorf("index %s unit %d: %w", doc.ID, i, err)
		}
	}
	idx.logger.Debug("document indexed", zap.String("document_id", doc.ID), zap.Int("units", len(vectors)))
	return len(vectors), nil
}
