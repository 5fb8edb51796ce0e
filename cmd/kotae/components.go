package main

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/chat"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/corpus"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/indexer"
	"github.com/hyperjump/kotae/internal/metrics"
	"github.com/hyperjump/kotae/internal/rag"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/vector"
)

// Components holds initialized services.
type Components struct {
	Registry  *prometheus.Registry
	Metrics   *metrics.Metrics
	Store     *corpus.Store
	Embedder  embedding.Embedder
	Index     vector.Index
	Streamer  chat.Streamer
	Ledger    *storage.SQLiteLedger
	Indexer   *indexer.Indexer
	Rebuilder *indexer.Rebuilder
	Pipeline  *rag.Pipeline
}

// Close releases every component that holds resources.
func (c *Components) Close() {
	if c.Ledger != nil {
		_ = c.Ledger.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Index != nil {
		_ = c.Index.Close()
	}
}

func secs(n int) time.Duration {
	return time.Duration(n) * time.Second
}

func newProvider(ctx context.Context, cfg *config.Config, logger *zap.Logger) (corpus.Provider, error) {
	switch cfg.Corpus.Source {
	case config.SourceS3:
		client, err := corpus.NewS3Client(ctx, corpus.S3Config{
			Bucket:   cfg.Corpus.S3.Bucket,
			Prefix:   cfg.Corpus.S3.Prefix,
			Region:   cfg.Corpus.S3.Region,
			Endpoint: cfg.Corpus.S3.Endpoint,
		})
		if err != nil {
			return nil, err
		}
		return corpus.NewS3Provider(client, cfg.Corpus.S3.Bucket, cfg.Corpus.S3.Prefix, cfg.Corpus.Extension,
			corpus.WithLogger(logger)), nil
	case config.SourceFS, "":
		return corpus.NewFSProvider(cfg.Corpus.Root, cfg.Corpus.Extension, corpus.WithLogger(logger)), nil
	default:
		return nil, fmt.Errorf("unknown corpus source: %s (supported: fs, s3)", cfg.Corpus.Source)
	}
}

// initializeComponents builds the services described by cfg. The chat model is only
// created when withChat is set; indexing does not need it.
func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger, withChat bool) (_ *Components, err error) {
	c := &Components{Registry: prometheus.NewRegistry(), Store: corpus.NewStore()}
	defer func() {
		if err != nil {
			c.Close()
		}
	}()
	c.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	c.Metrics = metrics.New(c.Registry)

	distance, err := vector.ParseDistance(cfg.Index.Distance)
	if err != nil {
		return nil, err
	}

	provider, err := newProvider(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize corpus provider: %w", err)
	}

	c.Ledger, err = storage.NewSQLiteLedger(cfg.Storage.LedgerPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize run ledger: %w", err)
	}

	c.Embedder, err = embedding.New(ctx, embedding.Config{
		Provider:       cfg.Embedding.Provider,
		BaseURL:        cfg.Embedding.BaseURL,
		APIKey:         config.Secret(cfg.Embedding.APIKeyEnv),
		Model:          cfg.Embedding.Model,
		Dimensions:     cfg.Embedding.Dimensions,
		BatchSize:      cfg.Embedding.BatchSize,
		MaxRetries:     cfg.Embedding.MaxRetries,
		Timeout:        secs(cfg.Embedding.TimeoutSecs),
		SendDimensions: cfg.Embedding.SendDimensions,
		CacheSize:      cfg.Embedding.CacheSize,
		CacheTTL:       secs(cfg.Embedding.CacheTTLSecs),
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	c.Index, err = vector.NewIndex(ctx, vector.Config{
		Backend:    cfg.Vector.Backend,
		Collection: cfg.Index.Collection,
		Distance:   distance,
		URL:        cfg.Vector.URL,
		APIKey:     config.Secret(cfg.Vector.APIKeyEnv),
		DSN:        config.Secret(cfg.Vector.DSNEnv),
		Timeout:    secs(cfg.Vector.TimeoutSecs),
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize vector index: %w", err)
	}
	logger.Info("vector index initialized",
		zap.String("backend", cfg.Vector.Backend),
		zap.String("collection", cfg.Index.Collection),
		zap.String("distance", string(distance)))

	c.Indexer = indexer.NewIndexer(c.Embedder, c.Index, indexer.Config{
		Collection:  cfg.Index.Collection,
		Dimensions:  c.Embedder.Dimensions(),
		Distance:    distance,
		Concurrency: cfg.Index.Concurrency,
	}, indexer.WithLogger(logger), indexer.WithMetrics(c.Metrics))

	c.Rebuilder = indexer.NewRebuilder(provider, c.Store, c.Indexer, c.Index,
		indexer.WithLedger(c.Ledger),
		indexer.WithRebuildLogger(logger),
		indexer.WithRebuildMetrics(c.Metrics))

	if !withChat {
		return c, nil
	}
	c.Streamer, err = chat.New(ctx, chat.Config{
		Provider:    cfg.Chat.Provider,
		BaseURL:     cfg.Chat.BaseURL,
		APIKey:      config.Secret(cfg.Chat.APIKeyEnv),
		Model:       cfg.Chat.Model,
		Temperature: cfg.Chat.Temperature,
		MaxTokens:   cfg.Chat.MaxTokens,
		Timeout:     secs(cfg.Chat.TimeoutSecs),
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize chat model: %w", err)
	}
	c.Pipeline = rag.NewPipeline(c.Embedder, c.Index, c.Store, c.Streamer,
		rag.WithLogger(logger),
		rag.WithMetrics(c.Metrics),
		rag.WithTopK(cfg.Index.TopK))
	return c, nil
}
