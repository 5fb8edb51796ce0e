package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
)

// Corpus sources.
const (
	SourceFS = "fs"
	SourceS3 = "s3"
)

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Corpus.Source == "" {
		cfg.Corpus.Source = SourceFS
	}
	if cfg.Corpus.Source == SourceFS && cfg.Corpus.Root == "" {
		cfg.Corpus.Root = "./docs"
	}
	if cfg.Corpus.Extension == "" {
		cfg.Corpus.Extension = ".mdx"
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "openai"
	}
	if cfg.Embedding.APIKeyEnv == "" {
		cfg.Embedding.APIKeyEnv = defaultKeyEnv(cfg.Embedding.Provider)
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 1536
	}
	if cfg.Embedding.BatchSize == 0 {
		cfg.Embedding.BatchSize = 64
	}
	if cfg.Embedding.MaxRetries == 0 {
		cfg.Embedding.MaxRetries = 3
	}
	if cfg.Embedding.TimeoutSecs == 0 {
		cfg.Embedding.TimeoutSecs = 30
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Chat.Provider == "" {
		cfg.Chat.Provider = "openai"
	}
	if cfg.Chat.APIKeyEnv == "" {
		cfg.Chat.APIKeyEnv = defaultKeyEnv(cfg.Chat.Provider)
	}
	if cfg.Chat.TimeoutSecs == 0 {
		cfg.Chat.TimeoutSecs = 60
	}
	if cfg.Vector.Backend == "" {
		cfg.Vector.Backend = "qdrant"
	}
	if cfg.Vector.Backend == "qdrant" && cfg.Vector.URL == "" {
		cfg.Vector.URL = "http://localhost:6333"
	}
	if cfg.Vector.Backend == "qdrant" && cfg.Vector.APIKeyEnv == "" {
		cfg.Vector.APIKeyEnv = "QDRANT_API_KEY"
	}
	if cfg.Vector.Backend == "pgvector" && cfg.Vector.DSNEnv == "" {
		cfg.Vector.DSNEnv = "DATABASE_URL"
	}
	if cfg.Vector.TimeoutSecs == 0 {
		cfg.Vector.TimeoutSecs = 15
	}
	if cfg.Index.Collection == "" {
		cfg.Index.Collection = "docs"
	}
	if cfg.Index.Distance == "" {
		cfg.Index.Distance = "Cosine"
	}
	if cfg.Index.Concurrency == 0 {
		cfg.Index.Concurrency = 1
	}
	if cfg.Index.TopK == 0 {
		cfg.Index.TopK = 1
	}
	if cfg.Index.WatchDebounceMs == 0 {
		cfg.Index.WatchDebounceMs = 500
	}
	if cfg.Storage.LedgerPath == "" {
		cfg.Storage.LedgerPath = "/usr/local/var/kotae/data/db/ledger.db"
	}
}

func defaultKeyEnv(provider string) string {
	switch provider {
	case "openai":
		return "OPENAI_API_KEY"
	case "gemini":
		return "GEMINI_API_KEY"
	default:
		return ""
	}
}

// Validate reports every setup error in cfg. Secrets are resolved from the environment.
func (c *Config) Validate() error {
	var errs []error
	switch c.Corpus.Source {
	case SourceFS:
		if c.Corpus.Root == "" {
			errs = append(errs, errors.New("corpus.root is required"))
		}
	case SourceS3:
		if c.Corpus.S3.Bucket == "" {
			errs = append(errs, errors.New("corpus.s3.bucket is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown corpus source: %s (supported: fs, s3)", c.Corpus.Source))
	}

	switch c.Embedding.Provider {
	case "openai", "gemini":
		if Secret(c.Embedding.APIKeyEnv) == "" {
			errs = append(errs, fmt.Errorf("embedding API key missing: set %s", c.Embedding.APIKeyEnv))
		}
	case "hash":
	default:
		errs = append(errs, fmt.Errorf("unknown embedding provider: %s (supported: openai, gemini, hash)", c.Embedding.Provider))
	}
	if c.Embedding.Dimensions < 0 {
		errs = append(errs, errors.New("embedding.dimensions must be positive"))
	}

	switch c.Chat.Provider {
	case "openai", "gemini":
		if Secret(c.Chat.APIKeyEnv) == "" {
			errs = append(errs, fmt.Errorf("chat API key missing: set %s", c.Chat.APIKeyEnv))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown chat provider: %s (supported: openai, gemini)", c.Chat.Provider))
	}

	switch c.Vector.Backend {
	case "memory":
	case "qdrant":
		if c.Vector.URL == "" {
			errs = append(errs, errors.New("vector.url is required for qdrant"))
		}
	case "pgvector":
		if Secret(c.Vector.DSNEnv) == "" {
			errs = append(errs, fmt.Errorf("pgvector DSN missing: set %s", c.Vector.DSNEnv))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown vector backend: %s (supported: memory, qdrant, pgvector)", c.Vector.Backend))
	}

	switch strings.ToLower(c.Index.Distance) {
	case "cosine", "dot", "euclid", "euclidean":
	default:
		errs = append(errs, fmt.Errorf("unknown distance: %s (supported: Cosine, Dot, Euclid)", c.Index.Distance))
	}
	if c.Index.Concurrency < 1 {
		errs = append(errs, errors.New("index.concurrency must be at least 1"))
	}
	if c.Index.TopK < 1 {
		errs = append(errs, errors.New("index.top_k must be at least 1"))
	}
	if c.Index.Schedule != "" {
		if _, err := cron.ParseStandard(c.Index.Schedule); err != nil {
			errs = append(errs, fmt.Errorf("index.schedule: %w", err))
		}
	}
	return errors.Join(errs...)
}
