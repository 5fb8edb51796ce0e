package vector

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Backend names a vector index implementation.
type Backend string

const (
	// BackendMemory uses in-memory brute-force search. Good for small corpora and tests.
	BackendMemory Backend = "memory"
	// BackendQdrant talks to a Qdrant server over REST.
	BackendQdrant Backend = "qdrant"
	// BackendPGVector stores vectors in PostgreSQL with the pgvector extension.
	BackendPGVector Backend = "pgvector"
)

// Config selects and configures a backend.
type Config struct {
	Backend    string
	Collection string
	Distance   Distance
	URL        string
	APIKey     string
	DSN        string
	Timeout    time.Duration
}

// NewIndex creates a vector index of the configured backend.
// Supported backends: "memory" (default), "qdrant", "pgvector".
func NewIndex(ctx context.Context, cfg Config, logger *zap.Logger) (Index, error) {
	switch Backend(cfg.Backend) {
	case BackendMemory, "":
		return NewMemoryIndex(), nil
	case BackendQdrant:
		return NewQdrantIndex(QdrantConfig{
			URL:        cfg.URL,
			APIKey:     cfg.APIKey,
			Collection: cfg.Collection,
			Distance:   cfg.Distance,
			Timeout:    cfg.Timeout,
		}, logger)
	case BackendPGVector:
		if cfg.DSN == "" {
			return nil, fmt.Errorf("pgvector: missing dsn")
		}
		return NewPGVectorIndex(ctx, cfg.DSN, cfg.Collection, cfg.Distance)
	default:
		return nil, fmt.Errorf("unknown vector backend: %s (supported: memory, qdrant, pgvector)", cfg.Backend)
	}
}
