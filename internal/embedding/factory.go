package embedding

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Provider names accepted by New.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
	ProviderHash   = "hash"
)

// Config selects and configures an embedding backend.
type Config struct {
	Provider       string
	BaseURL        string
	APIKey         string
	Model          string
	Dimensions     int
	BatchSize      int
	MaxRetries     int
	Timeout        time.Duration
	SendDimensions bool
	CacheSize      int
	CacheTTL       time.Duration
}

// New builds the configured embedder, wrapped in a cache when CacheSize is positive.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (Embedder, error) {
	var (
		e   Embedder
		err error
	)
	switch cfg.Provider {
	case ProviderOpenAI, "":
		e, err = NewOpenAIEmbedder(OpenAIConfig{
			BaseURL:        cfg.BaseURL,
			APIKey:         cfg.APIKey,
			Model:          cfg.Model,
			Dimensions:     cfg.Dimensions,
			BatchSize:      cfg.BatchSize,
			MaxRetries:     cfg.MaxRetries,
			Timeout:        cfg.Timeout,
			SendDimensions: cfg.SendDimensions,
		}, logger)
	case ProviderGemini:
		e, err = NewGeminiEmbedder(ctx, GeminiConfig{
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			BatchSize:  cfg.BatchSize,
			BaseURL:    cfg.BaseURL,
		})
	case ProviderHash:
		e = NewHashEmbedder(cfg.Dimensions)
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s (supported: openai, gemini, hash)", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return NewCachedEmbedder(e, cfg.CacheSize, cfg.CacheTTL, logger), nil
}
