package chat

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
)

// Config selects and configures a chat backend.
type Config struct {
	Provider    string
	BaseURL     string
	APIKey      string
	Model       string
	Temperature *float64
	MaxTokens   int
	Timeout     time.Duration
}

// New builds the configured streamer.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (Streamer, error) {
	switch cfg.Provider {
	case ProviderOpenAI, "":
		return NewOpenAIStreamer(OpenAIConfig{
			BaseURL:     cfg.BaseURL,
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
			Timeout:     cfg.Timeout,
		}, logger)
	case ProviderGemini:
		return NewGeminiStreamer(ctx, GeminiConfig{
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
			BaseURL:     cfg.BaseURL,
		}, logger)
	default:
		return nil, fmt.Errorf("unknown chat provider: %s (supported: openai, gemini)", cfg.Provider)
	}
}
