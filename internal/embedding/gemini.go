package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// DefaultGeminiModel is used when no embedding model is configured for the gemini provider.
const DefaultGeminiModel = "gemini-embedding-001"

// GeminiConfig configures the Gemini embeddings backend.
type GeminiConfig struct {
	APIKey     string
	Model      string
	Dimensions int
	BatchSize  int
	// BaseURL overrides the API endpoint; empty uses the SDK default.
	BaseURL string
}

// GeminiEmbedder embeds text with the Gemini API.
type GeminiEmbedder struct {
	client *genai.Client
	cfg    GeminiConfig
}

// NewGeminiEmbedder builds a Gemini API client. A missing API key is an error.
func NewGeminiEmbedder(ctx context.Context, cfg GeminiConfig) (*GeminiEmbedder, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("gemini embeddings: missing API key")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultGeminiModel
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = DefaultDimensions
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	cc := &genai.ClientConfig{APIKey: cfg.APIKey, Backend: genai.BackendGeminiAPI}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &GeminiEmbedder{client: client, cfg: cfg}, nil
}

// Embed embeds a single text.
func (g *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := g.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts, one content per text, in input order.
func (g *GeminiEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	dims := int32(g.cfg.Dimensions)
	config := &genai.EmbedContentConfig{OutputDimensionality: &dims}
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += g.cfg.BatchSize {
		end := min(start+g.cfg.BatchSize, len(texts))
		contents := make([]*genai.Content, 0, end-start)
		for _, t := range texts[start:end] {
			contents = append(contents, &genai.Content{Parts: []*genai.Part{{Text: t}}})
		}
		resp, err := g.client.Models.EmbedContent(ctx, g.cfg.Model, contents, config)
		if err != nil {
			return nil, fmt.Errorf("gemini embeddings: %w", err)
		}
		for _, e := range resp.Embeddings {
			if e == nil {
				return nil, errors.New("gemini embeddings: nil embedding in response")
			}
			out = append(out, e.Values)
		}
	}
	if err := checkBatch(texts, out); err != nil {
		return nil, fmt.Errorf("gemini embeddings: %w", err)
	}
	return out, nil
}

// Dimensions returns the requested output dimensionality.
func (g *GeminiEmbedder) Dimensions() int {
	return g.cfg.Dimensions
}

// Close is a no-op; the SDK client holds no resources that need releasing.
func (g *GeminiEmbedder) Close() error {
	return nil
}
