package chat

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

// DefaultGeminiModel is used when no chat model is configured for the gemini provider.
const DefaultGeminiModel = "gemini-2.5-flash"

// GeminiConfig configures the Gemini chat backend.
type GeminiConfig struct {
	APIKey      string
	Model       string
	Temperature *float64
	MaxTokens   int
	BaseURL     string
}

// GeminiStreamer streams completions from the Gemini API.
type GeminiStreamer struct {
	models *genai.Models
	cfg    GeminiConfig
	logger *zap.Logger
}

// NewGeminiStreamer builds a Gemini API client. A missing API key is an error.
func NewGeminiStreamer(ctx context.Context, cfg GeminiConfig, logger *zap.Logger) (*GeminiStreamer, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("gemini chat: missing API key")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultGeminiModel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cc := &genai.ClientConfig{APIKey: cfg.APIKey, Backend: genai.BackendGeminiAPI}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &GeminiStreamer{models: client.Models, cfg: cfg, logger: logger}, nil
}

func (g *GeminiStreamer) generateConfig(systemContext string) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: systemContext}}},
	}
	if g.cfg.Temperature != nil {
		t := float32(*g.cfg.Temperature)
		config.Temperature = &t
	}
	if g.cfg.MaxTokens > 0 {
		config.MaxOutputTokens = int32(g.cfg.MaxTokens)
	}
	return config
}

// StreamChat pulls the first response synchronously so a stream that cannot start is an error.
func (g *GeminiStreamer) StreamChat(ctx context.Context, systemContext, userPrompt string) (<-chan Delta, error) {
	contents := []*genai.Content{{Role: genai.RoleUser, Parts: []*genai.Part{{Text: userPrompt}}}}
	seq := g.models.GenerateContentStream(ctx, g.cfg.Model, contents, g.generateConfig(systemContext))
	return pullDeltas(ctx, seq, g.logger)
}

type responseSeq = iter.Seq2[*genai.GenerateContentResponse, error]

func pullDeltas(ctx context.Context, seq responseSeq, logger *zap.Logger) (<-chan Delta, error) {
	next, stop := iter.Pull2(seq)
	resp, err, ok := next()
	if err != nil {
		stop()
		return nil, fmt.Errorf("open gemini stream: %w", err)
	}
	out := make(chan Delta)
	go func() {
		defer close(out)
		defer stop()
		for ok {
			if d := responseDelta(resp); len(d.Fragments) > 0 {
				if !send(ctx, out, d) {
					return
				}
			}
			resp, err, ok = next()
			if err != nil {
				if ctx.Err() == nil {
					logger.Warn("chat stream ended early", zap.Error(err))
				}
				return
			}
		}
	}()
	return out, nil
}

func responseDelta(resp *genai.GenerateContentResponse) Delta {
	var d Delta
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return d
	}
	for _, p := range resp.Candidates[0].Content.Parts {
		if p == nil || p.Thought || p.Text == "" {
			continue
		}
		d.Fragments = append(d.Fragments, p.Text)
	}
	return d
}
