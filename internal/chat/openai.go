package chat

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/pkg/utils"
)

const (
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	DefaultOpenAIModel   = "gpt-4o-mini"
	maxEventSize         = 1 << 20
)

// OpenAIConfig configures an OpenAI-compatible chat completions endpoint.
type OpenAIConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature *float64
	MaxTokens   int
	// Timeout bounds establishing the stream; the body is read until done or cancelled.
	Timeout time.Duration
}

// OpenAIStreamer calls POST {base}/chat/completions with stream enabled.
type OpenAIStreamer struct {
	cfg    OpenAIConfig
	client *http.Client
	logger *zap.Logger
}

// NewOpenAIStreamer returns a streamer. A missing API key is an error.
func NewOpenAIStreamer(cfg OpenAIConfig, logger *zap.Logger) (*OpenAIStreamer, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("openai chat: missing API key")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOpenAIBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = cfg.Timeout
	return &OpenAIStreamer{
		cfg:    cfg,
		client: &http.Client{Transport: transport},
		logger: logger,
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Stream      bool          `json:"stream"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatChunk struct {
	Choices []struct {
		Delta struct {
			Content *string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// StreamChat sends the system context and user prompt and relays server-sent events.
func (s *OpenAIStreamer) StreamChat(ctx context.Context, systemContext, userPrompt string) (<-chan Delta, error) {
	body, err := json.Marshal(chatRequest{
		Model: s.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemContext},
			{Role: "user", Content: userPrompt},
		},
		Stream:      true,
		Temperature: s.cfg.Temperature,
		MaxTokens:   s.cfg.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("encode chat request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("open chat stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, fmt.Errorf("chat stream returned status %d: %s", resp.StatusCode, utils.Truncate(string(payload), 256))
	}

	out := make(chan Delta)
	go func() {
		defer close(out)
		defer resp.Body.Close()
		if err := s.relay(ctx, resp.Body, out); err != nil && ctx.Err() == nil {
			s.logger.Warn("chat stream ended early", zap.Error(err))
		}
	}()
	return out, nil
}

// relay parses "data:" lines until [DONE], EOF, or cancellation.
func (s *OpenAIStreamer) relay(ctx context.Context, body io.Reader, out chan<- Delta) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventSize)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		data = strings.TrimSpace(data)
		if data == "[DONE]" {
			return nil
		}
		var chunk chatChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return fmt.Errorf("decode chat event: %w", err)
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		// Role-only and finish events carry no content; they are relayed as empty fragments.
		d := Delta{Fragments: make([]string, 0, len(chunk.Choices))}
		for _, c := range chunk.Choices {
			var content string
			if c.Delta.Content != nil {
				content = *c.Delta.Content
			}
			d.Fragments = append(d.Fragments, content)
		}
		if !send(ctx, out, d) {
			return ctx.Err()
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return io.ErrUnexpectedEOF
}
