package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/pkg/utils"
)

const (
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	DefaultOpenAIModel   = "text-embedding-3-small"
	DefaultDimensions    = 1536
	defaultBatchSize     = 64
	DefaultMaxRetries    = 3
	defaultTimeout       = 30 * time.Second
)

// OpenAIConfig configures an OpenAI-compatible embeddings endpoint.
type OpenAIConfig struct {
	BaseURL    string
	APIKey     string
	Model      string
	Dimensions int
	BatchSize  int
	MaxRetries int
	Timeout    time.Duration
	// SendDimensions forwards Dimensions in the request; only newer models accept it.
	SendDimensions bool
}

// OpenAIEmbedder calls POST {base}/embeddings.
type OpenAIEmbedder struct {
	cfg    OpenAIConfig
	client *http.Client
	logger *zap.Logger
	// sleep is replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewOpenAIEmbedder validates cfg and returns an embedder. A missing API key is an error.
func NewOpenAIEmbedder(cfg OpenAIConfig, logger *zap.Logger) (*OpenAIEmbedder, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("openai embeddings: missing API key")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOpenAIBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = DefaultDimensions
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OpenAIEmbedder{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
		sleep:  sleepContext,
	}, nil
}

type embeddingsRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embeddingsResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed embeds a single text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in request-sized batches and returns vectors in input order.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.cfg.BatchSize {
		end := min(start+e.cfg.BatchSize, len(texts))
		vecs, err := e.embedWithRetry(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	if err := checkBatch(texts, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (e *OpenAIEmbedder) embedWithRetry(ctx context.Context, batch []string) ([][]float32, error) {
	var lastErr error
	for attempt := 0; attempt <= e.cfg.MaxRetries; attempt++ {
		vecs, wait, err := e.embedOnce(ctx, batch)
		if err == nil {
			return vecs, nil
		}
		lastErr = err
		var perm *permanentError
		if errors.As(err, &perm) || ctx.Err() != nil || attempt == e.cfg.MaxRetries {
			break
		}
		if wait <= 0 {
			wait = retryDelay(attempt)
		}
		e.logger.Debug("retrying embeddings request",
			zap.Int("attempt", attempt+1), zap.Duration("wait", wait), zap.Error(err))
		if err := e.sleep(ctx, wait); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("openai embeddings: %w", lastErr)
}

type permanentError struct{ msg string }

func (p *permanentError) Error() string { return p.msg }

// embedOnce performs one request. It returns a suggested wait when the server sent Retry-After.
func (e *OpenAIEmbedder) embedOnce(ctx context.Context, batch []string) ([][]float32, time.Duration, error) {
	body := embeddingsRequest{Model: e.cfg.Model, Input: batch}
	if e.cfg.SendDimensions {
		body.Dimensions = e.cfg.Dimensions
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, 0, &permanentError{msg: fmt.Sprintf("encode request: %v", err)}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.BaseURL+"/embeddings", bytes.NewReader(data))
	if err != nil {
		return nil, 0, &permanentError{msg: fmt.Sprintf("build request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.cfg.APIKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, err
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		var wait time.Duration
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil {
			wait = time.Duration(secs) * time.Second
		}
		return nil, wait, fmt.Errorf("status %s", resp.Status)
	}
	if resp.StatusCode >= 300 {
		return nil, 0, &permanentError{msg: fmt.Sprintf("status %s: %s", resp.Status, utils.Truncate(string(payload), 256))}
	}

	var parsed embeddingsResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return nil, 0, &permanentError{msg: fmt.Sprintf("decode response: %v", err)}
	}
	if len(parsed.Data) != len(batch) {
		return nil, 0, &permanentError{msg: fmt.Sprintf("got %d embeddings for %d inputs", len(parsed.Data), len(batch))}
	}
	sort.SliceStable(parsed.Data, func(i, j int) bool { return parsed.Data[i].Index < parsed.Data[j].Index })
	vecs := make([][]float32, len(parsed.Data))
	for i, d := range parsed.Data {
		if len(d.Embedding) != e.cfg.Dimensions {
			return nil, 0, &permanentError{msg: fmt.Sprintf("embedding has %d dimensions, expected %d", len(d.Embedding), e.cfg.Dimensions)}
		}
		vecs[i] = d.Embedding
	}
	return vecs, 0, nil
}

// Dimensions returns the configured vector size.
func (e *OpenAIEmbedder) Dimensions() int {
	return e.cfg.Dimensions
}

// Close releases idle connections.
func (e *OpenAIEmbedder) Close() error {
	e.client.CloseIdleConnections()
	return nil
}

func retryDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := 200 * time.Millisecond << attempt
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
