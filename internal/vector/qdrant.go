package vector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/pkg/utils"
)

// QdrantConfig configures the Qdrant REST client.
type QdrantConfig struct {
	URL          string
	APIKey       string
	Collection   string
	Distance     Distance
	Timeout      time.Duration
	PollInterval time.Duration
}

// QdrantIndex is a minimal REST client for one Qdrant collection.
type QdrantIndex struct {
	baseURL      string
	apiKey       string
	collection   string
	distance     Distance
	pollInterval time.Duration
	client       *http.Client
	logger       *zap.Logger
	mu           sync.RWMutex
}

// NewQdrantIndex returns a client for cfg.URL. It does not contact the server.
func NewQdrantIndex(cfg QdrantConfig, logger *zap.Logger) (*QdrantIndex, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("qdrant: missing url")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 100 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QdrantIndex{
		baseURL:      strings.TrimRight(cfg.URL, "/"),
		apiKey:       cfg.APIKey,
		collection:   cfg.Collection,
		distance:     cfg.Distance,
		pollInterval: cfg.PollInterval,
		client:       &http.Client{Timeout: cfg.Timeout},
		logger:       logger,
	}, nil
}

type qdrantError struct {
	method string
	path   string
	status int
	body   string
}

func (e *qdrantError) Error() string {
	return fmt.Sprintf("qdrant %s %s failed: %d %s", e.method, e.path, e.status, e.body)
}

func (q *QdrantIndex) current() (string, Distance) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.collection, q.distance
}

func collectionPath(name, suffix string) string {
	return "/collections/" + url.PathEscape(name) + suffix
}

// do sends body as JSON and decodes the "result" field of the response into out.
func (q *QdrantIndex) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("qdrant: encode request: %w", err)
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, q.baseURL+path, rd)
	if err != nil {
		return fmt.Errorf("qdrant: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if q.apiKey != "" {
		req.Header.Set("api-key", q.apiKey)
	}
	resp, err := q.client.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("qdrant %s %s: read response: %w", method, path, err)
	}
	if resp.StatusCode >= 300 {
		return &qdrantError{method: method, path: path, status: resp.StatusCode, body: utils.Truncate(string(payload), 256)}
	}
	if out == nil {
		return nil
	}
	envelope := struct {
		Result json.RawMessage `json:"result"`
	}{}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return fmt.Errorf("qdrant %s %s: decode response: %w", method, path, err)
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return fmt.Errorf("qdrant %s %s: decode result: %w", method, path, err)
	}
	return nil
}

// ResetCollection drops the collection, recreates it and waits until Qdrant reports it green.
func (q *QdrantIndex) ResetCollection(ctx context.Context, name string, dimensions int, distance Distance) error {
	if dimensions <= 0 {
		return fmt.Errorf("dimensions must be positive")
	}
	q.mu.Lock()
	if name != "" {
		q.collection = name
	}
	q.distance = distance
	name = q.collection
	q.mu.Unlock()

	err := q.do(ctx, http.MethodDelete, collectionPath(name, ""), nil, nil)
	var qe *qdrantError
	if errors.As(err, &qe) && qe.status == http.StatusNotFound {
		err = nil
	}
	if err != nil {
		return fmt.Errorf("drop collection: %w", err)
	}
	body := map[string]any{
		"vectors": map[string]any{"size": dimensions, "distance": string(distance)},
	}
	if err := q.do(ctx, http.MethodPut, collectionPath(name, ""), body, nil); err != nil {
		return fmt.Errorf("create collection: %w", err)
	}
	return q.waitGreen(ctx, name)
}

func (q *QdrantIndex) waitGreen(ctx context.Context, name string) error {
	ticker := time.NewTicker(q.pollInterval)
	defer ticker.Stop()
	for {
		var info struct {
			Status string `json:"status"`
		}
		if err := q.do(ctx, http.MethodGet, collectionPath(name, ""), nil, &info); err != nil {
			return fmt.Errorf("collection status: %w", err)
		}
		if info.Status == "green" {
			return nil
		}
		q.logger.Debug("waiting for qdrant collection", zap.String("collection", name), zap.String("status", info.Status))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Upsert writes one point and waits for it to be applied.
func (q *QdrantIndex) Upsert(ctx context.Context, id uint64, vector []float32, metadata map[string]string) error {
	body := map[string]any{
		"points": []map[string]any{{
			"id":      id,
			"vector":  vector,
			"payload": metadata,
		}},
	}
	name, _ := q.current()
	if err := q.do(ctx, http.MethodPut, collectionPath(name, "/points?wait=true"), body, nil); err != nil {
		return fmt.Errorf("upsert point %d: %w", id, err)
	}
	return nil
}

// Search returns the topK nearest points with their payloads. Non-string payload values are dropped.
// Qdrant reports Euclid scores as distances; they are negated so that larger is closer.
func (q *QdrantIndex) Search(ctx context.Context, vector []float32, topK int) ([]Hit, error) {
	if topK <= 0 {
		return nil, nil
	}
	body := map[string]any{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
	}
	var result []struct {
		ID      uint64         `json:"id"`
		Score   float64        `json:"score"`
		Payload map[string]any `json:"payload"`
	}
	name, distance := q.current()
	if err := q.do(ctx, http.MethodPost, collectionPath(name, "/points/search"), body, &result); err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	hits := make([]Hit, 0, len(result))
	for _, r := range result {
		md := make(map[string]string, len(r.Payload))
		for k, v := range r.Payload {
			if s, ok := v.(string); ok {
				md[k] = s
			}
		}
		score := r.Score
		if distance == Euclid {
			score = -score
		}
		hits = append(hits, Hit{ID: r.ID, Metadata: md, Score: score})
	}
	return hits, nil
}

// Count returns the exact number of points in the collection.
func (q *QdrantIndex) Count(ctx context.Context) (int, error) {
	var result struct {
		Count int `json:"count"`
	}
	name, _ := q.current()
	if err := q.do(ctx, http.MethodPost, collectionPath(name, "/points/count"), map[string]any{"exact": true}, &result); err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return result.Count, nil
}

// Close releases idle connections.
func (q *QdrantIndex) Close() error {
	q.client.CloseIdleConnections()
	return nil
}
