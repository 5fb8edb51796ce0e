package vector

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sort"
	"sync"
)

// ErrNoCollection is returned by writes before ResetCollection has been called.
var ErrNoCollection = errors.New("collection not initialized")

// MemoryIndex is an in-memory vector index using brute-force search.
// Suitable for tests, local development and small corpora. Contents are lost on exit.
type MemoryIndex struct {
	name       string
	dimensions int
	distance   Distance
	points     map[uint64]memoryPoint
	mu         sync.RWMutex
}

type memoryPoint struct {
	vector   []float32
	metadata map[string]string
}

// NewMemoryIndex creates an empty in-memory index. Call ResetCollection before writing.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{points: make(map[uint64]memoryPoint)}
}

// ResetCollection discards all points and sets the collection shape.
func (m *MemoryIndex) ResetCollection(ctx context.Context, name string, dimensions int, distance Distance) error {
	if dimensions <= 0 {
		return fmt.Errorf("dimensions must be positive")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.name = name
	m.dimensions = dimensions
	m.distance = distance
	m.points = make(map[uint64]memoryPoint)
	return nil
}

// Upsert stores vector under id, replacing any previous point with that id.
func (m *MemoryIndex) Upsert(ctx context.Context, id uint64, vector []float32, metadata map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dimensions == 0 {
		return ErrNoCollection
	}
	if len(vector) != m.dimensions {
		return fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(vector), m.dimensions)
	}
	vec := make([]float32, len(vector))
	copy(vec, vector)
	m.points[id] = memoryPoint{vector: vec, metadata: maps.Clone(metadata)}
	return nil
}

// Search returns the topK points by score, ties broken by ascending id.
// An uninitialized or empty index returns no hits.
func (m *MemoryIndex) Search(ctx context.Context, query []float32, topK int) ([]Hit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.dimensions == 0 || topK <= 0 || len(m.points) == 0 {
		return nil, nil
	}
	if len(query) != m.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), m.dimensions)
	}
	hits := make([]Hit, 0, len(m.points))
	for id, p := range m.points {
		hits = append(hits, Hit{ID: id, Metadata: p.metadata, Score: Score(m.distance, query, p.vector)})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	if topK > len(hits) {
		topK = len(hits)
	}
	out := hits[:topK]
	for i := range out {
		out[i].Metadata = maps.Clone(out[i].Metadata)
	}
	return out, nil
}

// Count returns the number of stored points.
func (m *MemoryIndex) Count(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.points), nil
}

// Name returns the current collection name.
func (m *MemoryIndex) Name() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.name
}

// Close is a no-op for MemoryIndex.
func (m *MemoryIndex) Close() error {
	return nil
}
