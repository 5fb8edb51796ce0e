// Package vector stores unit embeddings and answers nearest-neighbour queries.
package vector

import (
	"context"
	"fmt"
	"strings"
)

// MetadataDocumentID is the metadata key holding the id of the document a vector came from.
const MetadataDocumentID = "document_id"

// Distance is the similarity metric of a collection.
type Distance string

const (
	Cosine Distance = "Cosine"
	Dot    Distance = "Dot"
	Euclid Distance = "Euclid"
)

// ParseDistance accepts a metric name in any case. Empty selects Cosine.
func ParseDistance(s string) (Distance, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "cosine":
		return Cosine, nil
	case "dot":
		return Dot, nil
	case "euclid", "euclidean":
		return Euclid, nil
	default:
		return "", fmt.Errorf("unknown distance: %s (supported: cosine, dot, euclid)", s)
	}
}

// Hit is one search result. Higher Score means more similar for every distance.
type Hit struct {
	ID       uint64
	Metadata map[string]string
	Score    float64
}

// Index is a vector collection that can be reset, filled and searched.
// ResetCollection must complete before any Upsert into the new collection.
type Index interface {
	ResetCollection(ctx context.Context, name string, dimensions int, distance Distance) error
	Upsert(ctx context.Context, id uint64, vector []float32, metadata map[string]string) error
	Search(ctx context.Context, vector []float32, topK int) ([]Hit, error)
	Count(ctx context.Context) (int, error)
	Close() error
}
