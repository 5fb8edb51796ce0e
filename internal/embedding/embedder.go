// Package embedding turns text into fixed-dimension vectors through a hosted model or a local hash.
package embedding

import (
	"context"
	"fmt"
)

// Embedder produces vector embeddings for text.
// EmbedBatch returns exactly one vector per input text, in input order.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}

func checkBatch(texts []string, vectors [][]float32) error {
	if len(vectors) != len(texts) {
		return fmt.Errorf("embedding count mismatch: got %d vectors for %d texts", len(vectors), len(texts))
	}
	for i, v := range vectors {
		if len(v) == 0 {
			return fmt.Errorf("empty embedding for input %d", i)
		}
	}
	return nil
}
