package vector

import (
	"context"
	"errors"
	"testing"
)

func newTestMemoryIndex(t *testing.T, dims int, d Distance) *MemoryIndex {
	t.Helper()
	idx := NewMemoryIndex()
	if err := idx.ResetCollection(context.Background(), "docs", dims, d); err != nil {
		t.Fatal(err)
	}
	return idx
}

func TestMemoryIndex_UpsertSearch(t *testing.T) {
	idx := newTestMemoryIndex(t, 3, Cosine)
	defer idx.Close()
	ctx := context.Background()

	points := map[uint64][]float32{
		0: {1, 0, 0},
		1: {0.9, 0.1, 0},
		2: {0, 1, 0},
	}
	for id, v := range points {
		if err := idx.Upsert(ctx, id, v, map[string]string{MetadataDocumentID: string(rune('a' + id))}); err != nil {
			t.Fatal(err)
		}
	}
	if n, _ := idx.Count(ctx); n != 3 {
		t.Errorf("Count=%d", n)
	}

	hits, err := idx.Search(ctx, []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if hits[0].ID != 0 || hits[0].Metadata[MetadataDocumentID] != "a" {
		t.Errorf("top hit should be 0/a, got %d/%v", hits[0].ID, hits[0].Metadata)
	}
	if hits[1].ID != 1 {
		t.Errorf("second hit should be 1, got %d", hits[1].ID)
	}
}

func TestMemoryIndex_UpsertReplaces(t *testing.T) {
	idx := newTestMemoryIndex(t, 2, Cosine)
	ctx := context.Background()
	_ = idx.Upsert(ctx, 7, []float32{1, 0}, map[string]string{MetadataDocumentID: "old"})
	_ = idx.Upsert(ctx, 7, []float32{0, 1}, map[string]string{MetadataDocumentID: "new"})
	if n, _ := idx.Count(ctx); n != 1 {
		t.Errorf("expected 1 point, got %d", n)
	}
	hits, _ := idx.Search(ctx, []float32{0, 1}, 1)
	if hits[0].Metadata[MetadataDocumentID] != "new" {
		t.Errorf("metadata not replaced: %v", hits[0].Metadata)
	}
}

func TestMemoryIndex_TiesByAscendingID(t *testing.T) {
	idx := newTestMemoryIndex(t, 2, Cosine)
	ctx := context.Background()
	for _, id := range []uint64{5, 2, 9} {
		_ = idx.Upsert(ctx, id, []float32{1, 1}, nil)
	}
	hits, _ := idx.Search(ctx, []float32{1, 1}, 3)
	if hits[0].ID != 2 || hits[1].ID != 5 || hits[2].ID != 9 {
		t.Errorf("unexpected order: %v", hits)
	}
}

func TestMemoryIndex_ResetClears(t *testing.T) {
	idx := newTestMemoryIndex(t, 2, Cosine)
	ctx := context.Background()
	_ = idx.Upsert(ctx, 0, []float32{1, 0}, nil)
	if err := idx.ResetCollection(ctx, "docs2", 3, Dot); err != nil {
		t.Fatal(err)
	}
	if n, _ := idx.Count(ctx); n != 0 {
		t.Errorf("reset left %d points", n)
	}
	if idx.Name() != "docs2" {
		t.Errorf("Name=%s", idx.Name())
	}
	if err := idx.Upsert(ctx, 0, []float32{1, 0}, nil); err == nil {
		t.Error("expected dimension mismatch after reset")
	}
}

func TestMemoryIndex_Uninitialized(t *testing.T) {
	idx := NewMemoryIndex()
	ctx := context.Background()
	if err := idx.Upsert(ctx, 0, []float32{1}, nil); !errors.Is(err, ErrNoCollection) {
		t.Errorf("expected ErrNoCollection, got %v", err)
	}
	hits, err := idx.Search(ctx, []float32{1}, 1)
	if err != nil || len(hits) != 0 {
		t.Errorf("expected no hits, got %v %v", hits, err)
	}
}

func TestMemoryIndex_QueryDimensionMismatch(t *testing.T) {
	idx := newTestMemoryIndex(t, 2, Cosine)
	_ = idx.Upsert(context.Background(), 0, []float32{1, 0}, nil)
	if _, err := idx.Search(context.Background(), []float32{1, 0, 0}, 1); err == nil {
		t.Error("expected error for wrong query dimension")
	}
}

func TestMemoryIndex_EuclidPrefersNearest(t *testing.T) {
	idx := newTestMemoryIndex(t, 2, Euclid)
	ctx := context.Background()
	_ = idx.Upsert(ctx, 0, []float32{10, 10}, nil)
	_ = idx.Upsert(ctx, 1, []float32{1, 1}, nil)
	hits, _ := idx.Search(ctx, []float32{0, 0}, 2)
	if hits[0].ID != 1 || hits[0].Score <= hits[1].Score {
		t.Errorf("unexpected euclid ranking: %v", hits)
	}
}

func TestMemoryIndex_HitMetadataIsCopy(t *testing.T) {
	idx := newTestMemoryIndex(t, 1, Dot)
	ctx := context.Background()
	_ = idx.Upsert(ctx, 0, []float32{1}, map[string]string{MetadataDocumentID: "a"})
	hits, _ := idx.Search(ctx, []float32{1}, 1)
	hits[0].Metadata[MetadataDocumentID] = "mutated"
	again, _ := idx.Search(ctx, []float32{1}, 1)
	if again[0].Metadata[MetadataDocumentID] != "a" {
		t.Error("search exposed internal metadata map")
	}
}
