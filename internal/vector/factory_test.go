package vector

import (
	"context"
	"testing"
)

func TestNewIndex_Memory(t *testing.T) {
	for _, backend := range []string{"memory", ""} {
		idx, err := NewIndex(context.Background(), Config{Backend: backend}, nil)
		if err != nil {
			t.Fatalf("NewIndex(%q): %v", backend, err)
		}
		if _, ok := idx.(*MemoryIndex); !ok {
			t.Errorf("NewIndex(%q) returned %T", backend, idx)
		}
		_ = idx.Close()
	}
}

func TestNewIndex_Qdrant(t *testing.T) {
	idx, err := NewIndex(context.Background(), Config{Backend: "qdrant", URL: "http://localhost:6333", Collection: "docs"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := idx.(*QdrantIndex); !ok {
		t.Errorf("got %T", idx)
	}
	if _, err := NewIndex(context.Background(), Config{Backend: "qdrant"}, nil); err == nil {
		t.Error("expected error for qdrant without url")
	}
}

func TestNewIndex_PGVectorNeedsDSN(t *testing.T) {
	if _, err := NewIndex(context.Background(), Config{Backend: "pgvector"}, nil); err == nil {
		t.Error("expected error for pgvector without dsn")
	}
}

func TestNewIndex_Unknown(t *testing.T) {
	if _, err := NewIndex(context.Background(), Config{Backend: "faiss"}, nil); err == nil {
		t.Error("expected error for unknown backend")
	}
}

func TestParseDistance(t *testing.T) {
	tests := map[string]Distance{"": Cosine, "COSINE": Cosine, "dot": Dot, "Euclid": Euclid, "euclidean": Euclid}
	for in, want := range tests {
		got, err := ParseDistance(in)
		if err != nil || got != want {
			t.Errorf("ParseDistance(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseDistance("manhattan"); err == nil {
		t.Error("expected error")
	}
}

func TestScore(t *testing.T) {
	a := []float32{1, 0}
	b := []float32{0, 2}
	if Score(Cosine, a, a) < 0.999 {
		t.Error("cosine of identical vectors should be 1")
	}
	if Score(Cosine, a, b) != 0 {
		t.Error("orthogonal cosine should be 0")
	}
	if Score(Dot, []float32{2, 3}, []float32{4, 5}) != 23 {
		t.Error("dot product")
	}
	if Score(Euclid, []float32{0, 0}, []float32{3, 4}) != -5 {
		t.Error("euclid should be negated distance")
	}
	if CosineSimilarity([]float32{0, 0}, a) != 0 {
		t.Error("zero vector cosine should be 0")
	}
}
