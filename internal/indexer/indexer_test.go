package indexer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/vector"
)

// recordingIndex wraps a MemoryIndex and records the order of calls.
type recordingIndex struct {
	*vector.MemoryIndex
	mu        sync.Mutex
	events    []string
	ids       []uint64
	failAfter int
}

func newRecordingIndex() *recordingIndex {
	return &recordingIndex{MemoryIndex: vector.NewMemoryIndex(), failAfter: -1}
}

func (r *recordingIndex) ResetCollection(ctx context.Context, name string, dims int, d vector.Distance) error {
	r.mu.Lock()
	r.events = append(r.events, "reset")
	r.mu.Unlock()
	return r.MemoryIndex.ResetCollection(ctx, name, dims, d)
}

func (r *recordingIndex) Upsert(ctx context.Context, id uint64, v []float32, md map[string]string) error {
	r.mu.Lock()
	if r.failAfter >= 0 && len(r.ids) >= r.failAfter {
		r.mu.Unlock()
		return errors.New("index unavailable")
	}
	r.events = append(r.events, "upsert")
	r.ids = append(r.ids, id)
	r.mu.Unlock()
	return r.MemoryIndex.Upsert(ctx, id, v, md)
}

type failingEmbedder struct {
	*embedding.HashEmbedder
	failOn string
	mu     sync.Mutex
	calls  int
}

func (f *failingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	for _, t := range texts {
		if t == f.failOn {
			return nil, errors.New("embedding service down")
		}
	}
	return f.HashEmbedder.EmbedBatch(ctx, texts)
}

func testDocs() []*models.Document {
	return []*models.Document{
		{ID: "a.mdx", Units: []models.Unit{{Text: "The sky is blue.\n"}, {Text: "Clouds are white.\n"}}},
		{ID: "empty.mdx"},
		{ID: "b.mdx", Units: []models.Unit{{Text: "Bananas are yellow.\n"}}},
	}
}

func TestIndexer_RunAssignsSequentialIDs(t *testing.T) {
	idx := newRecordingIndex()
	ix := NewIndexer(embedding.NewHashEmbedder(64), idx, Config{Collection: "docs"})

	report, err := ix.Run(context.Background(), testDocs())
	if err != nil {
		t.Fatal(err)
	}
	if report.Documents != 3 || report.Units != 3 || report.Indexed != 3 {
		t.Errorf("report = %+v", report)
	}
	if idx.events[0] != "reset" {
		t.Errorf("first event %q, want reset", idx.events[0])
	}
	want := []uint64{0, 1, 2}
	for i, id := range idx.ids {
		if id != want[i] {
			t.Errorf("ids = %v, want %v", idx.ids, want)
			break
		}
	}
	if n, _ := idx.Count(context.Background()); n != 3 {
		t.Errorf("Count = %d", n)
	}
}

func TestIndexer_HitsResolveToTheirDocument(t *testing.T) {
	idx := vector.NewMemoryIndex()
	emb := embedding.NewHashEmbedder(256)
	ix := NewIndexer(emb, idx, Config{Collection: "docs"})
	docs := testDocs()
	if _, err := ix.Run(context.Background(), docs); err != nil {
		t.Fatal(err)
	}
	for _, d := range docs {
		for _, u := range d.Units {
			q, _ := emb.Embed(context.Background(), u.Text)
			hits, err := idx.Search(context.Background(), q, 1)
			if err != nil || len(hits) != 1 {
				t.Fatalf("search %q: %v %v", u.Text, hits, err)
			}
			if got := hits[0].Metadata[vector.MetadataDocumentID]; got != d.ID {
				t.Errorf("unit %q resolved to %s, want %s", u.Text, got, d.ID)
			}
		}
	}
}

func TestIndexer_ConcurrentIDsUniqueAndDense(t *testing.T) {
	var docs []*models.Document
	for i := 0; i < 20; i++ {
		docs = append(docs, &models.Document{
			ID:    fmt.Sprintf("d%02d.mdx", i),
			Units: []models.Unit{{Text: fmt.Sprintf("unit %d one\n", i)}, {Text: fmt.Sprintf("unit %d two\n", i)}},
		})
	}
	idx := newRecordingIndex()
	ix := NewIndexer(embedding.NewHashEmbedder(32), idx, Config{Collection: "docs", Concurrency: 4})
	report, err := ix.Run(context.Background(), docs)
	if err != nil {
		t.Fatal(err)
	}
	if report.Indexed != 40 {
		t.Errorf("Indexed = %d", report.Indexed)
	}
	ids := append([]uint64(nil), idx.ids...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for i, id := range ids {
		if id != uint64(i) {
			t.Fatalf("ids not 0..N-1: %v", ids)
		}
	}
}

func TestIndexer_EachRunRestartsIDs(t *testing.T) {
	idx := newRecordingIndex()
	ix := NewIndexer(embedding.NewHashEmbedder(32), idx, Config{Collection: "docs"})
	for i := 0; i < 2; i++ {
		idx.ids = nil
		if _, err := ix.Run(context.Background(), testDocs()); err != nil {
			t.Fatal(err)
		}
		if idx.ids[0] != 0 {
			t.Errorf("run %d started at id %d", i, idx.ids[0])
		}
	}
	if n, _ := idx.Count(context.Background()); n != 3 {
		t.Errorf("Count after second run = %d, want 3", n)
	}
}

func TestIndexer_EmbeddingErrorAborts(t *testing.T) {
	idx := newRecordingIndex()
	emb := &failingEmbedder{HashEmbedder: embedding.NewHashEmbedder(32), failOn: "Bananas are yellow.\n"}
	docs := append(testDocs(), &models.Document{ID: "c.mdx", Units: []models.Unit{{Text: "never\n"}}})
	ix := NewIndexer(emb, idx, Config{Collection: "docs"})

	report, err := ix.Run(context.Background(), docs)
	if err == nil {
		t.Fatal("expected error")
	}
	if report.Indexed != 2 {
		t.Errorf("Indexed = %d, want 2 (partial index left as is)", report.Indexed)
	}
	if emb.calls != 2 {
		t.Errorf("embed calls = %d, want 2 (no work after failure)", emb.calls)
	}
	if n, _ := idx.Count(context.Background()); n != 2 {
		t.Errorf("Count = %d", n)
	}
}

func TestIndexer_UpsertErrorAborts(t *testing.T) {
	idx := newRecordingIndex()
	idx.failAfter = 1
	ix := NewIndexer(embedding.NewHashEmbedder(32), idx, Config{Collection: "docs"})
	report, err := ix.Run(context.Background(), testDocs())
	if err == nil {
		t.Fatal("expected error")
	}
	if report.Indexed != 1 {
		t.Errorf("Indexed = %d, want 1", report.Indexed)
	}
}

func TestIndexer_ResetFailureStopsBeforeUpserts(t *testing.T) {
	idx := newRecordingIndex()
	ix := NewIndexer(embedding.NewHashEmbedder(32), idx, Config{Collection: "docs"})
	ix.cfg.Dimensions = 0
	if _, err := ix.Run(context.Background(), testDocs()); err == nil {
		t.Fatal("expected reset error")
	}
	if len(idx.ids) != 0 {
		t.Errorf("upserts after failed reset: %v", idx.ids)
	}
}
