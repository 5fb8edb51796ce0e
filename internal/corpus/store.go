package corpus

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/segment"
)

// Load walks the provider and segments every entry into a document.
func Load(ctx context.Context, p Provider) ([]*models.Document, error) {
	entries, err := p.Walk(ctx)
	if err != nil {
		return nil, err
	}
	docs := make([]*models.Document, 0, len(entries))
	for _, e := range entries {
		docs = append(docs, &models.Document{
			ID:      e.Path,
			RawText: e.Contents,
			Units:   segment.Segment(e.Contents),
		})
	}
	return docs, nil
}

// Set is an immutable collection of documents keyed by id.
type Set struct {
	byID map[string]*models.Document
	ids  []string
}

// NewSet builds a set from docs. Duplicate ids are an error.
func NewSet(docs []*models.Document) (*Set, error) {
	s := &Set{byID: make(map[string]*models.Document, len(docs))}
	for _, d := range docs {
		if _, dup := s.byID[d.ID]; dup {
			return nil, fmt.Errorf("duplicate document id %q", d.ID)
		}
		s.byID[d.ID] = d
		s.ids = append(s.ids, d.ID)
	}
	sort.Strings(s.ids)
	return s, nil
}

// Get returns the document with the given id.
func (s *Set) Get(id string) (*models.Document, bool) {
	d, ok := s.byID[id]
	return d, ok
}

// IDs returns document ids in sorted order. The slice must not be modified.
func (s *Set) IDs() []string {
	return s.ids
}

// Documents returns the documents in id order.
func (s *Set) Documents() []*models.Document {
	out := make([]*models.Document, len(s.ids))
	for i, id := range s.ids {
		out[i] = s.byID[id]
	}
	return out
}

// Len returns the number of documents.
func (s *Set) Len() int {
	return len(s.ids)
}

// Units returns the total number of units across all documents.
func (s *Set) Units() int {
	n := 0
	for _, d := range s.byID {
		n += len(d.Units)
	}
	return n
}

var emptySet = &Set{byID: map[string]*models.Document{}}

// Store holds the current document set. Readers never block a Replace.
type Store struct {
	current atomic.Pointer[Set]
}

// NewStore returns an empty store.
func NewStore() *Store {
	s := &Store{}
	s.current.Store(emptySet)
	return s
}

// Snapshot returns the current set.
func (s *Store) Snapshot() *Set {
	return s.current.Load()
}

// Lookup resolves a document id against the current set.
func (s *Store) Lookup(id string) (*models.Document, bool) {
	return s.Snapshot().Get(id)
}

// Replace publishes a new set.
func (s *Store) Replace(set *Set) {
	if set == nil {
		set = emptySet
	}
	s.current.Store(set)
}
