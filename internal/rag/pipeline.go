// Package rag answers questions by retrieving the best matching document and streaming a grounded completion.
package rag

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/chat"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/metrics"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/vector"
)

// FallbackMessage is sent, alone, whenever an answer cannot be produced.
const FallbackMessage = "Sorry, I couldn't find an answer to that right now. Please try again later."

const promptTemplate = "Using only the documentation provided as context, answer the following question. " +
	"If the documentation does not cover it, say that you don't know.\n\nQuestion: "

// BuildPrompt returns the user prompt for query. It always ends with the query verbatim.
func BuildPrompt(query string) string {
	return promptTemplate + query
}

// Fallback reasons, used as metric labels.
const (
	ReasonEmbed           = "embed_failed"
	ReasonSearch          = "search_failed"
	ReasonNoHits          = "no_hits"
	ReasonMissingDocument = "missing_document_id"
	ReasonUnknownDocument = "unknown_document"
	ReasonStream          = "stream_failed"
)

// DocumentResolver looks up a document by id.
type DocumentResolver interface {
	Lookup(id string) (*models.Document, bool)
}

// Pipeline wires the embedder, vector index, document store and chat model together.
type Pipeline struct {
	embedder embedding.Embedder
	index    vector.Index
	docs     DocumentResolver
	streamer chat.Streamer
	topK     int
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithTopK sets how many hits are requested from the index. Only the best is used. Minimum 1.
func WithTopK(k int) Option {
	return func(p *Pipeline) {
		if k >= 1 {
			p.topK = k
		}
	}
}

// NewPipeline returns a query pipeline.
func NewPipeline(e embedding.Embedder, idx vector.Index, docs DocumentResolver, s chat.Streamer, opts ...Option) *Pipeline {
	p := &Pipeline{
		embedder: e,
		index:    idx,
		docs:     docs,
		streamer: s,
		topK:     1,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type fallbackError struct {
	reason string
	err    error
}

func (e *fallbackError) Error() string { return e.reason + ": " + e.err.Error() }
func (e *fallbackError) Unwrap() error { return e.err }

func fail(reason string, err error) error {
	return &fallbackError{reason: reason, err: err}
}

// Retrieve embeds query and resolves the best hit to its document.
func (p *Pipeline) Retrieve(ctx context.Context, query string) (*models.Document, vector.Hit, error) {
	qv, err := p.embedder.Embed(ctx, query)
	if err != nil {
		return nil, vector.Hit{}, fail(ReasonEmbed, err)
	}
	hits, err := p.index.Search(ctx, qv, p.topK)
	if err != nil {
		return nil, vector.Hit{}, fail(ReasonSearch, err)
	}
	if len(hits) == 0 {
		return nil, vector.Hit{}, fail(ReasonNoHits, errors.New("index returned no hits"))
	}
	best := hits[0]
	id, ok := best.Metadata[vector.MetadataDocumentID]
	if !ok || id == "" {
		return nil, best, fail(ReasonMissingDocument, fmt.Errorf("hit %d has no document id", best.ID))
	}
	doc, ok := p.docs.Lookup(id)
	if !ok {
		return nil, best, fail(ReasonUnknownDocument, fmt.Errorf("document %q not in corpus", id))
	}
	return doc, best, nil
}

// Answer streams an answer to query. The channel is closed when the model stream ends or ctx
// is cancelled. Failures before the model stream starts yield FallbackMessage alone; the
// cause is only logged.
func (p *Pipeline) Answer(ctx context.Context, query string) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		start := time.Now()
		deltas, err := p.open(ctx, query)
		if err != nil {
			reason := ReasonStream
			var fe *fallbackError
			if errors.As(err, &fe) {
				reason = fe.reason
			}
			if ctx.Err() == nil {
				p.logger.Warn("answering with fallback", zap.String("reason", reason), zap.Error(err))
			}
			p.metrics.QueryFallback(reason)
			select {
			case out <- FallbackMessage:
			case <-ctx.Done():
			}
			return
		}
		p.metrics.QueryAnswered()
		p.relay(ctx, deltas, out, start)
	}()
	return out
}

func (p *Pipeline) open(ctx context.Context, query string) (<-chan chat.Delta, error) {
	doc, hit, err := p.Retrieve(ctx, query)
	if err != nil {
		return nil, err
	}
	p.logger.Debug("grounding answer",
		zap.String("document_id", doc.ID), zap.Uint64("point_id", hit.ID), zap.Float64("score", hit.Score))
	deltas, err := p.streamer.StreamChat(ctx, doc.RawText, BuildPrompt(query))
	if err != nil {
		return nil, fail(ReasonStream, err)
	}
	return deltas, nil
}

// relay forwards each delta as one fragment. A delta with no text becomes "\n".
func (p *Pipeline) relay(ctx context.Context, deltas <-chan chat.Delta, out chan<- string, start time.Time) {
	first := true
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deltas:
			if !ok {
				return
			}
			s := d.Text()
			if s == "" {
				s = "\n"
			}
			select {
			case out <- s:
			case <-ctx.Done():
				return
			}
			if first {
				p.metrics.ObserveFirstFragment(time.Since(start))
				first = false
			}
			p.metrics.FragmentRelayed()
		}
	}
}
