// Package server provides the HTTP API for kotae.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/corpus"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/vector"
)

// Answerer streams answers to questions.
type Answerer interface {
	Answer(ctx context.Context, query string) <-chan string
}

// RebuildService starts index rebuilds.
type RebuildService interface {
	RebuildAsync(ctx context.Context, trigger string, done func(*models.IndexRun, error)) error
	Running() bool
}

// Server is the HTTP server for the kotae API.
type Server struct {
	answerer  Answerer
	rebuilder RebuildService
	store     *corpus.Store
	index     vector.Index
	ledger    storage.RunLedger
	gatherer  prometheus.Gatherer
	config    *config.ServerConfig
	logger    *zap.Logger
	server    *http.Server
	// ctx outlives requests; background rebuilds started over HTTP use it.
	ctx    context.Context
	cancel context.CancelFunc
}

// Option configures a Server.
type Option func(*Server)

// WithLedger enables the index run endpoints.
func WithLedger(l storage.RunLedger) Option {
	return func(s *Server) { s.ledger = l }
}

// WithGatherer serves g on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// NewServer creates a server with the given dependencies.
func NewServer(
	answerer Answerer,
	rebuilder RebuildService,
	store *corpus.Store,
	index vector.Index,
	cfg *config.ServerConfig,
	logger *zap.Logger,
	opts ...Option,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		answerer:  answerer,
		rebuilder: rebuilder,
		store:     store,
		index:     index,
		config:    cfg,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router returns the HTTP handler with all routes mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Answers stream for as long as the model talks; no timeout or compression here.
	r.Post("/api/v1/chat", s.handleChat)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))
		r.Use(middleware.Compress(5))

		r.Get("/health", s.handleHealth)
		r.Get("/api/v1/status", s.handleStatus)
		r.Post("/api/v1/index", s.handleRebuild)
		r.Get("/api/v1/index/runs", s.handleListRuns)
		r.Get("/api/v1/documents", s.handleListDocuments)
		r.Get("/api/v1/documents/*", s.handleGetDocument)
		if s.gatherer != nil {
			r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
		}
	})
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server and cancels background rebuilds it started.
func (s *Server) Stop(ctx context.Context) error {
	s.cancel()
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
