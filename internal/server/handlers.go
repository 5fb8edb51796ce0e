package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/indexer"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/storage"
)

const (
	defaultRunsLimit = 20
	maxRunsLimit     = 100
	maxChatBodyBytes = 1 << 20
)

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req models.ChatRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxChatBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		s.respondError(w, http.StatusBadRequest, "content is required")
		return
	}
	s.logger.Debug("chat request", zap.Int("length", len(req.Content)))

	// Cancelling on return stops the answer producer if the client goes away mid-write.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	for fragment := range s.answerer.Answer(ctx, req.Content) {
		if _, err := io.WriteString(w, fragment); err != nil {
			s.logger.Debug("chat client went away", zap.Error(err))
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	set := s.store.Snapshot()
	resp := map[string]interface{}{
		"documents":  set.Len(),
		"units":      set.Units(),
		"rebuilding": s.rebuilder.Running(),
	}
	if n, err := s.index.Count(ctx); err != nil {
		s.logger.Warn("status: count points failed", zap.Error(err))
		resp["vector_index_error"] = err.Error()
	} else {
		resp["vector_index_size"] = n
	}
	if s.ledger != nil {
		run, err := s.ledger.LatestRun(ctx)
		switch {
		case err == nil:
			resp["last_run"] = run
		case errors.Is(err, storage.ErrNotFound):
		default:
			s.logger.Error("status: latest run failed", zap.Error(err))
			s.respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if sized, ok := s.ledger.(interface{ SizeBytes() int64 }); ok {
			resp["ledger_size_bytes"] = sized.SizeBytes()
		}
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRebuild(w http.ResponseWriter, r *http.Request) {
	err := s.rebuilder.RebuildAsync(s.ctx, indexer.TriggerHTTP, func(run *models.IndexRun, err error) {
		if err != nil {
			s.logger.Error("http-triggered rebuild failed", zap.Error(err))
		}
	})
	if errors.Is(err, indexer.ErrRebuildInProgress) {
		s.respondError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.ledger == nil {
		s.respondError(w, http.StatusNotImplemented, "run ledger not enabled")
		return
	}
	limit := defaultRunsLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			s.respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxRunsLimit)
	}
	runs, err := s.ledger.ListRuns(r.Context(), limit)
	if err != nil {
		s.logger.Error("list runs failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if runs == nil {
		runs = []*models.IndexRun{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"runs": runs})
}

type documentSummary struct {
	ID    string `json:"id"`
	Units int    `json:"units"`
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs := s.store.Snapshot().Documents()
	out := make([]documentSummary, 0, len(docs))
	for _, d := range docs {
		out = append(out, documentSummary{ID: d.ID, Units: len(d.Units)})
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"documents": out})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "*")
	doc, ok := s.store.Lookup(id)
	if !ok {
		s.respondError(w, http.StatusNotFound, "document not found")
		return
	}
	s.respondJSON(w, http.StatusOK, doc)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
