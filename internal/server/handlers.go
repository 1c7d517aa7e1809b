package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/spherical/slide-pipeline/internal/domain"
	"github.com/spherical/slide-pipeline/internal/extract"
	"github.com/spherical/slide-pipeline/internal/storage"
)

// EmbeddingRequestDTO is the body of POST /runs/embedding.
type EmbeddingRequestDTO struct {
	Limit int `json:"limit"`
}

// ComparisonRequestDTO is the body of POST /runs/comparison.
type ComparisonRequestDTO struct {
	Models []string `json:"models"`
	Limit  int      `json:"limit"`
}

// DocumentDTO is the response of GET /documents/{id}.
type DocumentDTO struct {
	*domain.Document
	StatusName string `json:"status_name"`
	SlideCount int    `json:"slide_count"`
}

func (s *Server) runExtraction(w http.ResponseWriter, r *http.Request) {
	var req extract.Request
	if !s.decode(w, r, &req) {
		return
	}
	if !s.acquire(w) {
		return
	}
	defer s.running.Unlock()

	summary, err := s.extractor.RunExtraction(r.Context(), req, nil)
	if err != nil {
		s.writeRunError(w, "extraction", err)
		return
	}
	s.writeJSON(w, http.StatusOK, summary)
}

func (s *Server) runEmbedding(w http.ResponseWriter, r *http.Request) {
	var req EmbeddingRequestDTO
	if !s.decode(w, r, &req) {
		return
	}
	if !s.acquire(w) {
		return
	}
	defer s.running.Unlock()

	summary, err := s.embedder.Run(r.Context(), req.Limit)
	if err != nil {
		s.writeRunError(w, "embedding", err)
		return
	}
	s.writeJSON(w, http.StatusOK, summary)
}

func (s *Server) runComparison(w http.ResponseWriter, r *http.Request) {
	var req ComparisonRequestDTO
	if !s.decode(w, r, &req) {
		return
	}
	if len(req.Models) == 0 {
		s.writeError(w, http.StatusBadRequest, "models is required", "")
		return
	}
	if !s.acquire(w) {
		return
	}
	defer s.running.Unlock()

	summary, err := s.extractor.RunComparison(r.Context(), req.Models, req.Limit, nil)
	if err != nil {
		s.writeRunError(w, "comparison", err)
		return
	}
	s.writeJSON(w, http.StatusOK, summary)
}

func (s *Server) getDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	repos := s.store.Repositories()
	doc, err := repos.Documents.GetByID(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "document not found", id)
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Str("document_id", id).Msg("Failed to load document")
		s.writeError(w, http.StatusInternalServerError, "failed to load document", err.Error())
		return
	}

	count, err := repos.Slides.CountByDocument(ctx, doc.ID)
	if err != nil {
		s.logger.Error().Err(err).Str("document_id", id).Msg("Failed to count slides")
		s.writeError(w, http.StatusInternalServerError, "failed to count slides", err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, DocumentDTO{
		Document:   doc,
		StatusName: doc.Status.String(),
		SlideCount: count,
	})
}

// acquire takes the run lock or answers 409.
func (s *Server) acquire(w http.ResponseWriter) bool {
	if s.running.TryLock() {
		return true
	}
	s.writeError(w, http.StatusConflict, "a run is already in progress", "")
	return false
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	s.writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
	return false
}

func (s *Server) writeRunError(w http.ResponseWriter, run string, err error) {
	switch {
	case domain.IsConfig(err):
		s.logger.Error().Err(err).Str("run", run).Msg("Run rejected by configuration")
		s.writeError(w, http.StatusBadRequest, run+" rejected", err.Error())
	case domain.IsNotFound(err):
		s.writeError(w, http.StatusNotFound, run+" target not found", err.Error())
	default:
		s.logger.Error().Err(err).Str("run", run).Msg("Run failed")
		s.writeError(w, http.StatusInternalServerError, run+" failed", err.Error())
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message, detail string) {
	resp := map[string]string{
		"error": message,
	}
	if detail != "" {
		resp["detail"] = detail
	}
	s.writeJSON(w, status, resp)
}
