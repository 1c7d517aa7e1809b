// Package server exposes the pipeline runs over a small JSON API.
package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/spherical/slide-pipeline/internal/domain"
	"github.com/spherical/slide-pipeline/internal/embedding"
	"github.com/spherical/slide-pipeline/internal/extract"
	"github.com/spherical/slide-pipeline/internal/observability"
	"github.com/spherical/slide-pipeline/internal/storage"
)

// Extractor runs extraction and comparison passes.
type Extractor interface {
	RunExtraction(ctx context.Context, req extract.Request, eventCh chan<- domain.StreamEvent) (*extract.Summary, error)
	RunComparison(ctx context.Context, models []string, limit int, eventCh chan<- domain.StreamEvent) (*extract.ComparisonSummary, error)
}

// EmbeddingRunner runs embedding passes.
type EmbeddingRunner interface {
	Run(ctx context.Context, limit int) (*embedding.Summary, error)
}

// Config holds API settings.
type Config struct {
	RequestTimeout time.Duration
}

// Server serializes pipeline runs behind HTTP handlers. At most one run is
// in flight; a second request is refused rather than queued.
type Server struct {
	store     *storage.Store
	extractor Extractor
	embedder  EmbeddingRunner
	logger    *observability.Logger
	cfg       Config

	running sync.Mutex
}

// New creates a new API server.
func New(store *storage.Store, extractor Extractor, embedder EmbeddingRunner, logger *observability.Logger, cfg Config) *Server {
	if logger == nil {
		logger = observability.Nop()
	}
	return &Server{
		store:     store,
		extractor: extractor,
		embedder:  embedder,
		logger:    logger.WithOperation("api"),
		cfg:       cfg,
	}
}

// Router returns the configured chi router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(chimiddleware.Recoverer)
	if s.cfg.RequestTimeout > 0 {
		r.Use(chimiddleware.Timeout(s.cfg.RequestTimeout))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"healthy","service":"slide-pipeline"}`))
	})

	r.Route("/runs", func(r chi.Router) {
		r.Post("/extraction", s.runExtraction)
		r.Post("/embedding", s.runEmbedding)
		r.Post("/comparison", s.runComparison)
	})

	r.Get("/documents/{id}", s.getDocument)

	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("request_id", chimiddleware.GetReqID(r.Context())).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("request served")
	})
}
