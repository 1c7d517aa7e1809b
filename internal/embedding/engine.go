package embedding

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spherical/slide-pipeline/internal/config"
	"github.com/spherical/slide-pipeline/internal/domain"
	"github.com/spherical/slide-pipeline/internal/observability"
	"github.com/spherical/slide-pipeline/internal/storage"
)

// Engine embeds pending slides and promotes documents whose slides all
// hold a vector.
type Engine struct {
	store     *storage.Store
	embedder  Embedder
	dimension int
	batchSize int
	logger    *observability.Logger

	// Progress, when set, is called after every batch.
	Progress func(done, total int)
}

// NewEngine creates an embedding engine.
func NewEngine(store *storage.Store, embedder Embedder, cfg config.EmbeddingConfig, logger *observability.Logger) *Engine {
	if logger == nil {
		logger = observability.Nop()
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 10
	}
	return &Engine{
		store:     store,
		embedder:  embedder,
		dimension: cfg.Dimension,
		batchSize: batchSize,
		logger:    logger.WithOperation("embedding"),
	}
}

// Summary reports one embedding run.
type Summary struct {
	Model             string        `json:"model"`
	Candidates        int           `json:"candidates"`
	Batches           int           `json:"batches"`
	FallbackBatches   int           `json:"fallback_batches"`
	SkippedEmpty      int           `json:"skipped_empty"`
	Embedded          int           `json:"embedded"`
	Rejected          int           `json:"rejected"`
	Failed            int           `json:"failed"`
	PromotedDocuments []string      `json:"promoted_documents"`
	FailedDocuments   []string      `json:"failed_documents"`
	Duration          time.Duration `json:"duration"`
}

// Run selects up to limit un-embedded slides (limit <= 0 means all) and
// processes them in batches. Item and batch failures are counted, never
// returned; only selection errors and cancellation abort the run.
func (e *Engine) Run(ctx context.Context, limit int) (*Summary, error) {
	start := time.Now()
	summary := &Summary{Model: e.embedder.Model()}

	slides, err := e.store.Repositories().Slides.ListUnembedded(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("select embedding candidates: %w", err)
	}
	summary.Candidates = len(slides)

	e.logger.Info().
		Int("candidates", len(slides)).
		Int("batch_size", e.batchSize).
		Int("dimension", e.dimension).
		Msg("Embedding run started")

	for i := 0; i < len(slides); i += e.batchSize {
		if err := ctx.Err(); err != nil {
			summary.Duration = time.Since(start)
			return summary, err
		}

		end := min(i+e.batchSize, len(slides))
		e.processBatch(ctx, slides[i:end], summary)
		summary.Batches++

		if e.Progress != nil {
			e.Progress(end, len(slides))
		}
	}

	summary.Duration = time.Since(start)
	e.logger.Info().
		Int("embedded", summary.Embedded).
		Int("rejected", summary.Rejected).
		Int("failed", summary.Failed).
		Int("skipped_empty", summary.SkippedEmpty).
		Int("promoted", len(summary.PromotedDocuments)).
		Dur("duration", summary.Duration).
		Msg("Embedding run finished")

	return summary, nil
}

type embeddedSlide struct {
	id     string
	vector []float32
}

func (e *Engine) processBatch(ctx context.Context, batch []*domain.Slide, summary *Summary) {
	var (
		texts   []string
		pending []*domain.Slide
		docs    []string
		seen    = map[string]bool{}
	)
	for _, slide := range batch {
		text := strings.TrimSpace(slide.Text())
		if text == "" {
			summary.SkippedEmpty++
			continue
		}
		texts = append(texts, text)
		pending = append(pending, slide)
		if !seen[slide.DocumentID] {
			seen[slide.DocumentID] = true
			docs = append(docs, slide.DocumentID)
		}
	}
	if len(pending) == 0 {
		return
	}

	outcomes, fellBack := EmbedBatch(ctx, e.embedder, texts)
	if fellBack {
		summary.FallbackBatches++
		e.logger.Warn().Int("items", len(texts)).Msg("Batch embedding failed, fell back to per-item calls")
	}

	var (
		valid   []embeddedSlide
		damaged = map[string]bool{}
	)
	for i, outcome := range outcomes {
		slide := pending[i]
		if !outcome.OK() {
			summary.Failed++
			damaged[slide.DocumentID] = true
			e.logger.Warn().Err(outcome.Err).Str("slide_id", slide.ID).Msg("Embedding failed")
			continue
		}
		vector, err := ValidateVector(outcome.Vector, e.dimension)
		if err != nil {
			summary.Rejected++
			damaged[slide.DocumentID] = true
			e.logger.Warn().Err(err).Str("slide_id", slide.ID).Msg("Embedding rejected")
			continue
		}
		valid = append(valid, embeddedSlide{id: slide.ID, vector: vector})
	}

	var promoted, failed []string
	err := e.store.InTx(ctx, func(repos *storage.Repositories) error {
		promoted, failed = nil, nil

		for _, s := range valid {
			if err := repos.Slides.SetEmbedding(ctx, s.id, s.vector); err != nil {
				return fmt.Errorf("store vector for slide %s: %w", s.id, err)
			}
		}

		complete, err := repos.Slides.FullyEmbeddedDocuments(ctx, docs)
		if err != nil {
			return err
		}
		done := map[string]bool{}
		for _, id := range complete {
			done[id] = true
			if e.transition(ctx, repos, id, domain.StatusEmbedded) {
				promoted = append(promoted, id)
			}
		}

		for _, id := range docs {
			if !damaged[id] || done[id] {
				continue
			}
			if e.transition(ctx, repos, id, domain.StatusFailedEmbedded) {
				failed = append(failed, id)
			}
		}
		return nil
	})
	if err != nil {
		summary.Failed += len(valid)
		e.logger.Error().Err(err).Int("items", len(valid)).Msg("Embedding batch not persisted")
		return
	}

	summary.Embedded += len(valid)
	summary.PromotedDocuments = append(summary.PromotedDocuments, promoted...)
	summary.FailedDocuments = append(summary.FailedDocuments, failed...)
}

// transition applies a status change allowed by the transition table and
// logs the ones it refuses.
func (e *Engine) transition(ctx context.Context, repos *storage.Repositories, id string, next domain.Status) bool {
	prev, err := repos.Documents.TransitionStatus(ctx, id, next)
	if err != nil {
		e.logger.WithDocument(id).Warn().
			Err(err).
			Status("from", prev).
			Status("to", next).
			Msg("Document status not changed")
		return false
	}
	if prev != next {
		e.logger.WithDocument(id).Info().
			Status("from", prev).
			Status("to", next).
			Msg("Document status changed")
	}
	return true
}
