// Package extract turns registered PDFs into stored slides, one document per
// unit of work, and reconciles each document's status with the outcome.
package extract

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spherical/slide-pipeline/internal/cache"
	"github.com/spherical/slide-pipeline/internal/config"
	"github.com/spherical/slide-pipeline/internal/domain"
	"github.com/spherical/slide-pipeline/internal/observability"
	"github.com/spherical/slide-pipeline/internal/storage"
)

// Strategy selects how page text is produced.
type Strategy string

const (
	// StrategyVision renders every page and sends it to the vision service.
	StrategyVision Strategy = "vlm"
	// StrategyConverter converts the whole document once and aligns the
	// markdown onto the physical pages.
	StrategyConverter Strategy = "converter"
)

// Dependencies are the collaborators of a Service. Vision is required for
// StrategyVision, Converter and Counter for StrategyConverter.
type Dependencies struct {
	Store     *storage.Store
	Renderer  domain.PageRenderer
	Counter   domain.PageCounter
	Converter domain.DocumentConverter
	Vision    domain.VisionExtractor
	Cache     *cache.PageCache
	Logger    *observability.Logger
}

// Options are the run defaults.
type Options struct {
	Strategy      Strategy
	DPI           int
	Overwrite     domain.OverwriteMode
	OutputRoot    string
	Model         string
	MaxImageWidth int
	NoContent     string
	Language      string
	Limit         int
}

// OptionsFromConfig maps the extraction and vision sections.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Strategy:      Strategy(cfg.Extraction.Strategy),
		DPI:           cfg.Extraction.DPI,
		Overwrite:     cfg.OverwriteMode(),
		OutputRoot:    cfg.Extraction.OutputRoot,
		Model:         cfg.Vision.Model,
		MaxImageWidth: cfg.Vision.MaxImageWidth,
		NoContent:     cfg.Vision.NoContent,
		Language:      cfg.Vision.Language,
		Limit:         cfg.Extraction.Limit,
	}
}

// Service orchestrates extraction runs.
type Service struct {
	deps   Dependencies
	opts   Options
	logger *observability.Logger
}

// NewService creates a new extraction service.
func NewService(deps Dependencies, opts Options) *Service {
	if deps.Logger == nil {
		deps.Logger = observability.Nop()
	}
	if deps.Cache == nil {
		deps.Cache = cache.NewPageCache(nil, 0, deps.Logger)
	}
	if opts.Strategy == "" {
		opts.Strategy = StrategyVision
	}
	if opts.Overwrite == "" {
		opts.Overwrite = domain.OverwriteDocument
	}
	if opts.NoContent == "" {
		opts.NoContent = DefaultNoContent
	}

	return &Service{
		deps:   deps,
		opts:   opts,
		logger: deps.Logger.WithOperation("extraction"),
	}
}

// Request is one run-extraction call. Zero values fall back to the service
// options.
type Request struct {
	Limit       int                  `json:"limit"`
	DocumentIDs []string             `json:"document_ids,omitempty"`
	Note        string               `json:"note,omitempty"`
	Overwrite   domain.OverwriteMode `json:"overwrite,omitempty"`
	RetryFailed bool                 `json:"retry_failed,omitempty"`
	Strategy    Strategy             `json:"strategy,omitempty"`
	Model       string               `json:"model,omitempty"`

	// RefreshCache drops cached page results before each document.
	RefreshCache bool `json:"refresh_cache,omitempty"`

	statuses   []domain.Status
	skipStatus bool
}

// run is a Request resolved against the service options.
type run struct {
	strategy     Strategy
	overwrite    domain.OverwriteMode
	model        string
	note         string
	updateStatus bool
	refreshCache bool
	events       chan<- domain.StreamEvent
	done         <-chan struct{}
}

func (s *Service) resolve(req Request, eventCh chan<- domain.StreamEvent) (*run, error) {
	r := &run{
		strategy:     req.Strategy,
		overwrite:    req.Overwrite,
		model:        req.Model,
		note:         req.Note,
		updateStatus: len(req.DocumentIDs) == 0 && !req.skipStatus,
		refreshCache: req.RefreshCache,
		events:       eventCh,
	}
	if r.strategy == "" {
		r.strategy = s.opts.Strategy
	}
	if r.overwrite == "" {
		r.overwrite = s.opts.Overwrite
	}

	mode, err := domain.ParseOverwriteMode(string(r.overwrite))
	if err != nil {
		return nil, err
	}
	r.overwrite = mode

	switch r.strategy {
	case StrategyVision:
		if s.deps.Vision == nil {
			return nil, domain.ConfigError("vision strategy requires a vision client", nil)
		}
		if r.model == "" {
			r.model = s.opts.Model
		}
	case StrategyConverter:
		if s.deps.Converter == nil || s.deps.Counter == nil {
			return nil, domain.ConfigError("converter strategy requires a converter and a page counter", nil)
		}
		r.model = s.deps.Converter.Name()
	default:
		return nil, domain.ConfigError(fmt.Sprintf("unknown extraction strategy: %s", r.strategy), nil)
	}
	if s.deps.Renderer == nil {
		return nil, domain.ConfigError("extraction requires a page renderer", nil)
	}
	if s.opts.DPI < 1 || s.opts.DPI > domain.MaxDPI {
		return nil, domain.ConfigError(fmt.Sprintf("invalid dpi: %d (must be between 1 and %d)", s.opts.DPI, domain.MaxDPI), nil)
	}
	return r, nil
}

func (r *run) extractor() string {
	if r.strategy == StrategyConverter {
		return domain.ExtractorConverter
	}
	return domain.ExtractorVLM
}

// RunExtraction processes the selected documents sequentially. Per-page and
// per-document failures degrade the owning document and are counted in the
// summary; only configuration errors, selection errors and cancellation
// are returned.
func (s *Service) RunExtraction(ctx context.Context, req Request, eventCh chan<- domain.StreamEvent) (*Summary, error) {
	start := time.Now()

	r, err := s.resolve(req, eventCh)
	if err != nil {
		s.logger.Error().Err(err).Msg("Extraction run rejected")
		return nil, err
	}
	r.done = ctx.Done()

	docs, missing, err := s.selectDocuments(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("select documents: %w", err)
	}

	summary := &Summary{
		Strategy:  string(r.strategy),
		Model:     r.model,
		Overwrite: string(r.overwrite),
		Selected:  len(docs),
		NotFound:  missing,
	}

	s.logger.Info().
		Str("strategy", string(r.strategy)).
		Str("model", r.model).
		Str("overwrite", string(r.overwrite)).
		Int("documents", len(docs)).
		Bool("update_status", r.updateStatus).
		Msg("Extraction run started")
	r.emit(domain.StreamEvent{Type: domain.EventStart, TotalPages: len(docs), Payload: fmt.Sprintf("Starting extraction of %d documents", len(docs))})

	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			summary.Duration = time.Since(start)
			r.emit(domain.StreamEvent{Type: domain.EventError, Payload: err.Error()})
			return summary, err
		}

		result := s.processDocument(ctx, r, doc)
		summary.add(result)
		r.emit(domain.StreamEvent{Type: domain.EventDocumentDone, DocumentID: doc.ID, Payload: result})
	}

	summary.Duration = time.Since(start)
	s.logger.Info().
		Int("processed", summary.Processed).
		Int("skipped", summary.Skipped).
		Int("failed", summary.Failed).
		Int("pages_succeeded", summary.PagesSucceeded).
		Int("pages_failed", summary.PagesFailed).
		Dur("duration", summary.Duration).
		Msg("Extraction run finished")
	r.emit(domain.StreamEvent{Type: domain.EventComplete, Payload: summary})

	return summary, nil
}

func (s *Service) selectDocuments(ctx context.Context, req Request) ([]*domain.Document, []string, error) {
	repo := s.deps.Store.Repositories().Documents

	if len(req.DocumentIDs) > 0 {
		docs, err := repo.ListByIDs(ctx, req.DocumentIDs)
		if err != nil {
			return nil, nil, err
		}
		found := make(map[string]bool, len(docs))
		for _, d := range docs {
			found[d.ID] = true
		}
		var missing []string
		for _, id := range req.DocumentIDs {
			if canonical, ok := storage.CanonicalID(id); !ok || !found[canonical] {
				missing = append(missing, id)
				s.logger.Warn().Str("document_id", id).Msg("Requested document not found, skipping")
			}
		}
		return docs, missing, nil
	}

	statuses := req.statuses
	if len(statuses) == 0 {
		statuses = []domain.Status{domain.StatusDownloaded}
		if req.RetryFailed {
			statuses = append(statuses, domain.StatusFailedParsed)
		}
	}

	limit := req.Limit
	if limit <= 0 {
		limit = s.opts.Limit
	}
	docs, err := repo.ListByStatus(ctx, statuses, limit)
	return docs, nil, err
}

// errAlreadyExtracted short-circuits a document under overwrite mode none.
var errAlreadyExtracted = errors.New("document already has slides")

// processDocument runs one document through extraction and persistence. It
// never returns an error; the outcome is in the result.
func (s *Service) processDocument(ctx context.Context, r *run, doc *domain.Document) DocumentResult {
	start := time.Now()
	logger := s.logger.WithDocument(doc.ID)
	result := DocumentResult{DocumentID: doc.ID, Name: doc.Name}

	// the row may have been removed since selection
	current, err := s.deps.Store.Repositories().Documents.GetByID(ctx, doc.ID)
	if err != nil {
		result.Outcome = OutcomeSkipped
		result.Error = err.Error()
		if domain.IsNotFound(err) {
			logger.Warn().Msg("Document disappeared before processing, skipping")
		} else {
			result.Outcome = OutcomeFailed
			logger.Error().Err(err).Msg("Failed to load document")
		}
		return result
	}
	doc = current

	if r.overwrite == domain.OverwriteNone {
		n, err := s.deps.Store.Repositories().Slides.CountByDocument(ctx, doc.ID)
		if err != nil {
			result.Outcome = OutcomeFailed
			result.Error = err.Error()
			logger.Error().Err(err).Msg("Failed to count existing slides")
			return result
		}
		if n > 0 {
			result.Outcome = OutcomeSkipped
			result.Error = errAlreadyExtracted.Error()
			logger.Info().Int("existing_slides", n).Msg("Slides already exist, skipping")
			return result
		}
	}

	if r.refreshCache {
		if err := s.deps.Cache.InvalidateDocument(ctx, doc.Checksum); err != nil {
			logger.Warn().Err(err).Msg("Failed to drop cached pages")
		}
	}

	r.emit(domain.StreamEvent{Type: domain.EventDocumentStart, DocumentID: doc.ID, Payload: doc.Name})
	logger.Info().Str("name", doc.Name).Str("strategy", string(r.strategy)).Msg("Extracting document")

	var pages *pageSet
	switch r.strategy {
	case StrategyConverter:
		pages, err = s.extractConverted(ctx, r, doc)
	default:
		pages, err = s.extractVision(ctx, r, doc)
	}

	if err != nil {
		// whole-document failure: nothing is written except the status
		logger.Error().Err(err).Msg("Document extraction failed")
		result.Outcome = OutcomeFailed
		result.Error = err.Error()
		if pages != nil {
			result.TotalPages = pages.total
			result.PagesFailed = pages.total
		}
		if ctx.Err() == nil {
			result.Status = s.markFailed(ctx, r, doc, logger)
		}
		result.Duration = time.Since(start)
		return result
	}

	result.TotalPages = pages.total
	result.PagesSucceeded = len(pages.slides)
	result.PagesFailed = pages.failed

	status, err := s.persist(ctx, r, doc, pages)
	result.Duration = time.Since(start)
	switch {
	case errors.Is(err, errAlreadyExtracted):
		result.Outcome = OutcomeSkipped
		result.Error = err.Error()
		logger.Info().Msg("Slides appeared during extraction, skipping")
		return result
	case err != nil:
		result.Outcome = OutcomeFailed
		result.Error = err.Error()
		result.PagesSucceeded = 0
		logger.Error().Err(err).Msg("Failed to persist slides")
		return result
	}

	result.Status = status
	result.Outcome = OutcomeParsed
	if pages.failed > 0 {
		result.Outcome = OutcomePartial
	}

	logger.Info().
		Int("pages", pages.total).
		Int("succeeded", len(pages.slides)).
		Int("failed", pages.failed).
		Str("status", status).
		Dur("duration", result.Duration).
		Msg("Document extracted")
	return result
}

// persist writes the slide set and the status in one transaction, after
// applying the overwrite policy.
func (s *Service) persist(ctx context.Context, r *run, doc *domain.Document, pages *pageSet) (string, error) {
	var status string

	err := s.deps.Store.InTx(ctx, func(repos *storage.Repositories) error {
		switch r.overwrite {
		case domain.OverwriteNone:
			n, err := repos.Slides.CountByDocument(ctx, doc.ID)
			if err != nil {
				return err
			}
			if n > 0 {
				return errAlreadyExtracted
			}
		case domain.OverwriteModel:
			if _, err := repos.Slides.DeleteByDocumentAndModel(ctx, doc.ID, r.extractor(), r.model); err != nil {
				return err
			}
		default:
			if _, err := repos.Slides.DeleteByDocument(ctx, doc.ID); err != nil {
				return err
			}
		}

		for _, slide := range pages.slides {
			if err := repos.Slides.Create(ctx, slide); err != nil {
				return fmt.Errorf("page %d: %w", slide.Metadata.SlideNo, err)
			}
		}

		if !r.updateStatus {
			return nil
		}
		next := domain.ExtractionOutcome(pages.failed == 0)
		if _, err := repos.Documents.TransitionStatus(ctx, doc.ID, next); err != nil {
			return err
		}
		status = next.String()
		return nil
	})
	return status, err
}

// markFailed records failed_parsed for a document that produced no usable
// pages, when the run owns the lifecycle.
func (s *Service) markFailed(ctx context.Context, r *run, doc *domain.Document, logger *observability.Logger) string {
	if !r.updateStatus {
		return ""
	}
	if _, err := s.deps.Store.Repositories().Documents.TransitionStatus(ctx, doc.ID, domain.StatusFailedParsed); err != nil {
		logger.Error().Err(err).Msg("Failed to mark document failed")
		return ""
	}
	return domain.StatusFailedParsed.String()
}

// emit sends an event to the channel. Page progress is dropped when the
// buffer is full; every other event waits for the consumer until the run's
// context ends.
func (r *run) emit(event domain.StreamEvent) {
	if r.events == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	select {
	case r.events <- event:
		return
	default:
	}
	if event.Type.IsPageProgress() {
		return
	}
	select {
	case r.events <- event:
	case <-r.done:
	}
}
