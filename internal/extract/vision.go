package extract

import (
	"context"
	"time"

	"github.com/spherical/slide-pipeline/internal/cache"
	"github.com/spherical/slide-pipeline/internal/domain"
	"github.com/spherical/slide-pipeline/internal/imageutil"
	"github.com/spherical/slide-pipeline/internal/llm"
)

// pageSet is the outcome of extracting one document before persistence.
type pageSet struct {
	total  int
	failed int
	slides []*domain.Slide
}

// extractVision renders pages one at a time and transcribes each through
// the vision service. A failed page is counted and skipped; the remaining
// pages are still attempted.
func (s *Service) extractVision(ctx context.Context, r *run, doc *domain.Document) (*pageSet, error) {
	rendered, err := s.deps.Renderer.Open(doc.FilePath)
	if err != nil {
		return nil, err
	}
	defer rendered.Close()

	logger := s.logger.WithDocument(doc.ID)
	docType := domain.InferDocumentType(doc)
	set := &pageSet{total: rendered.NumPages()}

	for page, err := range rendered.Pages(s.opts.DPI) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return set, ctxErr
		}
		if err != nil && page.Number == 0 {
			return set, err
		}

		r.emit(domain.StreamEvent{Type: domain.EventPageProcessing, DocumentID: doc.ID, PageNumber: page.Number, TotalPages: set.total})
		if err != nil {
			s.pageFailed(r, doc, page.Number, set, err)
			continue
		}

		pageStart := time.Now()
		instruction := llm.BuildInstruction(llm.PromptParams{
			Type:       docType,
			SlideNo:    page.Number,
			TotalPages: set.total,
			Language:   s.opts.Language,
			NoContent:  s.opts.NoContent,
		})

		content, err := s.transcribe(ctx, r, doc, page, instruction)
		if err != nil {
			s.pageFailed(r, doc, page.Number, set, err)
			continue
		}

		imagePath, err := writePageImage(s.opts.OutputRoot, doc.ID, page.Number, page.Data)
		if err != nil {
			s.pageFailed(r, doc, page.Number, set, err)
			continue
		}

		pageEnd := time.Now()
		set.slides = append(set.slides, s.newSlide(r, doc, page, set.total, content, imagePath, pageStart, pageEnd))
		r.emit(domain.StreamEvent{Type: domain.EventPageComplete, DocumentID: doc.ID, PageNumber: page.Number, TotalPages: set.total})
		logger.Debug().Page(page.Number).Dur("duration", pageEnd.Sub(pageStart)).Msg("Page extracted")
	}

	return set, nil
}

// transcribe validates the page image and returns its text. An empty
// instruction yields empty content without a service call.
func (s *Service) transcribe(ctx context.Context, r *run, doc *domain.Document, page domain.Page, instruction string) (string, error) {
	if _, _, err := imageutil.Validate(page.Data); err != nil {
		return "", err
	}
	if instruction == "" {
		return "", nil
	}

	key := cache.PageKey(doc.Checksum, page.Number, r.model, instruction)
	if hit, ok := s.deps.Cache.Get(ctx, key); ok {
		return hit.Content, nil
	}

	payload, err := imageutil.PrepareForTransmission(page.Data, s.opts.MaxImageWidth)
	if err != nil {
		return "", err
	}

	text, err := s.deps.Vision.ExtractPage(ctx, domain.PageRequest{
		Model:       r.model,
		Instruction: instruction,
		Image:       payload,
	})
	if err != nil {
		return "", err
	}

	content := NormalizeContent(text, s.opts.NoContent)
	_ = s.deps.Cache.Put(ctx, key, content, r.model)
	return content, nil
}

func (s *Service) pageFailed(r *run, doc *domain.Document, pageNo int, set *pageSet, err error) {
	set.failed++
	s.logger.WithDocument(doc.ID).Warn().
		Err(err).
		Page(pageNo).
		Str("error_type", string(domain.TypeOf(err))).
		Msg("Page extraction failed")
	r.emit(domain.StreamEvent{Type: domain.EventPageFailed, DocumentID: doc.ID, PageNumber: pageNo, TotalPages: set.total, Payload: err.Error()})
}

func (s *Service) newSlide(r *run, doc *domain.Document, page domain.Page, total int, content, imagePath string, start, end time.Time) *domain.Slide {
	text := content
	startUTC, endUTC := start.UTC(), end.UTC()
	return &domain.Slide{
		DocumentID:  doc.ID,
		ContentText: &text,
		ImagePath:   imagePath,
		Extractor:   r.extractor(),
		Model:       r.model,
		Metadata: domain.SlideMetadata{
			SlideNo:    page.Number,
			TotalPages: total,
			FilePath:   doc.FilePath,
			ImageMIME:  page.MIME,
			DPI:        page.DPI,
			Zoom:       page.Zoom,
			Extractor:  r.extractor(),
			Model:      r.model,
			Note:       r.note,
		},
		IngestionStartAt: &startUTC,
		IngestionEndAt:   &endUTC,
	}
}
