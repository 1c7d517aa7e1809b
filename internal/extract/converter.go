package extract

import (
	"context"
	"time"

	"github.com/spherical/slide-pipeline/internal/convert"
	"github.com/spherical/slide-pipeline/internal/domain"
)

// extractConverted converts the whole document in one call, aligns the
// markdown chunks onto the true page total and pairs every chunk with the
// rendered image of its page. A failed conversion fails the document.
func (s *Service) extractConverted(ctx context.Context, r *run, doc *domain.Document) (*pageSet, error) {
	total, err := s.deps.Counter.PageCount(doc.FilePath)
	if err != nil {
		return nil, err
	}
	set := &pageSet{total: total}

	start := time.Now()
	conv, err := s.deps.Converter.Convert(ctx, doc.FilePath)
	if err != nil {
		return set, err
	}
	duration := conv.Duration
	if duration <= 0 {
		duration = time.Since(start)
	}

	chunks := convert.SplitPages(conv.Markdown, s.deps.Converter.PageBreak())
	if len(chunks) != total {
		s.logger.WithDocument(doc.ID).Warn().
			Int("chunks", len(chunks)).
			Int("pages", total).
			Msg("Converter chunk count differs from page count, aligning")
	}
	aligned := convert.Align(chunks, total)
	timings := convert.SpreadTiming(start, duration, total)

	rendered, err := s.deps.Renderer.Open(doc.FilePath)
	if err != nil {
		return set, err
	}
	defer rendered.Close()

	seen := make(map[int]bool, total)
	for page, err := range rendered.Pages(s.opts.DPI) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return set, ctxErr
		}
		if err != nil && page.Number == 0 {
			return set, err
		}
		if page.Number > total {
			break
		}
		seen[page.Number] = true

		r.emit(domain.StreamEvent{Type: domain.EventPageProcessing, DocumentID: doc.ID, PageNumber: page.Number, TotalPages: total})
		if err != nil {
			s.pageFailed(r, doc, page.Number, set, err)
			continue
		}

		imagePath, err := writePageImage(s.opts.OutputRoot, doc.ID, page.Number, page.Data)
		if err != nil {
			s.pageFailed(r, doc, page.Number, set, err)
			continue
		}

		timing := timings[page.Number-1]
		set.slides = append(set.slides, s.newSlide(r, doc, page, total, aligned[page.Number-1], imagePath, timing.Start, timing.End))
		r.emit(domain.StreamEvent{Type: domain.EventPageComplete, DocumentID: doc.ID, PageNumber: page.Number, TotalPages: total})
	}

	// pages the renderer never produced have no image and get no slide
	for n := 1; n <= total; n++ {
		if !seen[n] {
			s.pageFailed(r, doc, n, set, domain.ConversionError("page was not rendered", nil))
		}
	}

	return set, nil
}
