package extract

import (
	"context"
	"time"

	"github.com/spherical/slide-pipeline/internal/domain"
)

// comparisonStatuses are the states whose documents are eligible for a
// comparison run.
var comparisonStatuses = []domain.Status{
	domain.StatusDownloaded,
	domain.StatusParsed,
	domain.StatusFailedParsed,
}

// RunComparison extracts the selected documents once per model with the
// vision strategy. Each model only replaces its own slides, and document
// status is never changed.
func (s *Service) RunComparison(ctx context.Context, models []string, limit int, eventCh chan<- domain.StreamEvent) (*ComparisonSummary, error) {
	if len(models) == 0 {
		return nil, domain.ConfigError("comparison requires at least one model", nil)
	}

	start := time.Now()
	out := &ComparisonSummary{}

	for _, model := range models {
		if err := ctx.Err(); err != nil {
			out.Duration = time.Since(start)
			return out, err
		}

		s.logger.Info().Str("model", model).Msg("Comparison pass started")
		summary, err := s.RunExtraction(ctx, Request{
			Limit:      limit,
			Overwrite:  domain.OverwriteModel,
			Strategy:   StrategyVision,
			Model:      model,
			Note:       "comparison",
			statuses:   comparisonStatuses,
			skipStatus: true,
		}, eventCh)
		if summary != nil {
			out.Models = append(out.Models, summary)
		}
		if err != nil {
			out.Duration = time.Since(start)
			return out, err
		}
	}

	out.Duration = time.Since(start)
	return out, nil
}
