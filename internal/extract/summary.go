package extract

import "time"

// Outcome classifies what happened to one document.
type Outcome string

const (
	OutcomeParsed  Outcome = "parsed"
	OutcomePartial Outcome = "partial"
	OutcomeFailed  Outcome = "failed"
	OutcomeSkipped Outcome = "skipped"
)

// DocumentResult reports one document of a run.
type DocumentResult struct {
	DocumentID     string        `json:"document_id"`
	Name           string        `json:"name"`
	Outcome        Outcome       `json:"outcome"`
	Status         string        `json:"status,omitempty"`
	TotalPages     int           `json:"total_pages"`
	PagesSucceeded int           `json:"pages_succeeded"`
	PagesFailed    int           `json:"pages_failed"`
	Error          string        `json:"error,omitempty"`
	Duration       time.Duration `json:"duration"`
}

// Summary reports one extraction run.
type Summary struct {
	Strategy       string           `json:"strategy"`
	Model          string           `json:"model"`
	Overwrite      string           `json:"overwrite"`
	Selected       int              `json:"selected"`
	Processed      int              `json:"processed"`
	Skipped        int              `json:"skipped"`
	Failed         int              `json:"failed"`
	PagesSucceeded int              `json:"pages_succeeded"`
	PagesFailed    int              `json:"pages_failed"`
	NotFound       []string         `json:"not_found,omitempty"`
	Documents      []DocumentResult `json:"documents"`
	Duration       time.Duration    `json:"duration"`
}

func (s *Summary) add(r DocumentResult) {
	s.Documents = append(s.Documents, r)
	s.PagesSucceeded += r.PagesSucceeded
	s.PagesFailed += r.PagesFailed

	switch r.Outcome {
	case OutcomeSkipped:
		s.Skipped++
	case OutcomeFailed:
		s.Failed++
	default:
		s.Processed++
	}
}

// ComparisonSummary reports a multi-model comparison run.
type ComparisonSummary struct {
	Models   []*Summary    `json:"models"`
	Duration time.Duration `json:"duration"`
}
