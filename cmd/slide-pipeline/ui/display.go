package ui

import (
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spherical/slide-pipeline/internal/catalog"
	"github.com/spherical/slide-pipeline/internal/embedding"
	"github.com/spherical/slide-pipeline/internal/extract"
)

// Table displays rows in aligned columns.
func Table(headers []string, rows [][]string) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	fmt.Fprintln(w, strings.Join(headers, "\t"))
	separator := make([]string, len(headers))
	for i := range separator {
		separator[i] = strings.Repeat("-", len(headers[i]))
	}
	fmt.Fprintln(w, strings.Join(separator, "\t"))

	for _, row := range rows {
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	_ = w.Flush()
}

// FormatDuration formats a duration in a human-readable way.
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	d = d.Round(time.Second)

	hours := d / time.Hour
	d -= hours * time.Hour
	minutes := d / time.Minute
	d -= minutes * time.Minute
	seconds := d / time.Second

	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	}
	if minutes > 0 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%ds", seconds)
}

// ExtractionSummary prints the per-document outcome table and totals.
func ExtractionSummary(s *extract.Summary) {
	Section(fmt.Sprintf("Extraction summary (%s, %s)", s.Strategy, s.Model))

	if len(s.Documents) > 0 {
		rows := make([][]string, 0, len(s.Documents))
		for _, d := range s.Documents {
			rows = append(rows, []string{
				d.DocumentID,
				truncate(d.Name, 40),
				string(d.Outcome),
				d.Status,
				fmt.Sprintf("%d/%d", d.PagesSucceeded, d.TotalPages),
				FormatDuration(d.Duration),
			})
		}
		Table([]string{"DOCUMENT", "NAME", "OUTCOME", "STATUS", "PAGES", "TIME"}, rows)
		fmt.Fprintln(out)
	}

	KeyValue("Selected", strconv.Itoa(s.Selected))
	KeyValue("Processed", strconv.Itoa(s.Processed))
	KeyValue("Skipped", strconv.Itoa(s.Skipped))
	KeyValue("Pages", fmt.Sprintf("%d ok, %d failed", s.PagesSucceeded, s.PagesFailed))
	KeyValue("Duration", FormatDuration(s.Duration))

	for _, id := range s.NotFound {
		Warning("document %s not found", id)
	}

	switch {
	case s.Failed > 0:
		Warning("%d of %d documents failed", s.Failed, s.Selected)
	case s.Selected == 0:
		Info("No documents to extract")
	default:
		Success("Extraction complete")
	}
}

// ComparisonSummary prints one line per model.
func ComparisonSummary(s *extract.ComparisonSummary) {
	Section("Model comparison")

	rows := make([][]string, 0, len(s.Models))
	for _, m := range s.Models {
		rows = append(rows, []string{
			m.Model,
			strconv.Itoa(m.Processed),
			strconv.Itoa(m.Failed),
			strconv.Itoa(m.PagesSucceeded),
			strconv.Itoa(m.PagesFailed),
			FormatDuration(m.Duration),
		})
	}
	Table([]string{"MODEL", "DOCS", "FAILED", "PAGES OK", "PAGES FAILED", "TIME"}, rows)
	fmt.Fprintln(out)
	KeyValue("Duration", FormatDuration(s.Duration))
}

// EmbeddingSummary prints embedding run totals.
func EmbeddingSummary(s *embedding.Summary) {
	Section(fmt.Sprintf("Embedding summary (%s)", s.Model))

	KeyValue("Candidates", strconv.Itoa(s.Candidates))
	KeyValue("Batches", fmt.Sprintf("%d (%d fell back to single items)", s.Batches, s.FallbackBatches))
	KeyValue("Embedded", strconv.Itoa(s.Embedded))
	KeyValue("Rejected", strconv.Itoa(s.Rejected))
	KeyValue("Failed", strconv.Itoa(s.Failed))
	KeyValue("Skipped (empty)", strconv.Itoa(s.SkippedEmpty))
	KeyValue("Documents promoted", strconv.Itoa(len(s.PromotedDocuments)))
	KeyValue("Duration", FormatDuration(s.Duration))

	for _, id := range s.FailedDocuments {
		Warning("document %s marked failed_embedded", id)
	}
	if s.Rejected+s.Failed == 0 {
		Success("Embedding complete")
	}
}

// RegistrationResult prints one registered file.
func RegistrationResult(path string, r *catalog.Result) {
	if r.Created {
		Success("%s registered as %s (%d pages)", path, r.Document.ID, r.Pages)
		return
	}
	Info("%s already registered as %s", path, r.Document.ID)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
