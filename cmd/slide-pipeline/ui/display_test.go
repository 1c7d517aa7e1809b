package ui

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/spherical/slide-pipeline/internal/extract"
)

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "250ms", FormatDuration(250*time.Millisecond))
	assert.Equal(t, "42s", FormatDuration(42*time.Second))
	assert.Equal(t, "3m 5s", FormatDuration(3*time.Minute+5*time.Second))
	assert.Equal(t, "1h 0m 1s", FormatDuration(time.Hour+time.Second))
}

func TestExtractionSummary(t *testing.T) {
	var stdout, stderr bytes.Buffer
	SetOutput(&stdout, &stderr)
	Init(true, false)

	ExtractionSummary(&extract.Summary{
		Strategy:       "vlm",
		Model:          "qwen",
		Selected:       2,
		Processed:      2,
		Failed:         1,
		PagesSucceeded: 5,
		PagesFailed:    1,
		NotFound:       []string{"gone"},
		Documents: []extract.DocumentResult{
			{DocumentID: "d1", Name: "Public Expose 2024", Outcome: extract.OutcomeParsed, Status: "parsed", TotalPages: 3, PagesSucceeded: 3},
			{DocumentID: "d2", Name: "Annual Report", Outcome: extract.OutcomePartial, Status: "failed_parsed", TotalPages: 3, PagesSucceeded: 2, PagesFailed: 1},
		},
	})

	got := stdout.String()
	assert.Contains(t, got, "Extraction summary (vlm, qwen)")
	assert.Contains(t, got, "Public Expose 2024")
	assert.Contains(t, got, "2/3")
	assert.Contains(t, got, "document gone not found")
	assert.Contains(t, got, "1 of 2 documents failed")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
}
