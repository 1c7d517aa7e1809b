package llm

import (
	"fmt"
	"strings"

	"github.com/spherical/slide-pipeline/internal/domain"
)

// PromptParams describe the page an instruction is built for.
type PromptParams struct {
	Type       domain.DocumentType
	SlideNo    int
	TotalPages int
	Language   string
	NoContent  string
}

const pubexTemplate = `You are a financial analyst reviewing a company's public expose presentation.
The image is slide %d of %d.

Rules:
- Use only what is visible on the slide. Do not guess or add assumptions.
- Transcribe every number exactly, including units and periods.
- If text, numbers or charts are unreadable, write "unreadable".
- Convert every table or chart into a Markdown table with a short title.
- If the slide has no meaningful content (cover, divider, blank), reply with exactly %s.

Output format (Markdown, in %s):
### Summary
- 1-3 short sentences

### Key Points
- ...

### Tables
- Markdown tables for any table or chart
`

const financialReportTemplate = `You are a financial analyst reading a page of an audited financial report.
The image is page %d of %d.

Rules:
- Use only what is visible on the page. Do not guess or add assumptions.
- Keep account names, periods and figures exactly as printed, including the currency and scale.
- Reproduce statements (financial position, profit or loss, cash flows) as Markdown tables.
- Summarize notes to the financial statements as short bullet points.
- If the page has no meaningful content, reply with exactly %s.

Output format (Markdown, in %s):
### Summary
- 1-3 short sentences

### Figures
- Markdown tables

### Notes
- ...
`

// BuildInstruction returns the instruction for the page, or the empty
// string when the document type has no instruction.
func BuildInstruction(p PromptParams) string {
	lang := strings.TrimSpace(p.Language)
	if lang == "" {
		lang = "English"
	}

	switch p.Type {
	case domain.DocumentTypePubex:
		return fmt.Sprintf(pubexTemplate, p.SlideNo, p.TotalPages, p.NoContent, lang)
	case domain.DocumentTypeFinancialReport:
		return fmt.Sprintf(financialReportTemplate, p.SlideNo, p.TotalPages, p.NoContent, lang)
	default:
		return ""
	}
}
