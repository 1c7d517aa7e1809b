package domain

import (
	"context"
	"iter"
	"time"
)

// MaxDPI is the highest rasterization resolution accepted.
const MaxDPI = 600

// Page is one rasterized physical page.
type Page struct {
	Number int // 1-indexed
	Data   []byte
	MIME   string
	DPI    int
	Zoom   float64
}

// PageRenderer opens PDFs for page-at-a-time rasterization.
type PageRenderer interface {
	Open(path string) (RenderedDocument, error)
}

// RenderedDocument yields pages lazily; at most one page image is alive at
// a time unless the caller retains it.
type RenderedDocument interface {
	NumPages() int
	// Pages yields every page in ascending order. A page that fails to
	// render is yielded with its Number set and a non-nil error. An error
	// yielded with Number 0 concerns the whole document and ends the
	// sequence.
	Pages(dpi int) iter.Seq2[Page, error]
	Close() error
}

// PageCounter reports the true physical page total of a PDF.
type PageCounter interface {
	PageCount(path string) (int, error)
}

// Conversion is the output of a whole-document conversion call.
type Conversion struct {
	Markdown string
	Duration time.Duration
}

// DocumentConverter converts an entire PDF into one markdown document with
// page-break placeholders between pages.
type DocumentConverter interface {
	Convert(ctx context.Context, path string) (*Conversion, error)
	PageBreak() string
	Name() string
}

// VisionExtractor transcribes a single page image.
type VisionExtractor interface {
	ExtractPage(ctx context.Context, req PageRequest) (string, error)
}

// PageRequest is one page-extraction call.
type PageRequest struct {
	Model       string
	Instruction string
	Image       []byte
}
