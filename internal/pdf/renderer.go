// Package pdf rasterizes PDFs page by page and reports their physical page
// totals.
package pdf

import (
	"bytes"
	"fmt"
	"image/png"
	"iter"
	"sync"

	"github.com/gen2brain/go-fitz"

	"github.com/spherical/slide-pipeline/internal/domain"
	"github.com/spherical/slide-pipeline/internal/observability"
)

// PointsPerInch is the PDF user-space unit; zoom = dpi / PointsPerInch.
const PointsPerInch = 72.0

// Zoom returns the scale factor applied to a page rendered at dpi.
func Zoom(dpi int) float64 {
	return float64(dpi) / PointsPerInch
}

// Renderer implements domain.PageRenderer using go-fitz.
type Renderer struct {
	validator *Validator
}

var _ domain.PageRenderer = (*Renderer)(nil)

// NewRenderer creates a new page renderer
func NewRenderer(logger *observability.Logger) *Renderer {
	return &Renderer{validator: NewValidator(logger)}
}

// Open validates and opens a PDF. A file that cannot be parsed or has no
// pages is reported as a conversion error.
func (r *Renderer) Open(path string) (domain.RenderedDocument, error) {
	if err := r.validator.ValidatePDFPath(path); err != nil {
		return nil, err
	}

	doc, err := fitz.New(path)
	if err != nil {
		return nil, domain.ConversionError("failed to open PDF", err)
	}

	if doc.NumPage() == 0 {
		doc.Close()
		return nil, domain.ConversionError("PDF has no pages", nil)
	}

	return &fitzDocument{doc: doc, validator: r.validator}, nil
}

type fitzDocument struct {
	mu        sync.Mutex
	doc       *fitz.Document
	validator *Validator
}

func (d *fitzDocument) NumPages() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.doc.NumPage()
}

// Pages renders one page per iteration step as PNG.
func (d *fitzDocument) Pages(dpi int) iter.Seq2[domain.Page, error] {
	return func(yield func(domain.Page, error) bool) {
		if err := d.validator.ValidateDPI(dpi); err != nil {
			yield(domain.Page{}, err)
			return
		}

		total := d.NumPages()
		for i := 0; i < total; i++ {
			page, err := d.render(i, dpi)
			if !yield(page, err) {
				return
			}
		}
	}
}

func (d *fitzDocument) render(index, dpi int) (domain.Page, error) {
	page := domain.Page{
		Number: index + 1,
		MIME:   "image/png",
		DPI:    dpi,
		Zoom:   Zoom(dpi),
	}

	d.mu.Lock()
	img, err := d.doc.ImageDPI(index, float64(dpi))
	d.mu.Unlock()
	if err != nil {
		return page, domain.ConversionError(fmt.Sprintf("failed to render page %d", page.Number), err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return page, domain.ConversionError(fmt.Sprintf("failed to encode page %d as PNG", page.Number), err)
	}
	page.Data = buf.Bytes()

	return page, nil
}

func (d *fitzDocument) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.doc.Close()
}
