package pdf

import (
	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/spherical/slide-pipeline/internal/domain"
)

// PageCounter implements domain.PageCounter with pdfcpu, which reads the
// page tree rather than rendering.
type PageCounter struct {
	validator *Validator
}

var _ domain.PageCounter = (*PageCounter)(nil)

// NewPageCounter creates a new page counter
func NewPageCounter(v *Validator) *PageCounter {
	if v == nil {
		v = NewValidator(nil)
	}
	return &PageCounter{validator: v}
}

// PageCount returns the physical page total of the PDF at path.
func (c *PageCounter) PageCount(path string) (int, error) {
	if err := c.validator.ValidatePDFPath(path); err != nil {
		return 0, err
	}

	n, err := api.PageCountFile(path)
	if err != nil {
		return 0, domain.ConversionError("failed to count PDF pages", err)
	}
	if n == 0 {
		return 0, domain.ConversionError("PDF has no pages", nil)
	}
	return n, nil
}
