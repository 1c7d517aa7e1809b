package extract

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"iter"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/spherical/slide-pipeline/internal/domain"
	"github.com/spherical/slide-pipeline/internal/observability"
	"github.com/spherical/slide-pipeline/internal/storage"
)

const testPageBreak = "[[PB]]"

func pngPage(t *testing.T, shade uint8) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 40, 30))
	for x := 0; x < 40; x++ {
		for y := 0; y < 30; y++ {
			img.Set(x, y, color.RGBA{R: shade, G: shade, B: shade, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// fakeRenderer serves the same page list for every path. failPaths opens
// fail for the listed paths; docErr is yielded as a document-level error.
type fakeRenderer struct {
	pages     [][]byte
	openErr   error
	failPaths map[string]error
	docErr    error
	opened    int
}

func (r *fakeRenderer) Open(path string) (domain.RenderedDocument, error) {
	if r.openErr != nil {
		return nil, r.openErr
	}
	if err, ok := r.failPaths[path]; ok {
		return nil, err
	}
	r.opened++
	return &fakeDocument{pages: r.pages, docErr: r.docErr}, nil
}

type fakeDocument struct {
	pages  [][]byte
	docErr error
}

func (d *fakeDocument) NumPages() int { return len(d.pages) }

func (d *fakeDocument) Pages(dpi int) iter.Seq2[domain.Page, error] {
	return func(yield func(domain.Page, error) bool) {
		if d.docErr != nil {
			yield(domain.Page{}, d.docErr)
			return
		}
		for i, data := range d.pages {
			page := domain.Page{Number: i + 1, Data: data, MIME: "image/png", DPI: dpi, Zoom: float64(dpi) / 72}
			if !yield(page, nil) {
				return
			}
		}
	}
}

func (d *fakeDocument) Close() error { return nil }

// fakeVision answers from fn and records every instruction.
type fakeVision struct {
	mu    sync.Mutex
	calls []domain.PageRequest
	fn    func(req domain.PageRequest) (string, error)
}

func (v *fakeVision) ExtractPage(_ context.Context, req domain.PageRequest) (string, error) {
	v.mu.Lock()
	v.calls = append(v.calls, req)
	v.mu.Unlock()
	if v.fn == nil {
		return "text of " + slideOf(req.Instruction), nil
	}
	return v.fn(req)
}

func (v *fakeVision) callCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.calls)
}

// slideOf pulls "slide N" out of an instruction.
func slideOf(instruction string) string {
	i := strings.Index(instruction, "slide ")
	if i < 0 {
		return "?"
	}
	rest := instruction[i:]
	if j := strings.Index(rest, " of "); j > 0 {
		return rest[:j]
	}
	return rest
}

func failOnSlide(n string) func(domain.PageRequest) (string, error) {
	return func(req domain.PageRequest) (string, error) {
		if slideOf(req.Instruction) == "slide "+n {
			return "", domain.TransientError("vision API returned status 503", nil)
		}
		return "text of " + slideOf(req.Instruction), nil
	}
}

type fakeConverter struct {
	markdown string
	err      error
	calls    int
}

func (c *fakeConverter) Convert(context.Context, string) (*domain.Conversion, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return &domain.Conversion{Markdown: c.markdown, Duration: 3 * time.Second}, nil
}

func (c *fakeConverter) PageBreak() string { return testPageBreak }
func (c *fakeConverter) Name() string      { return "docling" }

type fakeCounter struct {
	n   int
	err error
}

func (c fakeCounter) PageCount(string) (int, error) { return c.n, c.err }

var errRender = errors.New("cannot open pdf")

type harness struct {
	store     *storage.Store
	renderer  *fakeRenderer
	vision    *fakeVision
	converter *fakeConverter
	outRoot   string
}

func (h *harness) service(opts Options) *Service {
	if opts.OutputRoot == "" {
		opts.OutputRoot = h.outRoot
	}
	if opts.DPI == 0 {
		opts.DPI = 144
	}
	if opts.Model == "" {
		opts.Model = "vision-default"
	}
	return NewService(Dependencies{
		Store:     h.store,
		Renderer:  h.renderer,
		Counter:   fakeCounter{n: len(h.renderer.pages)},
		Converter: h.converter,
		Vision:    h.vision,
		Logger:    observability.Nop(),
	}, opts)
}
