package pdf

import (
	"bytes"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/slide-pipeline/internal/domain"
	"github.com/spherical/slide-pipeline/internal/pdf/pdftest"
)

func TestValidatePDFPath(t *testing.T) {
	dir := t.TempDir()
	good := pdftest.Write(t, dir, "deck.pdf", 1)
	txt := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(txt, []byte("x"), 0o644))

	v := NewValidator(nil)

	assert.NoError(t, v.ValidatePDFPath(good))

	err := v.ValidatePDFPath("")
	assert.True(t, domain.IsValidation(err))

	err = v.ValidatePDFPath(filepath.Join(dir, "missing.pdf"))
	assert.True(t, domain.IsNotFound(err))

	err = v.ValidatePDFPath(dir)
	assert.True(t, domain.IsValidation(err))

	err = v.ValidatePDFPath(txt)
	assert.True(t, domain.IsValidation(err))
}

func TestValidateDPI(t *testing.T) {
	v := NewValidator(nil)
	assert.NoError(t, v.ValidateDPI(144))
	assert.Error(t, v.ValidateDPI(0))
	assert.Error(t, v.ValidateDPI(1200))
}

func TestZoom(t *testing.T) {
	assert.Equal(t, 2.0, Zoom(144))
	assert.Equal(t, 1.0, Zoom(72))
}

func TestChecksum_IdenticalBytes(t *testing.T) {
	dir := t.TempDir()
	data := pdftest.Build(2, "a")
	p1 := filepath.Join(dir, "one.pdf")
	p2 := filepath.Join(dir, "two.pdf")
	require.NoError(t, os.WriteFile(p1, data, 0o644))
	require.NoError(t, os.WriteFile(p2, data, 0o644))

	c1, err := ChecksumFile(p1)
	require.NoError(t, err)
	c2, err := ChecksumFile(p2)
	require.NoError(t, err)

	assert.Equal(t, c1, c2)
	assert.Equal(t, Checksum(data), c1)
	assert.Len(t, c1, 64)
	assert.NotEqual(t, c1, Checksum(pdftest.Build(2, "b")))
}

func TestRenderer_PagesLazyInOrder(t *testing.T) {
	path := pdftest.Write(t, t.TempDir(), "deck.pdf", 3)

	doc, err := NewRenderer(nil).Open(path)
	require.NoError(t, err)
	defer doc.Close()

	assert.Equal(t, 3, doc.NumPages())

	var numbers []int
	for page, err := range doc.Pages(144) {
		require.NoError(t, err)
		numbers = append(numbers, page.Number)
		assert.Equal(t, "image/png", page.MIME)
		assert.Equal(t, 2.0, page.Zoom)

		img, err := png.Decode(bytes.NewReader(page.Data))
		require.NoError(t, err)
		// 72pt page at zoom 2
		assert.Equal(t, 144, img.Bounds().Dx())
	}
	assert.Equal(t, []int{1, 2, 3}, numbers)
}

func TestRenderer_StopEarly(t *testing.T) {
	path := pdftest.Write(t, t.TempDir(), "deck.pdf", 3)

	doc, err := NewRenderer(nil).Open(path)
	require.NoError(t, err)
	defer doc.Close()

	seen := 0
	for range doc.Pages(72) {
		seen++
		break
	}
	assert.Equal(t, 1, seen)
}

func TestRenderer_BadDPIFailsWholeDocument(t *testing.T) {
	path := pdftest.Write(t, t.TempDir(), "deck.pdf", 3)

	doc, err := NewRenderer(nil).Open(path)
	require.NoError(t, err)
	defer doc.Close()

	var yields int
	for page, err := range doc.Pages(domain.MaxDPI + 100) {
		yields++
		require.Error(t, err)
		assert.True(t, domain.IsValidation(err))
		assert.Zero(t, page.Number)
	}
	assert.Equal(t, 1, yields)
}

func TestRenderer_CorruptPDF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.pdf")
	require.NoError(t, os.WriteFile(path, []byte("not a pdf at all"), 0o644))

	_, err := NewRenderer(nil).Open(path)
	require.Error(t, err)
}

func TestPageCounter(t *testing.T) {
	path := pdftest.Write(t, t.TempDir(), "deck.pdf", 4)

	n, err := NewPageCounter(nil).PageCount(path)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestPageCounter_CorruptPDF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4\ngarbage"), 0o644))

	_, err := NewPageCounter(nil).PageCount(path)
	assert.Error(t, err)
}
