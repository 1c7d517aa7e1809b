package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/slide-pipeline/internal/domain"
	"github.com/spherical/slide-pipeline/internal/pdf/pdftest"
	"github.com/spherical/slide-pipeline/internal/storage/storagetest"
)

func TestRegister_NewDocument(t *testing.T) {
	store := storagetest.NewSQLite(t, 4)
	path := pdftest.Write(t, t.TempDir(), "BBRI Public Expose 2024.pdf", 3)

	res, err := New(store, nil, nil).Register(context.Background(), Request{Path: path, IssuerCode: "BBRI", Year: 2024})
	require.NoError(t, err)

	assert.True(t, res.Created)
	assert.Equal(t, 3, res.Pages)
	doc := res.Document
	assert.Equal(t, "BBRI Public Expose 2024", doc.Name)
	assert.Equal(t, domain.StatusDownloaded, doc.Status)
	assert.Equal(t, domain.DocumentTypePubex, doc.Metadata.Type)
	assert.Equal(t, "BBRI Public Expose 2024.pdf", doc.Metadata.Filename)
	assert.Equal(t, 2024, doc.Metadata.Year)
	assert.EqualValues(t, 3, doc.Metadata.Extra["page_count"])
	assert.Len(t, doc.Checksum, 64)
}

func TestRegister_IdenticalBytesResolveToOneRow(t *testing.T) {
	store := storagetest.NewSQLite(t, 4)
	dir := t.TempDir()
	data := pdftest.Build(2, "same")
	first := filepath.Join(dir, "a.pdf")
	second := filepath.Join(dir, "copy of a.pdf")
	require.NoError(t, os.WriteFile(first, data, 0o644))
	require.NoError(t, os.WriteFile(second, data, 0o644))

	cat := New(store, nil, nil)
	r1, err := cat.Register(context.Background(), Request{Path: first})
	require.NoError(t, err)
	r2, err := cat.Register(context.Background(), Request{Path: second, Name: "renamed"})
	require.NoError(t, err)

	assert.True(t, r1.Created)
	assert.False(t, r2.Created)
	assert.Equal(t, r1.Document.ID, r2.Document.ID)
	assert.Equal(t, "a", r2.Document.Name)

	docs, err := store.Repositories().Documents.ListByStatus(context.Background(), []domain.Status{domain.StatusDownloaded}, 0)
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestRegister_RejectsInvalidPaths(t *testing.T) {
	store := storagetest.NewSQLite(t, 4)
	cat := New(store, nil, nil)
	dir := t.TempDir()

	_, err := cat.Register(context.Background(), Request{Path: filepath.Join(dir, "missing.pdf")})
	assert.True(t, domain.IsNotFound(err))

	txt := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(txt, []byte("x"), 0o644))
	_, err = cat.Register(context.Background(), Request{Path: txt})
	assert.True(t, domain.IsValidation(err))

	bogus := filepath.Join(dir, "bogus.pdf")
	require.NoError(t, os.WriteFile(bogus, []byte("not a pdf"), 0o644))
	_, err = cat.Register(context.Background(), Request{Path: bogus})
	assert.Error(t, err)
}

func TestExpand(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "2024")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	b := pdftest.Write(t, sub, "b.pdf", 1)
	a := pdftest.Write(t, dir, "a.pdf", 1)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("x"), 0o644))

	got, err := Expand([]string{dir})
	require.NoError(t, err)
	assert.Equal(t, []string{b, a}, got)

	_, err = Expand([]string{filepath.Join(dir, "nope")})
	assert.True(t, domain.IsNotFound(err))
}
