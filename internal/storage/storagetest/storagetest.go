// Package storagetest opens throwaway stores for tests.
package storagetest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/spherical/slide-pipeline/internal/config"
	"github.com/spherical/slide-pipeline/internal/domain"
	"github.com/spherical/slide-pipeline/internal/storage"
)

// NewSQLite returns a migrated SQLite store in a temp dir with vectors of
// the given dimension. It is closed when the test ends.
func NewSQLite(t *testing.T, dimension int) *storage.Store {
	t.Helper()

	db, dialect, err := storage.Open(config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "slides.db")},
	})
	require.NoError(t, err)

	store := storage.NewStore(db, dialect)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.EnsureSchema(context.Background(), dimension))
	return store
}

// Document registers a document with the given checksum and status.
func Document(t *testing.T, store *storage.Store, checksum string, status domain.Status) *domain.Document {
	t.Helper()

	doc, _, err := store.Repositories().Documents.Register(context.Background(), &domain.Document{
		Checksum: checksum,
		Name:     "Public Expose " + checksum,
		FilePath: "/data/" + checksum + ".pdf",
		Status:   status,
		Metadata: domain.DocumentMetadata{Type: domain.DocumentTypePubex},
	})
	require.NoError(t, err)
	return doc
}

// Slide stores one slide with the given text for documentID.
func Slide(t *testing.T, store *storage.Store, documentID string, slideNo int, text string) *domain.Slide {
	t.Helper()

	slide := &domain.Slide{
		DocumentID:  documentID,
		ContentText: &text,
		ImagePath:   filepath.Join("/images", documentID, "page.png"),
		Extractor:   domain.ExtractorVLM,
		Model:       "test-model",
		Metadata:    domain.SlideMetadata{SlideNo: slideNo},
	}
	require.NoError(t, store.Repositories().Slides.Create(context.Background(), slide))
	return slide
}
