package embedding

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/slide-pipeline/internal/config"
	"github.com/spherical/slide-pipeline/internal/domain"
	"github.com/spherical/slide-pipeline/internal/storage"
	"github.com/spherical/slide-pipeline/internal/storage/storagetest"
)

const testDim = 4

func newEngine(store *storage.Store, fake *fakeEmbedder, batchSize int) *Engine {
	return NewEngine(store, fake, config.EmbeddingConfig{Dimension: testDim, BatchSize: batchSize}, nil)
}

func documentStatus(t *testing.T, store *storage.Store, id string) domain.Status {
	t.Helper()
	doc, err := store.Repositories().Documents.GetByID(context.Background(), id)
	require.NoError(t, err)
	return doc.Status
}

func TestEngine_EmbedsAndPromotes(t *testing.T) {
	store := storagetest.NewSQLite(t, testDim)
	doc := storagetest.Document(t, store, "sum-1", domain.StatusParsed)
	for i := 1; i <= 3; i++ {
		storagetest.Slide(t, store, doc.ID, i, "slide text")
	}

	fake := &fakeEmbedder{fn: constantVectors(testDim)}
	summary, err := newEngine(store, fake, 10).Run(context.Background(), 0)
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Candidates)
	assert.Equal(t, 3, summary.Embedded)
	assert.Equal(t, []string{doc.ID}, summary.PromotedDocuments)
	assert.Equal(t, domain.StatusEmbedded, documentStatus(t, store, doc.ID))

	slides, err := store.Repositories().Slides.ListByDocument(context.Background(), doc.ID)
	require.NoError(t, err)
	for _, s := range slides {
		assert.Len(t, s.Embedding, testDim)
	}

	again, err := newEngine(store, fake, 10).Run(context.Background(), 0)
	require.NoError(t, err)
	assert.Zero(t, again.Candidates)
}

func TestEngine_RejectsNonFiniteWithoutAbortingBatch(t *testing.T) {
	store := storagetest.NewSQLite(t, testDim)
	good := storagetest.Document(t, store, "good", domain.StatusParsed)
	bad := storagetest.Document(t, store, "bad", domain.StatusParsed)
	storagetest.Slide(t, store, good.ID, 1, "fine")
	storagetest.Slide(t, store, bad.ID, 1, "poison")
	storagetest.Slide(t, store, bad.ID, 2, "fine too")

	fake := &fakeEmbedder{fn: func(texts []string) ([][]float64, error) {
		out, _ := constantVectors(testDim)(texts)
		for i, text := range texts {
			if text == "poison" {
				out[i][2] = math.Inf(1)
			}
		}
		return out, nil
	}}

	summary, err := newEngine(store, fake, 10).Run(context.Background(), 0)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Embedded)
	assert.Equal(t, 1, summary.Rejected)
	assert.Equal(t, []string{good.ID}, summary.PromotedDocuments)
	assert.Equal(t, []string{bad.ID}, summary.FailedDocuments)
	assert.Equal(t, domain.StatusEmbedded, documentStatus(t, store, good.ID))
	assert.Equal(t, domain.StatusFailedEmbedded, documentStatus(t, store, bad.ID))

	slides, err := store.Repositories().Slides.ListByDocument(context.Background(), bad.ID)
	require.NoError(t, err)
	require.Len(t, slides, 2)
	assert.Nil(t, slides[0].Embedding)
	assert.Len(t, slides[1].Embedding, testDim)
}

func TestEngine_FallbackKeepsBatchAlive(t *testing.T) {
	store := storagetest.NewSQLite(t, testDim)
	doc := storagetest.Document(t, store, "sum", domain.StatusParsed)
	for i := 1; i <= 3; i++ {
		storagetest.Slide(t, store, doc.ID, i, "text")
	}

	fake := &fakeEmbedder{fn: func(texts []string) ([][]float64, error) {
		if len(texts) > 1 {
			return nil, errors.New("upstream 503")
		}
		return constantVectors(testDim)(texts)
	}}

	summary, err := newEngine(store, fake, 10).Run(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.FallbackBatches)
	assert.Len(t, fake.calls, 4)
	assert.Equal(t, 3, summary.Embedded)
	assert.Equal(t, domain.StatusEmbedded, documentStatus(t, store, doc.ID))
}

func TestEngine_NoPromotionWhileSlidesPending(t *testing.T) {
	store := storagetest.NewSQLite(t, testDim)
	doc := storagetest.Document(t, store, "sum", domain.StatusParsed)
	for i := 1; i <= 3; i++ {
		storagetest.Slide(t, store, doc.ID, i, "text")
	}

	fake := &fakeEmbedder{fn: constantVectors(testDim)}
	summary, err := newEngine(store, fake, 1).Run(context.Background(), 2)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Embedded)
	assert.Equal(t, 2, summary.Batches)
	assert.Empty(t, summary.PromotedDocuments)
	assert.Equal(t, domain.StatusParsed, documentStatus(t, store, doc.ID))

	summary, err = newEngine(store, fake, 1).Run(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Embedded)
	assert.Equal(t, []string{doc.ID}, summary.PromotedDocuments)
}

func TestEngine_SkipsWhitespaceText(t *testing.T) {
	store := storagetest.NewSQLite(t, testDim)
	doc := storagetest.Document(t, store, "sum", domain.StatusParsed)
	storagetest.Slide(t, store, doc.ID, 1, "text")
	storagetest.Slide(t, store, doc.ID, 2, "   \n")

	fake := &fakeEmbedder{fn: constantVectors(testDim)}
	summary, err := newEngine(store, fake, 10).Run(context.Background(), 0)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.SkippedEmpty)
	assert.Equal(t, 1, summary.Embedded)
	require.Len(t, fake.calls, 1)
	assert.Equal(t, []string{"text"}, fake.calls[0])
	assert.Equal(t, domain.StatusParsed, documentStatus(t, store, doc.ID))
}

func TestEngine_TransitionTableGuardsPromotion(t *testing.T) {
	store := storagetest.NewSQLite(t, testDim)
	doc := storagetest.Document(t, store, "sum", domain.StatusDownloaded)
	storagetest.Slide(t, store, doc.ID, 1, "text")

	fake := &fakeEmbedder{fn: constantVectors(testDim)}
	summary, err := newEngine(store, fake, 10).Run(context.Background(), 0)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Embedded)
	assert.Empty(t, summary.PromotedDocuments)
	assert.Equal(t, domain.StatusDownloaded, documentStatus(t, store, doc.ID))
}
