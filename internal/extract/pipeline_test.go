package extract

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/slide-pipeline/internal/config"
	"github.com/spherical/slide-pipeline/internal/domain"
	"github.com/spherical/slide-pipeline/internal/embedding"
	"github.com/spherical/slide-pipeline/internal/storage/storagetest"
)

type unitEmbedder struct{ dim int }

func (e unitEmbedder) Embed(_ context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i := range texts {
		v := make([]float64, e.dim)
		v[i%e.dim] = 1
		out[i] = v
	}
	return out, nil
}

func (e unitEmbedder) Model() string { return "unit" }

func TestPipeline_ExtractThenEmbed(t *testing.T) {
	h := newHarness(t, 3)
	doc := storagetest.Document(t, h.store, "sum", domain.StatusDownloaded)

	_, err := h.service(Options{}).RunExtraction(context.Background(), Request{}, nil)
	require.NoError(t, err)
	require.Equal(t, domain.StatusParsed, h.status(t, doc.ID))

	engine := embedding.NewEngine(h.store, unitEmbedder{dim: 4}, config.EmbeddingConfig{Dimension: 4, BatchSize: 2}, nil)
	summary, err := engine.Run(context.Background(), 0)
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Embedded)
	assert.Equal(t, []string{doc.ID}, summary.PromotedDocuments)
	for _, s := range h.slides(t, doc.ID) {
		assert.Len(t, s.Embedding, 4)
	}
	assert.Equal(t, domain.StatusEmbedded, h.status(t, doc.ID))
}

func TestPipeline_PartialExtractionStillEmbeds(t *testing.T) {
	h := newHarness(t, 3)
	h.vision.fn = failOnSlide("2")
	doc := storagetest.Document(t, h.store, "sum", domain.StatusDownloaded)

	_, err := h.service(Options{}).RunExtraction(context.Background(), Request{}, nil)
	require.NoError(t, err)
	require.Equal(t, domain.StatusFailedParsed, h.status(t, doc.ID))

	engine := embedding.NewEngine(h.store, unitEmbedder{dim: 4}, config.EmbeddingConfig{Dimension: 4, BatchSize: 10}, nil)
	summary, err := engine.Run(context.Background(), 0)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Embedded)
	assert.Equal(t, domain.StatusEmbedded, h.status(t, doc.ID))
}
