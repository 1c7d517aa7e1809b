package convert

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/slide-pipeline/internal/config"
	"github.com/spherical/slide-pipeline/internal/domain"
)

const token = "[[[DOC_PAGE_BREAK]]]"

func TestSplitPages(t *testing.T) {
	md := "# Cover\n" + token + "\n## Revenue\n| a | b |\n" + token + "\n\n"
	assert.Equal(t, []string{"# Cover", "## Revenue\n| a | b |", ""}, SplitPages(md, token))
}

func TestAlign_ExactCount(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, Align([]string{"a", "b", "c"}, 3))
}

func TestAlign_PadsShortResult(t *testing.T) {
	assert.Equal(t, []string{"a", "", "", ""}, Align([]string{"a"}, 4))
}

func TestAlign_MergesOverflowIntoLastPage(t *testing.T) {
	got := Align([]string{"p1", "p2", "p3", "x1", "x2"}, 3)

	require.Len(t, got, 3)
	assert.Equal(t, "p1", got[0])
	assert.Equal(t, "p2", got[1])
	assert.Equal(t, "p3\n\nx1\n\nx2", got[2])
}

func TestAlign_SinglePage(t *testing.T) {
	assert.Equal(t, []string{"a\n\nb"}, Align([]string{"a", "", "b"}, 1))
	assert.Nil(t, Align([]string{"a"}, 0))
}

func TestSpreadTiming(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	timings := SpreadTiming(start, 9*time.Second, 3)

	require.Len(t, timings, 3)
	assert.Equal(t, start, timings[0].Start)
	assert.Equal(t, start.Add(3*time.Second), timings[0].End)
	assert.Equal(t, start.Add(6*time.Second), timings[2].Start)
	assert.Equal(t, start.Add(9*time.Second), timings[2].End)
}

func TestClient_Convert(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "deck.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4 fake"), 0o644))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/convert/file", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, token, r.FormValue("md_page_break_placeholder"))
		assert.Equal(t, "md", r.FormValue("to_formats"))
		assert.Equal(t, "4", r.FormValue("page_batch_size"))

		f, hdr, err := r.FormFile("files")
		require.NoError(t, err)
		defer f.Close()
		assert.Equal(t, "deck.pdf", hdr.Filename)

		resp := map[string]any{
			"document": map[string]any{"filename": "deck.pdf", "md_content": "a" + token + "b"},
			"status":   "success",
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	cfg := config.DefaultConfig().Converter
	cfg.BaseURL = srv.URL
	client := NewClient(cfg, srv.Client())

	conv, err := client.Convert(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "a"+token+"b", conv.Markdown)
	assert.Equal(t, token, client.PageBreak())
	assert.Equal(t, "docling", client.Name())
}

func TestClient_ConvertFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "deck.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4 fake"), 0o644))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "failure"})
	}))
	defer srv.Close()

	cfg := config.DefaultConfig().Converter
	cfg.BaseURL = srv.URL
	_, err := NewClient(cfg, srv.Client()).Convert(context.Background(), path)
	require.Error(t, err)
	assert.Equal(t, domain.ErrorTypeConversion, domain.TypeOf(err))
}
