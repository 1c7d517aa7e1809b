package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/slide-pipeline/internal/domain"
	"github.com/spherical/slide-pipeline/internal/embedding"
	"github.com/spherical/slide-pipeline/internal/extract"
	"github.com/spherical/slide-pipeline/internal/observability"
	"github.com/spherical/slide-pipeline/internal/storage/storagetest"
)

type fakeExtractor struct {
	started  chan struct{}
	release  chan struct{}
	err      error
	requests []extract.Request
	models   []string
}

func (f *fakeExtractor) RunExtraction(ctx context.Context, req extract.Request, _ chan<- domain.StreamEvent) (*extract.Summary, error) {
	f.requests = append(f.requests, req)
	if f.started != nil {
		close(f.started)
		<-f.release
	}
	if f.err != nil {
		return nil, f.err
	}
	return &extract.Summary{Strategy: "vlm", Selected: 1, Processed: 1}, nil
}

func (f *fakeExtractor) RunComparison(ctx context.Context, models []string, limit int, _ chan<- domain.StreamEvent) (*extract.ComparisonSummary, error) {
	f.models = models
	out := &extract.ComparisonSummary{}
	for _, m := range models {
		out.Models = append(out.Models, &extract.Summary{Model: m})
	}
	return out, nil
}

type fakeEmbedder struct {
	limit int
}

func (f *fakeEmbedder) Run(ctx context.Context, limit int) (*embedding.Summary, error) {
	f.limit = limit
	return &embedding.Summary{Model: "embed", Embedded: 3}, nil
}

func newTestServer(t *testing.T, ex *fakeExtractor) (*httptest.Server, *fakeEmbedder) {
	t.Helper()
	store := storagetest.NewSQLite(t, 3)
	emb := &fakeEmbedder{}
	srv := New(store, ex, emb, observability.Nop(), Config{RequestTimeout: time.Minute})
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts, emb
}

func post(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealth(t *testing.T) {
	ts, _ := newTestServer(t, &fakeExtractor{})

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRunExtraction_PassesRequest(t *testing.T) {
	ex := &fakeExtractor{}
	ts, _ := newTestServer(t, ex)

	resp := post(t, ts.URL+"/runs/extraction", `{"limit":5,"document_ids":["a","b"],"note":"rerun","overwrite":"model"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var summary extract.Summary
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&summary))
	assert.Equal(t, 1, summary.Processed)

	require.Len(t, ex.requests, 1)
	req := ex.requests[0]
	assert.Equal(t, 5, req.Limit)
	assert.Equal(t, []string{"a", "b"}, req.DocumentIDs)
	assert.Equal(t, "rerun", req.Note)
	assert.Equal(t, domain.OverwriteModel, req.Overwrite)
}

func TestRunExtraction_EmptyBody(t *testing.T) {
	ex := &fakeExtractor{}
	ts, _ := newTestServer(t, ex)

	resp := post(t, ts.URL+"/runs/extraction", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, ex.requests, 1)
}

func TestRunExtraction_ConfigErrorIsBadRequest(t *testing.T) {
	ex := &fakeExtractor{err: domain.ConfigError("invalid overwrite mode: sometimes", nil)}
	ts, _ := newTestServer(t, ex)

	resp := post(t, ts.URL+"/runs/extraction", `{"overwrite":"sometimes"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRunExtraction_MalformedBody(t *testing.T) {
	ex := &fakeExtractor{}
	ts, _ := newTestServer(t, ex)

	resp := post(t, ts.URL+"/runs/extraction", `{"limit":`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Empty(t, ex.requests)
}

func TestRuns_SecondRequestConflicts(t *testing.T) {
	ex := &fakeExtractor{started: make(chan struct{}), release: make(chan struct{})}
	ts, _ := newTestServer(t, ex)

	done := make(chan int, 1)
	go func() {
		resp, err := http.Post(ts.URL+"/runs/extraction", "application/json", bytes.NewReader([]byte(`{}`)))
		if err != nil {
			done <- 0
			return
		}
		resp.Body.Close()
		done <- resp.StatusCode
	}()

	<-ex.started
	resp := post(t, ts.URL+"/runs/embedding", `{"limit":1}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	close(ex.release)
	assert.Equal(t, http.StatusOK, <-done)

	resp = post(t, ts.URL+"/runs/embedding", `{"limit":1}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRunEmbedding(t *testing.T) {
	ts, emb := newTestServer(t, &fakeExtractor{})

	resp := post(t, ts.URL+"/runs/embedding", `{"limit":7}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 7, emb.limit)

	var summary embedding.Summary
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&summary))
	assert.Equal(t, 3, summary.Embedded)
}

func TestRunComparison(t *testing.T) {
	ex := &fakeExtractor{}
	ts, _ := newTestServer(t, ex)

	resp := post(t, ts.URL+"/runs/comparison", `{"models":["m1","m2"],"limit":2}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"m1", "m2"}, ex.models)

	resp = post(t, ts.URL+"/runs/comparison", `{"limit":2}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetDocument(t *testing.T) {
	store := storagetest.NewSQLite(t, 3)
	doc := storagetest.Document(t, store, "abc123", domain.StatusParsed)
	storagetest.Slide(t, store, doc.ID, 1, "one")
	storagetest.Slide(t, store, doc.ID, 2, "two")

	srv := New(store, &fakeExtractor{}, &fakeEmbedder{}, nil, Config{})
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/documents/" + doc.ID)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, doc.ID, body["id"])
	assert.Equal(t, "parsed", body["status_name"])
	assert.Equal(t, float64(2), body["slide_count"])

	missing, err := http.Get(ts.URL + "/documents/does-not-exist")
	require.NoError(t, err)
	defer missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}
