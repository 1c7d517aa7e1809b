package embedding

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/slide-pipeline/internal/domain"
)

func TestClient_EmbedSortsByIndex(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var req Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "embed-model", req.Model)
		assert.Equal(t, []string{"a", "b"}, req.Input)
		assert.Equal(t, "float", req.EncodingFormat)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[
			{"index":1,"embedding":[0.3,0.4]},
			{"index":0,"embedding":[0.1,0.2]}
		]}`))
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL + "/", APIKey: "secret", Model: "embed-model"}, server.Client())
	vectors, err := client.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{0.1, 0.2}, {0.3, 0.4}}, vectors)
	assert.Equal(t, "embed-model", client.Model())
}

func TestClient_EmbedNonNumericBecomesNaN(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"index":0,"embedding":[0.1,"x",null]}]}`))
	}))
	defer server.Close()

	vectors, err := NewClient(Config{BaseURL: server.URL}, server.Client()).Embed(context.Background(), []string{"a"})
	require.NoError(t, err)
	require.Len(t, vectors[0], 3)
	assert.True(t, math.IsNaN(vectors[0][1]))
	assert.True(t, math.IsNaN(vectors[0][2]))
}

func TestClient_EmbedMissingIndexLeavesNil(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"index":0,"embedding":[1]},{"index":7,"embedding":[2]}]}`))
	}))
	defer server.Close()

	vectors, err := NewClient(Config{BaseURL: server.URL}, server.Client()).Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, []float64{1}, vectors[0])
	assert.Nil(t, vectors[1])
}

func TestClient_EmbedErrorStatusIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"too long","type":"invalid_request"}}`))
	}))
	defer server.Close()

	_, err := NewClient(Config{BaseURL: server.URL}, server.Client()).Embed(context.Background(), []string{"a"})
	require.Error(t, err)
	assert.True(t, domain.IsTransient(err))
	assert.Contains(t, err.Error(), "too long")
}

func TestClient_EmbedEmptyInput(t *testing.T) {
	vectors, err := NewClient(Config{BaseURL: "http://127.0.0.1:1"}, nil).Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, vectors)
}
