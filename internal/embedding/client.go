// Package embedding generates slide vectors and promotes fully embedded
// documents.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/spherical/slide-pipeline/internal/config"
	"github.com/spherical/slide-pipeline/internal/domain"
)

// Embedder defines the interface for embedding generation. The returned
// slice is index-aligned with texts; a nil entry means the service returned
// nothing for that input.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
	Model() string
}

// Client calls an OpenAI-compatible /v1/embeddings endpoint.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
	timeout    time.Duration
}

var _ Embedder = (*Client)(nil)

// Config holds embedding client configuration.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// ConfigFromEmbedding maps the embedding section of the configuration.
func ConfigFromEmbedding(cfg config.EmbeddingConfig) Config {
	return Config{
		BaseURL: cfg.BaseURL,
		APIKey:  cfg.APIKey,
		Model:   cfg.Model,
		Timeout: cfg.Timeout,
	}
}

// NewClient creates a new embedding client on the shared HTTP client.
func NewClient(cfg Config, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		timeout:    timeout,
	}
}

// Request represents a request to generate embeddings.
type Request struct {
	Model          string   `json:"model"`
	Input          []string `json:"input"`
	EncodingFormat string   `json:"encoding_format"`
}

// Response represents the API response.
type Response struct {
	Object string  `json:"object"`
	Data   []Data  `json:"data"`
	Model  string  `json:"model"`
	Error  *APIErr `json:"error,omitempty"`
}

// Data contains one vector. Elements are decoded loosely so that a
// non-numeric element surfaces as NaN and fails validation.
type Data struct {
	Object    string `json:"object"`
	Embedding []any  `json:"embedding"`
	Index     int    `json:"index"`
}

// APIErr represents an API error.
type APIErr struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// Embed generates embeddings for the given texts.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(Request{Model: c.model, Input: texts, EncodingFormat: "float"})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, domain.TransientError("embedding request failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.TransientError("read embedding response", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp Response
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Error != nil {
			return nil, domain.TransientError(fmt.Sprintf("embedding API error: %s (type: %s)", errResp.Error.Message, errResp.Error.Type), nil)
		}
		return nil, domain.TransientError(fmt.Sprintf("embedding API error: status %d, body: %s", resp.StatusCode, truncate(string(respBody), 512)), nil)
	}

	var embResp Response
	if err := json.Unmarshal(respBody, &embResp); err != nil {
		return nil, domain.TransientError("unmarshal embedding response", err)
	}

	// ordering is not guaranteed by the API
	sort.SliceStable(embResp.Data, func(i, j int) bool {
		return embResp.Data[i].Index < embResp.Data[j].Index
	})

	embeddings := make([][]float64, len(texts))
	for _, data := range embResp.Data {
		if data.Index < 0 || data.Index >= len(embeddings) {
			continue
		}
		embeddings[data.Index] = toFloats(data.Embedding)
	}
	return embeddings, nil
}

// Model returns the model being used.
func (c *Client) Model() string {
	return c.model
}

func toFloats(raw []any) []float64 {
	if raw == nil {
		return nil
	}
	out := make([]float64, len(raw))
	for i, v := range raw {
		f, ok := v.(float64)
		if !ok {
			f = math.NaN()
		}
		out[i] = f
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
