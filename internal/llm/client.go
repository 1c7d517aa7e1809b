// Package llm talks to the vision-language extraction service.
package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spherical/slide-pipeline/internal/config"
	"github.com/spherical/slide-pipeline/internal/domain"
)

const chatPath = "/api/chat"

// Client calls an Ollama-compatible chat endpoint with one image per call.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	timeout    time.Duration
	options    Options
	httpClient *http.Client
}

var _ domain.VisionExtractor = (*Client)(nil)

// Options are the generation parameters sent with every call.
type Options struct {
	NumPredict    int     `json:"num_predict"`
	Temperature   float64 `json:"temperature"`
	TopP          float64 `json:"top_p"`
	TopK          int     `json:"top_k"`
	RepeatPenalty float64 `json:"repeat_penalty"`
}

// Message represents a chat message
type Message struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

// Request represents the API request structure
type Request struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
	Options  Options   `json:"options"`
}

// Response represents the API response structure
type Response struct {
	Model      string  `json:"model"`
	Message    Message `json:"message"`
	Done       bool    `json:"done"`
	DoneReason string  `json:"done_reason,omitempty"`
}

// Config holds client configuration.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
	Options Options
}

// ConfigFromVision maps the vision section of the configuration.
func ConfigFromVision(cfg config.VisionConfig) Config {
	return Config{
		BaseURL: cfg.BaseURL,
		APIKey:  cfg.APIKey,
		Model:   cfg.Model,
		Timeout: cfg.Timeout,
		Options: Options{
			NumPredict:    cfg.Options.NumPredict,
			Temperature:   cfg.Options.Temperature,
			TopP:          cfg.Options.TopP,
			TopK:          cfg.Options.TopK,
			RepeatPenalty: cfg.Options.RepeatPenalty,
		},
	}
}

// NewClient creates a new vision client on the shared HTTP client.
func NewClient(cfg Config, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 300 * time.Second
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		timeout:    cfg.Timeout,
		options:    cfg.Options,
		httpClient: httpClient,
	}
}

// Model returns the default model identity.
func (c *Client) Model() string {
	return c.model
}

// ExtractPage sends one page image with its instruction and returns the
// trimmed response text.
func (c *Client) ExtractPage(ctx context.Context, page domain.PageRequest) (string, error) {
	req := c.buildRequest(page)

	body, err := json.Marshal(req)
	if err != nil {
		return "", domain.ExtractionError("failed to marshal request", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+chatPath, bytes.NewReader(body))
	if err != nil {
		return "", domain.ExtractionError("failed to build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", domain.TransientError("vision request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", domain.TransientError(fmt.Sprintf("vision API returned status %d: %s", resp.StatusCode, string(bodyBytes)), nil)
	}

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", domain.TransientError("failed to decode vision response", err)
	}
	if out.Message.Role == "" && out.Message.Content == "" && !out.Done {
		return "", domain.TransientError("unexpected vision response: no message", nil)
	}

	return strings.TrimSpace(out.Message.Content), nil
}

// buildRequest constructs the API request with the image
func (c *Client) buildRequest(page domain.PageRequest) *Request {
	model := page.Model
	if model == "" {
		model = c.model
	}

	return &Request{
		Model: model,
		Messages: []Message{{
			Role:    "user",
			Content: page.Instruction,
			Images:  []string{base64.StdEncoding.EncodeToString(page.Image)},
		}},
		Stream:  false,
		Options: c.options,
	}
}
