// Package convert drives a whole-document conversion service and aligns its
// markdown output to physical pages.
package convert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spherical/slide-pipeline/internal/config"
	"github.com/spherical/slide-pipeline/internal/domain"
)

const convertPath = "/v1/convert/file"

// Client calls a docling-serve compatible conversion endpoint.
type Client struct {
	baseURL    string
	apiKey     string
	timeout    time.Duration
	batchSize  int
	pageBreak  string
	httpClient *http.Client
	now        func() time.Time
}

var _ domain.DocumentConverter = (*Client)(nil)

// Response is the subset of the conversion response the pipeline reads.
type Response struct {
	Document struct {
		Filename  string `json:"filename"`
		MDContent string `json:"md_content"`
	} `json:"document"`
	Status         string  `json:"status"`
	Errors         []any   `json:"errors"`
	ProcessingTime float64 `json:"processing_time"`
}

// NewClient creates a new conversion client on the shared HTTP client.
func NewClient(cfg config.ConverterConfig, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		timeout:    cfg.Timeout,
		batchSize:  cfg.BatchSize,
		pageBreak:  cfg.PageBreak,
		httpClient: httpClient,
		now:        time.Now,
	}
}

// Name is the model identity recorded on converter slides.
func (c *Client) Name() string {
	return "docling"
}

// PageBreak returns the placeholder inserted between pages.
func (c *Client) PageBreak() string {
	return c.pageBreak
}

// Convert uploads the PDF and returns its markdown with page-break
// placeholders between pages.
func (c *Client) Convert(ctx context.Context, path string) (*domain.Conversion, error) {
	body, contentType, err := c.buildForm(path)
	if err != nil {
		return nil, err
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+convertPath, bytes.NewReader(body))
	if err != nil {
		return nil, domain.ConversionError("failed to build conversion request", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}

	start := c.now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, domain.TransientError("conversion request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, domain.TransientError(fmt.Sprintf("conversion API returned status %d: %s", resp.StatusCode, string(msg)), nil)
	}

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, domain.TransientError("failed to decode conversion response", err)
	}
	if out.Status != "" && out.Status != "success" && out.Status != "partial_success" {
		return nil, domain.ConversionError(fmt.Sprintf("conversion finished with status %s", out.Status), nil)
	}

	return &domain.Conversion{
		Markdown: out.Document.MDContent,
		Duration: c.now().Sub(start),
	}, nil
}

func (c *Client) buildForm(path string) ([]byte, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", domain.IOError("open document for conversion", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("files", filepath.Base(path))
	if err != nil {
		return nil, "", domain.IOError("create form file", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", domain.IOError("copy document into form", err)
	}

	fields := map[string]string{
		"to_formats":                "md",
		"image_export_mode":         "placeholder",
		"do_ocr":                    "true",
		"md_page_break_placeholder": c.pageBreak,
	}
	if c.batchSize > 0 {
		fields["page_batch_size"] = strconv.Itoa(c.batchSize)
	}
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, "", domain.IOError("write form field", err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", domain.IOError("close form", err)
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}
