package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spherical/slide-pipeline/internal/observability"
)

const pageKeyPrefix = "page:"

// PageKey identifies one page extraction. Any change to the file, model or
// instruction produces a different key.
func PageKey(checksum string, page int, model, instruction string) string {
	combined := strings.Join([]string{checksum, strconv.Itoa(page), model, instruction}, "|")
	hash := sha256.Sum256([]byte(combined))
	return pageKeyPrefix + checksum + ":" + hex.EncodeToString(hash[:16])
}

// PageResult is a cached extraction of one page.
type PageResult struct {
	Content  string    `json:"content"`
	Model    string    `json:"model"`
	CachedAt time.Time `json:"cached_at"`
}

// PageCache is a typed view over a Client for page extraction results.
type PageCache struct {
	client Client
	ttl    time.Duration
	logger *observability.Logger
}

// NewPageCache wraps client. A nil client disables caching.
func NewPageCache(client Client, ttl time.Duration, logger *observability.Logger) *PageCache {
	if client == nil {
		client = Noop{}
	}
	if logger == nil {
		logger = observability.Nop()
	}
	return &PageCache{client: client, ttl: ttl, logger: logger}
}

// Get returns the cached result for key. Lookup failures count as a miss.
func (c *PageCache) Get(ctx context.Context, key string) (*PageResult, bool) {
	data, err := c.client.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			c.logger.Debug().Err(err).Str("key", key).Msg("Page cache get error")
		}
		return nil, false
	}

	var result PageResult
	if err := json.Unmarshal(data, &result); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("Failed to unmarshal cached page")
		return nil, false
	}
	return &result, true
}

// Put stores a page result.
func (c *PageCache) Put(ctx context.Context, key, content, model string) error {
	data, err := json.Marshal(PageResult{Content: content, Model: model, CachedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal page result: %w", err)
	}
	if err := c.client.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("Failed to cache page")
		return err
	}
	return nil
}

// InvalidateDocument drops every cached page of the file with checksum.
func (c *PageCache) InvalidateDocument(ctx context.Context, checksum string) error {
	return c.client.DeleteByPrefix(ctx, pageKeyPrefix+checksum+":")
}
