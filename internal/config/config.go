// Package config provides configuration loading for the slide pipeline.
// Supports YAML files, environment variables, and programmatic overrides.
package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/spherical/slide-pipeline/internal/domain"
)

// Config holds all configuration for the slide pipeline.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	HTTP       HTTPConfig       `yaml:"http"`
	Vision     VisionConfig     `yaml:"vision"`
	Converter  ConverterConfig  `yaml:"converter"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Extraction ExtractionConfig `yaml:"extraction"`
	Cache      CacheConfig      `yaml:"cache"`
	Log        LogConfig        `yaml:"log"`
}

// ServerConfig holds the trigger API settings.
type ServerConfig struct {
	Addr             string        `yaml:"addr"`
	RequestTimeout   time.Duration `yaml:"request_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Driver   string         `yaml:"driver"` // sqlite or postgres
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// SQLiteConfig holds SQLite-specific settings.
type SQLiteConfig struct {
	Path         string `yaml:"path"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

// PostgresConfig holds Postgres-specific settings.
type PostgresConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// HTTPConfig configures the shared outbound client.
type HTTPConfig struct {
	PoolSize int         `yaml:"pool_size"`
	Retry    RetryConfig `yaml:"retry"`
}

// RetryConfig is the connection-layer retry policy.
type RetryConfig struct {
	Attempts       int           `yaml:"attempts"`
	BackoffFactor  time.Duration `yaml:"backoff_factor"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
	StatusCodes    []int         `yaml:"status_codes"`
	AllowedMethods []string      `yaml:"allowed_methods"`
}

// VisionConfig configures the page-extraction service.
type VisionConfig struct {
	BaseURL       string            `yaml:"base_url"`
	APIKey        string            `yaml:"api_key"`
	Model         string            `yaml:"model"`
	Timeout       time.Duration     `yaml:"timeout"`
	MaxImageWidth int               `yaml:"max_image_width"`
	NoContent     string            `yaml:"no_content_marker"`
	Language      string            `yaml:"language"`
	Options       GenerationOptions `yaml:"options"`
}

// GenerationOptions bound a single page-extraction call.
type GenerationOptions struct {
	NumPredict    int     `yaml:"num_predict"`
	Temperature   float64 `yaml:"temperature"`
	TopP          float64 `yaml:"top_p"`
	TopK          int     `yaml:"top_k"`
	RepeatPenalty float64 `yaml:"repeat_penalty"`
}

// ConverterConfig configures the whole-document conversion service.
type ConverterConfig struct {
	BaseURL   string        `yaml:"base_url"`
	APIKey    string        `yaml:"api_key"`
	Timeout   time.Duration `yaml:"timeout"`
	BatchSize int           `yaml:"batch_size"`
	PageBreak string        `yaml:"page_break_placeholder"`
}

// EmbeddingConfig configures the embedding service.
type EmbeddingConfig struct {
	BaseURL   string        `yaml:"base_url"`
	APIKey    string        `yaml:"api_key"`
	Model     string        `yaml:"model"`
	Dimension int           `yaml:"dimension"`
	BatchSize int           `yaml:"batch_size"`
	Timeout   time.Duration `yaml:"timeout"`
}

// ExtractionConfig holds extraction run defaults.
type ExtractionConfig struct {
	Strategy   string `yaml:"strategy"` // vlm or converter
	DPI        int    `yaml:"dpi"`
	Overwrite  string `yaml:"overwrite"`
	OutputRoot string `yaml:"output_root"`
	Limit      int    `yaml:"limit"`
}

// CacheConfig holds the page result cache settings.
type CacheConfig struct {
	Driver     string        `yaml:"driver"` // none, memory or redis
	TTL        time.Duration `yaml:"ttl"`
	MaxEntries int           `yaml:"max_entries"`
	Redis      RedisConfig   `yaml:"redis"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
	Prefix   string `yaml:"prefix"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads configuration from a YAML file and applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a configuration with defaults for a local setup.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:             ":8086",
			RequestTimeout:   30 * time.Minute,
			GracefulShutdown: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			SQLite: SQLiteConfig{
				Path:         "slides.db",
				MaxOpenConns: 1,
			},
			Postgres: PostgresConfig{
				MaxOpenConns:    10,
				MaxIdleConns:    5,
				ConnMaxLifetime: 5 * time.Minute,
			},
		},
		HTTP: HTTPConfig{
			PoolSize: 10,
			Retry: RetryConfig{
				Attempts:       3,
				BackoffFactor:  500 * time.Millisecond,
				MaxBackoff:     30 * time.Second,
				StatusCodes:    []int{429, 500, 502, 503, 504},
				AllowedMethods: []string{"GET", "POST"},
			},
		},
		Vision: VisionConfig{
			BaseURL:       "http://localhost:11434",
			Model:         "qwen3-vl:2b-instruct-q4_K_M",
			Timeout:       300 * time.Second,
			MaxImageWidth: 1280,
			NoContent:     "NO_CONTENT",
			Language:      "Indonesian",
			Options: GenerationOptions{
				NumPredict:    768,
				Temperature:   0.2,
				TopP:          0.8,
				TopK:          30,
				RepeatPenalty: 1.2,
			},
		},
		Converter: ConverterConfig{
			BaseURL:   "http://localhost:5001",
			Timeout:   600 * time.Second,
			BatchSize: 4,
			PageBreak: "[[[DOC_PAGE_BREAK]]]",
		},
		Embedding: EmbeddingConfig{
			BaseURL:   "http://localhost:8080",
			Model:     "embedding",
			Dimension: 1024,
			BatchSize: 10,
			Timeout:   120 * time.Second,
		},
		Extraction: ExtractionConfig{
			Strategy:   "vlm",
			DPI:        144,
			Overwrite:  string(domain.OverwriteDocument),
			OutputRoot: "data/slides",
		},
		Cache: CacheConfig{
			Driver:     "none",
			TTL:        24 * time.Hour,
			MaxEntries: 10000,
			Redis: RedisConfig{
				Addr:     "localhost:6379",
				PoolSize: 10,
				Prefix:   "slides:",
			},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Validate checks the configuration for errors. Every failure is a
// configuration error and must abort the run before any document is touched.
func (c *Config) Validate() error {
	if c.Database.Driver != "sqlite" && c.Database.Driver != "postgres" {
		return domain.ConfigError(fmt.Sprintf("invalid database driver: %s", c.Database.Driver), nil)
	}

	if c.Database.Driver == "postgres" && c.Database.Postgres.DSN == "" {
		return domain.ConfigError("postgres dsn is required", nil)
	}

	if c.Cache.Driver != "none" && c.Cache.Driver != "memory" && c.Cache.Driver != "redis" {
		return domain.ConfigError(fmt.Sprintf("invalid cache driver: %s", c.Cache.Driver), nil)
	}

	if c.Extraction.Strategy != "vlm" && c.Extraction.Strategy != "converter" {
		return domain.ConfigError(fmt.Sprintf("invalid extraction strategy: %s", c.Extraction.Strategy), nil)
	}

	if _, err := domain.ParseOverwriteMode(c.Extraction.Overwrite); err != nil {
		return err
	}

	if c.Extraction.DPI < 1 || c.Extraction.DPI > domain.MaxDPI {
		return domain.ConfigError(fmt.Sprintf("invalid dpi: %d (must be between 1 and %d)", c.Extraction.DPI, domain.MaxDPI), nil)
	}

	if c.Embedding.Dimension < 1 {
		return domain.ConfigError(fmt.Sprintf("invalid embedding dimension: %d", c.Embedding.Dimension), nil)
	}

	if c.Embedding.BatchSize < 1 {
		return domain.ConfigError(fmt.Sprintf("invalid embedding batch size: %d", c.Embedding.BatchSize), nil)
	}

	if c.HTTP.PoolSize < 1 {
		return domain.ConfigError(fmt.Sprintf("invalid http pool size: %d", c.HTTP.PoolSize), nil)
	}

	if c.HTTP.Retry.Attempts < 0 {
		return domain.ConfigError("retry attempts must not be negative", nil)
	}

	if strings.TrimSpace(c.Converter.PageBreak) == "" {
		return domain.ConfigError("converter page break placeholder is required", nil)
	}

	endpoints := []struct {
		name    string
		baseURL string
		apiKey  string
	}{
		{"vision", c.Vision.BaseURL, c.Vision.APIKey},
		{"converter", c.Converter.BaseURL, c.Converter.APIKey},
		{"embedding", c.Embedding.BaseURL, c.Embedding.APIKey},
	}
	for _, ep := range endpoints {
		local, err := IsLocalEndpoint(ep.baseURL)
		if err != nil {
			return domain.ConfigError(fmt.Sprintf("invalid %s base url", ep.name), err)
		}
		if !local && ep.apiKey == "" {
			return domain.ConfigError(fmt.Sprintf("%s api key is required for non-local endpoint %s", ep.name, ep.baseURL), nil)
		}
	}

	return nil
}

// OverwriteMode returns the parsed default overwrite mode.
func (c *Config) OverwriteMode() domain.OverwriteMode {
	mode, _ := domain.ParseOverwriteMode(c.Extraction.Overwrite)
	return mode
}

// IsLocalEndpoint reports whether rawURL points at the local machine.
func IsLocalEndpoint(rawURL string) (bool, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false, err
	}
	if u.Scheme == "" || u.Host == "" {
		return false, fmt.Errorf("url %q must include scheme and host", rawURL)
	}

	host := u.Hostname()
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return true, nil
	}
	if ip := net.ParseIP(host); ip != nil && ip.IsLoopback() {
		return true, nil
	}
	return false, nil
}

// applyEnvOverrides applies environment variable overrides to config.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		if strings.HasPrefix(v, "sqlite:") {
			cfg.Database.Driver = "sqlite"
			cfg.Database.SQLite.Path = strings.TrimPrefix(v, "sqlite:")
		} else if strings.HasPrefix(v, "postgres") {
			cfg.Database.Driver = "postgres"
			cfg.Database.Postgres.DSN = v
		}
	}

	if v := os.Getenv("VISION_BASE_URL"); v != "" {
		cfg.Vision.BaseURL = v
	}

	if v := os.Getenv("VISION_API_KEY"); v != "" {
		cfg.Vision.APIKey = v
	}

	if v := os.Getenv("VISION_MODEL"); v != "" {
		cfg.Vision.Model = v
	}

	if v := os.Getenv("CONVERTER_BASE_URL"); v != "" {
		cfg.Converter.BaseURL = v
	}

	if v := os.Getenv("CONVERTER_API_KEY"); v != "" {
		cfg.Converter.APIKey = v
	}

	if v := os.Getenv("EMBEDDING_BASE_URL"); v != "" {
		cfg.Embedding.BaseURL = v
	}

	if v := os.Getenv("EMBEDDING_API_KEY"); v != "" {
		cfg.Embedding.APIKey = v
	}

	if v := os.Getenv("EMBEDDING_MODEL"); v != "" {
		cfg.Embedding.Model = v
	}

	if v := os.Getenv("EMBED_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Embedding.BatchSize = n
		}
	}

	if v := os.Getenv("INGESTION_PDF_DPI"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Extraction.DPI = n
		}
	}

	if v := os.Getenv("OUTPUT_ROOT"); v != "" {
		cfg.Extraction.OutputRoot = v
	}

	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Cache.Driver = "redis"
		cfg.Cache.Redis.Addr = strings.TrimPrefix(v, "redis://")
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

// ResolveRelativePath resolves a path relative to the config file location.
func ResolveRelativePath(configPath, targetPath string) string {
	if configPath == "" || filepath.IsAbs(targetPath) {
		return targetPath
	}
	return filepath.Join(filepath.Dir(configPath), targetPath)
}
