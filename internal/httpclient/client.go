// Package httpclient builds the single outbound HTTP client shared by the
// page-extraction, conversion and embedding clients.
package httpclient

import (
	"net"
	"net/http"
	"time"

	"github.com/spherical/slide-pipeline/internal/config"
	"github.com/spherical/slide-pipeline/internal/observability"
)

// Options configures New.
type Options struct {
	PoolSize int
	Retry    RetryConfig
	Logger   *observability.Logger
}

// OptionsFromConfig maps the http section of the configuration.
func OptionsFromConfig(cfg config.HTTPConfig, logger *observability.Logger) Options {
	return Options{
		PoolSize: cfg.PoolSize,
		Retry: RetryConfig{
			Attempts:       cfg.Retry.Attempts,
			BackoffFactor:  cfg.Retry.BackoffFactor,
			MaxBackoff:     cfg.Retry.MaxBackoff,
			StatusCodes:    cfg.Retry.StatusCodes,
			AllowedMethods: cfg.Retry.AllowedMethods,
		},
		Logger: logger,
	}
}

// New returns a client with a fixed-size connection pool and the retry
// policy installed at the transport. Per-call timeouts are set by callers
// through their request contexts.
func New(opts Options) *http.Client {
	poolSize := opts.PoolSize
	if poolSize <= 0 {
		poolSize = 10
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          poolSize,
		MaxIdleConnsPerHost:   poolSize,
		MaxConnsPerHost:       poolSize,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Transport: &RetryTransport{
			Base:   transport,
			Config: opts.Retry,
			Logger: opts.Logger,
		},
	}
}
