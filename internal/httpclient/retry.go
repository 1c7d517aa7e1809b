package httpclient

import (
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/spherical/slide-pipeline/internal/observability"
)

// RetryConfig holds the connection-layer retry policy.
type RetryConfig struct {
	// Attempts is the number of retries after the first try.
	Attempts       int
	BackoffFactor  time.Duration
	MaxBackoff     time.Duration
	StatusCodes    []int
	AllowedMethods []string
}

// DefaultRetryConfig returns the default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		Attempts:       3,
		BackoffFactor:  500 * time.Millisecond,
		MaxBackoff:     30 * time.Second,
		StatusCodes:    []int{http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
	}
}

// RetryTransport retries requests whose method is allow-listed when they fail
// at the connection level or come back with an allow-listed status code.
type RetryTransport struct {
	Base   http.RoundTripper
	Config RetryConfig
	Logger *observability.Logger

	sleep func(time.Duration) <-chan time.Time
}

// RoundTrip implements http.RoundTripper.
func (t *RetryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	if !t.methodAllowed(req.Method) {
		return base.RoundTrip(req)
	}

	sleep := t.sleep
	if sleep == nil {
		sleep = time.After
	}

	ctx := req.Context()
	attempts := t.Config.Attempts
	hasBody := req.Body != nil && req.Body != http.NoBody
	if hasBody && req.GetBody == nil {
		// body cannot be replayed
		attempts = 0
	}

	var (
		resp    *http.Response
		err     error
		lastErr error
	)

	for attempt := 0; attempt <= attempts; attempt++ {
		try := req
		if attempt > 0 && hasBody {
			body, bodyErr := req.GetBody()
			if bodyErr != nil {
				return nil, fmt.Errorf("rewind request body: %w", bodyErr)
			}
			try = req.Clone(ctx)
			try.Body = body
		}

		resp, err = base.RoundTrip(try)
		if err == nil && !t.statusRetryable(resp.StatusCode) {
			return resp, nil
		}

		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			lastErr = err
		} else {
			lastErr = fmt.Errorf("HTTP %d", resp.StatusCode)
		}

		// Don't wait after last attempt
		if attempt == attempts {
			break
		}

		if resp != nil && resp.Body != nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}

		backoff := calculateBackoff(attempt, t.Config)
		if t.Logger != nil {
			t.Logger.Warn().
				Str("method", req.Method).
				Str("url", req.URL.Redacted()).
				Int("attempt", attempt+1).
				Int("max_attempts", attempts).
				Dur("backoff", backoff).
				Err(lastErr).
				Msg("Request failed, retrying")
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-sleep(backoff):
		}
	}

	return resp, err
}

func (t *RetryTransport) methodAllowed(method string) bool {
	for _, m := range t.Config.AllowedMethods {
		if strings.EqualFold(m, method) {
			return true
		}
	}
	return false
}

func (t *RetryTransport) statusRetryable(code int) bool {
	for _, c := range t.Config.StatusCodes {
		if c == code {
			return true
		}
	}
	return false
}

// calculateBackoff calculates exponential backoff duration
func calculateBackoff(attempt int, config RetryConfig) time.Duration {
	// factor * 2^attempt
	backoff := float64(config.BackoffFactor) * math.Pow(2, float64(attempt))

	if config.MaxBackoff > 0 && backoff > float64(config.MaxBackoff) {
		backoff = float64(config.MaxBackoff)
	}

	return time.Duration(backoff)
}
