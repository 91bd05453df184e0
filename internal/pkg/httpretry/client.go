// Package httpretry provides an HTTP client with automatic retry logic,
// exponential backoff, and jitter for calls to messaging providers.
package httpretry

import (
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/ignite/outreach-core/internal/pkg/logger"
)

// HTTPDoer is the interface for executing HTTP requests.
// Both *http.Client and *RetryClient satisfy this interface.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// RetryClient wraps an HTTPDoer with retry logic using exponential backoff and jitter.
type RetryClient struct {
	client     HTTPDoer
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	minDelay   time.Duration
}

// Option customizes a RetryClient.
type Option func(*RetryClient)

// WithDelays overrides the backoff bounds. Tests use millisecond values.
func WithDelays(base, max time.Duration) Option {
	return func(rc *RetryClient) {
		rc.baseDelay = base
		rc.maxDelay = max
		if base < rc.minDelay {
			rc.minDelay = base
		}
	}
}

// NewRetryClient creates a new RetryClient that wraps the given HTTPDoer.
// If client is nil, a default http.Client with 30s timeout is used.
// maxRetries is the number of retry attempts after the initial request (default 3).
func NewRetryClient(client HTTPDoer, maxRetries int, opts ...Option) *RetryClient {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	rc := &RetryClient{
		client:     client,
		maxRetries: maxRetries,
		baseDelay:  1 * time.Second,
		maxDelay:   30 * time.Second,
		minDelay:   100 * time.Millisecond,
	}
	for _, o := range opts {
		o(rc)
	}
	return rc
}

// Do executes the HTTP request with retry logic.
// It retries on 429 and 5xx gateway statuses and on transient network
// errors. It does NOT retry on other client errors or context cancellation.
// On the final attempt, it returns the response as-is so the caller
// can inspect the status code and body.
//
// A Retry-After header (seconds or HTTP date) on a retryable response
// replaces the computed backoff for the next attempt, capped at maxDelay.
func (rc *RetryClient) Do(req *http.Request) (*http.Response, error) {
	var (
		lastErr    error
		retryAfter time.Duration
	)

	for attempt := 0; attempt <= rc.maxRetries; attempt++ {
		if req.Context().Err() != nil {
			if lastErr != nil {
				return nil, lastErr
			}
			return nil, req.Context().Err()
		}

		if attempt > 0 {
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return nil, fmt.Errorf("httpretry: failed to reset request body: %w", err)
				}
				req.Body = body
			}

			delay := rc.calculateDelay(attempt)
			if retryAfter > 0 {
				delay = retryAfter
				retryAfter = 0
			}
			logger.Warn("httpretry: retrying request",
				"attempt", attempt, "max_retries", rc.maxRetries,
				"method", req.Method, "host", req.URL.Host, "path", req.URL.Path, "wait", delay)

			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-req.Context().Done():
				timer.Stop()
				if lastErr != nil {
					return nil, lastErr
				}
				return nil, req.Context().Err()
			}
		}

		resp, err := rc.client.Do(req)
		if err != nil {
			lastErr = err
			if req.Context().Err() != nil {
				return nil, err
			}
			continue
		}

		if !isRetryableStatus(resp.StatusCode) {
			return resp, nil
		}

		if attempt == rc.maxRetries {
			return resp, nil
		}

		retryAfter = parseRetryAfter(resp.Header.Get("Retry-After"), time.Now(), rc.maxDelay)

		// drain for connection reuse
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		lastErr = fmt.Errorf("httpretry: server returned retryable status %d", resp.StatusCode)
	}

	return nil, lastErr
}

// calculateDelay returns the backoff duration for the given retry attempt:
// random(0, min(maxDelay, baseDelay * 2^(attempt-1))), floored at minDelay.
func (rc *RetryClient) calculateDelay(attempt int) time.Duration {
	expDelay := float64(rc.baseDelay) * math.Pow(2, float64(attempt-1))
	if expDelay > float64(rc.maxDelay) {
		expDelay = float64(rc.maxDelay)
	}

	jittered := time.Duration(rand.Float64() * expDelay)
	if jittered < rc.minDelay {
		jittered = rc.minDelay
	}
	return jittered
}

// parseRetryAfter reads a Retry-After value as delay-seconds or an HTTP
// date. Returns 0 when absent or unparseable.
func parseRetryAfter(v string, now time.Time, max time.Duration) time.Duration {
	if v == "" {
		return 0
	}
	var d time.Duration
	if secs, err := strconv.Atoi(v); err == nil {
		d = time.Duration(secs) * time.Second
	} else if t, err := http.ParseTime(v); err == nil {
		d = t.Sub(now)
	}
	if d <= 0 {
		return 0
	}
	if d > max {
		d = max
	}
	return d
}

// isRetryableStatus reports whether the status indicates a transient
// provider failure: 429, 500, 502, 503, 504.
func isRetryableStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
