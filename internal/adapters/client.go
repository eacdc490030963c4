// Package adapters implements the orchestrator's regulatory-source
// clients: one HTTP client per external portal — CFR, FAA DRS, and NRC
// ADAMS (APS) — each rate limited and retried the same way, so a single
// misbehaving source degrades gracefully instead of burning the shared
// request budget of the other two.
package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/regassist/regassist/internal/backoff"
	"github.com/regassist/regassist/internal/ratelimit"
)

func decodeJSON(body []byte, out any) error {
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// httpClient is the shared shape of every source adapter in this package: a
// base URL, an API key or bearer-token source, a per-second rate limiter
// (one bucket, since each adapter talks to exactly one upstream), and a
// single retry on idempotent GET failures.
type httpClient struct {
	baseURL string
	http    *http.Client
	limiter *ratelimit.Bucket

	// authorize sets whatever auth header the upstream needs on req,
	// possibly making its own HTTP call first (DRS's OAuth2 token refresh).
	authorize func(ctx context.Context, req *http.Request) error
}

func newHTTPClient(baseURL string, rl ratelimit.Config, authorize func(ctx context.Context, req *http.Request) error) *httpClient {
	return &httpClient{
		baseURL:   baseURL,
		http:      &http.Client{Timeout: 30 * time.Second},
		limiter:   ratelimit.NewBucket(rl),
		authorize: authorize,
	}
}

// ErrRateLimited is returned when the adapter's own token bucket is
// exhausted, distinguished from an upstream 429 so callers can tell "we
// throttled ourselves" from "the source throttled us".
var ErrRateLimited = fmt.Errorf("adapter: local rate limit exceeded")

// getJSON issues an idempotent GET and decodes the JSON response body into
// out. When the local token bucket is empty it returns ErrRateLimited at
// once, without waiting. A failed attempt is retried once (adapted from
// internal/backoff.RetryWithBackoff with a 2-attempt budget since these are
// interactive tool calls, not background jobs that can wait minutes); every
// failure is retried, a 4xx rejection included. When both attempts fail,
// the last attempt's error is returned — it carries the upstream status
// and, for a 4xx, the response body — for the caller to surface as a
// tool_result error string.
func (c *httpClient) getJSON(ctx context.Context, path string, out any) error {
	if !c.limiter.Allow() {
		return ErrRateLimited
	}

	result, err := backoff.RetryWithBackoff(ctx, backoff.DefaultPolicy(), 2, func(attempt int) ([]byte, error) {
		return c.doGet(ctx, path)
	})
	if err != nil {
		if err == backoff.ErrMaxAttemptsExhausted && result.LastError != nil {
			return result.LastError
		}
		return err
	}
	if out == nil {
		return nil
	}
	return decodeJSON(result.Value, out)
}

func (c *httpClient) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.authorize != nil {
		if err := c.authorize(ctx, req); err != nil {
			return nil, fmt.Errorf("authorize request: %w", err)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("upstream timeout, please retry: status %d", resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("upstream rejected request: status %d: %s", resp.StatusCode, truncateBody(body))
	}
	return body, nil
}

func truncateBody(body []byte) string {
	const max = 500
	if len(body) <= max {
		return string(body)
	}
	return string(body[:max]) + "..."
}
