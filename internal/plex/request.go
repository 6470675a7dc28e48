// Carousel - Automated Collection Pinning and Rotation for Plex
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/carousel

package plex

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/carousel/internal/logging"
	"github.com/tomtom215/carousel/internal/metrics"
)

const (
	maxRetries     = 5
	baseRetryDelay = 1 * time.Second
)

// requestConfig describes one Plex API request.
type requestConfig struct {
	method string
	path   string
	query  url.Values
	// expectNoErr treats any non-2xx status as an error. All Carousel
	// requests set this; it exists so probes can opt out if needed.
	expectNoErr bool
}

// doJSONRequest performs a GET request and decodes the JSON response body
// into result.
func (c *Client) doJSONRequest(ctx context.Context, path string, query url.Values, result any) error {
	return c.doRequest(ctx, requestConfig{
		method:      http.MethodGet,
		path:        path,
		query:       query,
		expectNoErr: true,
	}, result)
}

// doRequest executes a request against the Plex API with token auth and
// rate-limit handling. When result is non-nil the response body is decoded
// into it as JSON.
func (c *Client) doRequest(ctx context.Context, cfg requestConfig, result any) error {
	reqURL := strings.TrimRight(c.baseURL, "/") + cfg.path
	if len(cfg.query) > 0 {
		reqURL += "?" + cfg.query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, cfg.method, reqURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-Plex-Token", c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.doRequestWithRateLimit(req)
	if err != nil {
		metrics.PlexRequests.WithLabelValues("error").Inc()
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if cfg.expectNoErr && (resp.StatusCode < 200 || resp.StatusCode >= 300) {
		metrics.PlexRequests.WithLabelValues("error").Inc()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("plex API returned status %d for %s %s: %s",
			resp.StatusCode, cfg.method, cfg.path, strings.TrimSpace(string(body)))
	}

	metrics.PlexRequests.WithLabelValues("success").Inc()

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("decode response for %s: %w", cfg.path, err)
		}
	}
	return nil
}

// doRequestWithRateLimit executes an HTTP request, retrying on 429 with
// exponential backoff. Plex's Retry-After header takes precedence over the
// computed delay when present.
func (c *Client) doRequestWithRateLimit(req *http.Request) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt < maxRetries; attempt++ {
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("plex request failed: %w", err)
		}

		if resp.StatusCode != http.StatusTooManyRequests {
			return resp, nil
		}

		_ = resp.Body.Close()

		retryDelay := baseRetryDelay * (1 << attempt)
		if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
			if parsed, parseErr := time.ParseDuration(retryAfter + "s"); parseErr == nil {
				retryDelay = parsed
			}
		}

		logging.Warn().
			Int("attempt", attempt+1).
			Int("max_retries", maxRetries).
			Dur("retry_delay", retryDelay).
			Str("path", req.URL.Path).
			Msg("Plex rate limit hit, retrying")

		select {
		case <-req.Context().Done():
			return nil, fmt.Errorf("request cancelled during rate limit wait: %w", req.Context().Err())
		case <-time.After(retryDelay):
		}

		lastErr = fmt.Errorf("rate limited (429) after %d attempts", attempt+1)
	}

	return nil, fmt.Errorf("plex rate limit retries exhausted: %w", lastErr)
}
