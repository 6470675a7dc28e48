// Carousel - Automated Collection Pinning and Rotation for Plex
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/carousel

// Package notify posts pin announcements to a Discord-compatible webhook.
// Notifications are strictly best effort: failures are logged and counted
// but never surface to the pinning cycle.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/tomtom215/carousel/internal/config"
	"github.com/tomtom215/carousel/internal/logging"
	"github.com/tomtom215/carousel/internal/metrics"
	"github.com/tomtom215/carousel/internal/models"
)

// maxMessageLength is Discord's content field limit.
const maxMessageLength = 2000

// Notifier sends webhook messages, rate limited per minute. A Notifier
// with an empty URL is valid and drops every message silently.
type Notifier struct {
	url        string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// webhookPayload is the Discord-compatible request body.
type webhookPayload struct {
	Content string `json:"content"`
}

// New creates a notifier from config. The per-minute rate bound is
// enforced with a token bucket sized to allow short bursts.
func New(cfg config.NotifyConfig) *Notifier {
	perSecond := rate.Limit(float64(cfg.RatePerMinute) / 60.0)
	burst := cfg.RatePerMinute / 2
	if burst < 1 {
		burst = 1
	}
	return &Notifier{
		url: cfg.WebhookURL,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		limiter: rate.NewLimiter(perSecond, burst),
	}
}

// Enabled reports whether a webhook URL is configured.
func (n *Notifier) Enabled() bool {
	return n.url != ""
}

// NotifyPinned announces the collections pinned for a library. Errors are
// swallowed after logging; the return value only reports whether a send
// was attempted and succeeded, for status bookkeeping.
func (n *Notifier) NotifyPinned(ctx context.Context, library string, picks []models.Pick) bool {
	if !n.Enabled() || len(picks) == 0 {
		return false
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "\U0001F4CC Pinned in %s:\n", library)
	for _, pick := range picks {
		fmt.Fprintf(&sb, "- %s (%s)\n", pick.Title, pick.Reason)
	}
	return n.send(ctx, sb.String())
}

// send posts one message, truncating to the Discord limit.
func (n *Notifier) send(ctx context.Context, message string) bool {
	if !n.limiter.Allow() {
		metrics.WebhookNotifications.WithLabelValues("dropped").Inc()
		logging.Warn().Msg("Webhook rate limit reached, dropping notification")
		return false
	}

	if len(message) > maxMessageLength {
		message = message[:maxMessageLength-3] + "..."
	}

	body, err := json.Marshal(webhookPayload{Content: message})
	if err != nil {
		metrics.WebhookNotifications.WithLabelValues("failed").Inc()
		logging.Error().Err(err).Msg("Cannot marshal webhook payload")
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		metrics.WebhookNotifications.WithLabelValues("failed").Inc()
		logging.Error().Err(err).Msg("Cannot build webhook request")
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := n.httpClient.Do(req)
	if err != nil {
		metrics.WebhookNotifications.WithLabelValues("failed").Inc()
		logging.Warn().Err(err).Msg("Webhook delivery failed")
		return false
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		metrics.WebhookNotifications.WithLabelValues("failed").Inc()
		logging.Warn().
			Int("status", resp.StatusCode).
			Dur("elapsed", time.Since(start)).
			Msg("Webhook rejected notification")
		return false
	}

	metrics.WebhookNotifications.WithLabelValues("sent").Inc()
	return true
}
