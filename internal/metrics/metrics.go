// Carousel - Automated Collection Pinning and Rotation for Plex
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/carousel

// Package metrics exposes Prometheus instrumentation for:
//   - cycle outcomes and durations
//   - pin/unpin operations per library and selection reason
//   - Plex API and webhook failures
//   - circuit breaker state
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CyclesTotal counts completed worker cycles by outcome.
	CyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "carousel_cycles_total",
			Help: "Total number of pinning cycles by outcome",
		},
		[]string{"outcome"}, // "success", "error"
	)

	// CycleDuration observes wall-clock cycle duration.
	CycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "carousel_cycle_duration_seconds",
			Help:    "Duration of pinning cycles in seconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
	)

	// CollectionsPinned counts pin operations by library and reason.
	CollectionsPinned = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "carousel_collections_pinned_total",
			Help: "Total collections pinned by library and selection reason",
		},
		[]string{"library", "reason"},
	)

	// CollectionsUnpinned counts unpin operations per library.
	CollectionsUnpinned = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "carousel_collections_unpinned_total",
			Help: "Total collections unpinned by library",
		},
		[]string{"library"},
	)

	// PinFailures counts failed pin/unpin operations per library.
	PinFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "carousel_pin_failures_total",
			Help: "Total failed pin/unpin operations by library",
		},
		[]string{"library", "operation"}, // "pin", "label", "unpin", "unlabel"
	)

	// PlexRequests counts Plex API calls by outcome.
	PlexRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "carousel_plex_requests_total",
			Help: "Total Plex API requests by outcome",
		},
		[]string{"outcome"}, // "success", "error"
	)

	// WebhookNotifications counts outbound webhook posts by outcome.
	WebhookNotifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "carousel_webhook_notifications_total",
			Help: "Total webhook notifications by outcome",
		},
		[]string{"outcome"}, // "sent", "failed", "dropped"
	)

	// CircuitBreakerState tracks the Plex circuit breaker state.
	// 0 = closed, 1 = half-open, 2 = open.
	CircuitBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "carousel_circuit_breaker_state",
			Help: "Plex API circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
	)

	// HistoryEntries tracks the number of live pin-history entries.
	HistoryEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "carousel_history_entries",
			Help: "Number of collection titles currently tracked in pin history",
		},
	)
)
