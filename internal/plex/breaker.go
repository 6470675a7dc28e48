// Carousel - Automated Collection Pinning and Rotation for Plex
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/carousel

package plex

import (
	"context"
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/carousel/internal/logging"
	"github.com/tomtom215/carousel/internal/metrics"
	"github.com/tomtom215/carousel/internal/models"
)

// ErrCircuitOpen is returned when the breaker rejects a call because the
// Plex server has been failing.
var ErrCircuitOpen = errors.New("plex circuit breaker open")

// BreakerClient wraps Client with a circuit breaker so a repeatedly failing
// Plex server short-circuits cycle work instead of stalling every library
// on timeouts.
//
// The breaker uses real time for its measurement window and recovery
// timeout; tests should exercise the wrapped Client directly.
type BreakerClient struct {
	client *Client
	cb     *gobreaker.CircuitBreaker[any]
}

// NewBreakerClient wraps a Plex client with circuit breaker protection.
// The circuit opens after a 60% failure rate across at least 10 requests,
// resets its counts every minute while closed, and probes recovery after
// two minutes open with up to 3 half-open requests.
func NewBreakerClient(client *Client) *BreakerClient {
	metrics.CircuitBreakerState.Set(0) // 0 = closed

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "plex-api",
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			if failureRatio >= 0.6 {
				logging.Warn().
					Uint32("failures", counts.TotalFailures).
					Float64("failure_rate", failureRatio*100).
					Msg("Opening Plex circuit")
				return true
			}
			return false
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("breaker", name).
				Str("from", stateToString(from)).
				Str("to", stateToString(to)).
				Msg("Plex circuit state transition")
			metrics.CircuitBreakerState.Set(stateToFloat(to))
		},
	})

	return &BreakerClient{client: client, cb: cb}
}

// execute runs fn through the breaker, mapping open-circuit rejections to
// ErrCircuitOpen.
func (b *BreakerClient) execute(fn func() (any, error)) (any, error) {
	result, err := b.cb.Execute(fn)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, errors.Join(ErrCircuitOpen, err)
		}
		return nil, err
	}
	return result, nil
}

// TestConnection probes the server through the breaker.
func (b *BreakerClient) TestConnection(ctx context.Context) (string, error) {
	result, err := b.execute(func() (any, error) {
		return b.client.TestConnection(ctx)
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

// SectionByTitle resolves a library section by title.
func (b *BreakerClient) SectionByTitle(ctx context.Context, title string) (*Section, error) {
	result, err := b.execute(func() (any, error) {
		return b.client.SectionByTitle(ctx, title)
	})
	if err != nil {
		return nil, err
	}
	return result.(*Section), nil
}

// Collections lists a section's collections with promotion state.
func (b *BreakerClient) Collections(ctx context.Context, section *Section) ([]models.Collection, error) {
	result, err := b.execute(func() (any, error) {
		return b.client.Collections(ctx, section)
	})
	if err != nil {
		return nil, err
	}
	return result.([]models.Collection), nil
}

// Pin promotes a collection through the breaker.
func (b *BreakerClient) Pin(ctx context.Context, section *Section, ratingKey string) error {
	_, err := b.execute(func() (any, error) {
		return nil, b.client.Pin(ctx, section, ratingKey)
	})
	return err
}

// Unpin demotes a collection through the breaker.
func (b *BreakerClient) Unpin(ctx context.Context, section *Section, ratingKey string) error {
	_, err := b.execute(func() (any, error) {
		return nil, b.client.Unpin(ctx, section, ratingKey)
	})
	return err
}

// AddLabel attaches a label through the breaker.
func (b *BreakerClient) AddLabel(ctx context.Context, section *Section, ratingKey, label string) error {
	_, err := b.execute(func() (any, error) {
		return nil, b.client.AddLabel(ctx, section, ratingKey, label)
	})
	return err
}

// RemoveLabel detaches a label through the breaker.
func (b *BreakerClient) RemoveLabel(ctx context.Context, section *Section, ratingKey, label string) error {
	_, err := b.execute(func() (any, error) {
		return nil, b.client.RemoveLabel(ctx, section, ratingKey, label)
	})
	return err
}

func stateToString(s gobreaker.State) string {
	switch s {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

func stateToFloat(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
