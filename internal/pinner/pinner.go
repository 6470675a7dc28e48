// Carousel - Automated Collection Pinning and Rotation for Plex
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/carousel

// Package pinner reconciles a library's home screen with a pin plan. It
// unpins only collections that carry the managed label, so pins made by
// hand or by other tools are never touched.
package pinner

import (
	"context"

	"github.com/tomtom215/carousel/internal/logging"
	"github.com/tomtom215/carousel/internal/metrics"
	"github.com/tomtom215/carousel/internal/models"
	"github.com/tomtom215/carousel/internal/plex"
)

// PlexAPI is the slice of the Plex client the pinner needs.
type PlexAPI interface {
	Pin(ctx context.Context, section *plex.Section, ratingKey string) error
	Unpin(ctx context.Context, section *plex.Section, ratingKey string) error
	AddLabel(ctx context.Context, section *plex.Section, ratingKey, label string) error
	RemoveLabel(ctx context.Context, section *plex.Section, ratingKey, label string) error
}

// Pinner applies pin plans against Plex.
type Pinner struct {
	client PlexAPI
	label  string

	// excluded reports titles that must never be pinned or unpinned.
	excluded func(title string) bool
}

// New creates a pinner. The excluded func gates both directions of the
// diff; a nil func means nothing is excluded.
func New(client PlexAPI, label string, excluded func(string) bool) *Pinner {
	if excluded == nil {
		excluded = func(string) bool { return false }
	}
	return &Pinner{client: client, label: label, excluded: excluded}
}

// Apply reconciles the library toward the plan and returns per-title
// counts. Individual title failures are logged and counted but do not
// abort the rest of the diff. In dry-run mode no Plex calls are made.
func (p *Pinner) Apply(ctx context.Context, section *plex.Section, plan models.PinPlan, current []models.Collection, dryRun bool) models.SyncResult {
	result := models.SyncResult{Library: plan.Library, DryRun: dryRun}
	desired := make(map[string]struct{}, len(plan.Picks))
	for _, pick := range plan.Picks {
		desired[pick.Title] = struct{}{}
	}

	// Unpin first so the home screen never exceeds budget mid-cycle.
	for _, c := range current {
		if !c.Pinned || !c.HasLabel(p.label) {
			continue
		}
		if p.excluded(c.Title) {
			continue
		}
		if _, keep := desired[c.Title]; keep {
			continue
		}
		if dryRun {
			logging.Info().Str("library", plan.Library).Str("title", c.Title).Msg("[DRY RUN] Would unpin")
			result.Unpinned = append(result.Unpinned, c.Title)
			continue
		}
		if err := p.unpin(ctx, section, &c); err != nil {
			logging.Error().Err(err).Str("title", c.Title).Msg("Unpin failed")
			result.Failed = append(result.Failed, c.Title)
			continue
		}
		result.Unpinned = append(result.Unpinned, c.Title)
		metrics.CollectionsUnpinned.WithLabelValues(plan.Library).Inc()
	}

	pinned := make(map[string]models.Collection, len(current))
	for _, c := range current {
		if c.Pinned {
			pinned[c.Title] = c
		}
	}

	for _, pick := range plan.Picks {
		if existing, already := pinned[pick.Title]; already {
			// Ensure long-lived pins (specials spanning cycles) stay
			// labeled so a later diff can still manage them.
			if !existing.HasLabel(p.label) && !dryRun {
				if err := p.client.AddLabel(ctx, section, existing.RatingKey, p.label); err != nil {
					logging.Warn().Err(err).Str("title", pick.Title).Msg("Cannot label already-pinned collection")
				}
			}
			result.Skipped = append(result.Skipped, pick.Title)
			continue
		}
		if dryRun {
			logging.Info().
				Str("library", plan.Library).
				Str("title", pick.Title).
				Str("reason", pick.Reason.String()).
				Msg("[DRY RUN] Would pin")
			result.Pinned = append(result.Pinned, pick.Title)
			continue
		}
		if err := p.pin(ctx, section, pick); err != nil {
			logging.Error().Err(err).Str("title", pick.Title).Msg("Pin failed")
			result.Failed = append(result.Failed, pick.Title)
			continue
		}
		result.Pinned = append(result.Pinned, pick.Title)
		metrics.CollectionsPinned.WithLabelValues(plan.Library, string(pick.Reason.Kind)).Inc()
	}

	return result
}

func (p *Pinner) pin(ctx context.Context, section *plex.Section, pick models.Pick) error {
	if err := p.client.Pin(ctx, section, pick.RatingKey); err != nil {
		metrics.PinFailures.WithLabelValues(section.Title, "pin").Inc()
		return err
	}
	if err := p.client.AddLabel(ctx, section, pick.RatingKey, p.label); err != nil {
		metrics.PinFailures.WithLabelValues(section.Title, "label").Inc()
		return err
	}
	logging.Info().
		Str("library", section.Title).
		Str("title", pick.Title).
		Str("reason", pick.Reason.String()).
		Msg("Pinned collection")
	return nil
}

func (p *Pinner) unpin(ctx context.Context, section *plex.Section, c *models.Collection) error {
	if err := p.client.Unpin(ctx, section, c.RatingKey); err != nil {
		metrics.PinFailures.WithLabelValues(section.Title, "unpin").Inc()
		return err
	}
	if err := p.client.RemoveLabel(ctx, section, c.RatingKey, p.label); err != nil {
		metrics.PinFailures.WithLabelValues(section.Title, "unlabel").Inc()
		return err
	}
	logging.Info().Str("library", section.Title).Str("title", c.Title).Msg("Unpinned collection")
	return nil
}

