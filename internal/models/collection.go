// Carousel - Automated Collection Pinning and Rotation for Plex
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/carousel

// Package models defines the shared domain types for Carousel.
//
// Collections live entirely on the Plex server; Carousel only ever holds
// the snapshot read during a cycle (title, item count, labels, promotion
// state) and the pin plan derived from it.
package models

import (
	"fmt"
	"strings"
	"time"
)

// Collection is a read-only snapshot of a Plex collection as seen at the
// start of a cycle.
type Collection struct {
	// RatingKey is Plex's unique identifier for the collection item.
	RatingKey string `json:"rating_key"`

	// Title is the exact collection title. All matching against exclusion
	// lists, categories, and special periods is by exact title.
	Title string `json:"title"`

	// Library is the name of the library section the collection belongs to.
	Library string `json:"library"`

	// ItemCount is the number of items in the collection (childCount).
	ItemCount int `json:"item_count"`

	// Labels holds the collection's label tags as reported by Plex.
	Labels []string `json:"labels,omitempty"`

	// Pinned reports whether the collection is currently promoted to the
	// server owner's home screen.
	Pinned bool `json:"pinned"`
}

// HasLabel reports whether the collection carries the given label.
// Plex treats labels case-insensitively, so the check does too.
func (c *Collection) HasLabel(label string) bool {
	if label == "" {
		return false
	}
	for _, l := range c.Labels {
		if strings.EqualFold(l, label) {
			return true
		}
	}
	return false
}

// SelectionReason records which pass of the selection cascade picked a
// collection. Category picks carry the category name.
type SelectionReason struct {
	Kind     ReasonKind `json:"kind"`
	Category string     `json:"category,omitempty"`
}

// ReasonKind enumerates the selection passes.
type ReasonKind string

const (
	// ReasonSpecial marks a collection pinned because a special period is
	// active today. Specials may exceed the library pin budget.
	ReasonSpecial ReasonKind = "special"

	// ReasonCategory marks a collection picked by the category pass.
	ReasonCategory ReasonKind = "category"

	// ReasonRandom marks a rotation pick from the random fill pass. Only
	// these are recorded into the pin history.
	ReasonRandom ReasonKind = "random"
)

// String renders the reason for logs and notifications.
func (r SelectionReason) String() string {
	if r.Kind == ReasonCategory && r.Category != "" {
		return fmt.Sprintf("category:%s", r.Category)
	}
	return string(r.Kind)
}

// Pick is a single selected collection within a pin plan.
type Pick struct {
	Title     string          `json:"title"`
	RatingKey string          `json:"rating_key"`
	ItemCount int             `json:"item_count"`
	Reason    SelectionReason `json:"reason"`
}

// PinPlan is the selection engine's per-library output for one cycle.
// It is consumed by the pin synchronizer and then discarded; the only
// durable side effect is the history update for random picks.
type PinPlan struct {
	Library string    `json:"library"`
	Picks   []Pick    `json:"picks"`
	Created time.Time `json:"created"`
}

// Titles returns the planned titles in selection order.
func (p *PinPlan) Titles() []string {
	titles := make([]string, len(p.Picks))
	for i, pick := range p.Picks {
		titles[i] = pick.Title
	}
	return titles
}

// Contains reports whether the plan already includes the given title.
func (p *PinPlan) Contains(title string) bool {
	for _, pick := range p.Picks {
		if pick.Title == title {
			return true
		}
	}
	return false
}

// RandomPicks returns the titles selected by the random fill pass. These
// are the only picks recorded into the pin history, since repeat blocking
// governs ordinary rotation picks, not curated or special ones.
func (p *PinPlan) RandomPicks() []string {
	var titles []string
	for _, pick := range p.Picks {
		if pick.Reason.Kind == ReasonRandom {
			titles = append(titles, pick.Title)
		}
	}
	return titles
}
