// Carousel - Automated Collection Pinning and Rotation for Plex
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/carousel

// Package engine selects which collections to pin each cycle. Selection is
// a three-pass cascade: active special collections first (they may exceed
// the library budget), then configured categories, then a random fill that
// honors repeat blocking. Exclusion, inclusion, and minimum-size rules
// apply to the category and random passes only; specials bypass them.
package engine

import (
	"regexp"

	"github.com/tomtom215/carousel/internal/logging"
	"github.com/tomtom215/carousel/internal/models"
)

// Rules holds the per-cycle eligibility configuration, precompiled so the
// regex set is built once per cycle rather than per collection.
type Rules struct {
	exclusions map[string]struct{}
	inclusions map[string]struct{}
	patterns   []*regexp.Regexp
	minItems   int

	// inactiveSpecials are special titles outside their window today.
	// They never enter rotation regardless of other rules.
	inactiveSpecials map[string]struct{}
}

// NewRules compiles eligibility rules for one cycle.
//
// Exact exclusions are case-sensitive; regex patterns are compiled
// case-insensitively. Patterns that fail to compile are dropped with a
// warning so one typo cannot halt rotation.
func NewRules(exclusions, regexExclusions, inclusions []string, minItems int, inactiveSpecials map[string]struct{}) *Rules {
	r := &Rules{
		exclusions:       make(map[string]struct{}, len(exclusions)),
		minItems:         minItems,
		inactiveSpecials: inactiveSpecials,
	}
	for _, title := range exclusions {
		r.exclusions[title] = struct{}{}
	}
	if len(inclusions) > 0 {
		r.inclusions = make(map[string]struct{}, len(inclusions))
		for _, title := range inclusions {
			r.inclusions[title] = struct{}{}
		}
	}
	for _, pattern := range regexExclusions {
		re, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			logging.Warn().Err(err).Str("pattern", pattern).Msg("Skipping invalid exclusion pattern")
			continue
		}
		r.patterns = append(r.patterns, re)
	}
	return r
}

// Excluded reports whether a title is barred from pinning entirely.
// Exclusion wins over inclusion, so this is checked first everywhere.
func (r *Rules) Excluded(title string) bool {
	if _, ok := r.exclusions[title]; ok {
		return true
	}
	for _, re := range r.patterns {
		if re.MatchString(title) {
			return true
		}
	}
	return false
}

// EligibleForRotation reports whether a collection may be picked by the
// category or random passes.
func (r *Rules) EligibleForRotation(c *models.Collection) bool {
	if r.Excluded(c.Title) {
		return false
	}
	if _, inactive := r.inactiveSpecials[c.Title]; inactive {
		return false
	}
	if r.inclusions != nil {
		if _, ok := r.inclusions[c.Title]; !ok {
			return false
		}
	}
	if c.ItemCount < r.minItems {
		return false
	}
	return true
}

// filterEligible returns the rotation-eligible subset of collections.
func (r *Rules) filterEligible(collections []models.Collection) []models.Collection {
	eligible := make([]models.Collection, 0, len(collections))
	for _, c := range collections {
		if r.EligibleForRotation(&c) {
			eligible = append(eligible, c)
		}
	}
	return eligible
}
