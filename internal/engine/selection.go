// Carousel - Automated Collection Pinning and Rotation for Plex
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/carousel

package engine

import (
	"math/rand"
	"sort"
	"time"

	"github.com/tomtom215/carousel/internal/config"
	"github.com/tomtom215/carousel/internal/logging"
	"github.com/tomtom215/carousel/internal/models"
)

// Engine builds pin plans from library snapshots. The random source and
// clock are injected so selection is deterministic under test.
type Engine struct {
	cfg      *config.PinningConfig
	rng      *rand.Rand
	now      func() time.Time
	strategy categoryStrategy
}

// New creates a selection engine. A nil rng falls back to a time-seeded
// source; a nil now falls back to time.Now.
func New(cfg *config.PinningConfig, rng *rand.Rand, now func() time.Time) *Engine {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if now == nil {
		now = time.Now
	}
	var strategy categoryStrategy = allCategories{}
	if cfg.UseRandomCategoryMode {
		strategy = oneRandomCategory{skipPercent: cfg.CategorySkipPercent}
	}
	return &Engine{cfg: cfg, rng: rng, now: now, strategy: strategy}
}

// categoryStrategy decides which configured categories contribute to a
// cycle's category pass.
type categoryStrategy interface {
	Select(rng *rand.Rand, categories []models.Category) []models.Category
}

// allCategories runs every configured category in configuration order.
type allCategories struct{}

func (allCategories) Select(_ *rand.Rand, categories []models.Category) []models.Category {
	return categories
}

// oneRandomCategory skips the whole pass with the configured probability,
// otherwise runs a single category drawn uniformly over the enabled ones.
// Disabled categories never absorb the draw.
type oneRandomCategory struct {
	skipPercent int
}

func (s oneRandomCategory) Select(rng *rand.Rand, categories []models.Category) []models.Category {
	if rng.Intn(100) < s.skipPercent {
		return nil
	}
	enabled := make([]models.Category, 0, len(categories))
	for _, cat := range categories {
		if cat.Enabled() {
			enabled = append(enabled, cat)
		}
	}
	if len(enabled) == 0 {
		return nil
	}
	return []models.Category{enabled[rng.Intn(len(enabled))]}
}

// Input is one library's snapshot plus the rotation state the engine
// needs to select from it.
type Input struct {
	Library     string
	Collections []models.Collection
	Budget      int

	// Recent holds titles still inside the repeat-block window. Only the
	// random pass consults it.
	Recent map[string]struct{}
}

// BuildPlan runs the selection cascade for one library: active specials,
// then categories, then random fill. The returned plan may exceed the
// budget when the special pass alone does.
func (e *Engine) BuildPlan(in Input) models.PinPlan {
	now := e.now()
	plan := models.PinPlan{Library: in.Library, Created: now}

	byTitle := make(map[string]*models.Collection, len(in.Collections))
	for i := range in.Collections {
		byTitle[in.Collections[i].Title] = &in.Collections[i]
	}

	periods := e.cfg.SpecialPeriods()
	active := models.ActiveSpecialTitles(periods, now)
	inactive := inactiveSpecialTitles(periods, active)

	activeTitles := make([]string, 0, len(active))
	for title := range active {
		activeTitles = append(activeTitles, title)
	}
	sort.Strings(activeTitles)

	rules := NewRules(
		e.cfg.ExclusionList,
		e.cfg.RegexExclusions,
		e.cfg.InclusionList,
		e.cfg.MinItems,
		inactive,
	)

	picked := make(map[string]struct{})

	// Special pass. Active specials pin unconditionally, bypassing
	// exclusions and the minimum-size rule, and may exceed the budget.
	for _, title := range activeTitles {
		c, ok := byTitle[title]
		if !ok {
			continue
		}
		if _, dup := picked[title]; dup {
			continue
		}
		picked[title] = struct{}{}
		plan.Picks = append(plan.Picks, pickFrom(c, models.SelectionReason{Kind: models.ReasonSpecial}))
	}

	if len(plan.Picks) > in.Budget {
		logging.Info().
			Str("library", in.Library).
			Int("budget", in.Budget).
			Int("specials", len(plan.Picks)).
			Msg("Active specials exceed pin budget")
	}

	// Category pass, only while budget remains.
	if remaining := in.Budget - len(plan.Picks); remaining > 0 {
		e.pickCategories(&plan, in.Library, byTitle, rules, picked, remaining)
	}

	// Random fill for whatever budget is left.
	if remaining := in.Budget - len(plan.Picks); remaining > 0 {
		e.pickRandom(&plan, in.Collections, rules, picked, in.Recent, remaining)
	}

	return plan
}

// pickCategories runs the category pass. In the default mode every
// configured category contributes up to its pin count, in configuration
// order. In random mode the whole pass is skipped with the configured
// probability; otherwise one category is chosen at random and only it
// contributes.
func (e *Engine) pickCategories(plan *models.PinPlan, library string, byTitle map[string]*models.Collection, rules *Rules, picked map[string]struct{}, remaining int) {
	categories := e.cfg.CategoriesFor(library)
	if len(categories) == 0 {
		return
	}

	categories = e.strategy.Select(e.rng, categories)
	if len(categories) == 0 {
		logging.Debug().Str("library", library).Msg("Category pass skipped this cycle")
		return
	}

	for _, cat := range categories {
		if remaining <= 0 {
			return
		}
		if !cat.Enabled() {
			continue
		}

		candidates := make([]*models.Collection, 0, len(cat.Collections))
		for _, title := range cat.Collections {
			c, ok := byTitle[title]
			if !ok {
				continue
			}
			if _, dup := picked[c.Title]; dup {
				continue
			}
			if !rules.EligibleForRotation(c) {
				continue
			}
			candidates = append(candidates, c)
		}

		want := cat.PinCount
		if want > remaining {
			want = remaining
		}
		e.rng.Shuffle(len(candidates), func(i, j int) {
			candidates[i], candidates[j] = candidates[j], candidates[i]
		})
		if want > len(candidates) {
			want = len(candidates)
		}

		for _, c := range candidates[:want] {
			picked[c.Title] = struct{}{}
			plan.Picks = append(plan.Picks, pickFrom(c, models.SelectionReason{
				Kind:     models.ReasonCategory,
				Category: cat.Name,
			}))
			remaining--
		}
	}
}

// pickRandom fills the remaining budget from the eligible pool, excluding
// titles inside the repeat-block window. When the blocked pool cannot fill
// the budget the window is relaxed so the home screen never runs short
// just because history is crowded.
func (e *Engine) pickRandom(plan *models.PinPlan, collections []models.Collection, rules *Rules, picked map[string]struct{}, recent map[string]struct{}, remaining int) {
	eligible := rules.filterEligible(collections)

	fresh := make([]models.Collection, 0, len(eligible))
	blocked := make([]models.Collection, 0)
	for _, c := range eligible {
		if _, dup := picked[c.Title]; dup {
			continue
		}
		if _, isRecent := recent[c.Title]; isRecent {
			blocked = append(blocked, c)
			continue
		}
		fresh = append(fresh, c)
	}

	pool := fresh
	if len(pool) < remaining && len(blocked) > 0 {
		logging.Debug().
			Str("library", plan.Library).
			Int("fresh", len(fresh)).
			Int("blocked", len(blocked)).
			Msg("Relaxing repeat block to fill pin budget")
		pool = append(pool, blocked...)
	}

	e.rng.Shuffle(len(pool), func(i, j int) {
		pool[i], pool[j] = pool[j], pool[i]
	})
	if remaining > len(pool) {
		remaining = len(pool)
	}

	for _, c := range pool[:remaining] {
		picked[c.Title] = struct{}{}
		plan.Picks = append(plan.Picks, pickFrom(&c, models.SelectionReason{Kind: models.ReasonRandom}))
	}
}

// inactiveSpecialTitles returns the special titles not active today.
func inactiveSpecialTitles(periods []models.SpecialPeriod, active map[string]struct{}) map[string]struct{} {
	inactive := make(map[string]struct{})
	for title := range models.AllSpecialTitles(periods) {
		if _, ok := active[title]; !ok {
			inactive[title] = struct{}{}
		}
	}
	return inactive
}

func pickFrom(c *models.Collection, reason models.SelectionReason) models.Pick {
	return models.Pick{
		Title:     c.Title,
		RatingKey: c.RatingKey,
		ItemCount: c.ItemCount,
		Reason:    reason,
	}
}
