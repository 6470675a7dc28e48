// Carousel - Automated Collection Pinning and Rotation for Plex
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/carousel

package engine

import (
	"math/rand"
	"testing"
	"time"

	"github.com/tomtom215/carousel/internal/config"
	"github.com/tomtom215/carousel/internal/models"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// newTestEngine builds an engine with a fixed seed and clock so selection
// is reproducible.
func newTestEngine(cfg *config.PinningConfig, now time.Time) *Engine {
	return New(cfg, rand.New(rand.NewSource(42)), fixedClock(now))
}

func makeCollections(titles ...string) []models.Collection {
	out := make([]models.Collection, 0, len(titles))
	for i, title := range titles {
		out = append(out, models.Collection{
			RatingKey: string(rune('a' + i)),
			Title:     title,
			Library:   "Movies",
			ItemCount: 20,
		})
	}
	return out
}

func assertPlanSize(t *testing.T, plan models.PinPlan, want int) {
	t.Helper()
	if len(plan.Picks) != want {
		t.Fatalf("plan has %d picks, want %d: %v", len(plan.Picks), want, plan.Titles())
	}
}

func assertPlanContains(t *testing.T, plan models.PinPlan, title string) {
	t.Helper()
	if !plan.Contains(title) {
		t.Fatalf("plan %v missing %q", plan.Titles(), title)
	}
}

func assertPlanOmits(t *testing.T, plan models.PinPlan, title string) {
	t.Helper()
	if plan.Contains(title) {
		t.Fatalf("plan %v must not include %q", plan.Titles(), title)
	}
}

func reasonOf(t *testing.T, plan models.PinPlan, title string) models.ReasonKind {
	t.Helper()
	for _, pick := range plan.Picks {
		if pick.Title == title {
			return pick.Reason.Kind
		}
	}
	t.Fatalf("plan %v missing %q", plan.Titles(), title)
	return ""
}

func TestBuildPlanFillsBudgetRandomly(t *testing.T) {
	cfg := &config.PinningConfig{MinItems: 10}
	eng := newTestEngine(cfg, time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC))

	plan := eng.BuildPlan(Input{
		Library:     "Movies",
		Collections: makeCollections("A", "B", "C", "D", "E"),
		Budget:      3,
	})

	assertPlanSize(t, plan, 3)
	for _, pick := range plan.Picks {
		if pick.Reason.Kind != models.ReasonRandom {
			t.Errorf("pick %q reason = %q, want random", pick.Title, pick.Reason.Kind)
		}
	}
}

func TestBuildPlanBudgetLargerThanPool(t *testing.T) {
	cfg := &config.PinningConfig{}
	eng := newTestEngine(cfg, time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC))

	plan := eng.BuildPlan(Input{
		Library:     "Movies",
		Collections: makeCollections("A", "B"),
		Budget:      5,
	})

	assertPlanSize(t, plan, 2)
}

func TestBuildPlanDeterministicWithSeed(t *testing.T) {
	cfg := &config.PinningConfig{}
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	titles := []string{"A", "B", "C", "D", "E", "F", "G"}

	first := newTestEngine(cfg, now).BuildPlan(Input{
		Library: "Movies", Collections: makeCollections(titles...), Budget: 3,
	})
	second := newTestEngine(cfg, now).BuildPlan(Input{
		Library: "Movies", Collections: makeCollections(titles...), Budget: 3,
	})

	for i := range first.Picks {
		if first.Picks[i].Title != second.Picks[i].Title {
			t.Fatalf("same seed produced different plans: %v vs %v", first.Titles(), second.Titles())
		}
	}
}

func TestBuildPlanExactExclusionIsCaseSensitive(t *testing.T) {
	cfg := &config.PinningConfig{
		ExclusionList: []string{"Blocked"},
	}
	eng := newTestEngine(cfg, time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC))

	plan := eng.BuildPlan(Input{
		Library:     "Movies",
		Collections: makeCollections("Blocked", "blocked", "Other"),
		Budget:      3,
	})

	assertPlanOmits(t, plan, "Blocked")
	assertPlanContains(t, plan, "blocked")
	assertPlanContains(t, plan, "Other")
}

func TestBuildPlanRegexExclusionIsCaseInsensitive(t *testing.T) {
	cfg := &config.PinningConfig{
		RegexExclusions: []string{"^4k"},
	}
	eng := newTestEngine(cfg, time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC))

	plan := eng.BuildPlan(Input{
		Library:     "Movies",
		Collections: makeCollections("4K Remasters", "4k classics", "Dramas"),
		Budget:      3,
	})

	assertPlanOmits(t, plan, "4K Remasters")
	assertPlanOmits(t, plan, "4k classics")
	assertPlanContains(t, plan, "Dramas")
}

func TestBuildPlanExclusionWinsOverInclusion(t *testing.T) {
	cfg := &config.PinningConfig{
		ExclusionList: []string{"Both"},
		InclusionList: []string{"Both", "Allowed"},
	}
	eng := newTestEngine(cfg, time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC))

	plan := eng.BuildPlan(Input{
		Library:     "Movies",
		Collections: makeCollections("Both", "Allowed", "NotListed"),
		Budget:      3,
	})

	assertPlanOmits(t, plan, "Both")
	assertPlanContains(t, plan, "Allowed")
	assertPlanOmits(t, plan, "NotListed")
}

func TestBuildPlanMinItemsFiltersSmallCollections(t *testing.T) {
	cfg := &config.PinningConfig{MinItems: 10}
	eng := newTestEngine(cfg, time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC))

	collections := makeCollections("Big", "Small")
	collections[1].ItemCount = 3

	plan := eng.BuildPlan(Input{
		Library: "Movies", Collections: collections, Budget: 2,
	})

	assertPlanSize(t, plan, 1)
	assertPlanContains(t, plan, "Big")
}

func TestBuildPlanActiveSpecialBypassesRules(t *testing.T) {
	cfg := &config.PinningConfig{
		MinItems:      10,
		ExclusionList: []string{"Halloween"},
		Specials: []config.SpecialConfig{
			{StartDate: "10-01", EndDate: "10-31", Collections: []string{"Halloween"}},
		},
	}
	eng := newTestEngine(cfg, time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC))

	collections := makeCollections("Halloween", "Other")
	collections[0].ItemCount = 2 // below min_items, still pinned as special

	plan := eng.BuildPlan(Input{
		Library: "Movies", Collections: collections, Budget: 2,
	})

	assertPlanContains(t, plan, "Halloween")
	if got := reasonOf(t, plan, "Halloween"); got != models.ReasonSpecial {
		t.Errorf("Halloween reason = %q, want special", got)
	}
}

func TestBuildPlanSpecialsMayExceedBudget(t *testing.T) {
	cfg := &config.PinningConfig{
		Specials: []config.SpecialConfig{
			{StartDate: "12-01", EndDate: "12-31", Collections: []string{"S1", "S2", "S3"}},
		},
	}
	eng := newTestEngine(cfg, time.Date(2026, 12, 15, 12, 0, 0, 0, time.UTC))

	plan := eng.BuildPlan(Input{
		Library:     "Movies",
		Collections: makeCollections("S1", "S2", "S3", "Other"),
		Budget:      1,
	})

	assertPlanSize(t, plan, 3)
	assertPlanOmits(t, plan, "Other")
}

func TestBuildPlanInactiveSpecialExcludedFromRotation(t *testing.T) {
	cfg := &config.PinningConfig{
		Specials: []config.SpecialConfig{
			{StartDate: "10-01", EndDate: "10-31", Collections: []string{"Halloween"}},
		},
	}
	eng := newTestEngine(cfg, time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC))

	plan := eng.BuildPlan(Input{
		Library:     "Movies",
		Collections: makeCollections("Halloween", "A", "B"),
		Budget:      3,
	})

	assertPlanOmits(t, plan, "Halloween")
	assertPlanSize(t, plan, 2)
}

func TestBuildPlanYearWrappingSpecialWindow(t *testing.T) {
	cfg := &config.PinningConfig{
		Specials: []config.SpecialConfig{
			{StartDate: "12-20", EndDate: "01-05", Collections: []string{"Holidays"}},
		},
	}

	tests := []struct {
		name   string
		date   time.Time
		active bool
	}{
		{"inside before new year", time.Date(2026, 12, 25, 0, 0, 0, 0, time.UTC), true},
		{"inside after new year", time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC), true},
		{"outside window", time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng := newTestEngine(cfg, tt.date)
			plan := eng.BuildPlan(Input{
				Library:     "Movies",
				Collections: makeCollections("Holidays", "Filler1", "Filler2"),
				Budget:      1,
			})
			if tt.active {
				assertPlanContains(t, plan, "Holidays")
			} else {
				assertPlanOmits(t, plan, "Holidays")
			}
		})
	}
}

func TestBuildPlanCategoryPassDefaultMode(t *testing.T) {
	cfg := &config.PinningConfig{
		Categories: map[string][]config.CategoryConfig{
			"Movies": {
				{Name: "Action", PinCount: 1, Collections: []string{"Action Hits"}},
				{Name: "Drama", PinCount: 1, Collections: []string{"Drama Hits"}},
			},
		},
	}
	eng := newTestEngine(cfg, time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC))

	plan := eng.BuildPlan(Input{
		Library:     "Movies",
		Collections: makeCollections("Action Hits", "Drama Hits", "Other1", "Other2"),
		Budget:      3,
	})

	assertPlanSize(t, plan, 3)
	assertPlanContains(t, plan, "Action Hits")
	assertPlanContains(t, plan, "Drama Hits")
	if got := reasonOf(t, plan, "Action Hits"); got != models.ReasonCategory {
		t.Errorf("Action Hits reason = %q, want category", got)
	}
}

func TestBuildPlanCategoryRespectsRemainingBudget(t *testing.T) {
	cfg := &config.PinningConfig{
		Categories: map[string][]config.CategoryConfig{
			"Movies": {
				{Name: "Action", PinCount: 5, Collections: []string{"A1", "A2", "A3"}},
			},
		},
	}
	eng := newTestEngine(cfg, time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC))

	plan := eng.BuildPlan(Input{
		Library:     "Movies",
		Collections: makeCollections("A1", "A2", "A3"),
		Budget:      2,
	})

	assertPlanSize(t, plan, 2)
}

func TestBuildPlanDisabledCategoryIgnored(t *testing.T) {
	cfg := &config.PinningConfig{
		Categories: map[string][]config.CategoryConfig{
			"Movies": {
				{Name: "Off", PinCount: 0, Collections: []string{"OffPick"}},
			},
		},
	}
	eng := newTestEngine(cfg, time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC))

	plan := eng.BuildPlan(Input{
		Library:     "Movies",
		Collections: makeCollections("OffPick", "Other"),
		Budget:      1,
	})

	// OffPick may still be chosen by the random pass; what matters is that
	// no pick carries the disabled category's reason.
	for _, pick := range plan.Picks {
		if pick.Reason.Kind == models.ReasonCategory {
			t.Errorf("disabled category produced pick %q", pick.Title)
		}
	}
}

func TestBuildPlanRandomCategoryModeSkipAlways(t *testing.T) {
	cfg := &config.PinningConfig{
		UseRandomCategoryMode: true,
		CategorySkipPercent:   100,
		Categories: map[string][]config.CategoryConfig{
			"Movies": {
				{Name: "Action", PinCount: 2, Collections: []string{"A1", "A2"}},
			},
		},
	}
	eng := newTestEngine(cfg, time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC))

	plan := eng.BuildPlan(Input{
		Library:     "Movies",
		Collections: makeCollections("A1", "A2", "B1", "B2"),
		Budget:      2,
	})

	assertPlanSize(t, plan, 2)
	for _, pick := range plan.Picks {
		if pick.Reason.Kind == models.ReasonCategory {
			t.Errorf("category pass ran despite 100%% skip: %q", pick.Title)
		}
	}
}

func TestBuildPlanRandomCategoryModePicksSingleCategory(t *testing.T) {
	cfg := &config.PinningConfig{
		UseRandomCategoryMode: true,
		CategorySkipPercent:   0,
		Categories: map[string][]config.CategoryConfig{
			"Movies": {
				{Name: "Action", PinCount: 1, Collections: []string{"A1"}},
				{Name: "Drama", PinCount: 1, Collections: []string{"D1"}},
			},
		},
	}
	eng := newTestEngine(cfg, time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC))

	plan := eng.BuildPlan(Input{
		Library:     "Movies",
		Collections: makeCollections("A1", "D1"),
		Budget:      2,
	})

	categoryPicks := 0
	for _, pick := range plan.Picks {
		if pick.Reason.Kind == models.ReasonCategory {
			categoryPicks++
		}
	}
	if categoryPicks != 1 {
		t.Fatalf("random category mode made %d category picks, want exactly 1", categoryPicks)
	}
}

func TestBuildPlanRandomCategoryModeIgnoresDisabled(t *testing.T) {
	cfg := &config.PinningConfig{
		UseRandomCategoryMode: true,
		CategorySkipPercent:   0,
		Categories: map[string][]config.CategoryConfig{
			"Movies": {
				{Name: "Dormant", PinCount: 0, Collections: []string{"D1"}},
				{Name: "Action", PinCount: 1, Collections: []string{"A1"}},
			},
		},
	}
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	// Every non-skipped cycle must make a category pick regardless of how
	// the draw lands, so the disabled category must never absorb it.
	for seed := int64(0); seed < 50; seed++ {
		eng := New(cfg, rand.New(rand.NewSource(seed)), fixedClock(now))
		plan := eng.BuildPlan(Input{
			Library:     "Movies",
			Collections: makeCollections("D1", "A1"),
			Budget:      1,
		})

		if got := reasonOf(t, plan, "A1"); got != models.ReasonCategory {
			t.Fatalf("seed %d: A1 reason = %q, want category", seed, got)
		}
		assertPlanOmits(t, plan, "D1")
	}
}

func TestBuildPlanRepeatBlockSparesSpecialAndCategoryPasses(t *testing.T) {
	cfg := &config.PinningConfig{
		Specials: []config.SpecialConfig{
			{StartDate: "06-01", EndDate: "06-30", Collections: []string{"Summer"}},
		},
		Categories: map[string][]config.CategoryConfig{
			"Movies": {
				{Name: "Action", PinCount: 1, Collections: []string{"Die Hard"}},
			},
		},
	}
	eng := newTestEngine(cfg, time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC))

	// Both titles are inside the repeat-block window. Only the random
	// fill consults it, so the special and category passes still pick.
	plan := eng.BuildPlan(Input{
		Library:     "Movies",
		Collections: makeCollections("Summer", "Die Hard", "A", "B"),
		Budget:      2,
		Recent:      map[string]struct{}{"Summer": {}, "Die Hard": {}},
	})

	assertPlanSize(t, plan, 2)
	if got := reasonOf(t, plan, "Summer"); got != models.ReasonSpecial {
		t.Errorf("Summer reason = %q, want special despite being repeat-blocked", got)
	}
	if got := reasonOf(t, plan, "Die Hard"); got != models.ReasonCategory {
		t.Errorf("Die Hard reason = %q, want category despite being repeat-blocked", got)
	}
}

func TestBuildPlanRepeatBlockExcludesRecent(t *testing.T) {
	cfg := &config.PinningConfig{}
	eng := newTestEngine(cfg, time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC))

	plan := eng.BuildPlan(Input{
		Library:     "Movies",
		Collections: makeCollections("Recent1", "Recent2", "Fresh1", "Fresh2"),
		Budget:      2,
		Recent:      map[string]struct{}{"Recent1": {}, "Recent2": {}},
	})

	assertPlanSize(t, plan, 2)
	assertPlanOmits(t, plan, "Recent1")
	assertPlanOmits(t, plan, "Recent2")
}

func TestBuildPlanRepeatBlockRelaxedWhenPoolTooSmall(t *testing.T) {
	cfg := &config.PinningConfig{}
	eng := newTestEngine(cfg, time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC))

	plan := eng.BuildPlan(Input{
		Library:     "Movies",
		Collections: makeCollections("Recent1", "Recent2", "Fresh1"),
		Budget:      3,
		Recent:      map[string]struct{}{"Recent1": {}, "Recent2": {}},
	})

	assertPlanSize(t, plan, 3)
}

func TestBuildPlanNoDuplicatesAcrossPasses(t *testing.T) {
	cfg := &config.PinningConfig{
		Specials: []config.SpecialConfig{
			{StartDate: "06-01", EndDate: "06-30", Collections: []string{"Summer"}},
		},
		Categories: map[string][]config.CategoryConfig{
			"Movies": {
				{Name: "Seasonal", PinCount: 2, Collections: []string{"Summer", "Beach"}},
			},
		},
	}
	eng := newTestEngine(cfg, time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC))

	plan := eng.BuildPlan(Input{
		Library:     "Movies",
		Collections: makeCollections("Summer", "Beach", "Other"),
		Budget:      3,
	})

	seen := map[string]int{}
	for _, pick := range plan.Picks {
		seen[pick.Title]++
	}
	for title, n := range seen {
		if n > 1 {
			t.Errorf("%q picked %d times", title, n)
		}
	}
	if got := reasonOf(t, plan, "Summer"); got != models.ReasonSpecial {
		t.Errorf("Summer reason = %q, want special (special pass runs first)", got)
	}
}

func TestBuildPlanFullCascade(t *testing.T) {
	cfg := &config.PinningConfig{
		MinItems: 10,
		Specials: []config.SpecialConfig{
			{StartDate: "12-01", EndDate: "12-31", Collections: []string{"Holiday Picks"}},
		},
		Categories: map[string][]config.CategoryConfig{
			"Movies": {
				{Name: "Action", PinCount: 1, Collections: []string{"Die Hard", "Mad Max"}},
			},
		},
	}
	eng := newTestEngine(cfg, time.Date(2026, 12, 15, 12, 0, 0, 0, time.UTC))

	plan := eng.BuildPlan(Input{
		Library:     "Movies",
		Collections: makeCollections("Holiday Picks", "Die Hard", "Mad Max", "A", "B", "C"),
		Budget:      3,
	})

	assertPlanSize(t, plan, 3)
	if got := reasonOf(t, plan, "Holiday Picks"); got != models.ReasonSpecial {
		t.Errorf("Holiday Picks reason = %q, want special", got)
	}

	var categories, randoms int
	for _, pick := range plan.Picks {
		switch pick.Reason.Kind {
		case models.ReasonCategory:
			categories++
			if pick.Title != "Die Hard" && pick.Title != "Mad Max" {
				t.Errorf("category pick %q is not an Action member", pick.Title)
			}
		case models.ReasonRandom:
			randoms++
			if pick.Title == "Holiday Picks" {
				t.Error("random pass re-picked the special")
			}
		}
	}
	if categories != 1 || randoms != 1 {
		t.Errorf("got %d category and %d random picks, want 1 and 1", categories, randoms)
	}
}

func TestAllCategoriesStrategyKeepsOrder(t *testing.T) {
	cats := []models.Category{
		{Name: "First", PinCount: 1, Collections: []string{"A"}},
		{Name: "Second", PinCount: 1, Collections: []string{"B"}},
	}

	got := allCategories{}.Select(rand.New(rand.NewSource(1)), cats)
	if len(got) != 2 || got[0].Name != "First" || got[1].Name != "Second" {
		t.Errorf("Select = %v, want all categories in configuration order", got)
	}
}

func TestOneRandomCategoryStrategy(t *testing.T) {
	cats := []models.Category{
		{Name: "First", PinCount: 1, Collections: []string{"A"}},
		{Name: "Second", PinCount: 1, Collections: []string{"B"}},
	}
	rng := rand.New(rand.NewSource(1))

	if got := (oneRandomCategory{skipPercent: 100}).Select(rng, cats); got != nil {
		t.Errorf("skip percent 100 must always skip, got %v", got)
	}

	got := (oneRandomCategory{skipPercent: 0}).Select(rng, cats)
	if len(got) != 1 {
		t.Fatalf("Select = %v, want exactly one category", got)
	}
	if got[0].Name != "First" && got[0].Name != "Second" {
		t.Errorf("Select returned unknown category %q", got[0].Name)
	}
}

func TestOneRandomCategoryDrawsOverEnabledOnly(t *testing.T) {
	cats := []models.Category{
		{Name: "Dormant", PinCount: 0, Collections: []string{"D"}},
		{Name: "Action", PinCount: 1, Collections: []string{"A"}},
	}

	for seed := int64(0); seed < 50; seed++ {
		got := (oneRandomCategory{}).Select(rand.New(rand.NewSource(seed)), cats)
		if len(got) != 1 || got[0].Name != "Action" {
			t.Fatalf("seed %d: Select = %v, want only the enabled category", seed, got)
		}
	}

	if got := (oneRandomCategory{}).Select(rand.New(rand.NewSource(1)), cats[:1]); got != nil {
		t.Errorf("Select over all-disabled categories = %v, want nil", got)
	}
}

func TestRulesInvalidPatternDropped(t *testing.T) {
	rules := NewRules(nil, []string{"[invalid"}, nil, 0, nil)
	if rules.Excluded("anything") {
		t.Error("invalid pattern must be dropped, not match everything")
	}
}
