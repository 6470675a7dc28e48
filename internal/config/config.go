// Carousel - Automated Collection Pinning and Rotation for Plex
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/carousel

// Package config defines Carousel's configuration model and loads it via
// Koanf v2 with layered sources (defaults < YAML file < environment).
package config

import (
	"fmt"
	"regexp"
	"time"

	"github.com/tomtom215/carousel/internal/logging"
	"github.com/tomtom215/carousel/internal/models"
	"github.com/tomtom215/carousel/internal/validation"
)

// Config is the root configuration.
type Config struct {
	Plex    PlexConfig    `koanf:"plex"`
	Pinning PinningConfig `koanf:"pinning"`
	Notify  NotifyConfig  `koanf:"notify"`
	Server  ServerConfig  `koanf:"server"`
	History HistoryConfig `koanf:"history"`
	Logging LoggingConfig `koanf:"logging"`
}

// PlexConfig holds connection settings for the Plex Media Server.
type PlexConfig struct {
	URL     string        `koanf:"url" validate:"required,url"`
	Token   string        `koanf:"token" validate:"required"`
	Timeout time.Duration `koanf:"timeout" validate:"gt=0"`
}

// CategoryConfig mirrors models.Category for koanf unmarshaling.
type CategoryConfig struct {
	Name        string   `koanf:"name"`
	PinCount    int      `koanf:"pin_count" validate:"min=0"`
	Collections []string `koanf:"collections"`
}

// SpecialConfig is a raw special period entry ("MM-DD" dates).
type SpecialConfig struct {
	StartDate   string   `koanf:"start_date" validate:"required"`
	EndDate     string   `koanf:"end_date" validate:"required"`
	Collections []string `koanf:"collection_names" validate:"min=1"`
}

// PinningConfig drives the selection engine and scheduler.
type PinningConfig struct {
	// Interval between cycles.
	Interval time.Duration `koanf:"interval" validate:"gt=0"`

	// Libraries lists the library section names to process.
	Libraries []string `koanf:"libraries" validate:"min=1"`

	// PinsPerLibrary maps library name to its rotation pin budget.
	// A budget of 0 skips the library.
	PinsPerLibrary map[string]int `koanf:"pins_per_library"`

	// Label is the managed label applied to every pinned collection so the
	// synchronizer can tell Carousel pins from manual ones.
	Label string `koanf:"label" validate:"required"`

	// MinItems excludes collections with fewer items, except active specials.
	MinItems int `koanf:"min_items" validate:"min=0"`

	// RepeatBlock is how long a random-fill pick stays ineligible for
	// another random-fill pick. Zero disables repeat blocking.
	RepeatBlock time.Duration `koanf:"repeat_block" validate:"min=0"`

	// ResetHorizon is the prune horizon for stale history entries when
	// repeat blocking is disabled.
	ResetHorizon time.Duration `koanf:"reset_horizon" validate:"min=0"`

	// ExclusionList holds exact titles never pinned or unpinned.
	ExclusionList []string `koanf:"exclusion_list"`

	// RegexExclusions holds case-insensitive patterns; matching titles are
	// excluded from rotation. Invalid patterns are warned about and skipped.
	RegexExclusions []string `koanf:"regex_exclusions"`

	// InclusionList, when non-empty, restricts rotation to these titles.
	// Exclusion always wins over inclusion.
	InclusionList []string `koanf:"inclusion_list"`

	// Specials defines recurring month-day promotion windows.
	Specials []SpecialConfig `koanf:"special_collections"`

	// Categories maps library name to its ordered category definitions.
	Categories map[string][]CategoryConfig `koanf:"categories"`

	// UseRandomCategoryMode switches the category pass to picking a single
	// random category (or skipping the pass entirely).
	UseRandomCategoryMode bool `koanf:"use_random_category_mode"`

	// CategorySkipPercent is the chance (0-100) that random category mode
	// skips the category pass for a cycle.
	CategorySkipPercent int `koanf:"category_skip_percent" validate:"min=0,max=100"`

	// DryRun starts the worker in dry-run mode by default.
	DryRun bool `koanf:"dry_run"`
}

// NotifyConfig configures the outbound webhook notifier.
type NotifyConfig struct {
	WebhookURL string        `koanf:"webhook_url" validate:"omitempty,url"`
	Timeout    time.Duration `koanf:"timeout" validate:"gt=0"`

	// RatePerMinute bounds notification sends so a burst of pins cannot
	// trip the webhook provider's limits.
	RatePerMinute int `koanf:"rate_per_minute" validate:"min=1"`
}

// ServerConfig configures the control-surface HTTP server.
type ServerConfig struct {
	Host        string        `koanf:"host"`
	Port        int           `koanf:"port" validate:"min=1,max=65535"`
	Timeout     time.Duration `koanf:"timeout" validate:"gt=0"`
	CORSOrigins []string      `koanf:"cors_origins"`

	// RateLimitReqs requests per RateLimitWindow per client IP.
	RateLimitReqs   int           `koanf:"rate_limit_reqs" validate:"min=1"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window" validate:"gt=0"`
}

// HistoryConfig locates the pin-history and status state files.
type HistoryConfig struct {
	Path       string `koanf:"path" validate:"required"`
	StatusPath string `koanf:"status_path" validate:"required"`
}

// LoggingConfig configures the global logger.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// Validate checks struct tags and the semantic rules that tags cannot
// express. Config inconsistencies that would only degrade one entry
// (bad regex, bad date, category for an unknown library) are warnings:
// the offending entry is dropped rather than failing startup.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(c); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}

	c.Pinning.RegexExclusions = filterValidPatterns(c.Pinning.RegexExclusions)
	c.Pinning.Specials = filterValidSpecials(c.Pinning.Specials)
	c.warnUnknownCategoryLibraries()

	return nil
}

// filterValidPatterns drops regex patterns that do not compile.
func filterValidPatterns(patterns []string) []string {
	valid := patterns[:0]
	for _, p := range patterns {
		if p == "" {
			continue
		}
		if _, err := regexp.Compile("(?i)" + p); err != nil {
			logging.Warn().Str("pattern", p).Err(err).Msg("Ignoring invalid exclusion regex")
			continue
		}
		valid = append(valid, p)
	}
	return valid
}

// filterValidSpecials drops entries whose dates do not parse as MM-DD.
func filterValidSpecials(specials []SpecialConfig) []SpecialConfig {
	valid := specials[:0]
	for _, s := range specials {
		if _, err := models.ParseMonthDay(s.StartDate); err != nil {
			logging.Warn().Str("start_date", s.StartDate).Err(err).Msg("Ignoring special period with invalid start date")
			continue
		}
		if _, err := models.ParseMonthDay(s.EndDate); err != nil {
			logging.Warn().Str("end_date", s.EndDate).Err(err).Msg("Ignoring special period with invalid end date")
			continue
		}
		valid = append(valid, s)
	}
	return valid
}

func (c *Config) warnUnknownCategoryLibraries() {
	known := make(map[string]struct{}, len(c.Pinning.Libraries))
	for _, lib := range c.Pinning.Libraries {
		known[lib] = struct{}{}
	}
	for lib := range c.Pinning.Categories {
		if _, ok := known[lib]; !ok {
			logging.Warn().Str("library", lib).Msg("Categories reference a library not in pinning.libraries; they will never be used")
		}
	}
}

// SpecialPeriods converts the validated raw special entries to model form.
// Call after Validate; entries that fail to parse are skipped.
func (p *PinningConfig) SpecialPeriods() []models.SpecialPeriod {
	periods := make([]models.SpecialPeriod, 0, len(p.Specials))
	for _, s := range p.Specials {
		start, err := models.ParseMonthDay(s.StartDate)
		if err != nil {
			continue
		}
		end, err := models.ParseMonthDay(s.EndDate)
		if err != nil {
			continue
		}
		periods = append(periods, models.SpecialPeriod{
			Start:       start,
			End:         end,
			Collections: s.Collections,
		})
	}
	return periods
}

// CategoriesFor returns the model categories configured for a library,
// in their configured order.
func (p *PinningConfig) CategoriesFor(library string) []models.Category {
	raw := p.Categories[library]
	cats := make([]models.Category, 0, len(raw))
	for _, rc := range raw {
		if rc.Name == "" || len(rc.Collections) == 0 {
			logging.Warn().Str("library", library).Str("category", rc.Name).Msg("Ignoring category with missing name or collections")
			continue
		}
		cats = append(cats, models.Category{
			Name:        rc.Name,
			PinCount:    rc.PinCount,
			Collections: rc.Collections,
		})
	}
	return cats
}

// BudgetFor returns the rotation pin budget for a library (0 = skip).
func (p *PinningConfig) BudgetFor(library string) int {
	n := p.PinsPerLibrary[library]
	if n < 0 {
		return 0
	}
	return n
}
