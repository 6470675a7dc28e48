// Carousel - Automated Collection Pinning and Rotation for Plex
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/carousel

package models

import (
	"fmt"
	"time"
)

// MonthDay is a recurring calendar date without a year ("MM-DD").
// Special periods are defined with month-day boundaries so that they
// recur every year.
type MonthDay struct {
	Month time.Month
	Day   int
}

// ParseMonthDay parses an "MM-DD" string into a MonthDay.
// The day range is validated against a leap year so 02-29 is accepted.
func ParseMonthDay(s string) (MonthDay, error) {
	t, err := time.Parse("01-02", s)
	if err != nil {
		return MonthDay{}, fmt.Errorf("invalid month-day %q (want MM-DD): %w", s, err)
	}
	return MonthDay{Month: t.Month(), Day: t.Day()}, nil
}

// String renders the month-day back to "MM-DD".
func (md MonthDay) String() string {
	return fmt.Sprintf("%02d-%02d", int(md.Month), md.Day)
}

// ordinal maps the month-day onto a comparable day-of-year scale.
// Using a fixed 31-day month grid keeps ordering correct without caring
// about actual month lengths.
func (md MonthDay) ordinal() int {
	return int(md.Month)*31 + md.Day
}

// SpecialPeriod is a recurring date window during which a fixed set of
// collections is forcibly pinned, overriding budgets and exclusions.
type SpecialPeriod struct {
	Start       MonthDay
	End         MonthDay
	Collections []string
}

// ActiveOn reports whether the period covers the given date. Both
// boundaries are inclusive. When End sorts before Start the window wraps
// year-end: 12-20..01-05 is active on 12-25 and on 01-02.
func (p SpecialPeriod) ActiveOn(date time.Time) bool {
	today := MonthDay{Month: date.Month(), Day: date.Day()}.ordinal()
	start := p.Start.ordinal()
	end := p.End.ordinal()

	if start > end {
		return today >= start || today <= end
	}
	return today >= start && today <= end
}

// ActiveSpecialTitles collects the unique titles of every period active on
// the given date. Periods are evaluated independently and may overlap.
func ActiveSpecialTitles(periods []SpecialPeriod, date time.Time) map[string]struct{} {
	active := make(map[string]struct{})
	for _, p := range periods {
		if !p.ActiveOn(date) {
			continue
		}
		for _, title := range p.Collections {
			if title != "" {
				active[title] = struct{}{}
			}
		}
	}
	return active
}

// AllSpecialTitles collects every title named by any period, active or not.
// Titles defined in an inactive period are excluded from rotation so they
// only ever appear during their window.
func AllSpecialTitles(periods []SpecialPeriod) map[string]struct{} {
	all := make(map[string]struct{})
	for _, p := range periods {
		for _, title := range p.Collections {
			if title != "" {
				all[title] = struct{}{}
			}
		}
	}
	return all
}

// Category is a named, library-scoped group of collections with its own
// pin budget. PinCount 0 disables the category without deleting it.
type Category struct {
	Name        string   `json:"name" koanf:"name"`
	PinCount    int      `json:"pin_count" koanf:"pin_count"`
	Collections []string `json:"collections" koanf:"collections"`
}

// Enabled reports whether the category participates in selection.
func (c Category) Enabled() bool {
	return c.PinCount > 0
}
