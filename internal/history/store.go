// Carousel - Automated Collection Pinning and Rotation for Plex
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/carousel

// Package history persists which collections were randomly pinned and when,
// so the rotation engine can block recent repeats. The store is a single
// JSON file keyed library -> collection title -> last pin timestamp.
//
// The store fails open: a missing or corrupt file yields an empty history
// rather than an error, because blocking the worker over lost repeat-block
// state would be worse than an occasional early repeat.
package history

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/carousel/internal/logging"
	"github.com/tomtom215/carousel/internal/metrics"
)

// Store tracks random-pick pin timestamps per library. Safe for concurrent
// use; the worker and the history API endpoint may read simultaneously.
type Store struct {
	mu      sync.RWMutex
	path    string
	entries map[string]map[string]time.Time
}

// Entry is one history record as exposed by the API.
type Entry struct {
	Library  string    `json:"library"`
	Title    string    `json:"title"`
	PinnedAt time.Time `json:"pinned_at"`
}

// NewStore creates a store backed by the JSON file at path and loads any
// existing history from it.
func NewStore(path string) *Store {
	s := &Store{
		path:    path,
		entries: make(map[string]map[string]time.Time),
	}
	s.load()
	return s
}

// load reads the backing file into memory. Missing or unreadable files
// leave the store empty.
func (s *Store) load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			logging.Warn().Err(err).Str("path", s.path).Msg("Cannot read pin history, starting empty")
		}
		return
	}

	var entries map[string]map[string]time.Time
	if err := json.Unmarshal(data, &entries); err != nil {
		logging.Warn().Err(err).Str("path", s.path).Msg("Pin history corrupt, starting empty")
		return
	}

	s.mu.Lock()
	s.entries = entries
	if s.entries == nil {
		s.entries = make(map[string]map[string]time.Time)
	}
	s.mu.Unlock()

	metrics.HistoryEntries.Set(float64(s.count()))
	logging.Info().Str("path", s.path).Int("entries", s.count()).Msg("Loaded pin history")
}

// Save writes the history atomically via a temp file in the same directory.
func (s *Store) Save() error {
	s.mu.RLock()
	data, err := json.MarshalIndent(s.entries, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("marshal pin history: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create history directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".pin_history-*.json")
	if err != nil {
		return fmt.Errorf("create temp history file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp history file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp history file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace history file: %w", err)
	}
	return nil
}

// Record stores now as the pin timestamp for each title in a library.
// Only random-fill picks are recorded; callers filter before calling.
func (s *Store) Record(library string, titles []string, now time.Time) {
	if len(titles) == 0 {
		return
	}
	s.mu.Lock()
	lib := s.entries[library]
	if lib == nil {
		lib = make(map[string]time.Time)
		s.entries[library] = lib
	}
	for _, title := range titles {
		lib[title] = now
	}
	s.mu.Unlock()

	metrics.HistoryEntries.Set(float64(s.count()))
}

// RecentTitles returns the titles in a library pinned within the window
// ending at now.
func (s *Store) RecentTitles(library string, window time.Duration, now time.Time) map[string]struct{} {
	cutoff := now.Add(-window)

	s.mu.RLock()
	defer s.mu.RUnlock()

	recent := make(map[string]struct{})
	for title, pinnedAt := range s.entries[library] {
		if pinnedAt.After(cutoff) {
			recent[title] = struct{}{}
		}
	}
	return recent
}

// Prune drops entries older than the horizon ending at now and reports how
// many were removed.
func (s *Store) Prune(horizon time.Duration, now time.Time) int {
	cutoff := now.Add(-horizon)
	removed := 0

	s.mu.Lock()
	for library, titles := range s.entries {
		for title, pinnedAt := range titles {
			if !pinnedAt.After(cutoff) {
				delete(titles, title)
				removed++
			}
		}
		if len(titles) == 0 {
			delete(s.entries, library)
		}
	}
	s.mu.Unlock()

	if removed > 0 {
		metrics.HistoryEntries.Set(float64(s.count()))
	}
	return removed
}

// Entries returns all records sorted newest first, for the history API.
func (s *Store) Entries() []Entry {
	s.mu.RLock()
	out := make([]Entry, 0, 32)
	for library, titles := range s.entries {
		for title, pinnedAt := range titles {
			out = append(out, Entry{Library: library, Title: title, PinnedAt: pinnedAt})
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].PinnedAt.Equal(out[j].PinnedAt) {
			return out[i].PinnedAt.After(out[j].PinnedAt)
		}
		return out[i].Title < out[j].Title
	})
	return out
}

// count returns the total number of records. Callers must not hold the lock.
func (s *Store) count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, titles := range s.entries {
		n += len(titles)
	}
	return n
}
