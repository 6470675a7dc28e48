// Carousel - Automated Collection Pinning and Rotation for Plex
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/carousel

package scheduler

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/carousel/internal/logging"
	"github.com/tomtom215/carousel/internal/models"
)

// StatusRecorder holds the worker's published status and mirrors it to a
// JSON file so the last known state survives restarts. Safe for concurrent
// use by the worker and the API handlers.
type StatusRecorder struct {
	mu     sync.RWMutex
	path   string
	status models.WorkerStatus
}

// NewStatusRecorder creates a recorder backed by the file at path. If the
// file holds a previous status it seeds the last-known fields, with the
// running flag cleared since no worker is running yet.
func NewStatusRecorder(path string) *StatusRecorder {
	r := &StatusRecorder{
		path:   path,
		status: models.WorkerStatus{State: models.WorkerIdle},
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return r
	}
	var prev models.WorkerStatus
	if err := json.Unmarshal(data, &prev); err != nil {
		logging.Warn().Err(err).Str("path", path).Msg("Status file corrupt, ignoring")
		return r
	}
	prev.Running = false
	if prev.State == models.WorkerRunning {
		// The previous process died mid-cycle.
		prev.State = models.WorkerStopped
	}
	r.status = prev
	return r
}

// Get returns a copy of the current status.
func (r *StatusRecorder) Get() models.WorkerStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}

// Set replaces the status and persists it.
func (r *StatusRecorder) Set(status models.WorkerStatus) {
	r.mu.Lock()
	r.status = status
	r.mu.Unlock()
	r.persist()
}

// Update applies fn to the status under the lock and persists the result.
func (r *StatusRecorder) Update(fn func(*models.WorkerStatus)) {
	r.mu.Lock()
	fn(&r.status)
	r.mu.Unlock()
	r.persist()
}

// persist writes the status file atomically. Failures are logged only;
// status persistence is convenience state, not correctness state.
func (r *StatusRecorder) persist() {
	r.mu.RLock()
	data, err := json.MarshalIndent(r.status, "", "  ")
	r.mu.RUnlock()
	if err != nil {
		logging.Warn().Err(err).Msg("Cannot marshal worker status")
		return
	}

	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		logging.Warn().Err(err).Str("path", r.path).Msg("Cannot create status directory")
		return
	}
	tmp, err := os.CreateTemp(dir, ".status-*.json")
	if err != nil {
		logging.Warn().Err(err).Msg("Cannot create temp status file")
		return
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err == nil {
		err = tmp.Close()
		if err == nil {
			err = os.Rename(tmpName, r.path)
		}
	} else {
		_ = tmp.Close()
	}
	if err != nil {
		_ = os.Remove(tmpName)
		logging.Warn().Err(err).Str("path", r.path).Msg("Cannot persist worker status")
	}
}

// nextRunAt is a small helper for publishing sleep deadlines.
func nextRunAt(t time.Time) *time.Time {
	return &t
}
