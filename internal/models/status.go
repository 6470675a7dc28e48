// Carousel - Automated Collection Pinning and Rotation for Plex
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/carousel

package models

import "time"

// WorkerState is the last known state of the pinning worker, as reported
// to the control surface.
type WorkerState string

const (
	// WorkerIdle means the worker has never been started or was stopped
	// cleanly via the control surface.
	WorkerIdle WorkerState = "idle"

	// WorkerRunning means a cycle is executing right now.
	WorkerRunning WorkerState = "running"

	// WorkerCompleted means the most recent cycle finished without error.
	WorkerCompleted WorkerState = "completed"

	// WorkerError means the most recent cycle recorded an error but the
	// worker loop is still alive.
	WorkerError WorkerState = "error"

	// WorkerStopped means the worker was terminated by an explicit stop.
	WorkerStopped WorkerState = "stopped"

	// WorkerCrashed means the worker loop exited without an explicit stop.
	// It is never silently reclassified as stopped.
	WorkerCrashed WorkerState = "crashed"
)

// WorkerStatus is the supervisor-owned view of the worker, read-only to
// external callers. NextRun is recomputed once per cycle boundary.
type WorkerStatus struct {
	Running bool        `json:"running"`
	State   WorkerState `json:"last_known_status"`
	Detail  string      `json:"detail,omitempty"`
	NextRun *time.Time  `json:"next_run_timestamp,omitempty"`
	DryRun  bool        `json:"dry_run"`
}

// SyncResult summarizes the pin synchronizer's work for one library.
type SyncResult struct {
	Library   string    `json:"library"`
	Pinned    []string  `json:"pinned"`
	Unpinned  []string  `json:"unpinned"`
	Skipped   []string  `json:"skipped,omitempty"`
	Failed    []string  `json:"failed,omitempty"`
	DryRun    bool      `json:"dry_run"`
	Notified  int       `json:"notified"`
	StartedAt time.Time `json:"started_at"`
}
