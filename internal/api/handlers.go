// Carousel - Automated Collection Pinning and Rotation for Plex
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/carousel

// Package api exposes the control surface: worker lifecycle, connectivity
// probe, pin history, health, and Prometheus metrics.
package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/carousel/internal/history"
	"github.com/tomtom215/carousel/internal/logging"
	"github.com/tomtom215/carousel/internal/models"
	"github.com/tomtom215/carousel/internal/supervisor"
)

// probeTimeout bounds the Plex connectivity test triggered via the API.
const probeTimeout = 15 * time.Second

// WorkerController is the slice of the supervisor controller the API
// needs.
type WorkerController interface {
	Start(dryRun bool) error
	Stop() error
	RunNow() error
	Status() models.WorkerStatus
	TestConnection(ctx context.Context) (string, error)
}

// Handler serves the control-surface endpoints.
type Handler struct {
	controller WorkerController
	store      *history.Store
	version    string
	started    time.Time
}

// NewHandler creates the API handler set.
func NewHandler(controller WorkerController, store *history.Store, version string) *Handler {
	return &Handler{
		controller: controller,
		store:      store,
		version:    version,
		started:    time.Now(),
	}
}

// Health reports process liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondSuccess(w, http.StatusOK, map[string]interface{}{
		"status":         "ok",
		"version":        h.version,
		"uptime_seconds": int64(time.Since(h.started).Seconds()),
	})
}

// WorkerStatus returns the worker's last known state.
func (h *Handler) WorkerStatus(w http.ResponseWriter, r *http.Request) {
	respondSuccess(w, http.StatusOK, h.controller.Status())
}

// startRequest is the optional body for WorkerStart.
type startRequest struct {
	DryRun bool `json:"dry_run"`
}

// WorkerStart launches the pinning worker. A second start while one is
// running is a conflict, not a restart.
func (h *Handler) WorkerStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if r.Body != nil {
		body, err := io.ReadAll(io.LimitReader(r.Body, 4096))
		if err == nil && len(body) > 0 {
			if err := json.Unmarshal(body, &req); err != nil {
				respondError(w, http.StatusBadRequest, "invalid_request", "request body must be JSON")
				return
			}
		}
	}

	if err := h.controller.Start(req.DryRun); err != nil {
		if errors.Is(err, supervisor.ErrAlreadyRunning) {
			respondError(w, http.StatusConflict, "already_running", "worker is already running")
			return
		}
		respondError(w, http.StatusInternalServerError, "start_failed", err.Error())
		return
	}

	logging.Info().Bool("dry_run", req.DryRun).Str("remote", sanitizeLogValue(r.RemoteAddr)).Msg("Worker start requested")
	respondSuccess(w, http.StatusOK, h.controller.Status())
}

// WorkerStop stops the running worker.
func (h *Handler) WorkerStop(w http.ResponseWriter, r *http.Request) {
	if err := h.controller.Stop(); err != nil {
		if errors.Is(err, supervisor.ErrNotRunning) {
			respondError(w, http.StatusConflict, "not_running", "worker is not running")
			return
		}
		respondError(w, http.StatusInternalServerError, "stop_failed", err.Error())
		return
	}

	logging.Info().Str("remote", sanitizeLogValue(r.RemoteAddr)).Msg("Worker stop requested")
	respondSuccess(w, http.StatusOK, h.controller.Status())
}

// WorkerRun wakes a sleeping worker for an immediate cycle.
func (h *Handler) WorkerRun(w http.ResponseWriter, r *http.Request) {
	if err := h.controller.RunNow(); err != nil {
		if errors.Is(err, supervisor.ErrNotRunning) {
			respondError(w, http.StatusConflict, "not_running", "worker is not running")
			return
		}
		respondError(w, http.StatusInternalServerError, "run_failed", err.Error())
		return
	}
	respondSuccess(w, http.StatusAccepted, h.controller.Status())
}

// PlexTest probes the configured Plex server.
func (h *Handler) PlexTest(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
	defer cancel()

	version, err := h.controller.TestConnection(ctx)
	if err != nil {
		respondSuccess(w, http.StatusOK, models.ConnectionTestResult{
			Success: false,
			Message: err.Error(),
		})
		return
	}
	respondSuccess(w, http.StatusOK, models.ConnectionTestResult{
		Success: true,
		Message: "connected to Plex Media Server " + version,
	})
}

// History returns all recorded random pins, newest first.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	respondSuccess(w, http.StatusOK, h.store.Entries())
}
