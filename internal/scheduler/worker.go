// Carousel - Automated Collection Pinning and Rotation for Plex
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/carousel

// Package scheduler runs the pinning worker loop: one cycle per configured
// interval, each cycle processing every configured library through the
// selection engine and the pinner, then sleeping until the next run or an
// explicit wake.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/carousel/internal/config"
	"github.com/tomtom215/carousel/internal/engine"
	"github.com/tomtom215/carousel/internal/history"
	"github.com/tomtom215/carousel/internal/logging"
	"github.com/tomtom215/carousel/internal/metrics"
	"github.com/tomtom215/carousel/internal/models"
	"github.com/tomtom215/carousel/internal/notify"
	"github.com/tomtom215/carousel/internal/pinner"
	"github.com/tomtom215/carousel/internal/plex"
)

// libraryTimeout bounds how long one library may hold a cycle, covering
// the snapshot, plan, and apply phases together.
const libraryTimeout = 5 * time.Minute

// LibraryReader is the slice of the Plex client the worker needs to take
// library snapshots.
type LibraryReader interface {
	SectionByTitle(ctx context.Context, title string) (*plex.Section, error)
	Collections(ctx context.Context, section *plex.Section) ([]models.Collection, error)
}

// Worker executes pinning cycles until its context is cancelled.
type Worker struct {
	cfg      *config.Config
	client   LibraryReader
	engine   *engine.Engine
	pinner   *pinner.Pinner
	store    *history.Store
	notifier *notify.Notifier
	status   *StatusRecorder
	dryRun   bool
	wake     chan struct{}
	now      func() time.Time
}

// NewWorker assembles a worker. A nil now falls back to time.Now.
func NewWorker(cfg *config.Config, client LibraryReader, eng *engine.Engine, pin *pinner.Pinner, store *history.Store, notifier *notify.Notifier, status *StatusRecorder, dryRun bool, now func() time.Time) *Worker {
	if now == nil {
		now = time.Now
	}
	return &Worker{
		cfg:      cfg,
		client:   client,
		engine:   eng,
		pinner:   pin,
		store:    store,
		notifier: notifier,
		status:   status,
		dryRun:   dryRun,
		wake:     make(chan struct{}, 1),
		now:      now,
	}
}

// RunNow wakes a sleeping worker early. Safe to call at any time; a wake
// already pending is not duplicated.
func (w *Worker) RunNow() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Run executes cycles until ctx is cancelled, then publishes the stopped
// state. A panic inside a cycle escapes to the caller, which records the
// crash; Run itself never converts a panic into a clean stop.
func (w *Worker) Run(ctx context.Context) {
	interval := w.cfg.Pinning.Interval

	for {
		// Publish a projected next run immediately so a status query
		// during a long cycle is never empty. The cycle completion
		// recomputes it from the actual finish time.
		w.status.Update(func(s *models.WorkerStatus) {
			s.Running = true
			s.State = models.WorkerRunning
			s.Detail = ""
			s.DryRun = w.dryRun
			s.NextRun = nextRunAt(w.now().Add(interval))
		})

		start := w.now()
		err := w.runCycle(ctx)
		metrics.CycleDuration.Observe(time.Since(start).Seconds())

		next := w.now().Add(interval)
		switch {
		case err != nil && errors.Is(err, context.Canceled):
			w.publishStopped()
			return
		case err != nil:
			metrics.CyclesTotal.WithLabelValues("error").Inc()
			logging.Error().Err(err).Msg("Pinning cycle failed")
			w.status.Update(func(s *models.WorkerStatus) {
				s.State = models.WorkerError
				s.Detail = err.Error()
				s.NextRun = nextRunAt(next)
			})
		default:
			metrics.CyclesTotal.WithLabelValues("success").Inc()
			w.status.Update(func(s *models.WorkerStatus) {
				s.State = models.WorkerCompleted
				s.Detail = ""
				s.NextRun = nextRunAt(next)
			})
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			w.publishStopped()
			return
		case <-w.wake:
			timer.Stop()
			logging.Info().Msg("Wake requested, starting cycle early")
		case <-timer.C:
		}
	}
}

func (w *Worker) publishStopped() {
	w.status.Update(func(s *models.WorkerStatus) {
		s.Running = false
		s.State = models.WorkerStopped
		s.NextRun = nil
	})
	logging.Info().Msg("Pinning worker stopped")
}

// runCycle processes every configured library once. Per-library failures
// are collected so one unreachable library does not skip the rest, but a
// cancelled context aborts immediately.
func (w *Worker) runCycle(ctx context.Context) error {
	now := w.now()
	log := logging.With().Str("cycle_id", uuid.NewString()).Logger()
	log.Info().Bool("dry_run", w.dryRun).Int("libraries", len(w.cfg.Pinning.Libraries)).Msg("Starting pinning cycle")

	var cycleErrs []error
	historyDirty := false

	for _, library := range w.cfg.Pinning.Libraries {
		if err := ctx.Err(); err != nil {
			return err
		}

		budget := w.cfg.Pinning.BudgetFor(library)
		if budget <= 0 {
			log.Debug().Str("library", library).Msg("Library has no pin budget, skipping")
			continue
		}

		result, recorded, err := w.processLibrary(ctx, library, budget, now)
		if err != nil {
			cycleErrs = append(cycleErrs, fmt.Errorf("library %q: %w", library, err))
			continue
		}
		historyDirty = historyDirty || recorded

		log.Info().
			Str("library", library).
			Int("pinned", len(result.Pinned)).
			Int("unpinned", len(result.Unpinned)).
			Int("skipped", len(result.Skipped)).
			Int("failed", len(result.Failed)).
			Bool("dry_run", result.DryRun).
			Msg("Library cycle complete")
	}

	// Repeat blocking disabled means history only accumulates, so prune
	// on the reset horizon to keep the file bounded.
	if w.cfg.Pinning.RepeatBlock <= 0 && w.cfg.Pinning.ResetHorizon > 0 {
		if removed := w.store.Prune(w.cfg.Pinning.ResetHorizon, now); removed > 0 {
			historyDirty = true
			log.Debug().Int("removed", removed).Msg("Pruned stale pin history")
		}
	}

	if historyDirty && !w.dryRun {
		if err := w.store.Save(); err != nil {
			cycleErrs = append(cycleErrs, fmt.Errorf("save pin history: %w", err))
		}
	}

	return errors.Join(cycleErrs...)
}

// processLibrary snapshots one library, builds its plan, and applies it.
// It reports whether new history entries were recorded.
func (w *Worker) processLibrary(ctx context.Context, library string, budget int, now time.Time) (models.SyncResult, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, libraryTimeout)
	defer cancel()

	section, err := w.client.SectionByTitle(ctx, library)
	if err != nil {
		return models.SyncResult{}, false, err
	}

	collections, err := w.client.Collections(ctx, section)
	if err != nil {
		return models.SyncResult{}, false, err
	}

	recent := map[string]struct{}{}
	if w.cfg.Pinning.RepeatBlock > 0 {
		recent = w.store.RecentTitles(library, w.cfg.Pinning.RepeatBlock, now)
	}

	plan := w.engine.BuildPlan(engine.Input{
		Library:     library,
		Collections: collections,
		Budget:      budget,
		Recent:      recent,
	})

	result := w.pinner.Apply(ctx, section, plan, collections, w.dryRun)
	result.StartedAt = now

	recorded := false
	if !w.dryRun {
		if randoms := plan.RandomPicks(); len(randoms) > 0 {
			w.store.Record(library, randoms, now)
			recorded = true
		}
	}

	if !w.dryRun && len(result.Pinned) > 0 {
		picks := pinnedPicks(plan, result.Pinned)
		if w.notifier.NotifyPinned(ctx, library, picks) {
			result.Notified = len(picks)
		}
	}

	return result, recorded, nil
}

// pinnedPicks filters a plan down to the titles the synchronizer actually
// pinned, so notifications never announce skipped or failed picks.
func pinnedPicks(plan models.PinPlan, pinned []string) []models.Pick {
	set := make(map[string]struct{}, len(pinned))
	for _, title := range pinned {
		set[title] = struct{}{}
	}
	picks := make([]models.Pick, 0, len(pinned))
	for _, pick := range plan.Picks {
		if _, ok := set[pick.Title]; ok {
			picks = append(picks, pick)
		}
	}
	return picks
}
