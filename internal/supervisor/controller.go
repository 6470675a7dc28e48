// Carousel - Automated Collection Pinning and Rotation for Plex
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/carousel

package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tomtom215/carousel/internal/config"
	"github.com/tomtom215/carousel/internal/engine"
	"github.com/tomtom215/carousel/internal/history"
	"github.com/tomtom215/carousel/internal/logging"
	"github.com/tomtom215/carousel/internal/models"
	"github.com/tomtom215/carousel/internal/notify"
	"github.com/tomtom215/carousel/internal/pinner"
	"github.com/tomtom215/carousel/internal/plex"
	"github.com/tomtom215/carousel/internal/scheduler"
)

var (
	// ErrAlreadyRunning is returned by Start when a worker is active.
	ErrAlreadyRunning = errors.New("worker already running")

	// ErrNotRunning is returned by Stop and RunNow when no worker is active.
	ErrNotRunning = errors.New("worker not running")
)

// stopTimeout bounds how long Stop waits for the worker goroutine.
const stopTimeout = 30 * time.Second

// Controller owns the pinning worker's lifecycle. Exactly one worker
// goroutine exists at a time; Start refuses while one is active. A panic
// in the worker is recorded as a crash and the worker stays down until an
// operator starts it again.
type Controller struct {
	cfg      *config.Config
	client   *plex.BreakerClient
	store    *history.Store
	notifier *notify.Notifier
	status   *scheduler.StatusRecorder

	// newWorker builds the worker for one Start. Swappable under test.
	newWorker func(dryRun bool) workerRunner

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	worker  workerRunner
}

// workerRunner is the lifecycle surface the controller drives.
type workerRunner interface {
	Run(ctx context.Context)
	RunNow()
}

// NewController wires a controller from its shared dependencies.
func NewController(cfg *config.Config, client *plex.BreakerClient, store *history.Store, notifier *notify.Notifier, status *scheduler.StatusRecorder) *Controller {
	c := &Controller{
		cfg:      cfg,
		client:   client,
		store:    store,
		notifier: notifier,
		status:   status,
	}
	c.newWorker = c.buildWorker
	return c
}

// buildWorker assembles the production worker stack.
func (c *Controller) buildWorker(dryRun bool) workerRunner {
	excluded := engine.NewRules(
		c.cfg.Pinning.ExclusionList,
		c.cfg.Pinning.RegexExclusions,
		nil, 0, nil,
	).Excluded
	pin := pinner.New(c.client, c.cfg.Pinning.Label, excluded)
	eng := engine.New(&c.cfg.Pinning, nil, nil)
	return scheduler.NewWorker(c.cfg, c.client, eng, pin, c.store, c.notifier, c.status, dryRun, nil)
}

// Start launches the worker loop. dryRun overrides the configured default
// for this worker instance only.
func (c *Controller) Start(dryRun bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return ErrAlreadyRunning
	}

	worker := c.newWorker(dryRun)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	c.worker = worker
	c.cancel = cancel
	c.done = done
	c.running = true

	go c.runWorker(ctx, worker, done)

	logging.Info().Bool("dry_run", dryRun).Msg("Pinning worker started")
	return nil
}

// runWorker hosts the worker goroutine. An exit without cancellation,
// panic included, is a crash and is reported as such, never as a clean
// stop.
func (c *Controller) runWorker(ctx context.Context, worker workerRunner, done chan struct{}) {
	defer close(done)
	defer func() {
		if r := recover(); r != nil {
			logging.Error().Interface("panic", r).Msg("Pinning worker crashed")
			c.status.Update(func(s *models.WorkerStatus) {
				s.Running = false
				s.State = models.WorkerCrashed
				s.Detail = fmt.Sprintf("panic: %v", r)
				s.NextRun = nil
			})
		}
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
	}()

	worker.Run(ctx)

	if ctx.Err() == nil {
		// Run returned on its own. The loop only exits on cancellation,
		// so this is a defect worth surfacing loudly.
		logging.Error().Msg("Pinning worker exited unexpectedly")
		c.status.Update(func(s *models.WorkerStatus) {
			s.Running = false
			s.State = models.WorkerCrashed
			s.Detail = "worker loop exited without being stopped"
			s.NextRun = nil
		})
	}
}

// Stop cancels the worker and waits for it to finish in-flight work.
func (c *Controller) Stop() error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return ErrNotRunning
	}
	cancel := c.cancel
	done := c.done
	c.mu.Unlock()

	cancel()

	select {
	case <-done:
		return nil
	case <-time.After(stopTimeout):
		return fmt.Errorf("worker did not stop within %s", stopTimeout)
	}
}

// RunNow wakes a sleeping worker to run a cycle immediately.
func (c *Controller) RunNow() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running || c.worker == nil {
		return ErrNotRunning
	}
	c.worker.RunNow()
	return nil
}

// Status returns the worker's published status with the live running flag.
func (c *Controller) Status() models.WorkerStatus {
	status := c.status.Get()
	c.mu.Lock()
	status.Running = c.running
	c.mu.Unlock()
	return status
}

// TestConnection probes the Plex server outside the worker loop.
func (c *Controller) TestConnection(ctx context.Context) (string, error) {
	return c.client.TestConnection(ctx)
}

// Serve makes the controller a suture service. It auto-starts the worker
// with the configured dry-run default and blocks until shutdown, then
// stops the worker. Operator stops via the API do not terminate Serve.
func (c *Controller) Serve(ctx context.Context) error {
	if err := c.Start(c.cfg.Pinning.DryRun); err != nil && !errors.Is(err, ErrAlreadyRunning) {
		return err
	}

	<-ctx.Done()

	if err := c.Stop(); err != nil && !errors.Is(err, ErrNotRunning) {
		logging.Warn().Err(err).Msg("Worker stop during shutdown")
	}
	return ctx.Err()
}
