// Carousel - Automated Collection Pinning and Rotation for Plex
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/carousel

// Package main is the entry point for the Carousel server.
//
// Carousel keeps a Plex home screen fresh by pinning a rotating selection
// of collections on a schedule. Each cycle it pins active special
// collections first, then configured categories, then fills the remaining
// budget with random picks that have not been pinned recently.
//
// The server initializes components in the following order:
//
//  1. Configuration: layered env/file/defaults via Koanf v2
//  2. Pin history: the JSON repeat-block store
//  3. Plex client: token-authenticated with circuit breaker protection
//  4. Worker controller: owns the pinning loop's lifecycle
//  5. Supervision tree: worker layer and API layer under suture
//  6. HTTP server: control surface plus Prometheus metrics
//
// Configuration is loaded via Koanf v2 with layered sources (highest
// priority wins): environment variables, config file (config.yaml),
// built-in defaults.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/tomtom215/carousel/internal/api"
	"github.com/tomtom215/carousel/internal/config"
	"github.com/tomtom215/carousel/internal/history"
	"github.com/tomtom215/carousel/internal/logging"
	"github.com/tomtom215/carousel/internal/notify"
	"github.com/tomtom215/carousel/internal/plex"
	"github.com/tomtom215/carousel/internal/scheduler"
	"github.com/tomtom215/carousel/internal/supervisor"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Configuration invalid")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	logging.Info().Str("version", version).Msg("Carousel starting")

	store := history.NewStore(cfg.History.Path)
	status := scheduler.NewStatusRecorder(cfg.History.StatusPath)
	notifier := notify.New(cfg.Notify)
	client := plex.NewBreakerClient(plex.NewClient(cfg.Plex.URL, cfg.Plex.Token, cfg.Plex.Timeout))
	controller := supervisor.NewController(cfg, client, store, notifier, status)

	handler := api.NewHandler(controller, store, version)
	server := api.NewServer(&cfg.Server, api.NewRouter(&cfg.Server, handler))

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddWorkerService(controller)
	tree.AddAPIService(server)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("Supervision tree exited")
		os.Exit(1)
	}

	if report, err := tree.UnstoppedServiceReport(); err == nil && len(report) > 0 {
		logging.Warn().Int("services", len(report)).Msg("Some services missed the shutdown timeout")
	}
	logging.Info().Msg("Carousel stopped")
}
