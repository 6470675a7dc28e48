// Carousel - Automated Collection Pinning and Rotation for Plex
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/carousel

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/carousel/internal/config"
)

// NewRouter assembles the control-surface routes with the shared
// middleware stack.
func NewRouter(cfg *config.ServerConfig, handler *Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	if len(cfg.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(httprate.LimitByIP(cfg.RateLimitReqs, cfg.RateLimitWindow))

		r.Get("/health", handler.Health)
		r.Get("/history", handler.History)

		r.Route("/worker", func(r chi.Router) {
			r.Get("/status", handler.WorkerStatus)
			r.Post("/start", handler.WorkerStart)
			r.Post("/stop", handler.WorkerStop)
			r.Post("/run", handler.WorkerRun)
		})

		r.Post("/plex/test", handler.PlexTest)
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}
