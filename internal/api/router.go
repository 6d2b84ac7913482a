// Catalogus - Media Library Synchronization Engine
// Copyright 2026 Catalogus Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/catalogus/catalogus

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/catalogus/catalogus/internal/middleware"
)

// requestTimeout bounds admin API request handling. The bounded endpoints
// either read in-memory state or answer 202 before the real work starts;
// the backup stream is exempt because it runs as long as the snapshot
// takes to write out.
const requestTimeout = 30 * time.Second

// NewRouter builds the admin API router.
func NewRouter(handler *Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		NewResponseWriter(w, req).NotFound("no such endpoint")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		NewResponseWriter(w, req).Error(http.StatusMethodNotAllowed, ErrCodeBadRequest, "method not allowed")
	})

	r.Get("/healthz", handler.Healthz)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Prometheus)

		// The snapshot goes out as stored, however long it takes.
		r.Get("/catalog/backup", handler.Backup)

		r.Group(func(r chi.Router) {
			r.Use(chimiddleware.Timeout(requestTimeout))
			r.Use(middleware.Compression)

			r.Get("/status", handler.Status)
			r.Post("/subscriptions/{id}/sync", handler.TriggerSync)
			r.Post("/subscriptions/{id}/force-sync", handler.ForceSync)
		})
	})

	return r
}
