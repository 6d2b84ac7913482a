// Catalogus - Media Library Synchronization Engine
// Copyright 2026 Catalogus Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/catalogus/catalogus

// Package api provides the admin HTTP surface: liveness, engine status
// and per-subscription sync triggers. Imports triggered here run in the
// background; the handlers answer 202 and the outcome lands in logs and
// metrics.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/catalogus/catalogus/internal/catalog"
	"github.com/catalogus/catalogus/internal/logging"
	"github.com/catalogus/catalogus/internal/sync"
)

// Engine is the synchronization engine surface the API serves.
//
// Satisfied by *sync.Engine.
type Engine interface {
	Providers() []sync.ProviderStatus
	Subscriptions() []sync.SubscriptionStatus
	RunImport(ctx context.Context, subscriptionID string, mediaTypes []string) error
	ForceSync(subscriptionID string) error
}

// Catalog is the store surface for status reporting and backups.
//
// Satisfied by *catalog.Store.
type Catalog interface {
	ItemCounts() (map[string]map[string]int, error)
	Fingerprint(subscriptionID string) (string, error)
	BackupTo(w io.Writer) (int64, error)
}

var (
	_ Engine  = (*sync.Engine)(nil)
	_ Catalog = (*catalog.Store)(nil)
)

// Handler serves the admin API endpoints.
type Handler struct {
	engine  Engine
	catalog Catalog
	version string
	started time.Time
}

// NewHandler creates the admin API handler.
func NewHandler(engine Engine, catalog Catalog, version string) *Handler {
	return &Handler{
		engine:  engine,
		catalog: catalog,
		version: version,
		started: time.Now(),
	}
}

// Healthz reports process liveness.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(map[string]interface{}{
		"status":         "ok",
		"version":        h.version,
		"uptime_seconds": int64(time.Since(h.started).Seconds()),
	})
}

// subscriptionStatus augments the engine's view with catalog-derived
// fields for the status endpoint.
type subscriptionStatus struct {
	sync.SubscriptionStatus
	Items          int  `json:"items"`
	FingerprintSet bool `json:"fingerprint_set"`
}

type statusResponse struct {
	Providers     []sync.ProviderStatus `json:"providers"`
	Subscriptions []subscriptionStatus  `json:"subscriptions"`
}

// Status reports every provider's channel state and every subscription's
// sync state and stored item counts.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	counts, err := h.catalog.ItemCounts()
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("Catalog count failed")
		rw.InternalError("counting catalog items failed")
		return
	}

	subs := h.engine.Subscriptions()
	out := make([]subscriptionStatus, 0, len(subs))
	for _, sub := range subs {
		items := 0
		for _, mt := range sub.MediaTypes {
			items += counts[sub.Provider][mt]
		}

		fp, err := h.catalog.Fingerprint(sub.ID)
		if err != nil {
			logging.Ctx(r.Context()).Warn().Str("subscription", sub.ID).Err(err).Msg("Fingerprint lookup failed")
		}

		out = append(out, subscriptionStatus{
			SubscriptionStatus: sub,
			Items:              items,
			FingerprintSet:     fp != "",
		})
	}

	rw.Success(statusResponse{
		Providers:     h.engine.Providers(),
		Subscriptions: out,
	})
}

// TriggerSync starts an import for one subscription in the background.
// The optional body narrows the run to a subset of the subscription's
// media types. Answers 202 once the run is launched, 409 while an import
// for the subscription is already in flight.
func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	id := chi.URLParam(r, "id")

	req, apiErr := decodeSyncRequest(r)
	if apiErr != nil {
		rw.ValidationError(apiErr.Message, apiErr.Details)
		return
	}

	sub, ok := h.findSubscription(id)
	if !ok {
		rw.NotFound("unknown subscription: " + id)
		return
	}
	if sub.Running {
		rw.Conflict("an import for " + id + " is already running")
		return
	}
	for _, mt := range req.MediaTypes {
		if !slices.Contains(sub.MediaTypes, mt) {
			rw.BadRequest("subscription " + id + " does not include media type " + mt)
			return
		}
	}

	h.launchImport(r, id, req.MediaTypes)
	rw.Accepted(map[string]interface{}{
		"subscription": id,
		"media_types":  req.MediaTypes,
	})
}

// ForceSync clears the subscription's incremental baseline and starts an
// import, guaranteeing a full crawl.
func (h *Handler) ForceSync(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	id := chi.URLParam(r, "id")

	sub, ok := h.findSubscription(id)
	if !ok {
		rw.NotFound("unknown subscription: " + id)
		return
	}
	if sub.Running {
		rw.Conflict("an import for " + id + " is already running")
		return
	}

	if err := h.engine.ForceSync(id); err != nil {
		if errors.Is(err, sync.ErrUnknownSubscription) {
			rw.NotFound("unknown subscription: " + id)
			return
		}
		logging.Ctx(r.Context()).Error().Str("subscription", id).Err(err).Msg("Clearing sync baseline failed")
		rw.InternalError("clearing sync baseline failed")
		return
	}

	h.launchImport(r, id, nil)
	rw.Accepted(map[string]interface{}{
		"subscription": id,
		"full":         true,
	})
}

// Backup streams a hot snapshot of the catalog database. The snapshot is
// a complete, openable database file.
func (h *Handler) Backup(w http.ResponseWriter, r *http.Request) {
	filename := fmt.Sprintf("catalogus-%s.db", time.Now().UTC().Format("20060102T150405Z"))
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))

	n, err := h.catalog.BackupTo(w)
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Int64("bytes", n).Msg("Catalog backup failed")
		if n == 0 {
			// Nothing written yet, the error envelope can still go out.
			w.Header().Del("Content-Disposition")
			NewResponseWriter(w, r).InternalError("catalog snapshot failed")
		}
		return
	}
	logging.Ctx(r.Context()).Info().Int64("bytes", n).Str("filename", filename).Msg("Catalog backup streamed")
}

func (h *Handler) findSubscription(id string) (sync.SubscriptionStatus, bool) {
	for _, sub := range h.engine.Subscriptions() {
		if sub.ID == id {
			return sub, true
		}
	}
	return sync.SubscriptionStatus{}, false
}

// launchImport runs the import detached from the request. The caller has
// already answered 202, so failures surface through logs and metrics; the
// originating request id is kept on those log lines.
func (h *Handler) launchImport(r *http.Request, id string, mediaTypes []string) {
	requestID := logging.RequestIDFromContext(r.Context())
	go func() {
		err := h.engine.RunImport(context.Background(), id, mediaTypes)
		switch {
		case err == nil:
		case errors.Is(err, sync.ErrRunInFlight):
			logging.Warn().Str("subscription", id).Str("request_id", requestID).
				Msg("Triggered import lost the race to a concurrent run")
		default:
			logging.Error().Str("subscription", id).Str("request_id", requestID).Err(err).
				Msg("Triggered import failed")
		}
	}()
}
