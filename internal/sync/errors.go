// Catalogus - Media Library Synchronization Engine
// Copyright 2026 Catalogus Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/catalogus/catalogus

package sync

import "errors"

// Sentinel errors of the synchronization engine. Callers match them with
// errors.Is; every wrapped occurrence carries the operation context.
var (
	// ErrNotAuthenticated is returned by the client request wrapper when the
	// server answers 401. Public client methods re-authenticate and retry
	// once before letting it escape.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrMissingFields marks a structurally invalid server response: a page
	// without Items or TotalRecordCount, or a views response without Items.
	// It aborts the current media-type import without retry.
	ErrMissingFields = errors.New("response missing required fields")

	// ErrNoViews is returned when view resolution for a media type yields
	// nothing, either because the server has no matching library or because
	// the configured view selection excludes them all.
	ErrNoViews = errors.New("no matching library views")

	// ErrRunInFlight rejects an import trigger for a subscription that is
	// already running or queued.
	ErrRunInFlight = errors.New("import already in flight")

	// ErrUnknownProvider and ErrUnknownSubscription reject operations on
	// identifiers the engine has no registration for.
	ErrUnknownProvider     = errors.New("unknown provider")
	ErrUnknownSubscription = errors.New("unknown subscription")

	// ErrUnsupportedMediaType rejects an import trigger naming a media type
	// outside the subscription's configured set.
	ErrUnsupportedMediaType = errors.New("unsupported media type")
)

// errCancelled unwinds a cancelled import out of the crawl loops. It never
// escapes the engine: cancellation is a clean early exit, not a failure, so
// RunImport converts it to a nil return after skipping state persistence.
var errCancelled = errors.New("import cancelled")
