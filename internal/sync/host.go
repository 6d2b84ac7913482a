// Catalogus - Media Library Synchronization Engine
// Copyright 2026 Catalogus Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/catalogus/catalogus

/*
host.go - Host Interfaces

The engine never owns persistent state directly. Everything it keeps across
runs goes through these three interfaces: the catalog holds imported items,
the sync state store holds per-subscription fingerprints and timestamps, and
the progress reporter carries cancellation and human-readable progress.

internal/catalog implements Catalog and SyncStateStore over bbolt; tests
substitute in-memory fakes.
*/

package sync

import (
	"time"

	"github.com/catalogus/catalogus/internal/models"
)

// Catalog is the engine's view of the local item store.
//
// ApplyChangeset must be idempotent per RemoteID: applying the same batch
// twice leaves the catalog in the same state. Added and Updated are both
// upserts; Removed deletes and is a no-op for absent items.
type Catalog interface {
	// ImportedItems returns every stored item for one provider and media
	// type. The engine only reads the result; mutation happens exclusively
	// through ApplyChangeset and PruneMissing.
	ImportedItems(provider, mediaType string) ([]models.CatalogItem, error)

	// ApplyChangeset applies one batch of changes for a subscription.
	ApplyChangeset(subscriptionID string, changes []models.ItemChange) error

	// PruneMissing deletes stored items of one provider and media type
	// whose RemoteID is not in seen, returning the number deleted. The
	// engine calls it only after a complete, uncancelled full crawl;
	// fast syncs and aborted runs never prune.
	PruneMissing(provider, mediaType string, seen []string) (int, error)
}

// SyncStateStore persists the planner's per-subscription state: the settings
// fingerprint and the last successful sync timestamp. Only the planner
// writes here.
type SyncStateStore interface {
	Fingerprint(subscriptionID string) (string, error)
	SetFingerprint(subscriptionID, fingerprint string) error

	// LastSync returns the stored timestamp and whether one exists.
	LastSync(subscriptionID string) (time.Time, bool, error)
	SetLastSync(subscriptionID string, t time.Time) error
	ClearLastSync(subscriptionID string) error
}

// ProgressReporter receives progress from a running import and answers
// cancellation checks. ShouldCancel is consulted before every page request
// and at every media-type boundary; done and total count items across the
// whole run (total grows as page totals become known).
type ProgressReporter interface {
	ShouldCancel(done, total int) bool

	// Progress reports routine forward motion (pages fetched, media types
	// completed).
	Progress(message string)

	// Notice reports out-of-band conditions worth surfacing to an operator,
	// such as server lifecycle announcements from the notification channel.
	Notice(message string)
}

// NopProgress is the default reporter: never cancels, drops progress,
// drops notices. The daemon substitutes a logging reporter.
type NopProgress struct{}

var _ ProgressReporter = NopProgress{}

func (NopProgress) ShouldCancel(done, total int) bool { return false }
func (NopProgress) Progress(message string)           {}
func (NopProgress) Notice(message string)             {}
