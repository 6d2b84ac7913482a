// Catalogus - Media Library Synchronization Engine
// Copyright 2026 Catalogus Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/catalogus/catalogus

/*
resolver.go - Change Resolver

Turns one poll tick's notification frames into catalog changesets.

Added, updated and user-data changes carry only item ids, so the resolver
fetches the full record from the server; a failed or empty fetch drops
that one event with a warning and never stalls the rest of the batch.
Removed items no longer exist remotely, so they are matched against the
locally imported items instead. Every resolved change routes to the first
subscription whose media types cover it, and all changes for one
subscription are applied as a single batch per tick.
*/

package sync

import (
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/catalogus/catalogus/internal/logging"
	"github.com/catalogus/catalogus/internal/metrics"
	"github.com/catalogus/catalogus/internal/models"
)

// Resolver resolves notification frames into applied changesets.
type Resolver struct {
	catalog  Catalog
	progress ProgressReporter
}

func NewResolver(catalog Catalog, progress ProgressReporter) *Resolver {
	if progress == nil {
		progress = NopProgress{}
	}
	return &Resolver{catalog: catalog, progress: progress}
}

// Resolve decodes the frames, resolves every change against the server or
// the local catalog, and applies one changeset per subscription. Frame
// kinds outside the supported set are ignored. The returned error joins
// changeset-apply failures only; per-event failures are logged and
// dropped.
func (r *Resolver) Resolve(ctx context.Context, sess *session, subs []Subscription, frames []models.WebSocketMessage) error {
	added, updated, removed := r.collect(sess.provider.Name, frames)
	if len(added)+len(updated)+len(removed) == 0 {
		return nil
	}

	provider := sess.provider.Name
	mapper := sessionMapper(ctx, sess)
	batches := make(map[string][]models.ItemChange)

	if err := r.resolveUpserts(ctx, sess, subs, mapper, models.ChangeAdded, added, batches); err != nil {
		return err
	}
	if err := r.resolveUpserts(ctx, sess, subs, mapper, models.ChangeUpdated, updated, batches); err != nil {
		return err
	}
	r.resolveRemovals(provider, subs, removed, batches)

	var errs []error
	for i := range subs {
		sub := &subs[i]
		changes := batches[sub.ID]
		if len(changes) == 0 {
			continue
		}
		if err := r.catalog.ApplyChangeset(sub.ID, changes); err != nil {
			logging.Error().
				Str("provider", provider).
				Str("subscription", sub.ID).
				Int("changes", len(changes)).
				Err(err).
				Msg("Changeset apply failed")
			errs = append(errs, fmt.Errorf("subscription %s: %w", sub.ID, err))
			continue
		}
		metrics.RecordChangesetBatch(len(changes))
		logging.Info().
			Str("provider", provider).
			Str("subscription", sub.ID).
			Int("changes", len(changes)).
			Msg("Applied notification changeset")
	}
	return errors.Join(errs...)
}

// collect partitions the frames into deduplicated ordered id lists.
// Lifecycle frames surface a notice and unknown frame kinds are ignored so
// newer servers cannot break the poll loop.
func (r *Resolver) collect(provider string, frames []models.WebSocketMessage) (added, updated, removed []string) {
	seenUpsert := make(map[string]bool)
	seenRemoved := make(map[string]bool)
	addUpsert := func(id string, into *[]string) {
		if id != "" && !seenUpsert[id] {
			seenUpsert[id] = true
			*into = append(*into, id)
		}
	}

	for i := range frames {
		frame := &frames[i]
		switch frame.MessageType {
		case models.MessageTypeLibraryChanged:
			var data models.LibraryChangedData
			if err := json.Unmarshal(frame.Data, &data); err != nil {
				logging.Warn().Str("provider", provider).Err(err).Msg("Dropping malformed library change payload")
				continue
			}
			for _, id := range data.ItemsAdded {
				addUpsert(id, &added)
			}
			for _, id := range data.ItemsUpdated {
				addUpsert(id, &updated)
			}
			for _, id := range data.ItemsRemoved {
				if id != "" && !seenRemoved[id] {
					seenRemoved[id] = true
					removed = append(removed, id)
				}
			}
		case models.MessageTypeUserDataChanged:
			var data models.UserDataChangedData
			if err := json.Unmarshal(frame.Data, &data); err != nil {
				logging.Warn().Str("provider", provider).Err(err).Msg("Dropping malformed user data payload")
				continue
			}
			for _, ch := range data.UserDataList {
				addUpsert(ch.ItemID, &updated)
			}
		case models.MessageTypeServerShuttingDown:
			r.progress.Notice(fmt.Sprintf("Server %s is shutting down", provider))
		case models.MessageTypeServerRestarting:
			r.progress.Notice(fmt.Sprintf("Server %s is restarting", provider))
		default:
			logging.Debug().
				Str("provider", provider).
				Str("message_type", frame.MessageType).
				Msg("Ignoring notification frame")
		}
	}
	return added, updated, removed
}

// resolveUpserts fetches every id, maps it and routes it into the
// subscription batches. Only a cancelled context propagates as an error.
func (r *Resolver) resolveUpserts(ctx context.Context, sess *session, subs []Subscription, mapper *itemMapper, kind models.ChangeKind, ids []string, batches map[string][]models.ItemChange) error {
	provider := sess.provider.Name
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}

		it, err := sess.client.GetItem(ctx, id)
		if err != nil {
			metrics.RecordResolverEvent(provider, kind.String(), "fetch_failed")
			logging.Warn().
				Str("provider", provider).
				Str("item_id", id).
				Err(err).
				Msg("Dropping change, item fetch failed")
			continue
		}
		if it == nil {
			metrics.RecordResolverEvent(provider, kind.String(), "missing")
			logging.Warn().
				Str("provider", provider).
				Str("item_id", id).
				Msg("Dropping change, item no longer present on server")
			continue
		}

		mediaType, ok := models.MediaTypeForItemType(it.Type)
		if !ok {
			metrics.RecordResolverEvent(provider, kind.String(), "unsupported")
			logging.Debug().
				Str("provider", provider).
				Str("item_id", id).
				Str("item_type", it.Type).
				Msg("Dropping change for unsupported item type")
			continue
		}

		sub, ok := routeMediaType(subs, mediaType)
		if !ok {
			metrics.RecordResolverEvent(provider, kind.String(), "unrouted")
			logging.Debug().
				Str("provider", provider).
				Str("item_id", id).
				Str("media_type", mediaType).
				Msg("Dropping change, no subscription imports this media type")
			continue
		}

		batches[sub.ID] = append(batches[sub.ID], models.ItemChange{Kind: kind, Item: mapper.catalogItem(it, mediaType)})
		metrics.RecordResolverEvent(provider, kind.String(), "resolved")
	}
	return nil
}

// resolveRemovals matches removed ids against the locally imported items.
// An unmatched id was never imported or is already gone and drops with a
// warning; several matches indicate a catalog inconsistency, so the first
// wins deterministically and the duplicates are reported.
func (r *Resolver) resolveRemovals(provider string, subs []Subscription, ids []string, batches map[string][]models.ItemChange) {
	if len(ids) == 0 {
		return
	}

	imported := make(map[string][]models.CatalogItem)
	importedFor := func(mediaType string) []models.CatalogItem {
		if items, ok := imported[mediaType]; ok {
			return items
		}
		items, err := r.catalog.ImportedItems(provider, mediaType)
		if err != nil {
			logging.Warn().
				Str("provider", provider).
				Str("media_type", mediaType).
				Err(err).
				Msg("Imported item lookup failed, removals for this media type will not match")
			items = nil
		}
		imported[mediaType] = items
		return items
	}

	for _, id := range ids {
		var matches []models.CatalogItem
		for _, mediaType := range models.AllMediaTypes() {
			for _, item := range importedFor(mediaType) {
				if item.RemoteID == id {
					matches = append(matches, item)
				}
			}
		}

		if len(matches) == 0 {
			metrics.RecordResolverEvent(provider, models.ChangeRemoved.String(), "unmatched")
			logging.Warn().
				Str("provider", provider).
				Str("item_id", id).
				Msg("Dropping removal, item not in catalog")
			continue
		}
		if len(matches) > 1 {
			logging.Warn().
				Str("provider", provider).
				Str("item_id", id).
				Int("matches", len(matches)).
				Msg("Removal matched several catalog items, using the first")
		}

		item := matches[0]
		sub, ok := routeMediaType(subs, item.MediaType)
		if !ok {
			metrics.RecordResolverEvent(provider, models.ChangeRemoved.String(), "unrouted")
			logging.Debug().
				Str("provider", provider).
				Str("item_id", id).
				Str("media_type", item.MediaType).
				Msg("Dropping removal, no subscription imports this media type")
			continue
		}

		batches[sub.ID] = append(batches[sub.ID], models.ItemChange{Kind: models.ChangeRemoved, Item: item})
		metrics.RecordResolverEvent(provider, models.ChangeRemoved.String(), "resolved")
	}
}

// routeMediaType returns the first subscription importing the media type.
func routeMediaType(subs []Subscription, mediaType string) (*Subscription, bool) {
	for i := range subs {
		if subs[i].HasMediaType(mediaType) {
			return &subs[i], true
		}
	}
	return nil, false
}
