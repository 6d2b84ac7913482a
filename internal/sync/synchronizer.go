// Catalogus - Media Library Synchronization Engine
// Copyright 2026 Catalogus Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/catalogus/catalogus

/*
synchronizer.go - Catalog Synchronizer

Produces a complete changeset for one subscription, one media type at a
time, either by a full paginated crawl of the matching views or by a fast
differential fetch from the companion sync queue.

The full crawl is atomic per media type: a cancellation or error before
the changeset commit leaves that media type untouched, while media types
already committed in the same run keep their changesets. Collection
reconciliation runs strictly after the primary pass because it mutates
already-collected items by path match. Pruning of items that vanished
from the server happens only after a complete, uncancelled crawl of the
media type; fast syncs never prune.
*/

package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/catalogus/catalogus/internal/logging"
	"github.com/catalogus/catalogus/internal/metrics"
	"github.com/catalogus/catalogus/internal/models"
)

// defaultPageSize bounds one items request when the configuration does not
// set its own limit.
const defaultPageSize = 100

// Synchronizer crawls remote views into catalog changesets.
type Synchronizer struct {
	catalog  Catalog
	progress ProgressReporter
	pageSize int
}

func NewSynchronizer(catalog Catalog, progress ProgressReporter, pageSize int) *Synchronizer {
	if progress == nil {
		progress = NopProgress{}
	}
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	return &Synchronizer{catalog: catalog, progress: progress, pageSize: pageSize}
}

// RunFull crawls every requested media type sequentially. The first failed
// media type fails the run; committed media types keep their changesets.
// Cancellation surfaces as errCancelled.
func (s *Synchronizer) RunFull(ctx context.Context, sess *session, sub *Subscription, mediaTypes []string) error {
	mapper := sessionMapper(ctx, sess)
	for _, mediaType := range mediaTypes {
		if err := s.shouldStop(ctx, 0, 0); err != nil {
			return err
		}
		if err := s.syncMediaType(ctx, sess, sub, mapper, mediaType); err != nil {
			if errors.Is(err, errCancelled) {
				return err
			}
			return fmt.Errorf("media type %s: %w", mediaType, err)
		}
	}
	return nil
}

// syncMediaType runs the full crawl of one media type: primary items from
// every matching view, the boxset second pass for movies when collection
// import is on, one changeset commit, then pruning of unseen items.
func (s *Synchronizer) syncMediaType(ctx context.Context, sess *session, sub *Subscription, mapper *itemMapper, mediaType string) error {
	provider := sess.provider.Name
	itemType, ok := models.ItemTypeFor(mediaType)
	if !ok {
		return fmt.Errorf("unsupported media type %q", mediaType)
	}

	views, err := s.matchViews(ctx, sess, sub, mediaType)
	if err != nil {
		return err
	}

	var (
		items  []models.CatalogItem
		seen   []string
		byPath = make(map[string]int)
	)
	type namedCollection struct {
		id   string
		name string
	}
	var collections []namedCollection
	collectionSeen := make(map[string]bool)
	wantCollections := sub.ImportCollections && mediaType == models.MediaTypeMovie

	for i := range views {
		view := &views[i]
		s.progress.Progress(fmt.Sprintf("Importing %s items from %s", mediaType, view.Name))

		viewStart := len(items)
		err := s.crawl(ctx, sess, mediaType,
			ItemsQuery{ParentID: view.ID, IncludeItemTypes: itemType},
			viewStart,
			func(it *models.Item) {
				ci := mapper.catalogItem(it, mediaType)
				if ci.Path != "" {
					if _, dup := byPath[ci.Path]; !dup {
						byPath[ci.Path] = len(items)
					}
				}
				seen = append(seen, it.ID)
				items = append(items, ci)
			})
		if err != nil {
			return err
		}

		// Boxsets are listed per view, and only for views that actually
		// contributed items; converting them into catalog entries is not
		// the crawl's job, only the id-to-name map is kept.
		if wantCollections && len(items) > viewStart {
			err := s.crawl(ctx, sess, mediaType,
				ItemsQuery{ParentID: view.ID, IncludeItemTypes: models.ItemTypeBoxSet},
				len(items),
				func(it *models.Item) {
					if it.ID == "" || collectionSeen[it.ID] {
						return
					}
					collectionSeen[it.ID] = true
					collections = append(collections, namedCollection{id: it.ID, name: it.Name})
				})
			if err != nil {
				return err
			}
		}
	}

	// Member reconciliation mutates the collected items, so it must run
	// after every view's primary pass is done.
	for _, col := range collections {
		colName := col.name
		err := s.crawl(ctx, sess, mediaType,
			ItemsQuery{ParentID: col.id, IncludeItemTypes: itemType},
			len(items),
			func(it *models.Item) {
				if it.Path == "" {
					return
				}
				if idx, ok := byPath[it.Path]; ok {
					items[idx].Collection = colName
				}
			})
		if err != nil {
			return err
		}
	}

	if len(items) > 0 {
		batch := make([]models.ItemChange, len(items))
		for i := range items {
			batch[i] = models.ItemChange{Kind: models.ChangeAdded, Item: items[i]}
		}
		if err := s.catalog.ApplyChangeset(sub.ID, batch); err != nil {
			return fmt.Errorf("changeset apply: %w", err)
		}
		metrics.RecordChangesetBatch(len(batch))
		metrics.RecordChangesEmitted(provider, mediaType, models.ChangeAdded.String(), len(batch))
	}

	// The crawl saw the complete server-side set, so anything imported
	// earlier but unseen now is gone remotely.
	pruned, err := s.catalog.PruneMissing(provider, mediaType, seen)
	if err != nil {
		return fmt.Errorf("prune: %w", err)
	}
	if pruned > 0 {
		metrics.RecordChangesEmitted(provider, mediaType, models.ChangeRemoved.String(), pruned)
	}

	logging.Info().
		Str("provider", provider).
		Str("subscription", sub.ID).
		Str("media_type", mediaType).
		Int("items", len(items)).
		Int("views", len(views)).
		Int("collections", len(collections)).
		Int("pruned", pruned).
		Msg("Media type import complete")

	return nil
}

// matchViews resolves the views to crawl for one media type: the
// subscription's selection when present, every matching view otherwise.
// No resolvable views means the subscription cannot be synchronized.
func (s *Synchronizer) matchViews(ctx context.Context, sess *session, sub *Subscription, mediaType string) ([]models.LibraryView, error) {
	views, err := sess.client.GetViews(ctx, []string{mediaType})
	if err != nil {
		return nil, fmt.Errorf("view listing: %w", err)
	}
	if len(sub.Views) > 0 {
		selected := make([]models.LibraryView, 0, len(views))
		for _, v := range views {
			for _, id := range sub.Views {
				if v.ID == id {
					selected = append(selected, v)
					break
				}
			}
		}
		views = selected
	}
	if len(views) == 0 {
		return nil, ErrNoViews
	}
	return views, nil
}

// crawl pages through one listing with the running start index cursor,
// invoking visit per item. The cancellation check runs before every page
// request with progressBase added to the listing-local counters. A page
// that fails structurally or stalls short of the reported total aborts
// the listing without retry.
func (s *Synchronizer) crawl(ctx context.Context, sess *session, mediaType string, q ItemsQuery, progressBase int, visit func(*models.Item)) error {
	startIndex := 0
	total := 0
	for {
		reportTotal := 0
		if total > 0 {
			reportTotal = progressBase + total
		}
		if err := s.shouldStop(ctx, progressBase+startIndex, reportTotal); err != nil {
			return err
		}

		q.StartIndex = startIndex
		q.Limit = s.pageSize
		page, err := sess.client.ListItems(ctx, q)
		metrics.RecordPageRequest(sess.provider.Name, mediaType)
		if err != nil {
			return err
		}

		total = page.Total()
		for i := range page.Items {
			visit(&page.Items[i])
		}
		startIndex += len(page.Items)

		if startIndex >= total {
			return nil
		}
		if len(page.Items) == 0 {
			return fmt.Errorf("listing stalled at index %d of %d: %w", startIndex, total, ErrMissingFields)
		}
	}
}

// RunFast applies the companion plugin's differential change set since the
// given time. Added and updated ids resolve exactly as in the live
// notification path; removed ids match against the local catalog and are
// silently dropped when already absent. No collection reconciliation and
// no pruning happen here.
func (s *Synchronizer) RunFast(ctx context.Context, sess *session, sub *Subscription, mediaTypes []string, since time.Time) error {
	provider := sess.provider.Name

	queue, err := sess.client.GetDelta(ctx, since)
	if err != nil {
		return fmt.Errorf("delta fetch: %w", err)
	}
	if queue.Empty() {
		logging.Debug().
			Str("provider", provider).
			Str("subscription", sub.ID).
			Time("since", since).
			Msg("No changes since last sync")
		return nil
	}

	mapper := sessionMapper(ctx, sess)
	requested := make(map[string]bool, len(mediaTypes))
	for _, mt := range mediaTypes {
		requested[mt] = true
	}

	type upsert struct {
		id   string
		kind models.ChangeKind
	}
	var upserts []upsert
	seenUpsert := make(map[string]bool)
	addUpsert := func(id string, kind models.ChangeKind) {
		if id != "" && !seenUpsert[id] {
			seenUpsert[id] = true
			upserts = append(upserts, upsert{id: id, kind: kind})
		}
	}
	for _, id := range queue.ItemsAdded {
		addUpsert(id, models.ChangeAdded)
	}
	for _, id := range queue.ItemsUpdated {
		addUpsert(id, models.ChangeUpdated)
	}
	for _, ch := range queue.UserDataChanged {
		addUpsert(ch.ItemID, models.ChangeUpdated)
	}

	s.progress.Progress(fmt.Sprintf("Applying %d changes from %s", len(upserts)+len(queue.ItemsRemoved), provider))

	batches := make(map[string][]models.ItemChange)
	for _, u := range upserts {
		if ctx.Err() != nil {
			return errCancelled
		}

		it, err := sess.client.GetItem(ctx, u.id)
		if err != nil {
			logging.Warn().
				Str("provider", provider).
				Str("item_id", u.id).
				Err(err).
				Msg("Dropping delta change, item fetch failed")
			continue
		}
		if it == nil {
			logging.Warn().
				Str("provider", provider).
				Str("item_id", u.id).
				Msg("Dropping delta change, item no longer present on server")
			continue
		}

		mediaType, ok := models.MediaTypeForItemType(it.Type)
		if !ok || !requested[mediaType] {
			logging.Debug().
				Str("provider", provider).
				Str("item_id", u.id).
				Str("item_type", it.Type).
				Msg("Dropping delta change outside requested media types")
			continue
		}

		batches[mediaType] = append(batches[mediaType], models.ItemChange{Kind: u.kind, Item: mapper.catalogItem(it, mediaType)})
	}

	s.matchDeltaRemovals(provider, mediaTypes, queue.ItemsRemoved, batches)

	for _, mediaType := range mediaTypes {
		changes := batches[mediaType]
		if len(changes) == 0 {
			continue
		}
		if err := s.shouldStop(ctx, 0, 0); err != nil {
			return err
		}
		if err := s.catalog.ApplyChangeset(sub.ID, changes); err != nil {
			return fmt.Errorf("changeset apply (%s): %w", mediaType, err)
		}
		metrics.RecordChangesetBatch(len(changes))
		for kind, count := range countKinds(changes) {
			metrics.RecordChangesEmitted(provider, mediaType, kind, count)
		}
		logging.Info().
			Str("provider", provider).
			Str("subscription", sub.ID).
			Str("media_type", mediaType).
			Int("changes", len(changes)).
			Msg("Applied delta changeset")
	}

	return nil
}

// matchDeltaRemovals resolves removed ids against the imported items of
// the requested media types. Ids without a local match are already absent
// and disappear without a warning.
func (s *Synchronizer) matchDeltaRemovals(provider string, mediaTypes []string, ids []string, batches map[string][]models.ItemChange) {
	if len(ids) == 0 {
		return
	}

	imported := make(map[string][]models.CatalogItem, len(mediaTypes))
	for _, mediaType := range mediaTypes {
		items, err := s.catalog.ImportedItems(provider, mediaType)
		if err != nil {
			logging.Warn().
				Str("provider", provider).
				Str("media_type", mediaType).
				Err(err).
				Msg("Imported item lookup failed, delta removals for this media type will not match")
			continue
		}
		imported[mediaType] = items
	}

	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true

		var matches []models.CatalogItem
		for _, mediaType := range mediaTypes {
			for _, item := range imported[mediaType] {
				if item.RemoteID == id {
					matches = append(matches, item)
				}
			}
		}
		if len(matches) == 0 {
			continue
		}
		if len(matches) > 1 {
			logging.Warn().
				Str("provider", provider).
				Str("item_id", id).
				Int("matches", len(matches)).
				Msg("Delta removal matched several catalog items, using the first")
		}

		item := matches[0]
		batches[item.MediaType] = append(batches[item.MediaType], models.ItemChange{Kind: models.ChangeRemoved, Item: item})
	}
}

// countKinds tallies a changeset by change kind for metrics labels.
func countKinds(changes []models.ItemChange) map[string]int {
	counts := make(map[string]int, 3)
	for i := range changes {
		counts[changes[i].Kind.String()]++
	}
	return counts
}

// shouldStop folds context cancellation and the host's cancellation signal
// into the crawl's clean-abort error.
func (s *Synchronizer) shouldStop(ctx context.Context, done, total int) error {
	if ctx.Err() != nil {
		return errCancelled
	}
	if s.progress.ShouldCancel(done, total) {
		return errCancelled
	}
	return nil
}
