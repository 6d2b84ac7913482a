// Catalogus - Media Library Synchronization Engine
// Copyright 2026 Catalogus Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/catalogus/catalogus

package sync

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/catalogus/catalogus/internal/models"
)

// moviePageRange builds one listing page of count movies numbered from
// first, with the server-reported total.
func moviePageRange(total, first, count int, pathPrefix string) *models.ItemsPage {
	items := make([]models.Item, 0, count)
	for i := 0; i < count; i++ {
		n := first + i
		items = append(items, movieItem(
			fmt.Sprintf("movie-%02d", n),
			fmt.Sprintf("Movie %02d", n),
			fmt.Sprintf("%s/%02d.mkv", pathPrefix, n)))
	}
	return testPage(total, items...)
}

func singleViewClient(view models.LibraryView, listItems func(ctx context.Context, q ItemsQuery) (*models.ItemsPage, error)) *mockEmbyClient {
	return &mockEmbyClient{
		getViewsFn: func(ctx context.Context, mediaTypes []string) ([]models.LibraryView, error) {
			return []models.LibraryView{view}, nil
		},
		listItemsFn: listItems,
	}
}

func movieView() models.LibraryView {
	return models.LibraryView{ID: "view-movies", Name: "Movies", CollectionType: "movies"}
}

// ============================================================================
// Full Crawl
// ============================================================================

func TestSynchronizerFullSinglePage(t *testing.T) {
	client := singleViewClient(movieView(), func(ctx context.Context, q ItemsQuery) (*models.ItemsPage, error) {
		return moviePageRange(2, 1, 2, "/media"), nil
	})
	catalog := newMockCatalog()
	s := NewSynchronizer(catalog, nil, 0)
	sub := testSubscription()

	err := s.RunFull(context.Background(), testSession(client), &sub, []string{models.MediaTypeMovie})

	checkNoError(t, err)
	checkSliceLen(t, "list calls", len(client.listCalls), 1)
	checkStringEqual(t, "parent id", client.listCalls[0].ParentID, "view-movies")
	checkStringEqual(t, "item types", client.listCalls[0].IncludeItemTypes, "Movie")
	checkIntEqual(t, "start index", client.listCalls[0].StartIndex, 0)
	checkIntEqual(t, "limit", client.listCalls[0].Limit, defaultPageSize)

	checkSliceLen(t, "applied batches", len(catalog.applied), 1)
	changes := catalog.applied[0].changes
	checkSliceLen(t, "changes", len(changes), 2)
	checkTrue(t, "all added", changes[0].Kind == models.ChangeAdded && changes[1].Kind == models.ChangeAdded)

	checkSliceLen(t, "prune calls", len(catalog.pruned), 1)
	checkStringEqual(t, "pruned provider", catalog.pruned[0].provider, "main")
	checkStringEqual(t, "pruned media type", catalog.pruned[0].mediaType, models.MediaTypeMovie)
	checkSliceLen(t, "seen ids", len(catalog.pruned[0].seen), 2)
	checkStringEqual(t, "seen[0]", catalog.pruned[0].seen[0], "movie-01")
}

func TestSynchronizerFullExactlyFilledPage(t *testing.T) {
	// total == page size: the crawl must stop after one request instead
	// of fetching a trailing empty page.
	client := singleViewClient(movieView(), func(ctx context.Context, q ItemsQuery) (*models.ItemsPage, error) {
		return moviePageRange(3, 1, 3, "/media"), nil
	})
	catalog := newMockCatalog()
	s := NewSynchronizer(catalog, nil, 3)
	sub := testSubscription()

	err := s.RunFull(context.Background(), testSession(client), &sub, []string{models.MediaTypeMovie})

	checkNoError(t, err)
	checkSliceLen(t, "list calls", len(client.listCalls), 1)
	checkSliceLen(t, "changes", len(catalog.allChanges()), 3)
}

func TestSynchronizerFullMultiPageCursor(t *testing.T) {
	client := singleViewClient(movieView(), func(ctx context.Context, q ItemsQuery) (*models.ItemsPage, error) {
		switch q.StartIndex {
		case 0:
			return moviePageRange(5, 1, 2, "/media"), nil
		case 2:
			return moviePageRange(5, 3, 2, "/media"), nil
		case 4:
			return moviePageRange(5, 5, 1, "/media"), nil
		}
		return nil, fmt.Errorf("unexpected start index %d", q.StartIndex)
	})
	catalog := newMockCatalog()
	s := NewSynchronizer(catalog, nil, 2)
	sub := testSubscription()

	err := s.RunFull(context.Background(), testSession(client), &sub, []string{models.MediaTypeMovie})

	checkNoError(t, err)
	checkSliceLen(t, "list calls", len(client.listCalls), 3)
	for i, wantStart := range []int{0, 2, 4} {
		checkIntEqual(t, fmt.Sprintf("call %d start index", i), client.listCalls[i].StartIndex, wantStart)
		checkIntEqual(t, fmt.Sprintf("call %d limit", i), client.listCalls[i].Limit, 2)
	}
	checkSliceLen(t, "changes", len(catalog.allChanges()), 5)
	checkSliceLen(t, "seen ids", len(catalog.pruned[0].seen), 5)
}

func TestSynchronizerFullCollections(t *testing.T) {
	// Two views, 15 movies, one boxset visible from both views with two
	// members. Expected request accounting: one primary page per view,
	// one boxset page per contributing view, one member page for the
	// deduplicated boxset.
	boxset := models.Item{ID: "col-1", Name: "Heat Collection", Type: models.ItemTypeBoxSet}
	client := &mockEmbyClient{
		getViewsFn: func(ctx context.Context, mediaTypes []string) ([]models.LibraryView, error) {
			return []models.LibraryView{
				{ID: "view-a", Name: "Movies A", CollectionType: "movies"},
				{ID: "view-b", Name: "Movies B", CollectionType: "movies"},
			}, nil
		},
		listItemsFn: func(ctx context.Context, q ItemsQuery) (*models.ItemsPage, error) {
			switch {
			case q.ParentID == "col-1":
				return testPage(2,
					movieItem("member-1", "Movie 03", "/a/03.mkv"),
					movieItem("member-2", "Movie 12", "/b/12.mkv")), nil
			case q.IncludeItemTypes == models.ItemTypeBoxSet:
				return testPage(1, boxset), nil
			case q.ParentID == "view-a":
				return moviePageRange(10, 1, 10, "/a"), nil
			case q.ParentID == "view-b":
				return moviePageRange(5, 11, 5, "/b"), nil
			}
			return nil, fmt.Errorf("unexpected query %+v", q)
		},
	}
	catalog := newMockCatalog()
	s := NewSynchronizer(catalog, nil, 0)
	sub := testSubscription()
	sub.ImportCollections = true

	err := s.RunFull(context.Background(), testSession(client), &sub, []string{models.MediaTypeMovie})

	checkNoError(t, err)
	checkSliceLen(t, "list calls", len(client.listCalls), 5)
	wantCalls := []struct{ parent, types string }{
		{"view-a", "Movie"},
		{"view-a", models.ItemTypeBoxSet},
		{"view-b", "Movie"},
		{"view-b", models.ItemTypeBoxSet},
		{"col-1", "Movie"},
	}
	for i, want := range wantCalls {
		checkStringEqual(t, fmt.Sprintf("call %d parent", i), client.listCalls[i].ParentID, want.parent)
		checkStringEqual(t, fmt.Sprintf("call %d types", i), client.listCalls[i].IncludeItemTypes, want.types)
	}

	changes := catalog.allChanges()
	checkSliceLen(t, "changes", len(changes), 15)
	checkStringEqual(t, "member in view a", changes[2].Item.Collection, "Heat Collection")
	checkStringEqual(t, "member in view b", changes[11].Item.Collection, "Heat Collection")
	checkStringEqual(t, "non-member", changes[0].Item.Collection, "")
}

func TestSynchronizerFullSkipsBoxsetsWithoutCollections(t *testing.T) {
	client := singleViewClient(movieView(), func(ctx context.Context, q ItemsQuery) (*models.ItemsPage, error) {
		return moviePageRange(1, 1, 1, "/media"), nil
	})
	catalog := newMockCatalog()
	s := NewSynchronizer(catalog, nil, 0)
	sub := testSubscription()

	err := s.RunFull(context.Background(), testSession(client), &sub, []string{models.MediaTypeMovie})

	checkNoError(t, err)
	checkSliceLen(t, "list calls", len(client.listCalls), 1)
}

func TestSynchronizerFullEmptyView(t *testing.T) {
	client := singleViewClient(movieView(), func(ctx context.Context, q ItemsQuery) (*models.ItemsPage, error) {
		return testPage(0), nil
	})
	catalog := newMockCatalog()
	s := NewSynchronizer(catalog, nil, 0)
	sub := testSubscription()
	sub.ImportCollections = true

	err := s.RunFull(context.Background(), testSession(client), &sub, []string{models.MediaTypeMovie})

	checkNoError(t, err)
	// No items means no boxset listing and no changeset, but the prune
	// still runs: an emptied server library empties the catalog too.
	checkSliceLen(t, "list calls", len(client.listCalls), 1)
	checkSliceLen(t, "applied batches", len(catalog.applied), 0)
	checkSliceLen(t, "prune calls", len(catalog.pruned), 1)
	checkSliceLen(t, "seen ids", len(catalog.pruned[0].seen), 0)
}

func TestSynchronizerFullDuplicatePathFirstWins(t *testing.T) {
	client := singleViewClient(movieView(), func(ctx context.Context, q ItemsQuery) (*models.ItemsPage, error) {
		if q.ParentID == "col-1" {
			return testPage(1, movieItem("member-1", "Dup", "/media/dup.mkv")), nil
		}
		if q.IncludeItemTypes == models.ItemTypeBoxSet {
			return testPage(1, models.Item{ID: "col-1", Name: "Dups", Type: models.ItemTypeBoxSet}), nil
		}
		return testPage(2,
			movieItem("movie-1", "Dup", "/media/dup.mkv"),
			movieItem("movie-2", "Dup Copy", "/media/dup.mkv")), nil
	})
	catalog := newMockCatalog()
	s := NewSynchronizer(catalog, nil, 0)
	sub := testSubscription()
	sub.ImportCollections = true

	err := s.RunFull(context.Background(), testSession(client), &sub, []string{models.MediaTypeMovie})

	checkNoError(t, err)
	changes := catalog.allChanges()
	checkSliceLen(t, "changes", len(changes), 2)
	checkStringEqual(t, "first duplicate", changes[0].Item.Collection, "Dups")
	checkStringEqual(t, "second duplicate", changes[1].Item.Collection, "")
}

// ============================================================================
// View Resolution
// ============================================================================

func TestSynchronizerViewSelection(t *testing.T) {
	client := &mockEmbyClient{
		getViewsFn: func(ctx context.Context, mediaTypes []string) ([]models.LibraryView, error) {
			return []models.LibraryView{
				{ID: "view-a", Name: "Movies A", CollectionType: "movies"},
				{ID: "view-b", Name: "Movies B", CollectionType: "movies"},
			}, nil
		},
		listItemsFn: func(ctx context.Context, q ItemsQuery) (*models.ItemsPage, error) {
			return moviePageRange(1, 1, 1, "/media"), nil
		},
	}
	catalog := newMockCatalog()
	s := NewSynchronizer(catalog, nil, 0)
	sub := testSubscription()
	sub.Views = []string{"view-b"}

	err := s.RunFull(context.Background(), testSession(client), &sub, []string{models.MediaTypeMovie})

	checkNoError(t, err)
	checkSliceLen(t, "list calls", len(client.listCalls), 1)
	checkStringEqual(t, "crawled view", client.listCalls[0].ParentID, "view-b")
}

func TestSynchronizerNoViews(t *testing.T) {
	tests := []struct {
		name  string
		views []models.LibraryView
		sel   []string
	}{
		{name: "no matching views", views: nil},
		{
			name:  "selection misses every view",
			views: []models.LibraryView{{ID: "view-a", Name: "Movies", CollectionType: "movies"}},
			sel:   []string{"view-ghost"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &mockEmbyClient{
				getViewsFn: func(ctx context.Context, mediaTypes []string) ([]models.LibraryView, error) {
					return tt.views, nil
				},
			}
			catalog := newMockCatalog()
			s := NewSynchronizer(catalog, nil, 0)
			sub := testSubscription()
			sub.Views = tt.sel

			err := s.RunFull(context.Background(), testSession(client), &sub, []string{models.MediaTypeMovie})

			checkErrorIs(t, err, ErrNoViews)
			checkSliceLen(t, "applied batches", len(catalog.applied), 0)
		})
	}
}

// ============================================================================
// Cancellation and Failure
// ============================================================================

func TestSynchronizerCancellationKeepsCommittedMediaTypes(t *testing.T) {
	client := &mockEmbyClient{
		getViewsFn: func(ctx context.Context, mediaTypes []string) ([]models.LibraryView, error) {
			switch mediaTypes[0] {
			case models.MediaTypeMovie:
				return []models.LibraryView{{ID: "view-m", Name: "Movies", CollectionType: "movies"}}, nil
			case models.MediaTypeEpisode:
				return []models.LibraryView{{ID: "view-e", Name: "Shows", CollectionType: "tvshows"}}, nil
			}
			return nil, nil
		},
		listItemsFn: func(ctx context.Context, q ItemsQuery) (*models.ItemsPage, error) {
			if q.IncludeItemTypes == "Episode" {
				return testPage(2, models.Item{ID: "ep-1", Name: "Pilot", Type: "Episode"}), nil
			}
			return testPage(1, movieItem("movie-1", "The Matrix", "/media/matrix.mkv")), nil
		},
	}
	catalog := newMockCatalog()
	// Check sequence: run boundary, movie page, run boundary, episode
	// page one, then the fifth check cancels at the next page boundary.
	progress := &mockProgress{cancelAfter: 5}
	s := NewSynchronizer(catalog, progress, 1)
	sub := testSubscription(models.MediaTypeMovie, models.MediaTypeEpisode)

	err := s.RunFull(context.Background(), testSession(client), &sub,
		[]string{models.MediaTypeMovie, models.MediaTypeEpisode})

	checkErrorIs(t, err, errCancelled)
	// The movie changeset committed and pruned before the cancellation;
	// the episode crawl aborted before its commit.
	checkSliceLen(t, "applied batches", len(catalog.applied), 1)
	checkStringEqual(t, "committed media type", catalog.applied[0].changes[0].Item.MediaType, models.MediaTypeMovie)
	checkSliceLen(t, "prune calls", len(catalog.pruned), 1)
	checkStringEqual(t, "pruned media type", catalog.pruned[0].mediaType, models.MediaTypeMovie)
	checkSliceLen(t, "list calls", len(client.listCalls), 2)
}

func TestSynchronizerContextCancellation(t *testing.T) {
	client := singleViewClient(movieView(), func(ctx context.Context, q ItemsQuery) (*models.ItemsPage, error) {
		return moviePageRange(1, 1, 1, "/media"), nil
	})
	catalog := newMockCatalog()
	s := NewSynchronizer(catalog, nil, 0)
	sub := testSubscription()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.RunFull(ctx, testSession(client), &sub, []string{models.MediaTypeMovie})

	checkErrorIs(t, err, errCancelled)
	checkSliceLen(t, "applied batches", len(catalog.applied), 0)
	checkSliceLen(t, "prune calls", len(catalog.pruned), 0)
}

func TestSynchronizerStructuralPageFailure(t *testing.T) {
	calls := 0
	client := singleViewClient(movieView(), func(ctx context.Context, q ItemsQuery) (*models.ItemsPage, error) {
		calls++
		return nil, fmt.Errorf("items request: %w", ErrMissingFields)
	})
	catalog := newMockCatalog()
	s := NewSynchronizer(catalog, nil, 0)
	sub := testSubscription()

	err := s.RunFull(context.Background(), testSession(client), &sub, []string{models.MediaTypeMovie})

	checkErrorIs(t, err, ErrMissingFields)
	// A structurally invalid page aborts; the crawl never retries it.
	checkIntEqual(t, "page attempts", calls, 1)
	checkSliceLen(t, "applied batches", len(catalog.applied), 0)
	checkSliceLen(t, "prune calls", len(catalog.pruned), 0)
}

func TestSynchronizerStalledListing(t *testing.T) {
	client := singleViewClient(movieView(), func(ctx context.Context, q ItemsQuery) (*models.ItemsPage, error) {
		// Claims ten items but never delivers any.
		return testPage(10), nil
	})
	catalog := newMockCatalog()
	s := NewSynchronizer(catalog, nil, 0)
	sub := testSubscription()

	err := s.RunFull(context.Background(), testSession(client), &sub, []string{models.MediaTypeMovie})

	checkErrorIs(t, err, ErrMissingFields)
	checkErrorContains(t, err, "listing stalled")
	checkSliceLen(t, "list calls", len(client.listCalls), 1)
}

func TestSynchronizerApplyFailure(t *testing.T) {
	client := singleViewClient(movieView(), func(ctx context.Context, q ItemsQuery) (*models.ItemsPage, error) {
		return moviePageRange(1, 1, 1, "/media"), nil
	})
	catalog := newMockCatalog()
	catalog.applyErr = errors.New("disk full")
	s := NewSynchronizer(catalog, nil, 0)
	sub := testSubscription()

	err := s.RunFull(context.Background(), testSession(client), &sub, []string{models.MediaTypeMovie})

	checkErrorContains(t, err, "changeset apply")
	checkSliceLen(t, "prune calls", len(catalog.pruned), 0)
}

func TestSynchronizerUnsupportedMediaType(t *testing.T) {
	catalog := newMockCatalog()
	s := NewSynchronizer(catalog, nil, 0)
	sub := testSubscription()

	err := s.RunFull(context.Background(), testSession(&mockEmbyClient{}), &sub, []string{"podcast"})

	checkErrorContains(t, err, `unsupported media type "podcast"`)
}

// ============================================================================
// Fast Differential Sync
// ============================================================================

func TestSynchronizerFastDelta(t *testing.T) {
	since := time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)
	var gotSince time.Time
	client := &mockEmbyClient{
		getDeltaFn: func(ctx context.Context, at time.Time) (*models.SyncQueue, error) {
			gotSince = at
			return &models.SyncQueue{
				ItemsAdded:      []string{"movie-1"},
				ItemsUpdated:    []string{"movie-2"},
				ItemsRemoved:    []string{"movie-4"},
				UserDataChanged: []models.UserDataChange{{ItemID: "movie-3"}},
			}, nil
		},
		getItemFn: func(ctx context.Context, id string) (*models.Item, error) {
			it := movieItem(id, "Movie "+id, "/media/"+id+".mkv")
			return &it, nil
		},
	}
	catalog := newMockCatalog()
	catalog.setItems("main", models.MediaTypeMovie, catalogMovie("movie-4", "/media/movie-4.mkv"))
	progress := &mockProgress{}
	s := NewSynchronizer(catalog, progress, 0)
	sub := testSubscription()

	err := s.RunFast(context.Background(), testSession(client), &sub, []string{models.MediaTypeMovie}, since)

	checkNoError(t, err)
	checkTrue(t, "delta since", gotSince.Equal(since))
	checkSliceLen(t, "progress messages", len(progress.messages), 1)
	checkStringEqual(t, "progress", progress.messages[0], "Applying 4 changes from main")

	checkSliceLen(t, "applied batches", len(catalog.applied), 1)
	changes := catalog.applied[0].changes
	checkSliceLen(t, "changes", len(changes), 4)
	checkTrue(t, "movie-1 added", changes[0].Kind == models.ChangeAdded && changes[0].Item.RemoteID == "movie-1")
	checkTrue(t, "movie-2 updated", changes[1].Kind == models.ChangeUpdated && changes[1].Item.RemoteID == "movie-2")
	checkTrue(t, "movie-3 updated", changes[2].Kind == models.ChangeUpdated && changes[2].Item.RemoteID == "movie-3")
	checkTrue(t, "movie-4 removed", changes[3].Kind == models.ChangeRemoved && changes[3].Item.RemoteID == "movie-4")

	// Fast syncs never prune and never touch views.
	checkSliceLen(t, "prune calls", len(catalog.pruned), 0)
	checkIntEqual(t, "view calls", client.viewCalls, 0)
}

func TestSynchronizerFastDedupe(t *testing.T) {
	client := &mockEmbyClient{
		getDeltaFn: func(ctx context.Context, at time.Time) (*models.SyncQueue, error) {
			return &models.SyncQueue{
				ItemsAdded:      []string{"movie-1"},
				ItemsUpdated:    []string{"movie-1"},
				ItemsRemoved:    []string{"movie-2", "movie-2"},
				UserDataChanged: []models.UserDataChange{{ItemID: "movie-1"}},
			}, nil
		},
		getItemFn: func(ctx context.Context, id string) (*models.Item, error) {
			it := movieItem(id, "Movie "+id, "/media/"+id+".mkv")
			return &it, nil
		},
	}
	catalog := newMockCatalog()
	catalog.setItems("main", models.MediaTypeMovie, catalogMovie("movie-2", "/media/movie-2.mkv"))
	s := NewSynchronizer(catalog, nil, 0)
	sub := testSubscription()

	err := s.RunFast(context.Background(), testSession(client), &sub, []string{models.MediaTypeMovie}, time.Now())

	checkNoError(t, err)
	checkSliceLen(t, "item fetches", len(client.getCalls), 1)
	changes := catalog.allChanges()
	checkSliceLen(t, "changes", len(changes), 2)
	// The add outranks later update notices for the same id.
	checkTrue(t, "deduped upsert", changes[0].Kind == models.ChangeAdded && changes[0].Item.RemoteID == "movie-1")
	checkTrue(t, "deduped removal", changes[1].Kind == models.ChangeRemoved && changes[1].Item.RemoteID == "movie-2")
}

func TestSynchronizerFastEmptyQueue(t *testing.T) {
	client := &mockEmbyClient{}
	catalog := newMockCatalog()
	s := NewSynchronizer(catalog, nil, 0)
	sub := testSubscription()

	err := s.RunFast(context.Background(), testSession(client), &sub, []string{models.MediaTypeMovie}, time.Now())

	checkNoError(t, err)
	checkIntEqual(t, "delta calls", client.deltaCalls, 1)
	checkSliceLen(t, "item fetches", len(client.getCalls), 0)
	checkSliceLen(t, "applied batches", len(catalog.applied), 0)
}

func TestSynchronizerFastDropsUnrequestedTypes(t *testing.T) {
	client := &mockEmbyClient{
		getDeltaFn: func(ctx context.Context, at time.Time) (*models.SyncQueue, error) {
			return &models.SyncQueue{ItemsAdded: []string{"ep-1"}}, nil
		},
		getItemFn: func(ctx context.Context, id string) (*models.Item, error) {
			return &models.Item{ID: id, Name: "Pilot", Type: "Episode"}, nil
		},
	}
	catalog := newMockCatalog()
	s := NewSynchronizer(catalog, nil, 0)
	sub := testSubscription()

	err := s.RunFast(context.Background(), testSession(client), &sub, []string{models.MediaTypeMovie}, time.Now())

	checkNoError(t, err)
	checkSliceLen(t, "applied batches", len(catalog.applied), 0)
}

func TestSynchronizerFastUnmatchedRemovalSilent(t *testing.T) {
	client := &mockEmbyClient{
		getDeltaFn: func(ctx context.Context, at time.Time) (*models.SyncQueue, error) {
			return &models.SyncQueue{ItemsRemoved: []string{"ghost-9"}}, nil
		},
	}
	catalog := newMockCatalog()
	s := NewSynchronizer(catalog, nil, 0)
	sub := testSubscription()

	err := s.RunFast(context.Background(), testSession(client), &sub, []string{models.MediaTypeMovie}, time.Now())

	// Deletions that raced the last full sync are expected leftovers in
	// the queue, not an error condition.
	checkNoError(t, err)
	checkSliceLen(t, "applied batches", len(catalog.applied), 0)
}

func TestSynchronizerFastPartiallyMatchedRemovals(t *testing.T) {
	client := &mockEmbyClient{
		getDeltaFn: func(ctx context.Context, at time.Time) (*models.SyncQueue, error) {
			return &models.SyncQueue{ItemsRemoved: []string{"movie-1", "movie-2"}}, nil
		},
	}
	catalog := newMockCatalog()
	catalog.setItems("main", models.MediaTypeMovie, catalogMovie("movie-1", "/media/movie-1.mkv"))
	s := NewSynchronizer(catalog, nil, 0)
	sub := testSubscription()

	err := s.RunFast(context.Background(), testSession(client), &sub, []string{models.MediaTypeMovie}, time.Now())

	checkNoError(t, err)
	changes := catalog.allChanges()
	checkSliceLen(t, "changes", len(changes), 1)
	checkTrue(t, "matched removal", changes[0].Kind == models.ChangeRemoved && changes[0].Item.RemoteID == "movie-1")
}

func TestSynchronizerFastDeltaFailure(t *testing.T) {
	client := &mockEmbyClient{
		getDeltaFn: func(ctx context.Context, at time.Time) (*models.SyncQueue, error) {
			return nil, errors.New("plugin removed")
		},
	}
	catalog := newMockCatalog()
	s := NewSynchronizer(catalog, nil, 0)
	sub := testSubscription()

	err := s.RunFast(context.Background(), testSession(client), &sub, []string{models.MediaTypeMovie}, time.Now())

	checkErrorContains(t, err, "delta fetch")
	checkSliceLen(t, "applied batches", len(catalog.applied), 0)
}

func TestSynchronizerFastAppliesPerMediaType(t *testing.T) {
	client := &mockEmbyClient{
		getDeltaFn: func(ctx context.Context, at time.Time) (*models.SyncQueue, error) {
			return &models.SyncQueue{ItemsAdded: []string{"ep-1", "movie-1"}}, nil
		},
		getItemFn: func(ctx context.Context, id string) (*models.Item, error) {
			if id == "ep-1" {
				return &models.Item{ID: id, Name: "Pilot", Type: "Episode"}, nil
			}
			it := movieItem(id, "The Matrix", "/media/matrix.mkv")
			return &it, nil
		},
	}
	catalog := newMockCatalog()
	s := NewSynchronizer(catalog, nil, 0)
	sub := testSubscription(models.MediaTypeMovie, models.MediaTypeEpisode)

	err := s.RunFast(context.Background(), testSession(client), &sub,
		[]string{models.MediaTypeMovie, models.MediaTypeEpisode}, time.Now())

	checkNoError(t, err)
	// One changeset per media type, in the subscription's import order.
	checkSliceLen(t, "applied batches", len(catalog.applied), 2)
	checkStringEqual(t, "first batch type", catalog.applied[0].changes[0].Item.MediaType, models.MediaTypeMovie)
	checkStringEqual(t, "second batch type", catalog.applied[1].changes[0].Item.MediaType, models.MediaTypeEpisode)
}
