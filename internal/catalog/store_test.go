// Catalogus - Media Library Synchronization Engine
// Copyright 2026 Catalogus Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/catalogus/catalogus

/*
store_test.go - Catalog Store Tests

Exercises the bbolt-backed store against a real database under t.TempDir:
changeset semantics, prune scoping, sync state round trips and reopen
persistence.
*/

package catalog

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/catalogus/catalogus/internal/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func storedMovie(id, title string) models.CatalogItem {
	return models.CatalogItem{
		Provider:  "main",
		MediaType: models.MediaTypeMovie,
		RemoteID:  id,
		Title:     title,
		Path:      "/movies/" + id + ".mkv",
	}
}

func added(item models.CatalogItem) models.ItemChange {
	return models.ItemChange{Kind: models.ChangeAdded, Item: item}
}

func mustApply(t *testing.T, s *Store, changes ...models.ItemChange) {
	t.Helper()

	if err := s.ApplyChangeset("main", changes); err != nil {
		t.Fatalf("applying changeset: %v", err)
	}
}

func mustList(t *testing.T, s *Store, provider, mediaType string) []models.CatalogItem {
	t.Helper()

	items, err := s.ImportedItems(provider, mediaType)
	if err != nil {
		t.Fatalf("listing items: %v", err)
	}
	return items
}

func TestOpenCreatesParentDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "db", "catalog.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("opening store in missing directory: %v", err)
	}
	defer s.Close()

	if items := mustList(t, s, "main", models.MediaTypeMovie); len(items) != 0 {
		t.Errorf("fresh store has %d items, want 0", len(items))
	}
}

func TestApplyChangesetUpsert(t *testing.T) {
	s := openTestStore(t)

	mustApply(t, s,
		added(storedMovie("movie-2", "Heat")),
		added(storedMovie("movie-1", "Ronin")),
	)

	items := mustList(t, s, "main", models.MediaTypeMovie)
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2", len(items))
	}
	// bbolt iterates in key order.
	if items[0].RemoteID != "movie-1" || items[1].RemoteID != "movie-2" {
		t.Errorf("unexpected order: %s, %s", items[0].RemoteID, items[1].RemoteID)
	}
	for _, item := range items {
		if item.ImportedAt.IsZero() || item.UpdatedAt.IsZero() {
			t.Errorf("item %s missing timestamps", item.RemoteID)
		}
	}
}

func TestApplyChangesetPreservesImportTime(t *testing.T) {
	s := openTestStore(t)

	mustApply(t, s, added(storedMovie("movie-1", "Heat")))
	first := mustList(t, s, "main", models.MediaTypeMovie)[0]

	update := storedMovie("movie-1", "Heat (Director's Cut)")
	mustApply(t, s, models.ItemChange{Kind: models.ChangeUpdated, Item: update})

	items := mustList(t, s, "main", models.MediaTypeMovie)
	if len(items) != 1 {
		t.Fatalf("got %d items after update, want 1", len(items))
	}
	if items[0].Title != "Heat (Director's Cut)" {
		t.Errorf("title not replaced: %q", items[0].Title)
	}
	if !items[0].ImportedAt.Equal(first.ImportedAt) {
		t.Errorf("import time changed on update: %v != %v", items[0].ImportedAt, first.ImportedAt)
	}
	if items[0].UpdatedAt.Before(items[0].ImportedAt) {
		t.Errorf("update time %v precedes import time %v", items[0].UpdatedAt, items[0].ImportedAt)
	}
}

func TestApplyChangesetRemove(t *testing.T) {
	s := openTestStore(t)

	mustApply(t, s,
		added(storedMovie("movie-1", "Heat")),
		added(storedMovie("movie-2", "Ronin")),
	)

	// Removing an item that was never imported is a no-op, not an error.
	mustApply(t, s,
		models.ItemChange{Kind: models.ChangeRemoved, Item: storedMovie("movie-1", "")},
		models.ItemChange{Kind: models.ChangeRemoved, Item: storedMovie("movie-9", "")},
	)

	items := mustList(t, s, "main", models.MediaTypeMovie)
	if len(items) != 1 || items[0].RemoteID != "movie-2" {
		t.Fatalf("unexpected remainder: %+v", items)
	}
}

func TestApplyChangesetReplaySafe(t *testing.T) {
	s := openTestStore(t)

	batch := []models.ItemChange{
		added(storedMovie("movie-1", "Heat")),
		{Kind: models.ChangeRemoved, Item: storedMovie("movie-2", "")},
	}
	mustApply(t, s, batch...)
	mustApply(t, s, batch...)

	items := mustList(t, s, "main", models.MediaTypeMovie)
	if len(items) != 1 || items[0].RemoteID != "movie-1" {
		t.Fatalf("replay changed state: %+v", items)
	}
}

func TestApplyChangesetEmpty(t *testing.T) {
	s := openTestStore(t)

	if err := s.ApplyChangeset("main", nil); err != nil {
		t.Fatalf("empty changeset: %v", err)
	}
}

func TestPruneMissing(t *testing.T) {
	s := openTestStore(t)

	mustApply(t, s,
		added(storedMovie("movie-1", "Heat")),
		added(storedMovie("movie-2", "Ronin")),
		added(storedMovie("movie-3", "Spy Game")),
	)

	pruned, err := s.PruneMissing("main", models.MediaTypeMovie, []string{"movie-1", "movie-3"})
	if err != nil {
		t.Fatalf("pruning: %v", err)
	}
	if pruned != 1 {
		t.Errorf("pruned %d items, want 1", pruned)
	}

	items := mustList(t, s, "main", models.MediaTypeMovie)
	if len(items) != 2 || items[0].RemoteID != "movie-1" || items[1].RemoteID != "movie-3" {
		t.Fatalf("unexpected remainder: %+v", items)
	}
}

func TestPruneMissingEmptySeen(t *testing.T) {
	s := openTestStore(t)

	mustApply(t, s,
		added(storedMovie("movie-1", "Heat")),
		added(storedMovie("movie-2", "Ronin")),
	)

	pruned, err := s.PruneMissing("main", models.MediaTypeMovie, nil)
	if err != nil {
		t.Fatalf("pruning: %v", err)
	}
	if pruned != 2 {
		t.Errorf("pruned %d items, want 2", pruned)
	}
	if items := mustList(t, s, "main", models.MediaTypeMovie); len(items) != 0 {
		t.Errorf("store still holds %d items", len(items))
	}
}

func TestPruneScoping(t *testing.T) {
	s := openTestStore(t)

	episode := models.CatalogItem{
		Provider:  "main",
		MediaType: models.MediaTypeEpisode,
		RemoteID:  "ep-1",
		Title:     "Pilot",
	}
	otherProvider := storedMovie("movie-1", "Heat")
	otherProvider.Provider = "backup"

	mustApply(t, s,
		added(storedMovie("movie-1", "Heat")),
		added(episode),
		added(otherProvider),
	)

	pruned, err := s.PruneMissing("main", models.MediaTypeMovie, nil)
	if err != nil {
		t.Fatalf("pruning: %v", err)
	}
	if pruned != 1 {
		t.Errorf("pruned %d items, want 1", pruned)
	}

	if items := mustList(t, s, "main", models.MediaTypeEpisode); len(items) != 1 {
		t.Errorf("episode pruned alongside movies")
	}
	if items := mustList(t, s, "backup", models.MediaTypeMovie); len(items) != 1 {
		t.Errorf("other provider pruned alongside main")
	}
}

func TestItemCounts(t *testing.T) {
	s := openTestStore(t)

	episode := models.CatalogItem{Provider: "main", MediaType: models.MediaTypeEpisode, RemoteID: "ep-1"}
	backup := storedMovie("movie-9", "Spy Game")
	backup.Provider = "backup"

	mustApply(t, s,
		added(storedMovie("movie-1", "Heat")),
		added(storedMovie("movie-2", "Ronin")),
		added(episode),
		added(backup),
	)

	counts, err := s.ItemCounts()
	if err != nil {
		t.Fatalf("counting: %v", err)
	}
	if counts["main"]["movie"] != 2 {
		t.Errorf("main/movie count = %d, want 2", counts["main"]["movie"])
	}
	if counts["main"]["episode"] != 1 {
		t.Errorf("main/episode count = %d, want 1", counts["main"]["episode"])
	}
	if counts["backup"]["movie"] != 1 {
		t.Errorf("backup/movie count = %d, want 1", counts["backup"]["movie"])
	}
}

func TestImportedItemsSkipsCorruptRows(t *testing.T) {
	s := openTestStore(t)

	mustApply(t, s, added(storedMovie("movie-1", "Heat")))

	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketItems).Put(itemKey("main", models.MediaTypeMovie, "movie-0"), []byte("{broken"))
	})
	if err != nil {
		t.Fatalf("injecting corrupt row: %v", err)
	}

	items := mustList(t, s, "main", models.MediaTypeMovie)
	if len(items) != 1 || items[0].RemoteID != "movie-1" {
		t.Fatalf("corrupt row not skipped: %+v", items)
	}
}

func TestSyncStateRoundTrip(t *testing.T) {
	s := openTestStore(t)

	fp, err := s.Fingerprint("main")
	if err != nil {
		t.Fatalf("loading fingerprint: %v", err)
	}
	if fp != "" {
		t.Errorf("fresh store has fingerprint %q", fp)
	}

	if err := s.SetFingerprint("main", "digest-1"); err != nil {
		t.Fatalf("storing fingerprint: %v", err)
	}
	if fp, _ = s.Fingerprint("main"); fp != "digest-1" {
		t.Errorf("fingerprint = %q, want digest-1", fp)
	}

	if _, ok, err := s.LastSync("main"); err != nil || ok {
		t.Fatalf("fresh store has baseline: ok=%v err=%v", ok, err)
	}

	baseline := time.Date(2026, 8, 25, 10, 30, 0, 123456789, time.UTC)
	if err := s.SetLastSync("main", baseline); err != nil {
		t.Fatalf("storing baseline: %v", err)
	}
	got, ok, err := s.LastSync("main")
	if err != nil || !ok {
		t.Fatalf("loading baseline: ok=%v err=%v", ok, err)
	}
	if !got.Equal(baseline) {
		t.Errorf("baseline = %v, want %v", got, baseline)
	}

	if err := s.ClearLastSync("main"); err != nil {
		t.Fatalf("clearing baseline: %v", err)
	}
	if _, ok, _ := s.LastSync("main"); ok {
		t.Error("baseline survived clear")
	}
	// Clearing the baseline must not touch the fingerprint.
	if fp, _ = s.Fingerprint("main"); fp != "digest-1" {
		t.Errorf("fingerprint lost on clear: %q", fp)
	}
}

func TestSyncStateIsolatedPerSubscription(t *testing.T) {
	s := openTestStore(t)

	if err := s.SetFingerprint("main", "digest-main"); err != nil {
		t.Fatal(err)
	}
	if err := s.SetFingerprint("backup", "digest-backup"); err != nil {
		t.Fatal(err)
	}

	if fp, _ := s.Fingerprint("main"); fp != "digest-main" {
		t.Errorf("main fingerprint = %q", fp)
	}
	if fp, _ := s.Fingerprint("backup"); fp != "digest-backup" {
		t.Errorf("backup fingerprint = %q", fp)
	}
}

func TestReopenPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	mustApply(t, s, added(storedMovie("movie-1", "Heat")))
	if err := s.SetFingerprint("main", "digest-1"); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("closing store: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopening store: %v", err)
	}
	defer reopened.Close()

	if items := mustList(t, reopened, "main", models.MediaTypeMovie); len(items) != 1 {
		t.Errorf("items lost across reopen: %d", len(items))
	}
	if fp, _ := reopened.Fingerprint("main"); fp != "digest-1" {
		t.Errorf("fingerprint lost across reopen: %q", fp)
	}
}

func TestBackupToProducesValidDatabase(t *testing.T) {
	s := openTestStore(t)
	mustApply(t, s,
		added(storedMovie("movie-1", "Heat")),
		added(storedMovie("movie-2", "Ronin")),
	)
	if err := s.SetFingerprint("main", "digest-1"); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	n, err := s.BackupTo(&buf)
	if err != nil {
		t.Fatalf("backup failed: %v", err)
	}
	if n != int64(buf.Len()) {
		t.Errorf("reported %d bytes, buffered %d", n, buf.Len())
	}

	snapshotPath := filepath.Join(t.TempDir(), "snapshot.db")
	if err := os.WriteFile(snapshotPath, buf.Bytes(), 0o600); err != nil {
		t.Fatal(err)
	}
	restored, err := Open(snapshotPath)
	if err != nil {
		t.Fatalf("snapshot is not a valid database: %v", err)
	}
	defer restored.Close()

	if items := mustList(t, restored, "main", models.MediaTypeMovie); len(items) != 2 {
		t.Errorf("restored %d items, want 2", len(items))
	}
	if fp, _ := restored.Fingerprint("main"); fp != "digest-1" {
		t.Errorf("restored fingerprint %q, want digest-1", fp)
	}
}
