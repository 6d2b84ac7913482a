// Catalogus - Media Library Synchronization Engine
// Copyright 2026 Catalogus Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/catalogus/catalogus

/*
store.go - Persistent Catalog Store

bbolt-backed storage for imported catalog items and per-subscription sync
state. Items live in one flat bucket under composite keys
({provider}/{mediaType}/{remoteID}), so everything one synchronization run
touches is a single prefix range: listing, counting and pruning are all
cursor scans over that range. Sync state (settings fingerprints and
incremental baselines) lives in a second bucket keyed by subscription id.

One Store serves the whole process; bbolt serializes writers internally.
*/

package catalog

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
	bolt "go.etcd.io/bbolt"

	"github.com/catalogus/catalogus/internal/logging"
	"github.com/catalogus/catalogus/internal/metrics"
	"github.com/catalogus/catalogus/internal/models"
	"github.com/catalogus/catalogus/internal/sync"
)

var (
	bucketItems     = []byte("items")
	bucketSyncState = []byte("sync_state")
)

// Store implements the engine's catalog and sync state persistence.
type Store struct {
	db *bolt.DB
}

var (
	_ sync.Catalog        = (*Store)(nil)
	_ sync.SyncStateStore = (*Store)(nil)
)

// Open opens or creates the catalog database at path, creating parent
// directories as needed. The open times out after a second when another
// process holds the file lock.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating catalog directory: %w", err)
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening catalog store: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketItems, bucketSyncState} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("preparing catalog buckets: %w", err)
	}

	logging.Info().Str("path", path).Msg("Catalog store opened")
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// itemKey builds the composite item key. Provider names are config
// identifiers and never contain a slash.
func itemKey(provider, mediaType, remoteID string) []byte {
	return []byte(provider + "/" + mediaType + "/" + remoteID)
}

func itemPrefix(provider, mediaType string) []byte {
	return []byte(provider + "/" + mediaType + "/")
}

// ImportedItems returns every stored item of one provider and media type.
// Rows that no longer decode are skipped with a warning instead of
// failing the whole listing.
func (s *Store) ImportedItems(provider, mediaType string) ([]models.CatalogItem, error) {
	prefix := itemPrefix(provider, mediaType)
	var items []models.CatalogItem

	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketItems).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var item models.CatalogItem
			if err := json.Unmarshal(v, &item); err != nil {
				logging.Warn().
					Str("key", string(k)).
					Err(err).
					Msg("Skipping undecodable catalog row")
				continue
			}
			items = append(items, item)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing %s/%s: %w", provider, mediaType, err)
	}
	return items, nil
}

// ApplyChangeset applies one batch atomically. Added and updated changes
// upsert, keeping the original import timestamp on replace; removals
// delete and are no-ops for absent items, so replaying a batch is safe.
func (s *Store) ApplyChangeset(subscriptionID string, changes []models.ItemChange) error {
	if len(changes) == 0 {
		return nil
	}

	now := time.Now().UTC()
	type scope struct{ provider, mediaType string }
	affected := make(map[scope]bool)

	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketItems)
		for i := range changes {
			ch := &changes[i]
			item := ch.Item
			key := itemKey(item.Provider, item.MediaType, item.RemoteID)
			affected[scope{item.Provider, item.MediaType}] = true

			switch ch.Kind {
			case models.ChangeAdded, models.ChangeUpdated:
				item.ImportedAt = now
				item.UpdatedAt = now
				if prev := b.Get(key); prev != nil {
					var old models.CatalogItem
					if err := json.Unmarshal(prev, &old); err == nil && !old.ImportedAt.IsZero() {
						item.ImportedAt = old.ImportedAt
					}
				}
				data, err := json.Marshal(&item)
				if err != nil {
					return fmt.Errorf("encoding item %s: %w", item.RemoteID, err)
				}
				if err := b.Put(key, data); err != nil {
					return err
				}
			case models.ChangeRemoved:
				if err := b.Delete(key); err != nil {
					return err
				}
			default:
				return fmt.Errorf("unknown change kind %d", ch.Kind)
			}
		}

		for sc := range affected {
			metrics.SetCatalogItems(sc.provider, sc.mediaType, countPrefix(b, itemPrefix(sc.provider, sc.mediaType)))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("applying changeset for %s: %w", subscriptionID, err)
	}

	logging.Debug().
		Str("subscription", subscriptionID).
		Int("changes", len(changes)).
		Msg("Changeset committed")
	return nil
}

// PruneMissing deletes stored items of one provider and media type whose
// remote id is not in seen, returning the number deleted.
func (s *Store) PruneMissing(provider, mediaType string, seen []string) (int, error) {
	keep := make(map[string]bool, len(seen))
	for _, id := range seen {
		keep[id] = true
	}

	prefix := itemPrefix(provider, mediaType)
	pruned := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketItems)

		// Collect first; deleting through the bucket mid-iteration
		// invalidates the cursor.
		var stale [][]byte
		c := b.Cursor()
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			if !keep[string(k[len(prefix):])] {
				stale = append(stale, append([]byte(nil), k...))
			}
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		pruned = len(stale)

		metrics.SetCatalogItems(provider, mediaType, countPrefix(b, prefix))
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("pruning %s/%s: %w", provider, mediaType, err)
	}

	if pruned > 0 {
		logging.Info().
			Str("provider", provider).
			Str("media_type", mediaType).
			Int("pruned", pruned).
			Msg("Pruned items gone from the server")
	}
	return pruned, nil
}

// ItemCounts returns the stored item count per provider and media type,
// for the status API.
func (s *Store) ItemCounts() (map[string]map[string]int, error) {
	counts := make(map[string]map[string]int)
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketItems).Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			parts := bytes.SplitN(k, []byte("/"), 3)
			if len(parts) != 3 {
				continue
			}
			provider, mediaType := string(parts[0]), string(parts[1])
			if counts[provider] == nil {
				counts[provider] = make(map[string]int)
			}
			counts[provider][mediaType]++
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("counting items: %w", err)
	}
	return counts, nil
}

func countPrefix(b *bolt.Bucket, prefix []byte) int {
	n := 0
	c := b.Cursor()
	for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
		n++
	}
	return n
}

// BackupTo streams a consistent snapshot of the whole database to w
// using bolt's hot backup. The snapshot is itself a valid database file.
// Returns the number of bytes written; a non-zero count with an error
// means the stream broke partway through.
func (s *Store) BackupTo(w io.Writer) (int64, error) {
	var n int64
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		n, err = tx.WriteTo(w)
		return err
	})
	if err != nil {
		return n, fmt.Errorf("writing catalog snapshot: %w", err)
	}
	return n, nil
}

// ============================================================================
// Sync State
// ============================================================================

func stateKey(kind, subscriptionID string) []byte {
	return []byte(kind + "/" + subscriptionID)
}

// Fingerprint returns the stored settings digest, or "" when none exists.
func (s *Store) Fingerprint(subscriptionID string) (string, error) {
	var fp string
	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketSyncState).Get(stateKey("fingerprint", subscriptionID)); v != nil {
			fp = string(v)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("loading fingerprint for %s: %w", subscriptionID, err)
	}
	return fp, nil
}

func (s *Store) SetFingerprint(subscriptionID, fingerprint string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSyncState).Put(stateKey("fingerprint", subscriptionID), []byte(fingerprint))
	})
	if err != nil {
		return fmt.Errorf("storing fingerprint for %s: %w", subscriptionID, err)
	}
	return nil
}

// LastSync returns the incremental baseline and whether one is stored.
func (s *Store) LastSync(subscriptionID string) (time.Time, bool, error) {
	var raw []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketSyncState).Get(stateKey("last_sync", subscriptionID)); v != nil {
			raw = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return time.Time{}, false, fmt.Errorf("loading baseline for %s: %w", subscriptionID, err)
	}
	if raw == nil {
		return time.Time{}, false, nil
	}

	t, err := time.Parse(time.RFC3339Nano, string(raw))
	if err != nil {
		return time.Time{}, false, fmt.Errorf("decoding baseline for %s: %w", subscriptionID, err)
	}
	return t, true, nil
}

func (s *Store) SetLastSync(subscriptionID string, t time.Time) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSyncState).Put(
			stateKey("last_sync", subscriptionID),
			[]byte(t.UTC().Format(time.RFC3339Nano)))
	})
	if err != nil {
		return fmt.Errorf("storing baseline for %s: %w", subscriptionID, err)
	}
	return nil
}

func (s *Store) ClearLastSync(subscriptionID string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSyncState).Delete(stateKey("last_sync", subscriptionID))
	})
	if err != nil {
		return fmt.Errorf("clearing baseline for %s: %w", subscriptionID, err)
	}
	return nil
}
