// Catalogus - Media Library Synchronization Engine
// Copyright 2026 Catalogus Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/catalogus/catalogus

/*
fingerprint.go - Sync Settings Fingerprint

Hashes the settings that change what a synchronization run would produce.
When the stored fingerprint differs from the freshly computed one, any
persisted incremental baseline is stale and the next run must crawl fully.
*/

package sync

import (
	"crypto/sha1"
	"encoding/hex"
	"sort"

	"github.com/goccy/go-json"

	"github.com/catalogus/catalogus/internal/models"
)

// syncFingerprint is the canonical form that gets hashed. Field order is
// fixed by the struct, the view selection is sorted, and the collection
// toggle participates only while movies are subscribed, so irrelevant
// changes never invalidate the baseline.
type syncFingerprint struct {
	UseCompanion      bool     `json:"use_companion"`
	AllowDirectPlay   bool     `json:"allow_direct_play"`
	Views             []string `json:"views"`
	ImportCollections *bool    `json:"import_collections,omitempty"`
}

// computeFingerprint hashes the sync-relevant settings of one subscription
// and its provider into a hex digest.
func computeFingerprint(p Provider, sub *Subscription) string {
	fp := syncFingerprint{
		UseCompanion:    p.UseCompanion,
		AllowDirectPlay: p.AllowDirectPlay,
		Views:           append([]string{}, sub.Views...),
	}
	sort.Strings(fp.Views)
	if sub.HasMediaType(models.MediaTypeMovie) {
		v := sub.ImportCollections
		fp.ImportCollections = &v
	}

	data, err := json.Marshal(fp)
	if err != nil {
		// Unreachable for this shape; an empty digest forces a full sync.
		return ""
	}
	sum := sha1.Sum(data)
	return hex.EncodeToString(sum[:])
}
