// Catalogus - Media Library Synchronization Engine
// Copyright 2026 Catalogus Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/catalogus/catalogus

package models

import "time"

// ChangeKind classifies one catalog change. The set is closed; every switch
// over it handles all three kinds plus an unknown default.
type ChangeKind uint8

const (
	ChangeAdded ChangeKind = iota
	ChangeUpdated
	ChangeRemoved
)

// String returns the lowercase kind name for logs and metrics labels.
func (k ChangeKind) String() string {
	switch k {
	case ChangeAdded:
		return "added"
	case ChangeUpdated:
		return "updated"
	case ChangeRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// ItemChange is one entry of a changeset batch.
type ItemChange struct {
	Kind ChangeKind
	Item CatalogItem
}

// CatalogItem is the local representation of one synchronized media item.
// RemoteID, Provider and MediaType together identify the item; everything
// else is replaceable metadata.
type CatalogItem struct {
	RemoteID  string `json:"remote_id"`
	Provider  string `json:"provider"`
	MediaType string `json:"media_type"`

	Title         string `json:"title"`
	SortTitle     string `json:"sort_title,omitempty"`
	OriginalTitle string `json:"original_title,omitempty"`

	// Path is the item's location on the remote server's filesystem. It is
	// the matching key for collection reconciliation.
	Path string `json:"path,omitempty"`

	// PlayURL is where playback would fetch the media from: the remote path
	// when direct play is allowed and possible, a server stream URL
	// otherwise.
	PlayURL string `json:"play_url,omitempty"`

	// Collection is the boxset name a movie belongs to, when collection
	// import is enabled.
	Collection string `json:"collection,omitempty"`

	Year      int    `json:"year,omitempty"`
	Premiered string `json:"premiered,omitempty"`
	DateAdded string `json:"date_added,omitempty"`

	Overview string   `json:"overview,omitempty"`
	Tagline  string   `json:"tagline,omitempty"`
	Genres   []string `json:"genres,omitempty"`
	Studios  []string `json:"studios,omitempty"`
	Tags     []string `json:"tags,omitempty"`
	Country  []string `json:"country,omitempty"`

	CommunityRating float64 `json:"community_rating,omitempty"`
	CriticRating    float64 `json:"critic_rating,omitempty"`
	Votes           int     `json:"votes,omitempty"`
	MPAA            string  `json:"mpaa,omitempty"`

	RuntimeSeconds int64 `json:"runtime_seconds,omitempty"`

	// Episode/season hierarchy.
	Series  string `json:"series,omitempty"`
	Season  int    `json:"season,omitempty"`
	Episode int    `json:"episode,omitempty"`
	Status  string `json:"status,omitempty"`

	People []Person `json:"people,omitempty"`

	// External ids keyed by lowercase provider name (imdb, tmdb, tvdb).
	ProviderIDs map[string]string `json:"provider_ids,omitempty"`

	// Artwork URLs keyed by artwork kind (poster, fanart, thumb).
	Artwork map[string]string `json:"artwork,omitempty"`

	// Playback state.
	Played     bool   `json:"played,omitempty"`
	PlayCount  int    `json:"play_count,omitempty"`
	ResumeSecs int64  `json:"resume_secs,omitempty"`
	LastPlayed string `json:"last_played,omitempty"`

	// Maintained by the catalog store.
	ImportedAt time.Time `json:"imported_at,omitempty"`
	UpdatedAt  time.Time `json:"updated_at,omitempty"`
}

// Key returns the store key of the item within its provider and media type
// bucket.
func (c *CatalogItem) Key() string {
	return c.RemoteID
}
