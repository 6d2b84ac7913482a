// Catalogus - Media Library Synchronization Engine
// Copyright 2026 Catalogus Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/catalogus/catalogus

/*
item_mapper.go - Wire Item to Catalog Item Mapping

Converts one remote server item into the local catalog representation.
The resolver and the synchronizer both build their changesets through
this mapper, so fetched push changes and crawled pages produce identical
catalog rows.
*/

package sync

import (
	"context"
	"fmt"
	"strings"

	"github.com/catalogus/catalogus/internal/models"
)

// imageKindNames maps remote image types to catalog artwork kinds.
// Backdrops arrive on a separate field and become fanart.
var imageKindNames = map[string]string{
	"Primary": "poster",
	"Art":     "clearart",
	"Banner":  "banner",
	"Disc":    "discart",
	"Logo":    "clearlogo",
	"Thumb":   "landscape",
}

// itemMapper carries the per-provider context needed to turn wire items
// into catalog items.
type itemMapper struct {
	provider   string
	serverURL  string
	serverID   string
	directPlay bool
}

// sessionMapper builds the mapper for one session, resolving the server id
// when the server is reachable. Without it the mapper falls back to the
// server id each item carries.
func sessionMapper(ctx context.Context, sess *session) *itemMapper {
	serverID := ""
	if info, err := sess.client.SystemInfo(ctx); err == nil && info != nil {
		serverID = info.ID
	}
	return newItemMapper(sess.provider, serverID)
}

func newItemMapper(p Provider, serverID string) *itemMapper {
	return &itemMapper{
		provider:   p.Name,
		serverURL:  strings.TrimSuffix(p.URL, "/"),
		serverID:   serverID,
		directPlay: p.AllowDirectPlay,
	}
}

// catalogItem maps one wire item into its catalog representation under the
// given media type.
func (m *itemMapper) catalogItem(it *models.Item, mediaType string) models.CatalogItem {
	ci := models.CatalogItem{
		RemoteID:  it.ID,
		Provider:  m.provider,
		MediaType: mediaType,

		Title:         it.Name,
		SortTitle:     it.SortName,
		OriginalTitle: it.OriginalTitle,
		Path:          it.Path,

		Year:      it.ProductionYear,
		Premiered: datePart(it.PremiereDate),
		DateAdded: it.DateCreated,

		Overview: it.Overview,
		Genres:   it.Genres,
		Tags:     it.Tags,
		Country:  it.ProductionLocations,

		CommunityRating: it.CommunityRating,
		CriticRating:    it.CriticRating,
		Votes:           it.VoteCount,
		MPAA:            it.OfficialRating,

		RuntimeSeconds: it.RuntimeSeconds(),
		People:         it.People,
	}

	if len(it.Taglines) > 0 {
		ci.Tagline = it.Taglines[0]
	}
	for _, s := range it.Studios {
		if s.Name != "" {
			ci.Studios = append(ci.Studios, s.Name)
		}
	}
	for name, id := range it.ProviderIDs {
		if ci.ProviderIDs == nil {
			ci.ProviderIDs = make(map[string]string, len(it.ProviderIDs))
		}
		ci.ProviderIDs[strings.ToLower(name)] = id
	}

	switch mediaType {
	case models.MediaTypeTvShow:
		ci.Status = it.Status
	case models.MediaTypeSeason:
		ci.Series = it.SeriesName
		ci.Season = it.IndexNumber
	case models.MediaTypeEpisode:
		ci.Series = it.SeriesName
		ci.Season = it.ParentIndexNumber
		ci.Episode = it.IndexNumber
	}

	if ud := it.UserData; ud != nil {
		ci.Played = ud.Played
		ci.PlayCount = ud.PlayCount
		ci.ResumeSecs = ud.ResumePositionSeconds()
		ci.LastPlayed = ud.LastPlayedDate
	}

	ci.Artwork = m.artwork(it)
	ci.PlayURL = m.playURL(it)

	return ci
}

// artwork builds artwork URLs from the item's image tags. The tag query
// parameter lets clients cache-bust on image replacement.
func (m *itemMapper) artwork(it *models.Item) map[string]string {
	if len(it.ImageTags) == 0 && len(it.BackdropImageTags) == 0 {
		return nil
	}
	art := make(map[string]string, len(it.ImageTags)+1)
	for imageType, tag := range it.ImageTags {
		kind, ok := imageKindNames[imageType]
		if !ok {
			continue
		}
		art[kind] = m.imageURL(it.ID, imageType, tag)
	}
	if len(it.BackdropImageTags) > 0 {
		art["fanart"] = m.imageURL(it.ID, "Backdrop", it.BackdropImageTags[0])
	}
	if len(art) == 0 {
		return nil
	}
	return art
}

func (m *itemMapper) imageURL(itemID, imageType, tag string) string {
	return fmt.Sprintf("%s/Items/%s/Images/%s?tag=%s", m.serverURL, itemID, imageType, tag)
}

// playURL resolves where playback would fetch the item from. Direct play
// uses the remote filesystem path as-is; otherwise the item is addressed
// through the stable provider identity so the catalog survives server URL
// changes.
func (m *itemMapper) playURL(it *models.Item) string {
	if m.directPlay && it.Path != "" {
		return it.Path
	}
	serverID := m.serverID
	if serverID == "" {
		serverID = it.ServerID
	}
	return models.ProviderIdentifier(serverID) + it.ID
}

// datePart strips the time component off an ISO 8601 timestamp, leaving
// the date the way catalog consumers expect it.
func datePart(ts string) string {
	if i := strings.IndexByte(ts, 'T'); i > 0 {
		return ts[:i]
	}
	return ts
}
