// Catalogus - Media Library Synchronization Engine
// Copyright 2026 Catalogus Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/catalogus/catalogus

package models

// Canonical media types of the local catalog.
const (
	MediaTypeMovie      = "movie"
	MediaTypeTvShow     = "tvshow"
	MediaTypeSeason     = "season"
	MediaTypeEpisode    = "episode"
	MediaTypeMusicVideo = "musicvideo"
)

// ItemTypeBoxSet is the remote item type of a collection. Collections are
// not a catalog media type of their own; they are reconciled into movie
// items as a label.
const ItemTypeBoxSet = "BoxSet"

// mediaTypeMapping binds one catalog media type to its remote item type.
// Mixed-content libraries can hold every supported type except music videos,
// so those types also match views without a collection type.
type mediaTypeMapping struct {
	mediaType     string
	itemType      string
	includesMixed bool
}

var mediaTypeMappings = []mediaTypeMapping{
	{MediaTypeMovie, "Movie", true},
	{MediaTypeTvShow, "Series", true},
	{MediaTypeSeason, "Season", true},
	{MediaTypeEpisode, "Episode", true},
	{MediaTypeMusicVideo, "MusicVideo", false},
}

// AllMediaTypes returns the supported media types in their canonical
// order. Callers that scan the catalog provider-wide iterate this order so
// matching stays deterministic.
func AllMediaTypes() []string {
	types := make([]string, len(mediaTypeMappings))
	for i, m := range mediaTypeMappings {
		types[i] = m.mediaType
	}
	return types
}

// ItemTypeFor maps a catalog media type to the remote item type used in
// IncludeItemTypes queries. ok is false for unsupported media types.
func ItemTypeFor(mediaType string) (itemType string, ok bool) {
	for _, m := range mediaTypeMappings {
		if m.mediaType == mediaType {
			return m.itemType, true
		}
	}
	return "", false
}

// MediaTypeForItemType maps a remote item type back to the catalog media
// type. ok is false for item types that are not synchronized (BoxSet,
// Audio, ...).
func MediaTypeForItemType(itemType string) (mediaType string, ok bool) {
	for _, m := range mediaTypeMappings {
		if m.itemType == itemType {
			return m.mediaType, true
		}
	}
	return "", false
}

// IncludesMixed reports whether any of the given media types may be served
// out of a mixed-content library.
func IncludesMixed(mediaTypes []string) bool {
	for _, mt := range mediaTypes {
		for _, m := range mediaTypeMappings {
			if m.mediaType == mt && m.includesMixed {
				return true
			}
		}
	}
	return false
}

// ViewMatches reports whether a view serves any of the given media types.
// A typed view matches a media type when its collection type equals the
// media type or its plural ("movies" matches "movie"). Mixed views match
// when any media type is eligible for mixed libraries.
func ViewMatches(view *LibraryView, mediaTypes []string) bool {
	if view.IsMixed() {
		return IncludesMixed(mediaTypes)
	}
	for _, mt := range mediaTypes {
		if view.CollectionType == mt || view.CollectionType == mt+"s" {
			return true
		}
	}
	return false
}
