// Catalogus - Media Library Synchronization Engine
// Copyright 2026 Catalogus Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/catalogus/catalogus

/*
Package models defines the shared data types of the catalog and the
Emby/Jellyfin wire protocol.

Item is the normalized catalog entry every provider maps into.
CatalogItem wraps it with import bookkeeping, and ItemChange carries one
add, update, or removal through the synchronization pipeline.

The emby.go types mirror the remote server's JSON: WebSocket frames,
authentication exchanges, library views, and the paginated item listing.
Field names follow the server's PascalCase JSON, so these types stay
close to the protocol documentation rather than Go conventions.

Media type constants (movie, tvshow, season, episode, musicvideo) name
the importable catalog categories and map to the server's item types via
ItemTypeFor and MediaTypeForItemType.
*/
package models
