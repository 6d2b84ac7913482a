// Catalogus - Media Library Synchronization Engine
// Copyright 2026 Catalogus Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/catalogus/catalogus

package models

import (
	"github.com/goccy/go-json"
)

// ============================================================================
// Emby WebSocket Notification Models
// ============================================================================
// These structures represent real-time notifications from Emby's WebSocket
// endpoint: ws://{emby_url}/embywebsocket?api_key={api_key}&deviceId={deviceId}
// Jellyfin serves the same frame format on the same path.

// WebSocket message types relevant to library synchronization. Messages with
// any other type are ignored.
const (
	MessageTypeLibraryChanged     = "LibraryChanged"
	MessageTypeUserDataChanged    = "UserDataChanged"
	MessageTypeServerShuttingDown = "ServerShuttingDown"
	MessageTypeServerRestarting   = "ServerRestarting"
)

// WebSocketMessage is the envelope of every Emby WebSocket frame. Data is
// kept raw because its shape depends on MessageType.
type WebSocketMessage struct {
	MessageType string          `json:"MessageType"`
	Data        json.RawMessage `json:"Data"`
}

// LibraryChangedData is the payload of a LibraryChanged message. Each list
// holds item ids.
type LibraryChangedData struct {
	ItemsAdded   []string `json:"ItemsAdded"`
	ItemsUpdated []string `json:"ItemsUpdated"`
	ItemsRemoved []string `json:"ItemsRemoved"`
}

// UserDataChange identifies one item whose user data (playcount, resume
// position, favorite flag) changed.
type UserDataChange struct {
	ItemID string `json:"ItemId"`
}

// UserDataChangedData is the payload of a UserDataChanged message.
type UserDataChangedData struct {
	UserDataList []UserDataChange `json:"UserDataList"`
}

// ============================================================================
// Authentication
// ============================================================================
// POST Users/AuthenticateByName with an X-Emby-Authorization header yields an
// access token bound to the authenticated user.

// AuthenticateByNameRequest is the login request body. Emby expects the
// password under the key "Pw".
type AuthenticateByNameRequest struct {
	Username string `json:"Username"`
	Pw       string `json:"Pw"`
}

// AuthenticatedUser carries the user identity of a login response.
type AuthenticatedUser struct {
	ID   string `json:"Id"`
	Name string `json:"Name,omitempty"`
}

// AuthenticateByNameResponse is the login response body.
type AuthenticateByNameResponse struct {
	AccessToken string            `json:"AccessToken"`
	User        AuthenticatedUser `json:"User"`
}

// ============================================================================
// Server Identity
// ============================================================================

// ProductNameJellyfin is the ProductName reported by Jellyfin servers.
// Emby servers either omit the field or report a different name.
const ProductNameJellyfin = "Jellyfin Server"

// PublicSystemInfo is the response of GET System/Info/Public, available
// without authentication.
type PublicSystemInfo struct {
	ID          string `json:"Id"`
	ServerName  string `json:"ServerName"`
	Version     string `json:"Version"`
	ProductName string `json:"ProductName"`
}

// IsJellyfin reports whether the server identifies as Jellyfin rather than
// Emby. The distinction matters for companion plugin endpoints.
func (i *PublicSystemInfo) IsJellyfin() bool {
	return i.ProductName == ProductNameJellyfin
}

// ProviderIdentifier derives the stable provider identity from a server id.
// It survives server renames and URL changes.
func ProviderIdentifier(serverID string) string {
	return "emby://" + serverID + "/"
}

// PluginInfo describes one installed server plugin, from GET Plugins.
type PluginInfo struct {
	ID      string `json:"Id"`
	Name    string `json:"Name"`
	Version string `json:"Version,omitempty"`
}

// ============================================================================
// Library Views
// ============================================================================

// LibraryView is one library of the remote server, from
// GET Users/{userId}/Views. Mixed-content libraries carry no CollectionType.
type LibraryView struct {
	ID             string `json:"Id"`
	Name           string `json:"Name"`
	CollectionType string `json:"CollectionType,omitempty"`
}

// IsMixed reports whether the view is a mixed-content library.
func (v *LibraryView) IsMixed() bool {
	return v.CollectionType == ""
}

// ViewsResponse is the response envelope of GET Users/{userId}/Views.
type ViewsResponse struct {
	Items []LibraryView `json:"Items"`
}

// ============================================================================
// Item Queries
// ============================================================================

// ItemsPage is one page of GET Users/{userId}/Items. Both fields are
// required; a response missing either is structurally invalid and aborts
// the running crawl. TotalRecordCount is a pointer so absence is
// distinguishable from zero.
type ItemsPage struct {
	Items            []Item `json:"Items"`
	TotalRecordCount *int   `json:"TotalRecordCount"`
}

// Valid reports whether the page carries both required fields.
func (p *ItemsPage) Valid() bool {
	return p.Items != nil && p.TotalRecordCount != nil
}

// Total returns the server-reported total item count, or 0 when absent.
func (p *ItemsPage) Total() int {
	if p.TotalRecordCount == nil {
		return 0
	}
	return *p.TotalRecordCount
}

// ============================================================================
// Companion Sync Queue
// ============================================================================
// The Kodi companion server plugin records library changes while clients are
// offline. GET {endpoint}/{userId}/GetItems?LastUpdateDT={timestamp} returns
// everything that changed since the given time.

// SyncQueue is the differential change set returned by the companion plugin.
type SyncQueue struct {
	ItemsAdded      []string         `json:"ItemsAdded"`
	ItemsUpdated    []string         `json:"ItemsUpdated"`
	ItemsRemoved    []string         `json:"ItemsRemoved"`
	UserDataChanged []UserDataChange `json:"UserDataChanged"`
}

// Empty reports whether the queue carries no changes at all.
func (q *SyncQueue) Empty() bool {
	return len(q.ItemsAdded) == 0 && len(q.ItemsUpdated) == 0 &&
		len(q.ItemsRemoved) == 0 && len(q.UserDataChanged) == 0
}
