// Catalogus - Media Library Synchronization Engine
// Copyright 2026 Catalogus Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/catalogus/catalogus

/*
session.go - Providers, Subscriptions and Provider Sessions

A Provider is the configured identity of one remote server. A Subscription
binds a provider to a set of media types and an optional view selection. A
session is the engine's live state for one provider: the authenticated
client plus the notification channel. Sessions are replaced atomically
behind the engine mutex, so no caller ever observes a half-initialized one.
*/

package sync

import (
	"fmt"
	"time"

	"github.com/catalogus/catalogus/internal/config"
	"github.com/catalogus/catalogus/internal/models"
)

// Provider identifies one remote media server endpoint and how to talk to
// it. Name doubles as the catalog's provider key; it must stay stable
// across configuration reloads or imported items will orphan.
type Provider struct {
	Name     string
	URL      string
	Username string
	Password string
	APIKey   string
	UserID   string
	DeviceID string

	// AllowDirectPlay publishes filesystem paths as play URLs instead of
	// provider references. Part of the sync fingerprint.
	AllowDirectPlay bool

	// UseCompanion enables fast sync through the Kodi companion plugin's
	// sync queue. Part of the sync fingerprint.
	UseCompanion bool
}

// Equal reports whether two providers are identical in every field. The
// engine reuses the live session when an update is Equal to the current
// provider and tears it down otherwise.
func (p Provider) Equal(o Provider) bool {
	return p == o
}

// Subscription binds a provider to the media types it imports.
type Subscription struct {
	ID       string
	Provider string

	// MediaTypes lists the catalog media types to import, in import order.
	MediaTypes []string

	// Views restricts the crawl to these library view ids. Empty means all
	// matching views. Part of the sync fingerprint.
	Views []string

	// ImportCollections reconciles movie boxsets into collection labels.
	// Part of the sync fingerprint while movies are subscribed.
	ImportCollections bool
}

// HasMediaType reports whether the subscription imports the given media
// type.
func (s *Subscription) HasMediaType(mediaType string) bool {
	for _, mt := range s.MediaTypes {
		if mt == mediaType {
			return true
		}
	}
	return false
}

// session is the live per-provider state. All fields are owned by the
// engine and accessed under its mutex.
type session struct {
	provider Provider
	client   EmbyClientInterface
	channel  *Channel

	// Server identity, cached after the first successful SystemInfo call.
	info *models.PublicSystemInfo

	// Channel reconnect cadence. The poll loop retries Start only after
	// nextConnect, doubling the delay up to reconnectMaxDelay on failure
	// and resetting it on success.
	connectDelay time.Duration
	nextConnect  time.Time
}

const (
	reconnectBaseDelay = time.Second
	reconnectMaxDelay  = 60 * time.Second
)

// connectFailed pushes the next connect attempt out by the current delay
// and doubles it for the attempt after that.
func (s *session) connectFailed(now time.Time) {
	if s.connectDelay < reconnectBaseDelay {
		s.connectDelay = reconnectBaseDelay
	}
	s.nextConnect = now.Add(s.connectDelay)
	s.connectDelay *= 2
	if s.connectDelay > reconnectMaxDelay {
		s.connectDelay = reconnectMaxDelay
	}
}

// connectSucceeded resets the reconnect cadence.
func (s *session) connectSucceeded() {
	s.connectDelay = reconnectBaseDelay
	s.nextConnect = time.Time{}
}

// identity returns the provider identity derived from the server id, or
// the empty string until the server has been reached once.
func (s *session) identity() string {
	if s.info == nil || s.info.ID == "" {
		return ""
	}
	return models.ProviderIdentifier(s.info.ID)
}

// ProviderFromConfig maps one configured provider into the engine's
// Provider value.
func ProviderFromConfig(pc *config.ProviderConfig) Provider {
	return Provider{
		Name:            pc.Name,
		URL:             pc.URL,
		Username:        pc.Username,
		Password:        pc.Password,
		APIKey:          pc.APIKey,
		UserID:          pc.UserID,
		DeviceID:        pc.DeviceID,
		AllowDirectPlay: pc.AllowDirectPlay,
		UseCompanion:    pc.UseCompanion,
	}
}

// SubscriptionsFromConfig maps the configured imports into subscriptions.
// The subscription id is the provider name; when one provider has several
// imports the second and later ones get a 1-based ordinal suffix, so ids
// stay stable as long as import order does.
func SubscriptionsFromConfig(cfg *config.Config) []Subscription {
	perProvider := make(map[string]int, len(cfg.Imports))
	subs := make([]Subscription, 0, len(cfg.Imports))
	for _, imp := range cfg.Imports {
		perProvider[imp.Provider]++
		id := imp.Provider
		if n := perProvider[imp.Provider]; n > 1 {
			id = fmt.Sprintf("%s.%d", imp.Provider, n)
		}
		subs = append(subs, Subscription{
			ID:                id,
			Provider:          imp.Provider,
			MediaTypes:        append([]string(nil), imp.MediaTypes...),
			Views:             append([]string(nil), imp.Views...),
			ImportCollections: imp.ImportCollections,
		})
	}
	return subs
}
