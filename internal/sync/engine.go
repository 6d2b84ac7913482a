// Catalogus - Media Library Synchronization Engine
// Copyright 2026 Catalogus Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/catalogus/catalogus

/*
engine.go - Synchronization Engine

The engine owns the provider sessions and subscriptions, drives the poll
tick that services every notification channel, and runs imports.

Locking: mu guards the registries and is held only for map and slice
access. runMu serializes all import work; the poll tick takes it with
TryLock so ticks never stack up behind a running crawl. runningMu guards
the per-subscription in-flight set that lets duplicate triggers fail fast
with ErrRunInFlight instead of queueing twice.
*/

package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/catalogus/catalogus/internal/logging"
	"github.com/catalogus/catalogus/internal/metrics"
	"github.com/catalogus/catalogus/internal/models"
)

// Options configures the engine.
type Options struct {
	// PageSize bounds one crawl page request.
	PageSize int

	// ReadTimeout is the per-frame poll deadline of notification channels.
	ReadTimeout time.Duration

	// RequestTimeout bounds one HTTP request to a provider.
	RequestTimeout time.Duration

	// RateLimit caps page requests per second per provider; zero disables.
	RateLimit float64

	// Progress receives import progress and cancellation checks; nil means
	// NopProgress.
	Progress ProgressReporter
}

// Engine wires the notification channels, the resolver, the planner and
// the synchronizer together and exposes the operations the daemon and the
// API call.
type Engine struct {
	catalog Catalog
	state   SyncStateStore
	opts    Options

	resolver     *Resolver
	synchronizer *Synchronizer
	planner      *Planner

	mu       sync.RWMutex
	sessions map[string]*session
	order    []string
	subs     []Subscription

	runMu sync.Mutex

	runningMu sync.Mutex
	running   map[string]bool
}

func NewEngine(catalog Catalog, state SyncStateStore, opts Options) *Engine {
	progress := opts.Progress
	if progress == nil {
		progress = NopProgress{}
	}
	return &Engine{
		catalog:      catalog,
		state:        state,
		opts:         opts,
		resolver:     NewResolver(catalog, progress),
		synchronizer: NewSynchronizer(catalog, progress, opts.PageSize),
		planner:      NewPlanner(state),
		sessions:     make(map[string]*session),
		running:      make(map[string]bool),
	}
}

// newSession builds the live state for one provider: the rate-limited
// client behind its circuit breaker, plus the notification channel.
func (e *Engine) newSession(p Provider) *session {
	client := NewEmbyCircuitBreakerClient(p.Name, NewEmbyClient(p, e.opts.RequestTimeout, e.opts.RateLimit))
	return &session{
		provider: p,
		client:   client,
		channel:  NewChannel(p.Name, client, e.opts.ReadTimeout),
	}
}

// AddProvider registers a provider or updates an existing registration.
// An update identical to the live provider keeps the session and its
// channel untouched; any field change tears the old session down and
// builds a fresh one. A provider without a device id inherits the live
// session's id, or gets a generated one on first registration.
func (e *Engine) AddProvider(p Provider) error {
	if p.Name == "" || p.URL == "" {
		return errors.New("provider needs a name and a URL")
	}
	if p.APIKey == "" && p.Username == "" {
		return fmt.Errorf("provider %s needs an api key or a username", p.Name)
	}

	e.mu.Lock()
	old := e.sessions[p.Name]
	if old != nil && p.DeviceID == "" {
		p.DeviceID = old.provider.DeviceID
	}
	if p.DeviceID == "" {
		p.DeviceID = uuid.NewString()
	}
	if old != nil && old.provider.Equal(p) {
		e.mu.Unlock()
		logging.Debug().Str("provider", p.Name).Msg("Provider unchanged, session kept")
		return nil
	}
	e.sessions[p.Name] = e.newSession(p)
	if old == nil {
		e.order = append(e.order, p.Name)
	}
	e.mu.Unlock()

	if old != nil {
		old.channel.Stop()
		logging.Info().Str("provider", p.Name).Msg("Provider updated, session replaced")
	} else {
		logging.Info().
			Str("provider", p.Name).
			Str("url", logging.SanitizeURL(p.URL)).
			Msg("Provider registered")
	}
	return nil
}

// UpdateProvider applies a changed provider configuration.
func (e *Engine) UpdateProvider(p Provider) error {
	return e.AddProvider(p)
}

// RemoveProvider drops a provider and stops its channel. Subscriptions
// referring to it stay registered but fail to import until the provider
// returns.
func (e *Engine) RemoveProvider(name string) error {
	e.mu.Lock()
	sess := e.sessions[name]
	if sess == nil {
		e.mu.Unlock()
		return fmt.Errorf("%s: %w", name, ErrUnknownProvider)
	}
	delete(e.sessions, name)
	for i, n := range e.order {
		if n == name {
			e.order = append(e.order[:i], e.order[i+1:]...)
			break
		}
	}
	e.mu.Unlock()

	sess.channel.Stop()
	logging.Info().Str("provider", name).Msg("Provider removed")
	return nil
}

// AddSubscription registers a subscription or replaces the registration
// with the same id in place, keeping its position in import order.
func (e *Engine) AddSubscription(sub Subscription) error {
	if sub.ID == "" || sub.Provider == "" {
		return errors.New("subscription needs an id and a provider")
	}
	if len(sub.MediaTypes) == 0 {
		return fmt.Errorf("subscription %s: no media types", sub.ID)
	}
	for _, mt := range sub.MediaTypes {
		if _, ok := models.ItemTypeFor(mt); !ok {
			return fmt.Errorf("subscription %s: %w: %s", sub.ID, ErrUnsupportedMediaType, mt)
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.subs {
		if e.subs[i].ID == sub.ID {
			e.subs[i] = sub
			logging.Info().Str("subscription", sub.ID).Msg("Subscription updated")
			return nil
		}
	}
	e.subs = append(e.subs, sub)
	logging.Info().
		Str("subscription", sub.ID).
		Str("provider", sub.Provider).
		Strs("media_types", sub.MediaTypes).
		Msg("Subscription registered")
	return nil
}

// UpdateSubscription applies a changed subscription configuration.
func (e *Engine) UpdateSubscription(sub Subscription) error {
	return e.AddSubscription(sub)
}

// RemoveSubscription drops a subscription. Its persisted sync state and
// imported items stay; re-adding the same id picks the baseline back up.
func (e *Engine) RemoveSubscription(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.subs {
		if e.subs[i].ID == id {
			e.subs = append(e.subs[:i], e.subs[i+1:]...)
			logging.Info().Str("subscription", id).Msg("Subscription removed")
			return nil
		}
	}
	return fmt.Errorf("%s: %w", id, ErrUnknownSubscription)
}

// Process runs one poll tick: reconnect due channels, drain their frames,
// resolve and apply the changes. It returns immediately when an import
// holds the run lock. The returned error joins per-provider resolution
// failures; one failing provider never starves the others of their tick.
func (e *Engine) Process(ctx context.Context) error {
	if !e.runMu.TryLock() {
		return nil
	}
	defer e.runMu.Unlock()

	e.mu.RLock()
	names := append([]string(nil), e.order...)
	sessions := make([]*session, 0, len(names))
	for _, name := range names {
		sessions = append(sessions, e.sessions[name])
	}
	subs := append([]Subscription(nil), e.subs...)
	e.mu.RUnlock()

	var errs []error
	now := time.Now()
	for i, sess := range sessions {
		if ctx.Err() != nil {
			break
		}
		name := names[i]

		if sess.channel.State() == ChannelDisconnected {
			if now.Before(sess.nextConnect) {
				continue
			}
			// A session replaced mid-tick must not reconnect its channel.
			if !e.currentSession(name, sess) {
				continue
			}
			if err := sess.channel.Start(ctx); err != nil {
				sess.connectFailed(now)
				continue
			}
			sess.connectSucceeded()
			e.cacheIdentity(ctx, sess)
		}

		msgs := sess.channel.Poll(ctx)
		if len(msgs) == 0 {
			continue
		}
		if err := e.resolver.Resolve(ctx, sess, subscriptionsFor(subs, name), msgs); err != nil {
			errs = append(errs, fmt.Errorf("provider %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// RunImport synchronizes one subscription now. mediaTypes narrows the run
// to a subset of the subscription's media types; empty means all of them.
// Duplicate triggers for the same subscription fail fast with
// ErrRunInFlight, while runs for different subscriptions queue behind the
// shared run lock. A cancelled run returns nil after skipping baseline
// persistence, so the next run retries from the same point.
func (e *Engine) RunImport(ctx context.Context, subscriptionID string, mediaTypes []string) error {
	e.mu.RLock()
	sub, ok := e.findSubscription(subscriptionID)
	var sess *session
	if ok {
		sess = e.sessions[sub.Provider]
	}
	e.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%s: %w", subscriptionID, ErrUnknownSubscription)
	}
	if sess == nil {
		return fmt.Errorf("%s: %w", sub.Provider, ErrUnknownProvider)
	}

	if len(mediaTypes) == 0 {
		mediaTypes = append([]string(nil), sub.MediaTypes...)
	} else {
		for _, mt := range mediaTypes {
			if !sub.HasMediaType(mt) {
				return fmt.Errorf("subscription %s: %w: %s", sub.ID, ErrUnsupportedMediaType, mt)
			}
		}
	}

	e.runningMu.Lock()
	if e.running[sub.ID] {
		e.runningMu.Unlock()
		return fmt.Errorf("%s: %w", sub.ID, ErrRunInFlight)
	}
	e.running[sub.ID] = true
	e.runningMu.Unlock()
	defer func() {
		e.runningMu.Lock()
		delete(e.running, sub.ID)
		e.runningMu.Unlock()
	}()

	e.runMu.Lock()
	defer e.runMu.Unlock()

	e.cacheIdentity(ctx, sess)

	runStart := time.Now().UTC()
	pl, err := e.planner.Plan(ctx, sess, &sub)
	if err != nil {
		return fmt.Errorf("planning %s: %w", sub.ID, err)
	}

	mode := "full"
	if pl.fast {
		mode = "fast"
	}
	logging.Info().
		Str("subscription", sub.ID).
		Str("provider", sub.Provider).
		Str("mode", mode).
		Strs("media_types", mediaTypes).
		Msg("Import started")

	if pl.fast {
		err = e.synchronizer.RunFast(ctx, sess, &sub, mediaTypes, pl.since)
	} else {
		err = e.synchronizer.RunFull(ctx, sess, &sub, mediaTypes)
	}

	cancelled := errors.Is(err, errCancelled)
	metrics.RecordSyncRun(sub.Provider, mode, time.Since(runStart), err, cancelled)

	if cancelled {
		logging.Info().Str("subscription", sub.ID).Msg("Import cancelled")
		return nil
	}
	if err != nil {
		logging.Error().
			Str("subscription", sub.ID).
			Str("mode", mode).
			Err(err).
			Msg("Import failed")
		return err
	}

	if err := e.planner.Complete(&sub, runStart); err != nil {
		return fmt.Errorf("persisting sync baseline for %s: %w", sub.ID, err)
	}

	logging.Info().
		Str("subscription", sub.ID).
		Str("mode", mode).
		Dur("duration", time.Since(runStart)).
		Msg("Import complete")
	return nil
}

// RunAll imports every registered subscription in order. Subscriptions
// already in flight are skipped; other failures are joined so one broken
// subscription never blocks the rest.
func (e *Engine) RunAll(ctx context.Context) error {
	var errs []error
	for _, id := range e.SubscriptionIDs() {
		if ctx.Err() != nil {
			break
		}
		if err := e.RunImport(ctx, id, nil); err != nil {
			if errors.Is(err, ErrRunInFlight) {
				continue
			}
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ForceSync clears the subscription's incremental baseline so its next
// run crawls fully. The settings fingerprint is left alone.
func (e *Engine) ForceSync(subscriptionID string) error {
	e.mu.RLock()
	sub, ok := e.findSubscription(subscriptionID)
	e.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%s: %w", subscriptionID, ErrUnknownSubscription)
	}
	if err := e.planner.ForceFull(&sub); err != nil {
		return fmt.Errorf("clearing baseline for %s: %w", sub.ID, err)
	}
	logging.Info().Str("subscription", sub.ID).Msg("Next import forced to full crawl")
	return nil
}

// Shutdown stops every notification channel. A running import keeps its
// context and finishes or cancels on its own.
func (e *Engine) Shutdown() {
	e.mu.RLock()
	sessions := make([]*session, 0, len(e.order))
	for _, name := range e.order {
		sessions = append(sessions, e.sessions[name])
	}
	e.mu.RUnlock()

	for _, sess := range sessions {
		sess.channel.Stop()
	}
	logging.Info().Msg("Synchronization engine stopped")
}

// ProviderStatus is one provider's registration and live channel state.
type ProviderStatus struct {
	Name     string `json:"name"`
	URL      string `json:"url"`
	Channel  string `json:"channel"`
	Identity string `json:"identity,omitempty"`
	Server   string `json:"server,omitempty"`
	Version  string `json:"version,omitempty"`
}

// SubscriptionStatus is one subscription's registration and run state.
type SubscriptionStatus struct {
	ID                string     `json:"id"`
	Provider          string     `json:"provider"`
	MediaTypes        []string   `json:"media_types"`
	Views             []string   `json:"views,omitempty"`
	ImportCollections bool       `json:"import_collections"`
	Running           bool       `json:"running"`
	LastSync          *time.Time `json:"last_sync,omitempty"`
}

// Providers returns the status of every provider in registration order,
// with credentials stripped from the URLs.
func (e *Engine) Providers() []ProviderStatus {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]ProviderStatus, 0, len(e.order))
	for _, name := range e.order {
		sess := e.sessions[name]
		st := ProviderStatus{
			Name:     name,
			URL:      logging.SanitizeURL(sess.provider.URL),
			Channel:  sess.channel.State().String(),
			Identity: sess.identity(),
		}
		if sess.info != nil {
			st.Server = sess.info.ServerName
			st.Version = sess.info.Version
		}
		out = append(out, st)
	}
	return out
}

// Subscriptions returns the status of every subscription in registration
// order.
func (e *Engine) Subscriptions() []SubscriptionStatus {
	e.runningMu.Lock()
	running := make(map[string]bool, len(e.running))
	for id := range e.running {
		running[id] = true
	}
	e.runningMu.Unlock()

	e.mu.RLock()
	subs := append([]Subscription(nil), e.subs...)
	e.mu.RUnlock()

	out := make([]SubscriptionStatus, 0, len(subs))
	for i := range subs {
		sub := &subs[i]
		st := SubscriptionStatus{
			ID:                sub.ID,
			Provider:          sub.Provider,
			MediaTypes:        sub.MediaTypes,
			Views:             sub.Views,
			ImportCollections: sub.ImportCollections,
			Running:           running[sub.ID],
		}
		if t, ok, err := e.state.LastSync(sub.ID); err == nil && ok {
			ts := t
			st.LastSync = &ts
		}
		out = append(out, st)
	}
	return out
}

// SubscriptionIDs returns the registered subscription ids in import order.
func (e *Engine) SubscriptionIDs() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ids := make([]string, len(e.subs))
	for i := range e.subs {
		ids[i] = e.subs[i].ID
	}
	return ids
}

// findSubscription returns a deep copy so the caller can drop the lock.
// Callers hold e.mu.
func (e *Engine) findSubscription(id string) (Subscription, bool) {
	for i := range e.subs {
		if e.subs[i].ID == id {
			sub := e.subs[i]
			sub.MediaTypes = append([]string(nil), sub.MediaTypes...)
			sub.Views = append([]string(nil), sub.Views...)
			return sub, true
		}
	}
	return Subscription{}, false
}

// currentSession reports whether the session is still the registered one
// for the provider.
func (e *Engine) currentSession(name string, sess *session) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.sessions[name] == sess
}

// cacheIdentity fills the session's server info once the server is
// reachable. The client memoizes, so repeat calls stay local.
func (e *Engine) cacheIdentity(ctx context.Context, sess *session) {
	e.mu.RLock()
	cached := sess.info != nil
	e.mu.RUnlock()
	if cached {
		return
	}

	info, err := sess.client.SystemInfo(ctx)
	if err != nil {
		logging.Debug().
			Str("provider", sess.provider.Name).
			Err(err).
			Msg("Server identity not yet available")
		return
	}

	e.mu.Lock()
	sess.info = info
	e.mu.Unlock()

	product := "Emby"
	if info.IsJellyfin() {
		product = "Jellyfin"
	}
	logging.Info().
		Str("provider", sess.provider.Name).
		Str("product", product).
		Str("server", info.ServerName).
		Str("version", info.Version).
		Str("identity", models.ProviderIdentifier(info.ID)).
		Msg("Server identity resolved")
}

// subscriptionsFor filters the snapshot down to one provider's
// subscriptions, preserving registration order.
func subscriptionsFor(subs []Subscription, provider string) []Subscription {
	var out []Subscription
	for _, sub := range subs {
		if sub.Provider == provider {
			out = append(out, sub)
		}
	}
	return out
}
