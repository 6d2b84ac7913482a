// Catalogus - Media Library Synchronization Engine
// Copyright 2026 Catalogus Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/catalogus/catalogus

/*
Package sync keeps local media catalogs synchronized with remote
Emby/Jellyfin-compatible media servers.

This package is the engine core. It combines a push channel (the server's
WebSocket change notifications) with a pull crawl (paginated listing of the
server's libraries) and reduces both to changesets the host catalog applies.
The engine never owns persistent state; everything it keeps across runs goes
through the Catalog and SyncStateStore interfaces in host.go.

Key Components:

  - Engine: session and subscription registry, the poll tick, import runs
  - EmbyClient: REST client for the remote server (api-key or user/password
    auth, paginated listing, companion sync queue)
  - Channel: WebSocket notification channel with poll-driven reads
  - Resolver: turns drained notification frames into per-subscription
    changesets
  - Synchronizer: the full and fast import crawl, including collection
    reconciliation and pruning
  - Planner: decides fast versus full per run from the settings fingerprint,
    the stored baseline and a companion capability probe
  - Circuit Breaker: wraps the client so a flapping server trips open
    instead of hammering

Architecture:

One poll tick (Engine.Process) services every provider in registration
order:

 1. Reconnect: channels left Disconnected are restarted once their backoff
    window has elapsed (1s doubling to 60s).
 2. Drain: each Connected channel is polled with a sub-second read deadline;
    a quiet socket yields an empty drain, not a block.
 3. Resolve: drained frames become item fetches and removal matches, grouped
    per subscription and applied in one ApplyChangeset call each.

Imports (Engine.RunImport) run independently of the tick: the planner picks
the mode, the synchronizer crawls or fetches the delta, and the planner
persists the new baseline only after an uncancelled, successful run. One
import runs at a time; duplicate triggers for a subscription fail fast with
ErrRunInFlight.

Usage Example:

	import (
	    "context"

	    "github.com/catalogus/catalogus/internal/catalog"
	    "github.com/catalogus/catalogus/internal/sync"
	)

	store, err := catalog.Open("/data/catalogus.db")
	if err != nil {
	    return err
	}
	engine := sync.NewEngine(store, store, sync.Options{PageSize: 100})

	if err := engine.AddProvider(sync.Provider{
	    Name:   "main",
	    URL:    "https://emby.local:8096",
	    APIKey: "...",
	}); err != nil {
	    return err
	}
	if err := engine.AddSubscription(sync.Subscription{
	    ID:         "main",
	    Provider:   "main",
	    MediaTypes: []string{"movie", "tvshow"},
	}); err != nil {
	    return err
	}

	// Poll tick, normally driven by a ticker.
	_ = engine.Process(context.Background())

	// Full or fast import, scheduler- or API-driven.
	if err := engine.RunImport(context.Background(), "main", nil); err != nil {
	    return err
	}

Fault Tolerance:

  - Circuit breaker around every client; authentication failures and
    context cancellation do not count toward tripping it.
  - Channel failures cost one poll tick: the channel drops to Disconnected
    and the engine reconnects on its backoff cadence.
  - A structurally invalid listing page aborts only the current media type;
    media types already applied keep their changesets.
  - Fetch failures during resolution drop the single item with a warning
    instead of failing the batch.

Thread Safety:

All Engine methods are goroutine-safe. The registry mutex is held only for
map and slice access; a second mutex serializes import work so Process and
RunImport never interleave crawls; a per-subscription in-flight set makes
duplicate triggers fail fast instead of queueing.

Metrics:

Prometheus metrics are exported for observability:

  - sync_runs_total / sync_run_duration_seconds
  - sync_page_requests_total, sync_changes_emitted_total
  - channel_state, channel_messages_received_total
  - resolver_events_total, circuit_breaker_state

See Also:

  - internal/catalog: bbolt realization of Catalog and SyncStateStore
  - internal/models: wire models for the remote server protocol
  - internal/supervisor/services: the daemon loops driving Process and
    RunAll
*/
package sync
