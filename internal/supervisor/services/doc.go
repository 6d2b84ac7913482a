// Catalogus - Media Library Synchronization Engine
// Copyright 2026 Catalogus Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/catalogus/catalogus

/*
Package services provides suture.Service wrappers for Catalogus components.

Each wrapper adapts a component's native lifecycle to suture's
context-aware Serve pattern:

	type Service interface {
	    Serve(ctx context.Context) error
	}

ObserverService drives the synchronization engine's poll tick on a fixed
interval, keeping notification channels connected and applying the changes
they deliver.

SchedulerService triggers full import cycles, optionally once at startup
and then periodically. With no interval and no startup run it parks until
shutdown, leaving imports to the admin API.

HTTPServerService runs an *http.Server under supervision, translating the
blocking ListenAndServe call into Serve and draining connections through
Shutdown when the context is canceled.

Return values decide what the supervisor does next: nil means the service
completed and stays stopped, an error schedules a restart, and ctx.Err()
marks an ordinary shutdown. The observer and scheduler swallow per-cycle
errors after logging them, so a media server outage shows up in the logs
rather than as restart churn.
*/
package services
