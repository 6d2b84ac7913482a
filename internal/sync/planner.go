// Catalogus - Media Library Synchronization Engine
// Copyright 2026 Catalogus Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/catalogus/catalogus

/*
planner.go - Sync Planner

Decides, once per synchronization run, whether the run may take the fast
differential path or must crawl fully. Fast sync needs three things at
once: an intact settings fingerprint, a persisted baseline timestamp, and
a provider whose companion plugin answers the capability probe. The
planner is the only writer of the per-subscription sync state.
*/

package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/catalogus/catalogus/internal/logging"
)

// plan is the outcome of one planning decision. since is meaningful only
// when fast is set.
type plan struct {
	fast  bool
	since time.Time
}

// Planner owns the per-subscription sync state.
type Planner struct {
	state SyncStateStore
}

func NewPlanner(state SyncStateStore) *Planner {
	return &Planner{state: state}
}

// Plan evaluates the decision procedure for one run. A changed fingerprint
// is persisted immediately and forces the full path even when a baseline
// exists; the baseline itself is only consumed when the provider has
// companion sync enabled and the server confirms the delta endpoint.
func (p *Planner) Plan(ctx context.Context, sess *session, sub *Subscription) (plan, error) {
	current := computeFingerprint(sess.provider, sub)
	stored, err := p.state.Fingerprint(sub.ID)
	if err != nil {
		return plan{}, fmt.Errorf("fingerprint load: %w", err)
	}
	if stored != current {
		if err := p.state.SetFingerprint(sub.ID, current); err != nil {
			return plan{}, fmt.Errorf("fingerprint store: %w", err)
		}
		if stored != "" {
			logging.Info().
				Str("subscription", sub.ID).
				Msg("Sync settings changed, full import forced")
		}
		return plan{}, nil
	}

	last, ok, err := p.state.LastSync(sub.ID)
	if err != nil {
		return plan{}, fmt.Errorf("last sync load: %w", err)
	}
	if !ok || !sess.provider.UseCompanion {
		return plan{}, nil
	}

	supported, err := sess.client.ProbeCapability(ctx, CapabilityCompanion)
	if err != nil {
		logging.Warn().
			Str("subscription", sub.ID).
			Err(err).
			Msg("Companion capability probe failed, falling back to full import")
		return plan{}, nil
	}
	if !supported {
		return plan{}, nil
	}

	return plan{fast: true, since: last}, nil
}

// Complete records a successful run. startedAt becomes the next baseline;
// using the run's start instead of its end keeps changes that landed
// mid-run inside the next delta window.
func (p *Planner) Complete(sub *Subscription, startedAt time.Time) error {
	return p.state.SetLastSync(sub.ID, startedAt)
}

// ForceFull drops the incremental baseline so the next run crawls fully.
// The fingerprint stays as it is.
func (p *Planner) ForceFull(sub *Subscription) error {
	return p.state.ClearLastSync(sub.ID)
}
