// Catalogus - Media Library Synchronization Engine
// Copyright 2026 Catalogus Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/catalogus/catalogus

package services

import (
	"context"
	"time"

	"github.com/catalogus/catalogus/internal/logging"
)

// ChangeProcessor is the slice of the synchronization engine the observer
// drives. Satisfied by *sync.Engine.
type ChangeProcessor interface {
	Process(ctx context.Context) error
}

// ObserverService runs the engine's poll tick on a fixed cadence.
//
// Each tick reconnects notification channels that are due, drains their
// pending frames, and applies the resolved changes to the catalog. The
// engine handles connection backoff itself, so the service ticks at a
// constant rate regardless of provider health.
type ObserverService struct {
	engine   ChangeProcessor
	interval time.Duration
	name     string
}

// NewObserverService creates the poll tick service. A non-positive
// interval falls back to one second.
func NewObserverService(engine ChangeProcessor, interval time.Duration) *ObserverService {
	if interval <= 0 {
		interval = time.Second
	}
	return &ObserverService{
		engine:   engine,
		interval: interval,
		name:     "change-observer",
	}
}

// Serve implements suture.Service. The first tick fires immediately so
// channels connect at startup instead of one interval later. Tick errors
// are logged and swallowed; a failing provider is the engine's problem to
// back off from, not a reason to restart the service.
func (o *ObserverService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()

	o.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			o.tick(ctx)
		}
	}
}

func (o *ObserverService) tick(ctx context.Context) {
	if err := o.engine.Process(ctx); err != nil {
		logging.Warn().Err(err).Msg("Change processing failed")
	}
}

// String implements fmt.Stringer for supervisor log messages.
func (o *ObserverService) String() string {
	return o.name
}
