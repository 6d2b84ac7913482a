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

// ImportRunner is the slice of the synchronization engine the scheduler
// drives. Satisfied by *sync.Engine.
type ImportRunner interface {
	RunAll(ctx context.Context) error
}

// SchedulerService triggers import cycles for every subscription.
//
// With onStartup set it runs one cycle as soon as it is started. A
// positive interval then repeats the cycle on that cadence; a zero
// interval parks the service after the optional startup run, leaving
// further imports to notification channels and the admin API.
type SchedulerService struct {
	runner    ImportRunner
	interval  time.Duration
	onStartup bool
	name      string
}

// NewSchedulerService creates the periodic import service.
func NewSchedulerService(runner ImportRunner, interval time.Duration, onStartup bool) *SchedulerService {
	return &SchedulerService{
		runner:    runner,
		interval:  interval,
		onStartup: onStartup,
		name:      "import-scheduler",
	}
}

// Serve implements suture.Service. Cycle errors are logged and swallowed;
// the engine already isolates per-subscription failures, so a broken
// provider costs one noisy log line per cycle rather than a restart loop.
func (s *SchedulerService) Serve(ctx context.Context) error {
	if s.onStartup {
		s.run(ctx)
	}

	if s.interval <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.run(ctx)
		}
	}
}

func (s *SchedulerService) run(ctx context.Context) {
	start := time.Now()
	if err := s.runner.RunAll(ctx); err != nil {
		logging.Error().
			Err(err).
			Dur("duration", time.Since(start)).
			Msg("Import cycle finished with errors")
		return
	}
	logging.Debug().
		Dur("duration", time.Since(start)).
		Msg("Import cycle complete")
}

// String implements fmt.Stringer for supervisor log messages.
func (s *SchedulerService) String() string {
	return s.name
}
