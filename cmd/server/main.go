// Catalogus - Media Library Synchronization Engine
// Copyright 2026 Catalogus Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/catalogus/catalogus

// Command server runs the Catalogus daemon.
//
// The daemon keeps a local media catalog in sync with one or more Emby or
// Jellyfin servers. It connects a notification channel per provider for
// near-realtime changes, runs scheduled import crawls, and serves an
// admin HTTP API with Prometheus metrics.
//
// # Usage
//
//	catalogus -config /etc/catalogus/config.yaml
//
// Without -config, the loader checks CONFIG_PATH and the usual config
// file locations. Scalar settings can also come from the environment
// (providers and imports are file-only):
//
//	HTTP_PORT=8477 CATALOG_PATH=/data/catalogus.db LOG_LEVEL=debug catalogus
//
// The daemon shuts down gracefully on SIGINT and SIGTERM: the HTTP
// server drains connections, notification channels close, and a running
// import finishes its current media type before the baseline persists.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/catalogus/catalogus/internal/api"
	"github.com/catalogus/catalogus/internal/catalog"
	"github.com/catalogus/catalogus/internal/config"
	"github.com/catalogus/catalogus/internal/logging"
	"github.com/catalogus/catalogus/internal/supervisor"
	"github.com/catalogus/catalogus/internal/supervisor/services"
	"github.com/catalogus/catalogus/internal/sync"
)

// version is set at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to the YAML configuration file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("catalogus " + version)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		// Default logger; config is not available yet.
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("version", version).
		Int("providers", len(cfg.Providers)).
		Int("imports", len(cfg.Imports)).
		Msg("Starting Catalogus")

	store, err := catalog.Open(cfg.Catalog.Path)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open catalog store")
	}
	defer func() {
		if err := store.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing catalog store")
		}
	}()

	engine := sync.NewEngine(store, store, sync.Options{
		PageSize:       cfg.Sync.PageSize,
		ReadTimeout:    cfg.Sync.ReadTimeout,
		RequestTimeout: cfg.Sync.RequestTimeout,
		RateLimit:      cfg.Sync.RateLimit,
	})
	for i := range cfg.Providers {
		if err := engine.AddProvider(sync.ProviderFromConfig(&cfg.Providers[i])); err != nil {
			logging.Fatal().Err(err).Str("provider", cfg.Providers[i].Name).Msg("Failed to register provider")
		}
	}
	for _, sub := range sync.SubscriptionsFromConfig(cfg) {
		if err := engine.AddSubscription(sub); err != nil {
			logging.Fatal().Err(err).Str("subscription", sub.ID).Msg("Failed to register subscription")
		}
	}

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Bridge zerolog to slog for sutureslog
	slogLogger := logging.NewSlogLogger()

	tree, err := supervisor.NewSupervisorTree(slogLogger, supervisor.DefaultTreeConfig())
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}

	tree.AddSyncService(services.NewObserverService(engine, cfg.Sync.PollInterval))
	logging.Info().Dur("poll_interval", cfg.Sync.PollInterval).Msg("Change observer added to supervisor tree")

	if cfg.Sync.Interval > 0 || cfg.Sync.OnStartup {
		tree.AddSyncService(services.NewSchedulerService(engine, cfg.Sync.Interval, cfg.Sync.OnStartup))
		logging.Info().
			Dur("interval", cfg.Sync.Interval).
			Bool("on_startup", cfg.Sync.OnStartup).
			Msg("Import scheduler added to supervisor tree")
	} else {
		logging.Info().Msg("Import scheduler disabled - imports run on demand")
	}

	if cfg.Server.Enabled {
		handler := api.NewHandler(engine, store, version)
		server := &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			Handler:      api.NewRouter(handler),
			ReadTimeout:  cfg.Server.Timeout,
			WriteTimeout: cfg.Server.Timeout,
			IdleTimeout:  60 * time.Second,
		}
		tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))
		logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")
	} else {
		logging.Info().Msg("Admin API disabled")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree...")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish...")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	// Wait for the error channel to close (supervisor finished)
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	if len(unstopped) > 0 {
		logging.Warn().Int("count", len(unstopped)).Msg("Services failed to stop within timeout")
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
		}
	}

	engine.Shutdown()
	logging.Info().Msg("Application stopped gracefully")
}
