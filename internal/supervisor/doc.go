// Catalogus - Media Library Synchronization Engine
// Copyright 2026 Catalogus Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/catalogus/catalogus

/*
Package supervisor provides process supervision for Catalogus using suture v4.

This package implements a hierarchical supervisor tree that manages the
lifecycle of the long-running parts of the daemon. It provides Erlang/OTP
style supervision with automatic restart, failure isolation, and graceful
shutdown.

# Overview

The tree organizes services into two layers:

	RootSupervisor ("catalogus")
	├── SyncSupervisor ("sync-layer")
	│   ├── ObserverService   (notification channel polling)
	│   └── SchedulerService  (periodic import runs)
	└── APISupervisor ("api-layer")
	    └── HTTPServerService (admin API and metrics)

A panic or crash in either layer restarts only that layer's services. The
admin API keeps answering status requests while the sync layer recovers
from a broken media server connection, and a failed HTTP listener never
interrupts an import in progress.

# Failure Handling

Crashed services restart automatically. When a service fails more than
FailureThreshold times (decaying at FailureDecay per second), its
supervisor waits FailureBackoff before trying again, which keeps a
persistently broken service from spinning.

# Shutdown

Cancel the context passed to Serve or ServeBackground. Each service gets
ShutdownTimeout to stop; UnstoppedServiceReport names the ones that did
not make it, which is worth logging before exit.

# Usage

	tree, err := supervisor.NewSupervisorTree(logger, supervisor.DefaultTreeConfig())
	if err != nil {
	    return err
	}
	tree.AddSyncService(services.NewObserverService(engine, time.Second))
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))

	errCh := tree.ServeBackground(ctx)

See the services subpackage for the suture.Service wrappers themselves.
*/
package supervisor
