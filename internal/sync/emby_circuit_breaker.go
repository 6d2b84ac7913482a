// Catalogus - Media Library Synchronization Engine
// Copyright 2026 Catalogus Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/catalogus/catalogus

/*
emby_circuit_breaker.go - Circuit Breaker Client Wrapper

Wraps an EmbyClient with the circuit breaker pattern so a dead or drowning
server stops consuming poll ticks and crawl time. Authentication rejections
and context cancellations are not server-health signals and never count as
breaker failures.

DETERMINISM NOTE: the breaker uses real time (via sony/gobreaker) for its
interval and timeout windows. Unit tests exercise the wrapped client
directly or drive the breaker with consecutive failures.
*/

package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/catalogus/catalogus/internal/logging"
	"github.com/catalogus/catalogus/internal/metrics"
	"github.com/catalogus/catalogus/internal/models"
)

// breakerConsecutiveFailures is how many consecutive failures open the
// circuit. A single provider client sees low request volume, so a
// consecutive-failure threshold reacts faster than a ratio over a window.
const breakerConsecutiveFailures = 5

// EmbyCircuitBreakerClient wraps an EmbyClient with circuit breaker
// protection.
type EmbyCircuitBreakerClient struct {
	client EmbyClientInterface
	cb     *gobreaker.CircuitBreaker[any]
	name   string
}

// Ensure EmbyCircuitBreakerClient implements EmbyClientInterface
var _ EmbyClientInterface = (*EmbyCircuitBreakerClient)(nil)

// NewEmbyCircuitBreakerClient wraps client with a circuit breaker named
// after the provider.
//
// Circuit breaker configuration:
//   - Max 3 concurrent requests in half-open state
//   - 1 minute measurement window
//   - 2 minute timeout before attempting recovery
//   - Opens after 5 consecutive failures
func NewEmbyCircuitBreakerClient(providerName string, client EmbyClientInterface) *EmbyCircuitBreakerClient {
	cbName := "emby-" + providerName

	metrics.CircuitBreakerState.WithLabelValues(cbName).Set(0) // 0 = closed

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        cbName,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			shouldTrip := counts.ConsecutiveFailures >= breakerConsecutiveFailures
			if shouldTrip {
				logging.Warn().
					Str("breaker", cbName).
					Uint32("consecutive_failures", counts.ConsecutiveFailures).
					Msg("[CIRCUIT BREAKER] Opening circuit")
			}
			return shouldTrip
		},

		// Rejected credentials and caller cancellations say nothing about
		// server health.
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			return errors.Is(err, ErrNotAuthenticated) ||
				errors.Is(err, context.Canceled) ||
				errors.Is(err, context.DeadlineExceeded)
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			fromStr := breakerStateToString(from)
			toStr := breakerStateToString(to)

			logging.Info().
				Str("breaker", name).
				Str("from", fromStr).
				Str("to", toStr).
				Msg("[CIRCUIT BREAKER] State transition")

			metrics.CircuitBreakerState.WithLabelValues(name).Set(breakerStateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, fromStr, toStr).Inc()
		},
	})

	return &EmbyCircuitBreakerClient{
		client: client,
		cb:     cb,
		name:   cbName,
	}
}

// execute wraps one client call with circuit breaker protection.
func (cbc *EmbyCircuitBreakerClient) execute(fn func() (any, error)) (any, error) {
	result, err := cbc.cb.Execute(fn)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.CircuitBreakerRequests.WithLabelValues(cbc.name, "rejected").Inc()
			logging.Warn().Str("breaker", cbc.name).Err(err).Msg("[CIRCUIT BREAKER] Request rejected")
		} else {
			metrics.CircuitBreakerRequests.WithLabelValues(cbc.name, "failure").Inc()
		}
		return nil, err
	}

	metrics.CircuitBreakerRequests.WithLabelValues(cbc.name, "success").Inc()
	return result, nil
}

// castResult type-casts the circuit breaker result with error checking.
func castResult[T any](result any, err error) (*T, error) {
	if err != nil {
		return nil, err
	}
	typed, ok := result.(*T)
	if !ok {
		return nil, fmt.Errorf("circuit breaker: unexpected result type %T", result)
	}
	return typed, nil
}

func breakerStateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func breakerStateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Authenticate performs the login exchange with circuit breaker protection.
func (cbc *EmbyCircuitBreakerClient) Authenticate(ctx context.Context) error {
	_, err := cbc.execute(func() (any, error) {
		return nil, cbc.client.Authenticate(ctx)
	})
	return err
}

// ListItems fetches one crawl page with circuit breaker protection.
func (cbc *EmbyCircuitBreakerClient) ListItems(ctx context.Context, q ItemsQuery) (*models.ItemsPage, error) {
	return castResult[models.ItemsPage](cbc.execute(func() (any, error) {
		return cbc.client.ListItems(ctx, q)
	}))
}

// GetItem fetches one item with circuit breaker protection. The wrapped
// client's nil-for-404 contract is preserved.
func (cbc *EmbyCircuitBreakerClient) GetItem(ctx context.Context, id string) (*models.Item, error) {
	result, err := cbc.execute(func() (any, error) {
		item, ierr := cbc.client.GetItem(ctx, id)
		if item == nil {
			// Avoid a typed-nil inside the any result.
			return nil, ierr
		}
		return item, ierr
	})
	if err != nil || result == nil {
		return nil, err
	}
	return castResult[models.Item](result, nil)
}

// GetViews fetches matching library views with circuit breaker protection.
func (cbc *EmbyCircuitBreakerClient) GetViews(ctx context.Context, mediaTypes []string) ([]models.LibraryView, error) {
	result, err := cbc.execute(func() (any, error) {
		return cbc.client.GetViews(ctx, mediaTypes)
	})
	if err != nil {
		return nil, err
	}
	views, ok := result.([]models.LibraryView)
	if !ok {
		return nil, fmt.Errorf("circuit breaker: unexpected result type %T", result)
	}
	return views, nil
}

// GetDelta fetches the companion sync queue with circuit breaker
// protection.
func (cbc *EmbyCircuitBreakerClient) GetDelta(ctx context.Context, since time.Time) (*models.SyncQueue, error) {
	return castResult[models.SyncQueue](cbc.execute(func() (any, error) {
		return cbc.client.GetDelta(ctx, since)
	}))
}

// ProbeCapability checks a server capability with circuit breaker
// protection.
func (cbc *EmbyCircuitBreakerClient) ProbeCapability(ctx context.Context, capability Capability) (bool, error) {
	result, err := cbc.execute(func() (any, error) {
		return cbc.client.ProbeCapability(ctx, capability)
	})
	if err != nil {
		return false, err
	}
	has, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("circuit breaker: unexpected result type %T", result)
	}
	return has, nil
}

// SystemInfo fetches the server identity with circuit breaker protection.
func (cbc *EmbyCircuitBreakerClient) SystemInfo(ctx context.Context) (*models.PublicSystemInfo, error) {
	return castResult[models.PublicSystemInfo](cbc.execute(func() (any, error) {
		return cbc.client.SystemInfo(ctx)
	}))
}

// WebSocketURL passes through; building a URL is local work and cannot
// fail against the server.
func (cbc *EmbyCircuitBreakerClient) WebSocketURL() (string, error) {
	return cbc.client.WebSocketURL()
}

// UserID passes through to the wrapped client.
func (cbc *EmbyCircuitBreakerClient) UserID() string {
	return cbc.client.UserID()
}

// DeviceID passes through to the wrapped client.
func (cbc *EmbyCircuitBreakerClient) DeviceID() string {
	return cbc.client.DeviceID()
}
