// Catalogus - Media Library Synchronization Engine
// Copyright 2026 Catalogus Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/catalogus/catalogus

// Package metrics provides Prometheus instrumentation for:
// - Synchronization runs (mode, duration, emitted changes)
// - Crawl page requests
// - Notification channel state and message flow
// - Change resolver outcomes
// - Remote server circuit breaker
// - Admin API latency and throughput
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Synchronization Metrics
	SyncRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_runs_total",
			Help: "Total number of synchronization runs",
		},
		[]string{"provider", "mode", "result"}, // mode: "full", "fast"; result: "success", "error", "cancelled"
	)

	SyncRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sync_run_duration_seconds",
			Help:    "Duration of synchronization runs in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600}, // Full crawls can take minutes
		},
		[]string{"provider", "mode"},
	)

	SyncChangesEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_changes_emitted_total",
			Help: "Total number of changeset entries handed to the catalog",
		},
		[]string{"provider", "media_type", "kind"}, // kind: "added", "updated", "removed"
	)

	SyncPageRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_page_requests_total",
			Help: "Total number of item page requests during crawls",
		},
		[]string{"provider", "media_type"},
	)

	SyncLastSuccess = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sync_last_success_timestamp",
			Help: "Unix timestamp of the last successful synchronization run",
		},
		[]string{"provider"},
	)

	// Notification Channel Metrics
	ChannelState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "channel_state",
			Help: "Notification channel state (0=disconnected, 1=connecting, 2=connected)",
		},
		[]string{"provider"},
	)

	ChannelMessagesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "channel_messages_received_total",
			Help: "Total number of notification messages received",
		},
		[]string{"provider", "message_type"},
	)

	ChannelConnectFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "channel_connect_failures_total",
			Help: "Total number of failed notification channel connect attempts",
		},
		[]string{"provider"},
	)

	// Change Resolver Metrics
	ResolverEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resolver_events_total",
			Help: "Total number of change notification events resolved",
		},
		[]string{"provider", "kind", "outcome"}, // outcome: "applied", "dropped", "failed"
	)

	ChangesetBatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "changeset_batch_size",
			Help:    "Number of entries in changeset batches applied to the catalog",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // result: "success", "failure", "rejected"
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// API Endpoint Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	// Catalog Metrics
	CatalogItems = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "catalog_items",
			Help: "Current number of items in the local catalog",
		},
		[]string{"provider", "media_type"},
	)

	// System Metrics
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_info",
			Help: "Application version and build information",
		},
		[]string{"version", "go_version"},
	)

	AppUptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "app_uptime_seconds",
			Help: "Application uptime in seconds",
		},
	)
)

// Channel state gauge values.
const (
	ChannelStateDisconnected = 0
	ChannelStateConnecting   = 1
	ChannelStateConnected    = 2
)

// RecordSyncRun records the outcome of one synchronization run.
func RecordSyncRun(provider, mode string, duration time.Duration, err error, cancelled bool) {
	result := "success"
	switch {
	case cancelled:
		result = "cancelled"
	case err != nil:
		result = "error"
	}
	SyncRunsTotal.WithLabelValues(provider, mode, result).Inc()
	SyncRunDuration.WithLabelValues(provider, mode).Observe(duration.Seconds())
	if result == "success" {
		SyncLastSuccess.WithLabelValues(provider).Set(float64(time.Now().Unix()))
	}
}

// RecordPageRequest records one crawl page request.
func RecordPageRequest(provider, mediaType string) {
	SyncPageRequests.WithLabelValues(provider, mediaType).Inc()
}

// RecordChangesEmitted records changeset entries handed to the catalog.
func RecordChangesEmitted(provider, mediaType, kind string, count int) {
	if count <= 0 {
		return
	}
	SyncChangesEmitted.WithLabelValues(provider, mediaType, kind).Add(float64(count))
}

// SetChannelState updates the channel state gauge for a provider.
func SetChannelState(provider string, state float64) {
	ChannelState.WithLabelValues(provider).Set(state)
}

// RecordChannelMessage records one received notification message.
func RecordChannelMessage(provider, messageType string) {
	ChannelMessagesReceived.WithLabelValues(provider, messageType).Inc()
}

// RecordChannelConnectFailure records a failed connect attempt.
func RecordChannelConnectFailure(provider string) {
	ChannelConnectFailures.WithLabelValues(provider).Inc()
}

// RecordResolverEvent records the outcome of resolving one notification
// event.
func RecordResolverEvent(provider, kind, outcome string) {
	ResolverEvents.WithLabelValues(provider, kind, outcome).Inc()
}

// RecordChangesetBatch records the size of an applied changeset batch.
func RecordChangesetBatch(size int) {
	ChangesetBatchSize.Observe(float64(size))
}

// RecordAPIRequest records an API request metric.
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// SetCatalogItems updates the catalog item count gauge.
func SetCatalogItems(provider, mediaType string, count int) {
	CatalogItems.WithLabelValues(provider, mediaType).Set(float64(count))
}
