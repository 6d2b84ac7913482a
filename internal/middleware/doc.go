// Catalogus - Media Library Synchronization Engine
// Copyright 2026 Catalogus Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/catalogus/catalogus

/*
Package middleware provides HTTP middleware for the admin API.

The middleware composes with chi's Use chain:

	r.Use(middleware.RequestID)
	r.Use(middleware.Prometheus)
	r.Use(middleware.Compression)

RequestID assigns every request an id, honoring an upstream X-Request-ID
when a proxy already set one. The id travels in the request context and
comes back in the X-Request-ID response header and the response envelope,
which makes a log line findable from an API error report.

Prometheus records per-endpoint request counts and latency histograms.
Endpoints are labeled by chi route pattern rather than raw path, so
/api/v1/subscriptions/{id}/sync stays one series no matter how many
subscriptions exist.

Compression gzips response bodies for clients that send
Accept-Encoding: gzip.
*/
package middleware
