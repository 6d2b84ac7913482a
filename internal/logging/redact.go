// Catalogus - Media Library Synchronization Engine
// Copyright 2026 Catalogus Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/catalogus/catalogus

package logging

import (
	"net/url"
	"strings"
)

// sensitiveQueryParams are query parameters whose values must never be logged.
// Notification channel URLs carry the access token as a query parameter.
var sensitiveQueryParams = map[string]bool{
	"api_key":      true,
	"apikey":       true,
	"access_token": true,
	"token":        true,
}

// SanitizeToken masks a token, showing only first and last 4 characters.
// Example: "3f1bb0a988a54c8bb1a8a67..." -> "3f1b...a67c"
func SanitizeToken(token string) string {
	if token == "" {
		return ""
	}
	if len(token) <= 12 {
		return "***"
	}
	return token[:4] + "..." + token[len(token)-4:]
}

// SanitizeURL redacts credential query parameters from a URL so it is safe
// to log. Malformed URLs are returned as an opaque placeholder rather than
// leaking whatever they contain.
func SanitizeURL(rawURL string) string {
	if rawURL == "" {
		return ""
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return "(unparsable url)"
	}

	q := u.Query()
	changed := false
	for key := range q {
		if sensitiveQueryParams[strings.ToLower(key)] {
			q.Set(key, "REDACTED")
			changed = true
		}
	}
	if changed {
		u.RawQuery = q.Encode()
	}

	return u.String()
}
