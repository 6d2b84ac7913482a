// Catalogus - Media Library Synchronization Engine
// Copyright 2026 Catalogus Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/catalogus/catalogus

package api

import (
	"io"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/catalogus/catalogus/internal/validation"
)

// maxRequestBody caps trigger request bodies. The only accepted body is a
// small media type list.
const maxRequestBody = 4 << 10

// SyncRequest is the optional body for POST /subscriptions/{id}/sync.
// An empty body or empty list means every media type of the subscription.
type SyncRequest struct {
	MediaTypes []string `json:"mediaTypes" validate:"omitempty,dive,oneof=movie tvshow season episode musicvideo"`
}

// decodeSyncRequest reads and validates the trigger body. A missing body
// is fine; malformed JSON or unknown media types are not.
func decodeSyncRequest(r *http.Request) (SyncRequest, *APIError) {
	var req SyncRequest

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		return req, &APIError{Code: ErrCodeBadRequest, Message: "reading request body failed"}
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			return req, &APIError{Code: ErrCodeBadRequest, Message: "request body is not valid JSON"}
		}
	}

	if apiErr := validateRequest(&req); apiErr != nil {
		return req, apiErr
	}
	return req, nil
}

// validateRequest validates a struct using go-playground/validator and
// converts failures to the API error format.
func validateRequest(v interface{}) *APIError {
	validationErr := validation.ValidateStruct(v)
	if validationErr == nil {
		return nil
	}

	apiErr := validationErr.ToAPIError()
	return &APIError{
		Code:    apiErr.Code,
		Message: apiErr.Message,
		Details: apiErr.Details,
	}
}
