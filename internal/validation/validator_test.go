// Catalogus - Media Library Synchronization Engine
// Copyright 2026 Catalogus Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/catalogus/catalogus

package validation

import (
	"strings"
	"testing"
)

// ===================================================================================================
// Singleton Validator Tests
// ===================================================================================================

func TestGetValidator_Singleton(t *testing.T) {
	v1 := GetValidator()
	v2 := GetValidator()

	if v1 != v2 {
		t.Error("GetValidator() should return the same singleton instance")
	}

	if v1 == nil {
		t.Error("GetValidator() should not return nil")
	}
}

// ===================================================================================================
// ValidateStruct Tests
// ===================================================================================================

// syncRequestFixture mirrors the admin API sync trigger request shape.
type syncRequestFixture struct {
	MediaTypes []string `validate:"omitempty,dive,oneof=movie tvshow season episode musicvideo"`
}

// providerFixture mirrors the provider configuration shape.
type providerFixture struct {
	Name     string `validate:"required,min=1,max=64"`
	Address  string `validate:"required,http_url"`
	APIKey   string `validate:"required_without=Username"`
	Username string `validate:"required_without=APIKey"`
	PageSize int    `validate:"omitempty,min=1,max=1000"`
}

func TestValidateStruct_Valid(t *testing.T) {
	tests := []struct {
		name  string
		input interface{}
	}{
		{
			name:  "empty media types",
			input: &syncRequestFixture{},
		},
		{
			name:  "all media types",
			input: &syncRequestFixture{MediaTypes: []string{"movie", "tvshow", "season", "episode", "musicvideo"}},
		},
		{
			name: "api key provider",
			input: &providerFixture{
				Name:    "den",
				Address: "http://emby.local:8096",
				APIKey:  "abc123",
			},
		},
		{
			name: "username provider",
			input: &providerFixture{
				Name:     "den",
				Address:  "https://emby.example.com",
				Username: "sync",
				PageSize: 100,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ValidateStruct(tt.input); err != nil {
				t.Errorf("expected valid, got: %v", err)
			}
		})
	}
}

func TestValidateStruct_Invalid(t *testing.T) {
	tests := []struct {
		name      string
		input     interface{}
		wantField string
	}{
		{
			name:      "unknown media type",
			input:     &syncRequestFixture{MediaTypes: []string{"podcast"}},
			wantField: "MediaTypes",
		},
		{
			name: "missing address",
			input: &providerFixture{
				Name:   "den",
				APIKey: "abc123",
			},
			wantField: "Address",
		},
		{
			name: "bad address scheme",
			input: &providerFixture{
				Name:    "den",
				Address: "ftp://emby.local",
				APIKey:  "abc123",
			},
			wantField: "Address",
		},
		{
			name: "no credentials at all",
			input: &providerFixture{
				Name:    "den",
				Address: "http://emby.local:8096",
			},
			wantField: "APIKey",
		},
		{
			name: "page size out of range",
			input: &providerFixture{
				Name:     "den",
				Address:  "http://emby.local:8096",
				APIKey:   "abc123",
				PageSize: 100000,
			},
			wantField: "PageSize",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStruct(tt.input)
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}

			found := false
			for _, fe := range err.Errors() {
				if strings.Contains(fe.Field(), tt.wantField) {
					found = true
				}
			}
			if !found {
				t.Errorf("expected error on field %q, got: %v", tt.wantField, err)
			}
		})
	}
}

// ===================================================================================================
// Error Translation Tests
// ===================================================================================================

func TestToAPIError_SingleError(t *testing.T) {
	err := ValidateStruct(&providerFixture{
		Name:    "den",
		Address: "not-a-url",
		APIKey:  "abc123",
	})
	if err == nil {
		t.Fatal("expected validation error")
	}

	apiErr := err.ToAPIError()
	if apiErr.Code != "VALIDATION_ERROR" {
		t.Errorf("expected code VALIDATION_ERROR, got %s", apiErr.Code)
	}
	if !strings.Contains(apiErr.Message, "Address") {
		t.Errorf("expected message to name the field, got: %s", apiErr.Message)
	}
	if apiErr.Details["field"] == nil {
		t.Error("expected field detail for single error")
	}
}

func TestToAPIError_MultipleErrors(t *testing.T) {
	err := ValidateStruct(&providerFixture{})
	if err == nil {
		t.Fatal("expected validation error")
	}
	if len(err.Errors()) < 2 {
		t.Fatalf("expected multiple errors, got %d", len(err.Errors()))
	}

	apiErr := err.ToAPIError()
	if apiErr.Details["fields"] == nil {
		t.Error("expected fields detail for multiple errors")
	}
	if !strings.Contains(apiErr.Message, ";") {
		t.Errorf("expected combined message, got: %s", apiErr.Message)
	}
}

func TestErrorMessages(t *testing.T) {
	err := ValidateStruct(&syncRequestFixture{MediaTypes: []string{"podcast"}})
	if err == nil {
		t.Fatal("expected validation error")
	}

	msg := err.Error()
	if !strings.Contains(msg, "must be one of") {
		t.Errorf("expected oneof translation, got: %s", msg)
	}
}
