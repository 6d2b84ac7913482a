// Catalogus - Media Library Synchronization Engine
// Copyright 2026 Catalogus Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/catalogus/catalogus

// Package config loads and validates the Catalogus daemon configuration.
//
// Configuration is layered (highest priority last):
//  1. Built-in defaults
//  2. Optional YAML config file
//  3. Environment variables
//
// Providers and imports are list-valued and can only be declared in the
// config file; scalar settings can additionally be overridden through the
// environment (see koanf.go for the variable names).
package config

import (
	"fmt"
	"time"

	"github.com/catalogus/catalogus/internal/validation"
)

// MediaTypes supported for synchronization, in the order media types are
// processed within one import run.
var MediaTypes = []string{"movie", "tvshow", "season", "episode", "musicvideo"}

// Config is the root configuration for the daemon.
type Config struct {
	Server    ServerConfig     `koanf:"server"`
	Providers []ProviderConfig `koanf:"providers" validate:"dive"`
	Imports   []ImportConfig   `koanf:"imports" validate:"dive"`
	Sync      SyncConfig       `koanf:"sync"`
	Catalog   CatalogConfig    `koanf:"catalog"`
	Logging   LoggingConfig    `koanf:"logging"`
}

// ServerConfig configures the admin HTTP API.
type ServerConfig struct {
	Enabled bool          `koanf:"enabled"`
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port" validate:"min=0,max=65535"`
	Timeout time.Duration `koanf:"timeout"`
}

// ProviderConfig describes one remote media server endpoint.
//
// Either APIKey or Username+Password must be set. AllowDirectPlay and
// UseCompanion are provider-level synchronization settings: they apply to
// every import bound to this provider and participate in the sync
// fingerprint. Names exclude slashes because they form catalog key
// prefixes.
type ProviderConfig struct {
	Name            string `koanf:"name" validate:"required,min=1,max=64,excludesall=/"`
	URL             string `koanf:"url" validate:"required,http_url"`
	APIKey          string `koanf:"api_key"`
	Username        string `koanf:"username"`
	Password        string `koanf:"password"`
	UserID          string `koanf:"user_id"`
	DeviceID        string `koanf:"device_id"`
	AllowDirectPlay bool   `koanf:"allow_direct_play"`
	UseCompanion    bool   `koanf:"use_companion"`
}

// ImportConfig describes one subscription: a set of media types imported
// from a provider, optionally restricted to specific library views.
type ImportConfig struct {
	Provider          string   `koanf:"provider" validate:"required"`
	MediaTypes        []string `koanf:"media_types" validate:"required,min=1,dive,oneof=movie tvshow season episode musicvideo"`
	Views             []string `koanf:"views"`
	ImportCollections bool     `koanf:"import_collections"`
}

// SyncConfig configures the synchronization engine.
type SyncConfig struct {
	// Interval between scheduled import runs per subscription. 0 disables
	// the scheduler; imports then run only on startup or via the API.
	Interval time.Duration `koanf:"interval"`

	// PollInterval is the cadence of the notification channel poll tick.
	PollInterval time.Duration `koanf:"poll_interval"`

	// PageSize is the item count requested per crawl page.
	PageSize int `koanf:"page_size" validate:"min=1,max=1000"`

	// ReadTimeout is the per-poll read deadline on the notification channel.
	// Must stay sub-second so one session cannot stall the poll loop.
	ReadTimeout time.Duration `koanf:"read_timeout"`

	// RequestTimeout bounds individual HTTP calls to the remote server.
	RequestTimeout time.Duration `koanf:"request_timeout"`

	// RateLimit caps crawl page requests per second. 0 means unlimited.
	RateLimit float64 `koanf:"rate_limit" validate:"min=0"`

	// OnStartup triggers a full import run for every subscription when the
	// daemon starts.
	OnStartup bool `koanf:"on_startup"`
}

// CatalogConfig configures the local catalog store.
type CatalogConfig struct {
	Path string `koanf:"path" validate:"required"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn warning error fatal disabled"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// Provider returns the provider configuration with the given name, or nil.
func (c *Config) Provider(name string) *ProviderConfig {
	for i := range c.Providers {
		if c.Providers[i].Name == name {
			return &c.Providers[i]
		}
	}
	return nil
}

// Validate checks the configuration for structural and cross-field errors.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(c); err != nil {
		return err
	}

	seen := make(map[string]bool, len(c.Providers))
	for i := range c.Providers {
		p := &c.Providers[i]
		if seen[p.Name] {
			return fmt.Errorf("duplicate provider name %q", p.Name)
		}
		seen[p.Name] = true

		if p.APIKey == "" && (p.Username == "" || p.Password == "") {
			return fmt.Errorf("provider %q: either api_key or username and password must be set", p.Name)
		}
		// An API key authenticates without a user context, but item queries
		// are user-scoped; resolving the user requires a user id then.
		if p.APIKey != "" && p.Username == "" && p.UserID == "" {
			return fmt.Errorf("provider %q: user_id is required when authenticating with api_key", p.Name)
		}
	}

	for i := range c.Imports {
		imp := &c.Imports[i]
		if c.Provider(imp.Provider) == nil {
			return fmt.Errorf("import %d: unknown provider %q", i, imp.Provider)
		}
		mtSeen := make(map[string]bool, len(imp.MediaTypes))
		for _, mt := range imp.MediaTypes {
			if mtSeen[mt] {
				return fmt.Errorf("import %d: duplicate media type %q", i, mt)
			}
			mtSeen[mt] = true
		}
	}

	if c.Sync.PollInterval <= 0 {
		return fmt.Errorf("sync.poll_interval must be positive")
	}
	if c.Sync.ReadTimeout <= 0 || c.Sync.ReadTimeout >= time.Second {
		return fmt.Errorf("sync.read_timeout must be positive and below one second")
	}

	return nil
}
