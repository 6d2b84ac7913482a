// Catalogus - Media Library Synchronization Engine
// Copyright 2026 Catalogus Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/catalogus/catalogus

/*
emby_client.go - Emby REST API Client

This file implements the REST client for Emby and Jellyfin media servers.
It covers authentication, the paginated items crawl, library views, the
companion plugin's differential sync queue, and the WebSocket URL used by
the notification channel.

Authentication follows an explicit-result design: the request wrapper maps
401 to ErrNotAuthenticated, and every public method re-authenticates and
retries exactly once at its own call site. Fresh tokens live only inside
the client; nothing here writes configuration.

API Reference: https://dev.emby.media/doc/restapi/index.html
*/

package sync

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/catalogus/catalogus/internal/logging"
	"github.com/catalogus/catalogus/internal/models"
)

// Capability names one optional remote server feature the engine can probe
// for before relying on it.
type Capability string

// CapabilityCompanion is the Kodi companion plugin's sync queue, the delta
// source for fast synchronization.
const CapabilityCompanion Capability = "companion-sync-queue"

// ItemsQuery selects one page of a library crawl.
type ItemsQuery struct {
	// ParentID scopes the query to one view or collection. Empty queries
	// the whole library.
	ParentID string

	// IncludeItemTypes is the remote item type filter ("Movie", "BoxSet").
	// Empty returns all types.
	IncludeItemTypes string

	StartIndex int
	Limit      int
}

// EmbyClientInterface defines the interface for remote catalog operations.
// Both EmbyClient and EmbyCircuitBreakerClient implement this interface.
type EmbyClientInterface interface {
	Authenticate(ctx context.Context) error
	ListItems(ctx context.Context, q ItemsQuery) (*models.ItemsPage, error)
	GetItem(ctx context.Context, id string) (*models.Item, error)
	GetViews(ctx context.Context, mediaTypes []string) ([]models.LibraryView, error)
	GetDelta(ctx context.Context, since time.Time) (*models.SyncQueue, error)
	ProbeCapability(ctx context.Context, c Capability) (bool, error)
	SystemInfo(ctx context.Context) (*models.PublicSystemInfo, error)
	WebSocketURL() (string, error)
	UserID() string
	DeviceID() string
}

// Ensure EmbyClient implements EmbyClientInterface
var _ EmbyClientInterface = (*EmbyClient)(nil)

const (
	clientName    = "Catalogus"
	clientVersion = "1.0.0"

	// companionTimeFormat is the LastUpdateDT wire format of the companion
	// plugin: UTC with second precision.
	companionTimeFormat = "2006-01-02T15:04:05Z"
)

// embyItemFields is the Fields parameter of every items request. The crawl
// asks for the complete metadata set once instead of re-fetching per item.
var embyItemFields = strings.Join([]string{
	"PremiereDate",
	"ProductionYear",
	"Path",
	"SortName",
	"OriginalTitle",
	"DateCreated",
	"CommunityRating",
	"VoteCount",
	"OfficialRating",
	"CriticRating",
	"Overview",
	"ShortOverview",
	"LocalTrailerCount",
	"RemoteTrailers",
	"Taglines",
	"Genres",
	"Studios",
	"ProductionLocations",
	"ProviderIds",
	"Tags",
	"People",
	"Role",
	"MediaStreams",
}, ",")

// companionPluginNames are the plugin display names under which the Kodi
// companion ships on Emby and Jellyfin.
var companionPluginNames = map[string]bool{
	"Emby.Kodi Sync Queue": true,
	"Kodi Sync Queue":      true,
	"Kodi companion":       true,
}

// errNotFound marks a 404 inside the request wrapper. GetItem maps it to a
// nil item; everywhere else it surfaces as a plain error.
var errNotFound = errors.New("not found")

// EmbyClient provides access to the Emby REST API for one provider.
type EmbyClient struct {
	provider   Provider
	baseURL    string
	httpClient *http.Client

	// limiter paces items page requests. Nil means unlimited.
	limiter *rate.Limiter

	// mu guards the mutable session state below. The token changes on
	// re-authentication, the user id may be discovered by login, and the
	// server info is memoized after the first successful probe.
	mu     sync.RWMutex
	token  string
	userID string
	info   *models.PublicSystemInfo
}

// NewEmbyClient creates a client for one provider. requestTimeout bounds
// every HTTP call; pageRate caps items page requests per second, 0 meaning
// unlimited.
func NewEmbyClient(p Provider, requestTimeout time.Duration, pageRate float64) *EmbyClient {
	if requestTimeout <= 0 {
		requestTimeout = 30 * time.Second
	}

	var limiter *rate.Limiter
	if pageRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(pageRate), 1)
	}

	c := &EmbyClient{
		provider:   p,
		baseURL:    strings.TrimSuffix(p.URL, "/"),
		userID:     p.UserID,
		limiter:    limiter,
		httpClient: &http.Client{Timeout: requestTimeout},
	}

	// A configured API key is usable immediately; username/password
	// providers obtain a token on the first Authenticate call.
	if p.APIKey != "" {
		c.token = p.APIKey
	}

	logging.Debug().
		Str("provider", p.Name).
		Str("url", logging.SanitizeURL(p.URL)).
		Bool("api_key", p.APIKey != "").
		Msg("Emby client created")

	return c
}

// UserID returns the user the client operates as. Empty until configured
// or discovered by authentication.
func (c *EmbyClient) UserID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID
}

// DeviceID returns the device identity sent with every request.
func (c *EmbyClient) DeviceID() string {
	return c.provider.DeviceID
}

// Authenticate establishes a usable access token. With a configured API
// key this only resets the token; otherwise it performs the
// AuthenticateByName exchange and adopts the returned token and user id.
func (c *EmbyClient) Authenticate(ctx context.Context) error {
	if c.provider.APIKey != "" {
		c.mu.Lock()
		c.token = c.provider.APIKey
		if c.provider.UserID != "" {
			c.userID = c.provider.UserID
		}
		c.mu.Unlock()
		return nil
	}

	body, err := json.Marshal(models.AuthenticateByNameRequest{
		Username: c.provider.Username,
		Pw:       c.provider.Password,
	})
	if err != nil {
		return fmt.Errorf("failed to encode login request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/Users/AuthenticateByName", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create login request: %w", err)
	}
	// Login runs without a token; a stale one must not leak into the
	// exchange.
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Emby-Authorization", c.authorizationHeader())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("login request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("authentication failed with status %d: %w", resp.StatusCode, ErrNotAuthenticated)
	}

	var auth models.AuthenticateByNameResponse
	if err := json.NewDecoder(resp.Body).Decode(&auth); err != nil {
		return fmt.Errorf("failed to decode login response: %w", err)
	}
	if auth.AccessToken == "" {
		return fmt.Errorf("login response carried no access token: %w", ErrMissingFields)
	}

	c.mu.Lock()
	c.token = auth.AccessToken
	if auth.User.ID != "" {
		c.userID = auth.User.ID
	}
	c.mu.Unlock()

	logging.Info().
		Str("provider", c.provider.Name).
		Str("user", c.provider.Username).
		Str("user_id", auth.User.ID).
		Msg("Authenticated")

	return nil
}

// ListItems fetches one crawl page. A response missing Items or
// TotalRecordCount is a structural failure and returns ErrMissingFields.
func (c *EmbyClient) ListItems(ctx context.Context, q ItemsQuery) (*models.ItemsPage, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("page rate limiter: %w", err)
		}
	}

	query := url.Values{}
	query.Set("Recursive", "true")
	query.Set("Fields", embyItemFields)
	query.Set("ExcludeLocationTypes", "Virtual,Offline")
	query.Set("Limit", strconv.Itoa(q.Limit))
	query.Set("StartIndex", strconv.Itoa(q.StartIndex))
	if q.ParentID != "" {
		query.Set("ParentId", q.ParentID)
	}
	if q.IncludeItemTypes != "" {
		query.Set("IncludeItemTypes", q.IncludeItemTypes)
	}

	var page models.ItemsPage
	err := c.withReauth(ctx, func() error {
		return c.getJSON(ctx, "Users/"+c.UserID()+"/Items", query, &page)
	})
	if err != nil {
		return nil, fmt.Errorf("items request failed: %w", err)
	}
	if !page.Valid() {
		return nil, fmt.Errorf("items page (parent %q, start %d): %w", q.ParentID, q.StartIndex, ErrMissingFields)
	}

	return &page, nil
}

// GetItem fetches one item with the full metadata field set. A 404 returns
// (nil, nil): the item vanished between notification and fetch.
func (c *EmbyClient) GetItem(ctx context.Context, id string) (*models.Item, error) {
	query := url.Values{}
	query.Set("Fields", embyItemFields)

	var item models.Item
	err := c.withReauth(ctx, func() error {
		return c.getJSON(ctx, "Users/"+c.UserID()+"/Items/"+url.PathEscape(id), query, &item)
	})
	if errors.Is(err, errNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("item %s request failed: %w", id, err)
	}

	return &item, nil
}

// GetViews returns the user's library views, filtered to those serving any
// of the given media types. An empty media type list returns all views.
func (c *EmbyClient) GetViews(ctx context.Context, mediaTypes []string) ([]models.LibraryView, error) {
	var views models.ViewsResponse
	err := c.withReauth(ctx, func() error {
		return c.getJSON(ctx, "Users/"+c.UserID()+"/Views", nil, &views)
	})
	if err != nil {
		return nil, fmt.Errorf("views request failed: %w", err)
	}
	if views.Items == nil {
		return nil, fmt.Errorf("views response: %w", ErrMissingFields)
	}
	if len(mediaTypes) == 0 {
		return views.Items, nil
	}

	matching := make([]models.LibraryView, 0, len(views.Items))
	for i := range views.Items {
		if models.ViewMatches(&views.Items[i], mediaTypes) {
			matching = append(matching, views.Items[i])
		}
	}
	return matching, nil
}

// GetDelta fetches the companion plugin's change queue for everything since
// the given time. The endpoint differs between Emby and Jellyfin; the
// server product decides which one is called.
func (c *EmbyClient) GetDelta(ctx context.Context, since time.Time) (*models.SyncQueue, error) {
	info, err := c.SystemInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("delta endpoint selection failed: %w", err)
	}

	endpoint := "Emby.Kodi.SyncQueue"
	if info.IsJellyfin() {
		endpoint = "Jellyfin.Plugin.KodiSyncQueue"
	}

	query := url.Values{}
	query.Set("LastUpdateDT", since.UTC().Format(companionTimeFormat))

	var queue models.SyncQueue
	err = c.withReauth(ctx, func() error {
		return c.getJSON(ctx, endpoint+"/"+c.UserID()+"/GetItems", query, &queue)
	})
	if err != nil {
		return nil, fmt.Errorf("delta request failed: %w", err)
	}

	return &queue, nil
}

// ProbeCapability checks whether the server exposes the named capability.
// Unknown capabilities are absent, not errors.
func (c *EmbyClient) ProbeCapability(ctx context.Context, capability Capability) (bool, error) {
	if capability != CapabilityCompanion {
		return false, nil
	}

	var plugins []models.PluginInfo
	err := c.withReauth(ctx, func() error {
		return c.getJSON(ctx, "Plugins", nil, &plugins)
	})
	if err != nil {
		return false, fmt.Errorf("plugins request failed: %w", err)
	}

	for i := range plugins {
		if companionPluginNames[plugins[i].Name] {
			return true, nil
		}
	}
	return false, nil
}

// SystemInfo returns the server's public identity, memoized after the
// first successful call. The endpoint needs no authentication.
func (c *EmbyClient) SystemInfo(ctx context.Context) (*models.PublicSystemInfo, error) {
	c.mu.RLock()
	cached := c.info
	c.mu.RUnlock()
	if cached != nil {
		info := *cached
		return &info, nil
	}

	var info models.PublicSystemInfo
	if err := c.getJSON(ctx, "System/Info/Public", nil, &info); err != nil {
		return nil, fmt.Errorf("system info request failed: %w", err)
	}

	c.mu.Lock()
	c.info = &info
	c.mu.Unlock()

	result := info
	return &result, nil
}

// WebSocketURL returns the notification channel endpoint for the current
// access token. It fails before the first successful Authenticate.
func (c *EmbyClient) WebSocketURL() (string, error) {
	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()
	if token == "" {
		return "", ErrNotAuthenticated
	}

	parsed, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}

	switch parsed.Scheme {
	case "http":
		parsed.Scheme = "ws"
	case "https":
		parsed.Scheme = "wss"
	default:
		parsed.Scheme = "ws"
	}

	// Keep any reverse-proxy path prefix in front of the socket path.
	parsed.Path = strings.TrimSuffix(parsed.Path, "/") + "/embywebsocket"
	query := parsed.Query()
	query.Set("api_key", token)
	query.Set("deviceId", c.provider.DeviceID)
	parsed.RawQuery = query.Encode()

	return parsed.String(), nil
}

// withReauth runs fn and, when it fails with ErrNotAuthenticated,
// re-authenticates and retries exactly once.
func (c *EmbyClient) withReauth(ctx context.Context, fn func() error) error {
	err := fn()
	if !errors.Is(err, ErrNotAuthenticated) {
		return err
	}

	logging.Debug().Str("provider", c.provider.Name).Msg("Token rejected, re-authenticating")
	if aerr := c.Authenticate(ctx); aerr != nil {
		return fmt.Errorf("re-authentication failed: %w", aerr)
	}
	return fn()
}

// getJSON performs an authenticated GET and decodes the JSON response.
// 401 maps to ErrNotAuthenticated and 404 to errNotFound; every other
// non-200 status becomes an error carrying the response body.
func (c *EmbyClient) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	fullURL := c.baseURL + "/" + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Emby-Authorization", c.authorizationHeader())
	c.mu.RLock()
	if c.token != "" {
		req.Header.Set("X-MediaBrowser-Token", c.token)
	}
	c.mu.RUnlock()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized:
		return ErrNotAuthenticated
	case http.StatusNotFound:
		return errNotFound
	default:
		body, rerr := io.ReadAll(io.LimitReader(resp.Body, 512))
		if rerr != nil {
			return fmt.Errorf("request returned status %d (failed to read body)", resp.StatusCode)
		}
		return fmt.Errorf("request returned status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// authorizationHeader builds the X-Emby-Authorization value identifying
// this client and device.
func (c *EmbyClient) authorizationHeader() string {
	return fmt.Sprintf(`MediaBrowser Client="%s", Device="%s", DeviceId="%s", Version="%s"`,
		clientName, clientName, c.provider.DeviceID, clientVersion)
}
