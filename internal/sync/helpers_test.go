// Catalogus - Media Library Synchronization Engine
// Copyright 2026 Catalogus Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/catalogus/catalogus

package sync

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/catalogus/catalogus/internal/models"
)

// Test assertion helpers with "check" prefix to avoid conflicts with
// production identifiers. Each helper encapsulates a common nil-check plus
// comparison pattern; t.Helper() keeps failures pointing at the caller.

// checkStringEqual checks that got equals want, failing if not
func checkStringEqual(t *testing.T, fieldName, got, want string) {
	t.Helper()
	if got != want {
		t.Errorf("%s: expected %q, got %q", fieldName, want, got)
	}
}

// checkIntEqual checks that got equals want
func checkIntEqual(t *testing.T, fieldName string, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("%s: expected %d, got %d", fieldName, want, got)
	}
}

// checkTrue checks that condition holds
func checkTrue(t *testing.T, fieldName string, condition bool) {
	t.Helper()
	if !condition {
		t.Errorf("%s: expected condition to be true", fieldName)
	}
}

// checkNoError checks that err is nil
func checkNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// checkError checks that err is not nil
func checkError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected an error, got nil")
	}
}

// checkErrorIs checks that err matches target via errors.Is
func checkErrorIs(t *testing.T, err, target error) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error matching %v, got nil", target)
	}
	if !errors.Is(err, target) {
		t.Errorf("expected error matching %v, got %v", target, err)
	}
}

// checkErrorContains checks that err is not nil and mentions substr
func checkErrorContains(t *testing.T, err error, substr string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error containing %q, got nil", substr)
	}
	if !strings.Contains(err.Error(), substr) {
		t.Errorf("expected error containing %q, got %q", substr, err.Error())
	}
}

// checkSliceLen checks a slice length
func checkSliceLen(t *testing.T, fieldName string, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("%s: expected length %d, got %d", fieldName, want, got)
	}
}

func intPtr(v int) *int { return &v }

// ============================================================================
// Shared Fixtures
// ============================================================================

// testProvider returns a username/password provider pointing at url.
func testProvider(url string) Provider {
	return Provider{
		Name:     "main",
		URL:      url,
		Username: "alice",
		Password: "secret1",
		UserID:   "user-1",
		DeviceID: "device-test-1",
	}
}

// testSubscription returns a movie subscription bound to the test provider.
func testSubscription(mediaTypes ...string) Subscription {
	if len(mediaTypes) == 0 {
		mediaTypes = []string{models.MediaTypeMovie}
	}
	return Subscription{
		ID:         "main",
		Provider:   "main",
		MediaTypes: mediaTypes,
	}
}

// testSession builds a session around a mock client, bypassing the engine.
func testSession(client EmbyClientInterface) *session {
	return &session{
		provider: testProvider("http://emby.local:8096"),
		client:   client,
		channel:  NewChannel("main", client, 50*time.Millisecond),
	}
}

func testPage(total int, items ...models.Item) *models.ItemsPage {
	if items == nil {
		items = []models.Item{}
	}
	return &models.ItemsPage{Items: items, TotalRecordCount: intPtr(total)}
}

func movieItem(id, name, path string) models.Item {
	return models.Item{ID: id, Name: name, Type: "Movie", Path: path}
}

func catalogMovie(id, path string) models.CatalogItem {
	return models.CatalogItem{
		RemoteID:  id,
		Provider:  "main",
		MediaType: models.MediaTypeMovie,
		Title:     "Movie " + id,
		Path:      path,
	}
}

// ============================================================================
// Mock Emby Client
// ============================================================================

// mockEmbyClient implements EmbyClientInterface with overridable behavior
// per method. Calls are recorded in order so tests can assert request
// counts and pagination cursors.
type mockEmbyClient struct {
	authenticateFn    func(ctx context.Context) error
	listItemsFn       func(ctx context.Context, q ItemsQuery) (*models.ItemsPage, error)
	getItemFn         func(ctx context.Context, id string) (*models.Item, error)
	getViewsFn        func(ctx context.Context, mediaTypes []string) ([]models.LibraryView, error)
	getDeltaFn        func(ctx context.Context, since time.Time) (*models.SyncQueue, error)
	probeCapabilityFn func(ctx context.Context, c Capability) (bool, error)
	systemInfoFn      func(ctx context.Context) (*models.PublicSystemInfo, error)
	webSocketURLFn    func() (string, error)

	authCalls  int
	listCalls  []ItemsQuery
	getCalls   []string
	viewCalls  int
	deltaCalls int
	probeCalls int
}

var _ EmbyClientInterface = (*mockEmbyClient)(nil)

func (m *mockEmbyClient) Authenticate(ctx context.Context) error {
	m.authCalls++
	if m.authenticateFn != nil {
		return m.authenticateFn(ctx)
	}
	return nil
}

func (m *mockEmbyClient) ListItems(ctx context.Context, q ItemsQuery) (*models.ItemsPage, error) {
	m.listCalls = append(m.listCalls, q)
	if m.listItemsFn != nil {
		return m.listItemsFn(ctx, q)
	}
	return testPage(0), nil
}

func (m *mockEmbyClient) GetItem(ctx context.Context, id string) (*models.Item, error) {
	m.getCalls = append(m.getCalls, id)
	if m.getItemFn != nil {
		return m.getItemFn(ctx, id)
	}
	return nil, nil
}

func (m *mockEmbyClient) GetViews(ctx context.Context, mediaTypes []string) ([]models.LibraryView, error) {
	m.viewCalls++
	if m.getViewsFn != nil {
		return m.getViewsFn(ctx, mediaTypes)
	}
	return nil, nil
}

func (m *mockEmbyClient) GetDelta(ctx context.Context, since time.Time) (*models.SyncQueue, error) {
	m.deltaCalls++
	if m.getDeltaFn != nil {
		return m.getDeltaFn(ctx, since)
	}
	return &models.SyncQueue{}, nil
}

func (m *mockEmbyClient) ProbeCapability(ctx context.Context, c Capability) (bool, error) {
	m.probeCalls++
	if m.probeCapabilityFn != nil {
		return m.probeCapabilityFn(ctx, c)
	}
	return false, nil
}

func (m *mockEmbyClient) SystemInfo(ctx context.Context) (*models.PublicSystemInfo, error) {
	if m.systemInfoFn != nil {
		return m.systemInfoFn(ctx)
	}
	return &models.PublicSystemInfo{
		ID:         "srv-1",
		ServerName: "Test Emby",
		Version:    "4.8.0",
	}, nil
}

func (m *mockEmbyClient) WebSocketURL() (string, error) {
	if m.webSocketURLFn != nil {
		return m.webSocketURLFn()
	}
	return "", ErrNotAuthenticated
}

func (m *mockEmbyClient) UserID() string { return "user-1" }

func (m *mockEmbyClient) DeviceID() string { return "device-test-1" }

// ============================================================================
// Mock Catalog
// ============================================================================

type appliedBatch struct {
	subscriptionID string
	changes        []models.ItemChange
}

type pruneCall struct {
	provider  string
	mediaType string
	seen      []string
}

// mockCatalog records every changeset and prune call. Seeded items back
// the removal matching paths.
type mockCatalog struct {
	items map[string][]models.CatalogItem

	applied []appliedBatch
	pruned  []pruneCall

	applyErr    error
	importedErr error
	pruneErr    error
	pruneResult int
}

var _ Catalog = (*mockCatalog)(nil)

func newMockCatalog() *mockCatalog {
	return &mockCatalog{items: make(map[string][]models.CatalogItem)}
}

func (c *mockCatalog) setItems(provider, mediaType string, items ...models.CatalogItem) {
	c.items[provider+"/"+mediaType] = items
}

func (c *mockCatalog) ImportedItems(provider, mediaType string) ([]models.CatalogItem, error) {
	if c.importedErr != nil {
		return nil, c.importedErr
	}
	return c.items[provider+"/"+mediaType], nil
}

func (c *mockCatalog) ApplyChangeset(subscriptionID string, changes []models.ItemChange) error {
	if c.applyErr != nil {
		return c.applyErr
	}
	c.applied = append(c.applied, appliedBatch{subscriptionID: subscriptionID, changes: changes})
	return nil
}

func (c *mockCatalog) PruneMissing(provider, mediaType string, seen []string) (int, error) {
	if c.pruneErr != nil {
		return 0, c.pruneErr
	}
	c.pruned = append(c.pruned, pruneCall{provider: provider, mediaType: mediaType, seen: seen})
	return c.pruneResult, nil
}

// allChanges flattens every applied batch in order.
func (c *mockCatalog) allChanges() []models.ItemChange {
	var out []models.ItemChange
	for _, b := range c.applied {
		out = append(out, b.changes...)
	}
	return out
}

// ============================================================================
// Mock Sync State Store
// ============================================================================

type mockStateStore struct {
	fingerprints map[string]string
	lastSyncs    map[string]time.Time

	fingerprintErr error
	lastSyncErr    error
	setLastSyncErr error

	setLastSyncCalls int
	clearCalls       int
}

var _ SyncStateStore = (*mockStateStore)(nil)

func newMockStateStore() *mockStateStore {
	return &mockStateStore{
		fingerprints: make(map[string]string),
		lastSyncs:    make(map[string]time.Time),
	}
}

func (s *mockStateStore) Fingerprint(subscriptionID string) (string, error) {
	if s.fingerprintErr != nil {
		return "", s.fingerprintErr
	}
	return s.fingerprints[subscriptionID], nil
}

func (s *mockStateStore) SetFingerprint(subscriptionID, fingerprint string) error {
	s.fingerprints[subscriptionID] = fingerprint
	return nil
}

func (s *mockStateStore) LastSync(subscriptionID string) (time.Time, bool, error) {
	if s.lastSyncErr != nil {
		return time.Time{}, false, s.lastSyncErr
	}
	t, ok := s.lastSyncs[subscriptionID]
	return t, ok, nil
}

func (s *mockStateStore) SetLastSync(subscriptionID string, t time.Time) error {
	if s.setLastSyncErr != nil {
		return s.setLastSyncErr
	}
	s.setLastSyncCalls++
	s.lastSyncs[subscriptionID] = t
	return nil
}

func (s *mockStateStore) ClearLastSync(subscriptionID string) error {
	s.clearCalls++
	delete(s.lastSyncs, subscriptionID)
	return nil
}

// ============================================================================
// Mock Progress Reporter
// ============================================================================

// mockProgress counts cancellation checks and optionally starts answering
// true from the cancelAfter-th check (1-based).
type mockProgress struct {
	cancelAfter int
	checks      int
	messages    []string
	notices     []string
}

var _ ProgressReporter = (*mockProgress)(nil)

func (p *mockProgress) ShouldCancel(done, total int) bool {
	p.checks++
	return p.cancelAfter > 0 && p.checks >= p.cancelAfter
}

func (p *mockProgress) Progress(message string) {
	p.messages = append(p.messages, message)
}

func (p *mockProgress) Notice(message string) {
	p.notices = append(p.notices, message)
}
