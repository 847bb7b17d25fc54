package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lendmatch/backend/internal/domain"
)

var (
	insideWindow  = time.Date(2026, 5, 12, 12, 10, 0, 0, time.UTC)
	outsideWindow = time.Date(2026, 5, 12, 15, 0, 0, 0, time.UTC)
)

type syncFixture struct {
	client *fakeStaffClient
	kv     *fakeKV
	cache  *PersistentCache
	sync   *CatalogSync
}

func newSyncFixture(now time.Time) *syncFixture {
	clock := newFakeClock(now)
	client := &fakeStaffClient{payload: map[string]any{"products": []any{
		rawProduct("net-1", "Network One", "US", "term_loan", 1000, 50000),
		rawProduct("net-2", "Network Two", "CA", "Working Capital", 1000, 50000),
	}}}
	kv := newFakeKV()
	cache := NewPersistentCache(kv, 0, clock, nil)
	sync := NewCatalogSync(client, NewNormalizer(NormalizerConfig{}, clock, nil), cache, NewFetchWindow(0), clock, nil)
	return &syncFixture{client: client, kv: kv, cache: cache, sync: sync}
}

func (f *syncFixture) seedCache(t *testing.T) {
	t.Helper()
	cached := []domain.Product{product("cached-1", domain.CountryUS, domain.CategoryTermLoan, 1, 10)}
	require.NoError(t, f.cache.Save(context.Background(), cached, domain.SourceStaffSync))
}

func ids(products []domain.Product) []string {
	out := make([]string, len(products))
	for i, p := range products {
		out[i] = p.ID
	}
	return out
}

func TestCatalogSync_Load(t *testing.T) {
	upstreamDown := &domain.UpstreamError{StatusCode: 503, Reason: "503 Service Unavailable"}

	tests := []struct {
		name         string
		now          time.Time
		force        bool
		cached       bool
		fetchErr     error
		wantDecision SyncDecision
		wantIDs      []string
		wantCalls    int
		wantErr      bool
		wantStale    bool
	}{
		{name: "window open fetches", now: insideWindow, wantDecision: DecisionNetwork, wantIDs: []string{"net-1", "net-2"}, wantCalls: 1},
		{name: "window open ignores cache", now: insideWindow, cached: true, wantDecision: DecisionNetwork, wantIDs: []string{"net-1", "net-2"}, wantCalls: 1},
		{name: "window closed serves cache", now: outsideWindow, cached: true, wantDecision: DecisionCache, wantIDs: []string{"cached-1"}, wantCalls: 0},
		{name: "window closed cold start", now: outsideWindow, wantDecision: DecisionColdStart, wantIDs: []string{"net-1", "net-2"}, wantCalls: 1},
		{name: "force overrides window", now: outsideWindow, cached: true, force: true, wantDecision: DecisionForced, wantIDs: []string{"net-1", "net-2"}, wantCalls: 1},
		{name: "failure falls back to cache", now: insideWindow, cached: true, fetchErr: upstreamDown, wantDecision: DecisionStaleCache, wantIDs: []string{"cached-1"}, wantCalls: 1, wantStale: true},
		{name: "failure without cache", now: insideWindow, fetchErr: upstreamDown, wantDecision: DecisionNetwork, wantCalls: 1, wantErr: true},
		{name: "cold start failure", now: outsideWindow, fetchErr: upstreamDown, wantDecision: DecisionColdStart, wantCalls: 1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newSyncFixture(tt.now)
			if tt.cached {
				f.seedCache(t)
			}
			f.client.err = tt.fetchErr

			result, err := f.sync.Load(context.Background(), tt.force)

			assert.Equal(t, tt.wantDecision, result.Decision)
			assert.Equal(t, tt.wantCalls, f.client.Calls())
			assert.Equal(t, tt.now.UTC().Hour() == 12, result.Window.IsAllowed)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, domain.ErrUpstreamFailure)
				assert.Nil(t, result.Products)
				return
			}
			require.NoError(t, err)
			assert.ElementsMatch(t, tt.wantIDs, ids(result.Products))
			if tt.wantStale {
				assert.ErrorIs(t, result.FetchErr, domain.ErrUpstreamFailure)
				assert.False(t, result.Fresh())
			}
		})
	}
}

func TestCatalogSync_NetworkResultIsCached(t *testing.T) {
	f := newSyncFixture(insideWindow)

	_, err := f.sync.Load(context.Background(), false)
	require.NoError(t, err)

	entry := f.cache.Entry(context.Background())
	require.NotNil(t, entry)
	assert.ElementsMatch(t, []string{"net-1", "net-2"}, ids(entry.Products))
	assert.Equal(t, domain.SourceStaffSync, entry.Metadata.Source)
	assert.Equal(t, insideWindow, entry.Metadata.FetchTime)
	require.NotNil(t, entry.Metadata.Window)
	assert.True(t, entry.Metadata.Window.IsAllowed)
}

func TestCatalogSync_EmptyCatalogIsNeverCached(t *testing.T) {
	f := newSyncFixture(insideWindow)
	f.seedCache(t)
	f.client.payload = map[string]any{"products": []any{}}

	result, err := f.sync.Load(context.Background(), false)

	require.NoError(t, err)
	assert.Equal(t, DecisionStaleCache, result.Decision)
	assert.ErrorIs(t, result.FetchErr, domain.ErrEmptyCatalog)
	assert.Equal(t, []string{"cached-1"}, ids(f.cache.Load(context.Background())))
}

func TestCatalogSync_NormalizationFailureKeepsCache(t *testing.T) {
	f := newSyncFixture(insideWindow)
	f.seedCache(t)
	f.client.payload = map[string]any{"products": []any{
		map[string]any{"name": "broken"},
		map[string]any{"name": "also broken"},
	}}

	result, err := f.sync.Load(context.Background(), false)

	require.NoError(t, err)
	assert.Equal(t, DecisionStaleCache, result.Decision)
	assert.ErrorIs(t, result.FetchErr, domain.ErrBelowThreshold)
	assert.Equal(t, []string{"cached-1"}, ids(result.Products))
}

func TestCatalogSync_CacheWriteFailureStillServes(t *testing.T) {
	f := newSyncFixture(insideWindow)
	f.kv.setErr = errors.New("read-only filesystem")

	result, err := f.sync.Load(context.Background(), false)

	require.NoError(t, err)
	assert.Len(t, result.Products, 2)
	assert.True(t, result.Fresh())
}
