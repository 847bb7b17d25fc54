package http

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lendmatch/backend/config"
	"github.com/lendmatch/backend/internal/domain"
	"github.com/lendmatch/backend/internal/infrastructure/notify"
	"github.com/lendmatch/backend/internal/infrastructure/staff"
	"github.com/lendmatch/backend/internal/usecase"
)

const testSecret = "test-shared-secret"

// TestMain sets up test environment before running tests
func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type testServer struct {
	router   *gin.Engine
	handler  *Handler
	store    *usecase.CatalogStore
	upstream *httptest.Server
	// upstreamBody is served by the fake staff backend; empty means 500
	upstreamBody atomic.Value
	// upstreamHook runs after the body is chosen and before it is written
	upstreamHook atomic.Value
	upstreamHits atomic.Int32
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	ts := &testServer{}
	ts.upstreamBody.Store("")
	ts.upstreamHook.Store(func() {})
	ts.upstream = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts.upstreamHits.Add(1)
		body := ts.upstreamBody.Load().(string)
		ts.upstreamHook.Load().(func())()
		if body == "" {
			http.Error(w, "database offline", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(ts.upstream.Close)

	cfg := &config.Config{
		Server: config.ServerConfig{
			Port:           "8080",
			Environment:    "test",
			AllowedOrigins: []string{"http://localhost:5000"},
		},
		Sync: config.SyncConfig{SharedSecret: testSecret},
	}

	client := staff.NewClient(ts.upstream.URL, "/api/lender-products", "", time.Second, staff.WithRateLimit(360000))
	ts.store = usecase.NewCatalogStore(client, nil, nil)
	events := notify.NewBroadcaster(nil)
	unsubscribe := ts.store.Subscribe(func(e domain.ChangeEvent) {
		events.Notify(context.Background(), e)
	})
	t.Cleanup(unsubscribe)

	ts.handler = NewHandler(ts.store, usecase.NewRecommendationEngine(nil), events, nil)
	ts.handler.SetHeartbeat(50 * time.Millisecond)
	ts.router = SetupRouter(cfg, ts.handler, nil)
	return ts
}

func (ts *testServer) do(method, path, body string, authorized bool) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if authorized {
		req.Header.Set("Authorization", "Bearer "+testSecret)
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var response map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response), w.Body.String())
	return response
}

const catalogBody = `{"products": [
	{"id": "p-term", "name": "Zeta Term Loan", "lender_name": "North Bank", "country": "US", "category": "term_loan", "min_amount": 10000, "max_amount": 250000},
	{"id": "p-wc", "name": "Alpha Working Capital", "lender_name": "Maple Credit", "country": "CA", "category": "working_capital", "min_amount": 5000, "max_amount": 75000},
	{"id": "p-bad", "name": "Missing Lender", "country": "US", "category": "term_loan", "max_amount": 10}
]}`

func TestHealthCheckEndpoint(t *testing.T) {
	t.Run("returns healthy status", func(t *testing.T) {
		ts := newTestServer(t)

		w := ts.do("GET", "/health", "", false)

		require.Equal(t, http.StatusOK, w.Code)
		response := decode(t, w)
		assert.Equal(t, "healthy", response["status"])
		assert.Equal(t, "lendmatch-backend", response["service"])
		assert.NotEmpty(t, response["version"])
		assert.Equal(t, float64(0), response["products"])
	})

	t.Run("accepts GET requests only", func(t *testing.T) {
		ts := newTestServer(t)
		for _, method := range []string{"POST", "PUT", "DELETE", "PATCH"} {
			w := ts.do(method, "/health", "", false)
			assert.Equal(t, http.StatusNotFound, w.Code, method)
		}
	})
}

func TestSyncEndpoint(t *testing.T) {
	t.Run("rejects missing bearer token", func(t *testing.T) {
		ts := newTestServer(t)

		w := ts.do("POST", "/api/lender-products/sync", catalogBody, false)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Zero(t, ts.store.GetStats().Count)
	})

	t.Run("rejects malformed body", func(t *testing.T) {
		ts := newTestServer(t)
		for _, body := range []string{`{"products": "nope"}`, `{"items": []}`, `not json`, `42`} {
			w := ts.do("POST", "/api/lender-products/sync", body, true)
			assert.Equal(t, http.StatusBadRequest, w.Code, body)
		}
	})

	t.Run("replaces catalog and serves it sorted by name", func(t *testing.T) {
		ts := newTestServer(t)

		w := ts.do("POST", "/api/lender-products/sync", catalogBody, true)

		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		response := decode(t, w)
		assert.Equal(t, true, response["success"])
		assert.Equal(t, float64(2), response["count"])
		assert.Equal(t, float64(1), response["dropped"])
		assert.Equal(t, "Synced 2 products", response["message"])

		w = ts.do("GET", "/api/lender-products/sync", "", false)
		require.Equal(t, http.StatusOK, w.Code)
		response = decode(t, w)
		assert.Equal(t, float64(2), response["count"])
		assert.NotEmpty(t, response["lastUpdated"])
		products := response["products"].([]any)
		require.Len(t, products, 2)
		assert.Equal(t, "Alpha Working Capital", products[0].(map[string]any)["name"])
		assert.Equal(t, "Zeta Term Loan", products[1].(map[string]any)["name"])
	})

	t.Run("accepts a bare array", func(t *testing.T) {
		ts := newTestServer(t)

		w := ts.do("POST", "/api/lender-products/sync",
			`[{"id": "x", "name": "X", "lender_name": "L", "country": "Canada", "category": "sba_loan", "min_amount": 1, "max_amount": 2}]`, true)

		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, 1, ts.store.GetStats().Count)
	})

	t.Run("refuses a batch with no valid products", func(t *testing.T) {
		ts := newTestServer(t)
		ts.do("POST", "/api/lender-products/sync", catalogBody, true)

		w := ts.do("POST", "/api/lender-products/sync", `{"products": [{"name": "broken"}, "junk"]}`, true)

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Equal(t, float64(2), decode(t, w)["dropped"])
		assert.Equal(t, 2, ts.store.GetStats().Count)
	})
}

func TestStatsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.do("POST", "/api/lender-products/sync", catalogBody, true)

	w := ts.do("GET", "/api/lender-products/stats", "", false)

	require.Equal(t, http.StatusOK, w.Code)
	stats := decode(t, w)["stats"].(map[string]any)
	assert.Equal(t, float64(2), stats["count"])
	assert.Equal(t, domain.SourceStaffSync, stats["source"])
	assert.Equal(t, map[string]any{"US": float64(1), "CA": float64(1)}, stats["countryBreakdown"])
	assert.Len(t, stats["signature"], 64)
}

func TestProductCRUDEndpoints(t *testing.T) {
	ts := newTestServer(t)
	ts.do("POST", "/api/lender-products/sync", catalogBody, true)

	t.Run("create requires auth", func(t *testing.T) {
		w := ts.do("POST", "/api/lender-products", `{"name": "n"}`, false)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("create", func(t *testing.T) {
		w := ts.do("POST", "/api/lender-products",
			`{"id": "p-eq", "name": "Equipment Plus", "lender_name": "North Bank", "country": "US", "category": "Equipment Financing", "min_amount": 20000, "max_amount": 500000}`, true)

		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		products := decode(t, w)["products"].([]any)
		require.Len(t, products, 1)
		assert.Equal(t, "equipment_financing", products[0].(map[string]any)["category"])
		assert.Equal(t, 3, ts.store.GetStats().Count)
	})

	t.Run("create duplicate", func(t *testing.T) {
		w := ts.do("POST", "/api/lender-products",
			`{"id": "p-eq", "name": "Again", "lender_name": "L", "country": "US", "category": "term_loan", "min_amount": 1, "max_amount": 2}`, true)
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("create invalid", func(t *testing.T) {
		w := ts.do("POST", "/api/lender-products", `{"name": "No lender", "country": "US", "category": "term_loan"}`, true)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, decode(t, w)["error"], "lender_name")
	})

	t.Run("create non-object", func(t *testing.T) {
		w := ts.do("POST", "/api/lender-products", `[1, 2]`, true)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("update", func(t *testing.T) {
		w := ts.do("PUT", "/api/lender-products/p-eq", `{"max_amount": 750000}`, true)

		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		product := decode(t, w)["product"].(map[string]any)
		assert.Equal(t, float64(750000), product["max_amount"])
		assert.Equal(t, "Equipment Plus", product["name"])
	})

	t.Run("update with camelCase keys", func(t *testing.T) {
		before := ts.store.Snapshot().Signature

		w := ts.do("PUT", "/api/lender-products/p-eq", `{"maxAmount": 800000, "isActive": false, "lenderName": "Renamed"}`, true)

		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		product := decode(t, w)["product"].(map[string]any)
		assert.Equal(t, float64(800000), product["max_amount"])
		assert.Equal(t, false, product["active"])
		assert.Equal(t, "Renamed", product["lender_name"])
		assert.NotEqual(t, before, ts.store.Snapshot().Signature)
	})

	t.Run("update invalid", func(t *testing.T) {
		w := ts.do("PUT", "/api/lender-products/p-eq", `{"min_amount": 900000}`, true)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("update missing", func(t *testing.T) {
		w := ts.do("PUT", "/api/lender-products/nope", `{"max_amount": 1}`, true)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("delete", func(t *testing.T) {
		w := ts.do("DELETE", "/api/lender-products/p-eq", "", true)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 2, ts.store.GetStats().Count)

		w = ts.do("DELETE", "/api/lender-products/p-eq", "", true)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestPullEndpoint(t *testing.T) {
	t.Run("pulls from upstream", func(t *testing.T) {
		ts := newTestServer(t)
		ts.upstreamBody.Store(catalogBody)

		w := ts.do("POST", "/api/lender-products/pull", "", true)

		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, float64(2), decode(t, w)["count"])
		assert.Equal(t, domain.SourceDatabase, ts.store.GetStats().Source)
	})

	t.Run("upstream failure keeps the catalog", func(t *testing.T) {
		ts := newTestServer(t)
		ts.do("POST", "/api/lender-products/sync", catalogBody, true)

		w := ts.do("POST", "/api/lender-products/pull", "", true)

		assert.Equal(t, http.StatusBadGateway, w.Code)
		assert.Contains(t, decode(t, w)["error"], "500")
		assert.Equal(t, 2, ts.store.GetStats().Count)
	})
}

func TestWebhookEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.upstreamBody.Store(catalogBody)

	payload := `{"deliveryId": "d-1", "timestamp": "2026-01-01T00:00:00Z", "productsCount": 2, "action": "replace"}`
	req := httptest.NewRequest("POST", notify.WebhookPath, strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Source", notify.WebhookSource)
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusAccepted, w.Code)
	ts.handler.Wait()
	assert.Equal(t, 2, ts.store.GetStats().Count)

	w = ts.do("POST", notify.WebhookPath, "", false)
	assert.Equal(t, http.StatusAccepted, w.Code)
	ts.handler.Wait()

	w = ts.do("POST", notify.WebhookPath, "{", false)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWebhookEndpoint_NoticeDuringPull(t *testing.T) {
	ts := newTestServer(t)
	ts.upstreamBody.Store(`{"products": [
		{"id": "p-term", "name": "Zeta Term Loan", "lender_name": "North Bank", "country": "US", "category": "term_loan", "min_amount": 10000, "max_amount": 250000}
	]}`)

	entered := make(chan struct{}, 4)
	release := make(chan struct{})
	ts.upstreamHook.Store(func() {
		entered <- struct{}{}
		<-release
	})

	w := ts.do("POST", notify.WebhookPath, "", false)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "Pull scheduled", decode(t, w)["message"])

	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		close(release)
		t.Fatal("first pull never reached the upstream")
	}

	// The catalog changes while the first pull is holding the old body
	ts.upstreamBody.Store(catalogBody)
	w = ts.do("POST", notify.WebhookPath, "", false)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "Pull already in progress; another will follow", decode(t, w)["message"])

	close(release)
	ts.handler.Wait()

	assert.Equal(t, int32(2), ts.upstreamHits.Load())
	assert.Equal(t, 2, ts.store.GetStats().Count)
	_, err := ts.store.Get("p-wc")
	assert.NoError(t, err)
}

func TestRecommendationsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.do("POST", "/api/lender-products/sync", catalogBody, true)

	t.Run("ranks matching products", func(t *testing.T) {
		w := ts.do("POST", "/api/recommendations", `{"country": "US", "fundingAmount": 50000, "lookingFor": "capital"}`, false)

		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		response := decode(t, w)
		assert.Equal(t, float64(1), response["count"])
		recs := response["recommendations"].([]any)
		top := recs[0].(map[string]any)
		assert.Equal(t, "p-term", top["product"].(map[string]any)["id"])
		assert.Equal(t, float64(55), top["matchScore"])
		assert.Equal(t, "good", top["recommendationLevel"])
		assert.Equal(t, []any{"term_loan"}, response["availableCategories"])
	})

	t.Run("no match is an empty list", func(t *testing.T) {
		w := ts.do("POST", "/api/recommendations", `{"country": "CA", "fundingAmount": 999999, "lookingFor": "capital"}`, false)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, []any{}, decode(t, w)["recommendations"])
	})

	t.Run("invalid filters", func(t *testing.T) {
		for _, body := range []string{
			`{"country": "US", "lookingFor": "capital"}`,
			`{"country": "MX", "fundingAmount": 10, "lookingFor": "capital"}`,
			`{"country": "US", "fundingAmount": 10, "lookingFor": "cash"}`,
			`{"country": "US", "fundingAmount": -5, "lookingFor": "both"}`,
		} {
			w := ts.do("POST", "/api/recommendations", body, false)
			assert.Equal(t, http.StatusBadRequest, w.Code, body)
		}
	})
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.do("POST", "/api/lender-products/sync", catalogBody, true)

	w := ts.do("GET", "/metrics", "", false)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "lendmatch_catalog_products")
}

func TestEventsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	srv := httptest.NewServer(ts.router)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET", srv.URL+"/api/lender-products/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	events := make(chan string, 16)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			if name, ok := strings.CutPrefix(scanner.Text(), "event:"); ok {
				events <- strings.TrimSpace(name)
			}
		}
		close(events)
	}()

	next := func() string {
		select {
		case name := <-events:
			return name
		case <-time.After(2 * time.Second):
			return "timeout"
		}
	}

	assert.Equal(t, "connected", next())

	_, err = ts.store.Add(context.Background(), domain.RawRecord{
		"name": "Live Product", "lender_name": "L", "country": "US",
		"category": "term_loan", "min_amount": 1.0, "max_amount": 10.0,
	})
	require.NoError(t, err)

	// heartbeats may arrive first
	for name := next(); name != "lender-products-updated"; name = next() {
		require.Equal(t, "heartbeat", name)
	}
}
