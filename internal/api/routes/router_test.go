package routes

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zatekoja/shopdiscovery/internal/adapters/catalog"
	"github.com/zatekoja/shopdiscovery/internal/api/handlers"
	"github.com/zatekoja/shopdiscovery/internal/app"
	"github.com/zatekoja/shopdiscovery/internal/domain/entities"
	"github.com/zatekoja/shopdiscovery/internal/metrics"
	"github.com/zatekoja/shopdiscovery/internal/telemetry"
	"github.com/zatekoja/shopdiscovery/pkg/config"
)

func newTestHandler(t *testing.T) (http.Handler, *app.Core) {
	t.Helper()
	cfg := &config.Config{
		Cache: config.CacheConfig{
			ResultsTTL: time.Minute, ResultsMaxEntries: 10,
			DerivedTTL: time.Hour, DerivedMaxEntries: 100,
			SnapshotTTL: time.Second, SnapshotMaxEntries: 5,
			MinConfidence: 10,
		},
		Resilience: config.ResilienceConfig{
			FailureThreshold: 3, ResetTimeout: time.Minute,
			MaxRetries: 1, BaseDelay: time.Millisecond, BackoffMultiplier: 2, MaxDelay: time.Millisecond,
		},
	}
	store := catalog.NewMemory(
		&entities.CatalogEntity{ID: "p1", Name: "Rice Cooker", Category: "Appliances", Stock: 3},
		&entities.CatalogEntity{ID: "p2", Name: "Basmati Rice", Category: "Grains", Stock: 5},
	)
	core, err := app.New(cfg, store)
	require.NoError(t, err)
	require.NoError(t, core.Warm(context.Background()))

	reg := prometheus.NewRegistry()
	require.NoError(t, metrics.Register(reg, core.Metrics))

	router := NewRouter(
		handlers.NewSearchHandler(core),
		handlers.NewOpsHandler(core.Telemetry, core.Executor, core.Tracker, core.Cache, core.Ranking),
		promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		core.Telemetry,
		zerolog.Nop(),
	)
	return router.SetupRoutes(), core
}

func TestRouter_Health(t *testing.T) {
	handler, _ := newTestHandler(t)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestRouter_SearchRecordsTelemetry(t *testing.T) {
	handler, core := newTestHandler(t)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/search?q=basmati", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp entities.SearchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, "p2", resp.Results[0].Entity.ID)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/search?q=", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	api := core.Telemetry.Report(telemetry.ServiceAPI)
	assert.Equal(t, int64(2), api.Count)
	assert.Equal(t, int64(0), api.Errors)
}

func TestRouter_OpsAndMetrics(t *testing.T) {
	handler, _ := newTestHandler(t)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/search?q=rice", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/ops/breakers", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"closed"`)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `shopcore_service_requests_total{service="catalog"} 1`)
	assert.Contains(t, rec.Body.String(), `shopcore_circuit_breaker_state{dependency="catalog"} 0`)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/ops/breakers", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRouter_InvalidateUserResults(t *testing.T) {
	handler, _ := newTestHandler(t)

	for _, target := range []string{
		"/api/search?q=rice&user_id=u1",
		"/api/search?q=basmati&user_id=u1",
		"/api/search?q=rice&user_id=u2",
	} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		require.Equal(t, http.StatusOK, rec.Code, target)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/ops/cache/results?user_id=u1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		UserID  string `json:"user_id"`
		Removed int    `json:"removed"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "u1", body.UserID)
	assert.Equal(t, 2, body.Removed)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/ops/cache/results?user_id=u1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 0, body.Removed)
}
