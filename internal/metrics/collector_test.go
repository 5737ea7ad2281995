package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zatekoja/shopdiscovery/internal/cache"
	"github.com/zatekoja/shopdiscovery/internal/resilience"
	"github.com/zatekoja/shopdiscovery/internal/telemetry"
)

type staticReports []telemetry.Metrics

func (s staticReports) Reports() []telemetry.Metrics { return s }

type staticCaches []cache.Stats

func (s staticCaches) AllStats() []cache.Stats { return s }

type staticBreakers []resilience.BreakerState

func (s staticBreakers) Breakers() []resilience.BreakerState { return s }

func TestCollector_ExportsBreakerState(t *testing.T) {
	c := NewCollector(nil, nil, staticBreakers{
		{Name: "catalog", State: resilience.StateOpen, ConsecutiveFailures: 5},
		{Name: "ranking", State: resilience.StateClosed},
	})

	expected := `
# HELP shopcore_circuit_breaker_state Breaker state per dependency (0 closed, 1 half-open, 2 open).
# TYPE shopcore_circuit_breaker_state gauge
shopcore_circuit_breaker_state{dependency="catalog"} 2
shopcore_circuit_breaker_state{dependency="ranking"} 0
`
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected), "shopcore_circuit_breaker_state"))
}

func TestCollector_ExportsServiceAndPoolMetrics(t *testing.T) {
	c := NewCollector(
		staticReports{{Service: "ranking", Count: 10, Errors: 2, AvgLatency: 250 * time.Millisecond, MaxLatency: time.Second, CacheHits: 4, CacheMisses: 6}},
		staticCaches{{Name: "results", Hits: 4, Misses: 6, Size: 3, Capacity: 100}, {Name: "derived", Size: 50, Capacity: 5000}},
		nil,
	)

	expected := `
# HELP shopcore_service_requests_total Timed calls per service.
# TYPE shopcore_service_requests_total counter
shopcore_service_requests_total{service="ranking"} 10
# HELP shopcore_service_latency_avg_seconds Average call latency per service.
# TYPE shopcore_service_latency_avg_seconds gauge
shopcore_service_latency_avg_seconds{service="ranking"} 0.25
# HELP shopcore_cache_pool_size Entries currently stored.
# TYPE shopcore_cache_pool_size gauge
shopcore_cache_pool_size{pool="derived"} 50
shopcore_cache_pool_size{pool="results"} 3
`
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected),
		"shopcore_service_requests_total", "shopcore_service_latency_avg_seconds", "shopcore_cache_pool_size"))

	assert.Equal(t, 6+2*6, testutil.CollectAndCount(c))
}

func TestRegister_IgnoresDuplicates(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(nil, nil, nil)

	require.NoError(t, Register(reg, c))
	require.NoError(t, Register(reg, c))
}
