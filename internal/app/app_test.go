package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zatekoja/shopdiscovery/internal/adapters/catalog"
	"github.com/zatekoja/shopdiscovery/internal/application/services"
	"github.com/zatekoja/shopdiscovery/internal/cache"
	"github.com/zatekoja/shopdiscovery/internal/domain/entities"
	"github.com/zatekoja/shopdiscovery/internal/domain/repositories"
	"github.com/zatekoja/shopdiscovery/internal/resilience"
	"github.com/zatekoja/shopdiscovery/internal/telemetry"
	"github.com/zatekoja/shopdiscovery/pkg/config"
	apperrors "github.com/zatekoja/shopdiscovery/pkg/errors"
)

// switchableCatalog fails every read while down is set.
type switchableCatalog struct {
	mu   sync.Mutex
	next repositories.CatalogRepository
	down bool
}

func (s *switchableCatalog) setDown(down bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.down = down
}

func (s *switchableCatalog) ListEntities(ctx context.Context, filter repositories.CatalogFilter) ([]*entities.CatalogEntity, error) {
	s.mu.Lock()
	down := s.down
	s.mu.Unlock()
	if down {
		return nil, apperrors.NewExternalError("catalog store unavailable", errors.New("connection refused"))
	}
	return s.next.ListEntities(ctx, filter)
}

func testConfig() *config.Config {
	return &config.Config{
		Cache: config.CacheConfig{
			ResultsTTL:         time.Minute,
			ResultsMaxEntries:  10,
			DerivedTTL:         time.Hour,
			DerivedMaxEntries:  100,
			SnapshotTTL:        time.Second,
			SnapshotMaxEntries: 5,
			MinConfidence:      10,
			SweepInterval:      10 * time.Millisecond,
		},
		Telemetry: config.TelemetryConfig{
			MinSamples:      5,
			AlertLogSize:    10,
			AlertWindow:     time.Minute,
			AlertRetention:  time.Hour,
			SampleInterval:  10 * time.Millisecond,
			ResourceWindow:  3,
			GrowthRatio:     1.2,
			PublishInterval: time.Minute,
		},
		Resilience: config.ResilienceConfig{
			FailureThreshold:  2,
			ResetTimeout:      time.Minute,
			MaxRetries:        1,
			BaseDelay:         time.Millisecond,
			BackoffMultiplier: 2,
			MaxDelay:          time.Millisecond,
			CriticalServices:  []string{telemetry.ServiceCatalog},
		},
		Ranking: config.RankingConfig{
			MaxResults:      20,
			SimilarityFloor: 0.6,
			FuzzyTrigger:    3,
		},
	}
}

func newTestCore(t *testing.T) (*Core, *switchableCatalog) {
	t.Helper()
	store := &switchableCatalog{next: catalog.NewMemory(
		&entities.CatalogEntity{ID: "p1", Name: "Rice Cooker", Brand: "Kitchenly", Category: "Appliances", Stock: 3},
		&entities.CatalogEntity{ID: "p2", Name: "Basmati Rice", Aliases: []string{"basmati"}, Category: "Grains", Stock: 5},
		&entities.CatalogEntity{ID: "p3", Name: "Olive Oil", Category: "Oils", Stock: 12},
	)}
	core, err := New(testConfig(), store)
	require.NoError(t, err)
	return core, store
}

func TestNew_RegistersPools(t *testing.T) {
	core, _ := newTestCore(t)

	var names []string
	for _, s := range core.Cache.AllStats() {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{cache.PoolDerived, cache.PoolResults, cache.PoolSnapshots}, names)
	assert.Nil(t, core.Publisher)
}

func TestCore_SearchThenDegrade(t *testing.T) {
	core, store := newTestCore(t)
	ctx := context.Background()
	require.NoError(t, core.Warm(ctx))

	resp, err := core.Search(ctx, services.SearchRequest{Query: "basmati"})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, "p2", resp.Results[0].Entity.ID)
	assert.False(t, resp.FallbackUsed)

	store.setDown(true)
	resp, err = core.Search(ctx, services.SearchRequest{Query: "olive oil", UserID: "u1"})
	require.NoError(t, err)
	assert.True(t, resp.FallbackUsed)
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, "p3", resp.Results[0].Entity.ID)
	assert.Contains(t, resp.PrimaryError, "catalog store unavailable")

	report := core.Telemetry.Report(telemetry.ServiceCatalog)
	assert.Equal(t, int64(2), report.Count)
	assert.Equal(t, int64(1), report.Errors)
	assert.NotEmpty(t, core.Tracker.Recent())
}

func TestCore_BreakerOpensAfterThreshold(t *testing.T) {
	core, store := newTestCore(t)
	ctx := context.Background()
	require.NoError(t, core.Warm(ctx))
	store.setDown(true)

	for _, q := range []string{"rice", "oil"} {
		_, err := core.Search(ctx, services.SearchRequest{Query: q})
		require.NoError(t, err)
	}

	state := core.Executor.BreakerSnapshot(telemetry.ServiceCatalog)
	assert.Equal(t, resilience.StateOpen, state.State)

	resp, err := core.Search(ctx, services.SearchRequest{Query: "cooker"})
	require.NoError(t, err)
	assert.True(t, resp.FallbackUsed)
	assert.Contains(t, resp.PrimaryError, "circuit open")
}

func TestCore_MetricsCollectorSeesComponents(t *testing.T) {
	core, _ := newTestCore(t)
	ctx := context.Background()

	_, err := core.Search(ctx, services.SearchRequest{Query: "rice"})
	require.NoError(t, err)

	assert.Equal(t, 1, testutil.CollectAndCount(core.Metrics, "shopcore_service_requests_total"))
	assert.Equal(t, 3, testutil.CollectAndCount(core.Metrics, "shopcore_cache_pool_size"))
	assert.Equal(t, 1, testutil.CollectAndCount(core.Metrics, "shopcore_circuit_breaker_state"))
}

func TestCore_RunStopsOnCancel(t *testing.T) {
	core, _ := newTestCore(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		core.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(core.Sampler.Samples()) > 0 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("background loops did not stop")
	}
}
