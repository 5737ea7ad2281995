package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zatekoja/shopdiscovery/internal/cache"
	"github.com/zatekoja/shopdiscovery/internal/domain/entities"
	"github.com/zatekoja/shopdiscovery/internal/domain/repositories"
	apperrors "github.com/zatekoja/shopdiscovery/pkg/errors"
)

// mockCatalog is an in-memory CatalogRepository that counts reads.
type mockCatalog struct {
	mu       sync.Mutex
	entities []*entities.CatalogEntity
	err      error
	calls    int
}

func (m *mockCatalog) ListEntities(ctx context.Context, filter repositories.CatalogFilter) ([]*entities.CatalogEntity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	var out []*entities.CatalogEntity
	for _, e := range m.entities {
		if filter.Matches(e) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *mockCatalog) setError(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

func (m *mockCatalog) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func price(v float64) *float64 {
	return &v
}

func groceryCatalog() []*entities.CatalogEntity {
	return []*entities.CatalogEntity{
		{ID: "p1", Name: "Rice Cooker", Brand: "Kitchenly", Category: "Appliances", Stock: 0},
		{ID: "p2", Name: "Basmati Rice", Brand: "Tilda", Category: "Grains", Stock: 5, Price: price(80)},
		{ID: "p3", Name: "Olive Oil", Brand: "Bertolli", Category: "Oils", Tags: []string{"cooking", "mediterranean"}, Stock: 12, Price: price(12.5)},
		{ID: "p4", Name: "Rice", Aliases: []string{"white rice"}, Category: "Grains", Stock: 0},
		{ID: "p5", Name: "Brown Rice Flour", Category: "Baking", Description: "Stone ground rice flour", Stock: 3},
	}
}

func newRanker(catalog repositories.CatalogRepository) *SearchRankingService {
	return NewSearchRankingService(catalog, nil, nil, RankingConfig{})
}

func ids(results []entities.SearchResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Entity.ID
	}
	return out
}

func TestRank_InStockPricedWordMatchBeatsPrefixMatch(t *testing.T) {
	catalog := []*entities.CatalogEntity{
		{ID: "cooker", Name: "Rice Cooker", Stock: 0},
		{ID: "basmati", Name: "Basmati Rice", Stock: 5, Price: price(80)},
	}

	results := newRanker(&mockCatalog{}).Rank("rice", catalog, 0)

	require.Len(t, results, 2)
	assert.Equal(t, []string{"basmati", "cooker"}, ids(results))
	assert.Equal(t, entities.MatchTypeName, results[0].MatchType)
	assert.Greater(t, results[0].RelevanceScore, results[1].RelevanceScore)
}

func TestRank_ExactMatchAboveSubstring(t *testing.T) {
	results := newRanker(&mockCatalog{}).Rank("Rice", groceryCatalog(), 0)

	require.NotEmpty(t, results)
	assert.Equal(t, "p4", results[0].Entity.ID, "unavailable exact match still outranks in-stock substring matches")
	assert.Contains(t, results[0].ScoreBreakdown, "exact")
}

func TestRank_AliasCountsAsExact(t *testing.T) {
	results := newRanker(&mockCatalog{}).Rank("  WHITE   rice ", groceryCatalog(), 0)

	require.NotEmpty(t, results)
	assert.Equal(t, "p4", results[0].Entity.ID)
}

func TestRank_IsDeterministic(t *testing.T) {
	svc := newRanker(&mockCatalog{})
	first := svc.Rank("rice", groceryCatalog(), 0)
	for i := 0; i < 5; i++ {
		assert.Equal(t, ids(first), ids(svc.Rank("rice", groceryCatalog(), 0)))
	}
}

func TestRank_TieBreaksOnAvailabilityThenInputOrder(t *testing.T) {
	catalog := []*entities.CatalogEntity{
		{ID: "a", Name: "Green Tea", Stock: 0, Price: price(4)},
		{ID: "b", Name: "Black Tea", Stock: 0, Price: price(4)},
		{ID: "c", Name: "Mint Tea", Stock: 0, Price: price(4)},
	}

	results := newRanker(&mockCatalog{}).Rank("tea", catalog, 0)
	assert.Equal(t, []string{"a", "b", "c"}, ids(results))
}

func TestRank_FieldMatchTypes(t *testing.T) {
	svc := newRanker(&mockCatalog{})

	byBrand := svc.Rank("tilda", groceryCatalog(), 0)
	require.Len(t, byBrand, 1)
	assert.Equal(t, entities.MatchTypeBrand, byBrand[0].MatchType)

	byTag := svc.Rank("mediterranean", groceryCatalog(), 0)
	require.Len(t, byTag, 1)
	assert.Equal(t, entities.MatchTypeTag, byTag[0].MatchType)

	byDescription := svc.Rank("stone ground", groceryCatalog(), 0)
	require.Len(t, byDescription, 1)
	assert.Equal(t, entities.MatchTypeDescription, byDescription[0].MatchType)

	byCategory := svc.Rank("appliances", groceryCatalog(), 0)
	require.Len(t, byCategory, 1)
	assert.Equal(t, entities.MatchTypeCategory, byCategory[0].MatchType)
}

func TestRank_FuzzyWhenDirectMatchesAreScarce(t *testing.T) {
	results := newRanker(&mockCatalog{}).Rank("basmatti", groceryCatalog(), 0)

	require.Len(t, results, 1)
	assert.Equal(t, "p2", results[0].Entity.ID)
	assert.Contains(t, results[0].ScoreBreakdown, "fuzzy")
}

func TestRank_FuzzyBelowFloorIsDropped(t *testing.T) {
	results := newRanker(&mockCatalog{}).Rank("zzzz", groceryCatalog(), 0)
	assert.Empty(t, results)
}

func TestRank_RespectsLimit(t *testing.T) {
	svc := NewSearchRankingService(&mockCatalog{}, nil, nil, RankingConfig{MaxResults: 2})

	assert.Len(t, svc.Rank("rice", groceryCatalog(), 0), 2)
	assert.Len(t, svc.Rank("rice", groceryCatalog(), 1), 1)
	assert.Len(t, svc.Rank("rice", groceryCatalog(), 10), 2)
}

func TestSearch_EmptyQueryIsValidationError(t *testing.T) {
	_, err := newRanker(&mockCatalog{}).Search(context.Background(), "   ", SearchFilters{})
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))
}

func TestSearch_AppliesFilters(t *testing.T) {
	catalog := &mockCatalog{entities: groceryCatalog()}
	svc := newRanker(catalog)

	results, err := svc.Search(context.Background(), "rice", SearchFilters{
		CatalogFilter: repositories.CatalogFilter{InStockOnly: true},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"p2", "p5"}, ids(results))
}

func TestSearch_MemoizesNonEmptyResults(t *testing.T) {
	catalog := &mockCatalog{entities: groceryCatalog()}
	results := cache.NewPool(cache.PoolConfig[[]entities.SearchResult]{
		Name: cache.PoolResults, TTL: time.Minute, MaxEntries: 10, Admit: ResultsAdmission(10),
	})
	svc := NewSearchRankingService(catalog, results, nil, RankingConfig{})
	ctx := context.Background()

	first, err := svc.Search(ctx, "Rice", SearchFilters{UserID: "u-1"})
	require.NoError(t, err)
	second, err := svc.Search(ctx, "  rice ", SearchFilters{UserID: "u-1"})
	require.NoError(t, err)

	assert.Equal(t, ids(first), ids(second))
	assert.Equal(t, 1, catalog.callCount(), "equal normalized requests share a cache entry")

	catalog.setError(errors.New("store offline"))
	_, err = svc.Search(ctx, "rice", SearchFilters{UserID: "u-2"})
	assert.Error(t, err, "other scopes do not share entries")

	assert.Equal(t, 1, svc.InvalidateUser("u-1"))
}

func TestSearch_DoesNotCacheEmptyResults(t *testing.T) {
	catalog := &mockCatalog{entities: groceryCatalog()}
	results := cache.NewPool(cache.PoolConfig[[]entities.SearchResult]{
		Name: cache.PoolResults, TTL: time.Minute, MaxEntries: 10, Admit: ResultsAdmission(10),
	})
	svc := NewSearchRankingService(catalog, results, nil, RankingConfig{})
	ctx := context.Background()

	got, err := svc.Search(ctx, "saffron", SearchFilters{})
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Zero(t, results.Len())

	_, err = svc.Search(ctx, "saffron", SearchFilters{})
	require.NoError(t, err)
	assert.Equal(t, 2, catalog.callCount())
}

func TestSearch_DerivedFeaturesFollowUpdates(t *testing.T) {
	updated := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	entity := &entities.CatalogEntity{ID: "p9", Name: "Jasmine Rice", Stock: 1, UpdatedAt: updated}
	derived := cache.NewPool(cache.PoolConfig[EntityFeatures]{Name: cache.PoolDerived, TTL: time.Hour, MaxEntries: 10})
	svc := NewSearchRankingService(&mockCatalog{}, nil, derived, RankingConfig{})

	require.Len(t, svc.Rank("jasmine", []*entities.CatalogEntity{entity}, 0), 1)
	require.Len(t, svc.Rank("jasmine", []*entities.CatalogEntity{entity}, 0), 1)
	assert.Equal(t, uint64(1), derived.Stats().Hits)

	renamed := *entity
	renamed.Name = "Sticky Rice"
	renamed.UpdatedAt = updated.Add(time.Hour)
	assert.Empty(t, svc.Rank("jasmine", []*entities.CatalogEntity{&renamed}, 0))
}

func TestSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, similarity("rice", "rice"))
	assert.Equal(t, 0.0, similarity("", ""))
	assert.InDelta(t, 0.75, similarity("rice", "rise"), 1e-9)
	assert.Less(t, similarity("rice", "oil"), 0.6)
}

func TestRank_DerivedFeaturesDoNotLeakBetweenIDLessEntities(t *testing.T) {
	catalog := []*entities.CatalogEntity{
		{Name: "Basmati Rice", Stock: 5, Price: price(80)},
		{Name: "Rice Cooker"},
	}
	derived := cache.NewPool(cache.PoolConfig[EntityFeatures]{Name: cache.PoolDerived, TTL: time.Hour, MaxEntries: 10})
	memoized := NewSearchRankingService(&mockCatalog{}, nil, derived, RankingConfig{})
	plain := newRanker(&mockCatalog{})

	got := memoized.Rank("rice", catalog, 0)
	want := plain.Rank("rice", catalog, 0)
	require.Len(t, got, 2)
	assert.Equal(t, want, got)
	assert.Equal(t, 2, derived.Len())

	cooker := memoized.Rank("cooker", catalog, 0)
	require.Len(t, cooker, 1)
	assert.Equal(t, "Rice Cooker", cooker[0].Entity.Name)
}

func TestRank_DerivedFeaturesFollowInPlaceEdits(t *testing.T) {
	entity := &entities.CatalogEntity{ID: "p9", Name: "Jasmine Rice", Stock: 1}
	derived := cache.NewPool(cache.PoolConfig[EntityFeatures]{Name: cache.PoolDerived, TTL: time.Hour, MaxEntries: 10})
	svc := NewSearchRankingService(&mockCatalog{}, nil, derived, RankingConfig{})
	require.Len(t, svc.Rank("jasmine", []*entities.CatalogEntity{entity}, 0), 1)

	entity.Tags = []string{"fragrant"}
	results := svc.Rank("fragrant", []*entities.CatalogEntity{entity}, 0)
	require.Len(t, results, 1)
	assert.Equal(t, entities.MatchTypeTag, results[0].MatchType)
}
