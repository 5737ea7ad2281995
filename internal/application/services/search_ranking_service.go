package services

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/zatekoja/shopdiscovery/internal/cache"
	"github.com/zatekoja/shopdiscovery/internal/domain/entities"
	"github.com/zatekoja/shopdiscovery/internal/domain/repositories"
	"github.com/zatekoja/shopdiscovery/internal/telemetry"
	apperrors "github.com/zatekoja/shopdiscovery/pkg/errors"
	"github.com/zatekoja/shopdiscovery/pkg/utils"
)

const (
	searchNamespace   = "search"
	featuresNamespace = "features"
)

// ScoreWeights are the fixed contributions of each ranking signal.
type ScoreWeights struct {
	Exact       float64
	Prefix      float64
	Word        float64
	Substring   float64
	Brand       float64
	Category    float64
	Tag         float64
	Description float64
	Fuzzy       float64
	InStock     float64
	Price       float64
}

// DefaultScoreWeights keeps an exact name match above any combination of
// weaker signals.
func DefaultScoreWeights() ScoreWeights {
	return ScoreWeights{
		Exact:       200,
		Prefix:      40,
		Word:        30,
		Substring:   20,
		Brand:       15,
		Category:    10,
		Tag:         8,
		Description: 5,
		Fuzzy:       20,
		InStock:     25,
		Price:       5,
	}
}

// RankingConfig bounds the ranking engine. Fuzzy matching runs when fewer than
// FuzzyTrigger entities matched directly.
type RankingConfig struct {
	MaxResults      int
	SimilarityFloor float64
	FuzzyTrigger    int
	Weights         ScoreWeights
}

// SearchFilters narrows a search. UserID scopes the cached results.
type SearchFilters struct {
	repositories.CatalogFilter
	Limit  int
	UserID string
}

// EntityFeatures is the normalized text of one entity, memoized in the
// derived pool.
type EntityFeatures struct {
	Name        string
	Aliases     []string
	NameWords   []string
	Brand       string
	Category    string
	Tags        []string
	Description string
}

// SearchRankingService scores catalog entities against free-text queries.
type SearchRankingService struct {
	catalog repositories.CatalogRepository
	results *cache.Pool[[]entities.SearchResult]
	derived *cache.Pool[EntityFeatures]
	cfg     RankingConfig
}

// NewSearchRankingService creates the ranking engine. Either pool may be nil,
// in which case that layer of memoization is skipped.
func NewSearchRankingService(
	catalog repositories.CatalogRepository,
	results *cache.Pool[[]entities.SearchResult],
	derived *cache.Pool[EntityFeatures],
	cfg RankingConfig,
) *SearchRankingService {
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 20
	}
	if cfg.SimilarityFloor <= 0 || cfg.SimilarityFloor > 1 {
		cfg.SimilarityFloor = 0.6
	}
	if cfg.FuzzyTrigger <= 0 {
		cfg.FuzzyTrigger = 3
	}
	if cfg.Weights == (ScoreWeights{}) {
		cfg.Weights = DefaultScoreWeights()
	}
	return &SearchRankingService{
		catalog: catalog,
		results: results,
		derived: derived,
		cfg:     cfg,
	}
}

// ResultsAdmission admits non-empty result sets whose best score reaches
// minConfidence.
func ResultsAdmission(minConfidence float64) cache.AdmitFunc[[]entities.SearchResult] {
	return func(results []entities.SearchResult) bool {
		return len(results) > 0 && results[0].RelevanceScore >= minConfidence
	}
}

// Search ranks the catalog against query. Results come from the results pool
// when an equal request was answered recently.
func (s *SearchRankingService) Search(ctx context.Context, query string, filters SearchFilters) ([]entities.SearchResult, error) {
	results, _, err := s.search(ctx, query, filters)
	return results, err
}

func (s *SearchRankingService) search(ctx context.Context, query string, filters SearchFilters) ([]entities.SearchResult, bool, error) {
	q := utils.NormalizeText(query)
	if q == "" {
		return nil, false, apperrors.NewValidationError("search query is empty")
	}
	limit := s.limit(filters.Limit)
	key := s.resultsKey(q, limit, filters)

	if s.results != nil {
		if cached, ok := s.results.Get(key); ok {
			telemetry.MarkCacheHit(ctx, true)
			return append([]entities.SearchResult(nil), cached...), true, nil
		}
		telemetry.MarkCacheHit(ctx, false)
	}

	list, err := s.catalog.ListEntities(ctx, filters.CatalogFilter)
	if err != nil {
		return nil, false, err
	}

	results := s.Rank(q, list, limit)
	if s.results != nil {
		s.results.Set(key, results)
	}
	return results, false, nil
}

// InvalidateUser drops every cached result scoped to userID.
func (s *SearchRankingService) InvalidateUser(userID string) int {
	if s.results == nil {
		return 0
	}
	return s.results.Invalidate(cache.ScopePattern(searchNamespace, userID))
}

func (s *SearchRankingService) resultsKey(q string, limit int, filters SearchFilters) string {
	parts := append([]string{q, "limit=" + strconv.Itoa(limit)}, filters.KeyParts()...)
	return cache.Key(searchNamespace, filters.UserID, parts...)
}

func (s *SearchRankingService) limit(requested int) int {
	if requested > 0 && requested < s.cfg.MaxResults {
		return requested
	}
	return s.cfg.MaxResults
}

var scoreSignals = []string{
	"exact", "prefix", "substring", "word", "brand", "category",
	"tag", "description", "fuzzy", "in_stock", "price",
}

type candidate struct {
	result  entities.SearchResult
	inStock bool
}

// Rank scores list against query and returns at most limit results ordered
// by score, then availability, then input order.
func (s *SearchRankingService) Rank(query string, list []*entities.CatalogEntity, limit int) []entities.SearchResult {
	q := utils.NormalizeText(query)
	if q == "" || len(list) == 0 {
		return []entities.SearchResult{}
	}
	limit = s.limit(limit)

	features := make([]EntityFeatures, len(list))
	var direct []candidate
	var missed []int
	for i, e := range list {
		features[i] = s.features(e)
		if c, ok := s.scoreDirect(q, e, features[i]); ok {
			direct = append(direct, c)
		} else {
			missed = append(missed, i)
		}
	}

	candidates := direct
	if len(direct) < s.cfg.FuzzyTrigger {
		for _, i := range missed {
			if c, ok := s.scoreFuzzy(q, list[i], features[i]); ok {
				candidates = append(candidates, c)
			}
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.result.RelevanceScore != b.result.RelevanceScore {
			return a.result.RelevanceScore > b.result.RelevanceScore
		}
		return a.inStock && !b.inStock
	})

	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	results := make([]entities.SearchResult, len(candidates))
	for i, c := range candidates {
		results[i] = c.result
	}
	return results
}

func (s *SearchRankingService) scoreDirect(q string, e *entities.CatalogEntity, f EntityFeatures) (candidate, bool) {
	w := s.cfg.Weights
	breakdown := make(map[string]float64)
	var matchType entities.MatchType

	switch {
	case f.Name == q || contains(f.Aliases, q):
		breakdown["exact"] = w.Exact
	case strings.HasPrefix(f.Name, q):
		breakdown["prefix"] = w.Prefix
	case strings.Contains(f.Name, q) || anyContains(f.Aliases, q):
		breakdown["substring"] = w.Substring
	}
	if _, exact := breakdown["exact"]; !exact && containsWords(f.NameWords, utils.Words(q)) {
		breakdown["word"] = w.Word
	}
	if len(breakdown) > 0 {
		matchType = entities.MatchTypeName
	}

	if f.Brand != "" && strings.Contains(f.Brand, q) {
		breakdown["brand"] = w.Brand
		matchType = firstMatch(matchType, entities.MatchTypeBrand)
	}
	if f.Category != "" && strings.Contains(f.Category, q) {
		breakdown["category"] = w.Category
		matchType = firstMatch(matchType, entities.MatchTypeCategory)
	}
	if anyContains(f.Tags, q) {
		breakdown["tag"] = w.Tag
		matchType = firstMatch(matchType, entities.MatchTypeTag)
	}
	if f.Description != "" && strings.Contains(f.Description, q) {
		breakdown["description"] = w.Description
		matchType = firstMatch(matchType, entities.MatchTypeDescription)
	}

	if matchType == "" {
		return candidate{}, false
	}
	return s.finish(e, matchType, breakdown), true
}

func (s *SearchRankingService) scoreFuzzy(q string, e *entities.CatalogEntity, f EntityFeatures) (candidate, bool) {
	best := similarity(q, f.Name)
	for _, alias := range f.Aliases {
		best = max(best, similarity(q, alias))
	}
	for _, word := range f.NameWords {
		best = max(best, similarity(q, word))
	}
	if best < s.cfg.SimilarityFloor {
		return candidate{}, false
	}
	breakdown := map[string]float64{"fuzzy": best * s.cfg.Weights.Fuzzy}
	return s.finish(e, entities.MatchTypeName, breakdown), true
}

func (s *SearchRankingService) finish(e *entities.CatalogEntity, matchType entities.MatchType, breakdown map[string]float64) candidate {
	if e.InStock() {
		breakdown["in_stock"] = s.cfg.Weights.InStock
	}
	if e.HasPrice() {
		breakdown["price"] = s.cfg.Weights.Price
	}
	// Summed in a fixed order so equal inputs produce bit-identical scores.
	total := 0.0
	for _, signal := range scoreSignals {
		total += breakdown[signal]
	}
	return candidate{
		result: entities.SearchResult{
			Entity:         e,
			MatchType:      matchType,
			RelevanceScore: total,
			ScoreBreakdown: breakdown,
		},
		inStock: e.InStock(),
	}
}

func (s *SearchRankingService) features(e *entities.CatalogEntity) EntityFeatures {
	if s.derived == nil {
		return extractFeatures(e)
	}
	key := featuresKey(e)
	if f, ok := s.derived.Get(key); ok {
		return f
	}
	f := extractFeatures(e)
	s.derived.Set(key, f)
	return f
}

// featuresKey covers every field features are derived from, so entities
// sharing an id and timestamp (or having neither) never share an entry.
func featuresKey(e *entities.CatalogEntity) string {
	return cache.Key(featuresNamespace, "",
		e.ID,
		e.UpdatedAt.UTC().Format(time.RFC3339Nano),
		e.Name,
		fmt.Sprintf("%q", e.Aliases),
		e.Brand,
		e.Category,
		fmt.Sprintf("%q", e.Tags),
		e.Description,
	)
}

func extractFeatures(e *entities.CatalogEntity) EntityFeatures {
	return EntityFeatures{
		Name:        utils.NormalizeText(e.Name),
		Aliases:     utils.NormalizeAll(e.Aliases),
		NameWords:   utils.Words(e.Name),
		Brand:       utils.NormalizeText(e.Brand),
		Category:    utils.NormalizeText(e.Category),
		Tags:        utils.NormalizeAll(e.Tags),
		Description: utils.NormalizeText(e.Description),
	}
}

func firstMatch(current, next entities.MatchType) entities.MatchType {
	if current != "" {
		return current
	}
	return next
}

func contains(values []string, q string) bool {
	for _, v := range values {
		if v == q {
			return true
		}
	}
	return false
}

func anyContains(values []string, q string) bool {
	for _, v := range values {
		if strings.Contains(v, q) {
			return true
		}
	}
	return false
}

// containsWords reports whether every query word is a whole word of the name.
func containsWords(nameWords, queryWords []string) bool {
	if len(queryWords) == 0 {
		return false
	}
	for _, qw := range queryWords {
		if !contains(nameWords, qw) {
			return false
		}
	}
	return true
}
