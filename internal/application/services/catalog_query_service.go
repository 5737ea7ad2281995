package services

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/zatekoja/shopdiscovery/internal/domain/entities"
	"github.com/zatekoja/shopdiscovery/internal/domain/repositories"
	"github.com/zatekoja/shopdiscovery/internal/infrastructure/observability"
	"github.com/zatekoja/shopdiscovery/internal/resilience"
	"github.com/zatekoja/shopdiscovery/internal/telemetry"
	apperrors "github.com/zatekoja/shopdiscovery/pkg/errors"
	"github.com/zatekoja/shopdiscovery/pkg/utils"
)

// SnapshotSource serves the last catalog content known to be good.
type SnapshotSource interface {
	Snapshot(ctx context.Context, filter repositories.CatalogFilter) ([]*entities.CatalogEntity, error)
}

// SearchRequest is a single catalog search from a caller such as the assistant.
type SearchRequest struct {
	Query   string                     `json:"query"`
	Filters repositories.CatalogFilter `json:"filters"`
	Limit   int                        `json:"limit,omitempty"`
	UserID  string                     `json:"user_id,omitempty"`
}

// CatalogQueryService answers searches through the resilience layer: ranking
// runs behind the catalog breaker with retries, and a failure degrades to
// ranking over the last known good snapshot.
type CatalogQueryService struct {
	ranking  *SearchRankingService
	executor *resilience.Executor
	snapshot SnapshotSource
	retry    resilience.RetryOptions
	logger   zerolog.Logger
}

// NewCatalogQueryService creates the query service. snapshot may be nil, in
// which case failures propagate without a fallback.
func NewCatalogQueryService(
	ranking *SearchRankingService,
	executor *resilience.Executor,
	snapshot SnapshotSource,
	retry resilience.RetryOptions,
	logger zerolog.Logger,
) *CatalogQueryService {
	if retry.Name == "" {
		retry.Name = "catalog.search"
	}
	return &CatalogQueryService{
		ranking:  ranking,
		executor: executor,
		snapshot: snapshot,
		retry:    retry,
		logger:   logger.With().Str("component", "catalog_query").Logger(),
	}
}

type rankedPage struct {
	results   []entities.SearchResult
	fromCache bool
}

// Search runs one catalog search.
func (s *CatalogQueryService) Search(ctx context.Context, req SearchRequest) (*entities.SearchResponse, error) {
	if utils.NormalizeText(req.Query) == "" {
		return nil, apperrors.NewValidationError("search query is empty")
	}

	filters := SearchFilters{CatalogFilter: req.Filters, Limit: req.Limit, UserID: req.UserID}
	call := resilience.CallContext{
		Service:   telemetry.ServiceCatalog,
		Operation: "search",
		UserID:    req.UserID,
	}

	logger := s.logger
	retryOpts := s.retry
	retryOpts.Logger = &logger

	primary := resilience.WithRetry(func(ctx context.Context) (rankedPage, error) {
		results, hit, err := s.ranking.search(ctx, req.Query, filters)
		if err != nil {
			return rankedPage{}, err
		}
		return rankedPage{results: results, fromCache: hit}, nil
	}, retryOpts)

	if s.snapshot == nil {
		page, err := resilience.Execute(ctx, s.executor, call, primary)
		if err != nil {
			return nil, err
		}
		return s.response(req.Query, page, resilience.FallbackResult[rankedPage]{}), nil
	}

	fallback := func(ctx context.Context) (rankedPage, error) {
		list, err := s.snapshot.Snapshot(ctx, req.Filters)
		if err != nil {
			return rankedPage{}, err
		}
		return rankedPage{results: s.ranking.Rank(req.Query, list, req.Limit)}, nil
	}

	res, err := resilience.WithFallback(ctx, s.executor, call, primary, fallback)
	if err != nil {
		return nil, err
	}
	if res.FallbackUsed {
		observability.WithTrace(ctx, s.logger).Info().
			Str("primary_error", res.PrimaryError).
			Int("results", len(res.Value.results)).
			Msg("search served from catalog snapshot")
	}
	return s.response(req.Query, res.Value, res), nil
}

func (s *CatalogQueryService) response(query string, page rankedPage, res resilience.FallbackResult[rankedPage]) *entities.SearchResponse {
	results := page.results
	if results == nil {
		results = []entities.SearchResult{}
	}
	return &entities.SearchResponse{
		Query:        query,
		Results:      results,
		FromCache:    page.fromCache,
		FallbackUsed: res.FallbackUsed,
		PrimaryError: res.PrimaryError,
	}
}
