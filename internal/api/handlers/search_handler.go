package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/zatekoja/shopdiscovery/internal/application/services"
	"github.com/zatekoja/shopdiscovery/internal/domain/entities"
	"github.com/zatekoja/shopdiscovery/internal/domain/repositories"
	"github.com/zatekoja/shopdiscovery/internal/infrastructure/observability"
	apperrors "github.com/zatekoja/shopdiscovery/pkg/errors"
)

// Searcher answers catalog searches.
type Searcher interface {
	Search(ctx context.Context, req services.SearchRequest) (*entities.SearchResponse, error)
}

// SearchHandler handles catalog search HTTP requests
type SearchHandler struct {
	searcher Searcher
}

// NewSearchHandler creates a new search handler
func NewSearchHandler(searcher Searcher) *SearchHandler {
	return &SearchHandler{searcher: searcher}
}

// Search handles GET /api/search
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	req, err := parseSearchRequest(r)
	if err != nil {
		respondWithAppError(w, err)
		return
	}

	resp, err := h.searcher.Search(r.Context(), req)
	if err != nil {
		observability.LoggerFromContext(r.Context()).Warn().Err(err).Str("query", req.Query).Msg("search failed")
		respondWithAppError(w, err)
		return
	}

	if resp.FallbackUsed {
		w.Header().Set("X-Search-Degraded", "true")
	}
	respondWithJSON(w, http.StatusOK, resp)
}

func parseSearchRequest(r *http.Request) (services.SearchRequest, error) {
	q := r.URL.Query()
	req := services.SearchRequest{
		Query:  q.Get("q"),
		UserID: q.Get("user_id"),
		Filters: repositories.CatalogFilter{
			Category: q.Get("category"),
			Brand:    q.Get("brand"),
		},
	}

	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			return req, errInvalidParam("limit")
		}
		req.Limit = limit
	}
	if v := q.Get("in_stock"); v != "" {
		inStock, err := strconv.ParseBool(v)
		if err != nil {
			return req, errInvalidParam("in_stock")
		}
		req.Filters.InStockOnly = inStock
	}
	if v := q.Get("min_price"); v != "" {
		p, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return req, errInvalidParam("min_price")
		}
		req.Filters.MinPrice = &p
	}
	if v := q.Get("max_price"); v != "" {
		p, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return req, errInvalidParam("max_price")
		}
		req.Filters.MaxPrice = &p
	}
	return req, nil
}

func errInvalidParam(name string) error {
	return apperrors.NewValidationError("invalid " + name + " parameter")
}
