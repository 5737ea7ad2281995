package evaluation

import (
	"context"
	"time"

	"github.com/zatekoja/shopdiscovery/internal/application/services"
	"github.com/zatekoja/shopdiscovery/internal/domain/entities"
	"github.com/zatekoja/shopdiscovery/internal/domain/repositories"
)

// DefaultK is the rank cutoff used when none is given.
const DefaultK = 10

type SearchResultProvider interface {
	Search(ctx context.Context, req services.SearchRequest) (*entities.SearchResponse, error)
}

// Runner runs evaluation across a set of golden queries.
type Runner struct {
	searchService SearchResultProvider
	k             int
}

func NewRunner(svc SearchResultProvider, k int) *Runner {
	if k <= 0 {
		k = DefaultK
	}
	return &Runner{searchService: svc, k: k}
}

// Run searches every golden query once. A failed search scores zero and is
// counted in FailedQueries; only a cancelled ctx aborts the run.
func (r *Runner) Run(ctx context.Context, queries []GoldenQuery) (*EvalSummary, error) {
	summary := &EvalSummary{
		K:            r.k,
		TotalQueries: len(queries),
		ByDifficulty: make(map[Difficulty]*DifficultySummary),
		Results:      make([]EvalResult, 0, len(queries)),
	}

	for _, gq := range queries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		start := time.Now()
		resp, err := r.searchService.Search(ctx, services.SearchRequest{
			Query: gq.Query,
			Limit: r.k,
			Filters: repositories.CatalogFilter{
				Category:    gq.Category,
				InStockOnly: gq.InStockOnly,
			},
		})
		duration := time.Since(start)

		result := EvalResult{
			QueryID:    gq.ID,
			Query:      gq.Query,
			Difficulty: gq.Difficulty,
			Latency:    duration,
		}
		if err != nil {
			result.Error = err.Error()
			summary.FailedQueries++
		} else {
			ids := make([]string, len(resp.Results))
			for i, res := range resp.Results {
				ids[i] = res.Entity.ID
			}
			result.RetrievedIDs = ids
			result.ResultCount = len(ids)
			result.FallbackUsed = resp.FallbackUsed
			result.Recall = RecallAtK(gq.ExpectedIDs, ids, r.k)
			result.MRR = MRRAtK(gq.ExpectedIDs, ids, r.k)
			result.NDCG = NDCGAtK(gq.ExpectedIDs, ids, r.k)
		}

		r.updateSummary(summary, result)
	}

	r.finalizeSummary(summary)
	return summary, nil
}

func (r *Runner) updateSummary(s *EvalSummary, res EvalResult) {
	s.Results = append(s.Results, res)
	s.AvgRecall += res.Recall
	s.AvgMRR += res.MRR
	s.AvgNDCG += res.NDCG
	s.AvgLatency += res.Latency
	if res.ResultCount > 0 {
		s.QueriesWithHits++
	}

	if _, ok := s.ByDifficulty[res.Difficulty]; !ok {
		s.ByDifficulty[res.Difficulty] = &DifficultySummary{}
	}
	ds := s.ByDifficulty[res.Difficulty]
	ds.Count++
	ds.AvgRecall += res.Recall
	ds.AvgMRR += res.MRR
}

func (r *Runner) finalizeSummary(s *EvalSummary) {
	if s.TotalQueries > 0 {
		n := float64(s.TotalQueries)
		s.AvgRecall /= n
		s.AvgMRR /= n
		s.AvgNDCG /= n
		s.AvgLatency /= time.Duration(s.TotalQueries)
	}

	for _, ds := range s.ByDifficulty {
		if ds.Count > 0 {
			n := float64(ds.Count)
			ds.AvgRecall /= n
			ds.AvgMRR /= n
		}
	}
}
