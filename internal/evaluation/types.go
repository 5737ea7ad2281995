package evaluation

import "time"

// Difficulty labels how hard a golden query is for the ranker.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"   // exact name or alias
	DifficultyMedium Difficulty = "medium" // partial words, brand or category
	DifficultyHard   Difficulty = "hard"   // misspellings, description-only matches
)

// IsValid checks if the difficulty value is one of the defined constants.
func (d Difficulty) IsValid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

// GoldenQuery represents a labeled test query with the catalog entities it
// should retrieve, most relevant first.
type GoldenQuery struct {
	ID          string     `json:"id"`
	Query       string     `json:"query"`
	ExpectedIDs []string   `json:"expected_ids"`
	Category    string     `json:"category,omitempty"`
	InStockOnly bool       `json:"in_stock_only,omitempty"`
	Difficulty  Difficulty `json:"difficulty"`
}

// EvalResult holds the evaluation outcome for a single query.
type EvalResult struct {
	QueryID      string        `json:"query_id"`
	Query        string        `json:"query"`
	Difficulty   Difficulty    `json:"difficulty"`
	Recall       float64       `json:"recall"`
	MRR          float64       `json:"mrr"`
	NDCG         float64       `json:"ndcg"`
	ResultCount  int           `json:"result_count"`
	RetrievedIDs []string      `json:"retrieved_ids"`
	FallbackUsed bool          `json:"fallback_used"`
	Latency      time.Duration `json:"latency"`
	Error        string        `json:"error,omitempty"`
}

// EvalSummary holds aggregate metrics across all golden queries.
type EvalSummary struct {
	K               int                               `json:"k"`
	TotalQueries    int                               `json:"total_queries"`
	FailedQueries   int                               `json:"failed_queries"`
	AvgRecall       float64                           `json:"avg_recall"`
	AvgMRR          float64                           `json:"avg_mrr"`
	AvgNDCG         float64                           `json:"avg_ndcg"`
	AvgLatency      time.Duration                     `json:"avg_latency"`
	QueriesWithHits int                               `json:"queries_with_hits"`
	ByDifficulty    map[Difficulty]*DifficultySummary `json:"by_difficulty"`
	Results         []EvalResult                      `json:"results"`
}

// DifficultySummary holds metrics grouped by difficulty.
type DifficultySummary struct {
	Count     int     `json:"count"`
	AvgRecall float64 `json:"avg_recall"`
	AvgMRR    float64 `json:"avg_mrr"`
}
