package entities

// MatchType names the field a query matched on
type MatchType string

const (
	MatchTypeName        MatchType = "name"
	MatchTypeBrand       MatchType = "brand"
	MatchTypeCategory    MatchType = "category"
	MatchTypeTag         MatchType = "tag"
	MatchTypeDescription MatchType = "description"
)

// SearchResult is one ranked catalog hit. Results are built per query and never persisted.
type SearchResult struct {
	Entity         *CatalogEntity     `json:"entity"`
	MatchType      MatchType          `json:"match_type"`
	RelevanceScore float64            `json:"relevance_score"`
	ScoreBreakdown map[string]float64 `json:"score_breakdown,omitempty"`
}

// SearchResponse is what the query service hands back to callers
type SearchResponse struct {
	Query        string         `json:"query"`
	Results      []SearchResult `json:"results"`
	FromCache    bool           `json:"from_cache"`
	FallbackUsed bool           `json:"fallback_used"`
	PrimaryError string         `json:"primary_error,omitempty"`
}
