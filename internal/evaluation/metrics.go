package evaluation

import "math"

// RecallAtK computes Recall@K: the fraction of relevant items found in the top-K retrieved results.
// Returns 0.0 if relevant is empty.
func RecallAtK(relevant, retrieved []string, k int) float64 {
	if len(relevant) == 0 {
		return 0.0
	}

	relevantSet := toSet(relevant)
	found := 0
	for _, r := range topK(retrieved, k) {
		if _, ok := relevantSet[r]; ok {
			found++
		}
	}

	return float64(found) / float64(len(relevant))
}

// MRRAtK computes Mean Reciprocal Rank at K: the reciprocal of the rank of the first relevant item
// in the top-K retrieved results. Returns 0.0 if no relevant item is found in top-K.
func MRRAtK(relevant, retrieved []string, k int) float64 {
	if len(relevant) == 0 || len(retrieved) == 0 {
		return 0.0
	}

	relevantSet := toSet(relevant)
	for i, r := range topK(retrieved, k) {
		if _, ok := relevantSet[r]; ok {
			return 1.0 / float64(i+1)
		}
	}

	return 0.0
}

// NDCGAtK computes normalized discounted cumulative gain at K with graded
// relevance: the first expected id gains len(relevant), the last gains 1.
func NDCGAtK(relevant, retrieved []string, k int) float64 {
	if len(relevant) == 0 || len(retrieved) == 0 {
		return 0.0
	}

	gains := make(map[string]float64, len(relevant))
	for i, id := range relevant {
		gains[id] = float64(len(relevant) - i)
	}

	dcg := 0.0
	for i, r := range topK(retrieved, k) {
		dcg += gains[r] / math.Log2(float64(i+2))
	}

	ideal := 0.0
	for i, id := range topK(relevant, k) {
		ideal += gains[id] / math.Log2(float64(i+2))
	}
	if ideal == 0 {
		return 0.0
	}
	return dcg / ideal
}

func topK(values []string, k int) []string {
	if k > 0 && k < len(values) {
		return values[:k]
	}
	return values
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}
