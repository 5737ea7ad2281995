package evaluation

import "fmt"

// GuardrailConfig sets the minimum ranking quality a run must reach. Zero
// values disable a check.
type GuardrailConfig struct {
	MinRecall        float64
	MinMRR           float64
	MaxFailedQueries int
}

type Guardrails struct {
	config GuardrailConfig
}

func NewGuardrails(config GuardrailConfig) *Guardrails {
	if config.MaxFailedQueries < 0 {
		config.MaxFailedQueries = 0
	}
	return &Guardrails{config: config}
}

// Check returns one message per violated guardrail.
func (g *Guardrails) Check(s *EvalSummary) []string {
	var violations []string
	if g.config.MinRecall > 0 && s.AvgRecall < g.config.MinRecall {
		violations = append(violations, fmt.Sprintf("recall@%d %.3f below %.3f", s.K, s.AvgRecall, g.config.MinRecall))
	}
	if g.config.MinMRR > 0 && s.AvgMRR < g.config.MinMRR {
		violations = append(violations, fmt.Sprintf("mrr@%d %.3f below %.3f", s.K, s.AvgMRR, g.config.MinMRR))
	}
	if s.FailedQueries > g.config.MaxFailedQueries {
		violations = append(violations, fmt.Sprintf("%d queries failed, at most %d allowed", s.FailedQueries, g.config.MaxFailedQueries))
	}
	return violations
}
