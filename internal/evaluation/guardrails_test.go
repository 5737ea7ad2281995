package evaluation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGuardrails_Pass(t *testing.T) {
	g := NewGuardrails(GuardrailConfig{MinRecall: 0.8, MinMRR: 0.5})

	violations := g.Check(&EvalSummary{K: 10, AvgRecall: 0.9, AvgMRR: 0.75})
	assert.Empty(t, violations)
}

func TestGuardrails_Violations(t *testing.T) {
	g := NewGuardrails(GuardrailConfig{MinRecall: 0.8, MinMRR: 0.5, MaxFailedQueries: 1})

	violations := g.Check(&EvalSummary{K: 5, AvgRecall: 0.6, AvgMRR: 0.4, FailedQueries: 2})
	assert.Equal(t, []string{
		"recall@5 0.600 below 0.800",
		"mrr@5 0.400 below 0.500",
		"2 queries failed, at most 1 allowed",
	}, violations)
}

func TestGuardrails_ZeroConfigOnlyRejectsFailures(t *testing.T) {
	g := NewGuardrails(GuardrailConfig{})

	assert.Empty(t, g.Check(&EvalSummary{}))
	assert.Len(t, g.Check(&EvalSummary{FailedQueries: 1}), 1)
}
