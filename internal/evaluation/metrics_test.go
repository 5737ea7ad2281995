package evaluation

import (
	"math"
	"testing"
)

const floatTolerance = 1e-9

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < floatTolerance
}

func TestRecallAtK(t *testing.T) {
	tests := []struct {
		name      string
		relevant  []string
		retrieved []string
		k         int
		want      float64
	}{
		{"all relevant in top k", []string{"p1", "p2", "p3"}, []string{"p1", "p2", "p3", "p4"}, 10, 1.0},
		{"half missing", []string{"p1", "p2", "p3", "p4"}, []string{"p1", "p2", "x", "y"}, 10, 0.5},
		{"empty results", []string{"p1", "p2"}, nil, 10, 0.0},
		// Undefined without relevant ids; reported as 0
		{"no relevant ids", nil, []string{"p1"}, 10, 0.0},
		{"k cuts off later hits", []string{"p1", "p2", "p3"}, []string{"p1", "p2", "x", "y", "p3"}, 3, 2.0 / 3.0},
		{"fewer results than k", []string{"p1", "p2"}, []string{"p1"}, 10, 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RecallAtK(tt.relevant, tt.retrieved, tt.k); !almostEqual(got, tt.want) {
				t.Errorf("RecallAtK() = %f, want %f", got, tt.want)
			}
		})
	}
}

func TestMRRAtK(t *testing.T) {
	tests := []struct {
		name      string
		relevant  []string
		retrieved []string
		k         int
		want      float64
	}{
		{"first result relevant", []string{"p1", "p2"}, []string{"p1", "x"}, 10, 1.0},
		{"third result relevant", []string{"p1"}, []string{"x", "y", "p1"}, 10, 1.0 / 3.0},
		{"beyond k", []string{"p1"}, []string{"x", "y", "p1"}, 2, 0.0},
		{"empty relevant", nil, []string{"p1"}, 10, 0.0},
		{"empty retrieved", []string{"p1"}, nil, 10, 0.0},
		{"earliest of several", []string{"p1", "p2", "p3"}, []string{"x", "p2", "p1"}, 10, 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MRRAtK(tt.relevant, tt.retrieved, tt.k); !almostEqual(got, tt.want) {
				t.Errorf("MRRAtK() = %f, want %f", got, tt.want)
			}
		})
	}
}

func TestNDCGAtK(t *testing.T) {
	swapped := (1 + 2/math.Log2(3)) / (2 + 1/math.Log2(3))

	tests := []struct {
		name      string
		relevant  []string
		retrieved []string
		k         int
		want      float64
	}{
		{"ideal order", []string{"p1", "p2"}, []string{"p1", "p2", "x"}, 10, 1.0},
		{"swapped order", []string{"p1", "p2"}, []string{"p2", "p1"}, 10, swapped},
		{"nothing relevant", []string{"p1"}, []string{"x", "y"}, 10, 0.0},
		{"relevant beyond k", []string{"p1"}, []string{"x", "p1"}, 1, 0.0},
		{"empty relevant", nil, []string{"p1"}, 10, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NDCGAtK(tt.relevant, tt.retrieved, tt.k); !almostEqual(got, tt.want) {
				t.Errorf("NDCGAtK() = %f, want %f", got, tt.want)
			}
		})
	}
}
