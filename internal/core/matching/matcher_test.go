package matching

import (
	"math"
	"testing"
)

func TestCosineDistance(t *testing.T) {
	tests := []struct {
		name     string
		a, b     []float64
		expected float64
		wantErr  bool
	}{
		{"identical", []float64{1, 2, 3}, []float64{1, 2, 3}, 0, false},
		{"opposite", []float64{1, 0}, []float64{-1, 0}, 2, false},
		{"orthogonal", []float64{1, 0}, []float64{0, 1}, 1, false},
		{"scaled copy", []float64{1, 2, 3}, []float64{2, 4, 6}, 0, false},
		{"dimension mismatch", []float64{1, 2}, []float64{1, 2, 3}, 0, true},
		{"empty vectors", []float64{}, []float64{}, 0, true},
		{"zero norm", []float64{0, 0, 0}, []float64{1, 2, 3}, 0, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			dist, err := CosineDistance(tc.a, tc.b)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("CosineDistance(%v, %v) expected error, got %f", tc.a, tc.b, dist)
				}
				return
			}
			if err != nil {
				t.Fatalf("CosineDistance(%v, %v) unexpected error: %v", tc.a, tc.b, err)
			}
			if math.Abs(dist-tc.expected) > 1e-9 {
				t.Errorf("CosineDistance(%v, %v) = %f; want %f", tc.a, tc.b, dist, tc.expected)
			}
		})
	}
}

func TestCosineDistanceSymmetric(t *testing.T) {
	a := []float64{0.3, -1.2, 4.5, 0.01}
	b := []float64{-2.1, 0.9, 1.5, 3.3}

	ab, err := CosineDistance(a, b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ba, err := CosineDistance(b, a)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(ab-ba) > 1e-12 {
		t.Errorf("distance not symmetric: %f vs %f", ab, ba)
	}
}

func TestMatchEmptyCandidates(t *testing.T) {
	result := Match([]float64{1, 2, 3}, nil, 0.4)
	if result.Matched {
		t.Error("expected no match on empty candidate set")
	}
	if !math.IsInf(result.Distance, 1) {
		t.Errorf("expected +Inf sentinel distance, got %f", result.Distance)
	}
}

func TestMatchSelection(t *testing.T) {
	query := []float64{1, 0, 0}
	candidates := []Candidate{
		{ID: 1, Embedding: []float64{0, 1, 0}},       // distance 1.0
		{ID: 2, Embedding: []float64{1, 0.1, 0}},     // close
		{ID: 3, Embedding: []float64{1, 0.001, 0}},   // closest
		{ID: 4, Embedding: nil},                      // skipped
		{ID: 5, Embedding: []float64{0, 0, 0}},       // zero norm, skipped
		{ID: 6, Embedding: []float64{1, 0, 0, 0, 0}}, // dimension mismatch, skipped
	}

	result := Match(query, candidates, 0.4)
	if !result.Matched {
		t.Fatalf("expected a match, got none (best distance %f)", result.Distance)
	}
	if result.UserID != 3 {
		t.Errorf("expected candidate 3 to win, got %d", result.UserID)
	}
	if result.Distance >= 0.4 {
		t.Errorf("winning distance %f not below threshold", result.Distance)
	}
}

func TestMatchNeverAtOrAboveThreshold(t *testing.T) {
	query := []float64{1, 0}
	candidates := []Candidate{
		{ID: 1, Embedding: []float64{0, 1}}, // distance 1.0
		{ID: 2, Embedding: []float64{1, 1}}, // distance ~0.293
	}

	// Threshold below every candidate distance: report nearest miss only.
	result := Match(query, candidates, 0.2)
	if result.Matched {
		t.Fatalf("expected no match at threshold 0.2, got candidate %d at %f", result.UserID, result.Distance)
	}
	if math.Abs(result.Distance-(1-1/math.Sqrt2)) > 1e-9 {
		t.Errorf("expected nearest-miss distance %f, got %f", 1-1/math.Sqrt2, result.Distance)
	}
}

func TestMatchTieBreaksOnLowestID(t *testing.T) {
	query := []float64{1, 0}
	same := []float64{1, 0.2}
	// Identical embeddings under different IDs, deliberately out of order.
	candidates := []Candidate{
		{ID: 9, Embedding: same},
		{ID: 2, Embedding: same},
		{ID: 5, Embedding: same},
	}

	result := Match(query, candidates, 0.4)
	if !result.Matched {
		t.Fatal("expected a match")
	}
	if result.UserID != 2 {
		t.Errorf("expected tie to resolve to lowest ID 2, got %d", result.UserID)
	}
}

func TestThresholdFor(t *testing.T) {
	if _, ok := ThresholdFor("Facenet"); !ok {
		t.Error("expected Facenet threshold to exist")
	}
	if _, ok := ThresholdFor("NoSuchModel"); ok {
		t.Error("expected unknown model to have no threshold")
	}
	if len(Models()) != len(modelThresholds) {
		t.Errorf("Models() returned %d entries, want %d", len(Models()), len(modelThresholds))
	}
}
