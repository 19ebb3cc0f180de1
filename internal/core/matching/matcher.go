package matching

import (
	"fmt"
	"math"
	"sort"
)

// DefaultModel is the embedding model used when none is configured.
const DefaultModel = "Facenet"

// modelThresholds maps embedding model names to their cosine-distance
// verification thresholds. Two embeddings closer than the threshold are
// considered the same identity.
var modelThresholds = map[string]float64{
	"VGG-Face":     0.68,
	"Facenet":      0.40,
	"Facenet512":   0.30,
	"OpenFace":     0.10,
	"DeepFace":     0.23,
	"DeepID":       0.015,
	"ArcFace":      0.68,
	"Dlib":         0.07,
	"SFace":        0.593,
	"GhostFaceNet": 0.65,
}

// ThresholdFor returns the cosine-distance threshold for a model.
func ThresholdFor(model string) (float64, bool) {
	t, ok := modelThresholds[model]
	return t, ok
}

// Models returns the names of all supported embedding models, sorted.
func Models() []string {
	names := make([]string, 0, len(modelThresholds))
	for name := range modelThresholds {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Candidate is one stored embedding to compare a query against.
type Candidate struct {
	ID        uint
	Embedding []float64
}

// Result is the outcome of a match run. When Matched is false, Distance
// still carries the smallest observed distance (math.Inf(1) if the
// candidate set was empty) so callers can report the nearest miss.
type Result struct {
	Matched  bool
	UserID   uint
	Distance float64
}

// CosineDistance computes 1 - cosine similarity between two vectors.
// It returns an error for mismatched dimensions or zero-norm vectors,
// for which the distance is undefined.
func CosineDistance(a, b []float64) (float64, error) {
	if len(a) != len(b) || len(a) == 0 {
		return 0, fmt.Errorf("dimension mismatch: %d vs %d", len(a), len(b))
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0, fmt.Errorf("zero-norm vector")
	}

	similarity := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	// Clamp to [-1, 1] against floating point drift
	if similarity > 1 {
		similarity = 1
	}
	if similarity < -1 {
		similarity = -1
	}

	return 1 - similarity, nil
}

// Match scans the candidates for the closest embedding to the query that is
// strictly below the threshold. Candidates are scanned in ascending ID order
// so ties resolve deterministically to the lowest ID. Candidates with empty
// embeddings or undefined distances are skipped.
func Match(query []float64, candidates []Candidate, threshold float64) Result {
	ordered := make([]Candidate, len(candidates))
	copy(ordered, candidates)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

	result := Result{Distance: math.Inf(1)}

	for _, c := range ordered {
		if len(c.Embedding) == 0 {
			continue
		}
		dist, err := CosineDistance(query, c.Embedding)
		if err != nil {
			continue
		}
		if dist < result.Distance {
			result.Distance = dist
			if dist < threshold {
				result.Matched = true
				result.UserID = c.ID
			}
		}
	}

	return result
}
