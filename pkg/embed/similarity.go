package embed

import (
	"fmt"

	"github.com/viterin/vek/vek32"
)

// Cosine returns the cosine similarity of a and b in [-1, 1]. A zero-magnitude
// input yields 0. Vectors of different length are an error.
func Cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d != %d", ErrDimensionMismatch, len(a), len(b))
	}
	if len(a) == 0 {
		return 0, nil
	}

	na := vek32.Norm(a)
	nb := vek32.Norm(b)
	if na == 0 || nb == 0 {
		return 0, nil
	}
	return float64(vek32.Dot(a, b)) / (float64(na) * float64(nb)), nil
}

// Similarity is Cosine rescaled from [-1, 1] into [0, 1] via (cos+1)/2.
// Zero-magnitude vectors score 0, not 0.5.
func Similarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d != %d", ErrDimensionMismatch, len(a), len(b))
	}
	if len(a) == 0 || vek32.Norm(a) == 0 || vek32.Norm(b) == 0 {
		return 0, nil
	}
	cos, err := Cosine(a, b)
	if err != nil {
		return 0, err
	}
	score := (cos + 1) / 2
	if score > 1 {
		score = 1
	}
	if score < 0 {
		score = 0
	}
	return score, nil
}
