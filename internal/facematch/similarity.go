package facematch

import (
	"errors"
	"math"
)

// ErrCorruptVector marks a vector that cannot take part in a comparison:
// wrong length, zero norm or non-finite components.
var ErrCorruptVector = errors.New("corrupt embedding vector")

// CosineSimilarity returns a·b / (|a||b|) clamped to [-1, 1].
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) == 0 || len(a) != len(b) {
		return 0, ErrCorruptVector
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}

	if normA == 0 || normB == 0 || !isFinite(dot) || !isFinite(normA) || !isFinite(normB) {
		return 0, ErrCorruptVector
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	return min(max(sim, -1), 1), nil
}

// ValidateVector checks that v has the expected dimension, a non-zero norm and
// only finite components.
func ValidateVector(v []float32, dim int) error {
	if len(v) == 0 || (dim > 0 && len(v) != dim) {
		return ErrCorruptVector
	}
	var norm float64
	for _, x := range v {
		f := float64(x)
		if !isFinite(f) {
			return ErrCorruptVector
		}
		norm += f * f
	}
	if norm == 0 {
		return ErrCorruptVector
	}
	return nil
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
