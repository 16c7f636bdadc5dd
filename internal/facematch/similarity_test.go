package facematch

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"
)

func randomUnitVector(r *rand.Rand, dim int) []float32 {
	v := make([]float32, dim)
	var norm float64
	for i := range v {
		v[i] = float32(r.NormFloat64())
		norm += float64(v[i]) * float64(v[i])
	}
	norm = math.Sqrt(norm)
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
	return v
}

func TestCosineSimilarity_SelfIsOne(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	for range 10 {
		v := randomUnitVector(r, 512)
		got, err := CosineSimilarity(v, v)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if math.Abs(got-1) > 1e-6 {
			t.Errorf("self similarity = %f, want 1", got)
		}
	}
}

func TestCosineSimilarity_Symmetric(t *testing.T) {
	r := rand.New(rand.NewPCG(3, 4))
	a, b := randomUnitVector(r, 512), randomUnitVector(r, 512)
	ab, _ := CosineSimilarity(a, b)
	ba, _ := CosineSimilarity(b, a)
	if ab != ba {
		t.Errorf("sim(a,b) = %f, sim(b,a) = %f", ab, ba)
	}
	if ab < -1 || ab > 1 {
		t.Errorf("similarity out of range: %f", ab)
	}
}

func TestCosineSimilarity_ScaleInvariant(t *testing.T) {
	a := []float32{1, 2, 3}
	b := []float32{2, 4, 6}
	got, err := CosineSimilarity(a, b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(got-1) > 1e-9 {
		t.Errorf("CosineSimilarity() = %f, want 1", got)
	}
}

func TestCosineSimilarity_Corrupt(t *testing.T) {
	nan := float32(math.NaN())
	tests := []struct {
		name string
		a, b []float32
	}{
		{"length mismatch", []float32{1, 0}, []float32{1, 0, 0}},
		{"empty", nil, nil},
		{"zero norm", []float32{0, 0}, []float32{1, 0}},
		{"nan component", []float32{nan, 1}, []float32{1, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CosineSimilarity(tt.a, tt.b)
			if !errors.Is(err, ErrCorruptVector) {
				t.Errorf("expected ErrCorruptVector, got %v", err)
			}
		})
	}
}

func TestValidateVector(t *testing.T) {
	if err := ValidateVector([]float32{0.6, 0.8}, 2); err != nil {
		t.Errorf("valid vector rejected: %v", err)
	}
	if err := ValidateVector([]float32{0.6, 0.8}, 3); !errors.Is(err, ErrCorruptVector) {
		t.Errorf("wrong dimension accepted")
	}
	if err := ValidateVector([]float32{0, 0}, 0); !errors.Is(err, ErrCorruptVector) {
		t.Errorf("zero vector accepted")
	}
	if err := ValidateVector([]float32{float32(math.Inf(1)), 0}, 0); !errors.Is(err, ErrCorruptVector) {
		t.Errorf("infinite component accepted")
	}
}
