package similarity

import (
	"errors"
	"math"
	"testing"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"scaled", []float32{1, 2, 3}, []float32{2, 4, 6}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite clamps to zero", []float32{1, 1}, []float32{-1, -1}, 0},
		{"zero norm", []float32{0, 0, 0}, []float32{1, 2, 3}, 0},
		{"45 degrees", []float32{1, 0}, []float32{1, 1}, math.Sqrt2 / 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CosineSimilarity(tt.a, tt.b)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if math.Abs(got-tt.want) > 1e-6 {
				t.Errorf("CosineSimilarity = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCosineSimilarityErrors(t *testing.T) {
	nan := float32(math.NaN())
	inf := float32(math.Inf(1))
	tests := []struct {
		name string
		a, b []float32
		want error
	}{
		{"length 3 vs 5", []float32{1, 2, 3}, []float32{1, 2, 3, 4, 5}, ErrDimensionMismatch},
		{"empty", []float32{}, []float32{}, ErrEmptyVector},
		{"nil", nil, nil, ErrEmptyVector},
		{"NaN", []float32{1, nan}, []float32{1, 1}, ErrNonFinite},
		{"Inf in b", []float32{1, 1}, []float32{inf, 1}, ErrNonFinite},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CosineSimilarity(tt.a, tt.b)
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestCosineSimilarityProperties(t *testing.T) {
	vecs := [][]float32{
		{0.12, -0.5, 0.33, 0.9},
		{1e-3, 2e-3, -4e-3, 8e-3},
		{100, 200, 300, 400},
		{-1, 0.25, 0.5, -0.75},
	}
	for i, a := range vecs {
		self, err := CosineSimilarity(a, a)
		if err != nil {
			t.Fatal(err)
		}
		if math.Abs(self-1) > 1e-9 {
			t.Errorf("self similarity of %d = %v", i, self)
		}
		for j, b := range vecs {
			ab, _ := CosineSimilarity(a, b)
			ba, _ := CosineSimilarity(b, a)
			if ab != ba {
				t.Errorf("not symmetric for %d,%d: %v vs %v", i, j, ab, ba)
			}
			if ab < 0 || ab > 1 {
				t.Errorf("out of range for %d,%d: %v", i, j, ab)
			}
		}
	}
}
