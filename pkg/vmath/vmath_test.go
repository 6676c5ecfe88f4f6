package vmath

import (
	"math"
	"testing"
)

func TestCosineDistance(t *testing.T) {
	a := []float32{1, 0, 0}
	b := []float32{0, 1, 0}

	if d := CosineDistance(a, a); math.Abs(d) > 1e-9 {
		t.Errorf("identical vectors: expected distance 0, got %f", d)
	}
	if d := CosineDistance(a, b); math.Abs(d-1) > 1e-9 {
		t.Errorf("orthogonal vectors: expected distance 1, got %f", d)
	}
}

func TestCosineDistanceDegenerate(t *testing.T) {
	if d := CosineDistance(nil, []float32{1}); d != 1 {
		t.Errorf("mismatched lengths: expected 1, got %f", d)
	}
	if d := CosineDistance([]float32{0, 0}, []float32{1, 1}); d != 1 {
		t.Errorf("zero vector: expected 1, got %f", d)
	}
}

func TestNormalize(t *testing.T) {
	v := Normalize([]float32{3, 4})
	if math.Abs(Norm(v)-1) > 1e-6 {
		t.Errorf("expected unit norm, got %f", Norm(v))
	}

	zero := Normalize([]float32{0, 0})
	if zero[0] != 0 || zero[1] != 0 {
		t.Errorf("zero vector should be unchanged, got %v", zero)
	}
}
