package testutil

import (
	"math"
	"testing"
)

func TestMaxAbsDiff(t *testing.T) {
	a := []float64{1.0, 2.0, 3.0}
	b := []float64{1.0, 2.1, 3.0}

	d, err := MaxAbsDiff(a, b)
	if err != nil {
		t.Fatalf("MaxAbsDiff error: %v", err)
	}

	if math.Abs(d-0.1) > 1e-15 {
		t.Fatalf("MaxAbsDiff = %v, want 0.1", d)
	}
}

func TestMaxAbsDiffLengthMismatch(t *testing.T) {
	_, err := MaxAbsDiff([]float64{1}, []float64{1, 2})
	if err == nil {
		t.Fatal("expected error for length mismatch")
	}
}

func TestRequireHelpersAcceptMatchingData(t *testing.T) {
	RequireNearlyEqual(t, "x", 1.0000001, 1, 1e-6)
	RequireRelativelyEqual(t, "y", 1000.001, 1000, 1e-5)
	RequireSliceNearlyEqual(t, []float64{1, 2}, []float64{1, 2}, 0)
	RequireFinite(t, []float64{0, -1, 1e300})
	RequireStrictlyIncreasing(t, []float64{-1, 0, 2})
}

func TestSpectrumDeterministic(t *testing.T) {
	spec := SpectrumSpec{
		Seed:       3,
		Lines:      LinesAt([]float64{662}, 0.5, 0.02, 500),
		Background: 200,
		Min:        0,
		Max:        4096,
	}

	a := Spectrum(spec)
	b := Spectrum(spec)

	if len(a) != 700 {
		t.Fatalf("len = %d, want 700", len(a))
	}

	d, err := MaxAbsDiff(a, b)
	if err != nil || d != 0 {
		t.Fatalf("spectrum not deterministic: diff %v err %v", d, err)
	}

	for _, v := range a {
		if v < 0 || v > 4096 {
			t.Fatalf("sample %v outside range", v)
		}
	}
}
