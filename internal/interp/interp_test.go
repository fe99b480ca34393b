package interp

import (
	"math"
	"testing"
)

func TestGridReproducesNodes(t *testing.T) {
	t.Parallel()

	g := Grid{X0: 1, Step: 0.5, Values: []float64{0, 1, 4, 9, 16}}
	for i, want := range g.Values {
		x := g.X0 + float64(i)*g.Step
		if got := g.At(x); math.Abs(got-want) > 1e-12 {
			t.Fatalf("At(%v) = %v, want %v", x, got, want)
		}
	}
}

func TestGridCubicExactForQuadratic(t *testing.T) {
	t.Parallel()

	values := make([]float64, 20)
	for i := range values {
		x := float64(i) * 0.25
		values[i] = 3*x*x - 2*x + 1
	}

	g := Grid{Step: 0.25, Values: values}
	for _, x := range []float64{0.6, 1.1, 2.9, 3.3} {
		want := 3*x*x - 2*x + 1
		if got := g.At(x); math.Abs(got-want) > 1e-9 {
			t.Fatalf("At(%v) = %v, want %v", x, got, want)
		}
	}
}

func TestGridClampsOutside(t *testing.T) {
	t.Parallel()

	g := Grid{X0: 0, Step: 1, Values: []float64{2, 3, 5}}
	if got := g.At(-4); got != 2 {
		t.Fatalf("At(-4) = %v, want 2", got)
	}
	if got := g.At(40); got != 5 {
		t.Fatalf("At(40) = %v, want 5", got)
	}
	if got := (Grid{}).At(1); got != 0 {
		t.Fatalf("empty grid = %v, want 0", got)
	}
}

func TestLinear2(t *testing.T) {
	t.Parallel()

	if got := Linear2(0.25, 2, 6); got != 3 {
		t.Fatalf("Linear2 = %v, want 3", got)
	}
}
