// Package interp samples tabulated functions on a uniform grid.
//
// Peak shapes without a closed form (the Gauss-convolved Landau) are
// computed once per parameter set on a grid and read back with 4-point
// cubic Hermite interpolation.
package interp

// Grid is a function tabulated at X0, X0+Step, X0+2*Step, ...
type Grid struct {
	X0     float64
	Step   float64
	Values []float64
}

// At returns the interpolated value at x. Outside the tabulated range the
// nearest edge value is returned.
func (g Grid) At(x float64) float64 {
	n := len(g.Values)
	if n == 0 {
		return 0
	}

	if n == 1 || g.Step <= 0 {
		return g.Values[0]
	}

	pos := (x - g.X0) / g.Step
	if pos <= 0 {
		return g.Values[0]
	}

	if pos >= float64(n-1) {
		return g.Values[n-1]
	}

	i := int(pos)
	frac := pos - float64(i)

	return Hermite4(frac, g.value(i-1), g.Values[i], g.value(i+1), g.value(i+2))
}

func (g Grid) value(i int) float64 {
	if i < 0 {
		return g.Values[0]
	}
	if i >= len(g.Values) {
		return g.Values[len(g.Values)-1]
	}
	return g.Values[i]
}

// Linear2 interpolates linearly between x0 and x1.
func Linear2(t, x0, x1 float64) float64 {
	return x0 + t*(x1-x0)
}

// Hermite4 computes cubic 4-point interpolation.
// It interpolates from x0 to x1 using neighbor points xm1 and x2.
func Hermite4(t, xm1, x0, x1, x2 float64) float64 {
	c0 := x0
	c1 := 0.5 * (x1 - xm1)
	c2 := xm1 - 2.5*x0 + 2*x1 - 0.5*x2
	c3 := 0.5*(x2-xm1) + 1.5*(x0-x1)

	return ((c3*t+c2)*t+c1)*t + c0
}
