package fit

import (
	"errors"
	"fmt"
	"math"

	vecmath "github.com/cwbudde/algo-vecmath"
)

var (
	// ErrNotConverged is returned when a strategy ends without converging.
	ErrNotConverged = errors.New("fit: not converged")
	// ErrNonFiniteCovariance is returned when the error matrix is singular
	// or holds non-finite entries.
	ErrNonFiniteCovariance = errors.New("fit: non-finite covariance")
	// ErrUnderdetermined is returned when there are fewer data points than
	// free parameters.
	ErrUnderdetermined = errors.New("fit: fewer points than free parameters")
	// ErrInvalidProblem is returned for malformed problems.
	ErrInvalidProblem = errors.New("fit: invalid problem")
)

// Model evaluates the fitted function at x.
type Model func(x float64, params []float64) float64

// Param is one model parameter. A parameter with Max > Min is confined to
// [Min, Max]; otherwise it is unbounded.
type Param struct {
	Name  string
	Value float64
	Min   float64
	Max   float64
	Fixed bool
}

// Bounded reports whether the parameter has limits.
func (p Param) Bounded() bool {
	return p.Max > p.Min
}

// Problem is a weighted least-squares problem. Sigma may be nil for unit
// uncertainties.
type Problem struct {
	Model  Model
	X      []float64
	Y      []float64
	Sigma  []float64
	Params []Param
}

// Validate checks the problem shape.
func (p Problem) Validate() error {
	if p.Model == nil {
		return fmt.Errorf("%w: nil model", ErrInvalidProblem)
	}

	if len(p.X) != len(p.Y) {
		return fmt.Errorf("%w: %d x values for %d y values", ErrInvalidProblem, len(p.X), len(p.Y))
	}

	if p.Sigma != nil && len(p.Sigma) != len(p.X) {
		return fmt.Errorf("%w: %d uncertainties for %d points", ErrInvalidProblem, len(p.Sigma), len(p.X))
	}

	for i, s := range p.Sigma {
		if !(s > 0) || math.IsInf(s, 0) {
			return fmt.Errorf("%w: uncertainty %d is %v", ErrInvalidProblem, i, s)
		}
	}

	if free := p.Free(); free == 0 {
		return fmt.Errorf("%w: no free parameters", ErrInvalidProblem)
	} else if len(p.X) < free {
		return fmt.Errorf("%w: %d points, %d parameters", ErrUnderdetermined, len(p.X), free)
	}

	return nil
}

// Free returns the number of free parameters.
func (p Problem) Free() int {
	n := 0
	for _, par := range p.Params {
		if !par.Fixed {
			n++
		}
	}
	return n
}

// NDF returns the degrees of freedom of the problem.
func (p Problem) NDF() int {
	return len(p.X) - p.Free()
}

// Values returns the starting parameter values.
func (p Problem) Values() []float64 {
	out := make([]float64, len(p.Params))
	for i, par := range p.Params {
		out[i] = par.Value
	}
	return out
}

// Residuals stores (y - f(x)) / sigma for every point into dst.
func (p Problem) Residuals(dst, params []float64) []float64 {
	if len(dst) != len(p.X) {
		dst = make([]float64, len(p.X))
	}

	for i, x := range p.X {
		r := p.Y[i] - p.Model(x, params)
		if p.Sigma != nil {
			r /= p.Sigma[i]
		}
		dst[i] = r
	}

	return dst
}

// ChiSquare returns the weighted sum of squared residuals, or +Inf when
// the model is not finite at some point.
func (p Problem) ChiSquare(params []float64) float64 {
	r := p.Residuals(nil, params)
	chi2 := vecmath.DotProduct(r, r)

	if math.IsNaN(chi2) {
		return math.Inf(1)
	}

	return chi2
}

// transform maps between the optimiser's unconstrained coordinates and the
// bounded parameter values. Bounded parameters use the sine mapping.
type transform struct {
	params []Param
	free   []int
}

func newTransform(params []Param) transform {
	t := transform{params: params}
	for i, p := range params {
		if !p.Fixed {
			t.free = append(t.free, i)
		}
	}
	return t
}

// internal returns the unconstrained coordinates of the parameter values.
func (t transform) internal(values []float64) []float64 {
	u := make([]float64, len(t.free))
	for k, i := range t.free {
		p := t.params[i]
		v := values[i]

		if !p.Bounded() {
			u[k] = v
			continue
		}

		s := 2*(v-p.Min)/(p.Max-p.Min) - 1
		u[k] = math.Asin(math.Max(-1, math.Min(1, s)))
	}
	return u
}

// external fills dst with the parameter values for the coordinates u.
func (t transform) external(dst, u []float64) []float64 {
	if len(dst) != len(t.params) {
		dst = make([]float64, len(t.params))
	}

	for i, p := range t.params {
		dst[i] = p.Value
	}

	for k, i := range t.free {
		p := t.params[i]
		if !p.Bounded() {
			dst[i] = u[k]
			continue
		}
		dst[i] = p.Min + (p.Max-p.Min)*(math.Sin(u[k])+1)/2
	}

	return dst
}
