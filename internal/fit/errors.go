package fit

import (
	"fmt"
	"math"

	vecmath "github.com/cwbudde/algo-vecmath"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
)

// Errors returns the one-sigma parameter uncertainties at params from the
// inverse of the Gauss-Newton normal matrix. Without explicit
// uncertainties the covariance is scaled by the reduced chi-square. Fixed
// parameters get a zero error.
func Errors(p Problem, params []float64) ([]float64, error) {
	t := newTransform(p.Params)
	n, m := len(t.free), len(p.X)

	full := append([]float64(nil), params...)
	residuals := func(dst, v []float64) {
		for k, i := range t.free {
			full[i] = v[k]
		}
		p.Residuals(dst, full)
	}

	at := make([]float64, n)
	for k, i := range t.free {
		at[k] = params[i]
	}

	jac := mat.NewDense(m, n, nil)
	fd.Jacobian(jac, residuals, at, &fd.JacobianSettings{Formula: fd.Central})

	// Columns are equilibrated before inversion so that coefficients of
	// very different magnitude do not make the normal matrix singular.
	norms := make([]float64, n)
	cols := make([][]float64, n)
	for i := range n {
		cols[i] = mat.Col(nil, i, jac)
		norms[i] = math.Sqrt(vecmath.DotProduct(cols[i], cols[i]))
		if norms[i] == 0 {
			return nil, fmt.Errorf("%w: parameter %q has no effect", ErrNonFiniteCovariance, p.Params[t.free[i]].Name)
		}
		vecmath.ScaleBlockInPlace(cols[i], 1/norms[i])
	}

	normal := mat.NewSymDense(n, nil)
	for i := range n {
		for j := i; j < n; j++ {
			normal.SetSym(i, j, vecmath.DotProduct(cols[i], cols[j]))
		}
	}

	var chol mat.Cholesky
	if !chol.Factorize(normal) {
		return nil, fmt.Errorf("%w: normal matrix not positive definite", ErrNonFiniteCovariance)
	}

	var cov mat.SymDense
	if err := chol.InverseTo(&cov); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNonFiniteCovariance, err)
	}

	scale := 1.0
	if p.Sigma == nil && p.NDF() > 0 {
		scale = p.ChiSquare(params) / float64(p.NDF())
	}

	out := make([]float64, len(p.Params))
	for k, i := range t.free {
		v := cov.At(k, k) * scale / (norms[k] * norms[k])
		if !(v >= 0) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: variance of %q is %v", ErrNonFiniteCovariance, p.Params[i].Name, v)
		}
		out[i] = math.Sqrt(v)
	}

	return out, nil
}
