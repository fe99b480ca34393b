package fit

import (
	"context"
	"math"

	vecmath "github.com/cwbudde/algo-vecmath"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
)

const (
	lmMaxIterations = 500
	lmMaxDamping    = 1e12
	lmTolerance     = 1e-12
)

// levenbergMarquardt minimises the residual norm in the unconstrained
// coordinates with Marquardt's diagonal damping.
func levenbergMarquardt(ctx context.Context, p Problem, t transform, start []float64) ([]float64, int, bool, error) {
	n, m := len(start), len(p.X)
	buf := make([]float64, len(p.Params))

	residuals := func(dst, u []float64) {
		p.Residuals(dst, t.external(buf, u))
	}

	u := append([]float64(nil), start...)
	r := make([]float64, m)
	residuals(r, u)
	chi2 := vecmath.DotProduct(r, r)
	evals := 1

	if math.IsNaN(chi2) || math.IsInf(chi2, 0) {
		return u, evals, false, nil
	}

	jac := mat.NewDense(m, n, nil)
	normal := mat.NewSymDense(n, nil)
	damped := mat.NewSymDense(n, nil)
	grad := mat.NewVecDense(n, nil)
	step := mat.NewVecDense(n, nil)
	cand := make([]float64, n)
	candR := make([]float64, m)
	lambda := 1e-3

	var chol mat.Cholesky

	for range lmMaxIterations {
		if err := ctx.Err(); err != nil {
			return nil, evals, false, err
		}

		fd.Jacobian(jac, residuals, u, &fd.JacobianSettings{Formula: fd.Central})
		evals += 2 * n

		for i := range n {
			ci := mat.Col(nil, i, jac)
			grad.SetVec(i, -vecmath.DotProduct(ci, r))
			for j := i; j < n; j++ {
				normal.SetSym(i, j, vecmath.DotProduct(ci, mat.Col(nil, j, jac)))
			}
		}

		improved := false
		for lambda <= lmMaxDamping {
			damped.CopySym(normal)
			for i := range n {
				d := normal.At(i, i)
				damped.SetSym(i, i, d+lambda*math.Max(d, 1e-12))
			}

			if !chol.Factorize(damped) {
				lambda *= 10
				continue
			}

			if err := chol.SolveVecTo(step, grad); err != nil {
				lambda *= 10
				continue
			}

			for i := range n {
				cand[i] = u[i] + step.AtVec(i)
			}

			residuals(candR, cand)
			evals++

			next := vecmath.DotProduct(candR, candR)
			if next < chi2 {
				decrease := chi2 - next
				copy(u, cand)
				copy(r, candR)
				chi2 = next
				lambda = math.Max(lambda/10, 1e-12)
				improved = true

				if decrease <= lmTolerance*math.Max(chi2, 1) {
					return u, evals, true, nil
				}
				break
			}

			lambda *= 10
		}

		if !improved {
			// No damped step lowers the residuals: a stationary point.
			return u, evals, true, nil
		}
	}

	return u, evals, false, nil
}
