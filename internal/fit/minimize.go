package fit

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"
)

// Strategy selects the minimisation algorithm.
type Strategy int

const (
	// BFGS is a quasi-Newton minimiser on finite-difference gradients.
	BFGS Strategy = iota
	// NelderMead is the derivative-free simplex minimiser.
	NelderMead
	// LevenbergMarquardt is the damped Gauss-Newton least-squares solver.
	LevenbergMarquardt
)

// DefaultStrategies is the fallback chain used by MinimizeWithFallback when
// no strategies are given.
var DefaultStrategies = []Strategy{BFGS, NelderMead, LevenbergMarquardt}

func (s Strategy) String() string {
	switch s {
	case BFGS:
		return "bfgs"
	case NelderMead:
		return "neldermead"
	case LevenbergMarquardt:
		return "levenberg-marquardt"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

// ParseStrategy parses the String form; "lm" is accepted for
// LevenbergMarquardt.
func ParseStrategy(s string) (Strategy, bool) {
	if s == "lm" {
		return LevenbergMarquardt, true
	}
	for _, st := range DefaultStrategies {
		if st.String() == s {
			return st, true
		}
	}
	return 0, false
}

// Result is the outcome of one minimisation.
type Result struct {
	Params    []float64
	Errors    []float64
	ChiSquare float64
	NDF       int
	// ReducedChiSquare is ChiSquare/NDF computed from the residuals, so
	// results of different strategies compare directly. It equals
	// ChiSquare when NDF is zero.
	ReducedChiSquare float64
	Strategy         Strategy
	Evaluations      int
	Converged        bool
}

const (
	maxEvaluations      = 20000
	stationaryTolerance = 1e-4
)

// Minimize runs one strategy. On ErrNotConverged or ErrNonFiniteCovariance
// the returned result still holds the best parameters found.
func Minimize(ctx context.Context, p Problem, s Strategy) (Result, error) {
	if err := p.Validate(); err != nil {
		return Result{}, err
	}

	t := newTransform(p.Params)
	start := t.internal(p.Values())

	var (
		u         []float64
		evals     int
		converged bool
		err       error
	)

	switch s {
	case BFGS, NelderMead:
		u, evals, converged, err = runGonum(ctx, p, t, start, s)
	case LevenbergMarquardt:
		u, evals, converged, err = levenbergMarquardt(ctx, p, t, start)
	default:
		return Result{}, fmt.Errorf("%w: unknown strategy %v", ErrInvalidProblem, s)
	}

	if err != nil {
		return Result{}, err
	}

	params := t.external(nil, u)
	res := newResult(p, params, s)
	res.Evaluations = evals
	res.Converged = converged && !math.IsInf(res.ChiSquare, 0)

	if !res.Converged {
		return res, fmt.Errorf("%w: %v", ErrNotConverged, s)
	}

	res.Errors, err = Errors(p, params)
	if err != nil {
		return res, err
	}

	return res, nil
}

// MinimizeWithFallback runs the strategies in order and returns the first
// result that converges with a finite error matrix. When every strategy
// fails, the error of the last one is returned together with the result
// of lowest chi-square.
func MinimizeWithFallback(ctx context.Context, p Problem, strategies ...Strategy) (Result, error) {
	if len(strategies) == 0 {
		strategies = DefaultStrategies
	}

	var (
		best    Result
		lastErr error
	)

	for _, s := range strategies {
		if err := ctx.Err(); err != nil {
			return best, err
		}

		res, err := Minimize(ctx, p, s)
		if err == nil {
			return res, nil
		}

		if !errors.Is(err, ErrNotConverged) && !errors.Is(err, ErrNonFiniteCovariance) {
			return res, err
		}

		if best.Params == nil || res.ChiSquare < best.ChiSquare {
			best = res
		}
		lastErr = err
	}

	return best, lastErr
}

func lineSearchStalled(err error) bool {
	return errors.Is(err, optimize.ErrNoProgress) ||
		errors.Is(err, optimize.ErrLinesearcherFailure) ||
		errors.Is(err, optimize.ErrNonDescentDirection)
}

func newResult(p Problem, params []float64, s Strategy) Result {
	chi2 := p.ChiSquare(params)
	ndf := p.NDF()

	reduced := chi2
	if ndf > 0 {
		reduced = chi2 / float64(ndf)
	}

	return Result{
		Params:           params,
		ChiSquare:        chi2,
		NDF:              ndf,
		ReducedChiSquare: reduced,
		Strategy:         s,
	}
}

func runGonum(ctx context.Context, p Problem, t transform, start []float64, s Strategy) ([]float64, int, bool, error) {
	buf := make([]float64, len(p.Params))
	objective := func(u []float64) float64 {
		return p.ChiSquare(t.external(buf, u))
	}

	problem := optimize.Problem{
		Func: objective,
		Status: func() (optimize.Status, error) {
			if err := ctx.Err(); err != nil {
				return optimize.Failure, err
			}
			return optimize.NotTerminated, nil
		},
	}

	var method optimize.Method = &optimize.NelderMead{}
	if s == BFGS {
		problem.Grad = func(grad, u []float64) {
			fd.Gradient(grad, objective, u, &fd.Settings{Formula: fd.Central})
		}
		method = &optimize.BFGS{}
	}

	settings := &optimize.Settings{
		FuncEvaluations: maxEvaluations,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-10,
			Relative:   1e-12,
			Iterations: 200,
		},
	}

	res, err := optimize.Minimize(problem, start, settings, method)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, 0, false, ctxErr
	}

	if res == nil {
		return start, 0, false, nil
	}

	converged := err == nil && !res.Status.Early()
	if !converged && lineSearchStalled(err) {
		// A stalled line search is accepted when the gradient vanishes.
		g := fd.Gradient(nil, objective, res.X, &fd.Settings{Formula: fd.Central})
		converged = floats.Norm(g, 2) <= stationaryTolerance*math.Max(1, res.F)
	}

	return res.X, res.FuncEvaluations, converged, nil
}
