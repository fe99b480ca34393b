package model

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/cwbudde/algo-calib/internal/fit"
	"github.com/cwbudde/algo-calib/isotope"
	"github.com/cwbudde/algo-calib/peak"
)

// Fitter determines calibration models from assigned points.
type Fitter struct {
	cfg    Config
	logger *slog.Logger
}

// NewFitter returns a fitter with the given options applied.
func NewFitter(opts ...Option) *Fitter {
	cfg := ApplyOptions(opts...)

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Fitter{cfg: cfg, logger: logger.With("component", "model")}
}

// Config returns the fitter configuration.
func (f *Fitter) Config() Config {
	return f.cfg
}

// FitEnergy fits the ADC-to-energy model. Points are weighted by their
// energy FWHM when every point has one.
func (f *Fitter) FitEnergy(ctx context.Context, points []peak.Point) (*Model, error) {
	x := make([]float64, 0, len(points))
	y := make([]float64, 0, len(points))
	sigma := make([]float64, 0, len(points))

	for _, p := range points {
		x = append(x, p.Peak)
		y = append(y, p.Energy)
		sigma = append(sigma, p.EnergyFWHM)
	}

	for _, s := range sigma {
		if !(s > 0) {
			sigma = nil
			break
		}
	}

	return f.Fit(ctx, Energy, x, y, sigma)
}

// FitLineWidth fits the energy-to-FWHM model. The positron annihilation
// line is skipped.
func (f *Fitter) FitLineWidth(ctx context.Context, points []peak.Point) (*Model, error) {
	var x, y []float64

	for _, p := range points {
		if math.Abs(p.Energy-isotope.PositronLine) < 1e-3 || !(p.EnergyFWHM > 0) {
			continue
		}
		x = append(x, p.Energy)
		y = append(y, p.EnergyFWHM)
	}

	return f.Fit(ctx, LineWidth, x, y, nil)
}

// Fit determines a model of the given kind for the data with the
// configured method. sigma may be nil.
func (f *Fitter) Fit(ctx context.Context, kind Kind, x, y, sigma []float64) (*Model, error) {
	if len(x) == 0 {
		return nil, fmt.Errorf("%w: no points", ErrInsufficientData)
	}

	switch f.cfg.Method {
	case MethodStepWise:
		return stepWiseModel(kind, x, y), nil
	case MethodFixed:
		spec, ok := Spec(f.cfg.Form)
		if !ok || spec.Seed == nil {
			return nil, fmt.Errorf("%w: %v", ErrUnknownForm, f.cfg.Form)
		}
		if len(x) < spec.NumParams {
			return nil, fmt.Errorf("%w: %d points for %s", ErrInsufficientData, len(x), spec.Keyword)
		}
		return f.fitForm(ctx, spec, kind, x, y, sigma)
	case MethodBest:
		return f.fitBest(ctx, kind, x, y, sigma)
	default:
		return nil, fmt.Errorf("model: unknown method %v", f.cfg.Method)
	}
}

// fitBest keeps the lowest quality among the candidates. Forms with spare
// degrees of freedom win over exactly determined ones, whose chi-square is
// zero by construction.
func (f *Fitter) fitBest(ctx context.Context, kind Kind, x, y, sigma []float64) (*Model, error) {
	candidates := f.cfg.Candidates
	if len(candidates) == 0 {
		candidates = Forms()
	}

	var (
		best, exact *Model
		lastErr     = fmt.Errorf("%w: %d points", ErrInsufficientData, len(x))
	)

	for _, form := range candidates {
		spec, ok := Spec(form)
		if !ok || spec.Seed == nil || len(x) < spec.NumParams {
			continue
		}

		m, err := f.fitForm(ctx, spec, kind, x, y, sigma)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			lastErr = err
			f.logger.Debug("candidate form failed", "kind", kind, "form", spec.Keyword, "err", err)
			continue
		}

		f.logger.Debug("candidate form fitted", "kind", kind, "form", spec.Keyword, "quality", m.Quality)

		if len(x) == spec.NumParams {
			if exact == nil {
				exact = m
			}
			continue
		}

		if best == nil || m.Quality < best.Quality {
			best = m
		}
	}

	switch {
	case best != nil:
		return best, nil
	case exact != nil:
		return exact, nil
	default:
		return nil, lastErr
	}
}

func (f *Fitter) fitForm(ctx context.Context, spec FormSpec, kind Kind, x, y, sigma []float64) (*Model, error) {
	prob := fit.Problem{
		Model:  spec.Eval,
		X:      x,
		Y:      y,
		Sigma:  sigma,
		Params: spec.Seed(x, y),
	}

	res, err := fit.MinimizeWithFallback(ctx, prob, f.cfg.Strategies...)
	if err != nil {
		return nil, fmt.Errorf("model: fit %s: %w", spec.Keyword, err)
	}

	return &Model{
		Form:    spec.Form,
		Kind:    kind,
		Params:  res.Params,
		Errors:  res.Errors,
		Quality: res.ReducedChiSquare,
	}, nil
}

func stepWiseModel(kind Kind, x, y []float64) *Model {
	idx := make([]int, len(x))
	for i := range idx {
		idx[i] = i
	}

	sort.SliceStable(idx, func(a, b int) bool { return x[idx[a]] < x[idx[b]] })

	params := make([]float64, 0, 2*len(x))
	for _, i := range idx {
		params = append(params, x[i], y[i])
	}

	return &Model{Form: StepWise, Kind: kind, Params: params}
}
