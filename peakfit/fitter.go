package peakfit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sort"

	"github.com/cwbudde/algo-calib/binning"
	"github.com/cwbudde/algo-calib/internal/fit"
	"github.com/cwbudde/algo-calib/peak"
)

var (
	errFewBins      = errors.New("peakfit: fewer bins than parameters")
	errPoorFit      = errors.New("peakfit: poor fit quality")
	errRisingWindow = errors.New("peakfit: window sits on a rising slope")
)

// Fitter refines spectral points by fitting the configured line shape.
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

	return &Fitter{cfg: cfg, logger: logger.With("component", "peakfit")}
}

// Config returns the fitter configuration.
func (f *Fitter) Config() Config {
	return f.cfg
}

// Fit returns refined copies of points. With BlockReadOff the points are
// returned unchanged. Otherwise every good point is fitted over its
// window; failed fits mark the point not good. Only context errors are
// returned.
func (f *Fitter) Fit(ctx context.Context, samples []float64, points []peak.Point) ([]peak.Point, error) {
	out := peak.ClonePoints(points)
	if f.cfg.Descriptor.Method == BlockReadOff {
		return out, nil
	}

	sorted := slices.Clone(samples)
	sort.Float64s(sorted)

	for i := range out {
		if !out[i].Good {
			continue
		}

		if err := f.fitPoint(ctx, sorted, &out[i]); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}

			f.logger.Debug("peak fit rejected", "peak", out[i].Peak, "reason", err)
			out[i].Good = false
		}
	}

	return out, nil
}

func (f *Fitter) fitPoint(ctx context.Context, sorted []float64, p *peak.Point) error {
	lo, hi := p.Low, p.High
	if !(hi > lo) {
		return fmt.Errorf("peakfit: empty window [%v, %v]", lo, hi)
	}

	first := sort.SearchFloat64s(sorted, lo)
	last := sort.Search(len(sorted), func(i int) bool { return sorted[i] > hi })

	bins := int(math.Ceil((hi - lo) / f.cfg.BinWidth))
	binner := binning.NewFixedWidth(binning.WithRange(lo, hi), binning.WithBins(bins))
	binner.Add(sorted[first:last]...)

	h, err := binner.Histogram()
	if err != nil {
		return err
	}

	eval := NewEvaluator(f.cfg.Descriptor, 0.5*(lo+hi))
	if h.Bins() <= eval.NumParams() {
		return fmt.Errorf("%w: %d bins, %d parameters", errFewBins, h.Bins(), eval.NumParams())
	}

	prob := f.problem(eval, h, *p)

	res, err := fit.MinimizeWithFallback(ctx, prob, f.cfg.Strategies...)
	if err != nil {
		return err
	}

	if res.ReducedChiSquare > f.cfg.MaxReducedChiSquare {
		if m := meanResidual(prob, res.Params); m > f.cfg.MaxMeanResidual {
			return fmt.Errorf("%w: reduced chi-square %.3g, mean residual %.3g", errPoorFit, res.ReducedChiSquare, m)
		}
	}

	if f.cfg.EdgeRatio > 0 {
		low, high := eval.Eval(lo, res.Params), eval.Eval(hi, res.Params)
		if low < f.cfg.EdgeRatio*high {
			return fmt.Errorf("%w: %.3g at %v, %.3g at %v", errRisingWindow, low, lo, high, hi)
		}
	}

	position, fwhm := eval.Peak(res.Params)
	if position < lo || position > hi || !(fwhm > 0) {
		return fmt.Errorf("%w: peak %v fwhm %v", errPoorFit, position, fwhm)
	}

	p.Peak = position
	p.FWHM = fwhm
	p.Fit = &peak.Fit{
		Descriptor:       f.cfg.Descriptor.String(),
		Params:           res.Params,
		Errors:           res.Errors,
		ReducedChiSquare: res.ReducedChiSquare,
	}

	return nil
}

// problem seeds the parameters from the window's maximum and bin width.
func (f *Fitter) problem(eval *Evaluator, h binning.Histogram, p peak.Point) fit.Problem {
	n := h.Bins()
	prob := fit.Problem{
		Model: eval.Eval,
		X:     make([]float64, n),
		Y:     make([]float64, n),
		Sigma: make([]float64, n),
	}

	top := 0.0
	for i := range n {
		c := h.Count(i)
		prob.X[i] = h.Center(i)
		prob.Y[i] = c
		prob.Sigma[i] = math.Sqrt(math.Max(c, 1))
		top = math.Max(top, c)
	}

	lo, hi := h.Min(), h.Max()
	width := h.Width(0)
	span := hi - lo

	edgeLo, edgeHi := prob.Y[0], prob.Y[n-1]
	base := math.Min(edgeLo, edgeHi)

	sigma := p.FWHM / fwhmPerSigma
	if !(sigma > 0) {
		sigma = span / 6
	}
	sigma = math.Max(width, math.Min(span/2, sigma))

	params := []fit.Param{
		{Name: "amplitude", Value: math.Max(top-base, 1), Min: 0, Max: 1.5*top + 1},
		{Name: "mean", Value: p.Peak, Min: lo, Max: hi},
		{Name: "sigma", Value: sigma, Min: width / 2, Max: span},
	}

	if f.cfg.Descriptor.Shape == GaussLandau {
		params = append(params, fit.Param{Name: "eta", Value: sigma / 2, Min: width / 4, Max: span})
	}

	switch f.cfg.Descriptor.EnergyLoss {
	case GaussDelta:
		params = append(params, fit.Param{Name: "step", Value: 0.05 * top, Min: 0, Max: top + 1})
	case GaussDeltaExpDecay:
		params = append(params,
			fit.Param{Name: "tail", Value: 0.1 * top, Min: 0, Max: top + 1},
			fit.Param{Name: "tau", Value: sigma, Min: width, Max: span},
		)
	}

	switch f.cfg.Descriptor.Background {
	case FlatBackground:
		params = append(params, fit.Param{Name: "b0", Value: base, Min: 0, Max: top + 1})
	case LinearBackground:
		params = append(params,
			fit.Param{Name: "b0", Value: 0.5 * (edgeLo + edgeHi)},
			fit.Param{Name: "b1", Value: (edgeHi - edgeLo) / span},
		)
	}

	// Clamp starting values into their limits.
	for i := range params {
		if params[i].Bounded() {
			params[i].Value = math.Max(params[i].Min, math.Min(params[i].Max, params[i].Value))
		}
	}

	prob.Params = params

	return prob
}

// meanResidual is the mean of |y - f| / y over the populated bins.
func meanResidual(p fit.Problem, params []float64) float64 {
	sum, n := 0.0, 0
	for i, y := range p.Y {
		if y <= 0 {
			continue
		}
		sum += math.Abs(y-p.Model(p.X[i], params)) / y
		n++
	}

	if n == 0 {
		return math.Inf(1)
	}

	return sum / float64(n)
}
