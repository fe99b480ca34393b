package peakfit

import "math"

// fwhmPerSigma converts a Gaussian sigma into its FWHM.
var fwhmPerSigma = 2 * math.Sqrt(2*math.Ln2)

// Evaluator evaluates the line shape of a descriptor. The parameters are
// ordered amplitude, mean, sigma, then the Landau width for GaussLandau,
// then the energy-loss parameters, then the background coefficients. The
// linear background is expressed relative to Origin.
//
// An Evaluator caches the last Landau profile and must not be shared
// between goroutines.
type Evaluator struct {
	desc   Descriptor
	Origin float64

	names   []string
	lossIdx int
	bgIdx   int

	landau landauProfile
}

// NewEvaluator returns the evaluator for d.
func NewEvaluator(d Descriptor, origin float64) *Evaluator {
	e := &Evaluator{desc: d, Origin: origin}

	e.names = []string{"amplitude", "mean", "sigma"}
	if d.Shape == GaussLandau {
		e.names = append(e.names, "eta")
	}

	e.lossIdx = len(e.names)
	switch d.EnergyLoss {
	case GaussDelta:
		e.names = append(e.names, "step")
	case GaussDeltaExpDecay:
		e.names = append(e.names, "tail", "tau")
	}

	e.bgIdx = len(e.names)
	switch d.Background {
	case FlatBackground:
		e.names = append(e.names, "b0")
	case LinearBackground:
		e.names = append(e.names, "b0", "b1")
	}

	return e
}

// Descriptor returns the evaluated descriptor.
func (e *Evaluator) Descriptor() Descriptor { return e.desc }

// NumParams returns the number of shape parameters.
func (e *Evaluator) NumParams() int { return len(e.names) }

// Names returns the parameter names in order.
func (e *Evaluator) Names() []string {
	return append([]string(nil), e.names...)
}

// Eval returns the model value at x.
func (e *Evaluator) Eval(x float64, p []float64) float64 {
	amp, mean, sigma := p[0], p[1], math.Abs(p[2])

	var v float64
	switch e.desc.Shape {
	case GaussLandau:
		eta := math.Abs(p[3])
		if eta == 0 {
			return math.NaN()
		}
		v = amp * e.profile(sigma/eta).grid.At((x-mean)/eta)
	default:
		d := (x - mean) / sigma
		v = amp * math.Exp(-0.5*d*d)
	}

	v += e.loss(x, mean, sigma, p)

	switch e.desc.Background {
	case FlatBackground:
		v += p[e.bgIdx]
	case LinearBackground:
		v += p[e.bgIdx] + p[e.bgIdx+1]*(x-e.Origin)
	}

	return v
}

func (e *Evaluator) loss(x, mean, sigma float64, p []float64) float64 {
	switch e.desc.EnergyLoss {
	case GaussDelta:
		return p[e.lossIdx] * 0.5 * math.Erfc((x-mean)/(math.Sqrt2*sigma))
	case GaussDeltaExpDecay:
		h, tau := p[e.lossIdx], math.Abs(p[e.lossIdx+1])
		if tau == 0 || sigma == 0 {
			return 0
		}

		arg := ((x-mean)/sigma + sigma/tau) / math.Sqrt2
		if arg > 25 {
			return 0
		}

		return h * 0.5 * math.Exp((x-mean)/tau+sigma*sigma/(2*tau*tau)) * math.Erfc(arg)
	default:
		return 0
	}
}

// Peak returns the position and FWHM of the peak component.
func (e *Evaluator) Peak(p []float64) (float64, float64) {
	mean, sigma := p[1], math.Abs(p[2])

	if e.desc.Shape == GaussLandau && p[3] != 0 {
		eta := math.Abs(p[3])
		prof := e.profile(sigma / eta)
		return mean + eta*prof.peak, eta * prof.fwhm
	}

	return mean, fwhmPerSigma * sigma
}

func (e *Evaluator) profile(ratio float64) landauProfile {
	clamped := math.Max(minRatio, math.Min(maxRatio, ratio))
	if e.landau.grid.Values == nil || e.landau.ratio != clamped {
		e.landau = newLandauProfile(clamped)
	}
	return e.landau
}
