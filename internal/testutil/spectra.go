package testutil

import (
	"math/rand"
)

// Line is one synthetic emission line placed into a generated spectrum.
type Line struct {
	ADC    float64 // peak position in ADC units
	Sigma  float64 // Gaussian width in ADC units
	Counts int     // number of samples drawn for the line
}

// SpectrumSpec describes a deterministic synthetic ADC spectrum: Gaussian
// lines on top of an exponentially falling background.
type SpectrumSpec struct {
	Seed       int64
	Lines      []Line
	Background int     // number of background samples
	Slope      float64 // mean of the exponential background in ADC units
	Min, Max   float64 // samples outside are redrawn
}

// Spectrum draws the samples described by spec.
func Spectrum(spec SpectrumSpec) []float64 {
	rng := rand.New(rand.NewSource(spec.Seed))

	total := spec.Background
	for _, l := range spec.Lines {
		total += l.Counts
	}

	out := make([]float64, 0, total)
	inRange := func(v float64) bool {
		return spec.Max <= spec.Min || (v >= spec.Min && v <= spec.Max)
	}

	for _, l := range spec.Lines {
		for i := 0; i < l.Counts; {
			v := l.ADC + rng.NormFloat64()*l.Sigma
			if inRange(v) {
				out = append(out, v)
				i++
			}
		}
	}

	slope := spec.Slope
	if slope <= 0 {
		slope = 200
	}

	for i := 0; i < spec.Background; {
		v := spec.Min + rng.ExpFloat64()*slope
		if inRange(v) {
			out = append(out, v)
			i++
		}
	}

	rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })

	return out
}

// LinesAt builds lines at energies/scale with a common relative width.
func LinesAt(energies []float64, scale, relSigma float64, counts int) []Line {
	lines := make([]Line, len(energies))
	for i, e := range energies {
		adc := e / scale
		lines[i] = Line{ADC: adc, Sigma: relSigma * adc, Counts: counts}
	}
	return lines
}
