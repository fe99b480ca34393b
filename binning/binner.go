package binning

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Binner accumulates samples and produces a histogram from them.
type Binner interface {
	Add(values ...float64)
	Len() int
	Histogram() (Histogram, error)
}

// samples is the shared sample store and range logic of all binners.
type samples struct {
	cfg    Config
	values []float64
	sorted bool
}

// Add appends samples. Non-finite values are dropped.
func (s *samples) Add(values ...float64) {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		s.values = append(s.values, v)
	}
	s.sorted = false
}

// Len returns the number of stored samples.
func (s *samples) Len() int {
	return len(s.values)
}

// Config returns the binner configuration.
func (s *samples) Config() Config {
	return s.cfg
}

// bounds returns the effective range and the sorted samples inside it.
func (s *samples) bounds() (lo, hi float64, in []float64, err error) {
	if !s.sorted {
		sort.Float64s(s.values)
		s.sorted = true
	}

	explicit := s.cfg.Min != 0 || s.cfg.Max != 0
	if explicit && !(s.cfg.Max > s.cfg.Min) {
		return 0, 0, nil, fmt.Errorf("%w: [%v, %v]", ErrInvalidRange, s.cfg.Min, s.cfg.Max)
	}

	in = s.values
	if explicit {
		first := sort.SearchFloat64s(s.values, s.cfg.Min)
		last := sort.Search(len(s.values), func(i int) bool { return s.values[i] > s.cfg.Max })
		in = s.values[first:last]
	}

	if len(in) == 0 {
		return 0, 0, nil, ErrNoSamples
	}

	lo, hi = s.cfg.Min, s.cfg.Max
	if !explicit || s.cfg.Adapt {
		lo, hi = in[0], in[len(in)-1]
	}

	if hi <= lo {
		// A single distinct value still gets a unit-width bin around it.
		lo -= 0.5
		hi += 0.5
	}

	return lo, hi, in, nil
}

// countInto fills counts for the sorted samples using edges whose last
// entry is inclusive.
func countInto(edges, sorted []float64) []float64 {
	dividers := make([]float64, len(edges))
	copy(dividers, edges)
	top := edges[len(edges)-1]
	if n := len(sorted); n > 0 && sorted[n-1] > top {
		top = sorted[n-1]
	}
	dividers[len(dividers)-1] = math.Nextafter(top, math.Inf(1))

	return stat.Histogram(nil, dividers, sorted, nil)
}

// finish converts raw counts into the configured output form.
func (s *samples) finish(edges, counts []float64) Histogram {
	h := Histogram{Edges: edges, Values: counts}
	if s.cfg.Normalize {
		return h.Normalize()
	}
	return h
}
