package binning

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// FixedWidth bins samples into a fixed number of equal-width bins.
type FixedWidth struct {
	samples
}

// NewFixedWidth returns a fixed-width binner.
func NewFixedWidth(opts ...Option) *FixedWidth {
	return &FixedWidth{samples: samples{cfg: ApplyOptions(opts...)}}
}

// Histogram returns the equal-width histogram. With integer alignment the
// range is widened to integer edges and the bin width rounded up to an
// integer, so the number of bins may be smaller than requested.
func (f *FixedWidth) Histogram() (Histogram, error) {
	lo, hi, in, err := f.bounds()
	if err != nil {
		return Histogram{}, err
	}

	bins := f.cfg.Bins
	if bins < 1 {
		bins = 1
	}

	var edges []float64

	if f.cfg.IntegerAlignment {
		lo = math.Floor(lo)
		hi = math.Ceil(hi)
		if hi <= lo {
			hi = lo + 1
		}

		width := math.Max(1, math.Ceil((hi-lo)/float64(bins)))
		bins = int(math.Ceil((hi - lo) / width))
		hi = lo + float64(bins)*width

		edges = make([]float64, bins+1)
		for i := range edges {
			edges[i] = lo + float64(i)*width
		}
	} else {
		edges = floats.Span(make([]float64, bins+1), lo, hi)
		// Span accumulates the step and may land one ulp short of hi.
		edges[0], edges[bins] = lo, hi
	}

	return f.finish(edges, countInto(edges, in)), nil
}

// FixedCounts bins samples so that every bin holds CountsPerBin samples;
// the last bin takes the remainder.
type FixedCounts struct {
	samples
}

// NewFixedCounts returns a fixed-counts binner.
func NewFixedCounts(opts ...Option) *FixedCounts {
	return &FixedCounts{samples: samples{cfg: ApplyOptions(opts...)}}
}

// Histogram sweeps the sorted samples once and emits a boundary midway to
// the next distinct value as soon as the current bin reached capacity.
func (f *FixedCounts) Histogram() (Histogram, error) {
	lo, hi, in, err := f.bounds()
	if err != nil {
		return Histogram{}, err
	}

	capacity := float64(max(f.cfg.CountsPerBin, 1))

	edges := []float64{lo}
	var counts []float64

	current := 0.0
	for i, v := range in {
		current++

		if current < capacity || i+1 == len(in) || in[i+1] == v {
			continue
		}

		boundary := 0.5 * (v + in[i+1])
		if boundary <= edges[len(edges)-1] || boundary >= hi {
			continue
		}

		edges = append(edges, boundary)
		counts = append(counts, current)
		current = 0
	}

	edges = append(edges, hi)
	counts = append(counts, current)

	return f.finish(edges, counts), nil
}
