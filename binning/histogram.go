package binning

import (
	"errors"
	"fmt"
	"math"
	"sort"

	vecmath "github.com/cwbudde/algo-vecmath"
)

var (
	// ErrNoSamples is returned when a binner has no samples inside its range.
	ErrNoSamples = errors.New("binning: no samples")
	// ErrInvalidRange is returned when the requested range is empty or inverted.
	ErrInvalidRange = errors.New("binning: invalid range")
	// ErrInvalidHistogram is returned by Validate for malformed histograms.
	ErrInvalidHistogram = errors.New("binning: invalid histogram")
)

// Histogram is an ordered sequence of bin edges plus one value per bin.
// Values hold counts, or counts per unit width when Normalized is set.
// len(Edges) == len(Values)+1 for every valid histogram.
type Histogram struct {
	Edges      []float64
	Values     []float64
	Normalized bool
}

// Bins returns the number of bins.
func (h Histogram) Bins() int {
	return len(h.Values)
}

// Min returns the lower edge of the first bin.
func (h Histogram) Min() float64 {
	if len(h.Edges) == 0 {
		return 0
	}
	return h.Edges[0]
}

// Max returns the upper edge of the last bin.
func (h Histogram) Max() float64 {
	if len(h.Edges) == 0 {
		return 0
	}
	return h.Edges[len(h.Edges)-1]
}

// Width returns the width of bin i.
func (h Histogram) Width(i int) float64 {
	return h.Edges[i+1] - h.Edges[i]
}

// Center returns the center of bin i.
func (h Histogram) Center(i int) float64 {
	return 0.5 * (h.Edges[i] + h.Edges[i+1])
}

// Count returns the number of samples in bin i regardless of normalisation.
func (h Histogram) Count(i int) float64 {
	if h.Normalized {
		return h.Values[i] * h.Width(i)
	}
	return h.Values[i]
}

// Density returns the counts per unit width of bin i.
func (h Histogram) Density(i int) float64 {
	if h.Normalized {
		return h.Values[i]
	}
	return h.Values[i] / h.Width(i)
}

// Total returns the total number of samples in the histogram.
func (h Histogram) Total() float64 {
	if !h.Normalized {
		return vecmath.Sum(h.Values)
	}

	total := 0.0
	for i := range h.Values {
		total += h.Count(i)
	}

	return total
}

// Find returns the index of the bin containing x, or -1 when x is outside
// the histogram. The upper edge of the last bin is inclusive.
func (h Histogram) Find(x float64) int {
	n := len(h.Values)
	if n == 0 || x < h.Edges[0] || x > h.Edges[n] {
		return -1
	}

	idx := sort.SearchFloat64s(h.Edges, x)
	if idx == n {
		return n - 1
	}

	if h.Edges[idx] == x {
		return idx
	}

	return idx - 1
}

// Normalize returns a copy holding counts per unit width. Normalising an
// already normalised histogram returns an identical copy.
func (h Histogram) Normalize() Histogram {
	out := h.Clone()
	if h.Normalized {
		return out
	}

	for i := range out.Values {
		out.Values[i] /= out.Width(i)
	}
	out.Normalized = true

	return out
}

// Clone returns a deep copy.
func (h Histogram) Clone() Histogram {
	out := Histogram{
		Edges:      make([]float64, len(h.Edges)),
		Values:     make([]float64, len(h.Values)),
		Normalized: h.Normalized,
	}
	copy(out.Edges, h.Edges)
	copy(out.Values, h.Values)

	return out
}

// Validate checks the structural invariants.
func (h Histogram) Validate() error {
	if len(h.Edges) != len(h.Values)+1 {
		return fmt.Errorf("%w: %d edges for %d bins", ErrInvalidHistogram, len(h.Edges), len(h.Values))
	}

	for i := 1; i < len(h.Edges); i++ {
		if !(h.Edges[i] > h.Edges[i-1]) {
			return fmt.Errorf("%w: edge %d (%v) not above edge %d (%v)", ErrInvalidHistogram, i, h.Edges[i], i-1, h.Edges[i-1])
		}
	}

	for i, v := range h.Values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: bin %d holds %v", ErrInvalidHistogram, i, v)
		}
	}

	return nil
}

// Fitness returns the Bayesian-blocks fitness of the histogram's partition.
func (h Histogram) Fitness(prior float64) float64 {
	counts := make([]float64, h.Bins())
	widths := make([]float64, h.Bins())
	for i := range counts {
		counts[i] = h.Count(i)
		widths[i] = h.Width(i)
	}

	return Fitness(counts, widths, prior)
}

// Fitness returns Σ [N_i (ln N_i - ln W_i) - prior] over the given blocks.
func Fitness(counts, widths []float64, prior float64) float64 {
	total := 0.0
	for i := range counts {
		total += blockFitness(counts[i], widths[i], prior)
	}
	return total
}

func blockFitness(n, w, prior float64) float64 {
	if n <= 0 || w <= 0 {
		return -prior
	}
	return n*(math.Log(n)-math.Log(w)) - prior
}
