package peak

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"

	vecmath "github.com/cwbudde/algo-vecmath"
	"gonum.org/v1/gonum/stat"

	"github.com/cwbudde/algo-calib/binning"
)

// Detector finds peaks in one channel's spectrum.
type Detector struct {
	cfg    Config
	logger *slog.Logger
}

// NewDetector returns a detector with the given options applied.
func NewDetector(opts ...Option) *Detector {
	cfg := ApplyOptions(opts...)

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Detector{cfg: cfg, logger: logger.With("component", "peak")}
}

// Config returns the detector configuration.
func (d *Detector) Config() Config {
	return d.cfg
}

// spectrum is the segmented histogram plus the views the gates read.
type spectrum struct {
	hist    binning.Histogram
	density []float64
	deriv   []float64
	sorted  []float64
}

// Detect segments the samples and returns the surviving candidate peaks
// ordered by position. A spectrum without samples yields no peaks.
func (d *Detector) Detect(samples []float64) ([]Point, error) {
	sp, err := d.segment(samples)
	if err != nil {
		if errors.Is(err, binning.ErrNoSamples) {
			return nil, nil
		}
		return nil, fmt.Errorf("peak: segment spectrum: %w", err)
	}

	n := sp.hist.Bins()
	if n < 3 {
		return nil, nil
	}

	var points []Point

	for i := d.cfg.ExcludedBins; i < len(sp.deriv)-1; i++ {
		if !(sp.deriv[i] > 0) {
			continue
		}

		// Skip flat stretches to find the next derivative sign.
		j := i + 1
		for j < len(sp.deriv) && sp.deriv[j] == 0 {
			j++
		}

		if j == len(sp.deriv) || !(sp.deriv[j] < 0) {
			continue
		}

		p, ok := d.candidate(sp, i, j, len(points) == 0)
		if !ok {
			continue
		}

		points = append(points, p)
		i = j
	}

	sort.Slice(points, func(a, b int) bool { return points[a].Peak < points[b].Peak })

	return points, nil
}

// DetectGroups detects peaks in every group of one channel, removes FWHM
// outliers across all groups and prunes bad points.
func (d *Detector) DetectGroups(groups [][]float64) ([][]Point, error) {
	out := make([][]Point, len(groups))

	for g, samples := range groups {
		points, err := d.Detect(samples)
		if err != nil {
			return nil, fmt.Errorf("peak: group %d: %w", g, err)
		}
		out[g] = points
	}

	ApplyMedianFilter(out, d.cfg.MedianExclusionFactor)

	for g := range out {
		out[g] = Prune(out[g])
	}

	return out, nil
}

// ApplyMedianFilter marks every good point whose FWHM exceeds factor times
// the median FWHM of all good points as bad. For an even number of points
// the lower median is used, which favours the sharper peaks.
func ApplyMedianFilter(groups [][]Point, factor float64) {
	var widths []float64
	for _, g := range groups {
		for _, p := range g {
			if p.Good {
				widths = append(widths, p.FWHM)
			}
		}
	}

	if len(widths) == 0 || factor <= 0 {
		return
	}

	sort.Float64s(widths)
	median := stat.Quantile(0.5, stat.Empirical, widths, nil)

	for g := range groups {
		for i := range groups[g] {
			if groups[g][i].Good && groups[g][i].FWHM > factor*median {
				groups[g][i].Good = false
			}
		}
	}
}

func (d *Detector) segment(samples []float64) (spectrum, error) {
	opts := []binning.Option{
		binning.WithPrior(d.cfg.Prior),
		binning.WithMinBinWidth(d.cfg.MinBinWidth),
		binning.WithNormalize(),
	}
	if d.cfg.Max > d.cfg.Min {
		opts = append(opts, binning.WithRange(d.cfg.Min, d.cfg.Max))
	}

	bb := binning.NewBayesianBlocks(opts...)
	bb.Add(samples...)

	h, err := bb.Histogram()
	if err != nil {
		return spectrum{}, err
	}

	sorted := append([]float64(nil), samples...)
	sort.Float64s(sorted)

	return spectrum{
		hist:    h,
		density: h.Values,
		deriv:   derivative(h.Values),
		sorted:  sorted,
	}, nil
}

// derivative returns the change between consecutive bins normalised by
// their average density.
func derivative(density []float64) []float64 {
	if len(density) < 2 {
		return nil
	}

	n := len(density) - 1
	diff := make([]float64, n)
	inv := make([]float64, n)

	for i := range n {
		diff[i] = density[i+1] - density[i]
		if avg := 0.5 * (density[i] + density[i+1]); avg > 0 {
			inv[i] = 1 / avg
		}
	}

	out := make([]float64, n)
	vecmath.MulBlock(out, diff, inv)

	return out
}

// candidate applies the rejection gates to the sign change between
// derivative i (rising) and j (falling). The candidate bin is i+1.
//
//nolint:cyclop,funlen
func (d *Detector) candidate(sp spectrum, i, j int, first bool) (Point, bool) {
	h := sp.hist
	dens := sp.density
	bins := h.Bins()
	p := i + 1

	reject := func(gate string, args ...any) (Point, bool) {
		d.logger.Debug("peak candidate rejected",
			append([]any{"gate", gate, "bin", p, "position", h.Center(p)}, args...)...)
		return Point{}, false
	}

	minCounts := d.cfg.MinPeakCounts
	if first {
		minCounts = math.Max(minCounts, d.cfg.FirstPeakMinCounts)
	}

	// 1: the trailing bin cannot be a peak.
	if p >= bins-1 {
		return reject("last-bin")
	}

	// 2: local window bounded by the rising and falling derivative runs.
	l := i
	for l-1 >= d.cfg.ExcludedBins && sp.deriv[l-1] > 0 {
		l--
	}

	r := j
	for r+1 < len(sp.deriv) && sp.deriv[r+1] < 0 {
		r++
	}
	r++ // last bin reached by the falling run

	windowCounts := 0.0
	for k := l; k <= r; k++ {
		windowCounts += h.Count(k)
	}

	floor := math.Min(dens[l], dens[r])
	adjusted := windowCounts - floor*(h.Edges[r+1]-h.Edges[l])

	if adjusted < minCounts {
		return reject("window-counts", "counts", adjusted, "min", minCounts)
	}

	// 3: background-subtracted height.
	tallest := l
	for k := l; k <= r; k++ {
		if dens[k] > dens[tallest] {
			tallest = k
		}
	}

	if height := dens[tallest] - floor; height < d.cfg.MinHeight {
		return reject("height", "height", height, "min", d.cfg.MinHeight)
	}

	// 4: derivative swing and sign pattern.
	rise, fall := math.Inf(-1), math.Inf(1)
	for k := l; k < r && k < len(sp.deriv); k++ {
		rise = math.Max(rise, sp.deriv[k])
		fall = math.Min(fall, sp.deriv[k])
	}

	if rise-fall < d.cfg.Volatility {
		return reject("volatility", "swing", rise-fall)
	}

	if signLimit := d.cfg.Volatility / 4; rise < signLimit || fall > -signLimit {
		return reject("sign-pattern", "rise", rise, "fall", fall)
	}

	// 5: the first peak must not sit right at the start.
	if first && tallest < d.cfg.FirstPeakMinBinID {
		return reject("first-peak-bin", "min", d.cfg.FirstPeakMinBinID)
	}

	// 6: refine to the sample mean within the tallest bin.
	position := binMean(sp.sorted, h.Edges[tallest], h.Edges[tallest+1])

	// 7: valleys by walking outward while the histogram does not rise.
	lv := tallest
	for lv-1 >= 0 && dens[lv-1] <= dens[lv] {
		lv--
	}

	rv := tallest
	for rv+1 < bins && dens[rv+1] <= dens[rv] {
		rv++
	}

	leftDrop := dens[tallest] - dens[lv]
	rightDrop := dens[tallest] - dens[rv]

	if leftDrop < d.cfg.ComptonEdgeThreshold*rightDrop {
		return reject("compton-edge", "left_drop", leftDrop, "right_drop", rightDrop)
	}

	// 8: excess over a linear background between the valleys.
	lo, hi := h.Edges[lv], h.Edges[rv+1]

	total := 0.0
	for k := lv; k <= rv; k++ {
		total += h.Count(k)
	}

	excess := total - 0.5*(dens[lv]+dens[rv])*(hi-lo)
	if excess < minCounts {
		return reject("excess", "excess", excess, "min", minCounts)
	}

	// 9: symmetric fit window, widened by the half-maximum width.
	half := math.Min(position-lo, hi-position)
	low, high := position-half, position+half

	xl, xr := halfMaximum(h, tallest, lv, rv)

	if f := d.cfg.RangeBeyondPeak; f > 0 {
		low = math.Min(low, math.Max(lo, position-f*(position-xl)))
		high = math.Max(high, math.Min(hi, position+f*(xr-position)))
	}

	if !(high > low) {
		return reject("window", "low", low, "high", high)
	}

	return Point{
		Peak:   position,
		Low:    low,
		High:   high,
		FWHM:   xr - xl,
		Counts: excess,
		Good:   true,
	}, true
}

// halfMaximum returns the half-maximum crossings around the peak bin,
// measured above the valley background.
func halfMaximum(h binning.Histogram, peakBin, lv, rv int) (float64, float64) {
	dens := h.Values
	level := math.Max(dens[lv], dens[rv]) + 0.5*(dens[peakBin]-math.Max(dens[lv], dens[rv]))

	xl := h.Edges[lv]
	for k := peakBin; k >= lv; k-- {
		if dens[k] < level {
			xl = crossing(h, k, level, true)
			break
		}
	}

	xr := h.Edges[rv+1]
	for k := peakBin; k <= rv; k++ {
		if dens[k] < level {
			xr = crossing(h, k, level, false)
			break
		}
	}

	return xl, xr
}

// crossing interpolates the level crossing between bin k (below level) and
// its inner neighbour.
func crossing(h binning.Histogram, k int, level float64, left bool) float64 {
	inner := k + 1
	if !left {
		inner = k - 1
	}

	x0, y0 := h.Center(k), h.Values[k]
	x1, y1 := h.Center(inner), h.Values[inner]

	if y1 == y0 {
		return 0.5 * (x0 + x1)
	}

	return x0 + (level-y0)*(x1-x0)/(y1-y0)
}

// binMean returns the mean of the sorted samples in [lo, hi], or the bin
// center when the bin is empty.
func binMean(sorted []float64, lo, hi float64) float64 {
	first := sort.SearchFloat64s(sorted, lo)
	last := sort.Search(len(sorted), func(i int) bool { return sorted[i] > hi })

	if last <= first {
		return 0.5 * (lo + hi)
	}

	return stat.Mean(sorted[first:last], nil)
}
