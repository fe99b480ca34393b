package binning

import "math"

// minCells is the smallest number of elementary cells the dynamic program
// runs on; fewer yield a single bin.
const minCells = 5

// BayesianBlocks produces the variable-width histogram maximising the
// global block fitness.
type BayesianBlocks struct {
	samples
	optimum float64
}

// NewBayesianBlocks returns a Bayesian-blocks binner.
func NewBayesianBlocks(opts ...Option) *BayesianBlocks {
	return &BayesianBlocks{samples: samples{cfg: ApplyOptions(opts...)}}
}

// Optimum returns the fitness of the partition found by the last call to
// Histogram, before any post-merging of thin or sparse bins.
func (b *BayesianBlocks) Optimum() float64 {
	return b.optimum
}

// Histogram runs the dynamic program and returns the optimal binning.
func (b *BayesianBlocks) Histogram() (Histogram, error) {
	lo, hi, in, err := b.bounds()
	if err != nil {
		return Histogram{}, err
	}

	cells := b.cells(lo, hi, in)
	counts := countInto(cells, in)

	if len(counts) < minCells {
		b.optimum = blockFitness(float64(len(in)), hi-lo, b.cfg.Prior)
		return b.finish([]float64{lo, hi}, []float64{float64(len(in))}), nil
	}

	changes, optimum := segment(cells, counts, b.cfg.Prior)
	b.optimum = optimum

	edges := make([]float64, 0, len(changes)+1)
	blockCounts := make([]float64, 0, len(changes))
	for i, c := range changes {
		edges = append(edges, cells[c])

		end := len(counts)
		if i+1 < len(changes) {
			end = changes[i+1]
		}

		n := 0.0
		for _, v := range counts[c:end] {
			n += v
		}
		blockCounts = append(blockCounts, n)
	}
	edges = append(edges, hi)

	edges, blockCounts = mergeThin(edges, blockCounts, b.cfg.MinBinWidth)
	edges, blockCounts = mergeSparse(edges, blockCounts, b.cfg.MinCounts)

	return b.finish(edges, blockCounts), nil
}

// cells returns the elementary cell edges over [lo, hi]. With a positive
// minimum width the cells are equal-width (the last one may be thinner);
// otherwise cell boundaries lie midway between distinct sample values.
func (b *BayesianBlocks) cells(lo, hi float64, sorted []float64) []float64 {
	width := b.cfg.MinBinWidth
	maxCells := b.cfg.MaxCells

	if width <= 0 {
		edges := []float64{lo}
		for i := 1; i < len(sorted); i++ {
			if sorted[i] > sorted[i-1] {
				edges = append(edges, 0.5*(sorted[i]+sorted[i-1]))
			}
		}
		edges = append(edges, hi)

		if maxCells > 0 && len(edges)-1 > maxCells {
			width = (hi - lo) / float64(maxCells)
		} else {
			return edges
		}
	}

	if maxCells > 0 && (hi-lo)/width > float64(maxCells) {
		width = (hi - lo) / float64(maxCells)
	}

	n := int(math.Ceil((hi-lo)/width - 1e-9))
	if n < 1 {
		n = 1
	}

	edges := make([]float64, 0, n+1)
	for i := range n {
		edges = append(edges, lo+float64(i)*width)
	}
	edges = append(edges, hi)

	return edges
}

// segment is the O(n²) dynamic program. It returns the indices of the
// cells that start a block and the optimal total fitness.
func segment(edges, counts []float64, prior float64) ([]int, float64) {
	n := len(counts)

	cum := make([]float64, n+1)
	for i, c := range counts {
		cum[i+1] = cum[i] + c
	}

	best := make([]float64, n)
	last := make([]int, n)

	for s := range n {
		bestFit := math.Inf(-1)
		bestStart := 0

		for r := 0; r <= s; r++ {
			f := blockFitness(cum[s+1]-cum[r], edges[s+1]-edges[r], prior)
			if r > 0 {
				f += best[r-1]
			}

			if f > bestFit {
				bestFit = f
				bestStart = r
			}
		}

		best[s] = bestFit
		last[s] = bestStart
	}

	var changes []int
	for idx := n; idx > 0; idx = last[idx-1] {
		changes = append(changes, last[idx-1])
	}

	for i, j := 0, len(changes)-1; i < j; i, j = i+1, j-1 {
		changes[i], changes[j] = changes[j], changes[i]
	}

	return changes, best[n-1]
}

// mergeThin folds bins narrower than width into a neighbour: the last bin
// goes into its left neighbour, any other bin absorbs its right neighbour
// and is measured again.
func mergeThin(edges, counts []float64, width float64) ([]float64, []float64) {
	if width <= 0 {
		return edges, counts
	}

	limit := width * (1 - 1e-9)

	for i := 0; i < len(counts) && len(counts) > 1; {
		if edges[i+1]-edges[i] >= limit {
			i++
			continue
		}

		if i == len(counts)-1 {
			counts[i-1] += counts[i]
			edges = append(edges[:i], edges[i+1:]...)
			counts = counts[:i]
			break
		}

		counts[i] += counts[i+1]
		edges = append(edges[:i+1], edges[i+2:]...)
		counts = append(counts[:i+1], counts[i+2:]...)
	}

	return edges, counts
}

// mergeSparse merges bins with fewer than minCounts samples forward; a
// sparse last bin is merged into its left neighbour.
func mergeSparse(edges, counts []float64, minCounts float64) ([]float64, []float64) {
	if minCounts <= 0 {
		return edges, counts
	}

	for i := 0; i < len(counts) && len(counts) > 1; {
		if counts[i] >= minCounts {
			i++
			continue
		}

		if i == len(counts)-1 {
			counts[i-1] += counts[i]
			edges = append(edges[:i], edges[i+1:]...)
			counts = counts[:i]
			break
		}

		counts[i] += counts[i+1]
		edges = append(edges[:i+1], edges[i+2:]...)
		counts = append(counts[:i+1], counts[i+2:]...)
	}

	return edges, counts
}
