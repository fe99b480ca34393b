// Package binning turns bags of raw detector samples into histograms.
//
// Three binners share the same contract: samples are added with Add, an
// optional range restricts which samples count, Adapt tightens that range to
// the observed sample extent, and Histogram produces the result.
//
//   - [BayesianBlocks]: globally fitness-optimal variable-width bins found by
//     an O(n²) dynamic program over elementary cells.
//   - [FixedWidth]:     a fixed number of equal-width bins, optionally aligned
//     to integer edges for integer-valued ADC data.
//   - [FixedCounts]:    bins that each hold (at least) a fixed number of samples.
//
// The fitness of a block with N samples and width W is N (ln N - ln W) - p,
// where the prior p penalises each additional block.
package binning
