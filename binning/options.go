package binning

// Config holds the settings shared by all binners. Fields that a binner
// does not use are ignored.
type Config struct {
	// Min and Max restrict the samples taken into account. When both are
	// zero the observed sample extent is used.
	Min, Max float64
	// Adapt tightens [Min, Max] to the extent of the samples inside it.
	Adapt bool
	// Normalize divides every bin by its width.
	Normalize bool

	// Prior is the Bayesian-blocks complexity penalty per block.
	Prior float64
	// MinBinWidth is the width of the elementary cells of the Bayesian-blocks
	// dynamic program and the minimum width of any emitted bin.
	MinBinWidth float64
	// MinCounts merges Bayesian-blocks bins holding fewer samples forward.
	MinCounts float64
	// MaxCells bounds the number of elementary cells; the cell width grows
	// when the range would need more.
	MaxCells int

	// Bins is the number of equal-width bins of FixedWidth.
	Bins int
	// IntegerAlignment snaps FixedWidth edges onto integers.
	IntegerAlignment bool

	// CountsPerBin is the capacity of one FixedCounts bin.
	CountsPerBin int
}

// Option mutates a Config.
type Option func(*Config)

// DefaultConfig returns the defaults used by all binners.
func DefaultConfig() Config {
	return Config{
		Prior:        20,
		MinBinWidth:  1,
		MaxCells:     4096,
		Bins:         100,
		CountsPerBin: 100,
	}
}

// WithRange restricts the binned samples to [min, max]. The max edge is
// inclusive. Calling it with min > max is recorded and reported by
// Histogram as ErrInvalidRange.
func WithRange(min, max float64) Option {
	return func(cfg *Config) {
		cfg.Min = min
		cfg.Max = max
	}
}

// WithAdapt tightens the range to the observed sample extent.
func WithAdapt() Option {
	return func(cfg *Config) {
		cfg.Adapt = true
	}
}

// WithNormalize makes Histogram return counts per unit width.
func WithNormalize() Option {
	return func(cfg *Config) {
		cfg.Normalize = true
	}
}

// WithPrior sets the Bayesian-blocks prior.
func WithPrior(prior float64) Option {
	return func(cfg *Config) {
		if prior >= 0 {
			cfg.Prior = prior
		}
	}
}

// WithMinBinWidth sets the elementary cell width. Zero builds one cell per
// distinct sample value.
func WithMinBinWidth(width float64) Option {
	return func(cfg *Config) {
		if width >= 0 {
			cfg.MinBinWidth = width
		}
	}
}

// WithMinCounts sets the minimum number of samples per Bayesian-blocks bin.
func WithMinCounts(counts float64) Option {
	return func(cfg *Config) {
		if counts >= 0 {
			cfg.MinCounts = counts
		}
	}
}

// WithMaxCells bounds the size of the dynamic program.
func WithMaxCells(cells int) Option {
	return func(cfg *Config) {
		if cells >= 5 {
			cfg.MaxCells = cells
		}
	}
}

// WithBins sets the number of FixedWidth bins.
func WithBins(bins int) Option {
	return func(cfg *Config) {
		if bins > 0 {
			cfg.Bins = bins
		}
	}
}

// WithIntegerAlignment snaps FixedWidth edges onto integer values.
func WithIntegerAlignment() Option {
	return func(cfg *Config) {
		cfg.IntegerAlignment = true
	}
}

// WithCountsPerBin sets the FixedCounts bin capacity.
func WithCountsPerBin(counts int) Option {
	return func(cfg *Config) {
		if counts > 0 {
			cfg.CountsPerBin = counts
		}
	}
}

// ApplyOptions applies zero or more options to the default config.
func ApplyOptions(opts ...Option) Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}
