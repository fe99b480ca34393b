package peak

import "log/slog"

// Config holds the peak-detector tunables.
type Config struct {
	// Min and Max restrict the spectrum range (ADC). Both zero uses the
	// sample extent.
	Min, Max float64

	Prior       float64 // Bayesian-blocks prior
	MinBinWidth float64 // Bayesian-blocks elementary cell width (ADC)

	// ExcludedBins ignores the leading histogram bins (noise near zero).
	ExcludedBins int

	MinPeakCounts float64 // minimum background-corrected counts
	MinHeight     float64 // minimum background-corrected density

	// The first accepted peak must pass stricter limits to suppress the
	// background roll-off at low ADC values.
	FirstPeakMinCounts float64
	FirstPeakMinBinID  int

	// Volatility is the minimum swing of the normalised derivative across a
	// candidate window.
	Volatility float64

	ComptonEdgeThreshold  float64 // left/right peak-to-valley drop ratio
	RangeBeyondPeak       float64 // fit window in units of the half width
	MedianExclusionFactor float64 // cross-group FWHM outlier factor

	Logger *slog.Logger
}

// Option mutates a Config.
type Option func(*Config)

// DefaultConfig returns the detector defaults.
func DefaultConfig() Config {
	return Config{
		Prior:                 8,
		MinBinWidth:           1,
		ExcludedBins:          2,
		MinPeakCounts:         100,
		FirstPeakMinCounts:    200,
		FirstPeakMinBinID:     0,
		Volatility:            0.2,
		ComptonEdgeThreshold:  0.5,
		RangeBeyondPeak:       2.5,
		MedianExclusionFactor: 2.5,
	}
}

// WithRange restricts the analysed ADC range.
func WithRange(min, max float64) Option {
	return func(cfg *Config) {
		if max > min {
			cfg.Min, cfg.Max = min, max
		}
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

// WithMinBinWidth sets the Bayesian-blocks elementary cell width.
func WithMinBinWidth(width float64) Option {
	return func(cfg *Config) {
		if width >= 0 {
			cfg.MinBinWidth = width
		}
	}
}

// WithExcludedBins ignores the first n histogram bins.
func WithExcludedBins(n int) Option {
	return func(cfg *Config) {
		if n >= 0 {
			cfg.ExcludedBins = n
		}
	}
}

// WithMinPeakCounts sets the minimum peak counts.
func WithMinPeakCounts(counts float64) Option {
	return func(cfg *Config) {
		if counts >= 0 {
			cfg.MinPeakCounts = counts
		}
	}
}

// WithMinHeight sets the minimum background-corrected peak density.
func WithMinHeight(height float64) Option {
	return func(cfg *Config) {
		if height >= 0 {
			cfg.MinHeight = height
		}
	}
}

// WithFirstPeak sets the stricter limits for the first peak.
func WithFirstPeak(minCounts float64, minBinID int) Option {
	return func(cfg *Config) {
		if minCounts >= 0 {
			cfg.FirstPeakMinCounts = minCounts
		}
		if minBinID >= 0 {
			cfg.FirstPeakMinBinID = minBinID
		}
	}
}

// WithVolatility sets the minimum derivative swing.
func WithVolatility(v float64) Option {
	return func(cfg *Config) {
		if v >= 0 {
			cfg.Volatility = v
		}
	}
}

// WithComptonEdgeThreshold sets the peak-to-valley ratio below which a
// candidate counts as a Compton edge. Zero disables the check.
func WithComptonEdgeThreshold(ratio float64) Option {
	return func(cfg *Config) {
		if ratio >= 0 {
			cfg.ComptonEdgeThreshold = ratio
		}
	}
}

// WithRangeBeyondPeak sets the half-maximum multiple used to widen fit windows.
func WithRangeBeyondPeak(f float64) Option {
	return func(cfg *Config) {
		if f > 0 {
			cfg.RangeBeyondPeak = f
		}
	}
}

// WithMedianExclusionFactor sets the cross-group FWHM outlier factor.
func WithMedianExclusionFactor(f float64) Option {
	return func(cfg *Config) {
		if f > 0 {
			cfg.MedianExclusionFactor = f
		}
	}
}

// WithLogger sets the logger for rejection diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *Config) {
		cfg.Logger = logger
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
