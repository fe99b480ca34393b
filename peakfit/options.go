package peakfit

import (
	"log/slog"

	"github.com/cwbudde/algo-calib/internal/fit"
)

// Config holds the peak-fitter settings.
type Config struct {
	Descriptor Descriptor

	// BinWidth is the rebinning resolution of the fitted spectrum (ADC).
	BinWidth float64

	// A fit is rejected when its reduced chi-square exceeds
	// MaxReducedChiSquare and its mean fractional residual exceeds
	// MaxMeanResidual.
	MaxReducedChiSquare float64
	MaxMeanResidual     float64

	// EdgeRatio is the minimum ratio of the fitted value at the low window
	// edge to the value at the high edge.
	EdgeRatio float64

	Strategies []fit.Strategy
	Logger     *slog.Logger
}

// Option mutates a Config.
type Option func(*Config)

// DefaultConfig returns the fitter defaults.
func DefaultConfig() Config {
	return Config{
		Descriptor:          DefaultDescriptor(),
		BinWidth:            1,
		MaxReducedChiSquare: 3,
		MaxMeanResidual:     0.25,
		EdgeRatio:           0.8,
		Strategies:          fit.DefaultStrategies,
	}
}

// WithDescriptor selects the peak parametrisation.
func WithDescriptor(d Descriptor) Option {
	return func(cfg *Config) {
		cfg.Descriptor = d
	}
}

// WithBinWidth sets the rebinning resolution.
func WithBinWidth(width float64) Option {
	return func(cfg *Config) {
		if width > 0 {
			cfg.BinWidth = width
		}
	}
}

// WithMaxReducedChiSquare sets the reduced chi-square limit.
func WithMaxReducedChiSquare(limit float64) Option {
	return func(cfg *Config) {
		if limit > 0 {
			cfg.MaxReducedChiSquare = limit
		}
	}
}

// WithMaxMeanResidual sets the mean fractional residual limit.
func WithMaxMeanResidual(limit float64) Option {
	return func(cfg *Config) {
		if limit > 0 {
			cfg.MaxMeanResidual = limit
		}
	}
}

// WithEdgeRatio sets the low/high edge ratio. Zero disables the check.
func WithEdgeRatio(ratio float64) Option {
	return func(cfg *Config) {
		if ratio >= 0 {
			cfg.EdgeRatio = ratio
		}
	}
}

// WithStrategies sets the optimiser fallback chain.
func WithStrategies(strategies ...fit.Strategy) Option {
	return func(cfg *Config) {
		if len(strategies) > 0 {
			cfg.Strategies = append([]fit.Strategy(nil), strategies...)
		}
	}
}

// WithLogger sets the logger for rejected fits.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *Config) {
		cfg.Logger = logger
	}
}

// ApplyOptions applies opts over DefaultConfig.
func ApplyOptions(opts ...Option) Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}
