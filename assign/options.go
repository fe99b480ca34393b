package assign

import "log/slog"

// Mode selects the assignment algorithm.
type Mode int

const (
	// ModeLinearZeroCrossing assumes energy proportional to ADC and
	// searches the global scale factor.
	ModeLinearZeroCrossing Mode = iota
)

func (m Mode) String() string {
	if m == ModeLinearZeroCrossing {
		return "linear-zero-crossing"
	}
	return "unknown"
}

// DefaultQualityConstant weights the preference for strong, high-energy
// lines against the energy mismatch.
const DefaultQualityConstant = 1e-3

// Config holds the assigner settings.
type Config struct {
	QualityConstant float64
	Mode            Mode
	Logger          *slog.Logger
}

// Option mutates a Config.
type Option func(*Config)

// DefaultConfig returns the assigner defaults.
func DefaultConfig() Config {
	return Config{
		QualityConstant: DefaultQualityConstant,
		Mode:            ModeLinearZeroCrossing,
	}
}

// WithQualityConstant sets the line-strength weight.
func WithQualityConstant(c float64) Option {
	return func(cfg *Config) {
		if c >= 0 {
			cfg.QualityConstant = c
		}
	}
}

// WithMode selects the assignment mode.
func WithMode(m Mode) Option {
	return func(cfg *Config) {
		cfg.Mode = m
	}
}

// WithLogger sets the logger.
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
