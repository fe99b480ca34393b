package pipeline

import (
	"log/slog"
	"time"

	"github.com/cwbudde/algo-calib/internal/cpu"
)

// Config holds the supervisor settings.
type Config struct {
	// MinInstances is the number of instances a concurrent stage starts
	// with; MaxInstances bounds them.
	MinInstances int
	MaxInstances int

	// BacklogThreshold is the input-queue length from which a concurrent
	// stage gets another instance.
	BacklogThreshold int

	// The generator is paused while any queue holds more than
	// HighWatermark events and resumed once all hold at most LowWatermark.
	HighWatermark int
	LowWatermark  int

	// SampleInterval is the queue-depth sampling period.
	SampleInterval time.Duration

	Logger *slog.Logger
}

// Option mutates a Config.
type Option func(*Config)

// DefaultConfig returns the supervisor defaults.
func DefaultConfig() Config {
	return Config{
		MinInstances:     1,
		MaxInstances:     cpu.ElasticLimit(),
		BacklogThreshold: 64,
		HighWatermark:    8192,
		LowWatermark:     1024,
		SampleInterval:   5 * time.Millisecond,
	}
}

// WithMinInstances sets the starting instance count of concurrent stages.
func WithMinInstances(n int) Option {
	return func(cfg *Config) {
		if n > 0 {
			cfg.MinInstances = n
		}
	}
}

// WithMaxInstances sets the per-stage instance limit.
func WithMaxInstances(n int) Option {
	return func(cfg *Config) {
		if n > 0 {
			cfg.MaxInstances = n
		}
	}
}

// WithBacklogThreshold sets the queue length that triggers a new instance.
func WithBacklogThreshold(n int) Option {
	return func(cfg *Config) {
		if n > 0 {
			cfg.BacklogThreshold = n
		}
	}
}

// WithWatermarks sets the generator throttling bounds. It is ignored
// unless 0 <= low < high.
func WithWatermarks(high, low int) Option {
	return func(cfg *Config) {
		if low >= 0 && low < high {
			cfg.HighWatermark, cfg.LowWatermark = high, low
		}
	}
}

// WithSampleInterval sets the queue sampling period.
func WithSampleInterval(d time.Duration) Option {
	return func(cfg *Config) {
		if d > 0 {
			cfg.SampleInterval = d
		}
	}
}

// WithLogger sets the supervisor logger.
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
