package calibrate

import (
	"log/slog"

	"github.com/cwbudde/algo-calib/assign"
	"github.com/cwbudde/algo-calib/internal/cpu"
	"github.com/cwbudde/algo-calib/model"
	"github.com/cwbudde/algo-calib/peak"
	"github.com/cwbudde/algo-calib/peakfit"
)

// DefaultMergeInterval is the number of records a loading worker buffers
// before merging them into the shared collections.
const DefaultMergeInterval = 10000

// Progress reports the advance of a long-running operation.
type Progress struct {
	Stage string // "load" or "calibrate"
	Done  int
	Total int
}

// Config holds the calibrator settings.
type Config struct {
	// Workers is the size of the loading and calibration pools.
	Workers int

	MergeInterval int

	// MemoryLimit is the soft heap ceiling for loading in bytes; zero
	// follows the runtime memory limit. MemoryHeadroom is the fraction
	// kept free.
	MemoryLimit    int64
	MemoryHeadroom float64

	// Records with a temperature outside [TemperatureMin, TemperatureMax]
	// are skipped. The window is disabled unless TemperatureMax >
	// TemperatureMin.
	TemperatureMin float64
	TemperatureMax float64

	Detector []peak.Option
	Fitter   []peakfit.Option
	Assigner []assign.Option
	Model    []model.Option

	Progress func(Progress)
	Logger   *slog.Logger
}

// Option mutates a Config.
type Option func(*Config)

// DefaultConfig returns the calibrator defaults.
func DefaultConfig() Config {
	return Config{
		Workers:        cpu.Concurrency(),
		MergeInterval:  DefaultMergeInterval,
		MemoryHeadroom: 0.1,
	}
}

// WithWorkers sets the worker-pool size.
func WithWorkers(n int) Option {
	return func(cfg *Config) {
		if n > 0 {
			cfg.Workers = n
		}
	}
}

// WithMergeInterval sets the per-worker merge interval in records.
func WithMergeInterval(n int) Option {
	return func(cfg *Config) {
		if n > 0 {
			cfg.MergeInterval = n
		}
	}
}

// WithMemoryBudget sets the loading memory ceiling and headroom.
func WithMemoryBudget(limit int64, headroom float64) Option {
	return func(cfg *Config) {
		cfg.MemoryLimit = limit
		if headroom >= 0 && headroom < 1 {
			cfg.MemoryHeadroom = headroom
		}
	}
}

// WithTemperatureWindow keeps only records with a temperature in [min, max].
func WithTemperatureWindow(min, max float64) Option {
	return func(cfg *Config) {
		cfg.TemperatureMin, cfg.TemperatureMax = min, max
	}
}

// WithDetectorOptions appends peak-detector options.
func WithDetectorOptions(opts ...peak.Option) Option {
	return func(cfg *Config) {
		cfg.Detector = append(cfg.Detector, opts...)
	}
}

// WithFitterOptions appends peak-fitter options.
func WithFitterOptions(opts ...peakfit.Option) Option {
	return func(cfg *Config) {
		cfg.Fitter = append(cfg.Fitter, opts...)
	}
}

// WithAssignerOptions appends energy-assigner options.
func WithAssignerOptions(opts ...assign.Option) Option {
	return func(cfg *Config) {
		cfg.Assigner = append(cfg.Assigner, opts...)
	}
}

// WithModelOptions appends model-fitter options.
func WithModelOptions(opts ...model.Option) Option {
	return func(cfg *Config) {
		cfg.Model = append(cfg.Model, opts...)
	}
}

// WithProgress sets the progress callback. It is called from worker
// goroutines and must be safe for concurrent use.
func WithProgress(fn func(Progress)) Option {
	return func(cfg *Config) {
		cfg.Progress = fn
	}
}

// WithLogger sets the logger for the calibrator and its stages.
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
