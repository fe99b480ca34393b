package model

import (
	"log/slog"

	"github.com/cwbudde/algo-calib/internal/fit"
)

// Method selects how a model is determined.
type Method int

const (
	// MethodStepWise uses the assigned points themselves as the model.
	MethodStepWise Method = iota
	// MethodFixed fits the one configured form.
	MethodFixed
	// MethodBest fits every candidate form and keeps the lowest quality.
	MethodBest
)

func (m Method) String() string {
	switch m {
	case MethodStepWise:
		return "stepwise"
	case MethodFixed:
		return "fixed"
	case MethodBest:
		return "best"
	default:
		return "unknown"
	}
}

// ParseMethod parses the String form of a method.
func ParseMethod(s string) (Method, bool) {
	for _, m := range []Method{MethodStepWise, MethodFixed, MethodBest} {
		if m.String() == s {
			return m, true
		}
	}
	return 0, false
}

// Config holds the model-fitter settings.
type Config struct {
	Method     Method
	Form       Form   // used by MethodFixed
	Candidates []Form // used by MethodBest; empty means every form
	Strategies []fit.Strategy
	Logger     *slog.Logger
}

// Option mutates a Config.
type Option func(*Config)

// DefaultConfig returns the fitter defaults.
func DefaultConfig() Config {
	return Config{
		Method:     MethodBest,
		Form:       Poly2,
		Strategies: fit.DefaultStrategies,
	}
}

// WithMethod sets the determination method.
func WithMethod(m Method) Option {
	return func(cfg *Config) {
		cfg.Method = m
	}
}

// WithForm selects MethodFixed with form f.
func WithForm(f Form) Option {
	return func(cfg *Config) {
		cfg.Method = MethodFixed
		cfg.Form = f
	}
}

// WithCandidates restricts the forms tried by MethodBest.
func WithCandidates(forms ...Form) Option {
	return func(cfg *Config) {
		cfg.Candidates = append([]Form(nil), forms...)
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
