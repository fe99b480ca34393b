package config

import (
	"fmt"
	"strings"

	"github.com/cwbudde/algo-calib/binning"
	"github.com/cwbudde/algo-calib/internal/fit"
	"github.com/cwbudde/algo-calib/model"
	"github.com/cwbudde/algo-calib/peakfit"
)

// Validate checks s and fills derived defaults.
func Validate(s *Settings) error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
	}

	if s.Histogram.Max < s.Histogram.Min {
		return invalid("histogram.max %v below histogram.min %v", s.Histogram.Max, s.Histogram.Min)
	}
	if p := s.Histogram.Prior; p != nil && *p < 0 {
		return invalid("histogram.prior must be >= 0")
	}
	if w := s.Histogram.MinBinWidth; w != nil && *w <= 0 {
		return invalid("histogram.min_bin_width must be > 0")
	}

	if m := s.Histogram.Mode; m != "" {
		if _, err := binning.ParseMode(m); err != nil {
			return invalid("histogram.mode: %v", err)
		}
	}
	if s.Histogram.Bins < 0 || s.Histogram.CountsPerBin < 0 {
		return invalid("histogram.bins and histogram.counts_per_bin must be >= 0")
	}
	if s.Histogram.EnergyMax < s.Histogram.EnergyMin {
		return invalid("histogram.energy_max below histogram.energy_min")
	}

	if n := s.Peaks.ExcludedBins; n != nil && *n < 0 {
		return invalid("peaks.excluded_bins must be >= 0")
	}

	if _, err := s.Fit.descriptor(); err != nil {
		return invalid("fit: %v", err)
	}
	if _, err := parseStrategies(s.Fit.Strategies); err != nil {
		return invalid("fit.strategies: %v", err)
	}
	if _, err := parseStrategies(s.Model.Strategies); err != nil {
		return invalid("model.strategies: %v", err)
	}

	if m := s.Assign.Mode; m != "" && m != "linear" && m != "linear-zero-crossing" {
		return invalid("assign.mode %q", m)
	}

	if m := s.Model.Method; m != "" {
		if _, ok := model.ParseMethod(strings.ToLower(m)); !ok {
			return invalid("model.method %q", m)
		}
	}
	if f := s.Model.Form; f != "" {
		if _, err := model.ParseForm(f); err != nil {
			return invalid("model.form: %v", err)
		}
	}
	for _, f := range s.Model.Candidates {
		if _, err := model.ParseForm(f); err != nil {
			return invalid("model.candidates: %v", err)
		}
	}

	c := s.Calibrator
	if c.Workers < 0 || c.MergeInterval < 0 || c.MemoryLimitMB < 0 {
		return invalid("calibrator values must be >= 0")
	}
	if c.MemoryHeadroom < 0 || c.MemoryHeadroom >= 1 {
		return invalid("calibrator.memory_headroom must be in [0, 1)")
	}
	if c.TemperatureMax < c.TemperatureMin {
		return invalid("calibrator.temperature_max below temperature_min")
	}

	p := s.Pipeline
	if p.MinInstances < 0 || p.MaxInstances < 0 || p.BacklogThreshold < 0 || p.SampleInterval < 0 {
		return invalid("pipeline values must be >= 0")
	}
	if p.MaxInstances > 0 && p.MinInstances > p.MaxInstances {
		return invalid("pipeline.min_instances above max_instances")
	}
	if (p.HighWatermark != 0 || p.LowWatermark != 0) && p.LowWatermark >= p.HighWatermark {
		return invalid("pipeline.low_watermark must be below high_watermark")
	}

	return nil
}

// descriptor builds the peak descriptor from the set fields.
func (f FitSettings) descriptor() (peakfit.Descriptor, error) {
	var parts []string
	for _, kv := range [][2]string{
		{"method", f.Method},
		{"shape", f.Shape},
		{"background", f.Background},
		{"energyloss", f.EnergyLoss},
	} {
		if kv[1] != "" {
			parts = append(parts, kv[0]+"="+kv[1])
		}
	}
	return peakfit.ParseDescriptor(strings.Join(parts, " "))
}

func parseStrategies(names []string) ([]fit.Strategy, error) {
	out := make([]fit.Strategy, 0, len(names))
	for _, n := range names {
		st, ok := fit.ParseStrategy(strings.ToLower(n))
		if !ok {
			return nil, fmt.Errorf("unknown strategy %q", n)
		}
		out = append(out, st)
	}
	return out, nil
}
