package config

import (
	"log/slog"
	"strings"

	"github.com/cwbudde/algo-calib/assign"
	"github.com/cwbudde/algo-calib/binning"
	"github.com/cwbudde/algo-calib/calibrate"
	"github.com/cwbudde/algo-calib/model"
	"github.com/cwbudde/algo-calib/peak"
	"github.com/cwbudde/algo-calib/peakfit"
	"github.com/cwbudde/algo-calib/pipeline"
)

// The conversions below assume validated settings and skip values that
// fail to parse.

// DetectorOptions returns the peak-detector options.
func (s *Settings) DetectorOptions() []peak.Option {
	var opts []peak.Option

	h := s.Histogram
	if h.Min != 0 || h.Max != 0 {
		opts = append(opts, peak.WithRange(h.Min, h.Max))
	}
	if h.Prior != nil {
		opts = append(opts, peak.WithPrior(*h.Prior))
	}
	if h.MinBinWidth != nil {
		opts = append(opts, peak.WithMinBinWidth(*h.MinBinWidth))
	}

	p := s.Peaks
	if p.ExcludedBins != nil {
		opts = append(opts, peak.WithExcludedBins(*p.ExcludedBins))
	}
	if p.MinCounts != nil {
		opts = append(opts, peak.WithMinPeakCounts(*p.MinCounts))
	}
	if p.MinHeight != nil {
		opts = append(opts, peak.WithMinHeight(*p.MinHeight))
	}
	if p.FirstPeakMinCounts != nil || p.FirstPeakMinBin != nil {
		def := peak.DefaultConfig()
		counts, bin := def.FirstPeakMinCounts, def.FirstPeakMinBinID
		if p.FirstPeakMinCounts != nil {
			counts = *p.FirstPeakMinCounts
		}
		if p.FirstPeakMinBin != nil {
			bin = *p.FirstPeakMinBin
		}
		opts = append(opts, peak.WithFirstPeak(counts, bin))
	}
	if p.Volatility != nil {
		opts = append(opts, peak.WithVolatility(*p.Volatility))
	}
	if p.ComptonEdgeThreshold != nil {
		opts = append(opts, peak.WithComptonEdgeThreshold(*p.ComptonEdgeThreshold))
	}
	if p.RangeBeyondPeak != nil {
		opts = append(opts, peak.WithRangeBeyondPeak(*p.RangeBeyondPeak))
	}
	if p.MedianExclusionFactor != nil {
		opts = append(opts, peak.WithMedianExclusionFactor(*p.MedianExclusionFactor))
	}

	return opts
}

// SpectraOptions returns the binning mode and options of accumulated
// energy spectra. The default is 3000 fixed-width bins over [0, 3000] keV.
func (s *Settings) SpectraOptions() (binning.Mode, []binning.Option) {
	h := s.Histogram

	mode := binning.ModeFixedWidth
	if h.Mode != "" {
		if m, err := binning.ParseMode(h.Mode); err == nil {
			mode = m
		}
	}

	lo, hi := 0.0, 3000.0
	if h.EnergyMin != 0 || h.EnergyMax != 0 {
		lo, hi = h.EnergyMin, h.EnergyMax
	}

	bins := 3000
	if h.Bins > 0 {
		bins = h.Bins
	}

	opts := []binning.Option{binning.WithRange(lo, hi), binning.WithBins(bins)}
	if h.CountsPerBin > 0 {
		opts = append(opts, binning.WithCountsPerBin(h.CountsPerBin))
	}
	if h.Prior != nil {
		opts = append(opts, binning.WithPrior(*h.Prior))
	}
	if h.MinBinWidth != nil {
		opts = append(opts, binning.WithMinBinWidth(*h.MinBinWidth))
	}

	return mode, opts
}

// FitterOptions returns the peak-fitter options.
func (s *Settings) FitterOptions() []peakfit.Option {
	f := s.Fit

	var opts []peakfit.Option
	if d, err := f.descriptor(); err == nil {
		opts = append(opts, peakfit.WithDescriptor(d))
	}
	if f.BinWidth != 0 {
		opts = append(opts, peakfit.WithBinWidth(f.BinWidth))
	}
	if f.MaxReducedChiSquare != 0 {
		opts = append(opts, peakfit.WithMaxReducedChiSquare(f.MaxReducedChiSquare))
	}
	if f.MaxMeanResidual != 0 {
		opts = append(opts, peakfit.WithMaxMeanResidual(f.MaxMeanResidual))
	}
	if f.EdgeRatio != 0 {
		opts = append(opts, peakfit.WithEdgeRatio(f.EdgeRatio))
	}
	if st, err := parseStrategies(f.Strategies); err == nil && len(st) > 0 {
		opts = append(opts, peakfit.WithStrategies(st...))
	}

	return opts
}

// AssignerOptions returns the energy-assigner options.
func (s *Settings) AssignerOptions() []assign.Option {
	opts := []assign.Option{assign.WithMode(assign.ModeLinearZeroCrossing)}
	if q := s.Assign.QualityConstant; q != 0 {
		opts = append(opts, assign.WithQualityConstant(q))
	}
	return opts
}

// ModelOptions returns the model-fitter options. A form without a method
// selects the fixed method.
func (s *Settings) ModelOptions() []model.Option {
	m := s.Model

	var opts []model.Option
	if m.Form != "" {
		if f, err := model.ParseForm(m.Form); err == nil {
			opts = append(opts, model.WithForm(f))
		}
	}
	if m.Method != "" {
		if method, ok := model.ParseMethod(strings.ToLower(m.Method)); ok {
			opts = append(opts, model.WithMethod(method))
		}
	}

	var candidates []model.Form
	for _, c := range m.Candidates {
		if f, err := model.ParseForm(c); err == nil {
			candidates = append(candidates, f)
		}
	}
	if len(candidates) > 0 {
		opts = append(opts, model.WithCandidates(candidates...))
	}

	if st, err := parseStrategies(m.Strategies); err == nil && len(st) > 0 {
		opts = append(opts, model.WithStrategies(st...))
	}

	return opts
}

// CalibratorOptions returns the calibrator options including the options
// of every stage it runs.
func (s *Settings) CalibratorOptions(logger *slog.Logger) []calibrate.Option {
	c := s.Calibrator

	opts := []calibrate.Option{
		calibrate.WithDetectorOptions(s.DetectorOptions()...),
		calibrate.WithFitterOptions(s.FitterOptions()...),
		calibrate.WithAssignerOptions(s.AssignerOptions()...),
		calibrate.WithModelOptions(s.ModelOptions()...),
		calibrate.WithLogger(logger),
	}

	if c.Workers > 0 {
		opts = append(opts, calibrate.WithWorkers(c.Workers))
	}
	if c.MergeInterval > 0 {
		opts = append(opts, calibrate.WithMergeInterval(c.MergeInterval))
	}
	if c.MemoryLimitMB > 0 || c.MemoryHeadroom > 0 {
		headroom := c.MemoryHeadroom
		if headroom == 0 {
			headroom = calibrate.DefaultConfig().MemoryHeadroom
		}
		opts = append(opts, calibrate.WithMemoryBudget(c.MemoryLimitMB<<20, headroom))
	}
	if c.TemperatureMax > c.TemperatureMin {
		opts = append(opts, calibrate.WithTemperatureWindow(c.TemperatureMin, c.TemperatureMax))
	}

	return opts
}

// SupervisorOptions returns the pipeline supervisor options.
func (s *Settings) SupervisorOptions(logger *slog.Logger) []pipeline.Option {
	p := s.Pipeline

	opts := []pipeline.Option{pipeline.WithLogger(logger)}

	if p.MinInstances > 0 {
		opts = append(opts, pipeline.WithMinInstances(p.MinInstances))
	}
	if p.MaxInstances > 0 {
		opts = append(opts, pipeline.WithMaxInstances(p.MaxInstances))
	}
	if p.BacklogThreshold > 0 {
		opts = append(opts, pipeline.WithBacklogThreshold(p.BacklogThreshold))
	}
	if p.HighWatermark > 0 {
		opts = append(opts, pipeline.WithWatermarks(p.HighWatermark, p.LowWatermark))
	}
	if p.SampleInterval > 0 {
		opts = append(opts, pipeline.WithSampleInterval(p.SampleInterval))
	}

	return opts
}
