// Package config loads the YAML settings of the calibration tools and
// turns them into the option sets of the library packages.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is returned for settings that fail validation.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// Settings is the complete settings file.
type Settings struct {
	Histogram  HistogramSettings  `yaml:"histogram"`
	Peaks      PeakSettings       `yaml:"peaks"`
	Fit        FitSettings        `yaml:"fit"`
	Assign     AssignSettings     `yaml:"assign"`
	Model      ModelSettings      `yaml:"model"`
	Calibrator CalibratorSettings `yaml:"calibrator"`
	Pipeline   PipelineSettings   `yaml:"pipeline"`
}

// HistogramSettings controls the segmentation of channel spectra. Min,
// Max, Prior and MinBinWidth apply to peak finding, which always segments
// with Bayesian Blocks. Mode, Bins, CountsPerBin and the energy range
// select the binner of accumulated energy spectra; Prior and MinBinWidth
// also apply there in bayesian mode.
type HistogramSettings struct {
	Min         float64  `yaml:"min"`
	Max         float64  `yaml:"max"`
	Prior       *float64 `yaml:"prior"`
	MinBinWidth *float64 `yaml:"min_bin_width"`

	Mode         string  `yaml:"mode"`
	Bins         int     `yaml:"bins"`
	CountsPerBin int     `yaml:"counts_per_bin"`
	EnergyMin    float64 `yaml:"energy_min"`
	EnergyMax    float64 `yaml:"energy_max"`
}

// PeakSettings holds the peak-detection thresholds. Unset values keep the
// detector defaults.
type PeakSettings struct {
	ExcludedBins          *int     `yaml:"excluded_bins"`
	MinCounts             *float64 `yaml:"min_counts"`
	MinHeight             *float64 `yaml:"min_height"`
	FirstPeakMinCounts    *float64 `yaml:"first_peak_min_counts"`
	FirstPeakMinBin       *int     `yaml:"first_peak_min_bin"`
	Volatility            *float64 `yaml:"volatility"`
	ComptonEdgeThreshold  *float64 `yaml:"compton_edge_threshold"`
	RangeBeyondPeak       *float64 `yaml:"range_beyond_peak"`
	MedianExclusionFactor *float64 `yaml:"median_exclusion_factor"`
}

// FitSettings selects the peak parametrisation.
type FitSettings struct {
	Method              string   `yaml:"method"`      // block, fit
	Shape               string   `yaml:"shape"`       // gauss, gausslandau
	Background          string   `yaml:"background"`  // none, flat, linear
	EnergyLoss          string   `yaml:"energy_loss"` // none, gaussdelta, gaussdeltaexp
	BinWidth            float64  `yaml:"bin_width"`
	MaxReducedChiSquare float64  `yaml:"max_reduced_chi_square"`
	MaxMeanResidual     float64  `yaml:"max_mean_residual"`
	EdgeRatio           float64  `yaml:"edge_ratio"`
	Strategies          []string `yaml:"strategies"` // bfgs, neldermead, lm
}

// AssignSettings controls the energy assignment.
type AssignSettings struct {
	Mode            string  `yaml:"mode"`
	QualityConstant float64 `yaml:"quality_constant"`
}

// ModelSettings controls the calibration-model determination.
type ModelSettings struct {
	Method     string   `yaml:"method"` // stepwise, fixed, best
	Form       string   `yaml:"form"`
	Candidates []string `yaml:"candidates"`
	Strategies []string `yaml:"strategies"`
}

// CalibratorSettings controls loading and the worker pool.
type CalibratorSettings struct {
	Workers        int     `yaml:"workers"`
	MergeInterval  int     `yaml:"merge_interval"`
	MemoryLimitMB  int64   `yaml:"memory_limit_mb"`
	MemoryHeadroom float64 `yaml:"memory_headroom"`
	TemperatureMin float64 `yaml:"temperature_min"`
	TemperatureMax float64 `yaml:"temperature_max"`
}

// PipelineSettings controls the stage supervisor.
type PipelineSettings struct {
	MinInstances     int           `yaml:"min_instances"`
	MaxInstances     int           `yaml:"max_instances"`
	BacklogThreshold int           `yaml:"backlog_threshold"`
	HighWatermark    int           `yaml:"high_watermark"`
	LowWatermark     int           `yaml:"low_watermark"`
	SampleInterval   time.Duration `yaml:"sample_interval"`
}

// Load reads, parses and validates a settings file.
func Load(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	return Parse(data)
}

// Parse parses and validates YAML settings. Unknown keys are rejected.
func Parse(data []byte) (*Settings, error) {
	var s Settings

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(&s); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	if err := Validate(&s); err != nil {
		return nil, err
	}

	return &s, nil
}
