package config

import (
	"errors"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/cwbudde/algo-calib/assign"
	"github.com/cwbudde/algo-calib/binning"
	"github.com/cwbudde/algo-calib/calibrate"
	"github.com/cwbudde/algo-calib/internal/fit"
	"github.com/cwbudde/algo-calib/model"
	"github.com/cwbudde/algo-calib/peak"
	"github.com/cwbudde/algo-calib/peakfit"
	"github.com/cwbudde/algo-calib/pipeline"
)

func TestLoadSettingsFile(t *testing.T) {
	t.Parallel()

	s, err := Load(filepath.Join("testdata", "settings.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	det := peak.ApplyOptions(s.DetectorOptions()...)
	if det.Min != 0 || det.Max != 4096 || det.Prior != 12 || det.MinBinWidth != 2 {
		t.Fatalf("detector range/binning = %+v", det)
	}
	if det.ExcludedBins != 0 || det.MinPeakCounts != 150 || det.FirstPeakMinCounts != 400 || det.ComptonEdgeThreshold != 0.4 {
		t.Fatalf("detector thresholds = %+v", det)
	}
	if det.Volatility != peak.DefaultConfig().Volatility {
		t.Fatalf("unset volatility changed: %v", det.Volatility)
	}

	mode, spectraOpts := s.SpectraOptions()
	sb := binning.ApplyOptions(spectraOpts...)
	if mode != binning.ModeFixedCounts || sb.CountsPerBin != 50 || sb.Min != 10 || sb.Max != 2000 || sb.Prior != 12 {
		t.Fatalf("spectra = %v %+v", mode, sb)
	}

	pf := peakfit.ApplyOptions(s.FitterOptions()...)
	want := peakfit.Descriptor{Method: peakfit.FittedPeak, Shape: peakfit.GaussLandau, Background: peakfit.FlatBackground}
	if pf.Descriptor != want {
		t.Fatalf("descriptor = %v", pf.Descriptor)
	}
	if pf.MaxReducedChiSquare != 5 || !reflect.DeepEqual(pf.Strategies, []fit.Strategy{fit.LevenbergMarquardt, fit.BFGS}) {
		t.Fatalf("fitter = %+v", pf)
	}

	if a := assign.ApplyOptions(s.AssignerOptions()...); a.QualityConstant != 0.002 {
		t.Fatalf("assigner = %+v", a)
	}

	m := model.ApplyOptions(s.ModelOptions()...)
	if m.Method != model.MethodBest || !reflect.DeepEqual(m.Candidates, []model.Form{model.Poly1, model.Poly2, model.Poly1Exp1}) {
		t.Fatalf("model = %+v", m)
	}

	c := calibrate.ApplyOptions(s.CalibratorOptions(nil)...)
	if c.Workers != 3 || c.MergeInterval != 2000 || c.MemoryLimit != 512<<20 {
		t.Fatalf("calibrator = %+v", c)
	}
	if c.TemperatureMin != 15 || c.TemperatureMax != 35 || len(c.Detector) == 0 || len(c.Model) == 0 {
		t.Fatalf("calibrator = %+v", c)
	}

	p := pipeline.ApplyOptions(s.SupervisorOptions(nil)...)
	if p.MaxInstances != 6 || p.BacklogThreshold != 32 || p.HighWatermark != 4096 || p.LowWatermark != 512 || p.SampleInterval != 20*time.Millisecond {
		t.Fatalf("supervisor = %+v", p)
	}
}

func TestEmptySettingsKeepDefaults(t *testing.T) {
	t.Parallel()

	s, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if got := peak.ApplyOptions(s.DetectorOptions()...); !reflect.DeepEqual(got, peak.DefaultConfig()) {
		t.Fatalf("detector = %+v", got)
	}
	if got := model.ApplyOptions(s.ModelOptions()...); got.Method != model.MethodBest {
		t.Fatalf("model method = %v", got.Method)
	}
	if got := peakfit.ApplyOptions(s.FitterOptions()...); got.Descriptor != peakfit.DefaultDescriptor() {
		t.Fatalf("descriptor = %v", got.Descriptor)
	}
}

func TestSpectraOptionsDefault(t *testing.T) {
	t.Parallel()

	s, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	mode, opts := s.SpectraOptions()
	cfg := binning.ApplyOptions(opts...)
	if mode != binning.ModeFixedWidth || cfg.Min != 0 || cfg.Max != 3000 || cfg.Bins != 3000 {
		t.Fatalf("spectra = %v %+v", mode, cfg)
	}
}

func TestFormSelectsFixedMethod(t *testing.T) {
	t.Parallel()

	s, err := Parse([]byte("model:\n  form: poly3\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	m := model.ApplyOptions(s.ModelOptions()...)
	if m.Method != model.MethodFixed || m.Form != model.Poly3 {
		t.Fatalf("model = %+v", m)
	}
}

func TestParseRejectsInvalidSettings(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"unknown key":       "histogram:\n  buckets: 3\n",
		"bad binning mode":  "histogram:\n  mode: variable\n",
		"negative bins":     "histogram:\n  bins: -3\n",
		"inverted energies": "histogram:\n  energy_min: 100\n  energy_max: 10\n",
		"inverted range":    "histogram:\n  min: 10\n  max: 1\n",
		"bad cell width":    "histogram:\n  min_bin_width: 0\n",
		"negative excluded": "peaks:\n  excluded_bins: -1\n",
		"bad shape":         "fit:\n  shape: lorentz\n",
		"bad strategy":      "fit:\n  strategies: [newton]\n",
		"bad assign mode":   "assign:\n  mode: quadratic\n",
		"bad method":        "model:\n  method: magic\n",
		"bad form":          "model:\n  form: poly9\n",
		"bad candidate":     "model:\n  candidates: [poly1, spline]\n",
		"bad headroom":      "calibrator:\n  memory_headroom: 1.5\n",
		"inverted window":   "calibrator:\n  temperature_min: 30\n  temperature_max: 20\n",
		"bad watermarks":    "pipeline:\n  high_watermark: 10\n  low_watermark: 10\n",
		"bad instances":     "pipeline:\n  min_instances: 4\n  max_instances: 2\n",
		"not yaml":          "histogram: [\n",
	}

	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			if _, err := Parse([]byte(in)); !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("Parse error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected an error")
	}
}
