package stages

import (
	"errors"
	"fmt"

	"github.com/cwbudde/algo-calib/binning"
	"github.com/cwbudde/algo-calib/calibrate"
	"github.com/cwbudde/algo-calib/eventio"
	"github.com/cwbudde/algo-calib/pipeline"
)

// Stage type names used in chain descriptions.
const (
	TypeReader     = "reader"
	TypeCalibrate  = "calibrate"
	TypeWindow     = "window"
	TypeAccumulate = "accumulate"
	TypeWriter     = "writer"
)

// Deps are the objects the stage factories bind to.
type Deps struct {
	Source  eventio.Source
	Sink    eventio.Sink
	Models  map[calibrate.Channel]calibrate.ReportEntry
	Spectra *Spectra
}

// Register adds the factories of all stages to r.
//
// Chain parameters: calibrate takes "drop" (bool); window takes "min" and
// "max" in keV; accumulate takes "mode" (bayesian, fixed-width or
// fixed-counts), "min", "max", "bins" and "counts" when it creates its own
// Spectra.
func Register(r *pipeline.Registry, deps Deps) error {
	factories := map[string]pipeline.Factory{
		TypeReader: func(pipeline.Params) (pipeline.Stage, error) {
			if deps.Source == nil {
				return nil, errors.New("stages: reader needs a source")
			}
			return NewReader(deps.Source), nil
		},
		TypeCalibrate: func(p pipeline.Params) (pipeline.Stage, error) {
			c := NewCalibrate(deps.Models)
			c.DropUncalibrated = p.GetBool("drop", false)
			return c, nil
		},
		TypeWindow: func(p pipeline.Params) (pipeline.Stage, error) {
			w := &Window{Min: p.GetNum("min", 0), Max: p.GetNum("max", 1e9)}
			if w.Max < w.Min {
				return nil, errors.New("stages: window max below min")
			}
			return w, nil
		},
		TypeAccumulate: func(p pipeline.Params) (pipeline.Stage, error) {
			s := deps.Spectra
			if s == nil {
				mode, err := binning.ParseMode(p.GetStr("mode", binning.ModeFixedWidth.String()))
				if err != nil {
					return nil, fmt.Errorf("stages: accumulate: %w", err)
				}
				s = NewSpectraMode(mode,
					binning.WithRange(p.GetNum("min", 0), p.GetNum("max", 3000)),
					binning.WithBins(p.GetInt("bins", 3000)),
					binning.WithCountsPerBin(p.GetInt("counts", 100)),
				)
			}
			return NewAccumulate(s), nil
		},
		TypeWriter: func(pipeline.Params) (pipeline.Stage, error) {
			if deps.Sink == nil {
				return nil, errors.New("stages: writer needs a sink")
			}
			return NewWriter(deps.Sink), nil
		},
	}

	for _, name := range []string{TypeReader, TypeCalibrate, TypeWindow, TypeAccumulate, TypeWriter} {
		if err := r.Register(name, factories[name]); err != nil {
			return err
		}
	}

	return nil
}

// DefaultChain reads, calibrates and writes.
const DefaultChain = `{"stages":[{"id":"in","type":"reader"},{"id":"cal","type":"calibrate"},{"id":"out","type":"writer"}]}`
