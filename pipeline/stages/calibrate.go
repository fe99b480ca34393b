package stages

import (
	"context"
	"sync/atomic"

	"github.com/cwbudde/algo-calib/calibrate"
	"github.com/cwbudde/algo-calib/eventio"
	"github.com/cwbudde/algo-calib/model"
	"github.com/cwbudde/algo-calib/pipeline"
)

// Calibrate converts the ADC value of every event into energy with the
// energy model of its channel. Events of channels without a model are
// passed on uncalibrated, or dropped when DropUncalibrated is set.
type Calibrate struct {
	models           map[calibrate.Channel]*model.Model
	DropUncalibrated bool

	missed *atomic.Int64
}

// NewCalibrate returns a calibration stage for the energy models of a
// report.
func NewCalibrate(entries map[calibrate.Channel]calibrate.ReportEntry) *Calibrate {
	models := make(map[calibrate.Channel]*model.Model, len(entries))
	for ch, e := range entries {
		if e.Energy != nil {
			models[ch] = e.Energy.Clone()
		}
	}
	return &Calibrate{models: models, missed: &atomic.Int64{}}
}

func (c *Calibrate) Name() string               { return "calibrate" }
func (c *Calibrate) Init(context.Context) error { return nil }
func (c *Calibrate) Finalize() error            { return nil }
func (c *Calibrate) Concurrent() bool           { return true }

// Clone shares the read-only models and the miss counter.
func (c *Calibrate) Clone() (pipeline.Stage, error) {
	cp := *c
	return &cp, nil
}

// Uncalibrated returns the number of events without a channel model.
func (c *Calibrate) Uncalibrated() int64 {
	return c.missed.Load()
}

func (c *Calibrate) Analyze(_ context.Context, ev *eventio.Event) (bool, error) {
	m, ok := c.models[calibrate.Channel{Detector: ev.Detector, Element: ev.Element}]
	if !ok {
		c.missed.Add(1)
		return !c.DropUncalibrated, nil
	}

	ev.Energy = m.Eval(ev.ADC)
	ev.Calibrated = true

	return true, nil
}
