package stages

import (
	"context"

	"github.com/cwbudde/algo-calib/eventio"
	"github.com/cwbudde/algo-calib/pipeline"
)

// Window keeps calibrated events with an energy in [Min, Max].
type Window struct {
	Min, Max float64
}

func (w *Window) Name() string               { return "window" }
func (w *Window) Init(context.Context) error { return nil }
func (w *Window) Finalize() error            { return nil }
func (w *Window) Concurrent() bool           { return true }

func (w *Window) Clone() (pipeline.Stage, error) {
	cp := *w
	return &cp, nil
}

func (w *Window) Analyze(_ context.Context, ev *eventio.Event) (bool, error) {
	return ev.Calibrated && ev.Energy >= w.Min && ev.Energy <= w.Max, nil
}
