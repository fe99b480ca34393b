package stages

import (
	"context"
	"errors"

	"github.com/cwbudde/algo-calib/eventio"
	"github.com/cwbudde/algo-calib/pipeline"
)

// Writer writes events to a sink. Sinks with a Flush method are flushed
// on Finalize.
type Writer struct {
	sink eventio.Sink
}

// NewWriter returns a writer stage.
func NewWriter(sink eventio.Sink) *Writer {
	return &Writer{sink: sink}
}

func (w *Writer) Name() string               { return "writer" }
func (w *Writer) Init(context.Context) error { return nil }
func (w *Writer) Concurrent() bool           { return false }

func (w *Writer) Clone() (pipeline.Stage, error) {
	return nil, errors.New("stages: writer cannot be cloned")
}

func (w *Writer) Analyze(_ context.Context, ev *eventio.Event) (bool, error) {
	return true, w.sink.Write(*ev)
}

func (w *Writer) Finalize() error {
	if f, ok := w.sink.(interface{ Flush() error }); ok {
		return f.Flush()
	}
	return nil
}
