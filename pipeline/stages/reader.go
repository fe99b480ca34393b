package stages

import (
	"context"
	"errors"

	"github.com/cwbudde/algo-calib/eventio"
	"github.com/cwbudde/algo-calib/pipeline"
)

// Reader generates events from a source.
type Reader struct {
	src eventio.Source
}

// NewReader returns a generator over src.
func NewReader(src eventio.Source) *Reader {
	return &Reader{src: src}
}

func (r *Reader) Name() string               { return "reader" }
func (r *Reader) Init(context.Context) error { return nil }
func (r *Reader) Finalize() error            { return nil }
func (r *Reader) Concurrent() bool           { return false }
func (r *Reader) Clone() (pipeline.Stage, error) {
	return nil, errors.New("stages: reader cannot be cloned")
}

// Analyze passes events through.
func (r *Reader) Analyze(context.Context, *eventio.Event) (bool, error) {
	return true, nil
}

// Generate returns the next event or io.EOF.
func (r *Reader) Generate(context.Context) (*eventio.Event, error) {
	ev, err := r.src.Next()
	if err != nil {
		return nil, err
	}
	return &ev, nil
}
