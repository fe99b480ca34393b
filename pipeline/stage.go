package pipeline

import (
	"context"
	"errors"

	"github.com/cwbudde/algo-calib/eventio"
)

var (
	// ErrNoGenerator is returned when the first stage cannot produce events.
	ErrNoGenerator = errors.New("pipeline: first stage is not a generator")
	// ErrEmptyChain is returned for a supervisor without stages.
	ErrEmptyChain = errors.New("pipeline: empty chain")
	// ErrHardInterrupt is returned by Run after HardInterrupt.
	ErrHardInterrupt = errors.New("pipeline: hard interrupt")
)

// Stage processes events one at a time.
//
// Init is called once per instance before the first event and Finalize
// once after the last. Analyze may modify the event; returning false drops
// it from the stream. Stages whose Concurrent method returns true must be
// safe to run as several instances created by Clone; instances share no
// mutable state unless the stage synchronizes it.
type Stage interface {
	Name() string
	Init(ctx context.Context) error
	Analyze(ctx context.Context, ev *eventio.Event) (bool, error)
	Finalize() error
	Concurrent() bool
	Clone() (Stage, error)
}

// Generator is a stage that produces the event stream. Generate returns
// io.EOF when the stream ends. Generators always run as one instance and
// their Analyze method is never called.
type Generator interface {
	Stage
	Generate(ctx context.Context) (*eventio.Event, error)
}
