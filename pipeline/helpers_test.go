package pipeline

import (
	"context"
	"errors"
	"io"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cwbudde/algo-calib/eventio"
)

// countGen emits events with IDs 1..n; n == 0 never ends.
type countGen struct {
	n    uint64
	next uint64
	fin  atomic.Int32
}

func (g *countGen) Name() string               { return "count" }
func (g *countGen) Init(context.Context) error { return nil }
func (g *countGen) Concurrent() bool           { return false }
func (g *countGen) Clone() (Stage, error)      { return nil, errors.New("generator") }
func (g *countGen) Finalize() error            { g.fin.Add(1); return nil }
func (g *countGen) Analyze(context.Context, *eventio.Event) (bool, error) {
	return true, nil
}

func (g *countGen) Generate(context.Context) (*eventio.Event, error) {
	if g.n > 0 && g.next >= g.n {
		return nil, io.EOF
	}
	g.next++
	return &eventio.Event{ID: g.next, ADC: float64(g.next)}, nil
}

// jitterStage sleeps a random time per event and doubles the ADC value.
type jitterStage struct {
	rng     *rand.Rand
	maxWait time.Duration
	seed    *atomic.Int64
}

func newJitter(maxWait time.Duration) *jitterStage {
	seed := &atomic.Int64{}
	return &jitterStage{rng: rand.New(rand.NewSource(seed.Add(1))), maxWait: maxWait, seed: seed}
}

func (j *jitterStage) Name() string               { return "jitter" }
func (j *jitterStage) Init(context.Context) error { return nil }
func (j *jitterStage) Concurrent() bool           { return true }
func (j *jitterStage) Finalize() error            { return nil }

func (j *jitterStage) Clone() (Stage, error) {
	return &jitterStage{rng: rand.New(rand.NewSource(j.seed.Add(1))), maxWait: j.maxWait, seed: j.seed}, nil
}

func (j *jitterStage) Analyze(_ context.Context, ev *eventio.Event) (bool, error) {
	if j.maxWait > 0 {
		time.Sleep(time.Duration(j.rng.Int63n(int64(j.maxWait))))
	}
	ev.ADC *= 2
	return true, nil
}

// oddStage drops events with even IDs.
type oddStage struct{}

func (oddStage) Name() string               { return "odd" }
func (oddStage) Init(context.Context) error { return nil }
func (oddStage) Concurrent() bool           { return true }
func (oddStage) Finalize() error            { return nil }
func (oddStage) Clone() (Stage, error)      { return oddStage{}, nil }

func (oddStage) Analyze(_ context.Context, ev *eventio.Event) (bool, error) {
	return ev.ID%2 == 1, nil
}

// collectStage records the events it sees.
type collectStage struct {
	mu     sync.Mutex
	events []eventio.Event
	fail   uint64
	wait   chan struct{}
}

func (c *collectStage) Name() string               { return "collect" }
func (c *collectStage) Init(context.Context) error { return nil }
func (c *collectStage) Concurrent() bool           { return false }
func (c *collectStage) Finalize() error            { return nil }
func (c *collectStage) Clone() (Stage, error)      { return nil, errors.New("not concurrent") }

func (c *collectStage) Analyze(ctx context.Context, ev *eventio.Event) (bool, error) {
	if c.fail != 0 && ev.ID == c.fail {
		return false, errors.New("boom")
	}

	if c.wait != nil {
		select {
		case <-c.wait:
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}

	c.mu.Lock()
	c.events = append(c.events, *ev)
	c.mu.Unlock()

	return true, nil
}

func (c *collectStage) IDs() []uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]uint64, len(c.events))
	for i, ev := range c.events {
		out[i] = ev.ID
	}
	return out
}
