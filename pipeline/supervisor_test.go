package pipeline

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cwbudde/algo-calib/eventio"
)

func sequence(n int) []uint64 {
	out := make([]uint64, n)
	for i := range out {
		out[i] = uint64(i + 1)
	}
	return out
}

func TestSupervisorPreservesOrder(t *testing.T) {
	t.Parallel()

	gen := &countGen{n: 1000}
	sink := &collectStage{}

	s, err := NewSupervisor(
		[]Stage{gen, newJitter(200 * time.Microsecond), sink},
		WithMinInstances(4), WithMaxInstances(4),
	)
	if err != nil {
		t.Fatalf("NewSupervisor: %v", err)
	}

	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := sink.IDs(); !slices.Equal(got, sequence(1000)) {
		t.Fatalf("output out of order: first ids %v", got[:min(len(got), 20)])
	}

	for _, ev := range sink.events {
		if ev.ADC != 2*float64(ev.ID) {
			t.Fatalf("event %d not processed: %+v", ev.ID, ev)
		}
	}

	st := s.Stats()
	if st.Stages[1].Instances != 4 {
		t.Fatalf("jitter instances = %d, want 4", st.Stages[1].Instances)
	}
	for _, stage := range st.Stages {
		if stage.Finished != stage.Instances {
			t.Fatalf("stage %s: %d of %d instances finished", stage.Name, stage.Finished, stage.Instances)
		}
	}
	if gen.fin.Load() != 1 {
		t.Fatalf("generator finalized %d times", gen.fin.Load())
	}
}

func TestSupervisorDropsKeepOrder(t *testing.T) {
	t.Parallel()

	sink := &collectStage{}
	s, err := NewSupervisor(
		[]Stage{&countGen{n: 200}, oddStage{}, newJitter(50 * time.Microsecond), sink},
		WithMinInstances(3),
	)
	if err != nil {
		t.Fatalf("NewSupervisor: %v", err)
	}

	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var want []uint64
	for id := uint64(1); id <= 200; id += 2 {
		want = append(want, id)
	}

	if got := sink.IDs(); !slices.Equal(got, want) {
		t.Fatalf("ids = %v", got)
	}

	st := s.Stats()
	if st.Stages[1].Dropped != 100 || st.Stages[1].Emitted != 100 {
		t.Fatalf("odd stage stats = %+v", st.Stages[1])
	}
}

func TestSupervisorStopsOnStageError(t *testing.T) {
	t.Parallel()

	s, err := NewSupervisor([]Stage{&countGen{}, newJitter(0), &collectStage{fail: 50}})
	if err != nil {
		t.Fatalf("NewSupervisor: %v", err)
	}

	err = s.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "collect: event 50: boom") {
		t.Fatalf("Run error = %v", err)
	}
}

func TestSupervisorSoftInterruptDrains(t *testing.T) {
	t.Parallel()

	sink := &collectStage{}
	s, err := NewSupervisor([]Stage{&countGen{}, newJitter(0), sink})
	if err != nil {
		t.Fatalf("NewSupervisor: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()

	for s.Stats().Stages[0].Emitted < 100 {
		time.Sleep(time.Millisecond)
	}
	s.SoftInterrupt()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("soft interrupt did not stop the pipeline")
	}

	emitted := s.Stats().Stages[0].Emitted
	if got := sink.IDs(); !slices.Equal(got, sequence(int(emitted))) {
		t.Fatalf("drained %d of %d events", len(got), emitted)
	}
}

func TestSupervisorHardInterrupt(t *testing.T) {
	t.Parallel()

	sink := &collectStage{wait: make(chan struct{})}
	s, err := NewSupervisor([]Stage{&countGen{n: 10}, sink})
	if err != nil {
		t.Fatalf("NewSupervisor: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()

	for s.Stats().Stages[1].Consumed == 0 {
		time.Sleep(time.Millisecond)
	}
	s.HardInterrupt()

	select {
	case err := <-done:
		if !errors.Is(err, ErrHardInterrupt) {
			t.Fatalf("Run error = %v, want ErrHardInterrupt", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("hard interrupt did not stop the pipeline")
	}

	if n := len(sink.IDs()); n != 0 {
		t.Fatalf("sink saw %d events after a hard interrupt", n)
	}
}

func TestSupervisorRunsOnce(t *testing.T) {
	t.Parallel()

	s, err := NewSupervisor([]Stage{&countGen{n: 1}})
	if err != nil {
		t.Fatalf("NewSupervisor: %v", err)
	}

	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if err := s.Run(context.Background()); err == nil {
		t.Fatal("second Run succeeded")
	}
}

func TestNewSupervisorValidates(t *testing.T) {
	t.Parallel()

	if _, err := NewSupervisor(nil); !errors.Is(err, ErrEmptyChain) {
		t.Fatalf("empty chain error = %v", err)
	}
	if _, err := NewSupervisor([]Stage{&collectStage{}}); !errors.Is(err, ErrNoGenerator) {
		t.Fatalf("no generator error = %v", err)
	}
}

func TestSampleThrottlesGenerator(t *testing.T) {
	t.Parallel()

	s, err := NewSupervisor([]Stage{&countGen{}, &collectStage{}}, WithWatermarks(10, 2))
	if err != nil {
		t.Fatalf("NewSupervisor: %v", err)
	}

	q := s.stages[1].in
	for i := range 11 {
		q.Push(eventio.Event{ID: uint64(i)})
	}

	s.sample(nil, context.Background())
	if !s.Stats().Throttled {
		t.Fatal("generator not throttled above the high watermark")
	}

	for range 8 {
		q.Pop()
	}
	s.sample(nil, context.Background())
	if !s.Stats().Throttled {
		t.Fatal("generator resumed above the low watermark")
	}

	q.Pop()
	s.sample(nil, context.Background())
	if s.Stats().Throttled {
		t.Fatal("generator still throttled at the low watermark")
	}
}

func TestSampleSpawnsOnlyWhileUpstreamProduces(t *testing.T) {
	t.Parallel()

	s, err := NewSupervisor([]Stage{&countGen{}, newJitter(0)},
		WithBacklogThreshold(4), WithMaxInstances(3))
	if err != nil {
		t.Fatalf("NewSupervisor: %v", err)
	}

	g, ctx := errgroup.WithContext(context.Background())
	sr := s.stages[1]

	// A stalled queue: the head slot is reserved but never filled.
	stall := sr.in.Reserve()
	for i := range 10 {
		sr.in.Push(eventio.Event{ID: uint64(i)})
	}

	s.sample(g, ctx)
	if n := s.Stats().Stages[1].Instances; n != 0 {
		t.Fatalf("spawned %d instances without upstream output", n)
	}

	s.stages[0].emitted.Add(10)
	s.sample(g, ctx)
	s.stages[0].emitted.Add(10)
	s.sample(g, ctx)
	s.stages[0].emitted.Add(10)
	s.sample(g, ctx)

	if n := s.Stats().Stages[1].Instances; n != 3 {
		t.Fatalf("instances = %d, want the limit 3", n)
	}

	sr.in.Drop(stall)
	sr.in.Close()

	if err := g.Wait(); err != nil {
		t.Fatalf("instances: %v", err)
	}
	if got := sr.consumed.Load(); got != 10 {
		t.Fatalf("consumed %d events, want 10", got)
	}
}
