package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// StageStats is a snapshot of one stage.
type StageStats struct {
	Name      string
	Instances int
	Analyzing int
	Paused    int
	Finished  int
	Consumed  int64 // events taken from the input queue
	Emitted   int64 // events passed on
	Dropped   int64 // events removed by Analyze
	Backlog   int   // input queue length
}

// Stats is a snapshot of a supervisor.
type Stats struct {
	Run       uuid.UUID
	Throttled bool
	Stages    []StageStats
}

// Supervisor runs a chain of stages once.
type Supervisor struct {
	cfg    Config
	logger *slog.Logger
	runID  uuid.UUID

	stages []*stageRun
	gate   *gate
	done   chan struct{}

	started  atomic.Bool
	soft     chan struct{}
	softOnce sync.Once
	hard     atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
}

type stageRun struct {
	proto Stage
	index int
	in    *Queue // nil for the generator
	out   *Queue // nil for the last stage

	mu        sync.Mutex
	instances []*instance
	active    int
	finished  bool
	noClone   bool

	consumed atomic.Int64
	emitted  atomic.Int64
	dropped  atomic.Int64

	// upstreamSeen is the upstream Emitted count at the previous sample.
	upstreamSeen int64
}

type instance struct {
	stage Stage
	state atomic.Int32
}

func (in *instance) State() State {
	return State(in.state.Load())
}

// transition moves the instance to next if the lifecycle allows it.
func (in *instance) transition(next State) error {
	for {
		cur := State(in.state.Load())
		if !cur.CanTransition(next) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, cur, next)
		}
		if in.state.CompareAndSwap(int32(cur), int32(next)) {
			return nil
		}
	}
}

// NewSupervisor prepares stages for one Run. The first stage must be a
// Generator.
func NewSupervisor(stages []Stage, opts ...Option) (*Supervisor, error) {
	if len(stages) == 0 {
		return nil, ErrEmptyChain
	}

	if _, ok := stages[0].(Generator); !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoGenerator, stages[0].Name())
	}

	cfg := ApplyOptions(opts...)
	cfg.MinInstances = min(cfg.MinInstances, cfg.MaxInstances)

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	s := &Supervisor{
		cfg:    cfg,
		runID:  uuid.New(),
		gate:   newGate(),
		done:   make(chan struct{}),
		soft:   make(chan struct{}),
		stages: make([]*stageRun, len(stages)),
	}
	s.logger = logger.With("component", "pipeline", "run", s.runID)

	var prev *Queue
	for i, st := range stages {
		sr := &stageRun{proto: st, index: i, in: prev}
		if i < len(stages)-1 {
			sr.out = NewQueue()
		}
		s.stages[i] = sr
		prev = sr.out
	}

	return s, nil
}

// RunID identifies the supervisor in logs.
func (s *Supervisor) RunID() uuid.UUID {
	return s.runID
}

// Run executes the chain until the generator is exhausted and all queued
// events are processed, an error occurs, ctx is canceled or HardInterrupt
// is called. Every instance is finalized before Run returns. A supervisor
// runs once.
func (s *Supervisor) Run(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return errors.New("pipeline: supervisor already started")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	if s.hard.Load() {
		cancel()
	}

	g, gctx := errgroup.WithContext(ctx)

	stop := context.AfterFunc(gctx, func() {
		for _, sr := range s.stages {
			if sr.out != nil {
				sr.out.Abort()
			}
		}
		s.gate.release()
	})
	defer stop()

	s.logger.Info("pipeline started", "stages", len(s.stages))

	for _, sr := range s.stages {
		s.spawn(g, gctx, sr, sr.proto)

		if sr.index > 0 && sr.proto.Concurrent() {
			for range s.cfg.MinInstances - 1 {
				s.cloneInto(g, gctx, sr)
			}
		}
	}

	g.Go(func() error {
		s.sampleLoop(g, gctx)
		return nil
	})

	err := g.Wait()

	finErr := s.finalize()

	st := s.Stats()
	s.logger.Info("pipeline finished", "emitted", st.Stages[len(st.Stages)-1].Emitted, "err", err)

	if s.hard.Load() {
		return errors.Join(ErrHardInterrupt, finErr)
	}

	return errors.Join(err, finErr)
}

// SoftInterrupt stops the generator. Events already produced are
// processed and Run returns normally.
func (s *Supervisor) SoftInterrupt() {
	s.softOnce.Do(func() {
		s.logger.Info("soft interrupt")
		close(s.soft)
		s.gate.release()
	})
}

// HardInterrupt stops all instances without draining the queues.
func (s *Supervisor) HardInterrupt() {
	if s.hard.Swap(true) {
		return
	}

	s.logger.Warn("hard interrupt")

	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// Stats returns a snapshot of all stages.
func (s *Supervisor) Stats() Stats {
	out := Stats{Run: s.runID, Throttled: s.gate.isPaused()}

	for _, sr := range s.stages {
		st := StageStats{
			Name:     sr.proto.Name(),
			Consumed: sr.consumed.Load(),
			Emitted:  sr.emitted.Load(),
			Dropped:  sr.dropped.Load(),
		}
		if sr.in != nil {
			st.Backlog = sr.in.Len()
		}

		sr.mu.Lock()
		st.Instances = len(sr.instances)
		for _, in := range sr.instances {
			switch in.State() {
			case Analyzing:
				st.Analyzing++
			case Paused:
				st.Paused++
			case Finished:
				st.Finished++
			}
		}
		sr.mu.Unlock()

		out.Stages = append(out.Stages, st)
	}

	return out
}

// spawn starts an instance of sr unless the stage already finished.
func (s *Supervisor) spawn(g *errgroup.Group, ctx context.Context, sr *stageRun, st Stage) bool {
	sr.mu.Lock()
	if sr.finished {
		sr.mu.Unlock()
		return false
	}
	inst := &instance{stage: st}
	sr.instances = append(sr.instances, inst)
	sr.active++
	sr.mu.Unlock()

	g.Go(func() error {
		defer s.exit(sr)
		return s.runInstance(ctx, sr, inst)
	})

	return true
}

// cloneInto adds a clone of the stage prototype.
func (s *Supervisor) cloneInto(g *errgroup.Group, ctx context.Context, sr *stageRun) bool {
	if sr.noClone {
		return false
	}

	st, err := sr.proto.Clone()
	if err != nil {
		sr.noClone = true
		s.logger.Warn("stage cannot be cloned", "stage", sr.proto.Name(), "err", err)
		return false
	}

	return s.spawn(g, ctx, sr, st)
}

// exit closes the output of sr once its last instance has returned.
func (s *Supervisor) exit(sr *stageRun) {
	sr.mu.Lock()
	sr.active--
	last := sr.active == 0 && !sr.finished
	if last {
		sr.finished = true
	}
	sr.mu.Unlock()

	if !last {
		return
	}

	s.logger.Debug("stage finished", "stage", sr.proto.Name(), "emitted", sr.emitted.Load())

	if sr.out != nil {
		sr.out.Close()
	}
	if sr.index == len(s.stages)-1 {
		close(s.done)
	}
}

func (s *Supervisor) runInstance(ctx context.Context, sr *stageRun, inst *instance) error {
	name := inst.stage.Name()

	if err := inst.stage.Init(ctx); err != nil {
		return fmt.Errorf("pipeline: init %s: %w", name, err)
	}

	if err := inst.transition(Analyzing); err != nil {
		return err
	}

	s.logger.Debug("stage instance started", "stage", name, "index", sr.index)

	if sr.index == 0 {
		return s.generate(ctx, sr, inst, inst.stage.(Generator))
	}

	for {
		ev, ticket, ok := sr.in.PopInto(sr.out)
		if !ok {
			return ctx.Err()
		}

		sr.consumed.Add(1)

		keep, err := inst.stage.Analyze(ctx, &ev)
		if err != nil {
			return fmt.Errorf("pipeline: %s: event %d: %w", name, ev.ID, err)
		}

		if keep {
			sr.emitted.Add(1)
		} else {
			sr.dropped.Add(1)
		}

		if sr.out == nil {
			continue
		}

		if keep {
			sr.out.Fill(ticket, ev)
		} else {
			sr.out.Drop(ticket)
		}
	}
}

func (s *Supervisor) generate(ctx context.Context, sr *stageRun, inst *instance, gen Generator) error {
	for {
		select {
		case <-s.soft:
			return nil
		default:
		}

		if err := ctx.Err(); err != nil {
			return err
		}

		if s.gate.isPaused() {
			_ = inst.transition(Paused)
			s.gate.wait()
			_ = inst.transition(Analyzing)
			continue
		}

		ev, err := gen.Generate(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("pipeline: %s: %w", gen.Name(), err)
		}
		if ev == nil {
			continue
		}

		sr.emitted.Add(1)

		if sr.out != nil {
			sr.out.Push(*ev)
		}
	}
}

func (s *Supervisor) sampleLoop(g *errgroup.Group, ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-ticker.C:
			s.sample(g, ctx)
		}
	}
}

// sample grows concurrent stages whose input backs up while their
// upstream still produces, and throttles the generator on the
// watermarks.
func (s *Supervisor) sample(g *errgroup.Group, ctx context.Context) {
	maxBacklog := 0

	for i := 1; i < len(s.stages); i++ {
		sr, up := s.stages[i], s.stages[i-1]

		backlog := sr.in.Len()
		maxBacklog = max(maxBacklog, backlog)

		seen := up.emitted.Load() + up.dropped.Load()
		produced := seen - sr.upstreamSeen
		sr.upstreamSeen = seen

		if !sr.proto.Concurrent() || backlog < s.cfg.BacklogThreshold || produced <= 0 {
			continue
		}

		sr.mu.Lock()
		n := len(sr.instances)
		sr.mu.Unlock()

		if n >= s.cfg.MaxInstances {
			continue
		}

		if s.cloneInto(g, ctx, sr) {
			s.logger.Debug("stage instance spawned", "stage", sr.proto.Name(), "instances", n+1, "backlog", backlog)
		}
	}

	switch {
	case !s.gate.isPaused() && maxBacklog > s.cfg.HighWatermark:
		s.gate.set(true)
		s.logger.Info("generator throttled", "backlog", maxBacklog)
	case s.gate.isPaused() && maxBacklog <= s.cfg.LowWatermark:
		s.gate.set(false)
		s.logger.Info("generator resumed", "backlog", maxBacklog)
	}
}

func (s *Supervisor) finalize() error {
	var errs []error

	for _, sr := range s.stages {
		sr.mu.Lock()
		instances := append([]*instance(nil), sr.instances...)
		sr.mu.Unlock()

		for _, inst := range instances {
			if err := inst.stage.Finalize(); err != nil {
				errs = append(errs, fmt.Errorf("pipeline: finalize %s: %w", inst.stage.Name(), err))
			}
			_ = inst.transition(Finished)
		}
	}

	return errors.Join(errs...)
}

// gate pauses the generator.
type gate struct {
	mu       sync.Mutex
	cond     *sync.Cond
	paused   bool
	released bool
}

func newGate() *gate {
	g := &gate{}
	g.cond = sync.NewCond(&g.mu)
	return g
}

func (g *gate) set(paused bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.paused = paused
	g.cond.Broadcast()
}

func (g *gate) isPaused() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.paused && !g.released
}

// wait blocks while the gate is paused.
func (g *gate) wait() {
	g.mu.Lock()
	defer g.mu.Unlock()

	for g.paused && !g.released {
		g.cond.Wait()
	}
}

// release opens the gate for good.
func (g *gate) release() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.released = true
	g.cond.Broadcast()
}
