package calibrate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"slices"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/cwbudde/algo-calib/eventio"
	"github.com/cwbudde/algo-calib/internal/buffer"
	"github.com/cwbudde/algo-calib/internal/membudget"
	"github.com/cwbudde/algo-calib/isotope"
)

// cancelCheckInterval is the number of records between context checks.
const cancelCheckInterval = 1024

// Input is one event source with its acquisition context.
type Input struct {
	Name     string
	Source   eventio.Source
	Isotopes []isotope.Isotope
	// Group is the external group ID. Inputs sharing an ID are merged
	// into one internal group and their isotope lists are combined.
	Group int
}

// LoadReport summarizes a Load call.
type LoadReport struct {
	Records int // records stored
	Skipped int // records outside the temperature window or not finite
	// Truncated is set when a worker stopped early on memory pressure.
	Truncated bool
}

// Load ingests the inputs in parallel, one worker per input up to the
// configured pool size. Workers buffer samples per channel and merge them
// into the shared collections every MergeInterval records. A worker that
// hits the memory budget stops reading; the records merged so far are
// kept and the report is marked truncated.
func (c *Calibrator) Load(ctx context.Context, inputs []Input) (LoadReport, error) {
	var report LoadReport
	if len(inputs) == 0 {
		return report, nil
	}

	for i, in := range inputs {
		if in.Source == nil {
			return report, fmt.Errorf("calibrate: input %d (%s): nil source", i, in.Name)
		}
	}

	groups := c.registerGroups(inputs)

	var (
		records   atomic.Int64
		skipped   atomic.Int64
		truncated atomic.Bool
		done      atomic.Int64
	)

	budget := membudget.New(c.cfg.MemoryLimit, c.cfg.MemoryHeadroom)
	pool := buffer.NewPool()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, min(c.cfg.Workers, len(inputs))))

	for i, in := range inputs {
		g.Go(func() error {
			w := loadWorker{
				c:      c,
				in:     in,
				group:  groups[i],
				budget: budget,
				pool:   pool,
			}

			c.logger.Debug("load worker started", "input", in.Name, "group", groups[i])

			stats, err := w.run(gctx)

			records.Add(int64(stats.Records))
			skipped.Add(int64(stats.Skipped))

			switch {
			case errors.Is(err, ErrMemoryPressure):
				truncated.Store(true)
				c.logger.Warn("load stopped on memory pressure",
					"input", in.Name, "records", stats.Records, "heap", budget.InUse())
			case err != nil:
				return fmt.Errorf("calibrate: load %s: %w", in.Name, err)
			}

			c.logger.Debug("load worker finished", "input", in.Name, "records", stats.Records, "skipped", stats.Skipped)
			c.report(Progress{Stage: "load", Done: int(done.Add(1)), Total: len(inputs)})

			return nil
		})
	}

	err := g.Wait()

	report.Records = int(records.Load())
	report.Skipped = int(skipped.Load())
	report.Truncated = truncated.Load()

	return report, err
}

// registerGroups maps the external group IDs of inputs to internal
// indices. New external IDs are appended in ascending order after the
// groups of earlier Load calls.
func (c *Calibrator) registerGroups(inputs []Input) []int {
	c.mu.Lock()
	defer c.mu.Unlock()

	var fresh []int
	for _, in := range inputs {
		if _, ok := c.byExt[in.Group]; !ok && !slices.Contains(fresh, in.Group) {
			fresh = append(fresh, in.Group)
		}
	}
	slices.Sort(fresh)

	for _, ext := range fresh {
		c.byExt[ext] = len(c.groups)
		c.groups = append(c.groups, GroupInfo{External: ext})
	}

	out := make([]int, len(inputs))
	for i, in := range inputs {
		idx := c.byExt[in.Group]
		out[i] = idx

		g := &c.groups[idx]
		g.Sources = append(g.Sources, in.Name)
		g.Isotopes = isotope.Merge(g.Isotopes, in.Isotopes)
	}

	return out
}

type loadWorker struct {
	c      *Calibrator
	in     Input
	group  int
	budget *membudget.Budget
	pool   *buffer.Pool

	pending map[Channel]*buffer.Buffer
	stats   LoadReport
	queued  int
}

func (w *loadWorker) run(ctx context.Context) (LoadReport, error) {
	w.pending = make(map[Channel]*buffer.Buffer)
	defer w.release()

	cfg := w.c.cfg
	window := cfg.TemperatureMax > cfg.TemperatureMin

	for n := 0; ; n++ {
		if n%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return w.stats, err
			}
		}

		ev, err := w.in.Source.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return w.stats, err
		}

		if math.IsNaN(ev.ADC) || math.IsInf(ev.ADC, 0) {
			w.stats.Skipped++
			continue
		}
		if window && (ev.Temperature < cfg.TemperatureMin || ev.Temperature > cfg.TemperatureMax) {
			w.stats.Skipped++
			continue
		}

		ch := Channel{Detector: ev.Detector, Element: ev.Element}
		b, ok := w.pending[ch]
		if !ok {
			b = w.pool.Get()
			w.pending[ch] = b
		}
		b.Append(ev.ADC)
		w.queued++

		if w.queued >= cfg.MergeInterval {
			if err := w.merge(); err != nil {
				return w.stats, err
			}
		}
	}

	return w.stats, w.merge()
}

// merge moves the pending samples into the shared collections after
// probing the memory budget for their size.
func (w *loadWorker) merge() error {
	if w.queued == 0 {
		return nil
	}

	var size int64
	for _, b := range w.pending {
		size += b.Bytes()
	}

	if !w.budget.Probe(size) {
		return ErrMemoryPressure
	}

	c := w.c
	c.mu.Lock()
	for ch, b := range w.pending {
		col, ok := c.samples[ch]
		if !ok {
			col = NewCollection()
			c.samples[ch] = col
		}
		col.Add(w.group, b.Samples()...)
		b.Reset()
	}
	c.mu.Unlock()

	w.stats.Records += w.queued
	w.queued = 0

	return nil
}

func (w *loadWorker) release() {
	for ch, b := range w.pending {
		w.pool.Put(b)
		delete(w.pending, ch)
	}
}
