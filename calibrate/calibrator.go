package calibrate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/cwbudde/algo-calib/assign"
	"github.com/cwbudde/algo-calib/isotope"
	"github.com/cwbudde/algo-calib/model"
	"github.com/cwbudde/algo-calib/peak"
	"github.com/cwbudde/algo-calib/peakfit"
)

// GroupInfo describes one internal acquisition group.
type GroupInfo struct {
	External int               // group ID supplied with the inputs
	Sources  []string          // names of the inputs feeding the group
	Isotopes []isotope.Isotope // merged isotope list of those inputs
}

// Calibrator owns the loaded samples and the calibration results.
type Calibrator struct {
	cfg    Config
	logger *slog.Logger
	runID  uuid.UUID

	detector *peak.Detector
	fitter   *peakfit.Fitter
	assigner *assign.Assigner
	models   *model.Fitter

	mu      sync.RWMutex
	samples map[Channel]*Collection
	groups  []GroupInfo
	byExt   map[int]int

	store *Store
}

// New returns a calibrator with the given options applied.
func New(opts ...Option) *Calibrator {
	cfg := ApplyOptions(opts...)

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Calibrator{
		cfg:      cfg,
		logger:   logger.With("component", "calibrate"),
		runID:    uuid.New(),
		detector: peak.NewDetector(append([]peak.Option{peak.WithLogger(logger)}, cfg.Detector...)...),
		fitter:   peakfit.NewFitter(append([]peakfit.Option{peakfit.WithLogger(logger)}, cfg.Fitter...)...),
		assigner: assign.NewAssigner(append([]assign.Option{assign.WithLogger(logger)}, cfg.Assigner...)...),
		models:   model.NewFitter(append([]model.Option{model.WithLogger(logger)}, cfg.Model...)...),
		samples:  make(map[Channel]*Collection),
		byExt:    make(map[int]int),
		store:    NewStore(),
	}
}

// Config returns the calibrator configuration.
func (c *Calibrator) Config() Config {
	return c.cfg
}

// RunID identifies this calibrator in written reports.
func (c *Calibrator) RunID() uuid.UUID {
	return c.runID
}

// Store returns the result store.
func (c *Calibrator) Store() *Store {
	return c.store
}

// Channels returns the channels with loaded samples in order.
func (c *Calibrator) Channels() []Channel {
	c.mu.RLock()
	out := make([]Channel, 0, len(c.samples))
	for ch := range c.samples {
		out = append(out, ch)
	}
	c.mu.RUnlock()

	sortChannels(out)
	return out
}

// Groups returns the internal groups in index order.
func (c *Calibrator) Groups() []GroupInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]GroupInfo, len(c.groups))
	for i, g := range c.groups {
		out[i] = GroupInfo{
			External: g.External,
			Sources:  slices.Clone(g.Sources),
			Isotopes: isotope.Merge(g.Isotopes),
		}
	}
	return out
}

// Samples returns a copy of the samples of channel ch in internal group g.
func (c *Calibrator) Samples(ch Channel, g int) ([]float64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	col, ok := c.samples[ch]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrChannelNotFound, ch)
	}
	if g < 0 || g >= len(c.groups) {
		return nil, fmt.Errorf("%w: %d", ErrGroupNotFound, g)
	}
	return slices.Clone(col.Samples(g)), nil
}

// Spectrum returns the calibration result of ch.
func (c *Calibrator) Spectrum(ch Channel) (Spectrum, error) {
	return c.store.Get(ch)
}

// SpectrumAt returns the i-th calibration result in channel order.
func (c *Calibrator) SpectrumAt(i int) (Spectrum, error) {
	return c.store.At(i)
}

// Point returns point i of group g of the result of ch.
func (c *Calibrator) Point(ch Channel, g, i int) (peak.Point, error) {
	s, err := c.store.Get(ch)
	if err != nil {
		return peak.Point{}, err
	}
	return s.Point(g, i)
}

// Calibrate runs peak detection, peak fitting, energy assignment and
// model fitting for one channel and stores the result, replacing any
// previous one. A channel whose points do not support a model is stored
// without one and the model error is returned.
func (c *Calibrator) Calibrate(ctx context.Context, ch Channel) error {
	c.mu.RLock()
	col, ok := c.samples[ch]
	var groups [][]float64
	if ok {
		groups = col.Dense(len(c.groups))
	}
	c.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrChannelNotFound, ch)
	}

	total := 0
	for _, g := range groups {
		total += len(g)
	}
	if total == 0 {
		return fmt.Errorf("%w: %s", ErrNoSamples, ch)
	}

	detected, err := c.detector.DetectGroups(groups)
	if err != nil {
		return fmt.Errorf("calibrate: %s: %w", ch, err)
	}

	fitted := make([][]peak.Point, len(detected))
	for g, points := range detected {
		fitted[g], err = c.fitter.Fit(ctx, groups[g], points)
		if err != nil {
			return err
		}
		fitted[g] = peak.Prune(fitted[g])
	}

	spec := Spectrum{
		Channel:    ch,
		Descriptor: c.fitter.Config().Descriptor,
		fitted:     fitted,
	}

	err = c.determineModels(ctx, &spec)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	c.store.Set(spec)

	return err
}

// RecalibrateModel repeats energy assignment and model fitting on the
// stored peak results of ch. On failure the previous models are kept.
func (c *Calibrator) RecalibrateModel(ctx context.Context, ch Channel) error {
	spec, err := c.store.Get(ch)
	if err != nil {
		return err
	}

	next := spec.Clone()
	if err := c.determineModels(ctx, &next); err != nil {
		return err
	}

	c.store.Set(next)

	return nil
}

// determineModels assigns energies to spec.fitted and fits the models.
func (c *Calibrator) determineModels(ctx context.Context, spec *Spectrum) error {
	isotopes := c.groupIsotopes()

	input := make([]assign.Group, len(spec.fitted))
	for g, points := range spec.fitted {
		input[g] = assign.Group{Points: points}
		if g < len(isotopes) {
			input[g].Isotopes = isotopes[g]
		}
	}

	spec.Groups = peak.CloneGroups(spec.fitted)
	spec.Energy, spec.LineWidth, spec.Scale = nil, nil, 0

	res, err := c.assigner.Assign(input)
	if err != nil {
		return fmt.Errorf("calibrate: %s: %w: %w", spec.Channel, model.ErrInsufficientData, err)
	}

	spec.Groups = res.Groups
	spec.Scale = res.Scale

	points := spec.UniquePoints()

	spec.Energy, err = c.models.FitEnergy(ctx, points)
	if err != nil {
		return fmt.Errorf("calibrate: %s: energy model: %w", spec.Channel, err)
	}

	lineWidth, err := c.models.FitLineWidth(ctx, points)
	if err != nil {
		c.logger.Debug("no line-width model", "channel", spec.Channel, "err", err)
	} else {
		spec.LineWidth = lineWidth
	}

	c.logger.Debug("channel calibrated",
		"channel", spec.Channel, "points", len(points), "model", spec.Energy, "quality", spec.Energy.Quality)

	return nil
}

func (c *Calibrator) groupIsotopes() [][]isotope.Isotope {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([][]isotope.Isotope, len(c.groups))
	for i, g := range c.groups {
		out[i] = g.Isotopes
	}
	return out
}

// CalibrateAll calibrates every loaded channel on the worker pool. Workers
// take the next channel from a shared counter until none is left. A
// failing channel does not stop the others; all channel errors are
// returned joined.
func (c *Calibrator) CalibrateAll(ctx context.Context) error {
	channels := c.Channels()
	workers := max(1, min(c.cfg.Workers, len(channels)))

	var (
		next atomic.Int64
		done atomic.Int64
		mu   sync.Mutex
		errs []error
		wg   sync.WaitGroup
	)

	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for ctx.Err() == nil {
				i := int(next.Add(1) - 1)
				if i >= len(channels) {
					return
				}

				if err := c.Calibrate(ctx, channels[i]); err != nil {
					c.logger.Warn("channel calibration failed", "channel", channels[i], "err", err)
					mu.Lock()
					errs = append(errs, err)
					mu.Unlock()
				}

				c.report(Progress{Stage: "calibrate", Done: int(done.Add(1)), Total: len(channels)})
			}
		}()
	}

	wg.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}

	return errors.Join(errs...)
}

func (c *Calibrator) report(p Progress) {
	if c.cfg.Progress != nil {
		c.cfg.Progress(p)
	}
}
