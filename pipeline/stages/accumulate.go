package stages

import (
	"context"
	"sort"
	"sync"

	"github.com/cwbudde/algo-calib/binning"
	"github.com/cwbudde/algo-calib/calibrate"
	"github.com/cwbudde/algo-calib/eventio"
	"github.com/cwbudde/algo-calib/pipeline"
)

// Spectra collects calibrated energies per channel. It is safe for
// concurrent use.
type Spectra struct {
	mu       sync.Mutex
	energies map[calibrate.Channel]binning.Binner
	mode     binning.Mode
	opts     []binning.Option
}

// NewSpectra returns an empty collection of fixed-width histograms using
// opts.
func NewSpectra(opts ...binning.Option) *Spectra {
	return NewSpectraMode(binning.ModeFixedWidth, opts...)
}

// NewSpectraMode returns an empty collection whose histograms are built by
// the binner of the given mode.
func NewSpectraMode(mode binning.Mode, opts ...binning.Option) *Spectra {
	return &Spectra{
		energies: make(map[calibrate.Channel]binning.Binner),
		mode:     mode,
		opts:     opts,
	}
}

// Mode returns the binning mode of the collection.
func (s *Spectra) Mode() binning.Mode {
	return s.mode
}

// Add records one energy for ch.
func (s *Spectra) Add(ch calibrate.Channel, energy float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.energies[ch]
	if !ok {
		b = binning.New(s.mode, s.opts...)
		s.energies[ch] = b
	}
	b.Add(energy)
}

// Channels returns the channels seen so far in order.
func (s *Spectra) Channels() []calibrate.Channel {
	s.mu.Lock()
	out := make([]calibrate.Channel, 0, len(s.energies))
	for ch := range s.energies {
		out = append(out, ch)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// Histogram returns the energy histogram of ch.
func (s *Spectra) Histogram(ch calibrate.Channel) (binning.Histogram, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.energies[ch]
	if !ok {
		return binning.Histogram{}, calibrate.ErrChannelNotFound
	}
	return b.Histogram()
}

// Accumulate adds the energy of every calibrated event to a Spectra.
// Instances share the collection.
type Accumulate struct {
	spectra *Spectra
}

// NewAccumulate returns an accumulator stage feeding s.
func NewAccumulate(s *Spectra) *Accumulate {
	return &Accumulate{spectra: s}
}

// Spectra returns the shared collection.
func (a *Accumulate) Spectra() *Spectra {
	return a.spectra
}

func (a *Accumulate) Name() string               { return "accumulate" }
func (a *Accumulate) Init(context.Context) error { return nil }
func (a *Accumulate) Finalize() error            { return nil }
func (a *Accumulate) Concurrent() bool           { return true }

func (a *Accumulate) Clone() (pipeline.Stage, error) {
	return &Accumulate{spectra: a.spectra}, nil
}

func (a *Accumulate) Analyze(_ context.Context, ev *eventio.Event) (bool, error) {
	if ev.Calibrated {
		a.spectra.Add(calibrate.Channel{Detector: ev.Detector, Element: ev.Element}, ev.Energy)
	}
	return true, nil
}
