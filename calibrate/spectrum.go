package calibrate

import (
	"fmt"
	"sort"
	"sync"

	"github.com/cwbudde/algo-calib/model"
	"github.com/cwbudde/algo-calib/peak"
	"github.com/cwbudde/algo-calib/peakfit"
)

// Spectrum is the calibration result of one channel. Values handed out by
// the Calibrator are deep copies.
type Spectrum struct {
	Channel Channel

	// Groups holds the assigned points of every group.
	Groups [][]peak.Point

	Energy    *model.Model
	LineWidth *model.Model

	Descriptor peakfit.Descriptor
	Scale      float64 // keV per ADC from the energy assignment

	// fitted keeps the points before assignment for RecalibrateModel.
	fitted [][]peak.Point
}

// Clone returns a deep copy.
func (s Spectrum) Clone() Spectrum {
	s.Groups = peak.CloneGroups(s.Groups)
	s.fitted = peak.CloneGroups(s.fitted)
	s.Energy = s.Energy.Clone()
	s.LineWidth = s.LineWidth.Clone()
	return s
}

// UniquePoints returns the good assigned points sorted by energy with
// duplicate energies removed.
func (s Spectrum) UniquePoints() []peak.Point {
	return model.Points(s.Groups)
}

// Point returns point i of group g.
func (s Spectrum) Point(g, i int) (peak.Point, error) {
	if g < 0 || g >= len(s.Groups) {
		return peak.Point{}, fmt.Errorf("%w: %s group %d", ErrGroupNotFound, s.Channel, g)
	}
	if i < 0 || i >= len(s.Groups[g]) {
		return peak.Point{}, fmt.Errorf("%w: %s group %d point %d", ErrPointNotFound, s.Channel, g, i)
	}
	return s.Groups[g][i].Clone(), nil
}

// Calibrated reports whether an energy model is present.
func (s Spectrum) Calibrated() bool {
	return s.Energy != nil
}

// Store holds the spectra of all calibrated channels.
type Store struct {
	mu      sync.RWMutex
	spectra map[Channel]Spectrum
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{spectra: make(map[Channel]Spectrum)}
}

// Set stores a copy of s, replacing any previous result of its channel.
func (st *Store) Set(s Spectrum) {
	c := s.Clone()

	st.mu.Lock()
	defer st.mu.Unlock()

	st.spectra[s.Channel] = c
}

// Get returns a copy of the spectrum of ch.
func (st *Store) Get(ch Channel) (Spectrum, error) {
	st.mu.RLock()
	s, ok := st.spectra[ch]
	st.mu.RUnlock()

	if !ok {
		return Spectrum{}, fmt.Errorf("%w: %s", ErrChannelNotFound, ch)
	}
	return s.Clone(), nil
}

// At returns a copy of the i-th spectrum in channel order.
func (st *Store) At(i int) (Spectrum, error) {
	channels := st.Channels()
	if i < 0 || i >= len(channels) {
		return Spectrum{}, fmt.Errorf("%w: index %d of %d", ErrChannelNotFound, i, len(channels))
	}
	return st.Get(channels[i])
}

// Len returns the number of stored spectra.
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.spectra)
}

// Channels returns the stored channels in order.
func (st *Store) Channels() []Channel {
	st.mu.RLock()
	out := make([]Channel, 0, len(st.spectra))
	for ch := range st.spectra {
		out = append(out, ch)
	}
	st.mu.RUnlock()

	sortChannels(out)
	return out
}

func sortChannels(chs []Channel) {
	sort.Slice(chs, func(i, j int) bool { return chs[i].Less(chs[j]) })
}
