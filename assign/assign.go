// Package assign matches detected peaks to reference emission lines by a
// global ADC-to-energy scale-factor search.
package assign

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/cwbudde/algo-calib/isotope"
	"github.com/cwbudde/algo-calib/peak"
)

// ErrNoCandidates is returned when no (point, line) pair yields a scale
// factor.
var ErrNoCandidates = errors.New("assign: no scale-factor candidates")

// Group is the input of one acquisition group: its detected points and the
// isotopes present in that group's sources.
type Group struct {
	Points   []peak.Point
	Isotopes []isotope.Isotope
}

// Result is the outcome of an assignment.
type Result struct {
	Scale   float64 // keV per ADC
	Quality float64
	Groups  [][]peak.Point
}

// Assigner performs the scale-factor search.
type Assigner struct {
	cfg    Config
	logger *slog.Logger
}

// NewAssigner returns an assigner with the given options applied.
func NewAssigner(opts ...Option) *Assigner {
	cfg := ApplyOptions(opts...)

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Assigner{cfg: cfg, logger: logger.With("component", "assign")}
}

// Config returns the assigner configuration.
func (a *Assigner) Config() Config {
	return a.cfg
}

// Assign evaluates every scale factor line_energy/peak over all
// (point, isotope, line) triples, keeps the factor with the lowest mean
// quality, and annotates copies of the points with their nearest line.
// Points on excluded lines, points of groups without isotopes and the
// losers of energy conflicts are marked not good.
func (a *Assigner) Assign(groups []Group) (Result, error) {
	var candidates []float64
	for _, g := range groups {
		for _, p := range g.Points {
			if !p.Good || !(p.Peak > 0) {
				continue
			}
			for _, iso := range g.Isotopes {
				for _, l := range iso.Lines {
					if l.Energy > 0 {
						candidates = append(candidates, l.Energy/p.Peak)
					}
				}
			}
		}
	}

	if len(candidates) == 0 {
		return Result{}, ErrNoCandidates
	}

	qualities := make([]float64, len(candidates))
	for i, k := range candidates {
		qualities[i] = a.quality(groups, k)
	}

	best := floats.MinIdx(qualities)
	scale := candidates[best]

	a.logger.Debug("scale factor selected",
		"scale", scale, "quality", qualities[best], "candidates", len(candidates))

	out := make([][]peak.Point, len(groups))
	for gi, g := range groups {
		out[gi] = peak.ClonePoints(g.Points)
		for i := range out[gi] {
			p := &out[gi][i]
			if !p.Good {
				continue
			}

			iso, line, ok := nearest(g.Isotopes, scale*p.Peak)
			if !ok {
				p.Good = false
				continue
			}

			p.Isotope = iso
			p.Line = line
			p.Energy = line.Energy
			p.EnergyFWHM = scale * p.FWHM
			p.Assigned = true
			p.Good = !line.Excluded
		}

		ResolveConflicts(out[gi])
	}

	return Result{Scale: scale, Quality: qualities[best], Groups: out}, nil
}

// quality returns the mean per-point quality for scale k.
func (a *Assigner) quality(groups []Group, k float64) float64 {
	sum, n := 0.0, 0

	for _, g := range groups {
		for _, p := range g.Points {
			if !p.Good {
				continue
			}

			e := k * p.Peak
			_, line, ok := nearest(g.Isotopes, e)
			if !ok {
				continue
			}

			br := line.BranchingRatio
			if !(br > 0) {
				br = 1
			}

			sum += a.cfg.QualityConstant/(line.Energy*br) + math.Abs(e-line.Energy)/line.Energy
			n++
		}
	}

	if n == 0 {
		return math.Inf(1)
	}

	return sum / float64(n)
}

// nearest returns the line closest to energy e. Ties keep the first line.
func nearest(isotopes []isotope.Isotope, e float64) (string, isotope.Line, bool) {
	var (
		name  string
		best  isotope.Line
		dist  = math.Inf(1)
		found bool
	)

	for _, iso := range isotopes {
		for _, l := range iso.Lines {
			if !(l.Energy > 0) {
				continue
			}
			if d := math.Abs(e - l.Energy); d < dist {
				name, best, dist, found = iso.Name, l, d, true
			}
		}
	}

	return name, best, found
}

// ResolveConflicts marks, for every pair of good points assigned the same
// energy, the one with fewer counts as not good.
func ResolveConflicts(points []peak.Point) {
	for i := range points {
		for j := i + 1; j < len(points); j++ {
			a, b := &points[i], &points[j]
			if !a.Good || !b.Good || !a.Assigned || !b.Assigned || a.Energy != b.Energy {
				continue
			}

			if b.Counts > a.Counts {
				a.Good = false
			} else {
				b.Good = false
			}
		}
	}
}

// String describes the result.
func (r Result) String() string {
	return fmt.Sprintf("scale=%.6g keV/ADC quality=%.4g", r.Scale, r.Quality)
}
