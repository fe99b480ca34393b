// Package peak finds candidate emission lines in a segmented spectrum and
// describes them as spectral points.
package peak

import "github.com/cwbudde/algo-calib/isotope"

// Fit records the parametric peak fit that refined a point.
type Fit struct {
	Descriptor       string
	Params           []float64
	Errors           []float64
	ReducedChiSquare float64
}

// Point is one detected peak of a channel spectrum. The detector fills the
// position fields, the peak fitter may refine them, and the energy
// assignment fills the isotope fields.
type Point struct {
	Peak   float64 // peak position (ADC)
	Low    float64 // lower fit-window edge (ADC)
	High   float64 // upper fit-window edge (ADC)
	FWHM   float64 // full width at half maximum (ADC)
	Counts float64 // background-corrected counts
	Good   bool

	Fit *Fit

	Isotope    string
	Line       isotope.Line
	Energy     float64 // keV
	EnergyFWHM float64 // keV
	Assigned   bool
}

// Clone returns a deep copy.
func (p Point) Clone() Point {
	if p.Fit != nil {
		f := *p.Fit
		f.Params = append([]float64(nil), p.Fit.Params...)
		f.Errors = append([]float64(nil), p.Fit.Errors...)
		p.Fit = &f
	}
	return p
}

// ClonePoints deep-copies a point list.
func ClonePoints(points []Point) []Point {
	if points == nil {
		return nil
	}
	out := make([]Point, len(points))
	for i, p := range points {
		out[i] = p.Clone()
	}
	return out
}

// CloneGroups deep-copies a list of point lists.
func CloneGroups(groups [][]Point) [][]Point {
	if groups == nil {
		return nil
	}
	out := make([][]Point, len(groups))
	for i, g := range groups {
		out[i] = ClonePoints(g)
	}
	return out
}

// Prune returns the good points of the list.
func Prune(points []Point) []Point {
	out := make([]Point, 0, len(points))
	for _, p := range points {
		if p.Good {
			out = append(out, p)
		}
	}
	return out
}
