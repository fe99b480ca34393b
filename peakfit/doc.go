// Package peakfit refines detected peaks by fitting a parametric line
// shape to a finely rebinned spectrum.
//
// A Descriptor selects the parametrisation: the Method (read the position
// off the block histogram, or fit), the peak Shape, the Background and the
// EnergyLoss tail. The textual form of a descriptor is stored in
// calibration reports:
//
//	method=fit shape=gauss background=linear energyloss=none
package peakfit
