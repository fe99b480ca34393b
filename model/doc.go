// Package model fits calibration models to assigned spectral points.
//
// An Energy model maps peak position (ADC) to energy (keV); a LineWidth
// model maps energy to the energy FWHM. Every model is one Form of a fixed
// catalogue held in a registry, with fitted coefficients and the reduced
// chi-square of the fit as its quality. Models have a one-line text form
//
//	poly2 0.12 1.998 3.1e-06 error 0.05 0.0004 2e-07
//
// which Parse reads back.
package model
