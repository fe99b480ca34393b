// Package calibrate orchestrates the energy calibration of many detector
// channels.
//
// A Calibrator ingests event sources in parallel into per-channel,
// per-group sample collections (Load), then runs peak detection, peak
// fitting, energy assignment and model fitting for one channel
// (Calibrate) or for all channels on a worker pool (CalibrateAll). Results
// are kept in a Store as Spectrum values and can be serialised with
// WriteReport.
package calibrate
