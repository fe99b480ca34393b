// Package stages provides the event stages of the calibration tools: a
// reader, the energy calibration, an energy window, a per-channel
// spectrum accumulator and a writer.
package stages
