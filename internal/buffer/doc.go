// Package buffer provides a reusable sample buffer and pool for the
// ingestion workers. Each worker accumulates raw ADC values per channel and
// group into pooled buffers, hands them to the shared store on merge, and
// returns them to the pool afterwards.
package buffer
