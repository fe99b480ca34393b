// Package cpu reports the hardware concurrency available to worker pools.
//
// The logical CPU count is sampled once and cached; tests can force a
// different value with SetForcedConcurrency. Describe summarises the SIMD
// level reported by algo-vecmath for startup logging.
package cpu

import (
	"runtime"
	"strings"
	"sync"

	vecmathcpu "github.com/cwbudde/algo-vecmath/cpu"
)

// MinConcurrency is the lower bound returned by Concurrency.
const MinConcurrency = 2

var (
	detected   int
	detectOnce sync.Once

	forced      int
	forcedMutex sync.RWMutex
)

// Concurrency returns the number of workers a fixed-size pool should use:
// the logical CPU count, but never less than MinConcurrency.
func Concurrency() int {
	forcedMutex.RLock()
	f := forced
	forcedMutex.RUnlock()

	if f > 0 {
		return f
	}

	detectOnce.Do(func() {
		detected = max(runtime.NumCPU(), MinConcurrency)
	})

	return detected
}

// ElasticLimit returns the upper bound on parallel stage instances for the
// pipeline supervisor. It is twice the fixed pool size.
func ElasticLimit() int {
	return 2 * Concurrency()
}

// SetForcedConcurrency overrides detection. A value <= 0 removes the override.
// This is intended for testing purposes only.
func SetForcedConcurrency(n int) {
	forcedMutex.Lock()
	defer forcedMutex.Unlock()

	forced = max(n, 0)
}

// Describe returns a short "arch/simd" description, e.g. "amd64/avx2".
func Describe() string {
	f := vecmathcpu.DetectFeatures()

	var levels []string

	switch {
	case f.ForceGeneric:
		levels = append(levels, "generic")
	case f.HasAVX512:
		levels = append(levels, "avx512")
	case f.HasAVX2:
		levels = append(levels, "avx2")
	case f.HasAVX:
		levels = append(levels, "avx")
	case f.HasSSE2:
		levels = append(levels, "sse2")
	case f.HasNEON:
		levels = append(levels, "neon")
	default:
		levels = append(levels, "generic")
	}

	arch := f.Architecture
	if arch == "" {
		arch = runtime.GOARCH
	}

	return arch + "/" + strings.Join(levels, "+")
}
