// Package membudget decides whether a bulk allocation still fits into the
// process memory budget. Ingestion workers probe before growing their
// accumulation buffers and stop reading when the probe fails.
package membudget

import (
	"math"
	"runtime/debug"
	"runtime/metrics"
	"sync"
)

const heapMetric = "/memory/classes/heap/objects:bytes"

// Budget is a soft memory ceiling. The zero value follows the runtime
// memory limit (GOMEMLIMIT / debug.SetMemoryLimit) and never fails when no
// limit is configured.
type Budget struct {
	// Limit is the ceiling in bytes. Zero means "use the runtime limit".
	Limit int64

	// Headroom is the fraction of the ceiling kept free, in [0, 1).
	Headroom float64

	mu     sync.Mutex
	sample []metrics.Sample
	heapFn func() int64
}

// New returns a Budget with the given ceiling and headroom.
func New(limit int64, headroom float64) *Budget {
	if headroom < 0 || headroom >= 1 {
		headroom = 0
	}
	return &Budget{Limit: limit, Headroom: headroom}
}

// Probe reports whether n more bytes can be allocated without crossing the
// ceiling minus headroom.
func (b *Budget) Probe(n int64) bool {
	if b == nil {
		return true
	}

	limit := b.Limit
	if limit <= 0 {
		limit = debug.SetMemoryLimit(-1)
	}

	if limit <= 0 || limit == math.MaxInt64 {
		return true
	}

	allowed := float64(limit) * (1 - b.Headroom)

	return float64(b.heapInUse()+n) <= allowed
}

// InUse returns the live heap size in bytes.
func (b *Budget) InUse() int64 {
	return b.heapInUse()
}

func (b *Budget) heapInUse() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.heapFn != nil {
		return b.heapFn()
	}

	if b.sample == nil {
		b.sample = []metrics.Sample{{Name: heapMetric}}
	}

	metrics.Read(b.sample)

	if b.sample[0].Value.Kind() != metrics.KindUint64 {
		return 0
	}

	return int64(b.sample[0].Value.Uint64())
}
