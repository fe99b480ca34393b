package buffer

// Buffer wraps a float64 slice with append-and-reset semantics.
type Buffer struct {
	samples []float64
}

// New returns an empty Buffer with the given capacity.
func New(capacity int) *Buffer {
	if capacity < 0 {
		capacity = 0
	}
	return &Buffer{samples: make([]float64, 0, capacity)}
}

// Samples returns the underlying slice. It is only valid until the next
// Reset or until the buffer is returned to its pool.
func (b *Buffer) Samples() []float64 {
	return b.samples
}

// Len returns the number of buffered samples.
func (b *Buffer) Len() int {
	return len(b.samples)
}

// Cap returns the current capacity of the backing slice.
func (b *Buffer) Cap() int {
	return cap(b.samples)
}

// Append adds values to the buffer.
func (b *Buffer) Append(values ...float64) {
	b.samples = append(b.samples, values...)
}

// Reset empties the buffer while keeping its capacity.
func (b *Buffer) Reset() {
	b.samples = b.samples[:0]
}

// Bytes returns the approximate memory footprint of the backing array.
func (b *Buffer) Bytes() int64 {
	return int64(cap(b.samples)) * 8
}

// Copy returns a deep copy of the buffered samples.
func (b *Buffer) Copy() []float64 {
	s := make([]float64, len(b.samples))
	copy(s, b.samples)
	return s
}
