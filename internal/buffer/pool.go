package buffer

import "sync"

// DefaultCapacity is the initial capacity of buffers created by a Pool.
const DefaultCapacity = 4096

// Pool provides sync.Pool-based Buffer reuse to reduce GC pressure while
// streaming large input files.
type Pool struct {
	pool sync.Pool
}

// NewPool returns a Pool ready for use.
func NewPool() *Pool {
	return &Pool{
		pool: sync.Pool{
			New: func() any {
				return New(DefaultCapacity)
			},
		},
	}
}

// Get returns an empty Buffer. Callers must return it via Put when done.
func (p *Pool) Get() *Buffer {
	b := p.pool.Get().(*Buffer)
	b.Reset()
	return b
}

// Put returns a Buffer to the pool for reuse.
// The caller must not use the buffer after calling Put.
func (p *Pool) Put(b *Buffer) {
	if b == nil {
		return
	}
	p.pool.Put(b)
}
