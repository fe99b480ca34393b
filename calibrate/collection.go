package calibrate

import (
	"slices"
	"sort"
)

// Collection holds the samples of one channel, keyed by internal group.
type Collection struct {
	groups map[int][]float64
}

// NewCollection returns an empty collection.
func NewCollection() *Collection {
	return &Collection{groups: make(map[int][]float64)}
}

// Add appends samples to group g.
func (c *Collection) Add(g int, samples ...float64) {
	c.groups[g] = append(c.groups[g], samples...)
}

// Groups returns the populated group indices in ascending order.
func (c *Collection) Groups() []int {
	out := make([]int, 0, len(c.groups))
	for g := range c.groups {
		out = append(out, g)
	}
	sort.Ints(out)
	return out
}

// Samples returns the samples of group g. The slice is owned by the
// collection.
func (c *Collection) Samples(g int) []float64 {
	return c.groups[g]
}

// Len returns the total number of samples.
func (c *Collection) Len() int {
	n := 0
	for _, s := range c.groups {
		n += len(s)
	}
	return n
}

// Dense returns one sample slice per group index 0..n-1; missing groups
// are nil. The slices are copies.
func (c *Collection) Dense(n int) [][]float64 {
	out := make([][]float64, n)
	for g := range out {
		if s, ok := c.groups[g]; ok {
			out[g] = slices.Clone(s)
		}
	}
	return out
}
