package generator

// Counter emits 0..n-1 and then reports exhaustion. It exists to make token
// collisions and sequence faults reproducible; do not use it in production.
type Counter struct {
	count uint32
	n     uint32
}

// NewCounter returns a counter that yields n values.
func NewCounter(n uint32) *Counter { return &Counter{n: n} }

// NewRandomCounter is the counter's seeding constructor. A counter has
// nothing to seed, so it is a short two-value sequence.
func NewRandomCounter() *Counter { return NewCounter(2) }

func (c *Counter) Next() (uint32, bool) {
	if c.count == c.n {
		return 0, false
	}
	v := c.count
	c.count++
	return v, true
}
