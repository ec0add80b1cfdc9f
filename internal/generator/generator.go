// Package generator provides the pseudo-random sequences session tokens are
// drawn from.
package generator

import "fmt"

// Generator produces a sequence of 32-bit values. ok is false once the
// sequence is exhausted. Implementations are not safe for concurrent use.
type Generator interface {
	Next() (v uint32, ok bool)
}

// Kinds accepted by New.
const (
	KindLCG     = "lcg"
	KindCounter = "counter"
)

// New returns a freshly seeded generator of the named kind.
func New(kind string) (Generator, error) {
	switch kind {
	case "", KindLCG:
		return NewLCG(), nil
	case KindCounter:
		return NewRandomCounter(), nil
	default:
		return nil, fmt.Errorf("unknown generator %q", kind)
	}
}
