package generator

import (
	"crypto/rand"
	"encoding/binary"
	"io"
)

// LCG is a linear congruential generator that never runs a full cycle on one
// parameter set: after modulus draws every parameter is redrawn from the
// entropy source, so leaking the state only exposes the current cycle.
type LCG struct {
	state      uint32
	increment  uint32
	multiplier uint32
	modulus    uint32
	counter    uint32

	entropy io.Reader
}

// NewLCG returns an LCG seeded from crypto/rand.
func NewLCG() *LCG {
	return newLCGFrom(rand.Reader)
}

func newLCGFrom(r io.Reader) *LCG {
	g := &LCG{entropy: r}
	g.reseed()
	return g
}

// Next returns the current state and advances. When the call counter reaches
// the modulus the parameters are redrawn before advancing, so the returned
// value still belongs to the old cycle.
func (g *LCG) Next() (uint32, bool) {
	out := g.state
	g.counter++
	if g.counter == g.modulus {
		g.reseed()
	}
	g.state = (g.multiplier*g.state + g.increment) % g.modulus
	return out, true
}

func (g *LCG) reseed() {
	g.state = g.draw()
	g.increment = g.draw()

	m := g.draw()
	for m == g.multiplier {
		m = g.draw()
	}
	g.multiplier = m

	// x % 0 is undefined; a zero modulus is redrawn.
	mod := g.draw()
	for mod == 0 {
		mod = g.draw()
	}
	g.modulus = mod
	g.counter = 0
}

func (g *LCG) draw() uint32 {
	if g.entropy == nil {
		g.entropy = rand.Reader
	}
	var b [4]byte
	if _, err := io.ReadFull(g.entropy, b[:]); err != nil {
		// crypto/rand does not fail on supported platforms.
		panic("generator: entropy source failed: " + err.Error())
	}
	return binary.LittleEndian.Uint32(b[:])
}
