package session

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
	"github.com/matst80/zebra-signal/internal/generator"
)

// nextToken draws one generator value and mixes it into a public token, so
// that consecutive tokens do not reveal the generator's arithmetic.
func nextToken(g generator.Generator) (uint32, bool) {
	v, ok := g.Next()
	if !ok {
		return 0, false
	}
	return mixToken(v), true
}

func mixToken(v uint32) uint32 {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return uint32(xxhash.Sum64(b[:]))
}
