package session

import (
	"context"
	"time"

	"github.com/matst80/zebra-signal/internal/generator"
	"github.com/matst80/zebra-signal/internal/relay"
)

// maxCollisions is how many redraws a colliding candidate token gets before
// CreateSession gives up.
const maxCollisions = 10

// entry is one reserved token. conn is nil until the first peer connects.
type entry struct {
	conn    relay.Conn
	cancel  context.CancelFunc
	created time.Time
}

// store maps live tokens to their entries. It is not safe for concurrent use;
// every method requires Manager.mu to be held, and the generator is only
// advanced under that same lock.
type store struct {
	gen     generator.Generator
	entries map[uint32]*entry
}

func newStore(gen generator.Generator) *store {
	return &store{gen: gen, entries: make(map[uint32]*entry)}
}

// reserve draws a token not currently in use and inserts e under it.
func (s *store) reserve(e *entry) (uint32, error) {
	for attempt := 0; ; attempt++ {
		token, ok := nextToken(s.gen)
		if !ok {
			return 0, ErrSequenceFault
		}
		if _, taken := s.entries[token]; !taken {
			s.entries[token] = e
			return token, nil
		}
		if attempt == maxCollisions {
			return 0, ErrSessionLimitReached
		}
	}
}

// attach records conn for token. When a peer is already waiting the entry is
// removed and returned so the caller can relay the pair.
func (s *store) attach(token uint32, conn relay.Conn) (paired *entry, err error) {
	e, ok := s.entries[token]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if e.conn == nil {
		e.conn = conn
		return nil, nil
	}
	delete(s.entries, token)
	e.cancel()
	return e, nil
}

// expire removes token only if it still maps to e. A token that was paired
// and later reissued to a new session is left alone.
func (s *store) expire(token uint32, e *entry) bool {
	if cur, ok := s.entries[token]; !ok || cur != e {
		return false
	}
	delete(s.entries, token)
	return true
}

// drain removes and returns every entry.
func (s *store) drain() []*entry {
	out := make([]*entry, 0, len(s.entries))
	for token, e := range s.entries {
		out = append(out, e)
		delete(s.entries, token)
	}
	return out
}

func (s *store) counts() (reserved, waiting int) {
	for _, e := range s.entries {
		if e.conn == nil {
			reserved++
		} else {
			waiting++
		}
	}
	return reserved, waiting
}
