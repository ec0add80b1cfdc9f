package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/matst80/zebra-signal/internal/events"
	"github.com/matst80/zebra-signal/internal/generator"
	"github.com/matst80/zebra-signal/internal/relay"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	name   string
	closed atomic.Bool
}

func (c *fakeConn) ReadFrame(context.Context) (relay.Frame, error) { return relay.Frame{}, nil }
func (c *fakeConn) WriteFrame(context.Context, relay.Frame) error  { return nil }
func (c *fakeConn) Close() error                                   { c.closed.Store(true); return nil }

type pair struct{ first, second relay.Conn }

// recordingRelay captures every started relay and, unless block is set,
// returns immediately.
type recordingRelay struct {
	mu    sync.Mutex
	pairs []pair
	block bool
}

func (r *recordingRelay) run(ctx context.Context, first, second relay.Conn, _ time.Duration) relay.Result {
	r.mu.Lock()
	r.pairs = append(r.pairs, pair{first, second})
	r.mu.Unlock()
	if r.block {
		<-ctx.Done()
		return relay.Result{Cause: relay.CauseShutdown}
	}
	return relay.Result{Cause: relay.CauseFirstClosed}
}

func (r *recordingRelay) started() []pair {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]pair(nil), r.pairs...)
}

type recordingSink struct {
	mu    sync.Mutex
	kinds []events.Kind
}

func (s *recordingSink) Publish(ev events.Event) {
	s.mu.Lock()
	s.kinds = append(s.kinds, ev.Kind)
	s.mu.Unlock()
}

func (s *recordingSink) Close(context.Context) error { return nil }

func (s *recordingSink) seen() []events.Kind {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]events.Kind(nil), s.kinds...)
}

// fixedGen yields vals in order and then repeats the last one forever.
type fixedGen struct {
	vals  []uint32
	draws int
}

func (g *fixedGen) Next() (uint32, bool) {
	i := g.draws
	if i >= len(g.vals) {
		i = len(g.vals) - 1
	}
	g.draws++
	return g.vals[i], true
}

func newTestManager(t *testing.T, gen generator.Generator, cfg Config, opts ...Option) (*Manager, *recordingRelay) {
	t.Helper()
	rr := &recordingRelay{}
	m := New(gen, cfg, append([]Option{WithRelay(rr.run)}, opts...)...)
	t.Cleanup(m.Close)
	return m, rr
}

func waitForRelays(t *testing.T, rr *recordingRelay, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return len(rr.started()) == n }, 2*time.Second, 5*time.Millisecond)
}

func TestCreateSessionTokensAreUnique(t *testing.T) {
	m, _ := newTestManager(t, generator.NewLCG(), Config{SessionTimeout: time.Minute, SocketTimeout: time.Minute})
	seen := make(map[uint32]bool)
	for i := 0; i < 2000; i++ {
		s, err := m.CreateSession()
		require.NoError(t, err)
		require.False(t, seen[s.Token], "duplicate token %d", s.Token)
		seen[s.Token] = true
	}
	assert.Equal(t, 2000, m.Stats().Reserved)
}

func TestCreateSessionExpiresField(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	m, _ := newTestManager(t, generator.NewLCG(), Config{SessionTimeout: 60 * time.Second}, WithClock(func() time.Time { return now }))
	s, err := m.CreateSession()
	require.NoError(t, err)
	assert.Equal(t, uint32(1_700_000_060), s.Expires)
}

func TestTokensAreMixed(t *testing.T) {
	m, _ := newTestManager(t, generator.NewCounter(3), Config{SessionTimeout: time.Minute})
	for i := uint32(0); i < 3; i++ {
		s, err := m.CreateSession()
		require.NoError(t, err)
		assert.Equal(t, mixToken(i), s.Token)
		assert.NotEqual(t, i, s.Token)
	}
}

func TestPairing(t *testing.T) {
	sink := &recordingSink{}
	m, rr := newTestManager(t, generator.NewLCG(), Config{SessionTimeout: time.Minute, SocketTimeout: time.Minute}, WithEvents(sink))
	s, err := m.CreateSession()
	require.NoError(t, err)

	a, b, c := &fakeConn{name: "a"}, &fakeConn{name: "b"}, &fakeConn{name: "c"}
	require.NoError(t, m.HandleConnection(s.Token, a))
	st := m.Stats()
	assert.Equal(t, 0, st.Reserved)
	assert.Equal(t, 1, st.Waiting)
	assert.Empty(t, rr.started())

	require.NoError(t, m.HandleConnection(s.Token, b))
	waitForRelays(t, rr, 1)
	p := rr.started()[0]
	assert.Same(t, a, p.first)
	assert.Same(t, b, p.second)

	assert.ErrorIs(t, m.HandleConnection(s.Token, c), ErrSessionNotFound)
	assert.False(t, c.closed.Load())

	st = m.Stats()
	assert.Equal(t, 0, st.Waiting)
	assert.Equal(t, int64(1), st.Paired)

	require.Eventually(t, func() bool {
		k := sink.seen()
		return len(k) == 4 && k[3] == events.RelayClosed
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []events.Kind{events.SessionCreated, events.SessionWaiting, events.SessionPaired, events.RelayClosed}, sink.seen())
}

func TestHandleConnectionUnknownToken(t *testing.T) {
	m, _ := newTestManager(t, generator.NewLCG(), Config{SessionTimeout: time.Minute})
	assert.ErrorIs(t, m.HandleConnection(12345, &fakeConn{}), ErrSessionNotFound)
}

func TestWaitingSessionExpires(t *testing.T) {
	m, rr := newTestManager(t, generator.NewLCG(), Config{SessionTimeout: 30 * time.Millisecond})
	s, err := m.CreateSession()
	require.NoError(t, err)
	held := &fakeConn{}
	require.NoError(t, m.HandleConnection(s.Token, held))

	require.Eventually(t, func() bool { return m.Stats().Expired == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.True(t, held.closed.Load())
	assert.ErrorIs(t, m.HandleConnection(s.Token, &fakeConn{}), ErrSessionNotFound)
	assert.Empty(t, rr.started())
}

func TestReservedSessionExpires(t *testing.T) {
	m, _ := newTestManager(t, generator.NewLCG(), Config{SessionTimeout: 20 * time.Millisecond})
	s, err := m.CreateSession()
	require.NoError(t, err)

	require.Eventually(t, func() bool { return m.Stats().Reserved == 0 }, 2*time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, m.HandleConnection(s.Token, &fakeConn{}), ErrSessionNotFound)
}

func TestPairingCancelsExpiry(t *testing.T) {
	m, rr := newTestManager(t, generator.NewLCG(), Config{SessionTimeout: 200 * time.Millisecond})
	s, err := m.CreateSession()
	require.NoError(t, err)
	a, b := &fakeConn{}, &fakeConn{}
	require.NoError(t, m.HandleConnection(s.Token, a))
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, m.HandleConnection(s.Token, b))

	time.Sleep(200 * time.Millisecond)
	st := m.Stats()
	assert.Equal(t, int64(0), st.Expired)
	assert.Equal(t, int64(1), st.Paired)
	waitForRelays(t, rr, 1)
	// The relay owns the sockets; expiry must not have closed them.
	assert.False(t, a.closed.Load())
	assert.False(t, b.closed.Load())
}

func TestCollisionBackoff(t *testing.T) {
	gen := &fixedGen{vals: []uint32{5}}
	m, _ := newTestManager(t, gen, Config{SessionTimeout: time.Minute})
	_, err := m.CreateSession()
	require.NoError(t, err)
	gen.draws = 0

	_, err = m.CreateSession()
	assert.ErrorIs(t, err, ErrSessionLimitReached)
	assert.Equal(t, maxCollisions+1, gen.draws)

	st := m.Stats()
	assert.Equal(t, 1, st.Reserved)
	assert.Equal(t, int64(1), st.Rejected)
}

func TestCollisionRecoversBeforeLimit(t *testing.T) {
	vals := make([]uint32, 0, 12)
	vals = append(vals, 5)
	for i := 0; i < maxCollisions; i++ {
		vals = append(vals, 5)
	}
	vals = append(vals, 6)
	gen := &fixedGen{vals: vals}
	m, _ := newTestManager(t, gen, Config{SessionTimeout: time.Minute})

	_, err := m.CreateSession()
	require.NoError(t, err)
	s, err := m.CreateSession()
	require.NoError(t, err)
	assert.Equal(t, mixToken(6), s.Token)
}

func TestSequenceFault(t *testing.T) {
	m, _ := newTestManager(t, generator.NewCounter(1), Config{SessionTimeout: time.Minute})
	_, err := m.CreateSession()
	require.NoError(t, err)
	_, err = m.CreateSession()
	assert.ErrorIs(t, err, ErrSequenceFault)
	assert.Equal(t, 1, m.Stats().Reserved)
}

func TestCloseDropsPendingAndEndsRelays(t *testing.T) {
	rr := &recordingRelay{block: true}
	m := New(generator.NewLCG(), Config{SessionTimeout: time.Minute, SocketTimeout: time.Minute}, WithRelay(rr.run))

	waiting, err := m.CreateSession()
	require.NoError(t, err)
	held := &fakeConn{}
	require.NoError(t, m.HandleConnection(waiting.Token, held))

	paired, err := m.CreateSession()
	require.NoError(t, err)
	require.NoError(t, m.HandleConnection(paired.Token, &fakeConn{}))
	require.NoError(t, m.HandleConnection(paired.Token, &fakeConn{}))
	waitForRelays(t, rr, 1)
	assert.Equal(t, 1, m.Stats().ActiveRelays)

	done := make(chan struct{})
	go func() { m.Close(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return")
	}

	assert.True(t, held.closed.Load())
	assert.Equal(t, 0, m.Stats().ActiveRelays)
	_, err = m.CreateSession()
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, m.HandleConnection(waiting.Token, &fakeConn{}), ErrSessionNotFound)
	m.Close()
}

func TestConcurrentCreatePairExpire(t *testing.T) {
	m, rr := newTestManager(t, generator.NewLCG(), Config{SessionTimeout: 5 * time.Millisecond})

	const workers = 16
	const rounds = 200
	var wg sync.WaitGroup
	var pairedOK atomic.Int64
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				s, err := m.CreateSession()
				if err != nil {
					t.Errorf("create: %v", err)
					return
				}
				a := &fakeConn{name: fmt.Sprintf("%d-%d-a", w, i)}
				b := &fakeConn{name: fmt.Sprintf("%d-%d-b", w, i)}
				if i%3 == 0 {
					time.Sleep(time.Duration(i%7) * time.Millisecond)
				}
				if m.HandleConnection(s.Token, a) != nil {
					continue
				}
				if i%5 == 0 {
					continue // leave waiting, let it expire
				}
				if m.HandleConnection(s.Token, b) == nil {
					pairedOK.Add(1)
				}
			}
		}(w)
	}
	wg.Wait()

	require.Eventually(t, func() bool {
		st := m.Stats()
		return st.Reserved == 0 && st.Waiting == 0
	}, 2*time.Second, 5*time.Millisecond)

	waitForRelays(t, rr, int(pairedOK.Load()))
	seen := make(map[relay.Conn]bool)
	for _, p := range rr.started() {
		require.False(t, seen[p.first], "socket relayed twice")
		require.False(t, seen[p.second], "socket relayed twice")
		seen[p.first], seen[p.second] = true, true
		// Expiry never touches a socket that was handed to a relay.
		assert.False(t, p.first.(*fakeConn).closed.Load())
		assert.False(t, p.second.(*fakeConn).closed.Load())
	}

	st := m.Stats()
	assert.Equal(t, int64(workers*rounds), st.Created)
	assert.Equal(t, st.Created, st.Paired+st.Expired)
}
