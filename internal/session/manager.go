// Package session pairs two connections that present the same one-time token
// and hands the pair to the relay.
//
// A token moves through Reserved (created, no connection) → Waiting (first
// connection held) → Paired (relay started), after which it is gone. A token
// that is not paired within the session timeout expires instead, and any held
// connection is closed.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/matst80/zebra-signal/internal/events"
	"github.com/matst80/zebra-signal/internal/generator"
	"github.com/matst80/zebra-signal/internal/obs"
	"github.com/matst80/zebra-signal/internal/relay"
)

// Config holds the manager's timeouts.
type Config struct {
	// SessionTimeout bounds how long a token may stay unpaired.
	SessionTimeout time.Duration
	// SocketTimeout bounds the lifetime of a relay.
	SocketTimeout time.Duration
}

// Session is what CreateSession hands back to the client.
type Session struct {
	Token   uint32
	Expires uint32 // unix seconds
}

// Stats is a point-in-time view of the manager.
type Stats struct {
	Reserved     int
	Waiting      int
	ActiveRelays int
	Created      int64
	Paired       int64
	Expired      int64
	Rejected     int64
}

// RelayFunc runs a relay to completion.
type RelayFunc func(ctx context.Context, first, second relay.Conn, timeout time.Duration) relay.Result

// Option customizes a Manager.
type Option func(*Manager)

// WithEvents publishes lifecycle events to sink.
func WithEvents(sink events.Sink) Option { return func(m *Manager) { m.events = sink } }

// WithClock replaces time.Now for expiry timestamps.
func WithClock(now func() time.Time) Option { return func(m *Manager) { m.now = now } }

// WithRelay replaces relay.Run.
func WithRelay(fn RelayFunc) Option { return func(m *Manager) { m.relay = fn } }

// Manager owns every live session. All session state and the generator are
// guarded by mu, which is never held across socket I/O.
//
// A panic while mu is held is not recovered: the process dies rather than
// keep serving from a store that may be half-updated.
type Manager struct {
	cfg    Config
	relay  RelayFunc
	events events.Sink
	now    func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	store  *store
	closed bool
	active int

	created, paired, expired, rejected int64

	watchers sync.WaitGroup
	relays   sync.WaitGroup
}

// New returns a Manager drawing tokens from gen.
func New(gen generator.Generator, cfg Config, opts ...Option) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		cfg:    cfg,
		relay:  relay.Run,
		events: events.Nop(),
		now:    time.Now,
		ctx:    ctx,
		cancel: cancel,
		store:  newStore(gen),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// CreateSession reserves a fresh token and starts its expiry countdown.
func (m *Manager) CreateSession() (Session, error) {
	now := m.now()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return Session{}, ErrClosed
	}
	wctx, cancel := context.WithCancel(m.ctx)
	e := &entry{cancel: cancel, created: now}
	token, err := m.store.reserve(e)
	if err != nil {
		m.rejected++
		m.mu.Unlock()
		cancel()
		switch err {
		case ErrSequenceFault:
			obs.Error("session.sequence_fault", obs.Fields{"err": err.Error()})
			obs.ErrorsTotal.WithLabelValues("sequence_fault").Inc()
		case ErrSessionLimitReached:
			obs.Warn("session.limit_reached", obs.Fields{"collisions": maxCollisions + 1})
			obs.ErrorsTotal.WithLabelValues("session_limit").Inc()
		}
		return Session{}, err
	}
	m.created++
	m.watchers.Add(1)
	m.mu.Unlock()

	go m.watch(wctx, token, e)

	expires := now.Add(m.cfg.SessionTimeout)
	obs.SessionsCreatedTotal.Inc()
	obs.SessionsPending.Inc()
	obs.Debug("session.created", obs.Fields{"token": token, "expires": expires.Unix()})
	m.events.Publish(events.Event{Kind: events.SessionCreated, Token: token, At: now})
	return Session{Token: token, Expires: uint32(expires.Unix())}, nil
}

// HandleConnection offers conn for token. The first connection is held until
// a peer arrives; the second one starts a relay between the two and returns
// immediately. On ErrSessionNotFound conn is untouched and the caller should
// close it.
func (m *Manager) HandleConnection(token uint32, conn relay.Conn) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrSessionNotFound
	}
	e, err := m.store.attach(token, conn)
	if err != nil {
		m.mu.Unlock()
		obs.Debug("session.not_found", obs.Fields{"token": token})
		obs.ErrorsTotal.WithLabelValues("session_not_found").Inc()
		return err
	}
	if e == nil {
		m.mu.Unlock()
		obs.Debug("session.waiting", obs.Fields{"token": token})
		m.events.Publish(events.Event{Kind: events.SessionWaiting, Token: token, At: m.now()})
		return nil
	}
	m.paired++
	m.active++
	m.relays.Add(1)
	m.mu.Unlock()

	obs.SessionsPending.Dec()
	obs.SessionsPairedTotal.Inc()
	obs.Info("session.paired", obs.Fields{"token": token, "waited_ms": m.now().Sub(e.created).Milliseconds()})
	m.events.Publish(events.Event{Kind: events.SessionPaired, Token: token, At: m.now()})

	go m.runRelay(token, e.conn, conn)
	return nil
}

func (m *Manager) runRelay(token uint32, first, second relay.Conn) {
	defer m.relays.Done()
	obs.RelaysActive.Inc()
	res := m.relay(m.ctx, first, second, m.cfg.SocketTimeout)
	obs.RelaysActive.Dec()

	m.mu.Lock()
	m.active--
	m.mu.Unlock()

	f := obs.Fields{
		"token":          token,
		"cause":          string(res.Cause),
		"bytes_forward":  res.Forward.Bytes,
		"bytes_backward": res.Backward.Bytes,
		"duration_ms":    res.Duration.Milliseconds(),
	}
	if res.Err != nil {
		f["err"] = res.Err.Error()
	}
	obs.Info("relay.closed", f)
	m.events.Publish(events.Event{
		Kind:     events.RelayClosed,
		Token:    token,
		At:       m.now(),
		Cause:    string(res.Cause),
		Bytes:    res.Forward.Bytes + res.Backward.Bytes,
		Duration: res.Duration.Seconds(),
	})
}

// watch removes the session once SessionTimeout elapses unless ctx is
// cancelled first by pairing or shutdown.
func (m *Manager) watch(ctx context.Context, token uint32, e *entry) {
	defer m.watchers.Done()
	t := time.NewTimer(m.cfg.SessionTimeout)
	defer t.Stop()
	select {
	case <-ctx.Done():
		obs.Debug("session.expiry.cancelled", obs.Fields{"token": token})
		return
	case <-t.C:
	}

	m.mu.Lock()
	removed := m.store.expire(token, e)
	var held relay.Conn
	if removed {
		held = e.conn
		m.expired++
	}
	m.mu.Unlock()
	e.cancel()

	if !removed {
		obs.Debug("session.expiry.already_removed", obs.Fields{"token": token})
		return
	}
	if held != nil {
		_ = held.Close()
	}
	obs.SessionsPending.Dec()
	obs.SessionsExpiredTotal.Inc()
	obs.Info("session.expired", obs.Fields{"token": token, "had_peer": held != nil})
	m.events.Publish(events.Event{Kind: events.SessionExpired, Token: token, At: m.now()})
}

// Stats reports current and lifetime counts.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	reserved, waiting := m.store.counts()
	return Stats{
		Reserved:     reserved,
		Waiting:      waiting,
		ActiveRelays: m.active,
		Created:      m.created,
		Paired:       m.paired,
		Expired:      m.expired,
		Rejected:     m.rejected,
	}
}

// Close drops every pending session, closes held connections, ends running
// relays and waits for all background goroutines. It is safe to call more
// than once.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	pending := m.store.drain()
	m.mu.Unlock()

	// Websocket close handshakes can take seconds each; close held
	// connections in parallel.
	var closing sync.WaitGroup
	for _, e := range pending {
		e.cancel()
		if e.conn != nil {
			closing.Add(1)
			go func(c relay.Conn) {
				defer closing.Done()
				_ = c.Close()
			}(e.conn)
		}
		obs.SessionsPending.Dec()
	}
	m.cancel()
	closing.Wait()
	m.watchers.Wait()
	m.relays.Wait()
	obs.Info("session.manager.closed", obs.Fields{"dropped": len(pending)})
}
