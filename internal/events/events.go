// Package events publishes session lifecycle notifications for external
// dashboards. Publishing is best-effort and never blocks the caller.
package events

import (
	"context"
	"time"
)

// Kind names a lifecycle transition.
type Kind string

const (
	SessionCreated Kind = "session_created"
	SessionWaiting Kind = "session_waiting"
	SessionPaired  Kind = "session_paired"
	SessionExpired Kind = "session_expired"
	RelayClosed    Kind = "relay_closed"
)

// Event is the JSON document published for each transition.
type Event struct {
	Kind     Kind      `json:"kind"`
	Token    uint32    `json:"token"`
	At       time.Time `json:"at"`
	Cause    string    `json:"cause,omitempty"`
	Bytes    int64     `json:"bytes,omitempty"`
	Duration float64   `json:"duration_seconds,omitempty"`
}

// Sink receives lifecycle events.
type Sink interface {
	Publish(ev Event)
	Close(ctx context.Context) error
}

type nopSink struct{}

// Nop discards every event.
func Nop() Sink { return nopSink{} }

func (nopSink) Publish(Event)              {}
func (nopSink) Close(context.Context) error { return nil }
