package session

import "errors"

var (
	// ErrSessionNotFound is returned when a token does not name a live
	// session. The caller should drop the connection; retrying is pointless.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionLimitReached is returned when ten consecutive candidate tokens
	// collided with live sessions. It is transient; retry later.
	ErrSessionLimitReached = errors.New("session limit reached")

	// ErrSequenceFault is returned when the token generator is exhausted. The
	// generators used in production never exhaust, so this indicates a bug.
	ErrSequenceFault = errors.New("token sequence fault")

	// ErrClosed is returned by CreateSession after Close.
	ErrClosed = errors.New("session manager closed")
)
