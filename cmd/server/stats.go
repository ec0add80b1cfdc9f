package main

import (
	"time"

	"github.com/matst80/zebra-signal/internal/session"
)

// Stats represents current server stats for dashboards & API.
type Stats struct {
	Reserved     int    `json:"reserved"`
	Waiting      int    `json:"waiting"`
	ActiveRelays int    `json:"active_relays"`
	Created      int64  `json:"created"`
	Paired       int64  `json:"paired"`
	Expired      int64  `json:"expired"`
	Rejected     int64  `json:"rejected"`
	Started      string `json:"started"`
	Now          string `json:"now"`

	started time.Time
}

type statsSource interface {
	Stats() session.Stats
}

func collectStats(src statsSource, started time.Time) Stats {
	s := src.Stats()
	return Stats{
		Reserved:     s.Reserved,
		Waiting:      s.Waiting,
		ActiveRelays: s.ActiveRelays,
		Created:      s.Created,
		Paired:       s.Paired,
		Expired:      s.Expired,
		Rejected:     s.Rejected,
		Started:      started.UTC().Format(time.RFC3339),
		Now:          time.Now().UTC().Format(time.RFC3339),
		started:      started,
	}
}

// ToTemplateMap returns a map suited for html/template rendering with expected capitalized keys.
func (s Stats) ToTemplateMap() map[string]any {
	return map[string]any{
		"Title":        "Sessions",
		"Started":      s.started,
		"Reserved":     s.Reserved,
		"Waiting":      s.Waiting,
		"ActiveRelays": s.ActiveRelays,
		"Created":      s.Created,
		"Paired":       s.Paired,
		"Expired":      s.Expired,
		"Rejected":     s.Rejected,
	}
}
