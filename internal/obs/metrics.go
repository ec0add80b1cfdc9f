package obs

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{Name: "zebra_sessions_created_total", Help: "Sessions created"})
	SessionsPending      = promauto.NewGauge(prometheus.GaugeOpts{Name: "zebra_sessions_pending", Help: "Sessions reserved or waiting for a peer"})
	SessionsPairedTotal  = promauto.NewCounter(prometheus.CounterOpts{Name: "zebra_sessions_paired_total", Help: "Sessions paired into a relay"})
	SessionsExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{Name: "zebra_sessions_expired_total", Help: "Sessions expired before a peer arrived"})
	RelaysActive         = promauto.NewGauge(prometheus.GaugeOpts{Name: "zebra_relays_active", Help: "Relays currently forwarding"})
	RelayBytesTotal      = promauto.NewCounterVec(prometheus.CounterOpts{Name: "zebra_relay_bytes_total", Help: "Bytes forwarded by relays"}, []string{"direction"})
	RelayEndTotal        = promauto.NewCounterVec(prometheus.CounterOpts{Name: "zebra_relay_end_total", Help: "Relay terminations by cause"}, []string{"cause"})
	RelayDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{Name: "zebra_relay_duration_seconds", Help: "Relay lifetime seconds", Buckets: prometheus.ExponentialBuckets(0.01, 2, 16)})
	ErrorsTotal          = promauto.NewCounterVec(prometheus.CounterOpts{Name: "zebra_errors_total", Help: "Errors by type"}, []string{"type"})
)
