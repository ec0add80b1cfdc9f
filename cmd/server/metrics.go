package main

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/matst80/zebra-signal/internal/web"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// readiness is flipped by main once listeners are up and again on shutdown.
type readiness struct {
	ready   atomic.Bool
	closing atomic.Bool
}

func (r *readiness) ok() bool { return r.ready.Load() && !r.closing.Load() }

// newMetricsMux serves Prometheus metrics plus lightweight dashboard & state endpoints.
func newMetricsMux(src statsSource, rd *readiness, started time.Time) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/api/state", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(collectStats(src, started))
	})
	mux.HandleFunc("/dashboard", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := web.Render(w, "dashboard", collectStats(src, started).ToTemplateMap()); err != nil {
			http.Error(w, "dashboard unavailable", http.StatusInternalServerError)
		}
	})
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if !rd.ok() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})
	return mux
}
