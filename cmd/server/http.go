package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/coder/websocket"
	"github.com/matst80/zebra-signal/internal/httpx"
	"github.com/matst80/zebra-signal/internal/obs"
	"github.com/matst80/zebra-signal/internal/proto"
	"github.com/matst80/zebra-signal/internal/ratelimit"
	"github.com/matst80/zebra-signal/internal/relay"
	"github.com/matst80/zebra-signal/internal/session"
)

// sessionService is the part of session.Manager the handlers use.
type sessionService interface {
	CreateSession() (session.Session, error)
	HandleConnection(token uint32, conn relay.Conn) error
}

type handlers struct {
	sessions sessionService
	limiter  *ratelimit.Limiter
	cfg      *Config
}

func newMux(h *handlers) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /session", h.createSession)
	mux.HandleFunc("GET /ws", h.socket)
	mux.HandleFunc("GET /ping", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("pong"))
	})
	return withRequestLogging(mux)
}

func (h *handlers) createSession(w http.ResponseWriter, r *http.Request) {
	ip := httpx.ClientIP(r, h.cfg.TrustProxy)
	if !h.limiter.Allow(ip) {
		obs.ErrorsTotal.WithLabelValues("rate_limited").Inc()
		w.Header().Set("Retry-After", "1")
		http.Error(w, "Too Many Requests - Try again later", http.StatusTooManyRequests)
		return
	}
	s, err := h.sessions.CreateSession()
	if err != nil {
		// Collisions, sequence faults and shutdown are all retryable for the client.
		http.Error(w, "Service Unavailable - Try again later", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	_ = json.NewEncoder(w).Encode(proto.Session{Token: s.Token, Expires: s.Expires})
}

func (h *handlers) socket(w http.ResponseWriter, r *http.Request) {
	token, err := parseToken(r.URL.Query().Get(proto.TokenParam))
	if err != nil {
		obs.Debug("ws.token.invalid", obs.Fields{"err": err.Error()})
		obs.ErrorsTotal.WithLabelValues("invalid_token").Inc()
		http.Error(w, "invalid token", http.StatusBadRequest)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.cfg.AllowedOrigins,
	})
	if err != nil {
		// Accept has already written the HTTP error response.
		obs.Debug("ws.accept", obs.Fields{"err": err.Error(), "remote": r.RemoteAddr})
		obs.ErrorsTotal.WithLabelValues("ws_accept").Inc()
		return
	}
	conn.SetReadLimit(h.cfg.MaxMessageSize)

	// The connection outlives this handler: it is either held by the session
	// or owned by a relay from here on.
	if err := h.sessions.HandleConnection(token, relay.WebSocket(conn)); err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			_ = conn.Close(websocket.StatusPolicyViolation, proto.ReasonSessionNotFound)
			return
		}
		obs.Error("ws.handle", obs.Fields{"err": err.Error(), "token": token})
		_ = conn.CloseNow()
	}
}

// parseToken accepts the decimal form of a 32-bit token.
func parseToken(s string) (uint32, error) {
	if s == "" {
		return 0, errors.New("missing token")
	}
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, err
	}
	return uint32(n), nil
}

// withRequestLogging logs one line per request. The wrapped writer must keep
// http.Hijacker working or websocket upgrades fail.
func withRequestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(lrw, r)
		obs.Info("http.request", obs.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      lrw.status,
			"duration_ms": time.Since(start).Milliseconds(),
			"remote":      r.RemoteAddr,
			"user_agent":  r.UserAgent(),
		})
	})
}

type loggingResponseWriter struct {
	http.ResponseWriter
	status int
}

func (w *loggingResponseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *loggingResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("underlying ResponseWriter does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}

func (w *loggingResponseWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *loggingResponseWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }
