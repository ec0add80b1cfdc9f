// Package httpx holds small helpers shared by the HTTP handlers.
package httpx

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP returns the address used to key per-client limits. With
// trustProxy the last hop appended to X-Forwarded-For wins, since that is the
// one our own proxy wrote; otherwise the TCP peer address is used.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Values("X-Forwarded-For"); len(xff) > 0 {
			hops := strings.Split(xff[len(xff)-1], ",")
			if ip := strings.TrimSpace(hops[len(hops)-1]); ip != "" {
				return ip
			}
		}
		if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
			return ip
		}
	}
	return RemoteIP(r.RemoteAddr)
}

// RemoteIP strips the port from a host:port address.
func RemoteIP(addr string) string {
	h, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return h
}
