package common

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP returns the caller address as seen by the server. chi's RealIP
// middleware runs first in the api router and has already folded trusted proxy
// headers into RemoteAddr, so forwarding headers are not consulted here.
func ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
