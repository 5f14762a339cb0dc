// Package clientip resolves the key login attempts are limited by
package clientip

import (
	"net"
	"net/http"
	"strings"
)

// FromRequest returns first X-Forwarded-For entry or the peer host
func FromRequest(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
