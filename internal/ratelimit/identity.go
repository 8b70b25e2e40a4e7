package ratelimit

import (
	"net/http"
	"strings"
)

// UnknownIdentity is shared by every request that carries no forwarding headers.
const UnknownIdentity = "unknown"

// ClientIdentity derives the per-client quota key from proxy headers: the
// first X-Forwarded-For entry, else X-Real-IP, else UnknownIdentity. The value
// is not validated as an address, and RemoteAddr is never consulted.
func ClientIdentity(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}

	return UnknownIdentity
}
