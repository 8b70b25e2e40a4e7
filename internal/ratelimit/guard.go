package ratelimit

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"imagegate/internal/models"
)

const (
	clientLimitMessage = "IP weekly limit reached"
	globalLimitMessage = "Weekly global limit reached"
)

// Guard runs a quota check for r. It returns true when the request may
// proceed; otherwise it has already written the 429, 503 or 500 response.
// Handlers call it after validating their input so that malformed requests
// cost no quota.
func Guard(w http.ResponseWriter, r *http.Request, gate *Gate) bool {
	if gate == nil {
		return true
	}

	v, err := gate.Check(r.Context(), r)
	if err != nil {
		if errors.Is(err, ErrConfigurationMissing) {
			writeJSON(w, http.StatusInternalServerError,
				withRequestID(w, models.NewErrorResponse("Rate limiter is not configured", models.ErrorCodeConfigurationMissing)))
			return false
		}
		writeJSON(w, http.StatusServiceUnavailable,
			withRequestID(w, models.NewErrorResponse("Rate limit store unavailable", models.ErrorCodeStoreUnavailable)))
		return false
	}

	policy := gate.Policy()
	w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(policy.ClientLimit, 10))
	w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(v.Remaining(policy), 10))
	w.Header().Set("X-RateLimit-Bucket", v.Bucket.String())
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(v.ResetAt.Unix(), 10))

	if v.Allowed {
		return true
	}

	w.Header().Set("Retry-After", strconv.FormatInt(retryAfterSeconds(v.ResetAt, gate.now()), 10))

	message, code := clientLimitMessage, models.ErrorCodeClientLimitExceeded
	if v.Scope == ScopeGlobal {
		message, code = globalLimitMessage, models.ErrorCodeGlobalLimitExceeded
	}
	resp := models.NewQuotaExceededResponse(message, code, string(v.Scope), v.Limit)
	resp.Bucket = v.Bucket.String()
	resp.ResetAt = v.ResetAt
	resp.RequestID = w.Header().Get("X-Request-ID")
	writeJSON(w, http.StatusTooManyRequests, resp)
	return false
}

func retryAfterSeconds(resetAt, now time.Time) int64 {
	secs := int64(math.Ceil(resetAt.Sub(now).Seconds()))
	return max(secs, 1)
}

func withRequestID(w http.ResponseWriter, resp *models.ErrorResponse) *models.ErrorResponse {
	resp.RequestID = w.Header().Get("X-Request-ID")
	return resp
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
