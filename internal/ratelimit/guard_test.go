package ratelimit

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// guarded runs next only when Guard admits the request.
func guarded(gate *Gate, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if Guard(w, r, gate) {
			next(w, r)
		}
	})
}

func newClientRequest(ip string) *http.Request {
	req := httptest.NewRequest("POST", "/api/generate", nil)
	req.Header.Set("X-Forwarded-For", ip)
	return req
}

func TestGuard_AllowedRequest(t *testing.T) {
	gate := newTestGate(t, newFakeStore())
	handler := guarded(gate, okHandler)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, newClientRequest("192.168.1.1"))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "10", rr.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "9", rr.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "2024-W03", rr.Header().Get("X-RateLimit-Bucket"))
	assert.NotEmpty(t, rr.Header().Get("X-RateLimit-Reset"))
	assert.Empty(t, rr.Header().Get("Retry-After"))
}

func TestGuard_ClientLimitReached(t *testing.T) {
	gate := newTestGate(t, newFakeStore())
	handler := guarded(gate, okHandler)

	for i := 0; i < 10; i++ {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, newClientRequest("192.168.1.1"))
		assert.Equal(t, http.StatusOK, rr.Code)
	}

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, newClientRequest("192.168.1.1"))

	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.Equal(t, "0", rr.Header().Get("X-RateLimit-Remaining"))
	// fixedNow is Wednesday 12:00; the bucket ends Monday 00:00.
	assert.Equal(t, "388800", rr.Header().Get("Retry-After"))

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	assert.Equal(t, "IP weekly limit reached", body["error"])
	assert.Equal(t, "CLIENT_LIMIT_EXCEEDED", body["code"])
	assert.Equal(t, "client", body["scope"])
	assert.Equal(t, float64(10), body["limit"])
	assert.Equal(t, "2024-W03", body["bucket"])

	// A different client is unaffected.
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, newClientRequest("192.168.1.2"))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestGuard_GlobalLimitReached(t *testing.T) {
	store := newFakeStore()
	store.counts["rate:global:2024-W03"] = 1000
	gate := newTestGate(t, store)
	handler := guarded(gate, okHandler)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, newClientRequest("192.168.1.1"))

	assert.Equal(t, http.StatusTooManyRequests, rr.Code)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	assert.Equal(t, "Weekly global limit reached", body["error"])
	assert.Equal(t, "GLOBAL_LIMIT_EXCEEDED", body["code"])
	assert.Equal(t, "global", body["scope"])
	assert.Equal(t, float64(1000), body["limit"])
}

func TestGuard_StoreUnavailable(t *testing.T) {
	store := newFakeStore()
	store.failing["rate:global:2024-W03"] = errors.New("dial tcp: connection refused")
	gate := newTestGate(t, store)

	called := false
	handler := guarded(gate, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	rr := httptest.NewRecorder()
	rr.Header().Set("X-Request-ID", "req-123")
	handler.ServeHTTP(rr, newClientRequest("192.168.1.1"))

	assert.False(t, called)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	assert.Equal(t, "STORE_UNAVAILABLE", body["code"])
	assert.Equal(t, "req-123", body["request_id"])
	assert.Empty(t, rr.Header().Get("X-RateLimit-Remaining"))
}

func TestGuard_ConfigurationMissing(t *testing.T) {
	store := newFakeStore()
	store.failing["rate:global:2024-W03"] = ErrConfigurationMissing
	store.failing["rate:ip:192.168.1.1:2024-W03"] = ErrConfigurationMissing
	gate := newTestGate(t, store)
	handler := guarded(gate, okHandler)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, newClientRequest("192.168.1.1"))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	assert.Equal(t, "CONFIGURATION_MISSING", body["code"])
}

func TestGuard_NilGateAdmits(t *testing.T) {
	handler := guarded(nil, okHandler)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, newClientRequest("192.168.1.1"))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, rr.Header().Get("X-RateLimit-Limit"))
}

func TestRetryAfterSeconds(t *testing.T) {
	reset := NextBucketStart(fixedNow)

	assert.Equal(t, int64(388800), retryAfterSeconds(reset, fixedNow))
	assert.Equal(t, int64(1), retryAfterSeconds(reset, reset))
	assert.Equal(t, int64(1), retryAfterSeconds(reset, reset.Add(-1)))
}
