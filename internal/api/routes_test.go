package api

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"imagegate/internal/models"
)

func newTestRouter(t *testing.T, service ImageService, opts ...HandlerOption) http.Handler {
	t.Helper()
	config := models.NewDefaultConfig()
	return SetupRoutes(NewHandlers(service, opts...), config)
}

func TestRoutes_Endpoints(t *testing.T) {
	mockService := &MockImageService{}
	mockService.On("Generate", mock.Anything, "cat").Return(jpegBytes, nil)
	router := newTestRouter(t, mockService)

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
	}{
		{name: "generate", method: http.MethodPost, path: "/api/generate", body: `{"prompt":"cat"}`, wantStatus: http.StatusOK},
		{name: "quota", method: http.MethodGet, path: "/api/quota", wantStatus: http.StatusOK},
		{name: "health", method: http.MethodGet, path: "/health", wantStatus: http.StatusOK},
		{name: "api health", method: http.MethodGet, path: "/api/health", wantStatus: http.StatusOK},
		{name: "unknown path", method: http.MethodGet, path: "/api/v1/generate", wantStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)
			assert.Equal(t, tt.wantStatus, rr.Code)
		})
	}
}

func TestRoutes_MethodNotAllowed(t *testing.T) {
	router := newTestRouter(t, &MockImageService{})

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/generate"},
		{http.MethodPut, "/api/generate"},
		{http.MethodGet, "/api/edit"},
		{http.MethodDelete, "/api/quota"},
		{http.MethodPost, "/health"},
	} {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, httptest.NewRequest(tc.method, tc.path, nil))

			assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
			assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
			var resp models.ErrorResponse
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
			assert.Equal(t, models.ErrorCodeMethodNotAllowed, resp.Code)
		})
	}
}

func TestRoutes_Preflight(t *testing.T) {
	router := newTestRouter(t, &MockImageService{})

	for _, path := range []string{"/api/generate", "/api/edit", "/api/quota", "/health"} {
		t.Run(path, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodOptions, path, nil)
			req.Header.Set("Origin", "https://app.example.com")
			req.Header.Set("Access-Control-Request-Method", "POST")
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)

			assert.Equal(t, http.StatusNoContent, rr.Code)
			assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, "POST, OPTIONS", rr.Header().Get("Access-Control-Allow-Methods"))
			assert.Equal(t, "Content-Type, Authorization", rr.Header().Get("Access-Control-Allow-Headers"))
			assert.Empty(t, rr.Body.String())
		})
	}
}

func TestRoutes_CORS(t *testing.T) {
	t.Run("restricted origins echo the caller", func(t *testing.T) {
		config := models.NewDefaultConfig()
		config.Server.CORS.AllowedOrigins = []string{"https://app.example.com"}
		router := SetupRoutes(NewHandlers(&MockImageService{}), config)

		req := httptest.NewRequest(http.MethodOptions, "/api/generate", nil)
		req.Header.Set("Origin", "https://app.example.com")
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		assert.Equal(t, "https://app.example.com", rr.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "Origin", rr.Header().Get("Vary"))

		req = httptest.NewRequest(http.MethodOptions, "/api/generate", nil)
		req.Header.Set("Origin", "https://evil.example.com")
		rr = httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("disabled", func(t *testing.T) {
		config := models.NewDefaultConfig()
		config.Server.CORS.Enabled = false
		router := SetupRoutes(NewHandlers(&MockImageService{}), config)

		req := httptest.NewRequest(http.MethodOptions, "/api/generate", nil)
		req.Header.Set("Origin", "https://app.example.com")
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusNoContent, rr.Code)
		assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("exposes quota headers", func(t *testing.T) {
		router := newTestRouter(t, &MockImageService{})
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/quota", nil))
		assert.Contains(t, rr.Header().Get("Access-Control-Expose-Headers"), "Retry-After")
		assert.Contains(t, rr.Header().Get("Access-Control-Expose-Headers"), "X-RateLimit-Remaining")
	})
}

func TestRequestIDMiddleware(t *testing.T) {
	router := newTestRouter(t, &MockImageService{})

	t.Run("generated", func(t *testing.T) {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
		_, err := uuid.Parse(rr.Header().Get("X-Request-ID"))
		assert.NoError(t, err)
	})

	t.Run("inbound id reused", func(t *testing.T) {
		id := uuid.NewString()
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set("X-Request-ID", id)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		assert.Equal(t, id, rr.Header().Get("X-Request-ID"))
	})

	t.Run("malformed id replaced", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set("X-Request-ID", "x\r\nInjected: 1")
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		assert.NotContains(t, rr.Header().Get("X-Request-ID"), "Injected")
	})

	t.Run("error bodies carry the id", func(t *testing.T) {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/generate", strings.NewReader(`{}`)))

		var resp models.ErrorResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, rr.Header().Get("X-Request-ID"), resp.RequestID)
		assert.NotEmpty(t, resp.RequestID)
	})
}

func TestRecoveryMiddleware(t *testing.T) {
	mockService := &MockImageService{}
	mockService.On("Generate", mock.Anything, "boom").Run(func(mock.Arguments) {
		panic("provider client exploded")
	})
	router := newTestRouter(t, mockService)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/generate", strings.NewReader(`{"prompt":"boom"}`)))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	var resp models.ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, models.ErrorCodeInternalError, resp.Code)
}

func TestLoggingMiddleware(t *testing.T) {
	var buf bytes.Buffer
	previous := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(previous) })

	router := newTestRouter(t, &MockImageService{})
	req := httptest.NewRequest(http.MethodPost, "/api/generate", strings.NewReader(`{}`))
	req.Header.Set("X-Forwarded-For", "203.0.113.50")
	router.ServeHTTP(httptest.NewRecorder(), req)

	var entry map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		if entry["msg"] == "HTTP request" {
			break
		}
	}
	assert.Equal(t, "HTTP request", entry["msg"])
	assert.Equal(t, "/api/generate", entry["path"])
	assert.Equal(t, float64(http.StatusBadRequest), entry["status"])
	assert.Equal(t, "203.0.113.50", entry["client"])
}

func TestSecurity_OversizedGenerateBody(t *testing.T) {
	mockService := &MockImageService{}
	router := newTestRouter(t, mockService)

	// A prompt past the body cap is cut off mid-string and rejected.
	huge := `{"prompt":"` + strings.Repeat("x", 2<<20) + `"}`
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/generate", strings.NewReader(huge)))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	mockService.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
}

func TestRoutes_FallbackHandlersRunMiddleware(t *testing.T) {
	router := newTestRouter(t, &MockImageService{})

	for _, tc := range []struct {
		name       string
		method     string
		path       string
		wantStatus int
	}{
		{name: "not found", method: http.MethodGet, path: "/api/v1/generate", wantStatus: http.StatusNotFound},
		{name: "method not allowed", method: http.MethodGet, path: "/api/generate", wantStatus: http.StatusMethodNotAllowed},
	} {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, nil)
			req.Header.Set("Origin", "https://app.example.com")
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)

			assert.Equal(t, tc.wantStatus, rr.Code)
			assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))

			id := rr.Header().Get("X-Request-ID")
			_, err := uuid.Parse(id)
			require.NoError(t, err)

			var resp models.ErrorResponse
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
			assert.Equal(t, id, resp.RequestID)
		})
	}
}
