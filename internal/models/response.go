// Package models - API response types and error handling.
// This file defines all outgoing API response structures with consistent formatting.
//
// Response Design Principles:
// - Consistent JSON structure across all endpoints
// - Optional fields use omitempty to reduce response size
// - Quota denials carry the breached scope and its limit so clients can explain the refusal
// - Store outages use a different status and code than quota denials
// - RFC3339 timestamps for international compatibility
package models

import (
	"bytes"
	"encoding/json"
	"time"
)

// ErrorResponse provides structured error information with debugging context.
//
// Error Handling Design:
// - Consistent error structure across all endpoints
// - Machine-readable error codes for programmatic handling
// - Human-readable messages for user interfaces
// - Details map for field-specific validation errors
// - Request ID for correlating client reports with logs
type ErrorResponse struct {
	Error     string            `json:"error"`                // Error type (always "error")
	Message   string            `json:"message"`              // Human-readable error description
	Code      string            `json:"code,omitempty"`       // Machine-readable error code
	Details   map[string]string `json:"details,omitempty"`    // Field-specific error details
	Timestamp time.Time         `json:"timestamp"`            // Error occurrence time
	RequestID string            `json:"request_id,omitempty"` // Unique request identifier
}

// QuotaExceededResponse is returned with 429 when a weekly quota is spent.
//
// Unlike ErrorResponse, the error field carries the human-readable reason,
// which is what browser clients display verbatim.
type QuotaExceededResponse struct {
	Error     string    `json:"error"`                // Human-readable reason
	Code      string    `json:"code"`                 // CLIENT_LIMIT_EXCEEDED or GLOBAL_LIMIT_EXCEEDED
	Scope     string    `json:"scope"`                // "client" or "global"
	Limit     int64     `json:"limit"`                // The breached ceiling
	Bucket    string    `json:"bucket"`               // Period bucket the request was counted in
	ResetAt   time.Time `json:"reset_at"`             // Start of the next bucket
	Timestamp time.Time `json:"timestamp"`            // Denial time
	RequestID string    `json:"request_id,omitempty"` // Unique request identifier
}

// UpstreamErrorResponse relays a non-success answer from the image provider.
// Error holds the provider's own error value untouched: an object when the
// provider answered JSON, otherwise a JSON string with the raw body text.
type UpstreamErrorResponse struct {
	Error json.RawMessage `json:"error"`
}

// QuotaStatusResponse describes the caller's quota window without consuming it.
type QuotaStatusResponse struct {
	Enabled       bool      `json:"enabled"`
	Identity      string    `json:"identity"`
	Bucket        string    `json:"bucket"`
	GlobalLimit   int64     `json:"global_limit"`
	ClientLimit   int64     `json:"client_limit"`
	PeriodSeconds int64     `json:"period_seconds"`
	ResetAt       time.Time `json:"reset_at"`
	Timestamp     time.Time `json:"timestamp"`
}

type HealthCheckResponse struct {
	Status     string                     `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Version    string                     `json:"version,omitempty"`
	Uptime     string                     `json:"uptime,omitempty"`
	Components map[string]ComponentHealth `json:"components,omitempty"`
	Metrics    map[string]interface{}     `json:"metrics,omitempty"`
}

type ComponentHealth struct {
	Status    string                 `json:"status"`
	Message   string                 `json:"message,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Health Status Constants
//
// Health Monitoring:
// - Healthy: All systems operational
// - Degraded: Serving, but a dependency (usually the counter store) is failing
// - Unhealthy: Major issues affecting core functionality
// - Unknown: Health status cannot be determined
const (
	StatusHealthy   = "healthy"   // All systems operational
	StatusUnhealthy = "unhealthy" // Major system issues
	StatusDegraded  = "degraded"  // Partial functionality
	StatusUnknown   = "unknown"   // Status indeterminate
)

// Standard HTTP Error Codes
//
// Error Code Strategy:
// - Upper-case with underscores for consistency
// - Maps to standard HTTP status codes
// - Machine-readable for client error handling
const (
	ErrorCodeBadRequest           = "BAD_REQUEST"            // 400: Invalid request format
	ErrorCodeMissingPrompt        = "MISSING_PROMPT"         // 400: Prompt absent, empty or not a string
	ErrorCodeNotFound             = "NOT_FOUND"              // 404: Route doesn't exist
	ErrorCodeMethodNotAllowed     = "METHOD_NOT_ALLOWED"     // 405: Wrong method on a known route
	ErrorCodePayloadTooLarge      = "PAYLOAD_TOO_LARGE"      // 413: Edit upload over the size cap
	ErrorCodeUnsupportedMediaType = "UNSUPPORTED_MEDIA_TYPE" // 415: Edit body is not multipart
	ErrorCodeClientLimitExceeded  = "CLIENT_LIMIT_EXCEEDED"  // 429: Per-client weekly quota spent
	ErrorCodeGlobalLimitExceeded  = "GLOBAL_LIMIT_EXCEEDED"  // 429: Service-wide weekly quota spent
	ErrorCodeInternalError        = "INTERNAL_ERROR"         // 500: Server-side error
	ErrorCodeConfigurationMissing = "CONFIGURATION_MISSING"  // 500: Counter store not configured
	ErrorCodeNoImageReturned      = "NO_IMAGE_RETURNED"      // 500: Provider answered without an image
	ErrorCodeUpstreamError        = "UPSTREAM_ERROR"         // 502: Provider unreachable
	ErrorCodeStoreUnavailable     = "STORE_UNAVAILABLE"      // 503: Counter store unreachable
)

func NewErrorResponse(message string, code string) *ErrorResponse {
	return &ErrorResponse{
		Error:     "error",
		Message:   message,
		Code:      code,
		Timestamp: time.Now(),
	}
}

func NewQuotaExceededResponse(message, code, scope string, limit int64) *QuotaExceededResponse {
	return &QuotaExceededResponse{
		Error:     message,
		Code:      code,
		Scope:     scope,
		Limit:     limit,
		Timestamp: time.Now(),
	}
}

// NewUpstreamErrorResponse wraps a provider error body. A JSON body with a
// non-empty "error" member is unwrapped one level, any other JSON body is
// carried as is, and a body that is not JSON becomes a string.
func NewUpstreamErrorResponse(body []byte) *UpstreamErrorResponse {
	if !json.Valid(body) {
		return NewUpstreamTextErrorResponse(body)
	}

	var envelope struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && !emptyJSON(envelope.Error) {
		return &UpstreamErrorResponse{Error: envelope.Error}
	}
	return &UpstreamErrorResponse{Error: json.RawMessage(bytes.Clone(body))}
}

// emptyJSON reports whether raw is absent or a falsy JSON scalar.
func emptyJSON(raw json.RawMessage) bool {
	switch string(bytes.TrimSpace(raw)) {
	case "", "null", "false", `""`, "0":
		return true
	}
	return false
}

// NewUpstreamTextErrorResponse carries a provider error body as a plain string.
func NewUpstreamTextErrorResponse(body []byte) *UpstreamErrorResponse {
	text, _ := json.Marshal(string(body))
	return &UpstreamErrorResponse{Error: text}
}

func NewHealthCheckResponse(status string) *HealthCheckResponse {
	return &HealthCheckResponse{
		Status:     status,
		Timestamp:  time.Now(),
		Components: make(map[string]ComponentHealth),
		Metrics:    make(map[string]interface{}),
	}
}

func (h *HealthCheckResponse) AddComponent(name, status, message string) {
	h.Components[name] = ComponentHealth{
		Status:    status,
		Message:   message,
		Timestamp: time.Now(),
		Details:   make(map[string]interface{}),
	}
}

func (h *HealthCheckResponse) AddMetric(name string, value interface{}) {
	h.Metrics[name] = value
}
