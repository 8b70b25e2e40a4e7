package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"imagegate/internal/imageapi"
	"imagegate/internal/models"
	"imagegate/internal/ratelimit"
	"imagegate/internal/version"
)

const (
	maxGenerateBodyBytes = 1 << 20
	healthPingTimeout    = 2 * time.Second
)

// ImageService is the upstream image provider as the handlers see it.
type ImageService interface {
	Generate(ctx context.Context, prompt string) ([]byte, error)
	Edit(ctx context.Context, contentType string, body io.Reader) (*imageapi.EditResult, error)
}

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handlers contains HTTP handlers for the gateway API
type Handlers struct {
	images       ImageService
	gate         *ratelimit.Gate
	store        Pinger
	maxEditBytes int64
	version      version.Info
	startTime    time.Time
}

// HandlerOption configures optional Handlers dependencies.
type HandlerOption func(*Handlers)

// WithGate enables quota enforcement on the image endpoints. Without a gate
// every request is admitted.
func WithGate(gate *ratelimit.Gate) HandlerOption {
	return func(h *Handlers) {
		h.gate = gate
	}
}

// WithStore sets the counter store reported by the health endpoints.
func WithStore(store Pinger) HandlerOption {
	return func(h *Handlers) {
		h.store = store
	}
}

// WithMaxEditBytes caps the size of an edit upload.
func WithMaxEditBytes(n int64) HandlerOption {
	return func(h *Handlers) {
		if n > 0 {
			h.maxEditBytes = n
		}
	}
}

func WithVersion(info version.Info) HandlerOption {
	return func(h *Handlers) {
		h.version = info
	}
}

// NewHandlers creates a new handlers instance
func NewHandlers(images ImageService, opts ...HandlerOption) *Handlers {
	h := &Handlers{
		images:       images,
		maxEditBytes: models.NewDefaultConfig().ImageAPI.MaxEditBytes,
		version:      version.Info{Version: version.Version, GitCommit: version.GitCommit, BuildDate: version.BuildDate},
		startTime:    time.Now(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Generate handles image generation requests
// POST /api/generate
func (h *Handlers) Generate(w http.ResponseWriter, r *http.Request) {
	var req models.GenerateRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxGenerateBodyBytes)).Decode(&req); err != nil {
		h.writeErrorResponse(w, r, http.StatusBadRequest, models.ErrorCodeMissingPrompt, models.ErrMissingPrompt.Error())
		return
	}
	if err := req.Validate(); err != nil {
		h.writeErrorResponse(w, r, http.StatusBadRequest, models.ErrorCodeMissingPrompt, err.Error())
		return
	}

	if !ratelimit.Guard(w, r, h.gate) {
		return
	}

	img, err := h.images.Generate(r.Context(), req.PromptText())
	if err != nil {
		h.writeUpstreamError(w, r, err, models.NewUpstreamErrorResponse)
		return
	}

	h.writeImage(w, img)
}

// Edit handles image edit requests. The multipart body is forwarded to the
// provider untouched.
// POST /api/edit
func (h *Handlers) Edit(w http.ResponseWriter, r *http.Request) {
	contentType := r.Header.Get("Content-Type")
	if !models.IsMultipart(contentType) {
		h.writeErrorResponse(w, r, http.StatusUnsupportedMediaType, models.ErrorCodeUnsupportedMediaType,
			"Expected a multipart/form-data body")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxEditBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeErrorResponse(w, r, http.StatusRequestEntityTooLarge, models.ErrorCodePayloadTooLarge,
				"Upload exceeds the maximum size")
			return
		}
		h.writeErrorResponse(w, r, http.StatusBadRequest, models.ErrorCodeBadRequest, "Failed to read request body")
		return
	}

	if !ratelimit.Guard(w, r, h.gate) {
		return
	}

	result, err := h.images.Edit(r.Context(), contentType, bytes.NewReader(body))
	if err != nil {
		h.writeUpstreamError(w, r, err, models.NewUpstreamTextErrorResponse)
		return
	}

	if result.IsImage {
		h.writeImage(w, result.Body)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(result.Body)
}

// QuotaStatus reports the caller's quota window without consuming quota.
// GET /api/quota
func (h *Handlers) QuotaStatus(w http.ResponseWriter, r *http.Request) {
	resp := &models.QuotaStatusResponse{
		Enabled:   h.gate != nil,
		Timestamp: time.Now(),
	}

	if h.gate == nil {
		now := time.Now()
		resp.Identity = ratelimit.ClientIdentity(r)
		resp.Bucket = ratelimit.BucketFor(now).String()
		resp.ResetAt = ratelimit.NextBucketStart(now)
		h.writeJSONResponse(w, http.StatusOK, resp)
		return
	}

	window := h.gate.Window(r)
	policy := h.gate.Policy()
	resp.Identity = window.Identity
	resp.Bucket = window.Bucket.String()
	resp.ResetAt = window.ResetAt
	resp.GlobalLimit = policy.GlobalLimit
	resp.ClientLimit = policy.ClientLimit
	resp.PeriodSeconds = int64(policy.Period / time.Second)

	h.writeJSONResponse(w, http.StatusOK, resp)
}

// HealthCheck handles health check requests
// GET /health, GET /api/health
//
// A failing counter store degrades the service but does not fail the probe:
// the process is up and answers 503 on gated routes until the store returns.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := models.NewHealthCheckResponse(models.StatusHealthy)
	response.Version = h.version.Version
	response.Uptime = time.Since(h.startTime).Round(time.Second).String()

	response.AddComponent("api", models.StatusHealthy, "API is operational")

	switch {
	case h.store == nil:
		response.AddComponent("counter_store", models.StatusUnknown, "Counter store is not configured")
	default:
		ctx, cancel := context.WithTimeout(r.Context(), healthPingTimeout)
		defer cancel()
		if err := h.store.Ping(ctx); err != nil {
			slog.WarnContext(r.Context(), "Counter store health check failed", "error", err)
			response.Status = models.StatusDegraded
			response.AddComponent("counter_store", models.StatusUnhealthy, err.Error())
		} else {
			response.AddComponent("counter_store", models.StatusHealthy, "Counter store is reachable")
		}
	}

	response.AddMetric("quota_enabled", h.gate != nil)
	if h.gate != nil {
		policy := h.gate.Policy()
		response.AddMetric("global_limit", policy.GlobalLimit)
		response.AddMetric("client_limit", policy.ClientLimit)
	}

	h.writeJSONResponse(w, http.StatusOK, response)
}

// writeUpstreamError maps an image provider failure to a response. Provider
// answers keep their status; wrap renders their body.
func (h *Handlers) writeUpstreamError(w http.ResponseWriter, r *http.Request, err error, wrap func([]byte) *models.UpstreamErrorResponse) {
	var providerErr *imageapi.ProviderError
	switch {
	case errors.As(err, &providerErr):
		slog.WarnContext(r.Context(), "Image provider rejected request",
			"path", r.URL.Path,
			"status", providerErr.StatusCode)
		h.writeJSONResponse(w, providerErr.StatusCode, wrap(providerErr.Body))
	case errors.Is(err, imageapi.ErrNoImage):
		slog.ErrorContext(r.Context(), "Image provider returned no image", "error", err)
		h.writeErrorResponse(w, r, http.StatusInternalServerError, models.ErrorCodeNoImageReturned, "No image returned")
	default:
		slog.ErrorContext(r.Context(), "Image provider request failed", "path", r.URL.Path, "error", err)
		h.writeErrorResponse(w, r, http.StatusBadGateway, models.ErrorCodeUpstreamError, "Image provider unavailable")
	}
}

func (h *Handlers) writeImage(w http.ResponseWriter, img []byte) {
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	w.Write(img)
}

// writeJSONResponse writes a JSON response
func (h *Handlers) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Headers are already written; nothing more to send.
		slog.Error("Error encoding JSON response", "error", err)
	}
}

// writeErrorResponse writes an error response
func (h *Handlers) writeErrorResponse(w http.ResponseWriter, r *http.Request, statusCode int, errorCode, message string) {
	errorResp := models.NewErrorResponse(message, errorCode)
	errorResp.RequestID = RequestIDFromContext(r.Context())
	h.writeJSONResponse(w, statusCode, errorResp)
}
