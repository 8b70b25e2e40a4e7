// Package imageapi is the outbound client for the OpenAI-compatible image
// provider. Calls are paced by a token bucket so a burst of admitted
// requests cannot exceed the provider's own rate limits.
package imageapi

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"imagegate/internal/models"
)

const (
	generationsPath = "/v1/images/generations"
	editsPath       = "/v1/images/edits"

	maxImageBytes = 64 << 20
	maxErrorBytes = 1 << 20
)

// Client calls the provider's generation and edit endpoints.
type Client struct {
	baseURL      string
	apiKey       string
	model        string
	size         string
	outputFormat string
	userAgent    string
	httpClient   *http.Client
	limiter      *rate.Limiter
	logger       *slog.Logger
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithLimiter replaces the pacing limiter built from configuration.
func WithLimiter(limiter *rate.Limiter) Option {
	return func(c *Client) {
		c.limiter = limiter
	}
}

func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func NewClient(cfg models.ImageAPIConfig, opts ...Option) *Client {
	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)
	}

	c := &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:       cfg.APIKey,
		model:        cfg.Model,
		size:         cfg.Size,
		outputFormat: cfg.OutputFormat,
		httpClient:   &http.Client{Timeout: cfg.Timeout},
		limiter:      limiter,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type generateRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	Size           string `json:"size,omitempty"`
	OutputFormat   string `json:"output_format,omitempty"`
	ResponseFormat string `json:"response_format"`
}

type generateResponse struct {
	Data []struct {
		B64JSON string `json:"b64_json"`
	} `json:"data"`
}

// Generate creates one image from prompt and returns its decoded bytes.
func (c *Client) Generate(ctx context.Context, prompt string) ([]byte, error) {
	payload, err := json.Marshal(generateRequest{
		Model:          c.model,
		Prompt:         prompt,
		Size:           c.size,
		OutputFormat:   c.outputFormat,
		ResponseFormat: "b64_json",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode generation request: %w", err)
	}

	resp, err := c.post(ctx, generationsPath, "application/json", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var out generateResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxImageBytes)).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: invalid generation response: %v", ErrUnavailable, err)
	}
	if len(out.Data) == 0 || out.Data[0].B64JSON == "" {
		return nil, ErrNoImage
	}

	img, err := base64.StdEncoding.DecodeString(out.Data[0].B64JSON)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base64 image: %v", ErrNoImage, err)
	}
	return img, nil
}

// EditResult is a successful edit answer. When IsImage is false, Body is
// the provider's JSON document.
type EditResult struct {
	IsImage     bool
	ContentType string
	Body        []byte
}

// Edit forwards a multipart edit request verbatim. contentType must be the
// inbound Content-Type header including its boundary.
func (c *Client) Edit(ctx context.Context, contentType string, body io.Reader) (*EditResult, error) {
	resp, err := c.post(ctx, editsPath, contentType, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: reading edit response: %v", ErrUnavailable, err)
	}

	respType := resp.Header.Get("Content-Type")
	return &EditResult{
		IsImage:     strings.Contains(respType, "image/"),
		ContentType: respType,
		Body:        data,
	}, nil
}

func (c *Client) post(ctx context.Context, path, contentType string, body io.Reader) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: waiting for request slot: %w", ErrUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.ErrorContext(ctx, "Image provider request failed", "path", path, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	c.logger.DebugContext(ctx, "Image provider responded",
		"path", path,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)
	return resp, nil
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBytes))
	return &ProviderError{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}
}
