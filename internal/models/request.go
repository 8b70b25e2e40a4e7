// Package models - API request types and input validation.
// This file defines the incoming API request structures.
//
// Validation Philosophy:
// - Fail fast with clear error messages for invalid input
// - Validate before any quota is consumed, so malformed requests cost nothing
// - Edit uploads are not parsed; only their framing is checked
package models

import (
	"errors"
	"mime"
	"strings"
)

// ErrMissingPrompt is returned when a generate request has no usable prompt.
var ErrMissingPrompt = errors.New("Missing prompt")

// GenerateRequest is the body of POST /api/generate.
//
// Prompt is decoded loosely so that a non-string value is reported as a
// missing prompt rather than a malformed body.
type GenerateRequest struct {
	Prompt interface{} `json:"prompt"`
}

func (r *GenerateRequest) Validate() error {
	prompt, ok := r.Prompt.(string)
	if !ok || prompt == "" {
		return ErrMissingPrompt
	}
	return nil
}

// PromptText returns the prompt as a string. Call after Validate.
func (r *GenerateRequest) PromptText() string {
	prompt, _ := r.Prompt.(string)
	return prompt
}

// IsMultipart reports whether a Content-Type header announces a multipart
// body carrying a boundary.
func IsMultipart(contentType string) bool {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return strings.HasPrefix(mediaType, "multipart/") && params["boundary"] != ""
}
