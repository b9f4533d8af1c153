// Package server provides the HTTP surface of the API: job submission
// and read paths, the WebSocket endpoint, and the MCP transport routes.
// DTOs live here, separated from domain types.
package server

import "github.com/pdtx/mediagen-api/internal/credentials"

// CreateJobRequest is the HTTP request body for submitting a job.
type CreateJobRequest struct {
	// Kind selects the generation type.
	Kind string `json:"kind" validate:"required,oneof=video audio style_analysis"`
	// Prompt is the generation prompt or style instruction.
	Prompt string `json:"prompt" validate:"required,min=1,max=10000"`
	// ClientID optionally binds the job to a legacy event-stream client.
	ClientID string `json:"client_id,omitempty" validate:"omitempty,max=128"`
	// DurationSeconds is the requested video duration (video only).
	DurationSeconds int `json:"duration_seconds,omitempty" validate:"omitempty,min=1,max=60"`
	// AspectRatio is the requested video aspect ratio (video only).
	AspectRatio string `json:"aspect_ratio,omitempty" validate:"omitempty,oneof=16:9 9:16 1:1 4:3 3:4"`
	// Model is the generation model identifier (video only).
	Model string `json:"model,omitempty"`
	// GenerateAudio requests an audio track for the video (video only).
	GenerateAudio *bool `json:"generate_audio,omitempty"`
	// GenerateThumbnail requests a podcast thumbnail (audio only).
	GenerateThumbnail bool `json:"generate_thumbnail,omitempty"`
	// ThumbnailPrompt overrides the thumbnail prompt (audio only).
	ThumbnailPrompt string `json:"thumbnail_prompt,omitempty"`
	// Credentials optionally overrides the environment defaults,
	// field by field.
	Credentials *credentials.Request `json:"credentials,omitempty"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
}
