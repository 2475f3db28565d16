// Package server provides the HTTP surface for submitting and tracking
// conversions. It includes handlers, middleware, routes, and DTOs separated
// from domain types.
package server

import "time"

// CreateConversionRequest is the HTTP request body for starting a conversion.
// Exactly one of OutputPath and OutputDir must be set; with OutputDir the
// video is named after the audio file.
type CreateConversionRequest struct {
	// ImagePath is the still image on the server's filesystem.
	ImagePath string `json:"image_path" validate:"required"`
	// AudioPath is the soundtrack on the server's filesystem.
	AudioPath string `json:"audio_path" validate:"required"`
	// OutputPath is where the MP4 is written.
	OutputPath string `json:"output_path" validate:"required_without=OutputDir,excluded_with=OutputDir"`
	// OutputDir receives <audio base name>.mp4 when OutputPath is empty.
	OutputDir string `json:"output_dir" validate:"required_without=OutputPath"`
	// Publish uploads the finished video to S3.
	Publish bool `json:"publish"`
}

// CreateConversionResponse is the HTTP response after accepting a conversion.
type CreateConversionResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// ConversionResponse is the HTTP view of a conversion job.
type ConversionResponse struct {
	ID         string `json:"id"`
	Status     string `json:"status"`
	ImagePath  string `json:"image_path"`
	AudioPath  string `json:"audio_path"`
	OutputPath string `json:"output_path"`
	Publish    bool   `json:"publish"`
	// Done is true once the job reached COMPLETED or FAILED.
	Done bool `json:"done"`

	// Set once the job completed.
	DurationSec  float64 `json:"duration_sec,omitempty"`
	Frames       int     `json:"frames,omitempty"`
	Codec        string  `json:"codec,omitempty"`
	DerivedImage string  `json:"derived_image,omitempty"`
	Disposed     bool    `json:"disposed,omitempty"`
	VideoURL     string  `json:"video_url,omitempty"`

	// Set when the job failed.
	Error     string `json:"error,omitempty"`
	ErrorCode string `json:"error_code,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// ListConversionsResponse is the HTTP response for listing conversions.
type ListConversionsResponse struct {
	Conversions []ConversionResponse `json:"conversions"`
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
	Status string `json:"status"`
}
