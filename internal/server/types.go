// Package server provides the HTTP server for the splice API.
// It includes handlers, middleware, routes, and DTOs separated from domain types.
package server

import (
	"encoding/json"
	"fmt"
)

// Base64List accepts either a single base64 string or a list of them,
// matching clients that send one speech chunk without wrapping it in an array.
type Base64List []string

// UnmarshalJSON decodes a JSON string or array of strings.
func (l *Base64List) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*l = Base64List{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("expected base64 string or array of strings")
	}
	*l = Base64List(many)
	return nil
}

// SpliceRequest is the HTTP request body for splicing speech into music.
type SpliceRequest struct {
	// OriginalAudio is the base64-encoded background music track.
	OriginalAudio string `json:"originalAudio,omitempty" validate:"omitempty,base64"`
	// OriginalAudioURL is a fetchable URL for the music track, used when
	// OriginalAudio is empty.
	OriginalAudioURL string `json:"originalAudioUrl,omitempty" validate:"omitempty,url"`
	// SpeechAudio is one or more base64-encoded speech chunks.
	SpeechAudio Base64List `json:"speechAudio,omitempty" validate:"omitempty,dive,base64"`
	// SpeechAudioURLs are fetchable URLs for speech chunks, appended after
	// any inline chunks.
	SpeechAudioURLs []string `json:"speechAudioUrls,omitempty" validate:"omitempty,dive,url"`
	// SpliceMode selects the placement strategy. Defaults by chunk count
	// when empty.
	SpliceMode string `json:"spliceMode,omitempty" validate:"omitempty,oneof=intro random distributed"`
	// CrossfadeDuration is accepted for API compatibility. Sequencing is
	// hard-cut, so the value does not alter the output.
	CrossfadeDuration float64 `json:"crossfadeDuration,omitempty" validate:"omitempty,min=0"`
	// MaxDurationSeconds truncates the final output when positive.
	MaxDurationSeconds float64 `json:"maxDurationSeconds,omitempty" validate:"omitempty,min=0"`
	// SessionID groups blob artifacts for later cleanup.
	SessionID string `json:"sessionId,omitempty"`
	// PushToBlob uploads the result to blob storage instead of only
	// inlining it in the response.
	PushToBlob bool `json:"pushToBlob,omitempty"`
}

// SpliceResponse is the HTTP response for a completed splice.
type SpliceResponse struct {
	// FinalAudio is the base64-encoded spliced MP3.
	FinalAudio string `json:"finalAudio"`
	// DurationSeconds is the duration of the final audio.
	DurationSeconds float64 `json:"durationSeconds"`
	// Outcome is the placement strategy actually applied, which differs
	// from the requested mode when a fallback occurred.
	Outcome string `json:"outcome"`
	// BlobURL is the storage URL when pushToBlob was requested.
	BlobURL string `json:"blobUrl,omitempty"`
	// Success is true for completed requests; error payloads omit it.
	Success bool `json:"success"`
}

// UploadRequest is the HTTP request body for uploading a custom track.
type UploadRequest struct {
	// AudioData is the base64-encoded MP3 payload.
	AudioData string `json:"audioData" validate:"required,base64"`
	// Filename is a name hint for the stored blob.
	Filename string `json:"filename,omitempty"`
	// SessionID groups the upload for later cleanup.
	SessionID string `json:"sessionId" validate:"required"`
}

// UploadResponse is the HTTP response after storing a custom track.
type UploadResponse struct {
	// URL is where the stored blob can be retrieved.
	URL string `json:"url"`
	// Key is the blob key, usable with /cleanup-session.
	Key string `json:"key"`
	// Success is true for completed requests; error payloads omit it.
	Success bool `json:"success"`
}

// CleanupRequest is the HTTP request body for deleting session blobs.
type CleanupRequest struct {
	// SessionID identifies the session whose blobs are removed.
	SessionID string `json:"sessionId" validate:"required"`
}

// CleanupResponse is the HTTP response after a session cleanup.
type CleanupResponse struct {
	// Deleted is the number of blobs removed.
	Deleted int `json:"deleted"`
	// Success is true for completed requests; error payloads omit it.
	Success bool `json:"success"`
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
	// FFmpegVersion is the detected ffmpeg version string.
	FFmpegVersion string `json:"ffmpegVersion,omitempty"`
	// BlobStorage reports whether a remote blob backend is configured.
	BlobStorage bool `json:"blobStorage"`
}
