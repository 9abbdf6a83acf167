package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/soundbed/splice-api/internal/audio"
	"github.com/soundbed/splice-api/internal/fetch"
	"github.com/soundbed/splice-api/internal/session"
	"github.com/soundbed/splice-api/internal/splice"
	"github.com/soundbed/splice-api/internal/storage"
)

// Splicer is the handler-facing slice of the splice service.
type Splicer interface {
	Splice(ctx context.Context, req splice.Request) (*splice.Result, error)
}

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	splicer        Splicer
	sessions       session.Registry
	store          storage.Storage
	validator      *validator.Validate
	logger         *slog.Logger
	maxUploadBytes int
	ffmpegVersion  string
}

// HandlerOption is a function that configures a Handlers instance.
type HandlerOption func(*Handlers)

// WithBlobStorage attaches a blob backend for /upload, /cleanup-session and
// pushToBlob splices. Without it those operations report 503.
func WithBlobStorage(store storage.Storage) HandlerOption {
	return func(h *Handlers) {
		h.store = store
	}
}

// WithMaxUploadBytes caps the decoded size accepted by /upload.
func WithMaxUploadBytes(n int) HandlerOption {
	return func(h *Handlers) {
		if n > 0 {
			h.maxUploadBytes = n
		}
	}
}

// WithFFmpegVersion sets the version string reported by /health.
func WithFFmpegVersion(version string) HandlerOption {
	return func(h *Handlers) {
		h.ffmpegVersion = version
	}
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(splicer Splicer, sessions session.Registry, logger *slog.Logger, opts ...HandlerOption) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{
		splicer:        splicer,
		sessions:       sessions,
		validator:      validator.New(),
		logger:         logger,
		maxUploadBytes: 25 << 20,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:        "ok",
		FFmpegVersion: h.ffmpegVersion,
		BlobStorage:   h.store != nil,
	})
}

// Splice handles POST /splice requests.
func (h *Handlers) Splice(w http.ResponseWriter, r *http.Request) {
	var req SpliceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to decode request body",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		h.logger.Warn("request validation failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	domainReq, err := h.toDomainRequest(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "INVALID_INPUT")
		return
	}

	result, err := h.splicer.Splice(r.Context(), domainReq)
	if err != nil {
		h.writeSpliceError(w, err)
		return
	}

	h.logger.Info("splice completed",
		slog.String("outcome", string(result.Outcome)),
		slog.Float64("duration_sec", result.DurationSeconds),
		slog.Int("speech_chunks", len(domainReq.Speech)),
	)

	writeJSON(w, http.StatusOK, SpliceResponse{
		FinalAudio:      base64.StdEncoding.EncodeToString(result.Data),
		DurationSeconds: result.DurationSeconds,
		Outcome:         string(result.Outcome),
		BlobURL:         result.BlobURL,
		Success:         true,
	})
}

// Upload handles POST /upload requests for caller-supplied custom tracks.
func (h *Handlers) Upload(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusServiceUnavailable, "blob storage is not configured", "BLOB_NOT_CONFIGURED")
		return
	}

	var req UploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	data, err := base64.StdEncoding.DecodeString(req.AudioData)
	if err != nil {
		writeError(w, http.StatusBadRequest, "audioData is not valid base64", "INVALID_INPUT")
		return
	}
	if len(data) > h.maxUploadBytes {
		writeError(w, http.StatusBadRequest,
			fmt.Sprintf("audio exceeds %d byte limit", h.maxUploadBytes), "INVALID_INPUT")
		return
	}
	if !audio.LooksLikeMP3(data) {
		writeError(w, http.StatusBadRequest, "audio is not an MP3 file", "INVALID_INPUT")
		return
	}

	key := "custom-audio/" + req.SessionID + "/" + session.NewID("upload") + "-" + sanitizeFilename(req.Filename)
	url, err := h.store.Upload(r.Context(), key, bytes.NewReader(data), "audio/mpeg")
	if err != nil {
		h.logger.Error("blob upload failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to store audio", "UPLOAD_FAILED")
		return
	}

	artifact := session.Artifact{
		Key:         key,
		URL:         url,
		ContentType: "audio/mpeg",
		Size:        int64(len(data)),
	}
	if err := h.sessions.Add(r.Context(), req.SessionID, artifact); err != nil {
		h.logger.Warn("failed to register artifact for session cleanup",
			slog.String("session_id", req.SessionID),
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}

	h.logger.Info("custom audio stored",
		slog.String("session_id", req.SessionID),
		slog.String("key", key),
		slog.Int("size", len(data)),
	)

	writeJSON(w, http.StatusOK, UploadResponse{
		URL:     url,
		Key:     key,
		Success: true,
	})
}

// CleanupSession handles POST /cleanup-session requests, removing all blobs
// registered under a session. Unknown sessions succeed with zero deletions.
func (h *Handlers) CleanupSession(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusServiceUnavailable, "blob storage is not configured", "BLOB_NOT_CONFIGURED")
		return
	}

	var req CleanupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	artifacts, err := h.sessions.Drain(r.Context(), req.SessionID)
	if err != nil {
		h.logger.Error("failed to drain session",
			slog.String("session_id", req.SessionID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to clean up session", "CLEANUP_FAILED")
		return
	}
	deleted := 0
	for _, a := range artifacts {
		if err := h.store.Delete(r.Context(), a.Key); err != nil {
			h.logger.Warn("blob delete failed",
				slog.String("session_id", req.SessionID),
				slog.String("key", a.Key),
				slog.String("error", err.Error()),
			)
			continue
		}
		deleted++
	}

	h.logger.Info("session cleaned up",
		slog.String("session_id", req.SessionID),
		slog.Int("deleted", deleted),
		slog.Int("registered", len(artifacts)),
	)

	writeJSON(w, http.StatusOK, CleanupResponse{
		Deleted: deleted,
		Success: true,
	})
}

// toDomainRequest converts the wire DTO into a domain request, decoding the
// inline base64 payloads.
func (h *Handlers) toDomainRequest(req SpliceRequest) (splice.Request, error) {
	var out splice.Request

	if req.OriginalAudio != "" {
		data, err := base64.StdEncoding.DecodeString(req.OriginalAudio)
		if err != nil {
			return out, fmt.Errorf("originalAudio is not valid base64")
		}
		out.Music = splice.Asset{Data: data}
	} else if req.OriginalAudioURL != "" {
		out.Music = splice.Asset{URL: req.OriginalAudioURL}
	}

	for i, chunk := range req.SpeechAudio {
		data, err := base64.StdEncoding.DecodeString(chunk)
		if err != nil {
			return out, fmt.Errorf("speechAudio[%d] is not valid base64", i)
		}
		out.Speech = append(out.Speech, splice.Asset{Data: data})
	}
	for _, url := range req.SpeechAudioURLs {
		out.Speech = append(out.Speech, splice.Asset{URL: url})
	}

	out.Mode = splice.Mode(req.SpliceMode)
	out.CrossfadeSeconds = req.CrossfadeDuration
	out.MaxDurationSeconds = req.MaxDurationSeconds
	out.SessionID = req.SessionID
	out.PushToBlob = req.PushToBlob
	return out, nil
}

// writeSpliceError maps domain errors to HTTP status codes.
func (h *Handlers) writeSpliceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, splice.ErrNoMusic),
		errors.Is(err, splice.ErrNoSpeech),
		errors.Is(err, splice.ErrEmptyAsset),
		errors.Is(err, splice.ErrInvalidMode),
		errors.Is(err, splice.ErrTooManySpeechChunks):
		writeError(w, http.StatusBadRequest, err.Error(), "INVALID_INPUT")
	case errors.Is(err, audio.ErrDecode), errors.Is(err, audio.ErrNotMP3):
		writeError(w, http.StatusUnprocessableEntity, err.Error(), "DECODE_FAILED")
	case errors.Is(err, fetch.ErrUnavailable), errors.Is(err, fetch.ErrTooLarge):
		writeError(w, http.StatusBadGateway, err.Error(), "FETCH_FAILED")
	case errors.Is(err, storage.ErrNotConfigured):
		writeError(w, http.StatusServiceUnavailable, err.Error(), "BLOB_NOT_CONFIGURED")
	default:
		h.logger.Error("splice failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "audio splicing failed", "INTERNAL_ERROR")
	}
}

// sanitizeFilename reduces a caller-supplied filename to a safe blob key
// component.
func sanitizeFilename(name string) string {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	if base == "." || base == "/" || base == "" {
		return "audio.mp3"
	}
	var b strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
