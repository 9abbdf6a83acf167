package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundbed/splice-api/internal/audio"
	"github.com/soundbed/splice-api/internal/fetch"
	"github.com/soundbed/splice-api/internal/session"
	"github.com/soundbed/splice-api/internal/splice"
)

type fakeSplicer struct {
	result splice.Result
	err    error
	got    splice.Request
	calls  int
}

func (f *fakeSplicer) Splice(_ context.Context, req splice.Request) (*splice.Result, error) {
	f.calls++
	f.got = req
	if f.err != nil {
		return nil, f.err
	}
	result := f.result
	return &result, nil
}

type fakeStore struct {
	blobs   map[string][]byte
	deleted []string
	failPut bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{blobs: make(map[string][]byte)}
}

func (f *fakeStore) Upload(_ context.Context, key string, data io.Reader, _ string) (string, error) {
	if f.failPut {
		return "", errors.New("backend down")
	}
	payload, err := io.ReadAll(data)
	if err != nil {
		return "", err
	}
	f.blobs[key] = payload
	return "https://blobs.test/" + key, nil
}

func (f *fakeStore) Delete(_ context.Context, key string) error {
	f.deleted = append(f.deleted, key)
	delete(f.blobs, key)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mp3Bytes is a minimal payload that passes the MP3 magic check.
func mp3Bytes() []byte {
	return append([]byte("ID3\x04\x00\x00\x00\x00\x00\x00"), bytes.Repeat([]byte{0x11}, 64)...)
}

func b64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

func postJSON(t *testing.T, h http.HandlerFunc, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestHealth(t *testing.T) {
	t.Run("without blob storage", func(t *testing.T) {
		h := NewHandlers(&fakeSplicer{}, session.NewMemoryRegistry(), testLogger(),
			WithFFmpegVersion("6.1.1"))

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		rec := httptest.NewRecorder()
		h.Health(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)

		var resp HealthResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "ok", resp.Status)
		assert.Equal(t, "6.1.1", resp.FFmpegVersion)
		assert.False(t, resp.BlobStorage)
	})

	t.Run("with blob storage", func(t *testing.T) {
		h := NewHandlers(&fakeSplicer{}, session.NewMemoryRegistry(), testLogger(),
			WithBlobStorage(newFakeStore()))

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		rec := httptest.NewRecorder()
		h.Health(rec, req)

		var resp HealthResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.True(t, resp.BlobStorage)
	})
}

func TestSplice_Success(t *testing.T) {
	splicer := &fakeSplicer{
		result: splice.Result{
			Data:            []byte("final mp3 bytes"),
			DurationSeconds: 76.5,
			Outcome:         splice.OutcomeDistributed,
		},
	}
	h := NewHandlers(splicer, session.NewMemoryRegistry(), testLogger())

	music := mp3Bytes()
	speech := append(mp3Bytes(), 0x22)

	rec := postJSON(t, h.Splice, map[string]any{
		"originalAudio":      b64(music),
		"speechAudio":        []string{b64(speech), b64(speech)},
		"spliceMode":         "distributed",
		"maxDurationSeconds": 90,
		"sessionId":          "sess-1",
	})

	require.Equal(t, http.StatusOK, rec.Code)

	var resp SpliceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "distributed", resp.Outcome)
	assert.InDelta(t, 76.5, resp.DurationSeconds, 0.001)
	assert.Equal(t, b64([]byte("final mp3 bytes")), resp.FinalAudio)

	// The domain request carries the decoded payloads.
	assert.Equal(t, music, splicer.got.Music.Data)
	require.Len(t, splicer.got.Speech, 2)
	assert.Equal(t, speech, splicer.got.Speech[0].Data)
	assert.Equal(t, splice.ModeDistributed, splicer.got.Mode)
	assert.InDelta(t, 90.0, splicer.got.MaxDurationSeconds, 0.001)
	assert.Equal(t, "sess-1", splicer.got.SessionID)
}

func TestSplice_SingleStringSpeech(t *testing.T) {
	splicer := &fakeSplicer{result: splice.Result{Data: []byte("x"), Outcome: splice.OutcomeIntro}}
	h := NewHandlers(splicer, session.NewMemoryRegistry(), testLogger())

	rec := postJSON(t, h.Splice, map[string]any{
		"originalAudio": b64(mp3Bytes()),
		"speechAudio":   b64(mp3Bytes()), // bare string, not an array
	})

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, splicer.got.Speech, 1)
}

func TestSplice_URLAssets(t *testing.T) {
	splicer := &fakeSplicer{result: splice.Result{Data: []byte("x"), Outcome: splice.OutcomeIntro}}
	h := NewHandlers(splicer, session.NewMemoryRegistry(), testLogger())

	rec := postJSON(t, h.Splice, map[string]any{
		"originalAudioUrl": "https://cdn.test/music.mp3",
		"speechAudioUrls":  []string{"https://cdn.test/speech.mp3"},
	})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://cdn.test/music.mp3", splicer.got.Music.URL)
	require.Len(t, splicer.got.Speech, 1)
	assert.Equal(t, "https://cdn.test/speech.mp3", splicer.got.Speech[0].URL)
}

func TestSplice_InvalidJSON(t *testing.T) {
	h := NewHandlers(&fakeSplicer{}, session.NewMemoryRegistry(), testLogger())

	req := httptest.NewRequest(http.MethodPost, "/splice", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	h.Splice(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_JSON", decodeError(t, rec).Code)
}

func TestSplice_ValidationError(t *testing.T) {
	h := NewHandlers(&fakeSplicer{}, session.NewMemoryRegistry(), testLogger())

	rec := postJSON(t, h.Splice, map[string]any{
		"originalAudio": b64(mp3Bytes()),
		"speechAudio":   b64(mp3Bytes()),
		"spliceMode":    "shuffle",
	})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", decodeError(t, rec).Code)
}

func TestSplice_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"missing music", splice.ErrNoMusic, http.StatusBadRequest, "INVALID_INPUT"},
		{"too many chunks", splice.ErrTooManySpeechChunks, http.StatusBadRequest, "INVALID_INPUT"},
		{"decode failure", audio.ErrDecode, http.StatusUnprocessableEntity, "DECODE_FAILED"},
		{"fetch exhausted", fetch.ErrUnavailable, http.StatusBadGateway, "FETCH_FAILED"},
		{"workspace failure", splice.ErrResource, http.StatusInternalServerError, "INTERNAL_ERROR"},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandlers(&fakeSplicer{err: tt.err}, session.NewMemoryRegistry(), testLogger())

			rec := postJSON(t, h.Splice, map[string]any{
				"originalAudio": b64(mp3Bytes()),
				"speechAudio":   b64(mp3Bytes()),
			})

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantCode, decodeError(t, rec).Code)
		})
	}
}

func TestUpload(t *testing.T) {
	t.Run("stores MP3 and registers artifact", func(t *testing.T) {
		store := newFakeStore()
		registry := session.NewMemoryRegistry()
		h := NewHandlers(&fakeSplicer{}, registry, testLogger(), WithBlobStorage(store))

		rec := postJSON(t, h.Upload, map[string]any{
			"audioData": b64(mp3Bytes()),
			"filename":  "my track.mp3",
			"sessionId": "sess-9",
		})

		require.Equal(t, http.StatusOK, rec.Code)

		var resp UploadResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.True(t, resp.Success)
		assert.True(t, strings.HasPrefix(resp.Key, "custom-audio/sess-9/"), "key = %s", resp.Key)
		assert.Contains(t, resp.Key, "my_track.mp3")
		assert.Contains(t, resp.URL, resp.Key)

		_, stored := store.blobs[resp.Key]
		assert.True(t, stored)

		artifacts, err := registry.List(context.Background(), "sess-9")
		require.NoError(t, err)
		require.Len(t, artifacts, 1)
		assert.Equal(t, resp.Key, artifacts[0].Key)
		assert.Equal(t, int64(len(mp3Bytes())), artifacts[0].Size)
	})

	t.Run("rejects non-MP3 payload", func(t *testing.T) {
		h := NewHandlers(&fakeSplicer{}, session.NewMemoryRegistry(), testLogger(),
			WithBlobStorage(newFakeStore()))

		rec := postJSON(t, h.Upload, map[string]any{
			"audioData": b64(bytes.Repeat([]byte("w"), 64)),
			"sessionId": "sess-9",
		})

		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "INVALID_INPUT", decodeError(t, rec).Code)
	})

	t.Run("rejects oversized payload", func(t *testing.T) {
		h := NewHandlers(&fakeSplicer{}, session.NewMemoryRegistry(), testLogger(),
			WithBlobStorage(newFakeStore()), WithMaxUploadBytes(16))

		rec := postJSON(t, h.Upload, map[string]any{
			"audioData": b64(mp3Bytes()),
			"sessionId": "sess-9",
		})

		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "INVALID_INPUT", decodeError(t, rec).Code)
	})

	t.Run("requires session id", func(t *testing.T) {
		h := NewHandlers(&fakeSplicer{}, session.NewMemoryRegistry(), testLogger(),
			WithBlobStorage(newFakeStore()))

		rec := postJSON(t, h.Upload, map[string]any{
			"audioData": b64(mp3Bytes()),
		})

		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "VALIDATION_ERROR", decodeError(t, rec).Code)
	})

	t.Run("503 without blob storage", func(t *testing.T) {
		h := NewHandlers(&fakeSplicer{}, session.NewMemoryRegistry(), testLogger())

		rec := postJSON(t, h.Upload, map[string]any{
			"audioData": b64(mp3Bytes()),
			"sessionId": "sess-9",
		})

		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, "BLOB_NOT_CONFIGURED", decodeError(t, rec).Code)
	})
}

func TestCleanupSession(t *testing.T) {
	t.Run("deletes registered blobs", func(t *testing.T) {
		store := newFakeStore()
		registry := session.NewMemoryRegistry()
		ctx := context.Background()
		require.NoError(t, registry.Add(ctx, "sess-3", session.Artifact{Key: "custom-audio/sess-3/a.mp3"}))
		require.NoError(t, registry.Add(ctx, "sess-3", session.Artifact{Key: "final-audio/sess-3/b.mp3"}))
		store.blobs["custom-audio/sess-3/a.mp3"] = []byte("a")
		store.blobs["final-audio/sess-3/b.mp3"] = []byte("b")

		h := NewHandlers(&fakeSplicer{}, registry, testLogger(), WithBlobStorage(store))

		rec := postJSON(t, h.CleanupSession, map[string]any{"sessionId": "sess-3"})
		require.Equal(t, http.StatusOK, rec.Code)

		var resp CleanupResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.True(t, resp.Success)
		assert.Equal(t, 2, resp.Deleted)
		assert.Empty(t, store.blobs)

		remaining, err := registry.List(ctx, "sess-3")
		require.NoError(t, err)
		assert.Empty(t, remaining)
	})

	t.Run("unknown session succeeds with zero deletions", func(t *testing.T) {
		h := NewHandlers(&fakeSplicer{}, session.NewMemoryRegistry(), testLogger(),
			WithBlobStorage(newFakeStore()))

		rec := postJSON(t, h.CleanupSession, map[string]any{"sessionId": "never-seen"})
		require.Equal(t, http.StatusOK, rec.Code)

		var resp CleanupResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.True(t, resp.Success)
		assert.Equal(t, 0, resp.Deleted)
	})
}

func TestRouter(t *testing.T) {
	h := NewHandlers(&fakeSplicer{result: splice.Result{Data: []byte("x"), Outcome: splice.OutcomeIntro}},
		session.NewMemoryRegistry(), testLogger())
	router := NewRouter(h, testLogger(), DefaultConfig())

	t.Run("health route", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("method not allowed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/splice", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})

	t.Run("CORS preflight", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/splice", nil)
		req.Header.Set("Origin", "https://app.test")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "https://app.test", rec.Header().Get("Access-Control-Allow-Origin"))
	})
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"track.mp3", "track.mp3"},
		{"my track.mp3", "my_track.mp3"},
		{"../../etc/passwd", "passwd"},
		{"..\\..\\evil.mp3", "evil.mp3"},
		{"", "audio.mp3"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeFilename(tt.input))
		})
	}
}
