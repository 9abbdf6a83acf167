package config

import (
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv() {
	os.Unsetenv("PORT")
	os.Unsetenv("FFMPEG_PATH")
	os.Unsetenv("FFPROBE_PATH")
	os.Unsetenv("TEMP_DIR")
	os.Unsetenv("MAX_SPEECH_CHUNKS")
	os.Unsetenv("MAX_UPLOAD_MB")
	os.Unsetenv("FETCH_TIMEOUT_SEC")
	os.Unsetenv("S3_BUCKET")
	os.Unsetenv("S3_REGION")
	os.Unsetenv("S3_ENDPOINT")
	os.Unsetenv("AWS_ACCESS_KEY_ID")
	os.Unsetenv("AWS_SECRET_ACCESS_KEY")
	os.Unsetenv("LOG_FORMAT")
	os.Unsetenv("LOG_LEVEL")
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv()

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "/tmp/splice", cfg.TempDir)
	assert.Equal(t, 10, cfg.MaxSpeechChunks)
	assert.Equal(t, 25, cfg.MaxUploadMB)
	assert.Equal(t, 30, cfg.FetchTimeoutSec)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Empty(t, cfg.FFmpegPath)
	assert.False(t, cfg.S3Enabled())
}

func TestLoad_Overrides(t *testing.T) {
	clearEnv()
	t.Setenv("PORT", "9090")
	t.Setenv("TEMP_DIR", "/var/tmp/splice")
	t.Setenv("MAX_SPEECH_CHUNKS", "5")
	t.Setenv("FETCH_TIMEOUT_SEC", "10")
	t.Setenv("FFMPEG_PATH", "/opt/ffmpeg/bin/ffmpeg")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "/var/tmp/splice", cfg.TempDir)
	assert.Equal(t, 5, cfg.MaxSpeechChunks)
	assert.Equal(t, 10, cfg.FetchTimeoutSec)
	assert.Equal(t, "/opt/ffmpeg/bin/ffmpeg", cfg.FFmpegPath)
}

func TestLoad_InvalidPort(t *testing.T) {
	clearEnv()
	t.Setenv("PORT", "70000")

	_, err := Load()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidPort)
}

func TestConfig_S3Enabled(t *testing.T) {
	t.Run("enabled when bucket and region set", func(t *testing.T) {
		cfg := &Config{S3Bucket: "bucket", S3Region: "us-east-1"}
		assert.True(t, cfg.S3Enabled())
	})

	t.Run("disabled when both empty", func(t *testing.T) {
		cfg := &Config{}
		assert.False(t, cfg.S3Enabled())
	})
}

func TestConfig_Validate(t *testing.T) {
	t.Run("valid config", func(t *testing.T) {
		cfg := &Config{Port: 8080}
		assert.NoError(t, cfg.Validate())
	})

	t.Run("partial S3 config", func(t *testing.T) {
		cfg := &Config{Port: 8080, S3Bucket: "bucket"}
		assert.ErrorIs(t, cfg.Validate(), ErrS3Partial)
	})

	t.Run("zero port", func(t *testing.T) {
		cfg := &Config{}
		assert.ErrorIs(t, cfg.Validate(), ErrInvalidPort)
	})
}

func TestConfig_String_MasksSecrets(t *testing.T) {
	cfg := &Config{
		Port:               8080,
		TempDir:            "/tmp/test",
		S3Bucket:           "bucket",
		AWSAccessKeyID:     "access-key",
		AWSSecretAccessKey: "secret-key",
	}

	str := cfg.String()

	assert.Contains(t, str, "8080")
	assert.Contains(t, str, "/tmp/test")
	assert.Contains(t, str, "bucket")
	assert.NotContains(t, str, "access-key")
	assert.NotContains(t, str, "secret-key")
}

func TestConfig_NewLogger(t *testing.T) {
	t.Run("json format", func(t *testing.T) {
		cfg := &Config{LogFormat: "json", LogLevel: "info"}
		require.NotNil(t, cfg.NewLogger())
	})

	t.Run("text format", func(t *testing.T) {
		cfg := &Config{LogFormat: "text", LogLevel: "debug"}
		require.NotNil(t, cfg.NewLogger())
	})
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"unknown", slog.LevelInfo}, // defaults to info
		{"", slog.LevelInfo},        // defaults to info
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseLogLevel(tt.input))
		})
	}
}
