// Package bootstrap provides dependency initialization for the splice API.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/soundbed/splice-api/internal/audio"
	"github.com/soundbed/splice-api/internal/config"
	"github.com/soundbed/splice-api/internal/fetch"
	"github.com/soundbed/splice-api/internal/session"
	"github.com/soundbed/splice-api/internal/splice"
	"github.com/soundbed/splice-api/internal/storage"
)

// Dependencies holds all initialized dependencies for the HTTP server.
type Dependencies struct {
	SpliceService *splice.Service
	Store         storage.Storage
	Sessions      session.Registry
	Tools         audio.Toolset
}

// NewDependencies creates and initializes all dependencies for the application.
// Fails fast when ffmpeg or ffprobe cannot be resolved.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	tools, err := audio.DetectTools(ctx, cfg.FFmpegPath, cfg.FFprobePath)
	if err != nil {
		return nil, fmt.Errorf("detect audio tools: %w", err)
	}
	logger.Info("audio tools detected",
		slog.String("ffmpeg", tools.FFmpegPath),
		slog.String("ffprobe", tools.FFprobePath),
		slog.String("version", tools.Version),
	)

	engine := audio.NewEngine(tools, audio.WithLogger(logger))

	fetcher := fetch.NewClient(
		fetch.WithTimeout(time.Duration(cfg.FetchTimeoutSec)*time.Second),
		fetch.WithLogger(logger),
	)

	store, err := initStorage(cfg, logger)
	if err != nil {
		return nil, err
	}

	sessions := session.NewMemoryRegistry()

	svc := splice.NewService(engine, fetcher, logger,
		splice.WithTempDir(cfg.TempDir),
		splice.WithMaxSpeechChunks(cfg.MaxSpeechChunks),
		splice.WithBlobStore(store),
		splice.WithSessionRegistry(sessions),
	)

	return &Dependencies{
		SpliceService: svc,
		Store:         store,
		Sessions:      sessions,
		Tools:         tools,
	}, nil
}

// initStorage creates the appropriate blob backend based on configuration.
func initStorage(cfg *config.Config, logger *slog.Logger) (storage.Storage, error) {
	if cfg.S3Enabled() {
		s3Cfg := storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		}
		s3Store, err := storage.NewS3Storage(s3Cfg)
		if err != nil {
			return nil, fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Info("S3 storage configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
		return s3Store, nil
	}

	localStore, err := storage.NewLocalStorage(filepath.Join(cfg.TempDir, "blobs"))
	if err != nil {
		return nil, fmt.Errorf("create local storage: %w", err)
	}
	logger.Info("local blob storage configured",
		slog.String("root", localStore.Root()),
	)
	return localStore, nil
}
