// Package storage provides blob storage for finished audio and uploaded
// custom tracks. It defines the Storage interface (port) for hexagonal
// architecture and implementations for local disk and S3 storage.
package storage

import (
	"context"
	"errors"
	"io"
)

// ErrNotConfigured is returned when blob operations are attempted on a
// backend that has no remote store behind it.
var ErrNotConfigured = errors.New("blob storage is not configured")

// Storage defines the interface for persisting audio blobs.
// Keys are slash-separated paths, e.g. "final-audio/<session>/<name>.mp3".
type Storage interface {
	// Upload stores data under key and returns a URL where the blob can
	// be retrieved. Returns ErrNotConfigured when no backend is available.
	Upload(ctx context.Context, key string, data io.Reader, contentType string) (url string, err error)

	// Delete removes the blob stored under key. Deleting a key that does
	// not exist is not an error.
	Delete(ctx context.Context, key string) error
}
