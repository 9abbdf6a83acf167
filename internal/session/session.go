// Package session tracks blob artifacts created on behalf of one client
// session, so a cleanup request can delete everything the session produced.
package session

import (
	"context"
	"time"
)

// Artifact is one stored blob belonging to a session.
type Artifact struct {
	// Key is the blob storage key.
	Key string
	// URL is the public reference returned by the store.
	URL string
	// ContentType is the MIME type the artifact was stored with.
	ContentType string
	// Size is the artifact length in bytes.
	Size int64
	// CreatedAt is when the artifact was registered.
	CreatedAt time.Time
}

// Registry records artifacts per session. Implementations must be safe for
// concurrent use.
type Registry interface {
	// Add registers an artifact under a session ID.
	Add(ctx context.Context, sessionID string, artifact Artifact) error

	// List returns the artifacts registered under a session ID, oldest first.
	// An unknown session yields an empty slice, not an error.
	List(ctx context.Context, sessionID string) ([]Artifact, error)

	// Drain removes and returns all artifacts of a session. An unknown
	// session yields an empty slice.
	Drain(ctx context.Context, sessionID string) ([]Artifact, error)
}
