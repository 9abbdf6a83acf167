package session

import (
	"context"
	"sync"
	"time"
)

// Compile-time check that MemoryRegistry implements Registry.
var _ Registry = (*MemoryRegistry)(nil)

// MemoryRegistry is an in-memory Registry using a map with RWMutex for
// thread-safe access. Artifact records are small; sessions are expected to be
// short-lived and drained by cleanup.
type MemoryRegistry struct {
	mu       sync.RWMutex
	sessions map[string][]Artifact
}

// NewMemoryRegistry creates an empty in-memory registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		sessions: make(map[string][]Artifact),
	}
}

// Add registers an artifact under a session ID, stamping CreatedAt when the
// caller left it zero.
func (r *MemoryRegistry) Add(_ context.Context, sessionID string, artifact Artifact) error {
	if artifact.CreatedAt.IsZero() {
		artifact.CreatedAt = time.Now()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sessionID] = append(r.sessions[sessionID], artifact)
	return nil
}

// List returns copies of the artifacts registered under a session ID.
func (r *MemoryRegistry) List(_ context.Context, sessionID string) ([]Artifact, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	artifacts := r.sessions[sessionID]
	out := make([]Artifact, len(artifacts))
	copy(out, artifacts)
	return out, nil
}

// Drain removes and returns all artifacts of a session.
func (r *MemoryRegistry) Drain(_ context.Context, sessionID string) ([]Artifact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	artifacts := r.sessions[sessionID]
	delete(r.sessions, sessionID)
	return artifacts, nil
}
