// Package cache provides an answer cache keyed by question and profile.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Entry is a cached pipeline response.
type Entry struct {
	Answer          string    `json:"answer"`
	SourcesJSON     []byte    `json:"sources_json"`
	RoutingDecision string    `json:"routing_decision"`
	CachedAt        time.Time `json:"cached_at"`
}

// Cache stores answers for repeated questions. Implementations must be
// safe for concurrent use.
type Cache interface {
	// Get returns the cached entry and whether it was found. A cache
	// error is reported but callers treat misses and errors the same.
	Get(ctx context.Context, key string) (*Entry, bool, error)

	// Set stores an entry under key.
	Set(ctx context.Context, key string, entry Entry) error

	// Invalidate drops all cached answers. Called after ingestion so
	// answers reflect the new corpus.
	Invalidate(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// Key derives a stable cache key from the question and profile.
func Key(question, profileID string) string {
	norm := strings.ToLower(strings.TrimSpace(question))
	sum := sha256.Sum256([]byte(profileID + "\x00" + norm))
	return hex.EncodeToString(sum[:])
}
