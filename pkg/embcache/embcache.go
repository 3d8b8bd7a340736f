// Package embcache caches computed speaker embeddings keyed by the content
// hash of the audio bytes that produced them.
//
// The verification orchestrator may embed the same byte range more than once
// (the first-prefix pass overlaps the early snapshot, sliding windows overlap
// each other across retries). Caching turns those repeats into lookups
// instead of model invocations.
//
// Two backends are provided: an in-memory map for tests and single-shot
// runs, and a BadgerDB store for persistence across restarts.
package embcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

// ErrNotFound is returned by Get when the key has no cached embedding.
var ErrNotFound = errors.New("embcache: not found")

// Cache stores embedding vectors by content key.
//
// Implementations must be safe for concurrent use.
type Cache interface {
	// Get retrieves a cached embedding. Returns ErrNotFound if absent.
	Get(ctx context.Context, key string) ([]float32, error)

	// Put stores an embedding. Overwrites any existing value.
	Put(ctx context.Context, key string, embedding []float32) error

	// Close releases resources held by the cache.
	Close() error
}

// Key derives the cache key for a chunk of PCM audio.
func Key(audio []byte) string {
	sum := sha256.Sum256(audio)
	return hex.EncodeToString(sum[:])
}
