package providers

import (
	"context"
	"errors"
)

// ErrCacheMiss signals that a key is not present in the remote cache
var ErrCacheMiss = errors.New("cache miss")

// CacheProvider defines the interface for remote (shared) cache operations.
// The query core uses it to publish telemetry snapshots for other processes.
type CacheProvider interface {
	// Get retrieves a value from cache; returns ErrCacheMiss when absent
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in cache with expiration
	Set(ctx context.Context, key string, value []byte, expirationSeconds int) error

	// Delete removes a value from cache
	Delete(ctx context.Context, key string) error

	// DeletePattern removes every key matching a glob pattern
	DeletePattern(ctx context.Context, pattern string) error

	// Exists checks if a key exists in cache
	Exists(ctx context.Context, key string) (bool, error)
}
