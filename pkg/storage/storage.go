// Package storage defines the durable key-value contract shared by the
// cache store and the request queue.
//
// The engine deliberately does not assume a specific storage engine - only
// four operations with crash-safe write semantics. Set and Delete must be
// durable before they return: a value acknowledged as written is recoverable
// after a process crash. Both the cache and the queue build their write-ahead
// guarantees on top of this contract.
package storage

import (
	"context"
	"errors"
)

var (
	// ErrKeyNotFound is returned by Get when the key has no value.
	ErrKeyNotFound = errors.New("storage: key not found")

	// ErrStoreClosed is returned for operations on a closed store.
	ErrStoreClosed = errors.New("storage: store is closed")
)

// Store is a durable key-value store with crash-safe writes.
//
// Implementations must be safe for concurrent use. Keys are arbitrary
// UTF-8 strings; callers namespace them with prefixes (e.g. "cache/",
// "queue/req/").
type Store interface {
	// Get returns the value for key, or ErrKeyNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set durably writes value under key. When Set returns nil the write
	// has been synced and survives a crash.
	Set(ctx context.Context, key string, value []byte) error

	// Delete durably removes key. Deleting a missing key succeeds.
	Delete(ctx context.Context, key string) error

	// ListPrefix returns all key/value pairs whose key starts with prefix.
	// The returned map is a snapshot; mutating it does not affect the store.
	ListPrefix(ctx context.Context, prefix string) (map[string][]byte, error)

	// Close releases resources. Operations after Close fail with
	// ErrStoreClosed.
	Close() error
}
