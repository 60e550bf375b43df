// Package cache implements a size- and count-bounded key/blob store with
// pluggable eviction.
//
// The cache stores opaque byte blobs; (de)serialization of domain objects
// is the caller's responsibility. Entries carry metadata (size, timestamps,
// access count) that drives the configured eviction strategy. All entries
// are written through to a durable storage.Store keyed by
// (namespace, key), so a restart reloads the cache and reconstructs the
// eviction ordering from persisted metadata.
//
// Eviction runs before insertion completes: Put first frees space until the
// incoming entry fits under both the byte ceiling and the entry-count
// ceiling, then inserts. This bounds peak usage. A single entry larger than
// the byte ceiling is rejected with ErrEntryTooLarge rather than evicting
// everything around it.
//
// Thread Safety:
// One mutex guards the entry map, the ordering structure, and the byte
// accounting. Get mutates bookkeeping under LRU/LFU, so reads take the
// same exclusive section as writes.
package cache

import (
	"errors"
	"fmt"
	"time"
)

// Strategy selects the eviction algorithm. It is fixed at construction.
type Strategy string

const (
	// StrategyFIFO evicts the oldest CreatedAt first.
	StrategyFIFO Strategy = "fifo"

	// StrategyLRU evicts the oldest LastAccessedAt first.
	StrategyLRU Strategy = "lru"

	// StrategyLFU evicts the lowest AccessCount first, tie-broken by
	// oldest CreatedAt.
	StrategyLFU Strategy = "lfu"

	// StrategyTTL evicts expired entries first, then the entry closest
	// to expiry. Entries without a TTL are evicted last, oldest first.
	StrategyTTL Strategy = "ttl"
)

// ParseStrategy converts a config string to a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyFIFO, StrategyLRU, StrategyLFU, StrategyTTL:
		return Strategy(s), nil
	default:
		return "", fmt.Errorf("invalid cache strategy %q (expected fifo, lru, lfu or ttl)", s)
	}
}

// ============================================================================
// Errors
// ============================================================================

var (
	// ErrMiss is returned by Get when the key is absent or expired.
	ErrMiss = errors.New("cache: miss")

	// ErrEntryTooLarge is returned by Put when a single entry exceeds the
	// configured byte ceiling.
	ErrEntryTooLarge = errors.New("cache: entry exceeds maximum cache size")

	// ErrStoreClosed is returned for operations on a closed store.
	ErrStoreClosed = errors.New("cache: store is closed")
)

// StorageError wraps a durable-layer failure during a cache operation.
// Durability is a caller-visible contract: these are surfaced synchronously
// to the Put/Get/Delete caller, never swallowed.
type StorageError struct {
	Op  string // "persist", "delete", "load"
	Key string
	Err error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	return fmt.Sprintf("cache: %s %q: %v", e.Op, e.Key, e.Err)
}

// Unwrap returns the underlying storage error.
func (e *StorageError) Unwrap() error {
	return e.Err
}

// ============================================================================
// Entry
// ============================================================================

// Entry is a cached blob plus the metadata eviction depends on.
// It is owned exclusively by the Store; callers receive value copies.
type Entry struct {
	Key            string    `json:"key"`
	Value          []byte    `json:"value"`
	Size           int64     `json:"size"`
	CreatedAt      time.Time `json:"created_at"`
	LastAccessedAt time.Time `json:"last_accessed_at"`
	AccessCount    int64     `json:"access_count"`

	// ExpiresAt is the TTL deadline; zero means the entry never expires.
	ExpiresAt time.Time `json:"expires_at,omitzero"`
}

// expired reports whether the entry's TTL has elapsed at now.
func (e *Entry) expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}

// PutOptions carries per-entry options.
type PutOptions struct {
	// TTL bounds the entry's lifetime. Zero falls back to the store's
	// DefaultTTL; if that is also zero the entry never expires.
	TTL time.Duration
}

// Stats contains cache statistics for observability.
type Stats struct {
	// Count is the number of live entries.
	Count int

	// TotalBytes is the tracked size of all live entries.
	TotalBytes int64

	// MaxBytes is the configured byte ceiling (0 = unlimited).
	MaxBytes int64

	// MaxEntries is the configured entry ceiling (0 = unlimited).
	MaxEntries int
}

// ============================================================================
// Metrics
// ============================================================================

// Metrics provides observability for cache operations.
//
// Implementations collect hit/miss ratios, evictions, and utilization.
// This is optional - a nil Metrics skips collection entirely.
type Metrics interface {
	// ObserveHit records a Get that returned a value.
	ObserveHit()

	// ObserveMiss records a Get that missed (absent or expired).
	ObserveMiss()

	// RecordEviction records an entry removed by the store itself.
	// Reason is "capacity" or "expired".
	RecordEviction(reason string)

	// RecordUsage records current utilization after a mutation.
	RecordUsage(totalBytes int64, entries int)
}
