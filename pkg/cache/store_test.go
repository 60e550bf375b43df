package cache

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/offsync/pkg/storage"
	"github.com/marmos91/offsync/pkg/storage/memory"
)

// fakeClock provides a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// flakyStore wraps a storage.Store and fails writes on demand.
type flakyStore struct {
	storage.Store
	mu      sync.Mutex
	failSet bool
}

func (f *flakyStore) Set(ctx context.Context, key string, value []byte) error {
	f.mu.Lock()
	fail := f.failSet
	f.mu.Unlock()
	if fail {
		return errors.New("disk full")
	}
	return f.Store.Set(ctx, key, value)
}

func newTestStore(t *testing.T, cfg Config) (*Store, *memory.Store, *fakeClock) {
	t.Helper()
	backing := memory.New()
	t.Cleanup(func() { _ = backing.Close() })

	s, err := New(backing, cfg, nil)
	require.NoError(t, err)

	clock := newFakeClock()
	s.clock = clock.Now
	return s, backing, clock
}

func TestPutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestStore(t, Config{Strategy: StrategyLRU})

	_, err := s.Get(ctx, "absent")
	assert.ErrorIs(t, err, ErrMiss)

	require.NoError(t, s.Put(ctx, "user/1", []byte("payload"), PutOptions{}))

	got, err := s.Get(ctx, "user/1")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), got)

	// The returned slice is a copy
	got[0] = 'X'
	again, err := s.Get(ctx, "user/1")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), again)
}

func TestCeilingsHoldAfterEveryPut(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestStore(t, Config{
		Strategy:   StrategyLRU,
		MaxBytes:   64,
		MaxEntries: 5,
	})

	for i := 0; i < 50; i++ {
		value := make([]byte, 1+i%20)
		require.NoError(t, s.Put(ctx, fmt.Sprintf("k%d", i), value, PutOptions{}))

		stats := s.Stats()
		assert.LessOrEqual(t, stats.TotalBytes, int64(64), "byte ceiling violated after put %d", i)
		assert.LessOrEqual(t, stats.Count, 5, "entry ceiling violated after put %d", i)
	}
}

func TestEntryTooLargeRejected(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestStore(t, Config{Strategy: StrategyFIFO, MaxBytes: 10})

	require.NoError(t, s.Put(ctx, "small", []byte("abc"), PutOptions{}))

	err := s.Put(ctx, "huge", make([]byte, 11), PutOptions{})
	assert.ErrorIs(t, err, ErrEntryTooLarge)

	// The oversize put must not have evicted anything
	_, err = s.Get(ctx, "small")
	assert.NoError(t, err)
}

func TestReplaceReusesBudget(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestStore(t, Config{Strategy: StrategyLRU, MaxBytes: 10, MaxEntries: 2})

	require.NoError(t, s.Put(ctx, "a", make([]byte, 8), PutOptions{}))
	require.NoError(t, s.Put(ctx, "b", make([]byte, 2), PutOptions{}))

	// Replacing a with a 9-byte value fits once a's 8 bytes are released
	require.NoError(t, s.Put(ctx, "a", make([]byte, 8), PutOptions{}))

	_, err := s.Get(ctx, "b")
	assert.NoError(t, err, "replacement must not evict unrelated entries")
	assert.Equal(t, 2, s.Stats().Count)
}

func TestTTLLazyExpiry(t *testing.T) {
	ctx := context.Background()
	s, _, clock := newTestStore(t, Config{Strategy: StrategyLRU})

	require.NoError(t, s.Put(ctx, "k", []byte("v"), PutOptions{TTL: 100 * time.Millisecond}))

	clock.Advance(150 * time.Millisecond)

	_, err := s.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)
	assert.Zero(t, s.Stats().Count, "expired entry must be reclaimed on miss")
}

func TestDefaultTTLApplied(t *testing.T) {
	ctx := context.Background()
	s, _, clock := newTestStore(t, Config{Strategy: StrategyTTL, DefaultTTL: time.Minute})

	require.NoError(t, s.Put(ctx, "k", []byte("v"), PutOptions{}))

	clock.Advance(59 * time.Second)
	_, err := s.Get(ctx, "k")
	assert.NoError(t, err)

	clock.Advance(2 * time.Second)
	_, err = s.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestBackgroundSweepReclaimsExpired(t *testing.T) {
	ctx := context.Background()
	s, _, clock := newTestStore(t, Config{Strategy: StrategyLRU})

	require.NoError(t, s.Put(ctx, "short", []byte("v"), PutOptions{TTL: time.Second}))
	require.NoError(t, s.Put(ctx, "long", []byte("v"), PutOptions{}))

	clock.Advance(2 * time.Second)
	s.sweep(ctx)

	stats := s.Stats()
	assert.Equal(t, 1, stats.Count)

	_, err := s.Get(ctx, "long")
	assert.NoError(t, err)
}

func TestDeleteAndClear(t *testing.T) {
	ctx := context.Background()
	s, backing, _ := newTestStore(t, Config{Strategy: StrategyFIFO, Namespace: "ns"})

	require.NoError(t, s.Put(ctx, "a", []byte("1"), PutOptions{}))
	require.NoError(t, s.Put(ctx, "b", []byte("2"), PutOptions{}))

	require.NoError(t, s.Delete(ctx, "a"))
	require.NoError(t, s.Delete(ctx, "a"), "deleting a missing key succeeds")
	_, err := s.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrMiss)

	require.NoError(t, s.Clear(ctx))
	assert.Zero(t, s.Stats().Count)
	assert.Zero(t, s.Stats().TotalBytes)

	// Durable records are gone too
	records, err := backing.ListPrefix(ctx, "cache/ns/")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestStorageFailureSurfacedAndMemoryUntouched(t *testing.T) {
	ctx := context.Background()
	backing := memory.New()
	defer func() { _ = backing.Close() }()
	flaky := &flakyStore{Store: backing}

	s, err := New(flaky, Config{Strategy: StrategyFIFO}, nil)
	require.NoError(t, err)

	require.NoError(t, s.Put(ctx, "k", []byte("old"), PutOptions{}))

	flaky.mu.Lock()
	flaky.failSet = true
	flaky.mu.Unlock()

	err = s.Put(ctx, "k", []byte("new"), PutOptions{})
	var storageErr *StorageError
	require.ErrorAs(t, err, &storageErr)
	assert.Equal(t, "persist", storageErr.Op)

	// The previous entry survives the failed write
	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("old"), got)
}

func TestReloadFromStorage(t *testing.T) {
	ctx := context.Background()
	backing := memory.New()
	defer func() { _ = backing.Close() }()

	cfg := Config{Strategy: StrategyLRU, Namespace: "app", MaxEntries: 10}

	s, err := New(backing, cfg, nil)
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, "a", []byte("1"), PutOptions{}))
	require.NoError(t, s.Put(ctx, "b", []byte("2"), PutOptions{}))

	// Simulated restart: a fresh store over the same backing storage
	reloaded, err := New(backing, cfg, nil)
	require.NoError(t, err)

	got, err := reloaded.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), got)
	assert.Equal(t, 2, reloaded.Stats().Count)
}

func TestReloadDropsExpired(t *testing.T) {
	ctx := context.Background()
	backing := memory.New()
	defer func() { _ = backing.Close() }()

	s, err := New(backing, Config{Strategy: StrategyTTL}, nil)
	require.NoError(t, err)
	clock := newFakeClock()
	s.clock = clock.Now

	require.NoError(t, s.Put(ctx, "gone", []byte("1"), PutOptions{TTL: time.Second}))
	require.NoError(t, s.Put(ctx, "kept", []byte("2"), PutOptions{TTL: time.Hour}))

	// Simulated restart with the fake clock past the short TTL. The store is
	// built by hand because New wires the wall clock before reload runs.
	clock.Advance(2 * time.Second)
	reloaded := &Store{
		cfg:     s.cfg,
		storage: backing,
		clock:   clock.Now,
		entries: make(map[string]*cacheEntry),
		order:   list.New(),
	}
	require.NoError(t, reloaded.reload(ctx))

	assert.Equal(t, 1, reloaded.Stats().Count)
	_, err = reloaded.Get(ctx, "kept")
	assert.NoError(t, err)
}

func TestReloadEnforcesShrunkLimits(t *testing.T) {
	ctx := context.Background()
	backing := memory.New()
	defer func() { _ = backing.Close() }()

	s, err := New(backing, Config{Strategy: StrategyFIFO}, nil)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Put(ctx, fmt.Sprintf("k%d", i), []byte("x"), PutOptions{}))
	}

	shrunk, err := New(backing, Config{Strategy: StrategyFIFO, MaxEntries: 2}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, shrunk.Stats().Count)
}

func TestClosedStoreRejectsOperations(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestStore(t, Config{Strategy: StrategyLRU})

	s.Close()

	assert.ErrorIs(t, s.Put(ctx, "k", nil, PutOptions{}), ErrStoreClosed)
	_, err := s.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrStoreClosed)
	assert.ErrorIs(t, s.Delete(ctx, "k"), ErrStoreClosed)
	assert.ErrorIs(t, s.Clear(ctx), ErrStoreClosed)
}
