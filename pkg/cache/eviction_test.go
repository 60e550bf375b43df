package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func keys(s *Store) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.entries))
	for k := range s.entries {
		out = append(out, k)
	}
	return out
}

func TestFIFOEvictsOldestInsert(t *testing.T) {
	ctx := context.Background()
	s, _, clock := newTestStore(t, Config{Strategy: StrategyFIFO, MaxEntries: 2})

	require.NoError(t, s.Put(ctx, "a", []byte("1"), PutOptions{}))
	clock.Advance(time.Millisecond)
	require.NoError(t, s.Put(ctx, "b", []byte("2"), PutOptions{}))
	clock.Advance(time.Millisecond)

	// Accessing a must not protect it under FIFO
	_, err := s.Get(ctx, "a")
	require.NoError(t, err)

	require.NoError(t, s.Put(ctx, "c", []byte("3"), PutOptions{}))

	assert.ElementsMatch(t, []string{"b", "c"}, keys(s))
}

func TestLRUAccessProtectsEntry(t *testing.T) {
	ctx := context.Background()
	s, _, clock := newTestStore(t, Config{Strategy: StrategyLRU, MaxEntries: 2})

	require.NoError(t, s.Put(ctx, "a", []byte("1"), PutOptions{}))
	clock.Advance(time.Millisecond)
	require.NoError(t, s.Put(ctx, "b", []byte("2"), PutOptions{}))
	clock.Advance(time.Millisecond)

	// a becomes the most recently used, so b is now the victim
	_, err := s.Get(ctx, "a")
	require.NoError(t, err)
	clock.Advance(time.Millisecond)

	require.NoError(t, s.Put(ctx, "d", []byte("4"), PutOptions{}))

	assert.ElementsMatch(t, []string{"a", "d"}, keys(s))
}

func TestLFUEvictsLeastFrequent(t *testing.T) {
	ctx := context.Background()
	s, _, clock := newTestStore(t, Config{Strategy: StrategyLFU, MaxEntries: 2})

	require.NoError(t, s.Put(ctx, "hot", []byte("1"), PutOptions{}))
	clock.Advance(time.Millisecond)
	require.NoError(t, s.Put(ctx, "cold", []byte("2"), PutOptions{}))
	clock.Advance(time.Millisecond)

	for i := 0; i < 3; i++ {
		_, err := s.Get(ctx, "hot")
		require.NoError(t, err)
	}

	require.NoError(t, s.Put(ctx, "new", []byte("3"), PutOptions{}))

	assert.ElementsMatch(t, []string{"hot", "new"}, keys(s))
}

func TestLFUTieBreaksOnOldestCreation(t *testing.T) {
	ctx := context.Background()
	s, _, clock := newTestStore(t, Config{Strategy: StrategyLFU, MaxEntries: 2})

	require.NoError(t, s.Put(ctx, "older", []byte("1"), PutOptions{}))
	clock.Advance(time.Millisecond)
	require.NoError(t, s.Put(ctx, "newer", []byte("2"), PutOptions{}))
	clock.Advance(time.Millisecond)

	// Equal access counts: the earlier CreatedAt loses
	require.NoError(t, s.Put(ctx, "third", []byte("3"), PutOptions{}))

	assert.ElementsMatch(t, []string{"newer", "third"}, keys(s))
}

func TestTTLEvictsExpiredFirst(t *testing.T) {
	ctx := context.Background()
	s, _, clock := newTestStore(t, Config{Strategy: StrategyTTL, MaxEntries: 2})

	require.NoError(t, s.Put(ctx, "expired", []byte("1"), PutOptions{TTL: time.Second}))
	clock.Advance(time.Millisecond)
	require.NoError(t, s.Put(ctx, "fresh", []byte("2"), PutOptions{TTL: time.Hour}))

	clock.Advance(2 * time.Second)
	require.NoError(t, s.Put(ctx, "new", []byte("3"), PutOptions{TTL: time.Hour}))

	assert.ElementsMatch(t, []string{"fresh", "new"}, keys(s))
}

func TestTTLEvictsSoonestExpiry(t *testing.T) {
	ctx := context.Background()
	s, _, clock := newTestStore(t, Config{Strategy: StrategyTTL, MaxEntries: 2})

	require.NoError(t, s.Put(ctx, "soon", []byte("1"), PutOptions{TTL: time.Minute}))
	clock.Advance(time.Millisecond)
	require.NoError(t, s.Put(ctx, "later", []byte("2"), PutOptions{TTL: time.Hour}))

	require.NoError(t, s.Put(ctx, "new", []byte("3"), PutOptions{TTL: time.Hour}))

	assert.ElementsMatch(t, []string{"later", "new"}, keys(s))
}

func TestTTLKeepsUnboundedEntriesLongest(t *testing.T) {
	ctx := context.Background()
	s, _, clock := newTestStore(t, Config{Strategy: StrategyTTL, MaxEntries: 2})

	require.NoError(t, s.Put(ctx, "forever", []byte("1"), PutOptions{}))
	clock.Advance(time.Millisecond)
	require.NoError(t, s.Put(ctx, "bounded", []byte("2"), PutOptions{TTL: time.Hour}))

	require.NoError(t, s.Put(ctx, "new", []byte("3"), PutOptions{}))

	assert.ElementsMatch(t, []string{"forever", "new"}, keys(s))
}

func TestEvictionRunsBeforeInsert(t *testing.T) {
	ctx := context.Background()
	s, _, clock := newTestStore(t, Config{Strategy: StrategyFIFO, MaxBytes: 10})

	require.NoError(t, s.Put(ctx, "a", make([]byte, 6), PutOptions{}))
	clock.Advance(time.Millisecond)
	require.NoError(t, s.Put(ctx, "b", make([]byte, 4), PutOptions{}))
	clock.Advance(time.Millisecond)

	// 5 bytes do not fit next to 6+4; a (oldest) goes, b stays
	require.NoError(t, s.Put(ctx, "c", make([]byte, 5), PutOptions{}))

	assert.ElementsMatch(t, []string{"b", "c"}, keys(s))
	assert.LessOrEqual(t, s.Stats().TotalBytes, int64(10))
}

func TestEvictionCascadesAcrossMultipleVictims(t *testing.T) {
	ctx := context.Background()
	s, _, clock := newTestStore(t, Config{Strategy: StrategyFIFO, MaxBytes: 10})

	for _, k := range []string{"a", "b", "c"} {
		require.NoError(t, s.Put(ctx, k, make([]byte, 3), PutOptions{}))
		clock.Advance(time.Millisecond)
	}

	// 8 bytes force out both a and b
	require.NoError(t, s.Put(ctx, "big", make([]byte, 7), PutOptions{}))

	assert.ElementsMatch(t, []string{"c", "big"}, keys(s))
}

func TestLRUOrderSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	s, backing, clock := newTestStore(t, Config{Strategy: StrategyLRU, MaxEntries: 3})

	require.NoError(t, s.Put(ctx, "a", []byte("1"), PutOptions{}))
	clock.Advance(time.Millisecond)
	require.NoError(t, s.Put(ctx, "b", []byte("2"), PutOptions{}))
	clock.Advance(time.Millisecond)
	require.NoError(t, s.Put(ctx, "c", []byte("3"), PutOptions{}))
	clock.Advance(time.Millisecond)

	// a's access is persisted, so after a restart b is the oldest access
	_, err := s.Get(ctx, "a")
	require.NoError(t, err)

	reloaded, err := New(backing, Config{Strategy: StrategyLRU, MaxEntries: 3}, nil)
	require.NoError(t, err)

	require.NoError(t, reloaded.Put(ctx, "d", []byte("4"), PutOptions{}))

	assert.ElementsMatch(t, []string{"a", "c", "d"}, keys(reloaded))
}
