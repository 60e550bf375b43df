package badger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/offsync/pkg/storage"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Options{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	_, err := s.Get(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrKeyNotFound)

	require.NoError(t, s.Set(ctx, "queue/req/abc", []byte(`{"id":"abc"}`)))

	got, err := s.Get(ctx, "queue/req/abc")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"id":"abc"}`), got)

	require.NoError(t, s.Delete(ctx, "queue/req/abc"))
	_, err = s.Get(ctx, "queue/req/abc")
	assert.ErrorIs(t, err, storage.ErrKeyNotFound)
}

func TestListPrefix(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.Set(ctx, "cache/ns1/a", []byte("1")))
	require.NoError(t, s.Set(ctx, "cache/ns1/b", []byte("2")))
	require.NoError(t, s.Set(ctx, "cache/ns2/a", []byte("3")))

	ns1, err := s.ListPrefix(ctx, "cache/ns1/")
	require.NoError(t, err)
	assert.Len(t, ns1, 2)
	assert.Equal(t, []byte("2"), ns1["cache/ns1/b"])

	all, err := s.ListPrefix(ctx, "cache/")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestPersistenceAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := Open(Options{Path: dir})
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "queue/req/1", []byte("pending")))
	require.NoError(t, s.Close())

	reopened, err := Open(Options{Path: dir})
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	got, err := reopened.Get(ctx, "queue/req/1")
	require.NoError(t, err)
	assert.Equal(t, []byte("pending"), got)
}

func TestContextCancellation(t *testing.T) {
	s := openTestStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Error(t, s.Set(ctx, "k", nil))
	_, err := s.Get(ctx, "k")
	assert.Error(t, err)
}
