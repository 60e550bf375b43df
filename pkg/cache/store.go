package cache

import (
	"container/list"
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/marmos91/offsync/internal/logger"
	"github.com/marmos91/offsync/pkg/storage"
)

// Configuration defaults
const (
	// DefaultSweepInterval is how often the background sweeper reclaims
	// expired entries. Lazy expiry on Get covers correctness; the sweeper
	// exists to reclaim space proactively.
	DefaultSweepInterval = time.Minute

	// DefaultNamespace is used when Config.Namespace is empty.
	DefaultNamespace = "default"
)

// Config holds CacheStore configuration.
type Config struct {
	// Namespace isolates this store's keys in the shared storage backend.
	Namespace string

	// MaxBytes is the byte ceiling across all entries (0 = unlimited).
	MaxBytes int64

	// MaxEntries is the entry-count ceiling (0 = unlimited).
	MaxEntries int

	// Strategy selects the eviction algorithm.
	Strategy Strategy

	// DefaultTTL applies to entries put without an explicit TTL
	// (0 = no expiry).
	DefaultTTL time.Duration

	// SweepInterval is the background expiry sweep period.
	SweepInterval time.Duration
}

// Store is a bounded key/blob cache with write-through persistence.
type Store struct {
	cfg     Config
	storage storage.Store
	metrics Metrics
	clock   func() time.Time

	mu         sync.Mutex
	entries    map[string]*cacheEntry
	order      *list.List // FIFO/LRU victim order, front = next victim
	totalBytes int64
	closed     bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// cacheEntry pairs an Entry with its position in the ordering list.
// elem is nil under LFU/TTL, which select victims by scanning metadata.
type cacheEntry struct {
	Entry
	elem *list.Element
}

// New creates a Store backed by the given durable storage and reloads any
// persisted entries, reconstructing the eviction order from their metadata.
//
// Expired and undecodable records found during reload are dropped from
// storage. If the persisted set exceeds the configured ceilings (e.g. the
// limits were lowered), the overflow is evicted immediately.
func New(store storage.Store, cfg Config, metrics Metrics) (*Store, error) {
	if cfg.Namespace == "" {
		cfg.Namespace = DefaultNamespace
	}
	if cfg.Strategy == "" {
		cfg.Strategy = StrategyLRU
	}
	if _, err := ParseStrategy(string(cfg.Strategy)); err != nil {
		return nil, err
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}

	s := &Store{
		cfg:     cfg,
		storage: store,
		metrics: metrics,
		clock:   time.Now,
		entries: make(map[string]*cacheEntry),
		order:   list.New(),
	}

	if err := s.reload(context.Background()); err != nil {
		return nil, err
	}

	return s, nil
}

// Start launches the background expiry sweeper. Stop must be called to
// release it.
func (s *Store) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go s.runSweeper(ctx)
}

// Stop halts the background sweeper. It does not close the storage backend,
// which may be shared with other components.
func (s *Store) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// Close stops the sweeper and rejects all further operations with
// ErrStoreClosed. The storage backend stays open; it may be shared with
// other components.
func (s *Store) Close() {
	s.Stop()

	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// Put stores value under key, evicting per the active strategy until the
// entry fits. Replacing an existing key reuses its budget.
//
// The durable write happens before the in-memory insert; a storage failure
// is returned as a *StorageError and leaves the previous in-memory entry
// untouched.
func (s *Store) Put(ctx context.Context, key string, value []byte, opts PutOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	size := int64(len(value))

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	if s.cfg.MaxBytes > 0 && size > s.cfg.MaxBytes {
		return ErrEntryTooLarge
	}

	now := s.clock()

	// Replacement reuses the old entry's byte and count budget
	old := s.entries[key]
	needed := size
	extraCount := 1
	if old != nil {
		needed -= old.Size
		extraCount = 0
	}

	if err := s.ensureCapacityLocked(ctx, needed, extraCount, old); err != nil {
		return err
	}

	ttl := opts.TTL
	if ttl == 0 {
		ttl = s.cfg.DefaultTTL
	}

	e := &cacheEntry{Entry: Entry{
		Key:            key,
		Value:          append([]byte(nil), value...),
		Size:           size,
		CreatedAt:      now,
		LastAccessedAt: now,
	}}
	if ttl > 0 {
		e.ExpiresAt = now.Add(ttl)
	}

	if err := s.persistLocked(ctx, e); err != nil {
		return err
	}

	if old != nil {
		s.detachLocked(old)
	}
	s.attachLocked(e)
	s.recordUsageLocked()
	return nil
}

// Get returns a copy of the value cached under key, or ErrMiss.
//
// Expired entries are treated as misses and reclaimed lazily. Under LRU and
// LFU the access bookkeeping (last access, count) is updated and persisted
// so the eviction order survives a restart; a persistence failure surfaces
// as a *StorageError.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	e, ok := s.entries[key]
	if !ok {
		s.observeMiss()
		return nil, ErrMiss
	}

	now := s.clock()
	if e.expired(now) {
		s.removeLocked(ctx, e, true, "expired")
		s.observeMiss()
		return nil, ErrMiss
	}

	e.LastAccessedAt = now
	e.AccessCount++

	switch s.cfg.Strategy {
	case StrategyLRU:
		s.order.MoveToBack(e.elem)
		fallthrough
	case StrategyLFU:
		// Access metadata drives eviction under LRU/LFU, so it must be
		// durable; FIFO/TTL order depends only on creation metadata.
		if err := s.persistLocked(ctx, e); err != nil {
			return nil, err
		}
	}

	if s.metrics != nil {
		s.metrics.ObserveHit()
	}

	return append([]byte(nil), e.Value...), nil
}

// Delete removes key from the cache and from durable storage.
// Deleting a missing key succeeds.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	e, ok := s.entries[key]
	if !ok {
		return nil
	}

	if err := s.storage.Delete(ctx, s.storageKey(key)); err != nil {
		return &StorageError{Op: "delete", Key: key, Err: err}
	}

	s.detachLocked(e)
	s.recordUsageLocked()
	return nil
}

// Clear removes every entry from the cache and from durable storage.
func (s *Store) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	for key, e := range s.entries {
		if err := s.storage.Delete(ctx, s.storageKey(key)); err != nil {
			return &StorageError{Op: "delete", Key: key, Err: err}
		}
		s.detachLocked(e)
	}

	s.recordUsageLocked()
	return nil
}

// Stats returns current utilization.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Stats{
		Count:      len(s.entries),
		TotalBytes: s.totalBytes,
		MaxBytes:   s.cfg.MaxBytes,
		MaxEntries: s.cfg.MaxEntries,
	}
}

// ============================================================================
// Internals
// ============================================================================

// storageKey namespaces a cache key in the shared storage backend.
func (s *Store) storageKey(key string) string {
	return "cache/" + s.cfg.Namespace + "/" + key
}

func (s *Store) prefix() string {
	return "cache/" + s.cfg.Namespace + "/"
}

// persistLocked writes the entry's durable record. Caller holds s.mu.
func (s *Store) persistLocked(ctx context.Context, e *cacheEntry) error {
	record, err := json.Marshal(e.Entry)
	if err != nil {
		return &StorageError{Op: "persist", Key: e.Key, Err: err}
	}
	if err := s.storage.Set(ctx, s.storageKey(e.Key), record); err != nil {
		return &StorageError{Op: "persist", Key: e.Key, Err: err}
	}
	return nil
}

// attachLocked inserts the entry into the map and ordering structure.
func (s *Store) attachLocked(e *cacheEntry) {
	switch s.cfg.Strategy {
	case StrategyFIFO, StrategyLRU:
		e.elem = s.order.PushBack(e)
	}
	s.entries[e.Key] = e
	s.totalBytes += e.Size
}

// detachLocked removes the entry from the map and ordering structure
// without touching durable storage.
func (s *Store) detachLocked(e *cacheEntry) {
	if e.elem != nil {
		s.order.Remove(e.elem)
		e.elem = nil
	}
	delete(s.entries, e.Key)
	s.totalBytes -= e.Size
}

// removeLocked detaches the entry and deletes its durable record.
// Storage failures during store-initiated removal (eviction, expiry) are
// logged, not surfaced: the caller did not initiate this write.
func (s *Store) removeLocked(ctx context.Context, e *cacheEntry, evicted bool, reason string) {
	if err := s.storage.Delete(ctx, s.storageKey(e.Key)); err != nil {
		logger.Warn("Cache: failed to delete evicted record",
			"namespace", s.cfg.Namespace, "key", e.Key, "error", err)
	}
	s.detachLocked(e)

	if evicted && s.metrics != nil {
		s.metrics.RecordEviction(reason)
	}
}

func (s *Store) observeMiss() {
	if s.metrics != nil {
		s.metrics.ObserveMiss()
	}
}

func (s *Store) recordUsageLocked() {
	if s.metrics != nil {
		s.metrics.RecordUsage(s.totalBytes, len(s.entries))
	}
}

// reload rebuilds the in-memory index from persisted records.
func (s *Store) reload(ctx context.Context) error {
	records, err := s.storage.ListPrefix(ctx, s.prefix())
	if err != nil {
		return &StorageError{Op: "load", Key: s.prefix(), Err: err}
	}

	now := s.clock()
	loaded := make([]*cacheEntry, 0, len(records))

	for storageKey, record := range records {
		var e Entry
		if err := json.Unmarshal(record, &e); err != nil {
			logger.Warn("Cache: dropping undecodable record", "key", storageKey, "error", err)
			_ = s.storage.Delete(ctx, storageKey)
			continue
		}
		if e.expired(now) {
			_ = s.storage.Delete(ctx, storageKey)
			continue
		}
		loaded = append(loaded, &cacheEntry{Entry: e})
	}

	// Rebuild the victim order from persisted metadata
	switch s.cfg.Strategy {
	case StrategyFIFO:
		sort.Slice(loaded, func(i, j int) bool {
			return loaded[i].CreatedAt.Before(loaded[j].CreatedAt)
		})
	case StrategyLRU:
		sort.Slice(loaded, func(i, j int) bool {
			return loaded[i].LastAccessedAt.Before(loaded[j].LastAccessedAt)
		})
	}

	for _, e := range loaded {
		s.attachLocked(e)
	}

	// Config limits may have shrunk since the records were written
	if err := s.ensureCapacityLocked(ctx, 0, 0, nil); err != nil {
		return err
	}

	if len(s.entries) > 0 {
		logger.Info("Cache reloaded",
			"namespace", s.cfg.Namespace,
			"entries", len(s.entries),
			"bytes", s.totalBytes,
			"strategy", s.cfg.Strategy)
	}

	s.recordUsageLocked()
	return nil
}

// runSweeper periodically reclaims expired entries.
func (s *Store) runSweeper(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// sweep removes every expired entry in one critical section.
func (s *Store) sweep(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	now := s.clock()
	var expired []*cacheEntry
	for _, e := range s.entries {
		if e.expired(now) {
			expired = append(expired, e)
		}
	}

	for _, e := range expired {
		s.removeLocked(ctx, e, true, "expired")
	}

	if len(expired) > 0 {
		logger.Debug("Cache sweep reclaimed expired entries",
			"namespace", s.cfg.Namespace, "count", len(expired))
		s.recordUsageLocked()
	}
}
