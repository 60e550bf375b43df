package cache

import (
	"context"
	"time"
)

// ============================================================================
// Eviction
// ============================================================================
//
// Eviction runs inside Put's critical section, before the new entry is
// inserted: victims are removed (memory and durable record) until the
// incoming size fits under the byte ceiling and the entry-count ceiling.
// Victim selection depends on the strategy fixed at construction:
//
//	FIFO  front of the insertion-ordered list (oldest CreatedAt)
//	LRU   front of the access-ordered list (oldest LastAccessedAt)
//	LFU   scan for lowest AccessCount, tie-break oldest CreatedAt
//	TTL   expired entries first, then soonest ExpiresAt; entries without
//	      a TTL come last, oldest CreatedAt first

// ensureCapacityLocked evicts until an incoming entry of the given size
// fits. extraCount is 1 for a new key and 0 when replacing an existing one;
// exclude protects the entry being replaced from victim selection.
// Caller holds s.mu.
func (s *Store) ensureCapacityLocked(ctx context.Context, needed int64, extraCount int, exclude *cacheEntry) error {
	for {
		overBytes := s.cfg.MaxBytes > 0 && s.totalBytes+needed > s.cfg.MaxBytes
		overCount := s.cfg.MaxEntries > 0 && len(s.entries)+extraCount > s.cfg.MaxEntries
		if !overBytes && !overCount {
			return nil
		}

		victim := s.selectVictimLocked(exclude)
		if victim == nil {
			// Nothing left to evict. Reachable only when the incoming
			// entry alone cannot fit, which Put's size check should
			// already have rejected.
			return ErrEntryTooLarge
		}

		s.removeLocked(ctx, victim, true, "capacity")
	}
}

// selectVictimLocked picks the next entry to evict, or nil when the cache
// holds nothing evictable. Caller holds s.mu.
func (s *Store) selectVictimLocked(exclude *cacheEntry) *cacheEntry {
	switch s.cfg.Strategy {
	case StrategyFIFO, StrategyLRU:
		return s.frontVictimLocked(exclude)
	case StrategyLFU:
		return s.lfuVictimLocked(exclude)
	case StrategyTTL:
		return s.ttlVictimLocked(exclude)
	default:
		return nil
	}
}

// frontVictimLocked returns the first list element that isn't excluded.
func (s *Store) frontVictimLocked(exclude *cacheEntry) *cacheEntry {
	for elem := s.order.Front(); elem != nil; elem = elem.Next() {
		e := elem.Value.(*cacheEntry)
		if e != exclude {
			return e
		}
	}
	return nil
}

// lfuVictimLocked scans for the lowest access count, tie-broken by oldest
// creation time.
func (s *Store) lfuVictimLocked(exclude *cacheEntry) *cacheEntry {
	var victim *cacheEntry
	for _, e := range s.entries {
		if e == exclude {
			continue
		}
		if victim == nil ||
			e.AccessCount < victim.AccessCount ||
			(e.AccessCount == victim.AccessCount && e.CreatedAt.Before(victim.CreatedAt)) {
			victim = e
		}
	}
	return victim
}

// ttlVictimLocked prefers already-expired entries, then the soonest expiry.
// Entries without a TTL are evicted last, oldest first.
func (s *Store) ttlVictimLocked(exclude *cacheEntry) *cacheEntry {
	now := s.clock()

	var victim *cacheEntry
	for _, e := range s.entries {
		if e == exclude {
			continue
		}
		if victim == nil || ttlLess(e, victim, now) {
			victim = e
		}
	}
	return victim
}

// ttlLess reports whether a should be evicted before b under TTL order.
func ttlLess(a, b *cacheEntry, now time.Time) bool {
	aExpired, bExpired := a.expired(now), b.expired(now)
	if aExpired != bExpired {
		return aExpired
	}

	aHasTTL, bHasTTL := !a.ExpiresAt.IsZero(), !b.ExpiresAt.IsZero()
	if aHasTTL != bHasTTL {
		return aHasTTL
	}
	if aHasTTL && !a.ExpiresAt.Equal(b.ExpiresAt) {
		return a.ExpiresAt.Before(b.ExpiresAt)
	}

	return a.CreatedAt.Before(b.CreatedAt)
}
