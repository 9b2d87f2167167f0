package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryStore is an in-process cache tier backed by go-cache. Entries are
// evicted at their staleness deadline; freshness is evaluated by the
// namespace, not the store.
type MemoryStore struct {
	inner *gocache.Cache
}

// NewMemoryStore creates a memory tier with the given janitor interval.
func NewMemoryStore(cleanupInterval time.Duration) *MemoryStore {
	return &MemoryStore{
		inner: gocache.New(gocache.NoExpiration, cleanupInterval),
	}
}

func (s *MemoryStore) Name() string { return "memory" }

func (s *MemoryStore) Get(_ context.Context, key string) (*Entry, error) {
	v, found := s.inner.Get(key)
	if !found {
		return nil, nil
	}
	entry, ok := v.(*Entry)
	if !ok {
		return nil, nil
	}
	if !entry.Usable(time.Now()) {
		s.inner.Delete(key)
		return nil, nil
	}
	return entry, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, entry *Entry) error {
	ttl := time.Until(entry.StaleUntil)
	if ttl <= 0 {
		// go-cache treats a non-positive TTL as no expiration, so an
		// already-stale entry must not be written at all.
		return nil
	}
	s.inner.Set(key, entry, ttl)
	return nil
}

func (s *MemoryStore) Remove(_ context.Context, key string) error {
	s.inner.Delete(key)
	return nil
}
