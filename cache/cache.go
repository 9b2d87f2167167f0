package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"modelrules/observability"
)

// revalidateTimeout bounds background refreshes so a hung loader cannot pin a
// goroutine forever.
const revalidateTimeout = 10 * time.Second

// TaskRunner schedules work that outlives the request that spawned it.
type TaskRunner interface {
	Go(fn func())
}

// GoRunner runs tasks on goroutines and tracks them so shutdown can wait for
// in-flight refreshes.
type GoRunner struct {
	wg sync.WaitGroup
}

func (r *GoRunner) Go(fn func()) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		fn()
	}()
}

// Wait blocks until all scheduled tasks have finished.
func (r *GoRunner) Wait() {
	r.wg.Wait()
}

// SyncRunner runs tasks inline. Used in tests to make background refreshes
// deterministic.
type SyncRunner struct{}

func (SyncRunner) Go(fn func()) { fn() }

// Config holds the freshness and staleness windows for a namespace.
type Config struct {
	// Fresh is how long a value is served without revalidation.
	Fresh time.Duration
	// Stale is how long past freshness a value may still be served while a
	// background refresh runs. Entries older than Fresh+Stale are misses.
	Stale time.Duration
}

// Loader fetches the authoritative value for a key on a miss or refresh.
type Loader[T any] func(ctx context.Context) (T, error)

// Namespace is a typed view over an ordered list of cache tiers, fastest
// first. Values round-trip through JSON so all tiers share one format.
type Namespace[T any] struct {
	name   string
	stores []Store
	cfg    Config
	tasks  TaskRunner
}

// NewNamespace creates a namespace over the given tiers.
func NewNamespace[T any](name string, stores []Store, cfg Config, tasks TaskRunner) *Namespace[T] {
	return &Namespace[T]{
		name:   name,
		stores: stores,
		cfg:    cfg,
		tasks:  tasks,
	}
}

// Get returns the cached value for key, loading it on a miss. A fresh hit is
// returned as-is. A stale hit is returned immediately and a background
// refresh is scheduled. Only a loader failure on a miss surfaces an error;
// tier failures are logged and the next tier is consulted.
func (n *Namespace[T]) Get(ctx context.Context, key string, loader Loader[T]) (T, error) {
	var zero T
	full := cacheKey(n.name, key)
	metrics := observability.GetMetrics()

	entry, tier := n.lookup(ctx, full)
	if entry != nil {
		var value T
		if err := json.Unmarshal(entry.Value, &value); err != nil {
			observability.WithNamespace(n.name).Warn("discarding undecodable cache entry", "key", key, "error", err)
		} else {
			now := time.Now()
			if entry.Fresh(now) {
				metrics.RecordCacheLookup(n.name, "fresh")
				n.backfill(ctx, full, entry, tier)
				return value, nil
			}

			// Backfill before scheduling the refresh: if the refresh
			// loader fails, the faster tiers still hold the stale entry.
			metrics.RecordCacheLookup(n.name, "stale")
			n.backfill(ctx, full, entry, tier)
			n.tasks.Go(func() {
				n.revalidate(full, loader)
			})
			return value, nil
		}
	}

	metrics.RecordCacheLookup(n.name, "miss")

	value, err := loader(ctx)
	if err != nil {
		return zero, err
	}
	n.write(ctx, full, value)
	return value, nil
}

// Set stores a value in every tier with fresh windows.
func (n *Namespace[T]) Set(ctx context.Context, key string, value T) {
	n.write(ctx, cacheKey(n.name, key), value)
}

// Remove evicts a key from every tier. Tier failures are logged and the
// remaining tiers are still cleared.
func (n *Namespace[T]) Remove(ctx context.Context, key string) {
	full := cacheKey(n.name, key)
	metrics := observability.GetMetrics()
	for _, store := range n.stores {
		if err := store.Remove(ctx, full); err != nil {
			metrics.RecordCacheTierError(store.Name(), "remove")
			observability.WithNamespace(n.name).Warn("cache tier remove failed", "tier", store.Name(), "key", key, "error", err)
		}
	}
}

// lookup scans the tiers in order and returns the first usable entry along
// with the index of the tier that served it.
func (n *Namespace[T]) lookup(ctx context.Context, full string) (*Entry, int) {
	metrics := observability.GetMetrics()
	for i, store := range n.stores {
		entry, err := store.Get(ctx, full)
		if err != nil {
			metrics.RecordCacheTierError(store.Name(), "get")
			observability.WithNamespace(n.name).Warn("cache tier get failed", "tier", store.Name(), "error", err)
			continue
		}
		if entry != nil {
			return entry, i
		}
	}
	return nil, -1
}

// backfill copies an entry into the tiers faster than the one that served it.
func (n *Namespace[T]) backfill(ctx context.Context, full string, entry *Entry, tier int) {
	metrics := observability.GetMetrics()
	for i := 0; i < tier; i++ {
		store := n.stores[i]
		if err := store.Set(ctx, full, entry); err != nil {
			metrics.RecordCacheTierError(store.Name(), "set")
			observability.WithNamespace(n.name).Warn("cache tier backfill failed", "tier", store.Name(), "error", err)
		}
	}
}

// revalidate refreshes a stale entry in the background. A loader failure
// leaves the stale entry in place for the next request to retry.
func (n *Namespace[T]) revalidate(full string, loader Loader[T]) {
	ctx, cancel := context.WithTimeout(context.Background(), revalidateTimeout)
	defer cancel()

	value, err := loader(ctx)
	if err != nil {
		observability.WithNamespace(n.name).Warn("background revalidation failed", "error", err)
		return
	}
	n.write(ctx, full, value)
}

// write serializes the value and stores it in every tier. Tier failures are
// logged and the remaining tiers are still written.
func (n *Namespace[T]) write(ctx context.Context, full string, value T) {
	data, err := json.Marshal(value)
	if err != nil {
		observability.WithNamespace(n.name).Error("cache value not serializable", "error", err)
		return
	}

	now := time.Now()
	entry := &Entry{
		Value:      data,
		FreshUntil: now.Add(n.cfg.Fresh),
		StaleUntil: now.Add(n.cfg.Fresh + n.cfg.Stale),
	}

	metrics := observability.GetMetrics()
	for _, store := range n.stores {
		if err := store.Set(ctx, full, entry); err != nil {
			metrics.RecordCacheTierError(store.Name(), "set")
			observability.WithNamespace(n.name).Warn("cache tier set failed", "tier", store.Name(), "error", err)
		}
	}
}
