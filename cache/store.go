// Package cache implements a tiered stale-while-revalidate cache. A Namespace
// fronts an ordered list of stores, fastest first, and serves values with
// independent freshness and staleness windows. Stale values are returned
// immediately while a background refresh repopulates the tiers.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// cacheBuster is versioned into every key so a format change invalidates
// everything at once.
const cacheBuster = "v1"

// Entry is the stored envelope: the serialized value plus its freshness and
// staleness deadlines.
type Entry struct {
	Value      json.RawMessage `json:"value"`
	FreshUntil time.Time       `json:"freshUntil"`
	StaleUntil time.Time       `json:"staleUntil"`
}

// Fresh reports whether the entry can be served without revalidation.
func (e *Entry) Fresh(now time.Time) bool {
	return now.Before(e.FreshUntil)
}

// Usable reports whether the entry can be served at all.
func (e *Entry) Usable(now time.Time) bool {
	return now.Before(e.StaleUntil)
}

// Store is a single cache tier. Get returns (nil, nil) on a miss; expired
// entries count as misses. Implementations must be safe for concurrent use.
type Store interface {
	Name() string
	Get(ctx context.Context, key string) (*Entry, error)
	Set(ctx context.Context, key string, entry *Entry) error
	Remove(ctx context.Context, key string) error
}

// cacheKey builds the fully qualified key for a namespace entry.
func cacheKey(namespace, key string) string {
	return fmt.Sprintf("%s:%s:%s", cacheBuster, namespace, key)
}
