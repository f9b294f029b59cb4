// Package cache provides the bounded LRU caches owned by the session
// manager: history-by-hashX, tx-hashes-by-height, and the merkle
// accelerator all share the same "value or saved error" shape (spec
// design note §9 — "LRU caches with saved errors").
package cache

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCapacity is the ≈1000-entry bound spec.md §3 gives for each
// of the manager's caches.
const DefaultCapacity = 1000

// Result holds either a cached value or a sticky error. A cached error
// (e.g. "history too large") is returned to every caller until the
// entry is evicted or explicitly invalidated — it counts against
// capacity exactly like a value (§4.5).
type Result[T any] struct {
	Value T
	Err   error
}

// Ok wraps a successful value.
func Ok[T any](v T) Result[T] { return Result[T]{Value: v} }

// Failed wraps a sticky error.
func Failed[T any](err error) Result[T] { return Result[T]{Err: err} }

// LRU is a bounded, thread-safe cache of key K to Result[V].
type LRU[K comparable, V any] struct {
	inner *lru.Cache[K, Result[V]]
}

// New constructs an LRU with the given capacity.
func New[K comparable, V any](capacity int) *LRU[K, V] {
	c, err := lru.New[K, Result[V]](capacity)
	if err != nil {
		// Only returns an error for capacity <= 0, which is a
		// programmer error in this codebase's call sites.
		panic(err)
	}
	return &LRU[K, V]{inner: c}
}

// Get returns the cached result and whether it was present.
func (l *LRU[K, V]) Get(key K) (Result[V], bool) {
	return l.inner.Get(key)
}

// Put installs a result for key, evicting the least-recently-used
// entry if the cache is at capacity.
func (l *LRU[K, V]) Put(key K, result Result[V]) {
	l.inner.Add(key, result)
}

// Invalidate removes a single key, if present.
func (l *LRU[K, V]) Invalidate(key K) {
	l.inner.Remove(key)
}

// Clear empties the cache entirely (used on reorg for tx_hashes_cache
// and merkle_cache — history_cache is deliberately never cleared here,
// see §4.5 and DESIGN.md Open Question decisions).
func (l *LRU[K, V]) Clear() {
	l.inner.Purge()
}

// Len reports the number of entries currently cached.
func (l *LRU[K, V]) Len() int {
	return l.inner.Len()
}
