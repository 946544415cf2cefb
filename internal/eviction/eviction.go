// Package eviction implements the pluggable eviction capability the engine
// couples against: recordAccess, recordPut, recordRemove, evictIfNeeded and
// capacity. The default and only shipped policy is LRU.
package eviction

import (
	"sync"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// Policy is the narrow interface the key-value engine couples against. It is
// deliberately small: a new eviction strategy (LFU, random, ...) only needs
// to implement this, never to subclass anything.
type Policy interface {
	// RecordAccess marks key as most-recently-used. Called on cache hits.
	RecordAccess(key string)
	// RecordPut marks key as most-recently-used, inserting tracking state
	// for it if it is new.
	RecordPut(key string)
	// RecordRemove drops all tracking state for key.
	RecordRemove(key string)
	// EvictIfNeeded is given the caller's current live-entry count. If that
	// count does not exceed Capacity, it returns ("", false). Otherwise it
	// returns the least-recently-used tracked key, removing it from
	// internal state, or ("", false) if nothing is tracked.
	EvictIfNeeded(currentSize int) (string, bool)
	// Capacity returns the configured capacity (clamped to >= 1).
	Capacity() int
}

// LRU is the default Policy. It tracks recency with
// hashicorp/golang-lru/v2's simplelru.LRU, which maintains an intrusive
// doubly-linked list plus a hash index for O(1) touch and O(1) pop-oldest —
// the same shape as container/list-backed LRUs, without hand-rolling the
// list bookkeeping.
//
// simplelru.LRU is itself bounded and will silently evict its own oldest
// entry once RecordPut grows it past capacity; LRU captures that eviction
// via the library's callback and surfaces it through the next
// EvictIfNeeded call, so the caller (the engine) still owns the moment at
// which the corresponding map entry and DCL record are produced.
type LRU struct {
	mu       sync.Mutex
	capacity int
	inner    *simplelru.LRU[string, struct{}]
	pending  []string
}

// New constructs an LRU policy. capacity is clamped to at least 1.
func New(capacity int) *LRU {
	if capacity < 1 {
		capacity = 1
	}
	l := &LRU{capacity: capacity}
	inner, err := simplelru.NewLRU[string, struct{}](capacity, l.onEvict)
	if err != nil {
		// simplelru.NewLRU only errors on size <= 0, which is excluded above.
		panic(err)
	}
	l.inner = inner
	return l
}

func (l *LRU) onEvict(key string, _ struct{}) {
	l.pending = append(l.pending, key)
}

func (l *LRU) RecordAccess(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.inner.Get(key)
}

func (l *LRU) RecordPut(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.inner.Add(key, struct{}{})
}

func (l *LRU) RecordRemove(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.inner.Remove(key)
	l.dropPending(key)
}

// dropPending removes key from the pending-eviction queue, if present. An
// explicit RecordRemove (DEL, RENAME overwrite, FLUSHALL) pre-empts an
// eviction the library already queued for the same key.
func (l *LRU) dropPending(key string) {
	for i, k := range l.pending {
		if k == key {
			l.pending = append(l.pending[:i], l.pending[i+1:]...)
			return
		}
	}
}

func (l *LRU) EvictIfNeeded(currentSize int) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if currentSize <= l.capacity {
		return "", false
	}

	for len(l.pending) > 0 {
		k := l.pending[0]
		l.pending = l.pending[1:]
		// The library has already evicted this key from itself; RecordRemove
		// drops removed keys from the queue, so the head is a key the
		// caller has not removed.
		return k, true
	}

	k, _, ok := l.inner.RemoveOldest()
	if ok {
		// RemoveOldest fires onEvict, which queues k; it is returned here
		// directly, so it must not stay pending as well.
		l.dropPending(k)
	}
	return k, ok
}

func (l *LRU) Capacity() int {
	return l.capacity
}
