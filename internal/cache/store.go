// Package cache implements the bounded, thread-safe response cache that each
// proxy instance owns one of: combined LRU + TTL eviction over an in-memory map,
// plus per-key and aggregate hit/miss statistics.
package cache

import (
	"container/heap"
	"container/list"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"cacheproxy/internal/metrics"
)

// Response is the record stored against a cache key.
type Response struct {
	Status    int
	Header    http.Header
	Body      []byte
	ExpiresAt int64 // whole seconds since the epoch
}

// clone returns a copy of r whose Header can be mutated by the caller
// (e.g. to append X-Cache) without reaching back into the stored entry.
func (r *Response) clone() *Response {
	return &Response{
		Status:    r.Status,
		Header:    r.Header.Clone(),
		Body:      r.Body,
		ExpiresAt: r.ExpiresAt,
	}
}

// URLStats tracks non-compliant hit/miss counts for a single cache key.
type URLStats struct {
	Hits   uint64
	Misses uint64
}

type entry struct {
	key  string
	resp *Response
}

// heapItem is a tombstone-tolerant (key, expiresAt) pair. The heap is never
// the owner of a Response — only CacheStore.items is — so an item that no
// longer matches the live entry for its key is simply discarded on pop.
type heapItem struct {
	key       string
	expiresAt int64
}

type expiryHeap []heapItem

func (h expiryHeap) Len() int            { return len(h) }
func (h expiryHeap) Less(i, j int) bool  { return h[i].expiresAt < h[j].expiresAt }
func (h expiryHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *expiryHeap) Push(x interface{}) { *h = append(*h, x.(heapItem)) }
func (h *expiryHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Store is the bounded LRU+TTL cache described by the core specification.
// A single sync.RWMutex guards the map, list and heap; record_hit/record_miss
// also take the writer side because they mutate the per-URL stats map, while
// the aggregate counters are plain atomics so they can be read lock-free.
type Store struct {
	mu       sync.RWMutex
	items    map[string]*list.Element // key -> element holding *entry
	order    *list.List               // front = most recently used
	expiry   expiryHeap
	capacity int
	perURL   map[string]*URLStats

	hits            atomic.Int64
	misses          atomic.Int64
	compliantMisses atomic.Int64
}

// NewStore creates a Store bounded to capacity entries. Config validation
// rejects a zero capacity; any non-positive capacity that reaches here is
// clamped to 1 so the store never silently becomes unbounded.
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = 1
	}
	return &Store{
		items:    make(map[string]*list.Element),
		order:    list.New(),
		capacity: capacity,
		perURL:   make(map[string]*URLStats),
	}
}

// Get returns the stored response for key, if present, and promotes key to
// the LRU front. It does not check expiry — the caller decides what to do
// with a stale entry — and it does not touch hit/miss counters.
func (s *Store) Get(key string) (*Response, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.items[key]
	if !ok {
		return nil, false
	}
	s.order.MoveToFront(el)
	return el.Value.(*entry).resp.clone(), true
}

// Put inserts or replaces the entry for key. On replace, the value is
// updated and promoted to the front. On a new insert that would exceed
// capacity, the LRU-tail key is evicted first. Either way, (key,
// resp.ExpiresAt) is pushed onto the expiry heap.
func (s *Store) Put(key string, resp *Response) {
	stored := resp.clone()

	s.mu.Lock()
	defer s.mu.Unlock()

	if el, ok := s.items[key]; ok {
		el.Value.(*entry).resp = stored
		s.order.MoveToFront(el)
	} else {
		if s.order.Len() >= s.capacity {
			s.evictOldestLocked()
		}
		el := s.order.PushFront(&entry{key: key, resp: stored})
		s.items[key] = el
	}

	heap.Push(&s.expiry, heapItem{key: key, expiresAt: stored.ExpiresAt})
}

func (s *Store) evictOldestLocked() {
	back := s.order.Back()
	if back == nil {
		return
	}
	s.order.Remove(back)
	delete(s.items, back.Value.(*entry).key)
	metrics.IncCacheEviction("lru")
}

// Has reports whether key is currently present, without any LRU side effect.
func (s *Store) Has(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.items[key]
	return ok
}

// CheckExpiredHead inspects the heap root. A tombstone root (key absent, or
// its expiresAt no longer matching the live entry) is popped and the check
// retried. A live root in the future returns false without mutation. A live
// root at or past expiry is removed from the map, list and heap, and true is
// returned. ExpirySweeper calls this in a loop until it returns false.
func (s *Store) CheckExpiredHead() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := nowSeconds()
	for s.expiry.Len() > 0 {
		top := s.expiry[0]
		el, ok := s.items[top.key]
		if !ok || el.Value.(*entry).resp.ExpiresAt != top.expiresAt {
			heap.Pop(&s.expiry)
			continue
		}
		if now < top.expiresAt {
			return false
		}
		heap.Pop(&s.expiry)
		s.order.Remove(el)
		delete(s.items, top.key)
		metrics.IncCacheEviction("ttl")
		return true
	}
	return false
}

// Clear empties the map, list, heap and per-URL stats. Aggregate counters
// are preserved (see SPEC_FULL.md §4.1).
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = make(map[string]*list.Element)
	s.order = list.New()
	s.expiry = nil
	s.perURL = make(map[string]*URLStats)
}

// RecordHit increments the aggregate hit counter and the per-key hit
// counter, creating the per-key record on first mention.
func (s *Store) RecordHit(key string) {
	s.mu.Lock()
	s.urlStatsLocked(key).Hits++
	s.mu.Unlock()
	s.hits.Add(1)
}

// RecordMiss increments the aggregate miss counter and the per-key miss
// counter, creating the per-key record on first mention.
func (s *Store) RecordMiss(key string) {
	s.mu.Lock()
	s.urlStatsLocked(key).Misses++
	s.mu.Unlock()
	s.misses.Add(1)
}

// RecordCompliantMiss increments only the compliant-miss aggregate, used
// when the upstream forbade caching so the miss should not count against
// per-URL cache effectiveness.
func (s *Store) RecordCompliantMiss() {
	s.compliantMisses.Add(1)
}

func (s *Store) urlStatsLocked(key string) *URLStats {
	st, ok := s.perURL[key]
	if !ok {
		st = &URLStats{}
		s.perURL[key] = st
	}
	return st
}

// Hits returns the aggregate hit count.
func (s *Store) Hits() int64 { return s.hits.Load() }

// Misses returns the aggregate (non-compliant) miss count.
func (s *Store) Misses() int64 { return s.misses.Load() }

// CompliantMisses returns the aggregate compliant-miss count.
func (s *Store) CompliantMisses() int64 { return s.compliantMisses.Load() }

// PerURLStats returns a snapshot copy of the per-key hit/miss table.
func (s *Store) PerURLStats() map[string]URLStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]URLStats, len(s.perURL))
	for k, v := range s.perURL {
		out[k] = *v
	}
	return out
}

// Len returns the current number of live entries, mostly for tests and the
// cache_entries gauge.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.order.Len()
}

// nowSeconds is the store's clock; overridden in tests via nowSecondsFunc.
func nowSeconds() int64 {
	return nowSecondsFunc()
}

var nowSecondsFunc = func() int64 { return time.Now().Unix() }
