package cache

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func withClock(t *testing.T, seconds int64) {
	t.Helper()
	prev := nowSecondsFunc
	nowSecondsFunc = func() int64 { return seconds }
	t.Cleanup(func() { nowSecondsFunc = prev })
}

func resp(status int, body string, expiresAt int64) *Response {
	return &Response{Status: status, Header: http.Header{}, Body: []byte(body), ExpiresAt: expiresAt}
}

// S1 — LRU eviction order.
func TestStore_LRUEvictionOrder(t *testing.T) {
	withClock(t, 1000)
	s := NewStore(2)

	s.Put("/a", resp(200, "A", 1010))
	s.Put("/b", resp(200, "B", 1010))
	if _, ok := s.Get("/a"); !ok {
		t.Fatalf("expected /a present")
	}
	s.Put("/c", resp(200, "C", 1010))

	if !s.Has("/a") {
		t.Errorf("expected /a to survive (most recently used)")
	}
	if s.Has("/b") {
		t.Errorf("expected /b evicted")
	}
	if !s.Has("/c") {
		t.Errorf("expected /c present")
	}
	if s.Len() > 2 {
		t.Errorf("capacity bound violated: len=%d", s.Len())
	}
}

// S2 — TTL sweeper.
func TestStore_CheckExpiredHead(t *testing.T) {
	withClock(t, 1000)
	s := NewStore(10)
	s.Put("/x", resp(200, "x", 1005))

	withClock(t, 1006)
	if !s.CheckExpiredHead() {
		t.Fatalf("expected expired entry to be drained")
	}
	if s.Has("/x") {
		t.Errorf("expected /x removed after expiry")
	}
	if s.CheckExpiredHead() {
		t.Errorf("expected no more expired entries")
	}
}

// Heap tombstone tolerance: repeated Put() refreshes of the same key must
// never leave CheckExpiredHead stuck returning true forever nor panic on a
// stale heap entry.
func TestStore_HeapTombstoneTolerance(t *testing.T) {
	withClock(t, 1000)
	s := NewStore(10)

	for i := 0; i < 5; i++ {
		s.Put("/k", resp(200, "v", int64(1001+i)))
	}

	withClock(t, 1010)
	drained := 0
	for s.CheckExpiredHead() {
		drained++
		if drained > 10 {
			t.Fatalf("CheckExpiredHead did not converge")
		}
	}
	if s.Has("/k") {
		t.Errorf("expected /k expired by now=1010")
	}
}

func TestStore_GetPromotesAndDoesNotTouchCounters(t *testing.T) {
	withClock(t, 1000)
	s := NewStore(10)
	s.Put("/a", resp(200, "A", 2000))

	if _, ok := s.Get("/a"); !ok {
		t.Fatalf("expected hit")
	}
	if s.Hits() != 0 || s.Misses() != 0 {
		t.Errorf("Get must not touch counters, got hits=%d misses=%d", s.Hits(), s.Misses())
	}
}

func TestStore_SnapshotIsolation(t *testing.T) {
	withClock(t, 1000)
	s := NewStore(10)
	s.Put("/a", resp(200, "A", 2000))

	got, _ := s.Get("/a")
	got.Header.Set("X-Cache", "HIT")
	got.Body[0] = 'Z'

	again, _ := s.Get("/a")
	if again.Header.Get("X-Cache") != "" {
		t.Errorf("mutating a returned snapshot's header leaked into the store")
	}
}

func TestStore_ClearPreservesAggregatesWipesPerURL(t *testing.T) {
	withClock(t, 1000)
	s := NewStore(10)
	s.Put("/a", resp(200, "A", 2000))
	s.RecordHit("/a")
	s.RecordMiss("/b")
	s.RecordCompliantMiss()

	s.Clear()

	if s.Has("/a") {
		t.Errorf("expected /a cleared")
	}
	if s.Hits() != 1 || s.Misses() != 1 || s.CompliantMisses() != 1 {
		t.Errorf("expected aggregate counters preserved across Clear")
	}
	if stats := s.PerURLStats(); len(stats) != 0 {
		t.Errorf("expected per-URL stats wiped across Clear, got %v", stats)
	}
}

func TestStore_RecordHitMissAccounting(t *testing.T) {
	s := NewStore(10)
	s.RecordHit("/a")
	s.RecordHit("/a")
	s.RecordMiss("/b")
	s.RecordCompliantMiss()

	stats := s.PerURLStats()
	if stats["/a"].Hits != 2 {
		t.Errorf("expected 2 hits for /a, got %d", stats["/a"].Hits)
	}
	if stats["/b"].Misses != 1 {
		t.Errorf("expected 1 miss for /b, got %d", stats["/b"].Misses)
	}
	if s.Hits() != 2 || s.Misses() != 1 || s.CompliantMisses() != 1 {
		t.Errorf("aggregate mismatch: hits=%d misses=%d compliant=%d", s.Hits(), s.Misses(), s.CompliantMisses())
	}
}

// S6 — Vary partitioning (key derivation covered in key_test.go; this
// confirms the store treats distinct keys as distinct entries).
func TestStore_VaryPartitioning(t *testing.T) {
	r1 := httptest.NewRequest(http.MethodGet, "/v", nil)
	r1.Header.Set("Vary", "Accept-Language")
	r1.Header.Set("Accept-Language", "en")

	r2 := httptest.NewRequest(http.MethodGet, "/v", nil)
	r2.Header.Set("Vary", "Accept-Language")
	r2.Header.Set("Accept-Language", "fr")

	kEN := Key(r1)
	kFR := Key(r2)
	if kEN == kFR {
		t.Fatalf("expected distinct keys for distinct Vary values, got %q for both", kEN)
	}

	s := NewStore(10)
	s.Put(kEN, resp(200, "en-body", 2000))
	if _, ok := s.Get(kFR); ok {
		t.Errorf("expected miss for fr-keyed lookup")
	}
	if _, ok := s.Get(kEN); !ok {
		t.Errorf("expected hit for en-keyed lookup")
	}
}
