package control

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"cacheproxy/internal/cache"
)

func TestTable_StatsEmptyReportsNoActivity(t *testing.T) {
	store := cache.NewStore(4)
	table := NewTable(store)

	h, ok := table.Lookup("/stats")
	if !ok {
		t.Fatalf("expected /stats to be registered")
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	h(rec, req)

	if rec.Body.String() != "No cache activity yet.\n" {
		t.Fatalf("unexpected body: %q", rec.Body.String())
	}
}

func TestTable_StatsJSONReflectsCounters(t *testing.T) {
	store := cache.NewStore(4)
	store.RecordHit("/a")
	store.RecordMiss("/a")
	store.RecordCompliantMiss()
	table := NewTable(store)

	h, _ := table.Lookup("/stats")
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	req.Header.Set("Accept", "application/json")
	h(rec, req)

	var body statsJSON
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body.Hits != 1 || body.Misses != 1 || body.CompliantMisses != 1 {
		t.Fatalf("unexpected counters: %+v", body)
	}
	if body.URLHitsAndMisses["/a"].Hits != 1 || body.URLHitsAndMisses["/a"].Misses != 1 {
		t.Fatalf("unexpected per-url stats: %+v", body.URLHitsAndMisses)
	}
}

func TestTable_StatsPlainTextBreakdown(t *testing.T) {
	store := cache.NewStore(4)
	store.RecordHit("/a")
	table := NewTable(store)

	h, _ := table.Lookup("/stats")
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	h(rec, req)

	body := rec.Body.String()
	if !strings.Contains(body, "Hits: 1") || !strings.Contains(body, "/a: Hits: 1, Misses: 0") {
		t.Fatalf("unexpected plain-text body: %q", body)
	}
}

func TestTable_ClearCacheInvokesClear(t *testing.T) {
	store := cache.NewStore(4)
	store.Put("/a", &cache.Response{Status: 200, Header: http.Header{}, Body: []byte("x"), ExpiresAt: 9999999999})
	table := NewTable(store)

	h, _ := table.Lookup("/clear-cache")
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/clear-cache", nil)
	h(rec, req)

	if rec.Body.String() != "Cache cleared.\n" {
		t.Fatalf("unexpected body: %q", rec.Body.String())
	}
	if store.Has("/a") {
		t.Fatalf("expected /a to be cleared")
	}
}

func TestTable_HealthzReturnsOK(t *testing.T) {
	table := NewTable(cache.NewStore(4))
	h, _ := table.Lookup("/healthz")
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Body.String() != "OK" {
		t.Fatalf("unexpected body: %q", rec.Body.String())
	}
}

func TestTable_FaviconReturnsEmpty200(t *testing.T) {
	table := NewTable(cache.NewStore(4))
	h, _ := table.Lookup("/favicon.ico")
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/favicon.ico", nil))
	if rec.Code != http.StatusOK || rec.Body.Len() != 0 {
		t.Fatalf("expected empty 200, got %d %q", rec.Code, rec.Body.String())
	}
}

func TestTable_MetricsIsRegistered(t *testing.T) {
	table := NewTable(cache.NewStore(4))
	h, ok := table.Lookup("/metrics")
	if !ok {
		t.Fatalf("expected /metrics to be registered")
	}
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from /metrics, got %d", rec.Code)
	}
}

func TestTable_LookupUnknownPath(t *testing.T) {
	table := NewTable(cache.NewStore(4))
	if _, ok := table.Lookup("/not-a-control-path"); ok {
		t.Fatalf("expected lookup to fail for unregistered path")
	}
}
