package proxyinstance

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"cacheproxy/internal/config"
)

func TestInstance_NonGETIsMethodNotAllowedWithAllowHeader(t *testing.T) {
	i := New("test", config.ProxyConfig{Port: 0, OriginURL: "origin.example", CacheSize: 4, TTL: 5}, "rr")

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/x", nil)
	i.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
	if rec.Header().Get("Allow") != "GET" {
		t.Fatalf("expected Allow: GET, got %q", rec.Header().Get("Allow"))
	}
}

func TestInstance_GETReachesPipeline(t *testing.T) {
	i := New("test", config.ProxyConfig{Port: 0, OriginURL: "", CacheSize: 4, TTL: 5}, "rr")

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	i.ServeHTTP(rec, req)

	if rec.Body.String() != "OK" {
		t.Fatalf("expected control endpoint to answer through the pipeline, got %q", rec.Body.String())
	}
}

func TestInstance_LenIsZeroAtConstruction(t *testing.T) {
	i := New("test", config.ProxyConfig{Port: 0, OriginURL: "origin.example", CacheSize: 4, TTL: 5}, "rr")
	if i.Len() != 0 {
		t.Fatalf("expected empty cache at construction, got %d", i.Len())
	}
}
