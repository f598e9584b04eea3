// Package control implements the small table of reserved paths — /stats,
// /clear-cache, /healthz, /favicon.ico, /metrics — that a ProxyInstance serves
// directly instead of routing through the RequestPipeline. Adding an
// endpoint here never touches the pipeline's main path.
package control

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"cacheproxy/internal/cache"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler serves one reserved path.
type Handler func(w http.ResponseWriter, r *http.Request)

// Table is a lookup from reserved path to Handler.
type Table struct {
	store    *cache.Store
	handlers map[string]Handler
}

// NewTable builds the standard control table bound to store.
func NewTable(store *cache.Store) *Table {
	t := &Table{store: store, handlers: make(map[string]Handler, 4)}
	t.handlers["/stats"] = t.handleStats
	t.handlers["/clear-cache"] = t.handleClearCache
	t.handlers["/healthz"] = t.handleHealthz
	t.handlers["/favicon.ico"] = t.handleFavicon
	t.handlers["/metrics"] = promhttp.Handler().ServeHTTP
	return t
}

// Lookup returns the handler registered for path, if any.
func (t *Table) Lookup(path string) (Handler, bool) {
	h, ok := t.handlers[path]
	return h, ok
}

type urlStatsJSON struct {
	Hits   uint64 `json:"hits"`
	Misses uint64 `json:"misses"`
}

type statsJSON struct {
	Hits              int64                   `json:"hits"`
	Misses            int64                   `json:"misses"`
	CompliantMisses   int64                   `json:"compliant_misses"`
	URLHitsAndMisses  map[string]urlStatsJSON `json:"url_hits_and_misses"`
}

func (t *Table) handleStats(w http.ResponseWriter, r *http.Request) {
	perURL := t.store.PerURLStats()
	compliantMisses := t.store.CompliantMisses()

	if len(perURL) == 0 && compliantMisses == 0 {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "No cache activity yet.\n")
		return
	}

	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		body := statsJSON{
			Hits:             t.store.Hits(),
			Misses:           t.store.Misses(),
			CompliantMisses:  compliantMisses,
			URLHitsAndMisses: make(map[string]urlStatsJSON, len(perURL)),
		}
		for url, st := range perURL {
			body.URLHitsAndMisses[url] = urlStatsJSON{Hits: st.Hits, Misses: st.Misses}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(body)
		return
	}

	urls := make([]string, 0, len(perURL))
	for url := range perURL {
		urls = append(urls, url)
	}
	sort.Strings(urls)

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "Hits: %d\n", t.store.Hits())
	fmt.Fprintf(w, "Misses: %d\n", t.store.Misses())
	fmt.Fprintf(w, "Compliant Misses: %d\n", compliantMisses)
	fmt.Fprint(w, "Hits and misses (non-compliant) broken down by url:\n")
	for _, url := range urls {
		st := perURL[url]
		fmt.Fprintf(w, "%s: Hits: %d, Misses: %d\n", url, st.Hits, st.Misses)
	}
}

func (t *Table) handleClearCache(w http.ResponseWriter, r *http.Request) {
	t.store.Clear()
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "Cache cleared.\n")
}

func (t *Table) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

func (t *Table) handleFavicon(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
