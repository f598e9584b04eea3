// Package pipeline implements the per-request state machine described by
// the core specification: key derivation, control-endpoint short-circuit,
// cache consultation (fresh / stale-revalidate / miss), origin fetch with a
// size cap, hop-by-hop header filtering, and the Cache-Control-driven
// admission decision.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"cacheproxy/internal/applog"
	"cacheproxy/internal/cache"
	"cacheproxy/internal/control"
	"cacheproxy/internal/metrics"
	"cacheproxy/internal/originpool"
)

const maxResponseBytes = 2 << 20 // 2 MiB

// Config bundles the per-proxy knobs a Pipeline needs beyond its
// collaborators.
type Config struct {
	DefaultTTL int // seconds, used when Cache-Control names no explicit TTL
}

// Pipeline is the RequestPipeline: one per ProxyInstance, bound to that
// instance's cache, origin pool, control table and admission limiter.
type Pipeline struct {
	store   *cache.Store
	pool    *originpool.Pool
	control *control.Table
	limiter *Limiter
	cfg     Config
}

// New builds a Pipeline from its collaborators.
func New(store *cache.Store, pool *originpool.Pool, controlTable *control.Table, limiter *Limiter, cfg Config) *Pipeline {
	return &Pipeline{store: store, pool: pool, control: controlTable, limiter: limiter, cfg: cfg}
}

// nowSeconds is the pipeline's clock; overridden in tests.
var nowSeconds = func() int64 { return time.Now().Unix() }

// ServeHTTP implements the state machine. Only GET requests reach here —
// ProxyInstance enforces the method allowlist before routing to Pipeline.
func (p *Pipeline) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ensureRequestID(r)
	start := time.Now()

	if h, ok := p.control.Lookup(r.URL.Path); ok {
		h(w, r)
		return
	}

	applog.LogRequest(r)

	key := cache.Key(r)

	if cached, ok := p.store.Get(key); ok {
		now := nowSeconds()
		if cached.ExpiresAt >= now {
			p.serveFresh(w, r, key, cached, start)
			return
		}
		p.revalidate(w, r, key, cached, start)
		return
	}

	p.fetchMiss(w, r, key, start)
}

func (p *Pipeline) serveFresh(w http.ResponseWriter, r *http.Request, key string, cached *cache.Response, start time.Time) {
	copyHeader(w.Header(), cached.Header)
	w.Header().Set("X-Cache", string(applog.OutcomeHit))
	w.WriteHeader(cached.Status)
	n, _ := w.Write(cached.Body)

	p.store.RecordHit(key)
	metrics.IncCacheHit()
	metrics.ObserveProxyResponse(r.Method, cached.Status, string(applog.OutcomeHit), time.Since(start))
	applog.LogOutcome(r, cached.Status, applog.OutcomeHit, n, time.Since(start))
}

func (p *Pipeline) revalidate(w http.ResponseWriter, r *http.Request, key string, cached *cache.Response, start time.Time) {
	origin, release := p.pool.Select(r.URL.Path)
	defer release()
	client, err := p.pool.ClientFor(origin)
	if err != nil {
		p.writeProxyError(w, r, start, http.StatusBadGateway, "unknown origin", err)
		return
	}

	req, err := p.buildOriginRequest(r.Context(), origin, r.URL)
	if err != nil {
		p.writeProxyError(w, r, start, http.StatusBadGateway, "conditional request failed", err)
		return
	}
	if etag := cached.Header.Get("ETag"); etag != "" {
		req.Header.Set("If-None-Match", etag)
	}
	if lastMod := cached.Header.Get("Last-Modified"); lastMod != "" {
		req.Header.Set("If-Modified-Since", lastMod)
	}

	resp, err := p.doLimited(r.Context(), client, req)
	if err != nil {
		p.writeProxyError(w, r, start, http.StatusBadGateway, "conditional request failed", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		refreshed := &cache.Response{
			Status:    cached.Status,
			Header:    cached.Header,
			Body:      cached.Body,
			ExpiresAt: nowSeconds() + int64(p.cfg.DefaultTTL),
		}
		p.store.Put(key, refreshed)

		copyHeader(w.Header(), cached.Header)
		w.Header().Set("X-Cache", string(applog.OutcomeHitRevalidated))
		w.WriteHeader(cached.Status)
		n, _ := w.Write(cached.Body)

		p.store.RecordHit(key)
		metrics.IncCacheHit()
		metrics.ObserveProxyResponse(r.Method, cached.Status, string(applog.OutcomeHitRevalidated), time.Since(start))
		applog.LogOutcome(r, cached.Status, applog.OutcomeHitRevalidated, n, time.Since(start))
		return
	}

	// Any other status: treat the revalidation response as a fresh origin
	// fetch and fall through to the normal admission path.
	p.admitAndRespond(w, r, key, origin, resp, start)
}

func (p *Pipeline) fetchMiss(w http.ResponseWriter, r *http.Request, key string, start time.Time) {
	origin, release := p.pool.Select(r.URL.Path)
	defer release()
	client, err := p.pool.ClientFor(origin)
	if err != nil {
		p.writeProxyError(w, r, start, http.StatusBadGateway, "unknown origin", err)
		return
	}

	req, err := p.buildOriginRequest(r.Context(), origin, r.URL)
	if err != nil {
		p.writeProxyError(w, r, start, http.StatusBadGateway, err.Error(), err)
		return
	}

	resp, err := p.doLimited(r.Context(), client, req)
	if err != nil {
		p.writeProxyError(w, r, start, http.StatusBadGateway, err.Error(), err)
		return
	}
	defer resp.Body.Close()

	p.admitAndRespond(w, r, key, origin, resp, start)
}

// buildOriginRequest constructs the outbound GET against origin for the
// client's request target, with Host set and Connection: close requested.
func (p *Pipeline) buildOriginRequest(ctx context.Context, origin *url.URL, target *url.URL) (*http.Request, error) {
	u := &url.URL{Scheme: origin.Scheme, Host: origin.Host, Path: target.Path, RawQuery: target.RawQuery}
	if u.Scheme == "" {
		u.Scheme = "https"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Host = origin.Host
	req.Close = true
	return req, nil
}

// doLimited performs req through client, gated by the admission limiter.
func (p *Pipeline) doLimited(ctx context.Context, client *http.Client, req *http.Request) (*http.Response, error) {
	release, err := p.limiter.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	fetchStart := time.Now()
	resp, err := client.Do(req)
	metrics.ObserveOriginRequest(req.URL.Host, time.Since(fetchStart))
	return resp, err
}

// admitAndRespond reads resp's body under the 2 MiB cap, filters hop-by-hop
// headers, writes the client response with X-Cache: MISS, and applies the
// Cache-Control-driven admission decision.
func (p *Pipeline) admitAndRespond(w http.ResponseWriter, r *http.Request, key string, origin *url.URL, resp *http.Response, start time.Time) {
	body, truncated, err := readBounded(resp.Body, maxResponseBytes)
	if err != nil {
		p.writeProxyError(w, r, start, http.StatusBadGateway, err.Error(), err)
		return
	}
	if truncated {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusRequestEntityTooLarge)
		fmt.Fprint(w, "Origin response too large")
		applog.LogError(r, http.StatusRequestEntityTooLarge, "oversize origin body", nil)
		metrics.ObserveProxyResponse(r.Method, http.StatusRequestEntityTooLarge, "", time.Since(start))
		return
	}

	filtered := filterHopByHop(resp.Header, len(body))

	copyHeader(w.Header(), filtered)
	w.Header().Set("X-Cache", string(applog.OutcomeMiss))
	w.WriteHeader(resp.StatusCode)
	n, _ := w.Write(body)

	ttl := effectiveTTL(resp.Header.Get("Cache-Control"), p.cfg.DefaultTTL)
	if ttl <= 0 {
		p.store.RecordCompliantMiss()
		metrics.IncCacheCompliantMiss()
		metrics.ObserveProxyResponse(r.Method, resp.StatusCode, string(applog.OutcomeCompliantMiss), time.Since(start))
		applog.LogOutcome(r, resp.StatusCode, applog.OutcomeCompliantMiss, n, time.Since(start))
		return
	}

	stored := filtered.Clone()
	stored.Set("X-Cache", string(applog.OutcomeHit))
	p.store.Put(key, &cache.Response{
		Status:    resp.StatusCode,
		Header:    stored,
		Body:      body,
		ExpiresAt: nowSeconds() + int64(ttl),
	})
	p.store.RecordMiss(key)
	metrics.IncCacheMiss()
	metrics.SetCacheEntries(p.store.Len())
	metrics.ObserveProxyResponse(r.Method, resp.StatusCode, string(applog.OutcomeMiss), time.Since(start))
	applog.LogOutcome(r, resp.StatusCode, applog.OutcomeMiss, n, time.Since(start))
}

func (p *Pipeline) writeProxyError(w http.ResponseWriter, r *http.Request, start time.Time, status int, reason string, err error) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	var msg string
	switch reason {
	case "conditional request failed":
		msg = "Proxy error: conditional request failed"
	case "unknown origin":
		msg = "Proxy error: unknown origin"
	default:
		msg = "Proxy error: " + reason
	}
	fmt.Fprint(w, msg)

	applog.LogError(r, status, reason, err)
	metrics.ObserveProxyResponse(r.Method, status, "", time.Since(start))
}

// readBounded reads from body up to limit+1 bytes and reports whether the
// stream held more than limit bytes.
func readBounded(body io.Reader, limit int) (data []byte, truncated bool, err error) {
	buf, err := io.ReadAll(io.LimitReader(body, int64(limit)+1))
	if err != nil {
		return nil, false, err
	}
	if len(buf) > limit {
		return nil, true, nil
	}
	return buf, false, nil
}
