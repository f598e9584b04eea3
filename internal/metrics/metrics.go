// Package metrics defines the Prometheus metrics exposed by a proxy process.
// It keeps the cache-domain metrics (low cardinality: no per-key labels) and
// the origin-facing metrics separate so neither one's label set grows with
// the number of distinct keys served.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// proxyRequestsTotal counts client-facing proxy responses.
	// Labels:
	// - method: HTTP method
	// - status: numeric HTTP status
	// - cache: outcome (HIT, "HIT (revalidated)", MISS, COMPLIANT_MISS, or
	//   BYPASS when no outcome is given, as for error responses)
	proxyRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proxy_requests_total",
			Help: "Total proxy responses by method, status and cache outcome",
		},
		[]string{"method", "status", "cache"},
	)
	// proxyRequestDuration captures end-to-end proxy latency.
	proxyRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "proxy_request_duration_seconds",
			Help:    "End-to-end proxy request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "cache"},
	)

	// cacheEntries reports the live entry count of a proxy's cache.
	cacheEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "cache_entries",
			Help: "Current number of live entries in the cache",
		},
	)
	cacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total cache hits (fresh or revalidated)",
		},
	)
	cacheMissesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total non-compliant cache misses (forwarded to origin and admitted)",
		},
	)
	cacheCompliantMissesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cache_compliant_misses_total",
			Help: "Total misses where the origin forbade caching (no-store/no-cache/max-age=0)",
		},
	)
	// cacheEvictionsTotal is split by reason so LRU pressure and TTL churn
	// are distinguishable at a glance.
	cacheEvictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_evictions_total",
			Help: "Total cache evictions by reason",
		},
		[]string{"reason"},
	)

	// originRequestDuration measures origin fetch latency by origin host,
	// as observed from the proxy side.
	originRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "origin_request_duration_seconds",
			Help:    "Origin fetch duration observed by the proxy, by origin host",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"origin"},
	)

	// admissionLimiter metrics mirror the teacher's inbound queue gauges,
	// repointed at the outbound origin-fetch limiter.
	originLimiterRejected = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "origin_limiter_rejected_total",
			Help: "Total origin fetches rejected because the admission limiter was saturated",
		},
	)
	originLimiterWait = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "origin_limiter_wait_seconds",
			Help:    "Time spent waiting for a free origin-fetch slot",
			Buckets: prometheus.DefBuckets,
		},
	)

	// upstreamInflight and upstreamRequestDuration belong to the demo
	// origin server (cmd/upstream), not the proxy. They share this
	// registry because both binaries come from the same module.
	upstreamInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "upstream_inflight_requests",
			Help: "In-flight requests currently being served by the demo upstream",
		},
	)
	upstreamRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstream_request_duration_seconds",
			Help:    "Demo upstream request duration in seconds, by method and status",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "status"},
	)
)

func init() {
	prometheus.MustRegister(
		proxyRequestsTotal,
		proxyRequestDuration,
		cacheEntries,
		cacheHitsTotal,
		cacheMissesTotal,
		cacheCompliantMissesTotal,
		cacheEvictionsTotal,
		originRequestDuration,
		originLimiterRejected,
		originLimiterWait,
		upstreamInflight,
		upstreamRequestDuration,
	)
}

func normCacheLabel(v string) string {
	if v == "" {
		return "BYPASS"
	}
	return v
}

// ObserveProxyResponse records a client-facing proxy response.
func ObserveProxyResponse(method string, status int, cache string, dur time.Duration) {
	cache = normCacheLabel(cache)
	proxyRequestsTotal.WithLabelValues(method, strconv.Itoa(status), cache).Inc()
	proxyRequestDuration.WithLabelValues(method, cache).Observe(dur.Seconds())
}

// SetCacheEntries sets the cache_entries gauge to n.
func SetCacheEntries(n int) { cacheEntries.Set(float64(n)) }

// IncCacheHit increments the cache hit counter (fresh or revalidated).
func IncCacheHit() { cacheHitsTotal.Inc() }

// IncCacheMiss increments the non-compliant cache miss counter.
func IncCacheMiss() { cacheMissesTotal.Inc() }

// IncCacheCompliantMiss increments the compliant-miss counter.
func IncCacheCompliantMiss() { cacheCompliantMissesTotal.Inc() }

// IncCacheEviction increments the eviction counter for the given reason
// ("lru" or "ttl").
func IncCacheEviction(reason string) { cacheEvictionsTotal.WithLabelValues(reason).Inc() }

// ObserveOriginRequest records an origin fetch's duration by origin host.
func ObserveOriginRequest(origin string, dur time.Duration) {
	originRequestDuration.WithLabelValues(origin).Observe(dur.Seconds())
}

// OriginLimiterRejectedInc increments the origin-limiter rejection counter.
func OriginLimiterRejectedInc() { originLimiterRejected.Inc() }

// OriginLimiterWaitObserve records time spent waiting for an origin-fetch slot.
func OriginLimiterWaitObserve(d time.Duration) { originLimiterWait.Observe(d.Seconds()) }

// UpstreamInflightInc increments the demo upstream's in-flight gauge.
func UpstreamInflightInc() { upstreamInflight.Inc() }

// UpstreamInflightDec decrements the demo upstream's in-flight gauge.
func UpstreamInflightDec() { upstreamInflight.Dec() }

// ObserveUpstreamResponse records one demo upstream response.
func ObserveUpstreamResponse(method string, status int, dur time.Duration) {
	upstreamRequestDuration.WithLabelValues(method, strconv.Itoa(status)).Observe(dur.Seconds())
}
