package originpool

import (
	"math"
	"net/url"
	"strings"
	"sync/atomic"
)

// Balancer picks among the origin hosts configured for a single route (or
// the default origin) when more than one host is listed. With exactly one
// host, Pick always returns it — the common case spec.md's scenarios
// exercise.
type Balancer interface {
	// Pick selects an origin. If previewOnly is true it must not mutate any
	// state (e.g. active-connection counters).
	Pick(previewOnly bool) *url.URL
	// Acquire marks the start of a real request to target and returns a
	// release function to call once the request completes.
	Acquire(target *url.URL) func()
	Targets() []*url.URL
	Strategy() string
}

// ----- Round robin -----

type roundRobinBalancer struct {
	targets             []*url.URL
	nextIndex           uint64
	healthChecksEnabled bool
}

func newRoundRobinBalancer(targets []*url.URL, healthChecksEnabled bool) Balancer {
	copied := append([]*url.URL{}, targets...)
	return &roundRobinBalancer{targets: copied, healthChecksEnabled: healthChecksEnabled}
}

func (b *roundRobinBalancer) Pick(previewOnly bool) *url.URL {
	if len(b.targets) == 0 {
		return nil
	}
	if previewOnly {
		n := atomic.LoadUint64(&b.nextIndex)
		return b.targets[n%uint64(len(b.targets))]
	}

	start := atomic.AddUint64(&b.nextIndex, 1) - 1
	count := uint64(len(b.targets))

	if !b.healthChecksEnabled {
		return b.targets[start%count]
	}
	for i := uint64(0); i < count; i++ {
		candidate := b.targets[(start+i)%count]
		if isTargetHealthy(candidate) {
			return candidate
		}
	}
	return nil
}

func (b *roundRobinBalancer) Acquire(_ *url.URL) func() { return func() {} }
func (b *roundRobinBalancer) Targets() []*url.URL       { return b.targets }
func (b *roundRobinBalancer) Strategy() string          { return "round_robin" }

// ----- Least connections -----

type lcState struct {
	origin            *url.URL
	activeConnections int64
	pendingSelections int64
}

type leastConnectionsBalancer struct {
	states              []*lcState
	healthChecksEnabled bool
}

func newLeastConnectionsBalancer(targets []*url.URL, healthChecksEnabled bool) Balancer {
	states := make([]*lcState, 0, len(targets))
	for _, u := range targets {
		states = append(states, &lcState{origin: u})
	}
	return &leastConnectionsBalancer{states: states, healthChecksEnabled: healthChecksEnabled}
}

func (b *leastConnectionsBalancer) Pick(previewOnly bool) *url.URL {
	if len(b.states) == 0 {
		return nil
	}

	candidates := func(includePending bool) ([]*lcState, bool) {
		min := int64(math.MaxInt64)
		out := make([]*lcState, 0, len(b.states))
		for _, st := range b.states {
			if b.healthChecksEnabled && !isTargetHealthy(st.origin) {
				continue
			}
			load := atomic.LoadInt64(&st.activeConnections)
			if includePending {
				load += atomic.LoadInt64(&st.pendingSelections)
			}
			switch {
			case load < min:
				min = load
				out = out[:0]
				out = append(out, st)
			case load == min:
				out = append(out, st)
			}
		}
		return out, len(out) > 0
	}

	if previewOnly {
		if cands, ok := candidates(false); ok {
			return cands[0].origin
		}
		return nil
	}

	for {
		cands, ok := candidates(true)
		if !ok {
			if !b.healthChecksEnabled && len(b.states) > 0 {
				return b.states[0].origin
			}
			return nil
		}
		best := cands[0]
		p := atomic.LoadInt64(&best.pendingSelections)
		if atomic.CompareAndSwapInt64(&best.pendingSelections, p, p+1) {
			return best.origin
		}
	}
}

func (b *leastConnectionsBalancer) Acquire(target *url.URL) func() {
	var st *lcState
	for _, s := range b.states {
		if sameOrigin(s.origin, target) {
			st = s
			break
		}
	}
	if st == nil {
		return func() {}
	}
	// Consume the pending selection left by Pick, if any; an Acquire without
	// a prior Pick must not drive the pending count below zero.
	for {
		p := atomic.LoadInt64(&st.pendingSelections)
		if p <= 0 || atomic.CompareAndSwapInt64(&st.pendingSelections, p, p-1) {
			break
		}
	}
	atomic.AddInt64(&st.activeConnections, 1)
	return func() { atomic.AddInt64(&st.activeConnections, -1) }
}

func (b *leastConnectionsBalancer) Targets() []*url.URL {
	out := make([]*url.URL, 0, len(b.states))
	for _, st := range b.states {
		out = append(out, st.origin)
	}
	return out
}

func (b *leastConnectionsBalancer) Strategy() string { return "least_connections" }

func sameOrigin(a, b *url.URL) bool {
	if a == nil || b == nil {
		return false
	}
	return strings.EqualFold(a.Scheme, b.Scheme) && strings.EqualFold(a.Host, b.Host)
}

// newBalancer builds a Balancer for the named strategy ("rr", the default,
// or "least_conn"/"lc"/"least_connections").
func newBalancer(strategy string, targets []*url.URL, healthChecksEnabled bool) Balancer {
	switch strings.ToLower(strings.TrimSpace(strategy)) {
	case "least_conn", "lc", "least-connections", "least_connections":
		return newLeastConnectionsBalancer(targets, healthChecksEnabled)
	default:
		return newRoundRobinBalancer(targets, healthChecksEnabled)
	}
}
