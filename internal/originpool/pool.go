// Package originpool holds one persistent TLS client per distinct origin
// host and resolves an incoming request path to the right origin, balancing
// across more than one host per route when configured (see SPEC_FULL.md
// §4.3).
package originpool

import (
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrUnknownOrigin is returned by ClientFor when asked for a host that was
// never registered at construction time — it should never occur because
// every configured origin is pre-registered by NewPool.
var ErrUnknownOrigin = errors.New("origin: unknown origin host")

const (
	connectTimeout = 5 * time.Second
	readTimeout    = 5 * time.Second
)

// Route mirrors a configured route: requests whose path has Prefix are sent
// to Origin, which is one host or a comma-separated list of hosts balanced
// across.
type Route struct {
	Prefix string
	Origin string
}

// Config is everything the pool needs to build its clients and routing
// table.
type Config struct {
	DefaultOrigin string
	Routes        []Route
	// LBStrategy selects how a route (or the default origin) with more than
	// one host balances across them: "rr" (default) or "least_conn".
	LBStrategy string
	// Scheme is the scheme used to dial every origin host. Defaults to
	// "https" — the one test-only exception is package-internal pipeline
	// tests, which point this at a plaintext httptest server.
	Scheme string
}

type routeEntry struct {
	prefix   string
	balancer Balancer
}

// Pool owns one *http.Client per distinct origin host and the balancers
// used to pick among a route's hosts.
type Pool struct {
	clients         map[string]*http.Client
	routes          []routeEntry
	defaultBalancer Balancer
}

// NewPool builds a client for every distinct origin host named in cfg (the
// default plus every route), and a Balancer per route (and one for the
// default) over its host list.
func NewPool(cfg Config) *Pool {
	scheme := cfg.Scheme
	if scheme == "" {
		scheme = "https"
	}
	p := &Pool{clients: make(map[string]*http.Client)}

	defaultHosts := splitHosts(cfg.DefaultOrigin)
	p.registerHosts(defaultHosts)
	p.defaultBalancer = newBalancer(cfg.LBStrategy, hostsToURLs(defaultHosts, scheme), len(defaultHosts) > 1)

	for _, rt := range cfg.Routes {
		hosts := splitHosts(rt.Origin)
		p.registerHosts(hosts)
		p.routes = append(p.routes, routeEntry{
			prefix:   rt.Prefix,
			balancer: newBalancer(cfg.LBStrategy, hostsToURLs(hosts, scheme), len(hosts) > 1),
		})
	}

	return p
}

func splitHosts(origin string) []string {
	var hosts []string
	for _, h := range strings.Split(origin, ",") {
		h = strings.TrimSpace(h)
		if h != "" {
			hosts = append(hosts, h)
		}
	}
	return hosts
}

func hostsToURLs(hosts []string, scheme string) []*url.URL {
	out := make([]*url.URL, 0, len(hosts))
	for _, h := range hosts {
		out = append(out, &url.URL{Scheme: scheme, Host: h})
	}
	return out
}

func (p *Pool) registerHosts(hosts []string) {
	for _, h := range hosts {
		if _, ok := p.clients[h]; ok {
			continue
		}
		p.clients[h] = newOriginClient()
	}
}

// newOriginClient builds the fixed-timeout, keep-alive, cert-verifying TLS
// client every origin host gets.
func newOriginClient() *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: connectTimeout, KeepAlive: 30 * time.Second}).DialContext,
		TLSHandshakeTimeout:   connectTimeout,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		// TLSClientConfig left at its zero value: server certificate
		// verification stays enabled (InsecureSkipVerify defaults false).
	}
	return &http.Client{
		Transport: transport,
		Timeout:   readTimeout,
	}
}

// Select scans routes in declaration order and returns the origin chosen
// (via that route's balancer) for the first whose Prefix is a prefix of
// path; otherwise it returns an origin chosen from the default balancer.
// The returned release func must be called once the request against that
// origin completes — it is what lets a least-connections balancer track
// active load; for round-robin it is a no-op.
func (p *Pool) Select(path string) (*url.URL, func()) {
	for _, rt := range p.routes {
		if strings.HasPrefix(path, rt.prefix) {
			return pickAndAcquire(rt.balancer)
		}
	}
	return pickAndAcquire(p.defaultBalancer)
}

func pickAndAcquire(b Balancer) (*url.URL, func()) {
	origin := b.Pick(false)
	if origin == nil {
		return nil, func() {}
	}
	return origin, b.Acquire(origin)
}

// ClientFor returns the pooled client for origin's host, or ErrUnknownOrigin
// if it was never registered.
func (p *Pool) ClientFor(origin *url.URL) (*http.Client, error) {
	if origin == nil {
		return nil, ErrUnknownOrigin
	}
	client, ok := p.clients[origin.Host]
	if !ok {
		return nil, ErrUnknownOrigin
	}
	return client, nil
}
