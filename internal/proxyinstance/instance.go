// Package proxyinstance wires one CacheStore, one OriginClientPool, one
// ExpirySweeper, one RequestPipeline and one ControlEndpoints table
// together behind a single listener.
package proxyinstance

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"sort"
	"strings"
	"time"

	"cacheproxy/internal/cache"
	"cacheproxy/internal/config"
	"cacheproxy/internal/control"
	"cacheproxy/internal/originpool"
	"cacheproxy/internal/pipeline"
	"cacheproxy/internal/sweeper"
)

const maxRequestBytes = 1 << 20 // 1 MiB

// Instance is one ProxyInstance: owns its cache, origin pool, sweeper,
// pipeline and listener, and enforces the GET-only request surface.
type Instance struct {
	label    string
	port     int
	store    *cache.Store
	pool     *originpool.Pool
	sweeper  *sweeper.Sweeper
	pipeline *pipeline.Pipeline
	allowed  map[string]struct{}
}

// New builds an Instance from label and its parsed ProxyConfig.
func New(label string, cfg config.ProxyConfig, lbStrategy string) *Instance {
	store := cache.NewStore(cfg.CacheSize)

	routes := make([]originpool.Route, 0, len(cfg.Routes))
	for _, r := range cfg.Routes {
		routes = append(routes, originpool.Route{Prefix: r.Prefix, Origin: r.Origin})
	}
	pool := originpool.NewPool(originpool.Config{
		DefaultOrigin: cfg.OriginURL,
		Routes:        routes,
		LBStrategy:    lbStrategy,
	})

	ctrl := control.NewTable(store)
	limiter := pipeline.NewLimiter(pipeline.LimiterConfig{})
	pl := pipeline.New(store, pool, ctrl, limiter, pipeline.Config{DefaultTTL: cfg.TTL})

	return &Instance{
		label:    label,
		port:     cfg.Port,
		store:    store,
		pool:     pool,
		sweeper:  sweeper.New(store),
		pipeline: pl,
		allowed:  map[string]struct{}{http.MethodGet: {}},
	}
}

func (i *Instance) listAllowedMethods() []string {
	methods := make([]string, 0, len(i.allowed))
	for m := range i.allowed {
		methods = append(methods, m)
	}
	sort.Strings(methods)
	return methods
}

func (i *Instance) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)

	if _, ok := i.allowed[r.Method]; !ok {
		w.Header().Set("Allow", strings.Join(i.listAllowedMethods(), ", "))
		w.WriteHeader(http.StatusMethodNotAllowed)
		fmt.Fprintf(w, "method %s not allowed\n", r.Method)
		return
	}

	i.pipeline.ServeHTTP(w, r)
}

// Run spawns the sweeper as a detached goroutine, then serves on
// localhost:<port> until ctx is canceled. Bind failure is reported to
// stderr and returned so the caller can decide how to treat that label.
func (i *Instance) Run(ctx context.Context) error {
	sweepCtx, cancelSweep := context.WithCancel(ctx)
	defer cancelSweep()
	go i.sweeper.Run(sweepCtx)

	addr := fmt.Sprintf("localhost:%d", i.port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		log.Printf("proxy %q: bind failure on %s: %v", i.label, addr, err)
		return fmt.Errorf("proxyinstance %q: listen %s: %w", i.label, addr, err)
	}

	srv := &http.Server{Handler: i}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Printf("proxy %q listening on %s", i.label, addr)
	if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("proxyinstance %q: serve: %w", i.label, err)
	}
	return nil
}

// Len reports the live cache entry count.
func (i *Instance) Len() int { return i.store.Len() }
