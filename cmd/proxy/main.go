/*
cmd/proxy launches one independent caching reverse proxy per labeled entry
in cache_config.json, each on its own localhost:<port> listener.

Configuration is read only from cache_config.json (path overridable via
CACHE_CONFIG_FILE / .env); see internal/config for the shape.
*/
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"cacheproxy/internal/config"
	"cacheproxy/internal/proxyinstance"
)

func main() {
	lbStrategy := flag.String("lb-strategy", "round-robin", "load-balancing strategy for multi-host origins/routes (round-robin or least-connections)")
	flag.Parse()

	cfgs, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var wg sync.WaitGroup
	failed := make(chan string, len(cfgs))

	for label, cfg := range cfgs {
		inst := proxyinstance.New(label, cfg, *lbStrategy)
		wg.Add(1)
		go func(label string) {
			defer wg.Done()
			if err := inst.Run(ctx); err != nil {
				log.Printf("proxy %q exited: %v", label, err)
				failed <- label
			}
		}(label)
	}

	wg.Wait()
	close(failed)

	if len(cfgs) == 1 {
		for range failed {
			os.Exit(1)
		}
	}
}
