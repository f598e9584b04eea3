package sweeper

import (
	"context"
	"net/http"
	"testing"
	"time"

	"cacheproxy/internal/cache"
)

func TestSweeper_DrainsExpiredEntry(t *testing.T) {
	store := cache.NewStore(10)
	store.Put("/x", &cache.Response{
		Status:    200,
		Header:    http.Header{},
		Body:      []byte("x"),
		ExpiresAt: time.Now().Add(-1 * time.Second).Unix(),
	})

	sw := New(store)
	ctx, cancel := context.WithCancel(context.Background())
	go sw.Run(ctx)
	t.Cleanup(cancel)

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if !store.Has("/x") {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("expected sweeper to evict expired /x within the deadline")
}

func TestSweeper_StopsOnCancel(t *testing.T) {
	store := cache.NewStore(10)
	sw := New(store)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		sw.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("expected Run to return promptly after cancel")
	}
}
