package pipeline

import (
	"context"
	"testing"
	"time"
)

func TestLimiter_AcquireSucceedsUnderCapacity(t *testing.T) {
	l := NewLimiter(LimiterConfig{MaxConcurrent: 2, AcquireWait: 100 * time.Millisecond})

	release, err := l.Acquire(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	release()
}

func TestLimiter_SaturatedTimesOut(t *testing.T) {
	l := NewLimiter(LimiterConfig{MaxConcurrent: 1, AcquireWait: 50 * time.Millisecond})

	release, err := l.Acquire(context.Background())
	if err != nil {
		t.Fatalf("unexpected error acquiring first slot: %v", err)
	}
	defer release()

	_, err = l.Acquire(context.Background())
	if err != ErrLimiterSaturated {
		t.Fatalf("expected ErrLimiterSaturated, got %v", err)
	}
}

func TestLimiter_ReleaseFreesSlotForNextAcquire(t *testing.T) {
	l := NewLimiter(LimiterConfig{MaxConcurrent: 1, AcquireWait: 200 * time.Millisecond})

	release, err := l.Acquire(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	release()

	_, err = l.Acquire(context.Background())
	if err != nil {
		t.Fatalf("expected second acquire to succeed after release, got %v", err)
	}
}

func TestLimiter_ContextCancelUnblocksAcquire(t *testing.T) {
	l := NewLimiter(LimiterConfig{MaxConcurrent: 1, AcquireWait: 5 * time.Second})

	release, err := l.Acquire(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err = l.Acquire(ctx)
	if err == nil {
		t.Fatalf("expected error from canceled context")
	}
	if time.Since(start) > time.Second {
		t.Fatalf("expected prompt return on cancellation")
	}
}
