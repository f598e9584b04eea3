package pipeline

import (
	"context"
	"errors"
	"time"

	"cacheproxy/internal/metrics"
)

// ErrLimiterSaturated is returned by Acquire when no slot freed up before
// either the wait timeout elapsed or the caller's context was done.
var ErrLimiterSaturated = errors.New("pipeline: origin admission limiter saturated")

// LimiterConfig controls the outbound origin-fetch admission limiter.
type LimiterConfig struct {
	MaxConcurrent int
	AcquireWait   time.Duration
}

// Limiter bounds how many origin fetches (miss-path GETs and
// stale-revalidate conditional GETs) are in flight at once, so a cache-miss
// thundering herd cannot pile unbounded concurrent connections onto one
// origin. It folds a saturated limiter into the pipeline's existing 502
// path rather than introducing a new status code.
type Limiter struct {
	slots chan struct{}
	wait  time.Duration
}

// NewLimiter builds a Limiter from cfg, applying the teacher-style defaults
// when a field is left zero.
func NewLimiter(cfg LimiterConfig) *Limiter {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 64
	}
	if cfg.AcquireWait <= 0 {
		cfg.AcquireWait = 5 * time.Second
	}
	return &Limiter{
		slots: make(chan struct{}, cfg.MaxConcurrent),
		wait:  cfg.AcquireWait,
	}
}

// Acquire blocks until a slot is free, the wait timeout elapses, or ctx is
// done — whichever happens first. On success it returns a release function
// that must be called exactly once.
func (l *Limiter) Acquire(ctx context.Context) (release func(), err error) {
	start := time.Now()

	select {
	case l.slots <- struct{}{}:
		metrics.OriginLimiterWaitObserve(time.Since(start))
		return func() { <-l.slots }, nil
	default:
	}

	timer := time.NewTimer(l.wait)
	defer timer.Stop()

	select {
	case l.slots <- struct{}{}:
		metrics.OriginLimiterWaitObserve(time.Since(start))
		return func() { <-l.slots }, nil
	case <-timer.C:
		metrics.OriginLimiterRejectedInc()
		return nil, ErrLimiterSaturated
	case <-ctx.Done():
		metrics.OriginLimiterRejectedInc()
		return nil, ctx.Err()
	}
}
