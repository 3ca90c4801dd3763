package main

import (
	"context"
	"math/rand/v2"
	"time"
)

const (
	maxBackoff   = 10 * time.Second
	jitterWindow = 250 * time.Millisecond
)

// pollBackoff doubles the idle wait after every failed batch, up to limit, and
// drops back to base after a good one.
type pollBackoff struct {
	base    time.Duration
	limit   time.Duration
	current time.Duration
}

func newPollBackoff(base, limit time.Duration) *pollBackoff {
	return &pollBackoff{base: base, limit: limit, current: base}
}

func (b *pollBackoff) failed() time.Duration {
	b.current = min(max(b.current, b.base)*2, b.limit)
	return b.current
}

func (b *pollBackoff) succeeded() time.Duration {
	b.current = b.base
	return b.current
}

// jittered spreads replicas that started together.
func jittered(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d + rand.N(jitterWindow)
}

// sleep is time.Sleep that returns early with ctx's error.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
