package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/qazaqsoft/kaspisync/internal/clock"
)

const DefaultRequestsPerSecond = 7.0

// Interval spaces calls so that no two start closer together than the
// configured minimum gap. The downstream CRM enforces a hard per-second
// request ceiling per account, so every outgoing call funnels through a
// single Interval instance.
type Interval struct {
	mu       sync.Mutex
	clock    clock.Clock
	sleep    func(ctx context.Context, d time.Duration) error
	minGap   time.Duration
	lastCall time.Time
}

// NewInterval builds a limiter allowing rps calls per second. Non-positive
// rps falls back to DefaultRequestsPerSecond.
func NewInterval(clk clock.Clock, rps float64) *Interval {
	if rps <= 0 {
		rps = DefaultRequestsPerSecond
	}
	return &Interval{
		clock:  clk,
		sleep:  sleepContext,
		minGap: time.Duration(float64(time.Second) / rps),
	}
}

// Wait blocks until the minimum gap since the previous call has elapsed,
// or until ctx is done.
func (i *Interval) Wait(ctx context.Context) error {
	i.mu.Lock()
	now := i.clock.Now()
	wait := i.minGap - now.Sub(i.lastCall)
	if wait < 0 {
		wait = 0
	}
	i.lastCall = now.Add(wait)
	i.mu.Unlock()

	if wait == 0 {
		return ctx.Err()
	}
	return i.sleep(ctx, wait)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
