package iracing

import (
	"context"
	"sync"
	"time"
)

// rateGate admits at most limit requests per rolling window. The window is
// reset lazily once the current time passes the recorded reset instant;
// callers over budget block until the next window opens.
type rateGate struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	used    int
	resetAt time.Time
}

func newRateGate(limit int, window time.Duration) *rateGate {
	return &rateGate{limit: limit, window: window}
}

func (g *rateGate) wait(ctx context.Context) error {
	for {
		g.mu.Lock()
		now := time.Now()
		if g.resetAt.IsZero() || !now.Before(g.resetAt) {
			g.resetAt = now.Add(g.window)
			g.used = 0
		}
		if g.used < g.limit {
			g.used++
			g.mu.Unlock()
			return nil
		}
		sleep := g.resetAt.Sub(now)
		g.mu.Unlock()

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
