package limiter

import (
	"context"
	"sync"
	"time"

	"github.com/and161185/storefront-sync/internal/clock"
)

// Pacer pauses for a fixed interval before every request it guards.
// Callers are serialized: Wait holds the pacer while sleeping.
type Pacer struct {
	mu       sync.Mutex
	clk      clock.Clock
	interval time.Duration
}

// NewPacer constructs a pacer; clk nil means wall clock.
func NewPacer(interval time.Duration, clk clock.Clock) *Pacer {
	if clk == nil {
		clk = clock.System{}
	}
	return &Pacer{clk: clk, interval: interval}
}

// Wait sleeps for the pacing interval. A cancelled ctx aborts the sleep.
func (p *Pacer) Wait(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.interval <= 0 {
		return ctx.Err()
	}
	return p.clk.Sleep(ctx, p.interval)
}
