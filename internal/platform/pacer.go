package platform

import (
	"context"
	"sync"
	"time"
)

// pacer enforces a minimum spacing between consecutive outbound calls so the
// service stays inside the platform's rate limits. It is shared across all
// gateway methods: whoever calls Wait next is delayed until the spacing since
// the previous call has elapsed.
//
// Thread-safe; callers from the scheduler loop and HTTP handlers serialize
// on the internal mutex while reserving their slot.
type pacer struct {
	spacing  time.Duration
	nextSlot time.Time
	mu       sync.Mutex
}

func newPacer(spacing time.Duration) *pacer {
	return &pacer{spacing: spacing}
}

// Wait blocks until the caller's reserved slot arrives or the context is
// cancelled. A zero spacing makes Wait a no-op.
func (p *pacer) Wait(ctx context.Context) error {
	if p.spacing <= 0 {
		return nil
	}

	p.mu.Lock()
	now := time.Now()
	slot := p.nextSlot
	if slot.Before(now) {
		slot = now
	}
	p.nextSlot = slot.Add(p.spacing)
	p.mu.Unlock()

	delay := time.Until(slot)
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
