package store

import (
	"context"
	"sync"
	"time"

	"ots-go/internal/ots"
)

// healthCheck caches the result of a store reachability probe for a bounded
// interval. Each store instance owns its own healthCheck: the last-checked
// timestamp and refresh interval are per-instance state, never shared between
// logically distinct store handles.
type healthCheck struct {
	interval time.Duration
	clock    ots.Clock

	mu          sync.Mutex
	lastChecked time.Time
	lastErr     error
}

func newHealthCheck(interval time.Duration, clock ots.Clock) *healthCheck {
	return &healthCheck{interval: interval, clock: clock}
}

// check returns the cached probe result if it is still fresh, otherwise runs
// ping and caches its outcome. A failed probe makes every dependent operation
// fail closed until the next refresh.
func (h *healthCheck) check(ctx context.Context, ping func(context.Context) error) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.clock.Now()
	if !h.lastChecked.IsZero() && now.Sub(h.lastChecked) < h.interval {
		return h.lastErr
	}

	h.lastChecked = now
	h.lastErr = ping(ctx)
	return h.lastErr
}
