package quote

import (
	"context"
	"sync"
	"time"
)

// Window is a sliding-window request log. At most Limit requests are admitted in any
// interval of length Span; callers beyond that block until the oldest admission ages out.
type Window struct {
	limit  int
	span   time.Duration
	margin time.Duration

	mu     sync.Mutex
	stamps []time.Time
	now    func() time.Time
}

// NewWindow builds a window admitting limit requests per span. margin is added to every
// computed wait so a request never lands exactly on the boundary.
func NewWindow(limit int, span, margin time.Duration) *Window {
	if limit <= 0 {
		limit = 1
	}
	if margin < 0 {
		margin = 0
	}
	return &Window{
		limit:  limit,
		span:   span,
		margin: margin,
		stamps: make([]time.Time, 0, limit),
		now:    time.Now,
	}
}

// Wait blocks until a slot is free, records the admission and returns how long it waited.
func (w *Window) Wait(ctx context.Context) (time.Duration, error) {
	var waited time.Duration
	for {
		w.mu.Lock()
		now := w.now()
		w.evict(now)
		if len(w.stamps) < w.limit {
			w.stamps = append(w.stamps, now)
			w.mu.Unlock()
			return waited, nil
		}
		delay := w.stamps[0].Add(w.span).Sub(now) + w.margin
		w.mu.Unlock()

		if delay <= 0 {
			continue
		}
		if err := sleepContext(ctx, delay); err != nil {
			return waited, err
		}
		waited += delay
	}
}

// InFlight reports how many admissions currently sit inside the window.
func (w *Window) InFlight() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.evict(w.now())
	return len(w.stamps)
}

func (w *Window) evict(now time.Time) {
	cutoff := now.Add(-w.span)
	drop := 0
	for drop < len(w.stamps) && !w.stamps[drop].After(cutoff) {
		drop++
	}
	if drop > 0 {
		w.stamps = append(w.stamps[:0], w.stamps[drop:]...)
	}
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
