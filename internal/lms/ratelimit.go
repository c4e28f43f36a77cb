package lms

import (
	"context"
	"sync"
	"time"
)

// rateWindow implements sliding-window admission control: at most maxRequests
// send timestamps may fall inside the trailing window. The window is shared by
// every pipeline in the process, so all access is mutex-guarded.
type rateWindow struct {
	window      time.Duration
	maxRequests int
	now         func() time.Time

	mu         sync.Mutex
	timestamps []time.Time
}

func newRateWindow(window time.Duration, maxRequests int) *rateWindow {
	return &rateWindow{
		window:      window,
		maxRequests: maxRequests,
		now:         time.Now,
	}
}

// admit blocks until sending one request keeps the window under its cap, then
// records the send timestamp. The wait is cancellable via ctx.
func (w *rateWindow) admit(ctx context.Context) error {
	for {
		w.mu.Lock()
		now := w.now()
		w.prune(now)

		if len(w.timestamps) < w.maxRequests {
			w.timestamps = append(w.timestamps, now)
			w.mu.Unlock()
			return nil
		}

		// Window full: wait until the oldest entry slides out.
		wait := w.timestamps[0].Add(w.window).Sub(now)
		w.mu.Unlock()

		if wait <= 0 {
			continue
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// prune drops timestamps older than the trailing window. Callers hold w.mu.
func (w *rateWindow) prune(now time.Time) {
	cutoff := now.Add(-w.window)
	i := 0
	for i < len(w.timestamps) && !w.timestamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w.timestamps = append(w.timestamps[:0], w.timestamps[i:]...)
	}
}

// inWindow returns the current count of timestamps in the trailing window.
func (w *rateWindow) inWindow() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.prune(w.now())
	return len(w.timestamps)
}
