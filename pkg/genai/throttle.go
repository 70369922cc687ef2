package genai

import (
	"sync"
	"time"
)

// RateWindow is a sliding-window call budget for best-effort operations.
// The metadata-refinement family runs every call attempt through one so
// bulk task entry can never exhaust the remote rate limit for the
// user's primary workflow.
type RateWindow struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	stamps []time.Time
	now    func() time.Time
}

// NewRateWindow permits at most limit calls per window.
func NewRateWindow(limit int, window time.Duration) *RateWindow {
	if limit <= 0 {
		limit = 5
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RateWindow{limit: limit, window: window, now: time.Now}
}

// Allow reports whether another call fits in the current window, and
// records it if so. Stamps older than the window are discarded first.
func (w *RateWindow) Allow() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	cutoff := now.Add(-w.window)
	kept := w.stamps[:0]
	for _, s := range w.stamps {
		if s.After(cutoff) {
			kept = append(kept, s)
		}
	}
	w.stamps = kept

	if len(w.stamps) >= w.limit {
		return false
	}
	w.stamps = append(w.stamps, now)
	return true
}
