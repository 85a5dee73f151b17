package stream

import "time"

// rateWindow is the minimum elapsed time before a new rate is reported.
const rateWindow = time.Second

// RateTracker derives a frames-per-second rate from the stream of frame
// completion events. Owned by the single datagram-processing goroutine; no
// locking.
type RateTracker struct {
	count       int
	windowStart time.Time
}

// NewRateTracker returns a tracker with no open window.
func NewRateTracker() *RateTracker {
	return &RateTracker{}
}

// Record counts one completion event at the given instant. Once a full
// window has elapsed since the window started it returns the rate over that
// window and opens a fresh one; until then it returns false and the caller
// keeps the previously reported value.
func (t *RateTracker) Record(now time.Time) (float64, bool) {
	if t.windowStart.IsZero() {
		t.windowStart = now
		t.count = 1
		return 0, false
	}

	t.count++
	elapsed := now.Sub(t.windowStart)
	if elapsed < rateWindow {
		return 0, false
	}

	rate := float64(t.count) * float64(time.Second) / float64(elapsed)
	t.count = 0
	t.windowStart = now
	return rate, true
}
