// Package timer provides the single-shot, rearmable follow-up timer used by
// session tracking.
//
// Each armed [Handle] fires its callback exactly once on an independent
// goroutine. Cancellation is best-effort: a callback that has already started
// keeps running, and the caller is expected to neutralize it by re-checking
// state under its own lock.
package timer

import "time"

// ///////////////////////////////////////////////
// Handle
// ///////////////////////////////////////////////

// Handle is one outstanding single-shot timer.
type Handle struct {
	t *time.Timer
}

// Arm schedules fn to run once after delay. Negative delays are clamped to
// zero, so rearming with partial elapsed time that already exceeds the
// interval fires immediately instead of misbehaving.
func Arm(delay time.Duration, fn func()) *Handle {
	if delay < 0 {
		delay = 0
	}
	return &Handle{t: time.AfterFunc(delay, fn)}
}

// Cancel stops the timer if it has not fired yet. Canceling a nil handle or a
// timer whose callback already began is a no-op; the fire proceeds and must be
// tolerated by the callback itself.
func (h *Handle) Cancel() {
	if h == nil {
		return
	}
	h.t.Stop()
}
