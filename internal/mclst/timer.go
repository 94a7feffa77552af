package mclst

import "time"

// Timer maintains keep-alive bookkeeping independent of the socket poller.
// It is needed because the raw-socket receiver variant (spec.md §4.6.1)
// sees traffic that wakes the poller but is not of interest (wrong group,
// wrong port); that traffic must not be mistaken for a keep-alive, so the
// timeout clock only advances on the poller's own return and only resets
// when an accepted packet, not an arbitrary wakeup, arrives. Adapted from
// original_source/apps/mclst/Timer.hpp.
type Timer struct {
	timeout      time.Duration
	start, stamp time.Time
}

// NewTimer builds a Timer with the given timeout, started now.
func NewTimer(timeout time.Duration, now time.Time) *Timer {
	return &Timer{timeout: timeout, start: now, stamp: now}
}

// Save records that the poller just returned at now; it does not by
// itself reset the timeout clock.
func (t *Timer) Save(now time.Time) { t.stamp = now }

// Reset restarts the timeout window from the last saved timestamp, called
// after an accepted packet or after a timeout has been reported.
func (t *Timer) Reset() { t.start = t.stamp }

// Timeout reports whether the timeout window has elapsed as of the last
// Save.
func (t *Timer) Timeout() bool {
	return t.stamp.Sub(t.start) >= t.timeout
}

// Timestamp returns the last value passed to Save.
func (t *Timer) Timestamp() time.Time { return t.stamp }
