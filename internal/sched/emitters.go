package sched

import "time"

// HelloEmitter fires immediately on the first tick, then every period.
// Adapted from the original source's IPv4HelloEvent, whose ready() seeds
// nextEventTime_ to the construction-time timestamp so the first check
// always succeeds.
type HelloEmitter struct {
	Period time.Duration
	Send   func(now time.Time) error

	next    time.Time
	started bool
}

func (h *HelloEmitter) Ready(now time.Time) bool {
	if !h.started {
		h.next = now
		h.started = true
	}
	if now.Before(h.next) {
		return false
	}
	h.next = now.Add(h.Period)
	return true
}

func (h *HelloEmitter) Fire(now time.Time) error {
	return h.Send(now)
}

// JPUpdateEmitter first fires after Period, not immediately, so the
// startup sequence sends a Hello before the first Join/Prune. Adapted from
// the original source's IPv4JPUpdateEvent.
type JPUpdateEmitter struct {
	Period time.Duration
	Send   func(now time.Time) error

	next    time.Time
	started bool
}

func (j *JPUpdateEmitter) Ready(now time.Time) bool {
	if !j.started {
		j.next = now.Add(j.Period)
		j.started = true
	}
	if now.Before(j.next) {
		return false
	}
	j.next = now.Add(j.Period)
	return true
}

func (j *JPUpdateEmitter) Fire(now time.Time) error {
	return j.Send(now)
}
