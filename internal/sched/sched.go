// Package sched implements the fixed-slot periodic scheduler that paces
// Hello and Join/Prune refreshes (spec.md §4.5). The ready/fire event shape
// is adapted from the original source's IPv4HelloEvent/IPv4JPUpdateEvent;
// the driving loop (send-then-tick, done-channel shutdown, WaitGroup drain)
// is adapted from the teacher's internal/pim/server.go and
// internal/multicast/heartbeat.go.
package sched

import (
	"sync"
	"time"
)

// Clock abstracts time.Now so tests can control elapsed time deterministically.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Emitter is one timed activity in the fixed schedule: Ready reports
// whether it should fire at now, and Fire sends its payload.
type Emitter interface {
	Ready(now time.Time) bool
	Fire(now time.Time) error
}

// Sender is the minimal transport contract the scheduler drives.
type Sender interface {
	Send(payload []byte) error
}

// tickInterval is the coarse pacing constant from spec.md §4.5: it caps
// jitter at ±100ms, comfortably inside PIM's refresh margins.
const tickInterval = 100 * time.Millisecond

// Loop drives a fixed, ordered set of Emitters and runs the shutdown
// sequence on stop.
type Loop struct {
	clock    Clock
	emitters []Emitter
	goodbye  func() error

	done chan struct{}
	wg   sync.WaitGroup

	mu      sync.Mutex
	lastErr error
}

// New constructs a Loop over emitters, run in the given fixed order every
// tick. goodbye is invoked once, after the last regular tick, to run the
// shutdown sequence (spec.md §4.5 "Shutdown sequence").
func New(emitters []Emitter, goodbye func() error) *Loop {
	return &Loop{
		clock:    realClock{},
		emitters: emitters,
		goodbye:  goodbye,
		done:     make(chan struct{}),
	}
}

// Start runs the scheduler loop in its own goroutine until Stop is called
// or an emitter reports a fatal send error.
func (l *Loop) Start() {
	l.wg.Add(1)
	go l.run()
}

func (l *Loop) run() {
	defer l.wg.Done()
	for {
		now := l.clock.Now()
		for _, e := range l.emitters {
			if !e.Ready(now) {
				continue
			}
			if err := e.Fire(now); err != nil {
				l.setErr(err)
				return
			}
		}

		select {
		case <-l.done:
			if err := l.goodbye(); err != nil {
				l.setErr(err)
			}
			return
		default:
		}

		time.Sleep(tickInterval)
	}
}

// Stop requests shutdown and blocks until the loop (including the goodbye
// sequence) has completed. It returns any fatal error the loop encountered.
func (l *Loop) Stop() error {
	close(l.done)
	l.wg.Wait()
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastErr
}

func (l *Loop) setErr(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.lastErr == nil {
		l.lastErr = err
	}
}
