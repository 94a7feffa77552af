package sched

import (
	"errors"
	"testing"
	"time"
)

func TestHelloEmitterFiresImmediatelyThenPeriodically(t *testing.T) {
	e := &HelloEmitter{Period: 30 * time.Second, Send: func(time.Time) error { return nil }}
	t0 := time.Unix(0, 0)

	if !e.Ready(t0) {
		t.Fatalf("HelloEmitter not ready on first tick")
	}
	if e.Ready(t0.Add(time.Second)) {
		t.Fatalf("HelloEmitter ready again before its period elapsed")
	}
	if !e.Ready(t0.Add(30 * time.Second)) {
		t.Fatalf("HelloEmitter not ready after one period")
	}
}

func TestJPUpdateEmitterFiresAfterFirstPeriod(t *testing.T) {
	e := &JPUpdateEmitter{Period: 60 * time.Second, Send: func(time.Time) error { return nil }}
	t0 := time.Unix(0, 0)

	if e.Ready(t0) {
		t.Fatalf("JPUpdateEmitter must not be ready on the first tick")
	}
	if e.Ready(t0.Add(59 * time.Second)) {
		t.Fatalf("JPUpdateEmitter ready before its period elapsed")
	}
	if !e.Ready(t0.Add(60 * time.Second)) {
		t.Fatalf("JPUpdateEmitter not ready after one period")
	}
}

// S5 — on Stop, the loop runs exactly one goodbye sequence and reports no
// error when every send succeeds.
func TestLoopRunsGoodbyeOnStop(t *testing.T) {
	var helloFires, goodbyeCalls int
	hello := &HelloEmitter{Period: time.Hour, Send: func(time.Time) error { helloFires++; return nil }}

	loop := New([]Emitter{hello}, func() error { goodbyeCalls++; return nil })
	loop.Start()
	time.Sleep(20 * time.Millisecond)

	if err := loop.Stop(); err != nil {
		t.Fatalf("Stop(): %v", err)
	}
	if helloFires == 0 {
		t.Errorf("hello never fired before stop")
	}
	if goodbyeCalls != 1 {
		t.Errorf("goodbyeCalls = %d, want 1", goodbyeCalls)
	}
}

func TestLoopPropagatesFatalSendError(t *testing.T) {
	boom := errors.New("boom")
	hello := &HelloEmitter{Period: time.Hour, Send: func(time.Time) error { return boom }}

	loop := New([]Emitter{hello}, func() error { return nil })
	loop.Start()
	time.Sleep(20 * time.Millisecond)

	if err := loop.Stop(); !errors.Is(err, boom) {
		t.Fatalf("Stop() = %v, want %v", err, boom)
	}
}
