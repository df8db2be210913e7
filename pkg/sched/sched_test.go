package sched

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	logx "schedkit/pkg/logx"
)

// waitUntil polls cond with a generous deadline; pool tests run on the real
// clock and must tolerate slow CI machines.
func waitUntil(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out after %v: %s", timeout, msg)
}

func TestPoolRunsScheduledTask(t *testing.T) {
	s := New(Config{}, logx.Nop())
	done := make(chan struct{})

	if _, err := s.After(10*time.Millisecond, func(context.Context) error {
		close(done)
		return nil
	}); err != nil {
		t.Fatalf("After: %v", err)
	}

	s.Start(context.Background())
	defer s.Stop(context.Background())

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatalf("task did not run within 3s")
	}
}

func TestEveryRepeatsAndCancelStops(t *testing.T) {
	s := New(Config{}, logx.Nop())
	var count atomic.Int64

	task, err := s.Every(20*time.Millisecond, func(context.Context) error {
		count.Add(1)
		return nil
	})
	if err != nil {
		t.Fatalf("Every: %v", err)
	}

	s.Start(context.Background())
	defer s.Stop(context.Background())

	waitUntil(t, 5*time.Second, func() bool { return count.Load() >= 3 }, "recurring task did not reach 3 runs")

	task.Cancel()
	after := count.Load()
	time.Sleep(200 * time.Millisecond)
	// At most one occurrence could already be past its cancellation check.
	if got := count.Load(); got > after+1 {
		t.Fatalf("count kept growing after Cancel: %d -> %d", after, got)
	}

	waitUntil(t, 3*time.Second, func() bool { return s.Snapshot().Discarded >= 1 }, "cancelled task never discarded")
	if got := s.Snapshot().Pending; got != 0 {
		t.Fatalf("pending after discard = %d, want 0", got)
	}
}

func TestLoudInsertWakesIdleWorker(t *testing.T) {
	// Long idle sleeps: without the wake signal a fresh task would wait out
	// most of a second before a worker notices it.
	s := New(Config{IdleInterval: time.Second, MaxSleep: time.Second}, logx.Nop())
	s.Start(context.Background())
	defer s.Stop(context.Background())

	// Let the workers reach their idle sleep.
	time.Sleep(50 * time.Millisecond)

	done := make(chan struct{})
	start := time.Now()
	if _, err := s.After(0, func(context.Context) error {
		close(done)
		return nil
	}); err != nil {
		t.Fatalf("After: %v", err)
	}

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatalf("task did not run within 3s")
	}
	if took := time.Since(start); took > 500*time.Millisecond {
		t.Fatalf("immediate task took %v, want well under the 1s idle sleep", took)
	}
}

func TestStopWaitsForInFlightAction(t *testing.T) {
	s := New(Config{}, logx.Nop())
	started := make(chan struct{})
	var finished atomic.Bool

	if _, err := s.After(0, func(context.Context) error {
		close(started)
		time.Sleep(150 * time.Millisecond)
		finished.Store(true)
		return nil
	}); err != nil {
		t.Fatalf("After: %v", err)
	}

	s.Start(context.Background())
	select {
	case <-started:
	case <-time.After(3 * time.Second):
		t.Fatalf("action never started")
	}

	s.Stop(context.Background())
	if !finished.Load() {
		t.Fatalf("Stop returned before the in-flight action finished")
	}
	if s.Running() {
		t.Fatalf("Running() = true after Stop")
	}
}

func TestStartStopIdempotent(t *testing.T) {
	s := New(Config{}, logx.Nop())
	s.Stop(context.Background()) // stop before any start is a no-op

	s.Start(context.Background())
	s.Start(context.Background())
	if !s.Running() {
		t.Fatalf("Running() = false after Start")
	}

	s.Stop(context.Background())
	s.Stop(context.Background())
	if s.Running() {
		t.Fatalf("Running() = true after Stop")
	}

	// A second run works.
	s.Start(context.Background())
	if !s.Running() {
		t.Fatalf("Running() = false after restart")
	}
	s.Stop(context.Background())
}

func TestRetainRefCounting(t *testing.T) {
	s := New(Config{}, logx.Nop())

	rel1 := s.Retain()
	if !s.Running() {
		t.Fatalf("pool not running after first Retain")
	}
	rel2 := s.Retain()
	rel1()
	rel1() // idempotent
	if !s.Running() {
		t.Fatalf("pool stopped while a retain is still held")
	}
	rel2()
	if s.Running() {
		t.Fatalf("pool still running after last release")
	}
	if got := s.Snapshot().Retains; got != 0 {
		t.Fatalf("retains = %d, want 0", got)
	}
}

func TestFailingActionKeepsPoolAlive(t *testing.T) {
	s := New(Config{}, logx.Nop())
	boom := errors.New("boom")
	done := make(chan struct{})

	if _, err := s.After(0, func(context.Context) error { return boom }, WithLabel("bad")); err != nil {
		t.Fatalf("After: %v", err)
	}
	if _, err := s.After(30*time.Millisecond, func(context.Context) error {
		close(done)
		return nil
	}); err != nil {
		t.Fatalf("After: %v", err)
	}

	s.Start(context.Background())
	defer s.Stop(context.Background())

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatalf("pool stopped executing after a task failure")
	}

	snap := s.Snapshot()
	if snap.Failed < 1 {
		t.Fatalf("Failed = %d, want >= 1", snap.Failed)
	}
	if snap.Executed < 1 {
		t.Fatalf("Executed = %d, want >= 1", snap.Executed)
	}
}

func TestPanicIsContained(t *testing.T) {
	s := New(Config{Workers: 1}, logx.Nop())
	done := make(chan struct{})

	if _, err := s.After(0, func(context.Context) error { panic("kaboom") }); err != nil {
		t.Fatalf("After: %v", err)
	}
	if _, err := s.After(30*time.Millisecond, func(context.Context) error {
		close(done)
		return nil
	}); err != nil {
		t.Fatalf("After: %v", err)
	}

	s.Start(context.Background())
	defer s.Stop(context.Background())

	// The single worker must survive the panic to run the second task.
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatalf("worker did not survive the panic")
	}
	if got := s.Snapshot().Failed; got < 1 {
		t.Fatalf("Failed = %d, want >= 1 (panic counts as failure)", got)
	}
}

func TestApplyRestartsWorkersAndKeepsTasks(t *testing.T) {
	s := New(Config{Workers: 1}, logx.Nop())
	var count atomic.Int64

	if _, err := s.Every(30*time.Millisecond, func(context.Context) error {
		count.Add(1)
		return nil
	}); err != nil {
		t.Fatalf("Every: %v", err)
	}

	s.Start(context.Background())
	defer s.Stop(context.Background())

	waitUntil(t, 5*time.Second, func() bool { return count.Load() >= 2 }, "task did not run before Apply")

	s.Apply(context.Background(), Config{Workers: 4})
	if !s.Running() {
		t.Fatalf("pool not running after Apply")
	}
	if got := s.Snapshot().Workers; got != 4 {
		t.Fatalf("workers after Apply = %d, want 4", got)
	}

	// The recurring task survived the worker restart.
	before := count.Load()
	waitUntil(t, 5*time.Second, func() bool { return count.Load() >= before+2 }, "task did not keep running after Apply")
}

func TestEventsDelivered(t *testing.T) {
	s := New(Config{}, logx.Nop())
	events, unsub := s.Events(16)
	defer unsub()

	if _, err := s.After(5*time.Millisecond, func(context.Context) error { return nil }, WithLabel("evt")); err != nil {
		t.Fatalf("After: %v", err)
	}

	s.Start(context.Background())
	defer s.Stop(context.Background())

	select {
	case ev := <-events:
		if ev.Type != EventExecuted {
			t.Fatalf("event type = %q, want %q", ev.Type, EventExecuted)
		}
		if ev.Label != "evt" {
			t.Fatalf("event label = %q, want %q", ev.Label, "evt")
		}
		if ev.TaskID == 0 {
			t.Fatalf("event task id = 0, want nonzero")
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("no event within 3s")
	}

	unsub()
	unsub() // idempotent
	if got := s.Snapshot().Subscribers; got != 0 {
		t.Fatalf("subscribers after unsub = %d, want 0", got)
	}
}
