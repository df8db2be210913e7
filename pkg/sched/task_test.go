package sched

import (
	"context"
	"testing"
	"time"

	"schedkit/pkg/clockx"
	logx "schedkit/pkg/logx"
)

func newVirtualScheduler(t *testing.T) (*Scheduler, *clockx.Virtual) {
	t.Helper()
	vc := clockx.NewVirtual()
	s := New(Config{}, logx.Nop(), WithClock(vc))
	return s, vc
}

func TestTaskIDsAreUnique(t *testing.T) {
	s, _ := newVirtualScheduler(t)
	seen := map[uint64]bool{}
	var last uint64
	for i := 0; i < 100; i++ {
		task, err := s.After(time.Second, func(context.Context) error { return nil })
		if err != nil {
			t.Fatalf("After: %v", err)
		}
		id := task.ID()
		if seen[id] {
			t.Fatalf("task id %d issued twice", id)
		}
		if id <= last {
			t.Fatalf("task id %d not increasing (previous %d)", id, last)
		}
		seen[id] = true
		last = id
	}
}

func TestKindString(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{KindOnce, "once"},
		{KindEvery, "every"},
		{Kind(0), "unknown"},
	}
	for _, tc := range tests {
		if got := tc.kind.String(); got != tc.want {
			t.Fatalf("Kind(%d).String() = %q, want %q", tc.kind, got, tc.want)
		}
	}
}

func TestOnceOccurrence(t *testing.T) {
	s, _ := newVirtualScheduler(t)
	task, err := s.After(0, func(context.Context) error { return nil }, WithLabel("one-shot"))
	if err != nil {
		t.Fatalf("After: %v", err)
	}
	if task.Kind() != KindOnce {
		t.Fatalf("Kind = %v, want KindOnce", task.Kind())
	}
	if task.Label() != "one-shot" {
		t.Fatalf("Label = %q, want %q", task.Label(), "one-shot")
	}

	run, _, recur := task.occurrence(123)
	if !run || recur {
		t.Fatalf("occurrence = (run=%v, recur=%v), want (true, false)", run, recur)
	}
}

func TestEveryOccurrenceAdvancesByInterval(t *testing.T) {
	s, _ := newVirtualScheduler(t)
	task, err := s.Every(time.Second, func(context.Context) error { return nil })
	if err != nil {
		t.Fatalf("Every: %v", err)
	}
	if got := task.Interval(); got != time.Second {
		t.Fatalf("Interval = %v, want 1s", got)
	}

	run, next, recur := task.occurrence(5_000_000)
	if !run || !recur {
		t.Fatalf("occurrence = (run=%v, recur=%v), want (true, true)", run, recur)
	}
	if next != 6_000_000 {
		t.Fatalf("next = %d, want 6000000", next)
	}
}

func TestEveryDeferralConsumedOnce(t *testing.T) {
	s, vc := newVirtualScheduler(t)
	task, err := s.Every(time.Second, func(context.Context) error { return nil })
	if err != nil {
		t.Fatalf("Every: %v", err)
	}

	vc.Set(4_000_000)
	task.Defer(-3 * time.Second) // stages 1s

	run, next, recur := task.occurrence(4_000_000)
	if run {
		t.Fatalf("deferred occurrence ran, want skip")
	}
	if !recur {
		t.Fatalf("deferred occurrence lost the task, want reschedule")
	}
	if next != 1_000_000 {
		t.Fatalf("deferred next = %d, want 1000000", next)
	}

	// The stage is consumed: the next occurrence runs normally.
	run, next, recur = task.occurrence(1_000_000)
	if !run || !recur {
		t.Fatalf("occurrence after deferral = (run=%v, recur=%v), want (true, true)", run, recur)
	}
	if next != 2_000_000 {
		t.Fatalf("next after deferral = %d, want 2000000", next)
	}
}

func TestEveryDeferLastWins(t *testing.T) {
	s, vc := newVirtualScheduler(t)
	task, err := s.Every(time.Second, func(context.Context) error { return nil })
	if err != nil {
		t.Fatalf("Every: %v", err)
	}

	vc.Set(10_000_000)
	task.Defer(2 * time.Second)
	task.Defer(5 * time.Second)

	run, next, _ := task.occurrence(10_000_000)
	if run {
		t.Fatalf("deferred occurrence ran, want skip")
	}
	if next != 15_000_000 {
		t.Fatalf("next = %d, want 15000000 (last deferral wins)", next)
	}
}

func TestCancelIsIdempotent(t *testing.T) {
	s, _ := newVirtualScheduler(t)
	task, err := s.Every(time.Second, func(context.Context) error { return nil })
	if err != nil {
		t.Fatalf("Every: %v", err)
	}
	if task.Cancelled() {
		t.Fatalf("fresh task reports cancelled")
	}
	task.Cancel()
	task.Cancel()
	if !task.Cancelled() {
		t.Fatalf("task not cancelled after Cancel")
	}
}

func TestScheduleValidation(t *testing.T) {
	s, _ := newVirtualScheduler(t)
	noop := func(context.Context) error { return nil }

	tests := []struct {
		name    string
		call    func() error
		wantErr error
	}{
		{"after nil action", func() error { _, err := s.After(time.Second, nil); return err }, ErrNilAction},
		{"after negative delay", func() error { _, err := s.After(-time.Second, noop); return err }, ErrNegativeDelay},
		{"at nil action", func() error { _, err := s.AtLinearMicros(0, nil); return err }, ErrNilAction},
		{"every nil action", func() error { _, err := s.Every(time.Second, nil); return err }, ErrNilAction},
		{"every zero interval", func() error { _, err := s.Every(0, noop); return err }, ErrNonPositiveInterval},
		{"every sub-microsecond interval", func() error { _, err := s.Every(500*time.Nanosecond, noop); return err }, ErrNonPositiveInterval},
		{"every negative start delay", func() error {
			_, err := s.Every(time.Second, noop, WithStartDelay(-time.Second))
			return err
		}, ErrNegativeDelay},
	}
	for _, tc := range tests {
		if err := tc.call(); err != tc.wantErr {
			t.Fatalf("%s: err = %v, want %v", tc.name, err, tc.wantErr)
		}
	}

	// Rejected calls must not leave a registry entry behind.
	if got := s.Snapshot().Pending; got != 0 {
		t.Fatalf("pending after rejected calls = %d, want 0", got)
	}
}
