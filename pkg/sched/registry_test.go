package sched

import (
	"context"
	"testing"
)

func newTestOnce(label string) *Once {
	return &Once{id: nextID(), label: label, action: func(context.Context) error { return nil }}
}

func TestRegistryOrdersByDueThenID(t *testing.T) {
	r := newRegistry()

	a := newTestOnce("a") // lowest id
	b := newTestOnce("b")
	c := newTestOnce("c")
	d := newTestOnce("d")

	// Same due for b and d: the lower id must come out first.
	r.insert(300, c)
	r.insert(100, b)
	r.insert(100, d)
	r.insert(50, a)

	want := []string{"a", "b", "d", "c"}
	for i, w := range want {
		task, _, ok := r.takeEarliest()
		if !ok {
			t.Fatalf("takeEarliest #%d: registry empty, want %q", i, w)
		}
		if got := task.Label(); got != w {
			t.Fatalf("takeEarliest #%d = %q, want %q", i, got, w)
		}
	}
	if _, _, ok := r.takeEarliest(); ok {
		t.Fatalf("takeEarliest on drained registry reported an entry")
	}
}

func TestRegistryPeekDoesNotRemove(t *testing.T) {
	r := newRegistry()
	if _, ok := r.peekEarliest(); ok {
		t.Fatalf("peekEarliest on empty registry reported an entry")
	}

	r.insert(42, newTestOnce("x"))
	for i := 0; i < 3; i++ {
		due, ok := r.peekEarliest()
		if !ok || due != 42 {
			t.Fatalf("peekEarliest = (%d, %v), want (42, true)", due, ok)
		}
	}
	if got := r.size(); got != 1 {
		t.Fatalf("size after peeks = %d, want 1", got)
	}
}

func TestRegistryReset(t *testing.T) {
	r := newRegistry()
	for i := int64(0); i < 5; i++ {
		r.insert(i, newTestOnce("t"))
	}
	if got := r.size(); got != 5 {
		t.Fatalf("size = %d, want 5", got)
	}
	r.reset()
	if got := r.size(); got != 0 {
		t.Fatalf("size after reset = %d, want 0", got)
	}
	if _, _, ok := r.takeEarliest(); ok {
		t.Fatalf("takeEarliest after reset reported an entry")
	}
}
