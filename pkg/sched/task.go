package sched

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"schedkit/pkg/clockx"
)

// Action is the work a task performs. The scheduler observes only the error:
// pool workers report it through the logger and event stream, the virtual
// driver returns it to the Advance caller.
type Action func(ctx context.Context) error

// Kind discriminates the two task variants.
type Kind uint8

const (
	KindOnce Kind = iota + 1
	KindEvery
)

func (k Kind) String() string {
	switch k {
	case KindOnce:
		return "once"
	case KindEvery:
		return "every"
	default:
		return "unknown"
	}
}

// Task ids are process-unique and strictly increasing. They exist only as a
// deterministic tie-break for equal due times and are never reused.
var idSeq atomic.Uint64

func nextID() uint64 { return idSeq.Add(1) }

type taskOpts struct {
	label      string
	startDelay time.Duration
}

// TaskOption customizes task creation.
type TaskOption func(*taskOpts)

// WithLabel tags the task in logs, events and snapshots.
func WithLabel(label string) TaskOption { return func(o *taskOpts) { o.label = label } }

// WithStartDelay delays a recurring task's first occurrence. Only Every
// consults it; the default of zero makes the first occurrence due
// immediately.
func WithStartDelay(d time.Duration) TaskOption { return func(o *taskOpts) { o.startDelay = d } }

func applyTaskOptions(opts []TaskOption) taskOpts {
	var o taskOpts
	for _, f := range opts {
		if f != nil {
			f(&o)
		}
	}
	return o
}

// Task is a handle to scheduled work. The implementations are *Once and
// *Every; the interface is sealed so the variant set is closed.
//
// The handle returned to the caller and the registry entry share the same
// heap object, so Cancel is visible to the executor without touching the
// registry: cancellation is checked lazily when the occurrence comes due.
type Task interface {
	ID() uint64
	Kind() Kind
	Label() string

	// Cancel marks the task cancelled. It is idempotent, callable from any
	// goroutine at any time, and a no-op after a Once has executed. The next
	// time the task comes due it is discarded without running.
	Cancel()
	Cancelled() bool

	invoke(ctx context.Context) error

	// occurrence decides one due occurrence: whether the action runs, and
	// where (if anywhere) the task is scheduled next.
	occurrence(due int64) (run bool, next int64, recur bool)
}

// Once fires a single time and has no successor.
type Once struct {
	id        uint64
	label     string
	action    Action
	cancelled atomic.Bool
}

func (t *Once) ID() uint64      { return t.id }
func (t *Once) Kind() Kind      { return KindOnce }
func (t *Once) Label() string   { return t.label }
func (t *Once) Cancel()         { t.cancelled.Store(true) }
func (t *Once) Cancelled() bool { return t.cancelled.Load() }

func (t *Once) invoke(ctx context.Context) error { return t.action(ctx) }

func (t *Once) occurrence(int64) (bool, int64, bool) { return true, 0, false }

// Every recurs at a fixed interval and supports deferring its next
// occurrence. A deferral never reschedules the registry entry in place (the
// entry's ordering key is immutable); it stages a due time that the next
// occurrence consults.
type Every struct {
	id       uint64
	label    string
	action   Action
	interval int64 // micros, >= 1
	clock    clockx.Clock

	cancelled atomic.Bool

	mu          sync.Mutex
	deferredDue int64
	hasDeferred bool
}

func (t *Every) ID() uint64      { return t.id }
func (t *Every) Kind() Kind      { return KindEvery }
func (t *Every) Label() string   { return t.label }
func (t *Every) Cancel()         { t.cancelled.Store(true) }
func (t *Every) Cancelled() bool { return t.cancelled.Load() }

// Interval returns the recurrence period.
func (t *Every) Interval() time.Duration { return time.Duration(t.interval) * time.Microsecond }

// Defer moves the task's next occurrence to now+delta on the linear
// timescale. Negative deltas accelerate it. If the deferral is staged when
// an occurrence comes due, that occurrence is skipped (its action does not
// run) and the task is rescheduled to the deferred instant instead. Repeated
// calls overwrite each other; the last one wins.
func (t *Every) Defer(delta time.Duration) { t.DeferMicros(delta.Microseconds()) }

// DeferMicros is Defer with a microsecond delta.
func (t *Every) DeferMicros(deltaMicros int64) {
	due := t.clock.LinearMicros() + deltaMicros
	t.mu.Lock()
	t.deferredDue = due
	t.hasDeferred = true
	t.mu.Unlock()
}

func (t *Every) takeDeferred() (int64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.hasDeferred {
		return 0, false
	}
	t.hasDeferred = false
	return t.deferredDue, true
}

func (t *Every) invoke(ctx context.Context) error { return t.action(ctx) }

// occurrence takes the deferral decision atomically before the action could
// start, so a Defer landing mid-run stages for the following occurrence.
func (t *Every) occurrence(due int64) (bool, int64, bool) {
	if next, ok := t.takeDeferred(); ok {
		return false, next, true
	}
	return true, due + t.interval, true
}
