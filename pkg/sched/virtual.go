package sched

import (
	"context"
	"fmt"
	"sync/atomic"

	"schedkit/pkg/clockx"
)

// VirtualDriver replays a scheduler's registry under virtual time: Advance
// executes every due occurrence inline, on the caller's goroutine, with the
// clock landing exactly on each due instant. It replaces the worker pool; a
// run with both at once is misuse and Advance refuses it.
//
// The driver is single-threaded by contract. Callers drive it from one
// goroutine and do not race SetTime/ResetTime against Advance.
type VirtualDriver struct {
	s     *Scheduler
	clock *clockx.Virtual
}

// NewVirtualDriver wraps s, whose clock must be a *clockx.Virtual.
func NewVirtualDriver(s *Scheduler) (*VirtualDriver, error) {
	vc, ok := s.clock.(*clockx.Virtual)
	if !ok {
		return nil, ErrVirtualClockRequired
	}
	return &VirtualDriver{s: s, clock: vc}, nil
}

// Now returns the virtual clock in seconds.
func (d *VirtualDriver) Now() float64 { return clockx.MicrosToSeconds(d.clock.Micros()) }

// SetTime moves the clock to the given second without executing anything.
func (d *VirtualDriver) SetTime(seconds float64) {
	d.clock.Set(clockx.SecondsToMicros(seconds))
}

// SetTimeMicros moves the clock to the given microsecond without executing
// anything.
func (d *VirtualDriver) SetTimeMicros(us int64) { d.clock.Set(us) }

// ResetTime rewinds the clock to zero and clears every pending task,
// executing nothing.
func (d *VirtualDriver) ResetTime() {
	d.s.regMu.Lock()
	d.s.reg.reset()
	d.s.regMu.Unlock()
	d.clock.Set(0)
}

// Advance moves virtual time forward to targetSeconds, executing every
// occurrence that comes due on the way, and returns the clock after the
// move. See AdvanceMicros for the exact semantics.
func (d *VirtualDriver) Advance(ctx context.Context, targetSeconds float64) (float64, error) {
	us, err := d.AdvanceMicros(ctx, clockx.SecondsToMicros(targetSeconds))
	return clockx.MicrosToSeconds(us), err
}

// AdvanceMicros advances the clock to target microseconds. A target at or
// behind the clock is a no-op. Otherwise occurrences are taken in (due, id)
// order while due <= target; for each, the clock moves to exactly its due
// time (never backwards), the occurrence is settled inline, and for an Every
// the successor is enqueued before the body runs, so a failing body leaves
// the task scheduled. The first action error or panic stops the advance and
// is returned with the clock and registry left as they stand. When nothing
// due remains, the clock lands exactly on target.
func (d *VirtualDriver) AdvanceMicros(ctx context.Context, target int64) (int64, error) {
	if d.s.Running() {
		return d.clock.Micros(), ErrPoolRunning
	}
	now := d.clock.Micros()
	if target <= now {
		return now, nil
	}

	for {
		if err := ctx.Err(); err != nil {
			return d.clock.Micros(), err
		}

		d.s.regMu.Lock()
		due, ok := d.s.reg.peekEarliest()
		if !ok || due > target {
			d.s.regMu.Unlock()
			break
		}
		t, due, _ := d.s.reg.takeEarliest()
		d.s.regMu.Unlock()

		if due > d.clock.Micros() {
			d.clock.Set(due)
		}
		if err := d.dispatch(ctx, t, due); err != nil {
			return d.clock.Micros(), err
		}
	}

	d.clock.Set(target)
	return target, nil
}

func (d *VirtualDriver) dispatch(ctx context.Context, t Task, due int64) error {
	s := d.s

	if t.Cancelled() {
		atomic.AddUint64(&s.discarded, 1)
		s.emit(EventDiscarded, t, due, 0, nil)
		return nil
	}

	run, next, recur := t.occurrence(due)
	if recur {
		s.insert(next, t)
	}
	if !run {
		atomic.AddUint64(&s.skipped, 1)
		s.emit(EventSkipped, t, due, 0, nil)
		return nil
	}

	if err := s.invoke(ctx, t); err != nil {
		atomic.AddUint64(&s.failed, 1)
		s.emit(EventFailed, t, due, 0, err)
		return fmt.Errorf("task %d: %w", t.ID(), err)
	}
	atomic.AddUint64(&s.executed, 1)
	s.emit(EventExecuted, t, due, 0, nil)
	return nil
}
