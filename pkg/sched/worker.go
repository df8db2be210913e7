package sched

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	logx "schedkit/pkg/logx"
)

func stack() string { return string(debug.Stack()) }

func (s *Scheduler) worker(ctx context.Context, cfg Config, stopCh <-chan struct{}) {
	for {
		// Fast-exit check so a closed stopCh wins over due work.
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		default:
		}

		s.regMu.Lock()
		t, due, ok := s.reg.takeEarliest()
		if !ok {
			s.regMu.Unlock()
			if !s.sleep(ctx, stopCh, cfg.IdleInterval) {
				return
			}
			continue
		}
		now := s.clock.LinearMicros()
		if due > now {
			// Not due yet: put it back unchanged and sleep toward it. The
			// putback is quiet; we are the worker that would be woken.
			s.reg.insert(due, t)
			s.regMu.Unlock()

			wait := time.Duration(due-now) * time.Microsecond
			if wait < cfg.MinSleep {
				wait = cfg.MinSleep
			}
			if wait > cfg.MaxSleep {
				wait = cfg.MaxSleep
			}
			if !s.sleep(ctx, stopCh, wait) {
				return
			}
			continue
		}
		s.regMu.Unlock()

		s.runOccurrence(ctx, t, due)
	}
}

// sleep waits for d, a wake signal, or shutdown. It reports false when the
// worker should exit.
func (s *Scheduler) sleep(ctx context.Context, stopCh <-chan struct{}, d time.Duration) bool {
	tmr := time.NewTimer(d)
	defer tmr.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-stopCh:
		return false
	case <-s.wake:
		return true
	case <-tmr.C:
		return true
	}
}

// runOccurrence settles one due occurrence. Decision order: cancellation
// discards (no action, no successor); a staged deferral skips the run and
// reschedules; otherwise the action runs and an Every's successor is
// enqueued afterwards, whatever the action returned.
func (s *Scheduler) runOccurrence(ctx context.Context, t Task, due int64) {
	if t.Cancelled() {
		atomic.AddUint64(&s.discarded, 1)
		s.emit(EventDiscarded, t, due, 0, nil)
		return
	}

	run, next, recur := t.occurrence(due)
	if !run {
		s.insert(next, t)
		atomic.AddUint64(&s.skipped, 1)
		s.emit(EventSkipped, t, due, 0, nil)
		return
	}

	start := s.clock.LinearMicros()
	err := s.invoke(ctx, t)
	elapsed := time.Duration(s.clock.LinearMicros()-start) * time.Microsecond

	if err != nil {
		atomic.AddUint64(&s.failed, 1)
		s.reportFailure(t, due, err)
		s.emit(EventFailed, t, due, elapsed, err)
	} else {
		atomic.AddUint64(&s.executed, 1)
		s.emit(EventExecuted, t, due, elapsed, nil)
	}

	if recur {
		s.insert(next, t)
	}
}

// invoke runs the action with panic containment: a panicking task is a
// failed task, never a dead worker.
func (s *Scheduler) invoke(ctx context.Context, t Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panic: %v", r)
			if !s.log.IsZero() {
				s.log.Error("panic in task action",
					logx.Uint64("task_id", t.ID()),
					logx.String("task", t.Label()),
					logx.Any("panic", r),
					logx.Stack(stack()))
			}
		}
	}()
	return t.invoke(ctx)
}

func (s *Scheduler) reportFailure(t Task, due int64, err error) {
	if s.log.IsZero() {
		return
	}
	if !s.limiter.Allow() {
		atomic.AddUint64(&s.suppressedLogs, 1)
		return
	}

	fields := []logx.Field{
		logx.Uint64("task_id", t.ID()),
		logx.String("kind", t.Kind().String()),
		logx.Int64("due_us", due),
		logx.Err(err),
	}
	if lbl := t.Label(); lbl != "" {
		fields = append(fields, logx.String("task", lbl))
	}
	if n := atomic.LoadUint64(&s.suppressedLogs); n > 0 {
		fields = append(fields, logx.Uint64("suppressed", n))
	}
	s.log.Warn("task action failed", fields...)
}
