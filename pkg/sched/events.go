package sched

import (
	"sync"
	"time"
)

const defaultEventBuffer = 64

// EventType labels one scheduler decision about a due occurrence.
type EventType string

const (
	// EventExecuted: the action ran and returned nil.
	EventExecuted EventType = "task.executed"
	// EventFailed: the action ran and returned an error or panicked.
	EventFailed EventType = "task.failed"
	// EventSkipped: a deferred occurrence came due and was rescheduled
	// without running.
	EventSkipped EventType = "task.skipped"
	// EventDiscarded: a cancelled task came due and was dropped.
	EventDiscarded EventType = "task.discarded"
)

// Event is one entry in the scheduler's outcome stream. Every due occurrence
// produces exactly one event, whichever driver dispatched it.
type Event struct {
	Type   EventType
	TaskID uint64
	Kind   Kind
	Label  string

	// Due is the occurrence's due time, linear micros.
	Due int64
	// At is the wall instant the event was emitted, unix micros.
	At int64
	// Elapsed is how long the action ran; zero for skip/discard, and zero
	// under a virtual clock (the clock does not move during the body).
	Elapsed time.Duration

	// Err carries the failure message for EventFailed.
	Err string
}

// Events subscribes to the outcome stream. The channel is buffered; when a
// subscriber falls behind, events for it are dropped rather than stalling
// dispatch. The returned func unsubscribes and closes the channel; it is
// idempotent.
func (s *Scheduler) Events(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = defaultEventBuffer
	}
	ch := make(chan Event, buffer)

	s.subMu.Lock()
	s.subSeq++
	id := s.subSeq
	s.subs[id] = ch
	s.subMu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			s.subMu.Unlock()
			close(ch)
		})
	}
	return ch, unsub
}

func (s *Scheduler) emit(typ EventType, t Task, due int64, elapsed time.Duration, err error) {
	s.subMu.RLock()
	defer s.subMu.RUnlock()
	if len(s.subs) == 0 {
		return
	}

	ev := Event{
		Type:    typ,
		TaskID:  t.ID(),
		Kind:    t.Kind(),
		Label:   t.Label(),
		Due:     due,
		At:      s.clock.UnixMicros(),
		Elapsed: elapsed,
	}
	if err != nil {
		ev.Err = err.Error()
	}
	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
