package journal

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	logx "schedkit/pkg/logx"
	"schedkit/pkg/sched"
)

const (
	feedBuffer        = 256
	warnThrottleEvery = 5 * time.Second
)

// Service pumps scheduler events into a Store. With no store attached
// (journal disabled) every method is a cheap no-op.
type Service struct {
	mu sync.Mutex

	log   logx.Logger
	store Store
	sched *sched.Scheduler

	stopCh    chan struct{}
	stopDone  chan struct{}
	runCancel context.CancelFunc
	wg        sync.WaitGroup

	appended   uint64
	failed     uint64
	lastWarnAt int64
}

func NewService(store Store, s *sched.Scheduler, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{log: log, store: store, sched: s}
}

// Enabled reports whether a store is attached.
func (s *Service) Enabled() bool { return s != nil && s.store != nil }

// Recent reads back the newest retained entries, oldest first.
func (s *Service) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if !s.Enabled() {
		return nil, ErrDisabled
	}
	return s.store.Recent(ctx, limit)
}

func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	if !s.Enabled() {
		return
	}

	s.mu.Lock()
	if s.stopCh != nil {
		done := s.stopDone
		s.mu.Unlock()
		if done == nil {
			// Already running.
			return
		}
		select {
		case <-done:
		case <-ctx.Done():
			return
		}
		s.mu.Lock()
		if s.stopCh != nil {
			s.mu.Unlock()
			return
		}
	}

	s.stopCh = make(chan struct{})
	s.stopDone = nil
	runCtx, cancel := context.WithCancel(context.Background())
	s.runCancel = cancel
	stopCh := s.stopCh

	events, unsub := s.sched.Events(feedBuffer)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer unsub()
		s.feed(runCtx, stopCh, events)
	}()
	s.mu.Unlock()

	s.log.Info("journal started")
}

// Stop detaches from the event stream. Events already buffered are drained
// into the store before the feeder exits; ctx bounds how long the caller
// waits for that.
func (s *Service) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.stopCh == nil {
		s.mu.Unlock()
		return
	}
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}

	done := make(chan struct{})
	s.stopDone = done
	close(s.stopCh)
	cancel := s.runCancel
	s.runCancel = nil
	s.mu.Unlock()

	go func() {
		s.wg.Wait()
		if cancel != nil {
			cancel()
		}
		s.mu.Lock()
		s.stopCh = nil
		s.stopDone = nil
		s.mu.Unlock()
		close(done)
	}()

	select {
	case <-done:
		s.log.Info("journal stopped")
	case <-ctx.Done():
		if cancel != nil {
			cancel()
		}
		s.log.Warn("journal stop timed out", logx.Err(ctx.Err()))
	}
}

func (s *Service) feed(ctx context.Context, stopCh <-chan struct{}, events <-chan sched.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			// Drain what is already buffered, then exit.
			for {
				select {
				case ev := <-events:
					s.append(ctx, ev)
				default:
					return
				}
			}
		case ev := <-events:
			s.append(ctx, ev)
		}
	}
}

func (s *Service) append(ctx context.Context, ev sched.Event) {
	actx, cancel := context.WithTimeout(ctx, 5*time.Second)
	err := s.store.Append(actx, entryFromEvent(ev))
	cancel()
	if err != nil {
		atomic.AddUint64(&s.failed, 1)
		if s.shouldWarn(time.Now()) {
			s.log.Warn("journal append failed",
				logx.Err(err),
				logx.String("type", string(ev.Type)),
				logx.Uint64("failed", atomic.LoadUint64(&s.failed)))
		}
		return
	}
	atomic.AddUint64(&s.appended, 1)
}

func (s *Service) shouldWarn(now time.Time) bool {
	prev := atomic.LoadInt64(&s.lastWarnAt)
	n := now.UnixNano()
	if prev != 0 && (n-prev) < int64(warnThrottleEvery) {
		return false
	}
	return atomic.CompareAndSwapInt64(&s.lastWarnAt, prev, n)
}

func entryFromEvent(ev sched.Event) Entry {
	return Entry{
		At:            time.UnixMicro(ev.At),
		Type:          string(ev.Type),
		TaskID:        ev.TaskID,
		Kind:          ev.Kind.String(),
		Label:         ev.Label,
		DueMicros:     ev.Due,
		ElapsedMicros: ev.Elapsed.Microseconds(),
		Err:           ev.Err,
	}
}

// ServiceSnapshot is the journal's diagnostic view.
type ServiceSnapshot struct {
	Enabled  bool   `json:"enabled"`
	Appended uint64 `json:"appended"`
	Failed   uint64 `json:"failed"`
}

func (s *Service) Snapshot() ServiceSnapshot {
	return ServiceSnapshot{
		Enabled:  s.Enabled(),
		Appended: atomic.LoadUint64(&s.appended),
		Failed:   atomic.LoadUint64(&s.failed),
	}
}
