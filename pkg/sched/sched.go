package sched

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"schedkit/pkg/clockx"
	logx "schedkit/pkg/logx"
)

// Config tunes pool execution. The zero value is usable; withDefaults fills
// the gaps.
type Config struct {
	// Workers is the pool size.
	Workers int `json:"workers"`

	// IdleInterval bounds how long a worker sleeps when the registry is
	// empty. A wake signal cuts any sleep short.
	IdleInterval time.Duration `json:"idle_interval"`

	// MinSleep and MaxSleep clamp the wait before a not-yet-due entry.
	MinSleep time.Duration `json:"min_sleep"`
	MaxSleep time.Duration `json:"max_sleep"`

	// FailureLogPerSec and FailureLogBurst throttle action-failure logging.
	// Suppressed reports are counted, not lost silently.
	FailureLogPerSec float64 `json:"failure_log_per_sec"`
	FailureLogBurst  int     `json:"failure_log_burst"`
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.IdleInterval <= 0 {
		c.IdleInterval = 5 * time.Millisecond
	}
	if c.MinSleep <= 0 {
		c.MinSleep = time.Millisecond
	}
	if c.MaxSleep <= 0 {
		c.MaxSleep = time.Second
	}
	if c.MaxSleep < c.MinSleep {
		c.MaxSleep = c.MinSleep
	}
	if c.FailureLogPerSec <= 0 {
		c.FailureLogPerSec = 1
	}
	if c.FailureLogBurst <= 0 {
		c.FailureLogBurst = 5
	}
	return c
}

// Snapshot is a point-in-time view for diagnostics.
type Snapshot struct {
	Running        bool   `json:"running"`
	Workers        int    `json:"workers"`
	Pending        int    `json:"pending"`
	Retains        int    `json:"retains"`
	Executed       uint64 `json:"executed"`
	Failed         uint64 `json:"failed"`
	Skipped        uint64 `json:"skipped"`
	Discarded      uint64 `json:"discarded"`
	SuppressedLogs uint64 `json:"suppressed_logs"`
	Subscribers    int    `json:"subscribers"`
}

// Scheduler owns a time-ordered task registry and dispatches due occurrences,
// either through its worker pool (Start/Stop/Retain) or through a
// VirtualDriver. Instances are independent; nothing is process-global except
// task ids.
type Scheduler struct {
	mu  sync.Mutex
	cfg Config

	log   logx.Logger
	clock clockx.Clock

	regMu sync.Mutex
	reg   *registry

	// wake carries at most one pending signal; public scheduling calls post
	// to it so an idle worker re-checks the registry immediately.
	wake chan struct{}

	stopCh    chan struct{}
	stopDone  chan struct{}
	runCancel context.CancelFunc
	rootCtx   context.Context
	workerWG  sync.WaitGroup

	retainMu sync.Mutex
	retains  int

	limiter *rate.Limiter

	subMu  sync.RWMutex
	subs   map[uint64]chan Event
	subSeq uint64

	executed       uint64
	failed         uint64
	skipped        uint64
	discarded      uint64
	suppressedLogs uint64
}

// Option customizes Scheduler construction.
type Option func(*Scheduler)

// WithClock injects the time source. Virtual-time callers pass a
// *clockx.Virtual here and drive it with a VirtualDriver.
func WithClock(c clockx.Clock) Option {
	return func(s *Scheduler) {
		if c != nil {
			s.clock = c
		}
	}
}

func New(cfg Config, log logx.Logger, opts ...Option) *Scheduler {
	cfg = cfg.withDefaults()
	s := &Scheduler{
		cfg:     cfg,
		log:     log,
		reg:     newRegistry(),
		wake:    make(chan struct{}, 1),
		subs:    make(map[uint64]chan Event),
		limiter: rate.NewLimiter(rate.Limit(cfg.FailureLogPerSec), cfg.FailureLogBurst),
	}
	for _, o := range opts {
		if o != nil {
			o(s)
		}
	}
	if s.clock == nil {
		s.clock = clockx.NewSystem()
	}
	return s
}

// Clock returns the scheduler's time source.
func (s *Scheduler) Clock() clockx.Clock { return s.clock }

// ---- Scheduling surface ----

// After schedules action to run once, delay from now on the linear
// timescale.
func (s *Scheduler) After(delay time.Duration, action Action, opts ...TaskOption) (*Once, error) {
	if action == nil {
		return nil, ErrNilAction
	}
	if delay < 0 {
		return nil, ErrNegativeDelay
	}
	return s.once(s.clock.LinearMicros()+delay.Microseconds(), action, opts)
}

// AtUnixSeconds schedules action to run once at the given wall instant
// (float seconds since the Unix epoch). Past instants are due immediately.
func (s *Scheduler) AtUnixSeconds(sec float64, action Action, opts ...TaskOption) (*Once, error) {
	return s.AtUnixMicros(clockx.SecondsToMicros(sec), action, opts...)
}

// AtUnixMicros schedules action to run once at the given wall instant
// (microseconds since the Unix epoch). Past instants are due immediately.
func (s *Scheduler) AtUnixMicros(us int64, action Action, opts ...TaskOption) (*Once, error) {
	if action == nil {
		return nil, ErrNilAction
	}
	return s.once(s.clock.UnixToLinearMicros(us), action, opts)
}

// AtLinearMicros schedules action to run once at the given linear instant.
// Past instants are due immediately.
func (s *Scheduler) AtLinearMicros(us int64, action Action, opts ...TaskOption) (*Once, error) {
	if action == nil {
		return nil, ErrNilAction
	}
	return s.once(us, action, opts)
}

func (s *Scheduler) once(due int64, action Action, opts []TaskOption) (*Once, error) {
	o := applyTaskOptions(opts)
	t := &Once{id: nextID(), label: o.label, action: action}
	s.schedule(due, t)
	return t, nil
}

// Every schedules action to run repeatedly at the given interval. The first
// occurrence is due immediately unless WithStartDelay moves it. The interval
// must be at least one microsecond.
func (s *Scheduler) Every(interval time.Duration, action Action, opts ...TaskOption) (*Every, error) {
	if action == nil {
		return nil, ErrNilAction
	}
	if interval.Microseconds() <= 0 {
		return nil, ErrNonPositiveInterval
	}
	o := applyTaskOptions(opts)
	if o.startDelay < 0 {
		return nil, ErrNegativeDelay
	}
	t := &Every{
		id:       nextID(),
		label:    o.label,
		action:   action,
		interval: interval.Microseconds(),
		clock:    s.clock,
	}
	s.schedule(s.clock.LinearMicros()+o.startDelay.Microseconds(), t)
	return t, nil
}

// schedule is the loud insert used by the public calls above: the new entry
// may be earlier than whatever a worker is sleeping on, so one idle worker
// is woken.
func (s *Scheduler) schedule(due int64, t Task) {
	s.regMu.Lock()
	s.reg.insert(due, t)
	s.regMu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// insert is the quiet path for successors and deferral reschedules. Those
// entries are never earlier than the occurrence a worker just handled, so no
// wake is needed.
func (s *Scheduler) insert(due int64, t Task) {
	s.regMu.Lock()
	s.reg.insert(due, t)
	s.regMu.Unlock()
}

// ---- Pool lifecycle ----

// Running reports whether the worker pool is up and not stopping.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopCh != nil && s.stopDone == nil
}

// Start launches the worker pool. It is idempotent; if a Stop is still in
// flight it waits for it (bounded by ctx) and then starts fresh.
func (s *Scheduler) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
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

	cfg := s.cfg
	s.stopCh = make(chan struct{})
	s.stopDone = nil
	s.rootCtx = ctx
	runCtx, cancel := context.WithCancel(ctx)
	s.runCancel = cancel
	stopCh := s.stopCh

	s.workerWG.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		idx := i
		go func() {
			defer s.workerWG.Done()
			defer func() {
				if r := recover(); r != nil {
					s.log.Error("panic in scheduler worker",
						logx.Int("worker", idx),
						logx.Any("panic", r),
						logx.Stack(stack()))
				}
			}()
			s.log.Debug("worker started", logx.Int("worker", idx))
			s.worker(runCtx, cfg, stopCh)
			s.log.Debug("worker stopped", logx.Int("worker", idx))
		}()
	}
	s.mu.Unlock()

	if !s.log.IsZero() {
		s.log.Info("scheduler started", logx.Int("workers", cfg.Workers))
	}
}

// Stop shuts the pool down: no new occurrence starts, and in-flight actions
// are waited for. If ctx expires first, their contexts are cancelled and the
// wind-down continues in the background. Idempotent.
func (s *Scheduler) Stop(ctx context.Context) {
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
		s.workerWG.Wait()
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
		if !s.log.IsZero() {
			s.log.Info("scheduler stopped")
		}
	case <-ctx.Done():
		// Give up on graceful: cancel in-flight actions, let the wind-down
		// finish in the background.
		if cancel != nil {
			cancel()
		}
		if !s.log.IsZero() {
			s.log.Warn("scheduler stop timed out", logx.Err(ctx.Err()))
		}
	}
}

// Retain ensures the pool runs while at least one retain is held: the pool
// starts on the 0→1 transition and stops on 1→0. The returned release is
// idempotent.
func (s *Scheduler) Retain() func() {
	s.retainMu.Lock()
	s.retains++
	if s.retains == 1 {
		s.Start(context.Background())
	}
	s.retainMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.retainMu.Lock()
			s.retains--
			if s.retains == 0 {
				s.Stop(context.Background())
			}
			s.retainMu.Unlock()
		})
	}
}

// Apply reconfigures the scheduler. The failure-log throttle updates in
// place; if execution settings changed while the pool runs, the workers are
// restarted (the registry is untouched, so no task is lost). ctx bounds only
// the stop wait of that restart: the fresh workers keep the context the pool
// was originally started under.
func (s *Scheduler) Apply(ctx context.Context, cfg Config) {
	cfg = cfg.withDefaults()
	s.mu.Lock()
	prev := s.cfg
	s.cfg = cfg
	running := s.stopCh != nil && s.stopDone == nil
	root := s.rootCtx
	s.mu.Unlock()

	s.limiter.SetLimit(rate.Limit(cfg.FailureLogPerSec))
	s.limiter.SetBurst(cfg.FailureLogBurst)

	if !running {
		return
	}
	if prev.Workers != cfg.Workers ||
		prev.IdleInterval != cfg.IdleInterval ||
		prev.MinSleep != cfg.MinSleep ||
		prev.MaxSleep != cfg.MaxSleep {
		if root == nil {
			root = context.Background()
		}
		s.Stop(ctx)
		s.Start(root)
	}
}

func (s *Scheduler) Snapshot() Snapshot {
	s.mu.Lock()
	cfg := s.cfg
	running := s.stopCh != nil && s.stopDone == nil
	s.mu.Unlock()

	s.regMu.Lock()
	pending := s.reg.size()
	s.regMu.Unlock()

	s.retainMu.Lock()
	retains := s.retains
	s.retainMu.Unlock()

	s.subMu.RLock()
	subscribers := len(s.subs)
	s.subMu.RUnlock()

	return Snapshot{
		Running:        running,
		Workers:        cfg.Workers,
		Pending:        pending,
		Retains:        retains,
		Executed:       atomic.LoadUint64(&s.executed),
		Failed:         atomic.LoadUint64(&s.failed),
		Skipped:        atomic.LoadUint64(&s.skipped),
		Discarded:      atomic.LoadUint64(&s.discarded),
		SuppressedLogs: atomic.LoadUint64(&s.suppressedLogs),
		Subscribers:    subscribers,
	}
}
