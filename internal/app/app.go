package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"schedkit/internal/config"
	"schedkit/internal/journal"
	"schedkit/internal/observability/pprof"
	"schedkit/internal/runtime/supervisor"
	logx "schedkit/pkg/logx"
	"schedkit/pkg/sched"
	"schedkit/pkg/systemd"
)

type App struct {
	cfgPath string

	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service

	sched *sched.Scheduler
	store journal.Store
	jrnl  *journal.Service
	pprof *pprof.Service
	jobs  *JobManager

	notify   bool
	watchdog *sched.Every
}

func New(cfgPath string) (*App, error) {
	cfgm := config.New(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLoggingConfig(cfg.Logging))
	log = log.With(logx.String("comp", "app"))

	schedCfg, err := mapSchedulerConfig(cfg.Scheduler)
	if err != nil {
		return nil, err
	}
	sc := sched.New(schedCfg, log.With(logx.String("comp", "sched")))

	// Journal (optional)
	var store journal.Store
	if jc, enabled, err := mapJournalConfig(cfg.Journal); err != nil {
		return nil, err
	} else if enabled {
		st, err := journal.Open(jc, log.With(logx.String("comp", "journal")))
		if err != nil {
			return nil, err
		}
		store = st
		log.Info("journal enabled", logx.String("driver", jc.Driver))
	}
	jrnl := journal.NewService(store, sc, log.With(logx.String("comp", "journal")))

	// pprof service mapping (optional)
	pprofCfg, err := mapPprofConfig(cfg.Pprof)
	if err != nil {
		return nil, err
	}
	pprofSvc := pprof.New(pprofCfg, log.With(logx.String("comp", "pprof")))

	jobs := NewJobManager(sc, log.With(logx.String("comp", "jobs")))

	return &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		sched:   sc,
		store:   store,
		jrnl:    jrnl,
		pprof:   pprofSvc,
		jobs:    jobs,
		notify:  cfg.Systemd.Notify,
	}, nil
}

// Journal exposes the journal service for operational queries.
func (a *App) Journal() *journal.Service { return a.jrnl }

// Scheduler exposes the scheduler for snapshots and ad-hoc tasks.
func (a *App) Scheduler() *sched.Scheduler { return a.sched }

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	// transactional config reload: validate before commit/publish
	if a.cfgm != nil {
		a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
		a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
			return cfg.Validate()
		})
	}

	// The journal and scheduler run on background-rooted contexts: canceling
	// the supervisor must not abort in-flight actions, only Stop winds them
	// down (with its own deadline).
	if a.jrnl.Enabled() {
		a.jrnl.Start(context.Background())
	}
	a.sched.Start(context.Background())

	cfg := a.cfgm.Get()
	if err := a.jobs.Apply(cfg.Jobs); err != nil {
		return err
	}

	if a.pprof != nil && a.pprof.Enabled() {
		a.pprof.Start(a.sup.Context())
	}

	if a.notify {
		if _, err := systemd.NotifyReady(); err != nil {
			a.log.Warn("systemd ready notification failed", logx.Err(err))
		}
		if err := a.startWatchdog(); err != nil {
			a.log.Warn("systemd watchdog setup failed", logx.Err(err))
		}
	}

	// hot reload config fan-out
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config in the channel.
			drain:
				for {
					select {
					case newer, ok := <-sub:
						if ok && newer != nil {
							newCfg = newer
						}
						if !ok {
							break drain
						}
					default:
						break drain
					}
				}
				a.applyReload(c, lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started")
	return nil
}

// startWatchdog schedules watchdog pings when systemd asked for them. Pings
// go through the scheduler itself, at half the announced interval.
func (a *App) startWatchdog() error {
	interval, err := systemd.WatchdogInterval()
	if err != nil {
		return err
	}
	if interval <= 0 {
		return nil
	}
	task, err := a.sched.Every(interval/2, func(context.Context) error {
		_, err := systemd.NotifyWatchdog()
		return err
	}, sched.WithLabel("systemd:watchdog"))
	if err != nil {
		return err
	}
	a.watchdog = task
	a.log.Info("systemd watchdog enabled", logx.Duration("interval", interval/2))
	return nil
}

func (a *App) applyReload(ctx context.Context, prev, next *config.Config) {
	sections, attrs, changedJobs := config.SummarizeChange(prev, next)
	if len(sections) > 0 {
		fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
		a.log.Debug("config change summary", fields...)
		if len(changedJobs) > 0 {
			a.log.Debug("job config changes detected", logx.Any("jobs", changedJobs))
		}
	} else {
		a.log.Debug("config reload received, but no effective changes detected")
	}

	for _, s := range sections {
		if s == "journal" {
			a.log.Warn("journal config changed; restart required for changes to take effect")
		}
		if s == "systemd" {
			a.log.Warn("systemd config changed; restart required for changes to take effect")
		}
	}

	// apply logging updates
	a.logs.Apply(mapLoggingConfig(next.Logging))

	// apply scheduler updates (live)
	if scfg, err := mapSchedulerConfig(next.Scheduler); err != nil {
		a.log.Warn("invalid scheduler config; keeping previous", logx.Err(err))
	} else {
		a.sched.Apply(ctx, scfg)
	}

	// reconcile jobs only when their section changed; unchanged jobs keep
	// their place in the recurrence timeline
	for _, s := range sections {
		if s == "jobs" {
			if err := a.jobs.Apply(next.Jobs); err != nil {
				a.log.Warn("job reconcile incomplete", logx.Err(err))
			}
			break
		}
	}

	// apply pprof updates (live)
	if a.pprof != nil {
		if ppc, err := mapPprofConfig(next.Pprof); err != nil {
			a.log.Warn("invalid pprof config; keeping previous", logx.Err(err))
		} else {
			a.pprof.Reconfigure(ctx, ppc)
		}
	}

	if len(sections) > 0 {
		fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
		a.log.Info("config reloaded", fields...)
	} else {
		a.log.Info("config reloaded (no changes)")
	}
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	if a.notify {
		if _, err := systemd.NotifyStopping(); err != nil {
			a.log.Warn("systemd stopping notification failed", logx.Err(err))
		}
	}
	if a.watchdog != nil {
		a.watchdog.Cancel()
	}

	// First, cancel the app run context so background loops start unwinding immediately.
	a.sup.Cancel()

	// Helper: run a shutdown step with an upper bound so one component can't stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		a.log.Debug("stop step begin", logx.String("name", name), logx.Duration("max", max))

		stepCtx := ctx
		var cancel context.CancelFunc
		if max > 0 {
			// respect the caller's deadline; never extend it
			if dl, ok := ctx.Deadline(); ok {
				rem := time.Until(dl)
				if rem <= 0 {
					max = 0
				} else if rem < max {
					max = rem
				}
			}
			if max > 0 {
				stepCtx, cancel = context.WithTimeout(ctx, max)
				defer cancel()
			}
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.String("err", err.Error()))
			}
			took := time.Since(start)
			if took >= 500*time.Millisecond {
				a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
			} else {
				a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", took))
			}
		case <-stepCtx.Done():
			// Contract: fn MUST honor stepCtx and return promptly. If it doesn't, log a leak signal.
			elapsed := time.Since(start)
			a.log.Warn(
				"stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.String("err", stepCtx.Err().Error()),
				logx.Duration("elapsed", elapsed),
			)
			// Leak logging: observe when/if the step eventually finishes.
			go func() {
				err := <-done
				took := time.Since(start)
				if err != nil {
					a.log.Warn("stop step finished after deadline", logx.String("name", name), logx.String("err", err.Error()), logx.Duration("took", took))
				} else {
					a.log.Info("stop step finished after deadline", logx.String("name", name), logx.Duration("took", took))
				}
			}()
		}
	}

	// Scheduler first so no new occurrences fire, then the journal so the
	// final events drain into the store before it closes.
	step("scheduler", 3*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("journal", 2*time.Second, func(c context.Context) error { a.jrnl.Stop(c); return nil })
	step("pprof", 1*time.Second, func(c context.Context) error {
		if a.pprof != nil {
			a.pprof.Stop(c)
		}
		return nil
	})
	step("store", 1*time.Second, func(c context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})

	// Finally, wait for supervised goroutines (config watch/reload, etc.)
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	if a.logs != nil {
		a.logs.Close()
	}
	return nil
}
