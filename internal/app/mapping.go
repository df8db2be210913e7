package app

import (
	"fmt"
	"strings"
	"time"

	"schedkit/internal/config"
	"schedkit/internal/journal"
	"schedkit/internal/observability/pprof"
	logx "schedkit/pkg/logx"
	"schedkit/pkg/sched"
)

func mapLoggingConfig(lc config.LoggingConfig) logx.Config {
	return logx.Config{
		Level:   lc.Level,
		Console: lc.Console,
		File: logx.FileConfig{
			Enabled: lc.File.Enabled,
			Path:    lc.File.Path,
		},
	}
}

func mapSchedulerConfig(sc config.SchedulerConfig) (sched.Config, error) {
	idle, err := config.ParseDurationField("scheduler.idle_interval", sc.IdleInterval)
	if err != nil {
		return sched.Config{}, err
	}
	minSleep, err := config.ParseDurationField("scheduler.min_sleep", sc.MinSleep)
	if err != nil {
		return sched.Config{}, err
	}
	maxSleep, err := config.ParseDurationField("scheduler.max_sleep", sc.MaxSleep)
	if err != nil {
		return sched.Config{}, err
	}
	if sc.Workers < 0 {
		return sched.Config{}, fmt.Errorf("scheduler.workers must be >= 0")
	}
	return sched.Config{
		Workers:          sc.Workers,
		IdleInterval:     idle,
		MinSleep:         minSleep,
		MaxSleep:         maxSleep,
		FailureLogPerSec: sc.FailureLogPerSec,
		FailureLogBurst:  sc.FailureLogBurst,
	}, nil
}

func mapJournalConfig(jc *config.JournalConfig) (journal.Config, bool, error) {
	if jc == nil {
		return journal.Config{}, false, nil
	}
	driver := strings.ToLower(strings.TrimSpace(jc.Driver))
	if driver == "" || driver == "none" {
		return journal.Config{}, false, nil
	}

	path := strings.TrimSpace(jc.Path)
	busy := time.Duration(0)
	if driver == "sqlite" || driver == "sqlite3" {
		var err error
		busy, err = config.ParseDurationOrDefault("journal.busy_timeout", jc.BusyTimeout, time.Second)
		if err != nil {
			return journal.Config{}, false, err
		}
	}
	return journal.Config{
		Driver:      driver,
		Path:        path,
		Capacity:    jc.Capacity,
		BusyTimeout: busy,
	}, true, nil
}

func mapPprofConfig(pc config.PprofConfig) (pprof.Config, error) {
	readT, err := config.ParseDurationField("pprof.read_timeout", pc.ReadTimeout)
	if err != nil {
		return pprof.Config{}, err
	}
	writeT, err := config.ParseDurationField("pprof.write_timeout", pc.WriteTimeout)
	if err != nil {
		return pprof.Config{}, err
	}
	idleT, err := config.ParseDurationField("pprof.idle_timeout", pc.IdleTimeout)
	if err != nil {
		return pprof.Config{}, err
	}
	return pprof.Config{
		Enabled:              pc.Enabled,
		Addr:                 pc.Addr,
		Prefix:               pc.Prefix,
		Token:                pc.Token,
		AllowInsecure:        pc.AllowInsecure,
		ReadTimeout:          readT,
		WriteTimeout:         writeT,
		IdleTimeout:          idleT,
		MutexProfileFraction: pc.MutexProfileFraction,
		BlockProfileRate:     pc.BlockProfileRate,
		MemProfileRate:       pc.MemProfileRate,
	}, nil
}
