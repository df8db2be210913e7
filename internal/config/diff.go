package config

import (
	"reflect"
	"sort"
	"strings"

	logx "schedkit/pkg/logx"
)

// SummarizeChange returns (1) a compact list of changed sections, (2) safe
// structured attrs for logging (never includes secrets like the pprof token),
// and (3) the names of jobs that were added, removed, or modified.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field, []string) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 16)

	// Logging
	if oldCfg.Logging.Level != newCfg.Logging.Level ||
		oldCfg.Logging.Console != newCfg.Logging.Console ||
		oldCfg.Logging.File.Enabled != newCfg.Logging.File.Enabled ||
		strings.TrimSpace(oldCfg.Logging.File.Path) != strings.TrimSpace(newCfg.Logging.File.Path) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	// Scheduler (worker pool)
	if oldCfg.Scheduler.Workers != newCfg.Scheduler.Workers ||
		strings.TrimSpace(oldCfg.Scheduler.IdleInterval) != strings.TrimSpace(newCfg.Scheduler.IdleInterval) ||
		strings.TrimSpace(oldCfg.Scheduler.MinSleep) != strings.TrimSpace(newCfg.Scheduler.MinSleep) ||
		strings.TrimSpace(oldCfg.Scheduler.MaxSleep) != strings.TrimSpace(newCfg.Scheduler.MaxSleep) ||
		oldCfg.Scheduler.FailureLogPerSec != newCfg.Scheduler.FailureLogPerSec ||
		oldCfg.Scheduler.FailureLogBurst != newCfg.Scheduler.FailureLogBurst {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.Int("scheduler.workers", newCfg.Scheduler.Workers),
			logx.String("scheduler.idle_interval", strings.TrimSpace(newCfg.Scheduler.IdleInterval)),
			logx.String("scheduler.min_sleep", strings.TrimSpace(newCfg.Scheduler.MinSleep)),
			logx.String("scheduler.max_sleep", strings.TrimSpace(newCfg.Scheduler.MaxSleep)),
		)
	}

	// Journal (persistence). Nil means disabled.
	oldJ := oldCfg.Journal
	newJ := newCfg.Journal
	var oDriver, nDriver, oBusy, nBusy string
	var oPathSet, nPathSet bool
	var oCap, nCap int
	if oldJ != nil {
		oDriver = strings.TrimSpace(oldJ.Driver)
		oBusy = strings.TrimSpace(oldJ.BusyTimeout)
		oPathSet = strings.TrimSpace(oldJ.Path) != ""
		oCap = oldJ.Capacity
	}
	if newJ != nil {
		nDriver = strings.TrimSpace(newJ.Driver)
		nBusy = strings.TrimSpace(newJ.BusyTimeout)
		nPathSet = strings.TrimSpace(newJ.Path) != ""
		nCap = newJ.Capacity
	}
	if oDriver != nDriver || oBusy != nBusy || oPathSet != nPathSet || oCap != nCap {
		changed = append(changed, "journal")
		attrs = append(attrs,
			logx.String("journal.driver", nDriver),
			logx.Bool("journal.path_set", nPathSet),
			logx.Int("journal.capacity", nCap),
			logx.String("journal.busy_timeout", nBusy),
		)
	}

	// Pprof (never log token)
	if oldCfg.Pprof.Enabled != newCfg.Pprof.Enabled ||
		strings.TrimSpace(oldCfg.Pprof.Addr) != strings.TrimSpace(newCfg.Pprof.Addr) ||
		strings.TrimSpace(oldCfg.Pprof.Prefix) != strings.TrimSpace(newCfg.Pprof.Prefix) ||
		oldCfg.Pprof.AllowInsecure != newCfg.Pprof.AllowInsecure ||
		strings.TrimSpace(oldCfg.Pprof.ReadTimeout) != strings.TrimSpace(newCfg.Pprof.ReadTimeout) ||
		strings.TrimSpace(oldCfg.Pprof.WriteTimeout) != strings.TrimSpace(newCfg.Pprof.WriteTimeout) ||
		strings.TrimSpace(oldCfg.Pprof.IdleTimeout) != strings.TrimSpace(newCfg.Pprof.IdleTimeout) ||
		oldCfg.Pprof.MutexProfileFraction != newCfg.Pprof.MutexProfileFraction ||
		oldCfg.Pprof.BlockProfileRate != newCfg.Pprof.BlockProfileRate ||
		oldCfg.Pprof.MemProfileRate != newCfg.Pprof.MemProfileRate ||
		(strings.TrimSpace(oldCfg.Pprof.Token) != "") != (strings.TrimSpace(newCfg.Pprof.Token) != "") {
		changed = append(changed, "pprof")
		attrs = append(attrs,
			logx.Bool("pprof.enabled", newCfg.Pprof.Enabled),
			logx.String("pprof.addr", strings.TrimSpace(newCfg.Pprof.Addr)),
			logx.String("pprof.prefix", strings.TrimSpace(newCfg.Pprof.Prefix)),
			logx.Bool("pprof.token_set", strings.TrimSpace(newCfg.Pprof.Token) != ""),
			logx.Bool("pprof.allow_insecure", newCfg.Pprof.AllowInsecure),
		)
	}

	// Systemd
	if oldCfg.Systemd.Notify != newCfg.Systemd.Notify {
		changed = append(changed, "systemd")
		attrs = append(attrs,
			logx.Bool("systemd.notify", newCfg.Systemd.Notify),
		)
	}

	// Jobs (summarize only; the job manager logs per-job detail)
	jobsChanged := diffJobs(oldCfg.Jobs, newCfg.Jobs)
	if len(jobsChanged) > 0 {
		changed = append(changed, "jobs")
		attrs = append(attrs,
			logx.Int("jobs.changed_count", len(jobsChanged)),
			logx.Int("jobs.enabled_count", countEnabledJobs(newCfg.Jobs)),
		)
	}

	sort.Strings(changed)
	return changed, attrs, jobsChanged
}

func countEnabledJobs(jobs []JobConfig) int {
	n := 0
	for _, j := range jobs {
		if !j.Disabled {
			n++
		}
	}
	return n
}

// diffJobs returns the sorted names of jobs that differ between the two
// lists. Jobs are keyed by trimmed name; any field change counts.
func diffJobs(oldJobs, newJobs []JobConfig) []string {
	byName := func(jobs []JobConfig) map[string]JobConfig {
		m := make(map[string]JobConfig, len(jobs))
		for _, j := range jobs {
			m[strings.TrimSpace(j.Name)] = j
		}
		return m
	}
	oldM := byName(oldJobs)
	newM := byName(newJobs)

	set := map[string]struct{}{}
	for k := range oldM {
		set[k] = struct{}{}
	}
	for k := range newM {
		set[k] = struct{}{}
	}

	out := make([]string, 0, len(set))
	for name := range set {
		o, oOK := oldM[name]
		n, nOK := newM[name]
		if oOK != nOK || !reflect.DeepEqual(o, n) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
