package config

import (
	"fmt"
	"strings"
)

// Validate checks the config before it is committed. It returns the first
// problem found, labeled with the offending field path.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config is nil")
	}
	if err := c.Scheduler.validate(); err != nil {
		return err
	}
	if c.Journal != nil {
		if err := c.Journal.validate(); err != nil {
			return err
		}
	}
	if err := c.Pprof.validate(); err != nil {
		return err
	}

	seen := make(map[string]struct{}, len(c.Jobs))
	for i := range c.Jobs {
		j := &c.Jobs[i]
		path := fmt.Sprintf("jobs[%d]", i)
		if err := j.validate(path); err != nil {
			return err
		}
		name := strings.TrimSpace(j.Name)
		if _, dup := seen[name]; dup {
			return fmt.Errorf("%s: duplicate name %q", path, j.Name)
		}
		seen[name] = struct{}{}
	}
	return nil
}

func (s SchedulerConfig) validate() error {
	if s.Workers < 0 {
		return fmt.Errorf("scheduler.workers: must be >= 0")
	}
	if _, err := ParseDurationField("scheduler.idle_interval", s.IdleInterval); err != nil {
		return err
	}
	min, err := ParseDurationField("scheduler.min_sleep", s.MinSleep)
	if err != nil {
		return err
	}
	max, err := ParseDurationField("scheduler.max_sleep", s.MaxSleep)
	if err != nil {
		return err
	}
	if min > 0 && max > 0 && min > max {
		return fmt.Errorf("scheduler.min_sleep: must be <= scheduler.max_sleep")
	}
	if s.FailureLogPerSec < 0 {
		return fmt.Errorf("scheduler.failure_log_per_sec: must be >= 0")
	}
	if s.FailureLogBurst < 0 {
		return fmt.Errorf("scheduler.failure_log_burst: must be >= 0")
	}
	return nil
}

func (j JournalConfig) validate() error {
	driver := strings.ToLower(strings.TrimSpace(j.Driver))
	switch driver {
	case "", "none", "memory":
	case "file", "sqlite", "sqlite3":
		if strings.TrimSpace(j.Path) == "" {
			return fmt.Errorf("journal.path: required for driver %q", driver)
		}
	default:
		return fmt.Errorf("journal.driver: unknown driver %q", j.Driver)
	}
	if j.Capacity < 0 {
		return fmt.Errorf("journal.capacity: must be >= 0")
	}
	if _, err := ParseDurationField("journal.busy_timeout", j.BusyTimeout); err != nil {
		return err
	}
	return nil
}

func (p PprofConfig) validate() error {
	for _, f := range []struct {
		path string
		raw  string
	}{
		{"pprof.read_timeout", p.ReadTimeout},
		{"pprof.write_timeout", p.WriteTimeout},
		{"pprof.idle_timeout", p.IdleTimeout},
	} {
		if _, err := ParseDurationField(f.path, f.raw); err != nil {
			return err
		}
	}
	if p.MutexProfileFraction < 0 || p.BlockProfileRate < 0 || p.MemProfileRate < 0 {
		return fmt.Errorf("pprof: profile rates must be >= 0")
	}
	return nil
}

// validate checks one job entry. Disabled jobs are validated too so typos
// don't hide until the job is re-enabled.
func (j *JobConfig) validate(path string) error {
	if strings.TrimSpace(j.Name) == "" {
		return fmt.Errorf("%s: name required", path)
	}
	if len(j.Command) == 0 || strings.TrimSpace(j.Command[0]) == "" {
		return fmt.Errorf("%s: command required", path)
	}

	every := strings.TrimSpace(j.Every)
	in := strings.TrimSpace(j.In)
	if (every == "") == (in == "") {
		return fmt.Errorf("%s: exactly one of every or in must be set", path)
	}
	if every != "" {
		d, err := ParseDurationField(path+".every", every)
		if err != nil {
			return err
		}
		if d <= 0 {
			return fmt.Errorf("%s.every: must be > 0", path)
		}
	}
	if in != "" {
		if _, err := ParseDurationField(path+".in", in); err != nil {
			return err
		}
		if strings.TrimSpace(j.Delay) != "" {
			return fmt.Errorf("%s.delay: only valid with every", path)
		}
	}
	if _, err := ParseDurationField(path+".delay", j.Delay); err != nil {
		return err
	}
	if _, err := ParseDurationField(path+".timeout", j.Timeout); err != nil {
		return err
	}
	return nil
}
