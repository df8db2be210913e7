package config

// Config is the schedd daemon configuration.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Scheduler SchedulerConfig `json:"scheduler"`

	// Journal controls the optional execution journal. Nil means disabled.
	Journal *JournalConfig `json:"journal,omitempty"`

	Pprof   PprofConfig   `json:"pprof,omitempty"`
	Systemd SystemdConfig `json:"systemd,omitempty"`

	// Jobs are commands run on the embedded scheduler.
	Jobs []JobConfig `json:"jobs,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// SchedulerConfig tunes the worker pool.
//
// Defaults (when fields are omitted/zero):
//   - workers: 2
//   - idle_interval: "5ms"
//   - min_sleep: "1ms"
//   - max_sleep: "1s"
//   - failure_log_per_sec: 1
//   - failure_log_burst: 5
type SchedulerConfig struct {
	Workers int `json:"workers,omitempty"`

	// IdleInterval bounds how long a worker sleeps on an empty registry.
	IdleInterval string `json:"idle_interval,omitempty"`

	// MinSleep and MaxSleep clamp the wait before a not-yet-due entry.
	MinSleep string `json:"min_sleep,omitempty"`
	MaxSleep string `json:"max_sleep,omitempty"`

	FailureLogPerSec float64 `json:"failure_log_per_sec,omitempty"`
	FailureLogBurst  int     `json:"failure_log_burst,omitempty"`
}

// JournalConfig controls the execution journal.
//
// Example:
//
//	"journal": { "driver": "file", "path": "./schedd_journal" }
type JournalConfig struct {
	Driver string `json:"driver"`
	Path   string `json:"path"`

	// Capacity bounds retained entries (memory and sqlite drivers).
	Capacity int `json:"capacity,omitempty"`

	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// PprofConfig controls the optional pprof HTTP server.
//
// Security note:
//   - Prefer binding to localhost (e.g. "127.0.0.1:6060").
//   - If you bind to a non-loopback address, set a token or explicitly allow_insecure.
type PprofConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`   // default: "127.0.0.1:6060"
	Prefix        string `json:"prefix,omitempty"` // default: "/debug/pprof/"
	Token         string `json:"token,omitempty"`  // optional bearer token (do not log)
	AllowInsecure bool   `json:"allow_insecure,omitempty"`

	// Server timeouts (Go duration strings). WriteTimeout defaults to 0 (disabled)
	// so /profile (which can take 30s+) works reliably.
	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`

	// Runtime profiling rates. Leave 0 to keep Go defaults.
	MutexProfileFraction int `json:"mutex_profile_fraction,omitempty"`
	BlockProfileRate     int `json:"block_profile_rate,omitempty"`
	MemProfileRate       int `json:"mem_profile_rate,omitempty"`
}

// SystemdConfig controls sd_notify integration. Watchdog pings follow the
// WATCHDOG_USEC environment automatically when Notify is enabled.
type SystemdConfig struct {
	Notify bool `json:"notify"`
}

// JobConfig is one command run on the embedded scheduler.
//
// Exactly one of Every (recurring) or In (one-shot delay) must be set.
type JobConfig struct {
	Name    string   `json:"name"`
	Command []string `json:"command"`

	// Every is the recurrence interval. Mutually exclusive with In.
	Every string `json:"every,omitempty"`
	// In delays a one-shot run. Mutually exclusive with Every.
	In string `json:"in,omitempty"`

	// Delay postpones the first run of a recurring job.
	Delay string `json:"delay,omitempty"`

	// Timeout bounds one run. "0s" (or omitted) disables the bound.
	Timeout string `json:"timeout,omitempty"`

	Disabled bool `json:"disabled,omitempty"`
}
