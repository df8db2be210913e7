package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

const sampleJSON = `{
  "logging": {"level": "info", "console": true, "file": {"enabled": false, "path": ""}},
  "scheduler": {"workers": 4, "idle_interval": "10ms", "min_sleep": "1ms", "max_sleep": "250ms", "failure_log_per_sec": 2, "failure_log_burst": 10},
  "journal": {"driver": "memory", "capacity": 128},
  "systemd": {"notify": true},
  "jobs": [
    {"name": "heartbeat", "command": ["true"], "every": "30s", "timeout": "5s"},
    {"name": "warmup", "command": ["sh", "-c", "echo hi"], "in": "0s"}
  ]
}`

const sampleYAML = `logging:
  level: debug
  console: true
  file:
    enabled: false
    path: ""
scheduler:
  workers: 2
  max_sleep: 500ms
jobs:
  - name: heartbeat
    command: ["true"]
    every: 1m
`

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestParseJSON(t *testing.T) {
	t.Parallel()
	m := New(writeConfig(t, "schedd.json", sampleJSON))
	cfg, err := m.Parse()
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if cfg.Scheduler.Workers != 4 {
		t.Fatalf("Workers = %d, want 4", cfg.Scheduler.Workers)
	}
	if cfg.Journal == nil || cfg.Journal.Driver != "memory" || cfg.Journal.Capacity != 128 {
		t.Fatalf("unexpected journal section: %+v", cfg.Journal)
	}
	if !cfg.Systemd.Notify {
		t.Fatal("Systemd.Notify = false, want true")
	}
	if len(cfg.Jobs) != 2 || cfg.Jobs[0].Name != "heartbeat" || cfg.Jobs[1].In != "0s" {
		t.Fatalf("unexpected jobs: %+v", cfg.Jobs)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate error: %v", err)
	}
}

func TestParseYAML(t *testing.T) {
	t.Parallel()
	m := New(writeConfig(t, "schedd.yaml", sampleYAML))
	cfg, err := m.Parse()
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if cfg.Logging.Level != "debug" || !cfg.Logging.Console {
		t.Fatalf("unexpected logging section: %+v", cfg.Logging)
	}
	if cfg.Scheduler.MaxSleep != "500ms" {
		t.Fatalf("MaxSleep = %q, want 500ms", cfg.Scheduler.MaxSleep)
	}
	if len(cfg.Jobs) != 1 || cfg.Jobs[0].Every != "1m" {
		t.Fatalf("unexpected jobs: %+v", cfg.Jobs)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate error: %v", err)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	m := New(writeConfig(t, "schedd.json", `{"logging": {"level": "info", "consoel": true}}`))
	if _, err := m.Parse(); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestParseRejectsTrailingData(t *testing.T) {
	t.Parallel()
	m := New(writeConfig(t, "schedd.json", `{"logging": {"level": "info"}} {}`))
	if _, err := m.Parse(); err == nil {
		t.Fatal("expected error for trailing data")
	}
}

func TestLoadCommitsAndGet(t *testing.T) {
	t.Parallel()
	m := New(writeConfig(t, "schedd.json", sampleJSON))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if got := m.Get(); got != cfg {
		t.Fatalf("Get = %p, want the loaded config %p", got, cfg)
	}
}

func TestValidateRejects(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantSub string
	}{
		{
			name:    "negative workers",
			mutate:  func(c *Config) { c.Scheduler.Workers = -1 },
			wantSub: "scheduler.workers",
		},
		{
			name:    "bad idle interval",
			mutate:  func(c *Config) { c.Scheduler.IdleInterval = "soon" },
			wantSub: "scheduler.idle_interval",
		},
		{
			name: "min above max",
			mutate: func(c *Config) {
				c.Scheduler.MinSleep = "1s"
				c.Scheduler.MaxSleep = "10ms"
			},
			wantSub: "scheduler.min_sleep",
		},
		{
			name:    "unknown journal driver",
			mutate:  func(c *Config) { c.Journal = &JournalConfig{Driver: "redis"} },
			wantSub: "journal.driver",
		},
		{
			name:    "file journal without path",
			mutate:  func(c *Config) { c.Journal = &JournalConfig{Driver: "file"} },
			wantSub: "journal.path",
		},
		{
			name:    "negative journal capacity",
			mutate:  func(c *Config) { c.Journal = &JournalConfig{Driver: "memory", Capacity: -1} },
			wantSub: "journal.capacity",
		},
		{
			name:    "bad pprof timeout",
			mutate:  func(c *Config) { c.Pprof.ReadTimeout = "later" },
			wantSub: "pprof.read_timeout",
		},
		{
			name:    "job without name",
			mutate:  func(c *Config) { c.Jobs = []JobConfig{{Command: []string{"true"}, Every: "1m"}} },
			wantSub: "name required",
		},
		{
			name:    "job without command",
			mutate:  func(c *Config) { c.Jobs = []JobConfig{{Name: "x", Every: "1m"}} },
			wantSub: "command required",
		},
		{
			name: "job with every and in",
			mutate: func(c *Config) {
				c.Jobs = []JobConfig{{Name: "x", Command: []string{"true"}, Every: "1m", In: "5s"}}
			},
			wantSub: "exactly one",
		},
		{
			name:    "job with neither every nor in",
			mutate:  func(c *Config) { c.Jobs = []JobConfig{{Name: "x", Command: []string{"true"}}} },
			wantSub: "exactly one",
		},
		{
			name: "zero every",
			mutate: func(c *Config) {
				c.Jobs = []JobConfig{{Name: "x", Command: []string{"true"}, Every: "0s"}}
			},
			wantSub: "every: must be > 0",
		},
		{
			name: "delay on one-shot",
			mutate: func(c *Config) {
				c.Jobs = []JobConfig{{Name: "x", Command: []string{"true"}, In: "5s", Delay: "1s"}}
			},
			wantSub: "delay",
		},
		{
			name: "duplicate job names",
			mutate: func(c *Config) {
				c.Jobs = []JobConfig{
					{Name: "x", Command: []string{"true"}, Every: "1m"},
					{Name: "x", Command: []string{"false"}, Every: "2m"},
				}
			},
			wantSub: "duplicate name",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := &Config{}
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Fatalf("error = %q, want substring %q", err, tt.wantSub)
			}
		})
	}
}

func TestValidateAcceptsZeroConfig(t *testing.T) {
	t.Parallel()
	cfg := &Config{}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate error: %v", err)
	}
}

func TestSummarizeChangeSections(t *testing.T) {
	t.Parallel()
	oldCfg := &Config{
		Logging:   LoggingConfig{Level: "info", Console: true},
		Scheduler: SchedulerConfig{Workers: 2},
		Jobs: []JobConfig{
			{Name: "heartbeat", Command: []string{"true"}, Every: "30s"},
		},
	}
	newCfg := &Config{
		Logging:   LoggingConfig{Level: "debug", Console: true},
		Scheduler: SchedulerConfig{Workers: 2},
		Pprof:     PprofConfig{Enabled: true, Token: "hunter2"},
		Jobs: []JobConfig{
			{Name: "heartbeat", Command: []string{"true"}, Every: "1m"},
			{Name: "cleanup", Command: []string{"rm", "-f", "tmp"}, In: "1h"},
		},
	}

	changed, attrs, jobs := SummarizeChange(oldCfg, newCfg)

	want := []string{"jobs", "logging", "pprof"}
	if len(changed) != len(want) {
		t.Fatalf("changed = %v, want %v", changed, want)
	}
	for i := range want {
		if changed[i] != want[i] {
			t.Fatalf("changed = %v, want %v", changed, want)
		}
	}
	if len(jobs) != 2 || jobs[0] != "cleanup" || jobs[1] != "heartbeat" {
		t.Fatalf("jobs = %v, want [cleanup heartbeat]", jobs)
	}

	// Render attrs and make sure the token never leaks.
	var buf bytes.Buffer
	zl := zerolog.New(&buf)
	e := zl.Info()
	for _, f := range attrs {
		f(e)
	}
	e.Msg("summary")
	out := buf.String()
	if strings.Contains(out, "hunter2") {
		t.Fatalf("summary leaked the pprof token: %s", out)
	}
	if !strings.Contains(out, "pprof.token_set") {
		t.Fatalf("summary missing token_set marker: %s", out)
	}
}

func TestSummarizeChangeNoChanges(t *testing.T) {
	t.Parallel()
	cfg := &Config{Logging: LoggingConfig{Level: "info"}}
	changed, _, jobs := SummarizeChange(cfg, cfg)
	if len(changed) != 0 || len(jobs) != 0 {
		t.Fatalf("changed = %v, jobs = %v, want none", changed, jobs)
	}
}

func TestDiffJobs(t *testing.T) {
	t.Parallel()
	oldJobs := []JobConfig{
		{Name: "a", Command: []string{"true"}, Every: "1m"},
		{Name: "b", Command: []string{"true"}, Every: "1m"},
	}
	newJobs := []JobConfig{
		{Name: "a", Command: []string{"true"}, Every: "5m"}, // changed
		{Name: "c", Command: []string{"true"}, Every: "1m"}, // added
	}
	got := diffJobs(oldJobs, newJobs)
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("diffJobs = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("diffJobs = %v, want %v", got, want)
		}
	}
}

func TestPublishDropsOldestWhenSlow(t *testing.T) {
	t.Parallel()
	m := New("unused")
	ch := m.Subscribe(1)

	first := &Config{Logging: LoggingConfig{Level: "info"}}
	second := &Config{Logging: LoggingConfig{Level: "debug"}}
	m.publish(first)
	m.publish(second)

	select {
	case got := <-ch:
		if got != second {
			t.Fatalf("received %+v, want the newest config", got.Logging)
		}
	default:
		t.Fatal("expected a buffered config update")
	}

	m.Unsubscribe(ch)
	if _, ok := <-ch; ok {
		t.Fatal("expected channel closed after Unsubscribe")
	}
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		raw     string
		want    time.Duration
		wantErr bool
	}{
		{name: "empty", raw: "", want: 0},
		{name: "simple", raw: "10s", want: 10 * time.Second},
		{name: "padded", raw: " 1m ", want: time.Minute},
		{name: "garbage", raw: "soon", wantErr: true},
		{name: "negative", raw: "-1s", wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseDurationField("field", tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseDurationField(%q) expected error", tt.raw)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseDurationField(%q) error: %v", tt.raw, err)
			}
			if got != tt.want {
				t.Fatalf("ParseDurationField(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}

	if d, err := ParseDurationOrDefault("field", "", 5*time.Second); err != nil || d != 5*time.Second {
		t.Fatalf("ParseDurationOrDefault empty = %v, %v; want 5s", d, err)
	}
	if d, err := ParseDurationOrDefault("field", "2s", 5*time.Second); err != nil || d != 2*time.Second {
		t.Fatalf("ParseDurationOrDefault 2s = %v, %v; want 2s", d, err)
	}
}
