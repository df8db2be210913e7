package app

import (
	"context"
	"fmt"
	"math/rand"
	"os/exec"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"schedkit/internal/config"
	logx "schedkit/pkg/logx"
	"schedkit/pkg/sched"
)

// defaultStartSpread bounds the random delay applied to recurring jobs that
// carry no explicit delay, so a restart does not fire every job at once.
const defaultStartSpread = 3 * time.Second

// maxOutputExcerpt limits how much captured command output a job error keeps.
const maxOutputExcerpt = 512

type jobEntry struct {
	cfg  config.JobConfig
	task interface{ Cancel() }
}

// JobManager reconciles the configured job list against the scheduler. Jobs
// are keyed by name; a changed definition is cancelled and rescheduled, an
// unchanged one keeps its task (and its place in the recurrence timeline).
type JobManager struct {
	mu     sync.Mutex
	sc     *sched.Scheduler
	log    logx.Logger
	jobs   map[string]*jobEntry
	spread time.Duration
	rng    *rand.Rand

	// runner executes one job occurrence. Tests swap it out.
	runner func(ctx context.Context, job config.JobConfig) error
}

func NewJobManager(sc *sched.Scheduler, log logx.Logger) *JobManager {
	return &JobManager{
		sc:     sc,
		log:    log,
		jobs:   make(map[string]*jobEntry),
		spread: defaultStartSpread,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		runner: runJobCommand,
	}
}

// Apply brings the scheduled set in line with jobs. Disabled entries count as
// absent. The config has already been validated; parse errors here are
// reported but never partial-apply a single job.
func (m *JobManager) Apply(jobs []config.JobConfig) error {
	desired := make(map[string]config.JobConfig, len(jobs))
	for _, j := range jobs {
		if j.Disabled {
			continue
		}
		desired[strings.TrimSpace(j.Name)] = j
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var removed, added []string
	for name, ent := range m.jobs {
		want, ok := desired[name]
		if ok && reflect.DeepEqual(ent.cfg, want) {
			delete(desired, name)
			continue
		}
		ent.task.Cancel()
		delete(m.jobs, name)
		if !ok {
			removed = append(removed, name)
		}
	}

	names := make([]string, 0, len(desired))
	for name := range desired {
		names = append(names, name)
	}
	sort.Strings(names)

	var firstErr error
	for _, name := range names {
		if err := m.scheduleLocked(name, desired[name]); err != nil {
			m.log.Error("job schedule failed", logx.String("job", name), logx.Err(err))
			if firstErr == nil {
				firstErr = fmt.Errorf("job %s: %w", name, err)
			}
			continue
		}
		added = append(added, name)
	}

	sort.Strings(removed)
	for _, name := range removed {
		m.log.Info("job removed", logx.String("job", name))
	}
	for _, name := range added {
		m.log.Info("job scheduled", logx.String("job", name),
			logx.String("every", desired[name].Every),
			logx.String("in", desired[name].In))
	}
	return firstErr
}

// Len reports how many jobs are currently scheduled.
func (m *JobManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.jobs)
}

func (m *JobManager) scheduleLocked(name string, jc config.JobConfig) error {
	action, err := m.actionFor(name, jc)
	if err != nil {
		return err
	}
	label := sched.WithLabel("job:" + name)

	if strings.TrimSpace(jc.Every) != "" {
		every, err := config.ParseDurationField("every", jc.Every)
		if err != nil {
			return err
		}
		delay, err := m.startDelay(jc, every)
		if err != nil {
			return err
		}
		task, err := m.sc.Every(every, action, label, sched.WithStartDelay(delay))
		if err != nil {
			return err
		}
		m.jobs[name] = &jobEntry{cfg: jc, task: task}
		return nil
	}

	in, err := config.ParseDurationField("in", jc.In)
	if err != nil {
		return err
	}
	task, err := m.sc.After(in, action, label)
	if err != nil {
		return err
	}
	// One-shot entries stay in the map after firing; Cancel on an executed
	// Once is a no-op, so reconcile treats them like any other job.
	m.jobs[name] = &jobEntry{cfg: jc, task: task}
	return nil
}

// startDelay picks the first-occurrence delay for a recurring job: the
// configured delay verbatim, or a random spread capped by both the interval
// and defaultStartSpread.
func (m *JobManager) startDelay(jc config.JobConfig, interval time.Duration) (time.Duration, error) {
	if strings.TrimSpace(jc.Delay) != "" {
		return config.ParseDurationField("delay", jc.Delay)
	}
	bound := m.spread
	if interval < bound {
		bound = interval
	}
	if bound <= 0 {
		return 0, nil
	}
	return time.Duration(m.rng.Int63n(int64(bound))), nil
}

func (m *JobManager) actionFor(name string, jc config.JobConfig) (sched.Action, error) {
	timeout, err := config.ParseDurationField("timeout", jc.Timeout)
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context) error {
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		start := time.Now()
		err := m.runner(ctx, jc)
		if err != nil {
			return err
		}
		m.log.Debug("job finished",
			logx.String("job", name),
			logx.Duration("took", time.Since(start)))
		return nil
	}, nil
}

// runJobCommand runs the job's command to completion, folding a truncated
// output excerpt into the error on failure.
func runJobCommand(ctx context.Context, jc config.JobConfig) error {
	cmd := exec.CommandContext(ctx, jc.Command[0], jc.Command[1:]...)
	out, err := cmd.CombinedOutput()
	if err == nil {
		return nil
	}
	if excerpt := outputExcerpt(out); excerpt != "" {
		return fmt.Errorf("%w: %s", err, excerpt)
	}
	return err
}

func outputExcerpt(out []byte) string {
	s := strings.TrimSpace(string(out))
	if len(s) > maxOutputExcerpt {
		s = s[:maxOutputExcerpt] + "..."
	}
	return s
}
