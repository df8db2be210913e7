// Package sched is an embeddable task scheduler.
//
// A Scheduler keeps a single time-ordered registry of pending tasks and
// offers two ways to drive it:
//
//   - A worker pool (Start/Stop/Retain) that executes tasks when they come
//     due on the process-monotonic "linear" timescale, sleeping precisely
//     between occurrences and waking promptly when new work is scheduled.
//   - A VirtualDriver that replays the same registry synchronously against a
//     virtual clock, for deterministic tests with no wall-clock sleeping.
//
// Tasks come in two variants: Once (fires a single time) and Every (recurs
// at a fixed interval and can have its next occurrence deferred). Both are
// cancelled lazily: Cancel flips a flag that the executor checks when the
// occurrence comes due, so there is no registry-removal race.
//
// Scheduling math uses integer microseconds throughout; the clock is an
// injected clockx.Clock, so the identical scheduling code runs against the
// host clocks or a test-controlled virtual counter.
package sched
