package sched

import "errors"

var (
	// ErrNilAction is returned by scheduling calls given a nil action.
	ErrNilAction = errors.New("sched: nil action")

	// ErrNegativeDelay is returned when a relative delay is negative.
	ErrNegativeDelay = errors.New("sched: negative delay")

	// ErrNonPositiveInterval is returned when a recurrence interval is zero,
	// negative, or below the scheduler's microsecond resolution.
	ErrNonPositiveInterval = errors.New("sched: interval must be at least one microsecond")

	// ErrVirtualClockRequired is returned by NewVirtualDriver when the
	// scheduler was not constructed with a *clockx.Virtual.
	ErrVirtualClockRequired = errors.New("sched: virtual driver requires a virtual clock")

	// ErrPoolRunning is returned by virtual driver operations while the
	// worker pool is running; the driver replaces the pool, it does not
	// coexist with it.
	ErrPoolRunning = errors.New("sched: worker pool is running")
)
