package clockx

import "sync/atomic"

// Virtual is a clock whose value only changes via Set. Both timescales read
// the same counter; there is no unix/linear distinction in virtual time.
//
// Virtual does not enforce monotonic advancement itself: Set writes the
// counter directly (test setup legitimately rewinds it). The virtual driver
// in pkg/sched is responsible for never advancing backwards during replay.
type Virtual struct {
	micros atomic.Int64
}

// NewVirtual returns a virtual clock reading zero.
func NewVirtual() *Virtual {
	return &Virtual{}
}

// Set moves the clock to us microseconds.
func (c *Virtual) Set(us int64) { c.micros.Store(us) }

// Micros returns the current counter value.
func (c *Virtual) Micros() int64 { return c.micros.Load() }

func (c *Virtual) UnixMicros() int64 { return c.micros.Load() }

func (c *Virtual) LinearMicros() int64 { return c.micros.Load() }

func (c *Virtual) UnixSeconds() float64 { return MicrosToSeconds(c.micros.Load()) }

func (c *Virtual) LinearSeconds() float64 { return MicrosToSeconds(c.micros.Load()) }

// UnixToLinearMicros is the identity in virtual time.
func (c *Virtual) UnixToLinearMicros(u int64) int64 { return u }
