// Package clockx provides the time source used by the scheduler.
//
// Two timescales are exposed:
//   - unix: wall-clock time; may jump or run backwards (NTP, settimeofday).
//   - linear: monotonic, process-local; used for all scheduling math and
//     never comparable across processes.
//
// Readings are microsecond integers, with float-second forms derived from
// them. The Clock is an injected capability so the same scheduling code can
// run against the real clocks or a Virtual counter in tests.
package clockx

import "time"

// Clock reads the current instant on both timescales.
type Clock interface {
	// UnixMicros returns wall-clock time in microseconds since the Unix epoch.
	UnixMicros() int64

	// LinearMicros returns monotonic time in microseconds. The zero point is
	// implementation-defined (process start, clock construction); only
	// differences are meaningful.
	LinearMicros() int64

	// UnixSeconds and LinearSeconds are the float-second forms of the above.
	UnixSeconds() float64
	LinearSeconds() float64

	// UnixToLinearMicros maps a unix-timescale instant to an approximately
	// equivalent linear-timescale instant as linearNow + (u - unixNow).
	// The two reads race, so the result can be off by the time between them;
	// callers target millisecond-order precision, not exactness.
	UnixToLinearMicros(u int64) int64
}

// System reads the host clocks: unix from the wall clock, linear from the
// runtime's monotonic reading against a base captured at construction, so
// wall-clock adjustments never move it.
type System struct {
	base time.Time
}

func NewSystem() *System {
	return &System{base: time.Now()}
}

func (c *System) UnixMicros() int64 { return time.Now().UnixMicro() }

func (c *System) LinearMicros() int64 { return time.Since(c.base).Microseconds() }

func (c *System) UnixSeconds() float64 { return MicrosToSeconds(c.UnixMicros()) }

func (c *System) LinearSeconds() float64 { return MicrosToSeconds(c.LinearMicros()) }

func (c *System) UnixToLinearMicros(u int64) int64 {
	return c.LinearMicros() + (u - c.UnixMicros())
}

// SecondsToMicros converts float seconds to integer microseconds,
// truncating toward zero. SecondsToMicros(1.2) == 1_200_000.
func SecondsToMicros(s float64) int64 {
	return int64(s * 1e6)
}

// MicrosToSeconds converts integer microseconds to float seconds.
func MicrosToSeconds(us int64) float64 {
	return float64(us) / 1e6
}
