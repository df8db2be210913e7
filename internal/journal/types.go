package journal

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("journal disabled")

// Config configures the journal.
//
// Driver values:
//   - "memory": bounded in-process ring, lost on restart
//   - "file":   append-only JSON Lines file
//   - "sqlite": SQLite database file (optional build tag)
//
// If Driver is empty or "none", the journal is disabled.
type Config struct {
	Driver string
	Path   string

	// Capacity bounds retained entries for the memory and sqlite drivers;
	// 0 means the driver default. The file driver grows unbounded.
	Capacity int

	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Entry is one recorded outcome.
// Keep it compact and schema-stable.
type Entry struct {
	At            time.Time `json:"at"`
	Type          string    `json:"type"`
	TaskID        uint64    `json:"task_id"`
	Kind          string    `json:"kind"`
	Label         string    `json:"label,omitempty"`
	DueMicros     int64     `json:"due_us"`
	ElapsedMicros int64     `json:"elapsed_us,omitempty"`
	Err           string    `json:"err,omitempty"`
}
