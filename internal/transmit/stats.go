package transmit

import (
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/atomic"
)

// Stats counts loop outcomes. All fields are safe for concurrent reads while
// the loop is running, which lets a signal handler report them.
type Stats struct {
	Ticks        atomic.Uint64 // write attempts
	Writes       atomic.Uint64 // successful writes
	BytesWritten atomic.Uint64
	Timeouts     atomic.Uint64 // attempts skipped because the device was busy
	Errors       atomic.Uint64 // any other failure
	LastWrite    atomic.Time   // time of the last successful write
}

// Snapshot is a point-in-time copy of Stats
type Snapshot struct {
	Ticks        uint64
	Writes       uint64
	BytesWritten uint64
	Timeouts     uint64
	Errors       uint64
	LastWrite    time.Time
}

// Snapshot copies the current counter values
func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		Ticks:        s.Ticks.Load(),
		Writes:       s.Writes.Load(),
		BytesWritten: s.BytesWritten.Load(),
		Timeouts:     s.Timeouts.Load(),
		Errors:       s.Errors.Load(),
		LastWrite:    s.LastWrite.Load(),
	}
}

// MarshalZerologObject implements zerolog.LogObjectMarshaler
func (s Snapshot) MarshalZerologObject(e *zerolog.Event) {
	e.Uint64("ticks", s.Ticks).
		Uint64("writes", s.Writes).
		Uint64("bytes", s.BytesWritten).
		Uint64("timeouts", s.Timeouts).
		Uint64("errors", s.Errors)
	if !s.LastWrite.IsZero() {
		e.Time("last_write", s.LastWrite)
	}
}
