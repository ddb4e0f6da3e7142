// Package storage persists finished-recording history. Scheduled jobs are
// not persisted: the scheduler's in-memory table is authoritative and jobs
// do not survive a restart.
package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file
//   - "" or "none": disabled
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // 0 means driver default
}

// Recording is one finished job. Keep it compact and schema-stable.
type Recording struct {
	JobID    string
	Program  string
	Channel  string
	Device   int
	Start    time.Time
	End      time.Time
	State    string // completed | failed | cancelled
	Output   string
	Error    string
	Finished time.Time
}
