package recorder

import (
	"context"
	"strings"
	"time"
	"unicode"
)

// Config controls the recording scheduler.
type Config struct {
	// Devices is the number of tuning devices, identified 0..Devices-1.
	Devices int
	// MaxDuration caps end-start for a single recording.
	MaxDuration time.Duration
	// Grace is how long past the scheduled end a capture process may keep
	// running before the watchdog kills it and the job is marked failed.
	Grace time.Duration
	// OutputDir is where capture files are written.
	OutputDir string
}

// PostAction is performed once a job completes successfully.
type PostAction int

const (
	PostNone PostAction = iota
	PostShutdown
)

func (p PostAction) String() string {
	if p == PostShutdown {
		return "shutdown"
	}
	return "none"
}

// State is the job lifecycle state.
//
//	Pending → Armed → Recording → Completed
//	Pending|Armed   → Cancelled
//	Armed|Recording → Failed
//
// Validation rejections happen before a job exists, so there is no
// Rejected state in the table; the caller gets the error instead.
type State int

const (
	StatePending State = iota
	StateArmed
	StateRecording
	StateCompleted
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateArmed:
		return "armed"
	case StateRecording:
		return "recording"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// Request is an immutable recording request. A zero Start means "record
// immediately"; Schedule sets Start to submission time.
type Request struct {
	Device  int
	Channel string
	Program string
	Start   time.Time
	End     time.Time
	Post    PostAction
}

// Receipt acknowledges an accepted request with the computed schedule.
type Receipt struct {
	JobID    string
	Program  string
	Channel  string
	Device   int
	Start    time.Time
	Duration time.Duration
	Output   string
}

// JobInfo is a point-in-time snapshot of a scheduled job.
type JobInfo struct {
	ID       string
	Request  Request
	State    State
	Output   string
	Error    string
	Created  time.Time
	Finished time.Time
}

// ChannelSet answers whether a channel identifier is configured.
// *channels.List satisfies it.
type ChannelSet interface {
	Contains(name string) bool
}

// ShutdownTrigger is invoked for the shutdown post-action. Its failure is
// logged, never escalated to the job outcome.
type ShutdownTrigger interface {
	Shutdown(ctx context.Context) error
}

// Event types published on the bus.
const (
	EventScheduled = "job.scheduled"
	EventRecording = "job.recording"
	EventCompleted = "job.completed"
	EventFailed    = "job.failed"
	EventCancelled = "job.cancelled"
)

// JobEvent is the bus payload for job lifecycle events.
type JobEvent struct {
	ID      string    `json:"id"`
	Program string    `json:"program"`
	Channel string    `json:"channel"`
	Device  int       `json:"device"`
	State   string    `json:"state"`
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`
	Output  string    `json:"output,omitempty"`
	Error   string    `json:"error,omitempty"`
}

// OutputFileName derives the capture file name from the program name:
// every whitespace rune becomes '-', then a ".ts" suffix.
func OutputFileName(program string) string {
	mapped := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return '-'
		}
		return r
	}, strings.TrimSpace(program))
	return mapped + ".ts"
}
