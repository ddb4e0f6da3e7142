package recorder

import "errors"

// Rejection and failure kinds. Validation errors are returned synchronously
// from Schedule with no side effects; launch/recording failures surface
// through the job state and the event bus.
var (
	ErrInvalidWindow    = errors.New("invalid recording window")
	ErrInvalidProgram   = errors.New("program name must be 5 to 128 characters")
	ErrDurationExceeded = errors.New("recording duration exceeds the configured maximum")
	ErrUnknownChannel   = errors.New("unknown channel")
	ErrDeviceOutOfRange = errors.New("device out of range")
	ErrConflict         = errors.New("device already reserved for an overlapping window")
	ErrLaunchFailure    = errors.New("capture process could not be started")
	ErrRecordingFailure = errors.New("capture process exited abnormally")
	ErrNotStarted       = errors.New("recorder not started")
	ErrUnknownJob       = errors.New("unknown job")
)
