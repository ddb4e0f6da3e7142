package recorder

import "time"

// Clock is the wall-clock-relative timer source used by the scheduler.
// Production code uses SystemClock; tests substitute a fake so state
// transitions can be driven deterministically.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type Timer interface {
	// Stop prevents the timer from firing. It reports whether it stopped the
	// timer before the callback started.
	Stop() bool
}

func SystemClock() Clock { return systemClock{} }

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
