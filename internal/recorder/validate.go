package recorder

import (
	"fmt"
	"time"
	"unicode/utf8"
)

const (
	minProgramLen = 5
	maxProgramLen = 128
)

// normalize applies the immediate rule (zero start → now) and validates the
// request against the configuration and channel list. It has no side
// effects; on error the original rejection reason is returned to the caller.
func (s *Service) normalize(req Request, now time.Time) (Request, error) {
	immediate := req.Start.IsZero()
	if immediate {
		req.Start = now
	}

	if n := utf8.RuneCountInString(req.Program); n < minProgramLen || n > maxProgramLen {
		return Request{}, fmt.Errorf("%w: got %d", ErrInvalidProgram, n)
	}
	if req.Device < 0 || req.Device >= s.cfg.Devices {
		return Request{}, fmt.Errorf("%w: device %d, have %d", ErrDeviceOutOfRange, req.Device, s.cfg.Devices)
	}
	if s.channels != nil && !s.channels.Contains(req.Channel) {
		return Request{}, fmt.Errorf("%w: %q", ErrUnknownChannel, req.Channel)
	}
	if !immediate && !req.Start.After(now) {
		return Request{}, fmt.Errorf("%w: start must be in the future", ErrInvalidWindow)
	}
	if !req.Start.Before(req.End) {
		return Request{}, fmt.Errorf("%w: start must be before end", ErrInvalidWindow)
	}
	if d := req.End.Sub(req.Start); d > s.cfg.MaxDuration {
		return Request{}, fmt.Errorf("%w: %s > %s", ErrDurationExceeded, d, s.cfg.MaxDuration)
	}
	return req, nil
}
