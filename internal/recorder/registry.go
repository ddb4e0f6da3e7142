package recorder

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// ReservationID is a handle to a held device/time-window reservation.
type ReservationID uint64

// Window is a half-open [Start, End) interval.
type Window struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports whether two half-open intervals intersect.
func (w Window) Overlaps(o Window) bool {
	return w.Start.Before(o.End) && o.Start.Before(w.End)
}

// Registry tracks, per tuning device, the time windows currently booked.
// It is the sole conflict-prevention mechanism: at most one active or
// future-scheduled capture per device per instant. All operations are
// serialized by an internal mutex.
type Registry struct {
	mu      sync.Mutex
	devices int
	next    ReservationID
	held    map[ReservationID]reservation
}

type reservation struct {
	device int
	win    Window
}

func NewRegistry(devices int) *Registry {
	if devices < 1 {
		devices = 1
	}
	return &Registry{devices: devices, held: map[ReservationID]reservation{}}
}

func (r *Registry) Devices() int { return r.devices }

// Reserve atomically checks the requested window against every reservation
// held for the device and books it when disjoint. On conflict nothing is
// inserted.
func (r *Registry) Reserve(device int, start, end time.Time) (ReservationID, error) {
	if !start.Before(end) {
		return 0, fmt.Errorf("%w: start %s is not before end %s", ErrInvalidWindow, start, end)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if device < 0 || device >= r.devices {
		return 0, fmt.Errorf("%w: device %d, have %d", ErrDeviceOutOfRange, device, r.devices)
	}
	want := Window{Start: start, End: end}
	for _, held := range r.held {
		if held.device == device && held.win.Overlaps(want) {
			return 0, fmt.Errorf("%w: device %d busy %s to %s",
				ErrConflict, device, held.win.Start.Format(time.RFC3339), held.win.End.Format(time.RFC3339))
		}
	}
	r.next++
	id := r.next
	r.held[id] = reservation{device: device, win: want}
	return id, nil
}

// Release frees a reservation. Releasing an unknown or already-released id
// is a no-op.
func (r *Registry) Release(id ReservationID) {
	r.mu.Lock()
	delete(r.held, id)
	r.mu.Unlock()
}

// Held returns the windows currently booked for a device, ordered by start.
func (r *Registry) Held(device int) []Window {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Window
	for _, held := range r.held {
		if held.device == device {
			out = append(out, held.win)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}
