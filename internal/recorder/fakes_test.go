package recorder

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// fakeClock drives timers deterministically from the test goroutine.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clk     *fakeClock
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func newFakeClock(now time.Time) *fakeClock { return &fakeClock{now: now} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clk: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clk.mu.Lock()
	defer t.clk.mu.Unlock()
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

// Advance moves the clock and runs every due callback synchronously, in
// firing order.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.fired && !t.stopped && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
	for _, t := range due {
		t.f()
	}
}

// fakeLauncher records launches and hands out controllable handles.
type fakeLauncher struct {
	mu      sync.Mutex
	err     error // next Launch fails with this
	handles []*fakeHandle
}

type launchArgs struct {
	device  int
	channel string
	output  string
	timeout time.Duration
}

type fakeHandle struct {
	args launchArgs

	mu     sync.Mutex
	done   chan struct{}
	err    error
	killed bool
}

func (l *fakeLauncher) Launch(_ context.Context, device int, channel, output string, timeout time.Duration) (ProcessHandle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	h := &fakeHandle{
		args: launchArgs{device: device, channel: channel, output: output, timeout: timeout},
		done: make(chan struct{}),
	}
	l.handles = append(l.handles, h)
	return h, nil
}

func (l *fakeLauncher) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.handles)
}

func (l *fakeLauncher) last() *fakeHandle {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.handles) == 0 {
		return nil
	}
	return l.handles[len(l.handles)-1]
}

func (h *fakeHandle) Done() <-chan struct{} { return h.done }

func (h *fakeHandle) Err() error {
	select {
	case <-h.done:
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.err
	default:
		return nil
	}
}

func (h *fakeHandle) Kill() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.killed {
		return nil
	}
	h.killed = true
	select {
	case <-h.done:
	default:
		h.err = errors.New("signal: killed")
		close(h.done)
	}
	return nil
}

// exit finishes the fake process with the given error (nil = status 0).
func (h *fakeHandle) exit(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	select {
	case <-h.done:
	default:
		h.err = err
		close(h.done)
	}
}

// fakeTrigger counts shutdown invocations.
type fakeTrigger struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeTrigger) Shutdown(context.Context) error {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return nil
}

func (f *fakeTrigger) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// stubChannels is a fixed channel set.
type stubChannels []string

func (s stubChannels) Contains(name string) bool {
	for _, c := range s {
		if c == name {
			return true
		}
	}
	return false
}
