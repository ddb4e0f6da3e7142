// Package recorder turns validated recording requests into correctly-timed
// external capture processes, tracks them to completion, and prevents
// conflicting use of the same tuning device.
package recorder

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"magneto/internal/eventbus"
	logx "magneto/pkg/logx"
)

// Deps are the collaborators the scheduler consumes. Clock and Bus may be
// nil (system clock, no events).
type Deps struct {
	Channels ChannelSet
	Launcher Launcher
	Power    ShutdownTrigger
	Bus      eventbus.Bus
	Clock    Clock
	Log      logx.Logger
}

type job struct {
	mu sync.Mutex

	id       string
	req      Request
	state    State
	resv     ReservationID
	timer    Timer // armed-start timer
	watchdog Timer // end+grace kill timer
	proc     ProcessHandle

	// cancelled is set when cancel is requested while the process runs;
	// the exit watcher then reports Cancelled instead of Failed.
	cancelled bool
	// timedOut is set by the watchdog before it kills the process.
	timedOut bool

	output   string
	err      error
	created  time.Time
	finished time.Time
}

// Service is the single scheduling authority. The jobs table is guarded by
// the service mutex; each job's transitions are serialized by the job's own
// mutex, so jobs on different devices proceed independently.
type Service struct {
	cfg      Config
	log      logx.Logger
	clock    Clock
	registry *Registry
	launcher Launcher
	channels ChannelSet
	power    ShutdownTrigger
	bus      eventbus.Bus

	mu        sync.Mutex
	started   bool
	runCtx    context.Context
	runCancel context.CancelFunc
	jobs      map[string]*job

	wg sync.WaitGroup
}

func New(cfg Config, deps Deps) *Service {
	if cfg.Devices < 1 {
		cfg.Devices = 1
	}
	if cfg.MaxDuration <= 0 {
		cfg.MaxDuration = 4 * time.Hour
	}
	if cfg.Grace <= 0 {
		cfg.Grace = 30 * time.Second
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = "."
	}
	clk := deps.Clock
	if clk == nil {
		clk = SystemClock()
	}
	log := deps.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:      cfg,
		log:      log,
		clock:    clk,
		registry: NewRegistry(cfg.Devices),
		launcher: deps.Launcher,
		channels: deps.Channels,
		power:    deps.Power,
		bus:      deps.Bus,
		jobs:     map[string]*job{},
	}
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.runCtx, s.runCancel = context.WithCancel(ctx)
	s.started = true
	s.log.Info("recorder started",
		logx.Int("devices", s.cfg.Devices),
		logx.Duration("max_duration", s.cfg.MaxDuration),
		logx.Duration("grace", s.cfg.Grace))
}

// Stop cancels pending timers and terminates running captures. Scheduled
// jobs do not survive a restart.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	cancel := s.runCancel
	s.runCancel = nil
	jobs := make([]*job, 0, len(s.jobs))
	for _, j := range s.jobs {
		jobs = append(jobs, j)
	}
	s.mu.Unlock()

	for _, j := range jobs {
		j.mu.Lock()
		if j.timer != nil {
			j.timer.Stop()
			j.timer = nil
		}
		j.mu.Unlock()
	}
	// Cancelling the run context kills spawned processes; the per-job exit
	// watchers then drain and finish.
	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
	s.log.Info("recorder stopped")
}

// Schedule validates a request, reserves the device window, and either
// arms a start timer or (immediate requests) launches right away. On
// rejection nothing is reserved and no job exists.
func (s *Service) Schedule(req Request) (Receipt, error) {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if !started {
		return Receipt{}, ErrNotStarted
	}

	now := s.clock.Now()
	req, err := s.normalize(req, now)
	if err != nil {
		return Receipt{}, err
	}

	resv, err := s.registry.Reserve(req.Device, req.Start, req.End)
	if err != nil {
		return Receipt{}, err
	}

	j := &job{
		id:      uuid.NewString(),
		req:     req,
		state:   StatePending,
		resv:    resv,
		output:  filepath.Join(s.cfg.OutputDir, OutputFileName(req.Program)),
		created: now,
	}

	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		s.registry.Release(resv)
		return Receipt{}, ErrNotStarted
	}
	s.jobs[j.id] = j
	s.mu.Unlock()

	delay := req.Start.Sub(now)
	if delay > 0 {
		j.mu.Lock()
		j.state = StateArmed
		jobID := j.id
		j.timer = s.clock.AfterFunc(delay, func() { s.onStartTimer(jobID) })
		j.mu.Unlock()
		s.log.Info("recording armed",
			logx.String("job", j.id),
			logx.String("program", req.Program),
			logx.String("channel", req.Channel),
			logx.Int("device", req.Device),
			logx.Time("start", req.Start),
			logx.Duration("in", delay))
		s.publish(EventScheduled, j)
	} else {
		// Immediate: skip the Armed delay and launch on the caller's goroutine
		// so acceptance and process start are observed in order.
		s.publish(EventScheduled, j)
		s.launch(j)
	}

	return Receipt{
		JobID:    j.id,
		Program:  req.Program,
		Channel:  req.Channel,
		Device:   req.Device,
		Start:    req.Start,
		Duration: req.End.Sub(req.Start),
		Output:   j.output,
	}, nil
}

// onStartTimer runs when the armed timer fires. The state check makes the
// timer callback and Cancel mutually exclusive: whichever takes the job
// mutex first wins, the other sees a state it must not act on.
func (s *Service) onStartTimer(id string) {
	j := s.lookup(id)
	if j == nil {
		return
	}
	j.mu.Lock()
	if j.state != StateArmed {
		j.mu.Unlock()
		return
	}
	j.timer = nil
	j.mu.Unlock()
	s.launch(j)
}

func (s *Service) launch(j *job) {
	j.mu.Lock()
	if j.state != StatePending && j.state != StateArmed {
		j.mu.Unlock()
		return
	}
	j.state = StateRecording
	now := s.clock.Now()
	remaining := j.req.End.Sub(now)
	output := j.output
	req := j.req
	j.mu.Unlock()

	if remaining <= 0 {
		s.fail(j, fmt.Errorf("%w: window elapsed before launch", ErrLaunchFailure))
		return
	}

	s.mu.Lock()
	ctx := s.runCtx
	s.mu.Unlock()
	if ctx == nil {
		s.fail(j, fmt.Errorf("%w: recorder stopped", ErrLaunchFailure))
		return
	}

	h, err := s.launcher.Launch(ctx, req.Device, req.Channel, output, remaining)
	if err != nil {
		s.fail(j, fmt.Errorf("%w: %v", ErrLaunchFailure, err))
		return
	}

	j.mu.Lock()
	j.proc = h
	jobID := j.id
	j.watchdog = s.clock.AfterFunc(remaining+s.cfg.Grace, func() { s.onWatchdog(jobID) })
	cancelled := j.cancelled
	j.mu.Unlock()

	if cancelled {
		// Cancel arrived while the process was being spawned; kill it and let
		// the exit watcher settle the job as cancelled.
		_ = h.Kill()
	}

	s.log.Info("recording started",
		logx.String("job", j.id),
		logx.String("program", req.Program),
		logx.String("channel", req.Channel),
		logx.Int("device", req.Device),
		logx.Time("end", req.End))
	s.publish(EventRecording, j)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		<-h.Done()
		s.finish(j, h.Err())
	}()
}

// onWatchdog kills a capture that is still running past end+grace. The
// exit watcher then reports the failure.
func (s *Service) onWatchdog(id string) {
	j := s.lookup(id)
	if j == nil {
		return
	}
	j.mu.Lock()
	if j.state != StateRecording || j.proc == nil {
		j.mu.Unlock()
		return
	}
	j.timedOut = true
	proc := j.proc
	j.mu.Unlock()

	s.log.Warn("capture exceeded its window, killing", logx.String("job", id))
	_ = proc.Kill()
}

// finish settles a job whose process has exited.
func (s *Service) finish(j *job, procErr error) {
	now := s.clock.Now()

	j.mu.Lock()
	if j.state != StateRecording {
		j.mu.Unlock()
		return
	}
	if j.watchdog != nil {
		j.watchdog.Stop()
		j.watchdog = nil
	}
	j.finished = now
	s.registry.Release(j.resv)

	var event string
	switch {
	case j.cancelled:
		j.state = StateCancelled
		event = EventCancelled
	case j.timedOut:
		j.state = StateFailed
		j.err = fmt.Errorf("%w: still running %s past scheduled end", ErrRecordingFailure, s.cfg.Grace)
		event = EventFailed
	case procErr != nil:
		j.state = StateFailed
		j.err = fmt.Errorf("%w: %v", ErrRecordingFailure, procErr)
		event = EventFailed
	default:
		j.state = StateCompleted
		event = EventCompleted
	}
	state := j.state
	jobErr := j.err
	post := j.req.Post
	j.mu.Unlock()

	switch state {
	case StateCompleted:
		s.log.Info("recording completed", logx.String("job", j.id), logx.String("program", j.req.Program))
	case StateFailed:
		s.log.Error("recording failed", logx.String("job", j.id), logx.String("program", j.req.Program), logx.Err(jobErr))
	case StateCancelled:
		s.log.Info("recording cancelled", logx.String("job", j.id), logx.String("program", j.req.Program))
	}
	s.publish(event, j)

	// Post-action fires exactly once, and only on Completed.
	if state == StateCompleted && post == PostShutdown && s.power != nil {
		s.log.Info("invoking shutdown post-action", logx.String("job", j.id))
		if err := s.power.Shutdown(context.Background()); err != nil {
			s.log.Warn("shutdown trigger failed", logx.String("job", j.id), logx.Err(err))
		}
	}
}

// fail settles a job that never got a running process.
func (s *Service) fail(j *job, err error) {
	j.mu.Lock()
	if j.state.Terminal() {
		j.mu.Unlock()
		return
	}
	j.state = StateFailed
	j.err = err
	j.finished = s.clock.Now()
	s.registry.Release(j.resv)
	j.mu.Unlock()

	s.log.Error("recording failed", logx.String("job", j.id), logx.String("program", j.req.Program), logx.Err(err))
	s.publish(EventFailed, j)
}

// Cancel stops a job. Pending/Armed jobs release their reservation without
// ever starting a process; a running capture is killed and settles as
// Cancelled. Terminal jobs return an error.
func (s *Service) Cancel(id string) error {
	j := s.lookup(id)
	if j == nil {
		return ErrUnknownJob
	}

	j.mu.Lock()
	switch j.state {
	case StatePending, StateArmed:
		if j.timer != nil {
			j.timer.Stop()
			j.timer = nil
		}
		j.state = StateCancelled
		j.finished = s.clock.Now()
		s.registry.Release(j.resv)
		j.mu.Unlock()
		s.log.Info("recording cancelled before start", logx.String("job", id))
		s.publish(EventCancelled, j)
		return nil
	case StateRecording:
		j.cancelled = true
		proc := j.proc
		j.mu.Unlock()
		if proc != nil {
			_ = proc.Kill()
		}
		return nil
	default:
		state := j.state
		j.mu.Unlock()
		return fmt.Errorf("job %s already %s", id, state)
	}
}

// Job returns a snapshot of one job.
func (s *Service) Job(id string) (JobInfo, bool) {
	j := s.lookup(id)
	if j == nil {
		return JobInfo{}, false
	}
	return s.snapshot(j), true
}

// Jobs returns snapshots of all known jobs, newest first.
func (s *Service) Jobs() []JobInfo {
	s.mu.Lock()
	jobs := make([]*job, 0, len(s.jobs))
	for _, j := range s.jobs {
		jobs = append(jobs, j)
	}
	s.mu.Unlock()

	out := make([]JobInfo, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, s.snapshot(j))
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Created.After(out[k].Created) })
	return out
}

// PruneFinished drops terminal jobs older than maxAge from the in-memory
// table and reports how many were removed. Durable history lives in storage.
func (s *Service) PruneFinished(maxAge time.Duration) int {
	cutoff := s.clock.Now().Add(-maxAge)
	var victims []string

	s.mu.Lock()
	for id, j := range s.jobs {
		j.mu.Lock()
		if j.state.Terminal() && !j.finished.IsZero() && j.finished.Before(cutoff) {
			victims = append(victims, id)
		}
		j.mu.Unlock()
	}
	for _, id := range victims {
		delete(s.jobs, id)
	}
	s.mu.Unlock()
	return len(victims)
}

func (s *Service) lookup(id string) *job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id]
}

func (s *Service) snapshot(j *job) JobInfo {
	j.mu.Lock()
	defer j.mu.Unlock()
	info := JobInfo{
		ID:       j.id,
		Request:  j.req,
		State:    j.state,
		Output:   j.output,
		Created:  j.created,
		Finished: j.finished,
	}
	if j.err != nil {
		info.Error = j.err.Error()
	}
	return info
}

func (s *Service) publish(eventType string, j *job) {
	if s.bus == nil {
		return
	}
	info := s.snapshot(j)
	s.bus.Publish(eventbus.Event{
		Type: eventType,
		Time: s.clock.Now(),
		Data: JobEvent{
			ID:      info.ID,
			Program: info.Request.Program,
			Channel: info.Request.Channel,
			Device:  info.Request.Device,
			State:   info.State.String(),
			Start:   info.Request.Start,
			End:     info.Request.End,
			Output:  info.Output,
			Error:   info.Error,
		},
	})
}
