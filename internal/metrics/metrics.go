// Package metrics exposes Prometheus counters for the recording lifecycle,
// fed from the event bus.
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"magneto/internal/eventbus"
	"magneto/internal/recorder"
)

type Collector struct {
	scheduled prometheus.Counter
	completed prometheus.Counter
	failed    prometheus.Counter
	cancelled prometheus.Counter
	active    prometheus.Gauge

	// recording tracks job ids that reached the Recording state, so the
	// gauge is only decremented for jobs that actually started a capture.
	// Touched only from the consumer goroutine.
	recording map[string]struct{}

	cancel context.CancelFunc
	done   chan struct{}
}

func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		scheduled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "magneto_jobs_scheduled_total",
			Help: "Recording jobs accepted by the scheduler.",
		}),
		completed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "magneto_jobs_completed_total",
			Help: "Recording jobs that completed normally.",
		}),
		failed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "magneto_jobs_failed_total",
			Help: "Recording jobs that failed to launch or record.",
		}),
		cancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "magneto_jobs_cancelled_total",
			Help: "Recording jobs cancelled before or during capture.",
		}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "magneto_recordings_active",
			Help: "Capture processes currently running.",
		}),
	}
	c.recording = map[string]struct{}{}
	reg.MustRegister(c.scheduled, c.completed, c.failed, c.cancelled, c.active)
	return c
}

// Start consumes bus events until Stop or ctx cancellation.
func (c *Collector) Start(ctx context.Context, bus eventbus.Bus) {
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})

	ch, unsub := bus.Subscribe(64)
	go func() {
		defer close(c.done)
		defer unsub()
		for {
			select {
			case <-runCtx.Done():
				return
			case ev := <-ch:
				c.observe(ev)
			}
		}
	}()
}

func (c *Collector) Stop() {
	if c.cancel == nil {
		return
	}
	c.cancel()
	<-c.done
	c.cancel = nil
}

func (c *Collector) observe(ev eventbus.Event) {
	je, ok := ev.Data.(recorder.JobEvent)
	if !ok {
		return
	}
	switch ev.Type {
	case recorder.EventScheduled:
		c.scheduled.Inc()
	case recorder.EventRecording:
		c.recording[je.ID] = struct{}{}
		c.active.Inc()
	case recorder.EventCompleted:
		c.completed.Inc()
		c.settle(je.ID)
	case recorder.EventFailed:
		c.failed.Inc()
		c.settle(je.ID)
	case recorder.EventCancelled:
		c.cancelled.Inc()
		c.settle(je.ID)
	}
}

func (c *Collector) settle(id string) {
	if _, ok := c.recording[id]; ok {
		delete(c.recording, id)
		c.active.Dec()
	}
}
