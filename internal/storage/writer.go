package storage

import (
	"context"

	"magneto/internal/eventbus"
	"magneto/internal/recorder"
	logx "magneto/pkg/logx"
)

// Writer subscribes to job lifecycle events and appends a history row for
// every terminal state. It owns one goroutine between Start and Stop.
type Writer struct {
	store Store
	bus   eventbus.Bus
	log   logx.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

func NewWriter(store Store, bus eventbus.Bus, log logx.Logger) *Writer {
	return &Writer{store: store, bus: bus, log: log}
}

func (w *Writer) Start(ctx context.Context) {
	if w.store == nil || w.bus == nil {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})

	ch, unsub := w.bus.Subscribe(64)
	go func() {
		defer close(w.done)
		defer unsub()
		for {
			select {
			case <-runCtx.Done():
				return
			case ev := <-ch:
				w.handle(runCtx, ev)
			}
		}
	}()
}

func (w *Writer) Stop() {
	if w.cancel == nil {
		return
	}
	w.cancel()
	<-w.done
	w.cancel = nil
}

func (w *Writer) handle(ctx context.Context, ev eventbus.Event) {
	switch ev.Type {
	case recorder.EventCompleted, recorder.EventFailed, recorder.EventCancelled:
	default:
		return
	}
	je, ok := ev.Data.(recorder.JobEvent)
	if !ok {
		return
	}
	err := w.store.AppendRecording(ctx, Recording{
		JobID:    je.ID,
		Program:  je.Program,
		Channel:  je.Channel,
		Device:   je.Device,
		Start:    je.Start,
		End:      je.End,
		State:    je.State,
		Output:   je.Output,
		Error:    je.Error,
		Finished: ev.Time,
	})
	if err != nil {
		w.log.Warn("history append failed", logx.String("job", je.ID), logx.Err(err))
	}
}
