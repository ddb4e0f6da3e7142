package storage

import (
	"context"
	"sync"
	"testing"
	"time"

	"magneto/internal/eventbus"
	"magneto/internal/recorder"
	logx "magneto/pkg/logx"
)

type memStore struct {
	mu   sync.Mutex
	rows []Recording
}

func (m *memStore) AppendRecording(_ context.Context, r Recording) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, r)
	return nil
}

func (m *memStore) Recent(context.Context, int) ([]Recording, error) { return nil, nil }
func (m *memStore) PruneBefore(context.Context, time.Time) (int64, error) {
	return 0, nil
}
func (m *memStore) Close() error { return nil }

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

func TestWriterAppendsTerminalEventsOnly(t *testing.T) {
	t.Parallel()
	store := &memStore{}
	bus := eventbus.New()
	w := NewWriter(store, bus, logx.Nop())
	w.Start(context.Background())
	defer w.Stop()

	publish := func(typ string) {
		bus.Publish(eventbus.Event{
			Type: typ,
			Time: time.Now(),
			Data: recorder.JobEvent{ID: "j1", Program: "Evening news", Channel: "TF1", State: "x"},
		})
	}

	publish(recorder.EventScheduled)
	publish(recorder.EventRecording)
	publish(recorder.EventCompleted)
	publish(recorder.EventFailed)
	publish(recorder.EventCancelled)

	deadline := time.Now().Add(2 * time.Second)
	for store.count() < 3 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if got := store.count(); got != 3 {
		t.Fatalf("appended %d rows, want 3 (terminal events only)", got)
	}

	store.mu.Lock()
	first := store.rows[0]
	store.mu.Unlock()
	if first.JobID != "j1" || first.Program != "Evening news" {
		t.Fatalf("row fields lost: %+v", first)
	}
}

func TestWriterNilStoreIsInert(t *testing.T) {
	t.Parallel()
	w := NewWriter(nil, eventbus.New(), logx.Nop())
	w.Start(context.Background())
	w.Stop() // no goroutine, no panic
}
