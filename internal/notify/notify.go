// Package notify pushes recording outcomes to a Telegram chat. Entirely
// optional: without a token the daemon runs without it.
package notify

import (
	"context"
	"fmt"
	"time"

	tele "gopkg.in/telebot.v4"

	"magneto/internal/eventbus"
	"magneto/internal/recorder"
	logx "magneto/pkg/logx"
)

type Config struct {
	Token  string
	ChatID int64
}

// Sender is the small slice of the bot API we use; *tele.Bot satisfies it.
type Sender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

type Service struct {
	cfg    Config
	sender Sender
	log    logx.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// New builds the service with a real Telegram bot.
func New(cfg Config, log logx.Logger) (*Service, error) {
	// No poller: this bot only sends.
	bot, err := tele.NewBot(tele.Settings{Token: cfg.Token})
	if err != nil {
		return nil, err
	}
	return NewWithSender(cfg, bot, log), nil
}

// NewWithSender is New with an injected sender, for tests.
func NewWithSender(cfg Config, sender Sender, log logx.Logger) *Service {
	return &Service{cfg: cfg, sender: sender, log: log}
}

func (s *Service) Start(ctx context.Context, bus eventbus.Bus) {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	ch, unsub := bus.Subscribe(32)
	go func() {
		defer close(s.done)
		defer unsub()
		for {
			select {
			case <-runCtx.Done():
				return
			case ev := <-ch:
				s.handle(ev)
			}
		}
	}()
	s.log.Info("telegram notifier started", logx.Int64("chat_id", s.cfg.ChatID))
}

func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.cancel = nil
}

func (s *Service) handle(ev eventbus.Event) {
	je, ok := ev.Data.(recorder.JobEvent)
	if !ok {
		return
	}
	msg := FormatEvent(ev.Type, je)
	if msg == "" {
		return
	}
	if _, err := s.sender.Send(tele.ChatID(s.cfg.ChatID), msg); err != nil {
		s.log.Warn("notification send failed", logx.String("job", je.ID), logx.Err(err))
	}
}

// FormatEvent renders the user-facing message for a job event.
// Scheduled/recording events are intentionally silent; only outcomes notify.
func FormatEvent(eventType string, je recorder.JobEvent) string {
	switch eventType {
	case recorder.EventCompleted:
		return fmt.Sprintf("✅ %q recorded from %s (%s, device %d) → %s",
			je.Program, je.Channel, fmtWindow(je.Start, je.End), je.Device, je.Output)
	case recorder.EventFailed:
		return fmt.Sprintf("🚨 recording of %q from %s failed: %s",
			je.Program, je.Channel, je.Error)
	case recorder.EventCancelled:
		return fmt.Sprintf("ℹ️ recording of %q from %s was cancelled",
			je.Program, je.Channel)
	default:
		return ""
	}
}

func fmtWindow(start, end time.Time) string {
	return fmt.Sprintf("%s, %d min",
		start.Format("02/01/2006 15:04"),
		int(end.Sub(start).Minutes()))
}
