// Package janitor runs the periodic retention sweep: old rows leave the
// history store and terminal jobs leave the scheduler's in-memory table.
package janitor

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"magneto/internal/recorder"
	"magneto/internal/storage"
	logx "magneto/pkg/logx"
)

type Config struct {
	// Schedule is a cron spec or descriptor, e.g. "0 4 * * *" or "@daily".
	Schedule string
	// Retention bounds how long finished recordings are kept.
	Retention time.Duration
}

type Service struct {
	cfg   Config
	store storage.Store
	rec   *recorder.Service
	log   logx.Logger

	c *cron.Cron
}

func New(cfg Config, store storage.Store, rec *recorder.Service, log logx.Logger) *Service {
	if cfg.Schedule == "" {
		cfg.Schedule = "@daily"
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 90 * 24 * time.Hour
	}
	return &Service{cfg: cfg, store: store, rec: rec, log: log}
}

func (s *Service) Start(ctx context.Context) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	s.c = cron.New(cron.WithParser(parser))
	if _, err := s.c.AddFunc(s.cfg.Schedule, func() { s.Sweep(ctx) }); err != nil {
		return err
	}
	s.c.Start()
	s.log.Info("janitor started",
		logx.String("schedule", s.cfg.Schedule),
		logx.Duration("retention", s.cfg.Retention))
	return nil
}

func (s *Service) Stop(ctx context.Context) {
	if s.c == nil {
		return
	}
	stopped := s.c.Stop()
	select {
	case <-stopped.Done():
	case <-ctx.Done():
	}
	s.c = nil
	s.log.Info("janitor stopped")
}

// Sweep prunes both the durable history and the in-memory job table.
func (s *Service) Sweep(ctx context.Context) {
	cutoff := time.Now().Add(-s.cfg.Retention)
	if s.store != nil {
		removed, err := s.store.PruneBefore(ctx, cutoff)
		if err != nil {
			s.log.Warn("history prune failed", logx.Err(err))
		} else if removed > 0 {
			s.log.Info("history pruned", logx.Int64("rows", removed))
		}
	}
	if s.rec != nil {
		if n := s.rec.PruneFinished(s.cfg.Retention); n > 0 {
			s.log.Info("finished jobs pruned", logx.Int("jobs", n))
		}
	}
}
