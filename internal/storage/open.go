package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "magneto/pkg/logx"
)

// Store is the minimal persistence API used by the rest of the daemon.
type Store interface {
	AppendRecording(ctx context.Context, r Recording) error
	Recent(ctx context.Context, limit int) ([]Recording, error)
	PruneBefore(ctx context.Context, cutoff time.Time) (removed int64, err error)
	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	switch driver {
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
