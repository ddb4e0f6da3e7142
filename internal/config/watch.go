package config

import (
	"context"
	"path/filepath"
	"reflect"
	"time"

	"github.com/fsnotify/fsnotify"

	logx "magneto/pkg/logx"
)

// Watcher re-reads the config file on change and publishes the new LogConfig
// when it differs from the last committed one.
//
// Only the log block is published: everything the scheduler depends on is
// fixed for the lifetime of the process, so edits to those fields are logged
// and ignored until restart.
type Watcher struct {
	path string
	log  logx.Logger

	last *Config
}

func NewWatcher(path string, initial *Config, log logx.Logger) *Watcher {
	return &Watcher{path: path, last: initial, log: log}
}

// Run blocks until ctx is cancelled. onLog is invoked with the new log
// configuration after a successful reload that changed it.
func (w *Watcher) Run(ctx context.Context, onLog func(LogConfig)) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	// Watch the directory: editors replace files via rename, which drops a
	// watch placed on the file itself.
	dir := filepath.Dir(w.path)
	if err := fw.Add(dir); err != nil {
		return err
	}
	w.log.Debug("config watcher started", logx.String("path", w.path))

	// Debounce: editors fire several events per save.
	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			pending = time.After(250 * time.Millisecond)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("config watcher error", logx.Err(err))
		case <-pending:
			pending = nil
			w.reload(onLog)
		}
	}
}

func (w *Watcher) reload(onLog func(LogConfig)) {
	cfg, err := Load(w.path)
	if err != nil {
		w.log.Warn("config reload rejected", logx.Err(err))
		return
	}
	prev := w.last
	w.last = cfg

	if prev != nil && !reflect.DeepEqual(prev.Log, cfg.Log) {
		w.log.Info("log configuration reloaded", logx.String("level", cfg.Log.Level))
		if onLog != nil {
			onLog(cfg.Log)
		}
	}
	if prev != nil && !reflect.DeepEqual(prev.Recorder, cfg.Recorder) {
		w.log.Warn("recorder configuration changed on disk; restart required to apply")
	}
}
