// Package app wires the daemon together: configuration, logging, channel
// list, recording scheduler, history, metrics, notifier and the web UI.
package app

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"magneto/internal/channels"
	"magneto/internal/config"
	"magneto/internal/eventbus"
	"magneto/internal/janitor"
	"magneto/internal/metrics"
	"magneto/internal/notify"
	"magneto/internal/power"
	"magneto/internal/recorder"
	"magneto/internal/storage"
	"magneto/internal/web"
	logx "magneto/pkg/logx"
)

type App struct {
	cfgPath string
	cfg     *config.Config

	logSvc *logx.Service
	log    logx.Logger

	bus      eventbus.Bus
	store    storage.Store
	writer   *storage.Writer
	rec      *recorder.Service
	jan      *janitor.Service
	coll     *metrics.Collector
	notifier *notify.Service
	web      *web.Server

	watchWG     sync.WaitGroup
	watchCancel context.CancelFunc
}

func New(cfgPath string) (*App, error) {
	cfgPath = config.Path(cfgPath)
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Log.Level,
		Console: cfg.Log.Console,
		File:    logx.FileConfig(cfg.Log.File),
	})

	list, err := channels.Load(cfg.Recorder.ChannelsConf)
	if err != nil {
		return nil, fmt.Errorf("load channels %s: %w", cfg.Recorder.ChannelsConf, err)
	}
	log.Info("channels loaded",
		logx.String("path", cfg.Recorder.ChannelsConf),
		logx.Int("count", list.Len()))

	store, err := storage.Open(storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: cfg.Storage.BusyTimeout.Std(),
	}, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	bus := eventbus.New()

	launcher := recorder.NewCaptureCommand(
		cfg.Recorder.CaptureCommand,
		cfg.Recorder.ChannelsConf,
		log.With(logx.String("comp", "launcher")))

	rec := recorder.New(recorder.Config{
		Devices:     cfg.Recorder.Devices,
		MaxDuration: cfg.Recorder.MaxDuration.Std(),
		Grace:       cfg.Recorder.Grace.Std(),
		OutputDir:   cfg.Recorder.OutputDir,
	}, recorder.Deps{
		Channels: list,
		Launcher: launcher,
		Power:    power.New(cfg.Recorder.PoweroffCommand, log.With(logx.String("comp", "power"))),
		Bus:      bus,
		Log:      log.With(logx.String("comp", "recorder")),
	})

	jan := janitor.New(janitor.Config{
		Schedule:  cfg.Janitor.Schedule,
		Retention: cfg.Storage.Retention.Std(),
	}, store, rec, log.With(logx.String("comp", "janitor")))

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	coll := metrics.NewCollector(reg)

	var notifier *notify.Service
	if cfg.Telegram.Enabled {
		notifier, err = notify.New(notify.Config{
			Token:  strings.TrimSpace(cfg.Telegram.Token),
			ChatID: cfg.Telegram.ChatID,
		}, log.With(logx.String("comp", "notify")))
		if err != nil {
			return nil, fmt.Errorf("telegram notifier: %w", err)
		}
	}

	srv, err := web.NewServer(web.Config{
		Listen:            cfg.Web.Listen,
		RequestsPerMinute: cfg.Web.RequestsPerMinute,
	}, rec, list, cfg.Recorder.Devices, store, reg, log.With(logx.String("comp", "web")))
	if err != nil {
		return nil, fmt.Errorf("web server: %w", err)
	}

	return &App{
		cfgPath:  cfgPath,
		cfg:      cfg,
		logSvc:   logSvc,
		log:      log,
		bus:      bus,
		store:    store,
		writer:   storage.NewWriter(store, bus, log.With(logx.String("comp", "history"))),
		rec:      rec,
		jan:      jan,
		coll:     coll,
		notifier: notifier,
		web:      srv,
	}, nil
}

func (a *App) Start(ctx context.Context) error {
	a.rec.Start(ctx)
	a.writer.Start(ctx)
	a.coll.Start(ctx, a.bus)
	if a.notifier != nil {
		a.notifier.Start(ctx, a.bus)
	}
	if err := a.jan.Start(ctx); err != nil {
		return fmt.Errorf("janitor: %w", err)
	}
	a.web.Start()

	// Hot reload is limited to the log block; everything the scheduler
	// depends on stays fixed until restart.
	watchCtx, cancel := context.WithCancel(ctx)
	a.watchCancel = cancel
	watcher := config.NewWatcher(a.cfgPath, a.cfg, a.log.With(logx.String("comp", "config")))
	a.watchWG.Add(1)
	go func() {
		defer a.watchWG.Done()
		if err := watcher.Run(watchCtx, func(lc config.LogConfig) {
			a.logSvc.Apply(logx.Config{
				Level:   lc.Level,
				Console: lc.Console,
				File:    logx.FileConfig(lc.File),
			})
		}); err != nil {
			a.log.Warn("config watcher stopped", logx.Err(err))
		}
	}()

	if sent, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.log.Warn("sd_notify failed", logx.Err(err))
	} else if sent {
		a.log.Debug("sd_notify ready sent")
	}

	a.log.Info("magnetod started", logx.String("config", a.cfgPath))
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	if a.watchCancel != nil {
		a.watchCancel()
		a.watchWG.Wait()
	}
	a.web.Stop(ctx)
	a.jan.Stop(ctx)
	a.rec.Stop(ctx)
	if a.notifier != nil {
		a.notifier.Stop()
	}
	a.coll.Stop()
	a.writer.Stop()
	if a.store != nil {
		_ = a.store.Close()
	}
	a.log.Info("magnetod stopped")
	_ = a.logSvc.Close()
	return nil
}
